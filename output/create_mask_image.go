package output

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"

	"github.com/fogleman/gg"
	"github.com/forest-guardian/vegindex-cli/internal/properties"
	"github.com/forest-guardian/vegindex-cli/internal/tiling"
)

// Argmax returns, for every pixel of pred, the channel with the highest
// score. Ties keep the lowest channel.
func Argmax(pred *tiling.Raster) []int {
	classes := make([]int, pred.Height*pred.Width)
	for y := 0; y < pred.Height; y++ {
		for x := 0; x < pred.Width; x++ {
			best := 0
			for c := 1; c < pred.Channels; c++ {
				if pred.At(c, y, x) > pred.At(best, y, x) {
					best = c
				}
			}
			classes[y*pred.Width+x] = best
		}
	}
	return classes
}

func labelFor(labels []string, class int) string {
	if class < len(labels) {
		return labels[class]
	}
	return "unknown"
}

// ClassCoverage returns the share of pixels assigned to each label.
func ClassCoverage(pred *tiling.Raster, labels []string) map[string]float64 {
	classes := Argmax(pred)
	coverage := map[string]float64{}
	for _, c := range classes {
		coverage[labelFor(labels, c)]++
	}
	for label := range coverage {
		coverage[label] /= float64(len(classes))
	}
	return coverage
}

// CreateMaskImage colors every pixel by its predicted label and saves the
// result as PNG.
func CreateMaskImage(pred *tiling.Raster, cfg *properties.Config, outputImagePath string) error {
	if err := pred.Validate(); err != nil {
		return err
	}

	classes := Argmax(pred)
	img := image.NewRGBA(image.Rect(0, 0, pred.Width, pred.Height))
	for i, class := range classes {
		clr := cfg.LabelColor(labelFor(cfg.Inference.Labels, class))
		img.SetRGBA(i%pred.Width, i/pred.Width, color.RGBA{R: clr.R, G: clr.G, B: clr.B, A: 255})
	}

	if err := os.MkdirAll(filepath.Dir(outputImagePath), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create result folder: %w", err)
	}
	if err := gg.SavePNG(outputImagePath, img); err != nil {
		return fmt.Errorf("failed to save image: %w", err)
	}
	return nil
}
