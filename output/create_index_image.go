package output

import (
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"

	"github.com/fogleman/gg"
	"github.com/forest-guardian/vegindex-cli/internal/geotiff"
)

const (
	panelWidth     = 480
	panelMargin    = 16
	titleHeight    = 28
	colorbarHeight = 14
	colorbarLabels = 18
)

type IndexImageOptions struct {
	NCols    int
	Colormap Colormap
	VMin     float64
	VMax     float64
}

func DefaultIndexImageOptions() IndexImageOptions {
	return IndexImageOptions{NCols: 2, Colormap: Greens, VMin: -1, VMax: 1}
}

// PanelTitle is the caption of a band preview.
func PanelTitle(indexLabel, date string) string {
	if date == "" {
		date = "No date available"
	}
	return fmt.Sprintf("%s Index in AOI on %s", indexLabel, date)
}

// CreateIndexImage renders every band of img as a panel of a grid, each with
// its title and a horizontal colorbar, and saves the grid as PNG.
func CreateIndexImage(img *geotiff.Image, indexLabel, outputImagePath string, opts IndexImageOptions) error {
	if len(img.Bands) == 0 {
		return fmt.Errorf("no bands to render")
	}
	if img.Width <= 0 || img.Height <= 0 {
		return fmt.Errorf("invalid image size %dx%d", img.Width, img.Height)
	}
	if opts.NCols <= 0 {
		opts.NCols = 1
	}
	if opts.Colormap.stops == nil {
		opts.Colormap = Greens
	}
	if opts.VMax <= opts.VMin {
		opts.VMin, opts.VMax = -1, 1
	}

	ncols := min(opts.NCols, len(img.Bands))
	nrows := (len(img.Bands) + ncols - 1) / ncols

	scale := float64(panelWidth) / float64(img.Width)
	imageHeight := int(math.Ceil(float64(img.Height) * scale))
	cellWidth := panelWidth + 2*panelMargin
	cellHeight := titleHeight + imageHeight + panelMargin + colorbarHeight + colorbarLabels + panelMargin

	dc := gg.NewContext(ncols*cellWidth, nrows*cellHeight)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	for i, band := range img.Bands {
		x := float64((i%ncols)*cellWidth + panelMargin)
		y := float64((i / ncols) * cellHeight)

		dc.SetRGB(0, 0, 0)
		dc.DrawStringAnchored(PanelTitle(indexLabel, band.Tags[geotiff.DateTag]), x+panelWidth/2, y+titleHeight/2, 0.5, 0.5)

		panel := bandImage(band.Data, img.Width, img.Height, opts)
		dc.Push()
		dc.Translate(x, y+titleHeight)
		dc.Scale(scale, scale)
		dc.DrawImage(panel, 0, 0)
		dc.Pop()

		drawColorbar(dc, x, y+titleHeight+float64(imageHeight)+panelMargin, opts)
	}

	if err := os.MkdirAll(filepath.Dir(outputImagePath), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create result folder: %w", err)
	}
	if err := dc.SavePNG(outputImagePath); err != nil {
		return fmt.Errorf("failed to save image: %w", err)
	}
	return nil
}

func bandImage(data []float32, width, height int, opts IndexImageOptions) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			out.SetRGBA(x, y, opts.Colormap.At(float64(data[y*width+x]), opts.VMin, opts.VMax))
		}
	}
	return out
}

func drawColorbar(dc *gg.Context, x, y float64, opts IndexImageOptions) {
	barWidth := panelWidth * 0.7
	left := x + (panelWidth-barWidth)/2

	for i := 0; i < int(barWidth); i++ {
		v := opts.VMin + (opts.VMax-opts.VMin)*float64(i)/(barWidth-1)
		dc.SetColor(opts.Colormap.At(v, opts.VMin, opts.VMax))
		dc.DrawRectangle(left+float64(i), y, 1, colorbarHeight)
		dc.Fill()
	}
	dc.SetRGB(0, 0, 0)
	dc.SetLineWidth(1)
	dc.DrawRectangle(left, y, barWidth, colorbarHeight)
	dc.Stroke()

	ticks := []float64{opts.VMin, (opts.VMin + opts.VMax) / 2, opts.VMax}
	for i, v := range ticks {
		tx := left + barWidth*float64(i)/float64(len(ticks)-1)
		dc.DrawLine(tx, y+colorbarHeight, tx, y+colorbarHeight+3)
		dc.Stroke()
		dc.DrawStringAnchored(fmt.Sprintf("%g", v), tx, y+colorbarHeight+colorbarLabels/2+2, 0.5, 0.5)
	}
}
