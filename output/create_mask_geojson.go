package output

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/forest-guardian/vegindex-cli/internal/geotiff"
	"github.com/forest-guardian/vegindex-cli/internal/tiling"
	"github.com/paulmach/orb/geojson"
)

// MaskFeatures turns every pixel of pred not assigned to the first class
// into a point at the pixel center in WGS84, carrying its label and the
// score of every label.
func MaskFeatures(pred *tiling.Raster, meta geotiff.Meta, labels []string) (*geojson.FeatureCollection, error) {
	if err := pred.Validate(); err != nil {
		return nil, err
	}
	if pred.Width != meta.Width || pred.Height != meta.Height {
		return nil, fmt.Errorf("prediction is %dx%d but the grid is %dx%d", pred.Width, pred.Height, meta.Width, meta.Height)
	}

	classes := Argmax(pred)
	var pixels [][2]int
	for i, class := range classes {
		if class != 0 {
			pixels = append(pixels, [2]int{i % pred.Width, i / pred.Width})
		}
	}
	centers, err := meta.LonLatCenters(pixels)
	if err != nil {
		return nil, err
	}

	fc := geojson.NewFeatureCollection()
	for i, p := range pixels {
		x, y := p[0], p[1]
		scores := make(map[string]float64, pred.Channels)
		for c := 0; c < pred.Channels; c++ {
			scores[labelFor(labels, c)] = float64(pred.At(c, y, x))
		}

		f := geojson.NewFeature(centers[i])
		f.Properties["x"] = x
		f.Properties["y"] = y
		f.Properties["label"] = labelFor(labels, classes[y*pred.Width+x])
		f.Properties["scores"] = scores
		fc.Append(f)
	}
	return fc, nil
}

// CreateMaskGeoJSON writes MaskFeatures as a GeoJSON FeatureCollection.
func CreateMaskGeoJSON(pred *tiling.Raster, meta geotiff.Meta, labels []string, outputPath string) (int, error) {
	fc, err := MaskFeatures(pred, meta, labels)
	if err != nil {
		return 0, err
	}
	data, err := fc.MarshalJSON()
	if err != nil {
		return 0, fmt.Errorf("error encoding GeoJSON: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), os.ModePerm); err != nil {
		return 0, fmt.Errorf("failed to create result folder: %w", err)
	}
	if err := os.WriteFile(outputPath, data, 0644); err != nil {
		return 0, fmt.Errorf("error creating GeoJSON file: %w", err)
	}
	return len(fc.Features), nil
}
