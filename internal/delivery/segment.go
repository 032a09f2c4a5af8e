package delivery

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/forest-guardian/vegindex-cli/internal/geotiff"
	"github.com/forest-guardian/vegindex-cli/internal/properties"
	"github.com/forest-guardian/vegindex-cli/internal/tiling"
	"github.com/forest-guardian/vegindex-cli/output"
)

const LabelTag = "LABEL"

type SegmentResult struct {
	Path        string
	MaskPath    string
	GeoJSONPath string
	Coverage    map[string]float64
	// Features is the number of non background pixels in the GeoJSON.
	Features int
}

// SegmentGeoTIFF predicts every pixel of the raster at inputPath with model
// and writes the per-class scores, georeferenced like the input, to
// outputPath together with a colored mask PNG and a GeoJSON of the non
// background pixels next to it.
func SegmentGeoTIFF(ctx context.Context, cfg *properties.Config, model tiling.Model, inputPath, outputPath string) (*SegmentResult, error) {
	img, err := geotiff.Read(inputPath)
	if err != nil {
		return nil, err
	}
	raster, err := img.Raster()
	if err != nil {
		return nil, err
	}

	pred, err := tiling.SegmentLargeImage(ctx, raster, model,
		tiling.WithPatchSize(cfg.Inference.PatchSize),
		tiling.WithWorkers(cfg.Inference.Workers),
		tiling.WithProgress(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to segment %s: %w", inputPath, err)
	}

	labels := cfg.Inference.Labels
	tags := make([]map[string]string, pred.Channels)
	for c := range tags {
		tags[c] = map[string]string{LabelTag: "unknown"}
		if c < len(labels) {
			tags[c][LabelTag] = labels[c]
		}
	}
	bands, err := geotiff.FromRaster(pred, tags...)
	if err != nil {
		return nil, err
	}
	if err := geotiff.Write(outputPath, img.Meta, bands); err != nil {
		return nil, err
	}

	base := strings.TrimSuffix(outputPath, filepath.Ext(outputPath))
	res := &SegmentResult{
		Path:        outputPath,
		MaskPath:    base + "_mask.png",
		GeoJSONPath: base + ".geojson",
		Coverage:    output.ClassCoverage(pred, labels),
	}
	if err := output.CreateMaskImage(pred, cfg, res.MaskPath); err != nil {
		return nil, err
	}
	res.Features, err = output.CreateMaskGeoJSON(pred, img.Meta, labels, res.GeoJSONPath)
	if err != nil {
		return nil, err
	}
	return res, nil
}
