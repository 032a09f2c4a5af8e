package ui

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/forest-guardian/vegindex-cli/internal/delivery"
	"github.com/forest-guardian/vegindex-cli/output"
)

// RenderGeoTIFF handles the UI for rendering an existing index GeoTIFF.
func RenderGeoTIFF(app *App) {
	path := ReadString("Enter the GeoTIFF path: ")
	if path == "" {
		PrintError("a GeoTIFF path is required")
		return
	}

	res, err := delivery.RenderIndexGeoTIFF(path, output.DefaultIndexImageOptions())
	if err != nil {
		PrintError(err.Error())
		return
	}

	successColor.Fprintf(stdout, "\n%-12s %10s %10s %10s %10s\n", "Date", "Mean", "Std", "Min", "Max")
	for _, s := range res.Stats {
		successColor.Fprintf(stdout, "%-12s %10.4f %10.4f %10.4f %10.4f\n", s.Date, s.Mean, s.StdDev, s.Min, s.Max)
	}
	PrintItem("Preview: " + res.PreviewPath)
	PrintItem("Statistics: " + res.StatsPath)
}

// Segment handles the UI for running the segmentation model over a GeoTIFF.
func Segment(app *App) {
	in := ReadString("Enter the input GeoTIFF path: ")
	if in == "" {
		PrintError("an input GeoTIFF path is required")
		return
	}
	def := strings.TrimSuffix(in, filepath.Ext(in)) + "_segmented.tif"
	out := ReadStringDefault("Enter the output GeoTIFF path: ", def)

	if app.LoadModel == nil {
		PrintError("no segmentation model configured")
		return
	}
	model, release, err := app.LoadModel()
	if err != nil {
		reportError(app, "error loading model", err)
		return
	}
	defer release()

	res, err := delivery.SegmentGeoTIFF(app.Ctx, app.Cfg, model, in, out)
	if err != nil {
		reportError(app, fmt.Sprintf("error segmenting %s", in), err)
		return
	}

	reportSuccess(app, fmt.Sprintf("Segmentation of %s: %s", in, res.Path))
	PrintItem("Mask: " + res.MaskPath)
	PrintItem(fmt.Sprintf("GeoJSON (%d pixels): %s", res.Features, res.GeoJSONPath))

	labels := make([]string, 0, len(res.Coverage))
	for label := range res.Coverage {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		PrintItem(fmt.Sprintf("%s: %.2f%%", label, res.Coverage[label]*100))
	}
}
