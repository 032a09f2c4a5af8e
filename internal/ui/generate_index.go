package ui

import (
	"fmt"
	"strings"

	"github.com/forest-guardian/vegindex-cli/internal/dataset"
	"github.com/forest-guardian/vegindex-cli/internal/delivery"
	"github.com/forest-guardian/vegindex-cli/internal/geotiff"
	"github.com/forest-guardian/vegindex-cli/internal/indices"
	"github.com/forest-guardian/vegindex-cli/internal/sentinel"
	"github.com/forest-guardian/vegindex-cli/output"
	"github.com/sirupsen/logrus"
)

// GenerateIndex handles the UI for building a multi-date vegetation index
// GeoTIFF and its preview.
func GenerateIndex(app *App) {
	if !requireSource(app) {
		return
	}
	aoi, name, err := readAOI(app)
	if err != nil {
		PrintError(err.Error())
		return
	}

	startDate, endDate, err := ReadDateRange()
	if err != nil {
		PrintError(err.Error())
		return
	}

	index, err := readIndex()
	if err != nil {
		PrintError(err.Error())
		return
	}

	cloud, err := ReadIntDefault("Enter the maximum cloud cover percentage: ", app.Cfg.Imagery.MaxCloudCover, 0, 100)
	if err != nil {
		PrintError(err.Error())
		return
	}

	PrintInfo(fmt.Sprintf("\nGenerating %s for '%s' from %s to %s...\n", index.Label(), name,
		startDate.Format(sentinel.DateLayout), endDate.Format(sentinel.DateLayout)))

	res, err := delivery.GeoTIFFForVegIndex(app.Ctx, app.Cfg, app.Source, delivery.IndexRequest{
		AOI:           aoi,
		Start:         startDate,
		End:           endDate,
		Index:         index,
		MaxCloudCover: cloud,
		Progress:      true,
	})
	if err != nil {
		reportError(app, fmt.Sprintf("error generating %s for %s", index.Label(), name), err)
		return
	}

	render, err := delivery.RenderIndexGeoTIFF(res.Path, output.DefaultIndexImageOptions())
	if err != nil {
		reportError(app, "error rendering preview", err)
		return
	}

	dates := make([]string, len(res.Dates))
	for i, d := range res.Dates {
		dates[i] = d.Format(sentinel.DateLayout)
	}
	msg := fmt.Sprintf("%s GeoTIFF for %s with %d dates (%s): %s", index.Label(), name, len(dates), strings.Join(dates, ", "), res.Path)
	reportSuccess(app, msg)
	PrintItem("Preview: " + render.PreviewPath)
	PrintItem("Statistics: " + render.StatsPath)
	printCentroidSeries(aoi, res.Path)
}

func printCentroidSeries(aoi *sentinel.AOI, path string) {
	lat, lon, err := aoi.Centroid()
	if err != nil {
		logrus.WithError(err).Debug("AOI has no centroid")
		return
	}
	img, err := geotiff.Read(path)
	if err != nil {
		PrintWarning(err.Error())
		return
	}
	rows, err := dataset.PixelSeries(img, lon, lat)
	if err != nil {
		PrintWarning(fmt.Sprintf("no values at the AOI centroid: %v", err))
		return
	}
	PrintInfo(fmt.Sprintf("Values at the AOI centroid (%.5f, %.5f):", lat, lon))
	for _, r := range rows {
		PrintItem(fmt.Sprintf("%s: %.4f", r.Date, r.Value))
	}
}

func readIndex() (indices.Index, error) {
	options := make([]string, len(indices.VegetationIndices))
	for i, idx := range indices.VegetationIndices {
		options[i] = idx.Label()
	}
	choice, err := ReadChoice("Available vegetation indices:", options)
	if err != nil {
		return "", err
	}
	return indices.VegetationIndices[choice], nil
}

func reportError(app *App, context string, err error) {
	msg := fmt.Sprintf("%s: %s", context, err)
	PrintError(msg)
	logrus.WithError(err).Error(context)
	if app.Notifier == nil {
		return
	}
	if nerr := app.Notifier.SendError(app.Ctx, msg); nerr != nil {
		logrus.WithError(nerr).Warn("error sending discord notification")
	}
}

func reportSuccess(app *App, msg string) {
	PrintSuccess(msg)
	if app.Notifier == nil {
		return
	}
	if err := app.Notifier.SendSuccess(app.Ctx, msg); err != nil {
		logrus.WithError(err).Warn("error sending discord notification")
	}
}

func requireSource(app *App) bool {
	if app.Source == nil {
		PrintError("Sentinel Hub credentials are not configured, set COPERNICUS_CLIENT_ID and COPERNICUS_CLIENT_SECRET")
		return false
	}
	return true
}
