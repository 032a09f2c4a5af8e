package ui

import (
	"fmt"

	"github.com/forest-guardian/vegindex-cli/internal/delivery"
	"github.com/forest-guardian/vegindex-cli/internal/sentinel"
)

// TrueColor handles the UI for downloading a true color image of an area of
// interest on a given date.
func TrueColor(app *App) {
	if !requireSource(app) {
		return
	}
	aoi, name, err := readAOI(app)
	if err != nil {
		PrintError(err.Error())
		return
	}

	target, err := ReadDate("Enter the target date (YYYY-MM-DD or 'today'): ")
	if err != nil {
		PrintError(err.Error())
		return
	}

	cloud, err := ReadIntDefault("Enter the maximum cloud cover percentage: ", app.Cfg.Imagery.MaxCloudCover, 0, 100)
	if err != nil {
		PrintError(err.Error())
		return
	}
	optimized := ReadYesNo("Enhance contrast? ", false)

	res, err := delivery.TrueColorForTargetDate(app.Ctx, app.Cfg, app.Source, delivery.TrueColorRequest{
		AOI:           aoi,
		Target:        target,
		MaxCloudCover: cloud,
		Optimized:     optimized,
	})
	if err != nil {
		reportError(app, fmt.Sprintf("error downloading true color image for %s", name), err)
		return
	}

	if !res.Exact {
		PrintWarning(fmt.Sprintf("No acquisition on %s, using the nearest available date %s.",
			target.Format(sentinel.DateLayout), res.Date.Format(sentinel.DateLayout)))
	}
	reportSuccess(app, fmt.Sprintf("True color image for %s on %s: %s", name, res.Date.Format(sentinel.DateLayout), res.Path))
}
