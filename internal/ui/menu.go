package ui

import (
	"context"

	"github.com/forest-guardian/vegindex-cli/internal/notification"
	"github.com/forest-guardian/vegindex-cli/internal/properties"
	"github.com/forest-guardian/vegindex-cli/internal/sentinel"
	"github.com/forest-guardian/vegindex-cli/internal/tiling"
)

// App carries what the menu handlers need.
type App struct {
	Ctx      context.Context
	Cfg      *properties.Config
	Source   sentinel.ImageSource
	Notifier *notification.Discord
	// LoadModel returns the segmentation model and a function releasing it.
	LoadModel func() (tiling.Model, func() error, error)
}

type menuOption struct {
	title   string
	handler func(*App)
}

// ShowMenu displays the main menu and handles user input until the user
// exits or the input ends.
func ShowMenu(app *App) {
	exit := false
	menuOptions := []menuOption{
		{"Generate a vegetation index GeoTIFF for a date range", GenerateIndex},
		{"Download a true color image for a target date", TrueColor},
		{"Render a preview and statistics of an index GeoTIFF", RenderGeoTIFF},
		{"Segment a GeoTIFF with the vegetation model", Segment},
		{"View the list of available areas of interest", ListAOIs},
		{"Exit the application", func(*App) { PrintInfo("Exiting...\n"); exit = true }},
	}

	for !exit {
		if app.Ctx.Err() != nil {
			return
		}
		infoColor.Fprintln(stdout, "===================")
		for i, opt := range menuOptions {
			infoColor.Fprintf(stdout, "%d. %s\n", i+1, opt.title)
		}

		line := ReadString("Please enter your choice: ")
		if line == "" {
			if _, err := input.Peek(1); err != nil {
				return
			}
			continue
		}

		choice, err := parseChoice(line, len(menuOptions))
		if err != nil {
			PrintError(err.Error())
			continue
		}

		menuOptions[choice-1].handler(app)
	}
}
