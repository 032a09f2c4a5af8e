package ui

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/forest-guardian/vegindex-cli/internal/sentinel"
)

const geoJSONExt = ".geojson"

// AvailableAOIs returns the names of the GeoJSON files found in dir, without
// extension and sorted.
func AvailableAOIs(dir string) ([]string, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("error reading geojsons folder: %w", err)
	}
	var names []string
	for _, file := range files {
		if !file.IsDir() && strings.HasSuffix(file.Name(), geoJSONExt) {
			names = append(names, strings.TrimSuffix(file.Name(), geoJSONExt))
		}
	}
	sort.Strings(names)
	return names, nil
}

// ListAOIs handles the UI for viewing the list of available areas of interest
func ListAOIs(app *App) {
	dir := app.Cfg.GeoJSONPath()
	names, err := AvailableAOIs(dir)
	if err != nil {
		PrintError(err.Error())
		return
	}

	PrintWarning(fmt.Sprintf("To add a new area of interest, add its '%s' file at '%s' folder.", geoJSONExt, dir))

	successColor.Fprintln(stdout, "\nAvailable areas of interest:")
	for _, name := range names {
		PrintItem(name)
	}
}

// readAOI asks for an area of interest by name or by path to a GeoJSON file.
func readAOI(app *App) (*sentinel.AOI, string, error) {
	name := ReadString("Enter the area of interest name or GeoJSON path: ")
	if name == "" {
		return nil, "", fmt.Errorf("an area of interest is required")
	}
	path := name
	if !strings.HasSuffix(name, geoJSONExt) && !strings.HasSuffix(name, ".json") {
		path = filepath.Join(app.Cfg.GeoJSONPath(), name+geoJSONExt)
	}
	aoi, err := sentinel.LoadAOI(path)
	if err != nil {
		return nil, "", err
	}
	return aoi, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), nil
}
