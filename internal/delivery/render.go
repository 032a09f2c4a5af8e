package delivery

import (
	"path/filepath"
	"strings"

	"github.com/forest-guardian/vegindex-cli/internal/geotiff"
	"github.com/forest-guardian/vegindex-cli/output"
)

type RenderResult struct {
	PreviewPath string
	StatsPath   string
	Stats       []output.IndexStats
}

// IndexLabelFromPath derives the index label from a file named by
// IndexFileName, e.g. "2024-08-20_2024-09-10_ndvi.tif" gives "NDVI".
func IndexLabelFromPath(path string) string {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	parts := strings.Split(name, "_")
	return strings.ToUpper(parts[len(parts)-1])
}

// RenderIndexGeoTIFF writes a PNG preview and a CSV of per-band statistics
// next to the GeoTIFF at path.
func RenderIndexGeoTIFF(path string, opts output.IndexImageOptions) (*RenderResult, error) {
	img, err := geotiff.Read(path)
	if err != nil {
		return nil, err
	}

	base := strings.TrimSuffix(path, filepath.Ext(path))
	res := &RenderResult{
		PreviewPath: base + "_preview.png",
		StatsPath:   base + "_stats.csv",
	}
	if err := output.CreateIndexImage(img, IndexLabelFromPath(path), res.PreviewPath, opts); err != nil {
		return nil, err
	}
	res.Stats, err = output.CreateIndexStatsCSV(img, res.StatsPath)
	if err != nil {
		return nil, err
	}
	return res, nil
}
