package output

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/forest-guardian/vegindex-cli/internal/geotiff"
	"github.com/gocarina/gocsv"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

type IndexStats struct {
	Band        int     `csv:"band"`
	Date        string  `csv:"date"`
	Mean        float64 `csv:"mean"`
	StdDev      float64 `csv:"std_dev"`
	Min         float64 `csv:"min"`
	Max         float64 `csv:"max"`
	ValidPixels int     `csv:"valid_pixels"`
}

// ComputeIndexStats summarizes every band, ignoring NaN and infinite
// samples. Bands without valid samples report NaN statistics.
func ComputeIndexStats(img *geotiff.Image) []IndexStats {
	stats := make([]IndexStats, 0, len(img.Bands))
	for i, band := range img.Bands {
		values := make([]float64, 0, len(band.Data))
		for _, v := range band.Data {
			f := float64(v)
			if math.IsNaN(f) || math.IsInf(f, 0) {
				continue
			}
			values = append(values, f)
		}

		s := IndexStats{
			Band:        i + 1,
			Date:        band.Tags[geotiff.DateTag],
			ValidPixels: len(values),
			Mean:        math.NaN(),
			StdDev:      math.NaN(),
			Min:         math.NaN(),
			Max:         math.NaN(),
		}
		if len(values) > 0 {
			s.Mean, s.StdDev = stat.PopMeanStdDev(values, nil)
			s.Min = floats.Min(values)
			s.Max = floats.Max(values)
		}
		stats = append(stats, s)
	}
	return stats
}

func CreateIndexStatsCSV(img *geotiff.Image, outputPath string) ([]IndexStats, error) {
	stats := ComputeIndexStats(img)

	if err := os.MkdirAll(filepath.Dir(outputPath), os.ModePerm); err != nil {
		return nil, fmt.Errorf("failed to create result folder: %w", err)
	}
	file, err := os.Create(outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	if err := gocsv.MarshalFile(&stats, file); err != nil {
		return nil, fmt.Errorf("failed to write stats: %w", err)
	}
	return stats, nil
}
