// Package dataset flattens index GeoTIFFs into per-pixel time series.
package dataset

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/forest-guardian/vegindex-cli/internal/geotiff"
	"github.com/gocarina/gocsv"
	"github.com/schollz/progressbar/v3"
)

type PixelData struct {
	X         int     `csv:"x"`
	Y         int     `csv:"y"`
	Latitude  float64 `csv:"latitude"`
	Longitude float64 `csv:"longitude"`
	Date      string  `csv:"date"`
	Value     float64 `csv:"value"`
}

// CreatePixelDataset returns one row per pixel and band, ordered by pixel
// then band. Samples that are NaN or infinite are skipped. Coordinates are
// those of the pixel center in WGS84.
func CreatePixelDataset(img *geotiff.Image, progress bool) ([]PixelData, error) {
	plane := img.Width * img.Height
	for i, band := range img.Bands {
		if len(band.Data) != plane {
			return nil, fmt.Errorf("%w: band %d has %d samples, expected %d", geotiff.ErrInvalidImage, i+1, len(band.Data), plane)
		}
	}

	var bar *progressbar.ProgressBar
	if progress {
		bar = progressbar.Default(int64(plane), "Creating pixel dataset")
	}

	pixels := make([][2]int, 0, plane)
	for y := range img.Height {
		for x := range img.Width {
			pixels = append(pixels, [2]int{x, y})
		}
	}
	centers, err := img.LonLatCenters(pixels)
	if err != nil {
		return nil, err
	}

	rows := make([]PixelData, 0, plane*len(img.Bands))
	for y := range img.Height {
		for x := range img.Width {
			lon, lat := centers[y*img.Width+x].Lon(), centers[y*img.Width+x].Lat()
			for b, band := range img.Bands {
				v := float64(band.Data[y*img.Width+x])
				if math.IsNaN(v) || math.IsInf(v, 0) {
					continue
				}
				rows = append(rows, PixelData{
					X:         x,
					Y:         y,
					Latitude:  lat,
					Longitude: lon,
					Date:      img.Tag(b, geotiff.DateTag),
					Value:     v,
				})
			}
			if bar != nil {
				bar.Add(1)
			}
		}
	}
	return rows, nil
}

// CreatePixelDatasetCSV reads the GeoTIFF at inputPath and writes its pixel
// dataset to outputPath. It returns the number of rows written.
func CreatePixelDatasetCSV(inputPath, outputPath string, progress bool) (int, error) {
	img, err := geotiff.Read(inputPath)
	if err != nil {
		return 0, err
	}
	rows, err := CreatePixelDataset(img, progress)
	if err != nil {
		return 0, err
	}

	if err := writeCSV(rows, outputPath); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// PixelSeries returns the rows of the single pixel containing (lon, lat),
// one per band with a finite value.
func PixelSeries(img *geotiff.Image, lon, lat float64) ([]PixelData, error) {
	x, y, err := img.LonLatToPixel(lon, lat)
	if err != nil {
		return nil, err
	}
	cx, cy := img.PixelCenter(x, y)

	var rows []PixelData
	for b, band := range img.Bands {
		if len(band.Data) != img.Width*img.Height {
			return nil, fmt.Errorf("%w: band %d has %d samples", geotiff.ErrInvalidImage, b+1, len(band.Data))
		}
		v := float64(band.Data[y*img.Width+x])
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		rows = append(rows, PixelData{X: x, Y: y, Latitude: cy, Longitude: cx, Date: img.Tag(b, geotiff.DateTag), Value: v})
	}
	return rows, nil
}

// PixelSeriesCSV writes the PixelSeries of (lon, lat) in the GeoTIFF at
// inputPath to outputPath.
func PixelSeriesCSV(inputPath string, lon, lat float64, outputPath string) (int, error) {
	img, err := geotiff.Read(inputPath)
	if err != nil {
		return 0, err
	}
	rows, err := PixelSeries(img, lon, lat)
	if err != nil {
		return 0, err
	}
	if err := writeCSV(rows, outputPath); err != nil {
		return 0, err
	}
	return len(rows), nil
}

func writeCSV(rows []PixelData, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create dataset folder: %w", err)
	}
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	if err := gocsv.MarshalFile(&rows, file); err != nil {
		return fmt.Errorf("failed to write pixel dataset: %w", err)
	}
	return nil
}
