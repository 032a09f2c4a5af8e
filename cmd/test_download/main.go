package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/forest-guardian/vegindex-cli/internal/delivery"
	"github.com/forest-guardian/vegindex-cli/internal/geotiff"
	"github.com/forest-guardian/vegindex-cli/internal/indices"
	"github.com/forest-guardian/vegindex-cli/internal/properties"
	"github.com/forest-guardian/vegindex-cli/internal/sentinel"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Downloads a few days of NDVI for an AOI to check credentials and the
// Sentinel Hub endpoints end to end.
//
//	test_download <aoi.geojson> [YYYY-MM-DD] [days]
func main() {
	if len(os.Args) < 2 {
		fmt.Println("usage: test_download <aoi.geojson> [YYYY-MM-DD] [days]")
		os.Exit(2)
	}
	aoiPath := os.Args[1]
	testDate := time.Date(2024, 8, 20, 0, 0, 0, 0, time.UTC)
	intervalDays := 5
	if len(os.Args) > 2 {
		d, err := time.Parse(sentinel.DateLayout, os.Args[2])
		if err != nil {
			logrus.Fatalf("Invalid date %q: %v", os.Args[2], err)
		}
		testDate = d
	}
	if len(os.Args) > 3 {
		if _, err := fmt.Sscanf(os.Args[3], "%d", &intervalDays); err != nil || intervalDays < 0 {
			logrus.Fatalf("Invalid number of days %q", os.Args[3])
		}
	}

	fmt.Println("=== VegIndex Test Image Download ===")
	fmt.Printf("AOI: %s\n", aoiPath)
	fmt.Printf("Dates: %s to %s\n\n", testDate.AddDate(0, 0, -intervalDays).Format(sentinel.DateLayout), testDate.Format(sentinel.DateLayout))

	for _, env := range []string{".env", "../../.env"} {
		if err := godotenv.Load(env); err == nil {
			logrus.Debugf("Loaded %s", env)
			break
		}
	}
	for _, name := range []string{"COPERNICUS_CLIENT_ID", "COPERNICUS_CLIENT_SECRET"} {
		if os.Getenv(name) == "" {
			logrus.Warnf("%s is not set", name)
		}
	}

	cfg, err := properties.LoadConfig("")
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	aoi, err := sentinel.LoadAOI(aoiPath)
	if err != nil {
		logrus.Fatalf("Failed to load AOI: %v", err)
	}
	fmt.Printf("✓ AOI loaded, bbox %v\n", aoi.Bound())

	ctx := context.Background()
	client, err := sentinel.NewClientFromConfig(ctx, cfg)
	if err != nil {
		logrus.Fatalf("Failed to create Sentinel Hub client: %v", err)
	}

	res, err := delivery.GeoTIFFForVegIndex(ctx, cfg, client, delivery.IndexRequest{
		AOI:           aoi,
		Start:         testDate.AddDate(0, 0, -intervalDays),
		End:           testDate,
		Index:         indices.NDVI,
		MaxCloudCover: cfg.Imagery.MaxCloudCover,
		Progress:      true,
	})
	if err != nil {
		logrus.Fatalf("Failed to get images: %v", err)
	}

	img, err := geotiff.Read(res.Path)
	if err != nil {
		logrus.Fatalf("Failed to read %s: %v", res.Path, err)
	}

	fmt.Println("\n--- Result ---")
	fmt.Printf("File: %s\n", res.Path)
	fmt.Printf("Size: %dx%d, bands: %d, EPSG: %d\n", img.Width, img.Height, len(img.Bands), img.EPSG)
	b := img.Bounds()
	fmt.Printf("Bounds: %.6f, %.6f, %.6f, %.6f\n", b.Min.X(), b.Min.Y(), b.Max.X(), b.Max.Y())
	for i := range img.Bands {
		fmt.Printf("- band %d: %s\n", i+1, img.Tag(i, geotiff.DateTag))
	}

	fmt.Println("\n✓ Download check passed")
}
