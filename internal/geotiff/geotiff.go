// Package geotiff reads and writes georeferenced multi-band float32 rasters
// with GDAL.
package geotiff

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/airbusgeo/godal"
	"github.com/paulmach/orb"
)

const (
	EPSGWGS84 = 4326
	DateTag   = "DATE"
)

var ErrInvalidImage = errors.New("invalid image")

var registerOnce sync.Once

func register() {
	registerOnce.Do(godal.RegisterAll)
}

// Meta describes the pixel grid and its georeferencing.
type Meta struct {
	Width  int
	Height int
	// Transform is a GDAL geotransform:
	// [originX, pixelWidth, 0, originY, 0, -pixelHeight].
	Transform [6]float64
	EPSG      int
	// Projection is the WKT of the grid's coordinate system. When set it
	// takes precedence over EPSG on write.
	Projection string
}

// NewMeta georeferences a width x height grid over bounds in EPSG:4326.
func NewMeta(bounds orb.Bound, width, height int) Meta {
	return Meta{
		Width:     width,
		Height:    height,
		Transform: GeoTransform(bounds, width, height),
		EPSG:      EPSGWGS84,
	}
}

func GeoTransform(bounds orb.Bound, width, height int) [6]float64 {
	west, north := bounds.Min.Lon(), bounds.Max.Lat()
	return [6]float64{
		west, (bounds.Max.Lon() - west) / float64(width), 0,
		north, 0, -(north - bounds.Min.Lat()) / float64(height),
	}
}

func (m Meta) Bounds() orb.Bound {
	west, north := m.Transform[0], m.Transform[3]
	east := west + m.Transform[1]*float64(m.Width)
	south := north + m.Transform[5]*float64(m.Height)
	return orb.Bound{Min: orb.Point{west, math.Min(north, south)}, Max: orb.Point{east, math.Max(north, south)}}
}

// PixelCenter returns the center of pixel (x, y) in the grid's own
// coordinate system.
func (m Meta) PixelCenter(x, y int) (float64, float64) {
	fx, fy := float64(x)+0.5, float64(y)+0.5
	return m.Transform[0] + fx*m.Transform[1] + fy*m.Transform[2],
		m.Transform[3] + fx*m.Transform[4] + fy*m.Transform[5]
}

// LonLatToPixel returns the pixel containing (lon, lat). The grid must be in
// geographic coordinates.
func (m Meta) LonLatToPixel(lon, lat float64) (int, int, error) {
	if !m.isWGS84() {
		return 0, 0, fmt.Errorf("%w: grid is not in EPSG:%d", ErrInvalidImage, EPSGWGS84)
	}
	if m.Transform[1] == 0 || m.Transform[5] == 0 {
		return 0, 0, fmt.Errorf("%w: degenerate geotransform", ErrInvalidImage)
	}
	x := int(math.Floor((lon - m.Transform[0]) / m.Transform[1]))
	y := int(math.Floor((lat - m.Transform[3]) / m.Transform[5]))
	if x < 0 || x >= m.Width || y < 0 || y >= m.Height {
		return 0, 0, fmt.Errorf("latitude %f and longitude %f are out of bounds for the image", lat, lon)
	}
	return x, y, nil
}

func (m Meta) isWGS84() bool {
	return m.EPSG == EPSGWGS84 || (m.EPSG == 0 && m.Projection == "")
}

func (m Meta) spatialRef() (*godal.SpatialRef, error) {
	if m.Projection != "" {
		sr, err := godal.NewSpatialRefFromWKT(m.Projection)
		if err != nil {
			return nil, fmt.Errorf("spatial reference from WKT: %w", err)
		}
		return sr, nil
	}
	code := m.EPSG
	if code == 0 {
		code = EPSGWGS84
	}
	sr, err := godal.NewSpatialRefFromEPSG(code)
	if err != nil {
		return nil, fmt.Errorf("spatial reference EPSG:%d: %w", code, err)
	}
	return sr, nil
}

// LonLatCenters returns the WGS84 coordinates of the centers of pixels,
// reprojecting when the grid uses another coordinate system.
func (m Meta) LonLatCenters(pixels [][2]int) ([]orb.Point, error) {
	xs := make([]float64, len(pixels))
	ys := make([]float64, len(pixels))
	for i, p := range pixels {
		xs[i], ys[i] = m.PixelCenter(p[0], p[1])
	}

	if len(pixels) > 0 && !m.isWGS84() {
		register()
		src, err := m.spatialRef()
		if err != nil {
			return nil, err
		}
		defer src.Close()
		dst, err := godal.NewSpatialRefFromEPSG(EPSGWGS84)
		if err != nil {
			return nil, fmt.Errorf("spatial reference EPSG:%d: %w", EPSGWGS84, err)
		}
		defer dst.Close()
		tr, err := godal.NewTransform(src, dst)
		if err != nil {
			return nil, fmt.Errorf("failed to create transform to WGS84: %w", err)
		}
		defer tr.Close()
		if err := tr.TransformEx(xs, ys, nil, nil); err != nil {
			return nil, fmt.Errorf("transform error: %w", err)
		}
	}

	points := make([]orb.Point, len(pixels))
	for i := range points {
		points[i] = orb.Point{xs[i], ys[i]}
	}
	return points, nil
}

// epsgCode returns the EPSG code a WKT is registered under, or 0.
func epsgCode(wkt string) int {
	sr, err := godal.NewSpatialRefFromWKT(wkt)
	if err != nil {
		return 0
	}
	defer sr.Close()
	root := "PROJCS"
	if sr.Geographic() {
		root = "GEOGCS"
	}
	if !strings.EqualFold(sr.AuthorityName(root), "EPSG") {
		return 0
	}
	code, err := strconv.Atoi(sr.AuthorityCode(root))
	if err != nil {
		return 0
	}
	return code
}

type Band struct {
	Data []float32
	Tags map[string]string
}

type Image struct {
	Meta
	Bands []Band
}

// Tag returns the metadata value of band i, or "" when absent.
func (img *Image) Tag(i int, key string) string {
	if i < 0 || i >= len(img.Bands) {
		return ""
	}
	return img.Bands[i].Tags[key]
}

// Write stores bands as a float32 GeoTIFF. Every band must hold
// meta.Width*meta.Height values.
func Write(path string, meta Meta, bands []Band) error {
	register()

	if meta.Width <= 0 || meta.Height <= 0 {
		return fmt.Errorf("%w: size %dx%d", ErrInvalidImage, meta.Width, meta.Height)
	}
	if len(bands) == 0 {
		return fmt.Errorf("%w: no bands", ErrInvalidImage)
	}
	for i, b := range bands {
		if len(b.Data) != meta.Width*meta.Height {
			return fmt.Errorf("%w: band %d has %d values, want %d", ErrInvalidImage, i+1, len(b.Data), meta.Width*meta.Height)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	ds, err := godal.Create(godal.GTiff, path, len(bands), godal.Float32, meta.Width, meta.Height,
		godal.CreationOption("COMPRESS=DEFLATE", "TILED=YES"))
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	if err := writeDataset(ds, meta, bands); err != nil {
		ds.Close()
		os.Remove(path)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := ds.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	return nil
}

func writeDataset(ds *godal.Dataset, meta Meta, bands []Band) error {
	if err := ds.SetGeoTransform(meta.Transform); err != nil {
		return fmt.Errorf("set geotransform: %w", err)
	}

	sr, err := meta.spatialRef()
	if err != nil {
		return err
	}
	defer sr.Close()
	if err := ds.SetSpatialRef(sr); err != nil {
		return fmt.Errorf("set spatial reference: %w", err)
	}

	for i, band := range ds.Bands() {
		if err := band.Write(0, 0, bands[i].Data, meta.Width, meta.Height); err != nil {
			return fmt.Errorf("band %d: %w", i+1, err)
		}
		for key, value := range bands[i].Tags {
			if err := band.SetMetadata(key, value); err != nil {
				return fmt.Errorf("band %d tag %s: %w", i+1, key, err)
			}
		}
	}
	return nil
}

// Read loads every band of the raster at path as float32.
func Read(path string, tagKeys ...string) (*Image, error) {
	register()

	ds, err := godal.Open(path, godal.ErrLogger(func(ec godal.ErrorCategory, code int, msg string) error {
		if ec == godal.CE_Warning {
			return nil
		}
		return errors.New(msg)
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer ds.Close()

	structure := ds.Structure()
	img := &Image{
		Meta: Meta{
			Width:      structure.SizeX,
			Height:     structure.SizeY,
			Projection: ds.Projection(),
		},
	}
	if transform, err := ds.GeoTransform(); err == nil {
		img.Transform = transform
	}
	if img.Projection != "" {
		img.EPSG = epsgCode(img.Projection)
	}

	if len(tagKeys) == 0 {
		tagKeys = []string{DateTag}
	}
	for i, band := range ds.Bands() {
		data := make([]float32, img.Width*img.Height)
		if err := band.Read(0, 0, data, img.Width, img.Height); err != nil {
			return nil, fmt.Errorf("failed to read band %d of %s: %w", i+1, path, err)
		}
		tags := map[string]string{}
		for _, key := range tagKeys {
			if v := band.Metadata(key); v != "" {
				tags[key] = v
			}
		}
		img.Bands = append(img.Bands, Band{Data: data, Tags: tags})
	}
	return img, nil
}

// ReadBytes decodes an encoded raster, such as a Process API response, by
// staging it in scratchDir.
func ReadBytes(data []byte, scratchDir string) (*Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidImage)
	}
	if err := os.MkdirAll(scratchDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	f, err := os.CreateTemp(scratchDir, "raster-*.tif")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	name := f.Name()
	defer os.Remove(name)

	if _, err := f.Write(data); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close temp file: %w", err)
	}
	return Read(name)
}
