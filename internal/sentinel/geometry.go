package sentinel

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

var ErrInvalidAOI = errors.New("invalid area of interest")

// AOI is the polygon, in WGS84 longitude/latitude, imagery is requested for.
type AOI struct {
	Geometry orb.Geometry
}

// LoadAOI reads an AOI from a GeoJSON file.
func LoadAOI(path string) (*AOI, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read AOI file: %w", err)
	}
	return ParseAOI(data)
}

// ParseAOI accepts a FeatureCollection (the first feature is used), a
// Feature or a bare Polygon/MultiPolygon geometry.
func ParseAOI(data []byte) (*AOI, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAOI, err)
	}

	var g orb.Geometry
	switch probe.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidAOI, err)
		}
		if len(fc.Features) == 0 {
			return nil, fmt.Errorf("%w: feature collection is empty", ErrInvalidAOI)
		}
		g = fc.Features[0].Geometry
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidAOI, err)
		}
		g = f.Geometry
	default:
		geometry, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidAOI, err)
		}
		g = geometry.Coordinates
	}

	return NewAOI(g)
}

func NewAOI(g orb.Geometry) (*AOI, error) {
	switch g.(type) {
	case orb.Polygon, orb.MultiPolygon:
	default:
		return nil, fmt.Errorf("%w: expected Polygon or MultiPolygon, got %T", ErrInvalidAOI, g)
	}
	b := g.Bound()
	if b.Min.Lon() < -180 || b.Max.Lon() > 180 || b.Min.Lat() < -90 || b.Max.Lat() > 90 {
		return nil, fmt.Errorf("%w: coordinates out of WGS84 range: %v", ErrInvalidAOI, b)
	}
	if b.Max.Lon() <= b.Min.Lon() || b.Max.Lat() <= b.Min.Lat() {
		return nil, fmt.Errorf("%w: geometry has no area", ErrInvalidAOI)
	}
	return &AOI{Geometry: g}, nil
}

func (a *AOI) Bound() orb.Bound {
	return a.Geometry.Bound()
}

// BBox returns [west, south, east, north].
func (a *AOI) BBox() [4]float64 {
	b := a.Bound()
	return [4]float64{b.Min.Lon(), b.Min.Lat(), b.Max.Lon(), b.Max.Lat()}
}

func (a *AOI) GeoJSON() (json.RawMessage, error) {
	data, err := geojson.NewGeometry(a.Geometry).MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to export geometry to GeoJSON: %w", err)
	}
	return data, nil
}

// Centroid returns the latitude and longitude of the AOI centroid.
func (a *AOI) Centroid() (float64, float64, error) {
	centroid, area := planar.CentroidArea(a.Geometry)
	if area <= 0 {
		return 0, 0, errors.New("error getting centroid")
	}
	return centroid.Lat(), centroid.Lon(), nil
}

// ScaledDimensions returns the pixel size of bound at resolution meters per
// pixel. When a side exceeds maxDim both sides are scaled down by the same
// factor so the longest side equals maxDim.
func ScaledDimensions(bound orb.Bound, resolution float64, maxDim int) (int, int) {
	midLat := (bound.Min.Lat() + bound.Max.Lat()) / 2
	midLon := (bound.Min.Lon() + bound.Max.Lon()) / 2

	widthMeters := geo.Distance(orb.Point{bound.Min.Lon(), midLat}, orb.Point{bound.Max.Lon(), midLat})
	heightMeters := geo.Distance(orb.Point{midLon, bound.Min.Lat()}, orb.Point{midLon, bound.Max.Lat()})

	width := math.Round(widthMeters / resolution)
	height := math.Round(heightMeters / resolution)

	if width > float64(maxDim) || height > float64(maxDim) {
		scale := float64(maxDim) / math.Max(width, height)
		width *= scale
		height *= scale
	}

	return max(int(width), 1), max(int(height), 1)
}
