package indices

import (
	"errors"
	"fmt"
	"strings"
)

type Index string

const (
	NDVI  Index = "ndvi"
	EVI   Index = "evi"
	SAVI  Index = "savi"
	GNDVI Index = "gndvi"
	NDRE  Index = "ndre"
	ARVI  Index = "arvi"

	TrueColor          Index = "rgb"
	TrueColorOptimized Index = "rgb_optimized"
)

// SoilBrightness is the L factor of SAVI.
const SoilBrightness = 0.5

var ErrUnknownIndex = errors.New("unknown vegetation index")

// VegetationIndices lists the indices offered to users, in menu order.
var VegetationIndices = []Index{NDVI, EVI, SAVI, GNDVI, NDRE, ARVI}

func Parse(name string) (Index, error) {
	idx := Index(strings.ToLower(strings.TrimSpace(name)))
	switch idx {
	case NDVI, EVI, SAVI, GNDVI, NDRE, ARVI, TrueColor, TrueColorOptimized:
		return idx, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownIndex, name)
}

func (i Index) IsComposite() bool {
	return i == TrueColor || i == TrueColorOptimized
}

func (i Index) Label() string {
	return strings.ToUpper(string(i))
}

// Bands holds the Sentinel-2 reflectances of a single pixel.
type Bands struct {
	B02 float64 // blue
	B03 float64 // green
	B04 float64 // red
	B05 float64 // red edge
	B08 float64 // near infrared
}

// RequiredBands returns the Sentinel-2 bands an index is computed from.
func RequiredBands(i Index) ([]string, error) {
	switch i {
	case NDVI, SAVI:
		return []string{"B04", "B08"}, nil
	case EVI, ARVI:
		return []string{"B02", "B04", "B08"}, nil
	case GNDVI:
		return []string{"B03", "B08"}, nil
	case NDRE:
		return []string{"B05", "B08"}, nil
	case TrueColor, TrueColorOptimized:
		return []string{"B02", "B03", "B04"}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownIndex, string(i))
}

// Value computes the index for one pixel. A zero denominator gives NaN or
// ±Inf, as the Process API evalscripts do, so local and remote rasters agree.
func Value(i Index, b Bands) (float64, error) {
	switch i {
	case NDVI:
		return (b.B08 - b.B04) / (b.B08 + b.B04), nil
	case EVI:
		return 2.5 * (b.B08 - b.B04) / (b.B08 + 6.0*b.B04 - 7.5*b.B02 + 1.0), nil
	case SAVI:
		return (b.B08 - b.B04) / (b.B08 + b.B04 + SoilBrightness) * (1.0 + SoilBrightness), nil
	case GNDVI:
		return (b.B08 - b.B03) / (b.B08 + b.B03), nil
	case NDRE:
		return (b.B08 - b.B05) / (b.B08 + b.B05), nil
	case ARVI:
		redCorr := 2.0*b.B04 - b.B02
		return (b.B08 - redCorr) / (b.B08 + redCorr), nil
	}
	return 0, fmt.Errorf("%w: %q is not a vegetation index", ErrUnknownIndex, string(i))
}

// Compute evaluates the index over whole bands keyed by band name ("B04",
// ...). All required bands must be present and have the same length.
func Compute(i Index, bands map[string][]float32) ([]float32, error) {
	required, err := RequiredBands(i)
	if err != nil {
		return nil, err
	}
	if i.IsComposite() {
		return nil, fmt.Errorf("%w: %q is a composite, not a vegetation index", ErrUnknownIndex, string(i))
	}

	size := -1
	for _, name := range required {
		data, ok := bands[name]
		if !ok {
			return nil, fmt.Errorf("missing band %s for %s", name, i.Label())
		}
		if size >= 0 && len(data) != size {
			return nil, fmt.Errorf("band %s has %d samples, expected %d", name, len(data), size)
		}
		size = len(data)
	}

	get := func(name string, k int) float64 {
		if data, ok := bands[name]; ok {
			return float64(data[k])
		}
		return 0
	}

	out := make([]float32, size)
	for k := range out {
		v, err := Value(i, Bands{
			B02: get("B02", k),
			B03: get("B03", k),
			B04: get("B04", k),
			B05: get("B05", k),
			B08: get("B08", k),
		})
		if err != nil {
			return nil, err
		}
		out[k] = float32(v)
	}
	return out, nil
}
