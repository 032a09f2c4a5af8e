package geotiff

import (
	"fmt"

	"github.com/forest-guardian/vegindex-cli/internal/tiling"
)

// Raster stacks the bands into a (bands, height, width) raster. The data is
// copied.
func (img *Image) Raster() (*tiling.Raster, error) {
	if len(img.Bands) == 0 {
		return nil, fmt.Errorf("%w: no bands", ErrInvalidImage)
	}
	r := tiling.NewRaster(len(img.Bands), img.Height, img.Width)
	for c, b := range img.Bands {
		if len(b.Data) != img.Width*img.Height {
			return nil, fmt.Errorf("%w: band %d has %d values, want %d", ErrInvalidImage, c+1, len(b.Data), img.Width*img.Height)
		}
		copy(r.Band(c), b.Data)
	}
	return r, nil
}

// FromRaster turns every channel of r into a band. tags, when given, are
// applied to the band with the same index.
func FromRaster(r *tiling.Raster, tags ...map[string]string) ([]Band, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	bands := make([]Band, r.Channels)
	for c := range bands {
		bands[c].Data = append([]float32(nil), r.Band(c)...)
		if c < len(tags) {
			bands[c].Tags = tags[c]
		}
	}
	return bands, nil
}
