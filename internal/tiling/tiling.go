package tiling

import (
	"fmt"
)

const DefaultPatchSize = 512

// Patch is a square slice of a padded raster located at (Row, Col).
type Patch struct {
	Row  int
	Col  int
	Data *Raster
}

// PadToMultiple appends zero rows at the bottom and zero columns at the right
// until both spatial dimensions are a multiple of m. It returns the padded
// raster and the number of rows and columns that were added.
func PadToMultiple(r *Raster, m int) (*Raster, int, int, error) {
	if err := r.Validate(); err != nil {
		return nil, 0, 0, err
	}
	if m <= 0 {
		return nil, 0, 0, fmt.Errorf("%w: got %d", ErrInvalidPatchSize, m)
	}

	padH := roundUp(r.Height, m) - r.Height
	padW := roundUp(r.Width, m) - r.Width
	if padH == 0 && padW == 0 {
		return r.Clone(), 0, 0, nil
	}

	padded := NewRaster(r.Channels, r.Height+padH, r.Width+padW)
	for c := 0; c < r.Channels; c++ {
		for y := 0; y < r.Height; y++ {
			copy(padded.Row(c, y), r.Row(c, y))
		}
	}
	return padded, padH, padW, nil
}

func roundUp(n, m int) int {
	return (n + m - 1) / m * m
}

// ExtractPatches cuts r into non-overlapping size x size patches in row-major
// order. Both spatial dimensions of r must be multiples of size.
func ExtractPatches(r *Raster, size int) ([]Patch, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if size <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidPatchSize, size)
	}
	if r.Height%size != 0 || r.Width%size != 0 {
		return nil, fmt.Errorf("%w: %dx%d is not a multiple of patch size %d", ErrInvalidShape, r.Height, r.Width, size)
	}

	patches := make([]Patch, 0, (r.Height/size)*(r.Width/size))
	for i := 0; i < r.Height; i += size {
		for j := 0; j < r.Width; j += size {
			patch := NewRaster(r.Channels, size, size)
			for c := 0; c < r.Channels; c++ {
				for y := 0; y < size; y++ {
					copy(patch.Row(c, y), r.Row(c, i+y)[j:j+size])
				}
			}
			patches = append(patches, Patch{Row: i, Col: j, Data: patch})
		}
	}
	return patches, nil
}

// Stitch copies every patch into a zero-initialized raster of the given
// shape. Every patch must be (channels, size, size) and lie inside the
// output.
func Stitch(patches []Patch, channels, height, width, size int) (*Raster, error) {
	if channels <= 0 || height <= 0 || width <= 0 {
		return nil, fmt.Errorf("%w: output shape %v", ErrInvalidShape, []int{channels, height, width})
	}
	out := NewRaster(channels, height, width)
	for _, p := range patches {
		if err := checkPatchShape(p.Data, channels, size); err != nil {
			return nil, fmt.Errorf("patch at (%d, %d): %w", p.Row, p.Col, err)
		}
		if p.Row < 0 || p.Col < 0 || p.Row+size > height || p.Col+size > width {
			return nil, fmt.Errorf("%w: patch at (%d, %d) falls outside %dx%d", ErrInvalidShape, p.Row, p.Col, height, width)
		}
		for c := 0; c < channels; c++ {
			for y := 0; y < size; y++ {
				copy(out.Row(c, p.Row+y)[p.Col:p.Col+size], p.Data.Row(c, y))
			}
		}
	}
	return out, nil
}

func checkPatchShape(r *Raster, channels, size int) error {
	if r == nil {
		return fmt.Errorf("%w: missing prediction", ErrInconsistentOutput)
	}
	if r.Channels != channels || r.Height != size || r.Width != size {
		return fmt.Errorf("%w: expected %v, got %v", ErrInconsistentOutput, []int{channels, size, size}, r.Shape())
	}
	return nil
}

// Crop removes padH rows from the bottom and padW columns from the right.
// Zero amounts leave the corresponding dimension untouched.
func Crop(r *Raster, padH, padW int) (*Raster, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if padH < 0 || padW < 0 || padH >= r.Height || padW >= r.Width {
		return nil, fmt.Errorf("%w: cannot crop %d rows and %d columns from %dx%d", ErrInvalidShape, padH, padW, r.Height, r.Width)
	}
	if padH == 0 && padW == 0 {
		return r, nil
	}

	height, width := r.Height-padH, r.Width-padW
	out := NewRaster(r.Channels, height, width)
	for c := 0; c < r.Channels; c++ {
		for y := 0; y < height; y++ {
			copy(out.Row(c, y), r.Row(c, y)[:width])
		}
	}
	return out, nil
}

// PatchCount returns how many patches a height x width raster is cut into.
func PatchCount(height, width, size int) int {
	return ((height + size - 1) / size) * ((width + size - 1) / size)
}
