// Package tiling runs a segmentation model over rasters larger than the
// model input by padding the raster, cutting it into square patches,
// predicting every patch and stitching the predictions back together.
package tiling

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidShape       = errors.New("invalid raster shape")
	ErrInvalidPatchSize   = errors.New("patch size must be a positive integer")
	ErrInconsistentOutput = errors.New("inconsistent model output shape")
)

// Raster is a channel-first (C, H, W) block of float32 samples.
type Raster struct {
	Channels int
	Height   int
	Width    int
	Data     []float32
}

func NewRaster(channels, height, width int) *Raster {
	return &Raster{
		Channels: channels,
		Height:   height,
		Width:    width,
		Data:     make([]float32, channels*height*width),
	}
}

// FromTensor builds a raster from a shape and flat data. The shape must have
// exactly three dimensions.
func FromTensor(shape []int, data []float32) (*Raster, error) {
	if len(shape) != 3 {
		return nil, fmt.Errorf("%w: expected 3 dimensions (C, H, W), got %d", ErrInvalidShape, len(shape))
	}
	r := &Raster{Channels: shape[0], Height: shape[1], Width: shape[2], Data: data}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Raster) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: nil raster", ErrInvalidShape)
	}
	if r.Channels <= 0 || r.Height <= 0 || r.Width <= 0 {
		return fmt.Errorf("%w: dimensions must be positive, got %v", ErrInvalidShape, r.Shape())
	}
	if len(r.Data) != r.Channels*r.Height*r.Width {
		return fmt.Errorf("%w: shape %v needs %d samples, got %d", ErrInvalidShape, r.Shape(), r.Channels*r.Height*r.Width, len(r.Data))
	}
	return nil
}

func (r *Raster) Shape() []int {
	return []int{r.Channels, r.Height, r.Width}
}

func (r *Raster) index(c, y, x int) int {
	return (c*r.Height+y)*r.Width + x
}

func (r *Raster) At(c, y, x int) float32 {
	return r.Data[r.index(c, y, x)]
}

func (r *Raster) Set(c, y, x int, v float32) {
	r.Data[r.index(c, y, x)] = v
}

// Row returns the samples of one row of one channel. The slice aliases the
// raster data.
func (r *Raster) Row(c, y int) []float32 {
	start := r.index(c, y, 0)
	return r.Data[start : start+r.Width]
}

// Band returns channel c as a (H*W) slice aliasing the raster data.
func (r *Raster) Band(c int) []float32 {
	size := r.Height * r.Width
	return r.Data[c*size : (c+1)*size]
}

func (r *Raster) Clone() *Raster {
	data := make([]float32, len(r.Data))
	copy(data, r.Data)
	return &Raster{Channels: r.Channels, Height: r.Height, Width: r.Width, Data: data}
}

// Equal reports whether both rasters have the same shape and samples.
func (r *Raster) Equal(other *Raster) bool {
	if r.Channels != other.Channels || r.Height != other.Height || r.Width != other.Width {
		return false
	}
	for i := range r.Data {
		if r.Data[i] != other.Data[i] {
			return false
		}
	}
	return true
}

// Tensor is a flat float32 tensor with an arbitrary shape, used at the model
// boundary where a batch dimension is present.
type Tensor struct {
	Shape []int
	Data  []float32
}

// Batch returns the raster as a (1, C, H, W) tensor sharing the same data.
func (r *Raster) Batch() *Tensor {
	return &Tensor{Shape: []int{1, r.Channels, r.Height, r.Width}, Data: r.Data}
}

// Unbatch drops the leading batch dimension of a (1, C, H, W) tensor.
func Unbatch(t *Tensor) (*Raster, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: nil tensor", ErrInvalidShape)
	}
	if len(t.Shape) != 4 || t.Shape[0] != 1 {
		return nil, fmt.Errorf("%w: expected (1, C, H, W), got %v", ErrInvalidShape, t.Shape)
	}
	return FromTensor(t.Shape[1:], t.Data)
}
