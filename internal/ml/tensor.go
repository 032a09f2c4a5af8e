package ml

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/forest-guardian/vegindex-cli/internal/tiling"
)

var ErrInvalidTensor = errors.New("invalid tensor encoding")

const maxRank = 8

// EncodeTensor serializes t as little-endian uint32 rank, uint32 dims and
// float32 samples.
func EncodeTensor(t *tiling.Tensor) ([]byte, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: nil tensor", ErrInvalidTensor)
	}
	if len(t.Shape) == 0 || len(t.Shape) > maxRank {
		return nil, fmt.Errorf("%w: rank %d", ErrInvalidTensor, len(t.Shape))
	}
	n := 1
	for _, d := range t.Shape {
		if d <= 0 {
			return nil, fmt.Errorf("%w: shape %v", ErrInvalidTensor, t.Shape)
		}
		n *= d
	}
	if n != len(t.Data) {
		return nil, fmt.Errorf("%w: shape %v needs %d samples, got %d", ErrInvalidTensor, t.Shape, n, len(t.Data))
	}

	buf := make([]byte, 4*(1+len(t.Shape)+len(t.Data)))
	binary.LittleEndian.PutUint32(buf, uint32(len(t.Shape)))
	off := 4
	for _, d := range t.Shape {
		binary.LittleEndian.PutUint32(buf[off:], uint32(d))
		off += 4
	}
	for _, v := range t.Data {
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(v))
		off += 4
	}
	return buf, nil
}

func DecodeTensor(buf []byte) (*tiling.Tensor, error) {
	if len(buf) < 4 {
		return nil, fmt.Errorf("%w: short header", ErrInvalidTensor)
	}
	rank := int(binary.LittleEndian.Uint32(buf))
	if rank == 0 || rank > maxRank || len(buf) < 4*(1+rank) {
		return nil, fmt.Errorf("%w: rank %d", ErrInvalidTensor, rank)
	}

	off := 4 * (1 + rank)
	if (len(buf)-off)%4 != 0 {
		return nil, fmt.Errorf("%w: trailing %d bytes", ErrInvalidTensor, (len(buf)-off)%4)
	}
	shape := make([]int, rank)
	for i := range shape {
		shape[i] = int(binary.LittleEndian.Uint32(buf[4+4*i:]))
	}
	n, ok := sampleCount(shape, (len(buf)-off)/4)
	if !ok || 4*n != len(buf)-off {
		return nil, fmt.Errorf("%w: shape %v does not match %d data bytes", ErrInvalidTensor, shape, len(buf)-off)
	}

	data := make([]float32, n)
	for i := range data {
		data[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[off:]))
		off += 4
	}
	return &tiling.Tensor{Shape: shape, Data: data}, nil
}

// sampleCount returns the product of shape, failing when a dimension is not
// positive or the product would exceed limit.
func sampleCount(shape []int, limit int) (int, bool) {
	n := 1
	for _, d := range shape {
		if d <= 0 || d > limit/n {
			return 0, false
		}
		n *= d
	}
	return n, true
}
