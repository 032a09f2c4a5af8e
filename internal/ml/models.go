package ml

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/forest-guardian/vegindex-cli/internal/properties"
	"github.com/forest-guardian/vegindex-cli/internal/tiling"
)

var ErrNotInEvalMode = errors.New("model is not in inference mode")

// ThresholdModel labels a pixel as vegetation when the sample of Channel is
// at or above Threshold. It predicts two channels, background and
// vegetation, in the order of the configured labels.
type ThresholdModel struct {
	Channel   int
	Threshold float32
	eval      atomic.Bool
}

func NewThresholdModel(channel int, threshold float32) *ThresholdModel {
	return &ThresholdModel{Channel: channel, Threshold: threshold}
}

func (m *ThresholdModel) Eval() {
	m.eval.Store(true)
}

func (m *ThresholdModel) Predict(ctx context.Context, input *tiling.Tensor) (*tiling.Tensor, error) {
	if !m.eval.Load() {
		return nil, ErrNotInEvalMode
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(input.Shape) != 4 || input.Shape[0] != 1 {
		return nil, fmt.Errorf("expected a (1, C, H, W) tensor, got %v", input.Shape)
	}
	if n, ok := sampleCount(input.Shape, len(input.Data)); !ok || n != len(input.Data) {
		return nil, fmt.Errorf("shape %v does not match %d samples", input.Shape, len(input.Data))
	}
	channels, height, width := input.Shape[1], input.Shape[2], input.Shape[3]
	if m.Channel < 0 || m.Channel >= channels {
		return nil, fmt.Errorf("channel %d out of range for %d input channels", m.Channel, channels)
	}

	plane := height * width
	band := input.Data[m.Channel*plane : (m.Channel+1)*plane]
	out := make([]float32, 2*plane)
	for i, v := range band {
		if v >= m.Threshold {
			out[plane+i] = 1
		} else {
			out[i] = 1
		}
	}
	return &tiling.Tensor{Shape: []int{1, 2, height, width}, Data: out}, nil
}

// IdentityModel returns its input unchanged.
type IdentityModel struct{}

func (IdentityModel) Predict(_ context.Context, input *tiling.Tensor) (*tiling.Tensor, error) {
	return &tiling.Tensor{
		Shape: append([]int(nil), input.Shape...),
		Data:  append([]float32(nil), input.Data...),
	}, nil
}

// ServedModel returns the model the serve command exposes by name:
// "threshold" or "identity", the latter echoing its input for diagnostics.
func ServedModel(name string, channel int, threshold float32) (tiling.Model, error) {
	switch name {
	case "", "threshold":
		return NewThresholdModel(channel, threshold), nil
	case "identity":
		return IdentityModel{}, nil
	}
	return nil, fmt.Errorf("unknown model %q, expected threshold or identity", name)
}

// DefaultVegetationThreshold separates vegetation on an NDVI band.
const DefaultVegetationThreshold = 0.3

// Load returns a client for the configured model service, or a local
// ThresholdModel over the first band when no address is set. The returned
// function releases the model.
func Load(cfg *properties.Config) (tiling.Model, func() error, error) {
	if cfg.Inference.ModelAddress == "" {
		return NewThresholdModel(0, DefaultVegetationThreshold), func() error { return nil }, nil
	}
	remote, err := NewRemoteModel(cfg.Inference.ModelAddress)
	if err != nil {
		return nil, nil, err
	}
	return remote, remote.Close, nil
}
