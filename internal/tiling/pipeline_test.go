package tiling

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingModel struct {
	mu      sync.Mutex
	inputs  []*Tensor
	evalled bool
	predict func(in *Tensor) (*Tensor, error)
}

func (m *recordingModel) Eval() { m.evalled = true }

func (m *recordingModel) Predict(_ context.Context, in *Tensor) (*Tensor, error) {
	m.mu.Lock()
	copied := make([]float32, len(in.Data))
	copy(copied, in.Data)
	m.inputs = append(m.inputs, &Tensor{Shape: append([]int(nil), in.Shape...), Data: copied})
	m.mu.Unlock()
	if m.predict != nil {
		return m.predict(in)
	}
	return &Tensor{Shape: in.Shape, Data: copied}, nil
}

func constantModel(channels int, value float32) ModelFunc {
	return func(_ context.Context, in *Tensor) (*Tensor, error) {
		size := in.Shape[2]
		data := make([]float32, channels*size*size)
		for i := range data {
			data[i] = value
		}
		return &Tensor{Shape: []int{1, channels, size, size}, Data: data}, nil
	}
}

func TestSegmentLargeImageIdentity600(t *testing.T) {
	img := sequentialRaster(3, 600, 600)
	model := &recordingModel{}

	padded, padH, padW, err := PadToMultiple(img, 512)
	require.NoError(t, err)
	assert.Equal(t, 424, padH)
	assert.Equal(t, 424, padW)
	assert.Equal(t, []int{3, 1024, 1024}, padded.Shape())

	patches, err := ExtractPatches(padded, 512)
	require.NoError(t, err)
	var coords [][2]int
	for _, p := range patches {
		coords = append(coords, [2]int{p.Row, p.Col})
	}
	assert.Equal(t, [][2]int{{0, 0}, {0, 512}, {512, 0}, {512, 512}}, coords)

	out, err := SegmentLargeImage(context.Background(), img, model, WithPatchSize(512))
	require.NoError(t, err)
	assert.True(t, model.evalled)
	require.Len(t, model.inputs, 4)
	for _, in := range model.inputs {
		assert.Equal(t, []int{1, 3, 512, 512}, in.Shape)
	}
	assert.Equal(t, []int{3, 600, 600}, out.Shape())
	assert.True(t, out.Equal(img))
}

func TestSegmentLargeImageStitchesPaddedInput(t *testing.T) {
	img := sequentialRaster(3, 600, 600)
	padded, _, _, err := PadToMultiple(img, 512)
	require.NoError(t, err)
	patches, err := ExtractPatches(padded, 512)
	require.NoError(t, err)

	var preds []Patch
	for _, p := range patches {
		pred, err := predictPatch(context.Background(), &recordingModel{}, p)
		require.NoError(t, err)
		preds = append(preds, pred)
	}
	stitched, err := Stitch(preds, 3, 1024, 1024, 512)
	require.NoError(t, err)
	assert.True(t, stitched.Equal(padded))
}

func TestSegmentLargeImageSinglePatch(t *testing.T) {
	img := sequentialRaster(3, 512, 512)
	model := &recordingModel{predict: func(in *Tensor) (*Tensor, error) {
		return constantModel(2, 7)(context.Background(), in)
	}}

	out, err := SegmentLargeImage(context.Background(), img, model)
	require.NoError(t, err)
	require.Len(t, model.inputs, 1)
	assert.Equal(t, img.Data, model.inputs[0].Data)
	assert.Equal(t, []int{2, 512, 512}, out.Shape())
	for _, v := range out.Data {
		require.Equal(t, float32(7), v)
	}
}

func TestSegmentLargeImageOutputChannelsDifferFromInput(t *testing.T) {
	img := sequentialRaster(4, 10, 7)
	out, err := SegmentLargeImage(context.Background(), img, constantModel(1, 0.25), WithPatchSize(4))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 10, 7}, out.Shape())
}

func TestSegmentLargeImageRejectsInconsistentChannels(t *testing.T) {
	var calls int32
	model := ModelFunc(func(ctx context.Context, in *Tensor) (*Tensor, error) {
		if atomic.AddInt32(&calls, 1) == 3 {
			return constantModel(3, 1)(ctx, in)
		}
		return constantModel(2, 1)(ctx, in)
	})

	_, err := SegmentLargeImage(context.Background(), sequentialRaster(1, 8, 8), model, WithPatchSize(4))
	require.ErrorIs(t, err, ErrInconsistentOutput)

	atomic.StoreInt32(&calls, 0)
	_, err = SegmentLargeImage(context.Background(), sequentialRaster(1, 8, 8), model, WithPatchSize(4), WithWorkers(3))
	require.ErrorIs(t, err, ErrInconsistentOutput)
}

func TestSegmentLargeImageRejectsWrongSpatialSize(t *testing.T) {
	model := ModelFunc(func(_ context.Context, in *Tensor) (*Tensor, error) {
		return &Tensor{Shape: []int{1, 1, 2, 2}, Data: make([]float32, 4)}, nil
	})
	_, err := SegmentLargeImage(context.Background(), sequentialRaster(1, 4, 4), model, WithPatchSize(4))
	require.ErrorIs(t, err, ErrInconsistentOutput)
}

func TestSegmentLargeImageRejectsUnbatchedOutput(t *testing.T) {
	model := ModelFunc(func(_ context.Context, in *Tensor) (*Tensor, error) {
		return &Tensor{Shape: in.Shape[1:], Data: in.Data}, nil
	})
	_, err := SegmentLargeImage(context.Background(), sequentialRaster(1, 4, 4), model, WithPatchSize(4))
	require.ErrorIs(t, err, ErrInconsistentOutput)
}

func TestSegmentLargeImagePropagatesModelFailure(t *testing.T) {
	boom := errors.New("out of memory")
	var calls int32
	model := ModelFunc(func(ctx context.Context, in *Tensor) (*Tensor, error) {
		if atomic.AddInt32(&calls, 1) == 2 {
			return nil, boom
		}
		return constantModel(1, 0)(ctx, in)
	})

	_, err := SegmentLargeImage(context.Background(), sequentialRaster(1, 8, 8), model, WithPatchSize(4))
	require.ErrorIs(t, err, boom)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestSegmentLargeImageRejectsInvalidRaster(t *testing.T) {
	model := &recordingModel{}
	_, err := SegmentLargeImage(context.Background(), &Raster{Channels: 1, Height: 2, Width: 2, Data: make([]float32, 3)}, model)
	require.ErrorIs(t, err, ErrInvalidShape)
	assert.Empty(t, model.inputs)
}

func TestSegmentLargeImageConcurrentMatchesSequential(t *testing.T) {
	img := sequentialRaster(2, 37, 50)
	double := ModelFunc(func(_ context.Context, in *Tensor) (*Tensor, error) {
		out := make([]float32, len(in.Data))
		for i, v := range in.Data {
			out[i] = v * 2
		}
		return &Tensor{Shape: in.Shape, Data: out}, nil
	})

	seq, err := SegmentLargeImage(context.Background(), img, double, WithPatchSize(8))
	require.NoError(t, err)
	par, err := SegmentLargeImage(context.Background(), img, double, WithPatchSize(8), WithWorkers(4))
	require.NoError(t, err)
	assert.True(t, seq.Equal(par))
	assert.Equal(t, img.At(1, 36, 49)*2, par.At(1, 36, 49))
}

func TestSegmentLargeImageStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := SegmentLargeImage(ctx, sequentialRaster(1, 8, 8), &recordingModel{}, WithPatchSize(4))
	require.ErrorIs(t, err, context.Canceled)
}
