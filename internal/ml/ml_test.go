package ml

import (
	"context"
	"encoding/binary"
	"errors"
	"net"
	"testing"

	"github.com/forest-guardian/vegindex-cli/internal/properties"
	"github.com/forest-guardian/vegindex-cli/internal/tiling"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func TestTensorCodecRoundTrip(t *testing.T) {
	in := &tiling.Tensor{Shape: []int{1, 2, 2, 3}, Data: []float32{
		0, 1, 2, 3, 4, 5,
		-1, 0.5, 1e-3, 7, 8, 9,
	}}
	buf, err := EncodeTensor(in)
	require.NoError(t, err)
	assert.Len(t, buf, 4*(1+4+12))

	out, err := DecodeTensor(buf)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestTensorCodecRejectsMalformedInput(t *testing.T) {
	_, err := EncodeTensor(&tiling.Tensor{Shape: []int{2, 2}, Data: []float32{1}})
	assert.ErrorIs(t, err, ErrInvalidTensor)
	_, err = EncodeTensor(nil)
	assert.ErrorIs(t, err, ErrInvalidTensor)

	_, err = DecodeTensor([]byte{1})
	assert.ErrorIs(t, err, ErrInvalidTensor)

	buf, err := EncodeTensor(&tiling.Tensor{Shape: []int{3}, Data: []float32{1, 2, 3}})
	require.NoError(t, err)
	_, err = DecodeTensor(buf[:len(buf)-4])
	assert.ErrorIs(t, err, ErrInvalidTensor)

	// (1, 2^21, 2^21, 2^22) overflows the sample count to zero
	_, err = DecodeTensor(wrappedShapePayload())
	assert.ErrorIs(t, err, ErrInvalidTensor)

	_, err = DecodeTensor(append(buf, 0))
	assert.ErrorIs(t, err, ErrInvalidTensor)
}

func wrappedShapePayload() []byte {
	buf := make([]byte, 20)
	for i, v := range []uint32{4, 1, 1 << 21, 1 << 21, 1 << 22} {
		binary.LittleEndian.PutUint32(buf[4*i:], v)
	}
	return buf
}

func TestThresholdModel(t *testing.T) {
	m := NewThresholdModel(1, 0.5)
	input := &tiling.Tensor{Shape: []int{1, 2, 1, 3}, Data: []float32{
		9, 9, 9,
		0.1, 0.5, 0.9,
	}}

	_, err := m.Predict(context.Background(), input)
	require.ErrorIs(t, err, ErrNotInEvalMode)

	m.Eval()
	out, err := m.Predict(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 1, 3}, out.Shape)
	assert.Equal(t, []float32{1, 0, 0, 0, 1, 1}, out.Data)

	_, err = NewThresholdModel(5, 0).Predict(context.Background(), input)
	assert.Error(t, err)

	_, err = m.Predict(context.Background(), &tiling.Tensor{Shape: []int{1, 2, 1 << 21, 1 << 21}, Data: []float32{1}})
	assert.ErrorContains(t, err, "does not match")
}

func TestThresholdModelInPipeline(t *testing.T) {
	img := tiling.NewRaster(1, 600, 600)
	for i := range img.Data {
		if i%2 == 0 {
			img.Data[i] = 0.8
		}
	}

	out, err := tiling.SegmentLargeImage(context.Background(), img, NewThresholdModel(0, DefaultVegetationThreshold))
	require.NoError(t, err)
	assert.Equal(t, []int{2, 600, 600}, out.Shape())
	assert.Equal(t, float32(1), out.At(1, 0, 0))
	assert.Equal(t, float32(1), out.At(0, 0, 1))
}

func TestIdentityModelCopies(t *testing.T) {
	in := &tiling.Tensor{Shape: []int{1, 1, 1, 2}, Data: []float32{1, 2}}
	out, err := IdentityModel{}.Predict(context.Background(), in)
	require.NoError(t, err)
	out.Data[0] = 42
	assert.Equal(t, float32(1), in.Data[0])
}

func startBufconnServer(t *testing.T, model tiling.Model) *RemoteModel {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- Serve(ctx, lis, model) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})

	remote, err := NewRemoteModel("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { remote.Close() })
	return remote
}

func TestRemoteModelOverGRPC(t *testing.T) {
	remote := startBufconnServer(t, NewThresholdModel(0, 0.5))

	img := tiling.NewRaster(1, 20, 30)
	for x := 0; x < 15; x++ {
		for y := 0; y < 20; y++ {
			img.Set(0, y, x, 1)
		}
	}

	out, err := tiling.SegmentLargeImage(context.Background(), img, remote, tiling.WithPatchSize(16))
	require.NoError(t, err)
	assert.Equal(t, []int{2, 20, 30}, out.Shape())
	assert.Equal(t, float32(1), out.At(1, 19, 14))
	assert.Equal(t, float32(1), out.At(0, 19, 15))
}

func TestRemoteModelPropagatesServerErrors(t *testing.T) {
	remote := startBufconnServer(t, NewThresholdModel(3, 0.5))

	_, err := remote.Predict(context.Background(), &tiling.Tensor{Shape: []int{1, 1, 2, 2}, Data: make([]float32, 4)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel 3 out of range")
}

func TestServerRejectsMalformedTensor(t *testing.T) {
	remote := startBufconnServer(t, NewThresholdModel(0, 0.5))

	out := new(wrapperspb.BytesValue)
	err := remote.conn.Invoke(context.Background(), predictMethod, wrapperspb.Bytes(wrappedShapePayload()), out)
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = remote.Predict(context.Background(), &tiling.Tensor{Shape: []int{1, 1, 2, 2}, Data: make([]float32, 4)})
	assert.NoError(t, err)
}

type panicModel struct{}

func (panicModel) Predict(context.Context, *tiling.Tensor) (*tiling.Tensor, error) {
	panic("boom")
}

func TestServerRecoversFromModelPanic(t *testing.T) {
	remote := startBufconnServer(t, panicModel{})

	in := &tiling.Tensor{Shape: []int{1, 1, 2, 2}, Data: make([]float32, 4)}
	for range 2 {
		_, err := remote.Predict(context.Background(), in)
		require.Error(t, err)
		assert.Equal(t, codes.Internal, status.Code(errors.Unwrap(err)))
	}
}

func TestServedModel(t *testing.T) {
	m, err := ServedModel("identity", 0, 0)
	require.NoError(t, err)
	remote := startBufconnServer(t, m)

	in := &tiling.Tensor{Shape: []int{1, 1, 1, 2}, Data: []float32{0.25, -3}}
	out, err := remote.Predict(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	m, err = ServedModel("threshold", 0, 0.5)
	require.NoError(t, err)
	assert.IsType(t, &ThresholdModel{}, m)

	_, err = ServedModel("unet", 0, 0)
	assert.ErrorContains(t, err, "unknown model")
}

func TestLoadDefaultsToThresholdModel(t *testing.T) {
	model, closeFn, err := Load(properties.DefaultConfig())
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &ThresholdModel{}, model)

	cfg := properties.DefaultConfig()
	cfg.Inference.ModelAddress = "localhost:50051"
	model, closeFn, err = Load(cfg)
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &RemoteModel{}, model)
}
