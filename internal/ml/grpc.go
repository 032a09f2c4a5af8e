package ml

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/forest-guardian/vegindex-cli/internal/tiling"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	predictMethod  = "/segmentation.Segmentation/Predict"
	maxMessageSize = 64 * 1024 * 1024
)

// SegmentationServer is the server side of segmentation.Segmentation.
// Requests and responses carry tensors in the EncodeTensor format.
type SegmentationServer interface {
	Predict(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
}

func predictHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SegmentationServer).Predict(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: predictMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SegmentationServer).Predict(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

var segmentationServiceDesc = grpc.ServiceDesc{
	ServiceName: "segmentation.Segmentation",
	HandlerType: (*SegmentationServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Predict",
			Handler:    predictHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "segmentation.proto",
}

func RegisterSegmentationServer(s grpc.ServiceRegistrar, srv SegmentationServer) {
	s.RegisterService(&segmentationServiceDesc, srv)
}

// modelServer exposes a tiling.Model over gRPC.
type modelServer struct {
	model tiling.Model
}

// NewModelServer puts model in inference mode and wraps it for
// RegisterSegmentationServer.
func NewModelServer(model tiling.Model) SegmentationServer {
	if e, ok := model.(tiling.Evaler); ok {
		e.Eval()
	}
	return &modelServer{model: model}
}

func (s *modelServer) Predict(ctx context.Context, req *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	input, err := DecodeTensor(req.GetValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	output, err := s.model.Predict(ctx, input)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	encoded, err := EncodeTensor(output)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return wrapperspb.Bytes(encoded), nil
}

// recoverUnary turns a panicking handler into an Internal error so one bad
// request cannot stop the server.
func recoverUnary(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("method", info.FullMethod).Errorf("handler panic: %v", r)
			err = status.Errorf(codes.Internal, "internal error: %v", r)
		}
	}()
	return handler(ctx, req)
}

// Serve runs the segmentation service on lis until ctx is done.
func Serve(ctx context.Context, lis net.Listener, model tiling.Model) error {
	s := grpc.NewServer(
		grpc.MaxRecvMsgSize(maxMessageSize),
		grpc.MaxSendMsgSize(maxMessageSize),
		grpc.ChainUnaryInterceptor(recoverUnary),
	)
	RegisterSegmentationServer(s, NewModelServer(model))

	go func() {
		<-ctx.Done()
		s.GracefulStop()
	}()

	logrus.WithField("address", lis.Addr().String()).Info("segmentation service listening")
	if err := s.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

// RemoteModel is a tiling.Model backed by a segmentation service.
type RemoteModel struct {
	conn *grpc.ClientConn
}

func NewRemoteModel(address string, opts ...grpc.DialOption) (*RemoteModel, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(maxMessageSize),
			grpc.MaxCallSendMsgSize(maxMessageSize),
		),
	}, opts...)

	conn, err := grpc.NewClient(address, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to gRPC server: %w", err)
	}
	return &RemoteModel{conn: conn}, nil
}

func (m *RemoteModel) Predict(ctx context.Context, input *tiling.Tensor) (*tiling.Tensor, error) {
	encoded, err := EncodeTensor(input)
	if err != nil {
		return nil, err
	}
	out := new(wrapperspb.BytesValue)
	if err := m.conn.Invoke(ctx, predictMethod, wrapperspb.Bytes(encoded), out); err != nil {
		return nil, fmt.Errorf("error calling Predict: %w", err)
	}
	return DecodeTensor(out.GetValue())
}

func (m *RemoteModel) Close() error {
	return m.conn.Close()
}
