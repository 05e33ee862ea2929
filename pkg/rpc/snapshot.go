package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/sensorsight/sensorsight/pkg/types"
)

const (
	serviceName        = "sensorsight.v1.SnapshotService"
	sendSnapshotMethod = "/" + serviceName + "/SendSnapshot"
)

// SnapshotServiceServer is implemented by the server-side receiver.
type SnapshotServiceServer interface {
	SendSnapshot(context.Context, *types.SensorSnapshot) (*types.SendResponse, error)
}

// UnimplementedSnapshotServiceServer can be embedded to satisfy
// SnapshotServiceServer with methods that return codes.Unimplemented.
type UnimplementedSnapshotServiceServer struct{}

func (UnimplementedSnapshotServiceServer) SendSnapshot(context.Context, *types.SensorSnapshot) (*types.SendResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method SendSnapshot not implemented")
}

// RegisterSnapshotServiceServer registers srv on s.
func RegisterSnapshotServiceServer(s grpc.ServiceRegistrar, srv SnapshotServiceServer) {
	s.RegisterService(&snapshotServiceDesc, srv)
}

var snapshotServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*SnapshotServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SendSnapshot", Handler: sendSnapshotHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "sensorsight/v1/snapshot",
}

func sendSnapshotHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(types.SensorSnapshot)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SnapshotServiceServer).SendSnapshot(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: sendSnapshotMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SnapshotServiceServer).SendSnapshot(ctx, req.(*types.SensorSnapshot))
	}
	return interceptor(ctx, in, info, handler)
}

// SnapshotServiceClient is the agent-side stub.
type SnapshotServiceClient interface {
	SendSnapshot(ctx context.Context, in *types.SensorSnapshot, opts ...grpc.CallOption) (*types.SendResponse, error)
}

type snapshotServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewSnapshotServiceClient returns a client bound to cc.
func NewSnapshotServiceClient(cc grpc.ClientConnInterface) SnapshotServiceClient {
	return &snapshotServiceClient{cc: cc}
}

func (c *snapshotServiceClient) SendSnapshot(ctx context.Context, in *types.SensorSnapshot, opts ...grpc.CallOption) (*types.SendResponse, error) {
	out := new(types.SendResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, sendSnapshotMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
