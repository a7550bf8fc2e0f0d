package wire

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "soilwatch.v1.ReadingService"

	// SubmitReadingMethod is the full method path of SubmitReading.
	SubmitReadingMethod = "/" + ServiceName + "/SubmitReading"
)

// ReadingServiceServer is implemented by the server's receiver.
type ReadingServiceServer interface {
	SubmitReading(ctx context.Context, req *SubmitRequest) (*SubmitResponse, error)
}

// RegisterReadingServiceServer registers srv on s.
func RegisterReadingServiceServer(s grpc.ServiceRegistrar, srv ReadingServiceServer) {
	s.RegisterService(&serviceDesc, srv)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ReadingServiceServer)(nil),
	Methods: []grpc.MethodDesc{{
		MethodName: "SubmitReading",
		Handler:    submitReadingHandler,
	}},
	Streams:  []grpc.StreamDesc{},
	Metadata: "soilwatch/v1/reading.proto",
}

func submitReadingHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	call := func(ctx context.Context, req interface{}) (interface{}, error) {
		resp, err := srv.(ReadingServiceServer).SubmitReading(ctx, req.(*SubmitRequest))
		if err != nil {
			return nil, err
		}
		return resp.toProto(), nil
	}
	req := requestFromProto(in)
	if interceptor == nil {
		return call(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: SubmitReadingMethod}
	return interceptor(ctx, req, info, call)
}

// ReadingServiceClient calls ReadingService.
type ReadingServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewReadingServiceClient wraps an open connection.
func NewReadingServiceClient(cc grpc.ClientConnInterface) *ReadingServiceClient {
	return &ReadingServiceClient{cc: cc}
}

// SubmitReading sends one reading. A parameter value that protobuf cannot
// carry fails with codes.InvalidArgument before anything is sent.
func (c *ReadingServiceClient) SubmitReading(ctx context.Context, in *SubmitRequest, opts ...grpc.CallOption) (*SubmitResponse, error) {
	req, err := in.toProto()
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, SubmitReadingMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return responseFromProto(out), nil
}
