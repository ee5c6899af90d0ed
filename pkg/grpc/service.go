package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// The service speaks protobuf well-known types only, so no generated code is
// needed on either side.
const ServiceName = "proximity.TrackerService"

const (
	MethodGetDevice             = "/" + ServiceName + "/GetDevice"
	MethodListNearby            = "/" + ServiceName + "/ListNearby"
	MethodStartPrecisionFinding = "/" + ServiceName + "/StartPrecisionFinding"
	MethodStopPrecisionFinding  = "/" + ServiceName + "/StopPrecisionFinding"
	MethodSetFalseAlarm         = "/" + ServiceName + "/SetFalseAlarm"
)

type TrackerServiceServer interface {
	// device id -> device summary
	GetDevice(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	// scope ("recent" when empty) -> list of device summaries
	ListNearby(context.Context, *wrapperspb.StringValue) (*structpb.ListValue, error)
	// device id -> fast scan target
	StartPrecisionFinding(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	StopPrecisionFinding(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	// {"id": <notification id>, "false_alarm": <bool>}
	SetFalseAlarm(context.Context, *structpb.Struct) (*emptypb.Empty, error)
}

func RegisterTrackerServiceServer(s grpc.ServiceRegistrar, srv TrackerServiceServer) {
	s.RegisterService(&TrackerServiceDesc, srv)
}

// unaryHandler builds the MethodDesc handler protoc-gen-go-grpc would emit for
// one method.
func unaryHandler[Req any, Resp any](
	method string,
	call func(TrackerServiceServer, context.Context, *Req) (*Resp, error),
) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(TrackerServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(TrackerServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var TrackerServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TrackerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetDevice",
			Handler:    unaryHandler(MethodGetDevice, TrackerServiceServer.GetDevice),
		},
		{
			MethodName: "ListNearby",
			Handler:    unaryHandler(MethodListNearby, TrackerServiceServer.ListNearby),
		},
		{
			MethodName: "StartPrecisionFinding",
			Handler:    unaryHandler(MethodStartPrecisionFinding, TrackerServiceServer.StartPrecisionFinding),
		},
		{
			MethodName: "StopPrecisionFinding",
			Handler:    unaryHandler(MethodStopPrecisionFinding, TrackerServiceServer.StopPrecisionFinding),
		},
		{
			MethodName: "SetFalseAlarm",
			Handler:    unaryHandler(MethodSetFalseAlarm, TrackerServiceServer.SetFalseAlarm),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "proximity/tracker.proto",
}

type TrackerServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewTrackerServiceClient(cc grpc.ClientConnInterface) *TrackerServiceClient {
	return &TrackerServiceClient{cc: cc}
}

func (c *TrackerServiceClient) GetDevice(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodGetDevice, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *TrackerServiceClient) ListNearby(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, MethodListNearby, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *TrackerServiceClient) StartPrecisionFinding(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodStartPrecisionFinding, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *TrackerServiceClient) StopPrecisionFinding(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, MethodStopPrecisionFinding, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *TrackerServiceClient) SetFalseAlarm(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, MethodSetFalseAlarm, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
