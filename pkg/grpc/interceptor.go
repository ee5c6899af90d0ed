package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"liyu1981.xyz/proximity-tracker/pkg/common"
)

// LimitedMethod names a method to rate limit and how to find the device id in
// its request.
type LimitedMethod struct {
	FullMethod string
	DeviceID   func(req any) string
}

// DeviceIDFromValue reads the device id of requests that carry it as a bare
// string.
func DeviceIDFromValue(req any) string {
	if v, ok := req.(*wrapperspb.StringValue); ok {
		return v.GetValue()
	}
	return ""
}

// DeviceMethods are the per-device calls limited by default.
var DeviceMethods = []LimitedMethod{
	{FullMethod: MethodGetDevice, DeviceID: DeviceIDFromValue},
	{FullMethod: MethodStartPrecisionFinding, DeviceID: DeviceIDFromValue},
}

func (s *TrackerServer) CreateRateLimitInterceptor(targets []LimitedMethod) grpc.UnaryServerInterceptor {
	targetMethodMap := common.Reducer(targets,
		func(m map[string]func(any) string, t LimitedMethod) map[string]func(any) string {
			m[t.FullMethod] = t.DeviceID
			return m
		},
		map[string]func(any) string{},
	)

	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		if deviceIDOf, ok := targetMethodMap[info.FullMethod]; ok {
			if deviceID := deviceIDOf(req); deviceID != "" && !s.CheckDeviceLimiter(deviceID) {
				return nil, status.Errorf(codes.ResourceExhausted, "rate limit exceeded")
			}
		}

		return handler(ctx, req)
	}
}
