package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	z "github.com/Oudwins/zog"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
	"gorm.io/gorm"

	"liyu1981.xyz/proximity-tracker/pkg/common"
	"liyu1981.xyz/proximity-tracker/pkg/tracker"
)

func validateDeviceID(deviceID *string) z.ZogIssueList {
	var deviceIdValidator = z.String().Min(1).Required()
	return deviceIdValidator.Validate(deviceID)
}

func (s *TrackerServer) GetDevice(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	deviceID := req.GetValue()
	if err := validateDeviceID(&deviceID); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "validation error: %v", err)
	}

	summary, err := s.Tracker.GetDevice(ctx, deviceID)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(summary)
}

func (s *TrackerServer) ListNearby(ctx context.Context, req *wrapperspb.StringValue) (*structpb.ListValue, error) {
	scope := req.GetValue()
	if scope == "" {
		scope = string(tracker.ScopeRecent)
	}
	var scopeValidator = z.String().OneOf([]string{string(tracker.ScopeRecent), string(tracker.ScopeHistory)})
	if err := scopeValidator.Validate(&scope); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "validation error: %v", err)
	}

	devices, err := s.Tracker.ListDevices(ctx, tracker.Scope(scope))
	if err != nil {
		return nil, toStatus(err)
	}

	var items []any
	if err := roundTrip(devices, &items); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	list, err := structpb.NewList(items)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return list, nil
}

func (s *TrackerServer) StartPrecisionFinding(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	deviceID := req.GetValue()
	if err := validateDeviceID(&deviceID); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "validation error: %v", err)
	}

	target, err := s.Tracker.StartPrecisionFinding(ctx, deviceID)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(target)
}

func (s *TrackerServer) StopPrecisionFinding(context.Context, *emptypb.Empty) (*emptypb.Empty, error) {
	s.Tracker.StopPrecisionFinding()
	return &emptypb.Empty{}, nil
}

type falseAlarmRequest struct {
	ID         float64 `json:"id"`
	FalseAlarm bool    `json:"false_alarm"`
}

func (s *TrackerServer) SetFalseAlarm(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	var r falseAlarmRequest
	if err := roundTrip(req.AsMap(), &r); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "validation error: %v", err)
	}

	var idValidator = z.Float64().GTE(1).Required()
	if err := idValidator.Validate(&r.ID); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "validation error: %v", err)
	}
	if r.ID != float64(uint(r.ID)) {
		return nil, status.Errorf(codes.InvalidArgument, "validation error: id %v is not an integer", r.ID)
	}

	if err := s.Tracker.SetFalseAlarm(ctx, uint(r.ID), r.FalseAlarm); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, tracker.ErrNotSupported):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	}
	common.GetLoggerWith(common.LoggerNameGrpcServer).Error("Call failed", zap.Error(err))
	return status.Error(codes.Internal, err.Error())
}

func toStruct(v any) (*structpb.Struct, error) {
	var m map[string]any
	if err := roundTrip(v, &m); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// roundTrip converts between Go values and the loose shapes structpb accepts.
func roundTrip(in, out any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return json.Unmarshal(raw, out)
}
