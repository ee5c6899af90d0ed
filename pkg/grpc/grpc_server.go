package grpc

import (
	"golang.org/x/time/rate"

	"liyu1981.xyz/proximity-tracker/pkg/tracker"
)

type TrackerServer struct {
	Tracker          *tracker.Tracker
	RateLimiterStore *tracker.RateLimiterStore
}

var _ TrackerServiceServer = (*TrackerServer)(nil)

func (s *TrackerServer) GetLimiter(deviceID string) *rate.Limiter {
	if s.RateLimiterStore == nil {
		return nil
	}
	return s.RateLimiterStore.GetLimiter(deviceID)
}

func (s *TrackerServer) CheckDeviceLimiter(deviceID string) bool {
	limiter := s.GetLimiter(deviceID)
	if limiter == nil {
		return true
	}
	return limiter.Allow()
}
