package tracker

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestRateLimiterStore_Basic(t *testing.T) {
	store := NewRateLimiterStore(1, 2)

	limiter := store.GetLimiter("device1")
	if limiter == nil {
		t.Fatal("expected limiter, got nil")
	}
	if limiter.Limit() != 1 {
		t.Errorf("expected limit 1, got %v", limiter.Limit())
	}
}

func TestRateLimiterStore_CustomLimit(t *testing.T) {
	store := NewRateLimiterStore(1, 2)

	store.SetLimiter("device2", 5, 10)
	limiter := store.GetLimiter("device2")

	if limiter.Limit() != 5 {
		t.Errorf("expected limit 5, got %v", limiter.Limit())
	}
	if limiter.Burst() != 10 {
		t.Errorf("expected burst 10, got %v", limiter.Burst())
	}
}

func TestRateLimiterStore_Concurrency(t *testing.T) {
	store := NewRateLimiterStore(10, 5)
	deviceID := uuid.NewString()

	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.Allow(deviceID)
		}()
	}
	wg.Wait()

	if store.Len() != 1 {
		t.Errorf("expected one limiter, got %d", store.Len())
	}
}

func TestRateLimiterStore_AllowEnforces(t *testing.T) {
	store := NewRateLimiterStore(2, 2)
	deviceID := uuid.NewString()

	if !store.Allow(deviceID) || !store.Allow(deviceID) {
		t.Fatal("expected first two calls to be allowed")
	}
	if store.Allow(deviceID) {
		t.Error("expected third call to be rate limited")
	}

	time.Sleep(600 * time.Millisecond)
	if !store.Allow(deviceID) {
		t.Error("expected one token to be available after refill")
	}

	// a different device has its own bucket
	if !store.Allow(uuid.NewString()) {
		t.Error("expected a fresh device to be allowed")
	}
}

func TestRateLimiterStore_Forget(t *testing.T) {
	store := NewRateLimiterStore(1, 1)
	store.Allow("gone")
	if store.Allow("gone") {
		t.Fatal("expected limiter to be exhausted")
	}
	store.Forget("gone")
	if !store.Allow("gone") {
		t.Error("expected a fresh limiter after Forget")
	}
}
