// Package location supplies the host's own position for detections. The
// tracker never locates an accessory itself; every detection carries the
// host fix current at the time of the sighting, if there is one.
package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"liyu1981.xyz/proximity-tracker/pkg/clock"
	"liyu1981.xyz/proximity-tracker/pkg/common"
	"liyu1981.xyz/proximity-tracker/pkg/models"
)

const Topic = "host/location"

var ErrInvalidFix = errors.New("invalid location fix")

type Provider interface {
	Current(ctx context.Context) (models.Fix, bool)
}

// Latest holds the most recent fix and serves it while it is younger than
// maxAge.
type Latest struct {
	clock  clock.Clock
	maxAge time.Duration

	mu  sync.RWMutex
	fix *models.Fix
}

func NewLatest(c clock.Clock, maxAge time.Duration) *Latest {
	return &Latest{clock: c, maxAge: maxAge}
}

func ValidateFix(f models.Fix) error {
	switch {
	case math.IsNaN(f.Latitude) || f.Latitude < -90 || f.Latitude > 90:
		return fmt.Errorf("%w: latitude %v", ErrInvalidFix, f.Latitude)
	case math.IsNaN(f.Longitude) || f.Longitude < -180 || f.Longitude > 180:
		return fmt.Errorf("%w: longitude %v", ErrInvalidFix, f.Longitude)
	case math.IsNaN(f.Accuracy) || f.Accuracy < 0:
		return fmt.Errorf("%w: accuracy %v", ErrInvalidFix, f.Accuracy)
	}
	return nil
}

// Update stores f. A fix without a time is stamped now; a fix older than the
// one held is ignored.
func (l *Latest) Update(f models.Fix) error {
	if err := ValidateFix(f); err != nil {
		return err
	}
	if f.Time.IsZero() {
		f.Time = l.clock.Now()
	}
	f.Time = f.Time.UTC()

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fix != nil && f.Time.Before(l.fix.Time) {
		return nil
	}
	l.fix = &f
	return nil
}

func (l *Latest) Current(_ context.Context) (models.Fix, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.fix == nil {
		return models.Fix{}, false
	}
	if l.maxAge > 0 && l.clock.Now().Sub(l.fix.Time) > l.maxAge {
		return models.Fix{}, false
	}
	return *l.fix, true
}

// MQTTFeed keeps a Latest up to date from fixes published on host/location.
type MQTTFeed struct {
	client mqtt.Client
	latest *Latest
	logger *zap.Logger
}

func NewMQTTFeed(client mqtt.Client, latest *Latest) *MQTTFeed {
	return &MQTTFeed{
		client: client,
		latest: latest,
		logger: common.GetLoggerWith(
			common.LoggerNameTrackerCore,
			zap.String(common.LoggerFieldCategory, common.LoggerCategoryLocation),
		),
	}
}

func (f *MQTTFeed) Start() error {
	token := f.client.Subscribe(Topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		f.handle(msg.Payload())
	})
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", Topic, token.Error())
	}
	return nil
}

func (f *MQTTFeed) Stop() {
	f.client.Unsubscribe(Topic).WaitTimeout(time.Second)
}

func (f *MQTTFeed) handle(payload []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			f.logger.Error("Location handler panic", zap.Any("panic", rec))
		}
	}()

	var fix models.Fix
	if err := json.Unmarshal(payload, &fix); err != nil {
		f.logger.Debug("Dropping location payload", zap.Error(err))
		return
	}
	if err := f.latest.Update(fix); err != nil {
		f.logger.Debug("Dropping location fix", zap.Error(err))
	}
}
