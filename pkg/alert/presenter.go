package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"liyu1981.xyz/proximity-tracker/pkg/common"
	"liyu1981.xyz/proximity-tracker/pkg/models"
)

// Presenter shows a new notification to the user.
type Presenter interface {
	Present(ctx context.Context, n models.TrackerNotification, device models.TrackedDevice) error
}

// Publisher is the slice of mqtt.Client the presenter needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

func Topic(deviceID string) string {
	return "alerts/" + deviceID
}

type Message struct {
	NotificationID uint      `json:"notification_id"`
	DeviceID       string    `json:"device_id"`
	DeviceType     string    `json:"device_type"`
	Reason         string    `json:"reason"`
	Time           time.Time `json:"time"`
	FirstSeen      time.Time `json:"first_seen,omitzero"`
	LastSeen       time.Time `json:"last_seen,omitzero"`
}

// LogPresenter writes each notification to the log and, when it has a
// publisher, to alerts/<device id>.
type LogPresenter struct {
	publisher Publisher
	timeout   time.Duration
	logger    *zap.Logger
}

func NewLogPresenter(p Publisher) *LogPresenter {
	return &LogPresenter{
		publisher: p,
		timeout:   5 * time.Second,
		logger: common.GetLoggerWith(
			common.LoggerNameTrackerCore,
			zap.String(common.LoggerFieldCategory, common.LoggerCategoryAlert),
		),
	}
}

func (p *LogPresenter) Present(_ context.Context, n models.TrackerNotification, device models.TrackedDevice) error {
	msg := Message{
		NotificationID: n.ID,
		DeviceID:       n.DeviceID,
		DeviceType:     string(device.DeviceType),
		Reason:         n.Reason,
		Time:           n.Time,
	}
	if device.FirstSeen != nil {
		msg.FirstSeen = *device.FirstSeen
	}
	if device.LastSeen != nil {
		msg.LastSeen = *device.LastSeen
	}

	p.logger.Warn("Possible tracker travelling with you", zap.Reflect("notification", msg))

	if p.publisher == nil {
		return nil
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	token := p.publisher.Publish(Topic(n.DeviceID), 1, false, payload)
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("publish %s: timed out", Topic(n.DeviceID))
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", Topic(n.DeviceID), err)
	}
	return nil
}
