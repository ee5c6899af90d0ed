package alert

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liyu1981.xyz/proximity-tracker/pkg/catalog"
	"liyu1981.xyz/proximity-tracker/pkg/common"
	"liyu1981.xyz/proximity-tracker/pkg/models"
)

type fakeToken struct {
	completed bool
	err       error
}

func (t fakeToken) Wait() bool                     { return t.completed }
func (t fakeToken) WaitTimeout(time.Duration) bool { return t.completed }
func (t fakeToken) Error() error                   { return t.err }
func (t fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	if t.completed {
		close(ch)
	}
	return ch
}

type fakePublisher struct {
	topic   string
	payload []byte
	token   fakeToken
}

func (p *fakePublisher) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	p.topic = topic
	p.payload = payload.([]byte)
	return p.token
}

func TestLogPresenterPublishes(t *testing.T) {
	common.SetTestLoggerNop()
	pub := &fakePublisher{token: fakeToken{completed: true}}
	seen := t0.Add(-time.Hour)

	err := NewLogPresenter(pub).Present(context.Background(),
		models.TrackerNotification{ID: 4, DeviceID: "dev-1", Time: t0, Reason: models.ReasonTracking},
		models.TrackedDevice{ID: "dev-1", DeviceType: catalog.TypeTile, FirstSeen: &seen})
	require.NoError(t, err)

	assert.Equal(t, "alerts/dev-1", pub.topic)
	var msg Message
	require.NoError(t, json.Unmarshal(pub.payload, &msg))
	assert.Equal(t, uint(4), msg.NotificationID)
	assert.Equal(t, "tile", msg.DeviceType)
	assert.True(t, msg.FirstSeen.Equal(seen))
	assert.True(t, msg.LastSeen.IsZero())
}

func TestLogPresenterPublishFailures(t *testing.T) {
	common.SetTestLoggerNop()
	n := models.TrackerNotification{ID: 1, DeviceID: "d", Time: t0, Reason: models.ReasonTracking}

	err := NewLogPresenter(&fakePublisher{token: fakeToken{}}).Present(context.Background(), n, models.TrackedDevice{})
	assert.ErrorContains(t, err, "timed out")

	boom := errors.New("not connected")
	err = NewLogPresenter(&fakePublisher{token: fakeToken{completed: true, err: boom}}).Present(context.Background(), n, models.TrackedDevice{})
	assert.ErrorIs(t, err, boom)
}

func TestLogPresenterWithoutPublisher(t *testing.T) {
	common.SetTestLoggerNop()
	err := NewLogPresenter(nil).Present(context.Background(), models.TrackerNotification{DeviceID: "d"}, models.TrackedDevice{})
	assert.NoError(t, err)
}
