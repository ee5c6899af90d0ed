package location

import (
	"context"
	"math"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liyu1981.xyz/proximity-tracker/pkg/clock"
	"liyu1981.xyz/proximity-tracker/pkg/common"
	"liyu1981.xyz/proximity-tracker/pkg/models"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestLatestServesFreshFix(t *testing.T) {
	c := clock.NewMock(epoch)
	l := NewLatest(c, 5*time.Minute)

	_, ok := l.Current(context.Background())
	assert.False(t, ok)

	require.NoError(t, l.Update(models.Fix{Latitude: 52.52, Longitude: 13.405, Accuracy: 12}))
	fix, ok := l.Current(context.Background())
	require.True(t, ok)
	assert.Equal(t, epoch, fix.Time)
	assert.Equal(t, 52.52, fix.Latitude)

	c.Advance(5*time.Minute + time.Second)
	_, ok = l.Current(context.Background())
	assert.False(t, ok, "stale fix must not be served")
}

func TestLatestIgnoresOlderFix(t *testing.T) {
	c := clock.NewMock(epoch)
	l := NewLatest(c, 0)

	require.NoError(t, l.Update(models.Fix{Latitude: 1, Longitude: 1, Time: epoch}))
	require.NoError(t, l.Update(models.Fix{Latitude: 2, Longitude: 2, Time: epoch.Add(-time.Minute)}))

	fix, ok := l.Current(context.Background())
	require.True(t, ok)
	assert.Equal(t, 1.0, fix.Latitude)
}

func TestValidateFix(t *testing.T) {
	assert.NoError(t, ValidateFix(models.Fix{Latitude: -90, Longitude: 180}))
	for _, f := range []models.Fix{
		{Latitude: 91},
		{Longitude: -181},
		{Accuracy: -1},
		{Latitude: math.NaN()},
	} {
		assert.ErrorIs(t, ValidateFix(f), ErrInvalidFix)
	}
}

func TestMQTTFeedHandle(t *testing.T) {
	common.SetTestLoggerNop()
	c := clock.NewMock(epoch)
	l := NewLatest(c, time.Minute)
	feed := NewMQTTFeed(mqtt.NewClient(mqtt.NewClientOptions()), l)

	feed.handle([]byte(`garbage`))
	feed.handle([]byte(`{"latitude": 200, "longitude": 0}`))
	_, ok := l.Current(context.Background())
	assert.False(t, ok)

	feed.handle([]byte(`{"latitude": 48.85, "longitude": 2.35, "accuracy": 8, "time": "2026-03-01T12:00:00Z"}`))
	fix, ok := l.Current(context.Background())
	require.True(t, ok)
	assert.Equal(t, 48.85, fix.Latitude)
	assert.Equal(t, 8.0, fix.Accuracy)
}
