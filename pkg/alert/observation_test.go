package alert

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liyu1981.xyz/proximity-tracker/pkg/catalog"
	"liyu1981.xyz/proximity-tracker/pkg/common"
	"liyu1981.xyz/proximity-tracker/pkg/models"
)

func (f *fixture) reload(t *testing.T, id string) models.TrackedDevice {
	t.Helper()
	var dev models.TrackedDevice
	require.NoError(t, f.db.Conn.First(&dev, "id = ?", id).Error)
	return dev
}

func TestObservationNotifiesWhenStillAround(t *testing.T) {
	common.SetTestLoggerNop()
	f := newFixture(t)
	ctx := context.Background()
	dev := f.device(t, catalog.TypeTile)
	f.detect(t, dev.ID, 0, 0, catalog.StatusOffline)

	started, err := f.h.StartObserving(ctx, dev.ID)
	require.NoError(t, err)
	assert.True(t, started.Equal(t0))
	require.NotNil(t, f.reload(t, dev.ID).ObservingStart)

	// not due yet: the device is only evaluated for tracking
	f.detect(t, dev.ID, 0, 30*time.Minute, catalog.StatusOffline)
	n, err := f.h.EvaluateDevice(ctx, dev.ID, f.clock.Now())
	require.NoError(t, err)
	assert.Nil(t, n)
	require.NotNil(t, f.reload(t, dev.ID).ObservingStart)

	f.detect(t, dev.ID, 0, 59*time.Minute+30*time.Second, catalog.StatusOffline)
	f.clock.Set(t0.Add(65 * time.Minute))
	n, err = f.h.EvaluateDevice(ctx, dev.ID, f.clock.Now())
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Equal(t, models.ReasonObservation, n.Reason)
	assert.Nil(t, f.reload(t, dev.ID).ObservingStart)
}

func TestObservationClearsQuietlyWhenGone(t *testing.T) {
	common.SetTestLoggerNop()
	f := newFixture(t)
	ctx := context.Background()
	dev := f.device(t, catalog.TypeChipolo)
	f.detect(t, dev.ID, 0, 0, catalog.StatusOffline)

	_, err := f.h.StartObserving(ctx, dev.ID)
	require.NoError(t, err)

	f.clock.Set(t0.Add(2 * time.Hour))
	created, err := f.h.EvaluateAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, created)
	assert.Nil(t, f.reload(t, dev.ID).ObservingStart)
	assert.Empty(t, f.notifications(t, dev.ID))
}

func TestStartObservingRefused(t *testing.T) {
	common.SetTestLoggerNop()
	ctx := context.Background()

	t.Run("ignored", func(t *testing.T) {
		f := newFixture(t)
		dev := f.device(t, catalog.TypeTile, func(d *models.TrackedDevice) { d.Ignore = true })
		_, err := f.h.StartObserving(ctx, dev.ID)
		assert.ErrorIs(t, err, ErrObservationNotAllowed)
	})

	t.Run("background scanning off", func(t *testing.T) {
		f := newFixture(t)
		dev := f.device(t, catalog.TypeTile)
		f.rec.SetBackgroundScanning(false)
		_, err := f.h.StartObserving(ctx, dev.ID)
		assert.ErrorIs(t, err, ErrObservationNotAllowed)
	})

	t.Run("unsupported type", func(t *testing.T) {
		f := newFixture(t)
		dev := f.device(t, catalog.TypeUnknown)
		_, err := f.h.StartObserving(ctx, dev.ID)
		assert.ErrorIs(t, err, ErrObservationNotAllowed)
	})
}

func TestStopObserving(t *testing.T) {
	common.SetTestLoggerNop()
	f := newFixture(t)
	ctx := context.Background()
	dev := f.device(t, catalog.TypeTile)

	_, err := f.h.StartObserving(ctx, dev.ID)
	require.NoError(t, err)
	require.NoError(t, f.h.StopObserving(ctx, dev.ID))
	assert.Nil(t, f.reload(t, dev.ID).ObservingStart)
	require.NoError(t, f.h.StopObserving(ctx, dev.ID))
}
