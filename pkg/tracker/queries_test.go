package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"liyu1981.xyz/proximity-tracker/pkg/catalog"
	"liyu1981.xyz/proximity-tracker/pkg/common"
	"liyu1981.xyz/proximity-tracker/pkg/models"
	"liyu1981.xyz/proximity-tracker/pkg/radio"
	_ "liyu1981.xyz/proximity-tracker/pkg/testing"
)

func seedDevice(t *testing.T, tr *Tracker, id string, typ catalog.DeviceType, radioID string, lastSeen time.Time) models.TrackedDevice {
	t.Helper()
	dev := models.TrackedDevice{ID: id, DeviceType: typ, FirstSeen: &lastSeen, LastSeen: &lastSeen}
	if radioID != "" {
		dev.CurrentRadioID = &radioID
	}
	require.NoError(t, tr.Db.Conn.Create(&dev).Error)
	return dev
}

func seedEvent(t *testing.T, tr *Tracker, deviceID string, at time.Time, status catalog.ConnectionStatus) {
	t.Helper()
	require.NoError(t, tr.Db.Conn.Create(&models.DetectionEvent{
		Time: at, DeviceID: deviceID, ConnectionStatus: status, RSSI: -60,
	}).Error)
}

func TestListDevicesSplitsRecentAndHistory(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, tr, _, _, _, _ := GetMockTrackerWithMemorySqliteDialector(t, false, false, false)
	defer ctrl.Finish()
	ctx := context.Background()

	seedDevice(t, tr, "tile-now", catalog.TypeTile, "r1", t0.Add(-10*time.Second))
	seedDevice(t, tr, "tag-now", catalog.TypeAirTag, "r2", t0.Add(-5*time.Second))
	seedDevice(t, tr, "tile-old", catalog.TypeTile, "r3", t0.Add(-2*time.Hour))
	seedDevice(t, tr, "headphones", catalog.TypeUnknown, "r4", t0)

	recent, err := tr.ListDevices(ctx, ScopeRecent)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "tag-now", recent[0].Device.ID)
	assert.Equal(t, "tile-now", recent[1].Device.ID)

	history, err := tr.ListDevices(ctx, ScopeHistory)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "tile-old", history[0].Device.ID)
	assert.False(t, history[0].Reachable)
	assert.Zero(t, history[0].SignalBars)

	_, err = tr.ListDevices(ctx, Scope("everything"))
	assert.Error(t, err)
}

func TestSummaryUsesSmoothedRSSIAndLatestStatus(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, tr, _, _, _, _ := GetMockTrackerWithMemorySqliteDialector(t, false, false, false)
	defer ctrl.Finish()

	seedDevice(t, tr, "tag", catalog.TypeAirTag, "r1", t0.Add(-10*time.Second))
	seedEvent(t, tr, "tag", t0.Add(-time.Minute), catalog.StatusOwnerConnected)
	seedEvent(t, tr, "tag", t0.Add(-10*time.Second), catalog.StatusOffline)

	// AirTag best RSSI is -30, so -65 sits halfway to the worst
	tr.Scanner.Records().Update(radio.Sighting{
		EphemeralID:   "r1",
		Advertisement: catalog.Advertisement{Address: "r1", RSSI: -65},
		Time:          t0.Add(-10 * time.Second),
	})

	s, err := tr.GetDevice(context.Background(), "tag")
	require.NoError(t, err)

	assert.Equal(t, "AirTag", s.Name)
	assert.Equal(t, int64(2), s.SeenCount)
	assert.Equal(t, catalog.StatusOffline, s.LatestStatus)
	assert.Equal(t, 10*time.Second, s.LastSeenAgo)
	assert.True(t, s.Reachable)
	assert.Equal(t, -65, s.RSSI)
	assert.InDelta(t, 0.5, s.Proximity, 1e-9)
	assert.Equal(t, 3, s.SignalBars)
	assert.False(t, s.Safe)
	assert.False(t, s.Precision)
	assert.True(t, s.StillSearching)
}

func TestSummaryFallsBackToStoredRSSI(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, tr, _, _, _, _ := GetMockTrackerWithMemorySqliteDialector(t, false, false, false)
	defer ctrl.Finish()

	dev := seedDevice(t, tr, "tile", catalog.TypeTile, "r1", t0.Add(-5*time.Second))
	require.NoError(t, dev.SetExtras(models.DeviceExtras{LastRSSI: -35}))
	require.NoError(t, tr.Db.Conn.Model(&dev).Update("additional_data", dev.AdditionalData).Error)

	s, err := tr.GetDevice(context.Background(), "tile")
	require.NoError(t, err)
	assert.Equal(t, -35, s.RSSI)
	assert.InDelta(t, 1.0, s.Proximity, 1e-9)
	assert.Equal(t, 4, s.SignalBars)
	assert.Equal(t, catalog.StatusUnknown, s.LatestStatus)
}

func TestGetDeviceMissing(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, tr, _, _, _, _ := GetMockTrackerWithMemorySqliteDialector(t, false, false, false)
	defer ctrl.Finish()

	_, err := tr.GetDevice(context.Background(), "nope")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	_, err = tr.Locations(context.Background(), "nope", time.Time{})
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	_, err = tr.Notifications(context.Background(), "nope")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestPrecisionTarget(t *testing.T) {
	tile := "tile-addr"
	tag := "tag-addr"

	tests := []struct {
		name    string
		dev     models.TrackedDevice
		want    radio.Target
		wantErr error
	}{
		{
			name: "service signature",
			dev:  models.TrackedDevice{ID: "a", DeviceType: catalog.TypeTile, CurrentRadioID: &tile},
			want: radio.Target{ServiceUUID: "FEED"},
		},
		{
			name: "manufacturer signature falls back to the address",
			dev:  models.TrackedDevice{ID: "b", DeviceType: catalog.TypeAirTag, CurrentRadioID: &tag},
			want: radio.Target{IDs: []string{tag}},
		},
		{
			name:    "no address",
			dev:     models.TrackedDevice{ID: "c", DeviceType: catalog.TypeAirTag},
			wantErr: ErrNotSupported,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PrecisionTarget(tt.dev)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPrecisionFindingShortensReachability(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, tr, _, _, _, _ := GetMockTrackerWithMemorySqliteDialector(t, false, false, false)
	defer ctrl.Finish()
	ctx := context.Background()

	seedDevice(t, tr, "tag", catalog.TypeAirTag, "r1", t0.Add(-10*time.Second))

	target, err := tr.StartPrecisionFinding(ctx, "tag")
	require.NoError(t, err)
	assert.Equal(t, []string{"r1"}, target.IDs)

	s, err := tr.GetDevice(ctx, "tag")
	require.NoError(t, err)
	assert.True(t, s.Precision)
	// 10s old is fine for background but past the precision timeout
	assert.False(t, s.Reachable)
	assert.Zero(t, s.Proximity)

	tr.StopPrecisionFinding()
	assert.Nil(t, tr.Hardware().FastScan)

	s, err = tr.GetDevice(ctx, "tag")
	require.NoError(t, err)
	assert.False(t, s.Precision)
	assert.True(t, s.Reachable)
}

func TestSetIgnoreAndOwned(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, tr, _, _, _, _ := GetMockTrackerWithMemorySqliteDialector(t, false, false, false)
	defer ctrl.Finish()
	ctx := context.Background()

	seedDevice(t, tr, "tile", catalog.TypeTile, "r1", t0)
	seedDevice(t, tr, "thing", catalog.TypeUnknown, "r2", t0)

	require.NoError(t, tr.SetIgnore(ctx, "tile", true))
	require.NoError(t, tr.SetOwned(ctx, "tile", true))

	s, err := tr.GetDevice(ctx, "tile")
	require.NoError(t, err)
	assert.True(t, s.Device.Ignore)
	assert.True(t, s.Device.Owned)
	assert.True(t, s.Safe)
	assert.Equal(t, int64(2), s.Device.Version)

	assert.ErrorIs(t, tr.SetIgnore(ctx, "thing", true), ErrNotSupported)
	assert.ErrorIs(t, tr.SetIgnore(ctx, "missing", true), gorm.ErrRecordNotFound)
}

func TestSetTypeIgnoredUpserts(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, tr, _, _, _, _ := GetMockTrackerWithMemorySqliteDialector(t, false, false, false)
	defer ctrl.Finish()
	ctx := context.Background()

	require.NoError(t, tr.SetTypeIgnored(ctx, catalog.TypeTile, true))
	require.NoError(t, tr.SetTypeIgnored(ctx, catalog.TypeTile, false))
	require.NoError(t, tr.SetTypeIgnored(ctx, catalog.TypeChipolo, true))

	settings, err := tr.DeviceTypeSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.DeviceTypeSetting{
		{DeviceType: catalog.TypeChipolo, Ignore: true},
		{DeviceType: catalog.TypeTile, Ignore: false},
	}, settings)

	assert.ErrorIs(t, tr.SetTypeIgnored(ctx, catalog.TypeUnknown, true), ErrNotSupported)
}

func TestRemoveDeviceForgetsCaches(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, tr, _, _, _, _ := GetMockTrackerWithMemorySqliteDialector(t, false, false, false)
	defer ctrl.Finish()
	ctx := context.Background()

	seedDevice(t, tr, "tile", catalog.TypeTile, "r1", t0)
	seedEvent(t, tr, "tile", t0, catalog.StatusUnknown)
	tr.Scanner.Records().Update(radio.Sighting{EphemeralID: "r1", Advertisement: tileAdv("r1", -50), Time: t0})
	tr.Throttle.Allow("tile")
	require.Equal(t, 1, tr.Throttle.Len())

	require.NoError(t, tr.RemoveDevice(ctx, "tile"))

	_, ok := tr.Scanner.Records().Get("r1")
	assert.False(t, ok)
	assert.Zero(t, tr.Throttle.Len())

	var events int64
	tr.Db.Conn.Model(&models.DetectionEvent{}).Count(&events)
	assert.Zero(t, events)

	assert.ErrorIs(t, tr.RemoveDevice(ctx, "tile"), gorm.ErrRecordNotFound)
}

func TestObserveRoundTrip(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, tr, _, _, _, _ := GetMockTrackerWithMemorySqliteDialector(t, false, false, false)
	defer ctrl.Finish()
	ctx := context.Background()

	seedDevice(t, tr, "tile", catalog.TypeTile, "r1", t0)

	started, err := tr.Observe(ctx, "tile", true)
	require.NoError(t, err)
	assert.True(t, started.Equal(t0))

	var dev models.TrackedDevice
	require.NoError(t, tr.Db.Conn.First(&dev, "id = ?", "tile").Error)
	require.NotNil(t, dev.ObservingStart)

	stopped, err := tr.Observe(ctx, "tile", false)
	require.NoError(t, err)
	assert.True(t, stopped.IsZero())

	var reloaded models.TrackedDevice
	require.NoError(t, tr.Db.Conn.First(&reloaded, "id = ?", "tile").Error)
	assert.Nil(t, reloaded.ObservingStart)

	var raw *time.Time
	require.NoError(t, tr.Db.Conn.Model(&models.TrackedDevice{}).
		Select("observing_start").Where("id = ?", "tile").Row().Scan(&raw))
	assert.Nil(t, raw)
}

func TestSetBackgroundScanningDrivesScannerAndRecorder(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, tr, _, _, _, _ := GetMockTrackerWithMemorySqliteDialector(t, false, false, false)
	defer ctrl.Finish()

	tr.SetBackgroundScanning(true)
	assert.True(t, tr.Hardware().Background)
	assert.True(t, tr.Detection.BackgroundScanning())

	tr.SetBackgroundScanning(false)
	assert.False(t, tr.Hardware().Background)
	assert.False(t, tr.Detection.BackgroundScanning())
}
