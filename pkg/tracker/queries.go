package tracker

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"liyu1981.xyz/proximity-tracker/pkg/catalog"
	"liyu1981.xyz/proximity-tracker/pkg/common"
	"liyu1981.xyz/proximity-tracker/pkg/db"
	"liyu1981.xyz/proximity-tracker/pkg/models"
	"liyu1981.xyz/proximity-tracker/pkg/radio"
	"liyu1981.xyz/proximity-tracker/pkg/reachability"
)

var ErrNotSupported = errors.New("not supported for this device type")

type Scope string

const (
	ScopeRecent  Scope = "recent"
	ScopeHistory Scope = "history"
)

// DeviceSummary is a device as the user sees it right now.
type DeviceSummary struct {
	Device         models.TrackedDevice     `json:"device"`
	Name           string                   `json:"name"`
	SeenCount      int64                    `json:"seen_count"`
	LastSeenAgo    time.Duration            `json:"last_seen_ago"`
	Reachable      bool                     `json:"reachable"`
	RSSI           int                      `json:"rssi"`
	Proximity      float64                  `json:"proximity"`
	SignalBars     int                      `json:"signal_bars"`
	LatestStatus   catalog.ConnectionStatus `json:"latest_status"`
	Safe           bool                     `json:"safe"`
	Precision      bool                     `json:"precision"`
	StillSearching bool                     `json:"still_searching"`
}

func (t *Tracker) logger() *zap.Logger {
	return common.GetLoggerWith(
		common.LoggerNameTrackerCore,
		zap.String(common.LoggerFieldCategory, common.LoggerCategoryStorage),
	)
}

// ListDevices lists classified devices. Recent ones were seen within the
// manual scan buffer; history holds the rest. Both are ordered by last seen,
// newest first.
func (t *Tracker) ListDevices(ctx context.Context, scope Scope) ([]DeviceSummary, error) {
	now := t.Clock.Now()
	cutoff := now.Add(-t.ManualScanBuffer)

	q := t.Db.Read(ctx).
		Where("device_type IS NOT NULL AND device_type NOT IN ?", []string{"", string(catalog.TypeUnknown)})
	switch scope {
	case ScopeRecent:
		q = q.Where("last_seen >= ?", cutoff)
	case ScopeHistory:
		q = q.Where("last_seen IS NULL OR last_seen < ?", cutoff)
	default:
		return nil, fmt.Errorf("unknown scope %q", scope)
	}

	var devices []models.TrackedDevice
	if err := q.Order("last_seen desc, id").Find(&devices).Error; err != nil {
		return nil, err
	}

	out := make([]DeviceSummary, 0, len(devices))
	for _, d := range devices {
		s, err := t.summarize(ctx, d, now)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Partition keeps the devices on one side of the safe / possibly tracking
// split.
func Partition(devices []DeviceSummary, safe bool) []DeviceSummary {
	return common.Filter(devices, func(d DeviceSummary) bool { return d.Safe == safe })
}

func (t *Tracker) GetDevice(ctx context.Context, deviceID string) (DeviceSummary, error) {
	var dev models.TrackedDevice
	if err := t.Db.Read(ctx).First(&dev, "id = ?", deviceID).Error; err != nil {
		return DeviceSummary{}, err
	}
	return t.summarize(ctx, dev, t.Clock.Now())
}

func (t *Tracker) summarize(ctx context.Context, dev models.TrackedDevice, now time.Time) (DeviceSummary, error) {
	profile, _ := catalog.Lookup(dev.DeviceType)
	s := DeviceSummary{Device: dev, Name: profile.Name, LatestStatus: catalog.StatusUnknown}

	read := t.Db.Read(ctx)
	if err := read.Model(&models.DetectionEvent{}).Where("device_id = ?", dev.ID).Count(&s.SeenCount).Error; err != nil {
		return DeviceSummary{}, err
	}
	var latest models.DetectionEvent
	res := read.Where("device_id = ?", dev.ID).Order("time desc, id desc").Limit(1).Find(&latest)
	if res.Error != nil {
		return DeviceSummary{}, res.Error
	}
	if res.RowsAffected > 0 {
		s.LatestStatus = latest.ConnectionStatus
	}

	s.RSSI = dev.Extras().LastRSSI
	if rc := t.records(); rc != nil && dev.CurrentRadioID != nil {
		if r, ok := rc.Get(*dev.CurrentRadioID); ok {
			s.RSSI = int(r.SmoothedRSSI)
		}
	}

	if t.Scanner != nil {
		status := t.Scanner.Status()
		s.Precision = status.FastScan != nil && targets(*status.FastScan, profile, dev)
		s.StillSearching = now.Sub(t.Scanner.StartedAt()) < t.ManualScanBuffer
	}
	timeout := t.Timeouts.For(s.Precision)

	if dev.LastSeen != nil {
		s.LastSeenAgo = now.Sub(*dev.LastSeen)
		s.Reachable = reachability.IsReachable(*dev.LastSeen, now, timeout)
		s.Proximity = reachability.Proximity(*dev.LastSeen, now, timeout, s.RSSI, profile.BestRSSI)
	}
	barsRSSI := reachability.WorstRSSI
	if s.Reachable {
		barsRSSI = s.RSSI
	}
	s.SignalBars = reachability.SignalBars(barsRSSI, profile.BestRSSI)
	s.Safe = reachability.IsSafe(&dev, s.LatestStatus)
	return s, nil
}

func targets(target radio.Target, p catalog.Profile, dev models.TrackedDevice) bool {
	if dev.CurrentRadioID != nil && slices.Contains(target.IDs, *dev.CurrentRadioID) {
		return true
	}
	return target.ServiceUUID != "" && p.Signature.ServiceUUID == target.ServiceUUID
}

// PrecisionTarget is the fast scan filter for a device: its type's service
// signature when the type can be scanned for in the background, otherwise its
// current address.
func PrecisionTarget(dev models.TrackedDevice) (radio.Target, error) {
	profile, ok := catalog.Lookup(dev.DeviceType)
	if ok && profile.Capabilities.BackgroundScanning && profile.Signature.ServiceUUID != "" {
		return radio.Target{ServiceUUID: profile.Signature.ServiceUUID}, nil
	}
	if dev.CurrentRadioID == nil {
		return radio.Target{}, fmt.Errorf("%w: %s has no current address", ErrNotSupported, dev.ID)
	}
	return radio.Target{IDs: []string{*dev.CurrentRadioID}}, nil
}

func (t *Tracker) StartPrecisionFinding(ctx context.Context, deviceID string) (radio.Target, error) {
	var dev models.TrackedDevice
	if err := t.Db.Read(ctx).First(&dev, "id = ?", deviceID).Error; err != nil {
		return radio.Target{}, err
	}
	target, err := PrecisionTarget(dev)
	if err != nil {
		return radio.Target{}, err
	}
	t.Scanner.StartFastScan(target)
	return target, nil
}

func (t *Tracker) StopPrecisionFinding() {
	t.Scanner.StopFastScan()
}

func (t *Tracker) SetIgnore(ctx context.Context, deviceID string, ignore bool) error {
	return t.updateDevice(ctx, deviceID, func(dev *models.TrackedDevice) (map[string]any, error) {
		if profile, ok := catalog.Lookup(dev.DeviceType); ignore && (!ok || !profile.Capabilities.Ignore) {
			return nil, fmt.Errorf("%w: ignore %s", ErrNotSupported, dev.DeviceType)
		}
		return map[string]any{"ignore": ignore}, nil
	})
}

func (t *Tracker) SetOwned(ctx context.Context, deviceID string, owned bool) error {
	return t.updateDevice(ctx, deviceID, func(*models.TrackedDevice) (map[string]any, error) {
		return map[string]any{"owned": owned}, nil
	})
}

func (t *Tracker) updateDevice(ctx context.Context, deviceID string, change func(*models.TrackedDevice) (map[string]any, error)) error {
	return t.Writer.Do(ctx, deviceID, func(tx *gorm.DB) error {
		var dev models.TrackedDevice
		if err := tx.First(&dev, "id = ?", deviceID).Error; err != nil {
			return err
		}
		updates, err := change(&dev)
		if err != nil {
			return err
		}
		return db.UpdateVersioned(tx, &models.TrackedDevice{}, dev.ID, dev.Version, updates)
	})
}

// SetTypeIgnored records the user's choice to ignore every device of a type.
func (t *Tracker) SetTypeIgnored(ctx context.Context, typ catalog.DeviceType, ignore bool) error {
	if !catalog.IsTrackable(typ) {
		return fmt.Errorf("%w: %q", ErrNotSupported, typ)
	}
	setting := models.DeviceTypeSetting{DeviceType: typ, Ignore: ignore}
	err := t.Writer.Do(ctx, "type:"+string(typ), func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "device_type"}},
			UpdateAll: true,
		}).Create(&setting).Error
	})
	if err == nil {
		t.logger().Info("Device type setting saved", zap.Reflect("setting", setting))
	}
	return err
}

func (t *Tracker) DeviceTypeSettings(ctx context.Context) ([]models.DeviceTypeSetting, error) {
	var out []models.DeviceTypeSetting
	err := t.Db.Read(ctx).Order("device_type").Find(&out).Error
	return out, err
}

func (t *Tracker) RemoveDevice(ctx context.Context, deviceID string) error {
	var dev models.TrackedDevice
	if err := t.Db.Read(ctx).First(&dev, "id = ?", deviceID).Error; err != nil {
		return err
	}
	if err := t.Detection.RemoveDevice(ctx, deviceID); err != nil {
		return err
	}
	if rc := t.records(); rc != nil && dev.CurrentRadioID != nil {
		rc.Forget(*dev.CurrentRadioID)
	}
	if t.Throttle != nil {
		t.Throttle.Forget(deviceID)
	}
	return nil
}

func (t *Tracker) Locations(ctx context.Context, deviceID string, since time.Time) ([]models.ClusteredLocation, error) {
	if err := t.exists(ctx, deviceID); err != nil {
		return nil, err
	}
	return t.Detection.Locations(ctx, deviceID, since)
}

func (t *Tracker) Notifications(ctx context.Context, deviceID string) ([]models.TrackerNotification, error) {
	if err := t.exists(ctx, deviceID); err != nil {
		return nil, err
	}
	return t.Alert.Notifications(ctx, deviceID)
}

// Observe starts or stops observing a device and returns when observation
// started, or the zero time when stopped.
func (t *Tracker) Observe(ctx context.Context, deviceID string, on bool) (time.Time, error) {
	if !on {
		return time.Time{}, t.Alert.StopObserving(ctx, deviceID)
	}
	return t.Alert.StartObserving(ctx, deviceID)
}

func (t *Tracker) SetFalseAlarm(ctx context.Context, notificationID uint, falseAlarm bool) error {
	return t.Alert.SetFalseAlarm(ctx, notificationID, falseAlarm)
}

func (t *Tracker) SetBackgroundScanning(on bool) {
	t.Detection.SetBackgroundScanning(on)
	if t.Scanner == nil {
		return
	}
	if on {
		t.Scanner.StartBackgroundScan()
	} else {
		t.Scanner.StopBackgroundScan()
	}
}

func (t *Tracker) Hardware() radio.Status {
	if t.Scanner == nil {
		return radio.Status{}
	}
	return t.Scanner.Status()
}

func (t *Tracker) exists(ctx context.Context, deviceID string) error {
	var n int64
	if err := t.Db.Read(ctx).Model(&models.TrackedDevice{}).Where("id = ?", deviceID).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
