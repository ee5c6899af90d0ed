// Package detection turns matched sightings into stored detection events and
// summarizes them into per-location spans.
package detection

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"liyu1981.xyz/proximity-tracker/pkg/catalog"
	"liyu1981.xyz/proximity-tracker/pkg/clock"
	"liyu1981.xyz/proximity-tracker/pkg/common"
	"liyu1981.xyz/proximity-tracker/pkg/db"
	"liyu1981.xyz/proximity-tracker/pkg/models"
)

var ErrFutureDetection = errors.New("detection time is after recording time")

// Throttle caps how often one device may produce an event.
type Throttle interface {
	Allow(deviceID string) bool
}

type Sighting struct {
	Time    time.Time
	RSSI    int
	Fix     *models.Fix
	Status  catalog.ConnectionStatus
	Payload string // hex, kept on the device for diagnostics
}

// Skip says why a sighting stopped after the last-seen bookkeeping.
type Skip string

const (
	SkipNone         Skip = ""
	SkipBackground   Skip = "background_scanning_off"
	SkipTypeDisabled Skip = "type_without_background_scanning"
	SkipTypeIgnored  Skip = "type_ignored"
	SkipIgnored      Skip = "device_ignored"
	SkipThrottled    Skip = "throttled"
)

type Result struct {
	Event *models.DetectionEvent
	Skip  Skip
}

type Recorder struct {
	db          *db.DB
	writer      *db.Writer
	clock       clock.Clock
	throttle    Throttle
	mergeRadius float64
	background  atomic.Bool
	logger      *zap.Logger
}

type Options struct {
	// Fixes within MergeRadius metres of a stored location reuse it.
	MergeRadius        float64
	BackgroundScanning bool
	Throttle           Throttle
}

func NewRecorder(d *db.DB, w *db.Writer, c clock.Clock, opts Options) *Recorder {
	r := &Recorder{
		db:          d,
		writer:      w,
		clock:       c,
		throttle:    opts.Throttle,
		mergeRadius: opts.MergeRadius,
		logger: common.GetLoggerWith(
			common.LoggerNameTrackerCore,
			zap.String(common.LoggerFieldCategory, common.LoggerCategoryDetection),
		),
	}
	r.background.Store(opts.BackgroundScanning)
	return r
}

func (r *Recorder) SetBackgroundScanning(on bool) {
	r.background.Store(on)
}

func (r *Recorder) BackgroundScanning() bool {
	return r.background.Load()
}

// Record updates the device's first/last seen and, unless scanning is off for
// it, it is ignored, or it is being throttled, appends one event with the
// host fix attached.
func (r *Recorder) Record(ctx context.Context, deviceID string, s Sighting) (Result, error) {
	if now := r.clock.Now(); s.Time.After(now) {
		return Result{}, fmt.Errorf("%w: %s > %s", ErrFutureDetection, s.Time, now)
	}

	s.Time = s.Time.UTC()
	allowed := r.throttle == nil || r.throttle.Allow(deviceID)

	var res Result
	err := r.writer.Do(ctx, deviceID, func(tx *gorm.DB) error {
		var err error
		res, err = r.recordTx(tx, deviceID, s, allowed)
		return err
	})
	if err != nil {
		return Result{}, fmt.Errorf("record detection for %s: %w", deviceID, err)
	}

	if res.Event != nil {
		r.logger.Debug("Detection stored",
			zap.String("device_id", deviceID),
			zap.Int("rssi", s.RSSI),
			zap.Bool("located", res.Event.LocationID != nil))
	} else {
		r.logger.Debug("Detection skipped", zap.String("device_id", deviceID), zap.String("reason", string(res.Skip)))
	}
	return res, nil
}

func (r *Recorder) recordTx(tx *gorm.DB, deviceID string, s Sighting, allowed bool) (Result, error) {
	var dev models.TrackedDevice
	if err := tx.First(&dev, "id = ?", deviceID).Error; err != nil {
		return Result{}, err
	}

	updates := map[string]any{}
	if dev.LastSeen == nil || s.Time.After(*dev.LastSeen) {
		updates["last_seen"] = s.Time
	}
	if dev.FirstSeen == nil || s.Time.Before(*dev.FirstSeen) {
		updates["first_seen"] = s.Time
	}
	extras := dev.Extras()
	extras.LastRSSI = s.RSSI
	if s.Payload != "" {
		extras.LastPayload = s.Payload
	}
	if err := dev.SetExtras(extras); err != nil {
		return Result{}, err
	}
	updates["additional_data"] = dev.AdditionalData

	if err := db.UpdateVersioned(tx, &models.TrackedDevice{}, dev.ID, dev.Version, updates); err != nil {
		return Result{}, err
	}

	if skip, err := r.skipReason(tx, &dev, allowed); err != nil || skip != SkipNone {
		return Result{Skip: skip}, err
	}

	event := models.DetectionEvent{
		Time:             s.Time,
		DeviceID:         dev.ID,
		ConnectionStatus: s.Status,
		RSSI:             s.RSSI,
	}
	if event.ConnectionStatus == "" {
		event.ConnectionStatus = catalog.StatusUnknown
	}
	if s.Fix != nil {
		loc, err := r.shareLocation(tx, *s.Fix)
		if err != nil {
			return Result{}, err
		}
		event.LocationID = &loc.ID
		event.Location = loc
	}
	if err := tx.Omit("Location").Create(&event).Error; err != nil {
		return Result{}, err
	}
	return Result{Event: &event}, nil
}

func (r *Recorder) skipReason(tx *gorm.DB, dev *models.TrackedDevice, allowed bool) (Skip, error) {
	if !r.background.Load() {
		return SkipBackground, nil
	}
	profile, ok := catalog.Lookup(dev.DeviceType)
	if !ok || !profile.Capabilities.BackgroundScanning {
		return SkipTypeDisabled, nil
	}
	if dev.Ignore {
		return SkipIgnored, nil
	}
	var setting models.DeviceTypeSetting
	err := tx.Limit(1).Find(&setting, "device_type = ?", dev.DeviceType).Error
	if err != nil {
		return SkipNone, err
	}
	if setting.Ignore {
		return SkipTypeIgnored, nil
	}
	if !allowed {
		return SkipThrottled, nil
	}
	return SkipNone, nil
}

// shareLocation returns the most recent stored location within the merge
// radius whose accuracy is at least as good as fix, or stores a new one.
func (r *Recorder) shareLocation(tx *gorm.DB, fix models.Fix) (*models.Location, error) {
	minLat, maxLat, minLon, maxLon := boundingBox(fix.Latitude, fix.Longitude, r.mergeRadius)

	var nearby []models.Location
	err := tx.
		Where("latitude BETWEEN ? AND ? AND longitude BETWEEN ? AND ? AND accuracy <= ?",
			minLat, maxLat, minLon, maxLon, fix.Accuracy).
		Order("recorded_at desc, id desc").
		Limit(50).
		Find(&nearby).Error
	if err != nil {
		return nil, err
	}
	for i := range nearby {
		if Distance(fix.Latitude, fix.Longitude, nearby[i].Latitude, nearby[i].Longitude) <= r.mergeRadius {
			return &nearby[i], nil
		}
	}

	loc := models.Location{
		Latitude:   fix.Latitude,
		Longitude:  fix.Longitude,
		Accuracy:   fix.Accuracy,
		RecordedAt: fix.Time,
	}
	if loc.RecordedAt.IsZero() {
		loc.RecordedAt = r.clock.Now()
	}
	if err := tx.Create(&loc).Error; err != nil {
		return nil, err
	}
	return &loc, nil
}

// History returns the device's events since the given time, oldest first,
// with locations loaded. A zero since returns everything.
func (r *Recorder) History(ctx context.Context, deviceID string, since time.Time) ([]models.DetectionEvent, error) {
	q := r.db.Read(ctx).Preload("Location").Where("device_id = ?", deviceID)
	if !since.IsZero() {
		// sqlite compares stored times as text, which only orders in UTC
		q = q.Where("time >= ?", since.UTC())
	}
	var events []models.DetectionEvent
	err := q.Order("time asc").Find(&events).Error
	return events, err
}

func (r *Recorder) Locations(ctx context.Context, deviceID string, since time.Time) ([]models.ClusteredLocation, error) {
	events, err := r.History(ctx, deviceID, since)
	if err != nil {
		return nil, err
	}
	return Cluster(events), nil
}

// RemoveDevice deletes a device with its events and notifications, then any
// location no event refers to any more.
func (r *Recorder) RemoveDevice(ctx context.Context, deviceID string) error {
	return r.writer.Do(ctx, deviceID, func(tx *gorm.DB) error {
		var locationIDs []uint
		err := tx.Model(&models.DetectionEvent{}).
			Where("device_id = ? AND location_id IS NOT NULL", deviceID).
			Distinct().
			Pluck("location_id", &locationIDs).Error
		if err != nil {
			return err
		}

		res := tx.Delete(&models.TrackedDevice{}, "id = ?", deviceID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		if len(locationIDs) > 0 {
			err = tx.
				Where("id IN ?", locationIDs).
				Where("NOT EXISTS (SELECT 1 FROM detection_events WHERE detection_events.location_id = locations.id)").
				Delete(&models.Location{}).Error
			if err != nil {
				return err
			}
		}

		r.logger.Info("Device removed", zap.String("device_id", deviceID), zap.Int("locations_checked", len(locationIDs)))
		return nil
	})
}
