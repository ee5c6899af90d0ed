// Package alert raises a TrackerNotification when an accessory appears to be
// travelling with the user: seen at enough distinct places over a long enough
// stretch of time, and not already reported recently.
package alert

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"liyu1981.xyz/proximity-tracker/pkg/catalog"
	"liyu1981.xyz/proximity-tracker/pkg/clock"
	"liyu1981.xyz/proximity-tracker/pkg/common"
	"liyu1981.xyz/proximity-tracker/pkg/db"
	"liyu1981.xyz/proximity-tracker/pkg/detection"
	"liyu1981.xyz/proximity-tracker/pkg/models"
)

var ErrInvalidConfig = errors.New("invalid alert config")

// Config holds the product thresholds. None of them has a built-in default.
type Config struct {
	MinDistinctLocations int
	MinElapsed           time.Duration
	DedupWindow          time.Duration
	Lookback             time.Duration
	ObservationPeriod    time.Duration
}

func (c Config) Validate() error {
	var errs []error
	if c.MinDistinctLocations < 1 {
		errs = append(errs, fmt.Errorf("%w: min distinct locations %d < 1", ErrInvalidConfig, c.MinDistinctLocations))
	}
	if c.MinElapsed < 0 {
		errs = append(errs, fmt.Errorf("%w: negative min elapsed", ErrInvalidConfig))
	}
	if c.DedupWindow <= 0 {
		errs = append(errs, fmt.Errorf("%w: dedup window must be positive", ErrInvalidConfig))
	}
	if c.Lookback < c.MinElapsed {
		errs = append(errs, fmt.Errorf("%w: lookback %s shorter than min elapsed %s", ErrInvalidConfig, c.Lookback, c.MinElapsed))
	}
	if c.ObservationPeriod <= 0 {
		errs = append(errs, fmt.Errorf("%w: observation period must be positive", ErrInvalidConfig))
	}
	return errors.Join(errs...)
}

// BackgroundState reports whether background scanning is currently on.
type BackgroundState interface {
	BackgroundScanning() bool
}

type Heuristic struct {
	db         *db.DB
	writer     *db.Writer
	clock      clock.Clock
	cfg        Config
	presenter  Presenter
	background BackgroundState
	// a device counts as still present this long after its last sighting
	stillNearby time.Duration
	logger      *zap.Logger
	observeLog  *zap.Logger
}

type Options struct {
	Presenter   Presenter
	Background  BackgroundState
	StillNearby time.Duration
}

func New(d *db.DB, w *db.Writer, c clock.Clock, cfg Config, opts Options) (*Heuristic, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	h := &Heuristic{
		db:          d,
		writer:      w,
		clock:       c,
		cfg:         cfg,
		presenter:   opts.Presenter,
		background:  opts.Background,
		stillNearby: opts.StillNearby,
		logger: common.GetLoggerWith(
			common.LoggerNameTrackerCore,
			zap.String(common.LoggerFieldCategory, common.LoggerCategoryAlert),
		),
		observeLog: common.GetLoggerWith(
			common.LoggerNameTrackerCore,
			zap.String(common.LoggerFieldCategory, common.LoggerCategoryObservation),
		),
	}
	if h.presenter == nil {
		h.presenter = NewLogPresenter(nil)
	}
	return h, nil
}

func (h *Heuristic) Config() Config {
	return h.cfg
}

// EvaluateAll runs one pass over every device that could qualify, reading the
// clock once. Failures for one device do not stop the pass.
func (h *Heuristic) EvaluateAll(ctx context.Context) ([]models.TrackerNotification, error) {
	now := h.clock.Now()

	var ids []string
	err := h.db.Read(ctx).Model(&models.TrackedDevice{}).
		Where(map[string]any{"ignore": false, "owned": false}).
		Where("device_type IS NOT NULL AND device_type NOT IN ?", []string{"", string(catalog.TypeUnknown)}).
		Where("last_seen >= ? OR observing_start IS NOT NULL", now.Add(-h.cfg.Lookback)).
		Order("id").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("list alert candidates: %w", err)
	}

	var created []models.TrackerNotification
	var errs []error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		n, err := h.EvaluateDevice(ctx, id, now)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if n != nil {
			created = append(created, *n)
		}
	}

	h.logger.Debug("Evaluation pass finished",
		zap.Int("devices", len(ids)),
		zap.Int("notifications", len(created)),
		zap.Int("errors", len(errs)))
	return created, errors.Join(errs...)
}

// EvaluateDevice checks one device at now and returns the notification it
// created, or nil.
func (h *Heuristic) EvaluateDevice(ctx context.Context, deviceID string, now time.Time) (*models.TrackerNotification, error) {
	var created *models.TrackerNotification
	var device models.TrackedDevice

	err := h.writer.Do(ctx, deviceID, func(tx *gorm.DB) error {
		created = nil
		if err := tx.First(&device, "id = ?", deviceID).Error; err != nil {
			return err
		}
		if h.observationDue(&device, now) {
			n, err := h.finishObservation(tx, &device, now)
			created = n
			return err
		}
		n, err := h.evaluateTracking(tx, &device, now)
		created = n
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("evaluate %s: %w", deviceID, err)
	}
	if created == nil {
		return nil, nil
	}

	h.logger.Info("Notification created",
		zap.String("device_id", deviceID),
		zap.String("reason", created.Reason),
		zap.Uint("notification_id", created.ID))

	if err := h.presenter.Present(ctx, *created, device); err != nil {
		h.logger.Warn("Presenting notification failed", zap.Uint("notification_id", created.ID), zap.Error(err))
	}
	return created, nil
}

func (h *Heuristic) evaluateTracking(tx *gorm.DB, device *models.TrackedDevice, now time.Time) (*models.TrackerNotification, error) {
	skip, err := h.skipped(tx, device)
	if err != nil || skip {
		return nil, err
	}

	var events []models.DetectionEvent
	err = tx.Preload("Location").
		Where("device_id = ? AND time >= ? AND time <= ? AND location_id IS NOT NULL", device.ID, now.Add(-h.cfg.Lookback), now).
		Order("time asc").
		Find(&events).Error
	if err != nil {
		return nil, err
	}

	clusters := detection.Cluster(events)
	if len(clusters) < h.cfg.MinDistinctLocations {
		return nil, nil
	}
	if span := clusterSpan(clusters); span < h.cfg.MinElapsed {
		return nil, nil
	}

	return h.notify(tx, device.ID, now, models.ReasonTracking)
}

// skipped covers every device the user has vouched for, and any device whose
// owner is currently next to it.
func (h *Heuristic) skipped(tx *gorm.DB, device *models.TrackedDevice) (bool, error) {
	if catalog.IsUnknown(device.DeviceType) || device.Ignore || device.Owned {
		return true, nil
	}

	var setting models.DeviceTypeSetting
	if err := tx.Limit(1).Find(&setting, "device_type = ?", device.DeviceType).Error; err != nil {
		return false, err
	}
	if setting.Ignore {
		return true, nil
	}

	var latest models.DetectionEvent
	res := tx.Where("device_id = ?", device.ID).Order("time desc, id desc").Limit(1).Find(&latest)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0 && latest.ConnectionStatus == catalog.StatusOwnerConnected, nil
}

// notify stores a notification unless one for the device already falls in the
// dedup window.
func (h *Heuristic) notify(tx *gorm.DB, deviceID string, now time.Time, reason string) (*models.TrackerNotification, error) {
	var recent int64
	err := tx.Model(&models.TrackerNotification{}).
		Where("device_id = ? AND time > ?", deviceID, now.Add(-h.cfg.DedupWindow)).
		Count(&recent).Error
	if err != nil {
		return nil, err
	}
	if recent > 0 {
		return nil, nil
	}

	n := models.TrackerNotification{Time: now, DeviceID: deviceID, Reason: reason}
	if err := tx.Create(&n).Error; err != nil {
		return nil, err
	}
	return &n, nil
}

func clusterSpan(clusters []models.ClusteredLocation) time.Duration {
	start, end := clusters[0].Start, clusters[0].End
	for _, c := range clusters[1:] {
		if c.Start.Before(start) {
			start = c.Start
		}
		if c.End.After(end) {
			end = c.End
		}
	}
	return end.Sub(start)
}

// SetFalseAlarm annotates a notification. It never affects later evaluation.
func (h *Heuristic) SetFalseAlarm(ctx context.Context, notificationID uint, falseAlarm bool) error {
	res := h.db.Read(ctx).Model(&models.TrackerNotification{}).
		Where("id = ?", notificationID).
		Update("false_alarm", falseAlarm)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Notifications returns a device's notifications, newest first.
func (h *Heuristic) Notifications(ctx context.Context, deviceID string) ([]models.TrackerNotification, error) {
	var out []models.TrackerNotification
	err := h.db.Read(ctx).
		Where("device_id = ?", deviceID).
		Order("time desc, id desc").
		Find(&out).Error
	return out, err
}
