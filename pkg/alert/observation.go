package alert

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"liyu1981.xyz/proximity-tracker/pkg/catalog"
	"liyu1981.xyz/proximity-tracker/pkg/db"
	"liyu1981.xyz/proximity-tracker/pkg/models"
	"liyu1981.xyz/proximity-tracker/pkg/reachability"
)

var ErrObservationNotAllowed = errors.New("observation not allowed")

// StartObserving marks a device for observation. Once the observation period
// has passed, the next evaluation emits an observation notification if the
// device was still around at the end of it.
func (h *Heuristic) StartObserving(ctx context.Context, deviceID string) (time.Time, error) {
	now := h.clock.Now()
	if h.background != nil && !h.background.BackgroundScanning() {
		return time.Time{}, fmt.Errorf("%w: background scanning is off", ErrObservationNotAllowed)
	}

	err := h.writer.Do(ctx, deviceID, func(tx *gorm.DB) error {
		var dev models.TrackedDevice
		if err := tx.First(&dev, "id = ?", deviceID).Error; err != nil {
			return err
		}
		if dev.Ignore {
			return fmt.Errorf("%w: device is ignored", ErrObservationNotAllowed)
		}
		profile, ok := catalog.Lookup(dev.DeviceType)
		if !ok || !profile.Capabilities.BackgroundScanning {
			return fmt.Errorf("%w: %s does not support background scanning", ErrObservationNotAllowed, dev.DeviceType)
		}
		return db.UpdateVersioned(tx, &models.TrackedDevice{}, dev.ID, dev.Version, map[string]any{"observing_start": now})
	})
	if err != nil {
		return time.Time{}, err
	}

	h.observeLog.Info("Observation started",
		zap.String("device_id", deviceID),
		zap.Time("until", now.Add(h.cfg.ObservationPeriod)))
	return now, nil
}

func (h *Heuristic) StopObserving(ctx context.Context, deviceID string) error {
	return h.writer.Do(ctx, deviceID, func(tx *gorm.DB) error {
		var dev models.TrackedDevice
		if err := tx.First(&dev, "id = ?", deviceID).Error; err != nil {
			return err
		}
		if dev.ObservingStart == nil {
			return nil
		}
		return db.UpdateVersioned(tx, &models.TrackedDevice{}, dev.ID, dev.Version, map[string]any{"observing_start": nil})
	})
}

func (h *Heuristic) observationDue(dev *models.TrackedDevice, now time.Time) bool {
	return dev.ObservingStart != nil && !now.Before(dev.ObservingStart.Add(h.cfg.ObservationPeriod))
}

// finishObservation clears the observation and notifies if the device was
// reachable when the period ended.
func (h *Heuristic) finishObservation(tx *gorm.DB, dev *models.TrackedDevice, now time.Time) (*models.TrackerNotification, error) {
	end := dev.ObservingStart.Add(h.cfg.ObservationPeriod)

	err := db.UpdateVersioned(tx, &models.TrackedDevice{}, dev.ID, dev.Version, map[string]any{"observing_start": nil})
	if err != nil {
		return nil, err
	}

	stillThere := reachability.DeviceReachable(dev, end, h.stillNearby)
	h.observeLog.Info("Observation finished", zap.String("device_id", dev.ID), zap.Bool("still_there", stillThere))
	if !stillThere {
		return nil, nil
	}

	skip, err := h.skipped(tx, dev)
	if err != nil || skip {
		return nil, err
	}
	return h.notify(tx, dev.ID, now, models.ReasonObservation)
}
