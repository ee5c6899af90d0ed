package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"liyu1981.xyz/proximity-tracker/pkg/catalog"
	"liyu1981.xyz/proximity-tracker/pkg/common"
	"liyu1981.xyz/proximity-tracker/pkg/db"
	"liyu1981.xyz/proximity-tracker/pkg/models"
	"liyu1981.xyz/proximity-tracker/pkg/radio"
)

type Result struct {
	Decision
	Device models.TrackedDevice
}

// Resolver applies Policy against storage. Resolution for one address runs
// in a critical section keyed by that address, so near-simultaneous
// advertisements from it cannot create two devices.
type Resolver struct {
	db     *db.DB
	writer *db.Writer
	policy Policy
	locks  *common.KeyedMutex
	logger *zap.Logger
}

func NewResolver(d *db.DB, w *db.Writer, p Policy) *Resolver {
	return &Resolver{
		db:     d,
		writer: w,
		policy: p,
		locks:  common.NewKeyedMutex(),
		logger: common.GetLoggerWith(
			common.LoggerNameTrackerCore,
			zap.String(common.LoggerFieldCategory, common.LoggerCategoryIdentity),
		),
	}
}

func (r *Resolver) Policy() Policy {
	return r.policy
}

func (r *Resolver) Resolve(ctx context.Context, s radio.Sighting, now time.Time) (Result, error) {
	unlock := r.locks.Lock(s.EphemeralID)
	defer unlock()

	var direct models.TrackedDevice
	err := r.db.Read(ctx).First(&direct, "current_radio_id = ?", s.EphemeralID).Error
	switch {
	case err == nil:
		return Result{
			Decision: Decision{Outcome: Matched, DeviceID: direct.ID, DeviceType: direct.DeviceType},
			Device:   direct,
		}, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return Result{}, fmt.Errorf("lookup %s: %w", s.EphemeralID, err)
	}

	profile, ok := catalog.Classify(s.Advertisement)
	if !ok {
		return Result{Decision: Decision{Outcome: Transient, DeviceType: catalog.TypeUnknown}}, nil
	}

	var res Result
	// one type at a time, so two new addresses cannot both claim one device
	err = r.writer.Do(ctx, "identity:"+string(profile.Type), func(tx *gorm.DB) error {
		var err error
		res, err = r.resolveTx(tx, s, profile.Type, now)
		return err
	})
	if err != nil {
		return Result{}, err
	}

	switch res.Outcome {
	case Rebound:
		r.logger.Info("Rebound device to new address",
			zap.String("device_id", res.DeviceID),
			zap.String("device_type", string(res.DeviceType)),
			zap.String("previous_radio_id", res.PreviousRadioID),
			zap.String("radio_id", s.EphemeralID))
	case Created:
		r.logger.Info("Created device",
			zap.String("device_id", res.DeviceID),
			zap.String("device_type", string(res.DeviceType)),
			zap.String("radio_id", s.EphemeralID))
	}
	return res, nil
}

func (r *Resolver) resolveTx(tx *gorm.DB, s radio.Sighting, typ catalog.DeviceType, now time.Time) (Result, error) {
	in := Input{EphemeralID: s.EphemeralID, Advertisement: s.Advertisement, Now: now}

	var direct models.TrackedDevice
	err := tx.First(&direct, "current_radio_id = ?", s.EphemeralID).Error
	switch {
	case err == nil:
		in.Direct = candidateOf(direct)
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return Result{}, err
	}

	var stored []models.TrackedDevice
	if in.Direct == nil {
		err := tx.
			Where("device_type = ? AND last_seen > ? AND last_seen <= ?",
				typ, now.Add(-r.policy.RenewalGrace), now.Add(-r.policy.ActiveWindow)).
			Find(&stored).Error
		if err != nil {
			return Result{}, err
		}
		for _, d := range stored {
			in.Candidates = append(in.Candidates, *candidateOf(d))
		}
	}

	decision := r.policy.Decide(in)
	res := Result{Decision: decision}

	switch decision.Outcome {
	case Matched:
		res.Device = direct
		return res, nil

	case Rebound:
		var dev models.TrackedDevice
		for _, d := range stored {
			if d.ID == decision.DeviceID {
				dev = d
				break
			}
		}
		extras := dev.Extras()
		extras.Rebinds++
		if name := s.Advertisement.LocalName; name != "" {
			extras.LocalName = name
		}
		if err := dev.SetExtras(extras); err != nil {
			return Result{}, err
		}
		radioID := s.EphemeralID
		err := db.UpdateVersioned(tx, &models.TrackedDevice{}, dev.ID, dev.Version, map[string]any{
			"current_radio_id":    radioID,
			"radio_id_renewed_at": now,
			"last_seen":           now,
			"additional_data":     dev.AdditionalData,
		})
		if err != nil {
			return Result{}, err
		}
		dev.CurrentRadioID = &radioID
		dev.RadioIDRenewedAt = &now
		dev.LastSeen = &now
		dev.Version++
		res.Device = dev
		return res, nil

	case Created:
		radioID := s.EphemeralID
		dev := models.TrackedDevice{
			ID:               uuid.NewString(),
			DeviceType:       decision.DeviceType,
			FirstSeen:        &now,
			LastSeen:         &now,
			CurrentRadioID:   &radioID,
			RadioIDRenewedAt: &now,
		}
		if err := dev.SetExtras(models.DeviceExtras{LocalName: s.Advertisement.LocalName}); err != nil {
			return Result{}, err
		}
		if err := tx.Create(&dev).Error; err != nil {
			return Result{}, err
		}
		res.DeviceID = dev.ID
		res.Device = dev
		return res, nil
	}

	return res, nil
}

func candidateOf(d models.TrackedDevice) *Candidate {
	c := &Candidate{ID: d.ID, DeviceType: d.DeviceType, CurrentRadioID: d.RadioID()}
	if d.LastSeen != nil {
		c.LastSeen = *d.LastSeen
	}
	return c
}
