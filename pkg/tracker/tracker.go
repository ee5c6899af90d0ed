// Package tracker wires the scan scheduler, identity resolver, detection
// recorder and alert heuristic into one core, and answers the questions the
// user-facing surfaces ask of it.
package tracker

import (
	"context"
	"time"

	"liyu1981.xyz/proximity-tracker/pkg/clock"
	"liyu1981.xyz/proximity-tracker/pkg/db"
	"liyu1981.xyz/proximity-tracker/pkg/detection"
	"liyu1981.xyz/proximity-tracker/pkg/identity"
	"liyu1981.xyz/proximity-tracker/pkg/location"
	"liyu1981.xyz/proximity-tracker/pkg/models"
	"liyu1981.xyz/proximity-tracker/pkg/radio"
	"liyu1981.xyz/proximity-tracker/pkg/reachability"
)

//go:generate mockgen -destination=mocks/mock_services.go -package=mocks liyu1981.xyz/proximity-tracker/pkg/tracker IIdentity,IDetection,IAlert,IScanner

type IIdentity interface {
	Resolve(ctx context.Context, s radio.Sighting, now time.Time) (identity.Result, error)
}

type IDetection interface {
	Record(ctx context.Context, deviceID string, s detection.Sighting) (detection.Result, error)
	History(ctx context.Context, deviceID string, since time.Time) ([]models.DetectionEvent, error)
	Locations(ctx context.Context, deviceID string, since time.Time) ([]models.ClusteredLocation, error)
	RemoveDevice(ctx context.Context, deviceID string) error
	SetBackgroundScanning(on bool)
	BackgroundScanning() bool
}

type IAlert interface {
	EvaluateDevice(ctx context.Context, deviceID string, now time.Time) (*models.TrackerNotification, error)
	EvaluateAll(ctx context.Context) ([]models.TrackerNotification, error)
	StartObserving(ctx context.Context, deviceID string) (time.Time, error)
	StopObserving(ctx context.Context, deviceID string) error
	SetFalseAlarm(ctx context.Context, notificationID uint, falseAlarm bool) error
	Notifications(ctx context.Context, deviceID string) ([]models.TrackerNotification, error)
}

type IScanner interface {
	StartBackgroundScan()
	StopBackgroundScan()
	StartFastScan(target radio.Target)
	StopFastScan()
	HardwareChanged()
	Status() radio.Status
	Records() *radio.RecordCache
	StartedAt() time.Time
}

type Tracker struct {
	Db       *db.DB
	Writer   *db.Writer
	Clock    clock.Clock
	Location location.Provider
	Timeouts reachability.Timeouts
	// devices seen within this long of now are listed as recent
	ManualScanBuffer time.Duration
	// a detection throttle to reset when a device is removed
	Throttle *RateLimiterStore

	Identity  IIdentity
	Detection IDetection
	Alert     IAlert
	Scanner   IScanner
}

type ServiceOpts struct {
	Identity  IIdentity
	Detection IDetection
	Alert     IAlert
	Scanner   IScanner
}

func (t *Tracker) WithServices(opts ServiceOpts) *Tracker {
	if opts.Identity != nil {
		t.Identity = opts.Identity
	}
	if opts.Detection != nil {
		t.Detection = opts.Detection
	}
	if opts.Alert != nil {
		t.Alert = opts.Alert
	}
	if opts.Scanner != nil {
		t.Scanner = opts.Scanner
	}
	return t
}

func (t *Tracker) records() *radio.RecordCache {
	if t.Scanner == nil {
		return nil
	}
	return t.Scanner.Records()
}

func (t *Tracker) currentFix(ctx context.Context) *models.Fix {
	if t.Location == nil {
		return nil
	}
	fix, ok := t.Location.Current(ctx)
	if !ok {
		return nil
	}
	return &fix
}
