// Package config reads the tracker's settings from the environment. Mechanism
// settings (scan cadence, timeouts, pipeline sizing) have defaults; the alert
// thresholds do not and must be configured explicitly.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"liyu1981.xyz/proximity-tracker/pkg/common"
)

var ErrMissing = errors.New("required setting missing")

type Config struct {
	DBType string // "file" or "memory"
	DBPath string

	HTTPHostPort string
	GRPCHostPort string
	DefaultRate  float64
	DefaultBurst int

	RadioSource        string // "hci", "mqtt" or "none"
	MQTTBroker         string
	MQTTClientID       string
	BackgroundScanning bool

	ScanWindow   time.Duration
	ScanInterval time.Duration
	RecordStale  time.Duration

	RenewalGrace time.Duration
	ActiveWindow time.Duration

	StillNearbyTimeout time.Duration
	PrecisionTimeout   time.Duration
	ManualScanBuffer   time.Duration

	LocationMergeRadius float64 // metres
	LocationMaxAge      time.Duration

	DetectionRate  float64 // events per second per device
	DetectionBurst int

	PipelineWorkers int
	PipelineQueue   int
	EvaluateEvery   time.Duration

	Alert AlertThresholds
}

type AlertThresholds struct {
	MinDistinctLocations int
	MinElapsed           time.Duration
	DedupWindow          time.Duration
	Lookback             time.Duration
	ObservationPeriod    time.Duration
}

func Defaults() Config {
	return Config{
		DBType:             "file",
		DBPath:             "tracker.db",
		HTTPHostPort:       ":1080",
		DefaultRate:        10,
		DefaultBurst:       20,
		RadioSource:        "hci",
		MQTTClientID:       "proximity-tracker",
		BackgroundScanning: true,

		ScanWindow:   10 * time.Second,
		ScanInterval: time.Minute,
		RecordStale:  2 * time.Minute,

		RenewalGrace: 20 * time.Minute,
		ActiveWindow: 2 * time.Minute,

		StillNearbyTimeout: time.Minute,
		PrecisionTimeout:   5 * time.Second,
		ManualScanBuffer:   time.Minute,

		LocationMergeRadius: 20,
		LocationMaxAge:      5 * time.Minute,

		DetectionRate:  0.2,
		DetectionBurst: 1,

		PipelineWorkers: 4,
		PipelineQueue:   1024,
		EvaluateEvery:   time.Minute,
	}
}

// Load reads the process environment.
func Load() (*Config, error) {
	return LoadFrom(os.LookupEnv)
}

func LoadFrom(lookup func(string) (string, bool)) (*Config, error) {
	cfg := Defaults()
	r := reader{lookup: lookup}

	r.str(common.EnvKeyTrackerDBType, &cfg.DBType)
	r.str(common.EnvKeyTrackerDbPath, &cfg.DBPath)
	r.str(common.EnvKeyTrackerHttpHostPort, &cfg.HTTPHostPort)
	r.str(common.EnvKeyTrackerGrpcHostPort, &cfg.GRPCHostPort)
	r.float(common.EnvKeyTrackerDefaultRate, &cfg.DefaultRate)
	r.int(common.EnvKeyTrackerDefaultBurst, &cfg.DefaultBurst)

	r.str(common.EnvKeyRadioSource, &cfg.RadioSource)
	r.str(common.EnvKeyMQTTBroker, &cfg.MQTTBroker)
	r.str(common.EnvKeyMQTTClientID, &cfg.MQTTClientID)
	r.bool(common.EnvKeyBackgroundScan, &cfg.BackgroundScanning)

	r.duration(common.EnvKeyScanWindow, &cfg.ScanWindow)
	r.duration(common.EnvKeyScanInterval, &cfg.ScanInterval)
	r.duration(common.EnvKeyRecordStale, &cfg.RecordStale)
	r.duration(common.EnvKeyRenewalGrace, &cfg.RenewalGrace)
	r.duration(common.EnvKeyActiveWindow, &cfg.ActiveWindow)
	r.duration(common.EnvKeyStillNearby, &cfg.StillNearbyTimeout)
	r.duration(common.EnvKeyPrecisionFind, &cfg.PrecisionTimeout)
	r.duration(common.EnvKeyScanBuffer, &cfg.ManualScanBuffer)
	r.float(common.EnvKeyMergeRadius, &cfg.LocationMergeRadius)
	r.duration(common.EnvKeyFixMaxAge, &cfg.LocationMaxAge)
	r.float(common.EnvKeyDetectionRate, &cfg.DetectionRate)
	r.int(common.EnvKeyDetectionBurst, &cfg.DetectionBurst)
	r.int(common.EnvKeyPipelineWorkers, &cfg.PipelineWorkers)
	r.int(common.EnvKeyPipelineQueue, &cfg.PipelineQueue)
	r.duration(common.EnvKeyEvaluateEvery, &cfg.EvaluateEvery)

	// alert thresholds have no defaults
	r.required().int(common.EnvKeyAlertMinLocations, &cfg.Alert.MinDistinctLocations)
	r.required().duration(common.EnvKeyAlertMinElapsed, &cfg.Alert.MinElapsed)
	r.required().duration(common.EnvKeyAlertDedupWindow, &cfg.Alert.DedupWindow)
	r.required().duration(common.EnvKeyAlertLookback, &cfg.Alert.Lookback)
	r.required().duration(common.EnvKeyAlertObservePeriod, &cfg.Alert.ObservationPeriod)

	if err := errors.Join(r.errs...); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.DBType {
	case "file", "memory":
	default:
		return fmt.Errorf("unknown %s %q", common.EnvKeyTrackerDBType, c.DBType)
	}

	switch c.RadioSource {
	case "hci", "none":
	case "mqtt":
		if c.MQTTBroker == "" {
			return fmt.Errorf("%s=mqtt needs %s", common.EnvKeyRadioSource, common.EnvKeyMQTTBroker)
		}
	default:
		return fmt.Errorf("unknown %s %q", common.EnvKeyRadioSource, c.RadioSource)
	}

	if c.ScanWindow <= 0 || c.ScanInterval <= 0 {
		return fmt.Errorf("scan window and interval must be positive, got %s/%s", c.ScanWindow, c.ScanInterval)
	}
	if c.ScanWindow > c.ScanInterval {
		return fmt.Errorf("scan window %s longer than interval %s", c.ScanWindow, c.ScanInterval)
	}
	// A tag heard early in one sweep may not be heard again until late in the
	// next; it must still count as current until then.
	if cycle := c.ScanInterval + c.ScanWindow; c.ActiveWindow < cycle {
		return fmt.Errorf("active window %s must cover a scan cycle, interval + window = %s", c.ActiveWindow, cycle)
	}
	if c.ActiveWindow >= c.RenewalGrace {
		return fmt.Errorf("active window %s must be shorter than renewal grace %s", c.ActiveWindow, c.RenewalGrace)
	}
	if c.LocationMergeRadius < 0 {
		return fmt.Errorf("location merge radius must be non-negative, got %f", c.LocationMergeRadius)
	}
	if c.DetectionRate <= 0 || c.DetectionBurst < 1 {
		return fmt.Errorf("detection limiter needs rate > 0 and burst >= 1, got %f/%d", c.DetectionRate, c.DetectionBurst)
	}
	if c.PipelineWorkers < 1 || c.PipelineQueue < 1 {
		return fmt.Errorf("pipeline needs at least one worker and queue slot, got %d/%d", c.PipelineWorkers, c.PipelineQueue)
	}
	if c.Alert.MinDistinctLocations < 1 {
		return fmt.Errorf("%s must be at least 1, got %d", common.EnvKeyAlertMinLocations, c.Alert.MinDistinctLocations)
	}
	if c.Alert.Lookback < c.Alert.MinElapsed {
		return fmt.Errorf("alert lookback %s shorter than min elapsed %s", c.Alert.Lookback, c.Alert.MinElapsed)
	}
	if c.Alert.DedupWindow <= 0 || c.Alert.ObservationPeriod <= 0 {
		return errors.New("alert dedup window and observation period must be positive")
	}
	return nil
}

type reader struct {
	lookup   func(string) (string, bool)
	errs     []error
	mustHave bool
}

// required marks the next read as mandatory.
func (r *reader) required() *reader {
	r.mustHave = true
	return r
}

func (r *reader) value(key string) (string, bool) {
	must := r.mustHave
	r.mustHave = false

	v, ok := r.lookup(key)
	v = strings.TrimSpace(v)
	if !ok || v == "" {
		if must {
			r.errs = append(r.errs, fmt.Errorf("%s: %w", key, ErrMissing))
		}
		return "", false
	}
	return v, true
}

func (r *reader) str(key string, dst *string) {
	if v, ok := r.value(key); ok {
		*dst = v
	}
}

func (r *reader) int(key string, dst *int) {
	v, ok := r.value(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("invalid %s, should be an int value: %w", key, err))
		return
	}
	*dst = n
}

func (r *reader) float(key string, dst *float64) {
	v, ok := r.value(key)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("invalid %s, should be a float64 value: %w", key, err))
		return
	}
	*dst = f
}

func (r *reader) bool(key string, dst *bool) {
	v, ok := r.value(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("invalid %s, should be true or false: %w", key, err))
		return
	}
	*dst = b
}

func (r *reader) duration(key string, dst *time.Duration) {
	v, ok := r.value(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("invalid %s, should be a duration like 90s: %w", key, err))
		return
	}
	*dst = d
}
