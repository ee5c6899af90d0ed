package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liyu1981.xyz/proximity-tracker/pkg/common"
)

func env(kv map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := kv[key]
		return v, ok
	}
}

func alertEnv() map[string]string {
	return map[string]string{
		common.EnvKeyAlertMinLocations:  "3",
		common.EnvKeyAlertMinElapsed:    "30m",
		common.EnvKeyAlertDedupWindow:   "8h",
		common.EnvKeyAlertLookback:      "6h",
		common.EnvKeyAlertObservePeriod: "1h",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom(env(alertEnv()))
	require.NoError(t, err)

	def := Defaults()
	assert.Equal(t, def.ScanWindow, cfg.ScanWindow)
	assert.Equal(t, def.PipelineWorkers, cfg.PipelineWorkers)
	assert.GreaterOrEqual(t, cfg.ActiveWindow, cfg.ScanInterval+cfg.ScanWindow)
	assert.Equal(t, 3, cfg.Alert.MinDistinctLocations)
	assert.Equal(t, 30*time.Minute, cfg.Alert.MinElapsed)
	assert.Equal(t, 8*time.Hour, cfg.Alert.DedupWindow)
	assert.Equal(t, 6*time.Hour, cfg.Alert.Lookback)
	assert.Equal(t, time.Hour, cfg.Alert.ObservationPeriod)
}

func TestLoadOverrides(t *testing.T) {
	kv := alertEnv()
	kv[common.EnvKeyTrackerDBType] = "memory"
	kv[common.EnvKeyRadioSource] = "mqtt"
	kv[common.EnvKeyMQTTBroker] = "tcp://localhost:1883"
	kv[common.EnvKeyBackgroundScan] = "false"
	kv[common.EnvKeyScanWindow] = " 5s "
	kv[common.EnvKeyMergeRadius] = "35.5"
	kv[common.EnvKeyPipelineWorkers] = "8"

	cfg, err := LoadFrom(env(kv))
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.DBType)
	assert.Equal(t, "mqtt", cfg.RadioSource)
	assert.False(t, cfg.BackgroundScanning)
	assert.Equal(t, 5*time.Second, cfg.ScanWindow)
	assert.Equal(t, 35.5, cfg.LocationMergeRadius)
	assert.Equal(t, 8, cfg.PipelineWorkers)
}

func TestLoadRequiresAlertThresholds(t *testing.T) {
	kv := alertEnv()
	delete(kv, common.EnvKeyAlertMinLocations)
	delete(kv, common.EnvKeyAlertLookback)

	_, err := LoadFrom(env(kv))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissing))
	assert.Contains(t, err.Error(), common.EnvKeyAlertMinLocations)
	assert.Contains(t, err.Error(), common.EnvKeyAlertLookback)
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	kv := alertEnv()
	kv[common.EnvKeyScanInterval] = "every minute"
	kv[common.EnvKeyPipelineQueue] = "lots"

	_, err := LoadFrom(env(kv))
	require.Error(t, err)
	assert.Contains(t, err.Error(), common.EnvKeyScanInterval)
	assert.Contains(t, err.Error(), common.EnvKeyPipelineQueue)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		c := Defaults()
		c.Alert = AlertThresholds{
			MinDistinctLocations: 3,
			MinElapsed:           30 * time.Minute,
			DedupWindow:          8 * time.Hour,
			Lookback:             6 * time.Hour,
			ObservationPeriod:    time.Hour,
		}
		return c
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown db type", func(c *Config) { c.DBType = "postgres" }},
		{"unknown radio", func(c *Config) { c.RadioSource = "serial" }},
		{"mqtt without broker", func(c *Config) { c.RadioSource = "mqtt"; c.MQTTBroker = "" }},
		{"window longer than interval", func(c *Config) { c.ScanWindow = 2 * c.ScanInterval }},
		{"active window not shorter than grace", func(c *Config) { c.ActiveWindow = c.RenewalGrace }},
		{"active window inside the quiet gap", func(c *Config) { c.ActiveWindow = 30 * time.Second }},
		{"active window shorter than a full cycle", func(c *Config) { c.ActiveWindow = c.ScanInterval }},
		{"negative merge radius", func(c *Config) { c.LocationMergeRadius = -1 }},
		{"zero detection rate", func(c *Config) { c.DetectionRate = 0 }},
		{"no workers", func(c *Config) { c.PipelineWorkers = 0 }},
		{"zero locations", func(c *Config) { c.Alert.MinDistinctLocations = 0 }},
		{"lookback shorter than elapsed", func(c *Config) { c.Alert.Lookback = time.Minute }},
		{"zero dedup", func(c *Config) { c.Alert.DedupWindow = 0 }},
	}

	c := valid()
	require.NoError(t, c.Validate())

	// a window as long as the interval means scanning without pause
	c.ScanWindow = c.ScanInterval
	require.NoError(t, c.Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestLoadUsesProcessEnv(t *testing.T) {
	for k, v := range alertEnv() {
		t.Setenv(k, v)
	}
	t.Setenv(common.EnvKeyRadioSource, "none")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "none", cfg.RadioSource)
}
