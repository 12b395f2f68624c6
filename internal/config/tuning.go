// Package config loads tuning parameters from JSON files. Fields omitted
// from the file fall back to the frozen defaults, so partial configs are
// safe to deploy.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/banshee-data/signal.report/internal/priority"
	"github.com/banshee-data/signal.report/internal/signal"
	"github.com/banshee-data/signal.report/internal/traffic"
)

// TuningConfig represents the root configuration for tuning parameters.
// All fields are pointers so an omitted field is distinguishable from an
// explicit zero.
type TuningConfig struct {
	// Estimation params
	StoppedSpeedThresholdMps *float64 `json:"stopped_speed_threshold_mps,omitempty"`
	QueueDistanceThresholdM  *float64 `json:"queue_distance_threshold_m,omitempty"`
	LaneLengthM              *float64 `json:"lane_length_m,omitempty"`
	CleanupTimeoutSec        *float64 `json:"cleanup_timeout_sec,omitempty"`
	HistoryLength            *int     `json:"history_length,omitempty"`
	EnableSmoothing          *bool    `json:"enable_smoothing,omitempty"`

	// Emergency priority params
	DetectionThresholdM  *float64 `json:"detection_threshold_m,omitempty"`
	PreemptionThresholdM *float64 `json:"preemption_threshold_m,omitempty"`
	ClearingDistanceM    *float64 `json:"clearing_distance_m,omitempty"`
	ClearanceTimeSec     *float64 `json:"clearance_time_sec,omitempty"`
	CooldownTimeSec      *float64 `json:"cooldown_time_sec,omitempty"`

	// Normal signal timing params
	NSGreenSec *float64 `json:"ns_green_sec,omitempty"`
	EWGreenSec *float64 `json:"ew_green_sec,omitempty"`

	// Engine params
	TickIntervalSec *float64 `json:"tick_interval_sec,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil, so
// every getter falls back to its default.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the
// max file size.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that explicitly set configuration values are usable.
func (c *TuningConfig) Validate() error {
	positive := []struct {
		name  string
		value *float64
	}{
		{"stopped_speed_threshold_mps", c.StoppedSpeedThresholdMps},
		{"queue_distance_threshold_m", c.QueueDistanceThresholdM},
		{"lane_length_m", c.LaneLengthM},
		{"cleanup_timeout_sec", c.CleanupTimeoutSec},
		{"detection_threshold_m", c.DetectionThresholdM},
		{"preemption_threshold_m", c.PreemptionThresholdM},
		{"clearing_distance_m", c.ClearingDistanceM},
		{"clearance_time_sec", c.ClearanceTimeSec},
		{"ns_green_sec", c.NSGreenSec},
		{"ew_green_sec", c.EWGreenSec},
		{"tick_interval_sec", c.TickIntervalSec},
	}
	for _, p := range positive {
		if p.value != nil && *p.value <= 0 {
			return fmt.Errorf("%s must be positive, got %f", p.name, *p.value)
		}
	}

	if c.CooldownTimeSec != nil && *c.CooldownTimeSec < 0 {
		return fmt.Errorf("cooldown_time_sec must be non-negative, got %f", *c.CooldownTimeSec)
	}
	if c.HistoryLength != nil && *c.HistoryLength <= 0 {
		return fmt.Errorf("history_length must be positive, got %d", *c.HistoryLength)
	}

	// Preemption inside detection range, clearing inside preemption range.
	det := pick(c.DetectionThresholdM, priority.DefaultConfig().DetectionThresholdM)
	pre := pick(c.PreemptionThresholdM, priority.DefaultConfig().PreemptionThresholdM)
	clr := pick(c.ClearingDistanceM, priority.DefaultConfig().ClearingDistanceM)
	if pre >= det {
		return fmt.Errorf("preemption_threshold_m (%f) must be below detection_threshold_m (%f)", pre, det)
	}
	if clr >= pre {
		return fmt.Errorf("clearing_distance_m (%f) must be below preemption_threshold_m (%f)", clr, pre)
	}

	return nil
}

func pick(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

// EstimatorConfig materialises the estimation pipeline configuration with
// defaults applied.
func (c *TuningConfig) EstimatorConfig() traffic.EstimatorConfig {
	cfg := traffic.DefaultEstimatorConfig()
	cfg.Tracker.StoppedSpeedThresholdMps = pick(c.StoppedSpeedThresholdMps, cfg.Tracker.StoppedSpeedThresholdMps)
	cfg.Tracker.QueueDistanceThresholdM = pick(c.QueueDistanceThresholdM, cfg.Tracker.QueueDistanceThresholdM)
	cfg.Tracker.LaneLengthM = pick(c.LaneLengthM, cfg.Tracker.LaneLengthM)
	cfg.Tracker.CleanupTimeoutSec = pick(c.CleanupTimeoutSec, cfg.Tracker.CleanupTimeoutSec)
	if c.HistoryLength != nil {
		cfg.Tracker.HistoryLength = *c.HistoryLength
	}
	if c.EnableSmoothing != nil {
		cfg.EnableSmoothing = *c.EnableSmoothing
	}
	return cfg
}

// PriorityConfig materialises the emergency controller configuration with
// defaults applied.
func (c *TuningConfig) PriorityConfig() priority.Config {
	cfg := priority.DefaultConfig()
	cfg.DetectionThresholdM = pick(c.DetectionThresholdM, cfg.DetectionThresholdM)
	cfg.PreemptionThresholdM = pick(c.PreemptionThresholdM, cfg.PreemptionThresholdM)
	cfg.ClearingDistanceM = pick(c.ClearingDistanceM, cfg.ClearingDistanceM)
	cfg.ClearanceTimeSec = pick(c.ClearanceTimeSec, cfg.ClearanceTimeSec)
	cfg.CooldownTimeSec = pick(c.CooldownTimeSec, cfg.CooldownTimeSec)
	return cfg
}

// FixedTimeConfig materialises the normal controller timing with defaults
// applied.
func (c *TuningConfig) FixedTimeConfig() signal.FixedTimeConfig {
	cfg := signal.DefaultFixedTimeConfig()
	cfg.NSGreenSec = pick(c.NSGreenSec, cfg.NSGreenSec)
	cfg.EWGreenSec = pick(c.EWGreenSec, cfg.EWGreenSec)
	return cfg
}

// GetTickIntervalSec returns the engine tick interval or the default.
func (c *TuningConfig) GetTickIntervalSec() float64 {
	if c.TickIntervalSec == nil {
		return 1.0
	}
	return *c.TickIntervalSec
}
