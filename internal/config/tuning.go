// Package config loads the analysis tuning parameters from JSON. Fields
// omitted from the file fall back to defaults through the Get* accessors,
// so partial configs are safe.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// TuningConfig is the root tuning schema. All fields are pointers so a
// loaded file can be distinguished from "not specified".
type TuningConfig struct {
	// Exercise state machine params
	SmoothWindow     *int `json:"smooth_window,omitempty"`
	MinStateDuration *int `json:"min_state_duration,omitempty"`

	// Identity tracker params
	MaxDistance      *float64 `json:"max_distance,omitempty"`
	MaxFramesMissing *int     `json:"max_frames_missing,omitempty"`

	// Surveillance params
	SpeedThreshold *float64 `json:"speed_threshold,omitempty"`
	LoiterVariance *float64 `json:"loiter_variance,omitempty"`
	LoiterWindow   *int     `json:"loiter_window,omitempty"`
	LoiterTime     *string  `json:"loiter_time,omitempty"` // duration string like "30s"
	FallAngle      *float64 `json:"fall_angle,omitempty"`

	// Alerting params
	AlertCooldown     *string `json:"alert_cooldown,omitempty"` // duration string like "3s"
	MaxAlertsInMemory *int    `json:"max_alerts_in_memory,omitempty"`

	// Pose input params
	MinVisibility *float64 `json:"min_visibility,omitempty"`

	// Coordinator params
	InactiveTimeout *string `json:"inactive_timeout,omitempty"` // duration string like "30s"
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrInt(v int) *int             { return &v }
func ptrString(v string) *string    { return &v }

// DefaultTuningConfig returns a config with every field set to its default.
func DefaultTuningConfig() *TuningConfig {
	return &TuningConfig{
		SmoothWindow:      ptrInt(5),
		MinStateDuration:  ptrInt(3),
		MaxDistance:       ptrFloat64(100),
		MaxFramesMissing:  ptrInt(30),
		SpeedThreshold:    ptrFloat64(300),
		LoiterVariance:    ptrFloat64(1000),
		LoiterWindow:      ptrInt(10),
		LoiterTime:        ptrString("30s"),
		FallAngle:         ptrFloat64(45),
		AlertCooldown:     ptrString("3s"),
		MaxAlertsInMemory: ptrInt(100),
		MinVisibility:     ptrFloat64(0.5),
		InactiveTimeout:   ptrString("30s"),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. Fields omitted
// from the file stay nil and resolve through the Get* accessors.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

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

	cfg := &TuningConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the specified fields for usable values.
func (c *TuningConfig) Validate() error {
	if c.SmoothWindow != nil && *c.SmoothWindow < 1 {
		return fmt.Errorf("smooth_window must be >= 1, got %d", *c.SmoothWindow)
	}
	if c.MinStateDuration != nil && *c.MinStateDuration < 1 {
		return fmt.Errorf("min_state_duration must be >= 1, got %d", *c.MinStateDuration)
	}
	if c.MaxDistance != nil && *c.MaxDistance <= 0 {
		return fmt.Errorf("max_distance must be positive, got %v", *c.MaxDistance)
	}
	if c.MaxFramesMissing != nil && *c.MaxFramesMissing < 1 {
		return fmt.Errorf("max_frames_missing must be >= 1, got %d", *c.MaxFramesMissing)
	}
	if c.SpeedThreshold != nil && *c.SpeedThreshold <= 0 {
		return fmt.Errorf("speed_threshold must be positive, got %v", *c.SpeedThreshold)
	}
	if c.LoiterVariance != nil && *c.LoiterVariance <= 0 {
		return fmt.Errorf("loiter_variance must be positive, got %v", *c.LoiterVariance)
	}
	if c.LoiterWindow != nil && *c.LoiterWindow < 2 {
		return fmt.Errorf("loiter_window must be >= 2, got %d", *c.LoiterWindow)
	}
	if c.FallAngle != nil && (*c.FallAngle <= 0 || *c.FallAngle >= 90) {
		return fmt.Errorf("fall_angle must be in (0, 90), got %v", *c.FallAngle)
	}
	if c.MaxAlertsInMemory != nil && *c.MaxAlertsInMemory < 1 {
		return fmt.Errorf("max_alerts_in_memory must be >= 1, got %d", *c.MaxAlertsInMemory)
	}
	if c.MinVisibility != nil && (*c.MinVisibility < 0 || *c.MinVisibility > 1) {
		return fmt.Errorf("min_visibility must be in [0, 1], got %v", *c.MinVisibility)
	}
	for name, val := range map[string]*string{
		"loiter_time":      c.LoiterTime,
		"alert_cooldown":   c.AlertCooldown,
		"inactive_timeout": c.InactiveTimeout,
	} {
		if val == nil {
			continue
		}
		d, err := time.ParseDuration(*val)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, *val, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %q", name, *val)
		}
	}
	return nil
}

func (c *TuningConfig) GetSmoothWindow() int {
	if c.SmoothWindow != nil {
		return *c.SmoothWindow
	}
	return 5
}

func (c *TuningConfig) GetMinStateDuration() int {
	if c.MinStateDuration != nil {
		return *c.MinStateDuration
	}
	return 3
}

func (c *TuningConfig) GetMaxDistance() float64 {
	if c.MaxDistance != nil {
		return *c.MaxDistance
	}
	return 100
}

func (c *TuningConfig) GetMaxFramesMissing() int {
	if c.MaxFramesMissing != nil {
		return *c.MaxFramesMissing
	}
	return 30
}

func (c *TuningConfig) GetSpeedThreshold() float64 {
	if c.SpeedThreshold != nil {
		return *c.SpeedThreshold
	}
	return 300
}

func (c *TuningConfig) GetLoiterVariance() float64 {
	if c.LoiterVariance != nil {
		return *c.LoiterVariance
	}
	return 1000
}

func (c *TuningConfig) GetLoiterWindow() int {
	if c.LoiterWindow != nil {
		return *c.LoiterWindow
	}
	return 10
}

func (c *TuningConfig) GetLoiterTime() time.Duration {
	return c.duration(c.LoiterTime, 30*time.Second)
}

func (c *TuningConfig) GetFallAngle() float64 {
	if c.FallAngle != nil {
		return *c.FallAngle
	}
	return 45
}

func (c *TuningConfig) GetAlertCooldown() time.Duration {
	return c.duration(c.AlertCooldown, 3*time.Second)
}

func (c *TuningConfig) GetMaxAlertsInMemory() int {
	if c.MaxAlertsInMemory != nil {
		return *c.MaxAlertsInMemory
	}
	return 100
}

func (c *TuningConfig) GetMinVisibility() float64 {
	if c.MinVisibility != nil {
		return *c.MinVisibility
	}
	return 0.5
}

func (c *TuningConfig) GetInactiveTimeout() time.Duration {
	return c.duration(c.InactiveTimeout, 30*time.Second)
}

func (c *TuningConfig) duration(val *string, def time.Duration) time.Duration {
	if val == nil {
		return def
	}
	d, err := time.ParseDuration(*val)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
