package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultTuningConfig(t *testing.T) {
	cfg := DefaultTuningConfig()

	if cfg.SmoothWindow == nil || *cfg.SmoothWindow != 5 {
		t.Errorf("Expected SmoothWindow 5, got %v", cfg.SmoothWindow)
	}
	if cfg.MaxDistance == nil || *cfg.MaxDistance != 100 {
		t.Errorf("Expected MaxDistance 100, got %v", cfg.MaxDistance)
	}
	if cfg.AlertCooldown == nil || *cfg.AlertCooldown != "3s" {
		t.Errorf("Expected AlertCooldown '3s', got %v", cfg.AlertCooldown)
	}

	if cfg.GetSmoothWindow() != 5 {
		t.Errorf("GetSmoothWindow() = %d, want 5", cfg.GetSmoothWindow())
	}
	if cfg.GetLoiterTime() != 30*time.Second {
		t.Errorf("GetLoiterTime() = %v, want 30s", cfg.GetLoiterTime())
	}
	if cfg.GetFallAngle() != 45 {
		t.Errorf("GetFallAngle() = %v, want 45", cfg.GetFallAngle())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config failed validation: %v", err)
	}
}

func TestGetters_NilFallBackToDefaults(t *testing.T) {
	cfg := &TuningConfig{}

	if cfg.GetSmoothWindow() != 5 {
		t.Errorf("GetSmoothWindow() = %d, want 5", cfg.GetSmoothWindow())
	}
	if cfg.GetMinStateDuration() != 3 {
		t.Errorf("GetMinStateDuration() = %d, want 3", cfg.GetMinStateDuration())
	}
	if cfg.GetMaxDistance() != 100 {
		t.Errorf("GetMaxDistance() = %v, want 100", cfg.GetMaxDistance())
	}
	if cfg.GetMaxFramesMissing() != 30 {
		t.Errorf("GetMaxFramesMissing() = %d, want 30", cfg.GetMaxFramesMissing())
	}
	if cfg.GetSpeedThreshold() != 300 {
		t.Errorf("GetSpeedThreshold() = %v, want 300", cfg.GetSpeedThreshold())
	}
	if cfg.GetLoiterVariance() != 1000 {
		t.Errorf("GetLoiterVariance() = %v, want 1000", cfg.GetLoiterVariance())
	}
	if cfg.GetAlertCooldown() != 3*time.Second {
		t.Errorf("GetAlertCooldown() = %v, want 3s", cfg.GetAlertCooldown())
	}
	if cfg.GetMinVisibility() != 0.5 {
		t.Errorf("GetMinVisibility() = %v, want 0.5", cfg.GetMinVisibility())
	}
	if cfg.GetInactiveTimeout() != 30*time.Second {
		t.Errorf("GetInactiveTimeout() = %v, want 30s", cfg.GetInactiveTimeout())
	}
}

func TestLoadTuningConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "tuning.json")

	testJSON := `{
  "smooth_window": 7,
  "max_distance": 150,
  "loiter_time": "45s",
  "alert_cooldown": "5s"
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.GetSmoothWindow() != 7 {
		t.Errorf("GetSmoothWindow() = %d, want 7", cfg.GetSmoothWindow())
	}
	if cfg.GetMaxDistance() != 150 {
		t.Errorf("GetMaxDistance() = %v, want 150", cfg.GetMaxDistance())
	}
	if cfg.GetLoiterTime() != 45*time.Second {
		t.Errorf("GetLoiterTime() = %v, want 45s", cfg.GetLoiterTime())
	}
	if cfg.GetAlertCooldown() != 5*time.Second {
		t.Errorf("GetAlertCooldown() = %v, want 5s", cfg.GetAlertCooldown())
	}

	// Omitted fields stay on defaults.
	if cfg.GetMinStateDuration() != 3 {
		t.Errorf("GetMinStateDuration() = %d, want default 3", cfg.GetMinStateDuration())
	}
}

func TestLoadTuningConfig_Invalid(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name string
		json string
	}{
		{"bad smooth window", `{"smooth_window": 0}`},
		{"negative distance", `{"max_distance": -10}`},
		{"bad duration", `{"alert_cooldown": "soon"}`},
		{"fall angle out of range", `{"fall_angle": 95}`},
		{"bad visibility", `{"min_visibility": 1.5}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(tmpDir, "bad.json")
			if err := os.WriteFile(path, []byte(tc.json), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadTuningConfig(path); err == nil {
				t.Errorf("expected error for %s", tc.json)
			}
		})
	}
}

func TestLoadTuningConfig_RequiresJSONExtension(t *testing.T) {
	if _, err := LoadTuningConfig("tuning.yaml"); err == nil {
		t.Error("expected error for non-JSON extension")
	}
}

func TestLoadTuningConfig_MissingFile(t *testing.T) {
	if _, err := LoadTuningConfig(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
