package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "server:\n  listen: \":9000\"\n")
	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if config.Server.Listen != ":9000" {
		t.Errorf("listen = %q, want :9000", config.Server.Listen)
	}
	if config.Filter.CutoffHz != 0.1 {
		t.Errorf("default cutoff = %v, want 0.1", config.Filter.CutoffHz)
	}
	if config.Filter.Order != 4 {
		t.Errorf("default order = %d, want 4", config.Filter.Order)
	}
	if config.Calibration.DryVoltage != 3.3 || config.Calibration.WetVoltage != 0.5 {
		t.Errorf("default calibration = %v/%v, want 3.3/0.5",
			config.Calibration.DryVoltage, config.Calibration.WetVoltage)
	}
	if config.Display.Mode != string(ModeClassic) {
		t.Errorf("default mode = %q, want classic", config.Display.Mode)
	}
	if config.Display.TimeOfDayBucketSec != 10 {
		t.Errorf("default bucket = %d, want 10", config.Display.TimeOfDayBucketSec)
	}

	if err := config.Validate(); err != nil {
		t.Errorf("defaulted config rejected: %v", err)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected an error for a missing config file")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"inverted calibration", "calibration:\n  dry_voltage: 0.5\n  wet_voltage: 3.3\n"},
		{"negative cutoff", "filter:\n  cutoff_hz: -1\n"},
		{"unknown mode", "display:\n  mode: spiral\n"},
		{"huge bucket", "display:\n  time_of_day_bucket_s: 100000\n"},
		{"mqtt without broker", "mqtt:\n  enabled: true\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.yaml)
			config, err := LoadConfig(path)
			if err != nil {
				t.Fatalf("load failed: %v", err)
			}
			if err := config.Validate(); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}

func TestDefaultParamsAreValid(t *testing.T) {
	path := writeConfig(t, "server:\n  listen: \":9000\"\n")
	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	p := config.DefaultParams()
	if err := p.Validate(); err != nil {
		t.Errorf("default params invalid: %v", err)
	}
	if p.Bucket != 10*time.Second || p.BucketSec != 10 {
		t.Errorf("bucket = %v/%d, want 10s/10", p.Bucket, p.BucketSec)
	}
}
