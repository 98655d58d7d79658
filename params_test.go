package main

import (
	"errors"
	"testing"
	"time"
)

func validParams() RenderParams {
	return RenderParams{
		Mode:          ModeClassic,
		Filter:        FilterConfig{Enabled: true, CutoffHz: 0.1, Order: 4},
		Calibration:   defaultCal,
		RollingWindow: 600,
		Bucket:        10 * time.Second,
		BucketSec:     10,
	}
}

func TestParseDisplayMode(t *testing.T) {
	for _, mode := range []string{"classic", "overlay24h", "average24h", "chanavg13"} {
		if _, err := ParseDisplayMode(mode); err != nil {
			t.Errorf("ParseDisplayMode(%q) failed: %v", mode, err)
		}
	}
	if _, err := ParseDisplayMode("polar"); err == nil {
		t.Error("expected an error for unknown mode")
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	p := validParams()
	if err := p.Validate(); err != nil {
		t.Errorf("valid params rejected: %v", err)
	}
}

func TestValidateFieldErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RenderParams)
		field  string
	}{
		{"bad mode", func(p *RenderParams) { p.Mode = "spiral" }, "mode"},
		{"zero cutoff", func(p *RenderParams) { p.Filter.CutoffHz = 0 }, "filter.cutoff_hz"},
		{"zero order", func(p *RenderParams) { p.Filter.Order = 0 }, "filter.order"},
		{"zero window", func(p *RenderParams) { p.RollingWindow = 0 }, "rolling_window"},
		{"tiny bucket", func(p *RenderParams) { p.Bucket = time.Millisecond }, "time_of_day_bucket_s"},
		{"inverted range", func(p *RenderParams) {
			p.StartDate = time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
			p.EndDate = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
		}, "start_date"},
		{"unknown overlay", func(p *RenderParams) { p.Overlay.SecondaryCurve = "phase_of_moon" }, "overlay.secondary_curve"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := validParams()
			tc.mutate(&p)
			err := p.Validate()
			if err == nil {
				t.Fatal("expected a validation error")
			}
			var pe *ParamError
			if !errors.As(err, &pe) {
				t.Fatalf("error type = %T, want *ParamError", err)
			}
			if pe.Field != tc.field {
				t.Errorf("field = %q, want %q", pe.Field, tc.field)
			}
		})
	}
}

func TestValidateCalibrationError(t *testing.T) {
	p := validParams()
	p.Calibration = CalibrationConstants{DryVoltage: 0.5, WetVoltage: 3.3}
	err := p.Validate()
	var ce *CalibrationError
	if !errors.As(err, &ce) {
		t.Fatalf("error = %v, want *CalibrationError", err)
	}
}

func TestValidateSkipsFilterFieldsWhenDisabled(t *testing.T) {
	p := validParams()
	p.Filter = FilterConfig{Enabled: false}
	if err := p.Validate(); err != nil {
		t.Errorf("disabled filter should not be validated: %v", err)
	}
}

func TestNormalizeSyncsBucketRepresentations(t *testing.T) {
	p := RenderParams{BucketSec: 30}
	p.normalize()
	if p.Bucket != 30*time.Second {
		t.Errorf("Bucket = %v, want 30s", p.Bucket)
	}

	p = RenderParams{Bucket: time.Minute}
	p.normalize()
	if p.BucketSec != 60 {
		t.Errorf("BucketSec = %d, want 60", p.BucketSec)
	}
}
