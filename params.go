package main

import (
	"fmt"
	"time"
)

// DisplayMode selects which renderer path executes
type DisplayMode string

const (
	// ModeClassic plots the full time range, one panel per sensor group
	ModeClassic DisplayMode = "classic"
	// ModeOverlay24h superimposes one curve per calendar day over a 24h axis
	ModeOverlay24h DisplayMode = "overlay24h"
	// ModeAverage24h averages each channel by time of day across all days
	ModeAverage24h DisplayMode = "average24h"
	// ModeChannelAverage13 plots the arithmetic mean of channels 1-3
	ModeChannelAverage13 DisplayMode = "chanavg13"
)

// ParseDisplayMode validates a mode string from config or the API
func ParseDisplayMode(s string) (DisplayMode, error) {
	switch DisplayMode(s) {
	case ModeClassic, ModeOverlay24h, ModeAverage24h, ModeChannelAverage13:
		return DisplayMode(s), nil
	}
	return "", fmt.Errorf("unknown display mode %q", s)
}

// FilterConfig is the low-pass filter snapshot for one render cycle
type FilterConfig struct {
	Enabled  bool    `json:"enabled" yaml:"enabled"`
	CutoffHz float64 `json:"cutoff_hz" yaml:"cutoff_hz"`
	Order    int     `json:"order" yaml:"order"`
}

// CalibrationConstants define the linear soil moisture mapping.
// DryVoltage is the probe reading in dry soil, WetVoltage in water.
type CalibrationConstants struct {
	DryVoltage float64 `json:"dry_voltage" yaml:"dry_voltage"`
	WetVoltage float64 `json:"wet_voltage" yaml:"wet_voltage"`
}

// SoilPercent maps a raw probe voltage to 0-100% moisture, clamped
func (c CalibrationConstants) SoilPercent(raw float64) float64 {
	percent := (c.DryVoltage - raw) / (c.DryVoltage - c.WetVoltage) * 100
	if percent < 0 {
		return 0
	}
	if percent > 100 {
		return 100
	}
	return percent
}

// OverlayOptions are the visual toggles, each composable with any mode
type OverlayOptions struct {
	SigmaBand      bool   `json:"sigma_band"`      // rolling ±1σ band around each curve
	SubtractChan4  bool   `json:"subtract_chan4"`  // subtract the earth channel from channels 1-3
	TrendLine      bool   `json:"trend_line"`      // grey chan1-3 mean trend curve
	SecondaryCurve string `json:"secondary_curve"` // column name for the secondary axis, empty = none
}

// RenderParams is the validated parameter bundle handed to a render cycle.
// It is an immutable snapshot: the shell replaces it wholesale, renderers
// only read it.
type RenderParams struct {
	Mode          DisplayMode          `json:"mode"`
	Filter        FilterConfig         `json:"filter"`
	Calibration   CalibrationConstants `json:"calibration"`
	Overlay       OverlayOptions       `json:"overlay"`
	RollingWindow int                  `json:"rolling_window"` // samples
	Bucket        time.Duration        `json:"-"`
	BucketSec     int                  `json:"time_of_day_bucket_s"`
	StartDate     time.Time            `json:"start_date,omitzero"`
	EndDate       time.Time            `json:"end_date,omitzero"`
}

// ParamError reports a validation failure for one field
type ParamError struct {
	Field   string
	Message string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// CalibrationError reports unusable calibration constants
type CalibrationError struct {
	Dry, Wet float64
}

func (e *CalibrationError) Error() string {
	return fmt.Sprintf("dry voltage %.3f must be greater than wet voltage %.3f", e.Dry, e.Wet)
}

// Validate fails fast with a field-level error before the bundle reaches
// the renderers
func (p *RenderParams) Validate() error {
	if _, err := ParseDisplayMode(string(p.Mode)); err != nil {
		return &ParamError{Field: "mode", Message: err.Error()}
	}
	if p.Filter.Enabled {
		if p.Filter.CutoffHz <= 0 {
			return &ParamError{Field: "filter.cutoff_hz", Message: "must be greater than 0"}
		}
		if p.Filter.Order < 1 {
			return &ParamError{Field: "filter.order", Message: "must be at least 1"}
		}
	}
	if p.Calibration.DryVoltage <= p.Calibration.WetVoltage {
		return &CalibrationError{Dry: p.Calibration.DryVoltage, Wet: p.Calibration.WetVoltage}
	}
	if p.RollingWindow < 1 {
		return &ParamError{Field: "rolling_window", Message: "must be at least 1 sample"}
	}
	if p.Bucket < time.Second || p.Bucket > 24*time.Hour {
		return &ParamError{Field: "time_of_day_bucket_s", Message: "must be between 1s and 24h"}
	}
	if !p.StartDate.IsZero() && !p.EndDate.IsZero() && p.StartDate.After(p.EndDate) {
		return &ParamError{Field: "start_date", Message: "must not be after end_date"}
	}
	if p.Overlay.SecondaryCurve != "" {
		if _, ok := overlayColumns[p.Overlay.SecondaryCurve]; !ok {
			return &ParamError{Field: "overlay.secondary_curve", Message: fmt.Sprintf("unknown column %q", p.Overlay.SecondaryCurve)}
		}
	}
	return nil
}

// normalize keeps the duplicate bucket representations in sync after JSON
// decoding (the API carries seconds, computations use time.Duration)
func (p *RenderParams) normalize() {
	if p.BucketSec > 0 {
		p.Bucket = time.Duration(p.BucketSec) * time.Second
	} else if p.Bucket > 0 {
		p.BucketSec = int(p.Bucket / time.Second)
	}
}
