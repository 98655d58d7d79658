package main

import "time"

// overlayColumn describes one selectable secondary curve
type overlayColumn struct {
	Label string // UI label
	YLab  string // secondary axis label
	Scale float64
}

// overlayColumns maps CSV column names to the curves that can be
// superimposed on the voltage panel. The earth channel is shown in
// millivolts like the primary curves.
var overlayColumns = map[string]overlayColumn{
	ColTemp:          {Label: "Temperature", YLab: "Temperature (°C)", Scale: 1},
	ColAirHumidity:   {Label: "Air humidity", YLab: "Air humidity (%)", Scale: 1},
	ColSoilPercent:   {Label: "Soil humidity", YLab: "Soil humidity (%)", Scale: 1},
	ColLightBaseline: {Label: "Light baseline", YLab: "Light intensity", Scale: 1},
	ColLightStressor: {Label: "Light stressor", YLab: "Light intensity", Scale: 1},
	ColChan4:         {Label: "Earth voltage", YLab: "Earth voltage (mV)", Scale: 1000},
}

// OverlayChoice is the API listing of a selectable secondary curve
type OverlayChoice struct {
	Column string `json:"column"`
	Label  string `json:"label"`
}

// OverlayChoices lists the secondary curves in a stable order for the UI
func OverlayChoices() []OverlayChoice {
	order := []string{ColTemp, ColAirHumidity, ColSoilPercent, ColLightBaseline, ColLightStressor, ColChan4}
	out := make([]OverlayChoice, 0, len(order))
	for _, col := range order {
		out = append(out, OverlayChoice{Column: col, Label: overlayColumns[col].Label})
	}
	return out
}

// secondarySeries extracts the chosen overlay column, realigned to the 24h
// axis when the mode calls for it. The primary panel's own scale is never
// touched: the curve rides the secondary Y axis.
func secondarySeries(d *Dataset, column string, mode DisplayMode, bucket time.Duration) (ts []time.Time, values []float64, yLabel string, ok bool) {
	info, found := overlayColumns[column]
	if !found {
		return nil, nil, "", false
	}
	raw, err := d.Column(column)
	if err != nil {
		return nil, nil, "", false
	}
	values = make([]float64, len(raw))
	for i, v := range raw {
		values[i] = v * info.Scale
	}

	switch mode {
	case ModeOverlay24h:
		ts = ToTimeOfDay(d.Timestamps())
	case ModeAverage24h, ModeChannelAverage13:
		ts, values = TimeOfDayAverage(d.Timestamps(), values, bucket)
	default:
		ts = d.Timestamps()
	}
	return ts, values, info.YLab, true
}

// trendSeries builds the grey trend curve, the mean of channels 1-3 in
// millivolts, aligned to the current mode's X axis. The channel-average
// view already plots that mean, so the curve is skipped there.
func trendSeries(d *Dataset, mode DisplayMode, bucket time.Duration) (ts []time.Time, values []float64, ok bool) {
	if mode == ModeChannelAverage13 {
		return nil, nil, false
	}
	values = d.ChannelMean13()
	for i := range values {
		values[i] *= 1000
	}
	switch mode {
	case ModeOverlay24h:
		ts = ToTimeOfDay(d.Timestamps())
	case ModeAverage24h:
		ts, values = TimeOfDayAverage(d.Timestamps(), values, bucket)
	default:
		ts = d.Timestamps()
	}
	return ts, values, true
}
