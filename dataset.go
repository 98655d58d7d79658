package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// CSV column names as written by the capture scripts
const (
	ColTimestamp     = "timestamp"
	ColChan1         = "chan1_voltage_V"
	ColChan2         = "chan2_voltage_V"
	ColChan3         = "chan3_voltage_V"
	ColChan4         = "chan4_voltage_V"
	ColTemp          = "temp_degC"
	ColAirHumidity   = "humidity_air_percent"
	ColSoilMoisture  = "soil_moisture"
	ColLightBaseline = "light_intensity_baseline"
	ColLightStressor = "light_intensity_stressor"
	ColSoilPercent   = "humidity_soil_percent" // derived at load time
)

// numericColumns lists the required value columns in file order
var numericColumns = []string{
	ColChan1, ColChan2, ColChan3, ColChan4,
	ColTemp, ColAirHumidity, ColSoilMoisture,
	ColLightBaseline, ColLightStressor,
}

// timestampLayouts are tried in order when parsing the time column
var timestampLayouts = []string{
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
	time.RFC3339,
	"2006/01/02 15:04:05",
}

// DataFormatError reports a CSV file that cannot be interpreted as a capture
type DataFormatError struct {
	Path   string
	Reason string
}

func (e *DataFormatError) Error() string {
	return fmt.Sprintf("unreadable capture %s: %s", e.Path, e.Reason)
}

// Sample is one timestamped capture row
type Sample struct {
	Timestamp     time.Time
	Chan          [4]float64 // electrode voltages in volts, Chan[3] is the earth reference
	TempC         float64
	AirHumidity   float64
	SoilRaw       float64 // raw probe voltage
	SoilPercent   float64 // derived via calibration, clamped to [0,100]
	LightBaseline float64
	LightStressor float64
}

// Dataset is the ordered sample sequence for one capture file. It is
// replaced wholesale on reload and never mutated in place: processing steps
// operate on copies.
type Dataset struct {
	Path        string
	Samples     []Sample
	Calibration CalibrationConstants
	Skipped     int // malformed rows dropped at load time
}

// LoadDataset reads a capture CSV and derives the soil moisture percentage
// eagerly so downstream consumers never recompute it. Malformed data rows
// are skipped; a file without a usable timestamp column fails with
// *DataFormatError.
func LoadDataset(path string, cal CalibrationConstants) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture: %w", err)
	}
	defer f.Close()

	ds, err := readDataset(f, path, cal)
	if err != nil {
		return nil, err
	}
	if ds.Skipped > 0 {
		log.Printf("Dataset %s: skipped %d malformed rows", path, ds.Skipped)
	}
	return ds, nil
}

func readDataset(r io.Reader, path string, cal CalibrationConstants) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, &DataFormatError{Path: path, Reason: "empty file"}
	}

	colIdx := make(map[string]int, len(header))
	for i, name := range header {
		colIdx[strings.TrimSpace(name)] = i
	}

	// The time column is either named explicitly or the leading column.
	tsIdx, ok := colIdx[ColTimestamp]
	if !ok {
		tsIdx = 0
	}
	for _, col := range numericColumns {
		if _, ok := colIdx[col]; !ok {
			return nil, &DataFormatError{Path: path, Reason: fmt.Sprintf("missing column %q", col)}
		}
	}

	ds := &Dataset{Path: path, Calibration: cal}
	anyTimestamp := false
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			ds.Skipped++
			continue
		}
		if tsIdx >= len(record) {
			ds.Skipped++
			continue
		}
		ts, ok := parseTimestamp(record[tsIdx])
		if !ok {
			ds.Skipped++
			continue
		}
		anyTimestamp = true

		var s Sample
		s.Timestamp = ts
		bad := false
		read := func(col string) float64 {
			idx := colIdx[col]
			if idx >= len(record) {
				bad = true
				return 0
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(record[idx]), 64)
			if err != nil {
				bad = true
				return 0
			}
			return v
		}
		s.Chan[0] = read(ColChan1)
		s.Chan[1] = read(ColChan2)
		s.Chan[2] = read(ColChan3)
		s.Chan[3] = read(ColChan4)
		s.TempC = read(ColTemp)
		s.AirHumidity = read(ColAirHumidity)
		s.SoilRaw = read(ColSoilMoisture)
		s.LightBaseline = read(ColLightBaseline)
		s.LightStressor = read(ColLightStressor)
		if bad {
			ds.Skipped++
			continue
		}
		s.SoilPercent = cal.SoilPercent(s.SoilRaw)
		ds.Samples = append(ds.Samples, s)
	}

	if len(ds.Samples) == 0 {
		if !anyTimestamp {
			return nil, &DataFormatError{Path: path, Reason: "no usable timestamp column"}
		}
		return nil, &DataFormatError{Path: path, Reason: "no valid rows"}
	}
	return ds, nil
}

func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Recalibrate returns a copy with the soil moisture percentage rederived
// from new calibration constants
func (d *Dataset) Recalibrate(cal CalibrationConstants) *Dataset {
	out := &Dataset{Path: d.Path, Calibration: cal, Skipped: d.Skipped}
	out.Samples = make([]Sample, len(d.Samples))
	copy(out.Samples, d.Samples)
	for i := range out.Samples {
		out.Samples[i].SoilPercent = cal.SoilPercent(out.Samples[i].SoilRaw)
	}
	return out
}

// TimeRange returns the first and last timestamps
func (d *Dataset) TimeRange() (time.Time, time.Time) {
	if len(d.Samples) == 0 {
		return time.Time{}, time.Time{}
	}
	return d.Samples[0].Timestamp, d.Samples[len(d.Samples)-1].Timestamp
}

// Slice returns a copy restricted to [start, end]. Zero bounds are open.
func (d *Dataset) Slice(start, end time.Time) *Dataset {
	out := &Dataset{Path: d.Path, Calibration: d.Calibration}
	for _, s := range d.Samples {
		if !start.IsZero() && s.Timestamp.Before(start) {
			continue
		}
		if !end.IsZero() && s.Timestamp.After(end) {
			continue
		}
		out.Samples = append(out.Samples, s)
	}
	return out
}

// TrimWarmup drops the noisy start of a capture: electrode contact settles
// for a while after hookup. Captures spanning a day or more lose the first
// hour, anything over half an hour loses the first ten minutes.
func (d *Dataset) TrimWarmup() *Dataset {
	first, last := d.TimeRange()
	span := last.Sub(first)
	var cutoff time.Time
	switch {
	case span >= 24*time.Hour:
		cutoff = first.Add(time.Hour)
	case span >= 30*time.Minute:
		cutoff = first.Add(10 * time.Minute)
	default:
		out := &Dataset{Path: d.Path, Calibration: d.Calibration}
		out.Samples = append(out.Samples, d.Samples...)
		return out
	}
	out := &Dataset{Path: d.Path, Calibration: d.Calibration}
	for _, s := range d.Samples {
		if s.Timestamp.After(cutoff) {
			out.Samples = append(out.Samples, s)
		}
	}
	return out
}

// Timestamps returns the sample instants
func (d *Dataset) Timestamps() []time.Time {
	ts := make([]time.Time, len(d.Samples))
	for i, s := range d.Samples {
		ts[i] = s.Timestamp
	}
	return ts
}

// Column extracts one value series by CSV column name (or the derived
// humidity_soil_percent)
func (d *Dataset) Column(name string) ([]float64, error) {
	out := make([]float64, len(d.Samples))
	for i, s := range d.Samples {
		switch name {
		case ColChan1:
			out[i] = s.Chan[0]
		case ColChan2:
			out[i] = s.Chan[1]
		case ColChan3:
			out[i] = s.Chan[2]
		case ColChan4:
			out[i] = s.Chan[3]
		case ColTemp:
			out[i] = s.TempC
		case ColAirHumidity:
			out[i] = s.AirHumidity
		case ColSoilMoisture:
			out[i] = s.SoilRaw
		case ColSoilPercent:
			out[i] = s.SoilPercent
		case ColLightBaseline:
			out[i] = s.LightBaseline
		case ColLightStressor:
			out[i] = s.LightStressor
		default:
			return nil, fmt.Errorf("unknown column %q", name)
		}
	}
	return out, nil
}

// ChannelMean13 returns the arithmetic mean of channels 1-3 per sample
func (d *Dataset) ChannelMean13() []float64 {
	out := make([]float64, len(d.Samples))
	for i, s := range d.Samples {
		out[i] = (s.Chan[0] + s.Chan[1] + s.Chan[2]) / 3
	}
	return out
}

// SubtractChan4 returns a copy with the earth channel subtracted from
// channels 1-3
func (d *Dataset) SubtractChan4() *Dataset {
	out := &Dataset{Path: d.Path, Calibration: d.Calibration}
	out.Samples = make([]Sample, len(d.Samples))
	copy(out.Samples, d.Samples)
	for i := range out.Samples {
		ref := out.Samples[i].Chan[3]
		out.Samples[i].Chan[0] -= ref
		out.Samples[i].Chan[1] -= ref
		out.Samples[i].Chan[2] -= ref
	}
	return out
}

// DayGroup is one calendar day of samples
type DayGroup struct {
	Day     time.Time // midnight of the calendar day
	Samples []Sample
}

// SplitByDay groups samples by calendar day, ordered chronologically
func (d *Dataset) SplitByDay() []DayGroup {
	byDay := make(map[time.Time][]Sample)
	for _, s := range d.Samples {
		y, m, day := s.Timestamp.Date()
		key := time.Date(y, m, day, 0, 0, 0, 0, s.Timestamp.Location())
		byDay[key] = append(byDay[key], s)
	}
	groups := make([]DayGroup, 0, len(byDay))
	for day, samples := range byDay {
		groups = append(groups, DayGroup{Day: day, Samples: samples})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Day.Before(groups[j].Day) })
	return groups
}

// ListCaptures returns the CSV files available under dir, newest first
func ListCaptures(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read data directory: %w", err)
	}
	type fileInfo struct {
		name string
		mod  time.Time
	}
	var files []fileInfo
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), ".csv") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, fileInfo{name: e.Name(), mod: info.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].mod.After(files[j].mod) })
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.name
	}
	return names, nil
}
