package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWriteErrorEnvelope(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		kind   string
		field  string
	}{
		{"param", &ParamError{Field: "cutoff_hz", Message: "must be positive"}, http.StatusBadRequest, "param", "cutoff_hz"},
		{"calibration", &CalibrationError{Dry: 0.5, Wet: 3.3}, http.StatusBadRequest, "calibration", ""},
		{"filter", &FilterConfigError{CutoffHz: 1, SampleRateHz: 1}, http.StatusBadRequest, "filter", ""},
		{"data format", &DataFormatError{Path: "run.csv", Reason: "no valid rows"}, http.StatusUnprocessableEntity, "data_format", ""},
		{"missing file", fmt.Errorf("failed to open capture: %w", fs.ErrNotExist), http.StatusNotFound, "file_not_found", ""},
		{"internal", errors.New("boom"), http.StatusInternalServerError, "internal", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, tc.err)
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d", rec.Code, tc.status)
			}
			var e apiError
			if err := json.NewDecoder(rec.Body).Decode(&e); err != nil {
				t.Fatalf("failed to decode envelope: %v", err)
			}
			if e.Kind != tc.kind {
				t.Errorf("kind = %q, want %q", e.Kind, tc.kind)
			}
			if e.Field != tc.field {
				t.Errorf("field = %q, want %q", e.Field, tc.field)
			}
			if e.Error == "" {
				t.Error("error message is empty")
			}
		})
	}
}

func TestHandleLoadMissingFile(t *testing.T) {
	shell := testShell()
	api := NewAPIServer(shell, NewRefreshHub(), &Config{Data: DataConfig{Dir: t.TempDir()}})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/load", strings.NewReader(`{"file":"nope.csv"}`))
	api.HandleLoad(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	var e apiError
	if err := json.NewDecoder(rec.Body).Decode(&e); err != nil {
		t.Fatalf("failed to decode envelope: %v", err)
	}
	if e.Kind != "file_not_found" {
		t.Errorf("kind = %q, want file_not_found", e.Kind)
	}
	if shell.State() != StateNoFileLoaded {
		t.Errorf("state = %v, want %v", shell.State(), StateNoFileLoaded)
	}
}

func TestHandleCorrelation(t *testing.T) {
	shell := testShell()
	if err := shell.LoadFile(writeRenderableCapture(t, 120)); err != nil {
		t.Fatalf("failed to load capture: %v", err)
	}
	api := NewAPIServer(shell, NewRefreshHub(), &Config{})

	rec := httptest.NewRecorder()
	api.HandleCorrelation(rec, httptest.NewRequest(http.MethodGet, "/api/correlation", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	var m CorrelationMatrix
	if err := json.NewDecoder(rec.Body).Decode(&m); err != nil {
		t.Fatalf("failed to decode matrix: %v", err)
	}
	if len(m.Columns) != len(correlationColumns) {
		t.Fatalf("columns = %d, want %d", len(m.Columns), len(correlationColumns))
	}
	for i := range m.Columns {
		if m.Values[i][i] != 1 {
			t.Errorf("diagonal [%d] = %v, want 1", i, m.Values[i][i])
		}
	}
}

func TestHandleCorrelationNoFile(t *testing.T) {
	api := NewAPIServer(testShell(), NewRefreshHub(), &Config{})

	rec := httptest.NewRecorder()
	api.HandleCorrelation(rec, httptest.NewRequest(http.MethodGet, "/api/correlation", nil))

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusConflict)
	}
	var e apiError
	if err := json.NewDecoder(rec.Body).Decode(&e); err != nil {
		t.Fatalf("failed to decode envelope: %v", err)
	}
	if e.Kind != "state" {
		t.Errorf("kind = %q, want state", e.Kind)
	}
}
