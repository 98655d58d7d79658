package main

import (
	"encoding/json"
	"errors"
	"io/fs"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// APIServer wires the shell and hub into HTTP handlers
type APIServer struct {
	shell     *AppShell
	hub       *RefreshHub
	config    *Config
	startTime time.Time
}

func NewAPIServer(shell *AppShell, hub *RefreshHub, config *Config) *APIServer {
	return &APIServer{
		shell:     shell,
		hub:       hub,
		config:    config,
		startTime: time.Now(),
	}
}

type apiError struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode JSON response: %v", err)
	}
}

// writeError maps domain error types onto the JSON error envelope
func writeError(w http.ResponseWriter, err error) {
	var paramErr *ParamError
	var dataErr *DataFormatError
	var filterErr *FilterConfigError
	var calErr *CalibrationError

	switch {
	case errors.As(err, &paramErr):
		writeJSON(w, http.StatusBadRequest, apiError{Error: paramErr.Error(), Kind: "param", Field: paramErr.Field})
	case errors.As(err, &calErr):
		writeJSON(w, http.StatusBadRequest, apiError{Error: calErr.Error(), Kind: "calibration"})
	case errors.As(err, &filterErr):
		writeJSON(w, http.StatusBadRequest, apiError{Error: filterErr.Error(), Kind: "filter"})
	case errors.As(err, &dataErr):
		writeJSON(w, http.StatusUnprocessableEntity, apiError{Error: dataErr.Error(), Kind: "data_format"})
	case errors.Is(err, fs.ErrNotExist):
		writeJSON(w, http.StatusNotFound, apiError{Error: err.Error(), Kind: "file_not_found"})
	default:
		writeJSON(w, http.StatusInternalServerError, apiError{Error: err.Error(), Kind: "internal"})
	}
}

// HandleFiles lists capture CSVs available in the data directory, newest
// first
func (a *APIServer) HandleFiles(w http.ResponseWriter, r *http.Request) {
	files, err := ListCaptures(a.config.Data.Dir)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"files": files})
}

// HandleLoad loads a capture file by name. Only files inside the data
// directory are allowed.
func (a *APIServer) HandleLoad(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		File string `json:"file"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid JSON body", Kind: "param"})
		return
	}
	name := filepath.Base(req.File)
	if name == "" || name == "." || !strings.HasSuffix(name, ".csv") {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "file must be a .csv name", Kind: "param", Field: "file"})
		return
	}
	path := filepath.Join(a.config.Data.Dir, name)
	if err := a.shell.LoadFile(path); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a.shell.Status())
}

// HandleParams serves the active render parameters and accepts updates
func (a *APIServer) HandleParams(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"params":   a.shell.Params(),
			"modes":    []DisplayMode{ModeClassic, ModeOverlay24h, ModeAverage24h, ModeChannelAverage13},
			"overlays": OverlayChoices(),
		})
	case http.MethodPost:
		current := a.shell.Params()
		if err := json.NewDecoder(r.Body).Decode(&current); err != nil {
			writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid JSON body", Kind: "param"})
			return
		}
		if err := a.shell.SetParams(current); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, a.shell.Status())
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandlePanels lists the rendered panel names and the render id browsers
// use for cache busting
func (a *APIServer) HandlePanels(w http.ResponseWriter, r *http.Request) {
	st := a.shell.Status()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"state":     st.State,
		"render_id": st.RenderID,
		"panels":    a.shell.Panels(),
	})
}

// HandlePlot serves one rendered panel as PNG
func (a *APIServer) HandlePlot(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("panel")
	if name == "" {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "panel parameter is required", Kind: "param", Field: "panel"})
		return
	}
	panel, ok := a.shell.Panel(name)
	if !ok {
		writeJSON(w, http.StatusNotFound, apiError{Error: "no such panel (is a file loaded?)", Kind: "param", Field: "panel"})
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(panel.PNG)
}

// HandleSummary serves per-series statistics for the loaded dataset
func (a *APIServer) HandleSummary(w http.ResponseWriter, r *http.Request) {
	d := a.shell.Dataset()
	if d == nil {
		writeJSON(w, http.StatusConflict, apiError{Error: "no file loaded", Kind: "state"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"file":      d.Path,
		"summaries": SummarizeDataset(d),
	})
}

// HandleCorrelation serves the Pearson correlation matrix across all
// numeric columns
func (a *APIServer) HandleCorrelation(w http.ResponseWriter, r *http.Request) {
	d := a.shell.Dataset()
	if d == nil {
		writeJSON(w, http.StatusConflict, apiError{Error: "no file loaded", Kind: "state"})
		return
	}
	m, err := Correlate(d)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// HandleSpectrum serves an averaged power spectrum for one electrode
// channel
func (a *APIServer) HandleSpectrum(w http.ResponseWriter, r *http.Request) {
	d := a.shell.Dataset()
	if d == nil {
		writeJSON(w, http.StatusConflict, apiError{Error: "no file loaded", Kind: "state"})
		return
	}
	channel := 1
	if v := r.URL.Query().Get("channel"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, apiError{Error: "channel must be 1-4", Kind: "param", Field: "channel"})
			return
		}
		channel = n
	}
	fftSize := 1024
	if v := r.URL.Query().Get("fft_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, apiError{Error: "fft_size must be an integer", Kind: "param", Field: "fft_size"})
			return
		}
		fftSize = n
	}
	spec, err := ComputeSpectrum(d, channel, fftSize)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, spec)
}

// HandleStatus reports application and host state
func (a *APIServer) HandleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"version":          Version,
		"latest_version":   GetLatestVersion(),
		"update_available": UpdateAvailable(),
		"uptime_seconds":   int(time.Since(a.startTime).Seconds()),
		"shell":            a.shell.Status(),
		"ws_clients":       a.hub.ClientCount(),
	}

	if hi, err := host.Info(); err == nil {
		status["host"] = map[string]interface{}{
			"hostname":       hi.Hostname,
			"os":             hi.OS,
			"platform":       hi.Platform,
			"uptime_seconds": hi.Uptime,
		}
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		status["memory"] = map[string]interface{}{
			"total":        vm.Total,
			"used":         vm.Used,
			"used_percent": vm.UsedPercent,
		}
	}
	if avg, err := load.Avg(); err == nil {
		status["load"] = map[string]float64{
			"load1":  avg.Load1,
			"load5":  avg.Load5,
			"load15": avg.Load15,
		}
	}
	writeJSON(w, http.StatusOK, status)
}

// HandleHealth is the liveness endpoint
func (a *APIServer) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
