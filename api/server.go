// Package api serves the telemetry query API over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/OlexDemOn/IoT-app/data-simulator/events"
	"github.com/OlexDemOn/IoT-app/data-simulator/snapshot"
	"github.com/OlexDemOn/IoT-app/data-simulator/telemetry"
	"github.com/rs/zerolog/log"
)

// Service is the query surface the HTTP handlers depend on
type Service interface {
	ListMachines() []snapshot.MachineView
	MachineHistory(ctx context.Context, machine string, lookbackMinutes int) (map[string]*telemetry.TopicHistory, error)
	GeneratePastData(ctx context.Context, machine string, start, end time.Time, intervalSeconds int) ([]events.TelemetryRecord, error)
}

// Server of the HTTP API
type Server struct {
	service Service
	metrics http.Handler
	http    *http.Server
}

// New creates the server; metrics may be nil to leave /metrics out.
func New(addr string, service Service, metrics http.Handler) *Server {
	s := &Server{service: service, metrics: metrics}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /machines", s.handleMachines)
	mux.HandleFunc("GET /machine-data", s.handleMachineData)
	mux.HandleFunc("POST /generate-past-data", s.handleGeneratePastData)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	return mux
}

// ListenAndServe blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	log.Info().Msgf("HTTP API listening on %s", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("Welcome to the API!"))
}

// handleMachines handles GET /machines
func (s *Server) handleMachines(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.service.ListMachines())
}

// handleMachineData handles GET /machine-data?machine_name=&lookback_minutes=
func (s *Server) handleMachineData(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	machine := query.Get("machine_name")
	if !telemetry.ValidMachineName(machine) {
		writeError(w, http.StatusBadRequest, "Invalid machine name")
		return
	}
	lookback := telemetry.DefaultLookbackMinutes
	if raw := query.Get("lookback_minutes"); raw != "" {
		v, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || v <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid lookback_minutes value")
			return
		}
		lookback = v
	}

	history, err := s.service.MachineHistory(r.Context(), machine, lookback)
	if err != nil {
		writeServiceError(w, err, "Error fetching machine data")
		return
	}
	writeJSON(w, http.StatusOK, history)
}

type generateRequest struct {
	MachineName     string `json:"machine_name"`
	StartDate       string `json:"start_date"`
	EndDate         string `json:"end_date"`
	IntervalSeconds *int   `json:"interval_seconds"`
}

type generateResponse struct {
	Message       string                   `json:"message"`
	GeneratedData []events.TelemetryRecord `json:"generated_data"`
}

// handleGeneratePastData handles POST /generate-past-data
func (s *Server) handleGeneratePastData(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.MachineName == "" || req.StartDate == "" || req.EndDate == "" {
		writeError(w, http.StatusBadRequest, "Missing required parameters")
		return
	}
	start, err := ParseISOTime(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format")
		return
	}
	end, err := ParseISOTime(req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format")
		return
	}
	interval := telemetry.DefaultIntervalSeconds
	if req.IntervalSeconds != nil {
		interval = *req.IntervalSeconds
	}

	generated, err := s.service.GeneratePastData(r.Context(), req.MachineName, start, end, interval)
	if err != nil {
		writeServiceError(w, err, "Error generating past data")
		return
	}
	writeJSON(w, http.StatusOK, generateResponse{
		Message:       "Data generation complete",
		GeneratedData: generated,
	})
}

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseISOTime parses ISO-8601 dates and date-times. Values without a zone
// are taken as UTC.
func ParseISOTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	var lastErr error
	for _, layout := range isoLayouts {
		t, err := time.ParseInLocation(layout, value, time.UTC)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
