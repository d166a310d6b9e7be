// Package web provides an HTTP status server for the motion-sensor daemon.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/sweeney/motion-sensor/internal/history"
	"github.com/sweeney/motion-sensor/internal/logic"
	"github.com/sweeney/motion-sensor/internal/status"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 1000
	maxConfigBody     = 4 << 10
)

// ThresholdStore reads and replaces the live debounce thresholds.
type ThresholdStore interface {
	Thresholds() logic.Thresholds
	Set(logic.Thresholds) error
}

// EventLister returns recent stored events, newest first.
type EventLister interface {
	Recent(ctx context.Context, limit int) ([]history.Record, error)
}

// Options configures a Server. Thresholds, History and Metrics are optional;
// their endpoints answer 404 when unset.
type Options struct {
	Addr       string
	Tracker    *status.Tracker
	Thresholds ThresholdStore
	History    EventLister
	Metrics    http.Handler
	Logger     *slog.Logger
}

// Server serves the status page, the config endpoint and the event log.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	thresholds ThresholdStore
	history    EventLister
	logger     *slog.Logger
}

// New creates a Server.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Server{
		tracker:    opts.Tracker,
		thresholds: opts.Thresholds,
		history:    opts.History,
		logger:     opts.Logger.With("component", "web"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	mux.HandleFunc("/config", s.handleConfig)
	mux.HandleFunc("/events", s.handleEvents)
	if opts.Metrics != nil {
		mux.Handle("/metrics", opts.Metrics)
	}

	s.httpServer = &http.Server{
		Addr:    opts.Addr,
		Handler: mux,
	}
	return s
}

// Handler returns the request router.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap); err != nil {
		s.logger.Warn("render index", "err", err)
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// handleConfig reports the thresholds on GET and replaces them on POST.
// A POST body may carry any subset of fields; missing ones keep their value.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if s.thresholds == nil {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, status.NewThresholdsJSON(s.thresholds.Thresholds()))

	case http.MethodPost:
		update := status.NewThresholdsJSON(s.thresholds.Thresholds())
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxConfigBody))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&update); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
			return
		}
		th := update.Thresholds()
		if err := s.thresholds.Set(th); err != nil {
			code := http.StatusInternalServerError
			if errors.Is(err, logic.ErrInvalidThresholds) {
				code = http.StatusUnprocessableEntity
			}
			writeError(w, code, err)
			return
		}
		s.tracker.SetThresholds(th)
		s.logger.Info("thresholds updated",
			"time_diff_threshold_ms", th.TimeDiffThresholdMs,
			"min_tuples", th.MinTuples,
			"clean_max_tuples", th.CleanMaxTuples,
			"clean_max_time_diff_ms", th.CleanMaxTimeDiffMs,
			"remote", r.RemoteAddr)
		writeJSON(w, http.StatusOK, status.NewThresholdsJSON(th))

	default:
		w.Header().Set("Allow", "GET, POST")
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
	}
}

type eventsJSON struct {
	Events []history.Record `json:"events"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}

	limit := defaultEventLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("limit must be a positive integer, got %q", v))
			return
		}
		limit = min(n, maxEventLimit)
	}

	records, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Warn("list events", "err", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, eventsJSON{Events: records})
}
