// Package server exposes the acquisition loop over HTTP
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"jordanella.com/autoclick-go/internal/acquire"
	"jordanella.com/autoclick-go/internal/database"
	"jordanella.com/autoclick-go/internal/display"
	"jordanella.com/autoclick-go/internal/input"
	"jordanella.com/autoclick-go/internal/logging"
	"jordanella.com/autoclick-go/internal/metrics"
	"jordanella.com/autoclick-go/pkg/templates"
)

// maxBodyBytes limits JSON request bodies
const maxBodyBytes = 1 << 20

// Searcher runs one acquisition
type Searcher interface {
	Run(ctx context.Context, tmpls []templates.Template, cfg acquire.Config) (acquire.Result, error)
}

// History lists journaled runs
type History interface {
	RecentRuns(limit int) ([]*database.SearchRun, error)
}

// HealthReporter reports whether the desktop is usable
type HealthReporter interface {
	Healthy() error
}

// Options wires the server's collaborators. Pointer, Metrics, History, Health and Errors are optional.
// TemplateDir confines template names sent in a search request; when empty,
// requests can only use the configured Templates.
type Options struct {
	Searcher       Searcher
	Monitors       display.Enumerator
	Pointer        input.Pointer
	Templates      []templates.Template
	TemplateDir    string
	Config         acquire.Config
	Metrics        *metrics.Recorder
	History        History
	Health         HealthReporter
	Errors         *logging.ErrorReporter
	AllowedOrigins []string
	Logger         *logging.Logger
}

// Server serializes searches triggered over HTTP
type Server struct {
	opts   Options
	logger *logging.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	base    context.Context
}

// New creates a server; base cancels any running search when done
func New(base context.Context, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewLogger("server")
	}
	if base == nil {
		base = context.Background()
	}
	return &Server{opts: opts, logger: logger, base: base}
}

// SearchRequest overrides the configured search; zero fields keep defaults
type SearchRequest struct {
	Templates  []string `json:"templates"`
	Threshold  *float64 `json:"threshold"`
	RetryMS    *int     `json:"retry_ms"`
	TimeoutMS  *int     `json:"timeout_ms"`
	ConfirmKey string   `json:"confirm_key"`
}

// SearchResponse is the JSON rendering of a search result
type SearchResponse struct {
	RunID       string             `json:"run_id"`
	State       acquire.State      `json:"state"`
	Found       bool               `json:"found"`
	X           int                `json:"x"`
	Y           int                `json:"y"`
	BestScore   float64            `json:"best_score"`
	Best        *acquire.Candidate `json:"best,omitempty"`
	Iterations  int                `json:"iterations"`
	ElapsedMS   int64              `json:"elapsed_ms"`
	ActionError string             `json:"action_error,omitempty"`
	Summary     string             `json:"summary"`
	Warnings    []string           `json:"warnings,omitempty"`
}

// MonitorInfo is one entry of GET /monitors
type MonitorInfo struct {
	Index  int `json:"index"`
	Left   int `json:"left"`
	Top    int `json:"top"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// PositionResponse is the cursor location with its monitor (0 when outside all)
type PositionResponse struct {
	X       int `json:"x"`
	Y       int `json:"y"`
	Monitor int `json:"monitor"`
}

// Handler builds the router
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if s.opts.Metrics != nil {
		r.Use(s.opts.Metrics.Middleware)
	}
	if len(s.opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.opts.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if s.opts.Health != nil {
			if err := s.opts.Health.Healthy(); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(err.Error()))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})
	r.Get("/monitors", s.handleMonitors)
	r.Post("/search", s.handleSearch)
	r.Post("/abort", s.handleAbort)
	r.Get("/position", s.handlePosition)
	r.Get("/runs", s.handleRuns)
	r.Get("/errors", s.handleErrors)
	if s.opts.Metrics != nil {
		r.Get("/metrics", s.opts.Metrics.Handler().ServeHTTP)
	}

	return r
}

func (s *Server) handleMonitors(w http.ResponseWriter, r *http.Request) {
	monitors, err := s.opts.Monitors.Monitors()
	if err != nil {
		writeJSONError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	out := make([]MonitorInfo, len(monitors))
	for i, m := range monitors {
		out[i] = MonitorInfo{Index: i + 1, Left: m.Left, Top: m.Top, Width: m.Width, Height: m.Height}
	}
	writeJSON(w, http.StatusOK, map[string]any{"monitors": out})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if r.ContentLength != 0 {
		ct := r.Header.Get("Content-Type")
		if ct != "" && !strings.HasPrefix(strings.ToLower(ct), "application/json") {
			writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	cfg := s.opts.Config
	if req.Threshold != nil {
		cfg.Threshold = *req.Threshold
	}
	if req.RetryMS != nil {
		cfg.RetryInterval = time.Duration(*req.RetryMS) * time.Millisecond
	}
	if req.TimeoutMS != nil {
		cfg.Timeout = time.Duration(*req.TimeoutMS) * time.Millisecond
	}
	if req.ConfirmKey != "" {
		cfg.ConfirmKey = req.ConfirmKey
	}

	tmpls := s.opts.Templates
	var warnings []string
	if len(req.Templates) > 0 {
		if s.opts.TemplateDir == "" {
			writeJSONError(w, http.StatusForbidden, "request templates are disabled: no template directory configured")
			return
		}
		paths, err := resolveTemplates(s.opts.TemplateDir, req.Templates)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		var warns []templates.Warning
		tmpls, warns = templates.Load(paths)
		for _, warn := range warns {
			warnings = append(warnings, warn.Error())
		}
	}

	ctx, ok := s.begin(r.Context())
	if !ok {
		writeJSONError(w, http.StatusConflict, "a search is already running")
		return
	}
	defer s.end()

	// An aborted search still has a result to report
	result, err := s.opts.Searcher.Run(ctx, tmpls, cfg)
	if err != nil && result.State != acquire.StateAborted {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, acquire.ErrNoTemplates), errors.Is(err, acquire.ErrInvalidConfig):
			status = http.StatusBadRequest
		case errors.Is(err, acquire.ErrNoMonitors):
			status = http.StatusServiceUnavailable
		}
		writeJSONError(w, status, err.Error())
		return
	}

	resp := SearchResponse{
		RunID:      result.RunID,
		State:      result.State,
		Found:      result.Found(),
		X:          result.Center.X,
		Y:          result.Center.Y,
		BestScore:  result.BestScore,
		Best:       result.Best,
		Iterations: result.Iterations,
		ElapsedMS:  result.Elapsed.Milliseconds(),
		Summary:    result.Summary(),
		Warnings:   warnings,
	}
	if result.ActionErr != nil {
		resp.ActionError = result.ActionErr.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAbort(w http.ResponseWriter, r *http.Request) {
	if !s.Abort() {
		writeJSONError(w, http.StatusConflict, "no search is running")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"aborting": true})
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	if s.opts.Pointer == nil {
		writeJSONError(w, http.StatusNotImplemented, "pointer not available")
		return
	}
	x, y, err := s.opts.Pointer.Position()
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := PositionResponse{X: x, Y: y}
	if monitors, err := s.opts.Monitors.Monitors(); err == nil {
		resp.Monitor = display.Locate(x, y, monitors)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.opts.History == nil {
		writeJSONError(w, http.StatusNotFound, "journal disabled")
		return
	}
	runs, err := s.opts.History.RecentRuns(20)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// resolveTemplates maps request names onto files under dir. Absolute names and
// names escaping dir are rejected.
func resolveTemplates(dir string, names []string) ([]string, error) {
	paths := make([]string, len(names))
	for i, name := range names {
		if !filepath.IsLocal(name) {
			return nil, fmt.Errorf("template %q must be a relative path inside the template directory", name)
		}
		paths[i] = filepath.Join(dir, name)
	}
	return paths, nil
}

// ErrorInfo is one entry of GET /errors
type ErrorInfo struct {
	Time      time.Time `json:"time"`
	Category  string    `json:"category"`
	Severity  string    `json:"severity"`
	Component string    `json:"component"`
	Message   string    `json:"message"`
	Error     string    `json:"error,omitempty"`
}

// ErrorsResponse summarises recoverable errors seen by the process
type ErrorsResponse struct {
	Total      int            `json:"total"`
	ByCategory map[string]int `json:"by_category"`
	Recent     []ErrorInfo    `json:"recent"`
}

func (s *Server) handleErrors(w http.ResponseWriter, r *http.Request) {
	if s.opts.Errors == nil {
		writeJSONError(w, http.StatusNotFound, "error reporting disabled")
		return
	}
	stats := s.opts.Errors.Stats()
	resp := ErrorsResponse{
		Total:      stats.Total,
		ByCategory: make(map[string]int, len(stats.ByCategory)),
		Recent:     []ErrorInfo{},
	}
	for c, n := range stats.ByCategory {
		resp.ByCategory[string(c)] = n
	}
	for _, rep := range s.opts.Errors.GetRecentErrors(20) {
		info := ErrorInfo{
			Time:      rep.Timestamp,
			Category:  string(rep.Category),
			Severity:  string(rep.Severity),
			Component: rep.Component,
			Message:   rep.Message,
		}
		if rep.Error != nil {
			info.Error = rep.Error.Error()
		}
		resp.Recent = append(resp.Recent, info)
	}
	writeJSON(w, http.StatusOK, resp)
}

// begin claims the single search slot
func (s *Server) begin(parent context.Context) (context.Context, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil, false
	}
	ctx, cancel := context.WithCancel(parent)
	stop := context.AfterFunc(s.base, cancel)
	s.running = true
	s.cancel = func() {
		stop()
		cancel()
	}
	return ctx, true
}

func (s *Server) end() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.running, s.cancel = false, nil
}

// Abort cancels the running search, reporting whether there was one
func (s *Server) Abort() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return false
	}
	s.logger.Info("abort requested")
	s.cancel()
	return true
}

// Running reports whether a search is in progress
func (s *Server) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": msg,
		"code":  status,
	})
}
