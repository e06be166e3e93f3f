// Package api exposes the HTTP interface for triggering runs and reading
// run history.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/moltpulse/moltpulse/internal/availability"
	"github.com/moltpulse/moltpulse/internal/coordinator"
	"github.com/moltpulse/moltpulse/internal/orchestrator"
	"github.com/moltpulse/moltpulse/internal/pulse"
	"github.com/moltpulse/moltpulse/internal/storage"
	"github.com/moltpulse/moltpulse/internal/trace"
)

// Runner triggers collection runs. Implemented by orchestrator.Orchestrator.
type Runner interface {
	Run(ctx context.Context, params orchestrator.RunParams) (*orchestrator.RunResult, error)
	Probe() []availability.Status
}

// Server wires HTTP handlers to the runner and the trace store.
type Server struct {
	router chi.Router
	runner Runner
	traces storage.TraceStore
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(runner Runner, traces storage.TraceStore, logger *zap.Logger) *Server {
	s := &Server{
		runner: runner,
		traces: traces,
		logger: logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(5 * time.Minute))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/collectors", s.listCollectors)
		r.Route("/runs", func(r chi.Router) {
			r.Post("/", s.triggerRun)
			r.Get("/", s.listRuns)
			r.Route("/{run_id}", func(r chi.Router) {
				r.Get("/", s.getRun)
				r.Get("/trace", s.getTrace)
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, s.logger)
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if _, err := s.traces.ListRuns(r.Context(), 1); err != nil {
		writeError(w, http.StatusServiceUnavailable, "trace store unavailable", s.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"}, s.logger)
}

func (s *Server) listCollectors(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"collectors": s.runner.Probe()}, s.logger)
}

type runRequest struct {
	Domain            string   `json:"domain"`
	Profile           string   `json:"profile"`
	ReportType        string   `json:"report_type"`
	Depth             string   `json:"depth"`
	Days              int      `json:"days"`
	Limit             int      `json:"limit"`
	Retries           int      `json:"retries"`
	TimeoutSeconds    int      `json:"timeout_seconds"`
	DeadlineSeconds   int      `json:"deadline_seconds"`
	Collectors        []string `json:"collectors"`
	ExcludeCollectors []string `json:"exclude_collectors"`
	NoCache           bool     `json:"no_cache"`
}

func (s *Server) triggerRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON", s.logger)
		return
	}
	if req.Domain == "" {
		writeError(w, http.StatusBadRequest, "missing domain", s.logger)
		return
	}

	res, err := s.runner.Run(r.Context(), orchestrator.RunParams{
		Domain:            req.Domain,
		Profile:           req.Profile,
		ReportType:        req.ReportType,
		Depth:             pulse.Depth(req.Depth),
		Days:              req.Days,
		Limit:             req.Limit,
		Retries:           req.Retries,
		Timeout:           time.Duration(req.TimeoutSeconds) * time.Second,
		Deadline:          time.Duration(req.DeadlineSeconds) * time.Second,
		Collectors:        req.Collectors,
		ExcludeCollectors: req.ExcludeCollectors,
		NoCache:           req.NoCache,
	})
	if err != nil {
		switch {
		case errors.Is(err, coordinator.ErrNoCollectors):
			writeError(w, http.StatusServiceUnavailable, err.Error(), s.logger)
		case errors.Is(err, context.DeadlineExceeded):
			writeError(w, http.StatusRequestTimeout, err.Error(), s.logger)
		default:
			writeError(w, http.StatusBadRequest, err.Error(), s.logger)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":     res.Report.RunID,
		"report_uri": res.ReportURI,
		"items":      res.Report.ItemCount(),
		"report":     res.Report,
	}, s.logger)
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit", s.logger)
			return
		}
		limit = n
	}
	runs, err := s.traces.ListRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), s.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs}, s.logger)
}

type runSummaryResponse struct {
	RunID               string    `json:"run_id"`
	Domain              string    `json:"domain"`
	Profile             string    `json:"profile"`
	ReportType          string    `json:"report_type"`
	Depth               string    `json:"depth"`
	StartedAt           time.Time `json:"started_at"`
	DurationMS          int64     `json:"duration_ms"`
	CollectorsSucceeded int       `json:"collectors_succeeded"`
	CollectorsFailed    int       `json:"collectors_failed"`
	ItemsCollected      int       `json:"items_collected"`
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	rt, ok := s.loadTrace(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, runSummaryResponse{
		RunID:               rt.RunID,
		Domain:              rt.Domain,
		Profile:             rt.Profile,
		ReportType:          rt.ReportType,
		Depth:               rt.Depth,
		StartedAt:           rt.StartedAt,
		DurationMS:          rt.DurationMS,
		CollectorsSucceeded: rt.SuccessfulCollectors(),
		CollectorsFailed:    rt.FailedCollectors(),
		ItemsCollected:      rt.TotalItemsCollected(),
	}, s.logger)
}

func (s *Server) getTrace(w http.ResponseWriter, r *http.Request) {
	rt, ok := s.loadTrace(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, rt, s.logger)
}

func (s *Server) loadTrace(w http.ResponseWriter, r *http.Request) (*trace.RunTrace, bool) {
	runID := chi.URLParam(r, "run_id")
	got, err := s.traces.GetTrace(r.Context(), runID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found", s.logger)
		} else {
			writeError(w, http.StatusInternalServerError, err.Error(), s.logger)
		}
		return nil, false
	}
	return got, true
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("panic", rec))
					writeError(w, http.StatusInternalServerError, "internal server error", logger)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload any, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string, logger *zap.Logger) {
	writeJSON(w, status, map[string]string{"error": msg}, logger)
}
