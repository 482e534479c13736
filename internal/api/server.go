package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/hr-contact-discovery/internal/config"
	"github.com/JakeFAU/hr-contact-discovery/internal/discovery"
	"github.com/JakeFAU/hr-contact-discovery/internal/id/uuid"
	"github.com/JakeFAU/hr-contact-discovery/internal/metrics"
	"github.com/JakeFAU/hr-contact-discovery/internal/store"
)

const (
	maxBodyBytes  = 1 << 20
	submitTimeout = 5 * time.Second
	maxListLimit  = 500
)

// Runner registers and executes discovery runs synchronously.
type Runner interface {
	Register(ctx context.Context, req discovery.Request) (store.Run, error)
	Execute(ctx context.Context, run store.Run) (store.Run, error)
}

// Submitter hands a registered run to the background workers.
type Submitter interface {
	Submit(ctx context.Context, run store.Run) error
}

// RequestIDGenerator mints IDs for the X-Request-ID header.
type RequestIDGenerator interface {
	NewRequestID() string
}

// Pinger is implemented by stores that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server wires HTTP handlers to the worker and run store.
type Server struct {
	router    chi.Router
	runner    Runner
	runs      store.RunStore
	submitter Submitter
	cfg       config.Config
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes. A nil submitter
// disables asynchronous runs.
func NewServer(
	runner Runner,
	runs store.RunStore,
	submitter Submitter,
	ids RequestIDGenerator,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		runner:    runner,
		runs:      runs,
		submitter: submitter,
		cfg:       cfg,
		logger:    logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware(ids))
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Use(timeoutMiddleware(cfg.RequestTimeout()))
		r.Post("/discover", s.discover)
		r.Route("/runs", func(r chi.Router) {
			r.Post("/", s.submitRun)
			r.Get("/", s.listRuns)
			r.Get("/{run_id}", s.getRun)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.runs.(Pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "run store unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type discoverRequest struct {
	Name        string `json:"name"`
	CompanyName string `json:"company_name"`
}

func (d discoverRequest) toRequest() discovery.Request {
	return discovery.Request{Name: d.Name, CompanyName: d.CompanyName}.Normalize()
}

// discover runs a discovery inline and returns its report. A run cut short
// by the request deadline still answers 200 with the partial report.
func (s *Server) discover(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest(w, r)
	if !ok {
		return
	}
	run, err := s.runner.Register(r.Context(), req)
	if err != nil {
		s.logger.Error("register run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to register run")
		return
	}
	final, err := s.runner.Execute(r.Context(), run)
	if err != nil {
		s.logger.Info("discovery ended early", zap.String("run_id", run.ID), zap.Error(err))
	}
	if final.Report == nil {
		writeError(w, http.StatusInternalServerError, "run produced no report")
		return
	}
	writeJSON(w, http.StatusOK, final.Report)
}

func (s *Server) submitRun(w http.ResponseWriter, r *http.Request) {
	if s.submitter == nil {
		writeError(w, http.StatusServiceUnavailable, "asynchronous runs are disabled")
		return
	}
	req, ok := decodeRequest(w, r)
	if !ok {
		return
	}
	run, err := s.runner.Register(r.Context(), req)
	if err != nil {
		s.logger.Error("register run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to register run")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), submitTimeout)
	defer cancel()
	if err := s.submitter.Submit(ctx, run); err != nil {
		s.logger.Error("submit run failed", zap.String("run_id", run.ID), zap.Error(err))
		s.failRun(run, err)
		writeError(w, http.StatusServiceUnavailable, "run queue unavailable")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"run_id": run.ID,
		"status": string(run.Status),
	})
}

// failRun marks a run that never reached the queue.
func (s *Server) failRun(run store.Run, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
	defer cancel()
	run.Status = store.RunFailed
	run.Error = fmt.Sprintf("submit: %v", cause)
	run.UpdatedAt = time.Now().UTC()
	if err := s.runs.UpdateRun(ctx, run); err != nil {
		s.logger.Warn("mark run failed", zap.String("run_id", run.ID), zap.Error(err))
	}
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	runID, err := uuid.Canonical(chi.URLParam(r, "run_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid run id")
		return
	}
	run, err := s.runs.GetRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		s.logger.Error("get run failed", zap.String("run_id", runID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := store.DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxListLimit {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", maxListLimit))
			return
		}
		limit = n
	}
	runs, err := s.runs.ListRuns(r.Context(), limit)
	if err != nil {
		s.logger.Error("list runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func decodeRequest(w http.ResponseWriter, r *http.Request) (discovery.Request, bool) {
	var body discoverRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return discovery.Request{}, false
	}
	return body.toRequest(), true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
