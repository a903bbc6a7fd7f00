package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-media-ingest/internal/config"
	"github.com/JakeFAU/realtime-media-ingest/internal/ingest"
	"github.com/JakeFAU/realtime-media-ingest/internal/metrics"
)

const (
	defaultRequestTimeout = 60 * time.Second
	defaultHealthTimeout  = 2 * time.Second
	updateTimeout         = 5 * time.Minute
	maxRequestBody        = 1 << 20
)

// JobService accepts submissions and reports job state.
type JobService interface {
	Submit(ctx context.Context, sourceURL string) (ingest.Job, error)
	Status(ctx context.Context, jobID string) (ingest.Job, error)
}

// Server wires HTTP handlers to the orchestrator and the store.
type Server struct {
	router   chi.Router
	jobs     JobService
	store    ingest.Pinger
	updater  ingest.Updater
	validate *validator.Validate
	cfg      config.Config
	logger   *zap.Logger
	now      func() time.Time
}

// NewServer constructs a Server with middleware and routes. updater may be nil.
func NewServer(
	jobs JobService,
	store ingest.Pinger,
	updater ingest.Updater,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		jobs:     jobs,
		store:    store,
		updater:  updater,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		cfg:      cfg,
		logger:   logger.Named("api"),
		now:      func() time.Time { return time.Now().UTC() },
	}

	timeout := cfg.Server.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(metrics.Middleware)

	r.Get("/", s.root)
	r.Get("/health", s.health)
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Post("/update-ytdlp", s.updateEngine)
		r.Group(func(r chi.Router) {
			r.Use(timeoutMiddleware(timeout))
			r.Post("/ingest", s.ingest)
			r.Get("/jobs/{job_id}", s.getJob)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Media Ingestion Service",
		"status":  "healthy",
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	timeout := s.cfg.Server.HealthTimeout
	if timeout <= 0 {
		timeout = defaultHealthTimeout
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("health check failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "service unhealthy: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "healthy",
		Store:     "connected",
		Timestamp: s.now(),
	})
}

func (s *Server) ingest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "url must be an absolute http(s) URL")
		return
	}

	job, err := s.jobs.Submit(r.Context(), req.URL)
	switch {
	case err == nil:
	case errors.Is(err, ingest.ErrInvalidURL):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, ingest.ErrQueueUnavailable):
		writeError(w, http.StatusServiceUnavailable, "job could not be scheduled")
		return
	default:
		s.logger.Error("submit job failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "job store unavailable")
		return
	}

	writeJSON(w, http.StatusAccepted, ingestResponse{
		JobID:   job.ID,
		Status:  job.Status,
		Message: "Ingestion job started",
	})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.jobs.Status(r.Context(), jobID)
	if errors.Is(err, ingest.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		s.logger.Error("load job failed", zap.String("job_id", jobID), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "job store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) updateEngine(w http.ResponseWriter, r *http.Request) {
	if s.updater == nil {
		writeError(w, http.StatusNotImplemented, "extraction engine does not support updates")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), updateTimeout)
	defer cancel()
	out, err := s.updater.Update(ctx)
	if errors.Is(err, ingest.ErrEngineNotInstalled) {
		s.logger.Error("engine update failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "yt-dlp is not installed")
		return
	}
	if err != nil {
		s.logger.Error("engine update failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "update failed: "+err.Error())
		return
	}
	s.logger.Info("engine updated", zap.String("output", out))
	writeJSON(w, http.StatusOK, map[string]any{
		"message":   "yt-dlp update completed",
		"output":    out,
		"timestamp": s.now(),
	})
}

type ingestRequest struct {
	URL string `json:"url" validate:"required,http_url"`
}

type ingestResponse struct {
	JobID   string           `json:"job_id"`
	Status  ingest.JobStatus `json:"status"`
	Message string           `json:"message"`
}

type healthResponse struct {
	Status    string    `json:"status"`
	Store     string    `json:"store"`
	Timestamp time.Time `json:"timestamp"`
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
