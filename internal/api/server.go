package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/rpa-crawler/internal/crawler"
	"github.com/JakeFAU/rpa-crawler/internal/telemetry"
)

// Submitter schedules collection jobs.
type Submitter interface {
	Submit(ctx context.Context, sources ...crawler.Source) ([]crawler.Job, error)
}

// ReadinessCheck reports whether downstream dependencies are reachable.
type ReadinessCheck func(ctx context.Context) error

// Options tune the server.
type Options struct {
	// APIKey enables key authentication on /v1 routes when non-empty.
	APIKey         string
	RequestTimeout time.Duration
	Version        string
}

// Server wires HTTP handlers to the dispatcher and stores.
type Server struct {
	router    chi.Router
	jobs      crawler.JobStore
	results   crawler.ResultReader
	submitter Submitter
	ready     ReadinessCheck
	opts      Options
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes. ready may be nil.
func NewServer(
	jobs crawler.JobStore,
	results crawler.ResultReader,
	submitter Submitter,
	ready ReadinessCheck,
	opts Options,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	s := &Server{
		jobs:      jobs,
		results:   results,
		submitter: submitter,
		ready:     ready,
		opts:      opts,
		logger:    logger.Named("api"),
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(telemetry.Middleware)

	r.Get("/", s.index)
	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", telemetry.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(timeoutMiddleware(opts.RequestTimeout))
		if opts.APIKey != "" {
			r.Use(apiKeyMiddleware(opts.APIKey))
		}
		r.Post("/crawl/all", s.crawlAll)
		r.Post("/crawl/{source}", s.crawlSource)
		r.Get("/jobs", s.listJobs)
		r.Route("/jobs/{job_id}", func(r chi.Router) {
			r.Get("/", s.getJob)
			r.Get("/results", s.getJobResults)
		})
		r.Get("/results/{source}", s.sourceResults)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) index(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.logger, http.StatusOK, map[string]any{
		"status":  "ok",
		"message": "RPA Crawler API",
		"version": s.opts.Version,
		"endpoints": map[string][]string{
			"crawl":   {"/v1/crawl/hockey", "/v1/crawl/oscar", "/v1/crawl/all"},
			"jobs":    {"/v1/jobs", "/v1/jobs/{job_id}", "/v1/jobs/{job_id}/results"},
			"results": {"/v1/results/hockey", "/v1/results/oscar"},
		},
	})
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.logger, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, s.logger, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, s.logger, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, logger *zap.Logger, status int, msg string) {
	writeJSON(w, logger, status, map[string]string{"error": msg})
}
