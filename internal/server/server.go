// Package server provides the HTTP API for zhcorpus.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/zhcorpus/internal/cache"
	"github.com/hyperjump/zhcorpus/internal/config"
	"github.com/hyperjump/zhcorpus/internal/corpus"
	"github.com/hyperjump/zhcorpus/internal/dictionary"
	"github.com/hyperjump/zhcorpus/internal/glossindex"
	"github.com/hyperjump/zhcorpus/internal/metrics"
	"github.com/hyperjump/zhcorpus/internal/ranges"
	"github.com/hyperjump/zhcorpus/internal/report"
	"github.com/hyperjump/zhcorpus/internal/sampling"
)

// Deps are the components the API serves. Glosses, Cache and Metrics may be nil.
type Deps struct {
	Corpus     *corpus.Store
	Dictionary *dictionary.Store
	Sampler    *sampling.Engine
	Ranges     *ranges.Materializer
	Reports    *report.Synthesizer
	Glosses    *glossindex.Index
	Cache      *cache.ReportCache
	Metrics    *metrics.Metrics
}

// Server is the HTTP server for the zhcorpus API.
type Server struct {
	deps    Deps
	config  *config.Config
	version string
	logger  *zap.Logger
	started time.Time
	server  *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(deps Deps, cfg *config.Config, version string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		deps:    deps,
		config:  cfg,
		version: version,
		logger:  logger,
		started: time.Now(),
	}
}

// Router returns the API handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if s.config.Debug {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware(s.deps.Metrics))
	r.Use(middleware.Timeout(s.config.Server.RequestTimeout()))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/search", s.handleSearch)
		r.Get("/count", s.handleCount)
		r.Get("/ranked", s.handleRanked)
		r.Get("/word_report", s.handleWordReport)
		r.Get("/source_ranges", s.handleSourceRanges)
		r.Post("/admin/source_ranges", s.handleMaterialize)
		r.Get("/lookup", s.handleLookup)
		r.Get("/dialect", s.handleDialect)
		r.Get("/glosses", s.handleGlosses)
		r.Get("/stats", s.handleStats)
		r.Get("/server_stats", s.handleServerStats)
	})
	r.Get("/health", s.handleHealth)
	if s.deps.Metrics != nil && s.config.Metrics.EnabledOrDefault() {
		r.Handle("/metrics", s.deps.Metrics.Handler())
	}
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr), zap.String("version", s.version))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
