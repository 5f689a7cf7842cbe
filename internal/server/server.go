// Package server provides the HTTP API for Toi.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/toi/internal/config"
	"github.com/hyperjump/toi/internal/pipeline"
	"github.com/hyperjump/toi/internal/storage"
)

// Server is the HTTP server for the Toi API.
type Server struct {
	pipeline *pipeline.Pipeline
	storage  storage.Storage
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(p *pipeline.Pipeline, store storage.Storage, cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{
		pipeline: p,
		storage:  store,
		config:   cfg,
		logger:   logger,
	}
}

// Router builds the chi router with all API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/ingest", s.handleIngest)
	r.Post("/api/v1/query", s.handleQuery)
	r.Post("/api/v1/context", s.handleContext)
	r.Get("/api/v1/stats", s.handleStats)
	r.Get("/api/v1/questions", s.handleListQuestions)
	r.Get("/api/v1/questions/{id}", s.handleGetQuestion)
	r.Delete("/api/v1/index", s.handleClearIndex)
	r.Get("/health", s.handleHealth)

	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
