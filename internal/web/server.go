// Package web exposes the row store and the ingestion handler over HTTP.
package web

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zakazai/enrichdb/internal/config"
	"github.com/zakazai/enrichdb/internal/ingest"
	"github.com/zakazai/enrichdb/internal/planner"
	"github.com/zakazai/enrichdb/internal/storage"
	"github.com/zakazai/enrichdb/internal/types"
)

// maxBodySize caps request bodies
const maxBodySize = 1 << 20

// Server is the HTTP server for the store and the ingestion endpoint.
type Server struct {
	store   storage.Storage
	planner *planner.Planner
	ingest  *ingest.Handler
	router  *chi.Mux
	server  *http.Server
	logger  *types.Logger
}

// NewServer creates a new Server instance.
func NewServer(store storage.Storage, handler *ingest.Handler) *Server {
	s := &Server{
		store:   store,
		planner: planner.NewPlanner(store),
		ingest:  handler,
		router:  chi.NewRouter(),
		logger:  types.GlobalLogger.WithModule("web"),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(httpMetrics)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Post("/ingest", s.handleIngest)

	s.router.Route("/tables", func(r chi.Router) {
		r.Get("/", s.handleListTables)
		r.Put("/{table}", s.handleCreateTable)
		r.Get("/{table}", s.handleAllRows)
		r.Post("/{table}/rows", s.handleInsert)
		r.Post("/{table}/select", s.handleSelect)
		r.Post("/{table}/update", s.handleUpdate)
		r.Post("/{table}/delete", s.handleDelete)
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start(cfg config.ServerConfig) error {
	s.server = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	s.logger.Info("Starting server on %s", cfg.Addr())
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
