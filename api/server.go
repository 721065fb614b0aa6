// Package api provides the HTTP REST API over the medical document store.
//
// Endpoints:
//
//	GET  /health        → liveness probe
//	GET  /ready         → readiness probe (pings the database)
//	POST /api/embed     → embed a text via the model server
//	POST /api/search    → similarity search over document chunks
//	POST /api/generate  → retrieval-augmented answer generation
//
// File structure:
//   - server.go: HTTP server setup and lifecycle
//   - middleware.go: HTTP middleware (logging, recovery)
//   - health.go: health check endpoints
//   - embed.go, search.go, generate.go: API handlers
//   - response.go: JSON response helpers
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wellnessgrid/medrag/internal/log"
	"github.com/wellnessgrid/medrag/internal/model"
	"github.com/wellnessgrid/medrag/internal/store"
)

const (
	// DefaultAddr is the default listen address.
	DefaultAddr = "127.0.0.1:5100"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout bounds header reads to keep slow-client attacks
	// from pinning connections.
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 30 * time.Second

	// WriteTimeout is the maximum duration for writing the response.
	// Generation responses can take a while on CPU-bound model servers.
	WriteTimeout = 120 * time.Second

	// IdleTimeout is the keep-alive idle limit.
	IdleTimeout = 120 * time.Second
)

// Searcher is the slice of the store the API needs.
type Searcher interface {
	SearchChunks(ctx context.Context, embedding []float32, topK int) ([]store.SearchResult, error)
}

// Server is the HTTP server for the REST API.
type Server struct {
	mux    *http.ServeMux
	logger log.Logger

	health   *HealthHandler
	embed    *EmbedHandler
	search   *SearchHandler
	generate *GenerateHandler
}

// Config carries the server's dependencies.
type Config struct {
	Pool      *pgxpool.Pool
	Store     Searcher
	Embedder  model.Embedder
	Generator model.Generator

	// EmbedderModel is reported in embed responses.
	EmbedderModel string

	// Dimension is the expected embedding dimension.
	Dimension int

	// DefaultTopK is the search depth when a request leaves top_k unset.
	DefaultTopK int

	Logger log.Logger
}

// NewServer creates an HTTP server with all routes registered.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	mux := http.NewServeMux()
	s := &Server{
		mux:      mux,
		logger:   logger,
		health:   NewHealthHandler(cfg.Pool, logger),
		embed:    NewEmbedHandler(cfg.Embedder, cfg.EmbedderModel, cfg.Dimension, logger),
		search:   NewSearchHandler(cfg.Store, cfg.Embedder, cfg.DefaultTopK, logger),
		generate: NewGenerateHandler(cfg.Store, cfg.Embedder, cfg.Generator, cfg.DefaultTopK, logger),
	}

	s.health.RegisterRoutes(mux)
	s.embed.RegisterRoutes(mux)
	s.search.RegisterRoutes(mux)
	s.generate.RegisterRoutes(mux)

	return s
}

// Handler returns the HTTP handler with middleware applied.
// Middleware order: recovery → logging → handler.
func (s *Server) Handler() http.Handler {
	return chain(s.mux, recoveryMiddleware, loggingMiddleware)
}

// Run starts the HTTP server and blocks until the context is cancelled,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
