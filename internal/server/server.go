// Package server implements the test run HTTP API server.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dwsmith1983/runledger/internal/server/handlers"
)

// DefaultMaxBodyBytes caps request bodies when Options.MaxBodyBytes is unset.
const DefaultMaxBodyBytes = 1 << 20

// Options configures the router.
type Options struct {
	APIKey       string // empty disables API key checks
	MaxBodyBytes int64
	CORSOrigin   string // defaults to "*"
	Logger       *slog.Logger
}

// Server is the test run HTTP API server.
type Server struct {
	handlers *handlers.Handlers
	router   *chi.Mux
	addr     string
	srv      *http.Server
	logger   *slog.Logger
}

// New creates a new HTTP server.
func New(addr string, h *handlers.Handlers, opts Options) *Server {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if opts.CORSOrigin == "" {
		opts.CORSOrigin = "*"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	h.SetLogger(opts.Logger)

	s := &Server{
		handlers: h,
		addr:     addr,
		logger:   opts.Logger,
	}

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.SetHeader("Content-Type", "application/json"))
	r.Use(CORSMiddleware(opts.CORSOrigin))
	r.Use(APIKeyMiddleware(opts.APIKey))
	r.Use(MaxBodyMiddleware(opts.MaxBodyBytes))

	s.router = r
	s.registerRoutes(r)
	return s
}

// Handler returns the router as a plain http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the router, for adapters that serve without a listener.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start begins serving HTTP requests. It returns nil after Stop.
func (s *Server) Start() error {
	s.srv = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	s.logger.Info("runledger server listening", "addr", s.addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv != nil {
		return s.srv.Shutdown(ctx)
	}
	return nil
}
