// Package server exposes the process rate limiter over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	apperrors "github.com/docquery/docquery/internal/errors"
	"github.com/docquery/docquery/internal/metrics"
	"github.com/docquery/docquery/internal/observability"
	"github.com/docquery/docquery/internal/ratelimit"
	"github.com/docquery/docquery/internal/server/handlers"
	servermw "github.com/docquery/docquery/internal/server/middleware"
)

// Options configures a Server.
type Options struct {
	Host    string
	Port    int
	Version string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// Limiter is the process-wide limiter served on /v1/ratelimit. Required.
	Limiter *ratelimit.Limiter
	// Metrics is served on /metrics. Nil answers 503.
	Metrics *metrics.Set
	// AdminToken enables POST /admin/signal when non-empty.
	AdminToken string
}

// Server represents the HTTP server
type Server struct {
	router *chi.Mux
	opts   Options

	mu     sync.Mutex
	server *http.Server
	addr   string
}

// New creates a new HTTP server instance
func New(opts Options) (*Server, error) {
	if opts.Limiter == nil {
		return nil, errors.New("server: rate limiter is required")
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 30 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		// Acquire may block for a full window.
		opts.WriteTimeout = opts.Limiter.Window() + 30*time.Second
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 120 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)

	// RequestID → Metrics → Recovery
	r.Use(servermw.RequestID)
	r.Use(servermw.RequestMetrics)
	r.Use(servermw.Recovery)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		HandleError(w, req, apperrors.NewNotFoundError("The requested resource was not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		HandleError(w, req, apperrors.NewMethodNotAllowedError("The requested method is not allowed for this resource"))
	})

	s := &Server{
		router: r,
		opts:   opts,
		addr:   net.JoinHostPort(opts.Host, fmt.Sprint(opts.Port)),
	}

	handlers.SetHTTPErrorResponder(HandleError)
	s.registerRoutes()

	return s, nil
}

// Start listens and serves until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves on ln. Tests pass a listener on port 0.
func (s *Server) Serve(ln net.Listener) error {
	baseCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  s.opts.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return baseCtx },
	}
	// Shutdown does not cancel in-flight requests on its own; waiters in
	// acquire would otherwise hold it open until the shutdown deadline.
	srv.RegisterOnShutdown(cancel)
	s.mu.Lock()
	s.server = srv
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	observability.Logger().Info("Starting HTTP server",
		zap.String("addr", ln.Addr().String()),
		zap.String("limiter", s.opts.Limiter.Name()),
		zap.Int("max_requests", s.opts.Limiter.MaxRequests()),
		zap.Duration("window", s.opts.Limiter.Window()))

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server. Requests blocked in acquire
// see their context cancelled and answer 503.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	observability.Logger().Info("Shutting down HTTP server")
	return srv.Shutdown(ctx)
}

// Handler exposes the underlying router for testing and instrumentation
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the listen address, resolved once serving.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}
