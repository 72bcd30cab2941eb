package server

import (
	"github.com/fulmenhq/gofulmen/signals"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/docquery/docquery/internal/observability"
	"github.com/docquery/docquery/internal/server/handlers"
)

// registerRoutes registers all HTTP routes
func (s *Server) registerRoutes() {
	health := handlers.NewHealthManager(s.opts.Version)
	health.RegisterChecker("ratelimit", handlers.LimiterChecker(s.opts.Limiter))

	s.router.Get("/health", health.HealthHandler)
	s.router.Get("/health/live", health.LivenessHandler)
	s.router.Get("/health/ready", health.ReadinessHandler)
	s.router.Get("/health/startup", health.StartupHandler)

	s.router.Get("/version", handlers.VersionHandler)
	s.router.Handle("/metrics", MetricsHandler(s.opts.Metrics))

	rl := &handlers.RateLimitHandler{Limiter: s.opts.Limiter, WriteTimeout: s.opts.WriteTimeout}
	s.router.Route("/v1/ratelimit", func(r chi.Router) {
		r.Get("/status", rl.Status)
		r.Post("/acquire", rl.Acquire)
	})

	s.registerAdminEndpoint()
}

// registerAdminEndpoint registers POST /admin/signal when an admin token is configured.
func (s *Server) registerAdminEndpoint() {
	logger := observability.Logger()
	if s.opts.AdminToken == "" {
		logger.Debug("Admin signal endpoint disabled (no admin token set)")
		return
	}

	handler := signals.NewHTTPHandler(signals.HTTPConfig{
		TokenAuth: s.opts.AdminToken,
		RateLimit: 10,  // requests per minute
		RateBurst: 5,
		Manager:   nil, // default global manager
	})
	s.router.Post("/admin/signal", handler.ServeHTTP)

	logger.Info("Admin signal endpoint enabled",
		zap.String("path", "/admin/signal"),
		zap.String("auth", "bearer token"))
	logger.Warn("Admin endpoint enabled - ensure this server is not exposed to public internet")
}
