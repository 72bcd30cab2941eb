package cmd

import (
	"context"
	"os"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/docquery/docquery/internal/appid"
	"github.com/docquery/docquery/internal/config"
	apperrors "github.com/docquery/docquery/internal/errors"
	"github.com/docquery/docquery/internal/observability"
	"github.com/docquery/docquery/internal/server"
)

var (
	serverPort int
	serverHost string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Expose the rate limiter over HTTP",
	Long: `Start the HTTP server with graceful shutdown support.

Endpoints:
  GET  /v1/ratelimit/status    current limiter status
  POST /v1/ratelimit/acquire   block until a slot is granted (?timeout=30s)
  GET  /metrics                Prometheus metrics
  GET  /health, /version

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Config reload (limits apply after restart)`,
	RunE: func(cmd *cobra.Command, args []string) error {
		observability.InitServerLogger(appid.BinaryName,
			viper.GetString("logging.level"),
			viper.GetString("ailink.provider"))
		logger := observability.ServerLogger

		a, err := newApp(appOptions{metrics: true})
		if err != nil {
			logger.Error("Failed to initialize", zap.Error(err))
			return err
		}
		defer a.Close()

		srv, err := server.New(server.Options{
			Host:         a.cfg.Server.Host,
			Port:         a.cfg.Server.Port,
			Version:      versionInfo.Version,
			ReadTimeout:  a.cfg.Server.ReadTimeout,
			WriteTimeout: a.cfg.Server.WriteTimeout,
			IdleTimeout:  a.cfg.Server.IdleTimeout,
			Limiter:      a.limiter,
			Metrics:      a.metrics,
			AdminToken:   a.cfg.Server.AdminToken,
		})
		if err != nil {
			return apperrors.Wrap(cmd.Context(), apperrors.CodeInternal, err, "server initialization failed")
		}

		logger.Info("Initializing server",
			zap.String("service", appid.BinaryName),
			zap.String("version", versionInfo.Version),
			zap.String("host", a.cfg.Server.Host),
			zap.Int("port", a.cfg.Server.Port),
			zap.Bool("metrics", a.metrics != nil))

		shutdownTimeout := a.cfg.Server.ShutdownTimeout

		// Register graceful shutdown handlers (LIFO order - last registered, first executed)
		// Handler 1: Flush logger (executed last)
		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Flushing logger...")
			if err := logger.Sync(); err != nil {
				// Sync errors are often benign (stdout/stderr already closed)
				logger.Warn("Logger sync returned error (may be benign)", zap.Error(err))
			}
			return nil
		})

		// Handler 2: Shutdown HTTP server (executed first)
		signals.OnShutdown(func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				return apperrors.Wrap(ctx, apperrors.CodeInternal, err, "server shutdown failed")
			}
			logger.Info("HTTP server stopped gracefully")
			return nil
		})

		signals.OnReload(func(ctx context.Context) error {
			return reloadConfig(ctx, a.cfg)
		})

		// Enable double-tap force quit (Ctrl+C within 2 seconds)
		if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
			Window:  2 * time.Second,
			Message: "Press Ctrl+C again within 2 seconds to force quit",
		}); err != nil {
			logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
		}

		errChan := make(chan error, 2)
		go func() {
			errChan <- srv.Start()
		}()

		go func() {
			if err := signals.Listen(cmd.Context()); err != nil {
				logger.Error("Signal handler error", zap.Error(err))
				errChan <- err
			}
		}()

		if err := <-errChan; err != nil {
			return apperrors.Wrap(cmd.Context(), apperrors.CodeInternal, err, "server error")
		}
		return nil
	},
}

// reloadConfig re-reads the config file on SIGHUP. The limiter is immutable
// once built, so changed limits are reported and take effect on restart.
func reloadConfig(ctx context.Context, running *config.Config) error {
	logger := observability.Logger()
	logger.Info("Received SIGHUP: attempting config reload")

	v := viper.GetViper()
	found, err := config.ReadFile(v)
	if err != nil {
		logger.Error("Failed to reload config file",
			zap.String("file", v.ConfigFileUsed()),
			zap.Error(err))
		return apperrors.Wrap(ctx, apperrors.CodeInvalidInput, err, "config reload failed")
	}
	if !found {
		logger.Info("No config file found - using defaults and environment variables")
		return nil
	}

	next, err := config.Load(v, os.Getenv)
	if err != nil {
		return apperrors.Wrap(ctx, apperrors.CodeInvalidInput, err, "config reload failed")
	}
	if next.RateLimit != running.RateLimit {
		logger.Warn("Rate limit changed in config; restart to apply",
			zap.Int("max_requests", next.RateLimit.MaxRequests),
			zap.Duration("window", next.RateLimit.Window))
	}

	logger.Info("Configuration reloaded successfully", zap.String("file", v.ConfigFileUsed()))
	return nil
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "localhost", "server host")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "server port")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}
