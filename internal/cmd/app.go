package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/docquery/docquery/internal/ailink"
	"github.com/docquery/docquery/internal/ailink/driver"
	"github.com/docquery/docquery/internal/config"
	"github.com/docquery/docquery/internal/metrics"
	"github.com/docquery/docquery/internal/observability"
	"github.com/docquery/docquery/internal/ratelimit"
)

// app holds the collaborators a command runs with. The limiter is built once
// per process and handed to the driver transport, the command and the server.
type app struct {
	cfg     *config.Config
	limiter *ratelimit.Limiter
	metrics *metrics.Set
	driver  driver.Driver
	tracer  *driver.Tracer
}

type appOptions struct {
	// driver builds a provider driver; commands that never call the provider skip it.
	driver bool
	// metrics feeds the limiter into a prometheus registry.
	metrics bool
}

func newApp(opts appOptions) (*app, error) {
	cfg, err := config.Load(viper.GetViper(), os.Getenv)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errConfig, err)
	}
	a := &app{cfg: cfg}
	logger := observability.Logger()

	limiterOpts := ratelimit.Opts{Name: cfg.AILink.Provider, Logger: logger}
	if opts.metrics && cfg.Metrics.Enabled {
		a.metrics = metrics.Init(cfg.Metrics.Namespace)
		observer, err := a.metrics.NewLimiterObserver()
		if err != nil {
			return nil, fmt.Errorf("register limiter metrics: %w", err)
		}
		limiterOpts.Observer = observer
	}

	a.limiter, err = ratelimit.NewWithOpts(cfg.RateLimit.MaxRequests, cfg.RateLimit.Window, limiterOpts)
	if err != nil {
		return nil, err
	}
	if a.metrics != nil {
		if err := a.metrics.RegisterLimiter(a.limiter); err != nil {
			return nil, fmt.Errorf("register limiter collector: %w", err)
		}
	}

	logger.Debug("Rate limiter ready",
		zap.String("limiter", a.limiter.Name()),
		zap.Int("max_requests", a.limiter.MaxRequests()),
		zap.Duration("window", a.limiter.Window()))

	if !opts.driver {
		return a, nil
	}

	if traceFile != "" {
		a.tracer, err = driver.NewTracer(traceFile)
		if err != nil {
			logger.Warn("Failed to enable tracing", zap.Error(err))
		} else {
			logger.Debug("Provider tracing enabled", zap.String("file", traceFile))
		}
	}

	a.driver, err = ailink.NewDriver(cfg.AILink, ailink.Deps{
		Limiter: a.limiter,
		Logger:  logger,
		Tracer:  a.tracer,
	})
	if err != nil {
		_ = a.tracer.Close()
		return nil, fmt.Errorf("%w: %w", errConfig, err)
	}
	return a, nil
}

// Close releases the trace file and flushes the CLI logger.
func (a *app) Close() {
	if err := a.tracer.Close(); err != nil {
		observability.Logger().Warn("Failed to close trace file", zap.Error(err))
	}
	if observability.CLILogger != nil {
		_ = observability.CLILogger.Sync()
	}
}

// printStatus writes the limiter status block the way chat and search show it.
func printStatus(w io.Writer, limiter *ratelimit.Limiter) {
	_, _ = fmt.Fprintln(w, ratelimit.FormatStatus(limiter.Status()))
}
