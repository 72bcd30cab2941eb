package observability

import (
	"testing"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"
)

func resetLoggers(t *testing.T) {
	t.Helper()
	cli, server := CLILogger, ServerLogger
	CLILogger, ServerLogger = nil, nil
	t.Cleanup(func() { CLILogger, ServerLogger = cli, server })
}

func TestLoggerFallsBackToNop(t *testing.T) {
	resetLoggers(t)

	logger := Logger()
	if logger == nil {
		t.Fatal("Logger should never return nil")
	}
	logger.Warn("dropped", zap.String("limiter", "default"))
}

func TestLoggerPrefersServerLogger(t *testing.T) {
	resetLoggers(t)

	InitCLILogger("docquery-test", true)
	if Logger() != FieldLogger(CLILogger) {
		t.Fatal("expected CLI logger before serve starts")
	}

	InitServerLogger("docquery-test", "debug", "provider")
	if ServerLogger == nil {
		t.Fatal("Server logger should not be nil after initialization")
	}
	if Logger() != FieldLogger(ServerLogger) {
		t.Fatal("expected server logger once initialized")
	}

	Logger().Info("Rate limit slot granted", zap.Duration("waited", 0))
}

func TestServerLoggerConfigIsValid(t *testing.T) {
	cfg := serverLoggerConfig("docquery-test", "warn", map[string]any{"limiter": "default"})
	if cfg.DefaultLevel != "WARN" {
		t.Fatalf("expected WARN, got %s", cfg.DefaultLevel)
	}

	logger, err := logging.New(cfg)
	if err != nil {
		t.Fatalf("Failed to create structured logger: %v", err)
	}
	logger.Info("Test structured log message", zap.String("component", "test"))
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]string{
		"trace":   "TRACE",
		"DEBUG":   "DEBUG",
		"warning": "WARN",
		"error":   "ERROR",
		"":        "INFO",
		"bogus":   "INFO",
	}
	for in, want := range cases {
		if got := parseLogLevel(in); got != want {
			t.Errorf("parseLogLevel(%q) = %q, want %q", in, got, want)
		}
	}
}
