package config

import (
	"time"

	"github.com/docquery/docquery/internal/ailink"
)

// Config represents the complete application configuration.
// Precedence, highest first: flags bound by commands, DOCQUERY_* environment
// variables, the config file, built-in defaults.
type Config struct {
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	AILink    ailink.Config   `mapstructure:"ailink"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Search    SearchConfig    `mapstructure:"search"`
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// RateLimitConfig sizes the process-wide provider call limiter.
type RateLimitConfig struct {
	MaxRequests int           `mapstructure:"max_requests"`
	Window      time.Duration `mapstructure:"window"`
}

// IngestConfig controls chunking and batching of ingested documents.
type IngestConfig struct {
	ChunkSize    int `mapstructure:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap"`
	// BatchSize is the number of chunks embedded per provider call (one limiter slot per batch).
	BatchSize int `mapstructure:"batch_size"`
	Workers   int `mapstructure:"workers"`
}

// SearchConfig contains search defaults.
type SearchConfig struct {
	TopK int `mapstructure:"top_k"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// AdminToken enables POST /admin/signal. Usually set via DOCQUERY_SERVER_ADMIN_TOKEN.
	AdminToken string `mapstructure:"admin_token"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	// Enabled controls whether /metrics is exposed by serve
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}
