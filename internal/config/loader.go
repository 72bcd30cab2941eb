// Package config loads docquery configuration from viper into typed structs.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/docquery/docquery/internal/appid"
	"github.com/docquery/docquery/internal/ratelimit"
)

// SetDefaults registers every configuration key with its default value.
// Keys without a default are invisible to AutomaticEnv, so every key is listed here.
func SetDefaults(v *viper.Viper) {
	// Rate limit defaults
	v.SetDefault("rate_limit.max_requests", ratelimit.DefaultMaxRequests)
	v.SetDefault("rate_limit.window", ratelimit.DefaultWindow.String())

	// Provider defaults (empty values are filled per provider by ailink.Config.Normalize)
	v.SetDefault("ailink.provider", "openai")
	v.SetDefault("ailink.base_url", "")
	v.SetDefault("ailink.api_key", "")
	v.SetDefault("ailink.chat_model", "")
	v.SetDefault("ailink.embedding_model", "")
	v.SetDefault("ailink.temperature", 0.7)
	v.SetDefault("ailink.timeout", "2m")
	v.SetDefault("ailink.max_retries", 2)
	v.SetDefault("ailink.retry_interval", "1s")

	// Ingest defaults
	v.SetDefault("ingest.chunk_size", 1000)
	v.SetDefault("ingest.chunk_overlap", 150)
	v.SetDefault("ingest.batch_size", 5)
	v.SetDefault("ingest.workers", 2)

	// Search defaults
	v.SetDefault("search.top_k", 5)

	// Server defaults
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	// Zero follows rate_limit.window, see Load.
	v.SetDefault("server.write_timeout", "0s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.admin_token", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", appid.BinaryName)
}

// ConfigureSources points v at the config file and DOCQUERY_* environment variables.
// An empty cfgFile searches the user config dir and ./config for config.yaml.
func ConfigureSources(v *viper.Viper, cfgFile string) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		if dir := UserConfigDir(); dir != "" {
			v.AddConfigPath(dir)
		}
		v.AddConfigPath("./config")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(appid.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// ReadFile reads the configured file. A missing file is not an error; defaults and env apply.
func ReadFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("read config file: %w", err)
	}
	return true, nil
}

// serverWriteMargin is added to rate_limit.window for the default server.write_timeout.
const serverWriteMargin = 30 * time.Second

// Load decodes v into a Config, fills provider defaults and validates the result.
// lookupEnv resolves provider API key fallbacks (OPENAI_API_KEY, GOOGLE_API_KEY).
func Load(v *viper.Viper, lookupEnv func(string) string) (*Config, error) {
	var cfg Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("build config decoder: %w", err)
	}
	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if cfg.Server.WriteTimeout <= 0 && cfg.RateLimit.Window > 0 {
		cfg.Server.WriteTimeout = cfg.RateLimit.Window + serverWriteMargin
	}

	if err := cfg.AILink.Normalize(lookupEnv); err != nil {
		return nil, fmt.Errorf("ailink: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges that decoding cannot express.
func (c *Config) Validate() error {
	var errs []error
	if c.RateLimit.MaxRequests <= 0 {
		errs = append(errs, fmt.Errorf("rate_limit.max_requests must be positive, got %d", c.RateLimit.MaxRequests))
	}
	if c.RateLimit.Window <= 0 {
		errs = append(errs, fmt.Errorf("rate_limit.window must be positive, got %s", c.RateLimit.Window))
	}
	if c.Ingest.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("ingest.chunk_size must be positive, got %d", c.Ingest.ChunkSize))
	}
	if c.Ingest.ChunkOverlap < 0 || c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		errs = append(errs, fmt.Errorf("ingest.chunk_overlap must be in [0, chunk_size), got %d", c.Ingest.ChunkOverlap))
	}
	if c.Ingest.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("ingest.batch_size must be positive, got %d", c.Ingest.BatchSize))
	}
	if c.Ingest.Workers <= 0 {
		errs = append(errs, fmt.Errorf("ingest.workers must be positive, got %d", c.Ingest.Workers))
	}
	if c.Search.TopK <= 0 {
		errs = append(errs, fmt.Errorf("search.top_k must be positive, got %d", c.Search.TopK))
	}
	if c.AILink.Timeout < 0 {
		errs = append(errs, fmt.Errorf("ailink.timeout must not be negative, got %s", c.AILink.Timeout))
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	return errors.Join(errs...)
}

// UserConfigDir returns $XDG_CONFIG_HOME/docquery (or the platform equivalent), or "" if unknown.
func UserConfigDir() string {
	base, err := os.UserConfigDir()
	if err != nil || base == "" {
		return ""
	}
	return filepath.Join(base, appid.ConfigName)
}
