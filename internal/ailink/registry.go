package ailink

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/docquery/docquery/internal/ailink/driver"
	"github.com/docquery/docquery/internal/ailink/driver/openai"
	"github.com/docquery/docquery/internal/ratelimit"
)

// Deps are the process-wide collaborators a driver is built with.
type Deps struct {
	Limiter *ratelimit.Limiter
	Logger  ratelimit.Logger
	Tracer  *driver.Tracer
	// Transport is the base transport under the rate limiter. Defaults to http.DefaultTransport.
	Transport http.RoundTripper
}

// NewDriver builds the driver for cfg. Every HTTP attempt it makes acquires a slot from deps.Limiter.
func NewDriver(cfg Config, deps Deps) (driver.Driver, error) {
	if deps.Limiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		env := cfg.APIKeyEnv()
		if env == "" {
			return nil, fmt.Errorf("api key is required for provider %q", cfg.Provider)
		}
		return nil, fmt.Errorf("api key is required for provider %q (set ailink.api_key or %s)", cfg.Provider, env)
	}

	switch cfg.Provider {
	case ProviderOpenAI, ProviderGemini:
		client := openai.NewClient(cfg.BaseURL, cfg.APIKey)
		client.ProviderName = cfg.Provider
		transport := ratelimit.NewTransport(deps.Limiter, deps.Transport)
		transport.Timeout = cfg.Timeout
		client.HTTPClient = &http.Client{Transport: transport}
		if cfg.MaxRetries >= 0 {
			client.MaxRetries = cfg.MaxRetries
		}
		if cfg.RetryInterval > 0 {
			client.RetryInterval = cfg.RetryInterval
		}
		client.Logger = deps.Logger
		client.Tracer = deps.Tracer
		return client, nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}
