package ailink

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/docquery/docquery/internal/ailink/driver/openai"
	"github.com/docquery/docquery/internal/ratelimit"
)

func envMap(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestNormalizeFillsProviderDefaults(t *testing.T) {
	cfg := Config{Provider: " Gemini "}
	require.NoError(t, cfg.Normalize(envMap(map[string]string{"GOOGLE_API_KEY": "g-key"})))

	require.Equal(t, ProviderGemini, cfg.Provider)
	require.Equal(t, "https://generativelanguage.googleapis.com/v1beta/openai", cfg.BaseURL)
	require.Equal(t, "models/embedding-001", cfg.EmbeddingModel)
	require.Equal(t, "g-key", cfg.APIKey)
}

func TestNormalizeKeepsExplicitValues(t *testing.T) {
	cfg := Config{BaseURL: "http://localhost:8000/v1", APIKey: "explicit", ChatModel: "local"}
	require.NoError(t, cfg.Normalize(envMap(map[string]string{"OPENAI_API_KEY": "env"})))

	require.Equal(t, ProviderOpenAI, cfg.Provider)
	require.Equal(t, "http://localhost:8000/v1", cfg.BaseURL)
	require.Equal(t, "explicit", cfg.APIKey)
	require.Equal(t, "local", cfg.ChatModel)
	require.Equal(t, "text-embedding-3-small", cfg.EmbeddingModel)
}

func TestNormalizeRejectsUnknownProvider(t *testing.T) {
	cfg := Config{Provider: "anthropic"}
	require.ErrorContains(t, cfg.Normalize(nil), "unsupported provider")
}

func TestNewDriverRequiresLimiterAndKey(t *testing.T) {
	limiter, err := ratelimit.New(15, time.Minute)
	require.NoError(t, err)

	cfg := Config{}
	require.NoError(t, cfg.Normalize(nil))

	_, err = NewDriver(cfg, Deps{})
	require.ErrorContains(t, err, "rate limiter is required")

	_, err = NewDriver(cfg, Deps{Limiter: limiter})
	require.ErrorContains(t, err, "OPENAI_API_KEY")
}

func TestNewDriverGatesTransport(t *testing.T) {
	limiter, err := ratelimit.New(15, time.Minute)
	require.NoError(t, err)

	cfg := Config{Provider: ProviderGemini, APIKey: "key", Timeout: 5 * time.Second, MaxRetries: 4}
	require.NoError(t, cfg.Normalize(nil))

	drv, err := NewDriver(cfg, Deps{Limiter: limiter})
	require.NoError(t, err)
	require.Equal(t, "gemini", drv.Name())

	client, ok := drv.(*openai.Client)
	require.True(t, ok)
	require.Equal(t, 4, client.MaxRetries)

	transport, ok := client.HTTPClient.Transport.(*ratelimit.Transport)
	require.True(t, ok)
	require.Same(t, limiter, transport.Limiter)
	require.Equal(t, 5*time.Second, transport.Timeout)
}
