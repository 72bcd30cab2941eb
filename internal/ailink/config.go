package ailink

import (
	"fmt"
	"strings"
	"time"
)

// Supported providers. Both speak the OpenAI wire shape.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Config defines provider configuration for AILink.
type Config struct {
	Provider       string        `mapstructure:"provider"`
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	ChatModel      string        `mapstructure:"chat_model"`
	EmbeddingModel string        `mapstructure:"embedding_model"`
	Temperature    float64       `mapstructure:"temperature"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryInterval  time.Duration `mapstructure:"retry_interval"`
}

type providerDefaults struct {
	baseURL        string
	chatModel      string
	embeddingModel string
	apiKeyEnv      string
}

var defaults = map[string]providerDefaults{
	ProviderOpenAI: {
		baseURL:        "https://api.openai.com/v1",
		chatModel:      "gpt-3.5-turbo",
		embeddingModel: "text-embedding-3-small",
		apiKeyEnv:      "OPENAI_API_KEY",
	},
	ProviderGemini: {
		baseURL:        "https://generativelanguage.googleapis.com/v1beta/openai",
		chatModel:      "gemini-pro",
		embeddingModel: "models/embedding-001",
		apiKeyEnv:      "GOOGLE_API_KEY",
	},
}

// Normalize lower-cases the provider and fills provider-specific defaults.
// lookupEnv resolves the provider's conventional API key variable when APIKey is empty.
func (c *Config) Normalize(lookupEnv func(string) string) error {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	if c.Provider == "" {
		c.Provider = ProviderOpenAI
	}

	d, ok := defaults[c.Provider]
	if !ok {
		return fmt.Errorf("unsupported provider: %s", c.Provider)
	}

	if strings.TrimSpace(c.BaseURL) == "" {
		c.BaseURL = d.baseURL
	}
	if strings.TrimSpace(c.ChatModel) == "" {
		c.ChatModel = d.chatModel
	}
	if strings.TrimSpace(c.EmbeddingModel) == "" {
		c.EmbeddingModel = d.embeddingModel
	}
	if strings.TrimSpace(c.APIKey) == "" && lookupEnv != nil {
		c.APIKey = strings.TrimSpace(lookupEnv(d.apiKeyEnv))
	}
	return nil
}

// APIKeyEnv returns the conventional API key variable for the configured provider.
func (c Config) APIKeyEnv() string {
	return defaults[c.Provider].apiKeyEnv
}
