// Package appid holds the application identity shared by the CLI, config and server.
package appid

const (
	// BinaryName is the executable and root command name.
	BinaryName = "docquery"
	// Description is the one-line summary shown in help and /version.
	Description = "Rate-limited document ingestion, search and chat against OpenAI-compatible providers"
	// EnvPrefix prefixes every environment override (DOCQUERY_RATE_LIMIT_MAX_REQUESTS, ...).
	EnvPrefix = "DOCQUERY"
	// ConfigName is the directory under the user config dir holding config.yaml.
	ConfigName = "docquery"
)

// Identity is the serializable view of the constants above.
type Identity struct {
	BinaryName  string `json:"binary_name" yaml:"binary_name"`
	Description string `json:"description" yaml:"description"`
	EnvPrefix   string `json:"env_prefix" yaml:"env_prefix"`
	ConfigName  string `json:"config_name" yaml:"config_name"`
}

// Get returns the application identity.
func Get() Identity {
	return Identity{
		BinaryName:  BinaryName,
		Description: Description,
		EnvPrefix:   EnvPrefix,
		ConfigName:  ConfigName,
	}
}
