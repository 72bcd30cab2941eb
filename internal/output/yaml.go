package output

import (
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/docquery/docquery/internal/ingest"
	"github.com/docquery/docquery/internal/ratelimit"
)

// YAMLFormatter renders results as YAML.
type YAMLFormatter struct{}

// FormatStatus renders the limiter status as YAML.
func (f *YAMLFormatter) FormatStatus(status ratelimit.Status) (string, error) {
	return marshalYAML(status)
}

// FormatSummary renders an ingest summary as YAML.
func (f *YAMLFormatter) FormatSummary(summary ingest.Summary) (string, error) {
	return marshalYAML(viewSummary(summary))
}

func marshalYAML(v any) (string, error) {
	data, err := yaml.Marshal(v)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(data), "\n"), nil
}
