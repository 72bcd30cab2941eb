package output

import (
	"encoding/json"

	"github.com/docquery/docquery/internal/ingest"
	"github.com/docquery/docquery/internal/ratelimit"
)

// JSONFormatter renders results as JSON.
type JSONFormatter struct {
	Indent bool
}

// FormatStatus renders the limiter status as JSON.
func (f *JSONFormatter) FormatStatus(status ratelimit.Status) (string, error) {
	return f.marshal(status)
}

// FormatSummary renders an ingest summary as JSON.
func (f *JSONFormatter) FormatSummary(summary ingest.Summary) (string, error) {
	return f.marshal(viewSummary(summary))
}

func (f *JSONFormatter) marshal(v any) (string, error) {
	var (
		data []byte
		err  error
	)

	if f.Indent {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return "", err
	}

	return string(data), nil
}
