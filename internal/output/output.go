// Package output renders limiter status and ingest summaries for the CLI.
package output

import (
	"fmt"
	"strings"

	"github.com/docquery/docquery/internal/ingest"
	"github.com/docquery/docquery/internal/ratelimit"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatMarkdown Format = "markdown"
	// FormatText is the plain status block printed by chat and search.
	FormatText Format = "text"
)

// Formatter renders command results.
type Formatter interface {
	FormatStatus(status ratelimit.Status) (string, error)
	FormatSummary(summary ingest.Summary) (string, error)
}

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatYAML), "yml":
		return FormatYAML, nil
	case string(FormatMarkdown), "md":
		return FormatMarkdown, nil
	case string(FormatText):
		return FormatText, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatYAML:
		return &YAMLFormatter{}
	case FormatMarkdown:
		return &TableFormatter{Markdown: true}
	case FormatText:
		return &TextFormatter{}
	default:
		return &TableFormatter{}
	}
}

// summaryView is the wire shape of an ingest summary.
type summaryView struct {
	Documents      int     `json:"documents" yaml:"documents"`
	Chunks         int     `json:"chunks" yaml:"chunks"`
	Batches        int     `json:"batches" yaml:"batches"`
	Written        int     `json:"written" yaml:"written"`
	ElapsedSeconds float64 `json:"elapsed_seconds" yaml:"elapsed_seconds"`
}

func viewSummary(s ingest.Summary) summaryView {
	return summaryView{
		Documents:      s.Documents,
		Chunks:         s.Chunks,
		Batches:        s.Batches,
		Written:        s.Written,
		ElapsedSeconds: float64(s.Elapsed.Milliseconds()) / 1000,
	}
}

// TextFormatter renders the plain status block.
type TextFormatter struct{}

// FormatStatus renders the multi-line status block.
func (f *TextFormatter) FormatStatus(status ratelimit.Status) (string, error) {
	return ratelimit.FormatStatus(status), nil
}

// FormatSummary renders a one-line ingest summary.
func (f *TextFormatter) FormatSummary(summary ingest.Summary) (string, error) {
	v := viewSummary(summary)
	return fmt.Sprintf("Ingested %d documents: %d chunks in %d batches, %d records written (%.1fs)",
		v.Documents, v.Chunks, v.Batches, v.Written, v.ElapsedSeconds), nil
}
