package output

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/docquery/docquery/internal/ingest"
	"github.com/docquery/docquery/internal/ratelimit"
)

// TableFormatter renders results as an ASCII table, or a Markdown table.
type TableFormatter struct {
	Markdown bool
}

// FormatStatus renders the limiter status as a two-column table.
func (f *TableFormatter) FormatStatus(status ratelimit.Status) (string, error) {
	reset := "counter clear"
	if status.ResetIn > 0 {
		reset = fmt.Sprintf("%.1fs", status.ResetInSeconds())
	}
	proceed := "no"
	if status.CanProceed {
		proceed = "yes"
	}

	t := f.newWriter()
	t.AppendHeader(table.Row{"Limiter", status.Name})
	t.AppendRows([]table.Row{
		{"Window", status.Window.String()},
		{"Current requests", fmt.Sprintf("%d/%d", status.CurrentCount, status.MaxRequests)},
		{"Remaining requests", status.Remaining},
		{"Reset in", reset},
		{"Can proceed", proceed},
	})
	return f.render(t), nil
}

// FormatSummary renders an ingest summary.
func (f *TableFormatter) FormatSummary(summary ingest.Summary) (string, error) {
	v := viewSummary(summary)

	t := f.newWriter()
	t.AppendHeader(table.Row{"Documents", "Chunks", "Batches", "Written", "Elapsed"})
	t.AppendRow(table.Row{v.Documents, v.Chunks, v.Batches, v.Written, fmt.Sprintf("%.1fs", v.ElapsedSeconds)})
	return f.render(t), nil
}

func (f *TableFormatter) newWriter() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	return t
}

func (f *TableFormatter) render(t table.Writer) string {
	if f.Markdown {
		return t.RenderMarkdown()
	}
	return t.Render()
}
