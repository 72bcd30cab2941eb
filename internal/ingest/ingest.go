// Package ingest chunks plain-text documents and embeds them through the
// rate-limited provider driver, writing one NDJSON record per chunk.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/docquery/docquery/internal/ailink/driver"
	"github.com/docquery/docquery/internal/observability"
	"github.com/docquery/docquery/internal/ratelimit"
)

// Document is a named source text.
type Document struct {
	Source string
	Text   string
}

// Record is one NDJSON output line.
type Record struct {
	Source    string    `json:"source"`
	Chunk     int       `json:"chunk"`
	Offset    int       `json:"offset"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"embedding"`
}

// Summary reports what a Run produced.
type Summary struct {
	Documents int           `json:"documents"`
	Chunks    int           `json:"chunks"`
	Batches   int           `json:"batches"`
	Written   int           `json:"written"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Ingester embeds document chunks in batches. Each batch is one embeddings
// call, and each call takes one slot from the limiter behind Driver.
type Ingester struct {
	Driver driver.Driver
	Model  string

	ChunkSize    int
	ChunkOverlap int
	BatchSize    int
	// Workers caps the number of batches in flight.
	Workers int

	// Limiter is only read for progress reporting; the driver's transport does the gating.
	Limiter *ratelimit.Limiter
	Logger  observability.FieldLogger
	Out     io.Writer
}

type batch struct {
	index int
	items []Record
}

// Run chunks docs, embeds every chunk and writes records to Out in document
// and chunk order. The first failed batch cancels the batches not yet started;
// records of batches that completed are still written.
func (in *Ingester) Run(ctx context.Context, docs []Document) (Summary, error) {
	if err := in.validate(); err != nil {
		return Summary{}, err
	}
	logger := in.logger()
	started := time.Now()

	batches := in.plan(docs)
	summary := Summary{Documents: len(docs), Batches: len(batches)}
	for _, b := range batches {
		summary.Chunks += len(b.items)
	}

	logger.Info("Starting ingest",
		zap.Int("documents", summary.Documents),
		zap.Int("chunks", summary.Chunks),
		zap.Int("batches", summary.Batches),
		zap.Int("workers", in.Workers))

	done := make([][]Record, len(batches))
	p := pool.New().
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError().
		WithMaxGoroutines(in.Workers)
	for _, b := range batches {
		p.Go(func(ctx context.Context) error {
			records, err := in.embed(ctx, b)
			if err != nil {
				return fmt.Errorf("batch %d: %w", b.index+1, err)
			}
			done[b.index] = records
			in.logProgress(logger, b, len(batches))
			return nil
		})
	}
	runErr := p.Wait()

	enc := json.NewEncoder(in.Out)
	for _, records := range done {
		for i := range records {
			if err := enc.Encode(&records[i]); err != nil {
				return summary, errors.Join(runErr, fmt.Errorf("write record: %w", err))
			}
			summary.Written++
		}
	}
	summary.Elapsed = time.Since(started)

	if runErr != nil {
		return summary, runErr
	}
	logger.Info("Ingest complete",
		zap.Int("written", summary.Written),
		zap.Duration("elapsed", summary.Elapsed))
	return summary, nil
}

func (in *Ingester) validate() error {
	switch {
	case in.Driver == nil:
		return errors.New("ingest: driver is required")
	case in.Out == nil:
		return errors.New("ingest: output writer is required")
	case in.ChunkSize <= 0:
		return fmt.Errorf("ingest: chunk size must be positive, got %d", in.ChunkSize)
	case in.ChunkOverlap < 0 || in.ChunkOverlap >= in.ChunkSize:
		return fmt.Errorf("ingest: chunk overlap must be in [0, %d), got %d", in.ChunkSize, in.ChunkOverlap)
	case in.BatchSize <= 0:
		return fmt.Errorf("ingest: batch size must be positive, got %d", in.BatchSize)
	case in.Workers <= 0:
		return fmt.Errorf("ingest: workers must be positive, got %d", in.Workers)
	}
	return nil
}

func (in *Ingester) logger() observability.FieldLogger {
	if in.Logger != nil {
		return in.Logger
	}
	return zap.NewNop()
}

// plan groups the chunks of all documents into batches of BatchSize.
// Batches span document boundaries so small files share provider calls.
func (in *Ingester) plan(docs []Document) []batch {
	var (
		batches []batch
		current []Record
	)
	flush := func() {
		if len(current) == 0 {
			return
		}
		batches = append(batches, batch{index: len(batches), items: current})
		current = nil
	}

	for _, doc := range docs {
		for _, c := range Split(doc.Text, in.ChunkSize, in.ChunkOverlap) {
			current = append(current, Record{Source: doc.Source, Chunk: c.Index, Offset: c.Offset, Text: c.Text})
			if len(current) == in.BatchSize {
				flush()
			}
		}
	}
	flush()
	return batches
}

func (in *Ingester) embed(ctx context.Context, b batch) ([]Record, error) {
	texts := make([]string, len(b.items))
	for i, item := range b.items {
		texts[i] = item.Text
	}

	resp, err := in.Driver.Embed(ctx, &driver.EmbedRequest{Model: in.Model, Input: texts})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Embeddings))
	}

	records := make([]Record, len(b.items))
	copy(records, b.items)
	for i := range records {
		records[i].Embedding = resp.Embeddings[i]
	}
	return records, nil
}

func (in *Ingester) logProgress(logger observability.FieldLogger, b batch, total int) {
	fields := []zap.Field{
		zap.Int("batch", b.index+1),
		zap.Int("total_batches", total),
		zap.Int("chunks", len(b.items)),
	}
	if in.Limiter != nil {
		st := in.Limiter.Status()
		fields = append(fields,
			zap.Int("current_requests", st.CurrentCount),
			zap.Int("remaining_requests", st.Remaining),
			zap.Float64("reset_in_seconds", st.ResetInSeconds()))
	}
	logger.Info("Embedded batch", fields...)
}
