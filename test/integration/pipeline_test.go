package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/docquery/docquery/internal/ailink"
	"github.com/docquery/docquery/internal/ailink/driver"
	"github.com/docquery/docquery/internal/ingest"
	"github.com/docquery/docquery/internal/ratelimit"
)

// fakeProvider speaks the OpenAI embeddings wire shape. The first
// rejectFirst requests are answered with 429.
type fakeProvider struct {
	rejectFirst int32
	hits        atomic.Int32
}

func (p *fakeProvider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n := p.hits.Add(1)
	if n <= p.rejectFirst {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"quota exceeded"}}`))
		return
	}

	var req struct {
		Input []string `json:"input"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var data []string
	for i, text := range req.Input {
		data = append(data, fmt.Sprintf(`{"index":%d,"embedding":[%d,0.5]}`, i, len(text)))
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = fmt.Fprintf(w, `{"data":[%s]}`, strings.Join(data, ","))
}

func newGatedDriver(t *testing.T, provider http.Handler, limiter *ratelimit.Limiter) driver.Driver {
	t.Helper()

	ts := &httptest.Server{
		Listener: listenOrSkip(t),
		Config:   &http.Server{Handler: provider},
	}
	ts.Start()
	t.Cleanup(ts.Close)

	cfg := ailink.Config{
		BaseURL:       ts.URL,
		APIKey:        "test-key",
		Timeout:       5 * time.Second,
		MaxRetries:    2,
		RetryInterval: time.Millisecond,
	}
	require.NoError(t, cfg.Normalize(nil))

	drv, err := ailink.NewDriver(cfg, ailink.Deps{Limiter: limiter})
	require.NoError(t, err)
	return drv
}

func TestProviderRetriesEachTakeALimiterSlot(t *testing.T) {
	limiter, err := ratelimit.New(5, time.Minute)
	require.NoError(t, err)
	provider := &fakeProvider{rejectFirst: 1}
	drv := newGatedDriver(t, provider, limiter)

	resp, err := drv.Embed(context.Background(), &driver.EmbedRequest{Model: "m", Input: []string{"hello"}})
	require.NoError(t, err)
	require.Equal(t, [][]float32{{5, 0.5}}, resp.Embeddings)

	require.Equal(t, int32(2), provider.hits.Load())
	require.Equal(t, 2, limiter.Status().CurrentCount)
}

func TestIngestPipelineIsGatedPerBatch(t *testing.T) {
	limiter, err := ratelimit.New(15, time.Minute)
	require.NoError(t, err)
	provider := &fakeProvider{}
	drv := newGatedDriver(t, provider, limiter)

	docs := []ingest.Document{
		{Source: "a.txt", Text: "alpha beta gamma delta"},
		{Source: "b.txt", Text: "epsilon"},
	}
	var out bytes.Buffer
	in := &ingest.Ingester{
		Driver:       drv,
		Model:        "m",
		ChunkSize:    11,
		ChunkOverlap: 0,
		BatchSize:    2,
		Workers:      2,
		Limiter:      limiter,
		Out:          &out,
	}
	summary, err := in.Run(context.Background(), docs)
	require.NoError(t, err)

	require.Equal(t, summary.Batches, limiter.Status().CurrentCount)
	require.Equal(t, int32(summary.Batches), provider.hits.Load())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, summary.Chunks)
	var first ingest.Record
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.Equal(t, "a.txt", first.Source)
	require.Equal(t, 0, first.Chunk)
	require.Len(t, first.Embedding, 2)
}

func TestSaturatedLimiterCancelsProviderCall(t *testing.T) {
	limiter, err := ratelimit.New(1, time.Minute)
	require.NoError(t, err)
	provider := &fakeProvider{}
	drv := newGatedDriver(t, provider, limiter)

	_, err = drv.Embed(context.Background(), &driver.EmbedRequest{Model: "m", Input: []string{"first"}})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = drv.Embed(ctx, &driver.EmbedRequest{Model: "m", Input: []string{"second"}})
	require.ErrorIs(t, err, ratelimit.ErrCancelled)

	require.Equal(t, int32(1), provider.hits.Load(), "a cancelled wait must not reach the provider")
	require.Equal(t, 1, limiter.Status().CurrentCount)
}
