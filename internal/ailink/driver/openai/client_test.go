package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/docquery/docquery/internal/ailink/content"
	"github.com/docquery/docquery/internal/ailink/driver"
	"github.com/docquery/docquery/internal/ratelimit"
)

func userMessages(text string) []content.Message {
	return []content.Message{content.TextMessage(content.RoleUser, text)}
}

func gatedClient(t *testing.T, server *httptest.Server, limiter *ratelimit.Limiter) *Client {
	t.Helper()
	client := NewClient(server.URL, "test-key")
	client.RetryInterval = time.Millisecond
	client.HTTPClient = &http.Client{Transport: ratelimit.NewTransport(limiter, server.Client().Transport)}
	return client
}

func TestClientRequiresAPIKey(t *testing.T) {
	client := NewClient("", "")
	_, err := client.Complete(context.Background(), &driver.Request{Model: "test", Messages: userMessages("hi")})
	require.Error(t, err)
	require.Contains(t, err.Error(), "api key")

	_, err = client.Embed(context.Background(), &driver.EmbedRequest{Model: "test", Input: []string{"hi"}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "api key")
}

func TestClientValidatesRequests(t *testing.T) {
	client := NewClient("", "test-key")

	_, err := client.Complete(context.Background(), &driver.Request{Messages: userMessages("hi")})
	require.ErrorContains(t, err, "model is required")

	_, err = client.Complete(context.Background(), &driver.Request{Model: "test"})
	require.ErrorContains(t, err, "messages are required")

	_, err = client.Embed(context.Background(), &driver.EmbedRequest{Model: "test"})
	require.ErrorContains(t, err, "input is required")
}

func TestClientSendsRequestAndParsesResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		var payload map[string]any
		require.NoError(t, json.Unmarshal(body, &payload))
		require.Equal(t, "test-model", payload["model"])
		require.Equal(t, 0.7, payload["temperature"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"the answer"},"finish_reason":"stop"}],"usage":{"prompt_tokens":1,"completion_tokens":2,"total_tokens":3}}`))
	}))
	defer server.Close()

	limiter, err := ratelimit.New(15, time.Minute)
	require.NoError(t, err)
	client := gatedClient(t, server, limiter)

	temperature := 0.7
	resp, err := client.Complete(context.Background(), &driver.Request{
		Model: "test-model",
		Messages: []content.Message{
			content.TextMessage(content.RoleSystem, "sys"),
			content.TextMessage(content.RoleUser, "usr"),
		},
		Temperature: &temperature,
	})
	require.NoError(t, err)
	require.Equal(t, "stop", resp.FinishReason)
	require.Equal(t, 3, resp.Usage.TotalTokens)
	require.Equal(t, "the answer", content.JoinText(resp.Content))
	require.Equal(t, 1, limiter.Status().CurrentCount)
}

func TestClientEmbedsInInputOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embeddings", r.URL.Path)

		var payload embeddingsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		require.Equal(t, []string{"first", "second"}, payload.Input)

		_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[0.3,0.4]},{"index":0,"embedding":[0.1,0.2]}],"usage":{"prompt_tokens":4,"total_tokens":4}}`))
	}))
	defer server.Close()

	limiter, err := ratelimit.New(15, time.Minute)
	require.NoError(t, err)
	client := gatedClient(t, server, limiter)

	resp, err := client.Embed(context.Background(), &driver.EmbedRequest{Model: "embed", Input: []string{"first", "second"}})
	require.NoError(t, err)
	require.Equal(t, [][]float32{{0.1, 0.2}, {0.3, 0.4}}, resp.Embeddings)
	require.Equal(t, 4, resp.Usage.TotalTokens)
}

func TestClientRejectsMismatchedEmbeddingCount(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[0.1]}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	client.HTTPClient = server.Client()

	_, err := client.Embed(context.Background(), &driver.EmbedRequest{Model: "embed", Input: []string{"a", "b"}})
	require.ErrorContains(t, err, "expected 2 embeddings, got 1")
}

func TestClientErrorsOnNon2xx(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("nope"))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	client.HTTPClient = server.Client()

	_, err := client.Complete(context.Background(), &driver.Request{Model: "test", Messages: userMessages("hi")})
	require.Error(t, err)
	require.Contains(t, err.Error(), "status 401")
	require.Contains(t, err.Error(), "nope")
	require.EqualValues(t, 1, hits.Load())
}

func TestClientRetriesTooManyRequestsThroughLimiter(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"quota"}`))
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	limiter, err := ratelimit.New(15, time.Minute)
	require.NoError(t, err)
	client := gatedClient(t, server, limiter)

	resp, err := client.Complete(context.Background(), &driver.Request{Model: "test", Messages: userMessages("hi")})
	require.NoError(t, err)
	require.Equal(t, "ok", content.JoinText(resp.Content))
	require.EqualValues(t, 3, hits.Load())
	// Every attempt, retries included, consumed a slot.
	require.Equal(t, 3, limiter.Status().CurrentCount)
}

func TestClientGivesUpAfterMaxRetries(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	client.HTTPClient = server.Client()
	client.RetryInterval = time.Millisecond
	client.MaxRetries = 1

	_, err := client.Complete(context.Background(), &driver.Request{Model: "test", Messages: userMessages("hi")})
	var providerErr *driver.ProviderError
	require.ErrorAs(t, err, &providerErr)
	require.Equal(t, http.StatusServiceUnavailable, providerErr.StatusCode)
	require.EqualValues(t, 2, hits.Load())
}

func TestClientStopsWhenLimiterWaitIsCancelled(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer server.Close()

	limiter, err := ratelimit.New(1, time.Hour)
	require.NoError(t, err)
	limiter.Record()
	client := gatedClient(t, server, limiter)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = client.Complete(ctx, &driver.Request{Model: "test", Messages: userMessages("hi")})
	require.ErrorIs(t, err, ratelimit.ErrCancelled)
	require.Zero(t, hits.Load())
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	require.Equal(t, 7*time.Second, parseRetryAfter("7", now))
	require.Zero(t, parseRetryAfter("", now))
	require.Zero(t, parseRetryAfter("-3", now))
	require.Zero(t, parseRetryAfter("soon", now))
	require.Equal(t, 30*time.Second, parseRetryAfter(now.Add(30*time.Second).Format(http.TimeFormat), now))
}
