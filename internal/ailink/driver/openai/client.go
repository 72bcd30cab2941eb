package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/docquery/docquery/internal/ailink/driver"
	"github.com/docquery/docquery/internal/ratelimit"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Retry defaults.
const (
	DefaultMaxRetries    = 2
	DefaultRetryInterval = time.Second
)

// Client implements the OpenAI-compatible driver via direct HTTP.
//
// The same client serves every provider exposing the OpenAI wire shape
// (OpenAI itself, Gemini's /v1beta/openai endpoint); ProviderName labels errors and traces.
type Client struct {
	BaseURL      string
	APIKey       string
	ProviderName string
	// HTTPClient should carry a ratelimit.Transport so every attempt is gated.
	// Attempt timeouts belong on that transport so they start after the grant.
	HTTPClient *http.Client
	// MaxRetries applies to 429 and 5xx responses and to transport failures.
	MaxRetries    int
	RetryInterval time.Duration
	Logger        ratelimit.Logger
	Tracer        *driver.Tracer
}

// NewClient returns a client with defaults applied.
func NewClient(baseURL, apiKey string) *Client {
	url := strings.TrimSpace(baseURL)
	if url == "" {
		url = defaultBaseURL
	}

	return &Client{
		BaseURL:       url,
		APIKey:        strings.TrimSpace(apiKey),
		ProviderName:  "openai",
		MaxRetries:    DefaultMaxRetries,
		RetryInterval: DefaultRetryInterval,
	}
}

// Name returns the driver identifier.
func (c *Client) Name() string {
	if c == nil || c.ProviderName == "" {
		return "openai"
	}
	return c.ProviderName
}

// Complete sends a chat completion request.
func (c *Client) Complete(ctx context.Context, req *driver.Request) (*driver.Response, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	payload, err := buildChatRequest(req)
	if err != nil {
		return nil, err
	}

	var parsed chatCompletionResponse
	if err := c.post(ctx, "/chat/completions", req.Model, payload, &parsed); err != nil {
		return nil, err
	}
	return toDriverResponse(&parsed)
}

// Embed sends an embeddings request.
func (c *Client) Embed(ctx context.Context, req *driver.EmbedRequest) (*driver.EmbedResponse, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	payload, err := buildEmbeddingsRequest(req)
	if err != nil {
		return nil, err
	}

	var parsed embeddingsResponse
	if err := c.post(ctx, "/embeddings", req.Model, payload, &parsed); err != nil {
		return nil, err
	}
	return toEmbedResponse(&parsed, len(req.Input))
}

func (c *Client) ready() error {
	if c == nil {
		return fmt.Errorf("openai client not configured")
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("api key is required")
	}
	return nil
}

// post sends payload to path, retrying retryable failures, and decodes the 2xx body into out.
func (c *Client) post(ctx context.Context, path, model string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	url := strings.TrimRight(c.BaseURL, "/") + path

	policy := &retryAfterBackOff{BackOff: c.backoffPolicy()}
	maxRetries := c.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	var respBody []byte
	attempt := 0
	operation := func() error {
		attempt++
		data, err := c.send(ctx, url, model, attempt, body)
		if err == nil {
			respBody = data
			return nil
		}

		var providerErr *driver.ProviderError
		switch {
		case errors.As(err, &providerErr):
			if !providerErr.Retryable() {
				return backoff.Permanent(err)
			}
			policy.next = providerErr.RetryAfter
			return err
		case errors.Is(err, ratelimit.ErrCancelled), ctx.Err() != nil:
			return backoff.Permanent(err)
		default:
			return err
		}
	}
	notify := func(err error, wait time.Duration) {
		c.logger().Warn("Provider request failed, retrying",
			zap.String("provider", c.Name()),
			zap.String("path", path),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err))
	}

	b := backoff.WithMaxRetries(backoff.WithContext(policy, ctx), uint64(maxRetries))
	if err := backoff.RetryNotify(operation, b, notify); err != nil {
		return err
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, url, model string, attempt int, body []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	start := time.Now()
	entry := driver.TraceEntry{
		Driver:      c.Name(),
		Endpoint:    url,
		Method:      http.MethodPost,
		Model:       model,
		Attempt:     attempt,
		RequestBody: body,
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		entry.Error = err.Error()
		entry.DurationMs = time.Since(start).Milliseconds()
		c.Tracer.Write(entry)
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup

	respBody, err := io.ReadAll(resp.Body)
	entry.StatusCode = resp.StatusCode
	entry.DurationMs = time.Since(start).Milliseconds()
	if json.Valid(respBody) {
		entry.Response = respBody
	}
	c.Tracer.Write(entry)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &driver.ProviderError{
			Provider:    c.Name(),
			StatusCode:  resp.StatusCode,
			Message:     strings.TrimSpace(string(respBody)),
			RawResponse: respBody,
			RetryAfter:  parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
		}
	}
	return respBody, nil
}

func (c *Client) backoffPolicy() backoff.BackOff {
	interval := c.RetryInterval
	if interval <= 0 {
		interval = DefaultRetryInterval
	}
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = interval
	policy.MaxInterval = 30 * interval
	return policy
}

func (c *Client) logger() ratelimit.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

// retryAfterBackOff stretches the next delay to a provider supplied Retry-After.
type retryAfterBackOff struct {
	backoff.BackOff
	next time.Duration
}

func (b *retryAfterBackOff) NextBackOff() time.Duration {
	d := b.BackOff.NextBackOff()
	if d != backoff.Stop && b.next > d {
		d = b.next
	}
	b.next = 0
	return d
}

func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}
