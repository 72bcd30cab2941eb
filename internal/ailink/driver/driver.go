package driver

import (
	"context"

	"github.com/docquery/docquery/internal/ailink/content"
)

// Driver defines the interface for AI providers.
//
// Every network call a driver makes goes through the process rate limiter.
type Driver interface {
	// Complete sends a chat completion request and returns the response.
	Complete(ctx context.Context, req *Request) (*Response, error)
	// Embed requests one embedding vector per input text.
	Embed(ctx context.Context, req *EmbedRequest) (*EmbedResponse, error)
	// Name returns the driver identifier (e.g., "openai").
	Name() string
}

// Usage contains token usage statistics.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Request is a provider-agnostic completion request.
type Request struct {
	Model       string
	Messages    []content.Message
	Temperature *float64
	MaxTokens   *int
}

// Response is a provider-agnostic completion response.
type Response struct {
	Content      []content.ContentBlock
	FinishReason string
	Usage        *Usage
}

// EmbedRequest asks for embeddings of Input, in order.
type EmbedRequest struct {
	Model string
	Input []string
}

// EmbedResponse holds one vector per input, in input order.
type EmbedResponse struct {
	Embeddings [][]float32
	Usage      *Usage
}
