package openai

import (
	"fmt"
	"sort"

	"github.com/docquery/docquery/internal/ailink/content"
	"github.com/docquery/docquery/internal/ailink/driver"
)

type chatCompletionResponse struct {
	Choices []choice `json:"choices"`
	Usage   *usage   `json:"usage,omitempty"`
}

type choice struct {
	Message      chatResponseMessage `json:"message"`
	FinishReason string              `json:"finish_reason"`
}

type chatResponseMessage struct {
	Content string `json:"content"`
}

type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type embeddingsResponse struct {
	Data  []embeddingData `json:"data"`
	Usage *usage          `json:"usage,omitempty"`
}

type embeddingData struct {
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

func toDriverResponse(resp *chatCompletionResponse) (*driver.Response, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty response choices")
	}

	choice := resp.Choices[0]
	return &driver.Response{
		Content:      []content.ContentBlock{{Type: content.ContentTypeText, Text: choice.Message.Content}},
		FinishReason: choice.FinishReason,
		Usage:        toDriverUsage(resp.Usage),
	}, nil
}

func toEmbedResponse(resp *embeddingsResponse, inputs int) (*driver.EmbedResponse, error) {
	if resp == nil || len(resp.Data) != inputs {
		got := 0
		if resp != nil {
			got = len(resp.Data)
		}
		return nil, fmt.Errorf("expected %d embeddings, got %d", inputs, got)
	}

	data := append([]embeddingData(nil), resp.Data...)
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	vectors := make([][]float32, 0, len(data))
	for _, item := range data {
		vectors = append(vectors, item.Embedding)
	}
	return &driver.EmbedResponse{Embeddings: vectors, Usage: toDriverUsage(resp.Usage)}, nil
}

func toDriverUsage(u *usage) *driver.Usage {
	if u == nil {
		return nil
	}
	return &driver.Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
}
