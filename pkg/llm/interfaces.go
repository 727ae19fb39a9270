// Package llm provides the generative and embedding clients used for
// knowledge answers and translation.
package llm

import (
	"context"
)

// Request is a single-turn chat completion.
type Request struct {
	System      string
	Prompt      string
	Temperature float64
	// MaxTokens caps the completion; 0 uses the provider default.
	MaxTokens int
	// Fast selects the provider's cheaper model, e.g. for language detection.
	Fast bool
}

// GenerateResponseResult contains the completion text and token usage.
type GenerateResponseResult struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// LLMClient defines the interface for chat completion.
// Use this interface for dependency injection to enable mocking in tests.
type LLMClient interface {
	GenerateResponse(ctx context.Context, req Request) (*GenerateResponseResult, error)

	// GetModel returns the configured model name.
	GetModel() string
}

// Embedder produces embedding vectors for retrieval.
type Embedder interface {
	CreateEmbedding(ctx context.Context, input string) ([]float32, error)
}

var (
	_ LLMClient = (*Client)(nil)
	_ Embedder  = (*Client)(nil)
	_ LLMClient = (*AnthropicClient)(nil)
	_ LLMClient = (*BreakerClient)(nil)
)
