package llm

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/resortgenius/concierge-engine/pkg/config"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"

	defaultAnthropicModel     = "claude-sonnet-4-5-20250929"
	defaultAnthropicFastModel = "claude-haiku-4-5-20251001"
)

// Clients is the set of provider clients the service runs with.
type Clients struct {
	// Chat answers and translates, guarded by a circuit breaker.
	Chat LLMClient
	// Embedder is always OpenAI-compatible; nil when no key is configured.
	Embedder Embedder
}

// NewClients builds the configured chat provider and the embedding client.
func NewClients(cfg *config.LLMConfig, logger *zap.Logger) (*Clients, error) {
	var embedder *Client
	if cfg.APIKey != "" || !strings.Contains(cfg.Endpoint, "api.openai.com") {
		c, err := NewClient(&Config{
			Endpoint:       cfg.Endpoint,
			Model:          cfg.Model,
			FastModel:      cfg.FastModel,
			EmbeddingModel: cfg.EmbeddingModel,
			APIKey:         cfg.APIKey,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create openai client: %w", err)
		}
		embedder = c
	}

	var chat LLMClient
	switch cfg.Provider {
	case ProviderOpenAI:
		if embedder == nil {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for provider %q", cfg.Provider)
		}
		chat = embedder
	case ProviderAnthropic:
		model, fast := cfg.Model, cfg.FastModel
		// The shared defaults name OpenAI models.
		if strings.HasPrefix(model, "gpt-") {
			model = defaultAnthropicModel
		}
		if fast == "" || strings.HasPrefix(fast, "gpt-") {
			fast = defaultAnthropicFastModel
		}
		c, err := NewAnthropicClient(&AnthropicConfig{
			APIKey:    cfg.AnthropicKey,
			Model:     model,
			FastModel: fast,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create anthropic client: %w", err)
		}
		chat = c
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}

	clients := &Clients{Chat: NewBreakerClient(chat, DefaultCircuitBreakerConfig(), logger)}
	if embedder != nil {
		clients.Embedder = embedder
	}
	return clients, nil
}
