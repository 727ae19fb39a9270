package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"
)

const defaultAnthropicMaxTokens = 1024

// AnthropicClient generates completions with the Anthropic Messages API.
// It has no embedding endpoint; retrieval keeps using an OpenAI embedder.
type AnthropicClient struct {
	client    *anthropic.Client
	model     string
	fastModel string
	logger    *zap.Logger
}

// AnthropicConfig holds configuration for creating an AnthropicClient.
type AnthropicConfig struct {
	APIKey    string
	Model     string
	FastModel string
	// BaseURL overrides the API location (tests, proxies).
	BaseURL string
}

// NewAnthropicClient creates a new Anthropic client.
func NewAnthropicClient(cfg *AnthropicConfig, logger *zap.Logger) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	var opts []anthropic.ClientOption
	if cfg.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")))
	}

	fast := cfg.FastModel
	if fast == "" {
		fast = cfg.Model
	}

	return &AnthropicClient{
		client:    anthropic.NewClient(cfg.APIKey, opts...),
		model:     cfg.Model,
		fastModel: fast,
		logger:    logger.Named("llm"),
	}, nil
}

// GenerateResponse generates a single-turn message.
func (c *AnthropicClient) GenerateResponse(ctx context.Context, req Request) (*GenerateResponseResult, error) {
	model := c.model
	if req.Fast {
		model = c.fastModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	temperature := float32(req.Temperature)
	prompt := req.Prompt

	start := time.Now()
	resp, err := c.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:       anthropic.Model(model),
		System:      req.System,
		MaxTokens:   maxTokens,
		Temperature: &temperature,
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{
				{Type: "text", Text: &prompt},
			}},
		},
	})
	if err != nil {
		c.logger.Warn("LLM request failed",
			zap.String("model", model),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, classifyWithContext(err, model, "anthropic")
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			text.WriteString(*block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, NewErrorWithContext(ErrorTypeUnknown, "no text in response", false, nil, model, "anthropic", 0)
	}

	return &GenerateResponseResult{
		Content:          strings.TrimSpace(text.String()),
		PromptTokens:     resp.Usage.InputTokens,
		CompletionTokens: resp.Usage.OutputTokens,
		TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
	}, nil
}

// GetModel returns the configured model name.
func (c *AnthropicClient) GetModel() string {
	return c.model
}
