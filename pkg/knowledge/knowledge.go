// Package knowledge answers guest questions from a tenant's knowledge base:
// retrieve the closest chunks, then let the LLM answer from them only.
package knowledge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/resortgenius/concierge-engine/pkg/llm"
)

// Answer is a generated answer plus the documents it was drawn from.
type Answer struct {
	Text       string
	SourceRefs []string
}

// Chunk is one retrieved passage.
type Chunk struct {
	Content  string
	Source   string
	Distance float64
}

// Answerer produces an answer for a query within one tenant's knowledge scope.
type Answerer interface {
	Answer(ctx context.Context, query, scopeKey string) (*Answer, error)
}

// Retriever returns up to k chunks closest to query within scopeKey.
type Retriever interface {
	Retrieve(ctx context.Context, query, scopeKey string, k int) ([]Chunk, error)
}

// RAGAnswerer combines a Retriever with an LLM generator.
type RAGAnswerer struct {
	retriever    Retriever
	llm          llm.LLMClient
	topK         int
	propertyName string
	logger       *zap.Logger
}

var _ Answerer = (*RAGAnswerer)(nil)

// NewRAGAnswerer creates an answerer. topK <= 0 defaults to 3.
func NewRAGAnswerer(retriever Retriever, client llm.LLMClient, topK int, propertyName string, logger *zap.Logger) *RAGAnswerer {
	if topK <= 0 {
		topK = 3
	}
	return &RAGAnswerer{
		retriever:    retriever,
		llm:          client,
		topK:         topK,
		propertyName: propertyName,
		logger:       logger.Named("knowledge"),
	}
}

// Answer implements Answerer.
func (a *RAGAnswerer) Answer(ctx context.Context, query, scopeKey string) (*Answer, error) {
	start := time.Now()

	chunks, err := a.retriever.Retrieve(ctx, query, scopeKey, a.topK)
	if err != nil {
		return nil, fmt.Errorf("retrieve context: %w", err)
	}

	result, err := a.llm.GenerateResponse(ctx, llm.Request{
		Prompt:      buildPrompt(a.propertyName, query, chunks),
		Temperature: 0.7,
	})
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	a.logger.Debug("Knowledge answer generated",
		zap.String("scope", scopeKey),
		zap.Int("chunks", len(chunks)),
		zap.Duration("elapsed", time.Since(start)))

	return &Answer{
		Text:       result.Content,
		SourceRefs: sourceRefs(chunks),
	}, nil
}

// sourceRefs returns the distinct non-empty sources in retrieval order.
func sourceRefs(chunks []Chunk) []string {
	refs := make([]string, 0, len(chunks))
	seen := make(map[string]struct{}, len(chunks))
	for _, c := range chunks {
		if c.Source == "" {
			continue
		}
		if _, dup := seen[c.Source]; dup {
			continue
		}
		seen[c.Source] = struct{}{}
		refs = append(refs, c.Source)
	}
	return refs
}

const promptInstructions = `Instructions for your response:
1. Structure your answer with clear hierarchy:
   - Start with a direct, concise answer
   - Use ### for main section headings when multiple topics are covered
   - Use **bold** for restaurant names, times, prices, and important terms
   - Use bullet points (-) for main items
   - Use sub-bullets (  -) with 2-space indentation for details under main items

2. Formatting guidelines:
   - Each main point should be on its own line
   - Sub-points should be clearly indented under their parent
   - Add blank lines between major sections
   - Keep bullet points concise (1-2 lines max)

3. If the context does not contain the answer, say so and suggest contacting the front desk.`

func buildPrompt(propertyName, query string, chunks []Chunk) string {
	passages := make([]string, len(chunks))
	for i, c := range chunks {
		passages[i] = c.Content
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are a helpful %s resort assistant. Answer the question based only on the following context.\n\n", propertyName)
	b.WriteString("Context:\n")
	b.WriteString(strings.Join(passages, "\n\n---\n\n"))
	b.WriteString("\n\n---\n\n")
	fmt.Fprintf(&b, "Question: %s\n\n", query)
	b.WriteString(promptInstructions)
	b.WriteString("\n\nAnswer:\n")
	return b.String()
}
