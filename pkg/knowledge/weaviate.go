package knowledge

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
	"go.uber.org/zap"

	"github.com/resortgenius/concierge-engine/pkg/llm"
)

// ClassPrefix starts every per-tenant knowledge class name.
const ClassPrefix = "KB_"

// ClassName maps a tenant scope key to its Weaviate class. Weaviate class
// names only allow letters, digits and underscores.
func ClassName(scopeKey string) string {
	return ClassPrefix + strings.ReplaceAll(scopeKey, "-", "")
}

// WeaviateRetriever searches per-tenant classes by vector similarity.
type WeaviateRetriever struct {
	client   *weaviate.Client
	embedder llm.Embedder
	logger   *zap.Logger
}

var _ Retriever = (*WeaviateRetriever)(nil)

// NewWeaviateClient builds a client from a URL such as http://localhost:8081.
func NewWeaviateClient(rawURL string) (*weaviate.Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid weaviate url %q", rawURL)
	}
	client, err := weaviate.NewClient(weaviate.Config{
		Host:   parsed.Host,
		Scheme: parsed.Scheme,
	})
	if err != nil {
		return nil, fmt.Errorf("create weaviate client: %w", err)
	}
	return client, nil
}

// NewWeaviateRetriever creates a retriever. Query vectors come from embedder.
func NewWeaviateRetriever(client *weaviate.Client, embedder llm.Embedder, logger *zap.Logger) *WeaviateRetriever {
	return &WeaviateRetriever{
		client:   client,
		embedder: embedder,
		logger:   logger.Named("weaviate"),
	}
}

// Retrieve implements Retriever.
func (r *WeaviateRetriever) Retrieve(ctx context.Context, query, scopeKey string, k int) ([]Chunk, error) {
	vector, err := r.embedder.CreateEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	className := ClassName(scopeKey)
	nearVector := r.client.GraphQL().NearVectorArgBuilder().WithVector(vector)

	result, err := r.client.GraphQL().Get().
		WithClassName(className).
		WithFields(
			graphql.Field{Name: "content"},
			graphql.Field{Name: "source"},
			graphql.Field{Name: "_additional { distance }"},
		).
		WithNearVector(nearVector).
		WithLimit(k).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("vector search: %s", result.Errors[0].Message)
	}

	chunks := parseChunks(result, className)
	r.logger.Debug("Retrieved knowledge chunks",
		zap.String("class", className),
		zap.Int("count", len(chunks)))
	return chunks, nil
}

func parseChunks(result *models.GraphQLResponse, className string) []Chunk {
	get, ok := result.Data["Get"].(map[string]interface{})
	if !ok {
		return nil
	}
	objects, ok := get[className].([]interface{})
	if !ok {
		return nil
	}

	chunks := make([]Chunk, 0, len(objects))
	for _, obj := range objects {
		fields, ok := obj.(map[string]interface{})
		if !ok {
			continue
		}
		c := Chunk{}
		c.Content, _ = fields["content"].(string)
		c.Source, _ = fields["source"].(string)
		if additional, ok := fields["_additional"].(map[string]interface{}); ok {
			c.Distance, _ = additional["distance"].(float64)
		}
		if c.Content == "" {
			continue
		}
		chunks = append(chunks, c)
	}
	return chunks
}
