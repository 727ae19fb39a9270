package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/resortgenius/concierge-engine/pkg/llm"
)

type fakeRetriever struct {
	chunks []Chunk
	err    error

	gotScope string
	gotK     int
}

func (f *fakeRetriever) Retrieve(_ context.Context, _ string, scopeKey string, k int) ([]Chunk, error) {
	f.gotScope, f.gotK = scopeKey, k
	return f.chunks, f.err
}

func TestRAGAnswerer_Answer(t *testing.T) {
	retriever := &fakeRetriever{chunks: []Chunk{
		{Content: "The main pool is open 8am to 8pm.", Source: "facilities.pdf"},
		{Content: "Towels are available at the pool bar.", Source: "facilities.pdf"},
		{Content: "Kids club runs until 5pm.", Source: "kids.pdf"},
	}}
	mock := llm.NewMockLLMClient()
	mock.GenerateResponseFunc = func(_ context.Context, req llm.Request) (*llm.GenerateResponseResult, error) {
		return &llm.GenerateResponseResult{Content: "The pool is open **8am to 8pm**."}, nil
	}

	a := NewRAGAnswerer(retriever, mock, 0, "Club Med Cherating", zap.NewNop())
	answer, err := a.Answer(context.Background(), "pool hours", "tenant-a")
	require.NoError(t, err)

	assert.Equal(t, "The pool is open **8am to 8pm**.", answer.Text)
	assert.Equal(t, []string{"facilities.pdf", "kids.pdf"}, answer.SourceRefs)
	assert.Equal(t, "tenant-a", retriever.gotScope)
	assert.Equal(t, 3, retriever.gotK)

	reqs := mock.Requests()
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].Prompt, "You are a helpful Club Med Cherating resort assistant.")
	assert.Contains(t, reqs[0].Prompt, "The main pool is open 8am to 8pm.\n\n---\n\nTowels")
	assert.Contains(t, reqs[0].Prompt, "Question: pool hours")
}

func TestRAGAnswerer_PropagatesErrors(t *testing.T) {
	boom := errors.New("boom")

	a := NewRAGAnswerer(&fakeRetriever{err: boom}, llm.NewMockLLMClient(), 3, "X", zap.NewNop())
	_, err := a.Answer(context.Background(), "q", "s")
	assert.ErrorIs(t, err, boom)

	mock := llm.NewMockLLMClient()
	mock.GenerateResponseFunc = func(context.Context, llm.Request) (*llm.GenerateResponseResult, error) {
		return nil, boom
	}
	a = NewRAGAnswerer(&fakeRetriever{}, mock, 3, "X", zap.NewNop())
	_, err = a.Answer(context.Background(), "q", "s")
	assert.ErrorIs(t, err, boom)
}

func TestClassName(t *testing.T) {
	assert.Equal(t, "KB_6f1d2c3a4b5e4f708192a3b4c5d6e7f8", ClassName("6f1d2c3a-4b5e-4f70-8192-a3b4c5d6e7f8"))
	assert.Equal(t, "KB_public", ClassName("public"))
}

func TestWeaviateRetriever_Retrieve(t *testing.T) {
	const class = "KB_abc"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/graphql", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		var gql struct {
			Query string `json:"query"`
		}
		require.NoError(t, json.Unmarshal(body, &gql))
		assert.Contains(t, gql.Query, class)
		assert.Contains(t, gql.Query, "nearVector")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data": {"Get": {"KB_abc": [
			{"content": "Breakfast is served at Mutiara.", "source": "dining.pdf", "_additional": {"distance": 0.12}},
			{"content": "", "source": "empty.pdf"},
			{"content": "Dinner at Ikan Bakar.", "source": "dining.pdf", "_additional": {"distance": 0.2}}
		]}}}`))
	}))
	defer srv.Close()

	client, err := NewWeaviateClient(srv.URL)
	require.NoError(t, err)

	embedder := llm.NewMockLLMClient()
	embedder.CreateEmbeddingFunc = func(context.Context, string) ([]float32, error) {
		return []float32{0.1, 0.2}, nil
	}

	r := NewWeaviateRetriever(client, embedder, zap.NewNop())
	chunks, err := r.Retrieve(context.Background(), "breakfast", "abc", 2)
	require.NoError(t, err)

	require.Len(t, chunks, 2)
	assert.Equal(t, "Breakfast is served at Mutiara.", chunks[0].Content)
	assert.Equal(t, "dining.pdf", chunks[0].Source)
	assert.InDelta(t, 0.12, chunks[0].Distance, 1e-9)
	assert.Equal(t, 1, embedder.CreateEmbeddingCalls())
}

func TestNewWeaviateClient_InvalidURL(t *testing.T) {
	_, err := NewWeaviateClient("localhost:8081")
	assert.Error(t, err)
}
