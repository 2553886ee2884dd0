package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ctxforge/ctxforge/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openAITestConfig(baseURL string) model.EmbeddingConfig {
	return model.EmbeddingConfig{
		Provider:   "openai",
		Model:      "text-embedding-3-small",
		BaseURL:    baseURL,
		Dimensions: 4,
		Timeout:    5 * time.Second,
	}
}

func TestOpenAIEmbedderNew(t *testing.T) {
	t.Run("Valid call NewOpenAIEmbedder", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "test-key")
		embedder, err := NewOpenAIEmbedder(openAITestConfig("http://localhost:1"))
		assert.NoError(t, err, "Expected NewOpenAIEmbedder to not return an error")
		require.NotNil(t, embedder)
		assert.Equal(t, 4, embedder.Dimensions())
	})

	t.Run("Missing API key is a config error", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "")
		_, err := NewOpenAIEmbedder(openAITestConfig("http://localhost:1"))
		assert.ErrorIs(t, err, model.ErrConfig, "Expected missing API key to fail fast")
	})
}

func TestOpenAIEmbedderEmbed(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req openAIEmbeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := map[string]interface{}{"data": []map[string]interface{}{}}
		data := []map[string]interface{}{}
		// Return embeddings out of order to verify index-based reordering.
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]interface{}{
				"embedding": []float64{float64(i), 0, 0, 0},
				"index":     i,
			})
		}
		resp["data"] = data
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	embedder, err := NewOpenAIEmbedder(openAITestConfig(server.URL))
	require.NoError(t, err)

	t.Run("Embed single text", func(t *testing.T) {
		embedding, err := embedder.Embed(context.Background(), "hello")
		assert.NoError(t, err, "Expected Embed to not return an error")
		assert.Len(t, embedding, 4, "Expected a 4-dimensional embedding")
	})

	t.Run("EmbedBatch preserves input order", func(t *testing.T) {
		embeddings, err := embedder.EmbedBatch(context.Background(), []string{"a", "b", "c"})
		assert.NoError(t, err, "Expected EmbedBatch to not return an error")
		require.Len(t, embeddings, 3, "Expected one embedding per input")
		for i, embedding := range embeddings {
			assert.Equal(t, float32(i), embedding[0], "Expected embeddings ordered by input index")
		}
	})

	t.Run("EmbedBatch with no texts", func(t *testing.T) {
		embeddings, err := embedder.EmbedBatch(context.Background(), nil)
		assert.NoError(t, err)
		assert.Empty(t, embeddings)
	})
}

func TestOpenAIEmbedderErrors(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")

	t.Run("Server error is transient", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "upstream overloaded", http.StatusServiceUnavailable)
		}))
		defer server.Close()

		embedder, err := NewOpenAIEmbedder(openAITestConfig(server.URL))
		require.NoError(t, err)

		_, err = embedder.Embed(context.Background(), "hello")
		assert.ErrorIs(t, err, model.ErrProviderUnavailable, "Expected 503 to map to a transient error")
	})

	t.Run("Rate limit is transient", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		}))
		defer server.Close()

		embedder, err := NewOpenAIEmbedder(openAITestConfig(server.URL))
		require.NoError(t, err)

		_, err = embedder.Embed(context.Background(), "hello")
		assert.ErrorIs(t, err, model.ErrProviderUnavailable, "Expected 429 to map to a transient error")
	})

	t.Run("Client error is a rejection", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "input too long", http.StatusBadRequest)
		}))
		defer server.Close()

		embedder, err := NewOpenAIEmbedder(openAITestConfig(server.URL))
		require.NoError(t, err)

		_, err = embedder.Embed(context.Background(), "hello")
		assert.ErrorIs(t, err, model.ErrProviderRejected, "Expected 400 to map to a permanent rejection")
	})

	t.Run("Unreachable provider is transient", func(t *testing.T) {
		embedder, err := NewOpenAIEmbedder(openAITestConfig("http://127.0.0.1:1"))
		require.NoError(t, err)

		_, err = embedder.Embed(context.Background(), "hello")
		assert.ErrorIs(t, err, model.ErrProviderUnavailable, "Expected a connection failure to be transient")
	})
}
