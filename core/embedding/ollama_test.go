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

func ollamaTestConfig(baseURL string) model.EmbeddingConfig {
	return model.EmbeddingConfig{
		Provider:   "ollama",
		Model:      "nomic-embed-text",
		BaseURL:    baseURL,
		Dimensions: 4,
		Timeout:    5 * time.Second,
	}
}

func TestOllamaEmbedderEmbed(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		assert.Equal(t, "/api/embeddings", r.URL.Path)

		var req ollamaEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)

		json.NewEncoder(w).Encode(ollamaEmbedResponse{
			Embedding: []float64{0.1, 0.2, 0.3, 0.4},
		})
	}))
	defer server.Close()

	embedder, err := NewOllamaEmbedder(ollamaTestConfig(server.URL))
	require.NoError(t, err)

	t.Run("Embed single text", func(t *testing.T) {
		embedding, err := embedder.Embed(context.Background(), "hello")
		assert.NoError(t, err, "Expected Embed to not return an error")
		assert.Len(t, embedding, 4, "Expected a 4-dimensional embedding")
	})

	t.Run("EmbedBatch issues one request per text", func(t *testing.T) {
		requests = 0
		embeddings, err := embedder.EmbedBatch(context.Background(), []string{"a", "b", "c"})
		assert.NoError(t, err, "Expected EmbedBatch to not return an error")
		assert.Len(t, embeddings, 3, "Expected one embedding per input")
		assert.Equal(t, 3, requests, "Expected one provider call per text")
	})
}

func TestOllamaEmbedderErrors(t *testing.T) {
	t.Run("Server error is transient", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model loading", http.StatusInternalServerError)
		}))
		defer server.Close()

		embedder, err := NewOllamaEmbedder(ollamaTestConfig(server.URL))
		require.NoError(t, err)

		_, err = embedder.Embed(context.Background(), "hello")
		assert.ErrorIs(t, err, model.ErrProviderUnavailable, "Expected 500 to map to a transient error")
	})

	t.Run("Client error is a rejection", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "unknown model", http.StatusNotFound)
		}))
		defer server.Close()

		embedder, err := NewOllamaEmbedder(ollamaTestConfig(server.URL))
		require.NoError(t, err)

		_, err = embedder.Embed(context.Background(), "hello")
		assert.ErrorIs(t, err, model.ErrProviderRejected, "Expected 404 to map to a permanent rejection")
	})

	t.Run("Empty embedding is a rejection", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(ollamaEmbedResponse{})
		}))
		defer server.Close()

		embedder, err := NewOllamaEmbedder(ollamaTestConfig(server.URL))
		require.NoError(t, err)

		_, err = embedder.Embed(context.Background(), "hello")
		assert.ErrorIs(t, err, model.ErrProviderRejected, "Expected an empty embedding to be rejected")
	})
}
