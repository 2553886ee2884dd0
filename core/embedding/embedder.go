// Package embedding provides the embedding providers of the engine. All
// providers implement the Embedder interface; failures are classified into
// the model error taxonomy so callers can decide what is retryable.
package embedding

import (
	"context"
	"fmt"

	"github.com/ctxforge/ctxforge/model"
)

// Embedder generates vector embeddings for text. Implementations must be
// safe for concurrent use and must return vectors of a fixed dimension for
// their whole lifetime.
type Embedder interface {
	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch generates embeddings for multiple texts, preserving order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dimensions returns the embedding vector size.
	Dimensions() int
	// Close releases resources.
	Close() error
}

// NewEmbedder creates the embedder selected by the configuration, wrapped
// with retry on transient provider failures.
func NewEmbedder(config model.EmbeddingConfig) (Embedder, error) {
	var embedder Embedder
	var err error

	switch config.Provider {
	case "openai":
		embedder, err = NewOpenAIEmbedder(config)
	case "ollama":
		embedder, err = NewOllamaEmbedder(config)
	case "local":
		embedder, err = NewLocalEmbedder(config)
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", model.ErrConfig, config.Provider)
	}
	if err != nil {
		return nil, err
	}

	return NewRetryingEmbedder(embedder, config.MaxRetries), nil
}

// checkBatch verifies that a provider returned one vector per input text.
func checkBatch(texts []string, embeddings [][]float32) error {
	if len(embeddings) != len(texts) {
		return fmt.Errorf("%w: expected %d embeddings, got %d", model.ErrProviderRejected, len(texts), len(embeddings))
	}
	for i, embedding := range embeddings {
		if len(embedding) == 0 {
			return fmt.Errorf("%w: empty embedding for text %d", model.ErrProviderRejected, i)
		}
	}
	return nil
}
