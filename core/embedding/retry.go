package embedding

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ctxforge/ctxforge/model"
)

// RetryingEmbedder wraps an Embedder with bounded exponential backoff on
// transient provider failures. Rejections and validation failures are
// permanent; retrying them would only replay the same refusal.
type RetryingEmbedder struct {
	inner      Embedder
	maxRetries int
}

// NewRetryingEmbedder wraps the given embedder. maxRetries bounds the
// retries after the first attempt; 0 disables retrying.
func NewRetryingEmbedder(inner Embedder, maxRetries int) *RetryingEmbedder {
	return &RetryingEmbedder{
		inner:      inner,
		maxRetries: maxRetries,
	}
}

// Embed generates a vector embedding, retrying transient failures.
func (e *RetryingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var result []float32
	err := e.retry(ctx, func() error {
		var err error
		result, err = e.inner.Embed(ctx, text)
		return err
	})
	return result, err
}

// EmbedBatch generates embeddings for multiple texts, retrying transient
// failures. The whole batch is retried; providers treat the batch as one
// request.
func (e *RetryingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var result [][]float32
	err := e.retry(ctx, func() error {
		var err error
		result, err = e.inner.EmbedBatch(ctx, texts)
		return err
	})
	return result, err
}

func (e *RetryingEmbedder) retry(ctx context.Context, operation func() error) error {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 100 * time.Millisecond
	expBackoff.MaxInterval = 5 * time.Second

	wrapped := func() error {
		err := operation()
		if err == nil {
			return nil
		}
		if errors.Is(err, model.ErrProviderUnavailable) {
			return err
		}
		return backoff.Permanent(err)
	}

	return backoff.Retry(wrapped, backoff.WithContext(
		backoff.WithMaxRetries(expBackoff, uint64(e.maxRetries)), ctx))
}

// Dimensions returns the embedding vector size.
func (e *RetryingEmbedder) Dimensions() int {
	return e.inner.Dimensions()
}

// Close releases the wrapped embedder's resources.
func (e *RetryingEmbedder) Close() error {
	return e.inner.Close()
}
