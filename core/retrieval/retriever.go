// Package retrieval implements the query path of the engine: embed the
// query, pull an oversampled candidate pool from the vector index, re-rank
// it with a composite score and assemble a token-budgeted context payload.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ctxforge/ctxforge/core/embedding"
	"github.com/ctxforge/ctxforge/database"
	"github.com/ctxforge/ctxforge/model"
)

// Retriever selects candidate chunks for a query. It oversamples beyond the
// requested result count so the re-ranker has a meaningful pool to reorder,
// and drops candidates below the similarity floor.
type Retriever struct {
	index    database.ChunksDBHandlerFunctions
	embedder embedding.Embedder
	config   model.RetrievalConfig
	logger   *slog.Logger
}

// NewRetriever creates a new retriever.
func NewRetriever(index database.ChunksDBHandlerFunctions, embedder embedding.Embedder, config model.RetrievalConfig, logger *slog.Logger) (*Retriever, error) {
	if index == nil {
		return nil, fmt.Errorf("%w: index is nil", model.ErrConfig)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is nil", model.ErrConfig)
	}
	return &Retriever{
		index:    index,
		embedder: embedder,
		config:   config,
		logger:   logger,
	}, nil
}

// Retrieve embeds the query text and returns the oversampled, floored
// candidate pool. An empty pool is a valid result, not an error. Index
// failures surface immediately; only the embedding call retries, inside
// the embedder.
func (r *Retriever) Retrieve(ctx context.Context, query model.RetrievalQuery) ([]*model.Chunk, error) {
	if strings.TrimSpace(query.Text) == "" {
		return nil, fmt.Errorf("%w: query text is empty", model.ErrValidation)
	}
	if query.TopK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", model.ErrValidation, query.TopK)
	}

	queryEmbedding, err := r.embedder.Embed(ctx, query.Text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	oversample := query.TopK * r.config.OversampleFactor
	candidates, err := r.index.SelectChunksBySimilarity(queryEmbedding, oversample, r.config.SimilarityFloor, query.Filters)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("Retrieved candidate pool",
		slog.Int("top_k", query.TopK),
		slog.Int("oversample", oversample),
		slog.Int("candidates", len(candidates)))

	return candidates, nil
}
