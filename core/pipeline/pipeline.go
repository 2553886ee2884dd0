package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ctxforge/ctxforge/core/embedding"
	"github.com/ctxforge/ctxforge/model"
)

// Pipeline combines chunking and embedding into the ingestion path: a
// document goes in, index-ready embedded chunks come out.
type Pipeline struct {
	chunker  *Chunker
	embedder embedding.Embedder
	logger   *slog.Logger
}

// NewPipeline creates a new processing pipeline.
func NewPipeline(chunker *Chunker, embedder embedding.Embedder, logger *slog.Logger) (*Pipeline, error) {
	if chunker == nil {
		return nil, fmt.Errorf("%w: chunker is nil", model.ErrConfig)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is nil", model.ErrConfig)
	}
	return &Pipeline{
		chunker:  chunker,
		embedder: embedder,
		logger:   logger,
	}, nil
}

// Process chunks a document and embeds every chunk in one batch. On any
// embedding failure the whole document fails; partial chunk sets never
// reach the index.
func (p *Pipeline) Process(ctx context.Context, doc *model.Document) ([]*model.Chunk, error) {
	chunks, err := p.chunker.Chunk(doc)
	if err != nil {
		return nil, err
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	embeddings, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed document %s: %w", doc.ID, err)
	}
	if len(embeddings) != len(chunks) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d chunks", model.ErrProviderRejected, len(embeddings), len(chunks))
	}

	for i, chunk := range chunks {
		chunk.Embedding = embeddings[i]
	}

	p.logger.Debug("Processed document",
		slog.String("document_id", doc.ID),
		slog.Int("num_chunks", len(chunks)))

	return chunks, nil
}
