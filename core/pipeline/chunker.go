package pipeline

import (
	"fmt"
	"math"
	"strings"

	"github.com/ctxforge/ctxforge/model"
)

// Chunker splits document text into overlapping token windows. Overlap
// keeps context that spans a window boundary retrievable from both sides.
type Chunker struct {
	config model.ChunkingConfig
}

// NewChunker creates a chunker with the given configuration.
func NewChunker(config model.ChunkingConfig) (*Chunker, error) {
	if config.MaxChunkTokens <= 0 {
		return nil, fmt.Errorf("%w: max_chunk_tokens must be positive, got %d", model.ErrConfig, config.MaxChunkTokens)
	}
	if config.OverlapFraction < 0 || config.OverlapFraction >= 1 {
		return nil, fmt.Errorf("%w: overlap_fraction must be in [0, 1), got %f", model.ErrConfig, config.OverlapFraction)
	}
	return &Chunker{config: config}, nil
}

// Chunk splits a document into chunks. Every chunk carries a copy of the
// document's source type and metadata so the index can filter without a
// join, and an ID derived from the document ID and chunk index so identical
// input yields identical IDs.
func (c *Chunker) Chunk(doc *model.Document) ([]*model.Chunk, error) {
	if strings.TrimSpace(doc.Text) == "" {
		return nil, fmt.Errorf("%w: document %q has no text", model.ErrValidation, doc.ID)
	}

	tokens := Tokenize(doc.Text)
	if c.config.MaxDocumentTokens > 0 && len(tokens) > c.config.MaxDocumentTokens {
		return nil, fmt.Errorf("%w: document %q has %d tokens, limit is %d; split it upstream",
			model.ErrValidation, doc.ID, len(tokens), c.config.MaxDocumentTokens)
	}

	window := c.config.MaxChunkTokens
	overlap := int(math.Floor(float64(window) * c.config.OverlapFraction))
	step := window - overlap

	var chunks []*model.Chunk
	for start, index := 0, 0; start < len(tokens); start, index = start+step, index+1 {
		end := start + window
		if end > len(tokens) {
			end = len(tokens)
		}

		text := strings.Join(tokens[start:end], " ")
		chunks = append(chunks, &model.Chunk{
			ID:              model.ChunkID(doc.ID, index),
			DocumentID:      doc.ID,
			DocumentVersion: doc.Version,
			ChunkIndex:      index,
			Text:            text,
			TokenCount:      end - start,
			SourceType:      doc.SourceType,
			SourceMetadata:  doc.Metadata,
		})

		if end == len(tokens) {
			break
		}
	}

	return chunks, nil
}
