package model

import (
	"fmt"
	"time"
)

// Chunk is a bounded-size slice of a document's text, the unit of embedding
// and retrieval. Its ID is derived from the document ID and chunk index so
// re-chunking unchanged text produces identical IDs (required for upsert
// idempotence).
type Chunk struct {
	ID              string     `json:"id"`
	DocumentID      string     `json:"document_id"`
	DocumentVersion int64      `json:"document_version"`
	ChunkIndex      int        `json:"chunk_index"`
	Text            string     `json:"text"`
	TokenCount      int        `json:"token_count"`
	Embedding       []float32  `json:"embedding,omitempty"`
	SourceType      SourceType `json:"source_type"`
	SourceMetadata  Metadata   `json:"source_metadata"`
	CreatedAt       time.Time  `json:"created_at"`
	// Result fields, populated by similarity queries only.
	Similarity float64 `json:"similarity,omitempty"`
}

// ChunkID derives the stable chunk identifier for a document ID and index.
func ChunkID(documentID string, index int) string {
	return fmt.Sprintf("%s#%d", documentID, index)
}
