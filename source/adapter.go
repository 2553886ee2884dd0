// Package source connects external content systems to the engine. Adapters
// normalize source records into documents; the syncer pulls changes
// incrementally and keeps the index in step with each source.
package source

import (
	"context"

	"github.com/ctxforge/ctxforge/model"
)

// Change is one document-level change reported by a source: either a new
// version of a document or its deletion.
type Change struct {
	// Document carries the changed document. Nil for deletions.
	Document *model.Document
	// DocumentID identifies the document for deletions.
	DocumentID string
	// Deleted marks a tombstone.
	Deleted bool
}

// Adapter pulls changed documents from one external system. Implementations
// must return changes in a stable order and treat the cursor as opaque
// resume state: fetching with the returned cursor must not replay changes
// already reported.
type Adapter interface {
	// Name identifies the source, used as the cursor key.
	Name() string
	// FetchChanges returns the changes after the given cursor and the
	// cursor to resume from. An empty cursor means "from the beginning".
	FetchChanges(ctx context.Context, cursor string) ([]Change, string, error)
}

// Ingestor is the engine surface the syncer drives.
type Ingestor interface {
	IngestDocument(ctx context.Context, doc *model.Document) error
	DeleteDocument(ctx context.Context, documentID string) error
}
