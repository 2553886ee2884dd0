package model

import (
	"fmt"
	"strings"
	"time"
)

// SourceType identifies the external system a document was pulled from.
// The set is closed; every switch over it must handle all four values.
type SourceType string

const (
	SourceTypeTicket     SourceType = "ticket"
	SourceTypeNote       SourceType = "note"
	SourceTypeArticle    SourceType = "article"
	SourceTypeTranscript SourceType = "transcript"
)

// SourceTypes lists all valid source types.
var SourceTypes = []SourceType{
	SourceTypeTicket,
	SourceTypeNote,
	SourceTypeArticle,
	SourceTypeTranscript,
}

// Valid reports whether the source type is one of the known values.
func (s SourceType) Valid() bool {
	switch s {
	case SourceTypeTicket, SourceTypeNote, SourceTypeArticle, SourceTypeTranscript:
		return true
	}
	return false
}

// Document represents a normalized unit of content pulled from an external
// source. A document is immutable once assigned a version; content changes
// arrive as a new version of the same ID, never as an in-place mutation.
type Document struct {
	ID         string     `json:"id"` // source-qualified, e.g. "ticket:8841"
	SourceType SourceType `json:"source_type"`
	Text       string     `json:"text,omitempty" db:"-"` // used for chunking, not stored
	Metadata   Metadata   `json:"metadata"`
	Version    int64      `json:"version"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// NewDocument creates a document with version 1 and the given source-local ID.
// The stored ID is qualified with the source type so IDs from different
// systems cannot collide.
func NewDocument(sourceType SourceType, localID string, text string, metadata Metadata) (*Document, error) {
	if !sourceType.Valid() {
		return nil, fmt.Errorf("%w: unknown source type %q", ErrValidation, sourceType)
	}
	localID = strings.TrimSpace(localID)
	if localID == "" {
		return nil, fmt.Errorf("%w: document ID is empty", ErrValidation)
	}

	return &Document{
		ID:         fmt.Sprintf("%s:%s", sourceType, localID),
		SourceType: sourceType,
		Text:       text,
		Metadata:   metadata,
		Version:    1,
	}, nil
}

// Validate checks the fields an adapter must fill before ingestion.
func (d *Document) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("%w: document ID is empty", ErrValidation)
	}
	if !d.SourceType.Valid() {
		return fmt.Errorf("%w: unknown source type %q", ErrValidation, d.SourceType)
	}
	if d.Version < 1 {
		return fmt.Errorf("%w: document version must be >= 1, got %d", ErrValidation, d.Version)
	}
	return nil
}
