package source

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/ctxforge/ctxforge/model"
)

// MemoryAdapter is an in-process source backed by an append-only change
// log. It backs tests and local development; the cursor is the log offset.
type MemoryAdapter struct {
	mu      sync.Mutex
	name    string
	changes []Change
}

// NewMemoryAdapter creates an empty in-memory source.
func NewMemoryAdapter(name string) *MemoryAdapter {
	return &MemoryAdapter{name: name}
}

// Name identifies the source.
func (a *MemoryAdapter) Name() string {
	return a.name
}

// Put appends a new document version to the change log.
func (a *MemoryAdapter) Put(doc *model.Document) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.changes = append(a.changes, Change{Document: doc})
}

// Delete appends a tombstone to the change log.
func (a *MemoryAdapter) Delete(documentID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.changes = append(a.changes, Change{DocumentID: documentID, Deleted: true})
}

// FetchChanges returns the log entries after the cursor offset.
func (a *MemoryAdapter) FetchChanges(ctx context.Context, cursor string) ([]Change, string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	offset := 0
	if cursor != "" {
		parsed, err := strconv.Atoi(cursor)
		if err != nil {
			return nil, "", fmt.Errorf("%w: invalid cursor %q for source %s", model.ErrValidation, cursor, a.name)
		}
		offset = parsed
	}
	if offset > len(a.changes) {
		offset = len(a.changes)
	}

	changes := make([]Change, len(a.changes)-offset)
	copy(changes, a.changes[offset:])

	return changes, strconv.Itoa(len(a.changes)), nil
}
