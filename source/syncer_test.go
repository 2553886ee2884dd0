package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ctxforge/ctxforge/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeIngestor records the documents it saw.
type fakeIngestor struct {
	ingested []string
	deleted  []string
	failWith error
}

func (f *fakeIngestor) IngestDocument(ctx context.Context, doc *model.Document) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.ingested = append(f.ingested, doc.ID)
	return nil
}

func (f *fakeIngestor) DeleteDocument(ctx context.Context, documentID string) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.deleted = append(f.deleted, documentID)
	return nil
}

// memoryCursors is an in-memory cursor store.
type memoryCursors struct {
	cursors map[string]string
}

func newMemoryCursors() *memoryCursors {
	return &memoryCursors{cursors: map[string]string{}}
}

func (m *memoryCursors) UpsertCursor(sourceName string, cursor string) error {
	m.cursors[sourceName] = cursor
	return nil
}

func (m *memoryCursors) SelectCursor(sourceName string) (string, error) {
	return m.cursors[sourceName], nil
}

func testDocument(t *testing.T, sourceType model.SourceType, localID string) *model.Document {
	t.Helper()
	doc, err := model.NewDocument(sourceType, localID, "Customer asked about invoice export.", model.Metadata{CustomerID: "acme"})
	require.NoError(t, err)
	return doc
}

func syncLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSyncerSyncSource(t *testing.T) {
	ctx := context.Background()

	t.Run("Applies changes and persists the cursor", func(t *testing.T) {
		adapter := NewMemoryAdapter("ticket-system")
		adapter.Put(testDocument(t, model.SourceTypeTicket, "T-1"))
		adapter.Put(testDocument(t, model.SourceTypeTicket, "T-2"))

		ingestor := &fakeIngestor{}
		cursors := newMemoryCursors()
		syncer, err := NewSyncer([]Adapter{adapter}, cursors, ingestor, time.Minute, syncLogger())
		require.NoError(t, err)

		err = syncer.SyncSource(ctx, adapter)
		assert.NoError(t, err, "Expected SyncSource to not return an error")
		assert.Equal(t, []string{"ticket:T-1", "ticket:T-2"}, ingestor.ingested)
		assert.Equal(t, "2", cursors.cursors["ticket-system"], "Expected the cursor to advance past the batch")
	})

	t.Run("Resumes from the stored cursor without replays", func(t *testing.T) {
		adapter := NewMemoryAdapter("ticket-system")
		adapter.Put(testDocument(t, model.SourceTypeTicket, "T-1"))

		ingestor := &fakeIngestor{}
		cursors := newMemoryCursors()
		syncer, err := NewSyncer([]Adapter{adapter}, cursors, ingestor, time.Minute, syncLogger())
		require.NoError(t, err)

		require.NoError(t, syncer.SyncSource(ctx, adapter))
		require.Len(t, ingestor.ingested, 1)

		// A second pass with no new changes ingests nothing.
		require.NoError(t, syncer.SyncSource(ctx, adapter))
		assert.Len(t, ingestor.ingested, 1, "Expected no replay of already synced changes")

		adapter.Put(testDocument(t, model.SourceTypeTicket, "T-2"))
		require.NoError(t, syncer.SyncSource(ctx, adapter))
		assert.Equal(t, []string{"ticket:T-1", "ticket:T-2"}, ingestor.ingested)
	})

	t.Run("Tombstones delete from the index", func(t *testing.T) {
		adapter := NewMemoryAdapter("kb-system")
		adapter.Put(testDocument(t, model.SourceTypeArticle, "KB-1"))
		adapter.Delete("article:KB-1")

		ingestor := &fakeIngestor{}
		cursors := newMemoryCursors()
		syncer, err := NewSyncer([]Adapter{adapter}, cursors, ingestor, time.Minute, syncLogger())
		require.NoError(t, err)

		require.NoError(t, syncer.SyncSource(ctx, adapter))
		assert.Equal(t, []string{"article:KB-1"}, ingestor.ingested)
		assert.Equal(t, []string{"article:KB-1"}, ingestor.deleted)
	})

	t.Run("Ingest failure leaves the cursor untouched", func(t *testing.T) {
		adapter := NewMemoryAdapter("ticket-system")
		adapter.Put(testDocument(t, model.SourceTypeTicket, "T-1"))

		ingestor := &fakeIngestor{failWith: fmt.Errorf("%w: provider down", model.ErrProviderUnavailable)}
		cursors := newMemoryCursors()
		syncer, err := NewSyncer([]Adapter{adapter}, cursors, ingestor, time.Minute, syncLogger())
		require.NoError(t, err)

		err = syncer.SyncSource(ctx, adapter)
		assert.ErrorIs(t, err, model.ErrProviderUnavailable)
		assert.Empty(t, cursors.cursors["ticket-system"], "Expected the failed batch to replay next pass")
	})

	t.Run("Tombstone for unknown document is not a failure", func(t *testing.T) {
		adapter := NewMemoryAdapter("kb-system")
		adapter.Delete("article:never-ingested")

		ingestor := &fakeIngestor{failWith: fmt.Errorf("%w: document missing", model.ErrNotFound)}
		cursors := newMemoryCursors()
		syncer, err := NewSyncer([]Adapter{adapter}, cursors, ingestor, time.Minute, syncLogger())
		require.NoError(t, err)

		err = syncer.SyncSource(ctx, adapter)
		assert.NoError(t, err, "Expected a tombstone for an unknown document to be tolerated")
		assert.Equal(t, "1", cursors.cursors["kb-system"], "Expected the cursor to advance")
	})
}

func TestSyncerSyncAll(t *testing.T) {
	ctx := context.Background()

	t.Run("One broken source does not stop the others", func(t *testing.T) {
		broken := &brokenAdapter{name: "broken-system"}
		healthy := NewMemoryAdapter("ticket-system")
		healthy.Put(testDocument(t, model.SourceTypeTicket, "T-1"))

		ingestor := &fakeIngestor{}
		cursors := newMemoryCursors()
		syncer, err := NewSyncer([]Adapter{broken, healthy}, cursors, ingestor, time.Minute, syncLogger())
		require.NoError(t, err)

		err = syncer.SyncAll(ctx)
		assert.Error(t, err, "Expected the broken source's error to surface")
		assert.Equal(t, []string{"ticket:T-1"}, ingestor.ingested, "Expected the healthy source to still sync")
	})
}

func TestMemoryAdapter(t *testing.T) {
	ctx := context.Background()
	adapter := NewMemoryAdapter("test")

	t.Run("Empty cursor reads from the beginning", func(t *testing.T) {
		adapter.Put(testDocument(t, model.SourceTypeNote, "N-1"))
		changes, cursor, err := adapter.FetchChanges(ctx, "")
		assert.NoError(t, err)
		assert.Len(t, changes, 1)
		assert.Equal(t, "1", cursor)
	})

	t.Run("Invalid cursor is a validation error", func(t *testing.T) {
		_, _, err := adapter.FetchChanges(ctx, "not-a-number")
		assert.ErrorIs(t, err, model.ErrValidation)
	})
}

// brokenAdapter always fails to fetch.
type brokenAdapter struct {
	name string
}

func (b *brokenAdapter) Name() string { return b.name }

func (b *brokenAdapter) FetchChanges(ctx context.Context, cursor string) ([]Change, string, error) {
	return nil, "", fmt.Errorf("%w: source unreachable", model.ErrProviderUnavailable)
}
