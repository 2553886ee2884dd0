package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ctxforge/ctxforge/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeChangeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "changes.ndjson")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestFileAdapterFetchChanges(t *testing.T) {
	ctx := context.Background()

	t.Run("Reads documents and tombstones in order", func(t *testing.T) {
		path := writeChangeLog(t, `{"document": {"id": "ticket:T-1", "source_type": "ticket", "text": "printer offline", "version": 1}}
{"document_id": "article:KB-9", "deleted": true}
`)
		adapter := NewFileAdapter("export", path)

		changes, cursor, err := adapter.FetchChanges(ctx, "")
		require.NoError(t, err, "Expected FetchChanges to not return an error")
		require.Len(t, changes, 2)
		assert.Equal(t, "ticket:T-1", changes[0].Document.ID)
		assert.False(t, changes[0].Deleted)
		assert.Equal(t, "article:KB-9", changes[1].DocumentID)
		assert.True(t, changes[1].Deleted)
		assert.Equal(t, "2", cursor)
	})

	t.Run("Cursor skips already consumed lines", func(t *testing.T) {
		path := writeChangeLog(t, `{"document": {"id": "note:N-1", "source_type": "note", "text": "first", "version": 1}}
{"document": {"id": "note:N-2", "source_type": "note", "text": "second", "version": 1}}
`)
		adapter := NewFileAdapter("export", path)

		changes, cursor, err := adapter.FetchChanges(ctx, "1")
		require.NoError(t, err)
		require.Len(t, changes, 1)
		assert.Equal(t, "note:N-2", changes[0].Document.ID)
		assert.Equal(t, "2", cursor)
	})

	t.Run("Appended lines show up on the next fetch", func(t *testing.T) {
		path := writeChangeLog(t, `{"document": {"id": "note:N-1", "source_type": "note", "text": "first", "version": 1}}
`)
		adapter := NewFileAdapter("export", path)

		_, cursor, err := adapter.FetchChanges(ctx, "")
		require.NoError(t, err)

		f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
		require.NoError(t, err)
		_, err = f.WriteString(`{"document": {"id": "note:N-2", "source_type": "note", "text": "second", "version": 1}}` + "\n")
		require.NoError(t, err)
		require.NoError(t, f.Close())

		changes, _, err := adapter.FetchChanges(ctx, cursor)
		require.NoError(t, err)
		require.Len(t, changes, 1)
		assert.Equal(t, "note:N-2", changes[0].Document.ID)
	})

	t.Run("Blank lines are skipped but counted", func(t *testing.T) {
		path := writeChangeLog(t, `{"document": {"id": "note:N-1", "source_type": "note", "text": "first", "version": 1}}

{"document": {"id": "note:N-2", "source_type": "note", "text": "second", "version": 1}}
`)
		adapter := NewFileAdapter("export", path)

		changes, cursor, err := adapter.FetchChanges(ctx, "")
		require.NoError(t, err)
		assert.Len(t, changes, 2)
		assert.Equal(t, "3", cursor)
	})

	t.Run("Malformed line is a validation error", func(t *testing.T) {
		path := writeChangeLog(t, "{not json}\n")
		adapter := NewFileAdapter("export", path)

		_, _, err := adapter.FetchChanges(ctx, "")
		assert.ErrorIs(t, err, model.ErrValidation)
	})

	t.Run("Tombstone without a document ID is rejected", func(t *testing.T) {
		path := writeChangeLog(t, `{"deleted": true}
`)
		adapter := NewFileAdapter("export", path)

		_, _, err := adapter.FetchChanges(ctx, "")
		assert.ErrorIs(t, err, model.ErrValidation)
	})

	t.Run("Missing file is a transient source failure", func(t *testing.T) {
		adapter := NewFileAdapter("export", filepath.Join(t.TempDir(), "missing.ndjson"))

		_, _, err := adapter.FetchChanges(ctx, "")
		assert.ErrorIs(t, err, model.ErrProviderUnavailable)
	})
}

func TestFileAdapterWithSyncer(t *testing.T) {
	ctx := context.Background()

	t.Run("Syncer drives the file source end to end", func(t *testing.T) {
		path := writeChangeLog(t, `{"document": {"id": "ticket:T-1", "source_type": "ticket", "text": "vpn drops every hour", "version": 1}}
{"document_id": "ticket:T-0", "deleted": true}
`)
		adapter := NewFileAdapter("export", path)
		ingestor := &fakeIngestor{}
		cursors := newMemoryCursors()

		syncer, err := NewSyncer([]Adapter{adapter}, cursors, ingestor, time.Minute, syncLogger())
		require.NoError(t, err)

		require.NoError(t, syncer.SyncSource(ctx, adapter))
		assert.Equal(t, []string{"ticket:T-1"}, ingestor.ingested)
		assert.Equal(t, []string{"ticket:T-0"}, ingestor.deleted)
		assert.Equal(t, "2", cursors.cursors["export"])
	})
}
