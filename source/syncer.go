package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ctxforge/ctxforge/database"
	"github.com/ctxforge/ctxforge/model"
	"github.com/google/uuid"
)

// Syncer drives incremental synchronization: per source it loads the
// persisted cursor, applies the changes since then and stores the new
// cursor. A restart resumes where the last successful batch ended.
type Syncer struct {
	adapters []Adapter
	cursors  database.CursorsDBHandlerFunctions
	ingestor Ingestor
	interval time.Duration
	logger   *slog.Logger
}

// NewSyncer creates a new syncer.
func NewSyncer(adapters []Adapter, cursors database.CursorsDBHandlerFunctions, ingestor Ingestor, interval time.Duration, logger *slog.Logger) (*Syncer, error) {
	if ingestor == nil {
		return nil, fmt.Errorf("%w: ingestor is nil", model.ErrConfig)
	}
	if cursors == nil {
		return nil, fmt.Errorf("%w: cursor store is nil", model.ErrConfig)
	}
	return &Syncer{
		adapters: adapters,
		cursors:  cursors,
		ingestor: ingestor,
		interval: interval,
		logger:   logger,
	}, nil
}

// Run syncs all sources on the configured interval until the context is
// canceled. Failures are logged and retried on the next tick; one broken
// source does not stop the others.
func (s *Syncer) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("Starting source syncer",
		slog.Int("sources", len(s.adapters)),
		slog.Duration("interval", s.interval))

	for {
		if err := s.SyncAll(ctx); err != nil {
			s.logger.Error("Sync pass failed", slog.String("error", err.Error()))
		}

		select {
		case <-ctx.Done():
			s.logger.Info("Stopping source syncer")
			return
		case <-ticker.C:
		}
	}
}

// SyncAll runs one sync pass over every source. It returns the first error
// but still attempts the remaining sources.
func (s *Syncer) SyncAll(ctx context.Context) error {
	// One ID per pass, so the log lines of all sources correlate.
	runID := uuid.NewString()

	var firstErr error
	for _, adapter := range s.adapters {
		if err := s.SyncSource(ctx, adapter); err != nil {
			s.logger.Error("Source sync failed",
				slog.String("run_id", runID),
				slog.String("source", adapter.Name()),
				slog.String("error", err.Error()))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// SyncSource applies all pending changes of one source. The cursor is only
// advanced after every change of the batch has been applied, so a failure
// replays the batch; adapters and ingestion are idempotent, replays are
// safe.
func (s *Syncer) SyncSource(ctx context.Context, adapter Adapter) error {
	cursor, err := s.cursors.SelectCursor(adapter.Name())
	if err != nil {
		return fmt.Errorf("load cursor for %s: %w", adapter.Name(), err)
	}

	changes, nextCursor, err := adapter.FetchChanges(ctx, cursor)
	if err != nil {
		return fmt.Errorf("fetch changes from %s: %w", adapter.Name(), err)
	}
	if len(changes) == 0 {
		return nil
	}

	applied := 0
	for _, change := range changes {
		if change.Deleted {
			err = s.ingestor.DeleteDocument(ctx, change.DocumentID)
			// A tombstone for a document that never reached the index is
			// not a failure.
			if err != nil && !errors.Is(err, model.ErrNotFound) {
				return fmt.Errorf("delete %s: %w", change.DocumentID, err)
			}
		} else {
			if err := s.ingestor.IngestDocument(ctx, change.Document); err != nil {
				return fmt.Errorf("ingest %s: %w", change.Document.ID, err)
			}
		}
		applied++
	}

	if err := s.cursors.UpsertCursor(adapter.Name(), nextCursor); err != nil {
		return fmt.Errorf("store cursor for %s: %w", adapter.Name(), err)
	}

	s.logger.Info("Synced source",
		slog.String("source", adapter.Name()),
		slog.Int("changes", applied),
		slog.String("cursor", nextCursor))

	return nil
}
