package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ctxforge/ctxforge/helper"
	"github.com/ctxforge/ctxforge/model"
)

// Build parameter defaults, matching pgvector's own.
const (
	defaultHNSWM              = 16
	defaultHNSWEfConstruction = 64
	defaultIVFFlatLists       = 100
)

// ApplyIndexConfig rebuilds the approximate-nearest-neighbor index of the
// chunks table to the configured structure. The distance metric stays
// cosine; only the index type and its build parameters change. An empty
// type is a no-op, so an engine without an [index] section keeps whatever
// the table was created with.
func (h *ChunksDBHandler) ApplyIndexConfig(ctx context.Context, config model.IndexConfig) error {
	if config.Type == "" {
		return nil
	}

	var createIndexSQL string
	switch config.Type {
	case "hnsw":
		m := config.M
		if m == 0 {
			m = defaultHNSWM
		}
		efConstruction := config.EfConstruction
		if efConstruction == 0 {
			efConstruction = defaultHNSWEfConstruction
		}
		createIndexSQL = fmt.Sprintf(
			`CREATE INDEX idx_chunks_embedding ON chunks USING hnsw (embedding vector_cosine_ops) WITH (m = %d, ef_construction = %d);`,
			m, efConstruction,
		)
	case "ivfflat":
		lists := config.Lists
		if lists == 0 {
			lists = defaultIVFFlatLists
		}
		createIndexSQL = fmt.Sprintf(
			`CREATE INDEX idx_chunks_embedding ON chunks USING ivfflat (embedding vector_cosine_ops) WITH (lists = %d);`,
			lists,
		)
	default:
		return fmt.Errorf("%w: unknown index type %q", model.ErrConfig, config.Type)
	}

	// Index builds on large tables take a while.
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	if _, err := h.db.Instance.ExecContext(ctx, `DROP INDEX IF EXISTS idx_chunks_embedding;`); err != nil {
		return helper.NewError("drop vector index", err)
	}

	if _, err := h.db.Instance.ExecContext(ctx, createIndexSQL); err != nil {
		return helper.NewError("create vector index", err)
	}

	h.db.Logger.Info("Rebuilt vector index",
		slog.String("type", config.Type))

	return nil
}
