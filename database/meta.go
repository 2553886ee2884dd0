package database

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ctxforge/ctxforge/helper"
	"github.com/ctxforge/ctxforge/model"
	loadSql "github.com/ctxforge/ctxforge/sql"
)

// MetricCosine is the only distance metric the engine currently supports.
const MetricCosine = "cosine"

// schemaVersion is bumped whenever the persisted layout changes in a way an
// older engine cannot read.
const schemaVersion = 1

// IndexMeta is the self-description of the persisted vector index. It is
// written once when the index is created; every later startup must match it.
type IndexMeta struct {
	Dimension     int       `json:"dimension"`
	Metric        string    `json:"metric"`
	SchemaVersion int       `json:"schema_version"`
	CreatedAt     time.Time `json:"created_at"`
}

// IndexMetaDBHandlerFunctions defines the interface for index meta operations.
type IndexMetaDBHandlerFunctions interface {
	EnsureMeta(dimension int, metric string) (*IndexMeta, error)
	SelectMeta() (*IndexMeta, error)
}

// IndexMetaDBHandler guards the index against being served by a
// mis-configured engine: it refuses to start when the persisted dimension
// or metric differs from the configured one.
type IndexMetaDBHandler struct {
	db *helper.Database
}

// NewIndexMetaDBHandler creates a new index meta handler.
func NewIndexMetaDBHandler(db *helper.Database, force bool) (*IndexMetaDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	metaDbHandler := &IndexMetaDBHandler{
		db: db,
	}

	err := loadSql.LoadMetaSql(metaDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load meta sql", err)
	}

	_, err = metaDbHandler.db.Instance.Exec(`SELECT init_index_meta();`)
	if err != nil {
		return nil, helper.NewError("initialize index meta table", err)
	}

	db.Logger.Info("Initialized IndexMetaDBHandler")

	return metaDbHandler, nil
}

// EnsureMeta writes the meta row on first startup and verifies it on every
// later one. A dimension or metric mismatch means the index on disk was
// built by a differently configured engine; serving it would silently
// misinterpret vectors, so the handler fails instead.
func (h *IndexMetaDBHandler) EnsureMeta(dimension int, metric string) (*IndexMeta, error) {
	meta := &IndexMeta{}
	row := h.db.Instance.QueryRow(
		`SELECT * FROM ensure_index_meta($1, $2, $3)`,
		dimension,
		metric,
		schemaVersion,
	)

	var id int
	err := row.Scan(&id, &meta.Dimension, &meta.Metric, &meta.SchemaVersion, &meta.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot read index meta: %v", model.ErrIndexCorruption, err)
	}

	if meta.SchemaVersion != schemaVersion {
		return nil, fmt.Errorf("%w: index schema version %d, engine expects %d",
			model.ErrIndexCorruption, meta.SchemaVersion, schemaVersion)
	}
	if meta.Dimension != dimension {
		return nil, fmt.Errorf("%w: index dimension %d, engine configured for %d",
			model.ErrDimensionMismatch, meta.Dimension, dimension)
	}
	if meta.Metric != metric {
		return nil, fmt.Errorf("%w: index metric %q, engine configured for %q",
			model.ErrDimensionMismatch, meta.Metric, metric)
	}

	h.db.Logger.Info("Verified index meta",
		slog.Int("dimension", meta.Dimension),
		slog.String("metric", meta.Metric))

	return meta, nil
}

// SelectMeta reads the meta row without verification.
func (h *IndexMetaDBHandler) SelectMeta() (*IndexMeta, error) {
	meta := &IndexMeta{}
	row := h.db.Instance.QueryRow(`SELECT * FROM select_index_meta()`)

	var id int
	err := row.Scan(&id, &meta.Dimension, &meta.Metric, &meta.SchemaVersion, &meta.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: index meta row missing", model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: cannot read index meta: %v", model.ErrIndexCorruption, err)
	}

	return meta, nil
}
