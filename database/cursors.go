package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ctxforge/ctxforge/helper"
	loadSql "github.com/ctxforge/ctxforge/sql"
)

// CursorsDBHandlerFunctions defines the interface for sync cursor operations.
type CursorsDBHandlerFunctions interface {
	UpsertCursor(sourceName string, cursor string) error
	SelectCursor(sourceName string) (string, error)
}

// CursorsDBHandler persists the last processed cursor per source adapter
// so incremental sync resumes where it left off after a restart.
type CursorsDBHandler struct {
	db *helper.Database
}

// NewCursorsDBHandler creates a new sync cursors handler.
func NewCursorsDBHandler(db *helper.Database, force bool) (*CursorsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	cursorsDbHandler := &CursorsDBHandler{
		db: db,
	}

	err := loadSql.LoadCursorsSql(cursorsDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load cursors sql", err)
	}

	_, err = cursorsDbHandler.db.Instance.Exec(`SELECT init_sync_cursors();`)
	if err != nil {
		return nil, helper.NewError("initialize sync cursors table", err)
	}

	db.Logger.Info("Initialized CursorsDBHandler")

	return cursorsDbHandler, nil
}

// UpsertCursor stores the last processed cursor for a source.
func (h *CursorsDBHandler) UpsertCursor(sourceName string, cursor string) error {
	var name, value string
	var updatedAt time.Time
	err := h.db.Instance.QueryRow(
		`SELECT * FROM upsert_sync_cursor($1, $2)`,
		sourceName,
		cursor,
	).Scan(&name, &value, &updatedAt)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// SelectCursor returns the stored cursor for a source, or the empty string
// when the source has never been synced.
func (h *CursorsDBHandler) SelectCursor(sourceName string) (string, error) {
	var name, value string
	var updatedAt time.Time
	err := h.db.Instance.QueryRow(
		`SELECT * FROM select_sync_cursor($1)`,
		sourceName,
	).Scan(&name, &value, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", helper.NewError("scan", err)
	}

	return value, nil
}
