package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ctxforge/ctxforge/helper"
	"github.com/ctxforge/ctxforge/model"
	loadSql "github.com/ctxforge/ctxforge/sql"
)

// DocumentsDBHandlerFunctions defines the interface for Documents database operations.
type DocumentsDBHandlerFunctions interface {
	UpsertDocument(doc *model.Document) error
	SelectDocument(id string) (*model.Document, error)
	SelectAllDocuments(limit int) ([]*model.Document, error)
	DeleteDocument(id string) (int, error)
}

// DocumentsDBHandler handles document-related database operations
type DocumentsDBHandler struct {
	db *helper.Database
}

// NewDocumentsDBHandler creates a new documents database handler.
// It loads document-related SQL functions and creates the table.
// If force is true, it reloads the SQL functions even if they already exist.
func NewDocumentsDBHandler(db *helper.Database, force bool) (*DocumentsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	documentsDbHandler := &DocumentsDBHandler{
		db: db,
	}

	err := loadSql.LoadDocumentsSql(documentsDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load documents sql", err)
	}

	err = documentsDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized DocumentsDBHandler")

	return documentsDbHandler, nil
}

// CreateTable creates the 'documents' table if it does not exist yet,
// including its indexes.
func (h *DocumentsDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_documents();`)
	if err != nil {
		return helper.NewError("initialize documents table", err)
	}

	h.db.Logger.Info("Checked/created table documents")

	return nil
}

// UpsertDocument inserts a document or advances an existing one to a newer
// version. Replaying an older version is a no-op; the stored row keeps the
// highest version seen (versions are monotonic, documents are never mutated
// in place).
func (h *DocumentsDBHandler) UpsertDocument(doc *model.Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}

	row := h.db.Instance.QueryRow(
		`SELECT * FROM upsert_document($1, $2, $3, $4)`,
		doc.ID,
		string(doc.SourceType),
		doc.Metadata,
		doc.Version,
	)

	err := scanDocument(row, doc)
	if errors.Is(err, sql.ErrNoRows) {
		// Version guard rejected a stale replay; load the current row so
		// the caller sees the winning version.
		current, selErr := h.SelectDocument(doc.ID)
		if selErr != nil {
			return selErr
		}
		*doc = *current
		return nil
	}
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// SelectDocument retrieves a document by its source-qualified ID.
func (h *DocumentsDBHandler) SelectDocument(id string) (*model.Document, error) {
	doc := &model.Document{}
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_document($1)`,
		id,
	)

	err := scanDocument(row, doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: document %q", model.ErrNotFound, id)
	}
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return doc, nil
}

// SelectAllDocuments retrieves the most recently updated documents.
func (h *DocumentsDBHandler) SelectAllDocuments(limit int) ([]*model.Document, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_all_documents($1)`,
		limit,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var docs []*model.Document
	for rows.Next() {
		doc := &model.Document{}
		if err := scanDocument(rows, doc); err != nil {
			return nil, helper.NewError("scan", err)
		}
		docs = append(docs, doc)
	}

	return docs, rows.Err()
}

// DeleteDocument deletes a document. Its chunks are removed in the same
// statement through the foreign key cascade, so a concurrent query sees
// either all of the document's chunks or none of them. Returns the number
// of document rows removed (0 when the ID was unknown).
func (h *DocumentsDBHandler) DeleteDocument(id string) (int, error) {
	var deleted int
	err := h.db.Instance.QueryRow(
		`SELECT delete_document($1)`,
		id,
	).Scan(&deleted)
	if err != nil {
		return 0, helper.NewError("exec", err)
	}

	return deleted, nil
}

// scanner abstracts *sql.Row and *sql.Rows for shared scan code.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(s scanner, doc *model.Document) error {
	var sourceType string
	err := s.Scan(
		&doc.ID,
		&sourceType,
		&doc.Metadata,
		&doc.Version,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		return err
	}
	doc.SourceType = model.SourceType(sourceType)
	return nil
}
