package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ctxforge/ctxforge/helper"
	"github.com/ctxforge/ctxforge/model"
	loadSql "github.com/ctxforge/ctxforge/sql"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

// ChunksDBHandlerFunctions defines the interface for Chunks database operations.
type ChunksDBHandlerFunctions interface {
	UpsertChunk(chunk *model.Chunk) error
	ReplaceDocumentChunks(ctx context.Context, doc *model.Document, chunks []*model.Chunk) error
	SelectChunk(id string) (*model.Chunk, error)
	SelectChunksByDocument(documentID string) ([]*model.Chunk, error)
	DeleteChunksByDocument(documentID string) (int, error)
	SelectChunksBySimilarity(embedding []float32, topK int, floor float64, filters model.QueryFilters) ([]*model.Chunk, error)
}

// ChunksDBHandler is the vector index: it stores chunk embeddings with
// their filterable metadata and serves k-nearest-neighbor queries under
// cosine similarity.
type ChunksDBHandler struct {
	db        *helper.Database
	dimension int
}

// NewChunksDBHandler creates a new chunks database handler.
// It loads chunk-related SQL functions and creates the table with the given
// embedding dimension. If force is true, it reloads the SQL functions even
// if they already exist.
func NewChunksDBHandler(db *helper.Database, embeddingDim int, force bool) (*ChunksDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}
	if embeddingDim <= 0 {
		return nil, helper.NewError("dimension validation", fmt.Errorf("embedding dimension must be positive, got %d", embeddingDim))
	}

	chunksDbHandler := &ChunksDBHandler{
		db:        db,
		dimension: embeddingDim,
	}

	err := loadSql.LoadChunksSql(chunksDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load chunks sql", err)
	}

	err = chunksDbHandler.CreateTable(embeddingDim)
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized ChunksDBHandler")

	return chunksDbHandler, nil
}

// CreateTable creates the 'chunks' table if it does not exist yet,
// including the HNSW vector index and the metadata filter indexes.
func (h *ChunksDBHandler) CreateTable(embeddingDim int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_chunks($1);`, embeddingDim)
	if err != nil {
		return helper.NewError("initialize chunks table", err)
	}

	h.db.Logger.Info("Checked/created table chunks")

	return nil
}

// Dimension returns the embedding dimension the index was created with.
func (h *ChunksDBHandler) Dimension() int {
	return h.dimension
}

// checkDimension rejects embeddings whose length does not match the index.
func (h *ChunksDBHandler) checkDimension(embedding []float32) error {
	if len(embedding) != h.dimension {
		return fmt.Errorf("%w: got %d, index dimension is %d", model.ErrDimensionMismatch, len(embedding), h.dimension)
	}
	return nil
}

// UpsertChunk inserts a chunk or replaces the existing entry with the same
// chunk ID. Idempotent.
func (h *ChunksDBHandler) UpsertChunk(chunk *model.Chunk) error {
	if err := h.checkDimension(chunk.Embedding); err != nil {
		return err
	}

	row := h.db.Instance.QueryRow(
		`SELECT * FROM upsert_chunk($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		chunk.ID,
		chunk.DocumentID,
		chunk.DocumentVersion,
		chunk.ChunkIndex,
		chunk.Text,
		chunk.TokenCount,
		pgvector.NewVector(chunk.Embedding),
		string(chunk.SourceType),
		chunk.SourceMetadata,
	)

	if err := scanChunk(row, chunk); err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// ReplaceDocumentChunks atomically swaps a document's chunk set to a new
// version: the document row is advanced, the new chunks are upserted and
// chunks of older versions are removed, all in one transaction. A query
// running concurrently sees the previous version's chunks until the commit,
// never a mix.
func (h *ChunksDBHandler) ReplaceDocumentChunks(ctx context.Context, doc *model.Document, chunks []*model.Chunk) error {
	for _, chunk := range chunks {
		if err := h.checkDimension(chunk.Embedding); err != nil {
			return err
		}
	}

	tx, err := h.db.Instance.BeginTx(ctx, nil)
	if err != nil {
		return helper.NewError("begin transaction", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT * FROM upsert_document($1, $2, $3, $4)`,
		doc.ID, string(doc.SourceType), doc.Metadata, doc.Version,
	)
	err = scanDocument(row, doc)
	if errors.Is(err, sql.ErrNoRows) {
		// The version guard rejected the row: the stored version is equal
		// or newer. Load it to tell the two cases apart.
		current := &model.Document{}
		currentRow := tx.QueryRowContext(ctx, `SELECT * FROM select_document($1)`, doc.ID)
		if err := scanDocument(currentRow, current); err != nil {
			return helper.NewError("select current document", err)
		}
		if current.Version > doc.Version {
			// Stale replay. Writing the chunks would overwrite the newer
			// version's rows (chunk IDs collide), so this must be a no-op.
			// The caller sees the winning version.
			*doc = *current
			h.db.Logger.Info("Ignored stale document version",
				slog.String("document_id", doc.ID),
				slog.Int64("version", current.Version))
			return nil
		}
		// Same version: an idempotent replay or a re-embed of the current
		// version. The chunk swap below is safe.
		*doc = *current
	} else if err != nil {
		return helper.NewError("upsert document", err)
	}

	for _, chunk := range chunks {
		_, err := tx.ExecContext(ctx,
			`SELECT upsert_chunk($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			chunk.ID,
			chunk.DocumentID,
			chunk.DocumentVersion,
			chunk.ChunkIndex,
			chunk.Text,
			chunk.TokenCount,
			pgvector.NewVector(chunk.Embedding),
			string(chunk.SourceType),
			chunk.SourceMetadata,
		)
		if err != nil {
			return helper.NewError(fmt.Sprintf("upsert chunk %s", chunk.ID), err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`SELECT delete_stale_chunks($1, $2)`,
		doc.ID, doc.Version,
	)
	if err != nil {
		return helper.NewError("delete stale chunks", err)
	}

	if err := tx.Commit(); err != nil {
		return helper.NewError("commit transaction", err)
	}

	h.db.Logger.Info("Replaced document chunks",
		slog.String("document_id", doc.ID),
		slog.Int64("version", doc.Version),
		slog.Int("num_chunks", len(chunks)))

	return nil
}

// SelectChunk retrieves a chunk by ID, including its embedding.
func (h *ChunksDBHandler) SelectChunk(id string) (*model.Chunk, error) {
	chunk := &model.Chunk{}
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_chunk($1)`,
		id,
	)

	err := scanChunk(row, chunk)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: chunk %q", model.ErrNotFound, id)
	}
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return chunk, nil
}

// SelectChunksByDocument retrieves all chunks for a document in chunk order.
func (h *ChunksDBHandler) SelectChunksByDocument(documentID string) ([]*model.Chunk, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_chunks_by_document($1)`,
		documentID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var chunks []*model.Chunk
	for rows.Next() {
		chunk := &model.Chunk{}
		if err := scanChunk(rows, chunk); err != nil {
			return nil, helper.NewError("scan", err)
		}
		chunks = append(chunks, chunk)
	}

	return chunks, rows.Err()
}

// DeleteChunksByDocument removes every index entry of a document in a
// single statement. Returns the number of chunks removed.
func (h *ChunksDBHandler) DeleteChunksByDocument(documentID string) (int, error) {
	var deleted int
	err := h.db.Instance.QueryRow(
		`SELECT delete_chunks_by_document($1)`,
		documentID,
	).Scan(&deleted)
	if err != nil {
		return 0, helper.NewError("exec", err)
	}

	return deleted, nil
}

// SelectChunksBySimilarity performs a cosine k-nearest-neighbor query.
// Filters are applied as a hard pre-filter: a chunk failing any predicate
// is excluded regardless of similarity, and topK is satisfied from the
// filtered population (fewer rows when it is smaller). Candidates below
// floor are excluded. Results are ordered by descending similarity with
// ties broken by chunk ID ascending.
func (h *ChunksDBHandler) SelectChunksBySimilarity(embedding []float32, topK int, floor float64, filters model.QueryFilters) ([]*model.Chunk, error) {
	if err := h.checkDimension(embedding); err != nil {
		return nil, err
	}

	var customerID sql.NullString
	if filters.CustomerID != "" {
		customerID = sql.NullString{String: filters.CustomerID, Valid: true}
	}

	var sourceTypes interface{}
	if len(filters.SourceTypes) > 0 {
		types := make([]string, len(filters.SourceTypes))
		for i, st := range filters.SourceTypes {
			types[i] = string(st)
		}
		sourceTypes = pq.Array(types)
	}

	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_chunks_by_similarity($1, $2, $3, $4, $5, $6, $7)`,
		pgvector.NewVector(embedding),
		topK,
		floor,
		customerID,
		sourceTypes,
		filters.CreatedAfter,
		filters.CreatedBefore,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var chunks []*model.Chunk
	for rows.Next() {
		chunk := &model.Chunk{}
		var sourceType string
		err := rows.Scan(
			&chunk.ID,
			&chunk.DocumentID,
			&chunk.DocumentVersion,
			&chunk.ChunkIndex,
			&chunk.Text,
			&chunk.TokenCount,
			&sourceType,
			&chunk.SourceMetadata,
			&chunk.CreatedAt,
			&chunk.Similarity,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}
		chunk.SourceType = model.SourceType(sourceType)
		chunks = append(chunks, chunk)
	}

	return chunks, rows.Err()
}

func scanChunk(s scanner, chunk *model.Chunk) error {
	var sourceType string
	var vec pgvector.Vector
	err := s.Scan(
		&chunk.ID,
		&chunk.DocumentID,
		&chunk.DocumentVersion,
		&chunk.ChunkIndex,
		&chunk.Text,
		&chunk.TokenCount,
		&vec,
		&sourceType,
		&chunk.SourceMetadata,
		&chunk.CreatedAt,
	)
	if err != nil {
		return err
	}
	chunk.Embedding = vec.Slice()
	chunk.SourceType = model.SourceType(sourceType)
	return nil
}
