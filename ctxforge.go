// Package ctxforge is the context retrieval and ranking engine: it ingests
// documents from customer-facing sources into a pgvector-backed chunk index
// and answers retrieval queries with a re-ranked, token-budgeted context
// payload plus citations.
package ctxforge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ctxforge/ctxforge/core/embedding"
	"github.com/ctxforge/ctxforge/core/pipeline"
	"github.com/ctxforge/ctxforge/core/retrieval"
	"github.com/ctxforge/ctxforge/database"
	"github.com/ctxforge/ctxforge/helper"
	"github.com/ctxforge/ctxforge/model"
	"github.com/ctxforge/ctxforge/source"
	loadSql "github.com/ctxforge/ctxforge/sql"
)

// reindexDocumentLimit bounds how many documents one Reindex pass walks.
const reindexDocumentLimit = 100_000

// RetrievalResult is the full answer to one retrieval query: the assembled
// context payload plus the ranked candidates it was built from.
type RetrievalResult struct {
	Context    *model.ContextPayload   `json:"context"`
	Candidates []model.RankedCandidate `json:"candidates"`
}

// Engine bundles the database handlers with the ingestion and query paths.
// It is safe for concurrent use once constructed.
type Engine struct {
	Config model.EngineConfig
	DB     *helper.Database
	Logger *slog.Logger

	Documents *database.DocumentsDBHandler
	Chunks    *database.ChunksDBHandler
	Meta      *database.IndexMetaDBHandler
	Cursors   *database.CursorsDBHandler

	embedder  embedding.Embedder
	pipeline  *pipeline.Pipeline
	retriever *retrieval.Retriever
	reranker  *retrieval.Reranker
	assembler *retrieval.Assembler
}

// NewEngine creates a fully wired engine: it connects to the database,
// initializes the schema, verifies the index self-description against the
// configured embedding dimension and builds the configured embedding
// provider.
func NewEngine(dbConfig *helper.DatabaseConfiguration, config model.EngineConfig) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	embedder, err := embedding.NewEmbedder(config.Embedding)
	if err != nil {
		return nil, helper.NewError("create embedder", err)
	}

	return NewEngineWithEmbedder(dbConfig, config, embedder)
}

// NewEngineWithEmbedder is NewEngine with a caller-supplied embedder, used
// by tests and callers that manage the provider themselves.
func NewEngineWithEmbedder(dbConfig *helper.DatabaseConfiguration, config model.EngineConfig, embedder embedding.Embedder) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is nil", model.ErrConfig)
	}
	if embedder.Dimensions() != config.Embedding.Dimensions {
		return nil, fmt.Errorf("%w: embedder produces %d dimensions, configured %d",
			model.ErrDimensionMismatch, embedder.Dimensions(), config.Embedding.Dimensions)
	}

	logger := helper.NewLogger(os.Stdout, slog.LevelInfo)

	db := helper.NewDatabase("ctxforge", dbConfig, logger)

	err := loadSql.Init(db.Instance)
	if err != nil {
		return nil, helper.NewError("initialize sql", err)
	}

	documents, err := database.NewDocumentsDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create documents handler", err)
	}

	chunks, err := database.NewChunksDBHandler(db, config.Embedding.Dimensions, false)
	if err != nil {
		return nil, helper.NewError("create chunks handler", err)
	}
	if err := chunks.ApplyIndexConfig(context.Background(), config.Index); err != nil {
		return nil, helper.NewError("apply index config", err)
	}

	meta, err := database.NewIndexMetaDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create index meta handler", err)
	}
	// Refuse to serve against an index built for another embedding space.
	_, err = meta.EnsureMeta(config.Embedding.Dimensions, database.MetricCosine)
	if err != nil {
		return nil, err
	}

	cursors, err := database.NewCursorsDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create cursors handler", err)
	}

	chunker, err := pipeline.NewChunker(config.Chunking)
	if err != nil {
		return nil, err
	}

	processingPipeline, err := pipeline.NewPipeline(chunker, embedder, logger)
	if err != nil {
		return nil, err
	}

	retriever, err := retrieval.NewRetriever(chunks, embedder, config.Retrieval, logger)
	if err != nil {
		return nil, err
	}

	reranker, err := retrieval.NewReranker(config.Ranking)
	if err != nil {
		return nil, err
	}

	logger.Info("Initialized engine",
		slog.String("embedding_provider", config.Embedding.Provider),
		slog.Int("embedding_dimensions", config.Embedding.Dimensions))

	return &Engine{
		Config:    config,
		DB:        db,
		Logger:    logger,
		Documents: documents,
		Chunks:    chunks,
		Meta:      meta,
		Cursors:   cursors,
		embedder:  embedder,
		pipeline:  processingPipeline,
		retriever: retriever,
		reranker:  reranker,
		assembler: retrieval.NewAssembler(config.Retrieval.DedupThreshold),
	}, nil
}

// Close releases the embedding provider and the database connection.
func (e *Engine) Close() error {
	if err := e.embedder.Close(); err != nil {
		e.Logger.Error("Error closing embedder", slog.Any("error", err))
	}

	err := e.DB.Instance.Close()
	if err != nil {
		return helper.NewError("close database connection", err)
	}

	e.Logger.Info("Closed engine")

	return nil
}

// IngestDocument chunks and embeds a document and swaps its chunk set in the
// index atomically. Re-ingesting the same document version is a no-op at the
// index level; a stale version never displaces a newer one. On any failure
// the previously indexed version stays fully queryable.
func (e *Engine) IngestDocument(ctx context.Context, doc *model.Document) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", model.ErrValidation)
	}
	if err := doc.Validate(); err != nil {
		return err
	}

	chunks, err := e.pipeline.Process(ctx, doc)
	if err != nil {
		return err
	}

	err = e.Chunks.ReplaceDocumentChunks(ctx, doc, chunks)
	if err != nil {
		return err
	}

	e.Logger.Info("Ingested document",
		slog.String("document_id", doc.ID),
		slog.Int64("version", doc.Version),
		slog.Int("num_chunks", len(chunks)))

	return nil
}

// DeleteDocument removes a document and all of its chunks in one atomic
// operation. Deleting an unknown document returns ErrNotFound.
func (e *Engine) DeleteDocument(ctx context.Context, documentID string) error {
	deleted, err := e.Documents.DeleteDocument(documentID)
	if err != nil {
		return err
	}
	if deleted == 0 {
		return fmt.Errorf("%w: document %q", model.ErrNotFound, documentID)
	}

	e.Logger.Info("Deleted document", slog.String("document_id", documentID))

	return nil
}

// Retrieve answers one retrieval query: embed, oversample from the index,
// re-rank with the composite score and assemble a token-budgeted payload.
// An empty result is a success with an empty payload.
func (e *Engine) Retrieve(ctx context.Context, query model.RetrievalQuery) (*RetrievalResult, error) {
	e.Config.Normalize(&query)

	pool, err := e.retriever.Retrieve(ctx, query)
	if err != nil {
		return nil, err
	}

	scored := e.reranker.Rerank(pool, query.TopK)
	payload := e.assembler.Assemble(scored, query.MaxContextTokens)

	e.Logger.Info("Answered retrieval query",
		slog.Int("pool", len(pool)),
		slog.Int("ranked", len(scored)),
		slog.Int("total_tokens", payload.TotalTokens),
		slog.Bool("truncated", payload.Truncated))

	return &RetrievalResult{
		Context:    payload,
		Candidates: retrieval.Candidates(scored),
	}, nil
}

// Reindex re-embeds every indexed chunk with the current embedding provider
// and swaps each document's chunk set atomically. Used after a provider or
// model change that keeps the dimension; a dimension change needs a fresh
// index instead.
func (e *Engine) Reindex(ctx context.Context) error {
	docs, err := e.Documents.SelectAllDocuments(reindexDocumentLimit)
	if err != nil {
		return err
	}

	reindexed := 0
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.reindexDocument(ctx, doc); err != nil {
			return err
		}
		reindexed++
	}

	e.Logger.Info("Reindexed documents", slog.Int("documents", reindexed))

	return nil
}

// ReindexDocument re-embeds the chunks of a single document. Unknown
// documents return ErrNotFound.
func (e *Engine) ReindexDocument(ctx context.Context, documentID string) error {
	doc, err := e.Documents.SelectDocument(documentID)
	if err != nil {
		return err
	}

	if err := e.reindexDocument(ctx, doc); err != nil {
		return err
	}

	e.Logger.Info("Reindexed document", slog.String("document_id", documentID))

	return nil
}

func (e *Engine) reindexDocument(ctx context.Context, doc *model.Document) error {
	chunks, err := e.Chunks.SelectChunksByDocument(doc.ID)
	if err != nil {
		return fmt.Errorf("load chunks of %s: %w", doc.ID, err)
	}
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	embeddings, err := e.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("re-embed %s: %w", doc.ID, err)
	}
	if len(embeddings) != len(chunks) {
		return fmt.Errorf("%w: got %d embeddings for %d chunks", model.ErrProviderRejected, len(embeddings), len(chunks))
	}
	for i, chunk := range chunks {
		chunk.Embedding = embeddings[i]
	}

	if err := e.Chunks.ReplaceDocumentChunks(ctx, doc, chunks); err != nil {
		return fmt.Errorf("replace chunks of %s: %w", doc.ID, err)
	}

	return nil
}

// NewSyncer creates a syncer that keeps the index in step with the given
// sources, persisting its cursors in the engine database.
func (e *Engine) NewSyncer(adapters []source.Adapter, interval time.Duration) (*source.Syncer, error) {
	return source.NewSyncer(adapters, e.Cursors, e, interval, e.Logger)
}

// Healthy reports whether the engine can serve: the database answers and
// the index self-description still matches the configuration.
func (e *Engine) Healthy(ctx context.Context) error {
	if err := e.DB.Instance.PingContext(ctx); err != nil {
		return helper.NewError("ping database", err)
	}

	stored, err := e.Meta.SelectMeta()
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return fmt.Errorf("%w: index meta row missing", model.ErrIndexCorruption)
		}
		return err
	}
	if stored.Dimension != e.Config.Embedding.Dimensions {
		return fmt.Errorf("%w: index dimension %d, configured %d",
			model.ErrDimensionMismatch, stored.Dimension, e.Config.Embedding.Dimensions)
	}
	if stored.Metric != database.MetricCosine {
		return fmt.Errorf("%w: index metric %q, engine serves %q",
			model.ErrDimensionMismatch, stored.Metric, database.MetricCosine)
	}

	return nil
}

// compile-time check: the engine is the syncer's ingestion surface.
var _ source.Ingestor = (*Engine)(nil)
