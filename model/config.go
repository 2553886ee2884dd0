package model

import (
	"fmt"
	"math"
	"time"
)

// weightTolerance is the floating tolerance when checking that ranking
// weights sum to 1.0.
const weightTolerance = 1e-6

// ChunkingConfig controls how documents are split into chunks.
type ChunkingConfig struct {
	// MaxChunkTokens bounds the size of a single chunk.
	MaxChunkTokens int `json:"max_chunk_tokens" toml:"max_chunk_tokens"`
	// OverlapFraction is the fraction of MaxChunkTokens shared between
	// consecutive chunks, so context spanning a boundary is not lost.
	OverlapFraction float64 `json:"overlap_fraction" toml:"overlap_fraction"`
	// MaxDocumentTokens is the hard limit above which a document is
	// rejected and the source adapter must split upstream.
	MaxDocumentTokens int `json:"max_document_tokens" toml:"max_document_tokens"`
}

// RetrievalConfig controls candidate selection before re-ranking.
type RetrievalConfig struct {
	// TopK is the default result count when a query does not set one.
	TopK int `json:"top_k" toml:"top_k"`
	// OversampleFactor multiplies TopK for the index query so the
	// re-ranker has a meaningful pool to reorder.
	OversampleFactor int `json:"oversample_factor" toml:"oversample_factor"`
	// SimilarityFloor drops candidates below this cosine similarity.
	// An empty result after flooring is a success, not an error.
	SimilarityFloor float64 `json:"similarity_floor" toml:"similarity_floor"`
	// MaxContextTokens is the default context budget when a query does
	// not set one.
	MaxContextTokens int `json:"max_context_tokens" toml:"max_context_tokens"`
	// DedupThreshold is the word-overlap ratio above which two chunks of
	// the same document are considered duplicates during assembly.
	DedupThreshold float64 `json:"dedup_threshold" toml:"dedup_threshold"`
}

// RankingConfig holds the composite-score weights and their inputs.
// The three weights must sum to 1.0.
type RankingConfig struct {
	SimilarityWeight float64 `json:"similarity_weight" toml:"similarity_weight"`
	RecencyWeight    float64 `json:"recency_weight" toml:"recency_weight"`
	TrustWeight      float64 `json:"trust_weight" toml:"trust_weight"`
	// RecencyHalfLife is the document age at which the recency factor
	// decays to 0.5.
	RecencyHalfLife time.Duration `json:"recency_half_life" toml:"recency_half_life"`
	// TrustBySource weights each source type; official articles rank
	// above free-text notes at equal similarity.
	TrustBySource map[SourceType]float64 `json:"trust_by_source" toml:"trust_by_source"`
}

// IndexConfig selects the approximate-nearest-neighbor structure of the
// chunk index. The distance metric is always cosine; only the structure and
// its build parameters vary.
type IndexConfig struct {
	// Type is "hnsw" or "ivfflat". Empty keeps the existing index.
	Type string `json:"type,omitempty" toml:"type"`
	// M and EfConstruction tune an HNSW index. Zero means pgvector default.
	M              int `json:"m,omitempty" toml:"m"`
	EfConstruction int `json:"ef_construction,omitempty" toml:"ef_construction"`
	// Lists tunes an IVFFlat index. Zero means pgvector default.
	Lists int `json:"lists,omitempty" toml:"lists"`
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	// Provider is one of "openai", "ollama" or "local".
	Provider string `json:"provider" toml:"provider"`
	Model    string `json:"model,omitempty" toml:"model"`
	BaseURL  string `json:"base_url,omitempty" toml:"base_url"`
	// Dimensions must match the index dimension for the index lifetime.
	Dimensions int           `json:"dimensions" toml:"dimensions"`
	Timeout    time.Duration `json:"timeout" toml:"timeout"`
	// MaxRetries bounds the backoff retries on transient provider errors.
	MaxRetries int `json:"max_retries" toml:"max_retries"`
}

// EngineConfig is the full engine configuration. It is loaded once at
// process start and treated as immutable for the process lifetime.
type EngineConfig struct {
	Chunking  ChunkingConfig  `json:"chunking" toml:"chunking"`
	Retrieval RetrievalConfig `json:"retrieval" toml:"retrieval"`
	Ranking   RankingConfig   `json:"ranking" toml:"ranking"`
	Embedding EmbeddingConfig `json:"embedding" toml:"embedding"`
	Index     IndexConfig     `json:"index" toml:"index"`
}

// DefaultEngineConfig returns a sensible default configuration.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Chunking: ChunkingConfig{
			MaxChunkTokens:    256,
			OverlapFraction:   0.15,
			MaxDocumentTokens: 200_000,
		},
		Retrieval: RetrievalConfig{
			TopK:             5,
			OversampleFactor: 4,
			SimilarityFloor:  0.3,
			MaxContextTokens: 2048,
			DedupThreshold:   0.6,
		},
		Ranking: RankingConfig{
			SimilarityWeight: 0.6,
			RecencyWeight:    0.2,
			TrustWeight:      0.2,
			RecencyHalfLife:  7 * 24 * time.Hour,
			TrustBySource: map[SourceType]float64{
				SourceTypeArticle:    1.0,
				SourceTypeTicket:     0.8,
				SourceTypeTranscript: 0.6,
				SourceTypeNote:       0.5,
			},
		},
		Embedding: EmbeddingConfig{
			Provider:   "local",
			Dimensions: 384,
			Timeout:    10 * time.Second,
			MaxRetries: 3,
		},
	}
}

// Validate checks the configuration and fails fast with ErrConfig on any
// inconsistency, so a skewed ranking or a mis-sized index can never come
// from a silently accepted config.
func (c *EngineConfig) Validate() error {
	if c.Chunking.MaxChunkTokens <= 0 {
		return fmt.Errorf("%w: max_chunk_tokens must be positive, got %d", ErrConfig, c.Chunking.MaxChunkTokens)
	}
	if c.Chunking.OverlapFraction < 0 || c.Chunking.OverlapFraction >= 1 {
		return fmt.Errorf("%w: overlap_fraction must be in [0, 1), got %f", ErrConfig, c.Chunking.OverlapFraction)
	}
	if c.Chunking.MaxDocumentTokens <= c.Chunking.MaxChunkTokens {
		return fmt.Errorf("%w: max_document_tokens must exceed max_chunk_tokens", ErrConfig)
	}

	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("%w: top_k must be positive, got %d", ErrConfig, c.Retrieval.TopK)
	}
	if c.Retrieval.OversampleFactor < 1 {
		return fmt.Errorf("%w: oversample_factor must be >= 1, got %d", ErrConfig, c.Retrieval.OversampleFactor)
	}
	if c.Retrieval.SimilarityFloor < -1 || c.Retrieval.SimilarityFloor > 1 {
		return fmt.Errorf("%w: similarity_floor must be in [-1, 1], got %f", ErrConfig, c.Retrieval.SimilarityFloor)
	}
	if c.Retrieval.MaxContextTokens <= 0 {
		return fmt.Errorf("%w: max_context_tokens must be positive, got %d", ErrConfig, c.Retrieval.MaxContextTokens)
	}
	if c.Retrieval.DedupThreshold <= 0 || c.Retrieval.DedupThreshold > 1 {
		return fmt.Errorf("%w: dedup_threshold must be in (0, 1], got %f", ErrConfig, c.Retrieval.DedupThreshold)
	}

	sum := c.Ranking.SimilarityWeight + c.Ranking.RecencyWeight + c.Ranking.TrustWeight
	if math.Abs(sum-1.0) > weightTolerance {
		return fmt.Errorf("%w: ranking weights must sum to 1.0, got %f", ErrConfig, sum)
	}
	if c.Ranking.SimilarityWeight < 0 || c.Ranking.RecencyWeight < 0 || c.Ranking.TrustWeight < 0 {
		return fmt.Errorf("%w: ranking weights must be non-negative", ErrConfig)
	}
	if c.Ranking.RecencyHalfLife <= 0 {
		return fmt.Errorf("%w: recency_half_life must be positive", ErrConfig)
	}
	for _, st := range SourceTypes {
		w, ok := c.Ranking.TrustBySource[st]
		if !ok {
			return fmt.Errorf("%w: missing trust weight for source type %q", ErrConfig, st)
		}
		if w < 0 || w > 1 {
			return fmt.Errorf("%w: trust weight for %q must be in [0, 1], got %f", ErrConfig, st, w)
		}
	}

	switch c.Embedding.Provider {
	case "openai", "ollama", "local":
	default:
		return fmt.Errorf("%w: unknown embedding provider %q", ErrConfig, c.Embedding.Provider)
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("%w: embedding dimensions must be positive, got %d", ErrConfig, c.Embedding.Dimensions)
	}
	if c.Embedding.Timeout <= 0 {
		return fmt.Errorf("%w: embedding timeout must be positive", ErrConfig)
	}
	if c.Embedding.MaxRetries < 0 {
		return fmt.Errorf("%w: max_retries must be non-negative, got %d", ErrConfig, c.Embedding.MaxRetries)
	}

	switch c.Index.Type {
	case "", "hnsw", "ivfflat":
	default:
		return fmt.Errorf("%w: unknown index type %q", ErrConfig, c.Index.Type)
	}
	if c.Index.M < 0 || c.Index.EfConstruction < 0 || c.Index.Lists < 0 {
		return fmt.Errorf("%w: index parameters must be non-negative", ErrConfig)
	}

	return nil
}

// Normalize fills unset query fields from the configured defaults.
func (c *EngineConfig) Normalize(q *RetrievalQuery) {
	if q.TopK <= 0 {
		q.TopK = c.Retrieval.TopK
	}
	if q.MaxContextTokens <= 0 {
		q.MaxContextTokens = c.Retrieval.MaxContextTokens
	}
}
