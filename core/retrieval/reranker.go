package retrieval

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/ctxforge/ctxforge/model"
)

// ScoredChunk is a candidate after re-ranking, ordered by final rank.
type ScoredChunk struct {
	Chunk           *model.Chunk
	SimilarityScore float64
	RerankScore     float64
	FinalRank       int
}

// Reranker reorders the candidate pool with a composite of similarity,
// recency and source trust. Raw similarity decides what is relevant; the
// composite decides what is worth showing first.
type Reranker struct {
	config model.RankingConfig
	now    func() time.Time
}

// NewReranker creates a new reranker.
func NewReranker(config model.RankingConfig) (*Reranker, error) {
	sum := config.SimilarityWeight + config.RecencyWeight + config.TrustWeight
	if math.Abs(sum-1.0) > 1e-6 {
		return nil, fmt.Errorf("%w: ranking weights must sum to 1.0, got %f", model.ErrConfig, sum)
	}
	if config.RecencyHalfLife <= 0 {
		return nil, fmt.Errorf("%w: recency_half_life must be positive", model.ErrConfig)
	}
	return &Reranker{
		config: config,
		now:    time.Now,
	}, nil
}

// Rerank scores the pool and returns the top topK candidates in final
// order. The ordering is total: score ties break by chunk ID ascending, so
// equal inputs always produce the same ranking.
func (r *Reranker) Rerank(candidates []*model.Chunk, topK int) []*ScoredChunk {
	now := r.now()

	scored := make([]*ScoredChunk, len(candidates))
	for i, chunk := range candidates {
		scored[i] = &ScoredChunk{
			Chunk:           chunk,
			SimilarityScore: chunk.Similarity,
			RerankScore:     r.score(chunk, now),
		}
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].RerankScore != scored[j].RerankScore {
			return scored[i].RerankScore > scored[j].RerankScore
		}
		return scored[i].Chunk.ID < scored[j].Chunk.ID
	})

	if len(scored) > topK {
		scored = scored[:topK]
	}
	for rank, sc := range scored {
		sc.FinalRank = rank
	}

	return scored
}

// Candidates converts scored chunks to their wire representation.
func Candidates(scored []*ScoredChunk) []model.RankedCandidate {
	candidates := make([]model.RankedCandidate, len(scored))
	for i, sc := range scored {
		candidates[i] = model.RankedCandidate{
			ChunkID:         sc.Chunk.ID,
			SimilarityScore: sc.SimilarityScore,
			RerankScore:     sc.RerankScore,
			FinalRank:       sc.FinalRank,
		}
	}
	return candidates
}

// score computes the weighted composite for one chunk.
func (r *Reranker) score(chunk *model.Chunk, now time.Time) float64 {
	// Cosine similarity lives in [-1, 1]; normalize to [0, 1] so the three
	// components share a scale.
	similarity := (chunk.Similarity + 1) / 2

	recency := r.recencyFactor(chunk.SourceMetadata.UpdatedAt, now)
	trust := r.config.TrustBySource[chunk.SourceType]

	return r.config.SimilarityWeight*similarity +
		r.config.RecencyWeight*recency +
		r.config.TrustWeight*trust
}

// recencyFactor halves for every half-life of document age. A document
// without an update timestamp gets no recency credit.
func (r *Reranker) recencyFactor(updatedAt time.Time, now time.Time) float64 {
	if updatedAt.IsZero() {
		return 0
	}
	age := now.Sub(updatedAt)
	if age < 0 {
		age = 0
	}
	halfLives := float64(age) / float64(r.config.RecencyHalfLife)
	return math.Exp2(-halfLives)
}
