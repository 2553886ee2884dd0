package model

import "time"

// QueryFilters are hard metadata predicates applied before similarity
// ranking. A candidate failing any filter is excluded regardless of its
// similarity score.
type QueryFilters struct {
	CustomerID    string       `json:"customer_id,omitempty"`
	SourceTypes   []SourceType `json:"source_types,omitempty"`
	CreatedAfter  *time.Time   `json:"created_after,omitempty"`
	CreatedBefore *time.Time   `json:"created_before,omitempty"`
}

// RetrievalQuery is a single retrieval request.
type RetrievalQuery struct {
	Text             string       `json:"text"`
	Filters          QueryFilters `json:"filters,omitempty"`
	TopK             int          `json:"top_k,omitempty"`
	MaxContextTokens int          `json:"max_context_tokens,omitempty"`
}

// RankedCandidate is a chunk surviving the similarity floor, carrying both
// the raw similarity score and the composite re-ranking score. FinalRank is
// a total, gapless 0-based order within one query result; ties in the
// composite score are broken by chunk ID ascending so retrieval is
// reproducible given identical inputs.
type RankedCandidate struct {
	ChunkID         string  `json:"chunk_id"`
	SimilarityScore float64 `json:"similarity_score"`
	RerankScore     float64 `json:"rerank_score"`
	FinalRank       int     `json:"final_rank"`
}

// Citation attributes a passage to its originating document.
type Citation struct {
	DocumentID string     `json:"document_id"`
	SourceType SourceType `json:"source_type"`
}

// Passage is one chunk of text included in the assembled context.
type Passage struct {
	Text     string   `json:"chunk_text"`
	Citation Citation `json:"citation"`
}

// ContextPayload is the size-bounded context handed to the downstream
// answer-generation caller. Truncated is set when at least one ranked
// candidate was dropped to honor the token budget.
type ContextPayload struct {
	Passages    []Passage `json:"passages"`
	Truncated   bool      `json:"truncated"`
	TotalTokens int       `json:"total_tokens"`
}
