package retrieval

import (
	"strings"

	"github.com/ctxforge/ctxforge/core/pipeline"
	"github.com/ctxforge/ctxforge/model"
)

// Assembler builds the final context payload: ranked passages with
// citations, deduplicated and bounded by the query's token budget.
type Assembler struct {
	dedupThreshold float64
}

// NewAssembler creates a new assembler. dedupThreshold is the word-overlap
// ratio above which two chunks of the same document count as duplicates.
func NewAssembler(dedupThreshold float64) *Assembler {
	return &Assembler{dedupThreshold: dedupThreshold}
}

// Assemble walks the ranked candidates in final order and packs passages
// into the token budget. A chunk that would overflow the budget is dropped
// and Truncated is set; later, smaller chunks are still considered.
// Overlapping chunks of the same document (a consequence of window overlap)
// are deduplicated in favor of the higher-ranked one.
//
// Edge case: when the single best chunk alone exceeds the whole budget, its
// text is cut to the budget instead of returning an empty payload.
func (a *Assembler) Assemble(scored []*ScoredChunk, maxContextTokens int) *model.ContextPayload {
	payload := &model.ContextPayload{
		Passages: []model.Passage{},
	}

	var accepted []*ScoredChunk
	for _, candidate := range scored {
		if a.isDuplicate(candidate, accepted) {
			continue
		}

		if payload.TotalTokens+candidate.Chunk.TokenCount > maxContextTokens {
			if len(accepted) == 0 && candidate.Chunk.TokenCount > maxContextTokens {
				// Best chunk alone exceeds the budget: deliver its head
				// rather than nothing.
				truncated := truncateTokens(candidate.Chunk.Text, maxContextTokens)
				payload.Passages = append(payload.Passages, model.Passage{
					Text: truncated,
					Citation: model.Citation{
						DocumentID: candidate.Chunk.DocumentID,
						SourceType: candidate.Chunk.SourceType,
					},
				})
				payload.TotalTokens = maxContextTokens
				payload.Truncated = true
				accepted = append(accepted, candidate)
				continue
			}
			payload.Truncated = true
			continue
		}

		payload.Passages = append(payload.Passages, model.Passage{
			Text: candidate.Chunk.Text,
			Citation: model.Citation{
				DocumentID: candidate.Chunk.DocumentID,
				SourceType: candidate.Chunk.SourceType,
			},
		})
		payload.TotalTokens += candidate.Chunk.TokenCount
		accepted = append(accepted, candidate)
	}

	return payload
}

// isDuplicate reports whether the candidate overlaps an already accepted
// chunk of the same document beyond the threshold.
func (a *Assembler) isDuplicate(candidate *ScoredChunk, accepted []*ScoredChunk) bool {
	for _, other := range accepted {
		if other.Chunk.DocumentID != candidate.Chunk.DocumentID {
			continue
		}
		if wordOverlap(candidate.Chunk.Text, other.Chunk.Text) >= a.dedupThreshold {
			return true
		}
	}
	return false
}

// wordOverlap computes the Jaccard similarity of the two texts' word sets.
func wordOverlap(a, b string) float64 {
	wordsA := map[string]bool{}
	for _, w := range pipeline.Tokenize(a) {
		wordsA[strings.ToLower(w)] = true
	}
	wordsB := map[string]bool{}
	for _, w := range pipeline.Tokenize(b) {
		wordsB[strings.ToLower(w)] = true
	}
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0
	}

	intersection := 0
	for w := range wordsA {
		if wordsB[w] {
			intersection++
		}
	}
	union := len(wordsA) + len(wordsB) - intersection

	return float64(intersection) / float64(union)
}

// truncateTokens cuts text to at most maxTokens whitespace tokens.
func truncateTokens(text string, maxTokens int) string {
	tokens := pipeline.Tokenize(text)
	if len(tokens) <= maxTokens {
		return text
	}
	return strings.Join(tokens[:maxTokens], " ")
}
