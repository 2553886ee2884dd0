// Package pipeline turns documents into embedded chunks. Chunking is
// deterministic: the same document text and configuration always produce
// the same chunk boundaries and IDs, so re-ingesting unchanged content is
// an idempotent upsert.
package pipeline

import "strings"

// Tokenize splits text into whitespace-delimited tokens. This approximates
// model tokenization closely enough for budgeting; the chunk and context
// budgets are soft limits, not provider contracts.
func Tokenize(text string) []string {
	return strings.Fields(text)
}

// CountTokens returns the approximate token count of a text.
func CountTokens(text string) int {
	return len(Tokenize(text))
}
