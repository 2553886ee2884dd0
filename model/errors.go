package model

import "errors"

// Sentinel errors forming the engine's error taxonomy. Callers classify
// failures with errors.Is; the HTTP layer translates them to status codes.
var (
	// ErrValidation marks malformed input. Non-retryable.
	ErrValidation = errors.New("validation error")

	// ErrProviderUnavailable marks a transient embedding provider failure.
	// The retriever retries these with exponential backoff before giving up.
	ErrProviderUnavailable = errors.New("embedding provider unavailable")

	// ErrProviderRejected marks input the embedding provider refused.
	// Non-retryable, surfaced to the caller.
	ErrProviderRejected = errors.New("embedding provider rejected input")

	// ErrDimensionMismatch marks an embedding whose length does not match
	// the index dimension. This is a configuration or versioning bug.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrIndexCorruption marks persisted index state that cannot be read.
	// Fatal: the engine refuses to serve rather than guess.
	ErrIndexCorruption = errors.New("index corruption")

	// ErrConfig marks invalid configuration. Raised at startup, never at
	// request time.
	ErrConfig = errors.New("invalid configuration")

	// ErrNotFound marks a lookup for a document that does not exist.
	ErrNotFound = errors.New("not found")
)
