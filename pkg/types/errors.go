package types

import "errors"

// Failure taxonomy shared across the indexing pipeline and query engines
var (
	// ErrParseFailure marks a per-file, recoverable failure: the file is
	// skipped and the batch continues.
	ErrParseFailure = errors.New("parse failure")

	// ErrEmbeddingUnavailable marks a batch-level embedding backend
	// failure. Depending on configuration the indexer degrades to
	// metadata-only indexing or aborts the batch.
	ErrEmbeddingUnavailable = errors.New("embedding backend unavailable")

	// ErrStorageUnavailable is fatal for the current operation. The core
	// does not retry internally beyond a single attempt.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrInvalidQuery rejects malformed query parameters (negative depth
	// or limit) before any traversal work begins.
	ErrInvalidQuery = errors.New("invalid query parameter")
)

// Search result validation errors
var (
	ErrInvalidUnitID = errors.New("invalid unit ID")
	ErrInvalidRank   = errors.New("rank must be >= 1")
	ErrInvalidScore  = errors.New("score must be between 0 and 1")
	ErrMissingUnit   = errors.New("unit is required")
)
