package model

import "github.com/m-mizutani/goerr/v2"

var (
	// ErrValidation indicates malformed caller input, such as empty
	// content or a non-positive result limit.
	ErrValidation = goerr.New("validation error")

	// ErrEmbeddingUnavailable indicates the embedding provider has not
	// finished initializing or is not configured.
	ErrEmbeddingUnavailable = goerr.New("embedding provider unavailable")

	// ErrEmbeddingTimeout indicates embedding computation exceeded its
	// configured deadline.
	ErrEmbeddingTimeout = goerr.New("embedding timed out")

	// ErrStoreUnavailable indicates a connection-level or transient
	// vector store failure that survived retries.
	ErrStoreUnavailable = goerr.New("vector store unavailable")

	// ErrNotFound indicates the requested record does not exist. Review
	// operations treat this as a non-fatal outcome.
	ErrNotFound = goerr.New("memory not found")

	// ErrConsolidationBusy indicates a consolidation run is already
	// active and the newly triggered run was skipped.
	ErrConsolidationBusy = goerr.New("consolidation run already active")
)
