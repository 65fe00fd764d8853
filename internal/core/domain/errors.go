package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed filters or parameters.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConfiguration indicates a bad store or provider selection.
	ErrConfiguration = errors.New("configuration error")

	// ErrStoreUnavailable indicates a backend is unreachable.
	// Surfaced at readiness checks, never masked.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrEmbeddingUnavailable indicates the embedding service is not
	// configured. Vector search is disabled without embeddings.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrGraphUnavailable indicates no graph store is configured.
	// Graph search and extraction are disabled.
	ErrGraphUnavailable = errors.New("graph store unavailable")
)

// NewValidationError wraps ErrInvalidInput with a reason.
func NewValidationError(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, reason)
}

// PipelineError reports that a single document failed to index.
// It carries the document ID and wraps the root cause.
type PipelineError struct {
	DocumentID string
	Err        error
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	return fmt.Sprintf("indexing document %s: %v", e.DocumentID, e.Err)
}

// Unwrap exposes the root cause for errors.Is / errors.As.
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// NewPipelineError wraps err with the failed document's ID.
func NewPipelineError(documentID string, err error) *PipelineError {
	return &PipelineError{DocumentID: documentID, Err: err}
}
