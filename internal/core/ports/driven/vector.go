package driven

import (
	"context"

	"github.com/kbforge-labs/kbforge-cli/internal/core/domain"
)

// VectorIndex provides semantic similarity search operations.
type VectorIndex interface {
	// Upsert inserts or replaces the vector for a chunk. Metadata is
	// stored alongside the vector for filtering.
	Upsert(ctx context.Context, chunkID string, vector []float32, meta VectorMetadata) error

	// Search finds the k most similar chunks to the query vector,
	// honoring filters and an optional score threshold (<= 0 disables).
	Search(ctx context.Context, query []float32, k int, filters domain.SearchFilters, threshold float64) ([]VectorHit, error)

	// DeleteByDocument removes all vectors for a document.
	DeleteByDocument(ctx context.Context, documentID string) error

	// Close releases resources.
	Close() error
}

// VectorMetadata is stored with each vector for filtered search.
type VectorMetadata struct {
	DocumentID string
	Domain     string
	Tags       []string
}

// VectorHit represents a similarity search result.
type VectorHit struct {
	// ChunkID is the matched chunk.
	ChunkID string

	// Score is the cosine similarity (0-1).
	Score float64
}
