package driving

import (
	"context"

	"github.com/kbforge-labs/kbforge-cli/internal/core/domain"
)

// RetrievalOptions configures a retrieval query.
type RetrievalOptions struct {
	// Mode selects vector, graph, or hybrid retrieval.
	Mode domain.RetrievalMode

	// Limit is the maximum number of references (default 10).
	Limit int

	// ScoreThreshold drops vector hits below this score (<= 0 disables).
	ScoreThreshold float64

	// Filters restrict vector search candidates.
	Filters domain.SearchFilters
}

// Retriever answers queries with ranked, deduplicated document
// references.
type Retriever interface {
	// Retrieve runs the query in the configured mode.
	Retrieve(ctx context.Context, query string, opts RetrievalOptions) ([]domain.DocumentReference, error)
}
