package driven

import (
	"context"

	"github.com/kbforge-labs/kbforge-cli/internal/core/domain"
)

// ExtractionResult reports graph writes for observability.
type ExtractionResult struct {
	NodesCreated int
	EdgesCreated int
}

// GraphExtractor translates one parsed document into graph store
// operations. Implementations must be deterministic and idempotent:
// re-running extraction on an unchanged document produces the same
// node and edge IDs, so the graph store's merge rules see no-ops.
type GraphExtractor interface {
	// ExtractAndStore writes the document's graph delta. Extraction
	// errors degrade to a minimal fallback node and are logged; the
	// indexation pipeline is never failed by partial extraction.
	ExtractAndStore(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) (ExtractionResult, error)

	// DeleteByDocument cascades deletion of the document's contribution.
	DeleteByDocument(ctx context.Context, documentID string) error
}
