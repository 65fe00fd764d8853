package extraction

import (
	"context"

	"github.com/kbforge-labs/kbforge-cli/internal/core/domain"
	"github.com/kbforge-labs/kbforge-cli/internal/core/ports/driven"
	"github.com/kbforge-labs/kbforge-cli/internal/logger"
)

// Ensure Registry implements the interface.
var _ driven.GraphExtractor = (*Registry)(nil)

// Strategy is one extraction variant. Selection is a pure function of
// the document; strategies hold no per-document state.
type Strategy interface {
	// Name identifies the strategy for logging.
	Name() string

	// CanHandle reports whether this strategy fits the document.
	CanHandle(doc *domain.Document) bool

	// Extract writes the document's graph delta.
	Extract(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) (driven.ExtractionResult, error)
}

// Registry dispatches extraction to the first matching strategy and
// degrades to the generic fallback when a strategy fails.
type Registry struct {
	graph      driven.GraphStore
	strategies []Strategy
	fallback   *GenericStrategy
}

// NewRegistry creates a registry with the default strategy order:
// entity documents first, generic fallback last.
func NewRegistry(graph driven.GraphStore) *Registry {
	return &Registry{
		graph:      graph,
		strategies: []Strategy{NewEntityStrategy(graph)},
		fallback:   NewGenericStrategy(graph),
	}
}

// ExtractAndStore picks a strategy and runs it. A strategy error is
// logged and degraded to the generic fallback node so the indexation
// pipeline never fails on partial extraction.
func (r *Registry) ExtractAndStore(
	ctx context.Context, doc *domain.Document, chunks []domain.Chunk,
) (driven.ExtractionResult, error) {
	for _, s := range r.strategies {
		if !s.CanHandle(doc) {
			continue
		}
		result, err := s.Extract(ctx, doc, chunks)
		if err == nil {
			logger.Debug("Extraction %s: %d nodes, %d edges for %s",
				s.Name(), result.NodesCreated, result.EdgesCreated, doc.ID)
			return result, nil
		}
		logger.Warn("Extraction %s failed for %s: %v (falling back)", s.Name(), doc.ID, err)
		break
	}

	return r.fallback.Extract(ctx, doc, chunks)
}

// DeleteByDocument cascades deletion of the document's graph
// contribution.
func (r *Registry) DeleteByDocument(ctx context.Context, documentID string) error {
	return r.graph.DeleteBySourceDocument(ctx, documentID)
}
