package driving

import (
	"context"

	"github.com/kbforge-labs/kbforge-cli/internal/core/domain"
)

// NodeDetail is a node with its relationship summaries and neighborhood.
type NodeDetail struct {
	Node          domain.GraphNode          `json:"node"`
	Relationships []domain.NodeRelationship `json:"relationships"`
	Neighborhood  []domain.GraphNode        `json:"neighborhood,omitempty"`
}

// GraphQueryService exposes graph inspection operations for operator
// tooling (the graph CLI command group).
type GraphQueryService interface {
	// List returns nodes of a kind (all kinds when empty).
	List(ctx context.Context, kind domain.NodeKind, limit int) ([]domain.GraphNode, error)

	// Inspect returns a node with its relationships and neighborhood.
	Inspect(ctx context.Context, nodeID string, depth int) (*NodeDetail, error)

	// Path finds the shortest path between two nodes.
	Path(ctx context.Context, fromID, toID string, maxDepth int) (*domain.GraphPath, error)

	// Impact lists nodes extracted from a document.
	Impact(ctx context.Context, docID string) ([]domain.ImpactedNode, error)

	// Provenance lists documents that contributed to a node.
	Provenance(ctx context.Context, nodeID string) ([]domain.ProvenanceRecord, error)

	// Stats returns graph counts.
	Stats(ctx context.Context) (*domain.GraphStats, error)

	// Delete cascades deletion of a document's graph contribution.
	Delete(ctx context.Context, docID string) error

	// RawQuery runs a read-only query against the backend.
	RawQuery(ctx context.Context, query string) ([]map[string]any, error)
}
