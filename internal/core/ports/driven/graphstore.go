package driven

import (
	"context"

	"github.com/kbforge-labs/kbforge-cli/internal/core/domain"
)

// GraphStore is the single source of truth for the knowledge graph.
// It must be safe under repeated and overlapping extraction from many
// documents: upserts are idempotent, node merges are guarded by
// confidence, and writes against missing endpoints are no-ops.
type GraphStore interface {
	// UpsertDocument creates or replaces a Document node. Documents
	// are authoritative; no confidence semantics apply.
	UpsertDocument(ctx context.Context, docID, title, path, kind string) error

	// UpsertNode merges a node in two phases: create if absent, then
	// apply fields only if the new confidence is >= the stored one.
	// Guard check and write are atomic per node.
	UpsertNode(ctx context.Context, node domain.GraphNode) error

	// AddProvenance idempotently upserts an EXTRACTED_FROM edge from a
	// domain node to a Document node.
	AddProvenance(ctx context.Context, edge domain.ProvenanceEdge) error

	// AddEdge idempotently upserts a domain edge. SourceDocID is
	// required for cascade deletion.
	AddEdge(ctx context.Context, edge domain.GraphEdge) error

	// DeleteBySourceDocument cascades: (1) drop provenance edges to
	// docID, (2) drop domain edges tagged with docID, (3) sweep nodes
	// left with zero provenance edges, (4) drop the Document node.
	// Orphan detection runs only after all edge deletions commit.
	DeleteBySourceDocument(ctx context.Context, docID string) error

	// GetNode returns a node by ID, or domain.ErrNotFound.
	GetNode(ctx context.Context, id string) (*domain.GraphNode, error)

	// FindNodes returns non-Document nodes whose name matches the
	// pattern (case-insensitive substring), up to limit.
	FindNodes(ctx context.Context, namePattern string, limit int) ([]domain.GraphNode, error)

	// ListNodes returns nodes of a kind (all kinds when empty), up to limit.
	ListNodes(ctx context.Context, kind domain.NodeKind, limit int) ([]domain.GraphNode, error)

	// Neighborhood returns nodes reachable from id within depth hops
	// over domain edges, optionally restricted to the given edge types.
	// Provenance edges are excluded from traversal.
	Neighborhood(ctx context.Context, id string, depth int, edgeTypes []domain.EdgeType) ([]domain.GraphNode, error)

	// Edges returns the domain edges touching a node.
	Edges(ctx context.Context, nodeID string) ([]domain.GraphEdge, error)

	// FindPath returns the shortest undirected path between two nodes
	// over domain edges, or nil when none exists within maxDepth.
	FindPath(ctx context.Context, fromID, toID string, maxDepth int) (*domain.GraphPath, error)

	// DocumentImpact lists nodes holding a provenance edge to docID.
	DocumentImpact(ctx context.Context, docID string) ([]domain.ImpactedNode, error)

	// NodeProvenance lists documents that contributed to a node.
	NodeProvenance(ctx context.Context, nodeID string) ([]domain.ProvenanceRecord, error)

	// Stats returns node counts per kind and total edge count.
	Stats(ctx context.Context) (*domain.GraphStats, error)

	// Query is a raw read-only escape hatch for operator tooling.
	Query(ctx context.Context, query string) ([]map[string]any, error)

	// Close releases resources.
	Close() error
}
