package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/kbforge-labs/kbforge-cli/internal/core/domain"
	"github.com/kbforge-labs/kbforge-cli/internal/core/ports/driven"
	"github.com/kbforge-labs/kbforge-cli/internal/core/ports/driving"
)

// Ensure GraphService implements the interface.
var _ driving.GraphQueryService = (*GraphService)(nil)

// GraphService exposes graph inspection for the graph command group.
// It is a thin layer over the graph store that adds relationship
// summaries and input validation.
type GraphService struct {
	graphStore driven.GraphStore
}

// NewGraphService creates a graph query service.
func NewGraphService(graphStore driven.GraphStore) *GraphService {
	return &GraphService{graphStore: graphStore}
}

// List returns nodes of a kind (all kinds when empty).
func (s *GraphService) List(ctx context.Context, kind domain.NodeKind, limit int) ([]domain.GraphNode, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.graphStore.ListNodes(ctx, kind, limit)
}

// Inspect returns a node with its relationships and neighborhood.
func (s *GraphService) Inspect(ctx context.Context, nodeID string, depth int) (*driving.NodeDetail, error) {
	node, err := s.graphStore.GetNode(ctx, nodeID)
	if err != nil {
		return nil, err
	}

	detail := &driving.NodeDetail{Node: *node}

	edges, err := s.graphStore.Edges(ctx, nodeID)
	if err != nil {
		return nil, fmt.Errorf("edges for %s: %w", nodeID, err)
	}
	for _, edge := range edges {
		otherID := edge.ToID
		direction := "outgoing"
		if edge.ToID == nodeID {
			otherID = edge.FromID
			direction = "incoming"
		}
		name := otherID
		if other, err := s.graphStore.GetNode(ctx, otherID); err == nil {
			name = other.Name
		}
		detail.Relationships = append(detail.Relationships, domain.NodeRelationship{
			Type:        edge.Type,
			Direction:   direction,
			RelatedNode: name,
			Confidence:  edge.Confidence,
		})
	}

	if depth > 0 {
		neighborhood, err := s.graphStore.Neighborhood(ctx, nodeID, depth, nil)
		if err != nil {
			return nil, fmt.Errorf("neighborhood of %s: %w", nodeID, err)
		}
		detail.Neighborhood = neighborhood
	}

	return detail, nil
}

// Path finds the shortest path between two nodes.
func (s *GraphService) Path(ctx context.Context, fromID, toID string, maxDepth int) (*domain.GraphPath, error) {
	if fromID == "" || toID == "" {
		return nil, domain.NewValidationError("path requires two node ids")
	}
	if maxDepth <= 0 {
		maxDepth = 5
	}
	return s.graphStore.FindPath(ctx, fromID, toID, maxDepth)
}

// Impact lists nodes extracted from a document.
func (s *GraphService) Impact(ctx context.Context, docID string) ([]domain.ImpactedNode, error) {
	if docID == "" {
		return nil, domain.NewValidationError("impact requires a document id")
	}
	return s.graphStore.DocumentImpact(ctx, docID)
}

// Provenance lists documents that contributed to a node.
func (s *GraphService) Provenance(ctx context.Context, nodeID string) ([]domain.ProvenanceRecord, error) {
	if nodeID == "" {
		return nil, domain.NewValidationError("provenance requires a node id")
	}
	return s.graphStore.NodeProvenance(ctx, nodeID)
}

// Stats returns graph counts.
func (s *GraphService) Stats(ctx context.Context) (*domain.GraphStats, error) {
	return s.graphStore.Stats(ctx)
}

// Delete cascades deletion of a document's graph contribution.
func (s *GraphService) Delete(ctx context.Context, docID string) error {
	if docID == "" {
		return domain.NewValidationError("delete requires a document id")
	}
	return s.graphStore.DeleteBySourceDocument(ctx, docID)
}

// RawQuery runs a read-only query against the backend. Mutating
// statements are rejected up front.
func (s *GraphService) RawQuery(ctx context.Context, query string) ([]map[string]any, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return nil, domain.NewValidationError("empty query")
	}
	first := strings.ToUpper(strings.Fields(trimmed)[0])
	switch first {
	case "SELECT", "WITH", "EXPLAIN", "PRAGMA":
	default:
		return nil, domain.NewValidationError("only read-only queries are allowed")
	}
	return s.graphStore.Query(ctx, trimmed)
}
