package extraction

import (
	"context"

	"github.com/kbforge-labs/kbforge-cli/internal/core/domain"
	"github.com/kbforge-labs/kbforge-cli/internal/core/ports/driven"
)

// genericConfidence is the confidence of fallback document nodes.
const genericConfidence = 0.5

// GenericStrategy represents any document (use cases, rules, notes)
// as a Document node plus one generic domain node with primary
// provenance, so every indexed document participates in deletion and
// impact queries.
type GenericStrategy struct {
	graph driven.GraphStore
}

// NewGenericStrategy creates the fallback strategy.
func NewGenericStrategy(graph driven.GraphStore) *GenericStrategy {
	return &GenericStrategy{graph: graph}
}

// Name identifies the strategy.
func (s *GenericStrategy) Name() string { return "generic" }

// CanHandle always matches; this is the required fallback default.
func (s *GenericStrategy) CanHandle(_ *domain.Document) bool { return true }

// Extract writes the minimal document representation.
func (s *GenericStrategy) Extract(
	ctx context.Context, doc *domain.Document, chunks []domain.Chunk,
) (driven.ExtractionResult, error) {
	kind, _ := doc.Metadata["kind"].(string)
	if err := s.graph.UpsertDocument(ctx, doc.ID, doc.Title, doc.RelativePath, kind); err != nil {
		return driven.ExtractionResult{}, err
	}

	nodeID := domain.DocNodeID(doc.ID)
	node := domain.GraphNode{
		ID:               nodeID,
		Kind:             domain.NodeKindEntity,
		Name:             doc.Title,
		Description:      "Document: " + doc.Title,
		Confidence:       genericConfidence,
		SourceDocumentID: doc.ID,
	}
	if len(chunks) > 0 {
		node.SourceChunkID = chunks[0].ID
	}
	if err := s.graph.UpsertNode(ctx, node); err != nil {
		return driven.ExtractionResult{}, err
	}

	err := s.graph.AddProvenance(ctx, domain.ProvenanceEdge{
		NodeID:     nodeID,
		NodeKind:   domain.NodeKindEntity,
		DocID:      doc.ID,
		Role:       domain.RolePrimary,
		Confidence: genericConfidence,
	})
	if err != nil {
		return driven.ExtractionResult{}, err
	}

	return driven.ExtractionResult{NodesCreated: 2, EdgesCreated: 1}, nil
}
