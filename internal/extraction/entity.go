package extraction

import (
	"context"
	"fmt"

	"github.com/kbforge-labs/kbforge-cli/internal/core/domain"
	"github.com/kbforge-labs/kbforge-cli/internal/core/ports/driven"
)

// Confidence levels for entity extraction. The primary entity is
// authoritative; nodes that are merely referenced get stub confidence
// and are upgraded by the graph store's confidence guard when their
// own document is indexed.
const (
	confidencePrimary    = 1.0
	confidenceAttribute  = 0.95
	confidenceRelation   = 0.95
	confidenceEvent      = 0.9
	confidenceViaRef     = 0.9
	confidenceReferenced = 0.7
)

// EntityStrategy extracts a rich graph from entity definition
// documents: the entity itself, attributes and states as Concept
// children, referenced entities as stubs, and emitted/consumed events.
type EntityStrategy struct {
	graph driven.GraphStore
}

// NewEntityStrategy creates the entity extraction strategy.
func NewEntityStrategy(graph driven.GraphStore) *EntityStrategy {
	return &EntityStrategy{graph: graph}
}

// Name identifies the strategy.
func (s *EntityStrategy) Name() string { return "entity" }

// CanHandle matches documents declaring kind: entity.
func (s *EntityStrategy) CanHandle(doc *domain.Document) bool {
	return isEntityDocument(doc)
}

// Extract writes the entity's graph delta. Every node gets a
// provenance edge to the document, and every domain edge carries the
// document ID for cascade deletion.
func (s *EntityStrategy) Extract(
	ctx context.Context, doc *domain.Document, chunks []domain.Chunk,
) (driven.ExtractionResult, error) {
	info, err := parseEntityDocument(doc)
	if err != nil {
		return driven.ExtractionResult{}, fmt.Errorf("parse entity document: %w", err)
	}
	if info.Name == "" {
		return driven.ExtractionResult{}, fmt.Errorf("entity document %s has no name", doc.ID)
	}

	w := &graphWriter{ctx: ctx, graph: s.graph, docID: doc.ID}

	kind, _ := doc.Metadata["kind"].(string)
	if err := s.graph.UpsertDocument(ctx, doc.ID, doc.Title, doc.RelativePath, kind); err != nil {
		return driven.ExtractionResult{}, err
	}
	w.nodes++

	entityID := domain.EntityNodeID(info.Name)
	w.node(domain.GraphNode{
		ID:               entityID,
		Kind:             domain.NodeKindEntity,
		Name:             info.Name,
		Description:      clip(info.Description, 500),
		Confidence:       confidencePrimary,
		SourceDocumentID: doc.ID,
		SourceChunkID:    firstChunkID(chunks),
	}, domain.RolePrimary, confidencePrimary)

	for _, attr := range info.Attributes {
		conceptID := domain.ConceptNodeID(info.Name, attr.Name)
		w.node(domain.GraphNode{
			ID:               conceptID,
			Kind:             domain.NodeKindConcept,
			Name:             attr.Name,
			Description:      clip(attr.Description, 500),
			Confidence:       confidenceAttribute,
			SourceDocumentID: doc.ID,
			Properties: map[string]any{
				"concept_type":     "attribute",
				"parent_entity":    info.Name,
				"type":             attr.Type,
				"is_reference":     attr.IsReference,
				"reference_entity": attr.ReferenceEntity,
			},
		}, domain.RolePrimary, confidenceAttribute)

		w.edge(domain.EdgeContains, entityID, conceptID, confidencePrimary, nil)

		if attr.IsReference && attr.ReferenceEntity != "" {
			refID := domain.EntityNodeID(attr.ReferenceEntity)
			w.node(domain.GraphNode{
				ID:          refID,
				Kind:        domain.NodeKindEntity,
				Name:        attr.ReferenceEntity,
				Description: fmt.Sprintf("Referenced by %s.%s", info.Name, attr.Name),
				Confidence:  confidenceReferenced,
			}, domain.RoleReferenced, confidenceReferenced)

			w.edge(domain.EdgeReferences, entityID, refID, confidenceViaRef, map[string]any{
				"via_attribute": attr.Name,
			})
		}
	}

	for _, st := range info.States {
		conceptID := domain.ConceptNodeID(info.Name, st.Name)
		w.node(domain.GraphNode{
			ID:               conceptID,
			Kind:             domain.NodeKindConcept,
			Name:             st.Name,
			Description:      clip(st.Description, 500),
			Confidence:       confidenceAttribute,
			SourceDocumentID: doc.ID,
			Properties: map[string]any{
				"concept_type":  "state",
				"parent_entity": info.Name,
			},
		}, domain.RolePrimary, confidenceAttribute)

		w.edge(domain.EdgeContains, entityID, conceptID, confidencePrimary, nil)
	}

	for _, rel := range info.Relations {
		refID := domain.EntityNodeID(rel.TargetEntity)
		w.node(domain.GraphNode{
			ID:          refID,
			Kind:        domain.NodeKindEntity,
			Name:        rel.TargetEntity,
			Description: fmt.Sprintf("Related to %s via %s", info.Name, rel.Name),
			Confidence:  confidenceReferenced,
		}, domain.RoleReferenced, confidenceReferenced)

		w.edge(domain.EdgeReferences, entityID, refID, confidenceRelation, map[string]any{
			"via_attribute": rel.Name,
			"cardinality":   rel.Cardinality,
		})
	}

	for _, event := range info.EventsEmitted {
		eventID := domain.EventNodeID(event)
		w.node(domain.GraphNode{
			ID:          eventID,
			Kind:        domain.NodeKindEvent,
			Name:        event,
			Description: "Emitted by " + info.Name,
			Confidence:  confidenceEvent,
		}, domain.RolePrimary, confidenceEvent)

		w.edge(domain.EdgeProduces, entityID, eventID, confidenceEvent, nil)
	}

	for _, event := range info.EventsConsumed {
		eventID := domain.EventNodeID(event)
		w.node(domain.GraphNode{
			ID:          eventID,
			Kind:        domain.NodeKindEvent,
			Name:        event,
			Description: "Consumed by " + info.Name,
			Confidence:  confidenceEvent,
		}, domain.RolePrimary, confidenceEvent)

		w.edge(domain.EdgeConsumes, entityID, eventID, confidenceEvent, nil)
	}

	if w.err != nil {
		return driven.ExtractionResult{}, w.err
	}
	return driven.ExtractionResult{NodesCreated: w.nodes, EdgesCreated: w.edges}, nil
}

// graphWriter accumulates counts and the first write error, keeping
// the extraction body free of repeated error plumbing.
type graphWriter struct {
	ctx   context.Context
	graph driven.GraphStore
	docID string
	nodes int
	edges int
	err   error
}

func (w *graphWriter) node(node domain.GraphNode, role domain.ProvenanceRole, confidence float64) {
	if w.err != nil {
		return
	}
	if w.err = w.graph.UpsertNode(w.ctx, node); w.err != nil {
		return
	}
	w.nodes++
	w.err = w.graph.AddProvenance(w.ctx, domain.ProvenanceEdge{
		NodeID:     node.ID,
		NodeKind:   node.Kind,
		DocID:      w.docID,
		Role:       role,
		Confidence: confidence,
	})
	if w.err == nil {
		w.edges++
	}
}

func (w *graphWriter) edge(edgeType domain.EdgeType, fromID, toID string, confidence float64, attrs map[string]any) {
	if w.err != nil {
		return
	}
	w.err = w.graph.AddEdge(w.ctx, domain.GraphEdge{
		Type:        edgeType,
		FromID:      fromID,
		ToID:        toID,
		Confidence:  confidence,
		SourceDocID: w.docID,
		Attrs:       attrs,
	})
	if w.err == nil {
		w.edges++
	}
}

func firstChunkID(chunks []domain.Chunk) string {
	if len(chunks) == 0 {
		return ""
	}
	return chunks[0].ID
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
