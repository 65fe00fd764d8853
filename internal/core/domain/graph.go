package domain

import "fmt"

// NodeKind classifies knowledge graph nodes.
type NodeKind string

// Graph node kinds.
const (
	NodeKindDocument NodeKind = "Document"
	NodeKindEntity   NodeKind = "Entity"
	NodeKindConcept  NodeKind = "Concept"
	NodeKindEvent    NodeKind = "Event"
)

// EdgeType classifies domain relationships between graph nodes.
// Provenance (EXTRACTED_FROM) edges are modelled separately and are
// never returned from traversal queries.
type EdgeType string

// Domain edge types.
const (
	EdgeContains   EdgeType = "CONTAINS"
	EdgeReferences EdgeType = "REFERENCES"
	EdgeProduces   EdgeType = "PRODUCES"
	EdgeConsumes   EdgeType = "CONSUMES"
)

// DomainEdgeTypes lists every traversable edge type.
var DomainEdgeTypes = []EdgeType{EdgeContains, EdgeReferences, EdgeProduces, EdgeConsumes}

// ProvenanceRole describes how a document contributed to a node.
type ProvenanceRole string

// Provenance roles.
const (
	// RolePrimary marks the document that authoritatively defines the node.
	RolePrimary ProvenanceRole = "primary"

	// RoleReferenced marks a document that merely mentions the node,
	// producing a reduced-confidence stub.
	RoleReferenced ProvenanceRole = "referenced"
)

// GraphNode is a node in the knowledge graph.
//
// Confidence is a monotonic watermark: stored fields are overwritten
// only by updates of equal or higher confidence, so a stub created by
// a referencing document never clobbers a fully authored definition.
type GraphNode struct {
	// ID is deterministic and namespaced by kind:
	// "entity:<name>", "concept:<entity>.<attr>", "event:<name>", "doc:<id>".
	ID string

	// Kind classifies the node.
	Kind NodeKind

	// Name is the display name.
	Name string

	// Description is a short human-readable summary.
	Description string

	// Confidence is in [0,1].
	Confidence float64

	// SourceChunkID optionally links the node to the chunk it was
	// extracted from, for reference resolution.
	SourceChunkID string

	// SourceDocumentID optionally links the node to its primary document.
	SourceDocumentID string

	// Properties holds kind-specific fields.
	Properties map[string]any
}

// GraphEdge is a domain relationship between two graph nodes.
type GraphEdge struct {
	// Type is the relationship type.
	Type EdgeType

	// FromID and ToID are node IDs.
	FromID string
	ToID   string

	// Confidence is in [0,1].
	Confidence float64

	// SourceDocID tags the document that contributed this edge,
	// enabling precise cascade deletion.
	SourceDocID string

	// Attrs holds edge attributes (via_attribute, cardinality, ...).
	Attrs map[string]any
}

// ProvenanceEdge records that a node's data was derived from a document.
// A node is live while it has at least one provenance edge.
type ProvenanceEdge struct {
	NodeID     string
	NodeKind   NodeKind
	DocID      string
	Role       ProvenanceRole
	Confidence float64
}

// ProvenanceRecord describes one document that contributed to a node.
type ProvenanceRecord struct {
	DocID      string         `json:"doc_id"`
	Title      string         `json:"title"`
	Path       string         `json:"path"`
	Role       ProvenanceRole `json:"role"`
	Confidence float64        `json:"confidence"`
}

// ImpactedNode describes one node extracted from a document.
type ImpactedNode struct {
	NodeID     string         `json:"node_id"`
	Kind       NodeKind       `json:"kind"`
	Name       string         `json:"name"`
	Role       ProvenanceRole `json:"role"`
	Confidence float64        `json:"confidence"`
}

// NodeRelationship summarises one edge of a node for display.
type NodeRelationship struct {
	Type        EdgeType `json:"type"`
	Direction   string   `json:"direction"` // "outgoing" or "incoming"
	RelatedNode string   `json:"related_node"`
	Confidence  float64  `json:"confidence"`
}

// GraphPath is an undirected path between two nodes.
type GraphPath struct {
	NodeIDs []string `json:"node_ids"`
	Length  int      `json:"length"`
}

// GraphStats holds node and edge counts.
type GraphStats struct {
	Documents int `json:"documents"`
	Entities  int `json:"entities"`
	Concepts  int `json:"concepts"`
	Events    int `json:"events"`
	Edges     int `json:"edges"`
}

// Deterministic node ID constructors. Running the same extraction
// twice yields the same IDs, making graph writes idempotent.

// EntityNodeID returns the node ID for an entity name.
func EntityNodeID(name string) string {
	return "entity:" + name
}

// ConceptNodeID returns the node ID for an entity attribute or state.
func ConceptNodeID(entity, name string) string {
	return fmt.Sprintf("concept:%s.%s", entity, name)
}

// EventNodeID returns the node ID for an event name.
func EventNodeID(name string) string {
	return "event:" + name
}

// DocNodeID returns the generic node ID for a non-entity document.
func DocNodeID(docID string) string {
	return "doc:" + docID
}
