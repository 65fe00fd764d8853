package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/kbforge-labs/kbforge-cli/internal/core/domain"
	"github.com/kbforge-labs/kbforge-cli/internal/core/ports/driven"
)

// Ensure GraphStore implements the interface.
var _ driven.GraphStore = (*GraphStore)(nil)

type documentNode struct {
	id    string
	title string
	path  string
	kind  string
}

type edgeKey struct {
	edgeType domain.EdgeType
	fromID   string
	toID     string
}

type provKey struct {
	nodeID string
	docID  string
}

// GraphStore is an in-memory knowledge graph. A single mutex makes
// the confidence guard and the cascade delete atomic, matching the
// per-node/per-cascade critical sections the SQLite adapter gets from
// transactions.
type GraphStore struct {
	mu         sync.Mutex
	documents  map[string]documentNode
	nodes      map[string]domain.GraphNode
	edges      map[edgeKey]domain.GraphEdge
	provenance map[provKey]domain.ProvenanceEdge
}

// NewGraphStore creates an empty in-memory graph store.
func NewGraphStore() *GraphStore {
	return &GraphStore{
		documents:  make(map[string]documentNode),
		nodes:      make(map[string]domain.GraphNode),
		edges:      make(map[edgeKey]domain.GraphEdge),
		provenance: make(map[provKey]domain.ProvenanceEdge),
	}
}

// UpsertDocument creates or replaces a Document node.
func (g *GraphStore) UpsertDocument(_ context.Context, docID, title, path, kind string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.documents[docID] = documentNode{id: docID, title: title, path: path, kind: kind}
	return nil
}

// UpsertNode merges a node under the confidence guard: fields are
// applied only when the new confidence is >= the stored one.
func (g *GraphStore) UpsertNode(_ context.Context, node domain.GraphNode) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	existing, ok := g.nodes[node.ID]
	if !ok || node.Confidence >= existing.Confidence {
		g.nodes[node.ID] = node
	}
	return nil
}

// AddProvenance idempotently upserts an EXTRACTED_FROM edge. Missing
// endpoints make this a no-op, tolerating out-of-order processing.
func (g *GraphStore) AddProvenance(_ context.Context, edge domain.ProvenanceEdge) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[edge.NodeID]; !ok {
		return nil
	}
	if _, ok := g.documents[edge.DocID]; !ok {
		return nil
	}
	g.provenance[provKey{nodeID: edge.NodeID, docID: edge.DocID}] = edge
	return nil
}

// AddEdge idempotently upserts a domain edge. Missing endpoints are a
// no-op.
func (g *GraphStore) AddEdge(_ context.Context, edge domain.GraphEdge) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[edge.FromID]; !ok {
		return nil
	}
	if _, ok := g.nodes[edge.ToID]; !ok {
		return nil
	}
	g.edges[edgeKey{edgeType: edge.Type, fromID: edge.FromID, toID: edge.ToID}] = edge
	return nil
}

// DeleteBySourceDocument runs the four-step cascade under one lock:
// provenance edges first, then domain edges tagged with the document,
// then the orphan sweep, then the Document node itself.
func (g *GraphStore) DeleteBySourceDocument(_ context.Context, docID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for key := range g.provenance {
		if key.docID == docID {
			delete(g.provenance, key)
		}
	}

	for key, edge := range g.edges {
		if edge.SourceDocID == docID {
			delete(g.edges, key)
		}
	}

	// Orphan sweep only after all edge deletions for this document.
	live := make(map[string]bool, len(g.provenance))
	for key := range g.provenance {
		live[key.nodeID] = true
	}
	for id := range g.nodes {
		if !live[id] {
			g.deleteNodeLocked(id)
		}
	}

	delete(g.documents, docID)
	return nil
}

func (g *GraphStore) deleteNodeLocked(id string) {
	delete(g.nodes, id)
	for key := range g.edges {
		if key.fromID == id || key.toID == id {
			delete(g.edges, key)
		}
	}
	for key := range g.provenance {
		if key.nodeID == id {
			delete(g.provenance, key)
		}
	}
}

// GetNode returns a node by ID.
func (g *GraphStore) GetNode(_ context.Context, id string) (*domain.GraphNode, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	node, ok := g.nodes[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &node, nil
}

// FindNodes returns nodes whose name contains the pattern,
// case-insensitive, sorted by confidence descending.
func (g *GraphStore) FindNodes(_ context.Context, namePattern string, limit int) ([]domain.GraphNode, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	pattern := strings.ToLower(namePattern)
	var matches []domain.GraphNode
	for _, node := range g.nodes {
		if strings.Contains(strings.ToLower(node.Name), pattern) {
			matches = append(matches, node)
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Confidence != matches[j].Confidence {
			return matches[i].Confidence > matches[j].Confidence
		}
		return matches[i].ID < matches[j].ID
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// ListNodes returns nodes of a kind, sorted by ID.
func (g *GraphStore) ListNodes(_ context.Context, kind domain.NodeKind, limit int) ([]domain.GraphNode, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var nodes []domain.GraphNode
	for _, node := range g.nodes {
		if kind == "" || node.Kind == kind {
			nodes = append(nodes, node)
		}
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

	if limit > 0 && len(nodes) > limit {
		nodes = nodes[:limit]
	}
	return nodes, nil
}

// Neighborhood walks domain edges breadth-first up to depth hops.
// Provenance edges are never traversed.
func (g *GraphStore) Neighborhood(
	_ context.Context, id string, depth int, edgeTypes []domain.EdgeType,
) ([]domain.GraphNode, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[id]; !ok {
		return nil, nil
	}

	allowed := edgeTypeSet(edgeTypes)
	visited := map[string]bool{id: true}
	frontier := []string{id}
	var result []domain.GraphNode

	for d := 0; d < depth && len(frontier) > 0; d++ {
		var next []string
		for _, current := range frontier {
			for key := range g.edges {
				if allowed != nil && !allowed[key.edgeType] {
					continue
				}
				var neighbor string
				switch current {
				case key.fromID:
					neighbor = key.toID
				case key.toID:
					neighbor = key.fromID
				default:
					continue
				}
				if visited[neighbor] {
					continue
				}
				visited[neighbor] = true
				if node, ok := g.nodes[neighbor]; ok {
					result = append(result, node)
					next = append(next, neighbor)
				}
			}
		}
		frontier = next
	}

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// Edges returns the domain edges touching a node.
func (g *GraphStore) Edges(_ context.Context, nodeID string) ([]domain.GraphEdge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var edges []domain.GraphEdge
	for key, edge := range g.edges {
		if key.fromID == nodeID || key.toID == nodeID {
			edges = append(edges, edge)
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].FromID != edges[j].FromID {
			return edges[i].FromID < edges[j].FromID
		}
		return edges[i].ToID < edges[j].ToID
	})
	return edges, nil
}

// FindPath breadth-first searches the undirected domain edge graph.
func (g *GraphStore) FindPath(_ context.Context, fromID, toID string, maxDepth int) (*domain.GraphPath, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[fromID]; !ok {
		return nil, nil
	}
	if _, ok := g.nodes[toID]; !ok {
		return nil, nil
	}
	if fromID == toID {
		return &domain.GraphPath{NodeIDs: []string{fromID}, Length: 0}, nil
	}

	parent := map[string]string{fromID: ""}
	frontier := []string{fromID}

	for d := 0; d < maxDepth && len(frontier) > 0; d++ {
		var next []string
		for _, current := range frontier {
			for key := range g.edges {
				var neighbor string
				switch current {
				case key.fromID:
					neighbor = key.toID
				case key.toID:
					neighbor = key.fromID
				default:
					continue
				}
				if _, seen := parent[neighbor]; seen {
					continue
				}
				parent[neighbor] = current
				if neighbor == toID {
					return buildPath(parent, fromID, toID), nil
				}
				next = append(next, neighbor)
			}
		}
		frontier = next
	}
	return nil, nil
}

func buildPath(parent map[string]string, fromID, toID string) *domain.GraphPath {
	var ids []string
	for id := toID; id != ""; id = parent[id] {
		ids = append(ids, id)
		if id == fromID {
			break
		}
	}
	// Reverse into from -> to order.
	for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
		ids[i], ids[j] = ids[j], ids[i]
	}
	return &domain.GraphPath{NodeIDs: ids, Length: len(ids) - 1}
}

// DocumentImpact lists nodes holding a provenance edge to the document.
func (g *GraphStore) DocumentImpact(_ context.Context, docID string) ([]domain.ImpactedNode, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var impacted []domain.ImpactedNode
	for key, prov := range g.provenance {
		if key.docID != docID {
			continue
		}
		node, ok := g.nodes[key.nodeID]
		if !ok {
			continue
		}
		impacted = append(impacted, domain.ImpactedNode{
			NodeID:     node.ID,
			Kind:       node.Kind,
			Name:       node.Name,
			Role:       prov.Role,
			Confidence: prov.Confidence,
		})
	}
	sort.Slice(impacted, func(i, j int) bool { return impacted[i].NodeID < impacted[j].NodeID })
	return impacted, nil
}

// NodeProvenance lists documents that contributed to the node.
func (g *GraphStore) NodeProvenance(_ context.Context, nodeID string) ([]domain.ProvenanceRecord, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var records []domain.ProvenanceRecord
	for key, prov := range g.provenance {
		if key.nodeID != nodeID {
			continue
		}
		record := domain.ProvenanceRecord{
			DocID:      key.docID,
			Role:       prov.Role,
			Confidence: prov.Confidence,
		}
		if doc, ok := g.documents[key.docID]; ok {
			record.Title = doc.title
			record.Path = doc.path
		}
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].DocID < records[j].DocID })
	return records, nil
}

// Stats counts nodes per kind and total edges.
func (g *GraphStore) Stats(_ context.Context) (*domain.GraphStats, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	stats := &domain.GraphStats{Documents: len(g.documents), Edges: len(g.edges)}
	for _, node := range g.nodes {
		switch node.Kind {
		case domain.NodeKindEntity:
			stats.Entities++
		case domain.NodeKindConcept:
			stats.Concepts++
		case domain.NodeKindEvent:
			stats.Events++
		}
	}
	return stats, nil
}

// Query is unsupported on the in-memory backend.
func (g *GraphStore) Query(_ context.Context, _ string) ([]map[string]any, error) {
	return nil, domain.NewValidationError("raw queries require the sqlite graph backend")
}

// Close releases resources.
func (g *GraphStore) Close() error { return nil }

func edgeTypeSet(types []domain.EdgeType) map[domain.EdgeType]bool {
	if len(types) == 0 {
		return nil
	}
	set := make(map[domain.EdgeType]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return set
}
