package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/kbforge-labs/kbforge-cli/internal/core/domain"
	"github.com/kbforge-labs/kbforge-cli/internal/core/ports/driven"
)

// graphStore implements driven.GraphStore on SQLite. The confidence
// guard rides a conditional upsert (a single statement, so guard
// check and write cannot interleave) and the cascade delete runs in
// one transaction with the orphan sweep after all edge deletions.
type graphStore struct {
	store *Store
}

var _ driven.GraphStore = (*graphStore)(nil)

const nodeColumns = `id, kind, name, description, confidence,
	source_chunk_id, source_document_id, properties`

// UpsertDocument creates or replaces a Document node.
func (g *graphStore) UpsertDocument(ctx context.Context, docID, title, path, kind string) error {
	_, err := g.store.db.ExecContext(ctx, `
		INSERT INTO graph_documents (id, title, path, kind)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			path = excluded.path,
			kind = excluded.kind
	`, docID, title, path, kind)
	if err != nil {
		return fmt.Errorf("upserting graph document: %w", err)
	}
	return nil
}

// UpsertNode merges a node under the confidence guard: the update arm
// only fires when the new confidence is >= the stored one.
func (g *graphStore) UpsertNode(ctx context.Context, node domain.GraphNode) error {
	propsJSON, err := marshalJSON(node.Properties, "{}")
	if err != nil {
		return fmt.Errorf("marshalling node properties: %w", err)
	}

	_, err = g.store.db.ExecContext(ctx, `
		INSERT INTO graph_nodes (`+nodeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			name = excluded.name,
			description = excluded.description,
			confidence = excluded.confidence,
			source_chunk_id = excluded.source_chunk_id,
			source_document_id = excluded.source_document_id,
			properties = excluded.properties
		WHERE excluded.confidence >= graph_nodes.confidence
	`, node.ID, string(node.Kind), node.Name, node.Description, node.Confidence,
		node.SourceChunkID, node.SourceDocumentID, propsJSON)
	if err != nil {
		return fmt.Errorf("upserting node: %w", err)
	}
	return nil
}

// AddProvenance idempotently upserts an EXTRACTED_FROM edge. Missing
// endpoints make the insert select zero rows, a no-op.
func (g *graphStore) AddProvenance(ctx context.Context, edge domain.ProvenanceEdge) error {
	_, err := g.store.db.ExecContext(ctx, `
		INSERT INTO graph_provenance (node_id, node_kind, doc_id, role, confidence)
		SELECT ?, ?, ?, ?, ?
		WHERE EXISTS (SELECT 1 FROM graph_nodes WHERE id = ?)
		  AND EXISTS (SELECT 1 FROM graph_documents WHERE id = ?)
		ON CONFLICT(node_id, doc_id) DO UPDATE SET
			node_kind = excluded.node_kind,
			role = excluded.role,
			confidence = excluded.confidence
	`, edge.NodeID, string(edge.NodeKind), edge.DocID, string(edge.Role), edge.Confidence,
		edge.NodeID, edge.DocID)
	if err != nil {
		return fmt.Errorf("adding provenance edge: %w", err)
	}
	return nil
}

// AddEdge idempotently upserts a domain edge. Missing endpoints are a
// no-op.
func (g *graphStore) AddEdge(ctx context.Context, edge domain.GraphEdge) error {
	attrsJSON, err := marshalJSON(edge.Attrs, "{}")
	if err != nil {
		return fmt.Errorf("marshalling edge attrs: %w", err)
	}

	_, err = g.store.db.ExecContext(ctx, `
		INSERT INTO graph_edges (edge_type, from_id, to_id, confidence, source_doc_id, attrs)
		SELECT ?, ?, ?, ?, ?, ?
		WHERE EXISTS (SELECT 1 FROM graph_nodes WHERE id = ?)
		  AND EXISTS (SELECT 1 FROM graph_nodes WHERE id = ?)
		ON CONFLICT(edge_type, from_id, to_id) DO UPDATE SET
			confidence = excluded.confidence,
			source_doc_id = excluded.source_doc_id,
			attrs = excluded.attrs
	`, string(edge.Type), edge.FromID, edge.ToID, edge.Confidence, edge.SourceDocID, attrsJSON,
		edge.FromID, edge.ToID)
	if err != nil {
		return fmt.Errorf("adding edge: %w", err)
	}
	return nil
}

// DeleteBySourceDocument runs the four-step cascade in a single
// transaction: provenance edges, then domain edges tagged with the
// document, then the orphan sweep, then the Document node.
func (g *graphStore) DeleteBySourceDocument(ctx context.Context, docID string) error {
	tx, err := g.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM graph_provenance WHERE doc_id = ?", docID); err != nil {
		return fmt.Errorf("deleting provenance edges: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM graph_edges WHERE source_doc_id = ?", docID); err != nil {
		return fmt.Errorf("deleting domain edges: %w", err)
	}

	// Orphan sweep, strictly after both edge deletions. Edges touching
	// swept nodes go with them.
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM graph_nodes
		WHERE id NOT IN (SELECT node_id FROM graph_provenance)
	`); err != nil {
		return fmt.Errorf("sweeping orphan nodes: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM graph_edges
		WHERE from_id NOT IN (SELECT id FROM graph_nodes)
		   OR to_id NOT IN (SELECT id FROM graph_nodes)
	`); err != nil {
		return fmt.Errorf("sweeping dangling edges: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM graph_documents WHERE id = ?", docID); err != nil {
		return fmt.Errorf("deleting document node: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing cascade: %w", err)
	}
	return nil
}

// GetNode returns a node by ID.
func (g *graphStore) GetNode(ctx context.Context, id string) (*domain.GraphNode, error) {
	row := g.store.db.QueryRowContext(ctx,
		`SELECT `+nodeColumns+` FROM graph_nodes WHERE id = ?`, id)

	node, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return node, err
}

// FindNodes returns nodes whose name contains the pattern,
// case-insensitive, sorted by confidence descending.
func (g *graphStore) FindNodes(ctx context.Context, namePattern string, limit int) ([]domain.GraphNode, error) {
	query := `SELECT ` + nodeColumns + ` FROM graph_nodes
		WHERE name LIKE '%' || ? || '%' COLLATE NOCASE
		ORDER BY confidence DESC, id`
	args := []any{namePattern}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return g.queryNodes(ctx, query, args...)
}

// ListNodes returns nodes of a kind (all kinds when empty).
func (g *graphStore) ListNodes(ctx context.Context, kind domain.NodeKind, limit int) ([]domain.GraphNode, error) {
	query := `SELECT ` + nodeColumns + ` FROM graph_nodes`
	var args []any
	if kind != "" {
		query += " WHERE kind = ?"
		args = append(args, string(kind))
	}
	query += " ORDER BY id"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return g.queryNodes(ctx, query, args...)
}

// Neighborhood walks domain edges breadth-first up to depth hops.
func (g *graphStore) Neighborhood(
	ctx context.Context, id string, depth int, edgeTypes []domain.EdgeType,
) ([]domain.GraphNode, error) {
	if _, err := g.GetNode(ctx, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	allowed := make(map[domain.EdgeType]bool, len(edgeTypes))
	for _, t := range edgeTypes {
		allowed[t] = true
	}

	visited := map[string]bool{id: true}
	frontier := []string{id}
	var resultIDs []string

	for d := 0; d < depth && len(frontier) > 0; d++ {
		var next []string
		for _, current := range frontier {
			edges, err := g.Edges(ctx, current)
			if err != nil {
				return nil, err
			}
			for _, edge := range edges {
				if len(allowed) > 0 && !allowed[edge.Type] {
					continue
				}
				neighbor := edge.ToID
				if neighbor == current {
					neighbor = edge.FromID
				}
				if visited[neighbor] {
					continue
				}
				visited[neighbor] = true
				resultIDs = append(resultIDs, neighbor)
				next = append(next, neighbor)
			}
		}
		frontier = next
	}

	nodes := make([]domain.GraphNode, 0, len(resultIDs))
	for _, nodeID := range resultIDs {
		node, err := g.GetNode(ctx, nodeID)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, *node)
	}
	sortNodesByID(nodes)
	return nodes, nil
}

// Edges returns the domain edges touching a node.
func (g *graphStore) Edges(ctx context.Context, nodeID string) ([]domain.GraphEdge, error) {
	rows, err := g.store.db.QueryContext(ctx, `
		SELECT edge_type, from_id, to_id, confidence, source_doc_id, attrs
		FROM graph_edges
		WHERE from_id = ? OR to_id = ?
		ORDER BY from_id, to_id
	`, nodeID, nodeID)
	if err != nil {
		return nil, fmt.Errorf("querying edges: %w", err)
	}
	defer rows.Close()

	var edges []domain.GraphEdge //nolint:prealloc // size unknown from query
	for rows.Next() {
		var edge domain.GraphEdge
		var edgeType, attrsJSON string
		if err := rows.Scan(&edgeType, &edge.FromID, &edge.ToID,
			&edge.Confidence, &edge.SourceDocID, &attrsJSON); err != nil {
			return nil, fmt.Errorf("scanning edge: %w", err)
		}
		edge.Type = domain.EdgeType(edgeType)
		if edge.Attrs, err = unmarshalMap(attrsJSON); err != nil {
			return nil, fmt.Errorf("unmarshaling edge attrs: %w", err)
		}
		edges = append(edges, edge)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating edges: %w", err)
	}
	return edges, nil
}

// FindPath breadth-first searches the undirected domain edge graph.
func (g *graphStore) FindPath(ctx context.Context, fromID, toID string, maxDepth int) (*domain.GraphPath, error) {
	for _, id := range []string{fromID, toID} {
		if _, err := g.GetNode(ctx, id); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, nil
			}
			return nil, err
		}
	}
	if fromID == toID {
		return &domain.GraphPath{NodeIDs: []string{fromID}, Length: 0}, nil
	}

	parent := map[string]string{fromID: ""}
	frontier := []string{fromID}

	for d := 0; d < maxDepth && len(frontier) > 0; d++ {
		var next []string
		for _, current := range frontier {
			edges, err := g.Edges(ctx, current)
			if err != nil {
				return nil, err
			}
			for _, edge := range edges {
				neighbor := edge.ToID
				if neighbor == current {
					neighbor = edge.FromID
				}
				if _, seen := parent[neighbor]; seen {
					continue
				}
				parent[neighbor] = current
				if neighbor == toID {
					return buildGraphPath(parent, fromID, toID), nil
				}
				next = append(next, neighbor)
			}
		}
		frontier = next
	}
	return nil, nil
}

// DocumentImpact lists nodes holding a provenance edge to the document.
func (g *graphStore) DocumentImpact(ctx context.Context, docID string) ([]domain.ImpactedNode, error) {
	rows, err := g.store.db.QueryContext(ctx, `
		SELECT n.id, n.kind, n.name, p.role, p.confidence
		FROM graph_provenance p
		JOIN graph_nodes n ON n.id = p.node_id
		WHERE p.doc_id = ?
		ORDER BY n.id
	`, docID)
	if err != nil {
		return nil, fmt.Errorf("querying document impact: %w", err)
	}
	defer rows.Close()

	var impacted []domain.ImpactedNode //nolint:prealloc // size unknown from query
	for rows.Next() {
		var node domain.ImpactedNode
		var kind, role string
		if err := rows.Scan(&node.NodeID, &kind, &node.Name, &role, &node.Confidence); err != nil {
			return nil, fmt.Errorf("scanning impacted node: %w", err)
		}
		node.Kind = domain.NodeKind(kind)
		node.Role = domain.ProvenanceRole(role)
		impacted = append(impacted, node)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating impacted nodes: %w", err)
	}
	return impacted, nil
}

// NodeProvenance lists documents that contributed to a node.
func (g *graphStore) NodeProvenance(ctx context.Context, nodeID string) ([]domain.ProvenanceRecord, error) {
	rows, err := g.store.db.QueryContext(ctx, `
		SELECT p.doc_id, COALESCE(d.title, ''), COALESCE(d.path, ''), p.role, p.confidence
		FROM graph_provenance p
		LEFT JOIN graph_documents d ON d.id = p.doc_id
		WHERE p.node_id = ?
		ORDER BY p.doc_id
	`, nodeID)
	if err != nil {
		return nil, fmt.Errorf("querying node provenance: %w", err)
	}
	defer rows.Close()

	var records []domain.ProvenanceRecord //nolint:prealloc // size unknown from query
	for rows.Next() {
		var record domain.ProvenanceRecord
		var role string
		if err := rows.Scan(&record.DocID, &record.Title, &record.Path, &role, &record.Confidence); err != nil {
			return nil, fmt.Errorf("scanning provenance record: %w", err)
		}
		record.Role = domain.ProvenanceRole(role)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating provenance records: %w", err)
	}
	return records, nil
}

// Stats counts nodes per kind and total edges.
func (g *graphStore) Stats(ctx context.Context) (*domain.GraphStats, error) {
	stats := &domain.GraphStats{}

	row := g.store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM graph_documents")
	if err := row.Scan(&stats.Documents); err != nil {
		return nil, fmt.Errorf("counting graph documents: %w", err)
	}
	row = g.store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM graph_edges")
	if err := row.Scan(&stats.Edges); err != nil {
		return nil, fmt.Errorf("counting edges: %w", err)
	}

	rows, err := g.store.db.QueryContext(ctx,
		"SELECT kind, COUNT(*) FROM graph_nodes GROUP BY kind")
	if err != nil {
		return nil, fmt.Errorf("counting nodes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var kind string
		var count int
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, fmt.Errorf("scanning node count: %w", err)
		}
		switch domain.NodeKind(kind) {
		case domain.NodeKindEntity:
			stats.Entities = count
		case domain.NodeKindConcept:
			stats.Concepts = count
		case domain.NodeKindEvent:
			stats.Events = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating node counts: %w", err)
	}
	return stats, nil
}

// Query runs a raw read-only query for operator tooling and returns
// generic column/value maps.
func (g *graphStore) Query(ctx context.Context, query string) ([]map[string]any, error) {
	rows, err := g.store.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("raw query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("raw query columns: %w", err)
	}

	var results []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("raw query scan: %w", err)
		}

		record := make(map[string]any, len(columns))
		for i, col := range columns {
			value := values[i]
			if b, ok := value.([]byte); ok {
				value = string(b)
			}
			record[col] = value
		}
		results = append(results, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("raw query rows: %w", err)
	}
	return results, nil
}

// Close is a no-op; the shared Store owns the connection.
func (g *graphStore) Close() error { return nil }

func (g *graphStore) queryNodes(ctx context.Context, query string, args ...any) ([]domain.GraphNode, error) {
	rows, err := g.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying nodes: %w", err)
	}
	defer rows.Close()

	var nodes []domain.GraphNode //nolint:prealloc // size unknown from query
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, *node)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating nodes: %w", err)
	}
	return nodes, nil
}

func scanNode(sc scanner) (*domain.GraphNode, error) {
	var node domain.GraphNode
	var kind, propsJSON string

	if err := sc.Scan(&node.ID, &kind, &node.Name, &node.Description, &node.Confidence,
		&node.SourceChunkID, &node.SourceDocumentID, &propsJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning node: %w", err)
	}

	node.Kind = domain.NodeKind(kind)
	var err error
	if node.Properties, err = unmarshalMap(propsJSON); err != nil {
		return nil, fmt.Errorf("unmarshaling node properties: %w", err)
	}
	return &node, nil
}

func buildGraphPath(parent map[string]string, fromID, toID string) *domain.GraphPath {
	var ids []string
	for id := toID; id != ""; id = parent[id] {
		ids = append(ids, id)
		if id == fromID {
			break
		}
	}
	for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
		ids[i], ids[j] = ids[j], ids[i]
	}
	return &domain.GraphPath{NodeIDs: ids, Length: len(ids) - 1}
}

func sortNodesByID(nodes []domain.GraphNode) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
}
