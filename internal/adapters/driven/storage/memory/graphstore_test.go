package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbforge-labs/kbforge-cli/internal/core/domain"
)

func seedDocument(t *testing.T, g *GraphStore, docID, title string) {
	t.Helper()
	require.NoError(t, g.UpsertDocument(context.Background(), docID, title, "docs/"+title+".md", "entity"))
}

func seedNode(t *testing.T, g *GraphStore, id string, kind domain.NodeKind, name string, confidence float64) {
	t.Helper()
	require.NoError(t, g.UpsertNode(context.Background(), domain.GraphNode{
		ID: id, Kind: kind, Name: name, Confidence: confidence,
	}))
}

func seedProvenance(t *testing.T, g *GraphStore, nodeID, docID string, role domain.ProvenanceRole, conf float64) {
	t.Helper()
	require.NoError(t, g.AddProvenance(context.Background(), domain.ProvenanceEdge{
		NodeID: nodeID, NodeKind: domain.NodeKindEntity, DocID: docID, Role: role, Confidence: conf,
	}))
}

func TestGraphStore_ConfidenceGuard(t *testing.T) {
	ctx := context.Background()
	g := NewGraphStore()

	t.Run("lower confidence write is ignored", func(t *testing.T) {
		require.NoError(t, g.UpsertNode(ctx, domain.GraphNode{
			ID: "entity:User", Kind: domain.NodeKindEntity, Name: "User",
			Description: "authored definition", Confidence: 1.0,
		}))
		require.NoError(t, g.UpsertNode(ctx, domain.GraphNode{
			ID: "entity:User", Kind: domain.NodeKindEntity, Name: "User",
			Description: "stub from a referencing doc", Confidence: 0.7,
		}))

		node, err := g.GetNode(ctx, "entity:User")
		require.NoError(t, err)
		assert.Equal(t, "authored definition", node.Description)
		assert.Equal(t, 1.0, node.Confidence)
	})

	t.Run("equal confidence refreshes fields", func(t *testing.T) {
		require.NoError(t, g.UpsertNode(ctx, domain.GraphNode{
			ID: "entity:User", Kind: domain.NodeKindEntity, Name: "User",
			Description: "refreshed definition", Confidence: 1.0,
		}))

		node, err := g.GetNode(ctx, "entity:User")
		require.NoError(t, err)
		assert.Equal(t, "refreshed definition", node.Description)
	})

	t.Run("stub upgraded by higher confidence", func(t *testing.T) {
		require.NoError(t, g.UpsertNode(ctx, domain.GraphNode{
			ID: "entity:Order", Kind: domain.NodeKindEntity, Name: "Order",
			Description: "Referenced by User.order_id", Confidence: 0.7,
		}))
		require.NoError(t, g.UpsertNode(ctx, domain.GraphNode{
			ID: "entity:Order", Kind: domain.NodeKindEntity, Name: "Order",
			Description: "An order placed by a user", Confidence: 1.0,
		}))

		node, err := g.GetNode(ctx, "entity:Order")
		require.NoError(t, err)
		assert.Equal(t, 1.0, node.Confidence)
		assert.Equal(t, "An order placed by a user", node.Description)
	})
}

func TestGraphStore_DeleteBySourceDocument(t *testing.T) {
	ctx := context.Background()

	t.Run("shared node survives, exclusive node is swept", func(t *testing.T) {
		g := NewGraphStore()
		seedDocument(t, g, "doc-a", "A")
		seedDocument(t, g, "doc-b", "B")
		seedNode(t, g, "entity:Shared", domain.NodeKindEntity, "Shared", 1.0)
		seedNode(t, g, "entity:OnlyA", domain.NodeKindEntity, "OnlyA", 1.0)
		seedProvenance(t, g, "entity:Shared", "doc-a", domain.RolePrimary, 1.0)
		seedProvenance(t, g, "entity:Shared", "doc-b", domain.RoleReferenced, 0.7)
		seedProvenance(t, g, "entity:OnlyA", "doc-a", domain.RolePrimary, 1.0)

		require.NoError(t, g.DeleteBySourceDocument(ctx, "doc-a"))

		_, err := g.GetNode(ctx, "entity:Shared")
		assert.NoError(t, err, "node provenanced by doc-b must survive")

		_, err = g.GetNode(ctx, "entity:OnlyA")
		assert.ErrorIs(t, err, domain.ErrNotFound, "orphan must be swept")
	})

	t.Run("edges tagged with the document are removed", func(t *testing.T) {
		g := NewGraphStore()
		seedDocument(t, g, "doc-a", "A")
		seedDocument(t, g, "doc-b", "B")
		seedNode(t, g, "entity:X", domain.NodeKindEntity, "X", 1.0)
		seedNode(t, g, "entity:Y", domain.NodeKindEntity, "Y", 1.0)
		seedProvenance(t, g, "entity:X", "doc-b", domain.RolePrimary, 1.0)
		seedProvenance(t, g, "entity:Y", "doc-b", domain.RolePrimary, 1.0)
		require.NoError(t, g.AddEdge(ctx, domain.GraphEdge{
			Type: domain.EdgeReferences, FromID: "entity:X", ToID: "entity:Y",
			Confidence: 0.9, SourceDocID: "doc-a",
		}))

		require.NoError(t, g.DeleteBySourceDocument(ctx, "doc-a"))

		edges, err := g.Edges(ctx, "entity:X")
		require.NoError(t, err)
		assert.Empty(t, edges)

		stats, err := g.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Documents, "document node A must be gone")
	})

	t.Run("deleting an unknown document is a no-op", func(t *testing.T) {
		g := NewGraphStore()
		seedDocument(t, g, "doc-a", "A")
		seedNode(t, g, "entity:X", domain.NodeKindEntity, "X", 1.0)
		seedProvenance(t, g, "entity:X", "doc-a", domain.RolePrimary, 1.0)

		require.NoError(t, g.DeleteBySourceDocument(ctx, "doc-missing"))

		_, err := g.GetNode(ctx, "entity:X")
		assert.NoError(t, err)
	})
}

func TestGraphStore_ProvenanceQueries(t *testing.T) {
	ctx := context.Background()
	g := NewGraphStore()
	seedDocument(t, g, "doc-a", "User")
	seedNode(t, g, "entity:User", domain.NodeKindEntity, "User", 1.0)
	seedNode(t, g, "entity:Order", domain.NodeKindEntity, "Order", 0.7)
	seedProvenance(t, g, "entity:User", "doc-a", domain.RolePrimary, 1.0)
	seedProvenance(t, g, "entity:Order", "doc-a", domain.RoleReferenced, 0.7)

	impact, err := g.DocumentImpact(ctx, "doc-a")
	require.NoError(t, err)
	require.Len(t, impact, 2)
	assert.Equal(t, "entity:Order", impact[0].NodeID)
	assert.Equal(t, domain.RoleReferenced, impact[0].Role)
	assert.Equal(t, "entity:User", impact[1].NodeID)
	assert.Equal(t, domain.RolePrimary, impact[1].Role)

	prov, err := g.NodeProvenance(ctx, "entity:User")
	require.NoError(t, err)
	require.Len(t, prov, 1)
	assert.Equal(t, "doc-a", prov[0].DocID)
	assert.Equal(t, "User", prov[0].Title)
	assert.Equal(t, "docs/User.md", prov[0].Path)
}

func TestGraphStore_MissingEndpointsAreNoOps(t *testing.T) {
	ctx := context.Background()
	g := NewGraphStore()
	seedDocument(t, g, "doc-a", "A")
	seedNode(t, g, "entity:X", domain.NodeKindEntity, "X", 1.0)

	// Edge to a node that does not exist yet.
	require.NoError(t, g.AddEdge(ctx, domain.GraphEdge{
		Type: domain.EdgeContains, FromID: "entity:X", ToID: "concept:X.gone",
		Confidence: 1.0, SourceDocID: "doc-a",
	}))
	edges, err := g.Edges(ctx, "entity:X")
	require.NoError(t, err)
	assert.Empty(t, edges)

	// Provenance to a document that does not exist.
	require.NoError(t, g.AddProvenance(ctx, domain.ProvenanceEdge{
		NodeID: "entity:X", DocID: "doc-missing", Role: domain.RolePrimary, Confidence: 1.0,
	}))
	prov, err := g.NodeProvenance(ctx, "entity:X")
	require.NoError(t, err)
	assert.Empty(t, prov)

	// Lookup of an unknown node.
	_, err = g.GetNode(ctx, "entity:unknown")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGraphStore_Traversal(t *testing.T) {
	ctx := context.Background()
	g := NewGraphStore()
	seedDocument(t, g, "doc-a", "A")
	for _, id := range []string{"entity:A", "entity:B", "entity:C", "concept:A.x"} {
		seedNode(t, g, id, domain.NodeKindEntity, id, 1.0)
		seedProvenance(t, g, id, "doc-a", domain.RolePrimary, 1.0)
	}
	require.NoError(t, g.AddEdge(ctx, domain.GraphEdge{
		Type: domain.EdgeReferences, FromID: "entity:A", ToID: "entity:B", Confidence: 1, SourceDocID: "doc-a",
	}))
	require.NoError(t, g.AddEdge(ctx, domain.GraphEdge{
		Type: domain.EdgeReferences, FromID: "entity:B", ToID: "entity:C", Confidence: 1, SourceDocID: "doc-a",
	}))
	require.NoError(t, g.AddEdge(ctx, domain.GraphEdge{
		Type: domain.EdgeContains, FromID: "entity:A", ToID: "concept:A.x", Confidence: 1, SourceDocID: "doc-a",
	}))

	t.Run("depth limits traversal", func(t *testing.T) {
		nodes, err := g.Neighborhood(ctx, "entity:A", 1, nil)
		require.NoError(t, err)
		require.Len(t, nodes, 2)

		nodes, err = g.Neighborhood(ctx, "entity:A", 2, nil)
		require.NoError(t, err)
		assert.Len(t, nodes, 3)
	})

	t.Run("edge type filter", func(t *testing.T) {
		nodes, err := g.Neighborhood(ctx, "entity:A", 2, []domain.EdgeType{domain.EdgeContains})
		require.NoError(t, err)
		require.Len(t, nodes, 1)
		assert.Equal(t, "concept:A.x", nodes[0].ID)
	})

	t.Run("shortest path", func(t *testing.T) {
		path, err := g.FindPath(ctx, "entity:A", "entity:C", 5)
		require.NoError(t, err)
		require.NotNil(t, path)
		assert.Equal(t, []string{"entity:A", "entity:B", "entity:C"}, path.NodeIDs)
		assert.Equal(t, 2, path.Length)
	})

	t.Run("no path within max depth", func(t *testing.T) {
		path, err := g.FindPath(ctx, "entity:A", "entity:C", 1)
		require.NoError(t, err)
		assert.Nil(t, path)
	})

	t.Run("unknown endpoints return empty", func(t *testing.T) {
		nodes, err := g.Neighborhood(ctx, "entity:unknown", 2, nil)
		require.NoError(t, err)
		assert.Empty(t, nodes)

		path, err := g.FindPath(ctx, "entity:unknown", "entity:A", 3)
		require.NoError(t, err)
		assert.Nil(t, path)
	})
}

func TestGraphStore_FindNodes(t *testing.T) {
	ctx := context.Background()
	g := NewGraphStore()
	seedDocument(t, g, "doc-a", "A")
	seedNode(t, g, "entity:User", domain.NodeKindEntity, "User", 1.0)
	seedNode(t, g, "entity:UserProfile", domain.NodeKindEntity, "UserProfile", 0.7)
	seedNode(t, g, "entity:Order", domain.NodeKindEntity, "Order", 1.0)

	nodes, err := g.FindNodes(ctx, "user", 10)
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, "entity:User", nodes[0].ID, "higher confidence ranks first")

	nodes, err = g.FindNodes(ctx, "user", 1)
	require.NoError(t, err)
	assert.Len(t, nodes, 1)

	nodes, err = g.FindNodes(ctx, "nothing", 10)
	require.NoError(t, err)
	assert.Empty(t, nodes)
}
