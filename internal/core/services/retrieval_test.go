package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbforge-labs/kbforge-cli/internal/adapters/driven/storage/memory"
	"github.com/kbforge-labs/kbforge-cli/internal/core/domain"
	"github.com/kbforge-labs/kbforge-cli/internal/core/ports/driven"
	"github.com/kbforge-labs/kbforge-cli/internal/core/ports/driving"
)

// stubEmbedder returns canned vectors keyed by input text.
type stubEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (e *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	if v, ok := e.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0}, nil
}

func (e *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *stubEmbedder) Dimensions() int              { return 2 }
func (e *stubEmbedder) ModelName() string            { return "stub" }
func (e *stubEmbedder) Ping(_ context.Context) error { return nil }
func (e *stubEmbedder) Close() error                 { return nil }

type retrievalFixture struct {
	docStore    *memory.DocumentStore
	vectorIndex *memory.VectorIndex
	graphStore  *memory.GraphStore
	embedder    *stubEmbedder
	service     *RetrievalService
}

func newRetrievalFixture(t *testing.T) *retrievalFixture {
	t.Helper()
	ctx := context.Background()

	f := &retrievalFixture{
		docStore:    memory.NewDocumentStore(),
		vectorIndex: memory.NewVectorIndex(),
		graphStore:  memory.NewGraphStore(),
		embedder:    &stubEmbedder{vectors: map[string][]float32{"user": {1, 0}}},
	}
	f.service = NewRetrievalService(f.docStore, f.vectorIndex, f.embedder, f.graphStore)

	userDoc := &domain.Document{
		ID:           "doc-user",
		Title:        "User",
		Status:       domain.StatusIndexed,
		RelativePath: "docs/user.md",
		SourcePath:   "/repo/docs/user.md",
		GitRemoteURL: "https://github.com/acme/kb",
		GitCommit:    "abc123",
		Domain:       "identity",
		Tags:         []string{"entity"},
	}
	orderDoc := &domain.Document{
		ID:         "doc-order",
		Title:      "Order",
		Status:     domain.StatusIndexed,
		SourcePath: "/repo/docs/order.md",
	}
	require.NoError(t, f.docStore.SaveDocument(ctx, userDoc))
	require.NoError(t, f.docStore.SaveDocument(ctx, orderDoc))

	require.NoError(t, f.docStore.SaveChunks(ctx, []domain.Chunk{
		{
			ID:            "chunk-user-1",
			DocumentID:    "doc-user",
			Content:       "## Core Attributes\nA user owns credentials and a profile.",
			Sequence:      0,
			HeadingPath:   []string{"User", "Core Attributes"},
			SectionAnchor: "core-attributes",
			ChunkType:     domain.ChunkTypeSection,
		},
		{
			ID:          "chunk-order-1",
			DocumentID:  "doc-order",
			Content:     "An order is placed by a user.",
			Sequence:    0,
			HeadingPath: []string{"Order"},
			ChunkType:   domain.ChunkTypeSection,
		},
	}))

	require.NoError(t, f.vectorIndex.Upsert(ctx, "chunk-user-1", []float32{1, 0},
		driven.VectorMetadata{DocumentID: "doc-user", Domain: "identity", Tags: []string{"entity"}}))
	require.NoError(t, f.vectorIndex.Upsert(ctx, "chunk-order-1", []float32{0, 1},
		driven.VectorMetadata{DocumentID: "doc-order"}))

	return f
}

func TestRetrieve_EmptyQuery(t *testing.T) {
	f := newRetrievalFixture(t)
	refs, err := f.service.Retrieve(context.Background(), "   ", driving.RetrievalOptions{Mode: domain.ModeVector})
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestRetrieve_VectorMode(t *testing.T) {
	f := newRetrievalFixture(t)
	refs, err := f.service.Retrieve(context.Background(), "user", driving.RetrievalOptions{
		Mode: domain.ModeVector, Limit: 10,
	})
	require.NoError(t, err)
	require.NotEmpty(t, refs)

	top := refs[0]
	assert.Equal(t, "https://github.com/acme/kb/blob/abc123/docs/user.md#core-attributes", top.URL)
	assert.Equal(t, "docs/user.md", top.DocumentPath)
	assert.Equal(t, "User", top.Title)
	assert.Equal(t, "Core Attributes", top.SectionTitle)
	assert.Equal(t, "core-attributes", top.SectionAnchor)
	assert.Equal(t, "A user owns credentials and a profile.", top.Snippet)
	assert.Equal(t, domain.ModeVector, top.RetrievalMode)
	assert.InDelta(t, 1.0, top.Score, 1e-9)
}

func TestRetrieve_VectorMode_SkipsDeletedChunks(t *testing.T) {
	ctx := context.Background()
	f := newRetrievalFixture(t)

	// Vector entry outlives its chunk: resolution must skip it.
	require.NoError(t, f.vectorIndex.Upsert(ctx, "chunk-gone", []float32{1, 0},
		driven.VectorMetadata{DocumentID: "doc-user"}))

	refs, err := f.service.Retrieve(ctx, "user", driving.RetrievalOptions{
		Mode: domain.ModeVector, Limit: 10,
	})
	require.NoError(t, err)
	for _, ref := range refs {
		assert.NotEmpty(t, ref.URL)
	}
	assert.Len(t, refs, 2)
}

func TestRetrieve_VectorMode_Threshold(t *testing.T) {
	f := newRetrievalFixture(t)
	refs, err := f.service.Retrieve(context.Background(), "user", driving.RetrievalOptions{
		Mode: domain.ModeVector, Limit: 10, ScoreThreshold: 0.9,
	})
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "User", refs[0].Title)
}

func TestRetrieve_GraphMode(t *testing.T) {
	ctx := context.Background()
	f := newRetrievalFixture(t)

	require.NoError(t, f.graphStore.UpsertDocument(ctx, "doc-user", "User", "docs/user.md", "entity"))
	require.NoError(t, f.graphStore.UpsertNode(ctx, domain.GraphNode{
		ID: "entity:User", Kind: domain.NodeKindEntity, Name: "User",
		Description: "A person with an account", Confidence: 1.0,
		SourceChunkID: "chunk-user-1", SourceDocumentID: "doc-user",
	}))
	require.NoError(t, f.graphStore.UpsertNode(ctx, domain.GraphNode{
		ID: "entity:UserProfile", Kind: domain.NodeKindEntity, Name: "UserProfile",
		Confidence: 0.7, SourceDocumentID: "doc-order",
	}))
	require.NoError(t, f.graphStore.AddEdge(ctx, domain.GraphEdge{
		Type: domain.EdgeReferences, FromID: "entity:User", ToID: "entity:UserProfile",
		Confidence: 0.95, SourceDocID: "doc-user",
	}))

	refs, err := f.service.Retrieve(ctx, "user", driving.RetrievalOptions{
		Mode: domain.ModeGraph, Limit: 10,
	})
	require.NoError(t, err)
	require.Len(t, refs, 2)

	top := refs[0]
	assert.Equal(t, domain.ModeGraph, top.RetrievalMode)
	assert.Equal(t, "User", top.Title)
	assert.Equal(t, "core-attributes", top.SectionAnchor, "chunk resolution wins")
	// Confidence 1.0 with one relationship caps at 1.0.
	assert.InDelta(t, 1.0, top.Score, 1e-9)
	assert.Equal(t, "User", top.Metadata["graph_node_name"])
	rels, ok := top.Metadata["graph_relationships"].([]domain.NodeRelationship)
	require.True(t, ok)
	require.Len(t, rels, 1)
	assert.Equal(t, domain.EdgeReferences, rels[0].Type)
	assert.Equal(t, "outgoing", rels[0].Direction)
	assert.Equal(t, "UserProfile", rels[0].RelatedNode)

	// Stub resolved through its source document id.
	second := refs[1]
	assert.Equal(t, "Order", second.Title)
	// Confidence 0.7 with one (incoming) relationship.
	assert.InDelta(t, 0.77, second.Score, 1e-9)
}

func TestRetrieve_GraphMode_TitleFallbackAndDedup(t *testing.T) {
	ctx := context.Background()
	f := newRetrievalFixture(t)

	// Two nodes resolving to the same chunk emit one reference.
	for _, id := range []string{"entity:User", "concept:User.email"} {
		require.NoError(t, f.graphStore.UpsertNode(ctx, domain.GraphNode{
			ID: id, Kind: domain.NodeKindEntity, Name: "User email",
			Confidence: 1.0, SourceChunkID: "chunk-user-1",
		}))
	}
	// A node with no source pointers falls back to the title scan.
	require.NoError(t, f.graphStore.UpsertNode(ctx, domain.GraphNode{
		ID: "entity:Order", Kind: domain.NodeKindEntity, Name: "Order", Confidence: 0.7,
	}))

	refs, err := f.service.Retrieve(ctx, "user", driving.RetrievalOptions{
		Mode: domain.ModeGraph, Limit: 10,
	})
	require.NoError(t, err)
	require.Len(t, refs, 1, "same chunk must not be emitted twice")

	refs, err = f.service.Retrieve(ctx, "order", driving.RetrievalOptions{
		Mode: domain.ModeGraph, Limit: 10,
	})
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "Order", refs[0].Title)
	assert.Equal(t, "file:///repo/docs/order.md", refs[0].URL)
}

func TestRetrieve_GraphMode_Unconfigured(t *testing.T) {
	f := newRetrievalFixture(t)
	svc := NewRetrievalService(f.docStore, f.vectorIndex, f.embedder, nil)

	_, err := svc.Retrieve(context.Background(), "user", driving.RetrievalOptions{Mode: domain.ModeGraph})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrGraphUnavailable)
}

func TestRetrieve_HybridMode(t *testing.T) {
	ctx := context.Background()
	f := newRetrievalFixture(t)

	require.NoError(t, f.graphStore.UpsertNode(ctx, domain.GraphNode{
		ID: "entity:User", Kind: domain.NodeKindEntity, Name: "User",
		Confidence: 1.0, SourceChunkID: "chunk-user-1",
	}))

	refs, err := f.service.Retrieve(ctx, "user", driving.RetrievalOptions{
		Mode: domain.ModeHybrid, Limit: 10,
	})
	require.NoError(t, err)
	require.NotEmpty(t, refs)

	// Both paths resolve doc-user's chunk to the same URL, so it is
	// fused on top with summed contributions.
	top := refs[0]
	assert.Equal(t, domain.ModeHybrid, top.RetrievalMode)
	assert.Equal(t, "https://github.com/acme/kb/blob/abc123/docs/user.md#core-attributes", top.URL)
	assert.InDelta(t, 2.0/61.0, top.Score, 1e-9)
	for _, ref := range refs {
		assert.Equal(t, domain.ModeHybrid, ref.RetrievalMode)
	}
}

func TestRetrieve_HybridMode_DegradesWhenVectorFails(t *testing.T) {
	ctx := context.Background()
	f := newRetrievalFixture(t)
	f.embedder.err = errors.New("embedder down")

	require.NoError(t, f.graphStore.UpsertNode(ctx, domain.GraphNode{
		ID: "entity:User", Kind: domain.NodeKindEntity, Name: "User",
		Confidence: 1.0, SourceChunkID: "chunk-user-1",
	}))

	refs, err := f.service.Retrieve(ctx, "user", driving.RetrievalOptions{
		Mode: domain.ModeHybrid, Limit: 10,
	})
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, domain.ModeGraph, refs[0].RetrievalMode)
}

func TestReciprocalRankFusion(t *testing.T) {
	u := func(url string) domain.DocumentReference {
		return domain.DocumentReference{URL: url, Score: 0.9}
	}
	vector := []domain.DocumentReference{u("u1"), u("u2")}
	graph := []domain.DocumentReference{u("u2"), u("u3")}

	merged := reciprocalRankFusion(vector, graph, 60, 10)
	require.Len(t, merged, 3)

	// u2 sits at rank 1 of the vector list and rank 0 of the graph
	// list; its fused score sums both contributions.
	assert.Equal(t, "u2", merged[0].URL)
	assert.InDelta(t, 1.0/62.0+1.0/61.0, merged[0].Score, 1e-12)
	assert.Equal(t, "u1", merged[1].URL)
	assert.InDelta(t, 1.0/61.0, merged[1].Score, 1e-12)
	assert.Equal(t, "u3", merged[2].URL)
	assert.InDelta(t, 1.0/62.0, merged[2].Score, 1e-12)

	for _, ref := range merged {
		assert.Equal(t, domain.ModeHybrid, ref.RetrievalMode)
	}
}

func TestReciprocalRankFusion_SharedTopRank(t *testing.T) {
	shared := domain.DocumentReference{URL: "shared"}
	other := domain.DocumentReference{URL: "other"}

	merged := reciprocalRankFusion(
		[]domain.DocumentReference{{URL: "v1"}, shared},
		[]domain.DocumentReference{shared, other},
		60, 2,
	)
	require.Len(t, merged, 2, "limit truncates")
	assert.Equal(t, "shared", merged[0].URL)
}

func TestReferenceURL(t *testing.T) {
	t.Run("remote blob url", func(t *testing.T) {
		doc := &domain.Document{
			ID: "d1", GitRemoteURL: "https://github.com/acme/kb/",
			GitCommit: "abc", RelativePath: "docs/user.md",
		}
		assert.Equal(t, "https://github.com/acme/kb/blob/abc/docs/user.md#a", ReferenceURL(doc, "a"))
	})

	t.Run("defaults to main without a commit", func(t *testing.T) {
		doc := &domain.Document{
			ID: "d1", GitRemoteURL: "https://github.com/acme/kb", RelativePath: "x.md",
		}
		assert.Equal(t, "https://github.com/acme/kb/blob/main/x.md", ReferenceURL(doc, ""))
	})

	t.Run("file url", func(t *testing.T) {
		doc := &domain.Document{ID: "d1", SourcePath: "/tmp/x.md"}
		assert.Equal(t, "file:///tmp/x.md#s", ReferenceURL(doc, "s"))
	})

	t.Run("opaque doc url", func(t *testing.T) {
		doc := &domain.Document{ID: "d1"}
		assert.Equal(t, "doc://d1", ReferenceURL(doc, "s"))
	})
}

func TestRetrieve_UnknownMode(t *testing.T) {
	f := newRetrievalFixture(t)
	_, err := f.service.Retrieve(context.Background(), "user", driving.RetrievalOptions{Mode: "telepathy"})
	require.Error(t, err)
}
