package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbforge-labs/kbforge-cli/internal/adapters/driven/storage/memory"
	"github.com/kbforge-labs/kbforge-cli/internal/core/domain"
	"github.com/kbforge-labs/kbforge-cli/internal/core/ports/driven"
	"github.com/kbforge-labs/kbforge-cli/internal/extraction"
)

// stubChunker emits the whole document as a single section chunk.
type stubChunker struct {
	err error
}

func (c *stubChunker) Name() string                      { return "stub" }
func (c *stubChunker) CanHandle(_ *domain.Document) bool { return true }

func (c *stubChunker) Chunk(_ context.Context, doc *domain.Document) ([]domain.Chunk, error) {
	if c.err != nil {
		return nil, c.err
	}
	return []domain.Chunk{{
		Content:     doc.Content,
		Sequence:    0,
		HeadingPath: []string{doc.Title},
		ChunkType:   domain.ChunkTypeSection,
	}}, nil
}

// stubScanner serves files from a map.
type stubScanner struct {
	name     string
	remote   string
	revision string
	files    map[string]string
	changed  []string
	deleted  []string
	readErr  map[string]error
}

func (s *stubScanner) Name() string                       { return s.name }
func (s *stubScanner) RemoteURL(_ context.Context) string { return s.remote }

func (s *stubScanner) CurrentRevision(_ context.Context) (string, error) {
	return s.revision, nil
}

func (s *stubScanner) ScanFiles(_ context.Context) ([]string, error) {
	var paths []string
	for p := range s.files {
		paths = append(paths, p)
	}
	return paths, nil
}

func (s *stubScanner) ChangedSince(_ context.Context, _ string) (changed, deleted []string, err error) {
	return s.changed, s.deleted, nil
}

func (s *stubScanner) ReadFile(_ context.Context, relativePath string) (string, error) {
	if err, ok := s.readErr[relativePath]; ok {
		return "", err
	}
	content, ok := s.files[relativePath]
	if !ok {
		return "", fmt.Errorf("no such file: %s", relativePath)
	}
	return content, nil
}

func (s *stubScanner) Watch(_ context.Context) (<-chan []string, error) {
	return nil, errors.New("watch not supported")
}

type indexerFixture struct {
	docStore    *memory.DocumentStore
	vectorIndex *memory.VectorIndex
	graphStore  *memory.GraphStore
	scanner     *stubScanner
	chunker     *stubChunker
	service     *IndexerService
}

func newIndexerFixture(_ *testing.T, scanner *stubScanner) *indexerFixture {
	f := &indexerFixture{
		docStore:    memory.NewDocumentStore(),
		vectorIndex: memory.NewVectorIndex(),
		graphStore:  memory.NewGraphStore(),
		scanner:     scanner,
		chunker:     &stubChunker{},
	}
	f.service = NewIndexerService(
		f.docStore,
		f.vectorIndex,
		&stubEmbedder{vectors: map[string][]float32{}},
		extraction.NewRegistry(f.graphStore),
		f.graphStore,
		[]driven.Chunker{f.chunker},
		scanner,
	)
	return f
}

const userEntityDoc = `---
kind: entity
name: User
description: A person with an account.
---
# User

## Attributes

| name | type | description |
|------|------|-------------|
| email | string | Login address |
| order_id | ref:Order | Most recent order |

## States

- active: can sign in
- suspended: blocked by an operator
`

const orderEntityDoc = `---
kind: entity
name: Order
description: An order placed by a user.
---
# Order

## Attributes

| name | type | description |
|------|------|-------------|
| total | money | Order total |
`

func TestIndexDocument_Pipeline(t *testing.T) {
	ctx := context.Background()
	f := newIndexerFixture(t, nil)

	doc, err := f.service.IndexDocument(ctx, &domain.Document{
		Title:   "User",
		Content: userEntityDoc,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, doc.ID)
	assert.Equal(t, domain.StatusIndexed, doc.Status)
	assert.Equal(t, HashContent(userEntityDoc), doc.ContentHash)
	assert.False(t, doc.IndexedAt.IsZero())

	stored, err := f.docStore.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusIndexed, stored.Status)

	chunks, err := f.docStore.GetChunks(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.NotEmpty(t, chunks[0].ID)
	assert.Equal(t, doc.ID, chunks[0].DocumentID)
	assert.Equal(t, "user", chunks[0].SectionAnchor, "anchor derived from heading path")

	hits, err := f.vectorIndex.Search(ctx, []float32{1, 0}, 10, domain.SearchFilters{}, 0)
	require.NoError(t, err)
	assert.Len(t, hits, 1, "chunk vector upserted")

	node, err := f.graphStore.GetNode(ctx, "entity:User")
	require.NoError(t, err)
	assert.Equal(t, 1.0, node.Confidence)
}

func TestIndexDocument_FailureMarksFailed(t *testing.T) {
	ctx := context.Background()
	f := newIndexerFixture(t, nil)
	f.chunker.err = errors.New("malformed table")

	doc := &domain.Document{Title: "Broken", Content: "x"}
	_, err := f.service.IndexDocument(ctx, doc)
	require.Error(t, err)

	var pipeErr *domain.PipelineError
	require.ErrorAs(t, err, &pipeErr)
	assert.Equal(t, doc.ID, pipeErr.DocumentID)
	assert.ErrorContains(t, err, "malformed table")

	stored, err := f.docStore.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, stored.Status)
}

func TestIndexDocument_ConfidenceUpgradeAcrossDocuments(t *testing.T) {
	ctx := context.Background()
	f := newIndexerFixture(t, nil)

	_, err := f.service.IndexDocument(ctx, &domain.Document{Title: "User", Content: userEntityDoc})
	require.NoError(t, err)

	user, err := f.graphStore.GetNode(ctx, "entity:User")
	require.NoError(t, err)
	assert.Equal(t, 1.0, user.Confidence)

	// Order exists only as a referenced stub so far.
	order, err := f.graphStore.GetNode(ctx, "entity:Order")
	require.NoError(t, err)
	assert.Equal(t, 0.7, order.Confidence)

	_, err = f.service.IndexDocument(ctx, &domain.Document{Title: "Order", Content: orderEntityDoc})
	require.NoError(t, err)

	order, err = f.graphStore.GetNode(ctx, "entity:Order")
	require.NoError(t, err)
	assert.Equal(t, 1.0, order.Confidence, "own document upgrades the stub")
	assert.Equal(t, "An order placed by a user.", order.Description)

	stats, err := f.graphStore.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Entities, "no duplicate Order node")
}

func TestReindexDocument_ReplacesDerivedData(t *testing.T) {
	ctx := context.Background()
	f := newIndexerFixture(t, nil)

	doc, err := f.service.IndexDocument(ctx, &domain.Document{Title: "User", Content: userEntityDoc})
	require.NoError(t, err)
	firstChunks, err := f.docStore.GetChunks(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, firstChunks, 1)

	doc.Content = orderEntityDoc
	doc.Title = "Order"
	reindexed, err := f.service.ReindexDocument(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, reindexed.ID)

	chunks, err := f.docStore.GetChunks(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.NotEqual(t, firstChunks[0].ID, chunks[0].ID, "old chunks replaced")

	// The User entity was only provenanced by this document, so the
	// cascade removed it before re-extraction wrote Order.
	_, err = f.graphStore.GetNode(ctx, "entity:User")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.graphStore.GetNode(ctx, "entity:Order")
	assert.NoError(t, err)
}

func TestDeleteDocument_CascadesEverywhere(t *testing.T) {
	ctx := context.Background()
	f := newIndexerFixture(t, nil)

	doc, err := f.service.IndexDocument(ctx, &domain.Document{Title: "User", Content: userEntityDoc})
	require.NoError(t, err)

	require.NoError(t, f.service.DeleteDocument(ctx, doc.ID))

	_, err = f.docStore.GetDocument(ctx, doc.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	chunks, err := f.docStore.GetChunks(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, chunks)

	hits, err := f.vectorIndex.Search(ctx, []float32{1, 0}, 10, domain.SearchFilters{}, 0)
	require.NoError(t, err)
	assert.Empty(t, hits)

	_, err = f.graphStore.GetNode(ctx, "entity:User")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIndexRepository_IsolatesFileFailures(t *testing.T) {
	ctx := context.Background()
	scanner := &stubScanner{
		name:     "kb",
		remote:   "https://github.com/acme/kb",
		revision: "abc123",
		files: map[string]string{
			"docs/user.md":  userEntityDoc,
			"docs/order.md": orderEntityDoc,
			"docs/bad.md":   "unreadable",
		},
		readErr: map[string]error{"docs/bad.md": errors.New("permission denied")},
	}
	f := newIndexerFixture(t, scanner)

	docs, err := f.service.IndexRepository(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 2, "bad file skipped, batch continues")

	for _, doc := range docs {
		assert.Equal(t, "kb", doc.RepoName)
		assert.Equal(t, "abc123", doc.GitCommit)
		assert.Equal(t, "https://github.com/acme/kb", doc.GitRemoteURL)
		assert.Equal(t, domain.StatusIndexed, doc.Status)
	}
}

func TestIndexRepository_ReindexesExistingDocuments(t *testing.T) {
	ctx := context.Background()
	scanner := &stubScanner{
		name:     "kb",
		revision: "abc123",
		files:    map[string]string{"docs/user.md": userEntityDoc},
	}
	f := newIndexerFixture(t, scanner)

	first, err := f.service.IndexRepository(ctx)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := f.service.IndexRepository(ctx)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID, "external id pins the document id")

	docs, err := f.docStore.ListDocuments(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestSyncRepository(t *testing.T) {
	ctx := context.Background()
	scanner := &stubScanner{
		name:     "kb",
		revision: "rev2",
		files: map[string]string{
			"docs/user.md":  userEntityDoc,
			"docs/order.md": orderEntityDoc,
		},
	}
	f := newIndexerFixture(t, scanner)

	// Seed both documents at rev1.
	scanner.changed = []string{"docs/user.md", "docs/order.md"}
	summary, err := f.service.SyncRepository(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Indexed)
	assert.Equal(t, "rev2", summary.CurrentRevision)

	t.Run("unchanged hash is skipped", func(t *testing.T) {
		scanner.changed = []string{"docs/user.md"}
		scanner.deleted = nil

		summary, err := f.service.SyncRepository(ctx, "rev1")
		require.NoError(t, err)
		assert.Equal(t, 0, summary.Indexed)
		assert.Equal(t, 1, summary.Skipped)
	})

	t.Run("modified content is reindexed", func(t *testing.T) {
		scanner.files["docs/user.md"] = userEntityDoc + "\nA user can hold several sessions.\n"
		scanner.changed = []string{"docs/user.md"}
		scanner.deleted = nil

		summary, err := f.service.SyncRepository(ctx, "rev1")
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Indexed)
		assert.Equal(t, 0, summary.Skipped)
	})

	t.Run("deletions cascade", func(t *testing.T) {
		scanner.changed = nil
		scanner.deleted = []string{"docs/order.md"}

		summary, err := f.service.SyncRepository(ctx, "rev1")
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Deleted)

		docs, err := f.docStore.ListDocuments(ctx, 0)
		require.NoError(t, err)
		assert.Len(t, docs, 1)
	})

	t.Run("unknown deletions are ignored", func(t *testing.T) {
		scanner.changed = nil
		scanner.deleted = []string{"docs/never-indexed.md"}

		summary, err := f.service.SyncRepository(ctx, "rev1")
		require.NoError(t, err)
		assert.Equal(t, 0, summary.Deleted)
		assert.Empty(t, summary.Errors)
	})

	t.Run("per-file errors do not abort the sync", func(t *testing.T) {
		scanner.changed = []string{"docs/missing.md", "docs/user.md"}
		scanner.deleted = nil

		summary, err := f.service.SyncRepository(ctx, "rev1")
		require.NoError(t, err)
		require.Len(t, summary.Errors, 1)
		assert.Contains(t, summary.Errors[0], "docs/missing.md")
		assert.Equal(t, 1, summary.Skipped, "healthy file still processed")
	})
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	f := newIndexerFixture(t, nil)

	_, err := f.service.IndexDocument(ctx, &domain.Document{Title: "User", Content: userEntityDoc})
	require.NoError(t, err)

	status, err := f.service.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.Documents[domain.StatusIndexed])
	require.NotNil(t, status.Graph)
	assert.Equal(t, 1, status.Graph.Documents)
	assert.GreaterOrEqual(t, status.Graph.Entities, 2)
}

func TestBuildDocument_Frontmatter(t *testing.T) {
	scanner := &stubScanner{name: "kb", revision: "abc"}
	f := newIndexerFixture(t, scanner)

	content := "---\ntitle: Billing Glossary\ndomain: billing\ntags: [glossary, billing]\n---\n# Ignored\nBody.\n"
	doc := f.service.buildDocument(context.Background(), "docs/glossary.md", content, "abc")

	assert.Equal(t, "kb:docs/glossary.md", doc.ExternalID)
	assert.Equal(t, "Billing Glossary", doc.Title)
	assert.Equal(t, "billing", doc.Domain)
	assert.Equal(t, []string{"glossary", "billing"}, doc.Tags)
	assert.Equal(t, "text/markdown", doc.MimeType)
	assert.Equal(t, "abc", doc.GitCommit)
}

func TestBuildDocument_TitleFallbacks(t *testing.T) {
	scanner := &stubScanner{name: "kb"}
	f := newIndexerFixture(t, scanner)

	doc := f.service.buildDocument(context.Background(), "docs/notes.md", "# First Heading\ntext", "")
	assert.Equal(t, "First Heading", doc.Title)

	doc = f.service.buildDocument(context.Background(), "docs/raw-notes.md", "no headings here", "")
	assert.Equal(t, "raw-notes", doc.Title)
}
