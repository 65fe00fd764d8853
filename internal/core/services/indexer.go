package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/kbforge-labs/kbforge-cli/internal/core/domain"
	"github.com/kbforge-labs/kbforge-cli/internal/core/ports/driven"
	"github.com/kbforge-labs/kbforge-cli/internal/core/ports/driving"
	"github.com/kbforge-labs/kbforge-cli/internal/logger"
)

// Ensure IndexerService implements the interface.
var _ driving.Indexer = (*IndexerService)(nil)

// IndexerService drives the per-document pipeline and repository
// level batch and incremental indexing. Steps for one document run
// strictly in order because later steps consume the outputs of
// earlier ones (chunk ids, anchors).
type IndexerService struct {
	docStore    driven.DocumentStore
	vectorIndex driven.VectorIndex
	embedder    driven.Embedder
	extractor   driven.GraphExtractor
	graphStore  driven.GraphStore
	chunkers    []driven.Chunker
	scanner     driven.RepoScanner
}

// NewIndexerService creates an indexer. The embedder, extractor,
// graphStore and scanner are optional (can be nil); steps that need a
// missing backend are skipped or fail with a configuration error.
// Chunkers are tried in registration order; the last one should be a
// catch-all.
func NewIndexerService(
	docStore driven.DocumentStore,
	vectorIndex driven.VectorIndex,
	embedder driven.Embedder,
	extractor driven.GraphExtractor,
	graphStore driven.GraphStore,
	chunkers []driven.Chunker,
	scanner driven.RepoScanner,
) *IndexerService {
	return &IndexerService{
		docStore:    docStore,
		vectorIndex: vectorIndex,
		embedder:    embedder,
		extractor:   extractor,
		graphStore:  graphStore,
		chunkers:    chunkers,
		scanner:     scanner,
	}
}

// IndexDocument runs the full pipeline for one document. On any step
// failure the document is marked failed best-effort and a pipeline
// error wrapping the cause is returned.
func (s *IndexerService) IndexDocument(ctx context.Context, doc *domain.Document) (*domain.Document, error) {
	logger.Section("Index Document")

	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}
	logger.Debug("Document %s (%s)", doc.ID, doc.Title)

	if err := s.runPipeline(ctx, doc); err != nil {
		s.markFailed(ctx, doc)
		return nil, domain.NewPipelineError(doc.ID, err)
	}
	return doc, nil
}

func (s *IndexerService) runPipeline(ctx context.Context, doc *domain.Document) error {
	// 1. Hash content.
	doc.ContentHash = HashContent(doc.Content)

	// 2. Persist as processing.
	doc.Status = domain.StatusProcessing
	doc.UpdatedAt = time.Now()
	if err := s.docStore.SaveDocument(ctx, doc); err != nil {
		return fmt.Errorf("save document: %w", err)
	}

	// 3. Chunk.
	chunker := s.selectChunker(doc)
	if chunker == nil {
		return fmt.Errorf("no chunker handles document %s: %w", doc.ID, domain.ErrConfiguration)
	}
	logger.Debug("Chunker: %s", chunker.Name())
	chunks, err := chunker.Chunk(ctx, doc)
	if err != nil {
		return fmt.Errorf("chunk document: %w", err)
	}

	// 4. Assign ids and section anchors, 5. persist chunks.
	for i := range chunks {
		if chunks[i].ID == "" {
			chunks[i].ID = uuid.NewString()
		}
		chunks[i].DocumentID = doc.ID
		if chunks[i].SectionAnchor == "" {
			chunks[i].SectionAnchor = domain.HeadingAnchor(chunks[i].HeadingPath)
		}
	}
	if err := s.docStore.SaveChunks(ctx, chunks); err != nil {
		return fmt.Errorf("save chunks: %w", err)
	}
	logger.Debug("Persisted %d chunks", len(chunks))

	// 6. Embed and upsert vectors.
	if err := s.embedChunks(ctx, doc, chunks); err != nil {
		return err
	}

	// 7. Extract graph facts. Partial extraction never fails the
	// pipeline; the extractor degrades internally and reports counts.
	if s.extractor != nil {
		result, err := s.extractor.ExtractAndStore(ctx, doc, chunks)
		if err != nil {
			logger.Warn("Graph extraction for %s failed: %v", doc.ID, err)
		} else {
			logger.Debug("Graph extraction: %d nodes, %d edges", result.NodesCreated, result.EdgesCreated)
		}
	}

	// 8. Mark indexed.
	now := time.Now()
	doc.Status = domain.StatusIndexed
	doc.IndexedAt = now
	doc.UpdatedAt = now
	if err := s.docStore.UpdateDocument(ctx, doc); err != nil {
		return fmt.Errorf("mark indexed: %w", err)
	}

	logger.Info("Indexed %s (%s)", doc.Title, doc.ID)
	return nil
}

// embedChunks generates embeddings for all chunks and upserts them
// into the vector index. A nil embedder disables semantic indexing.
func (s *IndexerService) embedChunks(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) error {
	if s.embedder == nil || s.vectorIndex == nil || len(chunks) == 0 {
		logger.Debug("Embedding skipped (embedder=%t, index=%t, chunks=%d)",
			s.embedder != nil, s.vectorIndex != nil, len(chunks))
		return nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Content
	}

	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("embed chunks: got %d vectors for %d chunks", len(vectors), len(chunks))
	}

	meta := driven.VectorMetadata{DocumentID: doc.ID, Domain: doc.Domain, Tags: doc.Tags}
	for i, chunk := range chunks {
		if err := s.vectorIndex.Upsert(ctx, chunk.ID, vectors[i], meta); err != nil {
			return fmt.Errorf("upsert vector for chunk %s: %w", chunk.ID, err)
		}
	}
	return nil
}

// ReindexDocument deletes the document's derived data and indexes it
// fresh under the same ID.
func (s *IndexerService) ReindexDocument(ctx context.Context, doc *domain.Document) (*domain.Document, error) {
	if doc.ID == "" {
		return s.IndexDocument(ctx, doc)
	}

	logger.Debug("Reindex %s: clearing derived data", doc.ID)
	if err := s.deleteDerived(ctx, doc.ID); err != nil {
		s.markFailed(ctx, doc)
		return nil, domain.NewPipelineError(doc.ID, err)
	}
	return s.IndexDocument(ctx, doc)
}

// DeleteDocument removes a document and everything derived from it:
// vectors, graph contribution, chunks, and the document row.
func (s *IndexerService) DeleteDocument(ctx context.Context, documentID string) error {
	if err := s.deleteDerived(ctx, documentID); err != nil {
		return err
	}
	if err := s.docStore.DeleteDocument(ctx, documentID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("delete document: %w", err)
	}
	logger.Info("Deleted document %s", documentID)
	return nil
}

func (s *IndexerService) deleteDerived(ctx context.Context, documentID string) error {
	if s.vectorIndex != nil {
		if err := s.vectorIndex.DeleteByDocument(ctx, documentID); err != nil {
			return fmt.Errorf("delete vectors: %w", err)
		}
	}
	if s.extractor != nil {
		if err := s.extractor.DeleteByDocument(ctx, documentID); err != nil {
			return fmt.Errorf("delete graph facts: %w", err)
		}
	}
	if err := s.docStore.DeleteChunksByDocument(ctx, documentID); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	return nil
}

// IndexRepository indexes every file the scanner discovers. A single
// file's failure is logged and skipped, never aborting the batch.
func (s *IndexerService) IndexRepository(ctx context.Context) ([]domain.Document, error) {
	if s.scanner == nil {
		return nil, fmt.Errorf("index repository: %w", domain.ErrConfiguration)
	}

	logger.Section("Index Repository")
	paths, err := s.scanner.ScanFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan files: %w", err)
	}
	logger.Info("Discovered %d files", len(paths))

	revision, err := s.scanner.CurrentRevision(ctx)
	if err != nil {
		logger.Debug("No revision marker: %v", err)
	}

	var indexed []domain.Document
	for _, relPath := range paths {
		doc, err := s.indexFile(ctx, relPath, revision)
		if err != nil {
			logger.Warn("Skipping %s: %v", relPath, err)
			continue
		}
		indexed = append(indexed, *doc)
	}

	logger.Info("Indexed %d of %d files", len(indexed), len(paths))
	return indexed, nil
}

// indexFile reads one file and indexes it, reusing the existing
// document ID when the file was indexed before.
func (s *IndexerService) indexFile(ctx context.Context, relPath, revision string) (*domain.Document, error) {
	content, err := s.scanner.ReadFile(ctx, relPath)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	doc := s.buildDocument(ctx, relPath, content, revision)

	existing, err := s.docStore.GetByExternalID(ctx, doc.ExternalID)
	switch {
	case err == nil:
		doc.ID = existing.ID
		doc.CreatedAt = existing.CreatedAt
		return s.ReindexDocument(ctx, doc)
	case errors.Is(err, domain.ErrNotFound):
		return s.IndexDocument(ctx, doc)
	default:
		return nil, fmt.Errorf("lookup document: %w", err)
	}
}

// SyncRepository incrementally syncs files changed since a revision.
// Deletions cascade; changed files with an identical content hash are
// counted as skipped.
func (s *IndexerService) SyncRepository(ctx context.Context, sinceRevision string) (*domain.SyncSummary, error) {
	if s.scanner == nil {
		return nil, fmt.Errorf("sync repository: %w", domain.ErrConfiguration)
	}

	logger.Section("Sync Repository")
	summary := &domain.SyncSummary{}

	revision, err := s.scanner.CurrentRevision(ctx)
	if err != nil {
		return nil, fmt.Errorf("current revision: %w", err)
	}
	summary.CurrentRevision = revision

	changed, deleted, err := s.scanner.ChangedSince(ctx, sinceRevision)
	if err != nil {
		return nil, fmt.Errorf("changed since %s: %w", sinceRevision, err)
	}
	logger.Info("Sync: %d changed, %d deleted since %s", len(changed), len(deleted), sinceRevision)

	for _, relPath := range deleted {
		externalID := s.externalID(relPath)
		existing, err := s.docStore.GetByExternalID(ctx, externalID)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", relPath, err))
			continue
		}
		if err := s.DeleteDocument(ctx, existing.ID); err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", relPath, err))
			continue
		}
		summary.Deleted++
	}

	for _, relPath := range changed {
		content, err := s.scanner.ReadFile(ctx, relPath)
		if err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", relPath, err))
			continue
		}

		doc := s.buildDocument(ctx, relPath, content, revision)

		existing, err := s.docStore.GetByExternalID(ctx, doc.ExternalID)
		switch {
		case err == nil:
			if existing.ContentHash == doc.ContentHash && existing.Status == domain.StatusIndexed {
				logger.Debug("Unchanged hash, skipping %s", relPath)
				summary.Skipped++
				continue
			}
			doc.ID = existing.ID
			doc.CreatedAt = existing.CreatedAt
			if _, err := s.ReindexDocument(ctx, doc); err != nil {
				summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", relPath, err))
				continue
			}
		case errors.Is(err, domain.ErrNotFound):
			if _, err := s.IndexDocument(ctx, doc); err != nil {
				summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", relPath, err))
				continue
			}
		default:
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", relPath, err))
			continue
		}
		summary.Indexed++
	}

	logger.Info("Sync complete: %d indexed, %d deleted, %d skipped, %d errors",
		summary.Indexed, summary.Deleted, summary.Skipped, len(summary.Errors))
	return summary, nil
}

// Status reports document counts per status plus graph statistics.
func (s *IndexerService) Status(ctx context.Context) (*driving.IndexStatus, error) {
	counts, err := s.docStore.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}

	status := &driving.IndexStatus{Documents: counts}
	if s.graphStore != nil {
		stats, err := s.graphStore.Stats(ctx)
		if err != nil {
			logger.Warn("Graph stats unavailable: %v", err)
		} else {
			status.Graph = stats
		}
	}
	return status, nil
}

// buildDocument constructs a document from a repository file. YAML
// frontmatter may override title, domain and tags.
func (s *IndexerService) buildDocument(ctx context.Context, relPath, content, revision string) *domain.Document {
	doc := &domain.Document{
		ExternalID:   s.externalID(relPath),
		Content:      content,
		ContentHash:  HashContent(content),
		RelativePath: relPath,
		SourcePath:   relPath,
		RepoName:     s.scanner.Name(),
		GitCommit:    revision,
		MimeType:     mimeTypeFor(relPath),
		Status:       domain.StatusPending,
	}
	if remote := s.scanner.RemoteURL(ctx); remote != "" {
		doc.GitRemoteURL = remote
	}

	meta := parseDocMeta(content)
	doc.Title = meta.Title
	if doc.Title == "" {
		doc.Title = titleFromContent(content)
	}
	if doc.Title == "" {
		doc.Title = strings.TrimSuffix(path.Base(relPath), path.Ext(relPath))
	}
	doc.Domain = meta.Domain
	doc.Tags = meta.Tags

	return doc
}

func (s *IndexerService) externalID(relPath string) string {
	return s.scanner.Name() + ":" + relPath
}

func (s *IndexerService) selectChunker(doc *domain.Document) driven.Chunker {
	for _, c := range s.chunkers {
		if c.CanHandle(doc) {
			return c
		}
	}
	return nil
}

// markFailed records a pipeline failure on the document. Secondary
// persistence errors are swallowed so the original cause survives.
func (s *IndexerService) markFailed(ctx context.Context, doc *domain.Document) {
	doc.Status = domain.StatusFailed
	doc.UpdatedAt = time.Now()
	if err := s.docStore.UpdateDocument(ctx, doc); err != nil {
		logger.Warn("Could not mark %s failed: %v", doc.ID, err)
	}
}

// HashContent returns the hex SHA-256 of document content.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// docMeta is the YAML frontmatter subset the indexer reads.
type docMeta struct {
	Title  string   `yaml:"title"`
	Domain string   `yaml:"domain"`
	Tags   []string `yaml:"tags"`
}

func parseDocMeta(content string) docMeta {
	var meta docMeta
	if !strings.HasPrefix(content, "---\n") {
		return meta
	}
	rest := content[4:]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return meta
	}
	if err := yaml.Unmarshal([]byte(rest[:end]), &meta); err != nil {
		logger.Debug("Frontmatter parse failed: %v", err)
	}
	return meta
}

func titleFromContent(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if after, ok := strings.CutPrefix(line, "# "); ok {
			return strings.TrimSpace(after)
		}
	}
	return ""
}

func mimeTypeFor(relPath string) string {
	switch strings.ToLower(path.Ext(relPath)) {
	case ".md", ".markdown":
		return "text/markdown"
	default:
		return "text/plain"
	}
}
