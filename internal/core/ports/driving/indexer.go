package driving

import (
	"context"

	"github.com/kbforge-labs/kbforge-cli/internal/core/domain"
)

// IndexStatus summarises the knowledge base for the status command.
type IndexStatus struct {
	Documents map[domain.DocumentStatus]int `json:"documents"`
	Graph     *domain.GraphStats            `json:"graph,omitempty"`
}

// Indexer drives the indexation pipeline: single documents, whole
// repositories, and incremental sync.
type Indexer interface {
	// IndexDocument runs the full pipeline for one document:
	// hash, persist, chunk, anchor, embed, upsert vectors, extract
	// graph facts, mark indexed. On failure the document is marked
	// failed and a *domain.PipelineError is returned.
	IndexDocument(ctx context.Context, doc *domain.Document) (*domain.Document, error)

	// ReindexDocument deletes the document's vectors, graph facts and
	// chunks, then indexes it fresh under the same ID.
	ReindexDocument(ctx context.Context, doc *domain.Document) (*domain.Document, error)

	// DeleteDocument removes a document and all its indexed data
	// across the vector, graph, and metadata stores.
	DeleteDocument(ctx context.Context, documentID string) error

	// IndexRepository indexes every matching file. A single file's
	// failure is logged and skipped, never aborting the batch.
	IndexRepository(ctx context.Context) ([]domain.Document, error)

	// SyncRepository incrementally syncs files changed since the given
	// revision: deletions cascade, unchanged hashes are skipped.
	SyncRepository(ctx context.Context, sinceRevision string) (*domain.SyncSummary, error)

	// Status reports document counts and graph statistics.
	Status(ctx context.Context) (*IndexStatus, error)
}
