package driven

import (
	"context"

	"github.com/kbforge-labs/kbforge-cli/internal/core/domain"
)

// DocumentStore persists documents and chunks.
// Backed by SQLite for metadata storage.
type DocumentStore interface {
	// SaveDocument stores a new document or replaces an existing one.
	SaveDocument(ctx context.Context, doc *domain.Document) error

	// UpdateDocument updates mutable fields (status, hash, timestamps).
	UpdateDocument(ctx context.Context, doc *domain.Document) error

	// GetDocument retrieves a document by ID.
	GetDocument(ctx context.Context, id string) (*domain.Document, error)

	// GetByExternalID retrieves a document by its stable external key.
	GetByExternalID(ctx context.Context, externalID string) (*domain.Document, error)

	// ListDocuments returns up to limit documents. A zero limit means
	// no bound.
	ListDocuments(ctx context.Context, limit int) ([]domain.Document, error)

	// CountByStatus returns document counts keyed by status.
	CountByStatus(ctx context.Context) (map[domain.DocumentStatus]int, error)

	// DeleteDocument removes a document.
	DeleteDocument(ctx context.Context, id string) error

	// SaveChunks stores chunks for a document.
	SaveChunks(ctx context.Context, chunks []domain.Chunk) error

	// GetChunk retrieves a specific chunk by ID.
	GetChunk(ctx context.Context, id string) (*domain.Chunk, error)

	// GetChunks retrieves all chunks for a document, ordered by sequence.
	GetChunks(ctx context.Context, documentID string) ([]domain.Chunk, error)

	// DeleteChunksByDocument removes all chunks of a document.
	DeleteChunksByDocument(ctx context.Context, documentID string) error
}
