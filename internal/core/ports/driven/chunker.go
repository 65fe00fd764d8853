package driven

import (
	"context"

	"github.com/kbforge-labs/kbforge-cli/internal/core/domain"
)

// Chunker splits a document into an ordered sequence of content
// chunks with heading paths. Selection by content is a pure function
// of the document; chunkers hold no per-document state.
type Chunker interface {
	// Name identifies the chunker ("markdown", "plaintext", ...).
	Name() string

	// CanHandle reports whether this chunker fits the document.
	CanHandle(doc *domain.Document) bool

	// Chunk splits the document content. Chunks carry sequence numbers
	// and heading paths; IDs and anchors are assigned by the caller.
	Chunk(ctx context.Context, doc *domain.Document) ([]domain.Chunk, error)
}
