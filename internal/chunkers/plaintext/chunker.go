// Package plaintext provides the fallback chunker: paragraphs split
// on blank lines, no heading structure.
package plaintext

import (
	"context"
	"regexp"
	"strings"

	"github.com/kbforge-labs/kbforge-cli/internal/core/domain"
	"github.com/kbforge-labs/kbforge-cli/internal/core/ports/driven"
)

// Ensure Chunker implements the interface.
var _ driven.Chunker = (*Chunker)(nil)

// Chunker splits any text document into paragraph chunks.
type Chunker struct{}

// New creates a plaintext chunker.
func New() *Chunker {
	return &Chunker{}
}

// Name returns the chunker name.
func (c *Chunker) Name() string {
	return "plaintext"
}

// CanHandle always reports true; plaintext is the catch-all and must
// be registered last.
func (c *Chunker) CanHandle(_ *domain.Document) bool {
	return true
}

var paragraphSplit = regexp.MustCompile(`\n\s*\n`)

// Chunk splits content on blank lines, one chunk per paragraph.
func (c *Chunker) Chunk(_ context.Context, doc *domain.Document) ([]domain.Chunk, error) {
	if strings.TrimSpace(doc.Content) == "" {
		return nil, nil
	}

	var chunks []domain.Chunk
	offset := 0
	for _, para := range paragraphSplit.Split(doc.Content, -1) {
		text := strings.TrimSpace(para)
		if text != "" {
			start := strings.Index(doc.Content[offset:], text) + offset
			chunks = append(chunks, domain.Chunk{
				DocumentID:  doc.ID,
				Content:     text,
				Sequence:    len(chunks),
				ChunkType:   domain.ChunkTypeSection,
				StartOffset: start,
				EndOffset:   start + len(text),
			})
			offset = start + len(text)
		}
	}
	return chunks, nil
}
