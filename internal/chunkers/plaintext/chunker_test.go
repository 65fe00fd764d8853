package plaintext

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbforge-labs/kbforge-cli/internal/core/domain"
)

func TestChunk_SplitsOnBlankLines(t *testing.T) {
	doc := &domain.Document{
		ID:      "doc-1",
		Content: "First paragraph.\n\nSecond paragraph\nspanning two lines.\n\n\nThird.\n",
	}

	chunks, err := New().Chunk(context.Background(), doc)
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	assert.Equal(t, "First paragraph.", chunks[0].Content)
	assert.Equal(t, "Second paragraph\nspanning two lines.", chunks[1].Content)
	assert.Equal(t, "Third.", chunks[2].Content)

	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.Sequence)
		assert.Equal(t, "doc-1", chunk.DocumentID)
		assert.Empty(t, chunk.HeadingPath)
		assert.Equal(t, chunk.Content, doc.Content[chunk.StartOffset:chunk.EndOffset])
	}
}

func TestChunk_EmptyContent(t *testing.T) {
	chunks, err := New().Chunk(context.Background(), &domain.Document{ID: "doc-1", Content: "  \n \n"})
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestCanHandle_IsCatchAll(t *testing.T) {
	c := New()
	assert.True(t, c.CanHandle(&domain.Document{MimeType: "application/octet-stream"}))
	assert.Equal(t, "plaintext", c.Name())
}
