package domain

import "time"

// DocumentStatus tracks a document through the indexation pipeline.
type DocumentStatus string

// Document lifecycle states.
const (
	StatusPending    DocumentStatus = "pending"
	StatusProcessing DocumentStatus = "processing"
	StatusIndexed    DocumentStatus = "indexed"
	StatusFailed     DocumentStatus = "failed"
)

// Document represents an indexed document with metadata.
// It is owned by the indexation pipeline and mutated only through
// pipeline steps (status transitions, hash and timestamp updates).
type Document struct {
	// ID is the unique identifier for the document.
	ID string

	// ExternalID is a stable key derived from repo name and relative
	// path, used to match files across sync runs.
	ExternalID string

	// Title is the human-readable title.
	Title string

	// Content is the full text content before chunking.
	Content string

	// ContentHash is the SHA-256 hash of Content, used to skip
	// unchanged files during sync.
	ContentHash string

	// Status is the current pipeline state.
	Status DocumentStatus

	// SourcePath is the absolute path of the source file.
	SourcePath string

	// RelativePath is the path within the repository.
	RelativePath string

	// RepoName identifies the repository the document came from.
	RepoName string

	// GitCommit is the commit the document was read at.
	GitCommit string

	// GitRemoteURL is the repository remote, used for URL resolution.
	GitRemoteURL string

	// Domain is an optional business domain tag from frontmatter.
	Domain string

	// Tags are optional labels from frontmatter.
	Tags []string

	// MimeType is the source content type.
	MimeType string

	// Metadata contains arbitrary key-value pairs.
	Metadata map[string]any

	// CreatedAt is when the document was first indexed.
	CreatedAt time.Time

	// UpdatedAt is when the document was last updated.
	UpdatedAt time.Time

	// IndexedAt is when the document last reached StatusIndexed.
	IndexedAt time.Time
}

// ChunkType tags the kind of content a chunk holds.
type ChunkType string

// Chunk content types.
const (
	ChunkTypeSection   ChunkType = "section"
	ChunkTypeTable     ChunkType = "table"
	ChunkTypeCodeBlock ChunkType = "code_block"
	ChunkTypeGraphNode ChunkType = "graph_node"
)

// Chunk represents a searchable unit within a document.
// Chunks are created by a Chunker and immutable once persisted,
// except for the derived section anchor.
type Chunk struct {
	// ID is the unique identifier for the chunk.
	ID string

	// DocumentID links to the parent Document.
	DocumentID string

	// Content is the text content of this chunk.
	Content string

	// Sequence is the ordinal position within the document.
	Sequence int

	// HeadingPath is the ordered list of ancestor heading titles.
	HeadingPath []string

	// SectionAnchor locates the chunk within its source document.
	// Derived from HeadingPath when empty.
	SectionAnchor string

	// ChunkType tags the kind of content.
	ChunkType ChunkType

	// StartOffset and EndOffset are byte offsets into the document
	// content, when the chunker tracks them.
	StartOffset int
	EndOffset   int

	// Embedding is the vector representation for semantic search.
	Embedding []float32

	// Metadata contains chunk-specific key-value pairs.
	Metadata map[string]any
}

// SectionTitle returns the innermost heading of the chunk, or empty.
func (c Chunk) SectionTitle() string {
	if len(c.HeadingPath) == 0 {
		return ""
	}
	return c.HeadingPath[len(c.HeadingPath)-1]
}
