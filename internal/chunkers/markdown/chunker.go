// Package markdown provides a heading-aware chunker for markdown
// documents. Sections follow the heading hierarchy: each chunk
// carries the ordered list of ancestor heading titles, so anchors and
// graph extraction can locate it in the source file.
package markdown

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/kbforge-labs/kbforge-cli/internal/core/domain"
	"github.com/kbforge-labs/kbforge-cli/internal/core/ports/driven"
)

// DefaultMaxChunkSize is the maximum characters per chunk before an
// oversized section is split.
const DefaultMaxChunkSize = 1000

// DefaultOverlap is the number of overlapping characters between
// split parts of an oversized section.
const DefaultOverlap = 200

// Ensure Chunker implements the interface.
var _ driven.Chunker = (*Chunker)(nil)

// Chunker splits markdown content into heading-scoped sections.
type Chunker struct {
	maxChunkSize int
	overlap      int
}

// Option configures the chunker.
type Option func(*Chunker)

// WithMaxChunkSize sets the maximum chunk size in characters.
func WithMaxChunkSize(size int) Option {
	return func(c *Chunker) {
		if size > 0 {
			c.maxChunkSize = size
		}
	}
}

// WithOverlap sets the overlap between split parts in characters.
func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

// New creates a markdown chunker with the given options.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		maxChunkSize: DefaultMaxChunkSize,
		overlap:      DefaultOverlap,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.overlap >= c.maxChunkSize {
		c.overlap = c.maxChunkSize / 4
	}
	return c
}

// Name returns the chunker name.
func (c *Chunker) Name() string {
	return "markdown"
}

// CanHandle reports whether the document looks like markdown.
func (c *Chunker) CanHandle(doc *domain.Document) bool {
	switch doc.MimeType {
	case "text/markdown", "text/x-markdown":
		return true
	}
	path := doc.RelativePath
	if path == "" {
		path = doc.SourcePath
	}
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".md" || ext == ".markdown"
}

// Chunk splits the document into sections by heading hierarchy.
// Frontmatter is skipped; its fields surface through document
// metadata, not chunk content. Oversized sections are split with
// overlap, preferring sentence boundaries.
func (c *Chunker) Chunk(_ context.Context, doc *domain.Document) ([]domain.Chunk, error) {
	content := stripFrontmatter(doc.Content)
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}

	var chunks []domain.Chunk
	sequence := 0
	for _, section := range parseSections(content) {
		for _, part := range c.splitBySize(section.content) {
			chunks = append(chunks, domain.Chunk{
				DocumentID:  doc.ID,
				Content:     part,
				Sequence:    sequence,
				HeadingPath: section.headingPath,
				ChunkType:   classifySection(part),
				StartOffset: section.start,
				EndOffset:   section.end,
			})
			sequence++
		}
	}
	return chunks, nil
}

type section struct {
	headingPath []string
	content     string
	start       int
	end         int
}

// parseSections walks the heading hierarchy: a heading of level N pops
// the path back to its parent before pushing itself, so each section
// carries its full ancestor chain.
func parseSections(content string) []section {
	var sections []section
	var path []string
	var levels []int
	var lines []string

	offset := 0
	sectionStart := 0

	flush := func(end int) {
		text := strings.TrimSpace(strings.Join(lines, "\n"))
		if text != "" {
			sections = append(sections, section{
				headingPath: append([]string(nil), path...),
				content:     text,
				start:       sectionStart,
				end:         end,
			})
		}
		lines = nil
	}

	for _, line := range strings.Split(content, "\n") {
		lineLen := len(line) + 1
		if level := headingLevel(line); level > 0 {
			flush(offset)

			for len(levels) > 0 && levels[len(levels)-1] >= level {
				levels = levels[:len(levels)-1]
				if len(path) > 0 {
					path = path[:len(path)-1]
				}
			}
			path = append(path, strings.TrimSpace(strings.TrimLeft(line, "#")))
			levels = append(levels, level)
			sectionStart = offset + lineLen
		} else {
			lines = append(lines, line)
		}
		offset += lineLen
	}
	flush(len(content))

	return sections
}

// headingLevel returns the ATX heading level of a line, or 0.
func headingLevel(line string) int {
	if !strings.HasPrefix(line, "#") {
		return 0
	}
	level := len(line) - len(strings.TrimLeft(line, "#"))
	if level > 6 {
		return 0
	}
	rest := line[level:]
	if rest == "" || strings.HasPrefix(rest, " ") {
		return level
	}
	return 0
}

var sentenceBreaks = []string{". ", ".\n", "! ", "!\n", "? ", "?\n"}

// splitBySize splits text into parts of at most maxChunkSize
// characters with overlap, breaking at sentence boundaries when one
// leaves room to advance past the overlap.
func (c *Chunker) splitBySize(text string) []string {
	if len(text) <= c.maxChunkSize {
		return []string{text}
	}

	var parts []string
	pos := 0
	for pos < len(text) {
		end := pos + c.maxChunkSize
		if end > len(text) {
			end = len(text)
		}

		if end < len(text) {
			searchStart := pos + c.overlap + 1
			for _, sep := range sentenceBreaks {
				if idx := strings.LastIndex(text[searchStart:end], sep); idx >= 0 {
					end = searchStart + idx + len(sep)
					break
				}
			}
		}

		if part := strings.TrimSpace(text[pos:end]); part != "" {
			parts = append(parts, part)
		}
		if end >= len(text) {
			break
		}
		pos = end - c.overlap
	}
	return parts
}

// classifySection tags a chunk by its dominant content shape.
func classifySection(text string) domain.ChunkType {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "```") {
		return domain.ChunkTypeCodeBlock
	}
	if strings.HasPrefix(trimmed, "|") {
		return domain.ChunkTypeTable
	}
	return domain.ChunkTypeSection
}

// stripFrontmatter removes a leading YAML frontmatter block.
func stripFrontmatter(content string) string {
	if !strings.HasPrefix(content, "---\n") {
		return content
	}
	rest := content[len("---\n"):]
	idx := strings.Index(rest, "\n---")
	if idx < 0 {
		return content
	}
	after := rest[idx+len("\n---"):]
	if nl := strings.Index(after, "\n"); nl >= 0 {
		return after[nl+1:]
	}
	return ""
}
