package domain

import (
	"regexp"
	"strings"
)

// RetrievalMode selects which search paths a query runs.
type RetrievalMode string

// Retrieval modes.
const (
	ModeVector RetrievalMode = "vector"
	ModeGraph  RetrievalMode = "graph"
	ModeHybrid RetrievalMode = "hybrid"
)

// ParseRetrievalMode validates a mode string.
func ParseRetrievalMode(s string) (RetrievalMode, error) {
	switch RetrievalMode(s) {
	case ModeVector, ModeGraph, ModeHybrid:
		return RetrievalMode(s), nil
	default:
		return "", NewValidationError("unknown retrieval mode: " + s)
	}
}

// DocumentReference is the retrieval result type: a precise pointer
// into a source document rather than raw text.
type DocumentReference struct {
	URL           string         `json:"url"`
	DocumentPath  string         `json:"document_path"`
	Title         string         `json:"title"`
	SectionTitle  string         `json:"section_title,omitempty"`
	SectionAnchor string         `json:"section_anchor,omitempty"`
	Score         float64        `json:"score"`
	Snippet       string         `json:"snippet,omitempty"`
	Domain        string         `json:"domain,omitempty"`
	Tags          []string       `json:"tags,omitempty"`
	ChunkType     string         `json:"chunk_type,omitempty"`
	RetrievalMode RetrievalMode  `json:"retrieval_mode"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// SearchFilters restrict vector search candidates.
type SearchFilters struct {
	// Domain restricts to documents tagged with this domain.
	Domain string

	// Tags restricts to documents carrying any of these tags.
	Tags []string

	// DocumentIDs restricts to specific documents.
	DocumentIDs []string
}

// SyncSummary reports the outcome of an incremental repository sync.
type SyncSummary struct {
	Indexed         int      `json:"indexed"`
	Deleted         int      `json:"deleted"`
	Skipped         int      `json:"skipped"`
	Errors          []string `json:"errors,omitempty"`
	CurrentRevision string   `json:"current_revision"`
}

var anchorStrip = regexp.MustCompile(`[^a-z0-9 -]`)

// HeadingAnchor derives a GitHub-style section anchor from a heading
// path: the innermost heading lowercased, punctuation stripped,
// spaces replaced with dashes.
func HeadingAnchor(headingPath []string) string {
	if len(headingPath) == 0 {
		return ""
	}
	h := strings.ToLower(headingPath[len(headingPath)-1])
	h = anchorStrip.ReplaceAllString(h, "")
	h = strings.TrimSpace(h)
	return strings.ReplaceAll(h, " ", "-")
}

// ExtractSnippet returns the first meaningful line of content, capped
// at maxLen characters. Headings and blank lines are skipped.
func ExtractSnippet(content string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = 200
	}
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if len(line) > maxLen {
			return line[:maxLen] + "..."
		}
		return line
	}
	return ""
}
