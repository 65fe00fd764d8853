package file

import "github.com/kbforge-labs/kbforge-cli/internal/core/ports/driven"

// Config keys.
const (
	KeyDataDir            = "data_dir"
	KeyEmbeddingProvider  = "embedding.provider"
	KeyEmbeddingModel     = "embedding.model"
	KeyEmbeddingBaseURL   = "embedding.base_url"
	KeyEmbeddingAPIKey    = "embedding.api_key"
	KeyGraphEnabled       = "graph.enabled"
	KeyChunkMaxSize       = "chunking.max_size"
	KeyChunkOverlap       = "chunking.overlap"
	KeyScannerIncludes    = "scanner.includes"
	KeyScannerExcludes    = "scanner.excludes"
	KeyRetrievalThreshold = "retrieval.threshold"
)

// Settings is the typed configuration view consumed by the
// composition root.
type Settings struct {
	// DataDir holds the SQLite database (default: ~/.kbforge/data).
	DataDir string

	// EmbeddingProvider selects the embedder: "ollama", "openai", or
	// "" to disable vector search.
	EmbeddingProvider string
	EmbeddingModel    string
	EmbeddingBaseURL  string
	EmbeddingAPIKey   string

	// GraphEnabled toggles graph extraction and graph search.
	GraphEnabled bool

	// ChunkMaxSize and ChunkOverlap tune the markdown chunker; zero
	// means chunker defaults.
	ChunkMaxSize int
	ChunkOverlap int

	// ScannerIncludes and ScannerExcludes are doublestar patterns for
	// repository scans. Empty includes default to markdown files.
	ScannerIncludes []string
	ScannerExcludes []string
}

// DefaultIncludes are the scan patterns used when none are configured.
var DefaultIncludes = []string{"**/*.md", "**/*.markdown"}

// LoadSettings projects a ConfigStore into typed settings, applying
// defaults for unset keys. GraphEnabled defaults to true; it turns
// off only when the key is present and false.
func LoadSettings(store driven.ConfigStore) Settings {
	settings := Settings{
		DataDir:           store.GetString(KeyDataDir),
		EmbeddingProvider: store.GetString(KeyEmbeddingProvider),
		EmbeddingModel:    store.GetString(KeyEmbeddingModel),
		EmbeddingBaseURL:  store.GetString(KeyEmbeddingBaseURL),
		EmbeddingAPIKey:   store.GetString(KeyEmbeddingAPIKey),
		GraphEnabled:      true,
		ChunkMaxSize:      store.GetInt(KeyChunkMaxSize),
		ChunkOverlap:      store.GetInt(KeyChunkOverlap),
		ScannerIncludes:   store.GetStringSlice(KeyScannerIncludes),
		ScannerExcludes:   store.GetStringSlice(KeyScannerExcludes),
	}

	if enabled, ok := store.Get(KeyGraphEnabled); ok {
		if b, isBool := enabled.(bool); isBool {
			settings.GraphEnabled = b
		}
	}
	if len(settings.ScannerIncludes) == 0 {
		settings.ScannerIncludes = DefaultIncludes
	}
	return settings
}
