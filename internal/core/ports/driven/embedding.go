package driven

import "context"

// Embedder generates vector embeddings from text.
// This is an optional service - when nil, vector search is disabled.
//
// Implementations may include:
//   - OpenAI (text-embedding-3-small, text-embedding-3-large)
//   - Ollama (nomic-embed-text, all-minilm)
//   - Local models via inference servers
type Embedder interface {
	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, aligned to
	// input order. More efficient than calling Embed in a loop.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector size (e.g., 768, 1536).
	// This must match the VectorIndex configuration.
	Dimensions() int

	// ModelName returns the name of the embedding model in use.
	ModelName() string

	// Ping validates the service is reachable with a lightweight
	// request. Used at startup readiness checks.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}
