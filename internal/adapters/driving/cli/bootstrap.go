package cli

import (
	"fmt"

	"github.com/kbforge-labs/kbforge-cli/internal/adapters/driven/config/file"
	"github.com/kbforge-labs/kbforge-cli/internal/adapters/driven/embedding/ollama"
	"github.com/kbforge-labs/kbforge-cli/internal/adapters/driven/embedding/openai"
	gitscanner "github.com/kbforge-labs/kbforge-cli/internal/adapters/driven/scanner/git"
	"github.com/kbforge-labs/kbforge-cli/internal/adapters/driven/storage/sqlite"
	"github.com/kbforge-labs/kbforge-cli/internal/chunkers/markdown"
	"github.com/kbforge-labs/kbforge-cli/internal/chunkers/plaintext"
	"github.com/kbforge-labs/kbforge-cli/internal/core/ports/driven"
	"github.com/kbforge-labs/kbforge-cli/internal/core/ports/driving"
	"github.com/kbforge-labs/kbforge-cli/internal/core/services"
	"github.com/kbforge-labs/kbforge-cli/internal/extraction"
	"github.com/kbforge-labs/kbforge-cli/internal/logger"
)

// Bootstrap loads configuration, opens the store, and wires every
// service the commands use. Returns a cleanup function.
func Bootstrap() (func(), error) {
	configStore, err := file.NewConfigStore("")
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	settings := file.LoadSettings(configStore)

	store, err := sqlite.NewStore(settings.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	docStore := store.DocumentStore()
	vectorIndex := store.VectorIndex()

	var graphStore driven.GraphStore
	var extractor driven.GraphExtractor
	if settings.GraphEnabled {
		graphStore = store.GraphStore()
		extractor = extraction.NewRegistry(graphStore)
	}

	embedder, err := buildEmbedder(settings)
	if err != nil {
		store.Close()
		return nil, err
	}

	chunkers := []driven.Chunker{
		markdown.New(
			markdown.WithMaxChunkSize(settings.ChunkMaxSize),
			markdown.WithOverlap(settings.ChunkOverlap),
		),
		plaintext.New(),
	}

	retriever = services.NewRetrievalService(docStore, vectorIndex, embedder, graphStore)
	if graphStore != nil {
		graphQuery = services.NewGraphService(graphStore)
	}
	statusSource = services.NewIndexerService(
		docStore, vectorIndex, embedder, extractor, graphStore, chunkers, nil)

	indexerFor = func(path string, opts RepoOptions) (driving.Indexer, driven.RepoScanner, error) {
		includes := opts.Includes
		if len(includes) == 0 {
			includes = settings.ScannerIncludes
		}
		excludes := opts.Excludes
		if len(excludes) == 0 {
			excludes = settings.ScannerExcludes
		}
		scanner, err := gitscanner.New(path,
			gitscanner.WithName(opts.Name),
			gitscanner.WithIncludes(includes),
			gitscanner.WithExcludes(excludes),
		)
		if err != nil {
			return nil, nil, err
		}
		indexer := services.NewIndexerService(
			docStore, vectorIndex, embedder, extractor, graphStore, chunkers, scanner)
		return indexer, scanner, nil
	}

	cleanup := func() {
		if embedder != nil {
			embedder.Close()
		}
		if err := store.Close(); err != nil {
			logger.Warn("closing store: %v", err)
		}
	}
	return cleanup, nil
}

func buildEmbedder(settings file.Settings) (driven.Embedder, error) {
	switch settings.EmbeddingProvider {
	case "":
		logger.Debug("no embedding provider configured; vector search disabled")
		return nil, nil
	case "ollama":
		return ollama.New(ollama.Config{
			BaseURL: settings.EmbeddingBaseURL,
			Model:   settings.EmbeddingModel,
		}), nil
	case "openai":
		return openai.New(openai.Config{
			APIKey:  settings.EmbeddingAPIKey,
			BaseURL: settings.EmbeddingBaseURL,
			Model:   settings.EmbeddingModel,
		})
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", settings.EmbeddingProvider)
	}
}
