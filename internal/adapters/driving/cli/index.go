package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kbforge-labs/kbforge-cli/internal/core/domain"
)

var (
	indexName     string
	indexIncludes []string
	indexExcludes []string
	indexJSON     bool
)

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Index a repository of documents",
	Long: `Scans a git repository and runs the full indexation pipeline on
every matching file: chunking, embedding, and graph extraction. A
single file's failure is reported and skipped.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().StringVar(&indexName, "name", "", "repository name (defaults to the directory name)")
	indexCmd.Flags().StringSliceVar(&indexIncludes, "include", nil, "doublestar patterns files must match")
	indexCmd.Flags().StringSliceVar(&indexExcludes, "exclude", nil, "doublestar patterns that skip files")
	indexCmd.Flags().BoolVar(&indexJSON, "json", false, "output the indexed documents as JSON")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	if indexerFor == nil {
		return errors.New("indexer not configured")
	}

	path := "."
	if len(args) > 0 {
		path = args[0]
	}

	indexer, _, err := indexerFor(path, RepoOptions{
		Name:     indexName,
		Includes: indexIncludes,
		Excludes: indexExcludes,
	})
	if err != nil {
		return err
	}

	docs, err := indexer.IndexRepository(cmd.Context())
	if err != nil {
		return fmt.Errorf("indexing %s: %w", path, err)
	}

	if indexJSON {
		return printJSON(cmd, indexSummary(docs))
	}

	cmd.Printf("Indexed %d documents\n", len(docs))
	for _, doc := range docs {
		cmd.Printf("  + %s\n", doc.RelativePath)
	}
	return nil
}

type indexedDocument struct {
	ID           string                `json:"id"`
	RelativePath string                `json:"relative_path"`
	Title        string                `json:"title"`
	Status       domain.DocumentStatus `json:"status"`
}

func indexSummary(docs []domain.Document) []indexedDocument {
	out := make([]indexedDocument, 0, len(docs))
	for _, doc := range docs {
		out = append(out, indexedDocument{
			ID:           doc.ID,
			RelativePath: doc.RelativePath,
			Title:        doc.Title,
			Status:       doc.Status,
		})
	}
	return out
}
