package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kbforge-labs/kbforge-cli/internal/core/domain"
	"github.com/kbforge-labs/kbforge-cli/internal/core/ports/driving"
)

var (
	searchMode      string
	searchLimit     int
	searchThreshold float64
	searchDomain    string
	searchTags      []string
	searchJSON      bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the knowledge base",
	Long: `Answers a query with ranked document references. Hybrid mode fuses
vector similarity and knowledge graph matches; vector and graph modes
run a single path.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringVarP(&searchMode, "mode", "m", "hybrid", "retrieval mode: vector, graph, or hybrid")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "maximum number of results")
	searchCmd.Flags().Float64Var(&searchThreshold, "threshold", 0, "minimum vector similarity score (0 disables)")
	searchCmd.Flags().StringVar(&searchDomain, "domain", "", "restrict to a business domain")
	searchCmd.Flags().StringSliceVar(&searchTags, "tag", nil, "restrict to documents carrying any of these tags")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	if retriever == nil {
		return errors.New("retrieval service not configured")
	}

	mode, err := domain.ParseRetrievalMode(searchMode)
	if err != nil {
		return err
	}

	refs, err := retriever.Retrieve(cmd.Context(), args[0], driving.RetrievalOptions{
		Mode:           mode,
		Limit:          searchLimit,
		ScoreThreshold: searchThreshold,
		Filters: domain.SearchFilters{
			Domain: searchDomain,
			Tags:   searchTags,
		},
	})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		return printJSON(cmd, refs)
	}
	printReferences(cmd, refs)
	return nil
}

func printReferences(cmd *cobra.Command, refs []domain.DocumentReference) {
	if len(refs) == 0 {
		cmd.Println("No results found.")
		return
	}

	for i, ref := range refs {
		title := ref.Title
		if ref.SectionTitle != "" {
			title += " › " + ref.SectionTitle
		}
		cmd.Printf("  [%d] %s (%.2f, %s)\n", i+1, title, ref.Score, ref.RetrievalMode)
		cmd.Printf("      %s\n", ref.URL)
		if ref.Snippet != "" {
			cmd.Printf("      %s\n", ref.Snippet)
		}
		cmd.Println()
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
