// Package cli implements the kbforge command tree. Commands talk to
// the core through the driving ports; wiring happens in bootstrap.go
// and tests swap the package-level service variables for stubs.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/kbforge-labs/kbforge-cli/internal/core/ports/driven"
	"github.com/kbforge-labs/kbforge-cli/internal/core/ports/driving"
	"github.com/kbforge-labs/kbforge-cli/internal/logger"
)

// version is set at build time via -ldflags.
var version = "dev"

var verbose bool

// Services wired at startup. Nil means the concern is not configured
// and the commands that need it return an error.
var (
	retriever    driving.Retriever
	graphQuery   driving.GraphQueryService
	statusSource driving.Indexer

	// indexerFor builds an indexer bound to a repository path and
	// returns the scanner it uses, for watch mode.
	indexerFor func(path string, opts RepoOptions) (driving.Indexer, driven.RepoScanner, error)
)

// RepoOptions carries per-invocation repository settings.
type RepoOptions struct {
	Name     string
	Includes []string
	Excludes []string
}

var rootCmd = &cobra.Command{
	Use:   "kbforge",
	Short: "Document knowledge base with hybrid retrieval",
	Long: `kbforge indexes structured documents into a searchable knowledge
base and answers queries with precise document references, fusing
vector similarity and knowledge graph traversal.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
