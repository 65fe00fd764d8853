package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kbforge-labs/kbforge-cli/internal/core/domain"
	"github.com/kbforge-labs/kbforge-cli/internal/core/ports/driven"
	"github.com/kbforge-labs/kbforge-cli/internal/core/ports/driving"
	"github.com/kbforge-labs/kbforge-cli/internal/logger"
)

var (
	syncSince string
	syncWatch bool
	syncJSON  bool
)

var syncCmd = &cobra.Command{
	Use:   "sync [path]",
	Short: "Incrementally sync a repository",
	Long: `Diffs the repository against a known revision and reconciles the
knowledge base: deleted files cascade out of every store, unchanged
files (same content hash) are skipped, the rest are reindexed.

With --watch, keeps running and re-syncs on filesystem changes.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSync,
}

func init() {
	syncCmd.Flags().StringVar(&syncSince, "since", "", "revision to diff against (required)")
	syncCmd.Flags().BoolVar(&syncWatch, "watch", false, "keep watching for changes and re-sync")
	syncCmd.Flags().BoolVar(&syncJSON, "json", false, "output the sync summary as JSON")
	_ = syncCmd.MarkFlagRequired("since")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	if indexerFor == nil {
		return errors.New("indexer not configured")
	}

	path := "."
	if len(args) > 0 {
		path = args[0]
	}

	indexer, scanner, err := indexerFor(path, RepoOptions{})
	if err != nil {
		return err
	}

	summary, err := indexer.SyncRepository(cmd.Context(), syncSince)
	if err != nil {
		return fmt.Errorf("syncing %s: %w", path, err)
	}
	if err := printSyncSummary(cmd, summary); err != nil {
		return err
	}

	if !syncWatch {
		return nil
	}
	return watchAndSync(cmd, indexer, scanner, summary.CurrentRevision)
}

// watchAndSync re-runs an incremental sync from the last seen
// revision each time the scanner reports changes. The scanner
// debounces event bursts into batches.
func watchAndSync(cmd *cobra.Command, indexer driving.Indexer, scanner driven.RepoScanner, lastRevision string) error {
	batches, err := scanner.Watch(cmd.Context())
	if err != nil {
		return fmt.Errorf("starting watch: %w", err)
	}

	cmd.Println("Watching for changes (ctrl-c to stop)...")
	for batch := range batches {
		logger.Debug("Change batch: %v", batch)
		summary, err := indexer.SyncRepository(cmd.Context(), lastRevision)
		if err != nil {
			logger.Warn("Sync failed: %v", err)
			continue
		}
		if err := printSyncSummary(cmd, summary); err != nil {
			return err
		}
		lastRevision = summary.CurrentRevision
	}
	return nil
}

func printSyncSummary(cmd *cobra.Command, summary *domain.SyncSummary) error {
	if syncJSON {
		return printJSON(cmd, summary)
	}
	cmd.Printf("Sync complete: %d indexed, %d deleted, %d skipped (revision %s)\n",
		summary.Indexed, summary.Deleted, summary.Skipped, summary.CurrentRevision)
	for _, e := range summary.Errors {
		cmd.Printf("  ! %s\n", e)
	}
	return nil
}
