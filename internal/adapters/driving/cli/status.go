package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/kbforge-labs/kbforge-cli/internal/core/domain"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show knowledge base statistics",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	if statusSource == nil {
		return errors.New("indexer not configured")
	}

	status, err := statusSource.Status(cmd.Context())
	if err != nil {
		return err
	}

	if statusJSON {
		return printJSON(cmd, status)
	}

	cmd.Println("Documents:")
	for _, s := range []domain.DocumentStatus{
		domain.StatusPending, domain.StatusProcessing, domain.StatusIndexed, domain.StatusFailed,
	} {
		if count, ok := status.Documents[s]; ok {
			cmd.Printf("  %-12s %d\n", s, count)
		}
	}
	if len(status.Documents) == 0 {
		cmd.Println("  (none)")
	}

	if status.Graph != nil {
		cmd.Printf("Graph: %d entities, %d concepts, %d events, %d edges from %d documents\n",
			status.Graph.Entities, status.Graph.Concepts, status.Graph.Events,
			status.Graph.Edges, status.Graph.Documents)
	}
	return nil
}
