package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kbforge-labs/kbforge-cli/internal/core/domain"
)

var (
	graphKind         string
	graphLimit        int
	graphInspectDepth int
	graphPathDepth    int
	graphJSON         bool
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Inspect the knowledge graph",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Root PersistentPreRun does not chain automatically.
		rootCmd.PersistentPreRun(cmd, args)
		if graphQuery == nil {
			return errors.New("graph store not configured")
		}
		return nil
	},
}

var graphLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List graph nodes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		nodes, err := graphQuery.List(cmd.Context(), domain.NodeKind(graphKind), graphLimit)
		if err != nil {
			return err
		}
		if graphJSON {
			return printJSON(cmd, nodes)
		}
		for _, node := range nodes {
			cmd.Printf("  %-40s %-8s %.2f  %s\n", node.ID, node.Kind, node.Confidence, node.Name)
		}
		return nil
	},
}

var graphInspectCmd = &cobra.Command{
	Use:   "inspect [node-id]",
	Short: "Show a node with its relationships",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		detail, err := graphQuery.Inspect(cmd.Context(), args[0], graphInspectDepth)
		if err != nil {
			return err
		}
		if graphJSON {
			return printJSON(cmd, detail)
		}
		cmd.Printf("%s (%s, confidence %.2f)\n", detail.Node.ID, detail.Node.Kind, detail.Node.Confidence)
		if detail.Node.Description != "" {
			cmd.Printf("  %s\n", detail.Node.Description)
		}
		for _, rel := range detail.Relationships {
			cmd.Printf("  %s %s %s (%.2f)\n", rel.Direction, rel.Type, rel.RelatedNode, rel.Confidence)
		}
		for _, neighbor := range detail.Neighborhood {
			cmd.Printf("  ~ %s\n", neighbor.ID)
		}
		return nil
	},
}

var graphPathCmd = &cobra.Command{
	Use:   "path [from-id] [to-id]",
	Short: "Find the shortest path between two nodes",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := graphQuery.Path(cmd.Context(), args[0], args[1], graphPathDepth)
		if err != nil {
			return err
		}
		if graphJSON {
			return printJSON(cmd, path)
		}
		if path == nil {
			cmd.Println("No path found.")
			return nil
		}
		for i, id := range path.NodeIDs {
			if i > 0 {
				cmd.Print(" -> ")
			}
			cmd.Print(id)
		}
		cmd.Printf("\n(%d hops)\n", path.Length)
		return nil
	},
}

var graphImpactCmd = &cobra.Command{
	Use:   "impact [doc-id]",
	Short: "List nodes extracted from a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		nodes, err := graphQuery.Impact(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if graphJSON {
			return printJSON(cmd, nodes)
		}
		for _, node := range nodes {
			cmd.Printf("  %-40s %-8s %-10s %.2f\n", node.NodeID, node.Kind, node.Role, node.Confidence)
		}
		return nil
	},
}

var graphProvenanceCmd = &cobra.Command{
	Use:   "provenance [node-id]",
	Short: "List documents that contributed to a node",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		records, err := graphQuery.Provenance(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if graphJSON {
			return printJSON(cmd, records)
		}
		for _, record := range records {
			cmd.Printf("  %-36s %-10s %.2f  %s\n", record.DocID, record.Role, record.Confidence, record.Path)
		}
		return nil
	},
}

var graphStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show graph counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		stats, err := graphQuery.Stats(cmd.Context())
		if err != nil {
			return err
		}
		if graphJSON {
			return printJSON(cmd, stats)
		}
		cmd.Printf("Documents: %d\nEntities:  %d\nConcepts:  %d\nEvents:    %d\nEdges:     %d\n",
			stats.Documents, stats.Entities, stats.Concepts, stats.Events, stats.Edges)
		return nil
	},
}

var graphDeleteCmd = &cobra.Command{
	Use:   "delete [doc-id]",
	Short: "Cascade-delete a document's graph contribution",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := graphQuery.Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		cmd.Printf("Deleted graph data for document %s\n", args[0])
		return nil
	},
}

var graphQueryCmd = &cobra.Command{
	Use:   "query [sql]",
	Short: "Run a read-only query against the graph backend",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rows, err := graphQuery.RawQuery(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("query failed: %w", err)
		}
		return printJSON(cmd, rows)
	},
}

func init() {
	graphCmd.PersistentFlags().BoolVar(&graphJSON, "json", false, "output as JSON")
	graphLsCmd.Flags().StringVarP(&graphKind, "kind", "k", "", "filter by node kind (Entity, Concept, Event)")
	graphLsCmd.Flags().IntVarP(&graphLimit, "limit", "n", 50, "maximum nodes to list")
	graphInspectCmd.Flags().IntVarP(&graphInspectDepth, "depth", "d", 0, "include neighborhood up to this depth")
	graphPathCmd.Flags().IntVarP(&graphPathDepth, "depth", "d", 5, "maximum path length")

	graphCmd.AddCommand(graphLsCmd, graphInspectCmd, graphPathCmd, graphImpactCmd,
		graphProvenanceCmd, graphStatsCmd, graphDeleteCmd, graphQueryCmd)
	rootCmd.AddCommand(graphCmd)
}
