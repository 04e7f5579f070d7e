// Command scigraph loads scientific metadata into a Neo4j or Memgraph graph.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{}
	rootCmd := &cobra.Command{
		Use:   "scigraph",
		Short: "Ingest dataset, publication and citation metadata into a property graph",
		Long: `scigraph reads per-dataset catalog documents, the science keyword
taxonomy, publication metadata and a citation graph, and writes them as
typed nodes and relationships. Every step is idempotent and can be rerun.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.teardown()
		},
	}
	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to the TOML config file")
	rootCmd.PersistentFlags().BoolVar(&a.dryRun, "dry-run", false, "Write to an in-memory graph instead of the configured store")

	rootCmd.AddCommand(
		runCommand(a),
		constraintsCommand(a),
		keywordsCommand(a),
		datasetsCommand(a),
		publicationsCommand(a),
		citationsCommand(a),
		researchCommand(a),
		harvestCommand(a),
		serveCommand(a),
	)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
