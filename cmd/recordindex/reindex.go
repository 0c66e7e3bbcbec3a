package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/recordindex/internal/indexer"
)

var (
	reindexForce   bool
	reindexMigrate bool
	reindexTenant  string
)

const maxReportedErrors = 5

var reindexCmd = &cobra.Command{
	Use:   "reindex [entities.jsonl|-]",
	Short: "Rebuild the index from a full export of source records",
	Long: `Reads one record per line and indexes it:

  {"type":"company","record":{"id":"1","tenant_id":"A","name":"Acme"}}

Records whose content is unchanged are skipped unless --force is given.
Records without a tenant are skipped.

Changing the embedding provider, model or dimension requires --migrate,
which empties the index and rebuilds it in the new embedding space.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReindex,
}

func init() {
	reindexCmd.Flags().BoolVarP(&reindexForce, "force", "f", false, "re-embed records whose content is unchanged")
	reindexCmd.Flags().BoolVar(&reindexMigrate, "migrate", false, "truncate the index and rebuild it for the configured embedder")
	reindexCmd.Flags().StringVarP(&reindexTenant, "tenant", "t", "", "only reindex this tenant's records")
	reindexCmd.MarkFlagsMutuallyExclusive("migrate", "tenant")
	rootCmd.AddCommand(reindexCmd)
}

func runReindex(cmd *cobra.Command, args []string) error {
	in, err := openInput(cmd, args)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	a, err := openApp(cmd.Context(), !reindexMigrate)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	src := indexer.NewJSONLSource(in)

	var stats *indexer.Statistics
	if reindexMigrate {
		stats, err = a.indexer.MigrateDimension(cmd.Context(), src)
	} else {
		stats, err = a.indexer.Reindex(cmd.Context(), src, indexer.ReindexOptions{
			Force:  reindexForce,
			Tenant: reindexTenant,
		})
	}
	if stats != nil {
		printStatistics(cmd, stats)
	}
	return err
}

func printStatistics(cmd *cobra.Command, stats *indexer.Statistics) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "indexed: %d skipped: %d failed: %d in %s\n",
		stats.Indexed, stats.Skipped, stats.Failed, stats.Duration.Round(time.Millisecond))

	for i, msg := range stats.ErrorMessages {
		if i == maxReportedErrors {
			fmt.Fprintf(out, "  ... and %d more\n", len(stats.ErrorMessages)-maxReportedErrors)
			break
		}
		fmt.Fprintf(out, "  %s\n", msg)
	}
}
