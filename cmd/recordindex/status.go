package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/recordindex/pkg/types"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index statistics",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	stats, err := a.store.Stats(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Backend:   %s\n", stats.Backend)
	fmt.Fprintf(out, "Documents: %d\n", stats.Documents)
	fmt.Fprintf(out, "Tenants:   %d\n", stats.Tenants)
	for _, t := range types.AllRecordTypes {
		if n := stats.ByType[t]; n > 0 {
			fmt.Fprintf(out, "  %-9s %d\n", t, n)
		}
	}

	want := a.indexer.Spec()
	if stats.Spec.IsZero() {
		fmt.Fprintf(out, "Embedding: none recorded (configured %s/%s, %d dims)\n", want.Provider, want.Model, want.Dimension)
		fmt.Fprintf(out, "Language:  none recorded (configured %s)\n", a.store.Language())
		return nil
	}
	fmt.Fprintf(out, "Embedding: %s/%s, %d dims\n", stats.Spec.Provider, stats.Spec.Model, stats.Spec.Dimension)
	fmt.Fprintf(out, "Language:  %s\n", stats.Language)
	if stats.Spec != want {
		fmt.Fprintf(out, "WARNING: configured embedder is %s/%s (%d dims); run reindex --migrate\n",
			want.Provider, want.Model, want.Dimension)
	}
	if stats.Language != "" && stats.Language != a.store.Language() {
		fmt.Fprintf(out, "WARNING: configured language is %s; run reindex --migrate\n", a.store.Language())
	}
	return nil
}
