package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/recordindex/internal/indexer"
)

var syncStrict bool

var syncCmd = &cobra.Command{
	Use:   "sync [events.jsonl|-]",
	Short: "Apply record change events to the index",
	Long: `Reads one change event per line and applies it to the index:

  {"kind":"created","type":"task","record":{"id":"1","tenant_id":"A","title":"..."}}
  {"kind":"updated","type":"task","record":{"id":"1","tenant_id":"A","title":"..."}}
  {"kind":"deleted","type":"task","key":"1","tenant_id":"A"}

Index writes are best effort: a failed event is logged and counted, and
the run continues. With no argument, or "-", events are read from stdin.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSync,
}

func init() {
	syncCmd.Flags().BoolVar(&syncStrict, "strict", false, "exit non-zero when any event failed or was malformed")
	rootCmd.AddCommand(syncCmd)
}

// openInput opens path, or stdin for "" and "-"
func openInput(cmd *cobra.Command, args []string) (io.ReadCloser, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	f, err := os.Open(args[0])
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	return f, nil
}

func runSync(cmd *cobra.Command, args []string) error {
	in, err := openInput(cmd, args)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	a, err := openApp(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	stats, err := indexer.NewDispatcher(a.indexer, a.logger).Run(cmd.Context(), in)
	fmt.Fprintf(cmd.OutOrStdout(), "events: %d applied: %d failed: %d malformed: %d\n",
		stats.Events, stats.Applied, stats.Failed, stats.Malformed)
	if err != nil {
		return err
	}

	if syncStrict && stats.Failed+stats.Malformed > 0 {
		return fmt.Errorf("%d of %d events were not applied", stats.Failed+stats.Malformed, stats.Events)
	}
	return nil
}
