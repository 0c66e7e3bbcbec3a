package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/recordindex/internal/searcher"
	"github.com/dshills/recordindex/pkg/types"
)

var (
	searchTenant   string
	searchK        int
	searchMode     string
	searchTypes    []string
	searchJSON     bool
	searchNoRerank bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search one tenant's records",
	Long: `Performs hybrid search over a tenant's indexed records.
Combines full-text and semantic (vector) search with reciprocal rank fusion,
then applies the configured reranker.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

var contextCmd = &cobra.Command{
	Use:   "context [query...]",
	Short: "Print the merged context block for several queries",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runContext,
}

func init() {
	for _, c := range []*cobra.Command{searchCmd, contextCmd} {
		c.Flags().StringVarP(&searchTenant, "tenant", "t", "", "tenant to search (required)")
		c.Flags().IntVar(&searchK, "k", 0, "maximum number of results (default from config)")
		_ = c.MarkFlagRequired("tenant")
		rootCmd.AddCommand(c)
	}
	searchCmd.Flags().StringVarP(&searchMode, "mode", "m", string(searcher.SearchModeHybrid), "hybrid, vector or keyword")
	searchCmd.Flags().StringSliceVar(&searchTypes, "types", nil, "restrict to record types (comma separated)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	searchCmd.Flags().BoolVar(&searchNoRerank, "no-rerank", false, "return fused order without reranking")
}

func runSearch(cmd *cobra.Command, args []string) error {
	mode, err := searcher.ParseMode(searchMode)
	if err != nil {
		return err
	}
	recordTypes := make([]types.RecordType, 0, len(searchTypes))
	for _, name := range searchTypes {
		t, err := types.ParseRecordType(name)
		if err != nil {
			return err
		}
		recordTypes = append(recordTypes, t)
	}

	a, err := openApp(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	resp, err := a.searcher.Search(cmd.Context(), searcher.SearchRequest{
		Query:       args[0],
		K:           searchK,
		TenantID:    searchTenant,
		RecordTypes: recordTypes,
		Mode:        mode,
		NoRerank:    searchNoRerank,
	})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if searchJSON {
		data, err := json.MarshalIndent(resp.Results, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal results: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	if len(resp.Results) == 0 {
		fmt.Fprintln(out, "No results found.")
		return nil
	}

	fmt.Fprintln(out, "Results:")
	fmt.Fprintln(out)
	for _, r := range resp.Results {
		fmt.Fprintf(out, "  [%d] %s (%.4f)\n", r.Rank, r.Title, r.Score)
		fmt.Fprintf(out, "      %s\n", r.ID)
		fmt.Fprintln(out)
	}
	fmt.Fprintf(out, "%d results in %s (%s", resp.TotalResults, resp.Duration.Round(time.Microsecond), resp.SearchMode)
	if resp.Reranked {
		fmt.Fprint(out, ", reranked")
	}
	fmt.Fprintln(out, ")")
	return nil
}

func runContext(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	resp, err := a.searcher.SearchMany(cmd.Context(), searcher.SearchManyRequest{
		Queries:  args,
		K:        searchK,
		TenantID: searchTenant,
	})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), searcher.FormatContext(resp.Results))
	return nil
}
