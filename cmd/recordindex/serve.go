package main

import (
	"github.com/spf13/cobra"

	"github.com/dshills/recordindex/internal/mcp"
	"github.com/dshills/recordindex/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server on stdio",
	Long: `Start the Model Context Protocol server. It speaks JSON-RPC over
stdin/stdout; logs go to stderr.

MCP client configuration:
  {
    "mcpServers": {
      "recordindex": {
        "command": "/path/to/recordindex",
        "args": ["serve"]
      }
    }
  }`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	server, err := mcp.NewServer(a.store, a.searcher, a.indexer, a.logger)
	if err != nil {
		return err
	}

	a.logger.Info().
		Str("version", version).
		Str("build_mode", storage.BuildMode).
		Str("sqlite_driver", storage.DriverName).
		Bool("vector_extension", storage.VectorExtensionAvailable).
		Msg("recordindex starting")

	err = server.Serve(cmd.Context())
	a.logger.Info().Msg("server stopped")
	return err
}
