package mcp

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/dshills/recordindex/internal/indexer"
	"github.com/dshills/recordindex/internal/searcher"
	"github.com/dshills/recordindex/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "recordindex"
	// ServerVersion is the current server version
	ServerVersion = "0.1.0"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp        *server.MCPServer
	store      storage.Store
	searcher   *searcher.Searcher
	indexer    *indexer.Indexer
	dispatcher *indexer.Dispatcher
	logger     zerolog.Logger
}

// NewServer creates an MCP server over already opened components. The
// caller keeps ownership of store and closes it after Serve returns.
func NewServer(store storage.Store, srch *searcher.Searcher, idx *indexer.Indexer, logger zerolog.Logger) (*Server, error) {
	if store == nil || srch == nil || idx == nil {
		return nil, errors.New("store, searcher and indexer are required")
	}

	s := &Server{
		mcp:        server.NewMCPServer(ServerName, ServerVersion, server.WithToolCapabilities(false)),
		store:      store,
		searcher:   srch,
		indexer:    idx,
		dispatcher: indexer.NewDispatcher(idx, logger),
		logger:     logger.With().Str("component", "mcp").Logger(),
	}

	s.registerTools()
	return s, nil
}

// Serve runs the MCP server on stdio until ctx is cancelled or stdin closes
func (s *Server) Serve(ctx context.Context) error {
	return s.ServeIO(ctx, os.Stdin, os.Stdout)
}

// ServeIO runs the MCP server over the given streams
func (s *Server) ServeIO(ctx context.Context, in io.Reader, out io.Writer) error {
	s.logger.Info().Str("server", ServerName).Str("version", ServerVersion).Msg("serving MCP on stdio")
	err := server.NewStdioServer(s.mcp).Listen(ctx, in, out)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(searchRecordsTool(), s.handleSearchRecords)
	s.mcp.AddTool(getContextTool(), s.handleGetContext)
	s.mcp.AddTool(indexRecordTool(), s.handleIndexRecord)
	s.mcp.AddTool(removeRecordTool(), s.handleRemoveRecord)
	s.mcp.AddTool(indexStatusTool(), s.handleIndexStatus)
}
