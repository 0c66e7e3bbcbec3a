package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/recordindex/internal/indexer"
	"github.com/dshills/recordindex/internal/records"
	"github.com/dshills/recordindex/internal/searcher"
	"github.com/dshills/recordindex/internal/storage"
	"github.com/dshills/recordindex/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams    = -32602 // Invalid method parameters
	ErrorCodeInternalError    = -32603 // Internal JSON-RPC error
	ErrorCodeEmptyQuery       = -32004 // Query parameter is empty
	ErrorCodeTenantRequired   = -32005 // No tenant scope on a tenant-scoped tool
	ErrorCodeIndexWriteFailed = -32006 // Index write failed; the source record is unaffected
)

type resultJSON struct {
	Rank       int     `json:"rank"`
	ID         string  `json:"id"`
	RecordType string  `json:"record_type"`
	Title      string  `json:"title"`
	Score      float64 `json:"score"`
	Reranked   bool    `json:"reranked,omitempty"`
	Text       string  `json:"text"`
}

// handleSearchRecords handles the search_records tool invocation
func (s *Server) handleSearchRecords(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	tenant, err := requireTenant(args)
	if err != nil {
		return nil, err
	}

	query := strings.TrimSpace(getStringDefault(args, "query", ""))
	if query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	cfg := s.searcher.Config()
	k := getIntDefault(args, "k", cfg.DefaultK)
	if k < 1 || k > cfg.MaxK {
		return nil, newMCPError(ErrorCodeInvalidParams, fmt.Sprintf("k must be between 1 and %d", cfg.MaxK), map[string]interface{}{
			"param": "k",
			"value": k,
		})
	}

	mode, err := searcher.ParseMode(getStringDefault(args, "mode", string(searcher.SearchModeHybrid)))
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid mode", map[string]interface{}{
			"param":   "mode",
			"reason":  err.Error(),
			"allowed": []string{"hybrid", "vector", "keyword"},
		})
	}

	recordTypes, err := getRecordTypes(args)
	if err != nil {
		return nil, err
	}

	resp, err := s.searcher.Search(ctx, searcher.SearchRequest{
		Query:       query,
		K:           k,
		TenantID:    tenant,
		RecordTypes: recordTypes,
		Mode:        mode,
		UseCache:    true,
		NoRerank:    !getBoolDefault(args, "rerank", true),
	})
	if err != nil {
		return nil, toolError("search failed", err)
	}

	results := make([]resultJSON, len(resp.Results))
	for i, r := range resp.Results {
		results[i] = resultJSON{
			Rank:       r.Rank,
			ID:         r.ID,
			RecordType: string(r.RecordType),
			Title:      r.Title,
			Score:      r.Score,
			Reranked:   r.Reranked,
			Text:       r.Text,
		}
	}

	response := map[string]interface{}{
		"query":          query,
		"mode":           string(resp.SearchMode),
		"total_results":  resp.TotalResults,
		"reranked":       resp.Reranked,
		"cache_hit":      resp.CacheHit,
		"vector_results": resp.VectorResults,
		"text_results":   resp.TextResults,
		"duration_ms":    resp.Duration.Milliseconds(),
		"results":        results,
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetContext handles the get_context tool invocation
func (s *Server) handleGetContext(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	tenant, err := requireTenant(args)
	if err != nil {
		return nil, err
	}

	queries := getStringSlice(args, "queries")
	if len(queries) == 0 {
		return nil, newMCPError(ErrorCodeEmptyQuery, "queries must contain at least one query", map[string]interface{}{
			"param":  "queries",
			"reason": "missing or empty",
		})
	}

	cfg := s.searcher.Config()
	k := getIntDefault(args, "k", cfg.DefaultK)
	if k < 1 || k > cfg.MaxK {
		return nil, newMCPError(ErrorCodeInvalidParams, fmt.Sprintf("k must be between 1 and %d", cfg.MaxK), map[string]interface{}{
			"param": "k",
			"value": k,
		})
	}

	resp, err := s.searcher.SearchMany(ctx, searcher.SearchManyRequest{
		Queries:  queries,
		K:        k,
		TenantID: tenant,
	})
	if err != nil {
		return nil, toolError("search failed", err)
	}

	return mcp.NewToolResultText(searcher.FormatContext(resp.Results)), nil
}

// handleIndexRecord handles the index_record tool invocation
func (s *Server) handleIndexRecord(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	recordType := getStringDefault(args, "type", "")
	if recordType == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "type parameter is required", map[string]interface{}{
			"param":  "type",
			"reason": "missing or empty",
		})
	}

	raw, err := rawRecord(args["record"])
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "record must be a JSON object", map[string]interface{}{
			"param":  "record",
			"reason": err.Error(),
		})
	}

	kind := indexer.EventKind(getStringDefault(args, "event", string(indexer.EventUpdated)))
	if kind != indexer.EventCreated && kind != indexer.EventUpdated {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid event", map[string]interface{}{
			"param":   "event",
			"value":   kind,
			"allowed": []string{string(indexer.EventCreated), string(indexer.EventUpdated)},
		})
	}

	res, err := s.dispatcher.Dispatch(ctx, indexer.Event{Kind: kind, Type: recordType, Record: raw})
	if err != nil {
		return nil, toolError("invalid record", err)
	}

	response := map[string]interface{}{
		"document_id": res.DocumentID,
		"indexed":     res.OK(),
	}
	if !res.OK() {
		response["error"] = res.Err.Error()
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleRemoveRecord handles the remove_record tool invocation
func (s *Server) handleRemoveRecord(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	tenant, err := requireTenant(args)
	if err != nil {
		return nil, err
	}

	recordType, err := types.ParseRecordType(getStringDefault(args, "type", ""))
	if err != nil {
		return nil, toolError("invalid type", err)
	}

	key := strings.TrimSpace(getStringDefault(args, "key", ""))
	if key == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "key parameter is required", map[string]interface{}{
			"param":  "key",
			"reason": "missing or empty",
		})
	}

	ref := records.Ref{Type: recordType, Key: key, TenantID: tenant}
	response := map[string]interface{}{
		"document_id": ref.DocumentID(),
		"removed":     false,
	}

	// Only documents visible to the caller's tenant may be removed
	if _, err := s.store.Get(ctx, storage.MustTenantFilter(tenant), ref.DocumentID()); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return mcp.NewToolResultText(formatJSON(response)), nil
		}
		return nil, toolError("lookup failed", err)
	}

	res := s.indexer.OnDeleted(ctx, ref)
	if !res.OK() {
		return nil, newMCPError(ErrorCodeIndexWriteFailed, res.Err.Error(), map[string]interface{}{
			"document_id": ref.DocumentID(),
		})
	}

	response["removed"] = true
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleIndexStatus handles the index_status tool invocation
func (s *Server) handleIndexStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})

	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, toolError("failed to get status", err)
	}

	byType := make(map[string]int, len(stats.ByType))
	for t, n := range stats.ByType {
		byType[string(t)] = n
	}

	health := map[string]interface{}{
		"embedding_space_matches": true,
		"cache_entries":           s.searcher.CacheLen(),
	}
	if want := s.indexer.Spec(); !stats.Spec.IsZero() && stats.Spec != want {
		health["embedding_space_matches"] = false
		health["configured_embedding"] = fmt.Sprintf("%s/%s (%d)", want.Provider, want.Model, want.Dimension)
	}
	health["language_matches"] = stats.Language == "" || stats.Language == s.store.Language()

	response := map[string]interface{}{
		"backend":  stats.Backend,
		"language": s.store.Language(),
		"statistics": map[string]interface{}{
			"documents": stats.Documents,
			"tenants":   stats.Tenants,
			"by_type":   byType,
		},
		"embedding": map[string]interface{}{
			"provider":  stats.Spec.Provider,
			"model":     stats.Spec.Model,
			"dimension": stats.Spec.Dimension,
		},
		"health": health,
	}

	if tenant := strings.TrimSpace(getStringDefault(args, "tenant_id", "")); tenant != "" {
		n, err := s.store.Count(ctx, storage.MustTenantFilter(tenant))
		if err != nil {
			return nil, toolError("failed to count tenant documents", err)
		}
		response["tenant"] = map[string]interface{}{
			"tenant_id": tenant,
			"documents": n,
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
	cause   error
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

func (e *MCPError) Unwrap() error {
	return e.cause
}

// toolError maps a domain error onto an MCP error code
func toolError(message string, err error) error {
	code := ErrorCodeInternalError
	switch {
	case errors.Is(err, types.ErrTenantRequired):
		code = ErrorCodeTenantRequired
	case errors.Is(err, types.ErrUnknownRecordType),
		errors.Is(err, types.ErrEmptyText),
		errors.Is(err, searcher.ErrInvalidMode),
		errors.Is(err, indexer.ErrInvalidEvent):
		code = ErrorCodeInvalidParams
	}
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    map[string]interface{}{"error": err.Error()},
		cause:   err,
	}
}

// requireTenant extracts tenant_id; every tenant-scoped tool fails closed without it
func requireTenant(args map[string]interface{}) (string, error) {
	tenant := strings.TrimSpace(getStringDefault(args, "tenant_id", ""))
	if tenant == "" {
		return "", &MCPError{
			Code:    ErrorCodeTenantRequired,
			Message: "tenant_id parameter is required",
			Data: map[string]interface{}{
				"param":  "tenant_id",
				"reason": "missing or empty",
			},
			cause: types.ErrTenantRequired,
		}
	}
	return tenant, nil
}

func getRecordTypes(args map[string]interface{}) ([]types.RecordType, error) {
	names := getStringSlice(args, "record_types")
	out := make([]types.RecordType, 0, len(names))
	for _, name := range names {
		t, err := types.ParseRecordType(name)
		if err != nil {
			return nil, newMCPError(ErrorCodeInvalidParams, "invalid record_types", map[string]interface{}{
				"param":   "record_types",
				"value":   name,
				"allowed": recordTypeNames(),
			})
		}
		out = append(out, t)
	}
	return out, nil
}

// rawRecord accepts the record either as an object or as a JSON string
func rawRecord(v interface{}) (json.RawMessage, error) {
	switch r := v.(type) {
	case map[string]interface{}:
		return json.Marshal(r)
	case string:
		if !json.Valid([]byte(r)) {
			return nil, errors.New("invalid JSON")
		}
		return json.RawMessage(r), nil
	case nil:
		return nil, errors.New("missing")
	default:
		return nil, fmt.Errorf("unexpected %T", v)
	}
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// getStringSlice extracts a string array, dropping blank and non-string items
func getStringSlice(args map[string]interface{}, key string) []string {
	var out []string
	switch vals := args[key].(type) {
	case []interface{}:
		for _, v := range vals {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
	case []string:
		for _, s := range vals {
			if strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
