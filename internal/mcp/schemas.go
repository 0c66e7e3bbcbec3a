package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/recordindex/pkg/types"
)

func recordTypeNames() []string {
	names := make([]string, len(types.AllRecordTypes))
	for i, t := range types.AllRecordTypes {
		names[i] = string(t)
	}
	return names
}

func tenantProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Tenant (organization) whose records are searched. Required; requests without it are rejected.",
	}
}

// searchRecordsTool returns the tool definition for search_records
func searchRecordsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_records",
		Description: "Search one tenant's business records with hybrid semantic and keyword retrieval",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"tenant_id": tenantProperty(),
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query (natural language or keywords)",
				},
				"k": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     5,
					"minimum":     1,
					"maximum":     100,
				},
				"record_types": map[string]interface{}{
					"type":        "array",
					"description": "Restrict results to these record types",
					"items": map[string]interface{}{
						"type": "string",
						"enum": recordTypeNames(),
					},
				},
				"mode": map[string]interface{}{
					"type":        "string",
					"description": "Search strategy: hybrid (vector + keyword fused with RRF), vector (semantic only), or keyword (full-text only)",
					"enum":        []string{"hybrid", "vector", "keyword"},
					"default":     "hybrid",
				},
				"rerank": map[string]interface{}{
					"type":        "boolean",
					"description": "Apply the configured reranker to the fused candidates",
					"default":     true,
				},
			},
			Required: []string{"tenant_id", "query"},
		},
	}
}

// getContextTool returns the tool definition for get_context
func getContextTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_context",
		Description: "Run several queries for a tenant and return the merged records as a plain-text context block",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"tenant_id": tenantProperty(),
				"queries": map[string]interface{}{
					"type":        "array",
					"description": "Search queries, e.g. one per topic in a user question",
					"items": map[string]interface{}{
						"type": "string",
					},
				},
				"k": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of records in the context (1-100)",
					"default":     5,
					"minimum":     1,
					"maximum":     100,
				},
			},
			Required: []string{"tenant_id", "queries"},
		},
	}
}

// indexRecordTool returns the tool definition for index_record
func indexRecordTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_record",
		Description: "Index or re-index one source record after it was created or updated",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"type": map[string]interface{}{
					"type":        "string",
					"description": "Record type",
					"enum":        recordTypeNames(),
				},
				"record": map[string]interface{}{
					"type":        "object",
					"description": "The record as stored by the source application; must carry id and tenant_id",
				},
				"event": map[string]interface{}{
					"type":        "string",
					"description": "Which mutation happened at the source",
					"enum":        []string{"created", "updated"},
					"default":     "updated",
				},
			},
			Required: []string{"type", "record"},
		},
	}
}

// removeRecordTool returns the tool definition for remove_record
func removeRecordTool() mcp.Tool {
	return mcp.Tool{
		Name:        "remove_record",
		Description: "Remove a deleted source record from a tenant's index",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"tenant_id": tenantProperty(),
				"type": map[string]interface{}{
					"type":        "string",
					"description": "Record type",
					"enum":        recordTypeNames(),
				},
				"key": map[string]interface{}{
					"type":        "string",
					"description": "The record's natural key at the source",
				},
			},
			Required: []string{"tenant_id", "type", "key"},
		},
	}
}

// indexStatusTool returns the tool definition for index_status
func indexStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_status",
		Description: "Query index statistics, optionally for a single tenant",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"tenant_id": map[string]interface{}{
					"type":        "string",
					"description": "Report the document count for this tenant as well",
				},
			},
		},
	}
}
