// Package mcp implements the Model Context Protocol (MCP) server for the
// record index.
//
// The server exposes five tools to assistants and chat backends:
//   - search_records: Hybrid search over one tenant's records
//   - get_context: Multi-query retrieval rendered as a prompt-ready text block
//   - index_record: Change sync for a created or updated source record
//   - remove_record: Change sync for a deleted source record
//   - index_status: Index statistics and embedding-space health
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// The server is started via the serve command:
//
//	recordindex serve
//
// # Tenancy
//
// search_records, get_context and remove_record require tenant_id. A call
// without it fails with ErrorCodeTenantRequired before any storage access.
// index_record takes the tenant from the record body and rejects records
// without one.
//
// # Tool: search_records
//
//	Request:
//	{
//	  "name": "search_records",
//	  "arguments": {
//	    "tenant_id": "org-1",
//	    "query": "spaceship purchase",
//	    "k": 5,
//	    "record_types": ["task", "contract"],
//	    "mode": "hybrid"
//	  }
//	}
//
//	Response:
//	{
//	  "total_results": 1,
//	  "reranked": false,
//	  "results": [
//	    {"rank": 1, "id": "task_42", "record_type": "task",
//	     "title": "Buy a spaceship", "score": 0.0328, "text": "Task: Buy a spaceship..."}
//	  ]
//	}
//
// # Tool: get_context
//
// Runs every query, merges hits by document ID, and returns:
//
//	TASK: Buy a spaceship (Score: 0.91)
//	Task: Buy a spaceship
//	Status: todo
//
// or NoContextMessage when nothing matched.
//
// # Tool: index_record / remove_record
//
// Index writes are best effort. A failed write is reported in the result
// ("indexed": false) and logged; it never implies the source record was
// rolled back.
//
// # Error Handling
//
// Handler errors are MCPError values carrying a JSON-RPC style code:
//
//	-32602 invalid parameters
//	-32603 internal error
//	-32004 empty query
//	-32005 tenant required
//	-32006 index write failed
package mcp
