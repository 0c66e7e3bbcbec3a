// Package types provides shared type definitions for the record index.
//
// This package defines the domain types used across the normalizer, the
// index store, the hybrid searcher and the MCP surface.
//
// # Documents
//
// Document is the unit of indexing. Every source record (company, contract,
// meeting, task, page, contact) maps to exactly one Document whose ID is the
// deterministic composite of its record type and natural key:
//
//	id := types.NewDocumentID(types.RecordTask, "42") // "task_42"
//
//	doc := types.Document{
//	    ID:         id,
//	    TenantID:   "org-1",
//	    RecordType: types.RecordTask,
//	    Title:      "Buy a spaceship",
//	    Text:       "Task: Buy a spaceship\nStatus: todo",
//	}
//
// Re-indexing the same record overwrites its Document; it never duplicates it.
//
// # Tenancy
//
// Every Document belongs to exactly one tenant and that tenant never changes.
// Queries without a tenant are rejected with ErrTenantRequired.
//
// # Search Results
//
// SearchResult is the sole read shape handed to consumers:
//
//	result := types.SearchResult{
//	    ID:         "task_42",
//	    Rank:       1,
//	    Score:      0.0328,
//	    RecordType: types.RecordTask,
//	    Title:      "Buy a spaceship",
//	    Text:       doc.Text,
//	}
//
// Score is the fused RRF score, or the reranker relevance score when a
// reranker produced the ordering (see Reranked).
package types
