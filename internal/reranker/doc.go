// Package reranker provides the optional second-stage relevance pass.
//
// A Reranker scores each (query, passage) pair with a cross-encoder and
// returns the passages reordered by relevance. Callers treat any error,
// including ErrUnavailable from Noop, as a signal to keep the first-stage
// order.
package reranker
