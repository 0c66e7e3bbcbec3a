package types

import "errors"

// Domain errors
var (
	// ErrTenantRequired is returned when a query or document has no tenant scope.
	// Callers must fail closed on this error.
	ErrTenantRequired = errors.New("tenant scope is required")

	ErrInvalidDocumentID = errors.New("invalid document ID")
	ErrUnknownRecordType = errors.New("unknown record type")
	ErrEmptyText         = errors.New("document text cannot be empty")
	ErrMissingEmbedding  = errors.New("document embedding is required")

	// ErrDimensionMismatch is returned when an embedding does not match the
	// dimension recorded for the index. Recovering requires a full reindex.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrTenantImmutable is returned when an upsert would move an existing
	// document to a different tenant.
	ErrTenantImmutable = errors.New("document tenant cannot change")
)

// Search result errors
var (
	ErrInvalidRank = errors.New("rank must be >= 1")
)
