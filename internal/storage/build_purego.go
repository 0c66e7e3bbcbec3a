//go:build purego || !sqlite_vec

package storage

// Compiled without CGO or with the purego tag. Uses modernc.org/sqlite,
// which ships FTS5; cosine similarity is computed in Go over the
// tenant-filtered rows.
//
// Build command:
//   CGO_ENABLED=0 go build -tags "purego" ./...

import (
	_ "modernc.org/sqlite"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite"

	// VectorExtensionAvailable indicates if SQL-side cosine distance is available
	VectorExtensionAvailable = false

	// BuildMode describes the current build configuration
	BuildMode = "purego"
)
