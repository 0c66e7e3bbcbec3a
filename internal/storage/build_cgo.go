//go:build sqlite_vec && !purego

package storage

// Compiled with CGO and the sqlite_vec tag. Uses github.com/mattn/go-sqlite3
// with a vec_distance_cosine SQL function registered on every connection so
// vector ranking and LIMIT happen inside SQLite.
//
// Build command:
//   CGO_ENABLED=1 go build -tags "sqlite_vec sqlite_fts5" ./...

import (
	"database/sql"

	sqlite3 "github.com/mattn/go-sqlite3"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite3_recordindex"

	// VectorExtensionAvailable indicates if SQL-side cosine distance is available
	VectorExtensionAvailable = true

	// BuildMode describes the current build configuration
	BuildMode = "cgo"
)

func init() {
	sql.Register(DriverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("vec_distance_cosine", vecDistanceCosine, true)
		},
	})
}

// vecDistanceCosine returns 1 - cosine similarity of two serialized vectors
func vecDistanceCosine(a, b []byte) float64 {
	return 1 - cosineSimilarity(deserializeVector(a), deserializeVector(b))
}
