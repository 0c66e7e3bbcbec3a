package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/jmoiron/sqlx"
)

// Migration represents a database schema migration
type Migration struct {
	Version string
	Up      string
	Down    string
}

// dialect holds the backend-specific parts of the migration runner
type dialect struct {
	name string
	// versionTableQuery returns a row when schema_version exists
	versionTableQuery string
	migrations        []Migration
}

// CurrentSchemaVersion tracks the database schema version
const CurrentSchemaVersion = "1.0.0"

const schemaVersionTable = `
CREATE TABLE IF NOT EXISTS schema_version (
    version TEXT PRIMARY KEY,
    applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

// sqliteMigrations contains all SQLite migrations in order
var sqliteMigrations = []Migration{
	{
		Version: "1.0.0",
		Up:      schemaVersionTable + sqliteV1Up,
		Down:    sqliteV1Down,
	},
}

const sqliteV1Up = `
CREATE TABLE IF NOT EXISTS documents (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    tenant_id TEXT NOT NULL,
    record_type TEXT NOT NULL,
    title TEXT NOT NULL DEFAULT '',
    text TEXT NOT NULL,
    title_terms TEXT NOT NULL DEFAULT '',
    text_terms TEXT NOT NULL DEFAULT '',
    embedding BLOB NOT NULL,
    dimension INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_tenant ON documents(tenant_id, record_type);

-- title_terms and text_terms hold stems produced in Go for the index language
CREATE VIRTUAL TABLE IF NOT EXISTS documents_fts USING fts5(
    title_terms, text_terms,
    content='documents',
    content_rowid='seq',
    tokenize='unicode61 remove_diacritics 2'
);

CREATE TRIGGER IF NOT EXISTS documents_ai AFTER INSERT ON documents BEGIN
    INSERT INTO documents_fts(rowid, title_terms, text_terms) VALUES (new.seq, new.title_terms, new.text_terms);
END;

CREATE TRIGGER IF NOT EXISTS documents_ad AFTER DELETE ON documents BEGIN
    INSERT INTO documents_fts(documents_fts, rowid, title_terms, text_terms) VALUES ('delete', old.seq, old.title_terms, old.text_terms);
END;

CREATE TRIGGER IF NOT EXISTS documents_au AFTER UPDATE ON documents BEGIN
    INSERT INTO documents_fts(documents_fts, rowid, title_terms, text_terms) VALUES ('delete', old.seq, old.title_terms, old.text_terms);
    INSERT INTO documents_fts(rowid, title_terms, text_terms) VALUES (new.seq, new.title_terms, new.text_terms);
END;

CREATE TABLE IF NOT EXISTS index_meta (
    singleton INTEGER PRIMARY KEY CHECK (singleton = 1),
    provider TEXT NOT NULL,
    model TEXT NOT NULL,
    dimension INTEGER NOT NULL,
    language TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS tenant_revisions (
    tenant_id TEXT PRIMARY KEY,
    revision INTEGER NOT NULL
);
`

const sqliteV1Down = `
DROP TRIGGER IF EXISTS documents_au;
DROP TRIGGER IF EXISTS documents_ad;
DROP TRIGGER IF EXISTS documents_ai;
DROP TABLE IF EXISTS documents_fts;
DROP TABLE IF EXISTS documents;
DROP TABLE IF EXISTS index_meta;
DROP TABLE IF EXISTS tenant_revisions;
DROP TABLE IF EXISTS schema_version;
`

var sqliteDialect = dialect{
	name:              DriverSQLite,
	versionTableQuery: "SELECT name FROM sqlite_master WHERE type='table' AND name='schema_version'",
	migrations:        sqliteMigrations,
}

// applyMigrations runs all pending migrations for the dialect
func applyMigrations(ctx context.Context, db *sqlx.DB, d dialect) error {
	var tableName string
	err := db.QueryRowContext(ctx, d.versionTableQuery).Scan(&tableName)

	// Default to 0.0.0 when nothing has been applied
	var currentVersion *semver.Version
	switch {
	case errors.Is(err, sql.ErrNoRows):
		currentVersion = semver.MustParse("0.0.0")
	case err != nil:
		return fmt.Errorf("failed to check schema_version table: %w", err)
	default:
		var currentVersionStr string
		err = db.QueryRowContext(ctx, "SELECT version FROM schema_version ORDER BY applied_at DESC, version DESC LIMIT 1").Scan(&currentVersionStr)
		switch {
		case errors.Is(err, sql.ErrNoRows) || (err == nil && currentVersionStr == ""):
			currentVersion = semver.MustParse("0.0.0")
		case err != nil:
			return fmt.Errorf("failed to read schema_version: %w", err)
		default:
			currentVersion, err = semver.NewVersion(currentVersionStr)
			if err != nil {
				return fmt.Errorf("invalid current schema version %s: %w", currentVersionStr, err)
			}
		}
	}

	for _, migration := range d.migrations {
		migrationVersion, err := semver.NewVersion(migration.Version)
		if err != nil {
			return fmt.Errorf("invalid migration version %s: %w", migration.Version, err)
		}

		if !currentVersion.LessThan(migrationVersion) {
			continue
		}

		tx, err := db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, migration.Up); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to apply %s migration %s: %w", d.name, migration.Version, err)
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind("INSERT INTO schema_version (version) VALUES (?)"), migration.Version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %s: %w", migration.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %s: %w", migration.Version, err)
		}

		currentVersion = migrationVersion
	}

	return nil
}

// rollbackMigration rolls back the most recent migration
func rollbackMigration(ctx context.Context, db *sqlx.DB, d dialect) error {
	var currentVersion string
	err := db.QueryRowContext(ctx, "SELECT version FROM schema_version ORDER BY applied_at DESC, version DESC LIMIT 1").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("no migrations to rollback: %w", err)
	}

	var migration *Migration
	for i := range d.migrations {
		if d.migrations[i].Version == currentVersion {
			migration = &d.migrations[i]
			break
		}
	}

	if migration == nil {
		return fmt.Errorf("migration %s not found", currentVersion)
	}

	if _, err := db.ExecContext(ctx, migration.Down); err != nil {
		return fmt.Errorf("failed to rollback migration %s: %w", currentVersion, err)
	}

	// The down script may drop schema_version itself
	_, _ = db.ExecContext(ctx, db.Rebind("DELETE FROM schema_version WHERE version = ?"), currentVersion)

	return nil
}
