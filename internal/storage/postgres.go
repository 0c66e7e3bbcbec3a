package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/pgvector/pgvector-go"

	"github.com/dshills/recordindex/pkg/types"
)

// PostgresStore implements Store on PostgreSQL with pgvector for vector
// queries and a generated tsvector column for lexical queries
type PostgresStore struct {
	db   *sqlx.DB
	lang analyzer
}

func postgresDialect(textConfig string) dialect {
	return dialect{
		name:              DriverPostgres,
		versionTableQuery: "SELECT table_name FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = 'schema_version'",
		migrations: []Migration{
			{
				Version: "1.0.0",
				Up:      schemaVersionTable + postgresV1Up(textConfig),
				Down:    postgresV1Down,
			},
		},
	}
}

// tsvColumn defines the generated tsvector for a language from the
// allow-list in languages
func tsvColumn(textConfig string) string {
	cfg := "'" + textConfig + "'::regconfig"
	return `tsv tsvector GENERATED ALWAYS AS (
        setweight(to_tsvector(` + cfg + `, coalesce(title, '')), 'A') ||
        setweight(to_tsvector(` + cfg + `, text), 'B')
    ) STORED`
}

func postgresV1Up(textConfig string) string {
	return `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS record_documents (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    record_type TEXT NOT NULL,
    title TEXT NOT NULL DEFAULT '',
    text TEXT NOT NULL,
    embedding vector NOT NULL,
    ` + tsvColumn(textConfig) + `,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_record_documents_tenant ON record_documents (tenant_id, record_type);
CREATE INDEX IF NOT EXISTS idx_record_documents_tsv ON record_documents USING GIN (tsv);

CREATE TABLE IF NOT EXISTS index_meta (
    singleton INTEGER PRIMARY KEY CHECK (singleton = 1),
    provider TEXT NOT NULL,
    model TEXT NOT NULL,
    dimension INTEGER NOT NULL,
    text_search_config TEXT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS tenant_revisions (
    tenant_id TEXT PRIMARY KEY,
    revision BIGINT NOT NULL
);
`
}

const postgresV1Down = `
DROP TABLE IF EXISTS record_documents;
DROP TABLE IF EXISTS index_meta;
DROP TABLE IF EXISTS tenant_revisions;
DROP TABLE IF EXISTS schema_version;
`

// NewPostgresStore connects to PostgreSQL and applies pending migrations.
// language selects the text search configuration; empty means
// DefaultLanguage. The generated column keeps the language it was created
// with until ResetDimension rebuilds it.
func NewPostgresStore(ctx context.Context, dsn, language string) (*PostgresStore, error) {
	lang, err := newAnalyzer(language)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.ConnectContext(ctx, "pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if err := applyMigrations(ctx, db, postgresDialect(lang.language)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &PostgresStore{db: db, lang: lang}, nil
}

// Close closes the connection pool
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Upsert(ctx context.Context, doc *types.Document) error {
	return s.UpsertBatch(ctx, []*types.Document{doc})
}

func (s *PostgresStore) UpsertBatch(ctx context.Context, docs []*types.Document) error {
	if len(docs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	spec, err := s.metaWithQuerier(ctx, tx)
	if err != nil {
		return err
	}

	tenants := make([]string, 0, len(docs))
	for _, doc := range docs {
		if err := checkDocument(doc, spec); err != nil {
			return err
		}
		tenants = append(tenants, doc.TenantID)

		updatedAt := doc.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = time.Now()
		}

		// The WHERE clause turns a cross-tenant overwrite into a no-op, detected below
		result, err := tx.ExecContext(ctx, `
			INSERT INTO record_documents (id, tenant_id, record_type, title, text, embedding, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO UPDATE SET
				record_type = EXCLUDED.record_type,
				title = EXCLUDED.title,
				text = EXCLUDED.text,
				embedding = EXCLUDED.embedding,
				updated_at = EXCLUDED.updated_at
			WHERE record_documents.tenant_id = EXCLUDED.tenant_id
		`, doc.ID, doc.TenantID, string(doc.RecordType), doc.Title, doc.Text,
			pgvector.NewVector(doc.Embedding), updatedAt)
		if err != nil {
			return fmt.Errorf("failed to upsert document %s: %w", doc.ID, err)
		}
		if n, err := result.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("%w: %s belongs to another tenant", types.ErrTenantImmutable, doc.ID)
		}
	}

	if err := bumpRevisions(ctx, tx, tenants); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PostgresStore) Delete(ctx context.Context, ids []string) (int, error) {
	return deleteDocuments(ctx, s.db, "record_documents", ids)
}

type pgDocumentRow struct {
	ID         string          `db:"id"`
	TenantID   string          `db:"tenant_id"`
	RecordType string          `db:"record_type"`
	Title      string          `db:"title"`
	Text       string          `db:"text"`
	Embedding  pgvector.Vector `db:"embedding"`
	UpdatedAt  time.Time       `db:"updated_at"`
}

func (s *PostgresStore) Get(ctx context.Context, f TenantFilter, id string) (*types.Document, error) {
	cond, args, err := f.where("")
	if err != nil {
		return nil, err
	}

	query := s.db.Rebind(`
		SELECT id, tenant_id, record_type, title, text, embedding, updated_at
		FROM record_documents
		WHERE id = ? AND ` + cond)

	var row pgDocumentRow
	err = s.db.GetContext(ctx, &row, query, append([]any{id}, args...)...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s: %w", id, err)
	}

	return &types.Document{
		ID:         row.ID,
		TenantID:   row.TenantID,
		RecordType: types.RecordType(row.RecordType),
		Title:      row.Title,
		Text:       row.Text,
		Embedding:  row.Embedding.Slice(),
		UpdatedAt:  row.UpdatedAt.UTC(),
	}, nil
}

// VectorQuery ranks by cosine distance; the HNSW index serves the ORDER BY
func (s *PostgresStore) VectorQuery(ctx context.Context, vector []float32, k int, f TenantFilter) ([]Hit, error) {
	if k <= 0 {
		return []Hit{}, nil
	}
	cond, args, err := f.where("")
	if err != nil {
		return nil, err
	}

	query := s.db.Rebind(`
		SELECT id, tenant_id, record_type, title, text, 1 - (embedding <=> ?) AS score
		FROM record_documents
		WHERE ` + cond + `
		ORDER BY embedding <=> ?, id
		LIMIT ?`)

	vec := pgvector.NewVector(vector)
	params := append([]any{vec}, args...)
	params = append(params, vec, k)

	hits := make([]Hit, 0, k)
	if err := s.db.SelectContext(ctx, &hits, query, params...); err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", err)
	}
	return rankHits(hits), nil
}

// LexicalQuery ranks by ts_rank_cd over the generated tsvector column
func (s *PostgresStore) LexicalQuery(ctx context.Context, query string, k int, f TenantFilter) ([]Hit, error) {
	if k <= 0 {
		return []Hit{}, nil
	}
	cond, args, err := f.where("d")
	if err != nil {
		return nil, err
	}

	expr := s.lang.websearch(query)
	if expr == "" {
		return []Hit{}, nil
	}

	sqlQuery := s.db.Rebind(`
		SELECT d.id, d.tenant_id, d.record_type, d.title, d.text, ts_rank_cd(d.tsv, q) AS score
		FROM record_documents d, websearch_to_tsquery(?::regconfig, ?) q
		WHERE d.tsv @@ q AND ` + cond + `
		ORDER BY score DESC, d.id
		LIMIT ?`)
	params := append([]any{s.lang.language, expr}, args...)
	params = append(params, k)

	hits := make([]Hit, 0, k)
	if err := s.db.SelectContext(ctx, &hits, sqlQuery, params...); err != nil {
		return nil, fmt.Errorf("failed to execute full-text search: %w", err)
	}
	return rankHits(hits), nil
}

func (s *PostgresStore) Count(ctx context.Context, f TenantFilter) (int, error) {
	cond, args, err := f.where("")
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.db.GetContext(ctx, &n, s.db.Rebind("SELECT COUNT(*) FROM record_documents WHERE "+cond), args...); err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
	stats, err := collectStats(ctx, s.db, "record_documents")
	if err != nil {
		return nil, err
	}
	stats.Backend = DriverPostgres
	stats.Spec, err = s.Meta(ctx)
	if err != nil {
		return nil, err
	}
	stats.Language, err = s.IndexedLanguage(ctx)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *PostgresStore) Revision(ctx context.Context, f TenantFilter) (int64, error) {
	return readRevision(ctx, s.db, f)
}

func (s *PostgresStore) Language() string {
	return s.lang.language
}

func (s *PostgresStore) IndexedLanguage(ctx context.Context) (string, error) {
	return indexedLanguage(ctx, s.db, "SELECT text_search_config FROM index_meta WHERE singleton = 1")
}

func (s *PostgresStore) Meta(ctx context.Context) (EmbeddingSpec, error) {
	return s.metaWithQuerier(ctx, s.db)
}

func (s *PostgresStore) metaWithQuerier(ctx context.Context, q sqlx.QueryerContext) (EmbeddingSpec, error) {
	var spec EmbeddingSpec
	err := sqlx.GetContext(ctx, q, &spec, "SELECT provider, model, dimension FROM index_meta WHERE singleton = 1")
	if errors.Is(err, sql.ErrNoRows) {
		return EmbeddingSpec{}, nil
	}
	if err != nil {
		return EmbeddingSpec{}, fmt.Errorf("failed to read index meta: %w", err)
	}
	return spec, nil
}

// ResetDimension truncates the table, retypes the embedding column to the
// new dimension, regenerates the tsvector column for the configured
// language and rebuilds both indexes. PostgreSQL DDL is transactional, so
// readers never observe a mixed table.
func (s *PostgresStore) ResetDimension(ctx context.Context, spec EmbeddingSpec) error {
	if spec.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", types.ErrDimensionMismatch)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	dim := strconv.Itoa(spec.Dimension)
	statements := []string{
		"DROP INDEX IF EXISTS idx_record_documents_embedding",
		"TRUNCATE record_documents",
		"ALTER TABLE record_documents ALTER COLUMN embedding TYPE vector(" + dim + ")",
		"CREATE INDEX idx_record_documents_embedding ON record_documents USING hnsw (embedding vector_cosine_ops)",
		"ALTER TABLE record_documents DROP COLUMN IF EXISTS tsv",
		"ALTER TABLE record_documents ADD COLUMN " + tsvColumn(s.lang.language),
		"CREATE INDEX idx_record_documents_tsv ON record_documents USING GIN (tsv)",
	}
	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to reset dimension: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO index_meta (singleton, provider, model, dimension, text_search_config, updated_at)
		VALUES (1, $1, $2, $3, $4, now())
		ON CONFLICT (singleton) DO UPDATE SET
			provider = EXCLUDED.provider,
			model = EXCLUDED.model,
			dimension = EXCLUDED.dimension,
			text_search_config = EXCLUDED.text_search_config,
			updated_at = EXCLUDED.updated_at
	`, spec.Provider, spec.Model, spec.Dimension, s.lang.language)
	if err != nil {
		return fmt.Errorf("failed to record index meta: %w", err)
	}

	if err := bumpAllRevisions(ctx, tx); err != nil {
		return err
	}

	return tx.Commit()
}
