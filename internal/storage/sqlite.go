package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/dshills/recordindex/pkg/types"
)

// SQLiteStore implements Store on SQLite with an FTS5 index for lexical
// queries and float32 BLOB embeddings for vector queries
type SQLiteStore struct {
	db   *sqlx.DB
	lang analyzer
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sqlx.DB, error) {
	db, err := sqlx.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Single writer; also keeps one shared database for :memory:
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// NewSQLiteStore opens (or creates) the index database at dbPath. Text is
// stemmed for language before it reaches FTS5; empty means DefaultLanguage.
func NewSQLiteStore(ctx context.Context, dbPath, language string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = ":memory:"
	}
	lang, err := newAnalyzer(language)
	if err != nil {
		return nil, err
	}

	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := applyMigrations(ctx, db, sqliteDialect); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStore{db: db, lang: lang}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// documentRow is the documents table as scanned by sqlx
type documentRow struct {
	ID         string `db:"id"`
	TenantID   string `db:"tenant_id"`
	RecordType string `db:"record_type"`
	Title      string `db:"title"`
	Text       string `db:"text"`
	TitleTerms string `db:"title_terms"`
	TextTerms  string `db:"text_terms"`
	Embedding  []byte `db:"embedding"`
	Dimension  int    `db:"dimension"`
	UpdatedAt  int64  `db:"updated_at"`
}

func (r *documentRow) toDocument() *types.Document {
	return &types.Document{
		ID:         r.ID,
		TenantID:   r.TenantID,
		RecordType: types.RecordType(r.RecordType),
		Title:      r.Title,
		Text:       r.Text,
		Embedding:  deserializeVector(r.Embedding),
		UpdatedAt:  time.UnixMilli(r.UpdatedAt).UTC(),
	}
}

// Upsert inserts or replaces one document
func (s *SQLiteStore) Upsert(ctx context.Context, doc *types.Document) error {
	return s.UpsertBatch(ctx, []*types.Document{doc})
}

// UpsertBatch writes all documents in a single transaction
func (s *SQLiteStore) UpsertBatch(ctx context.Context, docs []*types.Document) error {
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
		if err := s.upsertWithQuerier(ctx, tx, spec, doc); err != nil {
			return err
		}
		tenants = append(tenants, doc.TenantID)
	}

	if err := bumpRevisions(ctx, tx, tenants); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) upsertWithQuerier(ctx context.Context, q sqlx.ExtContext, spec EmbeddingSpec, doc *types.Document) error {
	if err := checkDocument(doc, spec); err != nil {
		return err
	}

	var existingTenant string
	err := sqlx.GetContext(ctx, q, &existingTenant, "SELECT tenant_id FROM documents WHERE id = ?", doc.ID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("failed to read document %s: %w", doc.ID, err)
	case existingTenant != doc.TenantID:
		return fmt.Errorf("%w: %s belongs to another tenant", types.ErrTenantImmutable, doc.ID)
	}

	updatedAt := doc.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	query := `
		INSERT INTO documents (id, tenant_id, record_type, title, text, title_terms, text_terms, embedding, dimension, updated_at)
		VALUES (:id, :tenant_id, :record_type, :title, :text, :title_terms, :text_terms, :embedding, :dimension, :updated_at)
		ON CONFLICT(id) DO UPDATE SET
			record_type = excluded.record_type,
			title = excluded.title,
			text = excluded.text,
			title_terms = excluded.title_terms,
			text_terms = excluded.text_terms,
			embedding = excluded.embedding,
			dimension = excluded.dimension,
			updated_at = excluded.updated_at
	`
	row := documentRow{
		ID:         doc.ID,
		TenantID:   doc.TenantID,
		RecordType: string(doc.RecordType),
		Title:      doc.Title,
		Text:       doc.Text,
		TitleTerms: s.lang.indexText(doc.Title),
		TextTerms:  s.lang.indexText(doc.Text),
		Embedding:  serializeVector(doc.Embedding),
		Dimension:  len(doc.Embedding),
		UpdatedAt:  updatedAt.UnixMilli(),
	}
	if _, err := sqlx.NamedExecContext(ctx, q, query, row); err != nil {
		return fmt.Errorf("failed to upsert document %s: %w", doc.ID, err)
	}
	return nil
}

// checkDocument validates a document against the recorded embedding spec
func checkDocument(doc *types.Document, spec EmbeddingSpec) error {
	if err := doc.Validate(); err != nil {
		return fmt.Errorf("document %s: %w", doc.ID, err)
	}
	if spec.IsZero() {
		return ErrNoEmbeddingSpec
	}
	if len(doc.Embedding) != spec.Dimension {
		return fmt.Errorf("%w: document %s has %d, index has %d",
			types.ErrDimensionMismatch, doc.ID, len(doc.Embedding), spec.Dimension)
	}
	return nil
}

// Delete removes documents by ID and returns how many existed
func (s *SQLiteStore) Delete(ctx context.Context, ids []string) (int, error) {
	return deleteDocuments(ctx, s.db, "documents", ids)
}

// Get returns one document within the tenant scope
func (s *SQLiteStore) Get(ctx context.Context, f TenantFilter, id string) (*types.Document, error) {
	cond, args, err := f.where("")
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, tenant_id, record_type, title, text, embedding, dimension, updated_at
		FROM documents
		WHERE id = ? AND ` + cond
	args = append([]any{id}, args...)

	var row documentRow
	err = s.db.GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s: %w", id, err)
	}
	return row.toDocument(), nil
}

// VectorQuery ranks the tenant's documents by cosine similarity to vector
func (s *SQLiteStore) VectorQuery(ctx context.Context, vector []float32, k int, f TenantFilter) ([]Hit, error) {
	if k <= 0 {
		return []Hit{}, nil
	}
	return searchVector(ctx, s.db, vector, k, f)
}

// LexicalQuery ranks the tenant's documents by BM25 over title and text
func (s *SQLiteStore) LexicalQuery(ctx context.Context, query string, k int, f TenantFilter) ([]Hit, error) {
	if k <= 0 {
		return []Hit{}, nil
	}
	return searchText(ctx, s.db, s.lang.ftsMatch(query), k, f)
}

// Revision returns the tenant's change counter
func (s *SQLiteStore) Revision(ctx context.Context, f TenantFilter) (int64, error) {
	return readRevision(ctx, s.db, f)
}

// Language returns the configured lexical language
func (s *SQLiteStore) Language() string {
	return s.lang.language
}

// IndexedLanguage returns the language recorded with the embedding spec
func (s *SQLiteStore) IndexedLanguage(ctx context.Context) (string, error) {
	return indexedLanguage(ctx, s.db, "SELECT language FROM index_meta WHERE singleton = 1")
}

// Count returns the number of documents matching the filter
func (s *SQLiteStore) Count(ctx context.Context, f TenantFilter) (int, error) {
	cond, args, err := f.where("")
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM documents WHERE "+cond, args...); err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return n, nil
}

// Stats summarises the index across tenants
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	stats, err := collectStats(ctx, s.db, "documents")
	if err != nil {
		return nil, err
	}
	stats.Backend = DriverSQLite + "/" + BuildMode
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

func collectStats(ctx context.Context, db *sqlx.DB, table string) (*Stats, error) {
	stats := &Stats{ByType: make(map[types.RecordType]int)}

	if err := db.GetContext(ctx, &stats.Tenants, "SELECT COUNT(DISTINCT tenant_id) FROM "+table); err != nil {
		return nil, fmt.Errorf("failed to count tenants: %w", err)
	}

	var rows []struct {
		RecordType string `db:"record_type"`
		N          int    `db:"n"`
	}
	if err := db.SelectContext(ctx, &rows, "SELECT record_type, COUNT(*) AS n FROM "+table+" GROUP BY record_type"); err != nil {
		return nil, fmt.Errorf("failed to count record types: %w", err)
	}
	for _, r := range rows {
		stats.ByType[types.RecordType(r.RecordType)] = r.N
		stats.Documents += r.N
	}
	return stats, nil
}

// Meta returns the recorded embedding spec
func (s *SQLiteStore) Meta(ctx context.Context) (EmbeddingSpec, error) {
	return s.metaWithQuerier(ctx, s.db)
}

func (s *SQLiteStore) metaWithQuerier(ctx context.Context, q sqlx.QueryerContext) (EmbeddingSpec, error) {
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

// ResetDimension truncates the index and records the new spec and the
// configured language in one transaction
func (s *SQLiteStore) ResetDimension(ctx context.Context, spec EmbeddingSpec) error {
	if spec.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", types.ErrDimensionMismatch)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM documents"); err != nil {
		return fmt.Errorf("failed to truncate documents: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO index_meta (singleton, provider, model, dimension, language, updated_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(singleton) DO UPDATE SET
			provider = excluded.provider,
			model = excluded.model,
			dimension = excluded.dimension,
			language = excluded.language,
			updated_at = excluded.updated_at
	`, spec.Provider, spec.Model, spec.Dimension, s.lang.language, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to record index meta: %w", err)
	}

	if err := bumpAllRevisions(ctx, tx); err != nil {
		return err
	}

	return tx.Commit()
}

// searchVector performs vector similarity search using cosine similarity
func searchVector(ctx context.Context, db *sqlx.DB, queryVector []float32, limit int, f TenantFilter) ([]Hit, error) {
	cond, args, err := f.where("d")
	if err != nil {
		return nil, err
	}

	// SQL-side distance when the cosine function is registered on the driver
	if VectorExtensionAvailable {
		return searchVectorOptimized(ctx, db, queryVector, limit, cond, args)
	}
	return searchVectorFallback(ctx, db, queryVector, limit, cond, args)
}

func searchVectorOptimized(ctx context.Context, db *sqlx.DB, queryVector []float32, limit int, cond string, args []any) ([]Hit, error) {
	query := `
		SELECT d.id, d.tenant_id, d.record_type, d.title, d.text,
			1.0 - vec_distance_cosine(d.embedding, ?) AS score
		FROM documents d
		WHERE d.dimension = ? AND ` + cond + `
		ORDER BY score DESC, d.id
		LIMIT ?`
	params := append([]any{serializeVector(queryVector), len(queryVector)}, args...)
	params = append(params, limit)

	hits := make([]Hit, 0, limit)
	if err := db.SelectContext(ctx, &hits, query, params...); err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", err)
	}
	return rankHits(hits), nil
}

// searchVectorFallback scores tenant rows in Go for builds without the SQL cosine function
func searchVectorFallback(ctx context.Context, db *sqlx.DB, queryVector []float32, limit int, cond string, args []any) ([]Hit, error) {
	query := `
		SELECT d.id, d.tenant_id, d.record_type, d.title, d.text, d.embedding
		FROM documents d
		WHERE d.dimension = ? AND ` + cond
	params := append([]any{len(queryVector)}, args...)

	rows, err := db.QueryxContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var hits []Hit
	for rows.Next() {
		var row struct {
			Hit
			Embedding []byte `db:"embedding"`
		}
		if err := rows.StructScan(&row); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		row.Hit.Score = cosineSimilarity(queryVector, deserializeVector(row.Embedding))
		hits = append(hits, row.Hit)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortHits(hits)
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return rankHits(hits), nil
}

// searchText performs BM25 full-text search using FTS5. match is an
// expression over stemmed terms.
func searchText(ctx context.Context, db *sqlx.DB, match string, limit int, f TenantFilter) ([]Hit, error) {
	cond, args, err := f.where("d")
	if err != nil {
		return nil, err
	}

	if match == "" {
		return []Hit{}, nil
	}

	// bm25() is lower-is-better; negate so higher scores rank first. Title
	// matches weigh double.
	sqlQuery := `
		SELECT d.id, d.tenant_id, d.record_type, d.title, d.text,
			-bm25(documents_fts, 2.0, 1.0) AS score
		FROM documents_fts
		INNER JOIN documents d ON d.seq = documents_fts.rowid
		WHERE documents_fts MATCH ? AND ` + cond + `
		ORDER BY score DESC, d.id
		LIMIT ?`
	params := append([]any{match}, args...)
	params = append(params, limit)

	hits := make([]Hit, 0, limit)
	if err := db.SelectContext(ctx, &hits, sqlQuery, params...); err != nil {
		return nil, fmt.Errorf("failed to execute FTS search: %w", err)
	}
	return rankHits(hits), nil
}

// sortHits orders by score descending with ID as a deterministic tie-break
func sortHits(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
}
