package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"github.com/jmoiron/sqlx"
)

// Every write advances a per-tenant revision in the same transaction, so
// any process sharing the database can tell a tenant's results went stale.

// bumpRevisions advances the revision of each distinct tenant
func bumpRevisions(ctx context.Context, tx *sqlx.Tx, tenants []string) error {
	slices.Sort(tenants)
	tenants = slices.Compact(tenants)

	query := tx.Rebind(`
		INSERT INTO tenant_revisions (tenant_id, revision) VALUES (?, 1)
		ON CONFLICT (tenant_id) DO UPDATE SET revision = tenant_revisions.revision + 1`)
	for _, tenant := range tenants {
		if _, err := tx.ExecContext(ctx, query, tenant); err != nil {
			return fmt.Errorf("failed to bump revision for tenant %s: %w", tenant, err)
		}
	}
	return nil
}

// bumpAllRevisions advances every known tenant, used when the index is emptied
func bumpAllRevisions(ctx context.Context, tx *sqlx.Tx) error {
	if _, err := tx.ExecContext(ctx, "UPDATE tenant_revisions SET revision = revision + 1"); err != nil {
		return fmt.Errorf("failed to bump revisions: %w", err)
	}
	return nil
}

// readRevision returns the tenant's revision, zero before its first write
func readRevision(ctx context.Context, db *sqlx.DB, f TenantFilter) (int64, error) {
	if err := f.validate(); err != nil {
		return 0, err
	}

	var rev int64
	err := db.GetContext(ctx, &rev, db.Rebind("SELECT revision FROM tenant_revisions WHERE tenant_id = ?"), f.tenant)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read revision: %w", err)
	}
	return rev, nil
}

// deleteDocuments removes rows by ID from table and bumps the owning tenants
func deleteDocuments(ctx context.Context, db *sqlx.DB, table string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query, args, err := sqlx.In("SELECT DISTINCT tenant_id FROM "+table+" WHERE id IN (?)", ids)
	if err != nil {
		return 0, fmt.Errorf("failed to build delete: %w", err)
	}
	var tenants []string
	if err := tx.SelectContext(ctx, &tenants, tx.Rebind(query), args...); err != nil {
		return 0, fmt.Errorf("failed to read document tenants: %w", err)
	}
	if len(tenants) == 0 {
		return 0, nil
	}

	query, args, err = sqlx.In("DELETE FROM "+table+" WHERE id IN (?)", ids)
	if err != nil {
		return 0, fmt.Errorf("failed to build delete: %w", err)
	}
	result, err := tx.ExecContext(ctx, tx.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete documents: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	if err := bumpRevisions(ctx, tx, tenants); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit delete: %w", err)
	}
	return int(n), nil
}
