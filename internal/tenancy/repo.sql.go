package tenancy

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists tenants and their directory in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const tenantColumns = `id, slug, name, contact, created_at`

func scanTenant(row pgx.Row) (Tenant, error) {
	var t Tenant
	err := row.Scan(&t.ID, &t.Slug, &t.Name, &t.Contact, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Tenant{}, ErrTenantNotFound
	}
	return t, err
}

func (r *Repository) CreateTenant(ctx context.Context, in TenantInput) (Tenant, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO tenants (slug, name, contact)
VALUES ($1,$2,$3) RETURNING `+tenantColumns, in.Slug, in.Name, in.Contact)
	t, err := scanTenant(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Tenant{}, &DuplicateSlugError{Slug: in.Slug}
		}
		return Tenant{}, err
	}
	return t, nil
}

func (r *Repository) GetTenant(ctx context.Context, id int64) (Tenant, error) {
	return scanTenant(r.pool.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id=$1`, id))
}

func (r *Repository) GetTenantBySlug(ctx context.Context, slug string) (Tenant, error) {
	return scanTenant(r.pool.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE slug=$1`, slug))
}

func (r *Repository) ListTenants(ctx context.Context) ([]Tenant, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+tenantColumns+` FROM tenants ORDER BY slug ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	tenants := []Tenant{}
	for rows.Next() {
		var t Tenant
		if err := rows.Scan(&t.ID, &t.Slug, &t.Name, &t.Contact, &t.CreatedAt); err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

func (r *Repository) UpdateTenant(ctx context.Context, id int64, in TenantInput) (Tenant, error) {
	row := r.pool.QueryRow(ctx, `UPDATE tenants SET name=$2, contact=$3 WHERE id=$1 RETURNING `+tenantColumns, id, in.Name, in.Contact)
	return scanTenant(row)
}

func (r *Repository) AddDirectoryEntry(ctx context.Context, e DirectoryEntry) (DirectoryEntry, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO tenant_directory (tenant_id, name, contact)
VALUES ($1,$2,$3) RETURNING id`, e.TenantID, e.Name, e.Contact).Scan(&e.ID)
	return e, err
}

func (r *Repository) ListDirectoryEntries(ctx context.Context, tenantID int64) ([]DirectoryEntry, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, tenant_id, name, contact
FROM tenant_directory WHERE tenant_id=$1 ORDER BY id ASC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := []DirectoryEntry{}
	for rows.Next() {
		var e DirectoryEntry
		if err := rows.Scan(&e.ID, &e.TenantID, &e.Name, &e.Contact); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ListSharedEntries returns the tenant's mirrored shared-partition rows.
func (r *Repository) ListSharedEntries(ctx context.Context, tenantID int64) ([]SharedEntry, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, tenant_id, source_id, name, contact, synced_at
FROM shared_directory WHERE tenant_id=$1 ORDER BY source_id ASC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := []SharedEntry{}
	for rows.Next() {
		var e SharedEntry
		if err := rows.Scan(&e.ID, &e.TenantID, &e.SourceID, &e.Name, &e.Contact, &e.SyncedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// UpsertSharedEntries mirrors directory entries into the shared partition.
// The (tenant_id, source_id) constraint makes re-runs overwrite, not duplicate.
func (r *Repository) UpsertSharedEntries(ctx context.Context, tenantID int64, entries []DirectoryEntry) (int, error) {
	synced := 0
	for _, e := range entries {
		tag, err := r.pool.Exec(ctx, `INSERT INTO shared_directory (tenant_id, source_id, name, contact, synced_at)
VALUES ($1,$2,$3,$4,NOW())
ON CONFLICT (tenant_id, source_id)
DO UPDATE SET name=EXCLUDED.name, contact=EXCLUDED.contact, synced_at=NOW()`,
			tenantID, e.ID, e.Name, e.Contact)
		if err != nil {
			return synced, err
		}
		synced += int(tag.RowsAffected())
	}
	return synced, nil
}
