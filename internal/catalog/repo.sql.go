package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockyard-erp/stockyard/internal/shared"
)

// Repository persists products in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const productColumns = `id, tenant_id, name, category, expirable, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.TenantID, &p.Name, &p.Category, &p.Expirable, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrProductNotFound
	}
	return p, err
}

// Create inserts a product; the folded name carries the uniqueness constraint.
func (r *Repository) Create(ctx context.Context, tenantID int64, in ProductInput) (Product, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO products (tenant_id, name, name_folded, category, expirable)
VALUES ($1, $2, $3, $4, $5)
RETURNING `+productColumns, tenantID, in.Name, shared.Fold(in.Name), in.Category, in.Expirable)
	p, err := scanProduct(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Product{}, &DuplicateProductNameError{Name: in.Name}
		}
		return Product{}, err
	}
	return p, nil
}

// Get fetches one product.
func (r *Repository) Get(ctx context.Context, tenantID, id int64) (Product, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	return scanProduct(row)
}

// List returns products with derived stock aggregates, newest first.
func (r *Repository) List(ctx context.Context, tenantID int64, page shared.Pagination) ([]ProductSummary, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products WHERE tenant_id=$1`, tenantID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT p.id, p.tenant_id, p.name, p.category, p.expirable, p.created_at, p.updated_at,
COUNT(b.id), COALESCE(SUM(b.quantity), 0), COALESCE(SUM(b.total_cost_value), 0), COALESCE(SUM(b.total_selling_value), 0)
FROM products p
LEFT JOIN product_batches b ON b.product_id = p.id AND b.tenant_id = p.tenant_id
WHERE p.tenant_id=$1
GROUP BY p.id
ORDER BY p.created_at DESC, p.id DESC
LIMIT $2 OFFSET $3`, tenantID, page.PerPage, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	summaries := []ProductSummary{}
	for rows.Next() {
		var s ProductSummary
		if err := rows.Scan(&s.ID, &s.TenantID, &s.Name, &s.Category, &s.Expirable, &s.CreatedAt, &s.UpdatedAt,
			&s.BatchCount, &s.TotalQuantity, &s.TotalCostValue, &s.TotalSellingValue); err != nil {
			return nil, 0, err
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return summaries, total, nil
}

// Update edits name and category. The expirable flag is immutable.
func (r *Repository) Update(ctx context.Context, tenantID, id int64, in ProductInput) (Product, error) {
	row := r.pool.QueryRow(ctx, `UPDATE products
SET name=$3, name_folded=$4, category=$5, updated_at=NOW()
WHERE tenant_id=$1 AND id=$2
RETURNING `+productColumns, tenantID, id, in.Name, shared.Fold(in.Name), in.Category)
	p, err := scanProduct(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Product{}, &DuplicateProductNameError{Name: in.Name}
		}
		return Product{}, err
	}
	return p, nil
}

// Delete removes a product without batches. The batch check is left to the
// foreign key so a purchase landing between a pre-check and the DELETE cannot
// slip through; the 23503 violation maps to ErrProductReferenced.
func (r *Repository) Delete(ctx context.Context, tenantID, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM products WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	if err != nil {
		return deleteError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

func deleteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return ErrProductReferenced
	}
	return err
}
