package selling

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockyard-erp/stockyard/internal/platform/db"
	"github.com/stockyard-erp/stockyard/internal/shared"
	"github.com/stockyard-erp/stockyard/internal/stock"
)

// Repository persists sales in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx      pgx.Tx
	batches *stock.TxStore
}

// WithTx executes the callback inside one document transaction. Batch
// decrements and document writes share the transaction, so a shortfall on
// line N restores the decrements of lines 1..N-1.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("selling repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx, batches: stock.NewTxStore(tx)})
	})
}

func (r *txRepository) GetBatchForUpdate(ctx context.Context, tenantID, batchID int64) (stock.BatchListing, error) {
	var l stock.BatchListing
	err := r.tx.QueryRow(ctx, `SELECT b.id, b.tenant_id, b.product_id, COALESCE(b.batch_number, ''), b.added_at, b.expiry_at,
b.quantity, b.cost_rate, b.selling_rate, b.total_cost_value, b.total_selling_value, p.name
FROM product_batches b
JOIN products p ON p.tenant_id = b.tenant_id AND p.id = b.product_id
WHERE b.tenant_id=$1 AND b.id=$2
FOR UPDATE OF b`, tenantID, batchID).
		Scan(&l.ID, &l.TenantID, &l.ProductID, &l.BatchNumber, &l.AddedAt, &l.ExpiryAt,
			&l.Quantity, &l.CostRate, &l.SellingRate, &l.TotalCostValue, &l.TotalSellingValue, &l.ProductName)
	if errors.Is(err, pgx.ErrNoRows) {
		return stock.BatchListing{}, stock.ErrBatchNotFound
	}
	return l, err
}

func (r *txRepository) DecrementBatch(ctx context.Context, tenantID, batchID, quantity int64) (stock.Batch, error) {
	return r.batches.DecrementBatch(ctx, tenantID, batchID, quantity)
}

func (r *txRepository) InsertSale(ctx context.Context, s Sale) (Sale, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO sales (tenant_id, bill_no, customer_name, notes, quantity, total_amount)
VALUES ($1,$2,$3,$4,0,0)
RETURNING id, created_at, updated_at`, s.TenantID, s.BillNo, s.CustomerName, s.Notes).
		Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// The allocator guarantees uniqueness; a collision here is an
			// internal consistency fault, not a user error.
			return Sale{}, fmt.Errorf("selling: bill number %s collided: %w", s.BillNo, err)
		}
		return Sale{}, err
	}
	return s, nil
}

func (r *txRepository) InsertSaleLine(ctx context.Context, line SaleLine) (SaleLine, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO sale_lines
(tenant_id, sale_id, batch_id, product_name, batch_number, quantity, cost_rate, selling_rate, total_cost_price, total_selling_price)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
RETURNING id, created_at`, line.TenantID, line.SaleID, line.BatchID, line.ProductName, nullStr(line.BatchNumber),
		line.Quantity, line.CostRate, line.SellingRate, line.TotalCostPrice, line.TotalSellingPrice).
		Scan(&line.ID, &line.CreatedAt)
	return line, err
}

func (r *txRepository) UpdateSaleTotals(ctx context.Context, tenantID, saleID, quantity int64, amount float64) error {
	_, err := r.tx.Exec(ctx, `UPDATE sales SET quantity=$3, total_amount=$4, updated_at=NOW() WHERE tenant_id=$1 AND id=$2`, tenantID, saleID, quantity, amount)
	return err
}

// ListSales returns sales with their lines, newest first.
func (r *Repository) ListSales(ctx context.Context, tenantID int64, page shared.Pagination) ([]Sale, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sales WHERE tenant_id=$1`, tenantID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, tenant_id, bill_no, customer_name, notes, quantity, total_amount, created_at, updated_at
FROM sales WHERE tenant_id=$1
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3`, tenantID, page.PerPage, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	sales := []Sale{}
	ids := []int64{}
	for rows.Next() {
		var s Sale
		if err := rows.Scan(&s.ID, &s.TenantID, &s.BillNo, &s.CustomerName, &s.Notes, &s.Quantity, &s.TotalAmount, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, 0, err
		}
		sales = append(sales, s)
		ids = append(ids, s.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if len(ids) == 0 {
		return sales, total, nil
	}

	lineRows, err := r.pool.Query(ctx, `SELECT id, tenant_id, sale_id, batch_id, product_name, COALESCE(batch_number, ''), quantity, cost_rate, selling_rate, total_cost_price, total_selling_price, created_at
FROM sale_lines WHERE tenant_id=$1 AND sale_id = ANY($2)
ORDER BY id ASC`, tenantID, ids)
	if err != nil {
		return nil, 0, err
	}
	defer lineRows.Close()
	bySale := make(map[int64][]SaleLine, len(ids))
	for lineRows.Next() {
		var l SaleLine
		if err := lineRows.Scan(&l.ID, &l.TenantID, &l.SaleID, &l.BatchID, &l.ProductName, &l.BatchNumber,
			&l.Quantity, &l.CostRate, &l.SellingRate, &l.TotalCostPrice, &l.TotalSellingPrice, &l.CreatedAt); err != nil {
			return nil, 0, err
		}
		bySale[l.SaleID] = append(bySale[l.SaleID], l)
	}
	if err := lineRows.Err(); err != nil {
		return nil, 0, err
	}
	for i := range sales {
		sales[i].Lines = bySale[sales[i].ID]
	}
	return sales, total, nil
}

func nullStr(value string) any {
	if value == "" {
		return nil
	}
	return value
}
