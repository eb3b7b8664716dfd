package stock

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockyard-erp/stockyard/internal/platform/db"
	"github.com/stockyard-erp/stockyard/internal/shared"
)

// Repository persists product batches in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxStore runs batch mutations inside an enclosing pgx transaction. The
// purchasing and selling repositories embed it so document writes and batch
// mutations commit or roll back as one unit.
type TxStore struct {
	tx pgx.Tx
}

// NewTxStore wraps an open transaction.
func NewTxStore(tx pgx.Tx) *TxStore {
	return &TxStore{tx: tx}
}

const batchColumns = `id, tenant_id, product_id, COALESCE(batch_number, ''), added_at, expiry_at, quantity, cost_rate, selling_rate, total_cost_value, total_selling_value`

func scanBatch(row pgx.Row) (Batch, error) {
	var b Batch
	err := row.Scan(&b.ID, &b.TenantID, &b.ProductID, &b.BatchNumber, &b.AddedAt, &b.ExpiryAt,
		&b.Quantity, &b.CostRate, &b.SellingRate, &b.TotalCostValue, &b.TotalSellingValue)
	if errors.Is(err, pgx.ErrNoRows) {
		return Batch{}, ErrBatchNotFound
	}
	return b, err
}

// CreateBatch validates nothing by itself; callers run ValidateNewBatch first.
// Totals are computed here so a batch row is never persisted with stale values.
func (s *TxStore) CreateBatch(ctx context.Context, tenantID int64, in NewBatchInput) (Batch, error) {
	totalCost, totalSelling := BatchTotals(in.Quantity, in.CostRate, in.SellingRate)
	row := s.tx.QueryRow(ctx, `INSERT INTO product_batches
(tenant_id, product_id, batch_number, batch_number_folded, added_at, expiry_at, quantity, cost_rate, selling_rate, total_cost_value, total_selling_value)
VALUES ($1,$2,$3,$4,NOW(),$5,$6,$7,$8,$9,$10)
RETURNING `+batchColumns,
		tenantID, in.ProductID, nullStr(in.BatchNumber), nullStr(shared.Fold(in.BatchNumber)),
		in.ExpiryAt, in.Quantity, in.CostRate, in.SellingRate, totalCost, totalSelling)
	b, err := scanBatch(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Batch{}, &DuplicateBatchNumberError{BatchNumber: in.BatchNumber}
		}
		return Batch{}, err
	}
	return b, nil
}

// GetBatchForUpdate locks the batch row for the remainder of the transaction,
// serialising concurrent sales against the same batch.
func (s *TxStore) GetBatchForUpdate(ctx context.Context, tenantID, batchID int64) (Batch, error) {
	row := s.tx.QueryRow(ctx, `SELECT `+batchColumns+` FROM product_batches WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, batchID)
	return scanBatch(row)
}

// DecrementBatch locks the batch, checks availability against the live
// quantity and persists the decremented row with recomputed totals.
func (s *TxStore) DecrementBatch(ctx context.Context, tenantID, batchID, qty int64) (Batch, error) {
	if qty < 1 {
		return Batch{}, ErrInvalidQuantity
	}
	b, err := s.GetBatchForUpdate(ctx, tenantID, batchID)
	if err != nil {
		return Batch{}, err
	}
	if qty > b.Quantity {
		return Batch{}, &InsufficientStockError{BatchID: batchID, Requested: qty, Available: b.Quantity}
	}
	b.Quantity -= qty
	b.TotalCostValue, b.TotalSellingValue = BatchTotals(b.Quantity, b.CostRate, b.SellingRate)
	_, err = s.tx.Exec(ctx, `UPDATE product_batches
SET quantity=$3, total_cost_value=$4, total_selling_value=$5
WHERE tenant_id=$1 AND id=$2`, tenantID, batchID, b.Quantity, b.TotalCostValue, b.TotalSellingValue)
	if err != nil {
		return Batch{}, err
	}
	return b, nil
}

// WithTx executes the callback inside one document transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, *TxStore) error) error {
	if r == nil {
		return errors.New("stock repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxStore(tx))
	})
}

// ListBatches returns batches with their product names, newest first.
func (r *Repository) ListBatches(ctx context.Context, tenantID int64, page shared.Pagination) ([]BatchListing, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM product_batches WHERE tenant_id=$1`, tenantID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT b.id, b.tenant_id, b.product_id, COALESCE(b.batch_number, ''), b.added_at, b.expiry_at,
b.quantity, b.cost_rate, b.selling_rate, b.total_cost_value, b.total_selling_value, p.name
FROM product_batches b JOIN products p ON p.id = b.product_id
WHERE b.tenant_id=$1
ORDER BY b.added_at DESC, b.id DESC
LIMIT $2 OFFSET $3`, tenantID, page.PerPage, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	listings := []BatchListing{}
	for rows.Next() {
		var l BatchListing
		if err := rows.Scan(&l.ID, &l.TenantID, &l.ProductID, &l.BatchNumber, &l.AddedAt, &l.ExpiryAt,
			&l.Quantity, &l.CostRate, &l.SellingRate, &l.TotalCostValue, &l.TotalSellingValue, &l.ProductName); err != nil {
			return nil, 0, err
		}
		listings = append(listings, l)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return listings, total, nil
}

// GetBatch fetches a single batch.
func (r *Repository) GetBatch(ctx context.Context, tenantID, id int64) (Batch, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+batchColumns+` FROM product_batches WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	return scanBatch(row)
}

// DeleteBatch removes a batch unless sale lines draw from it. Purchase lines
// do not protect the batch: every batch arrives through a purchase, and its
// line keeps the snapshot with batch_id set NULL on delete.
func (r *Repository) DeleteBatch(ctx context.Context, tenantID, id int64) error {
	return r.WithTx(ctx, func(ctx context.Context, s *TxStore) error {
		if _, err := s.GetBatchForUpdate(ctx, tenantID, id); err != nil {
			return err
		}
		var refs int64
		err := s.tx.QueryRow(ctx, `SELECT COUNT(*) FROM sale_lines WHERE tenant_id=$1 AND batch_id=$2`, tenantID, id).Scan(&refs)
		if err != nil {
			return err
		}
		if refs > 0 {
			return ErrBatchReferenced
		}
		_, err = s.tx.Exec(ctx, `DELETE FROM product_batches WHERE tenant_id=$1 AND id=$2`, tenantID, id)
		return err
	})
}

func nullStr(value string) any {
	if value == "" {
		return nil
	}
	return value
}
