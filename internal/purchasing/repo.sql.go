package purchasing

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockyard-erp/stockyard/internal/catalog"
	"github.com/stockyard-erp/stockyard/internal/platform/db"
	"github.com/stockyard-erp/stockyard/internal/shared"
	"github.com/stockyard-erp/stockyard/internal/stock"
)

// Repository persists purchases in PostgreSQL.
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
// creation and document writes share the transaction, so a failure on line N
// undoes lines 1..N-1 of the same request.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("purchasing repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx, batches: stock.NewTxStore(tx)})
	})
}

func (r *txRepository) GetProduct(ctx context.Context, tenantID, productID int64) (catalog.Product, error) {
	var p catalog.Product
	err := r.tx.QueryRow(ctx, `SELECT id, tenant_id, name, category, expirable, created_at, updated_at
FROM products WHERE tenant_id=$1 AND id=$2`, tenantID, productID).
		Scan(&p.ID, &p.TenantID, &p.Name, &p.Category, &p.Expirable, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.Product{}, catalog.ErrProductNotFound
	}
	return p, err
}

func (r *txRepository) CreateBatch(ctx context.Context, tenantID int64, in stock.NewBatchInput) (stock.Batch, error) {
	return r.batches.CreateBatch(ctx, tenantID, in)
}

func (r *txRepository) InsertPurchase(ctx context.Context, p Purchase) (Purchase, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO purchases (tenant_id, bill_no, supplier_name, purchase_date, notes, total_amount)
VALUES ($1,$2,$3,$4,$5,0)
RETURNING id, created_at, updated_at`, p.TenantID, p.BillNo, p.SupplierName, p.PurchaseDate, p.Notes).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// The allocator guarantees uniqueness; a collision here is an
			// internal consistency fault, not a user error.
			return Purchase{}, fmt.Errorf("purchasing: bill number %s collided: %w", p.BillNo, err)
		}
		return Purchase{}, err
	}
	return p, nil
}

func (r *txRepository) InsertPurchaseLine(ctx context.Context, line PurchaseLine) (PurchaseLine, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO purchase_lines
(tenant_id, purchase_id, batch_id, product_name, batch_number, quantity, cost_rate, selling_rate, total_cost_price, total_selling_price)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
RETURNING id`, line.TenantID, line.PurchaseID, line.BatchID, line.ProductName, nullStr(line.BatchNumber),
		line.Quantity, line.CostRate, line.SellingRate, line.TotalCostPrice, line.TotalSellingPrice).
		Scan(&line.ID)
	return line, err
}

func (r *txRepository) UpdatePurchaseTotal(ctx context.Context, tenantID, purchaseID int64, total float64) error {
	_, err := r.tx.Exec(ctx, `UPDATE purchases SET total_amount=$3, updated_at=NOW() WHERE tenant_id=$1 AND id=$2`, tenantID, purchaseID, total)
	return err
}

// ListPurchases returns purchases with their lines, newest first.
func (r *Repository) ListPurchases(ctx context.Context, tenantID int64, page shared.Pagination) ([]Purchase, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM purchases WHERE tenant_id=$1`, tenantID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, tenant_id, bill_no, supplier_name, purchase_date, notes, total_amount, created_at, updated_at
FROM purchases WHERE tenant_id=$1
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3`, tenantID, page.PerPage, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	purchases := []Purchase{}
	ids := []int64{}
	for rows.Next() {
		var p Purchase
		if err := rows.Scan(&p.ID, &p.TenantID, &p.BillNo, &p.SupplierName, &p.PurchaseDate, &p.Notes, &p.TotalAmount, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, 0, err
		}
		purchases = append(purchases, p)
		ids = append(ids, p.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if len(ids) == 0 {
		return purchases, total, nil
	}

	lineRows, err := r.pool.Query(ctx, `SELECT id, tenant_id, purchase_id, COALESCE(batch_id, 0), product_name, COALESCE(batch_number, ''), quantity, cost_rate, selling_rate, total_cost_price, total_selling_price
FROM purchase_lines WHERE tenant_id=$1 AND purchase_id = ANY($2)
ORDER BY id ASC`, tenantID, ids)
	if err != nil {
		return nil, 0, err
	}
	defer lineRows.Close()
	byPurchase := make(map[int64][]PurchaseLine, len(ids))
	for lineRows.Next() {
		var l PurchaseLine
		if err := lineRows.Scan(&l.ID, &l.TenantID, &l.PurchaseID, &l.BatchID, &l.ProductName, &l.BatchNumber,
			&l.Quantity, &l.CostRate, &l.SellingRate, &l.TotalCostPrice, &l.TotalSellingPrice); err != nil {
			return nil, 0, err
		}
		byPurchase[l.PurchaseID] = append(byPurchase[l.PurchaseID], l)
	}
	if err := lineRows.Err(); err != nil {
		return nil, 0, err
	}
	for i := range purchases {
		purchases[i].Lines = byPurchase[purchases[i].ID]
	}
	return purchases, total, nil
}

func nullStr(value string) any {
	if value == "" {
		return nil
	}
	return value
}
