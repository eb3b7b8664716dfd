package ledger

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads the raw material the engine computes from. All queries run
// on the pool: the engine needs no locks, per-statement read consistency is
// enough.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FetchInputs loads every product, all batches created on or before end,
// purchase lines dated inside the window and sale lines dated on or after
// start, which is exactly the material Compute consumes.
func (r *Repository) FetchInputs(ctx context.Context, tenantID int64, start, end time.Time) (ComputeInput, error) {
	var in ComputeInput

	rows, err := r.pool.Query(ctx, `SELECT id, name FROM products WHERE tenant_id=$1 ORDER BY name ASC`, tenantID)
	if err != nil {
		return ComputeInput{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var p ProductRef
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			return ComputeInput{}, err
		}
		in.Products = append(in.Products, p)
	}
	if err := rows.Err(); err != nil {
		return ComputeInput{}, err
	}

	batchRows, err := r.pool.Query(ctx, `SELECT id, product_id, added_at, quantity, cost_rate, selling_rate
FROM product_batches WHERE tenant_id=$1 AND added_at <= $2`, tenantID, end)
	if err != nil {
		return ComputeInput{}, err
	}
	defer batchRows.Close()
	for batchRows.Next() {
		var b BatchState
		if err := batchRows.Scan(&b.ID, &b.ProductID, &b.AddedAt, &b.Quantity, &b.CostRate, &b.SellingRate); err != nil {
			return ComputeInput{}, err
		}
		in.Batches = append(in.Batches, b)
	}
	if err := batchRows.Err(); err != nil {
		return ComputeInput{}, err
	}

	purchaseRows, err := r.pool.Query(ctx, `SELECT b.product_id, l.quantity, l.total_cost_price, l.total_selling_price, p.purchase_date
FROM purchase_lines l
JOIN purchases p ON p.tenant_id = l.tenant_id AND p.id = l.purchase_id
JOIN product_batches b ON b.tenant_id = l.tenant_id AND b.id = l.batch_id
WHERE l.tenant_id=$1 AND p.purchase_date BETWEEN $2 AND $3`, tenantID, start, end)
	if err != nil {
		return ComputeInput{}, err
	}
	defer purchaseRows.Close()
	for purchaseRows.Next() {
		var ev PurchaseEvent
		if err := purchaseRows.Scan(&ev.ProductID, &ev.Quantity, &ev.TotalCost, &ev.TotalSelling, &ev.OccurredAt); err != nil {
			return ComputeInput{}, err
		}
		in.Purchases = append(in.Purchases, ev)
	}
	if err := purchaseRows.Err(); err != nil {
		return ComputeInput{}, err
	}

	saleRows, err := r.pool.Query(ctx, `SELECT l.batch_id, b.product_id, l.quantity, l.total_cost_price, l.total_selling_price, s.created_at
FROM sale_lines l
JOIN sales s ON s.tenant_id = l.tenant_id AND s.id = l.sale_id
JOIN product_batches b ON b.tenant_id = l.tenant_id AND b.id = l.batch_id
WHERE l.tenant_id=$1 AND s.created_at >= $2`, tenantID, start)
	if err != nil {
		return ComputeInput{}, err
	}
	defer saleRows.Close()
	for saleRows.Next() {
		var ev SaleEvent
		if err := saleRows.Scan(&ev.BatchID, &ev.ProductID, &ev.Quantity, &ev.TotalCost, &ev.TotalSelling, &ev.OccurredAt); err != nil {
			return ComputeInput{}, err
		}
		in.Sales = append(in.Sales, ev)
	}
	if err := saleRows.Err(); err != nil {
		return ComputeInput{}, err
	}

	return in, nil
}
