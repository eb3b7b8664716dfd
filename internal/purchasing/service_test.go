package purchasing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stockyard-erp/stockyard/internal/catalog"
	"github.com/stockyard-erp/stockyard/internal/sequence"
	"github.com/stockyard-erp/stockyard/internal/shared"
	"github.com/stockyard-erp/stockyard/internal/stock"
)

type memoryState struct {
	products  map[int64]catalog.Product
	batches   map[int64]stock.Batch
	purchases map[int64]Purchase
	nextID    int64
}

func (s memoryState) clone() memoryState {
	out := memoryState{
		products:  make(map[int64]catalog.Product, len(s.products)),
		batches:   make(map[int64]stock.Batch, len(s.batches)),
		purchases: make(map[int64]Purchase, len(s.purchases)),
		nextID:    s.nextID,
	}
	for k, v := range s.products {
		out.products[k] = v
	}
	for k, v := range s.batches {
		out.batches[k] = v
	}
	for k, v := range s.purchases {
		out.purchases[k] = v
	}
	return out
}

// memoryRepo stages every transaction on a copy of the state, committing only
// when the callback succeeds. That mirrors the rollback behaviour the SQL
// repository gets from pgx.
type memoryRepo struct {
	state memoryState
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{state: memoryState{
		products:  make(map[int64]catalog.Product),
		batches:   make(map[int64]stock.Batch),
		purchases: make(map[int64]Purchase),
	}}
}

func (r *memoryRepo) addProduct(p catalog.Product) {
	r.state.products[p.ID] = p
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	staged := r.state.clone()
	if err := fn(ctx, &memoryTx{state: &staged}); err != nil {
		return err
	}
	r.state = staged
	return nil
}

func (r *memoryRepo) ListPurchases(ctx context.Context, tenantID int64, page shared.Pagination) ([]Purchase, int, error) {
	out := []Purchase{}
	for _, p := range r.state.purchases {
		if p.TenantID == tenantID {
			out = append(out, p)
		}
	}
	return out, len(out), nil
}

type memoryTx struct {
	state *memoryState
}

func (t *memoryTx) GetProduct(ctx context.Context, tenantID, productID int64) (catalog.Product, error) {
	p, ok := t.state.products[productID]
	if !ok || p.TenantID != tenantID {
		return catalog.Product{}, catalog.ErrProductNotFound
	}
	return p, nil
}

func (t *memoryTx) CreateBatch(ctx context.Context, tenantID int64, in stock.NewBatchInput) (stock.Batch, error) {
	if in.BatchNumber != "" {
		for _, b := range t.state.batches {
			if b.TenantID == tenantID && shared.Fold(b.BatchNumber) == shared.Fold(in.BatchNumber) {
				return stock.Batch{}, &stock.DuplicateBatchNumberError{BatchNumber: in.BatchNumber}
			}
		}
	}
	t.state.nextID++
	totalCost, totalSelling := stock.BatchTotals(in.Quantity, in.CostRate, in.SellingRate)
	b := stock.Batch{
		ID:                t.state.nextID,
		TenantID:          tenantID,
		ProductID:         in.ProductID,
		BatchNumber:       in.BatchNumber,
		AddedAt:           time.Now(),
		ExpiryAt:          in.ExpiryAt,
		Quantity:          in.Quantity,
		CostRate:          in.CostRate,
		SellingRate:       in.SellingRate,
		TotalCostValue:    totalCost,
		TotalSellingValue: totalSelling,
	}
	t.state.batches[b.ID] = b
	return b, nil
}

func (t *memoryTx) InsertPurchase(ctx context.Context, p Purchase) (Purchase, error) {
	t.state.nextID++
	p.ID = t.state.nextID
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	t.state.purchases[p.ID] = p
	return p, nil
}

func (t *memoryTx) InsertPurchaseLine(ctx context.Context, line PurchaseLine) (PurchaseLine, error) {
	t.state.nextID++
	line.ID = t.state.nextID
	p := t.state.purchases[line.PurchaseID]
	p.Lines = append(p.Lines, line)
	t.state.purchases[line.PurchaseID] = p
	return line, nil
}

func (t *memoryTx) UpdatePurchaseTotal(ctx context.Context, tenantID, purchaseID int64, total float64) error {
	p := t.state.purchases[purchaseID]
	p.TotalAmount = total
	t.state.purchases[purchaseID] = p
	return nil
}

func newTestService(repo *memoryRepo) *Service {
	return NewService(repo, sequence.NewMemoryAllocator(), nil, nil, nil, nil)
}

func TestCreatePurchaseRoundTrip(t *testing.T) {
	repo := newMemoryRepo()
	repo.addProduct(catalog.Product{ID: 1, TenantID: 1, Name: "Gauze"})
	svc := newTestService(repo)
	ctx := context.Background()

	purchase, err := svc.Create(ctx, 1, CreatePurchaseInput{
		SupplierName: "Acme Supplies",
		Lines: []LineInput{
			{ProductID: 1, Quantity: 10, CostRate: 5, SellingRate: 7},
			{ProductID: 1, Quantity: 5, CostRate: 8, SellingRate: 11},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "PUR-000001", purchase.BillNo)
	require.InDelta(t, 90.0, purchase.TotalAmount, 0.0001)
	require.Len(t, purchase.Lines, 2)
	require.InDelta(t, 50.0, purchase.Lines[0].TotalCostPrice, 0.0001)
	require.InDelta(t, 40.0, purchase.Lines[1].TotalCostPrice, 0.0001)

	require.Len(t, repo.state.batches, 2)
	quantities := map[int64]bool{}
	for _, b := range repo.state.batches {
		quantities[b.Quantity] = true
	}
	require.True(t, quantities[10])
	require.True(t, quantities[5])
}

func TestCreateRejectsUnknownProduct(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	_, err := svc.Create(context.Background(), 1, CreatePurchaseInput{
		SupplierName: "Acme",
		Lines:        []LineInput{{ProductID: 99, Quantity: 1}},
	})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	require.Len(t, vErr.Lines, 1)
	require.Equal(t, "product_id", vErr.Lines[0].Field)
	require.Empty(t, repo.state.batches, "no side effects on rejection")
	require.Empty(t, repo.state.purchases)
}

func TestCreateEnforcesExpirabilityPerLine(t *testing.T) {
	repo := newMemoryRepo()
	repo.addProduct(catalog.Product{ID: 1, TenantID: 1, Name: "Insulin", Expirable: true})
	repo.addProduct(catalog.Product{ID: 2, TenantID: 1, Name: "Gauze"})
	svc := newTestService(repo)
	expiry := time.Now().Add(24 * time.Hour)

	_, err := svc.Create(context.Background(), 1, CreatePurchaseInput{
		SupplierName: "Acme",
		Lines: []LineInput{
			{ProductID: 1, Quantity: 1}, // missing batch number + expiry
			{ProductID: 2, Quantity: 1, BatchNumber: "B-1", ExpiryAt: &expiry}, // forbidden
		},
	})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	require.Len(t, vErr.Lines, 2)
	require.Empty(t, repo.state.batches)
}

func TestBatchImportIsAllOrNothing(t *testing.T) {
	repo := newMemoryRepo()
	repo.addProduct(catalog.Product{ID: 1, TenantID: 1, Name: "Gauze"})
	svc := newTestService(repo)

	_, err := svc.CreateMany(context.Background(), 1, "", []CreatePurchaseInput{
		{SupplierName: "Acme", Lines: []LineInput{{ProductID: 1, Quantity: 3, CostRate: 2}}},
		{SupplierName: "Acme", Lines: []LineInput{{ProductID: 42, Quantity: 1}}},
	})
	var mErr *MultiValidationError
	require.ErrorAs(t, err, &mErr)
	require.Len(t, mErr.Requests, 1)
	require.Equal(t, 1, mErr.Requests[0].Request)
	require.Empty(t, repo.state.purchases, "whole import rolls back")
	require.Empty(t, repo.state.batches)
}

func TestDuplicateBatchNumberRejectsRequest(t *testing.T) {
	repo := newMemoryRepo()
	repo.addProduct(catalog.Product{ID: 1, TenantID: 1, Name: "Insulin", Expirable: true})
	svc := newTestService(repo)
	expiry := time.Now().Add(24 * time.Hour)

	_, err := svc.Create(context.Background(), 1, CreatePurchaseInput{
		SupplierName: "Acme",
		Lines: []LineInput{
			{ProductID: 1, Quantity: 1, BatchNumber: "LOT-9", ExpiryAt: &expiry},
			{ProductID: 1, Quantity: 2, BatchNumber: "lot-9", ExpiryAt: &expiry},
		},
	})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	require.Empty(t, repo.state.batches, "partial batches roll back")
}

func TestCreateRejectsBadReference(t *testing.T) {
	repo := newMemoryRepo()
	repo.addProduct(catalog.Product{ID: 1, TenantID: 1, Name: "Gauze"})
	svc := newTestService(repo)

	_, err := svc.Create(context.Background(), 1, CreatePurchaseInput{
		SupplierName: "Acme",
		Reference:    "not-a-uuid",
		Lines:        []LineInput{{ProductID: 1, Quantity: 1}},
	})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
}

type memoryIdempotency struct {
	keys map[string]bool
}

func newMemoryIdempotency() *memoryIdempotency {
	return &memoryIdempotency{keys: make(map[string]bool)}
}

func (m *memoryIdempotency) CheckAndInsert(ctx context.Context, key, module string) error {
	if m.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = true
	return nil
}

func (m *memoryIdempotency) Delete(ctx context.Context, key string) error {
	delete(m.keys, key)
	return nil
}

func TestCreateRejectsReplayedIdempotencyKey(t *testing.T) {
	repo := newMemoryRepo()
	repo.addProduct(catalog.Product{ID: 1, TenantID: 1, Name: "Gauze"})
	svc := NewService(repo, sequence.NewMemoryAllocator(), nil, newMemoryIdempotency(), nil, nil)
	input := CreatePurchaseInput{
		SupplierName:   "Acme",
		IdempotencyKey: "req-1",
		Lines:          []LineInput{{ProductID: 1, Quantity: 3, CostRate: 2}},
	}

	_, err := svc.Create(context.Background(), 1, input)
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), 1, input)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.Len(t, repo.state.purchases, 1)
}

func TestBatchImportRejectsReplayedIdempotencyKey(t *testing.T) {
	repo := newMemoryRepo()
	repo.addProduct(catalog.Product{ID: 1, TenantID: 1, Name: "Gauze"})
	svc := NewService(repo, sequence.NewMemoryAllocator(), nil, newMemoryIdempotency(), nil, nil)
	inputs := []CreatePurchaseInput{
		{SupplierName: "Acme", Lines: []LineInput{{ProductID: 1, Quantity: 3, CostRate: 2}}},
		{SupplierName: "Acme", Lines: []LineInput{{ProductID: 1, Quantity: 1, CostRate: 4}}},
	}

	_, err := svc.CreateMany(context.Background(), 1, "import-1", inputs)
	require.NoError(t, err)
	_, err = svc.CreateMany(context.Background(), 1, "import-1", inputs)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.Len(t, repo.state.purchases, 2, "replay creates nothing")
}

func TestBatchImportReleasesKeyOnFailure(t *testing.T) {
	repo := newMemoryRepo()
	repo.addProduct(catalog.Product{ID: 1, TenantID: 1, Name: "Gauze"})
	idem := newMemoryIdempotency()
	svc := NewService(repo, sequence.NewMemoryAllocator(), nil, idem, nil, nil)

	_, err := svc.CreateMany(context.Background(), 1, "import-2", []CreatePurchaseInput{
		{SupplierName: "Acme", Lines: []LineInput{{ProductID: 42, Quantity: 1}}},
	})
	var mErr *MultiValidationError
	require.ErrorAs(t, err, &mErr)
	require.Empty(t, idem.keys, "failed import frees the key for a retry")

	_, err = svc.CreateMany(context.Background(), 1, "import-2", []CreatePurchaseInput{
		{SupplierName: "Acme", Lines: []LineInput{{ProductID: 1, Quantity: 1, CostRate: 4}}},
	})
	require.NoError(t, err)
}
