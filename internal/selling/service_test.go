package selling

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/stockyard-erp/stockyard/internal/sequence"
	"github.com/stockyard-erp/stockyard/internal/shared"
	"github.com/stockyard-erp/stockyard/internal/stock"
)

type memoryState struct {
	batches  map[int64]stock.Batch
	products map[int64]string
	sales    map[int64]Sale
	nextID   int64
}

func (s memoryState) clone() memoryState {
	out := memoryState{
		batches:  make(map[int64]stock.Batch, len(s.batches)),
		products: make(map[int64]string, len(s.products)),
		sales:    make(map[int64]Sale, len(s.sales)),
		nextID:   s.nextID,
	}
	for k, v := range s.batches {
		out.batches[k] = v
	}
	for k, v := range s.products {
		out.products[k] = v
	}
	for k, v := range s.sales {
		out.sales[k] = v
	}
	return out
}

// memoryRepo stages every transaction on a copy of the state, committing only
// when the callback succeeds. The mutex is held for the whole transaction,
// standing in for the row locks the SQL repository takes with FOR UPDATE.
type memoryRepo struct {
	mu    sync.Mutex
	state memoryState
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{state: memoryState{
		batches:  make(map[int64]stock.Batch),
		products: make(map[int64]string),
		sales:    make(map[int64]Sale),
	}}
}

func (r *memoryRepo) addBatch(b stock.Batch, productName string) {
	b.TotalCostValue, b.TotalSellingValue = stock.BatchTotals(b.Quantity, b.CostRate, b.SellingRate)
	r.state.batches[b.ID] = b
	r.state.products[b.ProductID] = productName
	if b.ID > r.state.nextID {
		r.state.nextID = b.ID
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	staged := r.state.clone()
	if err := fn(ctx, &memoryTx{state: &staged}); err != nil {
		return err
	}
	r.state = staged
	return nil
}

func (r *memoryRepo) ListSales(ctx context.Context, tenantID int64, page shared.Pagination) ([]Sale, int, error) {
	out := []Sale{}
	for _, s := range r.state.sales {
		if s.TenantID == tenantID {
			out = append(out, s)
		}
	}
	return out, len(out), nil
}

type memoryTx struct {
	state *memoryState
}

func (t *memoryTx) GetBatchForUpdate(ctx context.Context, tenantID, batchID int64) (stock.BatchListing, error) {
	b, ok := t.state.batches[batchID]
	if !ok || b.TenantID != tenantID {
		return stock.BatchListing{}, stock.ErrBatchNotFound
	}
	return stock.BatchListing{Batch: b, ProductName: t.state.products[b.ProductID]}, nil
}

func (t *memoryTx) DecrementBatch(ctx context.Context, tenantID, batchID, quantity int64) (stock.Batch, error) {
	b, ok := t.state.batches[batchID]
	if !ok || b.TenantID != tenantID {
		return stock.Batch{}, stock.ErrBatchNotFound
	}
	if quantity > b.Quantity {
		return stock.Batch{}, &stock.InsufficientStockError{BatchID: batchID, Requested: quantity, Available: b.Quantity}
	}
	b.Quantity -= quantity
	b.TotalCostValue, b.TotalSellingValue = stock.BatchTotals(b.Quantity, b.CostRate, b.SellingRate)
	t.state.batches[batchID] = b
	return b, nil
}

func (t *memoryTx) InsertSale(ctx context.Context, s Sale) (Sale, error) {
	t.state.nextID++
	s.ID = t.state.nextID
	s.CreatedAt = time.Now()
	s.UpdatedAt = s.CreatedAt
	t.state.sales[s.ID] = s
	return s, nil
}

func (t *memoryTx) InsertSaleLine(ctx context.Context, line SaleLine) (SaleLine, error) {
	t.state.nextID++
	line.ID = t.state.nextID
	line.CreatedAt = time.Now()
	s := t.state.sales[line.SaleID]
	s.Lines = append(s.Lines, line)
	t.state.sales[line.SaleID] = s
	return line, nil
}

func (t *memoryTx) UpdateSaleTotals(ctx context.Context, tenantID, saleID, quantity int64, amount float64) error {
	s := t.state.sales[saleID]
	s.Quantity = quantity
	s.TotalAmount = amount
	t.state.sales[saleID] = s
	return nil
}

func newTestService(repo *memoryRepo) *Service {
	return NewService(repo, sequence.NewMemoryAllocator(), nil, nil, nil, nil)
}

func TestCreateSaleSnapshotsBatchRates(t *testing.T) {
	repo := newMemoryRepo()
	repo.addBatch(stock.Batch{ID: 1, TenantID: 1, ProductID: 1, Quantity: 10, CostRate: 5, SellingRate: 7}, "Gauze")
	repo.addBatch(stock.Batch{ID: 2, TenantID: 1, ProductID: 1, Quantity: 5, CostRate: 8, SellingRate: 11}, "Gauze")
	svc := newTestService(repo)

	sale, err := svc.Create(context.Background(), 1, CreateSaleInput{
		CustomerName: "City Clinic",
		Lines: []SaleLineInput{
			{BatchID: 1, Quantity: 4},
			{BatchID: 2, Quantity: 2},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "SAL-000001", sale.BillNo)
	require.EqualValues(t, 6, sale.Quantity)
	require.InDelta(t, 4*7.0+2*11.0, sale.TotalAmount, 0.0001)
	require.Len(t, sale.Lines, 2)
	require.Equal(t, "Gauze", sale.Lines[0].ProductName)
	require.InDelta(t, 5.0, sale.Lines[0].CostRate, 0.0001)
	require.InDelta(t, 20.0, sale.Lines[0].TotalCostPrice, 0.0001)
	require.InDelta(t, 28.0, sale.Lines[0].TotalSellingPrice, 0.0001)

	require.EqualValues(t, 6, repo.state.batches[1].Quantity)
	require.EqualValues(t, 3, repo.state.batches[2].Quantity)
	require.InDelta(t, 30.0, repo.state.batches[1].TotalCostValue, 0.0001)
}

func TestSaleShortfallRollsBackWholeDocument(t *testing.T) {
	repo := newMemoryRepo()
	repo.addBatch(stock.Batch{ID: 1, TenantID: 1, ProductID: 1, Quantity: 10, CostRate: 5, SellingRate: 7}, "Gauze")
	svc := newTestService(repo)

	// The second draw sees the first one's decrement: only 4 remain.
	_, err := svc.Create(context.Background(), 1, CreateSaleInput{
		CustomerName: "City Clinic",
		Lines: []SaleLineInput{
			{BatchID: 1, Quantity: 6},
			{BatchID: 1, Quantity: 6},
		},
	})
	var stockErr *stock.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.EqualValues(t, 6, stockErr.Requested)
	require.EqualValues(t, 4, stockErr.Available)

	require.EqualValues(t, 10, repo.state.batches[1].Quantity, "first decrement rolls back with the sale")
	require.Empty(t, repo.state.sales)
}

func TestCreateSaleRejectsUnknownBatch(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	_, err := svc.Create(context.Background(), 1, CreateSaleInput{
		CustomerName: "City Clinic",
		Lines:        []SaleLineInput{{BatchID: 77, Quantity: 1}},
	})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	require.Equal(t, "batch_id", vErr.Lines[0].Field)
	require.Empty(t, repo.state.sales)
}

func TestCreateSaleIsTenantScoped(t *testing.T) {
	repo := newMemoryRepo()
	repo.addBatch(stock.Batch{ID: 1, TenantID: 2, ProductID: 1, Quantity: 10, CostRate: 5, SellingRate: 7}, "Gauze")
	svc := newTestService(repo)

	_, err := svc.Create(context.Background(), 1, CreateSaleInput{
		CustomerName: "City Clinic",
		Lines:        []SaleLineInput{{BatchID: 1, Quantity: 1}},
	})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr, "another tenant's batch is invisible")

	_, err = svc.Create(context.Background(), 0, CreateSaleInput{
		CustomerName: "City Clinic",
		Lines:        []SaleLineInput{{BatchID: 1, Quantity: 1}},
	})
	require.ErrorIs(t, err, shared.ErrTenantRequired)
}

func TestStockIsConservedAcrossSales(t *testing.T) {
	repo := newMemoryRepo()
	repo.addBatch(stock.Batch{ID: 1, TenantID: 1, ProductID: 1, Quantity: 50, CostRate: 2, SellingRate: 3}, "Gauze")
	repo.addBatch(stock.Batch{ID: 2, TenantID: 1, ProductID: 2, Quantity: 30, CostRate: 4, SellingRate: 6}, "Saline")
	svc := newTestService(repo)
	ctx := context.Background()

	var sold int64
	for _, qty := range []int64{5, 12, 2, 7} {
		sale, err := svc.Create(ctx, 1, CreateSaleInput{
			CustomerName: "City Clinic",
			Lines: []SaleLineInput{
				{BatchID: 1, Quantity: qty},
				{BatchID: 2, Quantity: qty / 2},
			},
		})
		require.NoError(t, err)
		sold += sale.Quantity
	}

	var remaining int64
	for _, b := range repo.state.batches {
		remaining = remaining + b.Quantity
	}
	require.EqualValues(t, 80-sold, remaining, "every unit sold left exactly one batch")
}

func TestConcurrentSalesNeverOversell(t *testing.T) {
	repo := newMemoryRepo()
	repo.addBatch(stock.Batch{ID: 1, TenantID: 1, ProductID: 1, Quantity: 30, CostRate: 2, SellingRate: 3}, "Gauze")
	svc := newTestService(repo)

	var g errgroup.Group
	results := make([]error, 50)
	for i := 0; i < 50; i++ {
		i := i
		g.Go(func() error {
			_, err := svc.Create(context.Background(), 1, CreateSaleInput{
				CustomerName: "City Clinic",
				Lines:        []SaleLineInput{{BatchID: 1, Quantity: 1}},
			})
			results[i] = err
			return nil
		})
	}
	require.NoError(t, g.Wait())

	succeeded, rejected := 0, 0
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		require.ErrorIs(t, err, stock.ErrInsufficientStock)
		rejected++
	}
	require.Equal(t, 30, succeeded)
	require.Equal(t, 20, rejected)
	require.EqualValues(t, 0, repo.state.batches[1].Quantity)
}

func TestCreateManySalesShareOneTransaction(t *testing.T) {
	repo := newMemoryRepo()
	repo.addBatch(stock.Batch{ID: 1, TenantID: 1, ProductID: 1, Quantity: 10, CostRate: 5, SellingRate: 7}, "Gauze")
	svc := newTestService(repo)

	_, err := svc.CreateMany(context.Background(), 1, "", []CreateSaleInput{
		{CustomerName: "A", Lines: []SaleLineInput{{BatchID: 1, Quantity: 6}}},
		{CustomerName: "B", Lines: []SaleLineInput{{BatchID: 1, Quantity: 6}}},
	})
	require.ErrorIs(t, err, stock.ErrInsufficientStock, "second sale sees the first one's decrement")
	require.EqualValues(t, 10, repo.state.batches[1].Quantity, "whole import rolls back")
	require.Empty(t, repo.state.sales)
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

func TestSaleBatchImportRejectsReplayedIdempotencyKey(t *testing.T) {
	repo := newMemoryRepo()
	repo.addBatch(stock.Batch{ID: 1, TenantID: 1, ProductID: 1, Quantity: 10, CostRate: 5, SellingRate: 7}, "Gauze")
	svc := NewService(repo, sequence.NewMemoryAllocator(), nil, newMemoryIdempotency(), nil, nil)
	inputs := []CreateSaleInput{
		{CustomerName: "A", Lines: []SaleLineInput{{BatchID: 1, Quantity: 2}}},
		{CustomerName: "B", Lines: []SaleLineInput{{BatchID: 1, Quantity: 3}}},
	}

	_, err := svc.CreateMany(context.Background(), 1, "import-1", inputs)
	require.NoError(t, err)
	_, err = svc.CreateMany(context.Background(), 1, "import-1", inputs)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.EqualValues(t, 5, repo.state.batches[1].Quantity, "replay draws no stock")
}

func TestSaleBatchImportReleasesKeyOnShortfall(t *testing.T) {
	repo := newMemoryRepo()
	repo.addBatch(stock.Batch{ID: 1, TenantID: 1, ProductID: 1, Quantity: 4, CostRate: 5, SellingRate: 7}, "Gauze")
	idem := newMemoryIdempotency()
	svc := NewService(repo, sequence.NewMemoryAllocator(), nil, idem, nil, nil)

	_, err := svc.CreateMany(context.Background(), 1, "import-2", []CreateSaleInput{
		{CustomerName: "A", Lines: []SaleLineInput{{BatchID: 1, Quantity: 9}}},
	})
	require.ErrorIs(t, err, stock.ErrInsufficientStock)
	require.Empty(t, idem.keys, "failed import frees the key for a retry")

	_, err = svc.CreateMany(context.Background(), 1, "import-2", []CreateSaleInput{
		{CustomerName: "A", Lines: []SaleLineInput{{BatchID: 1, Quantity: 2}}},
	})
	require.NoError(t, err)
}
