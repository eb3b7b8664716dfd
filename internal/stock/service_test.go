package stock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stockyard-erp/stockyard/internal/shared"
)

// memoryRepo tracks, per batch, how many sale lines draw from it. Purchase
// lines never block deletion.
type memoryRepo struct {
	batches  map[int64]Batch
	saleRefs map[int64]int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{batches: make(map[int64]Batch), saleRefs: make(map[int64]int)}
}

func (r *memoryRepo) ListBatches(ctx context.Context, tenantID int64, page shared.Pagination) ([]BatchListing, int, error) {
	listings := []BatchListing{}
	for _, b := range r.batches {
		if b.TenantID == tenantID {
			listings = append(listings, BatchListing{Batch: b})
		}
	}
	return listings, len(listings), nil
}

func (r *memoryRepo) GetBatch(ctx context.Context, tenantID, id int64) (Batch, error) {
	b, ok := r.batches[id]
	if !ok || b.TenantID != tenantID {
		return Batch{}, ErrBatchNotFound
	}
	return b, nil
}

func (r *memoryRepo) DeleteBatch(ctx context.Context, tenantID, id int64) error {
	b, ok := r.batches[id]
	if !ok || b.TenantID != tenantID {
		return ErrBatchNotFound
	}
	if r.saleRefs[id] > 0 {
		return ErrBatchReferenced
	}
	delete(r.batches, id)
	return nil
}

func TestDeleteProtectsSoldBatches(t *testing.T) {
	repo := newMemoryRepo()
	repo.batches[1] = Batch{ID: 1, TenantID: 9, Quantity: 10}
	repo.saleRefs[1] = 2
	svc := NewService(repo, nil)

	err := svc.Delete(context.Background(), 9, 1)
	require.ErrorIs(t, err, ErrBatchReferenced)
	_, err = svc.Get(context.Background(), 9, 1)
	require.NoError(t, err)
}

func TestDeleteAllowsPurchasedButUnsoldBatch(t *testing.T) {
	repo := newMemoryRepo()
	repo.batches[1] = Batch{ID: 1, TenantID: 9, Quantity: 4}
	svc := NewService(repo, nil)

	// The purchase that created the batch keeps its snapshot; only sale
	// lines protect a batch from deletion.
	require.NoError(t, svc.Delete(context.Background(), 9, 1))
	_, err := svc.Get(context.Background(), 9, 1)
	require.ErrorIs(t, err, ErrBatchNotFound)
}

func TestServiceRequiresTenant(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)
	_, err := svc.Get(context.Background(), 0, 1)
	require.ErrorIs(t, err, shared.ErrTenantRequired)
	err = svc.Delete(context.Background(), 0, 1)
	require.ErrorIs(t, err, shared.ErrTenantRequired)
}
