package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stockyard-erp/stockyard/internal/shared"
)

type memoryRepo struct {
	products map[int64]Product
	batches  map[int64]int
	nextID   int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{products: make(map[int64]Product), batches: make(map[int64]int)}
}

func (r *memoryRepo) Create(ctx context.Context, tenantID int64, in ProductInput) (Product, error) {
	for _, p := range r.products {
		if p.TenantID == tenantID && shared.Fold(p.Name) == shared.Fold(in.Name) {
			return Product{}, &DuplicateProductNameError{Name: in.Name}
		}
	}
	r.nextID++
	p := Product{ID: r.nextID, TenantID: tenantID, Name: in.Name, Category: in.Category, Expirable: in.Expirable}
	r.products[p.ID] = p
	return p, nil
}

func (r *memoryRepo) Get(ctx context.Context, tenantID, id int64) (Product, error) {
	p, ok := r.products[id]
	if !ok || p.TenantID != tenantID {
		return Product{}, ErrProductNotFound
	}
	return p, nil
}

func (r *memoryRepo) List(ctx context.Context, tenantID int64, page shared.Pagination) ([]ProductSummary, int, error) {
	summaries := []ProductSummary{}
	for _, p := range r.products {
		if p.TenantID == tenantID {
			summaries = append(summaries, ProductSummary{Product: p})
		}
	}
	return summaries, len(summaries), nil
}

func (r *memoryRepo) Update(ctx context.Context, tenantID, id int64, in ProductInput) (Product, error) {
	p, err := r.Get(ctx, tenantID, id)
	if err != nil {
		return Product{}, err
	}
	p.Name = in.Name
	p.Category = in.Category
	r.products[id] = p
	return p, nil
}

func (r *memoryRepo) Delete(ctx context.Context, tenantID, id int64) error {
	p, ok := r.products[id]
	if !ok || p.TenantID != tenantID {
		return ErrProductNotFound
	}
	if r.batches[id] > 0 {
		return ErrProductReferenced
	}
	delete(r.products, id)
	return nil
}

func TestCreateRejectsBlankName(t *testing.T) {
	svc := NewService(newMemoryRepo())
	_, err := svc.Create(context.Background(), 1, ProductInput{Name: "   "})
	require.ErrorIs(t, err, ErrNameRequired)
}

func TestCreateRejectsCaseInsensitiveDuplicate(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	_, err := svc.Create(ctx, 1, ProductInput{Name: "Paracetamol"})
	require.NoError(t, err)

	_, err = svc.Create(ctx, 1, ProductInput{Name: "PARACETAMOL"})
	var dup *DuplicateProductNameError
	require.ErrorAs(t, err, &dup)

	// Same name is fine in another partition.
	_, err = svc.Create(ctx, 2, ProductInput{Name: "paracetamol"})
	require.NoError(t, err)
}

func TestDeleteProtectsProductsWithBatches(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	p, err := svc.Create(ctx, 1, ProductInput{Name: "Ibuprofen"})
	require.NoError(t, err)
	repo.batches[p.ID] = 3

	require.ErrorIs(t, svc.Delete(ctx, 1, p.ID), ErrProductReferenced)
}
