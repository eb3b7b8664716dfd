package catalog

import (
	"context"
	"strings"

	"github.com/stockyard-erp/stockyard/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	Create(ctx context.Context, tenantID int64, in ProductInput) (Product, error)
	Get(ctx context.Context, tenantID, id int64) (Product, error)
	List(ctx context.Context, tenantID int64, page shared.Pagination) ([]ProductSummary, int, error)
	Update(ctx context.Context, tenantID, id int64, in ProductInput) (Product, error)
	Delete(ctx context.Context, tenantID, id int64) error
}

// Service coordinates product reference data.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

func normalise(in ProductInput) (ProductInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Category = strings.TrimSpace(in.Category)
	if in.Name == "" {
		return in, ErrNameRequired
	}
	return in, nil
}

// Create registers a product.
func (s *Service) Create(ctx context.Context, tenantID int64, in ProductInput) (Product, error) {
	if tenantID <= 0 {
		return Product{}, shared.ErrTenantRequired
	}
	in, err := normalise(in)
	if err != nil {
		return Product{}, err
	}
	return s.repo.Create(ctx, tenantID, in)
}

// Get fetches one product.
func (s *Service) Get(ctx context.Context, tenantID, id int64) (Product, error) {
	if tenantID <= 0 {
		return Product{}, shared.ErrTenantRequired
	}
	return s.repo.Get(ctx, tenantID, id)
}

// List returns products with stock aggregates.
func (s *Service) List(ctx context.Context, tenantID int64, page shared.Pagination) ([]ProductSummary, int, error) {
	if tenantID <= 0 {
		return nil, 0, shared.ErrTenantRequired
	}
	return s.repo.List(ctx, tenantID, page)
}

// Update edits name and category.
func (s *Service) Update(ctx context.Context, tenantID, id int64, in ProductInput) (Product, error) {
	if tenantID <= 0 {
		return Product{}, shared.ErrTenantRequired
	}
	in, err := normalise(in)
	if err != nil {
		return Product{}, err
	}
	return s.repo.Update(ctx, tenantID, id, in)
}

// Delete removes a product without batches.
func (s *Service) Delete(ctx context.Context, tenantID, id int64) error {
	if tenantID <= 0 {
		return shared.ErrTenantRequired
	}
	return s.repo.Delete(ctx, tenantID, id)
}
