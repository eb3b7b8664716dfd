package stock

import (
	"context"
	"strconv"

	"github.com/stockyard-erp/stockyard/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	ListBatches(ctx context.Context, tenantID int64, page shared.Pagination) ([]BatchListing, int, error)
	GetBatch(ctx context.Context, tenantID, id int64) (Batch, error)
	DeleteBatch(ctx context.Context, tenantID, id int64) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service exposes read and delete operations over the batch store. Creation
// and decrement are purchase/sale intake concerns and only happen inside
// their transactions via TxStore.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// List returns batches for the partition, newest first.
func (s *Service) List(ctx context.Context, tenantID int64, page shared.Pagination) ([]BatchListing, int, error) {
	if tenantID <= 0 {
		return nil, 0, shared.ErrTenantRequired
	}
	return s.repo.ListBatches(ctx, tenantID, page)
}

// Get fetches one batch.
func (s *Service) Get(ctx context.Context, tenantID, id int64) (Batch, error) {
	if tenantID <= 0 {
		return Batch{}, shared.ErrTenantRequired
	}
	return s.repo.GetBatch(ctx, tenantID, id)
}

// Delete removes a batch; batches referenced by document lines are protected.
func (s *Service) Delete(ctx context.Context, tenantID, id int64) error {
	if tenantID <= 0 {
		return shared.ErrTenantRequired
	}
	if err := s.repo.DeleteBatch(ctx, tenantID, id); err != nil {
		return err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			TenantID: tenantID,
			Action:   "stock:batch_delete",
			Entity:   "product_batch",
			EntityID: strconv.FormatInt(id, 10),
		})
	}
	return nil
}
