package purchasing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stockyard-erp/stockyard/internal/catalog"
	"github.com/stockyard-erp/stockyard/internal/sequence"
	"github.com/stockyard-erp/stockyard/internal/shared"
	"github.com/stockyard-erp/stockyard/internal/stock"
)

// TxRepository exposes the operations available inside one purchase transaction.
type TxRepository interface {
	GetProduct(ctx context.Context, tenantID, productID int64) (catalog.Product, error)
	CreateBatch(ctx context.Context, tenantID int64, in stock.NewBatchInput) (stock.Batch, error)
	InsertPurchase(ctx context.Context, p Purchase) (Purchase, error)
	InsertPurchaseLine(ctx context.Context, line PurchaseLine) (PurchaseLine, error)
	UpdatePurchaseTotal(ctx context.Context, tenantID, purchaseID int64, total float64) error
}

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListPurchases(ctx context.Context, tenantID int64, page shared.Pagination) ([]Purchase, int, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort counts created documents.
type MetricsPort interface {
	DocumentCreated(docType string)
}

// IdempotencyPort rejects replayed requests carrying an already-used scoped key.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// ReportsPort retires cached valuation reports after a committed document.
type ReportsPort interface {
	Invalidate(ctx context.Context, tenantID int64) error
}

// Service is the purchase processor: it turns validated purchase requests
// into batches, line snapshots and a numbered document header, all inside one
// atomic unit per request.
type Service struct {
	repo        RepositoryPort
	allocator   sequence.Allocator
	audit       AuditPort
	idempotency IdempotencyPort
	metrics     MetricsPort
	reports     ReportsPort
}

// NewService constructs the purchase processor.
func NewService(repo RepositoryPort, allocator sequence.Allocator, audit AuditPort, idem IdempotencyPort, metrics MetricsPort, reports ReportsPort) *Service {
	return &Service{repo: repo, allocator: allocator, audit: audit, idempotency: idem, metrics: metrics, reports: reports}
}

// Create processes one purchase request as a single all-or-nothing unit.
func (s *Service) Create(ctx context.Context, tenantID int64, input CreatePurchaseInput) (Purchase, error) {
	if tenantID <= 0 {
		return Purchase{}, shared.ErrTenantRequired
	}
	if err := checkRequest(input); err != nil {
		return Purchase{}, err
	}

	insertedKey, err := s.claimKey(ctx, tenantID, input.IdempotencyKey)
	if err != nil {
		return Purchase{}, err
	}

	var created Purchase
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var txErr error
		created, txErr = s.createInTx(ctx, tx, tenantID, 0, input)
		return txErr
	})
	if err != nil {
		s.releaseKey(ctx, insertedKey)
		return Purchase{}, err
	}
	s.afterCreate(ctx, tenantID, created)
	return created, nil
}

// CreateMany processes a batch import: every request in one surrounding
// transaction, rejected as a whole when any member fails validation. The
// idempotency key covers the import as a unit.
func (s *Service) CreateMany(ctx context.Context, tenantID int64, idemKey string, inputs []CreatePurchaseInput) ([]Purchase, error) {
	if tenantID <= 0 {
		return nil, shared.ErrTenantRequired
	}
	if len(inputs) == 0 {
		return nil, &ValidationError{Lines: []LineError{{Message: "at least one purchase required"}}}
	}
	insertedKey, err := s.claimKey(ctx, tenantID, idemKey)
	if err != nil {
		return nil, err
	}
	created := make([]Purchase, 0, len(inputs))
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var failures []*ValidationError
		for i, input := range inputs {
			if err := checkRequest(input); err != nil {
				var vErr *ValidationError
				if errors.As(err, &vErr) {
					vErr.Request = i
					failures = append(failures, vErr)
					continue
				}
				return err
			}
			p, err := s.createInTx(ctx, tx, tenantID, i, input)
			if err != nil {
				var vErr *ValidationError
				if errors.As(err, &vErr) {
					failures = append(failures, vErr)
					continue
				}
				return err
			}
			created = append(created, p)
		}
		if len(failures) > 0 {
			return &MultiValidationError{Requests: failures}
		}
		return nil
	})
	if err != nil {
		s.releaseKey(ctx, insertedKey)
		return nil, err
	}
	for _, p := range created {
		s.afterCreate(ctx, tenantID, p)
	}
	return created, nil
}

// claimKey reserves the scoped idempotency key, returning it for release on
// failure. A blank key or absent store claims nothing.
func (s *Service) claimKey(ctx context.Context, tenantID int64, idemKey string) (string, error) {
	if idemKey == "" || s.idempotency == nil {
		return "", nil
	}
	key := shared.ScopedKey(tenantID, "purchasing", idemKey)
	if err := s.idempotency.CheckAndInsert(ctx, key, "purchasing"); err != nil {
		return "", err
	}
	return key, nil
}

// releaseKey frees a claimed key after a failed request so a retry can land.
func (s *Service) releaseKey(ctx context.Context, key string) {
	if key != "" && s.idempotency != nil {
		_ = s.idempotency.Delete(ctx, key)
	}
}

// List returns purchases with their lines, newest first.
func (s *Service) List(ctx context.Context, tenantID int64, page shared.Pagination) ([]Purchase, int, error) {
	if tenantID <= 0 {
		return nil, 0, shared.ErrTenantRequired
	}
	return s.repo.ListPurchases(ctx, tenantID, page)
}

// checkRequest validates request-level fields that need no repository access.
func checkRequest(input CreatePurchaseInput) error {
	var lineErrs []LineError
	if input.SupplierName == "" {
		lineErrs = append(lineErrs, LineError{Field: "supplier_name", Message: "supplier name required"})
	}
	if len(input.Lines) == 0 {
		lineErrs = append(lineErrs, LineError{Field: "lines", Message: "at least one line required"})
	}
	if input.Reference != "" {
		if _, err := uuid.Parse(input.Reference); err != nil {
			lineErrs = append(lineErrs, LineError{Field: "reference", Message: "reference must be a UUID"})
		}
	}
	if len(lineErrs) > 0 {
		return &ValidationError{Lines: lineErrs}
	}
	return nil
}

// createInTx validates every line first, then creates batches and snapshots
// in submitted order. Any failure aborts the enclosing transaction.
func (s *Service) createInTx(ctx context.Context, tx TxRepository, tenantID int64, request int, input CreatePurchaseInput) (Purchase, error) {
	products := make([]catalog.Product, len(input.Lines))
	var lineErrs []LineError
	for i, line := range input.Lines {
		product, err := tx.GetProduct(ctx, tenantID, line.ProductID)
		if err != nil {
			if errors.Is(err, catalog.ErrProductNotFound) {
				lineErrs = append(lineErrs, LineError{Index: i, Field: "product_id", Message: fmt.Sprintf("product %d not found", line.ProductID)})
				continue
			}
			return Purchase{}, err
		}
		products[i] = product
		if err := stock.ValidateNewBatch(product.Expirable, newBatchInput(line)); err != nil {
			lineErrs = append(lineErrs, LineError{Index: i, Message: err.Error()})
		}
	}
	if len(lineErrs) > 0 {
		return Purchase{}, &ValidationError{Request: request, Lines: lineErrs}
	}

	date := input.PurchaseDate
	if date.IsZero() {
		date = time.Now().UTC()
	}
	billNo, err := s.allocator.Next(ctx, tenantID, sequence.PrefixPurchase)
	if err != nil {
		return Purchase{}, err
	}
	header, err := tx.InsertPurchase(ctx, Purchase{
		TenantID:     tenantID,
		BillNo:       billNo,
		SupplierName: input.SupplierName,
		PurchaseDate: date,
		Notes:        input.Notes,
	})
	if err != nil {
		return Purchase{}, err
	}

	var total float64
	for i, line := range input.Lines {
		batch, err := tx.CreateBatch(ctx, tenantID, newBatchInput(line))
		if err != nil {
			var dup *stock.DuplicateBatchNumberError
			if errors.As(err, &dup) {
				return Purchase{}, &ValidationError{Request: request, Lines: []LineError{{Index: i, Field: "batch_number", Message: dup.Error()}}}
			}
			return Purchase{}, err
		}
		totalCost, totalSelling := stock.BatchTotals(line.Quantity, line.CostRate, line.SellingRate)
		snapshot, err := tx.InsertPurchaseLine(ctx, PurchaseLine{
			TenantID:          tenantID,
			PurchaseID:        header.ID,
			BatchID:           batch.ID,
			ProductName:       products[i].Name,
			BatchNumber:       line.BatchNumber,
			Quantity:          line.Quantity,
			CostRate:          line.CostRate,
			SellingRate:       line.SellingRate,
			TotalCostPrice:    totalCost,
			TotalSellingPrice: totalSelling,
		})
		if err != nil {
			return Purchase{}, err
		}
		header.Lines = append(header.Lines, snapshot)
		total += snapshot.TotalCostPrice
	}
	if err := tx.UpdatePurchaseTotal(ctx, tenantID, header.ID, total); err != nil {
		return Purchase{}, err
	}
	header.TotalAmount = total
	return header, nil
}

func (s *Service) afterCreate(ctx context.Context, tenantID int64, p Purchase) {
	if s.metrics != nil {
		s.metrics.DocumentCreated("purchase")
	}
	if s.reports != nil {
		_ = s.reports.Invalidate(ctx, tenantID)
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			TenantID: tenantID,
			Action:   "purchasing:create",
			Entity:   "purchase",
			EntityID: p.BillNo,
			Meta: map[string]any{
				"supplier": p.SupplierName,
				"lines":    len(p.Lines),
				"total":    p.TotalAmount,
			},
		})
	}
}

func newBatchInput(line LineInput) stock.NewBatchInput {
	return stock.NewBatchInput{
		ProductID:   line.ProductID,
		BatchNumber: line.BatchNumber,
		ExpiryAt:    line.ExpiryAt,
		Quantity:    line.Quantity,
		CostRate:    line.CostRate,
		SellingRate: line.SellingRate,
	}
}
