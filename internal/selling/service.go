package selling

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/stockyard-erp/stockyard/internal/sequence"
	"github.com/stockyard-erp/stockyard/internal/shared"
	"github.com/stockyard-erp/stockyard/internal/stock"
)

// TxRepository exposes the operations available inside one sale transaction.
type TxRepository interface {
	// GetBatchForUpdate locks the batch row and returns it with its product
	// name joined in, so line snapshots carry the name without a second query.
	GetBatchForUpdate(ctx context.Context, tenantID, batchID int64) (stock.BatchListing, error)
	DecrementBatch(ctx context.Context, tenantID, batchID, quantity int64) (stock.Batch, error)
	InsertSale(ctx context.Context, s Sale) (Sale, error)
	InsertSaleLine(ctx context.Context, line SaleLine) (SaleLine, error)
	UpdateSaleTotals(ctx context.Context, tenantID, saleID, quantity int64, amount float64) error
}

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListSales(ctx context.Context, tenantID int64, page shared.Pagination) ([]Sale, int, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort counts created documents and rejected stock draws.
type MetricsPort interface {
	DocumentCreated(docType string)
	StockRejected()
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

// Service is the sale processor: it draws stock out of batches line by line,
// snapshotting each batch's rates at the instant of the draw, all inside one
// atomic unit per request. A sale that cannot be fully satisfied leaves every
// batch untouched.
type Service struct {
	repo        RepositoryPort
	allocator   sequence.Allocator
	audit       AuditPort
	idempotency IdempotencyPort
	metrics     MetricsPort
	reports     ReportsPort
}

// NewService constructs the sale processor.
func NewService(repo RepositoryPort, allocator sequence.Allocator, audit AuditPort, idem IdempotencyPort, metrics MetricsPort, reports ReportsPort) *Service {
	return &Service{repo: repo, allocator: allocator, audit: audit, idempotency: idem, metrics: metrics, reports: reports}
}

// Create processes one sale request as a single all-or-nothing unit.
func (s *Service) Create(ctx context.Context, tenantID int64, input CreateSaleInput) (Sale, error) {
	if tenantID <= 0 {
		return Sale{}, shared.ErrTenantRequired
	}
	if err := checkRequest(input); err != nil {
		return Sale{}, err
	}

	insertedKey, err := s.claimKey(ctx, tenantID, input.IdempotencyKey)
	if err != nil {
		return Sale{}, err
	}

	var created Sale
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var txErr error
		created, txErr = s.createInTx(ctx, tx, tenantID, 0, input)
		return txErr
	})
	if err != nil {
		s.releaseKey(ctx, insertedKey)
		if errors.Is(err, stock.ErrInsufficientStock) && s.metrics != nil {
			s.metrics.StockRejected()
		}
		return Sale{}, err
	}
	s.afterCreate(ctx, tenantID, created)
	return created, nil
}

// CreateMany processes a batch import: every request in one surrounding
// transaction, rejected as a whole when any member fails. The idempotency
// key covers the import as a unit.
func (s *Service) CreateMany(ctx context.Context, tenantID int64, idemKey string, inputs []CreateSaleInput) ([]Sale, error) {
	if tenantID <= 0 {
		return nil, shared.ErrTenantRequired
	}
	if len(inputs) == 0 {
		return nil, &ValidationError{Lines: []LineError{{Message: "at least one sale required"}}}
	}
	insertedKey, err := s.claimKey(ctx, tenantID, idemKey)
	if err != nil {
		return nil, err
	}
	created := make([]Sale, 0, len(inputs))
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
			sale, err := s.createInTx(ctx, tx, tenantID, i, input)
			if err != nil {
				var vErr *ValidationError
				if errors.As(err, &vErr) {
					failures = append(failures, vErr)
					continue
				}
				return err
			}
			created = append(created, sale)
		}
		if len(failures) > 0 {
			return &MultiValidationError{Requests: failures}
		}
		return nil
	})
	if err != nil {
		s.releaseKey(ctx, insertedKey)
		if errors.Is(err, stock.ErrInsufficientStock) && s.metrics != nil {
			s.metrics.StockRejected()
		}
		return nil, err
	}
	for _, sale := range created {
		s.afterCreate(ctx, tenantID, sale)
	}
	return created, nil
}

// claimKey reserves the scoped idempotency key, returning it for release on
// failure. A blank key or absent store claims nothing.
func (s *Service) claimKey(ctx context.Context, tenantID int64, idemKey string) (string, error) {
	if idemKey == "" || s.idempotency == nil {
		return "", nil
	}
	key := shared.ScopedKey(tenantID, "selling", idemKey)
	if err := s.idempotency.CheckAndInsert(ctx, key, "selling"); err != nil {
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

// List returns sales with their lines, newest first.
func (s *Service) List(ctx context.Context, tenantID int64, page shared.Pagination) ([]Sale, int, error) {
	if tenantID <= 0 {
		return nil, 0, shared.ErrTenantRequired
	}
	return s.repo.ListSales(ctx, tenantID, page)
}

// checkRequest validates request-level fields that need no repository access.
func checkRequest(input CreateSaleInput) error {
	var lineErrs []LineError
	if input.CustomerName == "" {
		lineErrs = append(lineErrs, LineError{Field: "customer_name", Message: "customer name required"})
	}
	if len(input.Lines) == 0 {
		lineErrs = append(lineErrs, LineError{Field: "lines", Message: "at least one line required"})
	}
	if input.Reference != "" {
		if _, err := uuid.Parse(input.Reference); err != nil {
			lineErrs = append(lineErrs, LineError{Field: "reference", Message: "reference must be a UUID"})
		}
	}
	for i, line := range input.Lines {
		if line.BatchID <= 0 {
			lineErrs = append(lineErrs, LineError{Index: i, Field: "batch_id", Message: "batch id required"})
		}
		if line.Quantity < 1 {
			lineErrs = append(lineErrs, LineError{Index: i, Field: "quantity", Message: "quantity must be at least 1"})
		}
	}
	if len(lineErrs) > 0 {
		return &ValidationError{Lines: lineErrs}
	}
	return nil
}

// createInTx draws down batches in submitted line order. Each line is checked
// against the batch's live quantity under a row lock, so two lines drawing
// from the same batch see each other's decrements. Any shortfall aborts the
// enclosing transaction and every prior decrement rolls back with it.
func (s *Service) createInTx(ctx context.Context, tx TxRepository, tenantID int64, request int, input CreateSaleInput) (Sale, error) {
	lines := make([]SaleLine, 0, len(input.Lines))
	var totalQty int64
	var totalAmount float64
	for i, line := range input.Lines {
		listing, err := tx.GetBatchForUpdate(ctx, tenantID, line.BatchID)
		if err != nil {
			if errors.Is(err, stock.ErrBatchNotFound) {
				return Sale{}, &ValidationError{Request: request, Lines: []LineError{{Index: i, Field: "batch_id", Message: fmt.Sprintf("batch %d not found", line.BatchID)}}}
			}
			return Sale{}, err
		}
		if line.Quantity > listing.Quantity {
			return Sale{}, &stock.InsufficientStockError{
				BatchID:   listing.ID,
				Requested: line.Quantity,
				Available: listing.Quantity,
			}
		}
		if _, err := tx.DecrementBatch(ctx, tenantID, line.BatchID, line.Quantity); err != nil {
			return Sale{}, err
		}
		totalCost, totalSelling := stock.BatchTotals(line.Quantity, listing.CostRate, listing.SellingRate)
		lines = append(lines, SaleLine{
			TenantID:          tenantID,
			BatchID:           listing.ID,
			ProductName:       listing.ProductName,
			BatchNumber:       listing.BatchNumber,
			Quantity:          line.Quantity,
			CostRate:          listing.CostRate,
			SellingRate:       listing.SellingRate,
			TotalCostPrice:    totalCost,
			TotalSellingPrice: totalSelling,
		})
		totalQty += line.Quantity
		totalAmount += totalSelling
	}

	billNo, err := s.allocator.Next(ctx, tenantID, sequence.PrefixSale)
	if err != nil {
		return Sale{}, err
	}
	header, err := tx.InsertSale(ctx, Sale{
		TenantID:     tenantID,
		BillNo:       billNo,
		CustomerName: input.CustomerName,
		Notes:        input.Notes,
	})
	if err != nil {
		return Sale{}, err
	}
	for _, line := range lines {
		line.SaleID = header.ID
		snapshot, err := tx.InsertSaleLine(ctx, line)
		if err != nil {
			return Sale{}, err
		}
		header.Lines = append(header.Lines, snapshot)
	}
	if err := tx.UpdateSaleTotals(ctx, tenantID, header.ID, totalQty, totalAmount); err != nil {
		return Sale{}, err
	}
	header.Quantity = totalQty
	header.TotalAmount = totalAmount
	return header, nil
}

func (s *Service) afterCreate(ctx context.Context, tenantID int64, sale Sale) {
	if s.metrics != nil {
		s.metrics.DocumentCreated("sale")
	}
	if s.reports != nil {
		_ = s.reports.Invalidate(ctx, tenantID)
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			TenantID: tenantID,
			Action:   "selling:create",
			Entity:   "sale",
			EntityID: sale.BillNo,
			Meta: map[string]any{
				"customer": sale.CustomerName,
				"lines":    len(sale.Lines),
				"quantity": sale.Quantity,
				"total":    sale.TotalAmount,
			},
		})
	}
}
