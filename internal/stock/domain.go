package stock

import (
	"errors"
	"fmt"
	"time"
)

// Batch is a dated lot of a product purchased at a specific cost/selling rate.
// Quantity is the current remaining amount, not the originally purchased one;
// the originating purchase line keeps the historical snapshot.
type Batch struct {
	ID                int64      `json:"id"`
	TenantID          int64      `json:"-"`
	ProductID         int64      `json:"product_id"`
	BatchNumber       string     `json:"batch_number,omitempty"`
	AddedAt           time.Time  `json:"added_at"`
	ExpiryAt          *time.Time `json:"expiry_at,omitempty"`
	Quantity          int64      `json:"quantity"`
	CostRate          float64    `json:"cost_rate"`
	SellingRate       float64    `json:"selling_rate"`
	TotalCostValue    float64    `json:"total_cost_value"`
	TotalSellingValue float64    `json:"total_selling_value"`
}

// BatchListing is a batch joined with its product name for list views.
type BatchListing struct {
	Batch
	ProductName string `json:"product_name"`
}

// NewBatchInput describes a batch to be created by purchase intake.
type NewBatchInput struct {
	ProductID   int64
	BatchNumber string
	ExpiryAt    *time.Time
	Quantity    int64
	CostRate    float64
	SellingRate float64
}

// BatchTotals recomputes the derived value columns for a quantity. Every
// mutation site must call it; totals are never carried forward.
func BatchTotals(quantity int64, costRate, sellingRate float64) (totalCost, totalSelling float64) {
	return float64(quantity) * costRate, float64(quantity) * sellingRate
}

var (
	// ErrBatchNotFound indicates the referenced batch does not exist in the partition.
	ErrBatchNotFound = errors.New("stock: batch not found")
	// ErrInsufficientStock indicates a decrement larger than the live quantity.
	ErrInsufficientStock = errors.New("stock: insufficient quantity")
	// ErrBatchReferenced blocks deletion of batches with recorded document lines.
	ErrBatchReferenced = errors.New("stock: batch referenced by document lines")
	// ErrInvalidQuantity indicates a non-positive quantity.
	ErrInvalidQuantity = errors.New("stock: quantity must be >= 1")
	// ErrInvalidRate indicates a negative rate.
	ErrInvalidRate = errors.New("stock: rates must be >= 0")
	// ErrBatchNumberRequired applies to batches of expirable products.
	ErrBatchNumberRequired = errors.New("stock: batch number required for expirable product")
	// ErrExpiryRequired applies to batches of expirable products.
	ErrExpiryRequired = errors.New("stock: expiry date required for expirable product")
	// ErrBatchNumberForbidden applies to batches of non-expirable products.
	ErrBatchNumberForbidden = errors.New("stock: batch number not allowed for non-expirable product")
	// ErrExpiryForbidden applies to batches of non-expirable products.
	ErrExpiryForbidden = errors.New("stock: expiry date not allowed for non-expirable product")
)

// InsufficientStockError reports the batch and its live quantity at check time.
type InsufficientStockError struct {
	BatchID   int64
	Requested int64
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("stock: batch %d has %d units available, %d requested", e.BatchID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// DuplicateBatchNumberError reports a batch number collision within the partition.
type DuplicateBatchNumberError struct {
	BatchNumber string
}

func (e *DuplicateBatchNumberError) Error() string {
	return fmt.Sprintf("stock: batch number %q already exists", e.BatchNumber)
}

// ValidateNewBatch enforces the expirability rules: expirable products require
// both batch number and expiry, non-expirable products must carry neither.
func ValidateNewBatch(expirable bool, in NewBatchInput) error {
	if in.Quantity < 1 {
		return ErrInvalidQuantity
	}
	if in.CostRate < 0 || in.SellingRate < 0 {
		return ErrInvalidRate
	}
	if expirable {
		if in.BatchNumber == "" {
			return ErrBatchNumberRequired
		}
		if in.ExpiryAt == nil {
			return ErrExpiryRequired
		}
	} else {
		if in.BatchNumber != "" {
			return ErrBatchNumberForbidden
		}
		if in.ExpiryAt != nil {
			return ErrExpiryForbidden
		}
	}
	return nil
}
