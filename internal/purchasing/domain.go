package purchasing

import (
	"fmt"
	"strings"
	"time"
)

// Purchase is the document header for one goods intake. TotalAmount is the
// sum of its lines' cost totals, computed during creation.
type Purchase struct {
	ID           int64          `json:"id"`
	TenantID     int64          `json:"-"`
	BillNo       string         `json:"bill_no"`
	SupplierName string         `json:"supplier_name"`
	PurchaseDate time.Time      `json:"purchase_date"`
	Notes        string         `json:"notes,omitempty"`
	TotalAmount  float64        `json:"total_amount"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	Lines        []PurchaseLine `json:"lines"`
}

// PurchaseLine is the immutable historical snapshot of the batch a purchase
// created: later sales mutate the batch, never the line.
type PurchaseLine struct {
	ID                int64   `json:"id"`
	TenantID          int64   `json:"-"`
	PurchaseID        int64   `json:"purchase_id"`
	BatchID           int64   `json:"batch_id"`
	ProductName       string  `json:"product_name"`
	BatchNumber       string  `json:"batch_number,omitempty"`
	Quantity          int64   `json:"quantity"`
	CostRate          float64 `json:"cost_rate"`
	SellingRate       float64 `json:"selling_rate"`
	TotalCostPrice    float64 `json:"total_cost_price"`
	TotalSellingPrice float64 `json:"total_selling_price"`
}

// LineInput describes one requested purchase line.
type LineInput struct {
	ProductID   int64
	Quantity    int64
	CostRate    float64
	SellingRate float64
	BatchNumber string
	ExpiryAt    *time.Time
}

// CreatePurchaseInput describes one purchase request.
type CreatePurchaseInput struct {
	SupplierName   string
	PurchaseDate   time.Time
	Notes          string
	Reference      string // optional caller-side correlation id (UUID)
	IdempotencyKey string
	Lines          []LineInput
}

// LineError reports a validation failure on one line of a request.
type LineError struct {
	Index   int    `json:"index"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// ValidationError aggregates per-line failures; the whole request is rejected
// with no side effects when it is returned.
type ValidationError struct {
	// Request is the position within a batch import, zero for single requests.
	Request int
	Lines   []LineError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Lines))
	for _, l := range e.Lines {
		parts = append(parts, fmt.Sprintf("line %d: %s", l.Index, l.Message))
	}
	return fmt.Sprintf("purchasing: request %d invalid: %s", e.Request, strings.Join(parts, "; "))
}

// MultiValidationError rejects a whole batch import when any member fails.
type MultiValidationError struct {
	Requests []*ValidationError
}

func (e *MultiValidationError) Error() string {
	parts := make([]string, 0, len(e.Requests))
	for _, r := range e.Requests {
		parts = append(parts, r.Error())
	}
	return strings.Join(parts, " | ")
}
