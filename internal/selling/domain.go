package selling

import (
	"fmt"
	"strings"
	"time"
)

// Sale is the document header for one outbound sale. Quantity and TotalAmount
// aggregate its lines.
type Sale struct {
	ID           int64      `json:"id"`
	TenantID     int64      `json:"-"`
	BillNo       string     `json:"bill_no"`
	CustomerName string     `json:"customer_name"`
	Quantity     int64      `json:"quantity"`
	TotalAmount  float64    `json:"total_amount"`
	Notes        string     `json:"notes,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	Lines        []SaleLine `json:"lines"`
}

// SaleLine snapshots the batch it drew from at the instant of sale. Rates are
// taken from the batch, never from the caller, and the line is immutable:
// it is the append-only event log the valuation engine reconstructs from.
type SaleLine struct {
	ID                int64     `json:"id"`
	TenantID          int64     `json:"-"`
	SaleID            int64     `json:"sale_id"`
	BatchID           int64     `json:"batch_id"`
	ProductName       string    `json:"product_name"`
	BatchNumber       string    `json:"batch_number,omitempty"`
	Quantity          int64     `json:"quantity"`
	CostRate          float64   `json:"cost_rate"`
	SellingRate       float64   `json:"selling_rate"`
	TotalCostPrice    float64   `json:"total_cost_price"`
	TotalSellingPrice float64   `json:"total_selling_price"`
	CreatedAt         time.Time `json:"created_at"`
}

// SaleLineInput describes one requested sale line.
type SaleLineInput struct {
	BatchID  int64
	Quantity int64
}

// CreateSaleInput describes one sale request.
type CreateSaleInput struct {
	CustomerName   string
	Notes          string
	Reference      string // optional caller-side correlation id (UUID)
	IdempotencyKey string
	Lines          []SaleLineInput
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
	return fmt.Sprintf("selling: request %d invalid: %s", e.Request, strings.Join(parts, "; "))
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

