package ledger

import (
	"errors"
	"time"
)

// Mode selects the report variant: full keeps every product, sparse omits
// products whose four buckets are all zero.
type Mode string

const (
	ModeFull   Mode = "full"
	ModeSparse Mode = "sparse"
)

var (
	// ErrInvalidMode indicates an unknown report mode.
	ErrInvalidMode = errors.New("ledger: mode must be full or sparse")
	// ErrInvalidRange indicates start after end or a missing bound.
	ErrInvalidRange = errors.New("ledger: invalid date range")
)

// ParseMode interprets the query string value; empty means full.
func ParseMode(raw string) (Mode, error) {
	switch Mode(raw) {
	case "", ModeFull:
		return ModeFull, nil
	case ModeSparse:
		return ModeSparse, nil
	default:
		return "", ErrInvalidMode
	}
}

// Snapshot is one valuation bucket: a quantity with its weighted-average rates.
type Snapshot struct {
	Quantity        int64   `json:"quantity"`
	AvgCostPrice    float64 `json:"avg_cost_price"`
	AvgSellingPrice float64 `json:"avg_selling_price"`
}

// IsZero reports whether the bucket carries no quantity and no value.
func (s Snapshot) IsZero() bool {
	return s.Quantity == 0 && s.AvgCostPrice == 0 && s.AvgSellingPrice == 0
}

// ProductLedgerRow is the per-product report line: stock position at the
// window's edges plus movement inside it.
type ProductLedgerRow struct {
	ProductID   int64    `json:"product_id"`
	ProductName string   `json:"product_name"`
	Opening     Snapshot `json:"opening"`
	Purchases   Snapshot `json:"purchases"`
	Sales       Snapshot `json:"sales"`
	Closing     Snapshot `json:"closing"`
}

// Report is the rendered ledger for one tenant and window.
type Report struct {
	Start       time.Time          `json:"start"`
	End         time.Time          `json:"end"`
	Mode        Mode               `json:"mode"`
	Rows        []ProductLedgerRow `json:"rows"`
	GeneratedAt time.Time          `json:"generated_at"`
}

// NormalizeRange validates the window and pins end to the last instant of its
// day, making the range end-inclusive for date-only inputs.
func NormalizeRange(start, end time.Time) (time.Time, time.Time, error) {
	if start.IsZero() || end.IsZero() {
		return time.Time{}, time.Time{}, ErrInvalidRange
	}
	end = time.Date(end.Year(), end.Month(), end.Day(), 23, 59, 59, int(time.Second-time.Nanosecond), end.Location())
	if end.Before(start) {
		return time.Time{}, time.Time{}, ErrInvalidRange
	}
	return start, end, nil
}
