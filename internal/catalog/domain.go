package catalog

import (
	"errors"
	"fmt"
	"time"
)

// Product is a reference entity: it carries no stock state of its own, batches
// do. Name is unique per tenant, case-insensitively. The expirable flag
// decides whether its batches require batch numbers and expiry dates.
type Product struct {
	ID        int64     `json:"id"`
	TenantID  int64     `json:"-"`
	Name      string    `json:"name"`
	Category  string    `json:"category,omitempty"`
	Expirable bool      `json:"expirable"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProductSummary adds the derived stock aggregates shown in list views.
type ProductSummary struct {
	Product
	BatchCount        int64   `json:"batch_count"`
	TotalQuantity     int64   `json:"total_quantity"`
	TotalCostValue    float64 `json:"total_cost_value"`
	TotalSellingValue float64 `json:"total_selling_value"`
}

// ProductInput carries create/update fields. Expirable is fixed at creation:
// flipping it after batches exist would invalidate the batch numbering rules.
type ProductInput struct {
	Name      string
	Category  string
	Expirable bool
}

var (
	// ErrProductNotFound indicates the product does not exist in the partition.
	ErrProductNotFound = errors.New("catalog: product not found")
	// ErrProductReferenced blocks deletion of products that have batches.
	ErrProductReferenced = errors.New("catalog: product has batches")
	// ErrNameRequired indicates a blank product name.
	ErrNameRequired = errors.New("catalog: product name is required")
)

// DuplicateProductNameError reports a case-insensitive name collision.
type DuplicateProductNameError struct {
	Name string
}

func (e *DuplicateProductNameError) Error() string {
	return fmt.Sprintf("catalog: product name %q already exists", e.Name)
}
