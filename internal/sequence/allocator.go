// Package sequence hands out monotonically increasing, human readable
// document numbers (PUR-000123, SAL-000456) per tenant and prefix.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockyard-erp/stockyard/internal/shared"
)

// Document number prefixes used by the processors.
const (
	PrefixPurchase = "PUR"
	PrefixSale     = "SAL"
)

// Allocator produces the next document number for a prefix. Implementations
// must be safe under concurrent allocation and must never hand out the same
// number twice. Numbers consumed by transactions that later roll back are
// skipped, never reused.
type Allocator interface {
	Next(ctx context.Context, tenantID int64, prefix string) (string, error)
}

// Format renders a counter value as a bill number. Values beyond six digits
// widen naturally.
func Format(prefix string, value int64) string {
	return fmt.Sprintf("%s-%06d", prefix, value)
}

// PGAllocator increments a per-tenant counter row in a single upsert
// statement. It runs on the pool, outside any enclosing document transaction,
// so the increment commits on its own: that is the allocator's independent
// serialization point.
type PGAllocator struct {
	pool *pgxpool.Pool
}

// NewPGAllocator constructs PGAllocator.
func NewPGAllocator(pool *pgxpool.Pool) *PGAllocator {
	return &PGAllocator{pool: pool}
}

// Next allocates the next number for the tenant and prefix.
func (a *PGAllocator) Next(ctx context.Context, tenantID int64, prefix string) (string, error) {
	if a == nil || a.pool == nil {
		return "", errors.New("sequence: allocator not initialised")
	}
	if tenantID <= 0 {
		return "", shared.ErrTenantRequired
	}
	if prefix == "" {
		return "", errors.New("sequence: prefix required")
	}
	var value int64
	err := a.pool.QueryRow(ctx, `INSERT INTO doc_sequences (tenant_id, prefix, value)
VALUES ($1, $2, 1)
ON CONFLICT (tenant_id, prefix) DO UPDATE SET value = doc_sequences.value + 1
RETURNING value`, tenantID, prefix).Scan(&value)
	if err != nil {
		return "", fmt.Errorf("sequence: next %s: %w", prefix, err)
	}
	return Format(prefix, value), nil
}

// MemoryAllocator is an in-process Allocator used by tests and memory repos.
type MemoryAllocator struct {
	mu       sync.Mutex
	counters map[string]int64
}

// NewMemoryAllocator constructs MemoryAllocator.
func NewMemoryAllocator() *MemoryAllocator {
	return &MemoryAllocator{counters: make(map[string]int64)}
}

// Next allocates the next number for the tenant and prefix.
func (a *MemoryAllocator) Next(ctx context.Context, tenantID int64, prefix string) (string, error) {
	if tenantID <= 0 {
		return "", shared.ErrTenantRequired
	}
	if prefix == "" {
		return "", errors.New("sequence: prefix required")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	key := fmt.Sprintf("%d:%s", tenantID, prefix)
	a.counters[key]++
	return Format(prefix, a.counters[key]), nil
}
