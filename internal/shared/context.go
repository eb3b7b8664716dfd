package shared

import (
	"context"
	"errors"
)

// ErrTenantRequired is returned by core services invoked without a partition key.
var ErrTenantRequired = errors.New("tenant partition not resolved")

type tenantContextKey struct{}

// ContextWithTenant binds the resolved tenant partition to the context.
func ContextWithTenant(ctx context.Context, tenantID int64) context.Context {
	return context.WithValue(ctx, tenantContextKey{}, tenantID)
}

// TenantFromContext extracts the tenant partition key, zero when unresolved.
func TenantFromContext(ctx context.Context) int64 {
	id, _ := ctx.Value(tenantContextKey{}).(int64)
	return id
}
