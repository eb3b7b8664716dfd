package tenancy

import (
	"context"
	"net/http"
	"strconv"

	"github.com/stockyard-erp/stockyard/internal/platform/httpx"
	"github.com/stockyard-erp/stockyard/internal/shared"
)

// Resolver verifies a partition handle against the tenant directory.
type Resolver interface {
	ResolveByID(ctx context.Context, id int64) (Tenant, error)
	ResolveBySlug(ctx context.Context, slug string) (Tenant, error)
}

// Middleware resolves the caller's partition from X-Tenant-ID or
// X-Tenant-Slug and binds it into the request context. The core never runs
// without a partition key, so requests that resolve nothing end here with 400.
func Middleware(resolver Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenant, ok := resolve(r, resolver)
			if !ok {
				httpx.Problem(w, http.StatusBadRequest, "Tenant Not Resolved", "request carries no resolvable tenant")
				return
			}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithTenant(r.Context(), tenant.ID)))
		})
	}
}

func resolve(r *http.Request, resolver Resolver) (Tenant, bool) {
	if raw := r.Header.Get("X-Tenant-ID"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return Tenant{}, false
		}
		t, err := resolver.ResolveByID(r.Context(), id)
		if err != nil {
			return Tenant{}, false
		}
		return t, true
	}
	if slug := r.Header.Get("X-Tenant-Slug"); slug != "" {
		t, err := resolver.ResolveBySlug(r.Context(), slug)
		if err != nil {
			return Tenant{}, false
		}
		return t, true
	}
	return Tenant{}, false
}
