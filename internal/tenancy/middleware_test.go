package tenancy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stockyard-erp/stockyard/internal/shared"
)

type staticResolver struct {
	tenants map[string]Tenant
}

func (r staticResolver) ResolveByID(ctx context.Context, id int64) (Tenant, error) {
	for _, t := range r.tenants {
		if t.ID == id {
			return t, nil
		}
	}
	return Tenant{}, ErrTenantNotFound
}

func (r staticResolver) ResolveBySlug(ctx context.Context, slug string) (Tenant, error) {
	t, ok := r.tenants[slug]
	if !ok {
		return Tenant{}, ErrTenantNotFound
	}
	return t, nil
}

func TestMiddlewareBindsTenant(t *testing.T) {
	resolver := staticResolver{tenants: map[string]Tenant{"acme": {ID: 7, Slug: "acme"}}}
	var seen int64
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = shared.TenantFromContext(r.Context())
	})
	handler := Middleware(resolver)(next)

	req := httptest.NewRequest(http.MethodGet, "/api/batches", nil)
	req.Header.Set("X-Tenant-Slug", "acme")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	require.EqualValues(t, 7, seen)

	seen = 0
	req = httptest.NewRequest(http.MethodGet, "/api/batches", nil)
	req.Header.Set("X-Tenant-ID", "7")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	require.EqualValues(t, 7, seen)
}

func TestMiddlewareRejectsUnresolvedTenant(t *testing.T) {
	resolver := staticResolver{tenants: map[string]Tenant{}}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without a tenant")
	})
	handler := Middleware(resolver)(next)

	for _, set := range []func(*http.Request){
		func(r *http.Request) {},
		func(r *http.Request) { r.Header.Set("X-Tenant-Slug", "ghost") },
		func(r *http.Request) { r.Header.Set("X-Tenant-ID", "0") },
		func(r *http.Request) { r.Header.Set("X-Tenant-ID", "abc") },
	} {
		req := httptest.NewRequest(http.MethodGet, "/api/batches", nil)
		set(req)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	}
}
