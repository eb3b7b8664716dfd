package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/stockyard-erp/stockyard/internal/catalog"
	"github.com/stockyard-erp/stockyard/internal/ledger"
	"github.com/stockyard-erp/stockyard/internal/observability"
	"github.com/stockyard-erp/stockyard/internal/purchasing"
	"github.com/stockyard-erp/stockyard/internal/selling"
	"github.com/stockyard-erp/stockyard/internal/stock"
	"github.com/stockyard-erp/stockyard/internal/tenancy"
	"github.com/stockyard-erp/stockyard/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	TenancyHandler    *tenancy.Handler
	TenantMiddleware  func(http.Handler) http.Handler
	CatalogHandler    *catalog.Handler
	StockHandler      *stock.Handler
	PurchasingHandler *purchasing.Handler
	SellingHandler    *selling.Handler
	LedgerHandler     *ledger.Handler
	JobHandler        *jobs.Handler
	Metrics           *observability.Metrics
}

// NewRouter constructs the chi.Router with stockyard defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api", func(api chi.Router) {
		// Tenant administration runs outside the partition middleware:
		// it manages the partitions themselves.
		if params.TenancyHandler != nil {
			params.TenancyHandler.MountRoutes(api)
		}
		api.Group(func(scoped chi.Router) {
			if params.TenantMiddleware != nil {
				scoped.Use(params.TenantMiddleware)
			}
			if params.CatalogHandler != nil {
				params.CatalogHandler.MountRoutes(scoped)
			}
			if params.StockHandler != nil {
				params.StockHandler.MountRoutes(scoped)
			}
			if params.PurchasingHandler != nil {
				params.PurchasingHandler.MountRoutes(scoped)
			}
			if params.SellingHandler != nil {
				params.SellingHandler.MountRoutes(scoped)
			}
			if params.LedgerHandler != nil {
				params.LedgerHandler.MountRoutes(scoped)
			}
		})
	})

	if params.JobHandler != nil {
		r.Route("/jobs", func(jobsRouter chi.Router) {
			params.JobHandler.MountRoutes(jobsRouter)
		})
	}

	return r
}
