package tenancy

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/stockyard-erp/stockyard/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the tenant directory. These routes live
// outside the partition middleware: they administer the partitions themselves.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs tenancy handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers tenant routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/tenants", h.handleCreate)
	r.Get("/tenants", h.handleList)
	r.Get("/tenants/{id}", h.handleGet)
	r.Put("/tenants/{id}", h.handleUpdate)
	r.Post("/tenants/{id}/reconcile", h.handleReconcile)
	r.Post("/tenants/{id}/directory", h.handleAddEntry)
	r.Get("/tenants/{id}/directory", h.handleListEntries)
	r.Get("/tenants/{id}/shared", h.handleListShared)
}

type tenantForm struct {
	Slug    string `json:"slug" validate:"max=64"`
	Name    string `json:"name" validate:"required,max=100"`
	Contact string `json:"contact" validate:"max=200"`
}

type entryForm struct {
	Name    string `json:"name" validate:"required,max=100"`
	Contact string `json:"contact" validate:"max=200"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var form tenantForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	tenant, err := h.service.Create(r.Context(), TenantInput{Slug: form.Slug, Name: form.Name, Contact: form.Contact})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, tenant)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.service.List(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"tenants": tenants})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "tenant id must be numeric")
		return
	}
	tenant, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tenant)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "tenant id must be numeric")
		return
	}
	var form tenantForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	tenant, err := h.service.Update(r.Context(), id, TenantInput{Name: form.Name, Contact: form.Contact})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tenant)
}

func (h *Handler) handleReconcile(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "tenant id must be numeric")
		return
	}
	synced, err := h.service.Reconcile(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"synced": synced})
}

func (h *Handler) handleAddEntry(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "tenant id must be numeric")
		return
	}
	var form entryForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	entry, err := h.service.AddEntry(r.Context(), id, form.Name, form.Contact)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) handleListEntries(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "tenant id must be numeric")
		return
	}
	entries, err := h.service.ListEntries(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handler) handleListShared(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "tenant id must be numeric")
		return
	}
	entries, err := h.service.SharedEntries(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func parseID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var dup *DuplicateSlugError
	switch {
	case errors.Is(err, ErrTenantNotFound):
		httpx.Problem(w, http.StatusNotFound, "Tenant Not Found", err.Error())
	case errors.Is(err, ErrSlugRequired), errors.Is(err, ErrNameRequired):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.As(err, &dup):
		httpx.Problem(w, http.StatusConflict, "Duplicate Slug", err.Error())
	default:
		if h.logger != nil {
			h.logger.Error("tenancy handler", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
	}
}
