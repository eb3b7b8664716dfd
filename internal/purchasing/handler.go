package purchasing

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/stockyard-erp/stockyard/internal/platform/httpx"
	"github.com/stockyard-erp/stockyard/internal/shared"
)

// Handler wires HTTP endpoints for purchases.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs purchasing handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers purchase routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/purchases", h.handleCreate)
	r.Get("/purchases", h.handleList)
}

type purchaseLineForm struct {
	ProductID   int64      `json:"product_id" validate:"required,min=1"`
	Quantity    int64      `json:"quantity" validate:"required,min=1"`
	CostRate    float64    `json:"cost_rate" validate:"gte=0"`
	SellingRate float64    `json:"selling_rate" validate:"gte=0"`
	BatchNumber string     `json:"batch_number"`
	ExpiryDate  *time.Time `json:"expiry_date"`
}

type purchaseForm struct {
	SupplierName string             `json:"supplier_name" validate:"required,max=100"`
	PurchaseDate *time.Time         `json:"purchase_date"`
	Notes        string             `json:"notes"`
	Reference    string             `json:"reference"`
	Lines        []purchaseLineForm `json:"lines" validate:"required,min=1,dive"`
}

func (f purchaseForm) toInput(idemKey string) CreatePurchaseInput {
	input := CreatePurchaseInput{
		SupplierName:   f.SupplierName,
		Notes:          f.Notes,
		Reference:      f.Reference,
		IdempotencyKey: idemKey,
	}
	if f.PurchaseDate != nil {
		input.PurchaseDate = *f.PurchaseDate
	}
	for _, l := range f.Lines {
		input.Lines = append(input.Lines, LineInput{
			ProductID:   l.ProductID,
			Quantity:    l.Quantity,
			CostRate:    l.CostRate,
			SellingRate: l.SellingRate,
			BatchNumber: l.BatchNumber,
			ExpiryAt:    l.ExpiryDate,
		})
	}
	return input
}

// handleCreate accepts a single purchase object or an array for batch import.
func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	tenantID := shared.TenantFromContext(r.Context())
	body, err := io.ReadAll(r.Body)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	idemKey := r.Header.Get("Idempotency-Key")

	trimmed := bytes.TrimLeft(body, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var forms []purchaseForm
		if err := json.Unmarshal(body, &forms); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
			return
		}
		for i, form := range forms {
			if err := h.validator.Struct(form); err != nil {
				httpx.ProblemWithErrors(w, http.StatusBadRequest, "Validation Failed", "request "+strconv.Itoa(i)+" invalid", formErrors(err))
				return
			}
		}
		inputs := make([]CreatePurchaseInput, 0, len(forms))
		for _, form := range forms {
			inputs = append(inputs, form.toInput(""))
		}
		purchases, err := h.service.CreateMany(r.Context(), tenantID, idemKey, inputs)
		if err != nil {
			h.respondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusCreated, purchases)
		return
	}

	var form purchaseForm
	if err := json.Unmarshal(body, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.ProblemWithErrors(w, http.StatusBadRequest, "Validation Failed", "", formErrors(err))
		return
	}
	purchase, err := h.service.Create(r.Context(), tenantID, form.toInput(idemKey))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, purchase)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	tenantID := shared.TenantFromContext(r.Context())
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))

	purchases, total, err := h.service.List(r.Context(), tenantID, shared.NewPagination(page, perPage, 0))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"purchases":  purchases,
		"pagination": shared.NewPagination(page, perPage, total),
	})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var vErr *ValidationError
	var mErr *MultiValidationError
	switch {
	case errors.As(err, &mErr):
		httpx.ProblemWithErrors(w, http.StatusBadRequest, "Validation Failed", "batch import rejected", mErr.Requests)
	case errors.As(err, &vErr):
		httpx.ProblemWithErrors(w, http.StatusBadRequest, "Validation Failed", "", vErr.Lines)
	default:
		if h.logger != nil {
			h.logger.Error("purchasing handler", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
	}
}

func formErrors(err error) []LineError {
	var out []LineError
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		for _, fe := range fieldErrs {
			out = append(out, LineError{Field: fe.Field(), Message: "failed " + fe.Tag() + " validation"})
		}
	} else {
		out = append(out, LineError{Message: err.Error()})
	}
	return out
}
