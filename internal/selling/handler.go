package selling

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/stockyard-erp/stockyard/internal/platform/httpx"
	"github.com/stockyard-erp/stockyard/internal/shared"
	"github.com/stockyard-erp/stockyard/internal/stock"
)

// Handler wires HTTP endpoints for sales.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs selling handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers sale routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/sales", h.handleCreate)
	r.Get("/sales", h.handleList)
}

type saleLineForm struct {
	BatchID  int64 `json:"batch_id" validate:"required,min=1"`
	Quantity int64 `json:"quantity" validate:"required,min=1"`
}

type saleForm struct {
	CustomerName string         `json:"customer_name" validate:"required,max=100"`
	Notes        string         `json:"notes"`
	Reference    string         `json:"reference"`
	Lines        []saleLineForm `json:"lines" validate:"required,min=1,dive"`
}

func (f saleForm) toInput(idemKey string) CreateSaleInput {
	input := CreateSaleInput{
		CustomerName:   f.CustomerName,
		Notes:          f.Notes,
		Reference:      f.Reference,
		IdempotencyKey: idemKey,
	}
	for _, l := range f.Lines {
		input.Lines = append(input.Lines, SaleLineInput{BatchID: l.BatchID, Quantity: l.Quantity})
	}
	return input
}

// handleCreate accepts a single sale object or an array for batch import.
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
		var forms []saleForm
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
		inputs := make([]CreateSaleInput, 0, len(forms))
		for _, form := range forms {
			inputs = append(inputs, form.toInput(""))
		}
		sales, err := h.service.CreateMany(r.Context(), tenantID, idemKey, inputs)
		if err != nil {
			h.respondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusCreated, sales)
		return
	}

	var form saleForm
	if err := json.Unmarshal(body, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.ProblemWithErrors(w, http.StatusBadRequest, "Validation Failed", "", formErrors(err))
		return
	}
	sale, err := h.service.Create(r.Context(), tenantID, form.toInput(idemKey))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sale)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	tenantID := shared.TenantFromContext(r.Context())
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))

	sales, total, err := h.service.List(r.Context(), tenantID, shared.NewPagination(page, perPage, 0))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"sales":      sales,
		"pagination": shared.NewPagination(page, perPage, total),
	})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var vErr *ValidationError
	var mErr *MultiValidationError
	var stockErr *stock.InsufficientStockError
	switch {
	case errors.As(err, &mErr):
		httpx.ProblemWithErrors(w, http.StatusBadRequest, "Validation Failed", "batch import rejected", mErr.Requests)
	case errors.As(err, &vErr):
		httpx.ProblemWithErrors(w, http.StatusBadRequest, "Validation Failed", "", vErr.Lines)
	case errors.As(err, &stockErr):
		httpx.Problem(w, http.StatusBadRequest, "Insufficient Stock", stockErr.Error())
	case errors.Is(err, stock.ErrInsufficientStock):
		httpx.Problem(w, http.StatusBadRequest, "Insufficient Stock", err.Error())
	default:
		if h.logger != nil {
			h.logger.Error("selling handler", slog.Any("error", err))
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
