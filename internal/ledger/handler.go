package ledger

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stockyard-erp/stockyard/internal/platform/httpx"
	"github.com/stockyard-erp/stockyard/internal/shared"
)

// Handler wires the ledger report endpoint.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs ledger handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/ledger", h.handleReport)
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	tenantID := shared.TenantFromContext(r.Context())
	q := r.URL.Query()

	start, err := parseDate(q.Get("start"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Range", "start must be a YYYY-MM-DD date")
		return
	}
	end, err := parseDate(q.Get("end"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Range", "end must be a YYYY-MM-DD date")
		return
	}
	mode, err := ParseMode(q.Get("mode"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Mode", err.Error())
		return
	}

	report, err := h.service.Report(r.Context(), tenantID, start, end, mode)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidRange), errors.Is(err, ErrInvalidMode):
			httpx.Problem(w, http.StatusBadRequest, "Invalid Range", err.Error())
		default:
			if h.logger != nil {
				h.logger.Error("ledger handler", slog.Any("error", err))
			}
			httpx.RespondError(w, err)
		}
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, ErrInvalidRange
	}
	return time.Parse("2006-01-02", raw)
}
