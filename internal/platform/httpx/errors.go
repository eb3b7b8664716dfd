package httpx

import (
	"errors"
	"net/http"

	"github.com/stockyard-erp/stockyard/internal/shared"
)

// RespondError maps cross-cutting errors to HTTP responses using RFC7807.
// Domain packages map their own richer errors before falling through here.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrTenantRequired):
		Problem(w, http.StatusBadRequest, "Tenant Not Resolved", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		Problem(w, http.StatusConflict, "Duplicate Request", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
