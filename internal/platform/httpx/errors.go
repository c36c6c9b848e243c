// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/chalkboard-sms/chalkboard/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrSchoolNotFound):
		Problem(w, http.StatusNotFound, "Unknown School", err.Error())
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrTenantUnreachable):
		Problem(w, http.StatusServiceUnavailable, "Tenant Unreachable", err.Error())
	case errors.Is(err, shared.ErrDuplicateIdentifier):
		Problem(w, http.StatusConflict, "Duplicate Identifier", err.Error())
	case errors.Is(err, shared.ErrPermissionDenied):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
