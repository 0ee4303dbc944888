package api

import (
	"errors"
	"net/http"

	"github.com/Domenick1991/tourbooking/internal/domain"
	"github.com/gin-gonic/gin"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// statusFor maps domain outcomes to HTTP. Order matters: a refused release
// reported as a conflict matches both ErrConflict and ErrCapacityOverflow.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrInsufficientCapacity):
		return http.StatusConflict, "insufficient_capacity"
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, domain.ErrPackageInUse):
		return http.StatusConflict, "package_in_use"
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusUnprocessableEntity, "invalid_transition"
	case errors.Is(err, domain.ErrPackageInactive):
		return http.StatusUnprocessableEntity, "package_inactive"
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, domain.ErrInvalidQuantity):
		return http.StatusBadRequest, "invalid_quantity"
	case errors.Is(err, domain.ErrInvalidMaxSlots):
		return http.StatusBadRequest, "invalid_max_slots"
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, domain.ErrStorageFailure):
		return http.StatusServiceUnavailable, "storage_failure"
	case errors.Is(err, domain.ErrCapacityOverflow):
		return http.StatusInternalServerError, "capacity_overflow"
	}
	return http.StatusInternalServerError, "internal"
}

func writeError(c *gin.Context, err error) {
	status, code := statusFor(err)
	_ = c.Error(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		msg = http.StatusText(status)
	}
	c.JSON(status, errorResponse{Error: msg, Code: code})
}

func badRequest(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "invalid_input"})
}
