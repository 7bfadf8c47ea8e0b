package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"booking/internal/domain"
	"booking/internal/repository"
	"booking/internal/service"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// respondError sends an error response with the appropriate HTTP status code.
func respondError(c *gin.Context, err error) {
	code := mapErrorToHTTPStatus(err)
	if code >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(code, ErrorResponse{Error: err.Error()})
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

// mapErrorToHTTPStatus maps service/repository errors to HTTP status codes.
func mapErrorToHTTPStatus(err error) int {
	switch {
	// Not found errors
	case errors.Is(err, repository.ErrNotFound),
		errors.Is(err, service.ErrUnknownReference):
		return http.StatusNotFound

	// Validation errors - Bad Request
	case errors.Is(err, service.ErrMalformedPayload),
		errors.Is(err, service.ErrInvalidUserID),
		errors.Is(err, service.ErrInvalidPaymentAmount),
		errors.Is(err, service.ErrInvalidPaymentMethod),
		errors.Is(err, service.ErrInvalidPaymentID),
		errors.Is(err, service.ErrMissingBookingLink),
		errors.Is(err, service.ErrInvalidBookingKind),
		errors.Is(err, service.ErrInvalidBookingID),
		errors.Is(err, service.ErrInvalidBookingStatus),
		errors.Is(err, service.ErrInvalidActor),
		errors.Is(err, service.ErrInvalidLocation):
		return http.StatusBadRequest

	// Conflict errors
	case errors.Is(err, service.ErrEventInFlight),
		errors.Is(err, service.ErrDuplicateGatewayReference),
		errors.Is(err, service.ErrConcurrentTransition),
		errors.Is(err, service.ErrBookingNotInProgress),
		errors.Is(err, domain.ErrTransitionRejected):
		return http.StatusConflict

	// Default to internal server error
	default:
		return http.StatusInternalServerError
	}
}

func parseKind(c *gin.Context) (domain.BookingKind, bool) {
	kind, err := domain.ParseBookingKind(c.Param("kind"))
	if err != nil {
		respondError(c, service.ErrInvalidBookingKind)
		return "", false
	}
	return kind, true
}
