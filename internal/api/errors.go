package api

import (
	"errors"
	"net/http"

	"github.com/good-yellow-bee/nurserywatch/internal/acquisition"
	"github.com/good-yellow-bee/nurserywatch/internal/alerting"
	"github.com/good-yellow-bee/nurserywatch/internal/models"
	"github.com/good-yellow-bee/nurserywatch/internal/notifier"
)

// Error represents an API error response.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
}

func (e *Error) Error() string {
	return e.Message
}

// Common error codes
const (
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeBadRequest         = "BAD_REQUEST"
	ErrCodeConflict           = "CONFLICT"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeRateLimited        = "RATE_LIMITED"
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
	ErrCodePermissionRequired = "PERMISSION_REQUIRED"
	ErrCodeUnavailable        = "UNAVAILABLE"
)

// Standard errors
var (
	ErrNotFound = &Error{
		Code:    ErrCodeNotFound,
		Message: "Resource not found",
		Status:  http.StatusNotFound,
	}

	ErrInternalServer = &Error{
		Code:    ErrCodeInternalError,
		Message: "Internal server error",
		Status:  http.StatusInternalServerError,
	}

	ErrRateLimited = &Error{
		Code:    ErrCodeRateLimited,
		Message: "Too many requests",
		Status:  http.StatusTooManyRequests,
	}
)

// NewBadRequest creates a bad request error with custom message.
func NewBadRequest(message string) *Error {
	return &Error{
		Code:    ErrCodeBadRequest,
		Message: message,
		Status:  http.StatusBadRequest,
	}
}

// NewValidationError creates a validation error with custom message.
func NewValidationError(message string) *Error {
	return &Error{
		Code:    ErrCodeValidationFailed,
		Message: message,
		Status:  http.StatusBadRequest,
	}
}

// NewConflict creates a conflict error with custom message.
func NewConflict(message string) *Error {
	return &Error{
		Code:    ErrCodeConflict,
		Message: message,
		Status:  http.StatusConflict,
	}
}

// NewNotFound creates a not found error with custom message.
func NewNotFound(message string) *Error {
	return &Error{
		Code:    ErrCodeNotFound,
		Message: message,
		Status:  http.StatusNotFound,
	}
}

// FromError maps domain errors to API errors. Unknown errors become 500.
func FromError(err error) *Error {
	var apiErr *Error
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, models.ErrInvalidConfig),
		errors.Is(err, notifier.ErrContactRequired),
		errors.Is(err, alerting.ErrNoChannel),
		errors.Is(err, alerting.ErrNotificationsDisabled):
		return NewValidationError(err.Error())
	case errors.Is(err, notifier.ErrPermissionRequired):
		return &Error{Code: ErrCodePermissionRequired, Message: err.Error(), Status: http.StatusForbidden}
	case errors.Is(err, notifier.ErrRateLimited):
		return &Error{Code: ErrCodeRateLimited, Message: err.Error(), Status: http.StatusTooManyRequests}
	case errors.Is(err, acquisition.ErrFetchInFlight), errors.Is(err, acquisition.ErrSourceChanged):
		return NewConflict(err.Error())
	case errors.Is(err, notifier.ErrNotConfigured):
		return &Error{Code: ErrCodeUnavailable, Message: err.Error(), Status: http.StatusServiceUnavailable}
	default:
		return ErrInternalServer
	}
}
