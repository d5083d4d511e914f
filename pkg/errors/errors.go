package errors

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
)

// AppError represents an application error with HTTP status code
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new AppError
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
		Err:     err,
	}
}

// Common error constructors

// BadRequest creates a 400 error
func BadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    "BAD_REQUEST",
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     err,
	}
}

// Forbidden creates a 403 error
func Forbidden(code, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  http.StatusForbidden,
		Err:     err,
	}
}

// NotFound creates a 404 error
func NotFound(message string, err error) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Message: message,
		Status:  http.StatusNotFound,
		Err:     err,
	}
}

// Conflict creates a 409 error
func Conflict(code, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  http.StatusConflict,
		Err:     err,
	}
}

// Internal creates a 500 error
func Internal(message string, err error) *AppError {
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Message: message,
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// ServiceUnavailable creates a 503 error
func ServiceUnavailable(message string, err error) *AppError {
	return &AppError{
		Code:    "SERVICE_UNAVAILABLE",
		Message: message,
		Status:  http.StatusServiceUnavailable,
		Err:     err,
	}
}

// Coordinator error taxonomy. Each kind keeps a distinct code so the
// API layer can surface a specific user-facing message instead of a
// generic failure.

var (
	ErrInvalidTransition = Conflict("INVALID_TRANSITION",
		"The booking is no longer in a state that allows this action", nil)
	ErrUnauthorized = Forbidden("UNAUTHORIZED",
		"You are not allowed to act on this booking", nil)
	ErrSelfBookingForbidden = Forbidden("SELF_BOOKING_FORBIDDEN",
		"Drivers cannot book a seat on their own ride", nil)
	ErrGenderMismatch = Forbidden("GENDER_MISMATCH",
		"This ride is restricted to a different gender", nil)
	ErrSeatsUnavailable = Conflict("SEATS_UNAVAILABLE",
		"No seats left on this ride", nil)
	ErrDuplicateRequest = Conflict("DUPLICATE_REQUEST",
		"You already have an active request on this ride", nil)
	ErrRideNotFound    = NotFound("Ride not found", nil)
	ErrRequestNotFound = NotFound("Ride request not found", nil)
	ErrUserNotFound    = NotFound("User not found", nil)
	ErrTransientFailure = ServiceUnavailable(
		"A temporary problem occurred, please retry", nil)
	ErrInvalidRating = BadRequest("Rating must be between 1 and 5", nil)
)

// Transient wraps err as a retryable TransientFailure.
func Transient(err error) *AppError {
	return &AppError{
		Code:    "TRANSIENT_FAILURE",
		Message: "A temporary problem occurred, please retry",
		Status:  http.StatusServiceUnavailable,
		Err:     err,
	}
}

// IsTransient reports whether err looks like a temporary I/O problem
// that is safe to retry with the same idempotency key. Validation and
// state-machine errors are never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == "TRANSIENT_FAILURE"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, io.EOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetAppError attempts to convert an error to AppError
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	// Return generic internal error if not an AppError
	return Internal("An unexpected error occurred", err)
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
