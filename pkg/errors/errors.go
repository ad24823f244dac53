package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for the checkout error taxonomy. Callers branch on these
// with errors.Is; every failure crossing a component boundary wraps exactly
// one of them.
var (
	// ErrValidationRejected marks user-fixable input rejected by this
	// service or a collaborator. Shown inline, never retried automatically.
	ErrValidationRejected = errors.New("validation rejected")

	// ErrTransientService marks a network-level or 5xx collaborator failure.
	// Safe to retry by explicit user action.
	ErrTransientService = errors.New("transient service error")

	// ErrProtocol marks a collaborator response that is not in the expected
	// structured format (wrong content type, unparseable body). Always
	// surfaced, never treated as success and never silently retried.
	ErrProtocol = errors.New("protocol error")

	// ErrOrderRejected marks a server-side business rejection of an order
	// (stock or pricing mismatch). Must not be retried blindly.
	ErrOrderRejected = errors.New("order rejected")

	// ErrSubmissionFailed marks a transport failure while placing an order.
	// The outcome is unknown server-side but safe to retry by the user.
	ErrSubmissionFailed = errors.New("order submission failed")

	ErrNotFound     = errors.New("resource not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrConflict     = errors.New("conflict")
	ErrInternal     = errors.New("internal error")
)

// AppError is a structured application error with an HTTP status mapping.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// ValidationRejected creates an error for rejected user input. The message is
// surfaced verbatim to the user.
func ValidationRejected(message string) *AppError {
	return &AppError{
		Code:    "VALIDATION_REJECTED",
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     ErrValidationRejected,
	}
}

// TransientService creates a retryable error for a collaborator that failed
// at the network level or with a server error.
func TransientService(service string, err error) *AppError {
	return &AppError{
		Code:    "TRANSIENT_SERVICE_ERROR",
		Message: fmt.Sprintf("%s service is temporarily unavailable", service),
		Status:  http.StatusServiceUnavailable,
		Err:     fmt.Errorf("%w: %w", ErrTransientService, err),
	}
}

// Protocol creates an error for a collaborator response that does not match
// the expected wire format.
func Protocol(service, detail string) *AppError {
	return &AppError{
		Code:    "PROTOCOL_ERROR",
		Message: fmt.Sprintf("%s service returned an unexpected response: %s", service, detail),
		Status:  http.StatusBadGateway,
		Err:     ErrProtocol,
	}
}

// OrderRejected creates an error for a server-side business rejection of an
// order. The collaborator's message is preserved verbatim.
func OrderRejected(message string) *AppError {
	return &AppError{
		Code:    "ORDER_REJECTED",
		Message: message,
		Status:  http.StatusUnprocessableEntity,
		Err:     ErrOrderRejected,
	}
}

// SubmissionFailed creates an error for a transport failure during order
// placement, where the outcome could not be determined.
func SubmissionFailed(err error) *AppError {
	return &AppError{
		Code:    "ORDER_SUBMISSION_FAILED",
		Message: "order could not be submitted, please try again",
		Status:  http.StatusBadGateway,
		Err:     fmt.Errorf("%w: %w", ErrSubmissionFailed, err),
	}
}

// NotFound creates a 404 error.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s with id %s not found", resource, id),
		Status:  http.StatusNotFound,
		Err:     ErrNotFound,
	}
}

// Unauthorized creates a 401 error.
func Unauthorized(message string) *AppError {
	return &AppError{
		Code:    "UNAUTHORIZED",
		Message: message,
		Status:  http.StatusUnauthorized,
		Err:     ErrUnauthorized,
	}
}

// Conflict creates a 409 error.
func Conflict(message string) *AppError {
	return &AppError{
		Code:    "CONFLICT",
		Message: message,
		Status:  http.StatusConflict,
		Err:     ErrConflict,
	}
}

// Internal creates a 500 error.
func Internal(err error) *AppError {
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Message: "an internal error occurred",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

// Retryable reports whether the user may safely re-issue the failed action.
// Only transient collaborator failures and undetermined submission outcomes
// qualify; rejections and protocol errors must be handled, not repeated.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransientService) || errors.Is(err, ErrSubmissionFailed)
}

// HTTPStatus returns the HTTP status code for the given error.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrValidationRejected):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrOrderRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrTransientService):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrProtocol), errors.Is(err, ErrSubmissionFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
