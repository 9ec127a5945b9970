// Package apperror defines the client-facing error taxonomy of the API.
// Services return *AppError for faults the caller can act on; anything else is
// treated as a server fault by the HTTP layer.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an AppError.
type Kind int

const (
	// Internal is a collaborator failure or an unexpected fault.
	Internal Kind = iota
	// Validation is malformed, missing or conflicting input.
	Validation
	// Auth is a missing/invalid credential or an ownership mismatch.
	Auth
	// NotFound is a referenced entity that does not exist.
	NotFound
	// TooManyRequests is a throttled client.
	TooManyRequests
)

// AppError carries a user-facing message and an optional underlying error.
type AppError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// StatusCode maps the error kind to an HTTP status.
func (e *AppError) StatusCode() int {
	switch e.Kind {
	case Validation:
		return http.StatusBadRequest
	case Auth:
		return http.StatusUnauthorized
	case NotFound:
		return http.StatusNotFound
	case TooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// NewValidationError creates a 400 error.
func NewValidationError(message string) *AppError {
	return &AppError{Kind: Validation, Message: message}
}

// NewAuthError creates a 401 error.
func NewAuthError(message string, err error) *AppError {
	return &AppError{Kind: Auth, Message: message, Err: err}
}

// NewNotFoundError creates a 404 error.
func NewNotFoundError(message string) *AppError {
	return &AppError{Kind: NotFound, Message: message}
}

// NewTooManyRequestsError creates a 429 error.
func NewTooManyRequestsError(message string) *AppError {
	return &AppError{Kind: TooManyRequests, Message: message}
}

// NewInternalError creates a 500 error wrapping err.
func NewInternalError(message string, err error) *AppError {
	return &AppError{Kind: Internal, Message: message, Err: err}
}

// From extracts an *AppError from err's chain.
func From(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// Is reports whether err is an AppError of the given kind.
func Is(err error, kind Kind) bool {
	appErr, ok := From(err)
	return ok && appErr.Kind == kind
}
