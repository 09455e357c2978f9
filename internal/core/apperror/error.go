// Package apperror provides structured error handling for the warehouse core.
// All business errors must use AppError for consistent API responses.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes. Each code belongs to exactly one Kind.
const (
	// Infrastructure errors (5xx)
	CodeInternal = "INTERNAL_ERROR"
	CodeDatabase = "DATABASE_ERROR"

	// Validation errors (400)
	CodeValidation        = "VALIDATION_ERROR"
	CodeInvalidInput      = "INVALID_INPUT"
	CodeQuantityExceeded  = "QUANTITY_EXCEEDED"
	CodeInvalidTransition = "INVALID_STATUS_TRANSITION"

	// Authorization errors (401, 403)
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"

	// Not found (404)
	CodeNotFound = "NOT_FOUND"

	// Conflict (409)
	CodeConflict               = "CONFLICT"
	CodeDuplicate              = "DUPLICATE_ENTRY"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"
	CodeEditLocked             = "EDIT_LOCKED"
)

// Kind groups error codes into the categories callers branch on.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindNotFound      Kind = "not_found"
	KindConflict      Kind = "conflict"
	KindAuthorization Kind = "authorization"
	KindInternal      Kind = "internal"
)

// AppError is the standard error type for the platform.
// It implements error interface and provides structured details for API responses.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (field errors, quantities, etc.)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the suggested HTTP status code
	HTTPStatus int `json:"-"`

	// Err is the underlying error (not exposed in JSON)
	Err error `json:"-"`
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

// Kind reports the category of the error code.
func (e *AppError) Kind() Kind {
	switch e.Code {
	case CodeValidation, CodeInvalidInput, CodeQuantityExceeded, CodeInvalidTransition:
		return KindValidation
	case CodeNotFound:
		return KindNotFound
	case CodeConflict, CodeDuplicate, CodeConcurrentModification, CodeEditLocked:
		return KindConflict
	case CodeUnauthorized, CodeForbidden:
		return KindAuthorization
	default:
		return KindInternal
	}
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// --- Factory functions ---

// NewValidation creates a validation error (400)
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewQuantityExceeded reports a request for more packages than are free to commit.
// The available quantity is always part of the details so callers can retry.
func NewQuantityExceeded(goodsID, goodsPackingID string, requested, available int) *AppError {
	return &AppError{
		Code:       CodeQuantityExceeded,
		Message:    fmt.Sprintf("requested %d packages, only %d available", requested, available),
		HTTPStatus: http.StatusBadRequest,
		Details: map[string]any{
			"goods_id":         goodsID,
			"goods_packing_id": goodsPackingID,
			"requested":        requested,
			"available":        available,
		},
	}
}

// NewInvalidTransition creates an illegal status transition error (400).
func NewInvalidTransition(entity, from, to string) *AppError {
	return &AppError{
		Code:       CodeInvalidTransition,
		Message:    fmt.Sprintf("%s cannot move from %s to %s", entity, from, to),
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"entity": entity, "from": from, "to": to},
	}
}

// NewNotFound creates a not found error (404)
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewConcurrentModification creates an optimistic locking error
func NewConcurrentModification(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeConcurrentModification,
		Message:    "Record was modified by another user. Please refresh and try again.",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewEditLocked is returned when a scheduled document is too close to its start to be edited.
func NewEditLocked(entity string, id any, hoursBeforeStart int) *AppError {
	return &AppError{
		Code:       CodeEditLocked,
		Message:    fmt.Sprintf("%s is read-only within %d hours of its start time", entity, hoursBeforeStart),
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "id": id, "hours_before_start": hoursBeforeStart},
	}
}

// NewInternal creates an internal server error (hides details from client)
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewUnauthorized creates an authentication error (401)
func NewUnauthorized(message string) *AppError {
	return &AppError{
		Code:       CodeUnauthorized,
		Message:    message,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// NewForbidden creates an authorization error (403)
func NewForbidden(message string) *AppError {
	return &AppError{
		Code:       CodeForbidden,
		Message:    message,
		HTTPStatus: http.StatusForbidden,
	}
}

// NewConflict creates a conflict error (409)
func NewConflict(message string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// NewDuplicate creates a duplicate entry error (409)
func NewDuplicate(entity, field, value string) *AppError {
	return &AppError{
		Code:       CodeDuplicate,
		Message:    fmt.Sprintf("%s with this %s already exists", entity, field),
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "field": field, "value": value},
	}
}

// --- Helper functions ---

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetHTTPStatus returns appropriate HTTP status for any error
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// KindOf returns the kind of err; non-AppErrors are internal.
func KindOf(err error) Kind {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Kind()
	}
	return KindInternal
}

// IsValidation checks if error is a validation error (including quantity and transition errors).
func IsValidation(err error) bool {
	return err != nil && KindOf(err) == KindValidation
}

// IsNotFound checks if error is CodeNotFound
func IsNotFound(err error) bool {
	return err != nil && KindOf(err) == KindNotFound
}

// IsConflict checks if error belongs to the conflict kind.
func IsConflict(err error) bool {
	return err != nil && KindOf(err) == KindConflict
}

// IsForbidden checks if error is an authentication or authorization failure.
func IsForbidden(err error) bool {
	return err != nil && KindOf(err) == KindAuthorization
}

// IsCode checks the exact error code.
func IsCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

// IsConcurrentModification checks if error is CodeConcurrentModification
func IsConcurrentModification(err error) bool {
	return IsCode(err, CodeConcurrentModification)
}
