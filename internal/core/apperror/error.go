// Package apperror provides structured error handling following RFC 7807 Problem Details.
// All business errors must use AppError for consistent API responses.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes following domain-driven design
const (
	// Infrastructure errors (5xx)
	CodeInternal = "INTERNAL_ERROR"
	CodeDatabase = "DATABASE_ERROR"
	CodeTimeout  = "TIMEOUT_ERROR"

	// Reference data lookup failures (503, retryable by the caller)
	CodeLookupFailure = "LOOKUP_FAILURE"

	// Validation errors (400)
	CodeValidation    = "VALIDATION_ERROR"
	CodeRuleViolation = "RULE_VIOLATION"

	// Ledger arithmetic violations (422)
	CodeLedgerOverflow  = "LEDGER_OVERFLOW"
	CodeNegativeBalance = "NEGATIVE_BALANCE"

	// Authorization errors (401, 403)
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"

	// Not found (404)
	CodeNotFound = "NOT_FOUND"

	// Conflict (409)
	CodeConflict               = "CONFLICT"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"
)

// AppError is the standard error type for the platform.
// It implements error interface and provides structured details for API responses.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (rule keys, operands, field errors)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the suggested HTTP status code
	HTTPStatus int `json:"-"`

	// Retryable signals the caller may retry the same request unchanged
	Retryable bool `json:"retryable,omitempty"`

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

// --- Factory functions for common errors ---

// NewValidation creates a generic validation error (400)
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewRuleViolation creates an error for a failed business-rule check (400).
// The rule key identifies which check rejected the event; offending values
// go into details so the boundary layer can render a precise message.
func NewRuleViolation(rule, message string) *AppError {
	return &AppError{
		Code:       CodeRuleViolation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"rule": rule},
	}
}

// NewLookupFailure creates an error for an unreachable or timed-out
// reference-data dependency (503). Retryable.
func NewLookupFailure(resource string, err error) *AppError {
	return &AppError{
		Code:       CodeLookupFailure,
		Message:    fmt.Sprintf("reference data lookup failed: %s", resource),
		HTTPStatus: http.StatusServiceUnavailable,
		Retryable:  true,
		Details:    map[string]any{"resource": resource},
		Err:        err,
	}
}

// NewLedgerOverflow creates an error for a credit that would push stock on
// hand past the representable maximum (422). Both operands are reported.
func NewLedgerOverflow(previous, quantity int64) *AppError {
	return &AppError{
		Code:       CodeLedgerOverflow,
		Message:    "stock on hand would exceed the maximum representable value",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details: map[string]any{
			"stockOnHand": previous,
			"quantity":    quantity,
		},
	}
}

// NewNegativeBalance creates an error for a debit that would drive stock on
// hand below zero (422). Both operands are reported.
func NewNegativeBalance(previous, quantity int64) *AppError {
	return &AppError{
		Code:       CodeNegativeBalance,
		Message:    "stock on hand cannot go negative",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details: map[string]any{
			"stockOnHand": previous,
			"quantity":    quantity,
		},
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

// --- Helper functions ---

// IsAppError checks if error is AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

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

// IsCode checks whether error carries the given code
func IsCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

// IsNotFound checks if error is CodeNotFound
func IsNotFound(err error) bool {
	return IsCode(err, CodeNotFound)
}

// IsRetryable reports whether the caller may retry the request unchanged.
func IsRetryable(err error) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Retryable
	}
	return false
}

// Rule extracts the rule key from a RULE_VIOLATION error, or "".
func Rule(err error) string {
	appErr, ok := AsAppError(err)
	if !ok || appErr.Code != CodeRuleViolation {
		return ""
	}
	if rule, ok := appErr.Details["rule"].(string); ok {
		return rule
	}
	return ""
}
