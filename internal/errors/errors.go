// Package errors defines the structured error taxonomy used across the
// discovery engine: every error surfaced across a component boundary is an
// *AppError* with a stable Type so callers can branch on kind instead of
// string-matching messages.
package errors

import (
	"fmt"
	"net/http"
)

// ErrorType is the taxonomy discriminator for AppError.
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeTransient  ErrorType = "transient_io"
	ErrorTypeJudgeParse ErrorType = "judge_parse"
	ErrorTypeBudget     ErrorType = "budget_exhausted"
	ErrorTypeStore      ErrorType = "store_failure"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeInternal   ErrorType = "internal"
)

var statusCodes = map[ErrorType]int{
	ErrorTypeValidation: http.StatusBadRequest,
	ErrorTypeTransient:  http.StatusServiceUnavailable,
	ErrorTypeJudgeParse: http.StatusUnprocessableEntity,
	ErrorTypeBudget:     http.StatusTooManyRequests,
	ErrorTypeStore:      http.StatusInternalServerError,
	ErrorTypeConfig:     http.StatusInternalServerError,
	ErrorTypeInternal:   http.StatusInternalServerError,
}

// AppError is the structured error carried across component boundaries.
type AppError struct {
	Type       ErrorType
	Message    string
	Details    string
	StatusCode int
	Cause      error
}

// New creates an AppError of the given type.
func New(t ErrorType, message string) *AppError {
	return &AppError{
		Type:       t,
		Message:    message,
		StatusCode: statusCodes[t],
	}
}

// Newf creates an AppError with a formatted message.
func Newf(t ErrorType, format string, args ...interface{}) *AppError {
	return New(t, fmt.Sprintf(format, args...))
}

// Wrap creates an AppError that carries an underlying cause.
func Wrap(cause error, t ErrorType, message string) *AppError {
	e := New(t, message)
	e.Cause = cause
	return e
}

// Wrapf wraps with a formatted message.
func Wrapf(cause error, t ErrorType, format string, args ...interface{}) *AppError {
	return Wrap(cause, t, fmt.Sprintf(format, args...))
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails sets Details in place, replacing any earlier value, and
// returns the same error.
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// WithDetailsf sets formatted details in place, replacing any earlier value.
func (e *AppError) WithDetailsf(format string, args ...interface{}) *AppError {
	return e.WithDetails(fmt.Sprintf(format, args...))
}

// IsType reports whether err is an *AppError of the given type.
func IsType(err error, t ErrorType) bool {
	ae, ok := err.(*AppError)
	return ok && ae.Type == t
}

// NewValidationError is a convenience constructor.
func NewValidationError(message string) *AppError {
	return New(ErrorTypeValidation, message)
}

// NewStoreError wraps a store-layer cause.
func NewStoreError(operation string, cause error) *AppError {
	return Wrapf(cause, ErrorTypeStore, "store operation failed: %s", operation)
}

// NewTransientError wraps a retryable I/O cause.
func NewTransientError(operation string, cause error) *AppError {
	return Wrapf(cause, ErrorTypeTransient, "transient failure: %s", operation)
}

// NewBudgetExhausted reports a stopping reason as a terminal, non-fatal
// condition for the entity run.
func NewBudgetExhausted(reason string) *AppError {
	return New(ErrorTypeBudget, reason)
}

// NewConfigError reports a fail-fast startup condition.
func NewConfigError(message string) *AppError {
	return New(ErrorTypeConfig, message)
}
