// Package errors provides a small operation-error convention used by
// shared, domain-agnostic infrastructure code (HTTP clients, retry
// helpers, generic stores) that sits below internal/errors's
// user-facing AppError taxonomy.
package errors

import (
	"fmt"
	"strings"
)

// OperationError describes a failed operation with optional component
// and resource context, chaining through to an underlying cause.
type OperationError struct {
	Operation string
	Component string
	Resource  string
	Cause     error
}

func (e *OperationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "failed to %s", e.Operation)
	if e.Component != "" {
		fmt.Fprintf(&b, ", component: %s", e.Component)
	}
	if e.Resource != "" {
		fmt.Fprintf(&b, ", resource: %s", e.Resource)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ", cause: %s", e.Cause.Error())
	}
	return b.String()
}

// Unwrap exposes Cause for errors.Is/errors.As.
func (e *OperationError) Unwrap() error {
	return e.Cause
}

// FailedTo builds a minimal OperationError for action, with an optional
// cause.
func FailedTo(action string, cause error) error {
	return &OperationError{Operation: action, Cause: cause}
}

// FailedToWithDetails builds a fully-populated OperationError.
func FailedToWithDetails(operation, component, resource string, cause error) error {
	return &OperationError{Operation: operation, Component: component, Resource: resource, Cause: cause}
}

// Wrapf prefixes err with a formatted message, returning nil for a nil
// err.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// DatabaseError builds an OperationError tagged with the "database"
// component.
func DatabaseError(operation string, cause error) error {
	return FailedToWithDetails(operation, "database", "", cause)
}

// NetworkError builds an OperationError tagged with the "network"
// component and endpoint resource.
func NetworkError(operation, endpoint string, cause error) error {
	return FailedToWithDetails(operation, "network", endpoint, cause)
}

// ValidationError reports a field-level validation failure.
func ValidationError(field, message string) error {
	return fmt.Errorf("validation failed for field %s: %s", field, message)
}

// ConfigurationError reports an invalid or missing configuration
// setting.
func ConfigurationError(setting, message string) error {
	return fmt.Errorf("configuration error for setting %s: %s", setting, message)
}

// TimeoutError reports an action that exceeded duration.
func TimeoutError(action, duration string) error {
	return fmt.Errorf("timeout while %s after %s", action, duration)
}

// AuthenticationError reports a failed authentication attempt.
func AuthenticationError(message string) error {
	return fmt.Errorf("authentication failed: %s", message)
}

// AuthorizationError reports insufficient permissions for action on
// resource.
func AuthorizationError(action, resource string) error {
	return fmt.Errorf("authorization failed: insufficient permissions to %s %s", action, resource)
}

// ParseError reports a failure to parse target into format.
func ParseError(target, format string, cause error) error {
	return Wrapf(cause, "parse %s as %s", target, format)
}

// retryableSubstrings are substrings of transient error messages worth
// retrying; anything else is treated as permanent.
var retryableSubstrings = []string{"timeout", "connection refused", "service unavailable"}

// IsRetryable reports whether err looks transient based on its message.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range retryableSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// Chain joins the non-nil errors in errs into one error, or returns nil
// if none are non-nil.
func Chain(errs ...error) error {
	var msgs []string
	for _, e := range errs {
		if e != nil {
			msgs = append(msgs, e.Error())
		}
	}
	switch len(msgs) {
	case 0:
		return nil
	case 1:
		return fmt.Errorf("%s", msgs[0])
	default:
		return fmt.Errorf("multiple errors: %s", strings.Join(msgs, "; "))
	}
}
