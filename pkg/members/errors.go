package members

import (
	"errors"
	"fmt"
)

// Code is a machine-readable error code surfaced to API clients
type Code string

const (
	CodeUnauthorized        Code = "UNAUTHORIZED"
	CodeForbidden           Code = "FORBIDDEN"
	CodeFeatureNotAvailable Code = "FEATURE_NOT_AVAILABLE"
	CodeTeamLimitReached    Code = "TEAM_LIMIT_REACHED"
	CodeNotFound            Code = "NOT_FOUND"
	CodeConflict            Code = "CONFLICT"
	CodePaymentRequired     Code = "PAYMENT_REQUIRED"
	CodeExternalService     Code = "EXTERNAL_SERVICE_ERROR"
)

// Error is a structured membership error. The code lets a UI render
// an actionable message, e.g. an upgrade prompt for
// TEAM_LIMIT_REACHED.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	cause   error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped cause, if any
func (e *Error) Unwrap() error {
	return e.cause
}

// NewError creates a structured error
func NewError(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapError creates a structured error around a cause
func WrapError(code Code, cause error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: cause}
}

// CodeOf extracts the structured code from an error chain, defaulting
// to EXTERNAL_SERVICE_ERROR for unknown errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeExternalService
}
