// Package errors provides coded application errors shared across the
// service. Each error carries a machine-readable code used for HTTP
// status mapping and for callers that branch on failure class.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Code classifies an error for transport mapping and caller branching.
type Code string

const (
	ErrCodeInvalidInput  Code = "invalid_input"
	ErrCodeNotFound      Code = "not_found"
	ErrCodeConflict      Code = "conflict"
	ErrCodeUnauthorized  Code = "unauthorized"
	ErrCodeConfiguration Code = "configuration"
	ErrCodeInternal      Code = "internal"
)

// Error is a coded error, optionally wrapping an underlying cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is / errors.As chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a coded error with no underlying cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
// Passing a nil err returns nil so call sites can wrap unconditionally.
// The return type is error, not *Error: a typed-nil *Error stored in an
// error interface compares non-nil and would turn a success into a
// failure at the caller.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

// NotFound reports that a resource does not exist.
func NotFound(resource, id string) *Error {
	return &Error{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s '%s' not found", resource, id),
	}
}

// InvalidInput reports a rejected request field.
func InvalidInput(field, reason string) *Error {
	return &Error{
		Code:    ErrCodeInvalidInput,
		Message: fmt.Sprintf("%s: %s", field, reason),
	}
}

// Configuration reports missing or invalid operator-managed configuration.
// These are fatal for the operation that hit them and must surface to an
// administrator rather than being defaulted away.
func Configuration(message string) *Error {
	return &Error{Code: ErrCodeConfiguration, Message: message}
}

// CodeOf extracts the code from an error chain; unknown errors map to
// ErrCodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if stderrors.As(err, &e) && e != nil {
		return e.Code
	}
	return ErrCodeInternal
}

// IsCode reports whether any error in the chain carries the given code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// HTTPStatus maps an error chain to an HTTP response status.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case ErrCodeInvalidInput:
		return http.StatusBadRequest
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeConflict:
		return http.StatusConflict
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeConfiguration, ErrCodeInternal:
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}
