// Package apperrors defines the structured error taxonomy shared by the
// billing operations and the HTTP surface.
//
// Every error that crosses the operation boundary carries a stable
// machine-readable Code and a human-readable message. Provider rejections
// surface as CodeRemoteBusiness, exhausted transport retries as
// CodeUnavailable, and anything unclassified is wrapped into CodeInternal.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable machine-readable error kind.
type Code string

const (
	// CodeUnauthenticated means the request carried no verifiable caller identity.
	CodeUnauthenticated Code = "unauthenticated"

	// CodeNotFound means no matching subscription, user, or token exists.
	CodeNotFound Code = "not-found"

	// CodeFailedPrecondition means the subscription is not in the state the
	// operation requires, or the user has no billing token.
	CodeFailedPrecondition Code = "failed-precondition"

	// CodeInvalidArgument means the operation was called with no effective
	// parameters or with parameters outside their legal range.
	CodeInvalidArgument Code = "invalid-argument"

	// CodeRemoteBusiness means the billing provider returned a well-formed
	// rejection. It is a server-side failure from the caller's point of view,
	// but the provider's message is safe to surface.
	CodeRemoteBusiness Code = "remote-business"

	// CodeUnavailable means the provider could not be reached and the retry
	// budget is exhausted.
	CodeUnavailable Code = "unavailable"

	// CodeInternal is the catch-all for unclassified failures.
	CodeInternal Code = "internal"
)

// Error is a structured error with a stable code.
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

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a structured error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a structured error with a formatted message.
func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a structured error that preserves the underlying cause.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// AsError extracts a *Error from err's chain, or nil if there is none.
func AsError(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// CodeOf returns the code carried by err, or CodeInternal for plain errors.
func CodeOf(err error) Code {
	if appErr := AsError(err); appErr != nil {
		return appErr.Code
	}
	return CodeInternal
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// Internalize returns err unchanged if it is already structured, otherwise
// wraps it as a generic internal failure with the given message.
func Internalize(err error, message string) error {
	if err == nil {
		return nil
	}
	if appErr := AsError(err); appErr != nil {
		return appErr
	}
	return Wrap(CodeInternal, message, err)
}

// HTTPStatus maps an error code to the HTTP status used by the API surface.
func HTTPStatus(code Code) int {
	switch code {
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeNotFound:
		return http.StatusNotFound
	case CodeFailedPrecondition:
		return http.StatusConflict
	case CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
