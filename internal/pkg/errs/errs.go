/*
Package errs provides the error type shared by the planning poker client and the
reference backend, the error kind taxonomy, and application-level error codes.

This file defines Error, its constructors, and kind predicates that see through
wrapping.
*/
package errs

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"planpoker/internal/pkg/logx"
)

// Error is the error structure used throughout the application.
type Error struct {
	// Kind classifies the origin of the error.
	Kind Kind

	// Code is the backend business error code, 0 when unknown.
	Code int

	// Status is the HTTP status code. It is 0 for network and validation errors.
	Status int

	// Message is the human-readable description.
	Message string

	// Details carries field-level messages from a structured error body.
	Details []string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the standard Go error interface.
func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s (HTTP %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// KindForStatus maps an HTTP status to a Kind.
func KindForStatus(status int) Kind {
	switch {
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status >= 500:
		return KindServer
	default:
		return KindHTTP
	}
}

// NewError constructs an *Error from a predefined business code. The optional
// details are printf arguments for templates containing a verb. Unknown codes
// fall back to ErrUnknown.
func NewError(code int, details ...any) *Error {
	templateErr, ok := errorMap[code]

	if !ok {
		logx.Error(
			fmt.Errorf("attempted to create an error with an unknown code in errorMap"),
			"Unknown error code requested",
			"requested_code", code,
		)
		templateErr = errorMap[ErrUnknown]
	}

	customErr := templateErr
	customErr.Kind = KindForStatus(customErr.Status)

	if len(details) > 0 {
		if strings.Contains(customErr.Message, "%") {
			customErr.Message = fmt.Sprintf(customErr.Message, details...)
		} else if cause, ok := details[0].(error); ok {
			customErr.Err = cause
		}
	}

	return &customErr
}

// Network wraps a transport failure.
func Network(err error) *Error {
	return &Error{Kind: KindNetwork, Status: 0, Message: "network request failed", Err: err}
}

// Parse wraps a JSON decoding failure.
func Parse(err error) *Error {
	return &Error{Kind: KindParse, Message: "invalid JSON response", Err: err}
}

// HTTPStatus builds an error for a non-2xx response.
func HTTPStatus(status int, message string, details []string) *Error {
	if message == "" {
		message = fmt.Sprintf("HTTP error, status=%d", status)
	}
	return &Error{Kind: KindForStatus(status), Status: status, Message: message, Details: details}
}

// Validation builds a client-side precondition failure.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// As extracts the *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err, or "" when err carries none.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return ""
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	if e, ok := As(err); ok {
		return e.Status
	}
	return 0
}

func IsNetwork(err error) bool     { return KindOf(err) == KindNetwork }
func IsRateLimited(err error) bool { return KindOf(err) == KindRateLimited }
func IsServer(err error) bool      { return KindOf(err) == KindServer }
func IsValidation(err error) bool  { return KindOf(err) == KindValidation }
func IsParse(err error) bool       { return KindOf(err) == KindParse }
