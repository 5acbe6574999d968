// Package apperr provides standardized domain error types for the application.
// Domain services return these typed errors, and the HTTP layer
// maps them to a machine-readable code and an HTTP status.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind represents the category of error.
type Kind int

const (
	// KindUnknown is the default error kind when none is specified.
	KindUnknown Kind = iota
	// KindNotFound indicates a delivery note, job or team was not found.
	KindNotFound
	// KindMissingPhone indicates no contact phone number could be resolved.
	KindMissingPhone
	// KindUpstream indicates the ERP failed after retries were exhausted.
	KindUpstream
	// KindCalendar indicates a calendar write failed.
	KindCalendar
	// KindInvalidToken indicates a signature, expiry or format failure.
	KindInvalidToken
	// KindConfiguration indicates required configuration is missing.
	KindConfiguration
	// KindValidation indicates invalid input data.
	KindValidation
	// KindBadRequest indicates a malformed request.
	KindBadRequest
	// KindConflict indicates a transition that would move a job backwards.
	KindConflict
	// KindForbidden indicates the action is not allowed for the caller.
	KindForbidden
	// KindUnauthorized indicates authentication is required or failed.
	KindUnauthorized
	// KindInternal indicates an unexpected internal error.
	KindInternal
)

// Error is a domain error with a typed Kind for HTTP mapping.
type Error struct {
	Kind    Kind
	Message string
	Op      string      // Operation that failed (optional)
	Err     error       // Underlying error (optional)
	Details interface{} // Additional details for response (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = fmt.Sprintf("%s: %s", e.Op, msg)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// Code returns the machine-readable code exposed to API callers.
func (e *Error) Code() string {
	switch e.Kind {
	case KindNotFound:
		return "not_found"
	case KindMissingPhone:
		return "missing_phone"
	case KindUpstream:
		return "upstream_error"
	case KindCalendar:
		return "calendar_error"
	case KindInvalidToken:
		return "invalid_token"
	case KindConfiguration:
		return "configuration_error"
	case KindValidation:
		return "validation_failed"
	case KindBadRequest:
		return "bad_request"
	case KindConflict:
		return "invalid_transition"
	case KindForbidden:
		return "forbidden"
	case KindUnauthorized:
		return "unauthorized"
	case KindInternal:
		return "internal_error"
	default:
		return "unknown_error"
	}
}

// HTTPStatus returns the appropriate HTTP status code for this error kind.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindMissingPhone:
		return http.StatusUnprocessableEntity
	case KindUpstream, KindCalendar:
		return http.StatusBadGateway
	case KindInvalidToken, KindUnauthorized:
		return http.StatusUnauthorized
	case KindConfiguration, KindInternal:
		return http.StatusInternalServerError
	case KindValidation, KindBadRequest:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusBadRequest
	}
}

// New creates a new domain error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates a new domain error wrapping an existing error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithOp sets the operation and returns the error.
func (e *Error) WithOp(op string) *Error {
	e.Op = op
	return e
}

// WithDetails sets additional details and returns the error.
func (e *Error) WithDetails(details interface{}) *Error {
	e.Details = details
	return e
}

// Convenience constructors for common error types.

// NotFound creates a not found error.
func NotFound(message string) *Error {
	return New(KindNotFound, message)
}

// MissingPhone creates an error for a job without any resolvable phone number.
func MissingPhone(message string) *Error {
	return New(KindMissingPhone, message)
}

// Upstream wraps an ERP failure.
func Upstream(message string, err error) *Error {
	return Wrap(KindUpstream, message, err)
}

// Calendar wraps a calendar write failure.
func Calendar(message string, err error) *Error {
	return Wrap(KindCalendar, message, err)
}

// InvalidToken wraps a token verification failure.
func InvalidToken(message string, err error) *Error {
	return Wrap(KindInvalidToken, message, err)
}

// Configuration creates a configuration error.
func Configuration(message string) *Error {
	return New(KindConfiguration, message)
}

// Validation creates a validation error.
func Validation(message string) *Error {
	return New(KindValidation, message)
}

// BadRequest creates a bad request error.
func BadRequest(message string) *Error {
	return New(KindBadRequest, message)
}

// Conflict creates a conflict error.
func Conflict(message string) *Error {
	return New(KindConflict, message)
}

// Forbidden creates a forbidden error.
func Forbidden(message string) *Error {
	return New(KindForbidden, message)
}

// Unauthorized creates an unauthorized error.
func Unauthorized(message string) *Error {
	return New(KindUnauthorized, message)
}

// Internal creates an internal server error.
func Internal(message string) *Error {
	return New(KindInternal, message)
}

// GetKind extracts the error kind from an error chain.
// Returns KindUnknown if no *Error is present.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is checks if err carries an *Error with the given kind.
func Is(err error, kind Kind) bool {
	return GetKind(err) == kind
}
