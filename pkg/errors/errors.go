package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code
type ErrorCode string

const (
	// Generic errors
	ErrCodeInternal         ErrorCode = "INTERNAL_ERROR"
	ErrCodeNotFound         ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized     ErrorCode = "UNAUTHORIZED"
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeRateLimited      ErrorCode = "RATE_LIMIT_EXCEEDED"

	// MFA errors
	ErrCodeInvalidParameter      ErrorCode = "INVALID_PARAMETER"
	ErrCodeInvalidSecretEncoding ErrorCode = "INVALID_SECRET_ENCODING"
	ErrCodeChallengeNotFound     ErrorCode = "CHALLENGE_NOT_FOUND"
	ErrCodeAttemptsExhausted     ErrorCode = "ATTEMPTS_EXHAUSTED"
	ErrCodeInvalidCode           ErrorCode = "INVALID_CODE"
	ErrCodeResendTooSoon         ErrorCode = "RESEND_TOO_SOON"
	ErrCodeResendLimitExceeded   ErrorCode = "RESEND_LIMIT_EXCEEDED"
	ErrCodeUnsupportedOperation  ErrorCode = "UNSUPPORTED_OPERATION"
	ErrCodeNoEligibleFactor      ErrorCode = "NO_ELIGIBLE_FACTOR"
	ErrCodeLastRequiredFactor    ErrorCode = "LAST_REQUIRED_FACTOR"
	ErrCodeDriverNotConfigured   ErrorCode = "DRIVER_NOT_CONFIGURED"
)

// Error is a coded error carrying a user-facing message scoped to a request field.
type Error struct {
	Code    ErrorCode
	Message string
	Field   string // request field the message belongs to, e.g. "code"
	Details map[string]interface{}
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same code, so package
// level sentinels match errors built with a different message or field.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// WithDetail returns a copy of the error with an extra detail entry.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	c := *e
	c.Details = make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		c.Details[k] = v
	}
	c.Details[key] = value
	return &c
}

// WithMessage returns a copy of the error with another message and field.
func (e *Error) WithMessage(field, message string) *Error {
	c := *e
	c.Field = field
	c.Message = message
	return &c
}

// HTTPStatusCode returns the appropriate HTTP status code for this error
func (e *Error) HTTPStatusCode() int {
	return MapErrorCodeToHTTPStatus(e.Code)
}

// New creates a new Error with the given code and message
func New(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Field creates a new Error whose message is scoped to a request field.
func Field(code ErrorCode, field, message string) *Error {
	return &Error{Code: code, Field: field, Message: message}
}

// Newf creates a new Error with formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with code and message
func Wrap(err error, code ErrorCode, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

// IsCode checks if an error has a specific error code
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error.
// Returns ErrCodeInternal if the error is not a structured Error.
func GetCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// As is a shorthand for errors.As against *Error.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// MapErrorCodeToHTTPStatus maps error codes to HTTP status codes
func MapErrorCodeToHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeValidationFailed, ErrCodeInvalidParameter, ErrCodeInvalidSecretEncoding,
		ErrCodeChallengeNotFound, ErrCodeAttemptsExhausted, ErrCodeInvalidCode,
		ErrCodeResendTooSoon, ErrCodeResendLimitExceeded, ErrCodeUnsupportedOperation,
		ErrCodeNoEligibleFactor, ErrCodeLastRequiredFactor, ErrCodeDriverNotConfigured:
		return http.StatusUnprocessableEntity

	case ErrCodeUnauthorized:
		return http.StatusUnauthorized

	case ErrCodeNotFound:
		return http.StatusNotFound

	case ErrCodeRateLimited:
		return http.StatusTooManyRequests

	default:
		return http.StatusInternalServerError
	}
}

// ValidationFailed creates a field-scoped validation error.
func ValidationFailed(field, message string) *Error {
	return Field(ErrCodeValidationFailed, field, message)
}

// Unauthorized creates an "unauthorized" error
func Unauthorized(message string) *Error {
	return New(ErrCodeUnauthorized, message)
}

// InternalWrap wraps an internal error
func InternalWrap(err error, message string) *Error {
	return Wrap(err, ErrCodeInternal, message)
}
