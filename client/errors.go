package client

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes SDK errors.
type ErrorCode int

const (
	// Server-reported ack errors.
	ErrorUnknown ErrorCode = iota
	ErrorBadRequest
	ErrorInvalidEvent
	ErrorStorageUnavailable

	// Client-side errors.
	ErrorConnection
	ErrorNotConnected
	ErrorTimeout
	ErrorSerialization
)

// String returns the string representation of an ErrorCode.
func (e ErrorCode) String() string {
	switch e {
	case ErrorUnknown:
		return "unknown"
	case ErrorBadRequest:
		return "bad_request"
	case ErrorInvalidEvent:
		return "invalid_event"
	case ErrorStorageUnavailable:
		return "storage_unavailable"
	case ErrorConnection:
		return "connection_error"
	case ErrorNotConnected:
		return "not_connected"
	case ErrorTimeout:
		return "timeout"
	case ErrorSerialization:
		return "serialization_error"
	default:
		return fmt.Sprintf("unknown_code_%d", e)
	}
}

// parseErrorCode converts a wire error code string to ErrorCode.
func parseErrorCode(code string) ErrorCode {
	switch code {
	case "bad_request":
		return ErrorBadRequest
	case "invalid_event":
		return ErrorInvalidEvent
	case "storage_unavailable":
		return ErrorStorageUnavailable
	default:
		return ErrorUnknown
	}
}

// Error is a structured error with code and context.
type Error struct {
	Code    ErrorCode
	Message string
	Wrapped error
}

func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Wrapped
}

// Is matches on Code so callers can test errors.Is(err, &Error{Code: ...}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewError creates an Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError wraps an existing error.
func WrapError(code ErrorCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Wrapped: err}
}

// IsServerError reports whether the error came back on a server ack.
func IsServerError(err error) bool {
	var ce *Error
	if !errors.As(err, &ce) {
		return false
	}
	return ce.Code >= ErrorBadRequest && ce.Code <= ErrorStorageUnavailable
}
