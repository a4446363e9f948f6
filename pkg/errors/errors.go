package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Field   string `json:"field,omitempty"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches errors sharing the same code so that clones compare equal to
// their predefined templates.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrNotFound     = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden    = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict     = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation   = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal     = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")

	ErrInvalidPredicate   = New("INVALID_PREDICATE", http.StatusBadRequest, "invalid targeting predicate")
	ErrUnknownUser        = New("UNKNOWN_USER", http.StatusNotFound, "unknown user")
	ErrInvalidCursor      = New("INVALID_CURSOR", http.StatusBadRequest, "invalid cursor")
	ErrBackendUnavailable = New("BACKEND_UNAVAILABLE", http.StatusServiceUnavailable, "backend unavailable")
	ErrDeadlineExceeded   = New("DEADLINE_EXCEEDED", http.StatusGatewayTimeout, "deadline exceeded")
	ErrLogic              = New("LOGIC_ERROR", http.StatusInternalServerError, "invariant violated")

	// ErrCacheMiss is returned by cache repositories when a key is absent.
	ErrCacheMiss = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// Class groups error codes by how callers are expected to react.
type Class string

const (
	ClassInput     Class = "INPUT"
	ClassTransient Class = "TRANSIENT"
	ClassLogic     Class = "LOGIC"
)

// Classify returns the taxonomy class for err. Unknown errors are treated as
// logic errors.
func Classify(err error) Class {
	e := FromError(err)
	if e == nil {
		return ""
	}
	switch e.Code {
	case ErrBackendUnavailable.Code, ErrDeadlineExceeded.Code:
		return ClassTransient
	case ErrInvalidPredicate.Code, ErrUnknownUser.Code, ErrInvalidCursor.Code, ErrValidation.Code,
		ErrNotFound.Code, ErrForbidden.Code, ErrUnauthorized.Code, ErrConflict.Code:
		return ClassInput
	default:
		return ClassLogic
	}
}

// InvalidPredicate builds an INVALID_PREDICATE error naming the offending field.
func InvalidPredicate(field, cause string) *Error {
	return &Error{
		Code:    ErrInvalidPredicate.Code,
		Status:  ErrInvalidPredicate.Status,
		Message: fmt.Sprintf("invalid predicate field %s: %s", field, cause),
		Field:   field,
	}
}

// Backend wraps a store failure, translating context expiry into DEADLINE_EXCEEDED.
// Drivers report a cancelled statement with their own error, so a done ctx
// wins over the error's shape.
func Backend(ctx context.Context, err error, message string) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Wrap(err, ErrDeadlineExceeded.Code, ErrDeadlineExceeded.Status, message)
	}
	return Wrap(err, ErrBackendUnavailable.Code, ErrBackendUnavailable.Status, message)
}

// FromContext converts a done context into a DEADLINE_EXCEEDED error.
func FromContext(ctx context.Context) *Error {
	if err := ctx.Err(); err != nil {
		return Wrap(err, ErrDeadlineExceeded.Code, ErrDeadlineExceeded.Status, ErrDeadlineExceeded.Message)
	}
	return nil
}

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}
