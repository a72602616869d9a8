// Package errs defines the service error taxonomy. Every error that crosses
// a component boundary is an *Error carrying a Kind; the HTTP layer maps
// kinds to status codes and never exposes driver or internal error text.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers and for the HTTP envelope.
type Kind string

const (
	KindValidation             Kind = "validation_error"
	KindInvalidTenantReference Kind = "invalid_tenant_reference"
	KindInvalidFilter          Kind = "invalid_filter"
	KindBatchTooLarge          Kind = "batch_too_large"
	KindStorage                Kind = "storage_error"
	KindStorageUnavailable     Kind = "storage_unavailable"
	KindNotFound               Kind = "not_found"
	KindInternal               Kind = "internal"
)

// FieldError is one violated constraint on one input field.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// Error is the structured service error.
type Error struct {
	Kind    Kind
	Message string
	Fields  []FieldError // set for KindValidation
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New returns an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf formats a message into an error of the given kind.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause. The cause is kept for logs and errors.Is/As,
// not for client responses.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// Validation builds a KindValidation error from per-field violations.
func Validation(fields []FieldError) *Error {
	return &Error{Kind: KindValidation, Message: "record failed validation", Fields: fields}
}

// KindOf extracts the Kind from err, or KindInternal when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// FieldsOf returns the per-field details when err is a validation error.
func FieldsOf(err error) []FieldError {
	var e *Error
	if errors.As(err, &e) {
		return e.Fields
	}
	return nil
}

// Retryable reports whether the caller may safely retry the failed operation.
// Only transient storage failures qualify; client errors are deterministic.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindStorage, KindStorageUnavailable:
		return true
	}
	return false
}
