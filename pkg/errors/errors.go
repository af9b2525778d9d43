// Package errors provides structured error types for the dependents engine.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across the gateway, discovery and CLI
//   - Machine-readable error codes for the HTTP API
//   - User-friendly error messages
//   - Error wrapping with context preservation
//
// # Error Codes
//
// The codes mirror the discovery error taxonomy:
//   - NOT_FOUND, REPOSITORY_NOT_FOUND: expected absences, not failures
//   - RATE_LIMITED: primary or secondary provider limits
//   - PARSE_FAILURE: malformed manifests (skip the item, continue)
//   - NETWORK_ERROR: transport failures (propagate, never retried blindly)
//   - NO_PACKAGES, NO_DEPENDENTS: legitimate empty results
//
// # Usage
//
//	err := errors.New(errors.ErrCodeInvalidInput, "invalid repository: %s", ref)
//	if errors.Is(err, errors.ErrCodeInvalidInput) {
//	    // Handle validation error
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeNetwork, origErr, "GET %s", path)
package errors

import (
	"errors"
	"fmt"
	"time"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Input validation errors
	ErrCodeInvalidInput   Code = "INVALID_INPUT"
	ErrCodeInvalidPackage Code = "INVALID_PACKAGE"
	ErrCodeInvalidPath    Code = "INVALID_PATH"

	// Resource not found errors
	ErrCodeNotFound           Code = "NOT_FOUND"
	ErrCodeRepositoryNotFound Code = "REPOSITORY_NOT_FOUND"

	// Empty-result states
	ErrCodeNoPackages   Code = "NO_PACKAGES"
	ErrCodeNoDependents Code = "NO_DEPENDENTS"

	// Provider errors
	ErrCodeNetwork      Code = "NETWORK_ERROR"
	ErrCodeRateLimited  Code = "RATE_LIMITED"
	ErrCodeParseFailure Code = "PARSE_FAILURE"

	// Internal errors
	ErrCodeCanceled Code = "CANCELED"
	ErrCodeInternal Code = "INTERNAL_ERROR"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It walks the whole error chain, so a RATE_LIMITED error wrapped in a
// NETWORK_ERROR still matches both codes.
func Is(err error, code Code) bool {
	for err != nil {
		switch e := err.(type) {
		case *Error:
			if e.Code == code {
				return true
			}
		case *RateLimitedError:
			if code == ErrCodeRateLimited {
				return true
			}
		}
		err = errors.Unwrap(err)
	}
	return false
}

// GetCode extracts the outermost error code from an error, if available.
// Returns empty string if the chain carries no code.
func GetCode(err error) Code {
	var e *Error
	var rl *RateLimitedError
	switch {
	case errors.As(err, &e):
		return e.Code
	case errors.As(err, &rl):
		return ErrCodeRateLimited
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl.Message()
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// RateLimitedError is returned when the provider's primary or secondary
// limits reject a request, or when the gateway knows the budget is spent.
type RateLimitedError struct {
	Resource string    // "core" or "search"; empty when unknown
	ResetAt  time.Time // When the provider expects the limit to lift; zero if unknown
	Cause    error     // The provider rejection that triggered this error, if any
}

// Error implements the error interface.
func (e *RateLimitedError) Error() string {
	msg := e.Message()
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", ErrCodeRateLimited, msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", ErrCodeRateLimited, msg)
}

// Message returns the user-facing explanation with a resume hint.
func (e *RateLimitedError) Message() string {
	base := "GitHub API rate limit exceeded"
	if e.Resource != "" {
		base = fmt.Sprintf("GitHub API rate limit exceeded (%s)", e.Resource)
	}
	if e.ResetAt.IsZero() {
		return base + ". Please wait a few minutes and try again."
	}
	return fmt.Sprintf("%s. Resets at %s.", base, e.ResetAt.UTC().Format(time.RFC3339))
}

// Unwrap returns the provider rejection, if any.
func (e *RateLimitedError) Unwrap() error {
	return e.Cause
}

// Code returns the error code for this error type.
func (e *RateLimitedError) Code() Code {
	return ErrCodeRateLimited
}

// HTTPStatus maps an error code to the HTTP status the API layer reports.
func HTTPStatus(err error) int {
	switch GetCode(err) {
	case ErrCodeInvalidInput, ErrCodeInvalidPackage, ErrCodeInvalidPath:
		return 400
	case ErrCodeNotFound, ErrCodeRepositoryNotFound:
		return 404
	case ErrCodeRateLimited:
		return 429
	case ErrCodeNetwork:
		return 502
	default:
		return 500
	}
}
