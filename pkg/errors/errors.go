// Package errors provides structured error handling for sqlfix.
//
// This package defines error types with:
//   - Error codes for programmatic handling
//   - Context fields for debugging
//   - Wrapping support for error chains
//
// Error codes follow a hierarchical scheme:
//   - 1xxx: Configuration errors
//   - 2xxx: Connection errors
//   - 3xxx: Rewrite errors
//   - 5xxx: Metadata errors
//   - 9xxx: Internal errors
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// Is and As re-export the standard library helpers so callers do not
// need a second errors import.
func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target interface{}) bool { return stderrors.As(err, target) }

// Code is a numeric error code for programmatic handling.
type Code int

// Error codes by category
const (
	// Configuration errors (1xxx)
	ErrCodeConfigInvalid Code = 1001
	ErrCodeConfigMissing Code = 1002

	// Connection errors (2xxx)
	ErrCodeConnectionFailed Code = 2001
	ErrCodeConnectionClosed Code = 2002

	// Rewrite errors (3xxx)
	ErrCodeRewritePanic   Code = 3001
	ErrCodeRewriteBadUTF8 Code = 3002

	// Metadata errors (5xxx)
	ErrCodeMetadataQuery Code = 5001
	ErrCodeMetadataScan  Code = 5002

	// Internal errors (9xxx)
	ErrCodeInternal Code = 9001
)

// String returns the error code as a string.
func (c Code) String() string {
	return fmt.Sprintf("E%04d", c)
}

// Category returns the category for this code.
func (c Code) Category() string {
	switch {
	case c >= 1000 && c < 2000:
		return "configuration"
	case c >= 2000 && c < 3000:
		return "connection"
	case c >= 3000 && c < 4000:
		return "rewrite"
	case c >= 5000 && c < 6000:
		return "metadata"
	case c >= 9000:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is a structured error with code, context, and optional cause.
type Error struct {
	Code    Code
	Message string

	// Context
	Fields map[string]interface{}

	// Error chain
	Cause error

	Time   time.Time
	OpName string // Operation that failed (e.g., "Store.HyperLogLogColumns")
}

// Error implements the error interface.
func (e *Error) Error() string {
	var buf strings.Builder

	buf.WriteString(e.Code.String())
	buf.WriteString(": ")
	buf.WriteString(e.Message)

	if e.Cause != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Cause.Error())
	}

	return buf.String()
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithField adds a context field to the error.
func (e *Error) WithField(key string, value interface{}) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]interface{})
	}
	e.Fields[key] = value
	return e
}

// WithOp sets the operation name.
func (e *Error) WithOp(op string) *Error {
	e.OpName = op
	return e
}

// New creates a new error with the given code.
func New(code Code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Time:    time.Now(),
	}
}

// Newf creates a new error with a formatted message.
func Newf(code Code, format string, args ...interface{}) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap wraps an existing error with a code and message.
func Wrap(cause error, code Code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
		Time:    time.Now(),
	}
}

// Wrapf wraps an existing error with a formatted message.
func Wrapf(cause error, code Code, format string, args ...interface{}) *Error {
	return Wrap(cause, code, fmt.Sprintf(format, args...))
}

// CodeOf returns the code of an error, or ErrCodeInternal if it is not
// a structured error.
func CodeOf(err error) Code {
	var e *Error
	if As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}
