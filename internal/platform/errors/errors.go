// Package errors defines the coded domain errors shared by the rules engine,
// the session layer and the transport.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Code is a machine-readable error kind.
type Code string

const (
	CodeCannotAfford       Code = "CANNOT_AFFORD"
	CodeInvalidTarget      Code = "INVALID_TARGET"
	CodeMustCoup           Code = "MUST_COUP"
	CodeIllegalPhaseAction Code = "ILLEGAL_PHASE_ACTION"
	CodeInvalidChoice      Code = "INVALID_CHOICE"
	CodeUnknownIdentifier  Code = "UNKNOWN_IDENTIFIER"
	CodeInsufficientFunds  Code = "INSUFFICIENT_FUNDS"
	CodeInsufficientCards  Code = "INSUFFICIENT_CARDS"
)

// Fatal reports whether the code signals an internal-consistency fault.
// A fatal error ends the session it happened in.
func (c Code) Fatal() bool {
	return c == CodeInsufficientFunds || c == CodeInsufficientCards
}

// Error is the domain error type.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// Sentinels for errors.Is comparisons.
var (
	ErrCannotAfford       = &Error{Code: CodeCannotAfford}
	ErrInvalidTarget      = &Error{Code: CodeInvalidTarget}
	ErrMustCoup           = &Error{Code: CodeMustCoup}
	ErrIllegalPhaseAction = &Error{Code: CodeIllegalPhaseAction}
	ErrInvalidChoice      = &Error{Code: CodeInvalidChoice}
	ErrUnknownIdentifier  = &Error{Code: CodeUnknownIdentifier}
	ErrInsufficientFunds  = &Error{Code: CodeInsufficientFunds}
	ErrInsufficientCards  = &Error{Code: CodeInsufficientCards}
)

// New creates a domain error with a code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a domain error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a domain error that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf extracts the code of the first domain error in err's chain.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}

// IsFatal reports whether err carries a fatal code.
func IsFatal(err error) bool {
	code, ok := CodeOf(err)
	return ok && code.Fatal()
}
