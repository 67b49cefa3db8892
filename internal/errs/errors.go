// Package errs provides the unified error type used across userfed.
//
// Every subsystem (dialect resolution, pool management, drivers, config)
// wraps its native errors into *errs.Error before returning them. Callers
// use the Is* predicates to decide what happened without importing
// driver-specific packages.
//
// Usage:
//
//	// In a driver, wrap native errors and keep the vendor codes:
//	return errs.Wrap(errs.ErrKindConnectionUnavailable, "acquire failed", pgErr).
//	    WithVendor(pgErr.Code, 0)
//
//	// At the verifier boundary, fail closed:
//	if errs.IsNotFound(err) {
//	    return nil, false
//	}
package errs

import (
	"errors"
	"fmt"
)

// ErrKind categorises an error without exposing vendor-specific codes.
type ErrKind int

const (
	ErrKindUnknown               ErrKind = iota
	ErrKindInvalidInput                  // empty url, missing or malformed setting
	ErrKindUnsupportedDialect            // url prefix matches no known database family
	ErrKindPoolInitialization            // pool or driver construction failed
	ErrKindConnectionUnavailable         // exhausted pool, timeout, network failure
	ErrKindConfiguration                 // configuration rejected at validation time
	ErrKindNotFound                      // no row matched the lookup
	ErrKindQueryFailed                   // statement rejected by the database
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindInvalidInput:
		return "invalid_input"
	case ErrKindUnsupportedDialect:
		return "unsupported_dialect"
	case ErrKindPoolInitialization:
		return "pool_initialization"
	case ErrKindConnectionUnavailable:
		return "connection_unavailable"
	case ErrKindConfiguration:
		return "configuration"
	case ErrKindNotFound:
		return "not_found"
	case ErrKindQueryFailed:
		return "query_failed"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by all userfed subsystems.
type Error struct {
	Kind    ErrKind
	Message string
	Cause   error // original driver-level error, preserved for logging

	// SQLState and VendorCode are filled in by the driver packages when the
	// database reported them. Zero values mean "not reported".
	SQLState   string
	VendorCode int
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithVendor records the database's SQL state and vendor error code.
func (e *Error) WithVendor(state string, code int) *Error {
	e.SQLState = state
	e.VendorCode = code
	return e
}

// --- Constructors ---

// New creates an *Error with the given kind and message and no cause.
func New(kind ErrKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf is New with a format string.
func Newf(kind ErrKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an *Error with the given kind, message, and an underlying cause.
// When cause already carries vendor codes they are copied to the new error.
func Wrap(kind ErrKind, msg string, cause error) *Error {
	e := &Error{Kind: kind, Message: msg, Cause: cause}
	var inner *Error
	if errors.As(cause, &inner) {
		e.SQLState = inner.SQLState
		e.VendorCode = inner.VendorCode
	}
	return e
}

// --- Predicates ---

// IsInvalidInput reports whether err was caused by bad input from the caller.
func IsInvalidInput(err error) bool {
	return KindOf(err) == ErrKindInvalidInput
}

// IsUnsupportedDialect reports whether err is a connection url no dialect claims.
func IsUnsupportedDialect(err error) bool {
	return KindOf(err) == ErrKindUnsupportedDialect
}

// IsPoolInitialization reports whether building a pool or driver failed.
func IsPoolInitialization(err error) bool {
	return KindOf(err) == ErrKindPoolInitialization
}

// IsConnectionUnavailable reports whether a connection could not be obtained
// or was lost while in use.
func IsConnectionUnavailable(err error) bool {
	return KindOf(err) == ErrKindConnectionUnavailable
}

// IsConfiguration reports whether err is a rejected configuration.
func IsConfiguration(err error) bool {
	return KindOf(err) == ErrKindConfiguration
}

// IsNotFound reports whether err represents a lookup with no matching row.
func IsNotFound(err error) bool {
	return KindOf(err) == ErrKindNotFound
}

// IsQueryFailed reports whether the database rejected the statement.
func IsQueryFailed(err error) bool {
	return KindOf(err) == ErrKindQueryFailed
}

// KindOf extracts the outermost ErrKind from any error in the chain.
func KindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindUnknown
}

// Vendor returns the SQL state and vendor code recorded anywhere in err's chain.
func Vendor(err error) (state string, code int) {
	var e *Error
	for err != nil {
		if !errors.As(err, &e) {
			return "", 0
		}
		if e.SQLState != "" || e.VendorCode != 0 {
			return e.SQLState, e.VendorCode
		}
		err = e.Cause
	}
	return "", 0
}
