package database

import (
	"context"
	"errors"

	"github.com/koustreak/userfed/internal/errs"
)

// Shared pieces of the drivers' mapError functions.

// ContextError reports a cancelled or expired context as
// ConnectionUnavailable. It returns nil for any other error.
func ContextError(err error, msg string) *errs.Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindConnectionUnavailable, msg, err)
	}
	return nil
}

// NoRows reports a query that matched nothing.
func NoRows(cause error) *errs.Error {
	return errs.Wrap(errs.ErrKindNotFound, "no matching row", cause)
}

// errRow is a Row whose Scan always fails with err.
type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }

// ErrRow returns a Row that reports err from Scan. Drivers use it when a
// statement fails before a row exists.
func ErrRow(err error) Row {
	return errRow{err: err}
}
