package mysql

import (
	"errors"
	"fmt"

	gomysql "github.com/go-sql-driver/mysql"

	"github.com/koustreak/userfed/internal/errs"
)

// MySQL / MariaDB error numbers
// Full list: https://dev.mysql.com/doc/mysql-errors/8.0/en/server-error-reference.html
const (
	errTooManyConnections = 1040
	errAccessDenied       = 1045
	errUnknownDatabase    = 1049
	errServerShutdown     = 1053
	errHostBlocked        = 1129
	errHostNotPrivileged  = 1130
	errUserConnections    = 1203
	errConnRefused        = 2003
	errServerGone         = 2006
	errLostConnection     = 2013
)

// mapError converts a MySQL driver error into *errs.Error.
func mapError(err error, msg string) *errs.Error {
	var mysqlErr *gomysql.MySQLError
	if errors.As(err, &mysqlErr) {
		kind := errs.ErrKindQueryFailed
		switch mysqlErr.Number {
		case errTooManyConnections, errAccessDenied, errUnknownDatabase, errServerShutdown,
			errHostBlocked, errHostNotPrivileged, errUserConnections,
			errConnRefused, errServerGone, errLostConnection:
			kind = errs.ErrKindConnectionUnavailable
		}
		state := ""
		if mysqlErr.SQLState != [5]byte{} {
			state = string(mysqlErr.SQLState[:])
		}
		return errs.Wrap(kind, fmt.Sprintf("%s: %s", msg, mysqlErr.Message), err).
			WithVendor(state, int(mysqlErr.Number))
	}

	// driver.ErrBadConn, gomysql.ErrInvalidConn, dial and TLS failures
	return errs.Wrap(errs.ErrKindConnectionUnavailable, msg, err)
}
