package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/koustreak/userfed/internal/database"
	"github.com/koustreak/userfed/internal/errs"
)

// SQLSTATE classes that mean the server or the session is unusable rather
// than the statement being wrong.
// Full list: https://www.postgresql.org/docs/current/errcodes-appendix.html
var unavailableClasses = map[string]bool{
	"08": true, // connection exception
	"28": true, // invalid authorization specification
	"53": true, // insufficient resources (too_many_connections)
	"57": true, // operator intervention (admin_shutdown, cannot_connect_now)
	"3D": true, // invalid catalog name: the database does not exist
}

// mapError translates pgx / pgconn native errors into *errs.Error.
func mapError(err error, msg string) *errs.Error {
	if err == nil {
		return nil
	}

	if e := database.ContextError(err, msg); e != nil {
		return e
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return database.NoRows(err)
	}

	// Postgres server-side error (SQLSTATE codes)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		kind := errs.ErrKindQueryFailed
		if len(pgErr.Code) >= 2 && unavailableClasses[pgErr.Code[:2]] {
			kind = errs.ErrKindConnectionUnavailable
		}
		return errs.Wrap(kind, fmt.Sprintf("%s: %s", msg, pgErr.Message), err).WithVendor(pgErr.Code, 0)
	}

	// Fallthrough: connection-level errors (TLS, network, closed pool)
	return errs.Wrap(errs.ErrKindConnectionUnavailable, msg, err)
}
