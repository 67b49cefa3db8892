// Package sqlite opens SQLite databases through the pure-Go modernc driver.
// Importing the package registers its Opener.
package sqlite

import (
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/koustreak/userfed/internal/database"
	"github.com/koustreak/userfed/internal/database/sqldb"
	"github.com/koustreak/userfed/internal/dialect"
	"github.com/koustreak/userfed/internal/errs"
)

func init() {
	database.RegisterOpener(dialect.DriverSQLite, NewOpener())
}

// busyTimeoutMs lets readers wait out a concurrent writer instead of failing.
const busyTimeoutMs = 5000

// NewOpener returns the SQLite opener.
func NewOpener() *sqldb.Opener {
	return sqldb.NewOpener("sqlite", mapError, sqldb.WithDSNFilter(withPragmas))
}

func withPragmas(dsn string) string {
	if strings.Contains(dsn, "busy_timeout") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%s_pragma=busy_timeout(%d)", dsn, sep, busyTimeoutMs)
}

func mapError(err error, msg string) *errs.Error {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		kind := errs.ErrKindQueryFailed
		switch code & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_CANTOPEN,
			sqlite3.SQLITE_NOTADB, sqlite3.SQLITE_CORRUPT, sqlite3.SQLITE_IOERR, sqlite3.SQLITE_PERM:
			kind = errs.ErrKindConnectionUnavailable
		}
		return errs.Wrap(kind, msg, err).WithVendor("", code)
	}
	return errs.Wrap(errs.ErrKindConnectionUnavailable, msg, err)
}
