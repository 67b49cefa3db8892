// Package sqlserver opens Microsoft SQL Server connection sources through
// go-mssqldb. Importing the package registers its Opener.
package sqlserver

import (
	"errors"
	"fmt"

	mssql "github.com/microsoft/go-mssqldb"

	"github.com/koustreak/userfed/internal/database"
	"github.com/koustreak/userfed/internal/database/sqldb"
	"github.com/koustreak/userfed/internal/dialect"
	"github.com/koustreak/userfed/internal/errs"
)

func init() {
	database.RegisterOpener(dialect.DriverSQLServer, NewOpener())
}

// NewOpener returns the SQL Server opener.
func NewOpener() *sqldb.Opener {
	return sqldb.NewOpener("sqlserver", mapError)
}

// SQL Server error numbers that mean the server or login is unusable.
// Full list: https://learn.microsoft.com/sql/relational-databases/errors-events/database-engine-events-and-errors
var unavailable = map[int32]bool{
	233:   true, // no process is on the other end of the pipe
	4060:  true, // cannot open database requested by the login
	10053: true, // transport-level error, connection aborted
	10054: true, // transport-level error, connection reset
	10060: true, // connection timed out
	17142: true, // server paused
	18452: true, // login from untrusted domain
	18456: true, // login failed
	40613: true, // database not currently available
}

func mapError(err error, msg string) *errs.Error {
	var msErr mssql.Error
	if errors.As(err, &msErr) {
		kind := errs.ErrKindQueryFailed
		if unavailable[msErr.Number] {
			kind = errs.ErrKindConnectionUnavailable
		}
		return errs.Wrap(kind, fmt.Sprintf("%s: %s", msg, msErr.Message), err).
			WithVendor(fmt.Sprintf("%d", msErr.State), int(msErr.Number))
	}
	return errs.Wrap(errs.ErrKindConnectionUnavailable, msg, err)
}
