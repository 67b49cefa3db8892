// Package oracle opens Oracle Database connection sources through godror.
// Importing the package registers its Opener. godror needs the Oracle
// Instant Client libraries at run time.
package oracle

import (
	"fmt"

	"github.com/godror/godror"

	"github.com/koustreak/userfed/internal/database"
	"github.com/koustreak/userfed/internal/database/sqldb"
	"github.com/koustreak/userfed/internal/dialect"
	"github.com/koustreak/userfed/internal/errs"
)

func init() {
	database.RegisterOpener(dialect.DriverOracle, NewOpener())
}

// NewOpener returns the Oracle opener.
func NewOpener() *sqldb.Opener {
	return sqldb.NewOpener("godror", mapError)
}

// ORA- codes that mean the listener, instance or login is unusable.
var unavailable = map[int]bool{
	1017:  true, // invalid username/password
	1033:  true, // initialization or shutdown in progress
	1034:  true, // ORACLE not available
	1089:  true, // immediate shutdown in progress
	3113:  true, // end-of-file on communication channel
	3114:  true, // not connected to ORACLE
	3135:  true, // connection lost contact
	12170: true, // connect timeout occurred
	12514: true, // listener does not know of service
	12516: true, // listener could not find available handler
	12519: true, // no appropriate service handler found
	12528: true, // all appropriate instances are blocking new connections
	12537: true, // connection closed
	12541: true, // no listener
	12545: true, // target host or object does not exist
}

func mapError(err error, msg string) *errs.Error {
	if oraErr, ok := godror.AsOraErr(err); ok {
		kind := errs.ErrKindQueryFailed
		if unavailable[oraErr.Code()] {
			kind = errs.ErrKindConnectionUnavailable
		}
		return errs.Wrap(kind, fmt.Sprintf("%s: ORA-%05d", msg, oraErr.Code()), err).
			WithVendor("", oraErr.Code())
	}
	return errs.Wrap(errs.ErrKindConnectionUnavailable, msg, err)
}
