// Package mysql opens MySQL and MariaDB connection sources through
// go-sql-driver/mysql. Importing the package registers its Opener for
// dialect.DriverMySQL, which both dialects share.
package mysql

import (
	gomysql "github.com/go-sql-driver/mysql"

	"github.com/koustreak/userfed/internal/database"
	"github.com/koustreak/userfed/internal/database/sqldb"
	"github.com/koustreak/userfed/internal/dialect"
)

func init() {
	database.RegisterOpener(dialect.DriverMySQL, NewOpener())
}

// NewOpener returns the MySQL/MariaDB opener.
func NewOpener() *sqldb.Opener {
	return sqldb.NewOpener("mysql", mapError, sqldb.WithDSNFilter(withDefaults))
}

// withDefaults forces settings the credential lookup depends on, whatever
// the connection url asked for.
func withDefaults(dsn string) string {
	cfg, err := gomysql.ParseDSN(dsn)
	if err != nil {
		// The driver reports the same parse error on open.
		return dsn
	}
	cfg.MultiStatements = false
	cfg.InterpolateParams = false
	return cfg.FormatDSN()
}
