// Package dialect maps a connection url to the database family that serves it.
//
// The set of families is a closed table declared once in this file. Adding a
// family is a new table entry: a url prefix, the Go driver that opens it, a
// health-check statement, the placeholder style and a DSN translator.
package dialect

import (
	"fmt"
	"strings"

	"github.com/koustreak/userfed/internal/errs"
)

// ID names a database family.
type ID string

const (
	MariaDB    ID = "MARIADB"
	MySQL      ID = "MYSQL"
	SQLServer  ID = "SQLSERVER"
	PostgreSQL ID = "POSTGRESQL"
	HSQL       ID = "HSQL"
	Oracle     ID = "ORACLE"
	SQLite     ID = "SQLITE"
)

// Driver identifiers. Openers register themselves under these names in
// package database; they match the database/sql driver names where one exists.
const (
	DriverPgx       = "pgx"
	DriverMySQL     = "mysql"
	DriverSQLServer = "sqlserver"
	DriverOracle    = "godror"
	DriverSQLite    = "sqlite"
	DriverHSQL      = "hsqldb"
)

// PlaceholderStyle controls how bind parameters are written in SQL text.
type PlaceholderStyle int

const (
	// Question uses ? for every parameter.
	Question PlaceholderStyle = iota
	// Dollar uses $1, $2, …
	Dollar
	// AtP uses @p1, @p2, …
	AtP
	// Colon uses :1, :2, …
	Colon
)

// Dialect describes one database family. Values are immutable.
type Dialect struct {
	ID               ID
	URLPrefix        string
	Driver           string
	HealthCheckQuery string
	Placeholders     PlaceholderStyle

	dsn func(rest string) (string, error)
}

// table is searched in declaration order; prefixes are disjoint.
var table = []*Dialect{
	{
		ID:               MariaDB,
		URLPrefix:        "jdbc:mariadb:",
		Driver:           DriverMySQL,
		HealthCheckQuery: "SELECT 1",
		Placeholders:     Question,
		dsn:              mysqlDSN,
	},
	{
		ID:               MySQL,
		URLPrefix:        "jdbc:mysql:",
		Driver:           DriverMySQL,
		HealthCheckQuery: "SELECT 1",
		Placeholders:     Question,
		dsn:              mysqlDSN,
	},
	{
		ID:               SQLServer,
		URLPrefix:        "jdbc:sqlserver:",
		Driver:           DriverSQLServer,
		HealthCheckQuery: "SELECT 1",
		Placeholders:     AtP,
		dsn:              sqlServerDSN,
	},
	{
		ID:               PostgreSQL,
		URLPrefix:        "jdbc:postgresql:",
		Driver:           DriverPgx,
		HealthCheckQuery: "SELECT 1",
		Placeholders:     Dollar,
		dsn:              postgresDSN,
	},
	{
		ID:               HSQL,
		URLPrefix:        "jdbc:hsqldb:",
		Driver:           DriverHSQL,
		HealthCheckQuery: "SELECT 1 FROM INFORMATION_SCHEMA.SYSTEM_USERS",
		Placeholders:     Question,
		dsn:              passthroughDSN,
	},
	{
		ID:               Oracle,
		URLPrefix:        "jdbc:oracle:",
		Driver:           DriverOracle,
		HealthCheckQuery: "SELECT 1 FROM DUAL",
		Placeholders:     Colon,
		dsn:              oracleDSN,
	},
	{
		ID:               SQLite,
		URLPrefix:        "jdbc:sqlite:",
		Driver:           DriverSQLite,
		HealthCheckQuery: "SELECT 1",
		Placeholders:     Question,
		dsn:              sqliteDSN,
	},
}

// All returns the known dialects in resolution order.
func All() []*Dialect {
	out := make([]*Dialect, len(table))
	copy(out, table)
	return out
}

// Resolve returns the dialect whose prefix matches url. Matching ignores case
// and surrounding whitespace; the first match in declaration order wins.
func Resolve(url string) (*Dialect, error) {
	normalized := strings.ToLower(strings.TrimSpace(url))
	if normalized == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "connection url is empty")
	}
	for _, d := range table {
		if strings.HasPrefix(normalized, d.URLPrefix) {
			return d, nil
		}
	}
	return nil, errs.Newf(errs.ErrKindUnsupportedDialect,
		"no supported database matches connection url prefix %q", prefixOf(normalized))
}

// DSN translates a JDBC-style connection url into the data source name the
// dialect's Go driver expects. The url must resolve to d.
func (d *Dialect) DSN(url string) (string, error) {
	trimmed := strings.TrimSpace(url)
	if !strings.HasPrefix(strings.ToLower(trimmed), d.URLPrefix) {
		return "", errs.Newf(errs.ErrKindInvalidInput, "connection url is not a %s url", d.ID)
	}
	dsn, err := d.dsn(trimmed[len("jdbc:"):])
	if err != nil {
		return "", errs.Wrap(errs.ErrKindInvalidInput, fmt.Sprintf("malformed %s connection url", d.ID), err)
	}
	return dsn, nil
}

// Placeholder returns the bind marker for the n-th (1-based) parameter.
func (d *Dialect) Placeholder(n int) string {
	switch d.Placeholders {
	case Dollar:
		return fmt.Sprintf("$%d", n)
	case AtP:
		return fmt.Sprintf("@p%d", n)
	case Colon:
		return fmt.Sprintf(":%d", n)
	default:
		return "?"
	}
}

func (d *Dialect) String() string {
	return string(d.ID)
}

// prefixOf keeps error messages free of credentials embedded later in the url.
func prefixOf(url string) string {
	parts := strings.SplitN(url, ":", 3)
	if len(parts) < 3 {
		return url
	}
	return parts[0] + ":" + parts[1] + ":"
}
