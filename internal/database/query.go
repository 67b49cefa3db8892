package database

import (
	"context"
	"strings"

	"github.com/koustreak/userfed/internal/config"
	"github.com/koustreak/userfed/internal/dialect"
	"github.com/koustreak/userfed/internal/errs"
)

// Statement is SQL text with its bound arguments.
type Statement struct {
	SQL  string
	Args []any
}

// SelectBuilder renders a single-table SELECT with equality conditions.
// Values are never interpolated into the SQL string, always passed as args.
//
// Identifiers are written verbatim, without quoting: table and column names
// come from operator configuration, never from an authentication request.
//
//	stmt := Select("users", d).
//	    Columns("id", "username", "password").
//	    WhereEq("username", "alice").
//	    Build()
type SelectBuilder struct {
	table   string
	dialect *dialect.Dialect
	columns []string
	where   []whereClause
	never   bool
}

type whereClause struct {
	column string
	value  any
}

// Select starts a new SelectBuilder for table, emitting d's placeholder style.
func Select(table string, d *dialect.Dialect) *SelectBuilder {
	return &SelectBuilder{table: table, dialect: d}
}

// Columns sets the select list. If not called, SELECT * is used.
func (b *SelectBuilder) Columns(cols ...string) *SelectBuilder {
	b.columns = cols
	return b
}

// WhereEq adds a "column = ?" condition. Multiple calls are combined with AND.
func (b *SelectBuilder) WhereEq(column string, value any) *SelectBuilder {
	b.where = append(b.where, whereClause{column, value})
	return b
}

// Never makes the statement match no rows while still resolving every
// identifier, which is how a configuration is checked against the schema.
func (b *SelectBuilder) Never() *SelectBuilder {
	b.never = true
	return b
}

// Build produces the SQL text and argument slice.
func (b *SelectBuilder) Build() Statement {
	cols := "*"
	if len(b.columns) > 0 {
		cols = strings.Join(b.columns, ", ")
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(cols)
	sb.WriteString(" FROM ")
	sb.WriteString(b.table)

	var parts []string
	var args []any
	if b.never {
		parts = append(parts, "1 = 0")
	}
	for _, w := range b.where {
		args = append(args, w.value)
		parts = append(parts, w.column+" = "+b.dialect.Placeholder(len(args)))
	}
	if len(parts) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(parts, " AND "))
	}

	return Statement{SQL: sb.String(), Args: args}
}

// BuildLookup renders the credential lookup for username:
//
//	SELECT <id-col>, <username-col>, <password-col> FROM <table> WHERE <username-col> = ?
//
// The statement is rebuilt from cfg on every call so it always reflects the
// configuration the connection was acquired under.
func BuildLookup(cfg *config.Config, d *dialect.Dialect, username string) Statement {
	return Select(cfg.Table, d).
		Columns(cfg.IDColumn, cfg.UsernameColumn, cfg.PasswordColumn).
		WhereEq(cfg.UsernameColumn, username).
		Build()
}

// BuildProbe renders the lookup's select list against a condition that is
// never true. Running it fails if the table or a column does not exist.
func BuildProbe(cfg *config.Config, d *dialect.Dialect) Statement {
	return Select(cfg.Table, d).
		Columns(cfg.IDColumn, cfg.UsernameColumn, cfg.PasswordColumn).
		Never().
		Build()
}

// HealthCheck runs d's health-check statement on conn.
func HealthCheck(ctx context.Context, conn Conn, d *dialect.Dialect) error {
	var one int
	if err := conn.QueryRow(ctx, d.HealthCheckQuery).Scan(&one); err != nil {
		if errs.KindOf(err) == errs.ErrKindUnknown {
			return errs.Wrap(errs.ErrKindConnectionUnavailable, "health check failed", err)
		}
		return err
	}
	return nil
}

// Probe runs BuildProbe's statement on conn. A missing table or column is
// reported as the driver's QueryFailed error.
func Probe(ctx context.Context, conn Conn, cfg *config.Config, d *dialect.Dialect) error {
	stmt := BuildProbe(cfg, d)
	var id any
	var username, password *string
	err := conn.QueryRow(ctx, stmt.SQL, stmt.Args...).Scan(&id, &username, &password)
	if err == nil || errs.IsNotFound(err) {
		return nil
	}
	return err
}
