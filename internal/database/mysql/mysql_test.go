package mysql

import (
	"database/sql/driver"
	"testing"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/userfed/internal/database"
	"github.com/koustreak/userfed/internal/dialect"
	"github.com/koustreak/userfed/internal/errs"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		kind  errs.ErrKind
		code  int
		state string
	}{
		{
			name:  "unknown table",
			err:   &gomysql.MySQLError{Number: 1146, SQLState: [5]byte{'4', '2', 'S', '0', '2'}, Message: "Table 'users.user' doesn't exist"},
			kind:  errs.ErrKindQueryFailed,
			code:  1146,
			state: "42S02",
		},
		{
			name: "unknown column",
			err:  &gomysql.MySQLError{Number: 1054, Message: "Unknown column 'pw' in 'field list'"},
			kind: errs.ErrKindQueryFailed,
			code: 1054,
		},
		{
			name: "access denied",
			err:  &gomysql.MySQLError{Number: 1045, Message: "Access denied for user 'auth'@'10.0.0.3'"},
			kind: errs.ErrKindConnectionUnavailable,
			code: 1045,
		},
		{
			name: "too many connections",
			err:  &gomysql.MySQLError{Number: 1040, Message: "Too many connections"},
			kind: errs.ErrKindConnectionUnavailable,
			code: 1040,
		},
		{
			name: "bad connection",
			err:  driver.ErrBadConn,
			kind: errs.ErrKindConnectionUnavailable,
		},
		{
			name: "invalid connection",
			err:  gomysql.ErrInvalidConn,
			kind: errs.ErrKindConnectionUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapError(tt.err, "lookup failed")
			assert.Equal(t, tt.kind, got.Kind)
			assert.ErrorIs(t, got, tt.err)

			state, code := errs.Vendor(got)
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.state, state)
		})
	}
}

func TestWithDefaults(t *testing.T) {
	d, err := dialect.Resolve("jdbc:mariadb://db/users")
	require.NoError(t, err)
	dsn, err := d.DSN("jdbc:mariadb://db/users?user=auth&password=pw")
	require.NoError(t, err)

	loose, err := gomysql.ParseDSN(dsn)
	require.NoError(t, err)
	loose.MultiStatements = true

	cfg, err := gomysql.ParseDSN(withDefaults(loose.FormatDSN()))
	require.NoError(t, err)
	assert.False(t, cfg.MultiStatements)
	assert.Equal(t, "auth", cfg.User)
	assert.Equal(t, "db:3306", cfg.Addr)
}

func TestWithDefaults_Unparseable(t *testing.T) {
	assert.Equal(t, "not a dsn", withDefaults("not a dsn"))
}

func TestRegistered(t *testing.T) {
	assert.Contains(t, database.Registered(), dialect.DriverMySQL)
}
