// Package postgres opens PostgreSQL connection sources with pgx.
//
// Importing the package registers its Opener for dialect.DriverPgx.
package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/koustreak/userfed/internal/database"
	"github.com/koustreak/userfed/internal/dialect"
	"github.com/koustreak/userfed/internal/errs"
)

func init() {
	database.RegisterOpener(dialect.DriverPgx, Opener{})
}

// Opener builds pgxpool-backed sources and single pgx connections.
type Opener struct{}

// OpenPool builds a pgxpool sized by s. The pool connects lazily; the
// manager health-checks it before use.
func (Opener) OpenPool(ctx context.Context, dsn string, _ *dialect.Dialect, s database.PoolSettings) (database.Source, error) {
	poolCfg, err := poolConfig(dsn, s)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, mapError(err, "failed to create connection pool")
	}
	return &source{pool: pool}, nil
}

// OpenDirect opens one unpooled connection, closed again on Release.
func (Opener) OpenDirect(ctx context.Context, dsn string, _ *dialect.Dialect) (database.Conn, error) {
	connCfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "invalid postgres DSN", err)
	}
	conn, err := pgx.ConnectConfig(ctx, connCfg)
	if err != nil {
		return nil, mapError(err, "connect failed")
	}
	return &directConn{conn: conn}, nil
}

// source is a database.Source over pgxpool. It is safe for concurrent use.
type source struct {
	pool *pgxpool.Pool
}

func (s *source) Acquire(ctx context.Context) (database.Conn, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, mapError(err, "acquire failed")
	}
	return &pooledConn{conn: conn}, nil
}

func (s *source) Stats() database.Stats {
	st := s.pool.Stat()
	return database.Stats{
		MaxOpen: int(st.MaxConns()),
		Open:    int(st.TotalConns()),
		InUse:   int(st.AcquiredConns()),
		Idle:    int(st.IdleConns()),
	}
}

// Close blocks until every acquired connection has been released.
func (s *source) Close() {
	s.pool.Close()
}

type pooledConn struct {
	conn *pgxpool.Conn
}

func (c *pooledConn) QueryRow(ctx context.Context, sql string, args ...any) database.Row {
	return row{c.conn.QueryRow(ctx, sql, args...)}
}

func (c *pooledConn) Release() {
	c.conn.Release()
}

type directConn struct {
	conn *pgx.Conn
}

func (c *directConn) QueryRow(ctx context.Context, sql string, args ...any) database.Row {
	return row{c.conn.QueryRow(ctx, sql, args...)}
}

func (c *directConn) Release() {
	// Close is bounded by the connection's own timeouts.
	_ = c.conn.Close(context.Background())
}

// row wraps pgx.Row to satisfy database.Row.
type row struct {
	row pgx.Row
}

func (r row) Scan(dest ...any) error {
	if err := r.row.Scan(dest...); err != nil {
		return mapError(err, "query failed")
	}
	return nil
}
