// Package sqldb adapts database/sql drivers to database.Opener. The mysql,
// sqlserver, oracle and sqlite packages are thin wrappers that supply a
// driver name and a vendor error mapper.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"github.com/koustreak/userfed/internal/database"
	"github.com/koustreak/userfed/internal/dialect"
	"github.com/koustreak/userfed/internal/errs"
)

// errDBClosed mirrors database/sql's unexported error for a closed *sql.DB.
var errDBClosed = errors.New("sql: database is closed")

// MapFunc translates a driver error into *errs.Error. It is never called
// with a nil error, sql.ErrNoRows or a context error.
type MapFunc func(err error, msg string) *errs.Error

// Opener opens sources through database/sql.
type Opener struct {
	driverName string
	mapErr     MapFunc
	dsnFilter  func(string) string
}

// Option configures an Opener.
type Option func(*Opener)

// WithDSNFilter rewrites the DSN before it reaches the driver.
func WithDSNFilter(f func(string) string) Option {
	return func(o *Opener) { o.dsnFilter = f }
}

// NewOpener returns an Opener for the database/sql driver registered as
// driverName.
func NewOpener(driverName string, mapErr MapFunc, opts ...Option) *Opener {
	o := &Opener{driverName: driverName, mapErr: mapErr}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Opener) open(dsn string) (*sql.DB, error) {
	if o.dsnFilter != nil {
		dsn = o.dsnFilter(dsn)
	}
	db, err := sql.Open(o.driverName, dsn)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to open "+o.driverName, err)
	}
	return db, nil
}

// OpenPool configures a *sql.DB from s. database/sql has no minimum idle
// setting, so MinIdle connections are opened once up front and left idle.
func (o *Opener) OpenPool(ctx context.Context, dsn string, _ *dialect.Dialect, s database.PoolSettings) (database.Source, error) {
	db, err := o.open(dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(s.MaxSize)
	db.SetMaxIdleConns(s.MaxSize)
	db.SetConnMaxLifetime(s.MaxLifetime)
	db.SetConnMaxIdleTime(s.IdleTimeout)

	src := &source{db: db, mapErr: o.mapErr}
	if err := src.warm(ctx, min(s.MinIdle, s.MaxSize)); err != nil {
		db.Close()
		return nil, err
	}
	return src, nil
}

// OpenDirect opens a single connection; Release closes it together with its
// private *sql.DB.
func (o *Opener) OpenDirect(ctx context.Context, dsn string, _ *dialect.Dialect) (database.Conn, error) {
	db, err := o.open(dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(0)

	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, mapError(o.mapErr, err, "connect failed")
	}
	return &directConn{conn: conn, db: db, mapErr: o.mapErr}, nil
}

// source is a database.Source over *sql.DB. borrowed counts connections
// handed out and not yet released; it only grows while closed is false.
type source struct {
	db     *sql.DB
	mapErr MapFunc

	mu       sync.Mutex
	closed   bool
	borrowed sync.WaitGroup
}

func (s *source) Acquire(ctx context.Context) (database.Conn, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errs.Wrap(errs.ErrKindConnectionUnavailable, "acquire failed", errDBClosed)
	}
	s.borrowed.Add(1)
	s.mu.Unlock()

	conn, err := s.db.Conn(ctx)
	if err != nil {
		s.borrowed.Done()
		return nil, mapError(s.mapErr, err, "acquire failed")
	}
	return &pooledConn{conn: conn, mapErr: s.mapErr, done: s.borrowed.Done}, nil
}

func (s *source) Stats() database.Stats {
	st := s.db.Stats()
	return database.Stats{
		MaxOpen: st.MaxOpenConnections,
		Open:    st.OpenConnections,
		InUse:   st.InUse,
		Idle:    st.Idle,
	}
}

// Close stops new acquisitions, closes idle connections and then waits
// until every borrowed connection has been released.
func (s *source) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	_ = s.db.Close()
	s.borrowed.Wait()
}

func (s *source) warm(ctx context.Context, n int) error {
	conns := make([]*sql.Conn, 0, n)
	defer func() {
		for _, c := range conns {
			c.Close()
		}
	}()
	for i := 0; i < n; i++ {
		c, err := s.db.Conn(ctx)
		if err != nil {
			return mapError(s.mapErr, err, "open idle connection")
		}
		conns = append(conns, c)
	}
	return nil
}

type pooledConn struct {
	conn   *sql.Conn
	mapErr MapFunc
	done   func()
	once   sync.Once
}

func (c *pooledConn) QueryRow(ctx context.Context, query string, args ...any) database.Row {
	return &row{row: c.conn.QueryRowContext(ctx, query, args...), mapErr: c.mapErr}
}

// Release returns the connection to the pool. Calls after the first are
// no-ops.
func (c *pooledConn) Release() {
	c.once.Do(func() {
		_ = c.conn.Close()
		c.done()
	})
}

type directConn struct {
	conn   *sql.Conn
	db     *sql.DB
	mapErr MapFunc
}

func (c *directConn) QueryRow(ctx context.Context, query string, args ...any) database.Row {
	return &row{row: c.conn.QueryRowContext(ctx, query, args...), mapErr: c.mapErr}
}

func (c *directConn) Release() {
	_ = c.conn.Close()
	_ = c.db.Close()
}

// row wraps *sql.Row to satisfy database.Row.
type row struct {
	row    *sql.Row
	mapErr MapFunc
}

func (r *row) Scan(dest ...any) error {
	if err := r.row.Scan(dest...); err != nil {
		return mapError(r.mapErr, err, "query failed")
	}
	return nil
}

func mapError(mapErr MapFunc, err error, msg string) *errs.Error {
	if errors.Is(err, sql.ErrNoRows) {
		return database.NoRows(err)
	}
	if e := database.ContextError(err, msg); e != nil {
		return e
	}
	if errors.Is(err, sql.ErrConnDone) {
		return errs.Wrap(errs.ErrKindConnectionUnavailable, msg, err)
	}
	return mapErr(err, msg)
}
