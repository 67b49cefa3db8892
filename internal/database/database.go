// Package database owns the connection source the credential verifier reads
// through.
//
// A Manager holds at most one live pool built from the current
// configuration. Callers never talk to a driver directly: they Acquire a
// Lease, run one statement and Release it. Driver packages (postgres, mysql,
// sqlserver, oracle, sqlite) register an Opener for their dialect's driver
// name in init, so a binary picks up a database family by importing its
// package:
//
//	import _ "github.com/koustreak/userfed/internal/database/postgres"
//
//	m := database.NewManager(cfg, database.WithLogger(log))
//	lease, err := m.Acquire(ctx)
//	if err != nil { ... }
//	defer lease.Release()
package database

import (
	"context"
	"sort"
	"sync"

	"github.com/koustreak/userfed/internal/dialect"
	"github.com/koustreak/userfed/internal/errs"
)

// Row is the result of a single-row query. Scan returns an error of kind
// errs.ErrKindNotFound when the query matched nothing.
type Row interface {
	Scan(dest ...any) error
}

// Conn is one live connection borrowed for the span of one operation.
// It must not be shared between goroutines.
type Conn interface {
	// QueryRow runs a statement expected to return at most one row.
	QueryRow(ctx context.Context, sql string, args ...any) Row

	// Release returns a pooled connection to its pool, or closes a direct one.
	Release()
}

// Source is a pool of connections safe for concurrent Acquire.
type Source interface {
	// Acquire borrows a connection, waiting no longer than ctx allows.
	Acquire(ctx context.Context) (Conn, error)

	// Stats reports the pool's current occupancy.
	Stats() Stats

	// Close stops handing out connections, waits for borrowed ones to be
	// returned and closes everything.
	Close()
}

// Opener builds connection sources for one driver.
type Opener interface {
	// OpenPool builds a pool. It must not return a half-built pool on error.
	OpenPool(ctx context.Context, dsn string, d *dialect.Dialect, s PoolSettings) (Source, error)

	// OpenDirect opens a single unpooled connection that is closed on Release.
	OpenDirect(ctx context.Context, dsn string, d *dialect.Dialect) (Conn, error)
}

// Stats is a snapshot of pool occupancy.
type Stats struct {
	Pooled  bool `json:"pooled"`
	MaxOpen int  `json:"max_open"`
	Open    int  `json:"open"`
	InUse   int  `json:"in_use"`
	Idle    int  `json:"idle"`
}

var (
	openersMu sync.RWMutex
	openers   = map[string]Opener{}
)

// RegisterOpener makes an Opener available for a dialect driver name.
// Registering the same name twice replaces the earlier Opener.
func RegisterOpener(driver string, o Opener) {
	openersMu.Lock()
	defer openersMu.Unlock()
	openers[driver] = o
}

// Registered returns the driver names that have an Opener, sorted.
func Registered() []string {
	openersMu.RLock()
	defer openersMu.RUnlock()
	names := make([]string, 0, len(openers))
	for name := range openers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func openerFor(d *dialect.Dialect) (Opener, error) {
	openersMu.RLock()
	defer openersMu.RUnlock()
	o, ok := openers[d.Driver]
	if !ok {
		return nil, errs.Newf(errs.ErrKindPoolInitialization,
			"no driver registered for %s (driver %q)", d.ID, d.Driver)
	}
	return o, nil
}
