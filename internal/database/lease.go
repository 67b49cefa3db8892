package database

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/koustreak/userfed/internal/config"
	"github.com/koustreak/userfed/internal/dialect"
	"github.com/koustreak/userfed/internal/logger"
	"github.com/koustreak/userfed/internal/metrics"
)

// Lease is one borrowed connection together with the configuration snapshot
// it was acquired under. Build SQL from Lease.Config, not from a config held
// elsewhere, so statement and connection always agree.
//
// Release must be called exactly once on every path; extra calls are no-ops.
type Lease struct {
	conn     Conn
	cfg      *config.Config
	dialect  *dialect.Dialect
	pooled   bool
	acquired time.Time

	leak      *leakDetector
	onRelease func()
	once      sync.Once
}

// Config returns the configuration the lease was acquired under.
func (l *Lease) Config() *config.Config { return l.cfg }

// Dialect returns the dialect of the leased connection.
func (l *Lease) Dialect() *dialect.Dialect { return l.dialect }

// Pooled reports whether the connection came from the pool.
func (l *Lease) Pooled() bool { return l.pooled }

// QueryRow runs a statement expected to return at most one row.
func (l *Lease) QueryRow(ctx context.Context, sql string, args ...any) Row {
	return l.conn.QueryRow(ctx, sql, args...)
}

// Release returns the connection to its pool or closes a direct connection.
func (l *Lease) Release() {
	l.once.Do(func() {
		if l.leak != nil {
			l.leak.stop(time.Since(l.acquired))
		}
		l.conn.Release()
		if l.onRelease != nil {
			l.onRelease()
		}
	})
}

// leakDetector warns when a lease outlives the configured threshold. The
// stack is captured at acquisition so the warning points at the borrower.
type leakDetector struct {
	timer *time.Timer
	fired atomic.Bool
	log   *logger.Logger
}

func startLeakDetector(threshold time.Duration, log *logger.Logger, rec metrics.Recorder) *leakDetector {
	stack := string(debug.Stack())
	ld := &leakDetector{log: log}
	ld.timer = time.AfterFunc(threshold, func() {
		log.WarnWith("connection leak detection triggered, connection held past threshold", map[string]any{
			"threshold": threshold.String(),
			"stack":     stack,
		})
		rec.RecordLeak()
		ld.fired.Store(true)
	})
	return ld
}

func (ld *leakDetector) stop(heldFor time.Duration) {
	if ld.timer.Stop() {
		return
	}
	if ld.fired.Load() {
		ld.log.InfoWith("previously reported leaked connection returned", map[string]any{
			"held_for": heldFor.String(),
		})
	}
}
