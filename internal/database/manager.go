package database

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/koustreak/userfed/internal/config"
	"github.com/koustreak/userfed/internal/dialect"
	"github.com/koustreak/userfed/internal/errs"
	"github.com/koustreak/userfed/internal/logger"
	"github.com/koustreak/userfed/internal/metrics"
)

// Manager owns the single live connection source and the configuration
// snapshot it was built from. It is safe for concurrent use.
//
// Every change of source happens under build: the old pool is detached and
// closed (waiting for borrowed connections to come back) before the new one
// is built, so two pools are never live at once. mu is only held to read or
// swap state, never across a pool build, and an Acquire sees either the old
// state or the new one.
type Manager struct {
	mu      sync.RWMutex
	cfg     *config.Config
	dialect *dialect.Dialect
	dsn     string
	source  Source
	closed  bool

	build  sync.Mutex
	flight singleflight.Group
	direct atomic.Int64

	opener  Opener
	log     *logger.Logger
	metrics metrics.Recorder
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. The default is logger.Global().
func WithLogger(l *logger.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithMetrics sets the metrics recorder. The default discards everything.
func WithMetrics(r metrics.Recorder) Option {
	return func(m *Manager) { m.metrics = r }
}

// WithOpener makes the manager use o for every dialect instead of the
// registered openers.
func WithOpener(o Opener) Option {
	return func(m *Manager) { m.opener = o }
}

// NewManager returns a manager for cfg. Nothing is opened until the first
// Acquire or an explicit Initialize. cfg may be nil when the configuration
// arrives later through Initialize.
func NewManager(cfg *config.Config, opts ...Option) *Manager {
	m := &Manager{
		log:     logger.Global(),
		metrics: metrics.Noop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.With().Str("component", "connection_manager").Logger()
	if cfg != nil {
		m.cfg = cfg.Clone()
	}
	return m
}

// Initialize activates cfg. Any existing pool is closed first; then, in
// pooled mode, a new pool is built and health-checked. In direct mode no
// pool is built. On failure the manager keeps cfg but holds no pool, and the
// error is of kind PoolInitialization. An invalid url leaves the manager
// untouched.
func (m *Manager) Initialize(ctx context.Context, cfg *config.Config) error {
	if cfg == nil {
		return errs.New(errs.ErrKindInvalidInput, "configuration is nil")
	}
	d, dsn, err := prepare(cfg)
	if err != nil {
		return err
	}

	m.build.Lock()
	defer m.build.Unlock()

	m.mu.Lock()
	old := m.detachLocked()
	m.cfg, m.dialect, m.dsn, m.closed = cfg.Clone(), d, dsn, false
	m.mu.Unlock()
	m.closeSource(old, "reinitialize")

	if !cfg.UseConnectionPool {
		m.log.InfoWith("direct connection mode, no pool built", map[string]any{"dialect": d.String()})
		return nil
	}
	return m.installPool(ctx)
}

// Acquire borrows a connection under the current configuration. In pooled
// mode the pool is built on first use; in direct mode a fresh connection is
// opened and closed again on Release. Acquisition waits at most the
// configured connection timeout, including any wait for a pool another
// caller is building. Every failure is ConnectionUnavailable and is not
// retried.
func (m *Manager) Acquire(ctx context.Context) (*Lease, error) {
	ctx, cancel := context.WithTimeout(ctx, m.connectionTimeout())
	defer cancel()

	for attempt := 0; attempt < 2; attempt++ {
		m.mu.RLock()
		switch {
		case m.closed:
			m.mu.RUnlock()
			return nil, m.fail(errs.New(errs.ErrKindConnectionUnavailable, "connection manager is shut down"))
		case m.cfg == nil:
			m.mu.RUnlock()
			return nil, m.fail(errs.New(errs.ErrKindConnectionUnavailable, "connection manager is not configured"))
		case m.dialect != nil && (!m.cfg.UseConnectionPool || m.source != nil):
			lease, err := m.acquireLocked(ctx)
			m.mu.RUnlock()
			return lease, err
		}
		m.mu.RUnlock()

		if err := m.awaitInit(ctx); err != nil {
			return nil, m.fail(errs.Wrap(errs.ErrKindConnectionUnavailable, "connection source unavailable", err))
		}
	}
	return nil, m.fail(errs.New(errs.ErrKindConnectionUnavailable, "connection source unavailable"))
}

// Ping borrows a connection and runs the dialect's health-check statement.
func (m *Manager) Ping(ctx context.Context) error {
	lease, err := m.Acquire(ctx)
	if err != nil {
		return err
	}
	defer lease.Release()
	return HealthCheck(ctx, lease.conn, lease.dialect)
}

// Check opens one direct connection for cfg, runs the dialect's health
// check and probes the lookup's table and columns. The manager's own state
// is not touched. The connection is bounded by cfg's connection timeout.
func (m *Manager) Check(ctx context.Context, cfg *config.Config) error {
	d, dsn, err := prepare(cfg)
	if err != nil {
		return err
	}
	opener, err := m.openerFor(d)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectionTimeout())
	defer cancel()

	conn, err := opener.OpenDirect(ctx, dsn, d)
	if err != nil {
		m.logFailure("configuration check failed", "open_direct", d, err)
		return err
	}
	defer conn.Release()

	if err := HealthCheck(ctx, conn, d); err != nil {
		m.logFailure("configuration check failed", "health_check", d, err)
		return err
	}
	if err := Probe(ctx, conn, cfg, d); err != nil {
		m.logFailure("configuration check failed", "probe", d, err)
		return err
	}
	return nil
}

// Shutdown closes the live pool, if any. Later Acquire calls fail until the
// next Initialize. It is safe to call more than once.
func (m *Manager) Shutdown() {
	m.build.Lock()
	defer m.build.Unlock()

	m.mu.Lock()
	old := m.detachLocked()
	m.closed = true
	m.mu.Unlock()
	m.closeSource(old, "shutdown")
}

// Config returns a copy of the active configuration snapshot, or nil.
func (m *Manager) Config() *config.Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.cfg == nil {
		return nil
	}
	return m.cfg.Clone()
}

// Stats reports pool occupancy; in direct mode it counts open connections.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.source != nil {
		s := m.source.Stats()
		s.Pooled = true
		return s
	}
	n := int(m.direct.Load())
	return Stats{Open: n, InUse: n}
}

func prepare(cfg *config.Config) (*dialect.Dialect, string, error) {
	d, err := dialect.Resolve(cfg.ConnectionURL)
	if err != nil {
		return nil, "", err
	}
	dsn, err := d.DSN(cfg.ConnectionURL)
	if err != nil {
		return nil, "", err
	}
	return d, dsn, nil
}

func (m *Manager) connectionTimeout() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.cfg == nil {
		return config.DefaultConnectionTimeout
	}
	return m.cfg.ConnectionTimeout()
}

// awaitInit joins the in-flight lazy initialization, or starts one, and
// gives up when ctx is done. The build itself is bounded by the connection
// timeout and keeps going for the callers still waiting on it.
func (m *Manager) awaitInit(ctx context.Context) error {
	ch := m.flight.DoChan("init", func() (any, error) {
		return nil, m.lazyInit()
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) lazyInit() error {
	m.build.Lock()
	defer m.build.Unlock()

	m.mu.Lock()
	if m.closed || m.cfg == nil {
		m.mu.Unlock()
		return nil
	}
	if m.dialect == nil {
		d, dsn, err := prepare(m.cfg)
		if err != nil {
			m.mu.Unlock()
			return err
		}
		m.dialect, m.dsn = d, dsn
	}
	ready := !m.cfg.UseConnectionPool || m.source != nil
	m.mu.Unlock()

	if ready {
		return nil
	}
	return m.installPool(context.Background())
}

// installPool builds a pool for the current configuration and makes it
// live. The caller holds build, so the configuration cannot change
// underneath it.
func (m *Manager) installPool(ctx context.Context) error {
	m.mu.RLock()
	cfg, d, dsn := m.cfg, m.dialect, m.dsn
	m.mu.RUnlock()

	src, err := m.openPool(ctx, cfg, d, dsn)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.source = src
	m.mu.Unlock()
	return nil
}

// acquireLocked must be called with at least the read lock held. ctx
// carries the acquisition deadline.
func (m *Manager) acquireLocked(ctx context.Context) (*Lease, error) {
	cfg, d := m.cfg, m.dialect

	var conn Conn
	var err error
	if cfg.UseConnectionPool {
		conn, err = m.source.Acquire(ctx)
	} else {
		var opener Opener
		if opener, err = m.openerFor(d); err == nil {
			conn, err = opener.OpenDirect(ctx, m.dsn, d)
		}
	}
	if err != nil {
		return nil, m.fail(errs.Wrap(errs.ErrKindConnectionUnavailable,
			fmt.Sprintf("acquire %s connection", d.ID), err))
	}

	lease := &Lease{
		conn:     conn,
		cfg:      cfg,
		dialect:  d,
		pooled:   cfg.UseConnectionPool,
		acquired: time.Now(),
	}
	if !lease.pooled {
		m.direct.Add(1)
		lease.onRelease = func() { m.direct.Add(-1) }
	}
	if threshold := cfg.LeakDetectionThreshold(); threshold > 0 {
		lease.leak = startLeakDetector(threshold, m.log, m.metrics)
	}
	return lease, nil
}

func (m *Manager) openPool(ctx context.Context, cfg *config.Config, d *dialect.Dialect, dsn string) (Source, error) {
	opener, err := m.openerFor(d)
	if err != nil {
		m.metrics.RecordPoolInit(d.String(), false)
		return nil, err
	}

	settings := SettingsFrom(cfg)
	ctx, cancel := context.WithTimeout(ctx, settings.ConnectionTimeout)
	defer cancel()

	start := time.Now()
	src, err := opener.OpenPool(ctx, dsn, d, settings)
	if err != nil {
		m.metrics.RecordPoolInit(d.String(), false)
		m.logFailure("pool initialization failed", "open_pool", d, err)
		return nil, errs.Wrap(errs.ErrKindPoolInitialization, fmt.Sprintf("open %s pool", d.ID), err)
	}

	if err := checkSource(ctx, src, d); err != nil {
		src.Close()
		m.metrics.RecordPoolInit(d.String(), false)
		m.logFailure("pool health check failed", "open_pool", d, err)
		return nil, errs.Wrap(errs.ErrKindPoolInitialization, fmt.Sprintf("%s pool health check", d.ID), err)
	}

	m.metrics.RecordPoolInit(d.String(), true)
	m.log.InfoWith("connection pool initialized", map[string]any{
		"dialect":       d.String(),
		"max_pool_size": settings.MaxSize,
		"min_idle":      settings.MinIdle,
		"duration":      time.Since(start).String(),
	})
	return src, nil
}

func checkSource(ctx context.Context, src Source, d *dialect.Dialect) error {
	conn, err := src.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()
	return HealthCheck(ctx, conn, d)
}

// detachLocked must be called with the write lock held.
func (m *Manager) detachLocked() Source {
	old := m.source
	m.source = nil
	return old
}

func (m *Manager) closeSource(src Source, reason string) {
	if src == nil {
		return
	}
	start := time.Now()
	src.Close()
	m.log.InfoWith("connection pool closed", map[string]any{
		"reason":   reason,
		"duration": time.Since(start).String(),
	})
}

func (m *Manager) openerFor(d *dialect.Dialect) (Opener, error) {
	if m.opener != nil {
		return m.opener, nil
	}
	return openerFor(d)
}

func (m *Manager) fail(err *errs.Error) error {
	m.metrics.RecordConnectionFailure(err.Kind.String())
	return err
}

func (m *Manager) logFailure(msg, op string, d *dialect.Dialect, err error) {
	state, code := errs.Vendor(err)
	m.log.ErrorWith(msg, err, map[string]any{
		"operation":   op,
		"dialect":     d.String(),
		"sql_state":   state,
		"vendor_code": code,
	})
}
