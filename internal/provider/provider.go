// Package provider wires configuration, the connection manager and the
// credential verifier into the lifecycle the identity platform drives:
// Initialize, ValidateConfiguration, Reload and Shutdown.
package provider

import (
	"context"

	"github.com/koustreak/userfed/internal/config"
	"github.com/koustreak/userfed/internal/credential"
	"github.com/koustreak/userfed/internal/database"
	"github.com/koustreak/userfed/internal/errs"
	"github.com/koustreak/userfed/internal/logger"
	"github.com/koustreak/userfed/internal/metrics"
)

// Provider is one configured user federation source.
type Provider struct {
	manager  *database.Manager
	verifier *credential.Verifier
	log      *logger.Logger
}

type options struct {
	log      *logger.Logger
	metrics  metrics.Recorder
	identity credential.IdentityFactory
	dbOpts   []database.Option
}

// Option configures a Provider.
type Option func(*options)

// WithLogger sets the logger shared by every component.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithMetrics sets the metrics recorder shared by every component.
func WithMetrics(r metrics.Recorder) Option {
	return func(o *options) { o.metrics = r }
}

// WithIdentityFactory sets how verified usernames become identities.
func WithIdentityFactory(f credential.IdentityFactory) Option {
	return func(o *options) { o.identity = f }
}

// WithDatabaseOptions passes extra options to the connection manager.
func WithDatabaseOptions(opts ...database.Option) Option {
	return func(o *options) { o.dbOpts = append(o.dbOpts, opts...) }
}

// New returns an unconfigured Provider. Call Initialize or
// ValidateConfiguration before use; until then every lookup fails closed.
func New(opts ...Option) *Provider {
	o := options{
		log:      logger.Global(),
		metrics:  metrics.Noop(),
		identity: credential.UserFactory(""),
	}
	for _, opt := range opts {
		opt(&o)
	}

	dbOpts := append([]database.Option{database.WithLogger(o.log), database.WithMetrics(o.metrics)}, o.dbOpts...)
	m := database.NewManager(nil, dbOpts...)

	return &Provider{
		manager: m,
		verifier: credential.NewVerifier(m,
			credential.WithLogger(o.log),
			credential.WithMetrics(o.metrics),
			credential.WithIdentityFactory(o.identity),
		),
		log: o.log.With().Str("component", "provider").Logger(),
	}
}

// Initialize activates cfg without contacting the database beyond the pool
// health check. Static validation errors are returned unchanged.
func (p *Provider) Initialize(ctx context.Context, cfg *config.Config) error {
	if cfg == nil {
		return errs.New(errs.ErrKindInvalidInput, "configuration is nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := p.manager.Initialize(ctx, cfg); err != nil {
		return err
	}
	p.log.InfoWith("provider initialized", map[string]any{
		"table":               cfg.Table,
		"use_connection_pool": cfg.UseConnectionPool,
	})
	return nil
}

// ValidateConfiguration checks cfg the way a configuration save is checked
// and, when it passes, makes it the active configuration.
//
// Static problems are returned as InvalidInput, UnsupportedDialect or
// Configuration. A database that cannot be reached with cfg, or that lacks
// the configured table or columns, is reported as Configuration wrapping
// the driver error. The running pool is only replaced once every check has
// passed.
func (p *Provider) ValidateConfiguration(ctx context.Context, cfg *config.Config) error {
	if cfg == nil {
		return errs.New(errs.ErrKindInvalidInput, "connection URL not present")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := p.manager.Check(ctx, cfg); err != nil {
		switch errs.KindOf(err) {
		case errs.ErrKindInvalidInput, errs.ErrKindUnsupportedDialect, errs.ErrKindConfiguration:
			return err
		}
		return errs.Wrap(errs.ErrKindConfiguration, "database rejected the configuration", err)
	}
	if err := p.manager.Initialize(ctx, cfg); err != nil {
		return err
	}
	p.log.InfoWith("configuration validated and activated", map[string]any{"table": cfg.Table})
	return nil
}

// Reload is the configuration-update path. It is ValidateConfiguration
// bound to ctx, in the shape the config watchers expect.
func (p *Provider) Reload(ctx context.Context) config.ReloadFunc {
	return func(cfg *config.Config) error {
		return p.ValidateConfiguration(ctx, cfg)
	}
}

// Shutdown closes the pool. Lookups fail closed afterwards.
func (p *Provider) Shutdown() {
	p.manager.Shutdown()
	p.log.Info("provider shut down")
}

// Verifier returns the lookup and credential operations.
func (p *Provider) Verifier() *credential.Verifier { return p.verifier }

// Ping runs the health check on a borrowed connection.
func (p *Provider) Ping(ctx context.Context) error { return p.manager.Ping(ctx) }

// Stats reports connection usage.
func (p *Provider) Stats() database.Stats { return p.manager.Stats() }

// Config returns the active configuration, or nil before Initialize.
func (p *Provider) Config() *config.Config { return p.manager.Config() }
