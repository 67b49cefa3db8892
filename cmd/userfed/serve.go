package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/koustreak/userfed/internal/config"
	"github.com/koustreak/userfed/internal/credential"
	"github.com/koustreak/userfed/internal/metrics"
	"github.com/koustreak/userfed/internal/provider"
	"github.com/koustreak/userfed/internal/server"
)

const (
	flagAddr        = "addr"
	flagWatch       = "watch"
	flagMetrics     = "metrics"
	flagComponentID = "component-id"
)

func newServeCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve user lookups and password validation over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
	f := cmd.Flags()
	f.String(flagAddr, ":8080", "listen address")
	f.Bool(flagWatch, false, "reload the configuration when its file or object changes")
	f.Bool(flagMetrics, true, "expose Prometheus metrics on /metrics")
	f.String(flagComponentID, "", "component id used to qualify external user ids (f:<id>:<username>)")
	_ = a.v.BindPFlags(f)
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	rec := metrics.Noop()
	var reg *prometheus.Registry
	if a.v.GetBool(flagMetrics) {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		rec = metrics.New(reg)
	}

	p := provider.New(
		provider.WithLogger(a.log),
		provider.WithMetrics(rec),
		provider.WithIdentityFactory(credential.UserFactory(a.v.GetString(flagComponentID))),
	)
	defer p.Shutdown()

	reload := p.Reload(ctx)
	onChange := func(cfg *config.Config) error {
		cfg, err := a.overlay(cfg)
		if err != nil {
			return err
		}
		return reload(cfg)
	}

	src, err := a.openSource(ctx, onChange)
	if err != nil {
		return err
	}
	defer src.Close()

	cfg, err := a.load(ctx, src)
	if err != nil {
		return err
	}
	// A database that is down at startup leaves the provider degraded
	// rather than stopping the process; lookups fail closed and the pool
	// is retried on the next request.
	if err := p.Initialize(ctx, cfg); err != nil {
		if cfg.Validate() != nil {
			return err
		}
		a.log.ErrorWith("provider started degraded", err, nil)
	}

	if a.v.GetBool(flagWatch) {
		stopWatch, err := a.watch(ctx, src, onChange)
		if err != nil {
			return err
		}
		defer stopWatch()
	}

	opts := []server.Option{server.WithLogger(a.log)}
	if reg != nil {
		opts = append(opts, server.WithMetrics(rec, reg))
	}
	return server.New(p, opts...).Run(ctx, a.v.GetString(flagAddr))
}

// watch starts the watcher matching src and returns its stop function.
func (a *app) watch(ctx context.Context, src *configSource, onChange config.ReloadFunc) (func(), error) {
	switch {
	case src.file != "":
		w, err := config.NewWatcher(src.file, onChange, a.log)
		if err != nil {
			return nil, err
		}
		w.Start()
		return func() { _ = w.Stop() }, nil
	case src.objects != nil:
		src.objects.Start(ctx)
		return src.objects.Stop, nil
	default:
		a.log.Warn("--watch has no effect without --config or --config-bucket")
		return func() {}, nil
	}
}
