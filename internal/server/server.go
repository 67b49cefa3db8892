// Package server exposes the provider's lookup and credential operations
// over HTTP for identity platforms that call out to a remote federation
// service.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/koustreak/userfed/internal/credential"
	"github.com/koustreak/userfed/internal/database"
	"github.com/koustreak/userfed/internal/logger"
	"github.com/koustreak/userfed/internal/metrics"
)

const (
	readHeaderTimeout = 10 * time.Second
	requestTimeout    = 60 * time.Second
	shutdownTimeout   = 15 * time.Second
	maxBodyBytes      = 64 << 10
)

// Backend is what the HTTP layer needs from a provider.
// *provider.Provider implements it.
type Backend interface {
	Verifier() *credential.Verifier
	Ping(ctx context.Context) error
	Stats() database.Stats
}

// Server serves one Backend.
type Server struct {
	backend  Backend
	log      *logger.Logger
	metrics  metrics.Recorder
	gatherer prometheus.Gatherer
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. The default is logger.Global().
func WithLogger(l *logger.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithMetrics records requests with rec and serves g on /metrics.
func WithMetrics(rec metrics.Recorder, g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = rec
		s.gatherer = g
	}
}

// New returns a Server for b.
func New(b Backend, opts ...Option) *Server {
	s := &Server{
		backend: b,
		log:     logger.Global(),
		metrics: metrics.Noop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With().Str("component", "http").Logger()
	return s
}

// Handler returns the router.
//
//	GET  /healthz
//	GET  /metrics
//	GET  /realms/{realm}/users/by-id/{id}
//	GET  /realms/{realm}/users/by-username/{username}
//	GET  /realms/{realm}/users/by-email/{email}
//	POST /realms/{realm}/credentials/validate
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.Recoverer,
		metrics.Middleware(s.metrics),
		s.requestLogger,
		middleware.Timeout(requestTimeout),
	)

	r.Get("/healthz", s.health)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/realms/{realm}", func(r chi.Router) {
		r.Get("/users/by-id/{id}", s.userByID)
		r.Get("/users/by-username/{username}", s.userByUsername)
		r.Get("/users/by-email/{email}", s.userByEmail)
		r.Post("/credentials/validate", s.validate)
	})
	return r
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		BaseContext:       func(net.Listener) context.Context { return ctx },
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.InfoWith("http server listening", map[string]any{"addr": ln.Addr().String()})
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.log.Info("http server stopped")
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.log.Enabled("debug") {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.DebugWith("request", map[string]any{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start).String(),
			"request_id": middleware.GetReqID(r.Context()),
		})
	})
}
