// Package metrics records provider activity for Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder is implemented by Metrics and NoopMetrics.
type Recorder interface {
	// RecordLookup counts an identity lookup. op is by_id, by_username or by_email.
	RecordLookup(op string, found bool, duration time.Duration)

	// RecordValidation counts a password validation by outcome reason.
	RecordValidation(reason string, duration time.Duration)

	// RecordConnectionFailure counts failed acquisitions and statements by error kind.
	RecordConnectionFailure(kind string)

	// RecordPoolInit counts pool (re)initialisations per dialect.
	RecordPoolInit(dialect string, success bool)

	// RecordLeak counts connections held past the leak detection threshold.
	RecordLeak()

	// RecordHTTPRequest counts adapter requests by route pattern.
	RecordHTTPRequest(method, route string, status int, duration time.Duration)
}

var _ Recorder = (*Metrics)(nil)

// Metrics holds the Prometheus collectors.
type Metrics struct {
	LookupsTotal       *prometheus.CounterVec
	LookupDuration     *prometheus.HistogramVec
	ValidationsTotal   *prometheus.CounterVec
	ValidationDuration prometheus.Histogram

	ConnectionFailuresTotal *prometheus.CounterVec
	PoolInitsTotal          *prometheus.CounterVec
	LeaksTotal              prometheus.Counter

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New registers the collectors with reg. Passing a fresh prometheus.Registry
// keeps tests independent of the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		LookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "userfed_lookups_total",
				Help: "Total number of identity lookups",
			},
			[]string{"operation", "result"}, // result: found, not_found
		),
		LookupDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "userfed_lookup_duration_seconds",
				Help:    "Identity lookup latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		ValidationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "userfed_password_validations_total",
				Help: "Total number of password validations",
			},
			[]string{"reason"}, // success, invalid_password, user_not_found, no_password, unsupported_type, error
		),
		ValidationDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name: "userfed_password_validation_duration_seconds",
				Help: "Password validation latency including the bcrypt comparison",
				// bcrypt at cost 10-12 sits between 50ms and 400ms
				Buckets: []float64{.01, .025, .05, .1, .2, .4, .8, 1.6, 3.2},
			},
		),
		ConnectionFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "userfed_database_errors_total",
				Help: "Total number of database failures by error kind",
			},
			[]string{"kind"},
		),
		PoolInitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "userfed_pool_initializations_total",
				Help: "Total number of connection pool (re)initialisations",
			},
			[]string{"dialect", "result"}, // success, error
		),
		LeaksTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "userfed_connection_leaks_total",
				Help: "Connections held longer than the leak detection threshold",
			},
		),
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "userfed_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "userfed_http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
}

const (
	resultSuccess = "success"
	resultError   = "error"
)

func (m *Metrics) RecordLookup(op string, found bool, duration time.Duration) {
	result := "not_found"
	if found {
		result = "found"
	}
	m.LookupsTotal.WithLabelValues(op, result).Inc()
	m.LookupDuration.WithLabelValues(op).Observe(duration.Seconds())
}

func (m *Metrics) RecordValidation(reason string, duration time.Duration) {
	m.ValidationsTotal.WithLabelValues(reason).Inc()
	m.ValidationDuration.Observe(duration.Seconds())
}

func (m *Metrics) RecordConnectionFailure(kind string) {
	m.ConnectionFailuresTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordPoolInit(dialect string, success bool) {
	result := resultSuccess
	if !success {
		result = resultError
	}
	m.PoolInitsTotal.WithLabelValues(dialect, result).Inc()
}

func (m *Metrics) RecordLeak() {
	m.LeaksTotal.Inc()
}

func (m *Metrics) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, statusText(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
