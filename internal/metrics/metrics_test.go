package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.RecordLeak()

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)

	// A second registration against the same registry must fail loudly.
	assert.Panics(t, func() { New(reg) })
}

func TestRecordLookup(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordLookup("by_username", true, 3*time.Millisecond)
	m.RecordLookup("by_username", false, time.Millisecond)
	m.RecordLookup("by_username", false, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.LookupsTotal.WithLabelValues("by_username", "found")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.LookupsTotal.WithLabelValues("by_username", "not_found")))
}

func TestRecordValidation(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordValidation("success", 80*time.Millisecond)
	m.RecordValidation("invalid_password", 80*time.Millisecond)
	m.RecordValidation("invalid_password", 80*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ValidationsTotal.WithLabelValues("success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ValidationsTotal.WithLabelValues("invalid_password")))
}

func TestRecordPoolInit(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordPoolInit("POSTGRESQL", true)
	m.RecordPoolInit("POSTGRESQL", false)
	m.RecordConnectionFailure("connection_unavailable")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.PoolInitsTotal.WithLabelValues("POSTGRESQL", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PoolInitsTotal.WithLabelValues("POSTGRESQL", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConnectionFailuresTotal.WithLabelValues("connection_unavailable")))
}

func TestNoop(t *testing.T) {
	rec := Noop()
	assert.NotPanics(t, func() {
		rec.RecordLookup("by_id", true, 0)
		rec.RecordValidation("ok", 0)
		rec.RecordConnectionFailure("x")
		rec.RecordPoolInit("SQLITE", true)
		rec.RecordLeak()
		rec.RecordHTTPRequest("GET", "/", 200, 0)
	})
}

func TestMiddleware_UsesRoutePattern(t *testing.T) {
	m := New(prometheus.NewRegistry())

	r := chi.NewRouter()
	r.Use(Middleware(m))
	r.Get("/realms/{realm}/users/by-username/{username}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/realms/acme/users/by-username/alice", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues(
		http.MethodGet, "/realms/{realm}/users/by-username/{username}", "404"))
	assert.Equal(t, 1.0, got)
}
