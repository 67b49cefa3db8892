package credential

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/koustreak/userfed/internal/config"
	"github.com/koustreak/userfed/internal/database"
	_ "github.com/koustreak/userfed/internal/database/sqlite"
	"github.com/koustreak/userfed/internal/logger"
	"github.com/koustreak/userfed/internal/metrics"
)

// newStore creates a SQLite user table holding alice (password s3cret),
// dave (password correct-horse) and carol (NULL password).
func newStore(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "users.db")

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE user (id INTEGER PRIMARY KEY, username TEXT NOT NULL UNIQUE, password TEXT)`)
	require.NoError(t, err)

	for _, u := range []struct{ name, password string }{{"alice", "s3cret"}, {"dave", "correct-horse"}} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), 10)
		require.NoError(t, err)
		_, err = db.Exec(`INSERT INTO user (username, password) VALUES (?, ?)`, u.name, string(hash))
		require.NoError(t, err)
	}
	_, err = db.Exec(`INSERT INTO user (username, password) VALUES ('carol', NULL)`)
	require.NoError(t, err)

	return "jdbc:sqlite:" + path
}

func newVerifier(t *testing.T, url string, pooled bool) (*Verifier, *database.Manager) {
	t.Helper()
	cfg := config.Default()
	cfg.ConnectionURL = url
	cfg.UseConnectionPool = pooled
	cfg.PoolMaxSize = 2
	cfg.PoolMinIdle = 1

	m := database.NewManager(cfg, database.WithLogger(logger.Nop()))
	t.Cleanup(m.Shutdown)
	return NewVerifier(m, WithLogger(logger.Nop()), WithIdentityFactory(UserFactory("comp"))), m
}

func password(p string) CredentialInput {
	return CredentialInput{Type: PasswordType, Challenge: p}
}

func TestValidatePassword(t *testing.T) {
	url := newStore(t)

	for _, pooled := range []bool{true, false} {
		v, m := newVerifier(t, url, pooled)
		ctx := context.Background()

		tests := []struct {
			name     string
			username string
			input    CredentialInput
			want     bool
		}{
			{"correct password", "alice", password("s3cret"), true},
			{"wrong password", "alice", password("wrong"), false},
			{"unknown user", "bob", password("s3cret"), false},
			{"null hash", "carol", password(""), false},
			{"cost 10 hash", "dave", password("correct-horse"), true},
			{"cost 10 hash wrong", "dave", password("wrong-horse"), false},
			{"unsupported kind", "alice", CredentialInput{Type: "otp", Challenge: "s3cret"}, false},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				ident := &User{Name: tt.username}
				assert.Equal(t, tt.want, v.ValidatePassword(ctx, ident, tt.input))
			})
		}

		if !pooled {
			assert.False(t, m.Stats().Pooled, "direct mode never builds a pool")
			assert.Zero(t, m.Stats().Open, "direct connections are closed after each call")
		}
	}
}

func TestValidatePassword_RecordsReason(t *testing.T) {
	_, m := newVerifier(t, newStore(t), true)
	rec := metrics.New(prometheus.NewRegistry())
	v := NewVerifier(m, WithLogger(logger.Nop()), WithMetrics(rec))
	ctx := context.Background()

	v.ValidatePassword(ctx, &User{Name: "alice"}, password("s3cret"))
	v.ValidatePassword(ctx, &User{Name: "alice"}, password("wrong"))
	v.ValidatePassword(ctx, &User{Name: "bob"}, password("s3cret"))
	v.ValidatePassword(ctx, &User{Name: "carol"}, password(""))
	v.ValidatePassword(ctx, &User{Name: "alice"}, CredentialInput{Type: "otp", Challenge: "s3cret"})

	for _, reason := range []string{
		ReasonSuccess, ReasonInvalidPassword, ReasonUserNotFound, ReasonNoPassword, ReasonUnsupported,
	} {
		assert.Equal(t, 1.0, testutil.ToFloat64(rec.ValidationsTotal.WithLabelValues(reason)), reason)
	}
	assert.Equal(t, 0.0, testutil.ToFloat64(rec.ValidationsTotal.WithLabelValues(ReasonError)))
}

func TestValidatePassword_NilIdentity(t *testing.T) {
	v, _ := newVerifier(t, newStore(t), true)
	assert.False(t, v.ValidatePassword(context.Background(), nil, password("s3cret")))
}

func TestLookupByUsername(t *testing.T) {
	v, _ := newVerifier(t, newStore(t), true)
	ctx := context.Background()

	ident, ok := v.LookupByUsername(ctx, "acme", "alice")
	require.True(t, ok)
	assert.Equal(t, "alice", ident.Username())
	assert.Equal(t, "f:comp:alice", ident.(*User).ExternalID)
	assert.Equal(t, "acme", ident.(*User).Realm)

	_, ok = v.LookupByUsername(ctx, "acme", "bob")
	assert.False(t, ok)

	_, ok = v.LookupByUsername(ctx, "acme", "carol")
	assert.False(t, ok, "a NULL password counts as not found")

	_, ok = v.LookupByUsername(ctx, "acme", "alice' OR '1'='1")
	assert.False(t, ok)
}

func TestLookupByID(t *testing.T) {
	v, _ := newVerifier(t, newStore(t), true)
	ctx := context.Background()

	ident, ok := v.LookupByID(ctx, "acme", "f:comp:alice")
	require.True(t, ok)
	assert.Equal(t, "alice", ident.Username())

	ident, ok = v.LookupByID(ctx, "acme", "alice")
	require.True(t, ok)
	assert.Equal(t, "alice", ident.Username())

	_, ok = v.LookupByID(ctx, "acme", "f:broken")
	assert.False(t, ok)
}

func TestLookupByEmail(t *testing.T) {
	v, _ := newVerifier(t, newStore(t), true)
	for _, email := range []string{"alice", "alice@example.com", ""} {
		_, ok := v.LookupByEmail(context.Background(), "acme", email)
		assert.False(t, ok)
	}
}

func TestCredentialKinds(t *testing.T) {
	v := NewVerifier(nil)
	assert.True(t, v.SupportsCredentialKind(PasswordType))
	assert.False(t, v.SupportsCredentialKind("otp"))
	assert.False(t, v.SupportsCredentialKind("Password"))

	ident := &User{Name: "alice"}
	assert.True(t, v.IsConfiguredFor(ident, PasswordType))
	assert.False(t, v.IsConfiguredFor(ident, "webauthn"))
}

func TestFailsClosed_MissingTable(t *testing.T) {
	url := newStore(t)
	cfg := config.Default()
	cfg.ConnectionURL = url
	cfg.Table = "accounts"

	m := database.NewManager(cfg, database.WithLogger(logger.Nop()))
	t.Cleanup(m.Shutdown)
	v := NewVerifier(m, WithLogger(logger.Nop()))

	assert.False(t, v.ValidatePassword(context.Background(), &User{Name: "alice"}, password("s3cret")))
	_, ok := v.LookupByUsername(context.Background(), "acme", "alice")
	assert.False(t, ok)
}

func TestFailsClosed_Unreachable(t *testing.T) {
	cfg := config.Default()
	cfg.ConnectionURL = "jdbc:sqlite:" + filepath.Join(t.TempDir(), "missing", "users.db")
	cfg.PoolConnectionTimeoutMs = 500

	m := database.NewManager(cfg, database.WithLogger(logger.Nop()))
	t.Cleanup(m.Shutdown)
	v := NewVerifier(m, WithLogger(logger.Nop()))

	assert.False(t, v.ValidatePassword(context.Background(), &User{Name: "alice"}, password("s3cret")))
}

func TestFailsClosed_AfterShutdown(t *testing.T) {
	v, m := newVerifier(t, newStore(t), true)
	m.Shutdown()
	assert.False(t, v.ValidatePassword(context.Background(), &User{Name: "alice"}, password("s3cret")))
}

func TestValidatePassword_FollowsReinitialize(t *testing.T) {
	first, second := newStore(t), newStore(t)
	v, m := newVerifier(t, first, true)
	ctx := context.Background()
	require.True(t, v.ValidatePassword(ctx, &User{Name: "alice"}, password("s3cret")))

	cfg := m.Config().Clone()
	cfg.ConnectionURL = second
	cfg.UsernameColumn = "login"
	require.NoError(t, m.Initialize(ctx, cfg))
	assert.False(t, v.ValidatePassword(ctx, &User{Name: "alice"}, password("s3cret")),
		"a missing column fails closed rather than reading the old configuration")

	cfg.UsernameColumn = "username"
	require.NoError(t, m.Initialize(ctx, cfg))
	assert.True(t, v.ValidatePassword(ctx, &User{Name: "alice"}, password("s3cret")))
}

func TestValidatePassword_Concurrent(t *testing.T) {
	v, _ := newVerifier(t, newStore(t), true)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]bool, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pw := "s3cret"
			if i%2 == 1 {
				pw = "wrong"
			}
			results[i] = v.ValidatePassword(ctx, &User{Name: "alice"}, password(pw))
		}(i)
	}
	wg.Wait()

	for i, ok := range results {
		assert.Equal(t, i%2 == 0, ok, "goroutine %d", i)
	}
}

func TestBurnComparison(t *testing.T) {
	start := time.Now()
	burnComparison("anything")
	assert.NotEmpty(t, dummyHash)
	cost, err := bcrypt.Cost(dummyHash)
	require.NoError(t, err)
	assert.Equal(t, bcrypt.DefaultCost, cost)
	assert.Positive(t, time.Since(start))
}
