package provider

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/koustreak/userfed/internal/config"
	"github.com/koustreak/userfed/internal/credential"
	_ "github.com/koustreak/userfed/internal/database/sqlite"
	"github.com/koustreak/userfed/internal/errs"
	"github.com/koustreak/userfed/internal/logger"
)

func newStore(t *testing.T, table string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "users.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE ` + table + ` (id INTEGER PRIMARY KEY, username TEXT, password TEXT)`)
	require.NoError(t, err)
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO `+table+` (username, password) VALUES (?, ?)`, "alice", string(hash))
	require.NoError(t, err)
	return "jdbc:sqlite:" + path
}

func newProvider(t *testing.T) *Provider {
	p := New(WithLogger(logger.Nop()), WithIdentityFactory(credential.UserFactory("comp")))
	t.Cleanup(p.Shutdown)
	return p
}

func cfgFor(url, table string) *config.Config {
	cfg := config.Default()
	cfg.ConnectionURL = url
	cfg.Table = table
	cfg.PoolMaxSize = 2
	cfg.PoolMinIdle = 0
	return cfg
}

var alicePassword = credential.CredentialInput{Type: credential.PasswordType, Challenge: "s3cret"}

func TestValidateConfiguration_Activates(t *testing.T) {
	p := newProvider(t)
	ctx := context.Background()

	require.NoError(t, p.ValidateConfiguration(ctx, cfgFor(newStore(t, "user"), "user")))
	assert.True(t, p.Stats().Pooled)
	assert.True(t, p.Verifier().ValidatePassword(ctx, &credential.User{Name: "alice"}, alicePassword))
	require.NoError(t, p.Ping(ctx))
}

func TestValidateConfiguration_Rejections(t *testing.T) {
	url := newStore(t, "user")

	tests := []struct {
		name  string
		cfg   *config.Config
		check func(error) bool
	}{
		{"nil", nil, errs.IsInvalidInput},
		{"empty url", cfgFor("", "user"), errs.IsInvalidInput},
		{"unknown dialect", cfgFor("jdbc:db2://h/d", "user"), errs.IsUnsupportedDialect},
		{"missing table", cfgFor(url, "accounts"), errs.IsConfiguration},
		{"unreachable", cfgFor("jdbc:sqlite:"+filepath.Join(t.TempDir(), "no", "such.db"), "user"), errs.IsConfiguration},
		{"no driver", cfgFor("jdbc:hsqldb:mem:users", "user"), errs.IsConfiguration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newProvider(t)
			err := p.ValidateConfiguration(context.Background(), tt.cfg)
			require.Error(t, err)
			assert.True(t, tt.check(err), "got %v", err)
			assert.Nil(t, p.Config(), "a rejected configuration is never activated")
		})
	}
}

func TestValidateConfiguration_MissingColumn(t *testing.T) {
	cfg := cfgFor(newStore(t, "user"), "user")
	cfg.PasswordColumn = "pass_hash"

	err := newProvider(t).ValidateConfiguration(context.Background(), cfg)
	require.Error(t, err)
	assert.True(t, errs.IsConfiguration(err))
	var e *errs.Error
	require.ErrorAs(t, err, &e)
	assert.True(t, errs.IsQueryFailed(e.Cause), "cause is the driver's statement error: %v", e.Cause)
}

func TestValidateConfiguration_KeepsOldPoolOnRejection(t *testing.T) {
	p := newProvider(t)
	ctx := context.Background()
	good := cfgFor(newStore(t, "user"), "user")
	require.NoError(t, p.ValidateConfiguration(ctx, good))

	bad := good.Clone()
	bad.Table = "accounts"
	require.Error(t, p.ValidateConfiguration(ctx, bad))

	assert.Equal(t, "user", p.Config().Table)
	assert.True(t, p.Verifier().ValidatePassword(ctx, &credential.User{Name: "alice"}, alicePassword))
}

func TestReload(t *testing.T) {
	p := newProvider(t)
	ctx := context.Background()
	require.NoError(t, p.Initialize(ctx, cfgFor(newStore(t, "user"), "user")))

	next := cfgFor(newStore(t, "accounts"), "accounts")
	require.NoError(t, p.Reload(ctx)(next))
	assert.Equal(t, "accounts", p.Config().Table)

	ident, ok := p.Verifier().LookupByUsername(ctx, "acme", "alice")
	require.True(t, ok)
	assert.Equal(t, "f:comp:alice", ident.(*credential.User).ExternalID)
}

func TestInitialize_DirectMode(t *testing.T) {
	p := newProvider(t)
	cfg := cfgFor(newStore(t, "user"), "user")
	cfg.UseConnectionPool = false

	require.NoError(t, p.Initialize(context.Background(), cfg))
	assert.False(t, p.Stats().Pooled)
	assert.True(t, p.Verifier().ValidatePassword(context.Background(), &credential.User{Name: "alice"}, alicePassword))
}

func TestInitialize_Invalid(t *testing.T) {
	p := newProvider(t)
	assert.True(t, errs.IsInvalidInput(p.Initialize(context.Background(), nil)))

	cfg := cfgFor("jdbc:sqlite:/tmp/x.db", "user")
	cfg.PoolLeakDetectionThresholdMs = 100
	assert.True(t, errs.IsConfiguration(p.Initialize(context.Background(), cfg)))
}

func TestShutdown_FailsClosed(t *testing.T) {
	p := newProvider(t)
	ctx := context.Background()
	require.NoError(t, p.Initialize(ctx, cfgFor(newStore(t, "user"), "user")))

	p.Shutdown()
	assert.False(t, p.Verifier().ValidatePassword(ctx, &credential.User{Name: "alice"}, alicePassword))
	assert.NotPanics(t, p.Shutdown)
}
