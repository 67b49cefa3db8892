package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/userfed/internal/errs"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "user", cfg.Table)
	assert.Equal(t, "id", cfg.IDColumn)
	assert.Equal(t, "username", cfg.UsernameColumn)
	assert.Equal(t, "password", cfg.PasswordColumn)
	assert.True(t, cfg.UseConnectionPool)
	assert.Equal(t, 30, cfg.PoolMaxSize)
	assert.Equal(t, 5, cfg.PoolMinIdle)
	assert.Equal(t, 30*time.Minute, cfg.MaxLifetime())
	assert.Equal(t, 30*time.Second, cfg.ConnectionTimeout())
	assert.Equal(t, 10*time.Minute, cfg.IdleTimeout())
	assert.Zero(t, cfg.LeakDetectionThreshold())
}

func TestParse(t *testing.T) {
	cfg, err := Parse(Values{
		KeyConnectionURL:          " jdbc:postgresql://h/d ",
		KeyTable:                  "accounts",
		KeyUsernameColumn:         "login",
		KeyPasswordColumn:         "",
		KeyUseConnectionPool:      "false",
		KeyPoolMaxSize:            "8",
		KeyPoolLeakDetectionLimit: "2500",
		"unrelated":               "ignored",
	})
	require.NoError(t, err)

	assert.Equal(t, "jdbc:postgresql://h/d", cfg.ConnectionURL)
	assert.Equal(t, "accounts", cfg.Table)
	assert.Equal(t, "login", cfg.UsernameColumn)
	assert.Equal(t, "password", cfg.PasswordColumn, "blank value falls back to default")
	assert.False(t, cfg.UseConnectionPool)
	assert.Equal(t, 8, cfg.PoolMaxSize)
	assert.Equal(t, 5, cfg.PoolMinIdle)
	assert.Equal(t, 2500*time.Millisecond, cfg.LeakDetectionThreshold())
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name string
		vals Values
	}{
		{"bool", Values{KeyUseConnectionPool: "sometimes"}},
		{"int", Values{KeyPoolMaxSize: "thirty"}},
		{"duration", Values{KeyPoolIdleTimeout: "10m"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.vals)
			require.Error(t, err)
			assert.True(t, errs.IsInvalidInput(err))
		})
	}
}

func TestValuesRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.ConnectionURL = "jdbc:mysql://db/users"
	cfg.PoolMinIdle = 2

	back, err := Parse(cfg.Values())
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
}

func valid() *Config {
	cfg := Default()
	cfg.ConnectionURL = "jdbc:postgresql://h/d"
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		check  func(error) bool
	}{
		{"empty url", func(c *Config) { c.ConnectionURL = "  " }, errs.IsInvalidInput},
		{"empty table", func(c *Config) { c.Table = "" }, errs.IsInvalidInput},
		{"empty id column", func(c *Config) { c.IDColumn = "" }, errs.IsInvalidInput},
		{"empty username column", func(c *Config) { c.UsernameColumn = " " }, errs.IsInvalidInput},
		{"empty password column", func(c *Config) { c.PasswordColumn = "" }, errs.IsInvalidInput},
		{"unknown dialect", func(c *Config) { c.ConnectionURL = "jdbc:db2://h/d" }, errs.IsUnsupportedDialect},
		{"zero pool size", func(c *Config) { c.PoolMaxSize = 0 }, errs.IsConfiguration},
		{"negative min idle", func(c *Config) { c.PoolMinIdle = -1 }, errs.IsConfiguration},
		{"negative timeout", func(c *Config) { c.PoolConnectionTimeoutMs = -5 }, errs.IsConfiguration},
		{"leak threshold too small", func(c *Config) { c.PoolLeakDetectionThresholdMs = 1999 }, errs.IsConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, tt.check(err), "got %v", err)
		})
	}
}

func TestValidate_ReportsFirstProblemInKeyOrder(t *testing.T) {
	for i := 0; i < 20; i++ {
		cfg := valid()
		cfg.Table, cfg.IDColumn, cfg.UsernameColumn, cfg.PasswordColumn = "", "", "", ""
		var e *errs.Error
		require.ErrorAs(t, cfg.Validate(), &e)
		assert.Equal(t, KeyTable+" is required", e.Message)

		cfg = valid()
		cfg.PoolMinIdle, cfg.PoolMaxLifetimeMs, cfg.PoolIdleTimeoutMs = -1, -1, -1
		require.ErrorAs(t, cfg.Validate(), &e)
		assert.Equal(t, KeyPoolMinIdle+" must not be negative", e.Message)
	}
}

func TestValidate_Accepts(t *testing.T) {
	require.NoError(t, valid().Validate())

	cfg := valid()
	cfg.PoolLeakDetectionThresholdMs = MinLeakDetectionThreshold
	cfg.PoolMaxLifetimeMs = 0
	cfg.PoolIdleTimeoutMs = 0
	cfg.PoolConnectionTimeoutMs = 0
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultConnectionTimeout, cfg.ConnectionTimeout())
}

func TestMinIdleClamped(t *testing.T) {
	cfg := valid()
	cfg.PoolMaxSize = 3
	cfg.PoolMinIdle = 10
	assert.Equal(t, 3, cfg.MinIdle())
}

func TestClone(t *testing.T) {
	cfg := valid()
	cp := cfg.Clone()
	cp.Table = "other"
	assert.Equal(t, "user", cfg.Table)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "provider.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
connection-url: jdbc:sqlite:/var/lib/userfed/users.db
table: accounts
use-connection-pool: false
connection-pool-max-pool-size: 4
connection-pool-idle-timeout: ~
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "jdbc:sqlite:/var/lib/userfed/users.db", cfg.ConnectionURL)
	assert.Equal(t, "accounts", cfg.Table)
	assert.False(t, cfg.UseConnectionPool)
	assert.Equal(t, 4, cfg.PoolMaxSize)
	assert.Equal(t, 600_000, cfg.PoolIdleTimeoutMs)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errs.IsInvalidInput(err))

	_, err = Decode([]byte("table: [a, b]"))
	assert.True(t, errs.IsInvalidInput(err))

	_, err = Decode([]byte("table: \"unterminated"))
	assert.True(t, errs.IsInvalidInput(err))
}

func TestEncodeDecode(t *testing.T) {
	cfg := valid()
	data, err := Encode(cfg)
	require.NoError(t, err)

	back, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
}
