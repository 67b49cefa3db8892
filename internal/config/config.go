// Package config is the provider's configuration contract: the stable key
// names, their defaults, parsing from the host's keyed string store and the
// validation run before a configuration is activated.
package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/koustreak/userfed/internal/dialect"
	"github.com/koustreak/userfed/internal/errs"
)

// Stable configuration keys. Renaming one orphans values saved under the old name.
const (
	KeyConnectionURL          = "connection-url"
	KeyTable                  = "table"
	KeyIDColumn               = "id-col"
	KeyUsernameColumn         = "username-col"
	KeyPasswordColumn         = "password-col"
	KeyUseConnectionPool      = "use-connection-pool"
	KeyPoolMaxSize            = "connection-pool-max-pool-size"
	KeyPoolMinIdle            = "connection-pool-min-idle"
	KeyPoolMaxLifetime        = "connection-pool-max-life-time"
	KeyPoolConnectionTimeout  = "connection-pool-connection-timeout"
	KeyPoolIdleTimeout        = "connection-pool-idle-timeout"
	KeyPoolLeakDetectionLimit = "connection-pool-leak-detection-threshold"
)

// Keys lists every recognised key in display order.
var Keys = []string{
	KeyConnectionURL,
	KeyTable,
	KeyIDColumn,
	KeyUsernameColumn,
	KeyPasswordColumn,
	KeyUseConnectionPool,
	KeyPoolMaxSize,
	KeyPoolMinIdle,
	KeyPoolMaxLifetime,
	KeyPoolConnectionTimeout,
	KeyPoolIdleTimeout,
	KeyPoolLeakDetectionLimit,
}

const (
	// DefaultConnectionTimeout bounds acquisition when the configured value is 0.
	DefaultConnectionTimeout = 30 * time.Second

	// MinLeakDetectionThreshold is the smallest non-zero leak threshold accepted.
	MinLeakDetectionThreshold = 2000
)

// Config is one snapshot of the provider configuration. A *Config handed to
// the pool manager is never mutated afterwards; edits produce a new value.
type Config struct {
	ConnectionURL     string `yaml:"connection-url"`
	Table             string `yaml:"table"`
	IDColumn          string `yaml:"id-col"`
	UsernameColumn    string `yaml:"username-col"`
	PasswordColumn    string `yaml:"password-col"`
	UseConnectionPool bool   `yaml:"use-connection-pool"`

	// Pool tuning. Durations are milliseconds, as stored by the host.
	PoolMaxSize                  int `yaml:"connection-pool-max-pool-size"`
	PoolMinIdle                  int `yaml:"connection-pool-min-idle"`
	PoolMaxLifetimeMs            int `yaml:"connection-pool-max-life-time"`
	PoolConnectionTimeoutMs      int `yaml:"connection-pool-connection-timeout"`
	PoolIdleTimeoutMs            int `yaml:"connection-pool-idle-timeout"`
	PoolLeakDetectionThresholdMs int `yaml:"connection-pool-leak-detection-threshold"`
}

// Default returns the settings used for every key the host leaves unset.
func Default() *Config {
	return &Config{
		Table:                        "user",
		IDColumn:                     "id",
		UsernameColumn:               "username",
		PasswordColumn:               "password",
		UseConnectionPool:            true,
		PoolMaxSize:                  30,
		PoolMinIdle:                  5,
		PoolMaxLifetimeMs:            1_800_000,
		PoolConnectionTimeoutMs:      30_000,
		PoolIdleTimeoutMs:            600_000,
		PoolLeakDetectionThresholdMs: 0,
	}
}

// Values is the host's keyed configuration store.
type Values map[string]string

// Parse builds a Config from vals, applying Default for missing or blank
// keys. Unknown keys are ignored. Parse does not call Validate.
func Parse(vals Values) (*Config, error) {
	cfg := Default()

	str := func(key string, dst *string) {
		if v := strings.TrimSpace(vals[key]); v != "" {
			*dst = v
		}
	}
	str(KeyConnectionURL, &cfg.ConnectionURL)
	str(KeyTable, &cfg.Table)
	str(KeyIDColumn, &cfg.IDColumn)
	str(KeyUsernameColumn, &cfg.UsernameColumn)
	str(KeyPasswordColumn, &cfg.PasswordColumn)

	if v := strings.TrimSpace(vals[KeyUseConnectionPool]); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, errs.Wrap(errs.ErrKindInvalidInput, KeyUseConnectionPool+" must be true or false", err)
		}
		cfg.UseConnectionPool = b
	}

	ints := []struct {
		key string
		dst *int
	}{
		{KeyPoolMaxSize, &cfg.PoolMaxSize},
		{KeyPoolMinIdle, &cfg.PoolMinIdle},
		{KeyPoolMaxLifetime, &cfg.PoolMaxLifetimeMs},
		{KeyPoolConnectionTimeout, &cfg.PoolConnectionTimeoutMs},
		{KeyPoolIdleTimeout, &cfg.PoolIdleTimeoutMs},
		{KeyPoolLeakDetectionLimit, &cfg.PoolLeakDetectionThresholdMs},
	}
	for _, f := range ints {
		v := strings.TrimSpace(vals[f.key])
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, errs.Wrap(errs.ErrKindInvalidInput, f.key+" must be an integer", err)
		}
		*f.dst = n
	}
	return cfg, nil
}

// Validate checks cfg before it is activated. It returns InvalidInput for a
// missing url or identifier, UnsupportedDialect for an unknown url prefix and
// Configuration for out-of-range pool settings. It does not touch the network.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ConnectionURL) == "" {
		return errs.New(errs.ErrKindInvalidInput, KeyConnectionURL+" is required")
	}
	for _, f := range []struct{ key, val string }{
		{KeyTable, c.Table},
		{KeyIDColumn, c.IDColumn},
		{KeyUsernameColumn, c.UsernameColumn},
		{KeyPasswordColumn, c.PasswordColumn},
	} {
		if strings.TrimSpace(f.val) == "" {
			return errs.New(errs.ErrKindInvalidInput, f.key+" is required")
		}
	}

	if _, err := dialect.Resolve(c.ConnectionURL); err != nil {
		return err
	}

	if c.PoolMaxSize <= 0 {
		return errs.New(errs.ErrKindConfiguration, KeyPoolMaxSize+" must be greater than 0")
	}
	for _, f := range []struct {
		key string
		val int
	}{
		{KeyPoolMinIdle, c.PoolMinIdle},
		{KeyPoolMaxLifetime, c.PoolMaxLifetimeMs},
		{KeyPoolConnectionTimeout, c.PoolConnectionTimeoutMs},
		{KeyPoolIdleTimeout, c.PoolIdleTimeoutMs},
		{KeyPoolLeakDetectionLimit, c.PoolLeakDetectionThresholdMs},
	} {
		if f.val < 0 {
			return errs.New(errs.ErrKindConfiguration, f.key+" must not be negative")
		}
	}
	if t := c.PoolLeakDetectionThresholdMs; t > 0 && t < MinLeakDetectionThreshold {
		return errs.Newf(errs.ErrKindConfiguration,
			"%s must be 0 (disabled) or at least %d ms", KeyPoolLeakDetectionLimit, MinLeakDetectionThreshold)
	}
	return nil
}

// Clone returns an independent copy of c.
func (c *Config) Clone() *Config {
	cp := *c
	return &cp
}

// Values renders c back into the host's keyed form.
func (c *Config) Values() Values {
	return Values{
		KeyConnectionURL:          c.ConnectionURL,
		KeyTable:                  c.Table,
		KeyIDColumn:               c.IDColumn,
		KeyUsernameColumn:         c.UsernameColumn,
		KeyPasswordColumn:         c.PasswordColumn,
		KeyUseConnectionPool:      strconv.FormatBool(c.UseConnectionPool),
		KeyPoolMaxSize:            strconv.Itoa(c.PoolMaxSize),
		KeyPoolMinIdle:            strconv.Itoa(c.PoolMinIdle),
		KeyPoolMaxLifetime:        strconv.Itoa(c.PoolMaxLifetimeMs),
		KeyPoolConnectionTimeout:  strconv.Itoa(c.PoolConnectionTimeoutMs),
		KeyPoolIdleTimeout:        strconv.Itoa(c.PoolIdleTimeoutMs),
		KeyPoolLeakDetectionLimit: strconv.Itoa(c.PoolLeakDetectionThresholdMs),
	}
}

// MinIdle returns the configured minimum idle count clamped to the pool size.
func (c *Config) MinIdle() int {
	if c.PoolMinIdle > c.PoolMaxSize {
		return c.PoolMaxSize
	}
	return c.PoolMinIdle
}

// MaxLifetime returns the maximum connection lifetime; 0 means unlimited.
func (c *Config) MaxLifetime() time.Duration {
	return ms(c.PoolMaxLifetimeMs)
}

// IdleTimeout returns how long an idle connection is kept; 0 means unlimited.
func (c *Config) IdleTimeout() time.Duration {
	return ms(c.PoolIdleTimeoutMs)
}

// ConnectionTimeout bounds every acquisition. A zero setting means
// DefaultConnectionTimeout so acquisition never blocks indefinitely.
func (c *Config) ConnectionTimeout() time.Duration {
	if c.PoolConnectionTimeoutMs <= 0 {
		return DefaultConnectionTimeout
	}
	return ms(c.PoolConnectionTimeoutMs)
}

// LeakDetectionThreshold returns the leak warning threshold; 0 disables it.
func (c *Config) LeakDetectionThreshold() time.Duration {
	return ms(c.PoolLeakDetectionThresholdMs)
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}
