package database

import (
	"time"

	"github.com/koustreak/userfed/internal/config"
)

// PoolSettings are the tuning knobs passed to Opener.OpenPool. Zero
// durations mean "no limit" except ConnectionTimeout, which is always set.
type PoolSettings struct {
	// Name labels the pool in logs.
	Name string

	MaxSize           int
	MinIdle           int
	MaxLifetime       time.Duration
	IdleTimeout       time.Duration
	ConnectionTimeout time.Duration
}

// SettingsFrom derives pool settings from a provider configuration.
func SettingsFrom(cfg *config.Config) PoolSettings {
	return PoolSettings{
		Name:              "userfed",
		MaxSize:           cfg.PoolMaxSize,
		MinIdle:           cfg.MinIdle(),
		MaxLifetime:       cfg.MaxLifetime(),
		IdleTimeout:       cfg.IdleTimeout(),
		ConnectionTimeout: cfg.ConnectionTimeout(),
	}
}
