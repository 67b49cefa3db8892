package postgres

import (
	"math"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/koustreak/userfed/internal/database"
	"github.com/koustreak/userfed/internal/errs"
)

// unlimited stands in for "no limit": pgxpool treats a zero lifetime or idle
// time as already expired.
const unlimited = time.Duration(math.MaxInt64)

// poolConfig parses dsn and applies s.
func poolConfig(dsn string, s database.PoolSettings) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "invalid postgres DSN", err)
	}

	poolCfg.MaxConns = int32(s.MaxSize)
	poolCfg.MinConns = int32(min(s.MinIdle, s.MaxSize))
	poolCfg.MaxConnLifetime = withDefault(s.MaxLifetime, unlimited)
	poolCfg.MaxConnIdleTime = withDefault(s.IdleTimeout, unlimited)
	if s.ConnectionTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = s.ConnectionTimeout
	}
	if s.Name != "" {
		poolCfg.ConnConfig.RuntimeParams["application_name"] = valueOr(
			poolCfg.ConnConfig.RuntimeParams["application_name"], s.Name)
	}
	return poolCfg, nil
}

// withDefault returns val if non-zero, otherwise def.
func withDefault(val, def time.Duration) time.Duration {
	if val == 0 {
		return def
	}
	return val
}

func valueOr(val, def string) string {
	if val == "" {
		return def
	}
	return val
}
