// Package database owns the connection pool and schema migrations. The pool
// is the service's sole serialization point against the store: MaxConns
// bounds concurrent store load independent of request concurrency.
package database

import (
	"context"
	"time"

	pgxzerolog "github.com/jackc/pgx-zerolog"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/newrelic/go-agent/v3/integrations/nrpgx5"
	"github.com/rs/zerolog"

	"github.com/logward/logward/internal/config"
)

// NewPool builds the pgx pool from configuration. When New Relic is enabled
// its tracer instruments every query; otherwise queries trace through
// zerolog at warn level.
func NewPool(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL())
	if err != nil {
		return nil, err
	}

	poolCfg.MaxConns = int32(cfg.Database.MaxConns)
	if cfg.Database.MinConns > 0 {
		poolCfg.MinConns = int32(cfg.Database.MinConns)
	}
	poolCfg.MaxConnLifetime = time.Duration(cfg.Database.ConnMaxLifetime) * time.Second
	poolCfg.MaxConnIdleTime = time.Duration(cfg.Database.ConnMaxIdleTime) * time.Second

	if cfg.Observability != nil && cfg.Observability.Enabled {
		poolCfg.ConnConfig.Tracer = nrpgx5.NewTracer()
	} else {
		poolCfg.ConnConfig.Tracer = &tracelog.TraceLog{
			Logger:   pgxzerolog.NewLogger(logger),
			LogLevel: tracelog.LogLevelWarn,
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
