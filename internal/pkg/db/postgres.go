// Package db provides PostgreSQL and MongoDB connection management.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"telegram-image-bot/internal/config"
)

const (
	defaultConnectTimeout  = 10 * time.Second
	defaultMaxConnLifetime = time.Hour
	defaultMaxConnIdleTime = 30 * time.Minute
	healthCheckPeriod      = 30 * time.Second
)

// Pool is the PostgreSQL pool behind the account, code and credit-log tables.
type Pool struct {
	*pgxpool.Pool
}

// PoolOption adjusts OpenPostgres.
type PoolOption func(*openOptions)

type openOptions struct {
	migrate bool
}

// WithMigrations applies the schema before OpenPostgres returns.
func WithMigrations() PoolOption {
	return func(o *openOptions) { o.migrate = true }
}

// poolConfig maps the database settings onto pgxpool. Zero durations take
// the defaults above.
func poolConfig(cfg *config.DatabaseConfig) (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	if cfg.PoolSize > 0 {
		pc.MaxConns = int32(cfg.PoolSize)
	}
	pc.MinConns = max(pc.MaxConns/4, 1)

	pc.ConnConfig.ConnectTimeout = orDefault(cfg.ConnectTimeout, defaultConnectTimeout)
	pc.MaxConnLifetime = orDefault(cfg.MaxConnLifetime, defaultMaxConnLifetime)
	pc.MaxConnIdleTime = orDefault(cfg.MaxConnIdleTime, defaultMaxConnIdleTime)
	pc.HealthCheckPeriod = healthCheckPeriod
	return pc, nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}

// OpenPostgres connects, pings within the connect timeout and, with
// WithMigrations, brings the schema up to date. The pool is closed on failure.
func OpenPostgres(ctx context.Context, cfg *config.DatabaseConfig, opts ...PoolOption) (*Pool, error) {
	var o openOptions
	for _, opt := range opts {
		opt(&o)
	}

	pc, err := poolConfig(cfg)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Name).
		Int32("max_conns", pc.MaxConns).
		Bool("migrate", o.migrate).
		Msg("Connecting to PostgreSQL")

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pc.ConnConfig.ConnectTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if o.migrate {
		if err := Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
	}

	log.Info().Msg("PostgreSQL ready")
	return &Pool{Pool: pool}, nil
}

// Close closes the connection pool.
func (p *Pool) Close() {
	if p.Pool == nil {
		return
	}
	p.Pool.Close()
	log.Info().Msg("PostgreSQL connection pool closed")
}
