// Package postgres implements the deal, inventory and payment stores on
// PostgreSQL through pgx.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"crm/pkg/config"
	"crm/pkg/logger"
)

// PoolConfig sizes the connection pool. Zero sizes keep the pgxpool defaults.
type PoolConfig struct {
	DSN               string
	ApplicationName   string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

// DefaultPoolConfig matches the CRM_DB_* defaults.
func DefaultPoolConfig(dsn string) PoolConfig {
	return PoolConfig{
		DSN:               dsn,
		ApplicationName:   "crm",
		MaxConns:          25,
		MinConns:          5,
		MaxConnLifetime:   time.Hour,
		MaxConnIdleTime:   30 * time.Minute,
		HealthCheckPeriod: time.Minute,
	}
}

// PoolConfigFromDB builds the pool settings of one process. The application
// name shows up in pg_stat_activity, so server, worker and seed are told apart.
func PoolConfigFromDB(db config.DBConfig, applicationName string) PoolConfig {
	cfg := DefaultPoolConfig(db.DSN)
	cfg.ApplicationName = applicationName
	cfg.MaxConns = db.MaxConns
	cfg.MinConns = db.MinConns
	cfg.MaxConnLifetime = db.MaxConnLifetime
	cfg.MaxConnIdleTime = db.MaxConnIdleTime
	return cfg
}

func (c PoolConfig) pgxConfig() (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(c.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if c.MaxConns > 0 {
		pc.MaxConns = c.MaxConns
	}
	if c.MinConns > 0 {
		pc.MinConns = c.MinConns
	}
	if c.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = c.MaxConnLifetime
	}
	if c.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = c.MaxConnIdleTime
	}
	if c.HealthCheckPeriod > 0 {
		pc.HealthCheckPeriod = c.HealthCheckPeriod
	}
	if c.ApplicationName != "" {
		pc.ConnConfig.RuntimeParams["application_name"] = c.ApplicationName
	}
	return pc, nil
}

// Pool is the process-wide pgx pool. TxManager and the repositories share it.
type Pool struct {
	*pgxpool.Pool
}

// Close is safe on a pool that never connected.
func (p *Pool) Close() {
	if p != nil && p.Pool != nil {
		p.Pool.Close()
	}
}

// NewPool connects and pings once so that a bad DSN fails at startup.
func NewPool(ctx context.Context, cfg PoolConfig) (*Pool, error) {
	pc, err := cfg.pgxConfig()
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Pool{Pool: pool}, nil
}

// LogPoolStats is run by the worker on CRM_WORKER_STATS_INTERVAL.
func LogPoolStats(ctx context.Context, pool *Pool) {
	stat := pool.Stat()
	logger.Info(ctx, "database pool stats",
		"total", stat.TotalConns(),
		"acquired", stat.AcquiredConns(),
		"idle", stat.IdleConns(),
		"max", stat.MaxConns(),
		"acquire_count", stat.AcquireCount(),
		"empty_acquire_count", stat.EmptyAcquireCount(),
		"acquire_wait", stat.AcquireDuration(),
	)
}
