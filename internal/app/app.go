// Package app wires the storage, policy and workflow layers from config.
package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"crm/internal/core/security"
	"crm/internal/domain/workflow"
	"crm/internal/infrastructure/storage/postgres"
	"crm/internal/infrastructure/storage/postgres/deal_repo"
	"crm/internal/infrastructure/storage/postgres/directory_repo"
	"crm/internal/infrastructure/storage/postgres/inventory_repo"
	"crm/internal/infrastructure/storage/postgres/payment_repo"
	"crm/pkg/config"
	"crm/pkg/logger"
	"crm/pkg/metrics"
	"crm/pkg/numerator"
)

// App holds the long-lived collaborators of one process.
type App struct {
	Config      *config.Config
	Pool        *postgres.Pool
	TxManager   *postgres.TxManager
	Policy      *security.Policy
	Service     *workflow.Service
	Audit       *postgres.AuditRecorder
	Idempotency *postgres.IdempotencyStore
	Registry    *prometheus.Registry
	HTTPMetrics *metrics.HTTP
}

// New connects to the database as applicationName and builds the workflow
// service.
func New(ctx context.Context, cfg *config.Config, applicationName string) (*App, error) {
	pool, err := postgres.NewPool(ctx, postgres.PoolConfigFromDB(cfg.DB, applicationName))
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	rules, err := security.ParseRules(cfg.Policy.Rules)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("policy rules: %w", err)
	}
	policy := security.NewPolicy(security.DefaultGrants(), rules)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	wfMetrics := metrics.NewWorkflow(reg)

	txm := postgres.NewTxManager(pool,
		postgres.WithMaxAttempts(cfg.DB.TxMaxAttempts),
		postgres.WithBackoff(cfg.DB.TxBackoff),
		postgres.WithStatementTimeout(cfg.DB.StatementTimeout),
		postgres.WithRetryHook(wfMetrics.IncTxRetry),
	)

	recorder, err := postgres.NewAuditRecorder(txm, cfg.Audit.CompressThreshold)
	if err != nil {
		pool.Close()
		return nil, err
	}

	payments := payment_repo.NewPaymentRepo(txm)
	nums := numerator.New(numerator.QuerierFunc(func(ctx context.Context) numerator.Querier {
		return txm.GetQuerier(ctx)
	}))

	svc := workflow.NewService(workflow.Deps{
		Tx:        txm,
		Policy:    policy,
		Deals:     deal_repo.NewDealRepo(txm),
		Inventory: inventory_repo.NewInventoryRepo(txm),
		Payments:  payments,
		Directory: directory_repo.NewDirectoryRepo(txm),
		Audit:     recorder,
		Numerator: nums,
		Metrics:   wfMetrics,
	})

	a := &App{
		Config:      cfg,
		Pool:        pool,
		TxManager:   txm,
		Policy:      policy,
		Service:     svc,
		Audit:       recorder,
		Registry:    reg,
		HTTPMetrics: metrics.NewHTTP(reg),
	}
	if cfg.Idempotency.Enabled {
		a.Idempotency = postgres.NewIdempotencyStore(txm, cfg.Idempotency.TTL)
	}
	logger.Info(ctx, "application wired",
		"tx_max_attempts", cfg.DB.TxMaxAttempts,
		"idempotency", cfg.Idempotency.Enabled,
	)
	return a, nil
}

// Close releases the database pool.
func (a *App) Close() {
	a.Pool.Close()
}
