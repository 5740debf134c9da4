// Package main is the entry point for the CRM API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"crm/internal/app"
	"crm/internal/domain/auth"
	v1 "crm/internal/infrastructure/http/v1"
	"crm/pkg/config"
	"crm/pkg/logger"
	"crm/pkg/migrate"
)

var version = "dev"

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.App.LogLevel,
		Development: cfg.App.IsDev(),
		Service:     "crm-server",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithLogger(ctx, log)

	if err := run(ctx, cfg, log); err != nil {
		log.Errorw("server failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	log.Infow("starting crm server", "env", cfg.App.Env, "version", version)

	if cfg.Migrations.AutoRun {
		db, err := migrate.Open(cfg.DB.DSN)
		if err != nil {
			return err
		}
		err = migrate.Up(ctx, db)
		_ = db.Close()
		if err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
	}

	a, err := app.New(ctx, cfg, "crm-server")
	if err != nil {
		return err
	}
	defer a.Close()

	jwtCfg := auth.DefaultJWTConfig(cfg.JWT.Secret)
	jwtCfg.Issuer = cfg.JWT.Issuer

	routerCfg := v1.RouterConfig{
		Logger:       log,
		Service:      a.Service,
		Policy:       a.Policy,
		JWTValidator: auth.NewJWTService(jwtCfg),
		Audit:        a.Audit,
		HTTPMetrics:  a.HTTPMetrics,
		Gatherer:     a.Registry,
		DB:           a.Pool,
		Version:      version,
	}
	if a.Idempotency != nil {
		routerCfg.Idempotency = a.Idempotency
	}

	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      v1.NewRouter(routerCfg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infow("server starting", "port", cfg.App.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}
