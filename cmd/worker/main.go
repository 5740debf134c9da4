// Package main is the entry point for the CRM maintenance worker: it prunes
// expired idempotency keys, logs pool statistics and optionally runs the
// daily closing at a fixed time of day.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"crm/internal/app"
	appctx "crm/internal/core/context"
	"crm/internal/core/security"
	"crm/internal/domain/payment"
	"crm/internal/infrastructure/storage/postgres"
	"crm/pkg/config"
	"crm/pkg/logger"
)

// systemActor is the identity the worker uses for scheduled operations.
const systemActor = "system:worker"

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(logger.Config{
		Level:       cfg.App.LogLevel,
		Development: cfg.App.IsDev(),
		Service:     "crm-worker",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithLogger(ctx, log)

	a, err := app.New(ctx, cfg, "crm-worker")
	if err != nil {
		log.Fatalw("failed to start worker", "error", err)
	}
	defer a.Close()

	idem := a.Idempotency
	if idem == nil {
		idem = postgres.NewIdempotencyStore(a.TxManager, cfg.Idempotency.TTL)
	}
	w := &Worker{
		log:    log.WithComponent("worker"),
		cfg:    cfg.Worker,
		idem:   idem,
		pool:   a.Pool,
		closer: a.Service,
	}

	log.Info("starting crm worker")
	w.Run(ctx)
	log.Info("worker stopped")
}

// DayCloser runs the daily closing.
type DayCloser interface {
	CloseDay(ctx context.Context) (*payment.DailyClosing, error)
}

// Worker runs the periodic maintenance jobs until its context ends.
type Worker struct {
	log    *logger.Logger
	cfg    config.WorkerConfig
	idem   *postgres.IdempotencyStore
	pool   *postgres.Pool
	closer DayCloser
}

// Run blocks until ctx is canceled.
func (w *Worker) Run(ctx context.Context) {
	var wg sync.WaitGroup
	every := func(interval time.Duration, job func(context.Context)) {
		if interval <= 0 {
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					job(ctx)
				}
			}
		}()
	}

	every(w.cfg.CleanupInterval, w.cleanupIdempotency)
	every(w.cfg.StatsInterval, func(ctx context.Context) { postgres.LogPoolStats(ctx, w.pool) })

	if w.cfg.CloseDayAt != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.scheduleDailyClosing(ctx)
		}()
	}

	<-ctx.Done()
	wg.Wait()
}

func (w *Worker) cleanupIdempotency(ctx context.Context) {
	n, err := w.idem.CleanupExpired(ctx)
	if err != nil {
		w.log.Errorw("idempotency cleanup failed", "error", err)
		return
	}
	if n > 0 {
		w.log.Infow("cleaned up idempotency keys", "count", n)
	}
}

func (w *Worker) scheduleDailyClosing(ctx context.Context) {
	for {
		next, err := nextRun(time.Now(), w.cfg.CloseDayAt)
		if err != nil {
			w.log.Errorw("invalid daily closing time", "value", w.cfg.CloseDayAt, "error", err)
			return
		}
		w.log.Infow("daily closing scheduled", "at", next)
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			w.closeDay(ctx)
		}
	}
}

func (w *Worker) closeDay(ctx context.Context) {
	ctx = appctx.WithUser(ctx, &appctx.UserContext{UserID: systemActor, Role: string(security.RoleAdmin)})
	ctx = appctx.WithTrace(ctx, appctx.NewTraceContext(ctx, "", ""))

	closing, err := w.closer.CloseDay(ctx)
	if err != nil {
		w.log.WithContext(ctx).Errorw("daily closing failed", "error", err)
		return
	}
	if closing == nil {
		w.log.WithContext(ctx).Info("daily closing: nothing to settle")
		return
	}
	w.log.WithContext(ctx).Infow("daily closing done",
		"date", closing.ClosingDate,
		"deals", closing.ClosedDealsCount,
		"total", closing.TotalAmount.String(),
	)
}

// nextRun returns the first moment strictly after now with the wall clock
// at hhmm in now's location.
func nextRun(now time.Time, hhmm string) (time.Time, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, err
	}
	next := time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next, nil
}
