package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"crm/internal/core/apperror"
	"crm/internal/core/tx"
	"crm/pkg/logger"
)

var tracer = otel.Tracer("crm/tx")

var _ tx.ReadOnlyManager = (*TxManager)(nil)

// TxOptions configures transaction behavior.
type TxOptions struct {
	IsolationLevel pgx.TxIsoLevel
	AccessMode     pgx.TxAccessMode

	// StatementTimeout protects against long-running queries.
	StatementTimeout time.Duration
}

// DefaultTxOptions returns production-safe defaults.
func DefaultTxOptions() TxOptions {
	return TxOptions{
		IsolationLevel:   pgx.ReadCommitted,
		AccessMode:       pgx.ReadWrite,
		StatementTimeout: 30 * time.Second,
	}
}

// SerializableTxOptions is used by every workflow mutation.
func SerializableTxOptions() TxOptions {
	opts := DefaultTxOptions()
	opts.IsolationLevel = pgx.Serializable
	return opts
}

// TxManager manages database transactions with support for:
// - Nested calls reusing the outer transaction
// - Statement timeout protection
// - Bounded retry of serialization failures and deadlocks
// - Distributed tracing integration
type TxManager struct {
	pool             *pgxpool.Pool
	maxAttempts      int
	backoff          time.Duration
	statementTimeout time.Duration
	onRetry          func()
}

// Option configures a TxManager.
type Option func(*TxManager)

// WithMaxAttempts bounds how many times a serializable transaction runs.
func WithMaxAttempts(n int) Option {
	return func(m *TxManager) {
		if n > 0 {
			m.maxAttempts = n
		}
	}
}

// WithBackoff sets the base delay between retries.
func WithBackoff(d time.Duration) Option {
	return func(m *TxManager) { m.backoff = d }
}

// WithStatementTimeout overrides the per-transaction statement timeout.
func WithStatementTimeout(d time.Duration) Option {
	return func(m *TxManager) { m.statementTimeout = d }
}

// WithRetryHook is called before every retry, typically to count it.
func WithRetryHook(fn func()) Option {
	return func(m *TxManager) { m.onRetry = fn }
}

// NewTxManager creates a new transaction manager.
func NewTxManager(pool *Pool, opts ...Option) *TxManager {
	m := &TxManager{
		pool:             pool.Pool,
		maxAttempts:      3,
		backoff:          20 * time.Millisecond,
		statementTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type txKey struct{}

// Tx wraps pgx.Tx.
type Tx struct {
	pgx.Tx
}

// RunInTransaction executes fn within a read-committed transaction.
// If a transaction already exists in ctx, it is reused.
func (m *TxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.RunInTransactionWithOptions(ctx, m.options(DefaultTxOptions()), fn)
}

// RunSerializable executes fn in a serializable transaction and re-runs it
// after serialization failures or deadlocks, up to the configured attempts.
// Nested calls join the outer transaction and are never retried on their own.
func (m *TxManager) RunSerializable(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.GetTx(ctx) != nil {
		return fn(ctx)
	}
	opts := m.options(SerializableTxOptions())
	return retrySerializable(ctx, m.maxAttempts, m.backoff, m.retried, func() error {
		return m.RunInTransactionWithOptions(ctx, opts, fn)
	})
}

// ReadOnly executes fn in a read-only transaction.
func (m *TxManager) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	opts := m.options(DefaultTxOptions())
	opts.AccessMode = pgx.ReadOnly
	return m.RunInTransactionWithOptions(ctx, opts, fn)
}

func (m *TxManager) options(opts TxOptions) TxOptions {
	opts.StatementTimeout = m.statementTimeout
	return opts
}

func (m *TxManager) retried() {
	if m.onRetry != nil {
		m.onRetry()
	}
}

// RunInTransactionWithOptions executes fn with custom transaction options.
func (m *TxManager) RunInTransactionWithOptions(ctx context.Context, opts TxOptions, fn func(ctx context.Context) error) error {
	ctx, span := tracer.Start(ctx, "transaction",
		trace.WithAttributes(
			attribute.String("tx.isolation", string(opts.IsolationLevel)),
		))
	defer span.End()

	if m.GetTx(ctx) != nil {
		return fn(ctx)
	}

	err := m.startNewTransaction(ctx, opts, fn)
	if err != nil && !apperror.IsAppError(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (m *TxManager) startNewTransaction(ctx context.Context, opts TxOptions, fn func(ctx context.Context) error) error {
	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   opts.IsolationLevel,
		AccessMode: opts.AccessMode,
	})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if opts.StatementTimeout > 0 {
		_, err = tx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = '%dms'", opts.StatementTimeout.Milliseconds()))
		if err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("set statement_timeout: %w", err)
		}
	}

	txCtx := context.WithValue(ctx, txKey{}, &Tx{Tx: tx})

	if err := fn(txCtx); err != nil {
		// Background context so the rollback completes after cancellation.
		if rbErr := tx.Rollback(context.Background()); rbErr != nil {
			logger.Error(ctx, "rollback failed", "error", rbErr, "original_error", err)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// GetTx returns the current transaction from context, or nil if none.
func (m *TxManager) GetTx(ctx context.Context) *Tx {
	if tx, ok := ctx.Value(txKey{}).(*Tx); ok {
		return tx
	}
	return nil
}

// Querier is the subset of pgx shared by pools and transactions.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// QuerierProvider resolves the querier for ctx. Repositories depend on it
// so that tests can substitute a fake.
type QuerierProvider interface {
	GetQuerier(ctx context.Context) Querier
}

// GetQuerier returns the transaction in ctx, or the pool outside one.
func (m *TxManager) GetQuerier(ctx context.Context) Querier {
	if tx := m.GetTx(ctx); tx != nil {
		return tx.Tx
	}
	return m.pool
}

// IsRetryable reports whether err is a serialization failure or deadlock.
// Business errors are never retryable.
func IsRetryable(err error) bool {
	if err == nil || apperror.IsAppError(err) {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == codeSerializationFailure || pgErr.Code == codeDeadlockDetected
	}
	return false
}

// retrySerializable runs attempt until it succeeds, fails with a
// non-retryable error, or maxAttempts is reached.
func retrySerializable(ctx context.Context, maxAttempts int, backoff time.Duration, onRetry func(), attempt func() error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var err error
	for i := 1; i <= maxAttempts; i++ {
		err = attempt()
		if !IsRetryable(err) || i == maxAttempts {
			break
		}

		onRetry()
		logger.Warn(ctx, "retrying serializable transaction",
			"attempt", i,
			"error", err,
		)

		if backoff > 0 {
			delay := backoff*time.Duration(i) + rand.N(backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	if IsRetryable(err) {
		return apperror.NewConcurrentModification("transaction", "serializable").WithCause(err)
	}
	return err
}
