// Package numerator provides gapless document numbering backed by the
// sys_sequences table. Numbers are allocated inside the caller's
// transaction, so a rolled-back operation releases its number.
package numerator

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// Querier interface for database operations.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// QuerierProvider returns the querier bound to ctx, typically the open
// transaction.
type QuerierProvider interface {
	GetQuerier(ctx context.Context) Querier
}

// QuerierFunc adapts a function to QuerierProvider.
type QuerierFunc func(ctx context.Context) Querier

// GetQuerier implements QuerierProvider.
func (f QuerierFunc) GetQuerier(ctx context.Context) Querier { return f(ctx) }

// Config holds numbering configuration.
type Config struct {
	// Prefix added to all numbers (e.g., "DN")
	Prefix string

	// IncludeYear adds year to the number
	IncludeYear bool

	// PadWidth is the minimum number width (default 5)
	PadWidth int

	// ResetPeriod: "year", "month", "never"
	ResetPeriod string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(prefix string) Config {
	return Config{
		Prefix:      prefix,
		IncludeYear: true,
		PadWidth:    5,
		ResetPeriod: "year",
	}
}

// DeliveryNote is the configuration for shipment delivery notes: DN-2026-00001.
func DeliveryNote() Config {
	return DefaultConfig("DN")
}

// Service allocates numbers with UPSERT ... RETURNING.
type Service struct {
	provider QuerierProvider
}

// New creates a numerator that resolves its querier per call.
func New(provider QuerierProvider) *Service {
	return &Service{provider: provider}
}

// GetNextNumber generates the next number for cfg in period.
// Pattern: PREFIX-YEAR-XXXXX (e.g., DN-2026-00001)
func (s *Service) GetNextNumber(ctx context.Context, cfg Config, period time.Time) (string, error) {
	if s == nil || s.provider == nil {
		return "", fmt.Errorf("numerator service is not initialized")
	}
	if cfg.Prefix == "" {
		return "", fmt.Errorf("numerator prefix is required")
	}

	var num int64
	err := s.provider.GetQuerier(ctx).QueryRow(ctx, `
		INSERT INTO sys_sequences (key, current_val)
		VALUES ($1, 1)
		ON CONFLICT (key) DO UPDATE SET current_val = sys_sequences.current_val + 1
		RETURNING current_val
	`, Key(cfg, period)).Scan(&num)
	if err != nil {
		return "", fmt.Errorf("next number: %w", err)
	}

	return Format(cfg, period, num), nil
}

// SetNextNumber sets the last allocated value (for data migration).
func (s *Service) SetNextNumber(ctx context.Context, cfg Config, period time.Time, value int64) error {
	var result int64
	err := s.provider.GetQuerier(ctx).QueryRow(ctx, `
		INSERT INTO sys_sequences (key, current_val)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET current_val = $2
		RETURNING current_val
	`, Key(cfg, period), value).Scan(&result)
	if err != nil {
		return fmt.Errorf("set next number: %w", err)
	}
	return nil
}

// Key creates the sequence key based on config and period.
func Key(cfg Config, period time.Time) string {
	switch cfg.ResetPeriod {
	case "month":
		return fmt.Sprintf("%s_%s", cfg.Prefix, period.Format("2006_01"))
	case "year":
		return fmt.Sprintf("%s_%s", cfg.Prefix, period.Format("2006"))
	default:
		return cfg.Prefix
	}
}

// Format creates the final number string.
func Format(cfg Config, period time.Time, num int64) string {
	padWidth := cfg.PadWidth
	if padWidth == 0 {
		padWidth = 5
	}

	if cfg.IncludeYear {
		return fmt.Sprintf("%s-%s-%0*d", cfg.Prefix, period.Format("2006"), padWidth, num)
	}
	return fmt.Sprintf("%s-%0*d", cfg.Prefix, padWidth, num)
}

// ParseNumber extracts the numeric suffix from a formatted number.
// Returns -1 if parsing fails.
func ParseNumber(formatted string) int64 {
	i := strings.LastIndexByte(formatted, '-')
	if i < 0 || i == len(formatted)-1 {
		return -1
	}
	num, err := strconv.ParseInt(formatted[i+1:], 10, 64)
	if err != nil || num < 0 {
		return -1
	}
	return num
}
