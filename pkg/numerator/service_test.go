package numerator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Mock objects
type mockRow struct {
	val int64
	err error
}

func (m *mockRow) Scan(dest ...any) error {
	if m.err != nil {
		return m.err
	}
	if len(dest) > 0 {
		if ptr, ok := dest[0].(*int64); ok {
			*ptr = m.val
		}
	}
	return nil
}

// mockQuerier simulates sys_sequences keyed by args[0].
type mockQuerier struct {
	mu     sync.Mutex
	values map[string]int64
	err    error
}

func (m *mockQuerier) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return &mockRow{err: m.err}
	}
	if m.values == nil {
		m.values = make(map[string]int64)
	}
	key := args[0].(string)
	if len(args) == 2 {
		m.values[key] = args[1].(int64)
	} else {
		m.values[key]++
	}
	return &mockRow{val: m.values[key]}
}

func newService(q *mockQuerier) *Service {
	return New(QuerierFunc(func(context.Context) Querier { return q }))
}

func TestGetNextNumber_Strict(t *testing.T) {
	q := &mockQuerier{}
	svc := newService(q)
	ctx := context.Background()
	period := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	num, err := svc.GetNextNumber(ctx, DeliveryNote(), period)
	require.NoError(t, err)
	assert.Equal(t, "DN-2026-00001", num)

	num, err = svc.GetNextNumber(ctx, DeliveryNote(), period)
	require.NoError(t, err)
	assert.Equal(t, "DN-2026-00002", num)

	num, err = svc.GetNextNumber(ctx, DeliveryNote(), period.AddDate(1, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, "DN-2027-00001", num, "yearly reset")
}

func TestSetNextNumber(t *testing.T) {
	q := &mockQuerier{}
	svc := newService(q)
	ctx := context.Background()
	period := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, svc.SetNextNumber(ctx, DeliveryNote(), period, 99))

	num, err := svc.GetNextNumber(ctx, DeliveryNote(), period)
	require.NoError(t, err)
	assert.Equal(t, "DN-2026-00100", num)
}

func TestGetNextNumberPropagatesErrors(t *testing.T) {
	svc := newService(&mockQuerier{err: errors.New("db down")})

	_, err := svc.GetNextNumber(context.Background(), DeliveryNote(), time.Now())
	assert.ErrorContains(t, err, "db down")

	var nilSvc *Service
	_, err = nilSvc.GetNextNumber(context.Background(), DeliveryNote(), time.Now())
	assert.Error(t, err)
}

func TestKeyAndFormat(t *testing.T) {
	period := time.Date(2026, 7, 9, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, "DN_2026", Key(DeliveryNote(), period))
	assert.Equal(t, "INV_2026_07", Key(Config{Prefix: "INV", ResetPeriod: "month"}, period))
	assert.Equal(t, "INV", Key(Config{Prefix: "INV", ResetPeriod: "never"}, period))

	assert.Equal(t, "INV-042", Format(Config{Prefix: "INV", PadWidth: 3}, period, 42))
}

func TestParseNumber(t *testing.T) {
	assert.Equal(t, int64(17), ParseNumber("DN-2026-00017"))
	assert.Equal(t, int64(3), ParseNumber("INV-003"))
	assert.Equal(t, int64(-1), ParseNumber("garbage"))
	assert.Equal(t, int64(-1), ParseNumber("DN-"))
}
