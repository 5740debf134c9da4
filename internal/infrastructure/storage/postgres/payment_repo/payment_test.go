package payment_repo

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm/internal/core/apperror"
	"crm/internal/core/id"
	"crm/internal/core/types"
	"crm/internal/infrastructure/storage/postgres/pgtest"
)

func TestLinkClosedDealsClaimsInOneStatement(t *testing.T) {
	db := pgtest.New().ExpectRow(pgtest.Values(2, types.MustMoney("630.50")))
	r := NewPaymentRepo(db)
	closingID := id.New()

	n, total, err := r.LinkClosedDeals(context.Background(), closingID)

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, total.Equal(types.MustMoney("630.5")))
	require.Len(t, db.Calls, 1)
	sql := db.Last().SQL
	assert.Contains(t, sql, "UPDATE deals SET daily_closing_id = $1")
	assert.Contains(t, sql, "WHERE status = 'CLOSED' AND daily_closing_id IS NULL")
	assert.Contains(t, sql, "RETURNING amount")
	assert.Equal(t, []any{closingID}, db.Last().Args)
}

func TestSumPaymentsAndCount(t *testing.T) {
	db := pgtest.New().
		ExpectRow(pgtest.Values(types.MustMoney("300"))).
		ExpectRow(pgtest.Values(3))
	r := NewPaymentRepo(db)

	total, err := r.SumPayments(context.Background(), id.New())
	require.NoError(t, err)
	assert.True(t, total.Equal(types.NewMoneyFromInt(300)))

	n, err := r.CountUnlinkedClosedDeals(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, countUnlinkedSQL, db.Last().SQL)
}

func TestLockOrCreateClosingTakesRowLock(t *testing.T) {
	assert.Contains(t, lockOrCreateClosingSQL, "ON CONFLICT (closing_date) DO UPDATE")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(addToClosingSQL), "RETURNING id, closing_date, total_amount, closed_deals_count, created_by, created_at, updated_at"))
}

func TestDebtQueriesExcludeUnsettledStatuses(t *testing.T) {
	assert.Equal(t, []string{"CANCELED", "REJECTED"}, statusStrings(nonSettledStatuses))
	assert.Contains(t, clientDebtsSQL, "amount > paid_amount")
	assert.Contains(t, clientDebtsSQL, "ORDER BY debt DESC")
	assert.Contains(t, clientSettlementsSQL, "d.status <> ALL($2)")
}

func TestDriverErrorsAreMapped(t *testing.T) {
	db := pgtest.New().ExpectRow(pgtest.NoRows())
	r := NewPaymentRepo(db)

	_, _, err := r.LinkClosedDeals(context.Background(), id.New())
	assert.True(t, apperror.IsNotFound(err))

	_, err = r.GetClosingByDate(context.Background(), time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, pgtest.ErrNoQuery)
}
