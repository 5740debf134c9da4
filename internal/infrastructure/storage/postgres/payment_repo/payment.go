// Package payment_repo provides the PostgreSQL implementation of
// payment.Repository.
package payment_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"crm/internal/core/id"
	"crm/internal/core/types"
	"crm/internal/domain/deal"
	"crm/internal/domain/payment"
	"crm/internal/infrastructure/storage/postgres"
)

const (
	paymentsTable = "payments"
	closingsTable = "daily_closings"
)

var (
	paymentColumns = postgres.ExtractDBColumns[payment.Payment]()
	closingColumns = postgres.ExtractDBColumns[payment.DailyClosing]()
)

// Deals that never carry debt.
var nonSettledStatuses = []deal.Status{deal.StatusCanceled, deal.StatusRejected}

const countUnlinkedSQL = `SELECT COUNT(*) FROM deals WHERE status = 'CLOSED' AND daily_closing_id IS NULL`

// ON CONFLICT DO UPDATE both creates the row and takes its lock, so two
// concurrent closings for a date serialize on it.
const lockOrCreateClosingSQL = `INSERT INTO daily_closings (id, closing_date, total_amount, closed_deals_count, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (closing_date) DO UPDATE SET updated_at = EXCLUDED.updated_at
RETURNING id, closing_date, total_amount, closed_deals_count, created_by, created_at, updated_at`

const linkClosedDealsSQL = `WITH claimed AS (
	UPDATE deals SET daily_closing_id = $1, updated_at = now()
	WHERE status = 'CLOSED' AND daily_closing_id IS NULL
	RETURNING amount
)
SELECT COUNT(*), COALESCE(SUM(amount), 0) FROM claimed`

const addToClosingSQL = `UPDATE daily_closings
SET closed_deals_count = closed_deals_count + $1, total_amount = total_amount + $2, updated_at = now()
WHERE id = $3
RETURNING id, closing_date, total_amount, closed_deals_count, created_by, created_at, updated_at`

const clientDebtsSQL = `SELECT client_id,
	COUNT(*) AS deals_count,
	SUM(amount) AS total_amount,
	SUM(paid_amount) AS paid_amount,
	SUM(amount - paid_amount) AS debt
FROM deals
WHERE status <> ALL($1) AND amount > paid_amount
GROUP BY client_id
ORDER BY debt DESC`

const clientSettlementsSQL = `SELECT d.id AS deal_id, d.amount, d.paid_amount, d.payment_status, d.due_date,
	(SELECT MAX(p.paid_at) FROM payments p WHERE p.deal_id = d.id) AS last_payment_at
FROM deals d
WHERE d.client_id = $1 AND d.status <> ALL($2)
ORDER BY d.created_at`

// PaymentRepo implements payment.Repository.
type PaymentRepo struct {
	db      postgres.QuerierProvider
	builder squirrel.StatementBuilderType
}

var _ payment.Repository = (*PaymentRepo)(nil)

// NewPaymentRepo creates a payment repository.
func NewPaymentRepo(db postgres.QuerierProvider) *PaymentRepo {
	return &PaymentRepo{
		db:      db,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// InsertPayment appends a payment row.
func (r *PaymentRepo) InsertPayment(ctx context.Context, p *payment.Payment) error {
	sql, args, err := r.builder.Insert(paymentsTable).
		Columns(paymentColumns...).
		Values(postgres.Values(p, paymentColumns)...).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.db.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return postgres.MapError(err, "insert payment", "payment", p.ID)
	}
	return nil
}

// SumPayments returns the total paid for a deal.
func (r *PaymentRepo) SumPayments(ctx context.Context, dealID id.ID) (types.Money, error) {
	var total types.Money
	err := r.db.GetQuerier(ctx).
		QueryRow(ctx, "SELECT COALESCE(SUM(amount), 0) FROM payments WHERE deal_id = $1", dealID).
		Scan(&total)
	if err != nil {
		return types.Zero(), postgres.MapError(err, "sum payments", "deal", dealID)
	}
	return total, nil
}

// ListPayments returns the payments of a deal in the order they were made.
func (r *PaymentRepo) ListPayments(ctx context.Context, dealID id.ID) ([]payment.Payment, error) {
	sql, args, err := r.builder.Select(paymentColumns...).
		From(paymentsTable).
		Where(squirrel.Eq{"deal_id": dealID}).
		OrderBy("paid_at", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	payments := make([]payment.Payment, 0)
	if err := pgxscan.Select(ctx, r.db.GetQuerier(ctx), &payments, sql, args...); err != nil {
		return nil, postgres.MapError(err, "list payments", "deal", dealID)
	}
	return payments, nil
}

// CountUnlinkedClosedDeals counts CLOSED deals no daily closing has claimed.
func (r *PaymentRepo) CountUnlinkedClosedDeals(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetQuerier(ctx).QueryRow(ctx, countUnlinkedSQL).Scan(&n); err != nil {
		return 0, postgres.MapError(err, "count unlinked deals", "deal", nil)
	}
	return n, nil
}

// GetClosingByDate returns the closing of a calendar day.
func (r *PaymentRepo) GetClosingByDate(ctx context.Context, date time.Time) (*payment.DailyClosing, error) {
	sql, args, err := r.builder.Select(closingColumns...).
		From(closingsTable).
		Where(squirrel.Eq{"closing_date": date}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	var c payment.DailyClosing
	if err := pgxscan.Get(ctx, r.db.GetQuerier(ctx), &c, sql, args...); err != nil {
		return nil, postgres.MapError(err, "get daily closing", "daily_closing", date.Format(time.DateOnly))
	}
	return &c, nil
}

// LockOrCreateClosing returns the row for c.ClosingDate, inserting c when
// absent. The row stays locked until the transaction ends.
func (r *PaymentRepo) LockOrCreateClosing(ctx context.Context, c *payment.DailyClosing) (*payment.DailyClosing, error) {
	var out payment.DailyClosing
	err := pgxscan.Get(ctx, r.db.GetQuerier(ctx), &out, lockOrCreateClosingSQL,
		c.ID, c.ClosingDate, c.TotalAmount, c.ClosedDealsCount, c.CreatedBy, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return nil, postgres.MapError(err, "lock daily closing", "daily_closing", c.ClosingDate.Format(time.DateOnly))
	}
	return &out, nil
}

// LinkClosedDeals claims every unlinked CLOSED deal in one statement.
func (r *PaymentRepo) LinkClosedDeals(ctx context.Context, closingID id.ID) (int, types.Money, error) {
	var (
		n     int
		total types.Money
	)
	if err := r.db.GetQuerier(ctx).QueryRow(ctx, linkClosedDealsSQL, closingID).Scan(&n, &total); err != nil {
		return 0, types.Zero(), postgres.MapError(err, "link closed deals", "daily_closing", closingID)
	}
	return n, total, nil
}

// AddToClosing increments the closing's totals.
func (r *PaymentRepo) AddToClosing(ctx context.Context, closingID id.ID, count int, total types.Money) (*payment.DailyClosing, error) {
	var out payment.DailyClosing
	if err := pgxscan.Get(ctx, r.db.GetQuerier(ctx), &out, addToClosingSQL, count, total, closingID); err != nil {
		return nil, postgres.MapError(err, "update daily closing", "daily_closing", closingID)
	}
	return &out, nil
}

// ListClosings returns the closings between from and to inclusive.
func (r *PaymentRepo) ListClosings(ctx context.Context, from, to time.Time) ([]payment.DailyClosing, error) {
	sql, args, err := r.builder.Select(closingColumns...).
		From(closingsTable).
		Where(squirrel.GtOrEq{"closing_date": from}).
		Where(squirrel.LtOrEq{"closing_date": to}).
		OrderBy("closing_date").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	closings := make([]payment.DailyClosing, 0)
	if err := pgxscan.Select(ctx, r.db.GetQuerier(ctx), &closings, sql, args...); err != nil {
		return nil, postgres.MapError(err, "list daily closings", "daily_closing", nil)
	}
	return closings, nil
}

func statusStrings(statuses []deal.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// ClientDebts aggregates outstanding debt per client, largest first.
func (r *PaymentRepo) ClientDebts(ctx context.Context) ([]payment.ClientDebt, error) {
	debts := make([]payment.ClientDebt, 0)
	err := pgxscan.Select(ctx, r.db.GetQuerier(ctx), &debts, clientDebtsSQL, statusStrings(nonSettledStatuses))
	if err != nil {
		return nil, postgres.MapError(err, "client debts", "client", nil)
	}
	return debts, nil
}

// ClientSettlements lists a client's deals with their payment state.
func (r *PaymentRepo) ClientSettlements(ctx context.Context, clientID id.ID) ([]payment.Settlement, error) {
	out := make([]payment.Settlement, 0)
	err := pgxscan.Select(ctx, r.db.GetQuerier(ctx), &out, clientSettlementsSQL, clientID, statusStrings(nonSettledStatuses))
	if err != nil {
		return nil, postgres.MapError(err, "client settlements", "client", clientID)
	}
	return out, nil
}
