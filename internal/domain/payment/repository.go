package payment

import (
	"context"
	"time"

	"crm/internal/core/id"
	"crm/internal/core/types"
)

// Repository stores payments and daily closings.
type Repository interface {
	InsertPayment(ctx context.Context, p *Payment) error
	// SumPayments returns the total paid for a deal.
	SumPayments(ctx context.Context, dealID id.ID) (types.Money, error)
	ListPayments(ctx context.Context, dealID id.ID) ([]Payment, error)

	// CountUnlinkedClosedDeals counts CLOSED deals with no daily closing.
	CountUnlinkedClosedDeals(ctx context.Context) (int, error)
	// GetClosingByDate returns NotFound when there is no closing for date.
	GetClosingByDate(ctx context.Context, date time.Time) (*DailyClosing, error)
	// LockOrCreateClosing returns the row for c.ClosingDate, inserting c
	// when absent, locked for the rest of the transaction.
	LockOrCreateClosing(ctx context.Context, c *DailyClosing) (*DailyClosing, error)
	// LinkClosedDeals claims every unlinked CLOSED deal for closingID and
	// returns how many were claimed and their total amount.
	LinkClosedDeals(ctx context.Context, closingID id.ID) (int, types.Money, error)
	// AddToClosing increments the closing's totals.
	AddToClosing(ctx context.Context, closingID id.ID, count int, total types.Money) (*DailyClosing, error)
	ListClosings(ctx context.Context, from, to time.Time) ([]DailyClosing, error)

	ClientDebts(ctx context.Context) ([]ClientDebt, error)
	// ClientSettlements lists the non-canceled, non-rejected deals of a client.
	ClientSettlements(ctx context.Context, clientID id.ID) ([]Settlement, error)
}
