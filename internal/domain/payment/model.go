// Package payment records payments against deals, derives payment status and
// debt, and produces the daily closing of CLOSED deals.
package payment

import (
	"time"

	"crm/internal/core/id"
	"crm/internal/core/types"
	"crm/internal/domain/deal"
)

// Payment is money received for a deal. Append-only.
type Payment struct {
	ID        id.ID       `db:"id" json:"id"`
	DealID    id.ID       `db:"deal_id" json:"dealId"`
	ClientID  id.ID       `db:"client_id" json:"clientId"`
	Amount    types.Money `db:"amount" json:"amount"`
	Method    string      `db:"method" json:"method,omitempty"`
	Note      string      `db:"note" json:"note,omitempty"`
	PaidAt    time.Time   `db:"paid_at" json:"paidAt"`
	CreatedBy string      `db:"created_by" json:"createdBy"`
	CreatedAt time.Time   `db:"created_at" json:"createdAt"`
}

// DailyClosing is the settlement of every CLOSED deal not already linked to
// a closing. One row per calendar date.
type DailyClosing struct {
	ID               id.ID       `db:"id" json:"id"`
	ClosingDate      time.Time   `db:"closing_date" json:"closingDate"`
	TotalAmount      types.Money `db:"total_amount" json:"totalAmount"`
	ClosedDealsCount int         `db:"closed_deals_count" json:"closedDealsCount"`
	CreatedBy        string      `db:"created_by" json:"createdBy"`
	CreatedAt        time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time   `db:"updated_at" json:"updatedAt"`
}

// Input describes a payment to record.
type Input struct {
	Amount types.Money
	Method string
	Note   string
	// PaidAt defaults to now.
	PaidAt  time.Time
	ActorID string
}

// ClientDebt aggregates outstanding amounts per client.
type ClientDebt struct {
	ClientID    id.ID       `db:"client_id" json:"clientId"`
	DealsCount  int         `db:"deals_count" json:"dealsCount"`
	TotalAmount types.Money `db:"total_amount" json:"totalAmount"`
	PaidAmount  types.Money `db:"paid_amount" json:"paidAmount"`
	Debt        types.Money `db:"debt" json:"debt"`
}

// Settlement is a client deal as seen by the discipline report.
type Settlement struct {
	DealID        id.ID              `db:"deal_id" json:"dealId"`
	Amount        types.Money        `db:"amount" json:"amount"`
	PaidAmount    types.Money        `db:"paid_amount" json:"paidAmount"`
	PaymentStatus deal.PaymentStatus `db:"payment_status" json:"paymentStatus"`
	DueDate       *time.Time         `db:"due_date" json:"dueDate,omitempty"`
	LastPaymentAt *time.Time         `db:"last_payment_at" json:"lastPaymentAt,omitempty"`
}

// Discipline summarizes how reliably a client pays.
type Discipline struct {
	ClientID   id.ID       `json:"clientId"`
	TotalDeals int         `json:"totalDeals"`
	PaidOnTime int         `json:"paidOnTime"`
	PaidLate   int         `json:"paidLate"`
	Overdue    int         `json:"overdue"`
	Open       int         `json:"open"`
	OnTimeRate float64     `json:"onTimeRate"`
	Debt       types.Money `json:"debt"`
}

// ComputeDiscipline classifies each settlement as of now. A PAID deal counts
// as on time when its last payment falls on or before the due date; an
// unpaid deal past its due date is overdue.
func ComputeDiscipline(clientID id.ID, settlements []Settlement, now time.Time) Discipline {
	out := Discipline{ClientID: clientID, Debt: types.Zero()}
	for _, s := range settlements {
		out.TotalDeals++
		out.Debt = out.Debt.Add(types.FloorZero(s.Amount.Sub(s.PaidAmount)))

		var deadline time.Time
		if s.DueDate != nil {
			deadline = endOfDay(*s.DueDate)
		}

		switch {
		case s.PaymentStatus == deal.PaymentPaid:
			if s.DueDate == nil || s.LastPaymentAt == nil || !s.LastPaymentAt.After(deadline) {
				out.PaidOnTime++
			} else {
				out.PaidLate++
			}
		case s.DueDate != nil && now.After(deadline):
			out.Overdue++
		default:
			out.Open++
		}
	}
	if settled := out.PaidOnTime + out.PaidLate; settled > 0 {
		out.OnTimeRate = float64(out.PaidOnTime) / float64(settled)
	}
	return out
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location()).Add(24*time.Hour - time.Nanosecond)
}

// Day truncates t to its calendar date in UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
