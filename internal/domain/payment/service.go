package payment

import (
	"context"
	"fmt"
	"time"

	"crm/internal/core/apperror"
	"crm/internal/core/id"
	"crm/internal/core/security"
	"crm/internal/core/types"
	"crm/internal/domain/deal"
	"crm/pkg/logger"
)

// Reconciler keeps deal payment fields consistent with the payment rows.
// It runs inside the caller's transaction.
type Reconciler struct {
	repo Repository
	now  func() time.Time
}

// NewReconciler creates a reconciler over repo.
func NewReconciler(repo Repository) *Reconciler {
	return &Reconciler{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

// RecordPayment appends a payment to d and re-derives paidAmount and
// paymentStatus from the stored total. The caller persists d.
func (r *Reconciler) RecordPayment(ctx context.Context, d *deal.Deal, in Input) (*Payment, error) {
	if d.Status == deal.StatusCanceled || d.Status == deal.StatusRejected {
		return nil, apperror.NewInvalidTransition(string(security.OpRecordPayment), string(d.Status), string(d.Status))
	}
	if !in.Amount.IsPositive() {
		return nil, apperror.NewValidation("payment amount must be positive").
			WithDetail("amount", in.Amount.String())
	}
	if err := types.CheckScale("amount", in.Amount); err != nil {
		return nil, err
	}

	now := r.now()
	paidAt := in.PaidAt
	if paidAt.IsZero() {
		paidAt = now
	}
	p := &Payment{
		ID:        id.New(),
		DealID:    d.ID,
		ClientID:  d.ClientID,
		Amount:    in.Amount,
		Method:    in.Method,
		Note:      in.Note,
		PaidAt:    paidAt,
		CreatedBy: in.ActorID,
		CreatedAt: now,
	}
	if err := r.repo.InsertPayment(ctx, p); err != nil {
		return nil, fmt.Errorf("insert payment: %w", err)
	}

	total, err := r.repo.SumPayments(ctx, d.ID)
	if err != nil {
		return nil, fmt.Errorf("sum payments: %w", err)
	}
	d.ApplyPaidAmount(total)

	logger.Info(ctx, "recorded payment",
		"deal_id", d.ID,
		"amount", in.Amount.String(),
		"paid_total", total.String(),
		"payment_status", d.PaymentStatus,
	)
	return p, nil
}

// Payments lists the payments of a deal.
func (r *Reconciler) Payments(ctx context.Context, dealID id.ID) ([]Payment, error) {
	return r.repo.ListPayments(ctx, dealID)
}

// CloseDay links every CLOSED deal not yet in a closing to today's closing
// and adds their amounts to it. When nothing is pending it returns today's
// existing closing, or nil, and writes nothing. A second run on the same day
// therefore only picks up deals closed in between.
func (r *Reconciler) CloseDay(ctx context.Context, actorID string) (*DailyClosing, error) {
	today := Day(r.now())

	pending, err := r.repo.CountUnlinkedClosedDeals(ctx)
	if err != nil {
		return nil, fmt.Errorf("count unlinked deals: %w", err)
	}
	if pending == 0 {
		existing, err := r.repo.GetClosingByDate(ctx, today)
		if apperror.IsNotFound(err) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("get closing: %w", err)
		}
		return existing, nil
	}

	now := r.now()
	closing, err := r.repo.LockOrCreateClosing(ctx, &DailyClosing{
		ID:          id.New(),
		ClosingDate: today,
		TotalAmount: types.Zero(),
		CreatedBy:   actorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return nil, fmt.Errorf("lock closing: %w", err)
	}

	count, total, err := r.repo.LinkClosedDeals(ctx, closing.ID)
	if err != nil {
		return nil, fmt.Errorf("link closed deals: %w", err)
	}
	if count == 0 {
		return closing, nil
	}

	closing, err = r.repo.AddToClosing(ctx, closing.ID, count, total)
	if err != nil {
		return nil, fmt.Errorf("update closing totals: %w", err)
	}

	logger.Info(ctx, "closed day",
		"closing_date", today.Format(time.DateOnly),
		"linked_deals", count,
		"linked_total", total.String(),
		"total_amount", closing.TotalAmount.String(),
	)
	return closing, nil
}

// Closings lists daily closings between from and to inclusive.
func (r *Reconciler) Closings(ctx context.Context, from, to time.Time) ([]DailyClosing, error) {
	return r.repo.ListClosings(ctx, Day(from), Day(to))
}

// ClientDebts aggregates debt per client over non-canceled deals.
func (r *Reconciler) ClientDebts(ctx context.Context) ([]ClientDebt, error) {
	return r.repo.ClientDebts(ctx)
}

// ClientDiscipline reports how a client has paid its deals so far.
func (r *Reconciler) ClientDiscipline(ctx context.Context, clientID id.ID) (Discipline, error) {
	settlements, err := r.repo.ClientSettlements(ctx, clientID)
	if err != nil {
		return Discipline{}, fmt.Errorf("client settlements: %w", err)
	}
	return ComputeDiscipline(clientID, settlements, r.now()), nil
}
