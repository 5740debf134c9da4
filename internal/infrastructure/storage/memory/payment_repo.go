package memory

import (
	"context"
	"sort"
	"time"

	"crm/internal/core/apperror"
	"crm/internal/core/id"
	"crm/internal/core/types"
	"crm/internal/domain/deal"
	"crm/internal/domain/payment"
)

// PaymentRepo implements payment.Repository on a Store.
type PaymentRepo struct{ s *Store }

// Payments returns the payment repository view of s.
func (s *Store) Payments() *PaymentRepo { return &PaymentRepo{s: s} }

var _ payment.Repository = (*PaymentRepo)(nil)

func dateKey(t time.Time) string { return t.UTC().Format(time.DateOnly) }

func (r *PaymentRepo) InsertPayment(_ context.Context, p *payment.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.data.payments = append(r.s.data.payments, *p)
	return nil
}

func (r *PaymentRepo) SumPayments(_ context.Context, dealID id.ID) (types.Money, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	total := types.Zero()
	for _, p := range r.s.data.payments {
		if p.DealID == dealID {
			total = total.Add(p.Amount)
		}
	}
	return total, nil
}

func (r *PaymentRepo) ListPayments(_ context.Context, dealID id.ID) ([]payment.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]payment.Payment, 0)
	for _, p := range r.s.data.payments {
		if p.DealID == dealID {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PaidAt.Before(out[j].PaidAt) })
	return out, nil
}

func (r *PaymentRepo) CountUnlinkedClosedDeals(_ context.Context) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, d := range r.s.data.deals {
		if d.Status == deal.StatusClosed && d.DailyClosingID == nil {
			n++
		}
	}
	return n, nil
}

func (r *PaymentRepo) GetClosingByDate(_ context.Context, date time.Time) (*payment.DailyClosing, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.data.closings[dateKey(date)]
	if !ok {
		return nil, apperror.NewNotFound("daily closing", dateKey(date))
	}
	return &c, nil
}

func (r *PaymentRepo) LockOrCreateClosing(_ context.Context, c *payment.DailyClosing) (*payment.DailyClosing, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := dateKey(c.ClosingDate)
	if existing, ok := r.s.data.closings[key]; ok {
		return &existing, nil
	}
	r.s.data.closings[key] = *c
	cp := *c
	return &cp, nil
}

func (r *PaymentRepo) LinkClosedDeals(_ context.Context, closingID id.ID) (int, types.Money, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	count, total := 0, types.Zero()
	for k, d := range r.s.data.deals {
		if d.Status != deal.StatusClosed || d.DailyClosingID != nil {
			continue
		}
		cid := closingID
		d.DailyClosingID = &cid
		r.s.data.deals[k] = d
		count++
		total = total.Add(d.Amount)
	}
	return count, total, nil
}

func (r *PaymentRepo) AddToClosing(_ context.Context, closingID id.ID, count int, total types.Money) (*payment.DailyClosing, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for k, c := range r.s.data.closings {
		if c.ID != closingID {
			continue
		}
		c.ClosedDealsCount += count
		c.TotalAmount = c.TotalAmount.Add(total)
		c.UpdatedAt = time.Now().UTC()
		r.s.data.closings[k] = c
		return &c, nil
	}
	return nil, apperror.NewNotFound("daily closing", closingID.String())
}

func (r *PaymentRepo) ListClosings(_ context.Context, from, to time.Time) ([]payment.DailyClosing, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]payment.DailyClosing, 0)
	for _, c := range r.s.data.closings {
		if c.ClosingDate.Before(from) || c.ClosingDate.After(to) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClosingDate.Before(out[j].ClosingDate) })
	return out, nil
}

func countsForDebt(s deal.Status) bool {
	return s != deal.StatusCanceled && s != deal.StatusRejected
}

func (r *PaymentRepo) ClientDebts(_ context.Context) ([]payment.ClientDebt, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	byClient := make(map[id.ID]*payment.ClientDebt)
	for _, d := range r.s.data.deals {
		if !countsForDebt(d.Status) {
			continue
		}
		debt := types.FloorZero(d.Amount.Sub(d.PaidAmount))
		if !debt.IsPositive() {
			continue
		}
		cd, ok := byClient[d.ClientID]
		if !ok {
			cd = &payment.ClientDebt{
				ClientID:    d.ClientID,
				TotalAmount: types.Zero(),
				PaidAmount:  types.Zero(),
				Debt:        types.Zero(),
			}
			byClient[d.ClientID] = cd
		}
		cd.DealsCount++
		cd.TotalAmount = cd.TotalAmount.Add(d.Amount)
		cd.PaidAmount = cd.PaidAmount.Add(d.PaidAmount)
		cd.Debt = cd.Debt.Add(debt)
	}
	out := make([]payment.ClientDebt, 0, len(byClient))
	for _, cd := range byClient {
		out = append(out, *cd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Debt.GreaterThan(out[j].Debt) })
	return out, nil
}

func (r *PaymentRepo) ClientSettlements(_ context.Context, clientID id.ID) ([]payment.Settlement, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]payment.Settlement, 0)
	for _, d := range r.s.data.deals {
		if d.ClientID != clientID || !countsForDebt(d.Status) {
			continue
		}
		s := payment.Settlement{
			DealID:        d.ID,
			Amount:        d.Amount,
			PaidAmount:    d.PaidAmount,
			PaymentStatus: d.PaymentStatus,
			DueDate:       d.DueDate,
		}
		for _, p := range r.s.data.payments {
			if p.DealID == d.ID && (s.LastPaymentAt == nil || p.PaidAt.After(*s.LastPaymentAt)) {
				paidAt := p.PaidAt
				s.LastPaymentAt = &paidAt
			}
		}
		out = append(out, s)
	}
	return out, nil
}
