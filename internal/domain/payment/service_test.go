package payment_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm/internal/core/apperror"
	"crm/internal/core/id"
	"crm/internal/core/types"
	"crm/internal/domain/deal"
	"crm/internal/domain/payment"
	"crm/internal/infrastructure/storage/memory"
)

func seedDeal(t *testing.T, store *memory.Store, status deal.Status, amount string) *deal.Deal {
	t.Helper()
	d := deal.NewDeal("Order", id.New(), id.New(), deal.PaymentPartial, types.Zero())
	d.Status = status
	d.Amount = types.MustMoney(amount)
	require.NoError(t, store.Deals().Create(context.Background(), d))
	return d
}

func TestRecordPaymentDerivesStatusAndDebt(t *testing.T) {
	store := memory.New()
	rec := payment.NewReconciler(store.Payments())
	ctx := context.Background()
	d := seedDeal(t, store, deal.StatusFinanceApproved, "630")

	_, err := rec.RecordPayment(ctx, d, payment.Input{Amount: types.MustMoney("300"), ActorID: "acc-1"})
	require.NoError(t, err)
	assert.Equal(t, deal.PaymentPartiallyPaid, d.PaymentStatus)
	assert.True(t, types.MustMoney("330").Equal(d.Debt()))

	_, err = rec.RecordPayment(ctx, d, payment.Input{Amount: types.MustMoney("330"), ActorID: "acc-1"})
	require.NoError(t, err)
	assert.Equal(t, deal.PaymentPaid, d.PaymentStatus)
	assert.True(t, d.Debt().IsZero())

	payments, err := rec.Payments(ctx, d.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 2)
}

func TestRecordPaymentRejections(t *testing.T) {
	store := memory.New()
	rec := payment.NewReconciler(store.Payments())
	ctx := context.Background()

	canceled := seedDeal(t, store, deal.StatusCanceled, "100")
	_, err := rec.RecordPayment(ctx, canceled, payment.Input{Amount: types.MustMoney("10")})
	assert.True(t, apperror.IsInvalidTransition(err))

	open := seedDeal(t, store, deal.StatusShipped, "100")
	_, err = rec.RecordPayment(ctx, open, payment.Input{Amount: types.MustMoney("-1")})
	assert.True(t, apperror.IsValidation(err))
	_, err = rec.RecordPayment(ctx, open, payment.Input{Amount: types.Zero()})
	assert.True(t, apperror.IsValidation(err))

	_, err = rec.RecordPayment(ctx, open, payment.Input{Amount: types.MustMoney("0.006")})
	assert.True(t, apperror.IsValidation(err))
	stored, err := rec.Payments(ctx, open.ID)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestCloseDayIsIdempotent(t *testing.T) {
	store := memory.New()
	rec := payment.NewReconciler(store.Payments())
	ctx := context.Background()

	none, err := rec.CloseDay(ctx, "acc-1")
	require.NoError(t, err)
	assert.Nil(t, none)

	seedDeal(t, store, deal.StatusClosed, "100")
	seedDeal(t, store, deal.StatusClosed, "250.50")
	seedDeal(t, store, deal.StatusShipped, "999")

	first, err := rec.CloseDay(ctx, "acc-1")
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, 2, first.ClosedDealsCount)
	assert.True(t, types.MustMoney("350.50").Equal(first.TotalAmount))

	second, err := rec.CloseDay(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, second.ClosedDealsCount)
	assert.True(t, first.TotalAmount.Equal(second.TotalAmount))

	seedDeal(t, store, deal.StatusClosed, "49.50")
	third, err := rec.CloseDay(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, third.ID)
	assert.Equal(t, 3, third.ClosedDealsCount)
	assert.True(t, types.MustMoney("400").Equal(third.TotalAmount))
}

func TestClientDebts(t *testing.T) {
	store := memory.New()
	rec := payment.NewReconciler(store.Payments())
	ctx := context.Background()

	d := seedDeal(t, store, deal.StatusShipped, "500")
	seedDeal(t, store, deal.StatusCanceled, "1000")

	debts, err := rec.ClientDebts(ctx)
	require.NoError(t, err)
	require.Len(t, debts, 1)
	assert.Equal(t, d.ClientID, debts[0].ClientID)
	assert.True(t, types.MustMoney("500").Equal(debts[0].Debt))
}

func TestComputeDiscipline(t *testing.T) {
	clientID := id.New()
	due := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)
	onDueDay := due.Add(15 * time.Hour)
	late := due.AddDate(0, 0, 3)
	now := due.AddDate(0, 1, 0)

	got := payment.ComputeDiscipline(clientID, []payment.Settlement{
		{Amount: types.MustMoney("100"), PaidAmount: types.MustMoney("100"), PaymentStatus: deal.PaymentPaid, DueDate: &due, LastPaymentAt: &onDueDay},
		{Amount: types.MustMoney("100"), PaidAmount: types.MustMoney("100"), PaymentStatus: deal.PaymentPaid, DueDate: &due, LastPaymentAt: &late},
		{Amount: types.MustMoney("100"), PaidAmount: types.MustMoney("40"), PaymentStatus: deal.PaymentPartiallyPaid, DueDate: &due},
		{Amount: types.MustMoney("80"), PaidAmount: types.Zero(), PaymentStatus: deal.PaymentUnpaid},
	}, now)

	assert.Equal(t, 4, got.TotalDeals)
	assert.Equal(t, 1, got.PaidOnTime)
	assert.Equal(t, 1, got.PaidLate)
	assert.Equal(t, 1, got.Overdue)
	assert.Equal(t, 1, got.Open)
	assert.InDelta(t, 0.5, got.OnTimeRate, 1e-9)
	assert.True(t, types.MustMoney("140").Equal(got.Debt))
}

func TestDayTruncatesToUTCDate(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	got := payment.Day(time.Date(2026, 1, 2, 3, 0, 0, 0, loc))

	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), got)
}
