package deal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm/internal/core/apperror"
	"crm/internal/core/id"
	"crm/internal/core/types"
)

func qty(v int64) *int64 { return &v }

func price(s string) *types.Money {
	m := types.MustMoney(s)
	return &m
}

func TestRecalculateAmount(t *testing.T) {
	d := newTestDeal()
	d.Discount = types.MustMoney("20")
	a := d.AddItem(id.New(), qty(10), "")
	b := d.AddItem(id.New(), qty(5), "")
	d.Items[0].Price = price("50")
	d.Items[1].Price = price("30")

	require.NoError(t, d.RecalculateAmount())

	assert.True(t, types.MustMoney("630").Equal(d.Amount), d.Amount.String())
	assert.Equal(t, 1, a.LineNo)
	assert.Equal(t, 2, b.LineNo)
	assert.Equal(t, PaymentUnpaid, d.PaymentStatus)
}

func TestRecalculateAmountRejectsUnquantifiedItems(t *testing.T) {
	d := newTestDeal()
	d.AddItem(id.New(), qty(3), "")

	err := d.RecalculateAmount()

	assert.True(t, apperror.IsValidation(err))
	assert.True(t, d.Amount.IsZero())
}

func TestRecalculateAmountRejectsOversizedDiscount(t *testing.T) {
	d := newTestDeal()
	d.AddItem(id.New(), qty(1), "")
	d.Items[0].Price = price("10")
	d.Discount = types.MustMoney("11")

	assert.True(t, apperror.IsValidation(d.RecalculateAmount()))
}

func TestDerivePaymentStatus(t *testing.T) {
	amount := types.MustMoney("630")

	assert.Equal(t, PaymentUnpaid, DerivePaymentStatus(types.Zero(), amount))
	assert.Equal(t, PaymentPartiallyPaid, DerivePaymentStatus(types.MustMoney("300"), amount))
	assert.Equal(t, PaymentPaid, DerivePaymentStatus(amount, amount))
	assert.Equal(t, PaymentPaid, DerivePaymentStatus(types.MustMoney("700"), amount))
}

func TestDebtFloorsAtZero(t *testing.T) {
	d := newTestDeal()
	d.Amount = types.MustMoney("630")

	d.ApplyPaidAmount(types.MustMoney("300"))
	assert.True(t, types.MustMoney("330").Equal(d.Debt()))
	assert.Equal(t, PaymentPartiallyPaid, d.PaymentStatus)

	d.ApplyPaidAmount(types.MustMoney("700"))
	assert.True(t, d.Debt().IsZero())
	assert.Equal(t, PaymentPaid, d.PaymentStatus)
}

func TestRemoveItemAndLookup(t *testing.T) {
	d := newTestDeal()
	it := d.AddItem(id.New(), nil, "")

	got, err := d.Item(it.ID)
	require.NoError(t, err)
	assert.Equal(t, it.ProductID, got.ProductID)

	require.NoError(t, d.RemoveItem(it.ID))
	assert.True(t, apperror.IsNotFound(d.RemoveItem(it.ID)))
	_, err = d.Item(it.ID)
	assert.True(t, apperror.IsNotFound(err))
}

func TestCloneIsIndependent(t *testing.T) {
	d := newTestDeal()
	d.AddItem(id.New(), qty(1), "")

	cp := d.Clone()
	cp.Items[0].RequestComment = "changed"

	assert.Empty(t, d.Items[0].RequestComment)
}

func TestAllItemsConfirmed(t *testing.T) {
	d := newTestDeal()
	assert.False(t, d.AllItemsConfirmed())

	d.AddItem(id.New(), qty(1), "")
	assert.False(t, d.AllItemsConfirmed())

	now := d.CreatedAt
	d.Items[0].WarehouseConfirmedAt = &now
	assert.True(t, d.AllItemsConfirmed())
}
