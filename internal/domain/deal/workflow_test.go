package deal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm/internal/core/apperror"
	"crm/internal/core/id"
	"crm/internal/core/security"
	"crm/internal/core/types"
)

func newTestDeal() *Deal {
	return NewDeal("Steel order", id.New(), id.New(), PaymentPartial, types.Zero())
}

func TestTransitionTableMatchesAllowedAndTarget(t *testing.T) {
	ops := []security.Operation{
		security.OpStartWork, security.OpRequestStock, security.OpWarehouseResponse,
		security.OpSetItemQuantities, security.OpApproveFinance, security.OpRejectFinance,
		security.OpApproveAdmin, security.OpHoldShipment, security.OpReleaseShipmentHold,
		security.OpSubmitShipment, security.OpCloseDeal, security.OpCancel, security.OpReject,
		security.OpReopen, security.OpAddItem, security.OpRemoveItem, security.OpReassign,
		security.OpArchive,
	}

	for _, op := range ops {
		for _, from := range AllStatuses {
			inTable := false
			for _, tr := range transitions {
				for _, f := range tr.from {
					if tr.op == op && f == from {
						inTable = true
					}
				}
			}

			to, err := Target(op, from)
			if inTable {
				require.NoError(t, err, "%s from %s", op, from)
				assert.NoError(t, CheckTransition(op, from, to))
			} else {
				assert.True(t, apperror.IsInvalidTransition(err), "%s from %s", op, from)
			}
		}
	}
}

func TestTerminalStatusesOnlyAllowArchiveAndReopen(t *testing.T) {
	for _, from := range []Status{StatusClosed, StatusCanceled} {
		assert.False(t, Allowed(security.OpCancel, from))
		assert.False(t, Allowed(security.OpReopen, from))
		assert.True(t, Allowed(security.OpArchive, from))
	}
	assert.True(t, Allowed(security.OpReopen, StatusRejected))
	assert.False(t, Allowed(security.OpCancel, StatusRejected))
}

func TestInvalidTransitionLeavesStatus(t *testing.T) {
	d := newTestDeal()

	err := d.Advance(security.OpApproveFinance, "u-1", "")

	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "NEW", appErr.Details["from"])
	assert.Equal(t, "FINANCE_APPROVED", appErr.Details["to"])
	assert.Equal(t, StatusNew, d.Status)
	assert.Empty(t, d.DrainChanges())
}

func TestAdvanceRecordsHistory(t *testing.T) {
	d := newTestDeal()

	require.NoError(t, d.Advance(security.OpStartWork, "u-1", ""))
	require.NoError(t, d.Advance(security.OpRequestStock, "u-1", "need rebar"))

	changes := d.DrainChanges()
	require.Len(t, changes, 2)
	assert.Equal(t, StatusNew, changes[0].From)
	assert.Equal(t, StatusInProgress, changes[0].To)
	assert.Equal(t, "need rebar", changes[1].Reason)
	assert.Equal(t, StatusWaitingStockConfirmation, d.Status)
	assert.Empty(t, d.DrainChanges())
}

func TestWarehouseResponseMayStay(t *testing.T) {
	d := newTestDeal()
	d.Status = StatusWaitingStockConfirmation

	require.NoError(t, d.TransitionTo(security.OpWarehouseResponse, StatusWaitingStockConfirmation, "w-1", ""))
	assert.Empty(t, d.DrainChanges())

	require.NoError(t, d.TransitionTo(security.OpWarehouseResponse, StatusStockConfirmed, "w-1", ""))
	assert.Equal(t, StatusStockConfirmed, d.Status)
}

func TestApproveAdminIsTwoSteps(t *testing.T) {
	d := newTestDeal()
	d.Status = StatusFinanceApproved

	require.NoError(t, d.Advance(security.OpApproveAdmin, "a-1", ""))
	require.NoError(t, d.Advance(security.OpApproveAdmin, "a-1", ""))

	assert.Equal(t, StatusReadyForShipment, d.Status)
	assert.Len(t, d.DrainChanges(), 2)
}

func TestItemsFrozenAfterQuantities(t *testing.T) {
	d := newTestDeal()
	d.Status = StatusStockConfirmed

	assert.NoError(t, d.EnsureItemsEditable(security.OpAddItem))

	d.QuantitiesSet = true
	err := d.EnsureItemsEditable(security.OpRemoveItem)
	require.True(t, apperror.IsInvalidTransition(err))
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, true, appErr.Details["quantities_set"])
	assert.Equal(t, string(StatusStockConfirmed), appErr.Details["from"])

	d.Status = StatusFinanceApproved
	assert.True(t, apperror.IsInvalidTransition(d.EnsureItemsEditable(security.OpRemoveItem)))
}
