package deal

import (
	"slices"
	"time"

	"crm/internal/core/apperror"
	"crm/internal/core/id"
	"crm/internal/core/security"
)

// statusUnchanged marks operations that act on a deal without moving it.
const statusUnchanged Status = ""

type transition struct {
	op   security.Operation
	from []Status
	to   Status
}

var (
	editableStatuses = []Status{
		StatusNew,
		StatusInProgress,
		StatusWaitingStockConfirmation,
		StatusStockConfirmed,
	}
	preShipmentStatuses = []Status{
		StatusNew,
		StatusInProgress,
		StatusWaitingStockConfirmation,
		StatusStockConfirmed,
		StatusFinanceApproved,
		StatusAdminApproved,
		StatusReadyForShipment,
		StatusShipmentOnHold,
	}
	nonTerminalStatuses = append(slices.Clone(preShipmentStatuses), StatusShipped)
)

// transitions is the complete table. Anything absent is rejected with
// InvalidTransition. Order matters for ops with several targets from the
// same state: the first matching entry is the default target.
var transitions = []transition{
	{security.OpStartWork, []Status{StatusNew}, StatusInProgress},
	{security.OpRequestStock, []Status{StatusNew, StatusInProgress}, StatusWaitingStockConfirmation},
	{security.OpWarehouseResponse, []Status{StatusWaitingStockConfirmation}, StatusStockConfirmed},
	{security.OpWarehouseResponse, []Status{StatusWaitingStockConfirmation}, statusUnchanged},
	{security.OpSetItemQuantities, []Status{StatusStockConfirmed}, statusUnchanged},
	{security.OpApproveFinance, []Status{StatusStockConfirmed}, StatusFinanceApproved},
	{security.OpRejectFinance, []Status{StatusStockConfirmed}, StatusRejected},
	{security.OpApproveAdmin, []Status{StatusFinanceApproved}, StatusAdminApproved},
	{security.OpApproveAdmin, []Status{StatusAdminApproved}, StatusReadyForShipment},
	{security.OpHoldShipment, []Status{StatusReadyForShipment}, StatusShipmentOnHold},
	{security.OpReleaseShipmentHold, []Status{StatusShipmentOnHold}, StatusReadyForShipment},
	{security.OpSubmitShipment, []Status{StatusReadyForShipment}, StatusShipped},
	{security.OpCloseDeal, []Status{StatusShipped}, StatusClosed},
	{security.OpCancel, nonTerminalStatuses, StatusCanceled},
	{security.OpReject, preShipmentStatuses, StatusRejected},
	{security.OpReopen, []Status{StatusRejected}, StatusInProgress},
	{security.OpAddItem, editableStatuses, statusUnchanged},
	{security.OpRemoveItem, editableStatuses, statusUnchanged},
	{security.OpReassign, nonTerminalStatuses, statusUnchanged},
	{security.OpArchive, AllStatuses, statusUnchanged},
}

func (t transition) target(from Status) Status {
	if t.to == statusUnchanged {
		return from
	}
	return t.to
}

// Target returns the default destination of op from status from, or an
// InvalidTransition error when the table has no such entry.
func Target(op security.Operation, from Status) (Status, error) {
	for _, t := range transitions {
		if t.op == op && slices.Contains(t.from, from) {
			return t.target(from), nil
		}
	}
	return "", invalid(op, from, canonicalTarget(op, from))
}

// CheckTransition reports whether op may move a deal from from to to.
func CheckTransition(op security.Operation, from, to Status) error {
	for _, t := range transitions {
		if t.op == op && slices.Contains(t.from, from) && t.target(from) == to {
			return nil
		}
	}
	return invalid(op, from, to)
}

// Allowed reports whether op has any entry starting at from.
func Allowed(op security.Operation, from Status) bool {
	_, err := Target(op, from)
	return err == nil
}

// canonicalTarget names the destination op would normally reach, for error
// messages when from is not a legal source.
func canonicalTarget(op security.Operation, from Status) Status {
	for _, t := range transitions {
		if t.op == op && t.to != statusUnchanged {
			return t.to
		}
	}
	return from
}

func invalid(op security.Operation, from, to Status) *apperror.AppError {
	return apperror.NewInvalidTransition(string(op), string(from), string(to))
}

// TransitionTo moves the deal to status to on behalf of actorID and records
// a history row. Moves that keep the status record nothing.
func (d *Deal) TransitionTo(op security.Operation, to Status, actorID, reason string) error {
	if err := CheckTransition(op, d.Status, to); err != nil {
		return err
	}
	if to == d.Status {
		return nil
	}
	now := time.Now().UTC()
	d.changes = append(d.changes, StatusChange{
		ID:        id.New(),
		DealID:    d.ID,
		Operation: string(op),
		From:      d.Status,
		To:        to,
		Reason:    reason,
		ActorID:   actorID,
		CreatedAt: now,
	})
	d.Status = to
	d.UpdatedAt = now
	return nil
}

// Advance applies the default transition of op.
func (d *Deal) Advance(op security.Operation, actorID, reason string) error {
	to, err := Target(op, d.Status)
	if err != nil {
		return err
	}
	return d.TransitionTo(op, to, actorID, reason)
}

// Guard fails unless op is legal from the current status without moving it.
func (d *Deal) Guard(op security.Operation) error {
	_, err := Target(op, d.Status)
	return err
}

// EnsureItemsEditable fails once items are frozen.
func (d *Deal) EnsureItemsEditable(op security.Operation) error {
	if err := d.Guard(op); err != nil {
		return err
	}
	if d.QuantitiesSet {
		return apperror.NewInvalidTransition(string(op), string(d.Status), string(d.Status)).
			WithDetail("quantities_set", true).
			WithDetail("deal_id", d.ID.String())
	}
	return nil
}

// MarkCreated records the initial entry of a new deal in its history.
func (d *Deal) MarkCreated(actorID string) {
	d.changes = append(d.changes, StatusChange{
		ID:        id.New(),
		DealID:    d.ID,
		Operation: string(security.OpCreateDeal),
		To:        d.Status,
		ActorID:   actorID,
		CreatedAt: d.CreatedAt,
	})
}
