package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"crm/internal/core/apperror"
	appctx "crm/internal/core/context"
	"crm/internal/core/id"
	"crm/internal/core/security"
	"crm/internal/domain/deal"
	"crm/internal/domain/inventory"
	"crm/pkg/numerator"
)

// cancelReversalNote marks the IN movements that undo a shipment.
const cancelReversalNote = "cancel reversal"

// ShipmentInput describes a dispatch.
type ShipmentInput struct {
	VehicleType   string
	VehicleNumber string
	DriverName    string
	// DepartureTime defaults to now.
	DepartureTime time.Time
	// DeliveryNoteNumber is allocated when empty.
	DeliveryNoteNumber string
	Comment            string
}

// HoldShipment pauses a shippable deal.
func (s *Service) HoldShipment(ctx context.Context, dealID id.ID, reason string) (*deal.Deal, error) {
	op := security.OpHoldShipment
	return s.mutateDeal(ctx, op, dealID, func(_ context.Context, d *deal.Deal, user *appctx.UserContext) error {
		if err := d.Guard(op); err != nil {
			return err
		}
		if err := requireReason(reason); err != nil {
			return err
		}
		if err := d.Advance(op, actorID(user), reason); err != nil {
			return err
		}
		d.HoldReason = &reason
		return nil
	})
}

// ReleaseShipmentHold makes a held deal shippable again and clears the
// active hold reason. History keeps it.
func (s *Service) ReleaseShipmentHold(ctx context.Context, dealID id.ID) (*deal.Deal, error) {
	op := security.OpReleaseShipmentHold
	return s.mutateDeal(ctx, op, dealID, func(_ context.Context, d *deal.Deal, user *appctx.UserContext) error {
		if err := d.Advance(op, actorID(user), ""); err != nil {
			return err
		}
		d.HoldReason = nil
		return nil
	})
}

// SubmitShipment records the dispatch, draws stock for every item and marks
// the deal SHIPPED. Any insufficient item aborts the whole operation.
func (s *Service) SubmitShipment(ctx context.Context, dealID id.ID, in ShipmentInput) (*deal.Deal, error) {
	op := security.OpSubmitShipment
	return s.mutateDeal(ctx, op, dealID, func(ctx context.Context, d *deal.Deal, user *appctx.UserContext) error {
		if err := d.Guard(op); err != nil {
			return err
		}
		if strings.TrimSpace(in.VehicleNumber) == "" {
			return apperror.NewValidation("vehicle number is required").WithDetail("field", "vehicleNumber")
		}
		if strings.TrimSpace(in.DriverName) == "" {
			return apperror.NewValidation("driver name is required").WithDetail("field", "driverName")
		}

		now := time.Now().UTC()
		departure := in.DepartureTime
		if departure.IsZero() {
			departure = now
		}
		noteNumber := strings.TrimSpace(in.DeliveryNoteNumber)
		if noteNumber == "" {
			if s.numerator == nil {
				return apperror.NewValidation("delivery note number is required").WithDetail("field", "deliveryNoteNumber")
			}
			n, err := s.numerator.GetNextNumber(ctx, numerator.DeliveryNote(), now)
			if err != nil {
				return fmt.Errorf("allocate delivery note number: %w", err)
			}
			noteNumber = n
		}

		for _, it := range d.Items {
			if !it.Quantified() {
				return apperror.NewValidation("item has no quantity").WithDetail("itemId", it.ID.String())
			}
			dealRef := d.ID
			_, err := s.ledger.RecordMovement(ctx, inventory.MovementRequest{
				ProductID: it.ProductID,
				Type:      inventory.MovementOut,
				Quantity:  *it.RequestedQty,
				DealID:    &dealRef,
				Note:      "shipment " + noteNumber,
				ActorID:   actorID(user),
			})
			if err != nil {
				return err
			}
		}

		if err := s.deals.CreateShipment(ctx, &deal.Shipment{
			ID:                 id.New(),
			DealID:             d.ID,
			VehicleType:        in.VehicleType,
			VehicleNumber:      in.VehicleNumber,
			DriverName:         in.DriverName,
			DepartureTime:      departure,
			DeliveryNoteNumber: noteNumber,
			Comment:            in.Comment,
			ShippedBy:          actorID(user),
			CreatedAt:          now,
		}); err != nil {
			return fmt.Errorf("create shipment: %w", err)
		}

		return d.Advance(op, actorID(user), "")
	})
}

// Cancel terminates a deal. Stock drawn by a shipment is returned through
// offsetting IN movements.
func (s *Service) Cancel(ctx context.Context, dealID id.ID, reason string) (*deal.Deal, error) {
	op := security.OpCancel
	return s.mutateDeal(ctx, op, dealID, func(ctx context.Context, d *deal.Deal, user *appctx.UserContext) error {
		wasShipped := d.Status == deal.StatusShipped
		if err := d.Advance(op, actorID(user), reason); err != nil {
			return err
		}
		d.HoldReason = nil
		if !wasShipped {
			return nil
		}

		for _, it := range d.Items {
			if !it.Quantified() {
				continue
			}
			dealRef := d.ID
			if _, err := s.ledger.RecordMovement(ctx, inventory.MovementRequest{
				ProductID: it.ProductID,
				Type:      inventory.MovementIn,
				Quantity:  *it.RequestedQty,
				DealID:    &dealRef,
				Note:      cancelReversalNote,
				ActorID:   actorID(user),
			}); err != nil {
				return err
			}
		}
		return nil
	})
}
