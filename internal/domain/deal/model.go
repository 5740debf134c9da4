// Package deal provides the Deal aggregate: status, line items, pricing and
// payment terms, together with the workflow transition table.
package deal

import (
	"time"

	"crm/internal/core/apperror"
	"crm/internal/core/id"
	"crm/internal/core/types"
)

// Status is the workflow state of a deal.
type Status string

const (
	StatusNew                      Status = "NEW"
	StatusInProgress               Status = "IN_PROGRESS"
	StatusWaitingStockConfirmation Status = "WAITING_STOCK_CONFIRMATION"
	StatusStockConfirmed           Status = "STOCK_CONFIRMED"
	StatusFinanceApproved          Status = "FINANCE_APPROVED"
	StatusAdminApproved            Status = "ADMIN_APPROVED"
	StatusReadyForShipment         Status = "READY_FOR_SHIPMENT"
	StatusShipmentOnHold           Status = "SHIPMENT_ON_HOLD"
	StatusShipped                  Status = "SHIPPED"
	StatusClosed                   Status = "CLOSED"
	StatusCanceled                 Status = "CANCELED"
	StatusRejected                 Status = "REJECTED"
)

// AllStatuses lists every status in workflow order.
var AllStatuses = []Status{
	StatusNew,
	StatusInProgress,
	StatusWaitingStockConfirmation,
	StatusStockConfirmed,
	StatusFinanceApproved,
	StatusAdminApproved,
	StatusReadyForShipment,
	StatusShipmentOnHold,
	StatusShipped,
	StatusClosed,
	StatusCanceled,
	StatusRejected,
}

// IsTerminal reports whether no regular workflow operation leaves s.
func (s Status) IsTerminal() bool {
	return s == StatusClosed || s == StatusCanceled || s == StatusRejected
}

// PaymentType is the agreed settlement mode.
type PaymentType string

const (
	PaymentFull    PaymentType = "FULL"
	PaymentPartial PaymentType = "PARTIAL"
	PaymentDebt    PaymentType = "DEBT"
)

// Valid reports whether t is a known payment type.
func (t PaymentType) Valid() bool {
	switch t {
	case PaymentFull, PaymentPartial, PaymentDebt:
		return true
	}
	return false
}

// PaymentStatus is derived from paidAmount vs amount and never set directly.
type PaymentStatus string

const (
	PaymentUnpaid        PaymentStatus = "UNPAID"
	PaymentPartiallyPaid PaymentStatus = "PARTIAL"
	PaymentPaid          PaymentStatus = "PAID"
)

// DerivePaymentStatus maps paid vs amount to a status. Overpayment is PAID.
func DerivePaymentStatus(paid, amount types.Money) PaymentStatus {
	switch {
	case paid.IsZero():
		return PaymentUnpaid
	case paid.LessThan(amount):
		return PaymentPartiallyPaid
	default:
		return PaymentPaid
	}
}

// RejectionStage tells who rejected the deal.
type RejectionStage string

const (
	RejectedByFinance RejectionStage = "finance"
	RejectedByAdmin   RejectionStage = "admin"
)

// Deal is one sales transaction moving through the workflow.
type Deal struct {
	ID         id.ID  `db:"id" json:"id"`
	Title      string `db:"title" json:"title"`
	ClientID   id.ID  `db:"client_id" json:"clientId"`
	ManagerID  id.ID  `db:"manager_id" json:"managerId"`
	ContractID *id.ID `db:"contract_id" json:"contractId,omitempty"`

	Status        Status `db:"status" json:"status"`
	QuantitiesSet bool   `db:"quantities_set" json:"quantitiesSet"`

	Amount        types.Money   `db:"amount" json:"amount"`
	Discount      types.Money   `db:"discount" json:"discount"`
	PaidAmount    types.Money   `db:"paid_amount" json:"paidAmount"`
	PaymentStatus PaymentStatus `db:"payment_status" json:"paymentStatus"`
	PaymentType   PaymentType   `db:"payment_type" json:"paymentType"`
	DueDate       *time.Time    `db:"due_date" json:"dueDate,omitempty"`
	Terms         string        `db:"terms" json:"terms,omitempty"`

	HoldReason      *string         `db:"hold_reason" json:"holdReason,omitempty"`
	RejectionReason *string         `db:"rejection_reason" json:"rejectionReason,omitempty"`
	RejectionStage  *RejectionStage `db:"rejection_stage" json:"rejectionStage,omitempty"`

	IsArchived     bool   `db:"is_archived" json:"isArchived"`
	DailyClosingID *id.ID `db:"daily_closing_id" json:"dailyClosingId,omitempty"`

	Version   int       `db:"version" json:"version"`
	CreatedBy string    `db:"created_by" json:"createdBy,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`

	Items []Item `db:"-" json:"items"`

	changes []StatusChange
}

// Item is a requested product line within a deal.
type Item struct {
	ID        id.ID `db:"id" json:"id"`
	DealID    id.ID `db:"deal_id" json:"dealId"`
	LineNo    int   `db:"line_no" json:"lineNo"`
	ProductID id.ID `db:"product_id" json:"productId"`

	RequestedQty *int64       `db:"requested_qty" json:"requestedQty,omitempty"`
	Price        *types.Money `db:"price" json:"price,omitempty"`

	RequestComment       string     `db:"request_comment" json:"requestComment,omitempty"`
	WarehouseComment     string     `db:"warehouse_comment" json:"warehouseComment,omitempty"`
	WarehouseConfirmedAt *time.Time `db:"warehouse_confirmed_at" json:"warehouseConfirmedAt,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Quantified reports whether both quantity and price are set.
func (it Item) Quantified() bool {
	return it.RequestedQty != nil && *it.RequestedQty > 0 && it.Price != nil
}

// Total returns qty*price, or zero for an unquantified item.
func (it Item) Total() types.Money {
	if !it.Quantified() {
		return types.Zero()
	}
	return types.LineTotal(*it.RequestedQty, *it.Price)
}

// StatusChange is one row of the deal's transition history.
type StatusChange struct {
	ID        id.ID     `db:"id" json:"id"`
	DealID    id.ID     `db:"deal_id" json:"dealId"`
	Operation string    `db:"operation" json:"operation"`
	From      Status    `db:"from_status" json:"from"`
	To        Status    `db:"to_status" json:"to"`
	Reason    string    `db:"reason" json:"reason,omitempty"`
	ActorID   string    `db:"actor_id" json:"actorId"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Shipment records the physical dispatch of a deal.
type Shipment struct {
	ID                 id.ID     `db:"id" json:"id"`
	DealID             id.ID     `db:"deal_id" json:"dealId"`
	VehicleType        string    `db:"vehicle_type" json:"vehicleType"`
	VehicleNumber      string    `db:"vehicle_number" json:"vehicleNumber"`
	DriverName         string    `db:"driver_name" json:"driverName"`
	DepartureTime      time.Time `db:"departure_time" json:"departureTime"`
	DeliveryNoteNumber string    `db:"delivery_note_number" json:"deliveryNoteNumber"`
	Comment            string    `db:"comment" json:"comment,omitempty"`
	ShippedBy          string    `db:"shipped_by" json:"shippedBy"`
	CreatedAt          time.Time `db:"created_at" json:"createdAt"`
}

// NewDeal creates a deal in status NEW with amount left at zero until the
// items are quantified.
func NewDeal(title string, clientID, managerID id.ID, paymentType PaymentType, discount types.Money) *Deal {
	now := time.Now().UTC()
	return &Deal{
		ID:            id.New(),
		Title:         title,
		ClientID:      clientID,
		ManagerID:     managerID,
		Status:        StatusNew,
		Amount:        types.Zero(),
		Discount:      discount,
		PaidAmount:    types.Zero(),
		PaymentStatus: PaymentUnpaid,
		PaymentType:   paymentType,
		Version:       1,
		CreatedBy:     managerID.String(),
		CreatedAt:     now,
		UpdatedAt:     now,
		Items:         make([]Item, 0),
	}
}

// AddItem appends a line for productID. Multiple lines per product are legal.
func (d *Deal) AddItem(productID id.ID, qty *int64, comment string) Item {
	lineNo := 1
	for _, it := range d.Items {
		if it.LineNo >= lineNo {
			lineNo = it.LineNo + 1
		}
	}
	item := Item{
		ID:             id.New(),
		DealID:         d.ID,
		LineNo:         lineNo,
		ProductID:      productID,
		RequestedQty:   qty,
		RequestComment: comment,
		CreatedAt:      time.Now().UTC(),
	}
	d.Items = append(d.Items, item)
	return item
}

// RemoveItem drops itemID from the deal.
func (d *Deal) RemoveItem(itemID id.ID) error {
	for i, it := range d.Items {
		if it.ID == itemID {
			d.Items = append(d.Items[:i], d.Items[i+1:]...)
			return nil
		}
	}
	return apperror.NewNotFound("deal item", itemID.String())
}

// Item returns a pointer to the item with itemID or a NotFound error.
func (d *Deal) Item(itemID id.ID) (*Item, error) {
	for i := range d.Items {
		if d.Items[i].ID == itemID {
			return &d.Items[i], nil
		}
	}
	return nil, apperror.NewNotFound("deal item", itemID.String()).
		WithDetail("deal_id", d.ID.String())
}

// AllItemsConfirmed reports whether the warehouse has answered every line.
func (d *Deal) AllItemsConfirmed() bool {
	if len(d.Items) == 0 {
		return false
	}
	for _, it := range d.Items {
		if it.WarehouseConfirmedAt == nil {
			return false
		}
	}
	return true
}

// ResetWarehouseConfirmations clears the warehouse answers so every line
// must be confirmed again. It returns the lines that changed.
func (d *Deal) ResetWarehouseConfirmations() []Item {
	var changed []Item
	for i := range d.Items {
		it := &d.Items[i]
		if it.WarehouseConfirmedAt == nil && it.WarehouseComment == "" {
			continue
		}
		it.WarehouseConfirmedAt = nil
		it.WarehouseComment = ""
		changed = append(changed, *it)
	}
	return changed
}

// Subtotal is the sum of qty*price over all items.
func (d *Deal) Subtotal() types.Money {
	total := types.Zero()
	for _, it := range d.Items {
		total = total.Add(it.Total())
	}
	return total
}

// RecalculateAmount sets amount = subtotal - discount. Every item must be
// quantified and the result must not be negative.
func (d *Deal) RecalculateAmount() error {
	for _, it := range d.Items {
		if !it.Quantified() {
			return apperror.NewValidation("every item needs a quantity and a price").
				WithDetail("item_id", it.ID.String()).
				WithDetail("lineNo", it.LineNo)
		}
	}
	if d.Discount.IsNegative() {
		return apperror.NewValidation("discount must not be negative").
			WithDetail("field", "discount")
	}
	amount := d.Subtotal().Sub(d.Discount)
	if amount.IsNegative() {
		return apperror.NewValidation("discount exceeds the deal subtotal").
			WithDetail("subtotal", d.Subtotal().String()).
			WithDetail("discount", d.Discount.String())
	}
	d.Amount = amount
	d.PaymentStatus = DerivePaymentStatus(d.PaidAmount, d.Amount)
	return nil
}

// ApplyPaidAmount stores the reconciled payment total and re-derives status.
func (d *Deal) ApplyPaidAmount(paid types.Money) {
	d.PaidAmount = paid
	d.PaymentStatus = DerivePaymentStatus(d.PaidAmount, d.Amount)
}

// Debt is amount - paidAmount floored at zero.
func (d *Deal) Debt() types.Money {
	return types.FloorZero(d.Amount.Sub(d.PaidAmount))
}

// Clone returns a deep copy suitable for before/after audit snapshots.
func (d *Deal) Clone() *Deal {
	cp := *d
	cp.Items = make([]Item, len(d.Items))
	copy(cp.Items, d.Items)
	cp.changes = nil
	return &cp
}

// DrainChanges returns and clears the transitions recorded since the last call.
func (d *Deal) DrainChanges() []StatusChange {
	out := d.changes
	d.changes = nil
	return out
}
