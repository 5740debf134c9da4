package dto

import (
	"time"

	"crm/internal/core/id"
	"crm/internal/core/types"
	"crm/internal/domain/deal"
	"crm/internal/domain/payment"
	"crm/internal/domain/workflow"
)

// NewItemRequest is one requested product line.
type NewItemRequest struct {
	ProductID    id.ID  `json:"productId" binding:"required"`
	RequestedQty *int64 `json:"requestedQty" binding:"omitempty,min=1"`
	Comment      string `json:"comment"`
}

func (r NewItemRequest) ToInput() workflow.NewItem {
	return workflow.NewItem{ProductID: r.ProductID, RequestedQty: r.RequestedQty, Comment: r.Comment}
}

// CreateDealRequest opens a deal.
type CreateDealRequest struct {
	Title       string           `json:"title" binding:"required"`
	ClientID    id.ID            `json:"clientId" binding:"required"`
	ContractID  *id.ID           `json:"contractId"`
	ManagerID   *id.ID           `json:"managerId"`
	PaymentType deal.PaymentType `json:"paymentType"`
	Discount    *types.Money     `json:"discount"`
	DueDate     *time.Time       `json:"dueDate"`
	Terms       string           `json:"terms"`
	Items       []NewItemRequest `json:"items"`
}

func (r CreateDealRequest) ToInput() workflow.CreateDealInput {
	in := workflow.CreateDealInput{
		Title:       r.Title,
		ClientID:    r.ClientID,
		ContractID:  r.ContractID,
		ManagerID:   r.ManagerID,
		PaymentType: r.PaymentType,
		Discount:    types.Zero(),
		DueDate:     r.DueDate,
		Terms:       r.Terms,
		Items:       make([]workflow.NewItem, len(r.Items)),
	}
	if r.Discount != nil {
		in.Discount = *r.Discount
	}
	for i, it := range r.Items {
		in.Items[i] = it.ToInput()
	}
	return in
}

// DealListRequest holds deal list query parameters.
type DealListRequest struct {
	PaginationRequest
	Status          []string `form:"status"`
	ManagerID       string   `form:"managerId"`
	ClientID        string   `form:"clientId"`
	IncludeArchived bool     `form:"includeArchived"`
}

// ToFilter converts query parameters; bad ids are reported by field name.
func (r DealListRequest) ToFilter() (deal.ListFilter, string, error) {
	f := deal.ListFilter{
		IncludeArchived: r.IncludeArchived,
		Limit:           r.Limit,
		Offset:          r.Offset,
	}
	for _, s := range r.Status {
		f.Statuses = append(f.Statuses, deal.Status(s))
	}
	var err error
	if f.ManagerID, err = id.ParseOptional(r.ManagerID); err != nil {
		return f, "managerId", err
	}
	if f.ClientID, err = id.ParseOptional(r.ClientID); err != nil {
		return f, "clientId", err
	}
	return f, "", nil
}

// RequestStockRequest sends the deal to the warehouse.
type RequestStockRequest struct {
	Comment string `json:"comment"`
}

// WarehouseItemResponse confirms one item.
type WarehouseItemResponse struct {
	ItemID  id.ID  `json:"itemId" binding:"required"`
	Comment string `json:"comment"`
}

// WarehouseResponseRequest is the warehouse answer for a deal.
type WarehouseResponseRequest struct {
	Items []WarehouseItemResponse `json:"items" binding:"required,min=1,dive"`
}

func (r WarehouseResponseRequest) ToInput() []workflow.ItemResponse {
	out := make([]workflow.ItemResponse, len(r.Items))
	for i, it := range r.Items {
		out[i] = workflow.ItemResponse{ItemID: it.ItemID, Comment: it.Comment}
	}
	return out
}

// ItemQuantityRequest finalizes one item.
type ItemQuantityRequest struct {
	ItemID id.ID       `json:"itemId" binding:"required"`
	Qty    int64       `json:"qty" binding:"required,min=1"`
	Price  types.Money `json:"price"`
}

// SetQuantitiesRequest finalizes quantities, prices and payment terms.
type SetQuantitiesRequest struct {
	Items       []ItemQuantityRequest `json:"items" binding:"required,min=1,dive"`
	Discount    *types.Money          `json:"discount"`
	PaymentType deal.PaymentType      `json:"paymentType"`
	PaidAmount  *types.Money          `json:"paidAmount"`
	DueDate     *time.Time            `json:"dueDate"`
	Terms       *string               `json:"terms"`
}

func (r SetQuantitiesRequest) ToInput() workflow.QuantitiesInput {
	in := workflow.QuantitiesInput{
		Items:       make([]workflow.ItemQuantity, len(r.Items)),
		Discount:    r.Discount,
		PaymentType: r.PaymentType,
		PaidAmount:  r.PaidAmount,
		DueDate:     r.DueDate,
		Terms:       r.Terms,
	}
	for i, it := range r.Items {
		in.Items[i] = workflow.ItemQuantity{ItemID: it.ItemID, Qty: it.Qty, Price: it.Price}
	}
	return in
}

// ReassignRequest moves a deal to another manager.
type ReassignRequest struct {
	ManagerID id.ID `json:"managerId" binding:"required"`
}

// ShipmentRequest records the dispatch of a deal.
type ShipmentRequest struct {
	VehicleType        string    `json:"vehicleType"`
	VehicleNumber      string    `json:"vehicleNumber"`
	DriverName         string    `json:"driverName"`
	DepartureTime      time.Time `json:"departureTime"`
	DeliveryNoteNumber string    `json:"deliveryNoteNumber"`
	Comment            string    `json:"comment"`
}

func (r ShipmentRequest) ToInput() workflow.ShipmentInput {
	return workflow.ShipmentInput{
		VehicleType:        r.VehicleType,
		VehicleNumber:      r.VehicleNumber,
		DriverName:         r.DriverName,
		DepartureTime:      r.DepartureTime,
		DeliveryNoteNumber: r.DeliveryNoteNumber,
		Comment:            r.Comment,
	}
}

// PaymentRequest records money received for a deal.
type PaymentRequest struct {
	Amount types.Money `json:"amount"`
	Method string      `json:"method"`
	Note   string      `json:"note"`
	PaidAt *time.Time  `json:"paidAt"`
}

func (r PaymentRequest) ToInput() payment.Input {
	in := payment.Input{Amount: r.Amount, Method: r.Method, Note: r.Note}
	if r.PaidAt != nil {
		in.PaidAt = *r.PaidAt
	}
	return in
}

// PaymentResponse returns the payment and the deal it settled.
type PaymentResponse struct {
	Payment *payment.Payment `json:"payment"`
	Deal    *deal.Deal       `json:"deal"`
}
