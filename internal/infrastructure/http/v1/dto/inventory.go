package dto

import (
	"time"

	"crm/internal/core/id"
	"crm/internal/core/types"
	"crm/internal/domain/inventory"
)

// CreateProductRequest adds a catalogue entry. Stock starts at zero and
// moves only through the ledger.
type CreateProductRequest struct {
	SKU           string       `json:"sku" binding:"required"`
	Name          string       `json:"name" binding:"required"`
	Unit          string       `json:"unit"`
	MinStock      int64        `json:"minStock" binding:"min=0"`
	PurchasePrice *types.Money `json:"purchasePrice"`
	SalePrice     *types.Money `json:"salePrice"`
}

func (r CreateProductRequest) ToProduct() *inventory.Product {
	p := &inventory.Product{
		SKU:           r.SKU,
		Name:          r.Name,
		Unit:          r.Unit,
		MinStock:      r.MinStock,
		PurchasePrice: types.Zero(),
		SalePrice:     types.Zero(),
	}
	if r.PurchasePrice != nil {
		p.PurchasePrice = *r.PurchasePrice
	}
	if r.SalePrice != nil {
		p.SalePrice = *r.SalePrice
	}
	return p
}

// ProductListRequest holds catalogue query parameters.
type ProductListRequest struct {
	PaginationRequest
	Search     string `form:"search"`
	ActiveOnly bool   `form:"activeOnly"`
}

func (r ProductListRequest) ToFilter() inventory.ProductFilter {
	return inventory.ProductFilter{Search: r.Search, ActiveOnly: r.ActiveOnly, Limit: r.Limit, Offset: r.Offset}
}

// MovementRequest is a manual receipt or write-off.
type MovementRequest struct {
	Type     inventory.MovementType `json:"type" binding:"required"`
	Quantity int64                  `json:"quantity"`
	DealID   *id.ID                 `json:"dealId"`
	Note     string                 `json:"note"`
}

func (r MovementRequest) ToRequest(productID id.ID) inventory.MovementRequest {
	return inventory.MovementRequest{
		ProductID: productID,
		Type:      r.Type,
		Quantity:  r.Quantity,
		DealID:    r.DealID,
		Note:      r.Note,
	}
}

// MovementListRequest holds ledger query parameters.
type MovementListRequest struct {
	PaginationRequest
	Type     string     `form:"type"`
	DealID   string     `form:"dealId"`
	FromDate *time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	ToDate   *time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
}

// ToFilter converts query parameters; a bad deal id is reported by field name.
func (r MovementListRequest) ToFilter() (inventory.MovementFilter, string, error) {
	f := inventory.MovementFilter{FromDate: r.FromDate, ToDate: r.ToDate, Limit: r.Limit, Offset: r.Offset}
	if r.Type != "" {
		t := inventory.MovementType(r.Type)
		f.Type = &t
	}
	dealID, err := id.ParseOptional(r.DealID)
	if err != nil {
		return f, "dealId", err
	}
	f.DealID = dealID
	return f, "", nil
}

// ReplayResponse reports a ledger replay.
type ReplayResponse struct {
	inventory.ReplayResult
	Consistent bool `json:"consistent"`
}
