// Package inventory provides the product catalogue with its denormalized
// stock balance and the append-only movement ledger behind it.
package inventory

import (
	"time"

	"crm/internal/core/id"
	"crm/internal/core/types"
)

// MovementType is the direction of a stock movement.
type MovementType string

const (
	MovementIn  MovementType = "IN"
	MovementOut MovementType = "OUT"
)

// Valid reports whether t is IN or OUT.
func (t MovementType) Valid() bool {
	return t == MovementIn || t == MovementOut
}

// Product is a stock-holding catalogue item.
type Product struct {
	ID            id.ID       `db:"id" json:"id"`
	SKU           string      `db:"sku" json:"sku"`
	Name          string      `db:"name" json:"name"`
	Unit          string      `db:"unit" json:"unit"`
	Stock         int64       `db:"stock" json:"stock"`
	MinStock      int64       `db:"min_stock" json:"minStock"`
	PurchasePrice types.Money `db:"purchase_price" json:"purchasePrice"`
	SalePrice     types.Money `db:"sale_price" json:"salePrice"`
	IsActive      bool        `db:"is_active" json:"isActive"`
	CreatedAt     time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time   `db:"updated_at" json:"updatedAt"`
}

// BelowMinimum reports whether stock has dropped under the reorder threshold.
func (p Product) BelowMinimum() bool {
	return p.MinStock > 0 && p.Stock < p.MinStock
}

// Movement is one immutable ledger row.
type Movement struct {
	ID        id.ID        `db:"id" json:"id"`
	ProductID id.ID        `db:"product_id" json:"productId"`
	Type      MovementType `db:"type" json:"type"`
	Quantity  int64        `db:"quantity" json:"quantity"`
	DealID    *id.ID       `db:"deal_id" json:"dealId,omitempty"`
	Note      string       `db:"note" json:"note,omitempty"`
	CreatedBy string       `db:"created_by" json:"createdBy"`
	CreatedAt time.Time    `db:"created_at" json:"createdAt"`
}

// Signed returns +quantity for IN and -quantity for OUT.
func (m Movement) Signed() int64 {
	if m.Type == MovementOut {
		return -m.Quantity
	}
	return m.Quantity
}

// MovementRequest is the input to Ledger.RecordMovement.
type MovementRequest struct {
	ProductID id.ID
	Type      MovementType
	Quantity  int64
	DealID    *id.ID
	Note      string
	ActorID   string
}

// MovementFilter narrows movement history queries.
type MovementFilter struct {
	Type     *MovementType
	DealID   *id.ID
	FromDate *time.Time
	ToDate   *time.Time
	Limit    int
	Offset   int
}

// ProductFilter narrows product listings.
type ProductFilter struct {
	Search     string
	ActiveOnly bool
	Limit      int
	Offset     int
}

// ReplayResult compares the stored balance with the sum of the ledger.
type ReplayResult struct {
	ProductID   id.ID `json:"productId"`
	Stock       int64 `json:"stock"`
	LedgerTotal int64 `json:"ledgerTotal"`
}

// Consistent reports whether stock equals the replayed ledger.
func (r ReplayResult) Consistent() bool {
	return r.Stock == r.LedgerTotal
}
