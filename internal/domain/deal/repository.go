package deal

import (
	"context"

	"crm/internal/core/id"
)

// ListFilter narrows deal listings. Archived deals are excluded unless
// IncludeArchived is set.
type ListFilter struct {
	Statuses        []Status
	ManagerID       *id.ID
	ClientID        *id.ID
	IncludeArchived bool
	// FinanceQueue selects STOCK_CONFIRMED deals whose quantities are set.
	FinanceQueue bool
	Limit        int
	Offset       int
}

// Repository persists deals, their items, history and shipments.
// All methods use the transaction carried by ctx when one is open.
type Repository interface {
	Create(ctx context.Context, d *Deal) error
	GetByID(ctx context.Context, dealID id.ID) (*Deal, error)
	// GetForUpdate loads the deal with its items and locks the deal row.
	GetForUpdate(ctx context.Context, dealID id.ID) (*Deal, error)
	// Update writes header fields with an optimistic version check and
	// increments Version.
	Update(ctx context.Context, d *Deal) error
	List(ctx context.Context, filter ListFilter) ([]*Deal, error)

	InsertItems(ctx context.Context, items []Item) error
	UpdateItems(ctx context.Context, items []Item) error
	DeleteItem(ctx context.Context, dealID, itemID id.ID) error

	AppendHistory(ctx context.Context, changes []StatusChange) error
	History(ctx context.Context, dealID id.ID) ([]StatusChange, error)

	CreateShipment(ctx context.Context, s *Shipment) error
	GetShipment(ctx context.Context, dealID id.ID) (*Shipment, error)
}
