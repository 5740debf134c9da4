package inventory

import (
	"context"

	"crm/internal/core/id"
)

// Repository defines storage for products and the movement ledger.
// Every method joins the transaction in ctx when there is one.
type Repository interface {
	// Products

	// CreateProduct inserts p. A taken SKU yields a Conflict error.
	CreateProduct(ctx context.Context, p *Product) error
	GetProduct(ctx context.Context, productID id.ID) (*Product, error)
	// GetProducts returns the products found among ids, keyed by ID.
	GetProducts(ctx context.Context, ids []id.ID) (map[id.ID]*Product, error)
	ListProducts(ctx context.Context, filter ProductFilter) ([]*Product, error)
	ListBelowMinimum(ctx context.Context) ([]*Product, error)

	// Balance

	// IncrementStock adds qty and returns the new balance.
	IncrementStock(ctx context.Context, productID id.ID, qty int64) (int64, error)
	// DecrementStockIfAvailable subtracts qty only when stock >= qty, as a
	// single conditional write. ok is false when the guard failed.
	DecrementStockIfAvailable(ctx context.Context, productID id.ID, qty int64) (stock int64, ok bool, err error)

	// Ledger

	InsertMovement(ctx context.Context, m *Movement) error
	// SumMovements replays the ledger: SUM(IN) - SUM(OUT).
	SumMovements(ctx context.Context, productID id.ID) (int64, error)
	ListMovements(ctx context.Context, productID id.ID, filter MovementFilter) ([]Movement, error)
}
