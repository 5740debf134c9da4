// Package inventory_repo provides the PostgreSQL implementation of
// inventory.Repository: the product catalogue, stock balances and the
// movement ledger.
package inventory_repo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"crm/internal/core/apperror"
	"crm/internal/core/id"
	"crm/internal/domain/inventory"
	"crm/internal/infrastructure/storage/postgres"
)

const (
	productsTable  = "products"
	movementsTable = "inventory_movements"
)

var (
	productColumns  = postgres.ExtractDBColumns[inventory.Product]()
	movementColumns = postgres.ExtractDBColumns[inventory.Movement]()
)

// Guarded write: the row is only updated when enough stock remains, so
// concurrent shipments can never drive the balance negative.
const decrementStockSQL = "UPDATE products SET stock = stock - $1 WHERE id = $2 AND stock >= $3 RETURNING stock"

const incrementStockSQL = "UPDATE products SET stock = stock + $1 WHERE id = $2 RETURNING stock"

const sumMovementsSQL = `SELECT COALESCE(SUM(CASE WHEN type = 'IN' THEN quantity ELSE -quantity END), 0)
FROM inventory_movements WHERE product_id = $1`

// InventoryRepo implements inventory.Repository.
type InventoryRepo struct {
	db      postgres.QuerierProvider
	builder squirrel.StatementBuilderType
}

var _ inventory.Repository = (*InventoryRepo)(nil)

// NewInventoryRepo creates an inventory repository.
func NewInventoryRepo(db postgres.QuerierProvider) *InventoryRepo {
	return &InventoryRepo{
		db:      db,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// CreateProduct inserts p. A taken SKU is a conflict.
func (r *InventoryRepo) CreateProduct(ctx context.Context, p *inventory.Product) error {
	sql, args, err := r.builder.Insert(productsTable).
		Columns(productColumns...).
		Values(postgres.Values(p, productColumns)...).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.db.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		if _, ok := postgres.UniqueViolation(err); ok {
			return apperror.NewConflict("product with this SKU already exists").WithDetail("sku", p.SKU)
		}
		return postgres.MapError(err, "insert product", "product", p.ID)
	}
	return nil
}

// GetProduct loads one product.
func (r *InventoryRepo) GetProduct(ctx context.Context, productID id.ID) (*inventory.Product, error) {
	sql, args, err := r.builder.Select(productColumns...).
		From(productsTable).
		Where(squirrel.Eq{"id": productID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	var p inventory.Product
	if err := pgxscan.Get(ctx, r.db.GetQuerier(ctx), &p, sql, args...); err != nil {
		return nil, postgres.MapError(err, "get product", "product", productID)
	}
	return &p, nil
}

// GetProducts returns the products found among ids.
func (r *InventoryRepo) GetProducts(ctx context.Context, ids []id.ID) (map[id.ID]*inventory.Product, error) {
	out := make(map[id.ID]*inventory.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	sql, args, err := r.builder.Select(productColumns...).
		From(productsTable).
		Where(squirrel.Eq{"id": ids}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	var products []*inventory.Product
	if err := pgxscan.Select(ctx, r.db.GetQuerier(ctx), &products, sql, args...); err != nil {
		return nil, postgres.MapError(err, "select products", "product", nil)
	}
	for _, p := range products {
		out[p.ID] = p
	}
	return out, nil
}

func (r *InventoryRepo) listProducts(f inventory.ProductFilter) (string, []any, error) {
	q := r.builder.Select(productColumns...).From(productsTable)
	if f.ActiveOnly {
		q = q.Where(squirrel.Eq{"is_active": true})
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		pattern := "%" + s + "%"
		q = q.Where(squirrel.Or{
			squirrel.ILike{"name": pattern},
			squirrel.ILike{"sku": pattern},
		})
	}
	q = q.OrderBy("sku")
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		q = q.Offset(uint64(f.Offset))
	}
	return q.ToSql()
}

// ListProducts returns products ordered by SKU.
func (r *InventoryRepo) ListProducts(ctx context.Context, f inventory.ProductFilter) ([]*inventory.Product, error) {
	sql, args, err := r.listProducts(f)
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	products := make([]*inventory.Product, 0)
	if err := pgxscan.Select(ctx, r.db.GetQuerier(ctx), &products, sql, args...); err != nil {
		return nil, postgres.MapError(err, "list products", "product", nil)
	}
	return products, nil
}

// ListBelowMinimum returns active products whose stock is under min_stock.
func (r *InventoryRepo) ListBelowMinimum(ctx context.Context) ([]*inventory.Product, error) {
	sql, args, err := r.builder.Select(productColumns...).
		From(productsTable).
		Where(squirrel.Eq{"is_active": true}).
		Where("min_stock > 0 AND stock < min_stock").
		OrderBy("sku").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	products := make([]*inventory.Product, 0)
	if err := pgxscan.Select(ctx, r.db.GetQuerier(ctx), &products, sql, args...); err != nil {
		return nil, postgres.MapError(err, "list products below minimum", "product", nil)
	}
	return products, nil
}

// IncrementStock adds qty and returns the new balance.
func (r *InventoryRepo) IncrementStock(ctx context.Context, productID id.ID, qty int64) (int64, error) {
	var stock int64
	err := r.db.GetQuerier(ctx).QueryRow(ctx, incrementStockSQL, qty, productID).Scan(&stock)
	if err != nil {
		return 0, postgres.MapError(err, "increment stock", "product", productID)
	}
	return stock, nil
}

// DecrementStockIfAvailable subtracts qty when stock covers it. When the guard
// fails it returns the current balance with ok false.
func (r *InventoryRepo) DecrementStockIfAvailable(ctx context.Context, productID id.ID, qty int64) (int64, bool, error) {
	q := r.db.GetQuerier(ctx)

	var stock int64
	err := q.QueryRow(ctx, decrementStockSQL, qty, productID, qty).Scan(&stock)
	if err == nil {
		return stock, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, false, postgres.MapError(err, "decrement stock", "product", productID)
	}

	// Either the product is missing or the guard failed; tell them apart.
	err = q.QueryRow(ctx, "SELECT stock FROM products WHERE id = $1", productID).Scan(&stock)
	if err != nil {
		return 0, false, postgres.MapError(err, "get stock", "product", productID)
	}
	return stock, false, nil
}

// InsertMovement appends a ledger row.
func (r *InventoryRepo) InsertMovement(ctx context.Context, m *inventory.Movement) error {
	sql, args, err := r.builder.Insert(movementsTable).
		Columns(movementColumns...).
		Values(postgres.Values(m, movementColumns)...).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.db.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return postgres.MapError(err, "insert movement", "inventory_movement", m.ID)
	}
	return nil
}

// SumMovements replays the ledger for one product.
func (r *InventoryRepo) SumMovements(ctx context.Context, productID id.ID) (int64, error) {
	var total int64
	if err := r.db.GetQuerier(ctx).QueryRow(ctx, sumMovementsSQL, productID).Scan(&total); err != nil {
		return 0, postgres.MapError(err, "sum movements", "product", productID)
	}
	return total, nil
}

func (r *InventoryRepo) listMovements(productID id.ID, f inventory.MovementFilter) (string, []any, error) {
	q := r.builder.Select(movementColumns...).
		From(movementsTable).
		Where(squirrel.Eq{"product_id": productID})
	if f.Type != nil {
		q = q.Where(squirrel.Eq{"type": *f.Type})
	}
	if f.DealID != nil {
		q = q.Where(squirrel.Eq{"deal_id": *f.DealID})
	}
	if f.FromDate != nil {
		q = q.Where(squirrel.GtOrEq{"created_at": *f.FromDate})
	}
	if f.ToDate != nil {
		q = q.Where(squirrel.LtOrEq{"created_at": *f.ToDate})
	}
	q = q.OrderBy("created_at DESC", "id DESC")
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		q = q.Offset(uint64(f.Offset))
	}
	return q.ToSql()
}

// ListMovements returns ledger rows of a product, newest first.
func (r *InventoryRepo) ListMovements(ctx context.Context, productID id.ID, f inventory.MovementFilter) ([]inventory.Movement, error) {
	sql, args, err := r.listMovements(productID, f)
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	movements := make([]inventory.Movement, 0)
	if err := pgxscan.Select(ctx, r.db.GetQuerier(ctx), &movements, sql, args...); err != nil {
		return nil, postgres.MapError(err, "list movements", "product", productID)
	}
	return movements, nil
}
