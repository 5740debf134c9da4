package inventory_repo

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm/internal/core/apperror"
	"crm/internal/core/id"
	"crm/internal/domain/inventory"
	"crm/internal/infrastructure/storage/postgres/pgtest"
)

func TestDecrementStockUsesGuardedWrite(t *testing.T) {
	db := pgtest.New().ExpectRow(pgtest.Values(int64(7)))
	r := NewInventoryRepo(db)
	pid := id.New()

	stock, ok, err := r.DecrementStockIfAvailable(context.Background(), pid, 3)

	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(7), stock)
	require.Len(t, db.Calls, 1)
	assert.Equal(t, "UPDATE products SET stock = stock - $1 WHERE id = $2 AND stock >= $3 RETURNING stock", db.Last().SQL)
	assert.Equal(t, []any{int64(3), pid, int64(3)}, db.Last().Args)
}

func TestDecrementStockReportsBalanceWhenShort(t *testing.T) {
	db := pgtest.New().
		ExpectRow(pgtest.NoRows()).
		ExpectRow(pgtest.Values(int64(2)))
	r := NewInventoryRepo(db)

	stock, ok, err := r.DecrementStockIfAvailable(context.Background(), id.New(), 5)

	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(2), stock)
	assert.Equal(t, "SELECT stock FROM products WHERE id = $1", db.Last().SQL)
}

func TestDecrementStockMissingProduct(t *testing.T) {
	db := pgtest.New().ExpectRow(pgtest.NoRows()).ExpectRow(pgtest.NoRows())
	r := NewInventoryRepo(db)

	_, ok, err := r.DecrementStockIfAvailable(context.Background(), id.New(), 1)

	assert.False(t, ok)
	assert.True(t, apperror.IsNotFound(err))
}

func TestIncrementStock(t *testing.T) {
	db := pgtest.New().ExpectRow(pgtest.Values(int64(12))).ExpectRow(pgtest.NoRows())
	r := NewInventoryRepo(db)

	stock, err := r.IncrementStock(context.Background(), id.New(), 2)
	require.NoError(t, err)
	assert.Equal(t, int64(12), stock)

	_, err = r.IncrementStock(context.Background(), id.New(), 2)
	assert.True(t, apperror.IsNotFound(err))
}

func TestSumMovements(t *testing.T) {
	db := pgtest.New().ExpectRow(pgtest.Values(int64(-4)))
	r := NewInventoryRepo(db)

	total, err := r.SumMovements(context.Background(), id.New())

	require.NoError(t, err)
	assert.Equal(t, int64(-4), total)
	assert.Contains(t, db.Last().SQL, "CASE WHEN type = 'IN' THEN quantity ELSE -quantity END")
}

func TestCreateProductTakenSKU(t *testing.T) {
	db := pgtest.New().ExpectExec("", &pgconn.PgError{Code: "23505", ConstraintName: "products_sku_key"})
	r := NewInventoryRepo(db)

	err := r.CreateProduct(context.Background(), &inventory.Product{ID: id.New(), SKU: "W-1"})

	assert.True(t, apperror.IsConflict(err))
}

func TestListProductsQuery(t *testing.T) {
	r := NewInventoryRepo(pgtest.New())

	sql, args, err := r.listProducts(inventory.ProductFilter{Search: " bolt ", ActiveOnly: true, Limit: 20, Offset: 40})

	require.NoError(t, err)
	assert.Contains(t, sql, "WHERE is_active = $1 AND (name ILIKE $2 OR sku ILIKE $3) ORDER BY sku LIMIT 20 OFFSET 40")
	assert.Equal(t, []any{true, "%bolt%", "%bolt%"}, args)
}

func TestListMovementsQuery(t *testing.T) {
	r := NewInventoryRepo(pgtest.New())
	out := inventory.MovementOut
	dealID := id.New()

	sql, args, err := r.listMovements(id.New(), inventory.MovementFilter{Type: &out, DealID: &dealID, Limit: 10})

	require.NoError(t, err)
	assert.Contains(t, sql, "WHERE product_id = $1 AND type = $2 AND deal_id = $3 ORDER BY created_at DESC, id DESC LIMIT 10")
	assert.Len(t, args, 3)
}
