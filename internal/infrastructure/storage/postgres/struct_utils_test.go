package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"crm/internal/core/id"
	"crm/internal/domain/deal"
	"crm/internal/domain/inventory"
)

type Stamped struct {
	CreatedAt time.Time `db:"created_at"`
}

type withEmbedded struct {
	Stamped
	ID   id.ID  `db:"id"`
	Name string `db:"name"`
	Skip string `db:"-"`
}

func TestExtractDBColumnsFollowsFieldOrder(t *testing.T) {
	cols := ExtractDBColumns[inventory.Product]()

	assert.Equal(t, []string{
		"id", "sku", "name", "unit", "stock", "min_stock",
		"purchase_price", "sale_price", "is_active", "created_at", "updated_at",
	}, cols)
}

func TestExtractDBColumnsSkipsItemsOfDeal(t *testing.T) {
	cols := ExtractDBColumns[deal.Deal]()

	assert.Contains(t, cols, "quantities_set")
	assert.Contains(t, cols, "daily_closing_id")
	assert.NotContains(t, cols, "items")
	assert.NotContains(t, cols, "-")
}

func TestStructToMapWalksEmbedded(t *testing.T) {
	now := time.Now().UTC()
	v := withEmbedded{Stamped: Stamped{CreatedAt: now}, ID: id.New(), Name: "x", Skip: "ignored"}

	m := StructToMap(&v)

	assert.Len(t, m, 3)
	assert.Equal(t, now, m["created_at"])
	assert.Equal(t, v.ID, m["id"])
	assert.Equal(t, "x", m["name"])
	assert.Equal(t, []string{"created_at", "id", "name"}, ExtractDBColumns[withEmbedded]())
}

func TestValuesAndWithout(t *testing.T) {
	p := inventory.Product{ID: id.New(), SKU: "W-1", Stock: 4}

	cols := Without(ExtractDBColumns[inventory.Product](), "created_at", "updated_at", "name")
	vals := Values(p, []string{"sku", "stock"})

	assert.NotContains(t, cols, "name")
	assert.Len(t, cols, 8)
	assert.Equal(t, []any{"W-1", int64(4)}, vals)
}
