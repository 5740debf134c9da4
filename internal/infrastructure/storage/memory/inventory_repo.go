package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"crm/internal/core/apperror"
	"crm/internal/core/id"
	"crm/internal/domain/inventory"
)

// InventoryRepo implements inventory.Repository on a Store.
type InventoryRepo struct{ s *Store }

// Inventory returns the inventory repository view of s.
func (s *Store) Inventory() *InventoryRepo { return &InventoryRepo{s: s} }

var _ inventory.Repository = (*InventoryRepo)(nil)

func (r *InventoryRepo) CreateProduct(_ context.Context, p *inventory.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, other := range r.s.data.products {
		if other.SKU == p.SKU {
			return apperror.NewDuplicate("product", "sku", p.SKU)
		}
	}
	r.s.data.products[p.ID] = *p
	return nil
}

func (r *InventoryRepo) GetProduct(_ context.Context, productID id.ID) (*inventory.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.data.products[productID]
	if !ok {
		return nil, apperror.NewNotFound("product", productID.String())
	}
	return &p, nil
}

func (r *InventoryRepo) GetProducts(_ context.Context, ids []id.ID) (map[id.ID]*inventory.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make(map[id.ID]*inventory.Product, len(ids))
	for _, pid := range ids {
		if p, ok := r.s.data.products[pid]; ok {
			out[pid] = &p
		}
	}
	return out, nil
}

func (r *InventoryRepo) ListProducts(_ context.Context, f inventory.ProductFilter) ([]*inventory.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	search := strings.ToLower(f.Search)
	out := make([]*inventory.Product, 0)
	for _, p := range r.s.data.products {
		if f.ActiveOnly && !p.IsActive {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(p.Name), search) && !strings.Contains(strings.ToLower(p.SKU), search) {
			continue
		}
		out = append(out, &p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return out, nil
}

func (r *InventoryRepo) ListBelowMinimum(_ context.Context) ([]*inventory.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*inventory.Product, 0)
	for _, p := range r.s.data.products {
		if p.IsActive && p.BelowMinimum() {
			out = append(out, &p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return out, nil
}

func (r *InventoryRepo) IncrementStock(_ context.Context, productID id.ID, qty int64) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.data.products[productID]
	if !ok {
		return 0, apperror.NewNotFound("product", productID.String())
	}
	p.Stock += qty
	p.UpdatedAt = time.Now().UTC()
	r.s.data.products[productID] = p
	return p.Stock, nil
}

// DecrementStockIfAvailable checks and writes under one lock, mirroring the
// conditional UPDATE of the SQL repository.
func (r *InventoryRepo) DecrementStockIfAvailable(_ context.Context, productID id.ID, qty int64) (int64, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.data.products[productID]
	if !ok {
		return 0, false, apperror.NewNotFound("product", productID.String())
	}
	if p.Stock < qty {
		return p.Stock, false, nil
	}
	p.Stock -= qty
	p.UpdatedAt = time.Now().UTC()
	r.s.data.products[productID] = p
	return p.Stock, true, nil
}

func (r *InventoryRepo) InsertMovement(_ context.Context, m *inventory.Movement) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.data.movements = append(r.s.data.movements, *m)
	return nil
}

func (r *InventoryRepo) SumMovements(_ context.Context, productID id.ID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var total int64
	for _, m := range r.s.data.movements {
		if m.ProductID == productID {
			total += m.Signed()
		}
	}
	return total, nil
}

func (r *InventoryRepo) ListMovements(_ context.Context, productID id.ID, f inventory.MovementFilter) ([]inventory.Movement, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]inventory.Movement, 0)
	for i := len(r.s.data.movements) - 1; i >= 0; i-- {
		m := r.s.data.movements[i]
		if m.ProductID != productID {
			continue
		}
		if f.Type != nil && m.Type != *f.Type {
			continue
		}
		if f.DealID != nil && (m.DealID == nil || *m.DealID != *f.DealID) {
			continue
		}
		if f.FromDate != nil && m.CreatedAt.Before(*f.FromDate) {
			continue
		}
		if f.ToDate != nil && m.CreatedAt.After(*f.ToDate) {
			continue
		}
		out = append(out, m)
	}
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return []inventory.Movement{}, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// AllMovements returns every ledger row, oldest first.
func (r *InventoryRepo) AllMovements() []inventory.Movement {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]inventory.Movement, len(r.s.data.movements))
	copy(out, r.s.data.movements)
	return out
}
