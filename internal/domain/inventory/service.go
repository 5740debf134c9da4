package inventory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"crm/internal/core/apperror"
	"crm/internal/core/id"
	"crm/internal/core/types"
	"crm/pkg/logger"
)

// Ledger records stock movements and keeps Product.Stock in step with them.
// Transactions are owned by the caller; every write here joins the one in ctx.
type Ledger struct {
	repo Repository
}

// NewLedger creates a ledger over repo.
func NewLedger(repo Repository) *Ledger {
	return &Ledger{repo: repo}
}

// RecordMovement applies one movement. OUT uses a conditional decrement so
// that concurrent callers can never drive stock below zero; when it fails no
// ledger row is written and InsufficientStock reports the balance seen.
func (l *Ledger) RecordMovement(ctx context.Context, req MovementRequest) (*Movement, error) {
	if !req.Type.Valid() {
		return nil, apperror.NewValidation("movement type must be IN or OUT").
			WithDetail("type", string(req.Type))
	}
	if req.Quantity <= 0 {
		return nil, apperror.NewValidation("quantity must be positive").
			WithDetail("quantity", req.Quantity)
	}
	if id.IsNil(req.ProductID) {
		return nil, apperror.NewValidation("product_id is required")
	}

	p, err := l.repo.GetProduct(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, apperror.NewValidation("product is inactive").
			WithDetail("product_id", req.ProductID.String())
	}

	var stock int64
	switch req.Type {
	case MovementIn:
		s, err := l.repo.IncrementStock(ctx, req.ProductID, req.Quantity)
		if err != nil {
			return nil, fmt.Errorf("increment stock: %w", err)
		}
		stock = s
	case MovementOut:
		s, ok, err := l.repo.DecrementStockIfAvailable(ctx, req.ProductID, req.Quantity)
		if err != nil {
			return nil, fmt.Errorf("decrement stock: %w", err)
		}
		if !ok {
			return nil, apperror.NewInsufficientStock(req.ProductID.String(), req.Quantity, s)
		}
		stock = s
	}

	m := &Movement{
		ID:        id.New(),
		ProductID: req.ProductID,
		Type:      req.Type,
		Quantity:  req.Quantity,
		DealID:    req.DealID,
		Note:      req.Note,
		CreatedBy: req.ActorID,
		CreatedAt: time.Now().UTC(),
	}
	if err := l.repo.InsertMovement(ctx, m); err != nil {
		return nil, fmt.Errorf("insert movement: %w", err)
	}

	logger.Debug(ctx, "recorded stock movement",
		"product_id", req.ProductID,
		"type", req.Type,
		"quantity", req.Quantity,
		"stock", stock,
	)

	return m, nil
}

// CreateProduct validates and stores a new product with zero stock.
func (l *Ledger) CreateProduct(ctx context.Context, p *Product) error {
	p.SKU = strings.TrimSpace(p.SKU)
	p.Name = strings.TrimSpace(p.Name)
	if p.SKU == "" {
		return apperror.NewValidation("sku is required").WithDetail("field", "sku")
	}
	if p.Name == "" {
		return apperror.NewValidation("name is required").WithDetail("field", "name")
	}
	if p.MinStock < 0 {
		return apperror.NewValidation("min_stock must not be negative").WithDetail("field", "minStock")
	}
	if p.PurchasePrice.IsNegative() || p.SalePrice.IsNegative() {
		return apperror.NewValidation("prices must not be negative")
	}
	if err := types.CheckScale("purchasePrice", p.PurchasePrice); err != nil {
		return err
	}
	if err := types.CheckScale("salePrice", p.SalePrice); err != nil {
		return err
	}

	now := time.Now().UTC()
	if id.IsNil(p.ID) {
		p.ID = id.New()
	}
	p.Stock = 0
	p.IsActive = true
	p.CreatedAt = now
	p.UpdatedAt = now

	if err := l.repo.CreateProduct(ctx, p); err != nil {
		return fmt.Errorf("create product: %w", err)
	}
	return nil
}

// GetProduct returns a product by ID.
func (l *Ledger) GetProduct(ctx context.Context, productID id.ID) (*Product, error) {
	return l.repo.GetProduct(ctx, productID)
}

// ListProducts returns products matching filter.
func (l *Ledger) ListProducts(ctx context.Context, filter ProductFilter) ([]*Product, error) {
	return l.repo.ListProducts(ctx, filter)
}

// BelowMinimum lists active products whose stock is under min_stock.
func (l *Ledger) BelowMinimum(ctx context.Context) ([]*Product, error) {
	return l.repo.ListBelowMinimum(ctx)
}

// History returns the movements of a product, newest first.
func (l *Ledger) History(ctx context.Context, productID id.ID, filter MovementFilter) ([]Movement, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	return l.repo.ListMovements(ctx, productID, filter)
}

// VerifyReplay recomputes a product's balance from its ledger.
func (l *Ledger) VerifyReplay(ctx context.Context, productID id.ID) (ReplayResult, error) {
	p, err := l.repo.GetProduct(ctx, productID)
	if err != nil {
		return ReplayResult{}, err
	}
	total, err := l.repo.SumMovements(ctx, productID)
	if err != nil {
		return ReplayResult{}, fmt.Errorf("sum movements: %w", err)
	}

	res := ReplayResult{ProductID: productID, Stock: p.Stock, LedgerTotal: total}
	if !res.Consistent() {
		logger.Error(ctx, "stock diverged from ledger",
			"product_id", productID,
			"stock", p.Stock,
			"ledger_total", total,
		)
	}
	return res, nil
}
