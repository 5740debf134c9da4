package workflow

import (
	"context"

	appctx "crm/internal/core/context"
	"crm/internal/core/id"
	"crm/internal/core/security"
	"crm/internal/domain/deal"
	"crm/internal/domain/inventory"
	"crm/internal/domain/payment"
)

// GetDeal returns a deal with its items. Managers only see their own.
func (s *Service) GetDeal(ctx context.Context, dealID id.ID) (*deal.Deal, error) {
	if err := s.policy.Authorize(ctx, security.OpViewDeal); err != nil {
		return nil, err
	}
	d, err := s.deals.GetByID(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if err := checkOwnership(appctx.GetUser(ctx), d); err != nil {
		return nil, err
	}
	return d, nil
}

// ListDeals lists deals. Manager callers are scoped to their own deals.
func (s *Service) ListDeals(ctx context.Context, filter deal.ListFilter) ([]*deal.Deal, error) {
	if err := s.policy.Authorize(ctx, security.OpViewDeal); err != nil {
		return nil, err
	}
	if user := appctx.GetUser(ctx); security.Role(user.Role) == security.RoleManager {
		own, err := id.Parse(user.UserID)
		if err != nil {
			return []*deal.Deal{}, nil
		}
		filter.ManagerID = &own
	}
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	return s.deals.List(ctx, filter)
}

// FinanceQueue lists deals waiting for finance review.
func (s *Service) FinanceQueue(ctx context.Context) ([]*deal.Deal, error) {
	if err := s.policy.Authorize(ctx, security.OpViewFinance); err != nil {
		return nil, err
	}
	return s.deals.List(ctx, deal.ListFilter{FinanceQueue: true, Limit: 200})
}

// DealHistory returns the status history of a deal, oldest first.
func (s *Service) DealHistory(ctx context.Context, dealID id.ID) ([]deal.StatusChange, error) {
	if _, err := s.GetDeal(ctx, dealID); err != nil {
		return nil, err
	}
	return s.deals.History(ctx, dealID)
}

// DealShipment returns the shipment of a shipped deal.
func (s *Service) DealShipment(ctx context.Context, dealID id.ID) (*deal.Shipment, error) {
	if _, err := s.GetDeal(ctx, dealID); err != nil {
		return nil, err
	}
	return s.deals.GetShipment(ctx, dealID)
}

// DealPayments lists the payments of a deal.
func (s *Service) DealPayments(ctx context.Context, dealID id.ID) ([]payment.Payment, error) {
	if _, err := s.GetDeal(ctx, dealID); err != nil {
		return nil, err
	}
	return s.payments.Payments(ctx, dealID)
}

// Products lists catalogue products.
func (s *Service) Products(ctx context.Context, filter inventory.ProductFilter) ([]*inventory.Product, error) {
	if err := s.policy.Authorize(ctx, security.OpViewInventory); err != nil {
		return nil, err
	}
	return s.ledger.ListProducts(ctx, filter)
}

// Product returns one product.
func (s *Service) Product(ctx context.Context, productID id.ID) (*inventory.Product, error) {
	if err := s.policy.Authorize(ctx, security.OpViewInventory); err != nil {
		return nil, err
	}
	return s.ledger.GetProduct(ctx, productID)
}

// BelowMinimum lists products under their reorder threshold.
func (s *Service) BelowMinimum(ctx context.Context) ([]*inventory.Product, error) {
	if err := s.policy.Authorize(ctx, security.OpViewInventory); err != nil {
		return nil, err
	}
	return s.ledger.BelowMinimum(ctx)
}

// ProductMovements returns the ledger of a product, newest first.
func (s *Service) ProductMovements(ctx context.Context, productID id.ID, filter inventory.MovementFilter) ([]inventory.Movement, error) {
	if err := s.policy.Authorize(ctx, security.OpViewInventory); err != nil {
		return nil, err
	}
	return s.ledger.History(ctx, productID, filter)
}

// VerifyReplay compares a product's stock with its replayed ledger.
func (s *Service) VerifyReplay(ctx context.Context, productID id.ID) (inventory.ReplayResult, error) {
	if err := s.policy.Authorize(ctx, security.OpViewInventory); err != nil {
		return inventory.ReplayResult{}, err
	}
	return s.ledger.VerifyReplay(ctx, productID)
}
