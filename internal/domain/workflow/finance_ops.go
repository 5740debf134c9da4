package workflow

import (
	"context"
	"time"

	appctx "crm/internal/core/context"
	"crm/internal/core/id"
	"crm/internal/core/security"
	"crm/internal/domain/deal"
	"crm/internal/domain/inventory"
	"crm/internal/domain/payment"
	"crm/pkg/logger"
)

// RecordPayment appends a payment and reconciles the deal's payment fields
// in the same transaction.
func (s *Service) RecordPayment(ctx context.Context, dealID id.ID, in payment.Input) (*payment.Payment, *deal.Deal, error) {
	var recorded *payment.Payment
	d, err := s.mutateDeal(ctx, security.OpRecordPayment, dealID, func(ctx context.Context, d *deal.Deal, user *appctx.UserContext) error {
		in.ActorID = actorID(user)
		p, err := s.payments.RecordPayment(ctx, d, in)
		if err != nil {
			return err
		}
		recorded = p
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return recorded, d, nil
}

// CloseDay settles today's CLOSED deals. It returns nil when there is
// nothing to settle and no closing exists yet.
func (s *Service) CloseDay(ctx context.Context) (*payment.DailyClosing, error) {
	var closing *payment.DailyClosing
	err := s.run(ctx, security.OpCloseDay, func(ctx context.Context) error {
		c, err := s.payments.CloseDay(ctx, appctx.GetUserID(ctx))
		if err != nil {
			return err
		}
		closing = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	if closing != nil {
		s.recordAudit(ctx, "daily_closing", closing.ID.String(), security.OpCloseDay, nil, closing)
	}
	return closing, nil
}

// RecordMovement applies a manual stock correction outside any deal.
func (s *Service) RecordMovement(ctx context.Context, req inventory.MovementRequest) (*inventory.Movement, error) {
	var m *inventory.Movement
	err := s.run(ctx, security.OpRecordMovement, func(ctx context.Context) error {
		req.ActorID = appctx.GetUserID(ctx)
		out, err := s.ledger.RecordMovement(ctx, req)
		if err != nil {
			return err
		}
		m = out
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "manual stock movement",
		"product_id", m.ProductID,
		"type", m.Type,
		"quantity", m.Quantity,
	)
	s.recordAudit(ctx, "product", m.ProductID.String(), security.OpRecordMovement, nil, m)
	return m, nil
}

// CreateProduct adds a product to the catalogue with zero stock.
func (s *Service) CreateProduct(ctx context.Context, p *inventory.Product) (*inventory.Product, error) {
	err := s.run(ctx, security.OpCreateProduct, func(ctx context.Context) error {
		return s.ledger.CreateProduct(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, "product", p.ID.String(), security.OpCreateProduct, nil, p)
	return p, nil
}

// Closings lists daily closings in [from, to].
func (s *Service) Closings(ctx context.Context, from, to time.Time) ([]payment.DailyClosing, error) {
	if err := s.policy.Authorize(ctx, security.OpViewFinance); err != nil {
		return nil, err
	}
	return s.payments.Closings(ctx, from, to)
}

// ClientDebts aggregates open debt per client.
func (s *Service) ClientDebts(ctx context.Context) ([]payment.ClientDebt, error) {
	if err := s.policy.Authorize(ctx, security.OpViewFinance); err != nil {
		return nil, err
	}
	return s.payments.ClientDebts(ctx)
}

// ClientDiscipline reports a client's payment punctuality.
func (s *Service) ClientDiscipline(ctx context.Context, clientID id.ID) (payment.Discipline, error) {
	if err := s.policy.Authorize(ctx, security.OpViewFinance); err != nil {
		return payment.Discipline{}, err
	}
	return s.payments.ClientDiscipline(ctx, clientID)
}
