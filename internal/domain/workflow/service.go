// Package workflow is the single entry point for every deal, inventory and
// payment operation. Each call is authorized once, runs in one serializable
// transaction and is audited after commit.
package workflow

import (
	"context"
	"fmt"
	"time"

	"crm/internal/core/apperror"
	appctx "crm/internal/core/context"
	"crm/internal/core/id"
	"crm/internal/core/security"
	"crm/internal/core/tx"
	"crm/internal/domain/audit"
	"crm/internal/domain/deal"
	"crm/internal/domain/directory"
	"crm/internal/domain/inventory"
	"crm/internal/domain/payment"
	"crm/pkg/logger"
	"crm/pkg/metrics"
	"crm/pkg/numerator"
)

// Numerator allocates document numbers inside the current transaction.
type Numerator interface {
	GetNextNumber(ctx context.Context, cfg numerator.Config, period time.Time) (string, error)
}

// Deps groups the collaborators of Service.
type Deps struct {
	Tx        tx.Manager
	Policy    *security.Policy
	Deals     deal.Repository
	Inventory inventory.Repository
	Payments  payment.Repository
	Directory directory.Directory
	Audit     audit.Recorder
	Numerator Numerator
	Metrics   *metrics.Workflow
}

// Service orchestrates the deal workflow.
type Service struct {
	tx        tx.Manager
	policy    *security.Policy
	deals     deal.Repository
	ledger    *inventory.Ledger
	products  inventory.Repository
	payments  *payment.Reconciler
	resolver  *directory.Resolver
	audit     audit.Recorder
	numerator Numerator
	metrics   *metrics.Workflow
}

// NewService wires the orchestrator. Audit and Metrics may be nil.
func NewService(d Deps) *Service {
	policy := d.Policy
	if policy == nil {
		policy = security.NewDefaultPolicy()
	}
	return &Service{
		tx:        d.Tx,
		policy:    policy,
		deals:     d.Deals,
		ledger:    inventory.NewLedger(d.Inventory),
		products:  d.Inventory,
		payments:  payment.NewReconciler(d.Payments),
		resolver:  directory.NewResolver(d.Directory),
		audit:     d.Audit,
		numerator: d.Numerator,
		metrics:   d.Metrics,
	}
}

// dealMutation changes d in place inside the transaction.
type dealMutation func(ctx context.Context, d *deal.Deal, user *appctx.UserContext) error

// mutateDeal runs fn against the locked deal and persists the result.
func (s *Service) mutateDeal(ctx context.Context, op security.Operation, dealID id.ID, fn dealMutation) (*deal.Deal, error) {
	started := time.Now()
	d, err := s.doMutateDeal(ctx, op, dealID, fn)
	s.metrics.ObserveOperation(string(op), started, err)
	return d, err
}

func (s *Service) doMutateDeal(ctx context.Context, op security.Operation, dealID id.ID, fn dealMutation) (*deal.Deal, error) {
	if err := s.policy.Authorize(ctx, op); err != nil {
		return nil, err
	}
	user := appctx.GetUser(ctx)

	var before, after *deal.Deal
	err := s.tx.RunSerializable(ctx, func(ctx context.Context) error {
		d, err := s.deals.GetForUpdate(ctx, dealID)
		if err != nil {
			return err
		}
		if err := checkOwnership(user, d); err != nil {
			return err
		}
		before = d.Clone()
		if err := fn(ctx, d, user); err != nil {
			return err
		}
		if err := s.saveDeal(ctx, d); err != nil {
			return err
		}
		after = d
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "deal operation completed",
		"operation", op,
		"deal_id", dealID,
		"from", before.Status,
		"to", after.Status,
	)
	s.recordAudit(ctx, "deal", dealID.String(), op, before, after)
	return after, nil
}

func (s *Service) saveDeal(ctx context.Context, d *deal.Deal) error {
	if err := s.deals.Update(ctx, d); err != nil {
		return fmt.Errorf("update deal: %w", err)
	}
	if changes := d.DrainChanges(); len(changes) > 0 {
		if err := s.deals.AppendHistory(ctx, changes); err != nil {
			return fmt.Errorf("append history: %w", err)
		}
	}
	return nil
}

// checkOwnership restricts MANAGER callers to their own deals.
func checkOwnership(user *appctx.UserContext, d *deal.Deal) error {
	if user == nil || security.Role(user.Role) != security.RoleManager {
		return nil
	}
	if d.ManagerID.String() != user.UserID {
		return apperror.NewForbidden("deal belongs to another manager").
			WithDetail("deal_id", d.ID.String())
	}
	return nil
}

// recordAudit hands the entry to the recorder. Failures never reach the caller.
func (s *Service) recordAudit(ctx context.Context, entityType, entityID string, op security.Operation, before, after any) {
	if s.audit == nil {
		return
	}
	entry := audit.NewEntry(ctx, entityType, entityID, string(op), before, after)
	if err := s.audit.Record(ctx, entry); err != nil {
		s.metrics.IncAuditFailure()
		logger.Warn(ctx, "audit record failed",
			"operation", op,
			"entity_type", entityType,
			"entity_id", entityID,
			"error", err,
		)
	}
}

// run authorizes op and executes fn in a serializable transaction, with
// metrics. Used by operations that do not load a deal.
func (s *Service) run(ctx context.Context, op security.Operation, fn func(ctx context.Context) error) error {
	started := time.Now()
	err := s.policy.Authorize(ctx, op)
	if err == nil {
		err = s.tx.RunSerializable(ctx, fn)
	}
	s.metrics.ObserveOperation(string(op), started, err)
	return err
}

func actorID(user *appctx.UserContext) string {
	if user == nil {
		return ""
	}
	return user.UserID
}

func requireReason(reason string) error {
	if reason == "" {
		return apperror.NewValidation("reason is required").WithDetail("field", "reason")
	}
	return nil
}
