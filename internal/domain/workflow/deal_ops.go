package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"crm/internal/core/apperror"
	appctx "crm/internal/core/context"
	"crm/internal/core/id"
	"crm/internal/core/security"
	"crm/internal/core/types"
	"crm/internal/domain/deal"
	"crm/internal/domain/payment"
)

// NewItem is a product line to request.
type NewItem struct {
	ProductID    id.ID
	RequestedQty *int64
	Comment      string
}

// CreateDealInput describes a new deal.
type CreateDealInput struct {
	Title      string
	ClientID   id.ID
	ContractID *id.ID
	// ManagerID lets an admin open a deal on behalf of a manager. Defaults
	// to the caller.
	ManagerID   *id.ID
	PaymentType deal.PaymentType
	Discount    types.Money
	DueDate     *time.Time
	Terms       string
	Items       []NewItem
}

// ItemResponse is the warehouse answer for one item.
type ItemResponse struct {
	ItemID  id.ID
	Comment string
}

// ItemQuantity finalizes one item.
type ItemQuantity struct {
	ItemID id.ID
	Qty    int64
	Price  types.Money
}

// QuantitiesInput finalizes pricing and payment terms. Nil pointers keep the
// current values.
type QuantitiesInput struct {
	Items       []ItemQuantity
	Discount    *types.Money
	PaymentType deal.PaymentType
	// PaidAmount is the total prepaid so far.
	PaidAmount *types.Money
	DueDate    *time.Time
	Terms      *string
}

// CreateDeal opens a deal in status NEW.
func (s *Service) CreateDeal(ctx context.Context, in CreateDealInput) (*deal.Deal, error) {
	var created *deal.Deal
	err := s.run(ctx, security.OpCreateDeal, func(ctx context.Context) error {
		user := appctx.GetUser(ctx)
		d, err := s.buildDeal(ctx, user, in)
		if err != nil {
			return err
		}
		d.MarkCreated(actorID(user))
		if err := s.deals.Create(ctx, d); err != nil {
			return fmt.Errorf("create deal: %w", err)
		}
		if err := s.deals.AppendHistory(ctx, d.DrainChanges()); err != nil {
			return fmt.Errorf("append history: %w", err)
		}
		created = d
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, "deal", created.ID.String(), security.OpCreateDeal, nil, created)
	return created, nil
}

func (s *Service) buildDeal(ctx context.Context, user *appctx.UserContext, in CreateDealInput) (*deal.Deal, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, apperror.NewValidation("title is required").WithDetail("field", "title")
	}
	if len(in.Items) == 0 {
		return nil, apperror.NewValidation("a deal needs at least one item").WithDetail("field", "items")
	}
	paymentType := in.PaymentType
	if paymentType == "" {
		paymentType = deal.PaymentFull
	}
	if !paymentType.Valid() {
		return nil, apperror.NewValidation("unknown payment type").WithDetail("paymentType", string(paymentType))
	}
	if in.Discount.IsNegative() {
		return nil, apperror.NewValidation("discount must not be negative").WithDetail("field", "discount")
	}
	if err := types.CheckScale("discount", in.Discount); err != nil {
		return nil, err
	}

	managerID, err := s.resolveManager(ctx, user, in.ManagerID)
	if err != nil {
		return nil, err
	}
	if err := s.resolver.ValidateDealParties(ctx, in.ClientID, in.ContractID); err != nil {
		return nil, err
	}
	if err := s.validateProducts(ctx, in.Items); err != nil {
		return nil, err
	}

	d := deal.NewDeal(title, in.ClientID, managerID, paymentType, in.Discount)
	d.ContractID = in.ContractID
	d.DueDate = in.DueDate
	d.Terms = in.Terms
	d.CreatedBy = actorID(user)
	for _, it := range in.Items {
		d.AddItem(it.ProductID, it.RequestedQty, it.Comment)
	}
	return d, nil
}

func (s *Service) resolveManager(ctx context.Context, user *appctx.UserContext, requested *id.ID) (id.ID, error) {
	if requested != nil && user != nil && security.Role(user.Role).IsAdmin() {
		if _, err := s.resolver.ValidateManager(ctx, *requested); err != nil {
			return id.Nil(), err
		}
		return *requested, nil
	}
	managerID, err := id.Parse(actorID(user))
	if err != nil {
		return id.Nil(), apperror.NewValidation("caller id is not a valid identifier").WithCause(err)
	}
	return managerID, nil
}

func (s *Service) validateProducts(ctx context.Context, items []NewItem) error {
	ids := make([]id.ID, 0, len(items))
	for _, it := range items {
		if it.RequestedQty != nil && *it.RequestedQty <= 0 {
			return apperror.NewValidation("requested quantity must be positive").
				WithDetail("productId", it.ProductID.String())
		}
		ids = append(ids, it.ProductID)
	}
	found, err := s.products.GetProducts(ctx, ids)
	if err != nil {
		return fmt.Errorf("get products: %w", err)
	}
	for _, pid := range ids {
		p, ok := found[pid]
		if !ok {
			return apperror.NewValidation("unknown product").WithDetail("productId", pid.String())
		}
		if !p.IsActive {
			return apperror.NewValidation("product is inactive").WithDetail("productId", pid.String())
		}
	}
	return nil
}

// StartWork moves a NEW deal to IN_PROGRESS.
func (s *Service) StartWork(ctx context.Context, dealID id.ID) (*deal.Deal, error) {
	return s.mutateDeal(ctx, security.OpStartWork, dealID, func(_ context.Context, d *deal.Deal, user *appctx.UserContext) error {
		return d.Advance(security.OpStartWork, actorID(user), "")
	})
}

// RequestStock asks the warehouse to confirm availability.
func (s *Service) RequestStock(ctx context.Context, dealID id.ID, comment string) (*deal.Deal, error) {
	return s.mutateDeal(ctx, security.OpRequestStock, dealID, func(_ context.Context, d *deal.Deal, user *appctx.UserContext) error {
		return d.Advance(security.OpRequestStock, actorID(user), comment)
	})
}

// SubmitWarehouseResponse attaches warehouse comments to the named items. The
// deal becomes STOCK_CONFIRMED once every item has been answered.
func (s *Service) SubmitWarehouseResponse(ctx context.Context, dealID id.ID, responses []ItemResponse) (*deal.Deal, error) {
	op := security.OpWarehouseResponse
	return s.mutateDeal(ctx, op, dealID, func(ctx context.Context, d *deal.Deal, user *appctx.UserContext) error {
		if err := d.Guard(op); err != nil {
			return err
		}
		if len(responses) == 0 {
			return apperror.NewValidation("at least one item response is required").WithDetail("field", "items")
		}

		now := time.Now().UTC()
		changed := make([]deal.Item, 0, len(responses))
		for _, r := range responses {
			it, err := d.Item(r.ItemID)
			if err != nil {
				return err
			}
			it.WarehouseComment = r.Comment
			it.WarehouseConfirmedAt = &now
			changed = append(changed, *it)
		}
		if err := s.deals.UpdateItems(ctx, changed); err != nil {
			return fmt.Errorf("update items: %w", err)
		}

		to := deal.StatusWaitingStockConfirmation
		if d.AllItemsConfirmed() {
			to = deal.StatusStockConfirmed
		}
		return d.TransitionTo(op, to, actorID(user), "")
	})
}

// SetItemQuantities finalizes quantities, prices and payment terms. The deal
// stays STOCK_CONFIRMED and enters the finance queue.
func (s *Service) SetItemQuantities(ctx context.Context, dealID id.ID, in QuantitiesInput) (*deal.Deal, error) {
	op := security.OpSetItemQuantities
	return s.mutateDeal(ctx, op, dealID, func(ctx context.Context, d *deal.Deal, user *appctx.UserContext) error {
		if err := d.EnsureItemsEditable(op); err != nil {
			return err
		}

		changed := make([]deal.Item, 0, len(in.Items))
		for _, q := range in.Items {
			it, err := d.Item(q.ItemID)
			if err != nil {
				return err
			}
			if q.Qty <= 0 {
				return apperror.NewValidation("quantity must be positive").WithDetail("itemId", q.ItemID.String())
			}
			if q.Price.IsNegative() {
				return apperror.NewValidation("price must not be negative").WithDetail("itemId", q.ItemID.String())
			}
			if !types.ValidScale(q.Price) {
				return apperror.NewValidation("price has more than 2 decimal places").
					WithDetail("itemId", q.ItemID.String()).
					WithDetail("value", q.Price.String())
			}
			qty, price := q.Qty, q.Price
			it.RequestedQty = &qty
			it.Price = &price
			changed = append(changed, *it)
		}

		if in.Discount != nil {
			if err := types.CheckScale("discount", *in.Discount); err != nil {
				return err
			}
			d.Discount = *in.Discount
		}
		if in.PaymentType != "" {
			if !in.PaymentType.Valid() {
				return apperror.NewValidation("unknown payment type").WithDetail("paymentType", string(in.PaymentType))
			}
			d.PaymentType = in.PaymentType
		}
		if in.DueDate != nil {
			d.DueDate = in.DueDate
		}
		if in.Terms != nil {
			d.Terms = *in.Terms
		}
		if d.PaymentType == deal.PaymentDebt && d.DueDate == nil {
			return apperror.NewValidation("due date is required for debt deals").WithDetail("field", "dueDate")
		}
		if err := d.RecalculateAmount(); err != nil {
			return err
		}

		if err := s.deals.UpdateItems(ctx, changed); err != nil {
			return fmt.Errorf("update items: %w", err)
		}
		if in.PaidAmount != nil {
			if err := s.applyPrepayment(ctx, d, *in.PaidAmount, actorID(user)); err != nil {
				return err
			}
		}

		d.QuantitiesSet = true
		return d.TransitionTo(op, d.Status, actorID(user), "")
	})
}

// applyPrepayment tops the deal's payments up to paid. Payments are
// immutable, so a lower total is rejected.
func (s *Service) applyPrepayment(ctx context.Context, d *deal.Deal, paid types.Money, actor string) error {
	if paid.IsNegative() {
		return apperror.NewValidation("paid amount must not be negative").WithDetail("field", "paidAmount")
	}
	if err := types.CheckScale("paidAmount", paid); err != nil {
		return err
	}
	current := d.PaidAmount
	switch {
	case paid.LessThan(current):
		return apperror.NewValidation("paid amount is below payments already recorded").
			WithDetail("paidAmount", paid.String()).
			WithDetail("recorded", current.String())
	case paid.Equal(current):
		return nil
	}
	_, err := s.payments.RecordPayment(ctx, d, payment.Input{
		Amount:  paid.Sub(current),
		Method:  "prepayment",
		ActorID: actor,
	})
	return err
}

// ApproveFinance accepts a deal whose quantities are finalized.
func (s *Service) ApproveFinance(ctx context.Context, dealID id.ID) (*deal.Deal, error) {
	op := security.OpApproveFinance
	return s.mutateDeal(ctx, op, dealID, func(_ context.Context, d *deal.Deal, user *appctx.UserContext) error {
		if err := d.Guard(op); err != nil {
			return err
		}
		if !d.QuantitiesSet {
			return apperror.NewValidation("quantities and prices are not finalized").
				WithDetail("deal_id", d.ID.String())
		}
		return d.Advance(op, actorID(user), "")
	})
}

// RejectFinance rejects a deal at the finance stage. The manager may reopen it.
func (s *Service) RejectFinance(ctx context.Context, dealID id.ID, reason string) (*deal.Deal, error) {
	return s.reject(ctx, security.OpRejectFinance, dealID, reason, deal.RejectedByFinance)
}

// Reject is the admin rejection available before shipment. It is final.
func (s *Service) Reject(ctx context.Context, dealID id.ID, reason string) (*deal.Deal, error) {
	return s.reject(ctx, security.OpReject, dealID, reason, deal.RejectedByAdmin)
}

func (s *Service) reject(ctx context.Context, op security.Operation, dealID id.ID, reason string, stage deal.RejectionStage) (*deal.Deal, error) {
	return s.mutateDeal(ctx, op, dealID, func(_ context.Context, d *deal.Deal, user *appctx.UserContext) error {
		if err := d.Guard(op); err != nil {
			return err
		}
		if err := requireReason(reason); err != nil {
			return err
		}
		if err := d.Advance(op, actorID(user), reason); err != nil {
			return err
		}
		d.RejectionReason = &reason
		d.RejectionStage = &stage
		d.HoldReason = nil
		return nil
	})
}

// Reopen returns a finance-rejected deal to IN_PROGRESS with items editable.
func (s *Service) Reopen(ctx context.Context, dealID id.ID) (*deal.Deal, error) {
	op := security.OpReopen
	return s.mutateDeal(ctx, op, dealID, func(ctx context.Context, d *deal.Deal, user *appctx.UserContext) error {
		if err := d.Guard(op); err != nil {
			return err
		}
		if d.RejectionStage == nil || *d.RejectionStage != deal.RejectedByFinance {
			return apperror.NewInvalidTransition(string(op), string(d.Status), string(deal.StatusInProgress)).
				WithDetail("reason", "only finance rejections can be reopened")
		}
		if err := d.Advance(op, actorID(user), ""); err != nil {
			return err
		}
		if changed := d.ResetWarehouseConfirmations(); len(changed) > 0 {
			if err := s.deals.UpdateItems(ctx, changed); err != nil {
				return fmt.Errorf("update items: %w", err)
			}
		}
		d.QuantitiesSet = false
		d.RejectionReason = nil
		d.RejectionStage = nil
		return nil
	})
}

// ApproveAdmin approves a deal and makes it shippable in one step.
func (s *Service) ApproveAdmin(ctx context.Context, dealID id.ID) (*deal.Deal, error) {
	op := security.OpApproveAdmin
	return s.mutateDeal(ctx, op, dealID, func(_ context.Context, d *deal.Deal, user *appctx.UserContext) error {
		if err := d.TransitionTo(op, deal.StatusAdminApproved, actorID(user), ""); err != nil {
			return err
		}
		return d.TransitionTo(op, deal.StatusReadyForShipment, actorID(user), "")
	})
}

// CloseDeal completes a shipped deal. Closed deals feed the daily closing.
func (s *Service) CloseDeal(ctx context.Context, dealID id.ID) (*deal.Deal, error) {
	return s.mutateDeal(ctx, security.OpCloseDeal, dealID, func(_ context.Context, d *deal.Deal, user *appctx.UserContext) error {
		return d.Advance(security.OpCloseDeal, actorID(user), "")
	})
}

// Archive hides a deal from default listings without changing its status.
func (s *Service) Archive(ctx context.Context, dealID id.ID) (*deal.Deal, error) {
	return s.mutateDeal(ctx, security.OpArchive, dealID, func(_ context.Context, d *deal.Deal, _ *appctx.UserContext) error {
		if err := d.Guard(security.OpArchive); err != nil {
			return err
		}
		d.IsArchived = true
		return nil
	})
}

// Reassign hands a deal to another manager.
func (s *Service) Reassign(ctx context.Context, dealID, managerID id.ID) (*deal.Deal, error) {
	return s.mutateDeal(ctx, security.OpReassign, dealID, func(ctx context.Context, d *deal.Deal, _ *appctx.UserContext) error {
		if err := d.Guard(security.OpReassign); err != nil {
			return err
		}
		if _, err := s.resolver.ValidateManager(ctx, managerID); err != nil {
			return err
		}
		d.ManagerID = managerID
		return nil
	})
}

// AddItem appends a line while items are still editable.
func (s *Service) AddItem(ctx context.Context, dealID id.ID, in NewItem) (*deal.Deal, error) {
	return s.mutateDeal(ctx, security.OpAddItem, dealID, func(ctx context.Context, d *deal.Deal, _ *appctx.UserContext) error {
		if err := d.EnsureItemsEditable(security.OpAddItem); err != nil {
			return err
		}
		if err := s.validateProducts(ctx, []NewItem{in}); err != nil {
			return err
		}
		it := d.AddItem(in.ProductID, in.RequestedQty, in.Comment)
		if err := s.deals.InsertItems(ctx, []deal.Item{it}); err != nil {
			return fmt.Errorf("insert item: %w", err)
		}
		return nil
	})
}

// RemoveItem drops a line while items are still editable. The last item
// cannot be removed.
func (s *Service) RemoveItem(ctx context.Context, dealID, itemID id.ID) (*deal.Deal, error) {
	return s.mutateDeal(ctx, security.OpRemoveItem, dealID, func(ctx context.Context, d *deal.Deal, _ *appctx.UserContext) error {
		if err := d.EnsureItemsEditable(security.OpRemoveItem); err != nil {
			return err
		}
		if err := d.RemoveItem(itemID); err != nil {
			return err
		}
		if len(d.Items) == 0 {
			return apperror.NewValidation("a deal needs at least one item").WithDetail("itemId", itemID.String())
		}
		if err := s.deals.DeleteItem(ctx, d.ID, itemID); err != nil {
			return fmt.Errorf("delete item: %w", err)
		}
		return nil
	})
}
