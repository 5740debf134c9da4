package workflow_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm/internal/core/apperror"
	appctx "crm/internal/core/context"
	"crm/internal/core/id"
	"crm/internal/core/security"
	"crm/internal/core/types"
	"crm/internal/domain/deal"
	"crm/internal/domain/directory"
	"crm/internal/domain/inventory"
	"crm/internal/domain/payment"
	"crm/internal/domain/workflow"
	"crm/internal/infrastructure/storage/memory"
	"crm/pkg/metrics"
)

type fixture struct {
	store    *memory.Store
	svc      *workflow.Service
	registry *prometheus.Registry

	manager  id.ID
	other    id.ID
	client   id.ID
	widget   id.ID
	gadget   id.ID
	inactive id.ID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	reg := prometheus.NewRegistry()
	f := &fixture{
		store:    store,
		registry: reg,
		manager:  id.New(),
		other:    id.New(),
		client:   id.New(),
		widget:   id.New(),
		gadget:   id.New(),
		inactive: id.New(),
	}

	store.PutUser(directory.User{ID: f.manager, Email: "m1@example.com", Role: string(security.RoleManager), IsActive: true})
	store.PutUser(directory.User{ID: f.other, Email: "m2@example.com", Role: string(security.RoleManager), IsActive: true})
	store.PutClient(directory.Client{ID: f.client, Name: "Acme", IsActive: true})
	store.PutProduct(inventory.Product{ID: f.widget, SKU: "W-1", Name: "Widget", Stock: 20, IsActive: true})
	store.PutProduct(inventory.Product{ID: f.gadget, SKU: "G-1", Name: "Gadget", Stock: 10, IsActive: true})
	store.PutProduct(inventory.Product{ID: f.inactive, SKU: "X-1", Name: "Retired", Stock: 10})

	f.svc = workflow.NewService(workflow.Deps{
		Tx:        store,
		Deals:     store.Deals(),
		Inventory: store.Inventory(),
		Payments:  store.Payments(),
		Directory: store,
		Audit:     store,
		Numerator: store,
		Metrics:   metrics.NewWorkflow(reg),
	})
	return f
}

func as(role security.Role, userID id.ID) context.Context {
	return appctx.WithUser(context.Background(), &appctx.UserContext{
		UserID: userID.String(),
		Role:   string(role),
	})
}

func (f *fixture) managerCtx() context.Context { return as(security.RoleManager, f.manager) }
func (f *fixture) adminCtx() context.Context   { return as(security.RoleAdmin, id.New()) }
func (f *fixture) financeCtx() context.Context { return as(security.RoleAccountant, id.New()) }
func (f *fixture) warehouseCtx() context.Context {
	return as(security.RoleWarehouseManager, id.New())
}

func qty(v int64) *int64 { return &v }

func money(s string) *types.Money {
	m := types.MustMoney(s)
	return &m
}

func (f *fixture) createDeal(t *testing.T) *deal.Deal {
	t.Helper()
	d, err := f.svc.CreateDeal(f.managerCtx(), workflow.CreateDealInput{
		Title:       "Spring order",
		ClientID:    f.client,
		PaymentType: deal.PaymentPartial,
		Items: []workflow.NewItem{
			{ProductID: f.widget, RequestedQty: qty(10)},
			{ProductID: f.gadget, RequestedQty: qty(5)},
		},
	})
	require.NoError(t, err)
	return d
}

// confirm drives a new deal to STOCK_CONFIRMED with quantities set to
// 10 x 50 and 5 x 30 minus a discount of 20.
func (f *fixture) confirm(t *testing.T, d *deal.Deal, gadgetQty int64) *deal.Deal {
	t.Helper()
	ctx := f.managerCtx()
	_, err := f.svc.StartWork(ctx, d.ID)
	require.NoError(t, err)
	_, err = f.svc.RequestStock(ctx, d.ID, "please check")
	require.NoError(t, err)

	d, err = f.svc.SubmitWarehouseResponse(f.warehouseCtx(), d.ID, []workflow.ItemResponse{
		{ItemID: d.Items[0].ID, Comment: "in stock"},
		{ItemID: d.Items[1].ID, Comment: "in stock"},
	})
	require.NoError(t, err)
	require.Equal(t, deal.StatusStockConfirmed, d.Status)

	d, err = f.svc.SetItemQuantities(ctx, d.ID, workflow.QuantitiesInput{
		Items: []workflow.ItemQuantity{
			{ItemID: d.Items[0].ID, Qty: 10, Price: types.MustMoney("50")},
			{ItemID: d.Items[1].ID, Qty: gadgetQty, Price: types.MustMoney("30")},
		},
		Discount: money("20"),
	})
	require.NoError(t, err)
	return d
}

func (f *fixture) ready(t *testing.T, gadgetQty int64) *deal.Deal {
	t.Helper()
	d := f.confirm(t, f.createDeal(t), gadgetQty)
	_, err := f.svc.ApproveFinance(f.financeCtx(), d.ID)
	require.NoError(t, err)
	d, err = f.svc.ApproveAdmin(f.adminCtx(), d.ID)
	require.NoError(t, err)
	require.Equal(t, deal.StatusReadyForShipment, d.Status)
	return d
}

func shipment() workflow.ShipmentInput {
	return workflow.ShipmentInput{VehicleType: "truck", VehicleNumber: "AB123", DriverName: "Driver"}
}

func stockOf(t *testing.T, f *fixture, pid id.ID) int64 {
	t.Helper()
	p, err := f.store.Inventory().GetProduct(context.Background(), pid)
	require.NoError(t, err)
	return p.Stock
}

func TestHappyPathFromCreationToDailyClosing(t *testing.T) {
	f := newFixture(t)
	d := f.ready(t, 5)
	assert.True(t, types.MustMoney("630").Equal(d.Amount))

	d, err := f.svc.SubmitShipment(f.warehouseCtx(), d.ID, shipment())
	require.NoError(t, err)
	assert.Equal(t, deal.StatusShipped, d.Status)
	assert.Equal(t, int64(10), stockOf(t, f, f.widget))
	assert.Equal(t, int64(5), stockOf(t, f, f.gadget))

	sh, err := f.svc.DealShipment(f.managerCtx(), d.ID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sh.DeliveryNoteNumber, "DN"))

	_, d, err = f.svc.RecordPayment(f.financeCtx(), d.ID, payment.Input{Amount: types.MustMoney("300")})
	require.NoError(t, err)
	assert.Equal(t, deal.PaymentPartiallyPaid, d.PaymentStatus)
	assert.True(t, types.MustMoney("330").Equal(d.Debt()))

	_, d, err = f.svc.RecordPayment(f.financeCtx(), d.ID, payment.Input{Amount: types.MustMoney("330")})
	require.NoError(t, err)
	assert.Equal(t, deal.PaymentPaid, d.PaymentStatus)
	assert.True(t, d.Debt().IsZero())

	d, err = f.svc.CloseDeal(f.managerCtx(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, deal.StatusClosed, d.Status)

	closing, err := f.svc.CloseDay(f.financeCtx())
	require.NoError(t, err)
	require.NotNil(t, closing)
	assert.Equal(t, 1, closing.ClosedDealsCount)
	assert.True(t, types.MustMoney("630").Equal(closing.TotalAmount))

	history, err := f.svc.DealHistory(f.managerCtx(), d.ID)
	require.NoError(t, err)
	var path []deal.Status
	for _, h := range history {
		path = append(path, h.To)
	}
	assert.Equal(t, []deal.Status{
		deal.StatusNew,
		deal.StatusInProgress,
		deal.StatusWaitingStockConfirmation,
		deal.StatusStockConfirmed,
		deal.StatusFinanceApproved,
		deal.StatusAdminApproved,
		deal.StatusReadyForShipment,
		deal.StatusShipped,
		deal.StatusClosed,
	}, path)

	replay, err := f.svc.VerifyReplay(f.managerCtx(), f.widget)
	require.NoError(t, err)
	assert.Equal(t, int64(-10), replay.LedgerTotal)
	assert.NotEmpty(t, f.store.AuditEntries())
}

func TestShipmentWithInsufficientStockChangesNothing(t *testing.T) {
	f := newFixture(t)
	d := f.ready(t, 12)

	_, err := f.svc.SubmitShipment(f.warehouseCtx(), d.ID, shipment())
	require.Error(t, err)
	assert.True(t, apperror.IsInsufficientStock(err))

	got, err := f.svc.GetDeal(f.managerCtx(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, deal.StatusReadyForShipment, got.Status)
	assert.Equal(t, int64(20), stockOf(t, f, f.widget))
	assert.Equal(t, int64(10), stockOf(t, f, f.gadget))
	assert.Empty(t, f.store.Inventory().AllMovements())

	_, err = f.svc.DealShipment(f.managerCtx(), d.ID)
	assert.True(t, apperror.IsNotFound(err))
}

func TestShipmentRequiresVehicleAndDriver(t *testing.T) {
	f := newFixture(t)
	d := f.ready(t, 5)

	in := shipment()
	in.DriverName = ""
	_, err := f.svc.SubmitShipment(f.warehouseCtx(), d.ID, in)
	assert.True(t, apperror.IsValidation(err))
	assert.Equal(t, int64(20), stockOf(t, f, f.widget))
}

func TestHoldBlocksShipmentUntilReleased(t *testing.T) {
	f := newFixture(t)
	d := f.ready(t, 5)
	wh := f.warehouseCtx()

	_, err := f.svc.HoldShipment(wh, d.ID, "")
	assert.True(t, apperror.IsValidation(err))

	d, err = f.svc.HoldShipment(wh, d.ID, "truck broke down")
	require.NoError(t, err)
	assert.Equal(t, deal.StatusShipmentOnHold, d.Status)
	require.NotNil(t, d.HoldReason)

	_, err = f.svc.SubmitShipment(wh, d.ID, shipment())
	assert.True(t, apperror.IsInvalidTransition(err))

	d, err = f.svc.ReleaseShipmentHold(wh, d.ID)
	require.NoError(t, err)
	assert.Equal(t, deal.StatusReadyForShipment, d.Status)
	assert.Nil(t, d.HoldReason)

	history, err := f.svc.DealHistory(f.managerCtx(), d.ID)
	require.NoError(t, err)
	var reasons []string
	for _, h := range history {
		if h.Operation == string(security.OpHoldShipment) {
			reasons = append(reasons, h.Reason)
		}
	}
	assert.Equal(t, []string{"truck broke down"}, reasons)
}

func TestForbiddenRoleLeavesDealUntouched(t *testing.T) {
	f := newFixture(t)
	d := f.confirm(t, f.createDeal(t), 5)

	_, err := f.svc.ApproveFinance(as(security.RoleWarehouse, id.New()), d.ID)
	assert.True(t, apperror.IsForbidden(err))

	_, err = f.svc.ApproveFinance(context.Background(), d.ID)
	assert.True(t, apperror.HasCode(err, apperror.CodeUnauthorized))

	got, err := f.svc.GetDeal(f.managerCtx(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, deal.StatusStockConfirmed, got.Status)
}

func TestManagersOnlyTouchTheirOwnDeals(t *testing.T) {
	f := newFixture(t)
	d := f.createDeal(t)
	otherCtx := as(security.RoleManager, f.other)

	_, err := f.svc.StartWork(otherCtx, d.ID)
	assert.True(t, apperror.IsForbidden(err))

	_, err = f.svc.GetDeal(otherCtx, d.ID)
	assert.True(t, apperror.IsForbidden(err))

	list, err := f.svc.ListDeals(otherCtx, deal.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = f.svc.ListDeals(f.adminCtx(), deal.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = f.svc.Reassign(f.adminCtx(), d.ID, f.other)
	require.NoError(t, err)
	_, err = f.svc.StartWork(otherCtx, d.ID)
	require.NoError(t, err)
}

func TestAuditFailureDoesNotFailOperation(t *testing.T) {
	f := newFixture(t)
	d := f.createDeal(t)
	f.store.FailAudit(errors.New("audit sink down"))

	d, err := f.svc.StartWork(f.managerCtx(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, deal.StatusInProgress, d.Status)

	expected := `
# HELP crm_audit_record_failures_total Audit entries that could not be recorded.
# TYPE crm_audit_record_failures_total counter
crm_audit_record_failures_total 1
`
	assert.NoError(t, testutil.GatherAndCompare(f.registry, strings.NewReader(expected), "crm_audit_record_failures_total"))
}

func TestInvalidTransitionIsCountedAndReported(t *testing.T) {
	f := newFixture(t)
	d := f.createDeal(t)

	_, err := f.svc.CloseDeal(f.managerCtx(), d.ID)
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeInvalidTransition, appErr.Code)
	assert.Equal(t, string(deal.StatusNew), appErr.Details["from"])
}

func TestReopenOnlyAfterFinanceRejection(t *testing.T) {
	f := newFixture(t)

	d := f.confirm(t, f.createDeal(t), 5)
	_, err := f.svc.RejectFinance(f.financeCtx(), d.ID, "")
	assert.True(t, apperror.IsValidation(err))

	d, err = f.svc.RejectFinance(f.financeCtx(), d.ID, "price too low")
	require.NoError(t, err)
	assert.Equal(t, deal.StatusRejected, d.Status)

	d, err = f.svc.Reopen(f.managerCtx(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, deal.StatusInProgress, d.Status)
	assert.False(t, d.QuantitiesSet)
	assert.Nil(t, d.RejectionReason)

	d2 := f.createDeal(t)
	_, err = f.svc.Reject(f.adminCtx(), d2.ID, "client blacklisted")
	require.NoError(t, err)
	_, err = f.svc.Reopen(f.managerCtx(), d2.ID)
	assert.True(t, apperror.IsInvalidTransition(err))
}

func TestCancelAfterShipmentReturnsStock(t *testing.T) {
	f := newFixture(t)
	d := f.ready(t, 5)

	_, err := f.svc.SubmitShipment(f.warehouseCtx(), d.ID, shipment())
	require.NoError(t, err)
	require.Equal(t, int64(10), stockOf(t, f, f.widget))

	_, err = f.svc.Cancel(f.managerCtx(), d.ID, "returned by client")
	require.NoError(t, err)
	assert.Equal(t, int64(20), stockOf(t, f, f.widget))
	assert.Equal(t, int64(10), stockOf(t, f, f.gadget))

	var reversals int
	for _, m := range f.store.Inventory().AllMovements() {
		if m.Type == inventory.MovementIn && m.Note == "cancel reversal" {
			reversals++
		}
	}
	assert.Equal(t, 2, reversals)

	_, _, err = f.svc.RecordPayment(f.financeCtx(), d.ID, payment.Input{Amount: types.MustMoney("10")})
	assert.True(t, apperror.IsInvalidTransition(err))
}

func TestCancelBeforeShipmentWritesNoMovements(t *testing.T) {
	f := newFixture(t)
	d := f.createDeal(t)

	d, err := f.svc.Cancel(f.managerCtx(), d.ID, "")
	require.NoError(t, err)
	assert.Equal(t, deal.StatusCanceled, d.Status)
	assert.Empty(t, f.store.Inventory().AllMovements())

	_, err = f.svc.StartWork(f.managerCtx(), d.ID)
	assert.True(t, apperror.IsInvalidTransition(err))
}

func TestItemsFreezeOnceQuantitiesAreSet(t *testing.T) {
	f := newFixture(t)
	d := f.createDeal(t)

	d, err := f.svc.AddItem(f.managerCtx(), d.ID, workflow.NewItem{ProductID: f.widget, RequestedQty: qty(1)})
	require.NoError(t, err)
	require.Len(t, d.Items, 3)
	d, err = f.svc.RemoveItem(f.managerCtx(), d.ID, d.Items[2].ID)
	require.NoError(t, err)
	require.Len(t, d.Items, 2)

	d = f.confirm(t, d, 5)
	_, err = f.svc.AddItem(f.managerCtx(), d.ID, workflow.NewItem{ProductID: f.widget, RequestedQty: qty(1)})
	assert.True(t, apperror.IsInvalidTransition(err))

	_, err = f.svc.SetItemQuantities(f.managerCtx(), d.ID, workflow.QuantitiesInput{})
	assert.True(t, apperror.IsInvalidTransition(err))
}

func TestApproveFinanceRequiresQuantities(t *testing.T) {
	f := newFixture(t)
	d := f.createDeal(t)
	ctx := f.managerCtx()
	_, err := f.svc.StartWork(ctx, d.ID)
	require.NoError(t, err)
	_, err = f.svc.RequestStock(ctx, d.ID, "")
	require.NoError(t, err)

	d, err = f.svc.SubmitWarehouseResponse(f.warehouseCtx(), d.ID, []workflow.ItemResponse{{ItemID: d.Items[0].ID}})
	require.NoError(t, err)
	assert.Equal(t, deal.StatusWaitingStockConfirmation, d.Status)
	d, err = f.svc.SubmitWarehouseResponse(f.warehouseCtx(), d.ID, []workflow.ItemResponse{{ItemID: d.Items[1].ID}})
	require.NoError(t, err)
	assert.Equal(t, deal.StatusStockConfirmed, d.Status)

	_, err = f.svc.ApproveFinance(f.financeCtx(), d.ID)
	assert.True(t, apperror.IsValidation(err))

	queue, err := f.svc.FinanceQueue(f.financeCtx())
	require.NoError(t, err)
	assert.Empty(t, queue)
}

func TestPrepaymentAndDebtTerms(t *testing.T) {
	f := newFixture(t)
	d := f.createDeal(t)
	ctx := f.managerCtx()
	_, err := f.svc.RequestStock(ctx, d.ID, "")
	require.NoError(t, err)
	d, err = f.svc.SubmitWarehouseResponse(f.warehouseCtx(), d.ID, []workflow.ItemResponse{
		{ItemID: d.Items[0].ID}, {ItemID: d.Items[1].ID},
	})
	require.NoError(t, err)

	items := []workflow.ItemQuantity{
		{ItemID: d.Items[0].ID, Qty: 10, Price: types.MustMoney("50")},
		{ItemID: d.Items[1].ID, Qty: 5, Price: types.MustMoney("30")},
	}
	_, err = f.svc.SetItemQuantities(ctx, d.ID, workflow.QuantitiesInput{Items: items, PaymentType: deal.PaymentDebt})
	assert.True(t, apperror.IsValidation(err))

	due := time.Now().Add(72 * time.Hour)
	d, err = f.svc.SetItemQuantities(ctx, d.ID, workflow.QuantitiesInput{
		Items:       items,
		PaymentType: deal.PaymentDebt,
		DueDate:     &due,
		PaidAmount:  money("150"),
	})
	require.NoError(t, err)
	assert.True(t, types.MustMoney("650").Equal(d.Amount))
	assert.True(t, types.MustMoney("150").Equal(d.PaidAmount))
	assert.Equal(t, deal.PaymentPartiallyPaid, d.PaymentStatus)

	payments, err := f.svc.DealPayments(f.financeCtx(), d.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, "prepayment", payments[0].Method)

	queue, err := f.svc.FinanceQueue(f.financeCtx())
	require.NoError(t, err)
	assert.Len(t, queue, 1)
}

func TestCreateDealValidatesReferences(t *testing.T) {
	f := newFixture(t)
	ctx := f.managerCtx()

	_, err := f.svc.CreateDeal(ctx, workflow.CreateDealInput{
		Title:    "Bad",
		ClientID: id.New(),
		Items:    []workflow.NewItem{{ProductID: f.widget}},
	})
	assert.True(t, apperror.IsValidation(err))

	_, err = f.svc.CreateDeal(ctx, workflow.CreateDealInput{
		Title:    "Bad",
		ClientID: f.client,
		Items:    []workflow.NewItem{{ProductID: f.inactive}},
	})
	assert.True(t, apperror.IsValidation(err))

	_, err = f.svc.CreateDeal(ctx, workflow.CreateDealInput{Title: "Empty", ClientID: f.client})
	assert.True(t, apperror.IsValidation(err))

	d, err := f.svc.CreateDeal(f.adminCtx(), workflow.CreateDealInput{
		Title:     "On behalf",
		ClientID:  f.client,
		ManagerID: &f.other,
		Items:     []workflow.NewItem{{ProductID: f.widget}},
	})
	require.NoError(t, err)
	assert.Equal(t, f.other, d.ManagerID)
	assert.Equal(t, deal.PaymentFull, d.PaymentType)
}

func TestManualMovementsAndCatalogue(t *testing.T) {
	f := newFixture(t)
	wh := f.warehouseCtx()

	p, err := f.svc.CreateProduct(wh, &inventory.Product{SKU: "N-1", Name: "Nut", MinStock: 5})
	require.NoError(t, err)
	assert.Equal(t, int64(0), p.Stock)

	_, err = f.svc.CreateProduct(f.managerCtx(), &inventory.Product{SKU: "N-2", Name: "Bolt"})
	assert.True(t, apperror.IsForbidden(err))

	_, err = f.svc.RecordMovement(wh, inventory.MovementRequest{ProductID: p.ID, Type: inventory.MovementIn, Quantity: 3})
	require.NoError(t, err)

	low, err := f.svc.BelowMinimum(f.managerCtx())
	require.NoError(t, err)
	require.Len(t, low, 1)
	assert.Equal(t, p.ID, low[0].ID)

	_, err = f.svc.RecordMovement(wh, inventory.MovementRequest{ProductID: p.ID, Type: inventory.MovementOut, Quantity: 4})
	assert.True(t, apperror.IsInsufficientStock(err))

	moves, err := f.svc.ProductMovements(f.managerCtx(), p.ID, inventory.MovementFilter{})
	require.NoError(t, err)
	assert.Len(t, moves, 1)
}

func TestCloseDayWithNothingClosed(t *testing.T) {
	f := newFixture(t)
	f.createDeal(t)

	closing, err := f.svc.CloseDay(f.financeCtx())
	require.NoError(t, err)
	assert.Nil(t, closing)

	_, err = f.svc.CloseDay(f.managerCtx())
	assert.True(t, apperror.IsForbidden(err))
}

func TestArchiveHidesDealFromDefaultListing(t *testing.T) {
	f := newFixture(t)
	d := f.createDeal(t)

	archived, err := f.svc.Archive(f.managerCtx(), d.ID)
	require.NoError(t, err)
	assert.True(t, archived.IsArchived)
	assert.Equal(t, deal.StatusNew, archived.Status)

	list, err := f.svc.ListDeals(f.managerCtx(), deal.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = f.svc.ListDeals(f.managerCtx(), deal.ListFilter{IncludeArchived: true})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, d.ID, list[0].ID)
}

func TestReopenRequiresFreshWarehouseConfirmation(t *testing.T) {
	f := newFixture(t)
	d := f.confirm(t, f.createDeal(t), 5)
	_, err := f.svc.RejectFinance(f.financeCtx(), d.ID, "price too low")
	require.NoError(t, err)

	d, err = f.svc.Reopen(f.managerCtx(), d.ID)
	require.NoError(t, err)
	for _, it := range d.Items {
		assert.Nil(t, it.WarehouseConfirmedAt)
		assert.Empty(t, it.WarehouseComment)
	}

	_, err = f.svc.RequestStock(f.managerCtx(), d.ID, "check again")
	require.NoError(t, err)
	d, err = f.svc.SubmitWarehouseResponse(f.warehouseCtx(), d.ID, []workflow.ItemResponse{
		{ItemID: d.Items[0].ID, Comment: "still in stock"},
	})
	require.NoError(t, err)
	assert.Equal(t, deal.StatusWaitingStockConfirmation, d.Status)

	d, err = f.svc.SubmitWarehouseResponse(f.warehouseCtx(), d.ID, []workflow.ItemResponse{
		{ItemID: d.Items[1].ID, Comment: "in stock"},
	})
	require.NoError(t, err)
	assert.Equal(t, deal.StatusStockConfirmed, d.Status)
}

func TestSubCentAmountsAreRejected(t *testing.T) {
	f := newFixture(t)
	d := f.createDeal(t)
	ctx := f.managerCtx()
	_, err := f.svc.RequestStock(ctx, d.ID, "")
	require.NoError(t, err)
	d, err = f.svc.SubmitWarehouseResponse(f.warehouseCtx(), d.ID, []workflow.ItemResponse{
		{ItemID: d.Items[0].ID}, {ItemID: d.Items[1].ID},
	})
	require.NoError(t, err)

	items := func(price string) []workflow.ItemQuantity {
		return []workflow.ItemQuantity{
			{ItemID: d.Items[0].ID, Qty: 1, Price: types.MustMoney(price)},
			{ItemID: d.Items[1].ID, Qty: 1, Price: types.MustMoney("10")},
		}
	}
	_, err = f.svc.SetItemQuantities(ctx, d.ID, workflow.QuantitiesInput{Items: items("10.004")})
	assert.True(t, apperror.IsValidation(err))
	_, err = f.svc.SetItemQuantities(ctx, d.ID, workflow.QuantitiesInput{Items: items("10"), Discount: money("0.001")})
	assert.True(t, apperror.IsValidation(err))
	_, err = f.svc.SetItemQuantities(ctx, d.ID, workflow.QuantitiesInput{Items: items("10"), PaidAmount: money("5.005")})
	assert.True(t, apperror.IsValidation(err))

	unchanged, err := f.svc.GetDeal(ctx, d.ID)
	require.NoError(t, err)
	assert.False(t, unchanged.QuantitiesSet)
	assert.True(t, unchanged.Amount.IsZero())
	payments, err := f.svc.DealPayments(f.financeCtx(), d.ID)
	require.NoError(t, err)
	assert.Empty(t, payments)

	d, err = f.svc.SetItemQuantities(ctx, d.ID, workflow.QuantitiesInput{Items: items("10.01"), PaidAmount: money("20.01")})
	require.NoError(t, err)
	assert.True(t, types.MustMoney("20.01").Equal(d.Amount))
	assert.Equal(t, deal.PaymentPaid, d.PaymentStatus)
}
