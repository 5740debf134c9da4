package deal_repo

import (
	"context"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm/internal/core/apperror"
	"crm/internal/core/id"
	"crm/internal/domain/deal"
	"crm/internal/infrastructure/storage/postgres/pgtest"
)

func TestUpdateChecksVersion(t *testing.T) {
	db := pgtest.New().ExpectExec("UPDATE 0", nil)
	r := newDealRepo(db)
	d := &deal.Deal{ID: id.New(), Status: deal.StatusInProgress, Version: 3}

	err := r.Update(context.Background(), d)

	assert.True(t, apperror.IsConcurrentModification(err))
	assert.Equal(t, 3, d.Version)

	call := db.Last()
	assert.Contains(t, call.SQL, "version = version + 1")
	assert.True(t, strings.HasSuffix(call.SQL, "WHERE id = $20 AND version = $21"), call.SQL)
	// squirrel.Eq hands driver.Valuer arguments over as their Value().
	assert.Equal(t, []any{d.ID.String(), 3}, call.Args[len(call.Args)-2:])
	assert.NotContains(t, call.SQL, "created_at =")
}

func TestUpdateBumpsVersion(t *testing.T) {
	db := pgtest.New().ExpectExec("UPDATE 1", nil)
	r := newDealRepo(db)
	d := &deal.Deal{ID: id.New(), Version: 1}

	require.NoError(t, r.Update(context.Background(), d))
	assert.Equal(t, 2, d.Version)
}

func TestSelectForUpdateLocksRow(t *testing.T) {
	r := newDealRepo(pgtest.New())

	sql, args, err := r.selectDeal(id.New(), true)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(sql, "FROM deals WHERE id = $1 FOR UPDATE"), sql)
	assert.Len(t, args, 1)

	sql, _, err = r.selectDeal(id.New(), false)
	require.NoError(t, err)
	assert.NotContains(t, sql, "FOR UPDATE")
}

func TestListFilters(t *testing.T) {
	r := newDealRepo(pgtest.New())
	manager := id.New()

	sql, args, err := r.listDeals(deal.ListFilter{ManagerID: &manager, FinanceQueue: true, Limit: 50})
	require.NoError(t, err)
	assert.Contains(t, sql, "WHERE manager_id = $1 AND is_archived = $2 AND quantities_set = $3 AND status = $4")
	assert.True(t, strings.HasSuffix(sql, "ORDER BY created_at DESC, id DESC LIMIT 50"), sql)
	assert.Equal(t, []any{manager.String(), false, true, deal.StatusStockConfirmed}, args)

	sql, args, err = r.listDeals(deal.ListFilter{
		Statuses:        []deal.Status{deal.StatusNew, deal.StatusClosed},
		IncludeArchived: true,
	})
	require.NoError(t, err)
	assert.Contains(t, sql, "WHERE status IN ($1,$2)")
	assert.NotContains(t, sql, "is_archived =")
	assert.NotContains(t, sql, "LIMIT")
	assert.Len(t, args, 2)
}

func TestDeleteItemReportsMissingLine(t *testing.T) {
	db := pgtest.New().ExpectExec("DELETE 0", nil)
	r := newDealRepo(db)

	err := r.DeleteItem(context.Background(), id.New(), id.New())

	assert.True(t, apperror.IsNotFound(err))
	assert.Equal(t, "DELETE FROM deal_items WHERE deal_id = $1 AND id = $2", db.Last().SQL)
}

func TestInsertItemsOutsideTransactionUsesMultiRowInsert(t *testing.T) {
	db := pgtest.New()
	r := newDealRepo(db)
	dealID := id.New()
	items := []deal.Item{
		{ID: id.New(), DealID: dealID, LineNo: 1, ProductID: id.New()},
		{ID: id.New(), DealID: dealID, LineNo: 2, ProductID: id.New()},
	}

	require.NoError(t, r.InsertItems(context.Background(), items))

	require.Len(t, db.Calls, 1)
	assert.True(t, strings.HasPrefix(db.Last().SQL, "INSERT INTO deal_items (id,deal_id,line_no,product_id"), db.Last().SQL)
	assert.Len(t, db.Last().Args, 2*len(itemColumns))
}

func TestInsertNothingSkipsRoundTrip(t *testing.T) {
	db := pgtest.New()
	r := newDealRepo(db)

	require.NoError(t, r.AppendHistory(context.Background(), nil))
	require.NoError(t, r.UpdateItems(context.Background(), nil))
	assert.Empty(t, db.Calls)
}

func TestUpdateItemsReportsMissingLine(t *testing.T) {
	db := pgtest.New().ExpectExec("UPDATE 1", nil).ExpectExec("UPDATE 0", nil)
	r := newDealRepo(db)
	dealID := id.New()
	qty := int64(4)
	items := []deal.Item{
		{ID: id.New(), DealID: dealID, RequestedQty: &qty},
		{ID: id.New(), DealID: dealID},
	}

	err := r.UpdateItems(context.Background(), items)

	assert.True(t, apperror.IsNotFound(err))
	require.Len(t, db.Calls, 2)
	assert.True(t, strings.HasSuffix(db.Calls[0].SQL, "WHERE deal_id = $6 AND id = $7"), db.Calls[0].SQL)
	assert.Equal(t, &qty, db.Calls[0].Args[0])
}

func TestCreateShipmentMapsUniqueViolations(t *testing.T) {
	dealTaken := &pgconn.PgError{Code: "23505", ConstraintName: "shipments_deal_id_key"}
	noteTaken := &pgconn.PgError{Code: "23505", ConstraintName: "shipments_delivery_note_number_key"}
	r := newDealRepo(pgtest.New().ExpectExec("", dealTaken).ExpectExec("", noteTaken))
	s := &deal.Shipment{ID: id.New(), DealID: id.New(), DeliveryNoteNumber: "DN-2026-00001"}

	err := r.CreateShipment(context.Background(), s)
	require.True(t, apperror.HasCode(err, apperror.CodeDuplicate))
	assert.Equal(t, "deal_id", err.(*apperror.AppError).Details["field"])

	err = r.CreateShipment(context.Background(), s)
	require.True(t, apperror.HasCode(err, apperror.CodeDuplicate))
	assert.Equal(t, "delivery_note_number", err.(*apperror.AppError).Details["field"])
}
