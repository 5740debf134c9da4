// Package deal_repo provides the PostgreSQL implementation of deal.Repository.
package deal_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"crm/internal/core/apperror"
	"crm/internal/core/id"
	"crm/internal/domain/deal"
	"crm/internal/infrastructure/storage/postgres"
)

const (
	dealsTable     = "deals"
	itemsTable     = "deal_items"
	historyTable   = "deal_status_history"
	shipmentsTable = "shipments"
)

var (
	dealColumns     = postgres.ExtractDBColumns[deal.Deal]()
	itemColumns     = postgres.ExtractDBColumns[deal.Item]()
	historyColumns  = postgres.ExtractDBColumns[deal.StatusChange]()
	shipmentColumns = postgres.ExtractDBColumns[deal.Shipment]()

	// Columns Update never touches.
	immutableDealColumns = []string{"id", "version", "created_by", "created_at"}
)

// DealRepo implements deal.Repository.
type DealRepo struct {
	db      postgres.QuerierProvider
	batch   *postgres.BatchWriter
	builder squirrel.StatementBuilderType
}

var _ deal.Repository = (*DealRepo)(nil)

// NewDealRepo creates a deal repository over the transaction manager.
func NewDealRepo(txm *postgres.TxManager) *DealRepo {
	r := newDealRepo(txm)
	r.batch = postgres.NewBatchWriter(txm)
	return r
}

func newDealRepo(db postgres.QuerierProvider) *DealRepo {
	return &DealRepo{
		db:      db,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts the deal header and its items.
func (r *DealRepo) Create(ctx context.Context, d *deal.Deal) error {
	sql, args, err := r.builder.Insert(dealsTable).
		SetMap(postgres.StructToMap(d)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.db.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return postgres.MapError(err, "insert deal", "deal", d.ID)
	}
	return r.InsertItems(ctx, d.Items)
}

func (r *DealRepo) selectDeal(dealID id.ID, forUpdate bool) (string, []any, error) {
	q := r.builder.Select(dealColumns...).
		From(dealsTable).
		Where(squirrel.Eq{"id": dealID})
	if forUpdate {
		q = q.Suffix("FOR UPDATE")
	}
	return q.ToSql()
}

func (r *DealRepo) get(ctx context.Context, dealID id.ID, forUpdate bool) (*deal.Deal, error) {
	sql, args, err := r.selectDeal(dealID, forUpdate)
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	var d deal.Deal
	if err := pgxscan.Get(ctx, r.db.GetQuerier(ctx), &d, sql, args...); err != nil {
		return nil, postgres.MapError(err, "get deal", "deal", dealID)
	}
	items, err := r.itemsOf(ctx, []id.ID{dealID})
	if err != nil {
		return nil, err
	}
	d.Items = items[dealID]
	return &d, nil
}

// GetByID loads a deal with its items.
func (r *DealRepo) GetByID(ctx context.Context, dealID id.ID) (*deal.Deal, error) {
	return r.get(ctx, dealID, false)
}

// GetForUpdate loads a deal with its items and locks the deal row until the
// transaction ends.
func (r *DealRepo) GetForUpdate(ctx context.Context, dealID id.ID) (*deal.Deal, error) {
	return r.get(ctx, dealID, true)
}

func (r *DealRepo) updateDeal(d *deal.Deal) (string, []any, error) {
	all := postgres.StructToMap(d)
	set := make(map[string]any, len(all))
	for _, c := range postgres.Without(dealColumns, immutableDealColumns...) {
		set[c] = all[c]
	}
	return r.builder.Update(dealsTable).
		SetMap(set).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": d.ID, "version": d.Version}).
		ToSql()
}

// Update writes the header if the stored version still equals d.Version and
// bumps d.Version on success.
func (r *DealRepo) Update(ctx context.Context, d *deal.Deal) error {
	sql, args, err := r.updateDeal(d)
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	tag, err := r.db.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return postgres.MapError(err, "update deal", "deal", d.ID)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewConcurrentModification("deal", d.ID.String())
	}
	d.Version++
	return nil
}

func (r *DealRepo) listDeals(f deal.ListFilter) (string, []any, error) {
	q := r.builder.Select(dealColumns...).From(dealsTable)
	if len(f.Statuses) > 0 {
		q = q.Where(squirrel.Eq{"status": f.Statuses})
	}
	if f.ManagerID != nil {
		q = q.Where(squirrel.Eq{"manager_id": *f.ManagerID})
	}
	if f.ClientID != nil {
		q = q.Where(squirrel.Eq{"client_id": *f.ClientID})
	}
	if !f.IncludeArchived {
		q = q.Where(squirrel.Eq{"is_archived": false})
	}
	if f.FinanceQueue {
		q = q.Where(squirrel.Eq{"status": deal.StatusStockConfirmed, "quantities_set": true})
	}
	q = q.OrderBy("created_at DESC", "id DESC")
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		q = q.Offset(uint64(f.Offset))
	}
	return q.ToSql()
}

// List returns deals matching f, newest first, with their items.
func (r *DealRepo) List(ctx context.Context, f deal.ListFilter) ([]*deal.Deal, error) {
	sql, args, err := r.listDeals(f)
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	var deals []*deal.Deal
	if err := pgxscan.Select(ctx, r.db.GetQuerier(ctx), &deals, sql, args...); err != nil {
		return nil, postgres.MapError(err, "list deals", "deal", nil)
	}
	if len(deals) == 0 {
		return []*deal.Deal{}, nil
	}

	ids := make([]id.ID, len(deals))
	for i, d := range deals {
		ids[i] = d.ID
	}
	items, err := r.itemsOf(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, d := range deals {
		d.Items = items[d.ID]
	}
	return deals, nil
}

func (r *DealRepo) itemsOf(ctx context.Context, dealIDs []id.ID) (map[id.ID][]deal.Item, error) {
	sql, args, err := r.builder.Select(itemColumns...).
		From(itemsTable).
		Where(squirrel.Eq{"deal_id": dealIDs}).
		OrderBy("deal_id", "line_no").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	var items []deal.Item
	if err := pgxscan.Select(ctx, r.db.GetQuerier(ctx), &items, sql, args...); err != nil {
		return nil, postgres.MapError(err, "select deal items", "deal", nil)
	}
	out := make(map[id.ID][]deal.Item, len(dealIDs))
	for _, it := range items {
		out[it.DealID] = append(out[it.DealID], it)
	}
	return out, nil
}

// insertRows writes rows with COPY inside a transaction and with a multi-row
// INSERT otherwise.
func (r *DealRepo) insertRows(ctx context.Context, table string, cols []string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	if r.batch.InTx(ctx) {
		if _, err := r.batch.CopyFromSlice(ctx, table, cols, rows); err != nil {
			return postgres.MapError(err, "copy "+table, table, nil)
		}
		return nil
	}

	q := r.builder.Insert(table).Columns(cols...)
	for _, row := range rows {
		q = q.Values(row...)
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.db.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return postgres.MapError(err, "insert "+table, table, nil)
	}
	return nil
}

// InsertItems adds item lines.
func (r *DealRepo) InsertItems(ctx context.Context, items []deal.Item) error {
	rows := make([][]any, len(items))
	for i := range items {
		rows[i] = postgres.Values(&items[i], itemColumns)
	}
	return r.insertRows(ctx, itemsTable, itemColumns, rows)
}

var itemMutableColumns = []string{
	"requested_qty", "price", "request_comment", "warehouse_comment", "warehouse_confirmed_at",
}

func (r *DealRepo) updateItem(it *deal.Item) (string, []any, error) {
	all := postgres.StructToMap(it)
	q := r.builder.Update(itemsTable)
	for _, c := range itemMutableColumns {
		q = q.Set(c, all[c])
	}
	return q.Where(squirrel.Eq{"id": it.ID, "deal_id": it.DealID}).ToSql()
}

// UpdateItems rewrites the quantity, price and comment fields of items.
func (r *DealRepo) UpdateItems(ctx context.Context, items []deal.Item) error {
	if len(items) == 0 {
		return nil
	}
	queries := make([]postgres.BatchQuery, len(items))
	for i := range items {
		sql, args, err := r.updateItem(&items[i])
		if err != nil {
			return fmt.Errorf("build update: %w", err)
		}
		queries[i] = postgres.BatchQuery{SQL: sql, Args: args}
	}

	if r.batch.InTx(ctx) {
		affected, err := r.batch.ExecuteBatch(ctx, queries)
		if err != nil {
			return postgres.MapError(err, "update deal items", "deal_item", nil)
		}
		for i, n := range affected {
			if n == 0 {
				return apperror.NewNotFound("deal_item", items[i].ID.String())
			}
		}
		return nil
	}

	q := r.db.GetQuerier(ctx)
	for i, bq := range queries {
		tag, err := q.Exec(ctx, bq.SQL, bq.Args...)
		if err != nil {
			return postgres.MapError(err, "update deal item", "deal_item", items[i].ID)
		}
		if tag.RowsAffected() == 0 {
			return apperror.NewNotFound("deal_item", items[i].ID.String())
		}
	}
	return nil
}

// DeleteItem removes one item line of a deal.
func (r *DealRepo) DeleteItem(ctx context.Context, dealID, itemID id.ID) error {
	sql, args, err := r.builder.Delete(itemsTable).
		Where(squirrel.Eq{"id": itemID, "deal_id": dealID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	tag, err := r.db.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return postgres.MapError(err, "delete deal item", "deal_item", itemID)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("deal_item", itemID.String())
	}
	return nil
}

// AppendHistory adds status change rows.
func (r *DealRepo) AppendHistory(ctx context.Context, changes []deal.StatusChange) error {
	rows := make([][]any, len(changes))
	for i := range changes {
		rows[i] = postgres.Values(&changes[i], historyColumns)
	}
	return r.insertRows(ctx, historyTable, historyColumns, rows)
}

// History returns the status changes of a deal, oldest first.
func (r *DealRepo) History(ctx context.Context, dealID id.ID) ([]deal.StatusChange, error) {
	sql, args, err := r.builder.Select(historyColumns...).
		From(historyTable).
		Where(squirrel.Eq{"deal_id": dealID}).
		OrderBy("created_at", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	changes := make([]deal.StatusChange, 0)
	if err := pgxscan.Select(ctx, r.db.GetQuerier(ctx), &changes, sql, args...); err != nil {
		return nil, postgres.MapError(err, "select deal history", "deal", dealID)
	}
	return changes, nil
}

// CreateShipment stores the shipment record. A second shipment for the deal
// or a reused delivery note number is a conflict.
func (r *DealRepo) CreateShipment(ctx context.Context, s *deal.Shipment) error {
	sql, args, err := r.builder.Insert(shipmentsTable).
		Columns(shipmentColumns...).
		Values(postgres.Values(s, shipmentColumns)...).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.db.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		if constraint, ok := postgres.UniqueViolation(err); ok {
			if constraint == "shipments_deal_id_key" {
				return apperror.NewDuplicate("shipment", "deal_id", s.DealID.String())
			}
			return apperror.NewDuplicate("shipment", "delivery_note_number", s.DeliveryNoteNumber)
		}
		return postgres.MapError(err, "insert shipment", "shipment", s.DealID)
	}
	return nil
}

// GetShipment returns the shipment of a deal.
func (r *DealRepo) GetShipment(ctx context.Context, dealID id.ID) (*deal.Shipment, error) {
	sql, args, err := r.builder.Select(shipmentColumns...).
		From(shipmentsTable).
		Where(squirrel.Eq{"deal_id": dealID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	var s deal.Shipment
	if err := pgxscan.Get(ctx, r.db.GetQuerier(ctx), &s, sql, args...); err != nil {
		return nil, postgres.MapError(err, "get shipment", "shipment", dealID)
	}
	return &s, nil
}
