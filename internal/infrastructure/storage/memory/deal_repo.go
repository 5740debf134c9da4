package memory

import (
	"context"
	"slices"
	"sort"
	"time"

	"crm/internal/core/apperror"
	"crm/internal/core/id"
	"crm/internal/domain/deal"
)

// DealRepo implements deal.Repository on a Store.
type DealRepo struct{ s *Store }

// Deals returns the deal repository view of s.
func (s *Store) Deals() *DealRepo { return &DealRepo{s: s} }

var _ deal.Repository = (*DealRepo)(nil)

func (r *DealRepo) Create(_ context.Context, d *deal.Deal) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.data.deals[d.ID]; ok {
		return apperror.NewDuplicate("deal", "id", d.ID.String())
	}
	header := *d.Clone()
	header.Items = nil
	r.s.data.deals[d.ID] = header
	for _, it := range d.Items {
		r.s.data.items[it.ID] = it
	}
	return nil
}

// load assembles a deal with its items. Caller holds mu.
func (r *DealRepo) load(dealID id.ID) (*deal.Deal, error) {
	stored, ok := r.s.data.deals[dealID]
	if !ok {
		return nil, apperror.NewNotFound("deal", dealID.String())
	}
	d := stored.Clone()
	d.Items = d.Items[:0]
	for _, it := range r.s.data.items {
		if it.DealID == dealID {
			d.Items = append(d.Items, it)
		}
	}
	sort.Slice(d.Items, func(i, j int) bool { return d.Items[i].LineNo < d.Items[j].LineNo })
	return d, nil
}

func (r *DealRepo) GetByID(_ context.Context, dealID id.ID) (*deal.Deal, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.load(dealID)
}

// GetForUpdate is GetByID; writers are already serialized by the store.
func (r *DealRepo) GetForUpdate(ctx context.Context, dealID id.ID) (*deal.Deal, error) {
	return r.GetByID(ctx, dealID)
}

func (r *DealRepo) Update(_ context.Context, d *deal.Deal) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.data.deals[d.ID]
	if !ok {
		return apperror.NewNotFound("deal", d.ID.String())
	}
	if stored.Version != d.Version {
		return apperror.NewConcurrentModification("deal", d.ID.String())
	}
	d.Version++
	d.UpdatedAt = time.Now().UTC()
	header := *d.Clone()
	header.Items = nil
	r.s.data.deals[d.ID] = header
	return nil
}

func (r *DealRepo) List(_ context.Context, f deal.ListFilter) ([]*deal.Deal, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := make([]*deal.Deal, 0)
	for dealID, d := range r.s.data.deals {
		if d.IsArchived && !f.IncludeArchived {
			continue
		}
		if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, d.Status) {
			continue
		}
		if f.FinanceQueue && (d.Status != deal.StatusStockConfirmed || !d.QuantitiesSet) {
			continue
		}
		if f.ManagerID != nil && d.ManagerID != *f.ManagerID {
			continue
		}
		if f.ClientID != nil && d.ClientID != *f.ClientID {
			continue
		}
		full, err := r.load(dealID)
		if err != nil {
			return nil, err
		}
		out = append(out, full)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return []*deal.Deal{}, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *DealRepo) InsertItems(_ context.Context, items []deal.Item) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, it := range items {
		r.s.data.items[it.ID] = it
	}
	return nil
}

func (r *DealRepo) UpdateItems(_ context.Context, items []deal.Item) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, it := range items {
		if _, ok := r.s.data.items[it.ID]; !ok {
			return apperror.NewNotFound("deal item", it.ID.String())
		}
		r.s.data.items[it.ID] = it
	}
	return nil
}

func (r *DealRepo) DeleteItem(_ context.Context, dealID, itemID id.ID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	it, ok := r.s.data.items[itemID]
	if !ok || it.DealID != dealID {
		return apperror.NewNotFound("deal item", itemID.String())
	}
	delete(r.s.data.items, itemID)
	return nil
}

func (r *DealRepo) AppendHistory(_ context.Context, changes []deal.StatusChange) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.data.history = append(r.s.data.history, changes...)
	return nil
}

func (r *DealRepo) History(_ context.Context, dealID id.ID) ([]deal.StatusChange, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]deal.StatusChange, 0)
	for _, c := range r.s.data.history {
		if c.DealID == dealID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *DealRepo) CreateShipment(_ context.Context, sh *deal.Shipment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.data.shipments[sh.DealID]; ok {
		return apperror.NewDuplicate("shipment", "deal_id", sh.DealID.String())
	}
	for _, other := range r.s.data.shipments {
		if other.DeliveryNoteNumber == sh.DeliveryNoteNumber {
			return apperror.NewDuplicate("shipment", "delivery_note_number", sh.DeliveryNoteNumber)
		}
	}
	r.s.data.shipments[sh.DealID] = *sh
	return nil
}

func (r *DealRepo) GetShipment(_ context.Context, dealID id.ID) (*deal.Shipment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sh, ok := r.s.data.shipments[dealID]
	if !ok {
		return nil, apperror.NewNotFound("shipment", dealID.String())
	}
	return &sh, nil
}
