// Package memory is an in-process implementation of the repositories and the
// transaction manager. Transactions are serialized and rolled back by
// restoring a snapshot, which gives tests the isolation of a serializable
// database without one.
package memory

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"time"

	"crm/internal/core/apperror"
	"crm/internal/core/id"
	"crm/internal/domain/audit"
	"crm/internal/domain/deal"
	"crm/internal/domain/directory"
	"crm/internal/domain/inventory"
	"crm/internal/domain/payment"
	"crm/pkg/numerator"
)

type state struct {
	deals     map[id.ID]deal.Deal
	items     map[id.ID]deal.Item
	history   []deal.StatusChange
	shipments map[id.ID]deal.Shipment

	products  map[id.ID]inventory.Product
	movements []inventory.Movement

	payments []payment.Payment
	closings map[string]payment.DailyClosing

	clients   map[id.ID]directory.Client
	contracts map[id.ID]directory.Contract
	users     map[id.ID]directory.User

	counters map[string]int64
}

func newState() *state {
	return &state{
		deals:     make(map[id.ID]deal.Deal),
		items:     make(map[id.ID]deal.Item),
		shipments: make(map[id.ID]deal.Shipment),
		products:  make(map[id.ID]inventory.Product),
		closings:  make(map[string]payment.DailyClosing),
		clients:   make(map[id.ID]directory.Client),
		contracts: make(map[id.ID]directory.Contract),
		users:     make(map[id.ID]directory.User),
		counters:  make(map[string]int64),
	}
}

func (s *state) clone() *state {
	cp := &state{
		deals:     make(map[id.ID]deal.Deal, len(s.deals)),
		items:     maps.Clone(s.items),
		history:   slices.Clone(s.history),
		shipments: maps.Clone(s.shipments),
		products:  maps.Clone(s.products),
		movements: slices.Clone(s.movements),
		payments:  slices.Clone(s.payments),
		closings:  maps.Clone(s.closings),
		clients:   maps.Clone(s.clients),
		contracts: maps.Clone(s.contracts),
		users:     maps.Clone(s.users),
		counters:  maps.Clone(s.counters),
	}
	for k, d := range s.deals {
		cp.deals[k] = *d.Clone()
	}
	return cp
}

// Store holds all data in memory.
type Store struct {
	mu   sync.Mutex
	txMu sync.Mutex
	data *state

	auditMu   sync.Mutex
	audit     []audit.Entry
	auditFail error
}

// New creates an empty store.
func New() *Store {
	return &Store{data: newState()}
}

type txKey struct{}

// RunInTransaction runs fn serialized against other transactions and rolls
// back every write when fn returns an error.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.data.clone()
	s.mu.Unlock()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.mu.Lock()
		s.data = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

// RunSerializable is RunInTransaction; the store never reports
// serialization failures.
func (s *Store) RunSerializable(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.RunInTransaction(ctx, fn)
}

// ReadOnly runs fn without taking the transaction lock.
func (s *Store) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// Record implements audit.Recorder.
func (s *Store) Record(_ context.Context, e audit.Entry) error {
	s.auditMu.Lock()
	defer s.auditMu.Unlock()
	if s.auditFail != nil {
		return s.auditFail
	}
	s.audit = append(s.audit, e)
	return nil
}

// FailAudit makes every later Record call return err. Nil restores it.
func (s *Store) FailAudit(err error) {
	s.auditMu.Lock()
	defer s.auditMu.Unlock()
	s.auditFail = err
}

// AuditEntries returns a copy of everything recorded so far.
func (s *Store) AuditEntries() []audit.Entry {
	s.auditMu.Lock()
	defer s.auditMu.Unlock()
	return slices.Clone(s.audit)
}

// PutClient seeds a directory client.
func (s *Store) PutClient(c directory.Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.clients[c.ID] = c
}

// PutContract seeds a directory contract.
func (s *Store) PutContract(c directory.Contract) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.contracts[c.ID] = c
}

// PutUser seeds a directory user.
func (s *Store) PutUser(u directory.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.users[u.ID] = u
}

// PutProduct seeds a product with an arbitrary stock and no ledger rows.
func (s *Store) PutProduct(p inventory.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.products[p.ID] = p
}

func (s *Store) GetClient(_ context.Context, clientID id.ID) (*directory.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.data.clients[clientID]
	if !ok {
		return nil, apperror.NewNotFound("client", clientID.String())
	}
	return &c, nil
}

func (s *Store) GetContract(_ context.Context, contractID id.ID) (*directory.Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.data.contracts[contractID]
	if !ok {
		return nil, apperror.NewNotFound("contract", contractID.String())
	}
	return &c, nil
}

func (s *Store) GetUser(_ context.Context, userID id.ID) (*directory.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.data.users[userID]
	if !ok {
		return nil, apperror.NewNotFound("user", userID.String())
	}
	return &u, nil
}

// GetNextNumber allocates the next number for cfg from an in-memory counter.
func (s *Store) GetNextNumber(_ context.Context, cfg numerator.Config, period time.Time) (string, error) {
	if cfg.Prefix == "" {
		return "", errors.New("numerator prefix is required")
	}
	key := numerator.Key(cfg, period)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.counters[key]++
	return numerator.Format(cfg, period, s.data.counters[key]), nil
}

var (
	_ directory.Directory = (*Store)(nil)
	_ audit.Recorder      = (*Store)(nil)
)
