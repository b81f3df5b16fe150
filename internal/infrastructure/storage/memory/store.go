// Package memory is an in-process implementation of every repository the
// engine needs. Write transactions are serialized and work on a private copy
// of the state that replaces the committed one only when fn succeeds.
package memory

import (
	"context"
	"maps"
	"sync"

	"stockflow/internal/core/id"
	"stockflow/internal/domain/audit"
	"stockflow/internal/domain/document"
	"stockflow/internal/domain/ledger"
)

type state struct {
	documents  map[id.ID]*document.Document
	balances   map[ledger.BalanceKey]ledger.StockBalance
	debts      map[id.ID]ledger.DebtEntry
	payments   map[id.ID]*ledger.Payment
	warehouses map[string]bool
	items      map[string]document.ItemKind
	sequences  map[string]int64
	history    []audit.Entry
	events     []audit.Event
}

func newState() *state {
	return &state{
		documents:  make(map[id.ID]*document.Document),
		balances:   make(map[ledger.BalanceKey]ledger.StockBalance),
		debts:      make(map[id.ID]ledger.DebtEntry),
		payments:   make(map[id.ID]*ledger.Payment),
		warehouses: make(map[string]bool),
		items:      make(map[string]document.ItemKind),
		sequences:  make(map[string]int64),
	}
}

// clone copies everything a transaction may mutate. Documents are copied
// lazily by the repositories, so the map copy is enough here as long as
// writers always store fresh pointers.
func (s *state) clone() *state {
	return &state{
		documents:  maps.Clone(s.documents),
		balances:   maps.Clone(s.balances),
		debts:      maps.Clone(s.debts),
		payments:   maps.Clone(s.payments),
		warehouses: maps.Clone(s.warehouses),
		items:      maps.Clone(s.items),
		sequences:  maps.Clone(s.sequences),
		history:    append([]audit.Entry(nil), s.history...),
		events:     append([]audit.Event(nil), s.events...),
	}
}

type txKey struct{}

type memTx struct {
	st *state
}

// Store holds the committed state.
type Store struct {
	writeMu   sync.Mutex
	mu        sync.RWMutex
	committed *state
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{committed: newState()}
}

// RunInTransaction implements tx.Manager. Nested calls join the outer transaction.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*memTx); ok {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	work := s.committed.clone()
	s.mu.RUnlock()

	if err := fn(context.WithValue(ctx, txKey{}, &memTx{st: work})); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.committed = work
	s.mu.Unlock()
	return nil
}

func (s *Store) read(ctx context.Context, fn func(st *state) error) error {
	if t, ok := ctx.Value(txKey{}).(*memTx); ok {
		return fn(t.st)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.committed)
}

func (s *Store) write(ctx context.Context, fn func(st *state) error) error {
	if t, ok := ctx.Value(txKey{}).(*memTx); ok {
		return fn(t.st)
	}
	return s.RunInTransaction(ctx, func(ctx context.Context) error {
		return s.write(ctx, fn)
	})
}

// Documents returns the document repository.
func (s *Store) Documents() *DocumentRepo { return &DocumentRepo{store: s} }

// Balances returns the stock balance repository.
func (s *Store) Balances() *BalanceRepo { return &BalanceRepo{store: s} }

// Debts returns the debt repository.
func (s *Store) Debts() *DebtRepo { return &DebtRepo{store: s} }

// Payments returns the payment repository.
func (s *Store) Payments() *PaymentRepo { return &PaymentRepo{store: s} }

// Catalog returns the master data lookup.
func (s *Store) Catalog() *Catalog { return &Catalog{store: s} }

// Sequences returns the document number sequencer.
func (s *Store) Sequences() *Sequences { return &Sequences{store: s} }

// History returns the document history recorder.
func (s *Store) History() *History { return &History{store: s} }

// Outbox returns the event publisher.
func (s *Store) Outbox() *Outbox { return &Outbox{store: s} }
