package reservation

import (
	"context"
	"fmt"
	"slices"
	"time"

	"stockflow/internal/core/apperror"
	"stockflow/internal/core/types"
	"stockflow/internal/domain/ledger"
)

// Batch is a working set of balances locked for one transaction.
// Load locks rows in key order, the operations mutate the cached copies
// and Flush writes the dirty ones back.
type Batch struct {
	repo     ledger.BalanceRepository
	balances map[ledger.BalanceKey]*ledger.StockBalance
	dirty    map[ledger.BalanceKey]bool
}

// NewBatch creates an empty batch over repo.
func NewBatch(repo ledger.BalanceRepository) *Batch {
	return &Batch{
		repo:     repo,
		balances: make(map[ledger.BalanceKey]*ledger.StockBalance),
		dirty:    make(map[ledger.BalanceKey]bool),
	}
}

// SortedKeys returns keys deduplicated and in lock order.
func SortedKeys(keys []ledger.BalanceKey) []ledger.BalanceKey {
	out := slices.Clone(keys)
	slices.SortFunc(out, func(a, b ledger.BalanceKey) int {
		switch {
		case a.Less(b):
			return -1
		case b.Less(a):
			return 1
		}
		return 0
	})
	return slices.Compact(out)
}

// Load locks and caches the given balances. Must run inside a transaction.
func (b *Batch) Load(ctx context.Context, keys ...ledger.BalanceKey) error {
	for _, key := range SortedKeys(keys) {
		if _, ok := b.balances[key]; ok {
			continue
		}
		bal, err := b.repo.GetForUpdate(ctx, key)
		if err != nil {
			return fmt.Errorf("lock balance %s: %w", key, err)
		}
		b.balances[key] = &bal
	}
	return nil
}

// Balance returns the cached balance for key.
func (b *Batch) Balance(key ledger.BalanceKey) (ledger.StockBalance, bool) {
	bal, ok := b.balances[key]
	if !ok {
		return ledger.StockBalance{}, false
	}
	return *bal, true
}

func (b *Batch) get(key ledger.BalanceKey) (*ledger.StockBalance, error) {
	bal, ok := b.balances[key]
	if !ok {
		return nil, apperror.NewInternal(fmt.Errorf("balance %s used before Load", key))
	}
	return bal, nil
}

// Reserve locks qty at key.
func (b *Batch) Reserve(key ledger.BalanceKey, qty types.Quantity) error {
	bal, err := b.get(key)
	if err != nil {
		return err
	}
	if err := Reserve(bal, qty); err != nil {
		return err
	}
	b.dirty[key] = true
	return nil
}

// Release unlocks qty at key.
func (b *Batch) Release(key ledger.BalanceKey, qty types.Quantity) error {
	bal, err := b.get(key)
	if err != nil {
		return err
	}
	Release(bal, qty)
	b.dirty[key] = true
	return nil
}

// Commit applies a physical movement at key.
func (b *Batch) Commit(key ledger.BalanceKey, qty types.Quantity, dir Direction) error {
	bal, err := b.get(key)
	if err != nil {
		return err
	}
	if err := CommitPhysical(bal, qty, dir); err != nil {
		return err
	}
	b.dirty[key] = true
	return nil
}

// Hold places a manual hold at key.
func (b *Batch) Hold(key ledger.BalanceKey, qty types.Quantity) error {
	bal, err := b.get(key)
	if err != nil {
		return err
	}
	if err := Hold(bal, qty); err != nil {
		return err
	}
	b.dirty[key] = true
	return nil
}

// Unhold releases a manual hold at key.
func (b *Batch) Unhold(key ledger.BalanceKey, qty types.Quantity) error {
	bal, err := b.get(key)
	if err != nil {
		return err
	}
	Unhold(bal, qty)
	b.dirty[key] = true
	return nil
}

// SetLocked overwrites the locked counter. Used only by reconciliation.
func (b *Batch) SetLocked(key ledger.BalanceKey, locked types.Quantity) error {
	bal, err := b.get(key)
	if err != nil {
		return err
	}
	bal.Locked = locked
	b.dirty[key] = true
	return nil
}

// Flush saves every modified balance in key order.
func (b *Batch) Flush(ctx context.Context, now time.Time) ([]ledger.StockBalance, error) {
	keys := make([]ledger.BalanceKey, 0, len(b.dirty))
	for key := range b.dirty {
		keys = append(keys, key)
	}

	saved := make([]ledger.StockBalance, 0, len(keys))
	for _, key := range SortedKeys(keys) {
		bal := b.balances[key]
		if err := bal.CheckInvariant(); err != nil {
			return nil, apperror.NewInternal(err)
		}
		bal.UpdatedAt = now
		stored, err := b.repo.Save(ctx, *bal)
		if err != nil {
			return nil, err
		}
		*bal = stored
		saved = append(saved, stored)
	}
	clear(b.dirty)
	return saved, nil
}
