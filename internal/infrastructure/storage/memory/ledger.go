package memory

import (
	"context"
	"slices"

	"stockflow/internal/core/apperror"
	"stockflow/internal/core/id"
	"stockflow/internal/domain/ledger"
)

// BalanceRepo implements ledger.BalanceRepository.
type BalanceRepo struct {
	store *Store
}

func (r *BalanceRepo) Get(ctx context.Context, key ledger.BalanceKey) (ledger.StockBalance, error) {
	var out ledger.StockBalance
	err := r.store.read(ctx, func(st *state) error {
		out = balanceOrZero(st, key)
		return nil
	})
	return out, err
}

func (r *BalanceRepo) GetForUpdate(ctx context.Context, key ledger.BalanceKey) (ledger.StockBalance, error) {
	return r.Get(ctx, key)
}

func (r *BalanceRepo) Save(ctx context.Context, b ledger.StockBalance) (ledger.StockBalance, error) {
	err := r.store.write(ctx, func(st *state) error {
		if current := balanceOrZero(st, b.Key()); current.Version != b.Version {
			return apperror.NewConcurrentModification("stock balance", b.Key().String())
		}
		b.Version++
		st.balances[b.Key()] = b
		return nil
	})
	return b, err
}

func (r *BalanceRepo) List(ctx context.Context, filter ledger.BalanceFilter) ([]ledger.StockBalance, error) {
	var out []ledger.StockBalance
	err := r.store.read(ctx, func(st *state) error {
		for _, b := range st.balances {
			if filter.Warehouse != "" && b.Warehouse != filter.Warehouse {
				continue
			}
			if filter.ItemKey != "" && b.ItemKey != filter.ItemKey {
				continue
			}
			if filter.OnlyNonZero && b.OnHand == 0 && b.Locked == 0 && b.Held == 0 {
				continue
			}
			out = append(out, b)
		}
		return nil
	})
	sortBalances(out)
	return out, err
}

func (r *BalanceRepo) ListForUpdate(ctx context.Context) ([]ledger.StockBalance, error) {
	return r.List(ctx, ledger.BalanceFilter{})
}

func balanceOrZero(st *state, key ledger.BalanceKey) ledger.StockBalance {
	if b, ok := st.balances[key]; ok {
		return b
	}
	return ledger.StockBalance{Warehouse: key.Warehouse, ItemKey: key.ItemKey}
}

func sortBalances(bs []ledger.StockBalance) {
	slices.SortFunc(bs, func(a, b ledger.StockBalance) int {
		switch {
		case a.Key().Less(b.Key()):
			return -1
		case b.Key().Less(a.Key()):
			return 1
		}
		return 0
	})
}

// DebtRepo implements ledger.DebtRepository.
type DebtRepo struct {
	store *Store
}

func (r *DebtRepo) Create(ctx context.Context, entry *ledger.DebtEntry) error {
	return r.store.write(ctx, func(st *state) error {
		for _, existing := range st.debts {
			if existing.SourceDocumentID == entry.SourceDocumentID {
				return apperror.NewConflict("debt already posted for document").
					WithDetail(apperror.DetailDocumentID, entry.SourceDocumentID)
			}
		}
		st.debts[entry.ID] = *entry
		return nil
	})
}

func (r *DebtRepo) Get(ctx context.Context, entryID id.ID) (*ledger.DebtEntry, error) {
	var out *ledger.DebtEntry
	err := r.store.read(ctx, func(st *state) error {
		entry, ok := st.debts[entryID]
		if !ok {
			return apperror.NewNotFound("debt entry", entryID)
		}
		out = &entry
		return nil
	})
	return out, err
}

func (r *DebtRepo) GetBySourceForUpdate(ctx context.Context, sourceDocumentID id.ID) (*ledger.DebtEntry, error) {
	var out *ledger.DebtEntry
	err := r.store.read(ctx, func(st *state) error {
		for _, entry := range st.debts {
			if entry.SourceDocumentID == sourceDocumentID {
				out = &entry
				return nil
			}
		}
		return apperror.NewNotFound("debt entry", sourceDocumentID)
	})
	return out, err
}

func (r *DebtRepo) ListOpenForUpdate(ctx context.Context, debtor, creditor ledger.Party) ([]*ledger.DebtEntry, error) {
	return r.List(ctx, ledger.DebtFilter{
		Debtor:   debtor,
		Creditor: creditor,
		Statuses: []ledger.DebtStatus{ledger.DebtOpen, ledger.DebtPartial},
	})
}

func (r *DebtRepo) Update(ctx context.Context, entry *ledger.DebtEntry) error {
	return r.store.write(ctx, func(st *state) error {
		stored, ok := st.debts[entry.ID]
		if !ok {
			return apperror.NewNotFound("debt entry", entry.ID)
		}
		if stored.Version != entry.Version {
			return apperror.NewConcurrentModification("debt entry", entry.ID)
		}
		entry.Version++
		st.debts[entry.ID] = *entry
		return nil
	})
}

// List returns matching entries oldest first.
func (r *DebtRepo) List(ctx context.Context, filter ledger.DebtFilter) ([]*ledger.DebtEntry, error) {
	var out []*ledger.DebtEntry
	err := r.store.read(ctx, func(st *state) error {
		for _, entry := range st.debts {
			if filter.Debtor != "" && entry.Debtor != filter.Debtor {
				continue
			}
			if filter.Creditor != "" && entry.Creditor != filter.Creditor {
				continue
			}
			if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, entry.Status) {
				continue
			}
			e := entry
			out = append(out, &e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(out, func(a, b *ledger.DebtEntry) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return slices.Compare(a.ID[:], b.ID[:])
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// PaymentRepo implements ledger.PaymentRepository.
type PaymentRepo struct {
	store *Store
}

func (r *PaymentRepo) Create(ctx context.Context, payment *ledger.Payment) error {
	return r.store.write(ctx, func(st *state) error {
		p := *payment
		p.Allocations = slices.Clone(payment.Allocations)
		st.payments[p.ID] = &p
		return nil
	})
}

func (r *PaymentRepo) Get(ctx context.Context, paymentID id.ID) (*ledger.Payment, error) {
	var out *ledger.Payment
	err := r.store.read(ctx, func(st *state) error {
		p, ok := st.payments[paymentID]
		if !ok {
			return apperror.NewNotFound("payment", paymentID)
		}
		c := *p
		c.Allocations = slices.Clone(p.Allocations)
		out = &c
		return nil
	})
	return out, err
}

func (r *PaymentRepo) List(ctx context.Context, filter ledger.PaymentFilter) ([]*ledger.Payment, error) {
	var out []*ledger.Payment
	err := r.store.read(ctx, func(st *state) error {
		for _, p := range st.payments {
			if filter.Party != "" && p.Payer != filter.Party && p.Payee != filter.Party {
				continue
			}
			c := *p
			c.Allocations = slices.Clone(p.Allocations)
			out = append(out, &c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(out, func(a, b *ledger.Payment) int { return a.PostedAt.Compare(b.PostedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}
