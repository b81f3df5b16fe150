package ledger

import (
	"context"

	"stockflow/internal/core/id"
)

// BalanceFilter narrows balance listings. Empty fields match everything.
type BalanceFilter struct {
	Warehouse   string
	ItemKey     string
	OnlyNonZero bool
}

// BalanceRepository stores StockBalance rows.
// Missing rows read as zero balances, never as NotFound.
type BalanceRepository interface {
	Get(ctx context.Context, key BalanceKey) (StockBalance, error)

	// GetForUpdate locks the row (creating it when missing) until the transaction ends.
	GetForUpdate(ctx context.Context, key BalanceKey) (StockBalance, error)

	// Save writes b if the stored version still equals b.Version and returns
	// the row with its new version. A stale version is a concurrent modification.
	Save(ctx context.Context, b StockBalance) (StockBalance, error)

	List(ctx context.Context, filter BalanceFilter) ([]StockBalance, error)

	// ListForUpdate locks and returns every row, ordered by key.
	ListForUpdate(ctx context.Context) ([]StockBalance, error)
}

// DebtFilter narrows debt listings.
type DebtFilter struct {
	Debtor   Party
	Creditor Party
	Statuses []DebtStatus
	Limit    int
}

// DebtRepository stores debt entries.
type DebtRepository interface {
	Create(ctx context.Context, entry *DebtEntry) error
	Get(ctx context.Context, entryID id.ID) (*DebtEntry, error)

	// GetBySourceForUpdate locks the entry posted for a source document.
	GetBySourceForUpdate(ctx context.Context, sourceDocumentID id.ID) (*DebtEntry, error)

	// ListOpenForUpdate locks unsettled entries of debtor towards creditor, oldest first.
	ListOpenForUpdate(ctx context.Context, debtor, creditor Party) ([]*DebtEntry, error)

	// Update writes entry with an optimistic version check and bumps entry.Version.
	Update(ctx context.Context, entry *DebtEntry) error

	List(ctx context.Context, filter DebtFilter) ([]*DebtEntry, error)
}

// PaymentFilter narrows payment listings.
type PaymentFilter struct {
	Party Party
	Limit int
}

// PaymentRepository stores payments and their allocations.
type PaymentRepository interface {
	Create(ctx context.Context, payment *Payment) error
	Get(ctx context.Context, paymentID id.ID) (*Payment, error)
	List(ctx context.Context, filter PaymentFilter) ([]*Payment, error)
}
