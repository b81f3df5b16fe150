package ledger

import (
	"context"

	"stockflow/internal/core/apperror"
	"stockflow/internal/core/id"
)

// Service answers read queries over the ledger. All writes go through
// the reservation, settlement and workflow packages.
type Service struct {
	balances BalanceRepository
	debts    DebtRepository
	payments PaymentRepository
}

// NewService creates a ledger read service.
func NewService(balances BalanceRepository, debts DebtRepository, payments PaymentRepository) *Service {
	return &Service{balances: balances, debts: debts, payments: payments}
}

// GetBalance returns the balance of one (warehouse, item) pair.
func (s *Service) GetBalance(ctx context.Context, key BalanceKey) (StockBalance, error) {
	if key.Warehouse == "" || key.ItemKey == "" {
		return StockBalance{}, apperror.NewValidation("warehouse and item_key are required")
	}
	return s.balances.Get(ctx, key)
}

// ListBalances returns balances matching filter.
func (s *Service) ListBalances(ctx context.Context, filter BalanceFilter) ([]StockBalance, error) {
	return s.balances.List(ctx, filter)
}

// ListDebts returns debt entries matching filter.
func (s *Service) ListDebts(ctx context.Context, filter DebtFilter) ([]*DebtEntry, error) {
	for _, p := range []Party{filter.Debtor, filter.Creditor} {
		if p == "" {
			continue
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
	}
	return s.debts.List(ctx, filter)
}

// GetDebt returns one entry.
func (s *Service) GetDebt(ctx context.Context, entryID id.ID) (*DebtEntry, error) {
	return s.debts.Get(ctx, entryID)
}

// GetPayment returns one payment with its allocations.
func (s *Service) GetPayment(ctx context.Context, paymentID id.ID) (*Payment, error) {
	return s.payments.Get(ctx, paymentID)
}

// ListPayments returns payments where the party is payer or payee.
func (s *Service) ListPayments(ctx context.Context, filter PaymentFilter) ([]*Payment, error) {
	return s.payments.List(ctx, filter)
}
