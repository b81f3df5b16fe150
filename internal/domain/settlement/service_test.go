package settlement_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockflow/internal/core/apperror"
	"stockflow/internal/core/id"
	"stockflow/internal/core/security"
	"stockflow/internal/domain/ledger"
	"stockflow/internal/domain/settlement"
	"stockflow/internal/infrastructure/storage/memory"
)

var (
	cashier = security.Actor{ID: "cashier-1", Roles: []string{security.RoleCashier}}
	clerk   = security.Actor{ID: "clerk-1", Roles: []string{security.RoleClerk}}

	customer = ledger.CounterpartyParty("ACME")
	shop     = ledger.WarehouseParty("W1")
)

func money(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	ctx   context.Context
	store *memory.Store
	svc   *settlement.Service
	clock time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	authz, err := security.NewCELAuthorizer(security.DefaultRules)
	require.NoError(t, err)

	store := memory.NewStore()
	f := &fixture{
		ctx:   context.Background(),
		store: store,
		clock: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
	}
	f.svc = settlement.NewService(store, store.Debts(), store.Payments(), authz, store.Outbox()).
		WithClock(func() time.Time { return f.clock })
	return f
}

// post creates a debt one minute after the previous one so ordering is explicit.
func (f *fixture) post(t *testing.T, debtor, creditor ledger.Party, amount string) *ledger.DebtEntry {
	t.Helper()
	f.clock = f.clock.Add(time.Minute)
	entry, err := f.svc.PostDebt(f.ctx, settlement.Posting{
		Debtor: debtor, Creditor: creditor, SourceDocumentID: id.New(), Amount: money(amount),
	})
	require.NoError(t, err)
	return entry
}

func (f *fixture) debt(t *testing.T, entryID id.ID) *ledger.DebtEntry {
	t.Helper()
	entry, err := f.store.Debts().Get(f.ctx, entryID)
	require.NoError(t, err)
	return entry
}

func TestPartialThenSettled(t *testing.T) {
	f := newFixture(t)
	entry := f.post(t, customer, shop, "1000000")

	first, err := f.svc.AllocatePayment(f.ctx, cashier, settlement.PaymentRequest{
		Payer: customer, Payee: shop, Amount: money("400000"), Method: "bank",
		DocumentID: &entry.SourceDocumentID,
	})
	require.NoError(t, err)
	require.Len(t, first.Allocations, 1)
	assert.True(t, first.Unallocated.IsZero())

	got := f.debt(t, entry.ID)
	assert.Equal(t, ledger.DebtPartial, got.Status)
	assert.True(t, got.AmountPaid.Equal(money("400000")))

	second, err := f.svc.AllocatePayment(f.ctx, cashier, settlement.PaymentRequest{
		Payer: customer, Payee: shop, Amount: money("600000"), Method: "bank",
	})
	require.NoError(t, err)
	assert.True(t, second.Unallocated.IsZero())

	got = f.debt(t, entry.ID)
	assert.Equal(t, ledger.DebtSettled, got.Status)
	assert.True(t, got.AmountPaid.Equal(got.AmountDue))
}

func TestTargetedOverpaymentChangesNothing(t *testing.T) {
	f := newFixture(t)
	entry := f.post(t, customer, shop, "1000000")
	_, err := f.svc.AllocatePayment(f.ctx, cashier, settlement.PaymentRequest{
		Payer: customer, Payee: shop, Amount: money("400000"), DocumentID: &entry.SourceDocumentID,
	})
	require.NoError(t, err)

	_, err = f.svc.AllocatePayment(f.ctx, cashier, settlement.PaymentRequest{
		Payer: customer, Payee: shop, Amount: money("700000"), DocumentID: &entry.SourceDocumentID,
	})
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeOverpayment, appErr.Code)
	assert.Equal(t, "600000", appErr.Details["remaining"])

	got := f.debt(t, entry.ID)
	assert.True(t, got.AmountPaid.Equal(money("400000")))
	assert.Equal(t, ledger.DebtPartial, got.Status)

	payments, err := f.store.Payments().List(f.ctx, ledger.PaymentFilter{})
	require.NoError(t, err)
	assert.Len(t, payments, 1)
}

func TestUntargetedAllocatesOldestFirst(t *testing.T) {
	f := newFixture(t)
	oldest := f.post(t, customer, shop, "100")
	middle := f.post(t, customer, shop, "200")
	newest := f.post(t, customer, shop, "300")
	other := f.post(t, customer, ledger.WarehouseParty("W2"), "50")

	payment, err := f.svc.AllocatePayment(f.ctx, cashier, settlement.PaymentRequest{
		Payer: customer, Payee: shop, Amount: money("250"),
	})
	require.NoError(t, err)

	require.Len(t, payment.Allocations, 2)
	assert.Equal(t, oldest.ID, payment.Allocations[0].DebtEntryID)
	assert.True(t, payment.Allocations[0].Amount.Equal(money("100")))
	assert.Equal(t, middle.ID, payment.Allocations[1].DebtEntryID)
	assert.True(t, payment.Allocations[1].Amount.Equal(money("150")))

	assert.Equal(t, ledger.DebtSettled, f.debt(t, oldest.ID).Status)
	assert.Equal(t, ledger.DebtPartial, f.debt(t, middle.ID).Status)
	assert.Equal(t, ledger.DebtOpen, f.debt(t, newest.ID).Status)
	assert.Equal(t, ledger.DebtOpen, f.debt(t, other.ID).Status)
}

func TestAllocationLaw(t *testing.T) {
	f := newFixture(t)
	f.post(t, customer, shop, "10.50")
	f.post(t, customer, shop, "20.25")

	for _, amount := range []string{"5", "30", "100.01"} {
		payment, err := f.svc.AllocatePayment(f.ctx, cashier, settlement.PaymentRequest{
			Payer: customer, Payee: shop, Amount: money(amount),
		})
		require.NoError(t, err)

		sum := payment.Unallocated
		for _, a := range payment.Allocations {
			assert.True(t, a.Amount.IsPositive())
			sum = sum.Add(a.Amount)
		}
		assert.True(t, sum.Equal(payment.Amount), "allocations + unallocated = amount for %s", amount)
		assert.False(t, payment.Unallocated.IsNegative())
	}

	debts, err := f.store.Debts().List(f.ctx, ledger.DebtFilter{Debtor: customer})
	require.NoError(t, err)
	for _, d := range debts {
		assert.Equal(t, ledger.DebtSettled, d.Status)
		assert.False(t, d.AmountPaid.GreaterThan(d.AmountDue))
	}
}

func TestPostDebtIsIdempotent(t *testing.T) {
	f := newFixture(t)
	source := id.New()
	posting := settlement.Posting{Debtor: customer, Creditor: shop, SourceDocumentID: source, Amount: money("10")}

	first, err := f.svc.PostDebt(f.ctx, posting)
	require.NoError(t, err)
	second, err := f.svc.PostDebt(f.ctx, posting)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	debts, err := f.store.Debts().List(f.ctx, ledger.DebtFilter{})
	require.NoError(t, err)
	assert.Len(t, debts, 1)
}

func TestPaymentValidation(t *testing.T) {
	f := newFixture(t)
	entry := f.post(t, customer, shop, "10")

	tests := []struct {
		name string
		req  settlement.PaymentRequest
		code string
	}{
		{"zero amount", settlement.PaymentRequest{Payer: customer, Payee: shop, Amount: decimal.Zero}, apperror.CodeValidation},
		{"same party", settlement.PaymentRequest{Payer: shop, Payee: shop, Amount: money("1")}, apperror.CodeValidation},
		{"bad party", settlement.PaymentRequest{Payer: "ACME", Payee: shop, Amount: money("1")}, apperror.CodeValidation},
		{"wrong pair", settlement.PaymentRequest{
			Payer: ledger.CounterpartyParty("OTHER"), Payee: shop, Amount: money("1"), DocumentID: &entry.SourceDocumentID,
		}, apperror.CodeValidation},
		{"unknown target", settlement.PaymentRequest{
			Payer: customer, Payee: shop, Amount: money("1"), DocumentID: ptr(id.New()),
		}, apperror.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.AllocatePayment(f.ctx, cashier, tt.req)
			assert.True(t, apperror.HasCode(err, tt.code), "got %v", err)
		})
	}

	_, err := f.svc.AllocatePayment(f.ctx, clerk, settlement.PaymentRequest{Payer: customer, Payee: shop, Amount: money("1")})
	assert.True(t, apperror.HasCode(err, apperror.CodeAuthorization))
}

func ptr[T any](v T) *T { return &v }
