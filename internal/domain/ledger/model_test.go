package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockflow/internal/core/apperror"
	"stockflow/internal/core/types"
)

func TestBalanceAvailableAndInvariant(t *testing.T) {
	b := StockBalance{Warehouse: "W1", ItemKey: "P", OnHand: types.Units(10), Locked: types.Units(3), Held: types.Units(2)}
	assert.Equal(t, types.Units(5), b.Available())
	assert.NoError(t, b.CheckInvariant())

	b.Locked = types.Units(9)
	assert.Error(t, b.CheckInvariant())
}

func TestKeyOrdering(t *testing.T) {
	assert.True(t, Key("A", "Z").Less(Key("B", "A")))
	assert.True(t, Key("A", "A").Less(Key("A", "B")))
	assert.False(t, Key("A", "B").Less(Key("A", "B")))
}

func TestPartyValidate(t *testing.T) {
	assert.NoError(t, WarehouseParty("W1").Validate())
	assert.NoError(t, CounterpartyParty("ACME").Validate())
	assert.Error(t, Party("W1").Validate())
	assert.Error(t, Party("warehouse:").Validate())

	kind, code := CounterpartyParty("ACME").Split()
	assert.Equal(t, "counterparty", kind)
	assert.Equal(t, "ACME", code)
}

func TestDebtApplyPayment(t *testing.T) {
	entry := DebtEntry{AmountDue: types.MustMoney("1000000"), Status: DebtOpen}
	now := time.Now()

	require.NoError(t, entry.ApplyPayment(types.MustMoney("400000"), now))
	assert.Equal(t, DebtPartial, entry.Status)
	assert.True(t, entry.Remaining().Equal(types.MustMoney("600000")))

	err := entry.ApplyPayment(types.MustMoney("600001"), now)
	assert.True(t, apperror.HasCode(err, apperror.CodeOverpayment))
	assert.True(t, entry.AmountPaid.Equal(types.MustMoney("400000")))

	require.NoError(t, entry.ApplyPayment(types.MustMoney("600000"), now))
	assert.Equal(t, DebtSettled, entry.Status)
}
