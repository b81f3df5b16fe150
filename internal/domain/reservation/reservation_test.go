package reservation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockflow/internal/core/apperror"
	"stockflow/internal/core/types"
	"stockflow/internal/domain/ledger"
)

func balance(onHand, locked, held int64) *ledger.StockBalance {
	return &ledger.StockBalance{
		Warehouse: "W1", ItemKey: "P-1",
		OnHand: types.Units(onHand), Locked: types.Units(locked), Held: types.Units(held),
	}
}

func TestReserve(t *testing.T) {
	b := balance(10, 2, 3)

	require.NoError(t, Reserve(b, types.Units(5)))
	assert.Equal(t, types.Units(7), b.Locked)
	assert.Equal(t, types.Units(0), b.Available())

	err := Reserve(b, types.Units(1))
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeInsufficientStock, appErr.Code)
	assert.Equal(t, "0.0000", appErr.Details["available"])
	assert.Equal(t, types.Units(7), b.Locked)

	assert.True(t, apperror.HasCode(Reserve(b, 0), apperror.CodeValidation))
}

func TestReleaseClamps(t *testing.T) {
	b := balance(10, 2, 0)
	Release(b, types.Units(5))
	assert.Equal(t, types.Quantity(0), b.Locked)

	Release(b, types.Units(1))
	assert.Equal(t, types.Quantity(0), b.Locked)
}

func TestCommitPhysical(t *testing.T) {
	b := balance(10, 4, 0)

	require.NoError(t, CommitPhysical(b, types.Units(6), Outbound))
	assert.Equal(t, types.Units(4), b.OnHand)

	err := CommitPhysical(b, types.Units(1), Outbound)
	assert.True(t, apperror.HasCode(err, apperror.CodeNegativeStock))
	assert.Equal(t, types.Units(4), b.OnHand)

	require.NoError(t, CommitPhysical(b, types.Units(3), Inbound))
	assert.Equal(t, types.Units(7), b.OnHand)
}

func TestHoldAndUnhold(t *testing.T) {
	b := balance(5, 2, 0)

	require.NoError(t, Hold(b, types.Units(3)))
	assert.Equal(t, types.Units(3), b.Held)
	assert.True(t, apperror.HasCode(Hold(b, types.Units(1)), apperror.CodeInsufficientStock))
	assert.True(t, apperror.HasCode(Reserve(b, types.Units(1)), apperror.CodeInsufficientStock))

	Unhold(b, types.Units(10))
	assert.Equal(t, types.Quantity(0), b.Held)
}

func TestSortedKeys(t *testing.T) {
	keys := SortedKeys([]ledger.BalanceKey{
		ledger.Key("W2", "A"), ledger.Key("W1", "B"), ledger.Key("W1", "A"), ledger.Key("W2", "A"),
	})
	assert.Equal(t, []ledger.BalanceKey{
		ledger.Key("W1", "A"), ledger.Key("W1", "B"), ledger.Key("W2", "A"),
	}, keys)
}
