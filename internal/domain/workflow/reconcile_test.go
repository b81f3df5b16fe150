package workflow_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockflow/internal/core/apperror"
	"stockflow/internal/core/types"
	"stockflow/internal/domain/ledger"
	"stockflow/internal/domain/reservation"
)

func (h *harness) setLocked(t *testing.T, warehouse, item string, units int64) {
	t.Helper()
	b, err := h.store.Balances().Get(h.ctx, ledger.Key(warehouse, item))
	require.NoError(t, err)
	b.Locked = types.Units(units)
	_, err = h.store.Balances().Save(h.ctx, b)
	require.NoError(t, err)
}

func TestReconcileReleasesOrphanLocks(t *testing.T) {
	h := newHarness(t)
	h.stock(t, "W1", "P-1", 10)
	doc := h.draft(t, transfer("W1", "W2"), part("P-1", 3, "1"))
	_, err := h.engine.Submit(h.ctx, doc.ID, clerk)
	require.NoError(t, err)

	// Simulate a crash that left an extra lock behind.
	h.setLocked(t, "W1", "P-1", 7)

	report, err := h.reconciler.Run(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.PendingDocuments)
	require.Len(t, report.Corrections, 1)
	c := report.Corrections[0]
	assert.Equal(t, ledger.Key("W1", "P-1"), c.Key)
	assert.Equal(t, types.Units(7), c.Before)
	assert.Equal(t, types.Units(3), c.After)

	assert.Equal(t, types.Units(3), h.balance(t, "W1", "P-1").Locked)

	again, err := h.reconciler.Run(h.ctx)
	require.NoError(t, err)
	assert.Empty(t, again.Corrections)
}

func TestReconcileRestoresMissingLocksAndKeepsHolds(t *testing.T) {
	h := newHarness(t)
	h.stock(t, "W1", "P-2", 10)
	doc := h.draft(t, sale("W1", "ACME"), part("P-2", 4, "1"))
	_, err := h.engine.Submit(h.ctx, doc.ID, clerk)
	require.NoError(t, err)

	holds := reservation.NewHoldService(h.store, h.store.Balances(), allowAll())
	_, err = holds.Place(h.ctx, manager, reservation.HoldRequest{
		Warehouse: "W1", ItemKey: "P-2", Quantity: types.Units(5), Reason: "display",
	})
	require.NoError(t, err)

	h.setLocked(t, "W1", "P-2", 0)

	report, err := h.reconciler.Run(h.ctx)
	require.NoError(t, err)
	require.Len(t, report.Corrections, 1)
	assert.Equal(t, types.Units(4), report.Corrections[0].After)
	assert.Equal(t, types.Quantity(0), report.Corrections[0].Shortfall)

	b := h.balance(t, "W1", "P-2")
	assert.Equal(t, types.Units(4), b.Locked)
	assert.Equal(t, types.Units(5), b.Held)
}

func TestReconcileClampsToAvailable(t *testing.T) {
	h := newHarness(t)
	h.stock(t, "W1", "P-1", 5)
	doc := h.draft(t, transfer("W1", "W3"), part("P-1", 5, "1"))
	_, err := h.engine.Submit(h.ctx, doc.ID, clerk)
	require.NoError(t, err)

	// on_hand shrank behind the engine's back and the lock was lost.
	b, err := h.store.Balances().Get(h.ctx, ledger.Key("W1", "P-1"))
	require.NoError(t, err)
	b.OnHand = types.Units(2)
	b.Locked = 0
	_, err = h.store.Balances().Save(h.ctx, b)
	require.NoError(t, err)

	report, err := h.reconciler.Run(h.ctx)
	require.NoError(t, err)
	require.Len(t, report.Corrections, 1)
	assert.Equal(t, types.Units(2), report.Corrections[0].After)
	assert.Equal(t, types.Units(3), report.Corrections[0].Shortfall)
	assert.NoError(t, h.balance(t, "W1", "P-1").CheckInvariant())
}

func TestReconcileRequiresCapability(t *testing.T) {
	h := newHarness(t)

	_, err := h.reconciler.RunAs(h.ctx, clerk)
	assert.True(t, apperror.HasCode(err, apperror.CodeAuthorization))

	_, err = h.reconciler.RunAs(h.ctx, admin)
	assert.NoError(t, err)
}
