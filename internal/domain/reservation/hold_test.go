package reservation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockflow/internal/core/apperror"
	"stockflow/internal/core/security"
	"stockflow/internal/core/types"
	"stockflow/internal/domain/ledger"
	"stockflow/internal/domain/reservation"
	"stockflow/internal/infrastructure/storage/memory"
)

func seed(t *testing.T, store *memory.Store, key ledger.BalanceKey, onHand int64) {
	t.Helper()
	b, err := store.Balances().Get(context.Background(), key)
	require.NoError(t, err)
	b.OnHand = types.Units(onHand)
	_, err = store.Balances().Save(context.Background(), b)
	require.NoError(t, err)
}

func TestHoldServicePlaceAndRelease(t *testing.T) {
	store := memory.NewStore()
	key := ledger.Key("W1", "P-1")
	seed(t, store, key, 6)

	authz, err := security.NewCELAuthorizer(security.DefaultRules)
	require.NoError(t, err)
	svc := reservation.NewHoldService(store, store.Balances(), authz)
	manager := security.Actor{ID: "m1", Roles: []string{security.RoleManager}}
	clerk := security.Actor{ID: "c1", Roles: []string{security.RoleClerk}}
	ctx := context.Background()

	_, err = svc.Place(ctx, clerk, reservation.HoldRequest{Warehouse: "W1", ItemKey: "P-1", Quantity: types.Units(1)})
	assert.True(t, apperror.HasCode(err, apperror.CodeAuthorization))

	b, err := svc.Place(ctx, manager, reservation.HoldRequest{Warehouse: "W1", ItemKey: "P-1", Quantity: types.Units(4)})
	require.NoError(t, err)
	assert.Equal(t, types.Units(4), b.Held)
	assert.Equal(t, types.Units(2), b.Available())

	_, err = svc.Place(ctx, manager, reservation.HoldRequest{Warehouse: "W1", ItemKey: "P-1", Quantity: types.Units(3)})
	assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientStock))

	b, err = svc.Release(ctx, manager, reservation.HoldRequest{Warehouse: "W1", ItemKey: "P-1", Quantity: types.Units(10)})
	require.NoError(t, err)
	assert.Equal(t, types.Quantity(0), b.Held)

	_, err = svc.Place(ctx, manager, reservation.HoldRequest{Warehouse: "W1", ItemKey: "P-1"})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}

func TestBatchFlushesInKeyOrder(t *testing.T) {
	store := memory.NewStore()
	a, b := ledger.Key("W1", "A"), ledger.Key("W2", "B")
	seed(t, store, a, 5)
	seed(t, store, b, 5)

	err := store.RunInTransaction(context.Background(), func(ctx context.Context) error {
		batch := reservation.NewBatch(store.Balances())
		require.NoError(t, batch.Load(ctx, b, a, b))

		require.NoError(t, batch.Reserve(b, types.Units(2)))
		require.NoError(t, batch.Commit(a, types.Units(1), reservation.Inbound))
		assert.True(t, apperror.HasCode(batch.Reserve(ledger.Key("W3", "C"), 1), apperror.CodeInternal))

		saved, err := batch.Flush(ctx, time.Now())
		require.NoError(t, err)
		require.Len(t, saved, 2)
		assert.Equal(t, a, saved[0].Key())
		assert.Equal(t, b, saved[1].Key())
		return nil
	})
	require.NoError(t, err)

	got, err := store.Balances().Get(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, types.Units(6), got.OnHand)
	got, err = store.Balances().Get(context.Background(), b)
	require.NoError(t, err)
	assert.Equal(t, types.Units(2), got.Locked)
}
