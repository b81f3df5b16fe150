package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockflow/internal/domain/document"
)

type fakeMasterData struct {
	warehouses map[string]bool
	items      map[string]document.ItemKind
	calls      int
}

func (f *fakeMasterData) WarehouseExists(_ context.Context, code string) (bool, error) {
	f.calls++
	return f.warehouses[code], nil
}

func (f *fakeMasterData) ItemKind(_ context.Context, itemKey string) (document.ItemKind, bool, error) {
	f.calls++
	kind, ok := f.items[itemKey]
	return kind, ok, nil
}

// unreachable returns a client whose every command fails fast.
func unreachable(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestMasterDataFallsBackWhenRedisIsDown(t *testing.T) {
	backend := &fakeMasterData{
		warehouses: map[string]bool{"W1": true},
		items:      map[string]document.ItemKind{"VIN-1": document.KindVehicle},
	}
	md := NewMasterData(unreachable(t), backend, time.Minute)

	ok, err := md.WarehouseExists(context.Background(), "W1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = md.WarehouseExists(context.Background(), "W9")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = md.ItemKind(context.Background(), "P-1")
	require.NoError(t, err)
	assert.False(t, ok)

	kind, ok, err := md.ItemKind(context.Background(), "VIN-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, document.KindVehicle, kind)
	assert.Equal(t, 4, backend.calls)
}

func TestLeaderReportsRedisFailure(t *testing.T) {
	leader := NewLeader(unreachable(t))

	ran, err := leader.RunExclusive(context.Background(), "reconcile", time.Second, func(context.Context) error {
		t.Fatal("must not run without the lock")
		return nil
	})
	assert.False(t, ran)
	assert.Error(t, err)
}
