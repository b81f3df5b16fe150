// Package cache provides Redis-backed caching and coordination.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"stockflow/internal/domain/document"
	"stockflow/pkg/logger"
)

const masterDataPrefix = "stockflow:md:"

var _ document.MasterData = (*MasterData)(nil)

// MasterData is a read-through cache in front of a document.MasterData.
// Only positive answers are cached: reference data is added, never removed,
// so a cached "exists" cannot go stale while a "missing" could. Items cache
// their kind.
// Redis failures fall through to the backend.
type MasterData struct {
	client  redis.UniversalClient
	backend document.MasterData
	ttl     time.Duration
}

// NewMasterData wraps backend.
func NewMasterData(client redis.UniversalClient, backend document.MasterData, ttl time.Duration) *MasterData {
	return &MasterData{client: client, backend: backend, ttl: ttl}
}

func (m *MasterData) WarehouseExists(ctx context.Context, code string) (bool, error) {
	_, ok, err := m.lookup(ctx, "warehouse:"+code, func() (string, bool, error) {
		ok, err := m.backend.WarehouseExists(ctx, code)
		return "1", ok, err
	})
	return ok, err
}

func (m *MasterData) ItemKind(ctx context.Context, itemKey string) (document.ItemKind, bool, error) {
	kind, ok, err := m.lookup(ctx, "item:"+itemKey, func() (string, bool, error) {
		kind, ok, err := m.backend.ItemKind(ctx, itemKey)
		return string(kind), ok, err
	})
	return document.ItemKind(kind), ok, err
}

func (m *MasterData) lookup(ctx context.Context, key string, load func() (string, bool, error)) (string, bool, error) {
	key = masterDataPrefix + key

	value, err := m.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		return value, true, nil
	case !errors.Is(err, redis.Nil):
		logger.Warn(ctx, "master data cache read failed", "key", key, "error", err)
	}

	value, ok, err := load()
	if err != nil || !ok {
		return "", ok, err
	}
	if err := m.client.Set(ctx, key, value, m.ttl).Err(); err != nil {
		logger.Warn(ctx, "master data cache write failed", "key", key, "error", err)
	}
	return value, true, nil
}
