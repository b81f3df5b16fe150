package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"stockflow/pkg/logger"
)

// Leader runs jobs on at most one worker at a time using a Redis lock.
type Leader struct {
	locker *redislock.Client
}

// NewLeader creates a Leader on client.
func NewLeader(client redis.UniversalClient) *Leader {
	return &Leader{locker: redislock.New(client)}
}

// RunExclusive runs fn while holding the lock named key. When another worker
// holds it, fn is skipped and ran is false. fn's context is cancelled when
// the lock TTL runs out.
func (l *Leader) RunExclusive(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) (ran bool, err error) {
	lock, err := l.locker.Obtain(ctx, "lock:"+key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		logger.Debug(ctx, "lock held elsewhere, skipping", "lock", key)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("obtain lock %s: %w", key, err)
	}
	defer func() {
		if releaseErr := lock.Release(context.Background()); releaseErr != nil && !errors.Is(releaseErr, redislock.ErrLockNotHeld) {
			logger.Warn(ctx, "release lock failed", "lock", key, "error", releaseErr)
		}
	}()

	runCtx, cancel := context.WithTimeout(ctx, ttl)
	defer cancel()
	return true, fn(runCtx)
}
