package idempotency

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockflow/internal/core/apperror"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s := NewMemoryStore(time.Hour)
	s.now = func() time.Time { return now }

	req := Request{Key: "k1", UserID: "u1", Operation: "POST /documents", RequestHash: "h1"}

	replay, err := s.Acquire(ctx, req)
	require.NoError(t, err)
	assert.Nil(t, replay)

	_, err = s.Acquire(ctx, req)
	assert.True(t, apperror.HasCode(err, apperror.CodeIdempotency))
	assert.Equal(t, http.StatusConflict, apperror.GetHTTPStatus(err))

	other := req
	other.RequestHash = "h2"
	_, err = s.Acquire(ctx, other)
	assert.True(t, apperror.HasCode(err, apperror.CodeIdempotency))
	assert.Equal(t, http.StatusUnprocessableEntity, apperror.GetHTTPStatus(err))

	require.NoError(t, s.Complete(ctx, "k1", StatusSuccess, Replay{StatusCode: 201, ContentType: "application/json", Body: []byte(`{"id":"x"}`)}))
	replay, err = s.Acquire(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, replay)
	assert.Equal(t, 201, replay.StatusCode)
	assert.JSONEq(t, `{"id":"x"}`, string(replay.Body))

	now = now.Add(2 * time.Hour)
	replay, err = s.Acquire(ctx, other)
	require.NoError(t, err)
	assert.Nil(t, replay, "expired keys are claimable again")
}

func TestMemoryStoreRelease(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Hour)
	req := Request{Key: "k", UserID: "u", Operation: "op", RequestHash: "h"}

	_, err := s.Acquire(ctx, req)
	require.NoError(t, err)
	require.NoError(t, s.Release(ctx, "k"))

	replay, err := s.Acquire(ctx, req)
	require.NoError(t, err)
	assert.Nil(t, replay)
}

func TestMemoryStoreStalePending(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s := NewMemoryStore(time.Hour)
	s.now = func() time.Time { return now }
	req := Request{Key: "k", UserID: "u", Operation: "op", RequestHash: "h"}

	_, err := s.Acquire(ctx, req)
	require.NoError(t, err)

	now = now.Add(StalePendingAfter + time.Second)
	replay, err := s.Acquire(ctx, req)
	require.NoError(t, err)
	assert.Nil(t, replay)
}
