package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"

	"stockflow/internal/core/apperror"
	"stockflow/internal/infrastructure/idempotency"
)

type idempotencyRecord struct {
	Key         string             `db:"idempotency_key"`
	UserID      string             `db:"user_id"`
	Operation   string             `db:"operation"`
	Status      idempotency.Status `db:"status"`
	RequestHash string             `db:"request_hash"`
	Response    []byte             `db:"response"`
	StatusCode  int                `db:"response_status"`
	ContentType string             `db:"response_content_type"`
	UpdatedAt   time.Time          `db:"updated_at"`
	ExpiresAt   time.Time          `db:"expires_at"`
}

var _ idempotency.Store = (*IdempotencyStore)(nil)

// IdempotencyStore keeps idempotency keys in sys_idempotency.
type IdempotencyStore struct {
	txm *TxManager
	ttl time.Duration
}

// NewIdempotencyStore creates a store whose keys live for ttl.
func NewIdempotencyStore(txm *TxManager, ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = idempotency.DefaultTTL
	}
	return &IdempotencyStore{txm: txm, ttl: ttl}
}

// Acquire claims the key, or reports what happened to it before.
func (s *IdempotencyStore) Acquire(ctx context.Context, req idempotency.Request) (*idempotency.Replay, error) {
	var replay *idempotency.Replay
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		q := s.txm.GetQuerier(ctx)
		now := time.Now().UTC()

		tag, err := q.Exec(ctx, `
			INSERT INTO sys_idempotency (idempotency_key, user_id, operation, status, request_hash, created_at, updated_at, expires_at)
			VALUES ($1, $2, $3, $4, $5, $6, $6, $7)
			ON CONFLICT (idempotency_key) DO NOTHING
		`, req.Key, req.UserID, req.Operation, idempotency.StatusPending, req.RequestHash, now, now.Add(s.ttl))
		if err != nil {
			return fmt.Errorf("acquire idempotency key: %w", err)
		}
		if tag.RowsAffected() == 1 {
			return nil
		}

		var rec idempotencyRecord
		if err := pgxscan.Get(ctx, q, &rec, `
			SELECT idempotency_key, user_id, operation, status, request_hash, response,
			       response_status, response_content_type, updated_at, expires_at
			FROM sys_idempotency
			WHERE idempotency_key = $1
			FOR UPDATE
		`, req.Key); err != nil {
			return fmt.Errorf("load idempotency key: %w", err)
		}

		if now.After(rec.ExpiresAt) {
			return s.reclaim(ctx, req, now)
		}
		if err := idempotency.CheckSameRequest(idempotency.Request{
			Key: rec.Key, UserID: rec.UserID, Operation: rec.Operation, RequestHash: rec.RequestHash,
		}, req); err != nil {
			return err
		}

		switch rec.Status {
		case idempotency.StatusPending:
			if now.Sub(rec.UpdatedAt) > idempotency.StalePendingAfter {
				return s.reclaim(ctx, req, now)
			}
			return apperror.NewIdempotencyConflict(req.Key)
		default:
			r := idempotency.NormalizeReplay(idempotency.Replay{
				StatusCode: rec.StatusCode, ContentType: rec.ContentType, Body: rec.Response,
			})
			replay = &r
			return nil
		}
	})
	return replay, err
}

func (s *IdempotencyStore) reclaim(ctx context.Context, req idempotency.Request, now time.Time) error {
	_, err := s.txm.GetQuerier(ctx).Exec(ctx, `
		UPDATE sys_idempotency
		SET user_id = $2, operation = $3, request_hash = $4, status = $5,
		    response = NULL, response_status = 0, response_content_type = '',
		    updated_at = $6, expires_at = $7
		WHERE idempotency_key = $1
	`, req.Key, req.UserID, req.Operation, req.RequestHash, idempotency.StatusPending, now, now.Add(s.ttl))
	if err != nil {
		return fmt.Errorf("reclaim idempotency key: %w", err)
	}
	return nil
}

// Complete stores the response the key will replay.
func (s *IdempotencyStore) Complete(ctx context.Context, key string, status idempotency.Status, resp idempotency.Replay) error {
	_, err := s.txm.GetQuerier(ctx).Exec(ctx, `
		UPDATE sys_idempotency
		SET status = $1, response = $2, response_status = $3, response_content_type = $4, updated_at = $5
		WHERE idempotency_key = $6
	`, status, resp.Body, resp.StatusCode, resp.ContentType, time.Now().UTC(), key)
	if err != nil {
		return fmt.Errorf("complete idempotency key: %w", err)
	}
	return nil
}

// Release deletes the key.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	if _, err := s.txm.GetQuerier(ctx).Exec(ctx,
		"DELETE FROM sys_idempotency WHERE idempotency_key = $1", key); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}

// CleanupExpired removes expired keys.
func (s *IdempotencyStore) CleanupExpired(ctx context.Context) (int64, error) {
	tag, err := s.txm.GetQuerier(ctx).Exec(ctx,
		"DELETE FROM sys_idempotency WHERE expires_at < $1", time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("cleanup idempotency keys: %w", err)
	}
	return tag.RowsAffected(), nil
}
