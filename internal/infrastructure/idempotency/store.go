// Package idempotency lets a retried mutating request replay the response of
// the first attempt instead of running twice.
package idempotency

import (
	"context"
	"sync"
	"time"

	"stockflow/internal/core/apperror"
)

// Status of a key.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// StalePendingAfter is how long a pending key may stay claimed before another
// request may take it over (the first one most likely crashed).
const StalePendingAfter = time.Minute

// DefaultTTL applies when a store is created with a non-positive ttl.
const DefaultTTL = 24 * time.Hour

// Request identifies one use of a key.
type Request struct {
	Key         string
	UserID      string
	Operation   string
	RequestHash string
}

// Replay is a stored HTTP response.
type Replay struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Store persists keys and responses.
type Store interface {
	// Acquire returns (nil, nil) when the caller now owns the key, a Replay when
	// the key already completed, or an AppError when it is in flight or reused
	// for a different request.
	Acquire(ctx context.Context, req Request) (*Replay, error)
	Complete(ctx context.Context, key string, status Status, resp Replay) error
	// Release forgets a key so the request can be retried, e.g. after a 5xx.
	Release(ctx context.Context, key string) error
}

// MemoryStore is a Store for the in-memory server mode and tests.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	records map[string]*memoryRecord
}

type memoryRecord struct {
	req       Request
	status    Status
	resp      Replay
	updatedAt time.Time
	expiresAt time.Time
}

// NewMemoryStore creates a MemoryStore whose keys live for ttl.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{ttl: ttl, now: time.Now, records: make(map[string]*memoryRecord)}
}

func (s *MemoryStore) Acquire(_ context.Context, req Request) (*Replay, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	rec, ok := s.records[req.Key]
	if !ok || now.After(rec.expiresAt) {
		s.records[req.Key] = &memoryRecord{req: req, status: StatusPending, updatedAt: now, expiresAt: now.Add(s.ttl)}
		return nil, nil
	}
	if err := CheckSameRequest(rec.req, req); err != nil {
		return nil, err
	}
	switch rec.status {
	case StatusPending:
		if now.Sub(rec.updatedAt) > StalePendingAfter {
			rec.updatedAt = now
			return nil, nil
		}
		return nil, apperror.NewIdempotencyConflict(req.Key)
	default:
		r := rec.resp
		return &r, nil
	}
}

func (s *MemoryStore) Complete(_ context.Context, key string, status Status, resp Replay) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[key]; ok {
		rec.status = status
		rec.resp = resp
		rec.updatedAt = s.now()
	}
	return nil
}

func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}

// CheckSameRequest rejects a key reused by another user, route or body.
func CheckSameRequest(stored, req Request) error {
	if stored.UserID != req.UserID || stored.Operation != req.Operation || stored.RequestHash != req.RequestHash {
		return apperror.NewIdempotencyMismatch(req.Key).
			WithDetail("stored_operation", stored.Operation).
			WithDetail("request_operation", req.Operation)
	}
	return nil
}

// NormalizeReplay fills defaults for rows written without a status or content type.
func NormalizeReplay(r Replay) Replay {
	if r.StatusCode == 0 {
		r.StatusCode = 200
	}
	if r.ContentType == "" && len(r.Body) > 0 {
		r.ContentType = "application/json"
	}
	return r
}
