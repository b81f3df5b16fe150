package postgres

import (
	"context"
	"fmt"
)

// Sequences implements numerator.Sequencer on sys_sequences.
// The increment is part of the caller's transaction, so a rolled back draft
// does not consume a number.
type Sequences struct {
	txm *TxManager
}

// NewSequences creates a sequencer.
func NewSequences(txm *TxManager) *Sequences {
	return &Sequences{txm: txm}
}

func (s *Sequences) NextValue(ctx context.Context, key string) (int64, error) {
	var v int64
	err := s.txm.GetQuerier(ctx).QueryRow(ctx, `
		INSERT INTO sys_sequences (key, value, updated_at)
		VALUES ($1, 1, now())
		ON CONFLICT (key) DO UPDATE SET value = sys_sequences.value + 1, updated_at = now()
		RETURNING value
	`, key).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("next value for %s: %w", key, err)
	}
	return v, nil
}
