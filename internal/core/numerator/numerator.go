// Package numerator assigns human-readable document numbers such as TN-2026-00042.
package numerator

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Config describes one numbering series.
type Config struct {
	// Prefix added to all numbers (e.g. "PO", "TN")
	Prefix string

	// PadWidth is the minimum counter width (default 5)
	PadWidth int

	// ResetYearly starts a new counter every calendar year and embeds the year.
	ResetYearly bool
}

// DefaultConfig returns a yearly series padded to 5 digits.
func DefaultConfig(prefix string) Config {
	return Config{Prefix: prefix, PadWidth: 5, ResetYearly: true}
}

// Sequencer hands out the next value of a named counter. Calls inside a
// transaction must roll back with it, so numbers stay gapless.
type Sequencer interface {
	NextValue(ctx context.Context, key string) (int64, error)
}

// Generator formats sequence values into document numbers.
type Generator struct {
	seq Sequencer
}

// NewGenerator creates a generator over seq.
func NewGenerator(seq Sequencer) *Generator {
	return &Generator{seq: seq}
}

// Next returns the next number of the series for period.
func (g *Generator) Next(ctx context.Context, cfg Config, period time.Time) (string, error) {
	key := SequenceKey(cfg, period)
	n, err := g.seq.NextValue(ctx, key)
	if err != nil {
		return "", fmt.Errorf("next value for %s: %w", key, err)
	}
	return Format(cfg, period, n), nil
}

// SequenceKey identifies the counter row for cfg in period.
func SequenceKey(cfg Config, period time.Time) string {
	if cfg.ResetYearly {
		return fmt.Sprintf("%s:%d", strings.ToUpper(cfg.Prefix), period.Year())
	}
	return strings.ToUpper(cfg.Prefix)
}

// Format renders n for cfg.
func Format(cfg Config, period time.Time, n int64) string {
	width := cfg.PadWidth
	if width <= 0 {
		width = 5
	}
	if cfg.ResetYearly {
		return fmt.Sprintf("%s-%d-%0*d", cfg.Prefix, period.Year(), width, n)
	}
	return fmt.Sprintf("%s-%0*d", cfg.Prefix, width, n)
}
