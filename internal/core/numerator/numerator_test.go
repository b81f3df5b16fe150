package numerator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counterSeq map[string]int64

func (c counterSeq) NextValue(_ context.Context, key string) (int64, error) {
	c[key]++
	return c[key], nil
}

type failingSeq struct{}

func (failingSeq) NextValue(context.Context, string) (int64, error) {
	return 0, errors.New("db down")
}

func TestGeneratorNext(t *testing.T) {
	seq := counterSeq{}
	gen := NewGenerator(seq)
	period := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	first, err := gen.Next(context.Background(), DefaultConfig("TN"), period)
	require.NoError(t, err)
	second, err := gen.Next(context.Background(), DefaultConfig("TN"), period)
	require.NoError(t, err)
	other, err := gen.Next(context.Background(), DefaultConfig("PO"), period)
	require.NoError(t, err)

	assert.Equal(t, "TN-2026-00001", first)
	assert.Equal(t, "TN-2026-00002", second)
	assert.Equal(t, "PO-2026-00001", other)
	assert.Equal(t, int64(2), seq["TN:2026"])
}

func TestFormatWithoutYear(t *testing.T) {
	cfg := Config{Prefix: "CV", PadWidth: 3}
	assert.Equal(t, "CV-007", Format(cfg, time.Now(), 7))
	assert.Equal(t, "CV", SequenceKey(cfg, time.Now()))
}

func TestGeneratorPropagatesErrors(t *testing.T) {
	_, err := NewGenerator(failingSeq{}).Next(context.Background(), DefaultConfig("SI"), time.Now())
	assert.ErrorContains(t, err, "db down")
}
