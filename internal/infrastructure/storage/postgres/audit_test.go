package postgres

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditSnapshotCompression(t *testing.T) {
	r, err := NewAuditRecorder(nil)
	require.NoError(t, err)

	small := []byte(`{"state":"DRAFT"}`)
	out, algo := r.compress(small)
	assert.Equal(t, CompressionNone, algo)
	assert.Equal(t, small, out)

	large := bytes.Repeat([]byte(`{"item_key":"P-100","quantity":1},`), 500)
	out, algo = r.compress(large)
	require.Equal(t, CompressionZstd, algo)
	assert.Less(t, len(out), len(large))

	restored, err := r.decoder.DecodeAll(out, nil)
	require.NoError(t, err)
	assert.Equal(t, large, restored)
}
