package postgres

import (
	"context"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"stockflow/internal/core/id"
	"stockflow/internal/domain/audit"
)

// CompressionAlgo marks how a snapshot is stored.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// defaultCompressThreshold in bytes. Smaller snapshots are stored as is.
const defaultCompressThreshold = 4 * 1024

var _ audit.Recorder = (*AuditRecorder)(nil)

// AuditRecorder writes document history to sys_audit_log. Large snapshots
// are zstd-compressed.
type AuditRecorder struct {
	txm               *TxManager
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int
}

// NewAuditRecorder creates a recorder.
func NewAuditRecorder(txm *TxManager) (*AuditRecorder, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &AuditRecorder{
		txm:               txm,
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: defaultCompressThreshold,
	}, nil
}

func (r *AuditRecorder) Record(ctx context.Context, e audit.Entry) error {
	if id.IsNil(e.ID) {
		e.ID = id.New()
	}

	snapshot, algo := r.compress(e.Snapshot)
	_, err := r.txm.GetQuerier(ctx).Exec(ctx, `
		INSERT INTO sys_audit_log (
			id, document_id, action, from_state, to_state, actor_id, reason,
			snapshot, compression_algo, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, e.ID, e.DocumentID, e.Action, e.FromState, e.ToState, e.Actor, e.Reason,
		snapshot, algo, e.At)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// List returns the history of a document oldest first, snapshots decompressed.
func (r *AuditRecorder) List(ctx context.Context, documentID id.ID) ([]audit.Entry, error) {
	rows, err := r.txm.GetQuerier(ctx).Query(ctx, `
		SELECT id, document_id, action, from_state, to_state, actor_id, reason,
		       snapshot, compression_algo, created_at
		FROM sys_audit_log
		WHERE document_id = $1
		ORDER BY created_at, id
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []audit.Entry
	for rows.Next() {
		var (
			e    audit.Entry
			algo CompressionAlgo
		)
		if err := rows.Scan(&e.ID, &e.DocumentID, &e.Action, &e.FromState, &e.ToState,
			&e.Actor, &e.Reason, &e.Snapshot, &algo, &e.At); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if algo == CompressionZstd && len(e.Snapshot) > 0 {
			if e.Snapshot, err = r.decoder.DecodeAll(e.Snapshot, nil); err != nil {
				return nil, fmt.Errorf("decompress snapshot: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *AuditRecorder) compress(snapshot []byte) ([]byte, CompressionAlgo) {
	if len(snapshot) <= r.compressThreshold {
		return snapshot, CompressionNone
	}
	return r.encoder.EncodeAll(snapshot, nil), CompressionZstd
}
