package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/klauspost/compress/zstd"

	"crm/internal/core/id"
	"crm/internal/domain/audit"
)

// CompressionAlgo specifies the compression algorithm of an audit payload.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

const defaultCompressThreshold = 10 * 1024

// auditPayload is what sys_audit stores for one entry.
type auditPayload struct {
	Before  any            `json:"before,omitempty"`
	After   any            `json:"after,omitempty"`
	Changes map[string]any `json:"changes,omitempty"`
}

// AuditRow is a stored audit entry with its payload decoded.
type AuditRow struct {
	ID                id.ID           `db:"id" json:"id"`
	EntityType        string          `db:"entity_type" json:"entityType"`
	EntityID          string          `db:"entity_id" json:"entityId"`
	Action            string          `db:"action" json:"action"`
	UserID            string          `db:"user_id" json:"userId"`
	RequestID         string          `db:"request_id" json:"requestId,omitempty"`
	Changes           json.RawMessage `db:"changes" json:"payload"`
	ChangesCompressed []byte          `db:"changes_compressed" json:"-"`
	CompressionAlgo   CompressionAlgo `db:"compression_algo" json:"-"`
	CreatedAt         time.Time       `db:"created_at" json:"createdAt"`
}

// AuditRecorder writes audit entries to sys_audit. Payloads larger than the
// threshold are stored zstd-compressed.
type AuditRecorder struct {
	db                QuerierProvider
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int
}

var _ audit.Recorder = (*AuditRecorder)(nil)

// NewAuditRecorder creates a recorder. threshold <= 0 selects 10KB.
func NewAuditRecorder(db QuerierProvider, threshold int) (*AuditRecorder, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	if threshold <= 0 {
		threshold = defaultCompressThreshold
	}
	return &AuditRecorder{
		db:                db,
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: threshold,
	}, nil
}

// Record implements audit.Recorder.
func (r *AuditRecorder) Record(ctx context.Context, e audit.Entry) error {
	if id.IsNil(e.ID) {
		e.ID = id.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	plain, compressed, algo, err := r.encode(e)
	if err != nil {
		return err
	}

	_, err = r.db.GetQuerier(ctx).Exec(ctx, `
		INSERT INTO sys_audit (
			id, entity_type, entity_id, action, user_id, request_id,
			changes, changes_compressed, compression_algo, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		e.ID, e.EntityType, e.EntityID, e.Action, e.ActorID, e.RequestID,
		plain, compressed, algo, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// encode marshals the payload and compresses it above the threshold.
func (r *AuditRecorder) encode(e audit.Entry) (json.RawMessage, []byte, CompressionAlgo, error) {
	changes, err := e.Changes()
	if err != nil {
		return nil, nil, "", fmt.Errorf("diff audit entry: %w", err)
	}
	raw, err := json.Marshal(auditPayload{Before: e.Before, After: e.After, Changes: changes})
	if err != nil {
		return nil, nil, "", fmt.Errorf("marshal audit payload: %w", err)
	}
	if len(raw) <= r.compressThreshold {
		return raw, nil, CompressionNone, nil
	}
	return nil, r.encoder.EncodeAll(raw, nil), CompressionZstd, nil
}

func (r *AuditRecorder) decode(row *AuditRow) error {
	if row.CompressionAlgo != CompressionZstd || len(row.ChangesCompressed) == 0 {
		return nil
	}
	raw, err := r.decoder.DecodeAll(row.ChangesCompressed, nil)
	if err != nil {
		return fmt.Errorf("decompress changes: %w", err)
	}
	row.Changes = raw
	row.ChangesCompressed = nil
	return nil
}

// EntityHistory returns the newest audit rows of one entity.
func (r *AuditRecorder) EntityHistory(ctx context.Context, entityType, entityID string, limit int) ([]AuditRow, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows []AuditRow
	err := pgxscan.Select(ctx, r.db.GetQuerier(ctx), &rows, `
		SELECT id, entity_type, entity_id, action, user_id, request_id,
		       changes, changes_compressed, compression_algo, created_at
		FROM sys_audit
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`, entityType, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit history: %w", err)
	}
	for i := range rows {
		if err := r.decode(&rows[i]); err != nil {
			return nil, err
		}
	}
	return rows, nil
}
