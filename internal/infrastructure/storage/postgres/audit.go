package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"

	"milkwms/internal/core/id"
	"milkwms/internal/domain/audit"
)

// CompressionAlgo specifies the compression algorithm used for stored metadata.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// DefaultCompressThreshold is the metadata size above which rows are compressed.
const DefaultCompressThreshold = 4 * 1024

// auditRow is one sys_audit row.
type auditRow struct {
	ID                 id.ID           `db:"id"`
	EntityType         string          `db:"entity_type"`
	EntityID           id.ID           `db:"entity_id"`
	FromStatus         string          `db:"from_status"`
	ToStatus           string          `db:"to_status"`
	Reason             string          `db:"reason"`
	UserID             string          `db:"user_id"`
	Metadata           json.RawMessage `db:"metadata"`
	MetadataCompressed []byte          `db:"metadata_compressed"`
	CompressionAlgo    CompressionAlgo `db:"compression_algo"`
	CreatedAt          time.Time       `db:"created_at"`
}

// AuditRecorder stores status transitions in sys_audit within the caller's transaction.
type AuditRecorder struct {
	txManager         *TxManager
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int
}

var (
	_ audit.Recorder = (*AuditRecorder)(nil)
	_ audit.Reader   = (*AuditRecorder)(nil)
)

// NewAuditRecorder creates a recorder. threshold <= 0 uses DefaultCompressThreshold.
func NewAuditRecorder(txManager *TxManager, threshold int) (*AuditRecorder, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	if threshold <= 0 {
		threshold = DefaultCompressThreshold
	}
	return &AuditRecorder{
		txManager:         txManager,
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: threshold,
	}, nil
}

// RecordTransition implements audit.Recorder.
func (s *AuditRecorder) RecordTransition(ctx context.Context, t audit.Transition) error {
	row, err := s.encode(t)
	if err != nil {
		return err
	}

	sql := `
		INSERT INTO sys_audit (
			id, entity_type, entity_id, from_status, to_status, reason, user_id,
			metadata, metadata_compressed, compression_algo, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = s.txManager.GetQuerier(ctx).Exec(ctx, sql,
		row.ID, row.EntityType, row.EntityID, row.FromStatus, row.ToStatus, row.Reason, row.UserID,
		row.Metadata, row.MetadataCompressed, row.CompressionAlgo, row.CreatedAt,
	)
	return MapError(err, "insert audit", "audit")
}

func (s *AuditRecorder) encode(t audit.Transition) (auditRow, error) {
	row := auditRow{
		ID:              id.New(),
		EntityType:      t.EntityType,
		EntityID:        t.EntityID,
		FromStatus:      t.From,
		ToStatus:        t.To,
		Reason:          t.Reason,
		UserID:          t.UserID,
		CompressionAlgo: CompressionNone,
		CreatedAt:       t.At,
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if len(t.Metadata) == 0 {
		return row, nil
	}

	data, err := json.Marshal(t.Metadata)
	if err != nil {
		return row, fmt.Errorf("marshal audit metadata: %w", err)
	}
	if len(data) > s.compressThreshold {
		row.MetadataCompressed = s.encoder.EncodeAll(data, nil)
		row.CompressionAlgo = CompressionZstd
		return row, nil
	}
	row.Metadata = data
	return row, nil
}

func (s *AuditRecorder) decode(row auditRow) (audit.Transition, error) {
	t := audit.Transition{
		EntityType: row.EntityType,
		EntityID:   row.EntityID,
		From:       row.FromStatus,
		To:         row.ToStatus,
		Reason:     row.Reason,
		UserID:     row.UserID,
		At:         row.CreatedAt,
	}
	data := []byte(row.Metadata)
	if row.CompressionAlgo == CompressionZstd && len(row.MetadataCompressed) > 0 {
		decompressed, err := s.decoder.DecodeAll(row.MetadataCompressed, nil)
		if err != nil {
			return t, fmt.Errorf("decompress audit metadata: %w", err)
		}
		data = decompressed
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &t.Metadata); err != nil {
			return t, fmt.Errorf("unmarshal audit metadata: %w", err)
		}
	}
	return t, nil
}

// History implements audit.Reader. A positive limit keeps the newest rows.
func (s *AuditRecorder) History(ctx context.Context, entityID id.ID, limit int) ([]audit.Transition, error) {
	if limit <= 0 {
		limit = 1000
	}
	sql := `
		SELECT id, entity_type, entity_id, from_status, to_status, reason, user_id,
			   metadata, metadata_compressed, compression_algo, created_at
		FROM (
			SELECT * FROM sys_audit
			WHERE entity_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		) h
		ORDER BY created_at, id
	`
	rows, err := s.txManager.GetQuerier(ctx).Query(ctx, sql, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []audit.Transition
	for rows.Next() {
		var r auditRow
		if err := rows.Scan(
			&r.ID, &r.EntityType, &r.EntityID, &r.FromStatus, &r.ToStatus, &r.Reason, &r.UserID,
			&r.Metadata, &r.MetadataCompressed, &r.CompressionAlgo, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		t, err := s.decode(r)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
