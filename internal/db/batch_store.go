package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/exposure.report/internal/exposure"
	"github.com/banshee-data/exposure.report/internal/timeutil"
)

// ErrBatchNotFound is returned when a batch ID has no row.
var ErrBatchNotFound = errors.New("batch not found")

// Batch is one persisted export of an exposure window.
type Batch struct {
	BatchID     string             `json:"batch_id"`
	ExposureID  string             `json:"exposure_id"`
	CreatedAt   time.Time          `json:"created_at"`
	RecordCount int                `json:"record_count"`
	Records     []*structpb.Struct `json:"-"`
}

// BatchStore persists exported track event batches.
type BatchStore struct {
	db    *sql.DB
	clock timeutil.Clock
	retry retryConfig
}

var _ exposure.BatchSink[*structpb.Struct] = (*BatchStore)(nil)

// NewBatchStore creates a BatchStore. A nil clock means the real clock.
func NewBatchStore(db *DB, clock timeutil.Clock) *BatchStore {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &BatchStore{db: db.DB, clock: clock, retry: defaultRetryConfig}
}

// SaveBatch stores records in order under a new batch ID and returns it.
func (s *BatchStore) SaveBatch(ctx context.Context, exposureID string, records []*structpb.Struct) (string, error) {
	if exposureID == "" {
		return "", errors.New("save batch: empty exposure id")
	}

	encoded := make([]string, len(records))
	for i, rec := range records {
		b, err := protojson.Marshal(rec)
		if err != nil {
			return "", fmt.Errorf("encode record %d: %w", i, err)
		}
		encoded[i] = string(b)
	}

	batchID := uuid.New().String()
	createdAt := s.clock.Now().UnixNano()

	err := retryOp(ctx, s.retry, func() error {
		return s.insertBatch(ctx, batchID, exposureID, createdAt, encoded)
	})
	if err != nil {
		return "", fmt.Errorf("save batch: %w", err)
	}
	return batchID, nil
}

func (s *BatchStore) insertBatch(ctx context.Context, batchID, exposureID string, createdAt int64, encoded []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO exposure_batches (batch_id, exposure_id, created_at_ns, record_count)
		VALUES (?, ?, ?, ?)
	`, batchID, exposureID, createdAt, len(encoded))
	if err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO exposure_records (batch_id, seq, record_json) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare record insert: %w", err)
	}
	defer stmt.Close()

	for i, rec := range encoded {
		if _, err := stmt.ExecContext(ctx, batchID, i, rec); err != nil {
			return fmt.Errorf("insert record %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// GetBatch loads a batch with its records in export order.
func (s *BatchStore) GetBatch(ctx context.Context, batchID string) (*Batch, error) {
	b := &Batch{BatchID: batchID}
	var createdAt int64
	err := s.db.QueryRowContext(ctx, `
		SELECT exposure_id, created_at_ns, record_count
		FROM exposure_batches
		WHERE batch_id = ?
	`, batchID).Scan(&b.ExposureID, &createdAt, &b.RecordCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrBatchNotFound, batchID)
	}
	if err != nil {
		return nil, fmt.Errorf("get batch: %w", err)
	}
	b.CreatedAt = time.Unix(0, createdAt)

	rows, err := s.db.QueryContext(ctx, `
		SELECT record_json FROM exposure_records
		WHERE batch_id = ?
		ORDER BY seq
	`, batchID)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec := &structpb.Struct{}
		if err := protojson.Unmarshal([]byte(raw), rec); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		b.Records = append(b.Records, rec)
	}
	return b, rows.Err()
}

// ListBatches returns batch metadata for an exposure, oldest first.
// Records are not loaded.
func (s *BatchStore) ListBatches(ctx context.Context, exposureID string) ([]*Batch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT batch_id, created_at_ns, record_count
		FROM exposure_batches
		WHERE exposure_id = ?
		ORDER BY created_at_ns, rowid
	`, exposureID)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	var batches []*Batch
	for rows.Next() {
		b := &Batch{ExposureID: exposureID}
		var createdAt int64
		if err := rows.Scan(&b.BatchID, &createdAt, &b.RecordCount); err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		b.CreatedAt = time.Unix(0, createdAt)
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

// LatestBatch returns the most recent batch for an exposure, with records.
func (s *BatchStore) LatestBatch(ctx context.Context, exposureID string) (*Batch, error) {
	var batchID string
	err := s.db.QueryRowContext(ctx, `
		SELECT batch_id FROM exposure_batches
		WHERE exposure_id = ?
		ORDER BY created_at_ns DESC, rowid DESC
		LIMIT 1
	`, exposureID).Scan(&batchID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no batches for exposure %s", ErrBatchNotFound, exposureID)
	}
	if err != nil {
		return nil, fmt.Errorf("latest batch: %w", err)
	}
	return s.GetBatch(ctx, batchID)
}

// DeleteBatch removes a batch and its records.
func (s *BatchStore) DeleteBatch(ctx context.Context, batchID string) error {
	return retryOp(ctx, s.retry, func() error {
		result, err := s.db.ExecContext(ctx, "DELETE FROM exposure_batches WHERE batch_id = ?", batchID)
		if err != nil {
			return fmt.Errorf("delete batch: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete batch rows affected: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", ErrBatchNotFound, batchID)
		}
		return nil
	})
}
