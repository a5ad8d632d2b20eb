package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"solana-signal-trader/internal/domain"
	"solana-signal-trader/internal/observability"
	"solana-signal-trader/internal/storage"
)

// SampleStore implements storage.SampleStore using ClickHouse.
type SampleStore struct {
	conn *Conn
}

// NewSampleStore creates a new SampleStore.
func NewSampleStore(conn *Conn) *SampleStore {
	return &SampleStore{conn: conn}
}

// Compile-time interface check.
var _ storage.SampleStore = (*SampleStore)(nil)

// InsertSamples adds samples for a position in one batch.
// Fails entire batch on duplicate (position_id, timestamp_ms).
func (s *SampleStore) InsertSamples(ctx context.Context, positionID, tokenID string, samples []domain.PriceSample) (err error) {
	if positionID == "" || tokenID == "" {
		return storage.ErrInvalidInput
	}
	if len(samples) == 0 {
		return nil
	}

	start := time.Now()
	defer func() {
		observability.RecordDBQuery("clickhouse", "insert_samples", time.Since(start).Seconds(), err)
	}()

	// Check for intra-batch duplicates
	seen := make(map[int64]struct{}, len(samples))
	for _, sample := range samples {
		ms := sample.Timestamp.UnixMilli()
		if _, exists := seen[ms]; exists {
			return storage.ErrDuplicateKey
		}
		seen[ms] = struct{}{}
	}

	// Check for duplicates against existing DB rows
	for ms := range seen {
		exists, err := s.exists(ctx, positionID, ms)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO price_samples (position_id, token_id, timestamp_ms, price)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, sample := range samples {
		err = batch.Append(positionID, tokenID, uint64(sample.Timestamp.UnixMilli()), sample.Price)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByPosition retrieves all samples for a position, ordered by timestamp ASC.
func (s *SampleStore) GetByPosition(ctx context.Context, positionID string) ([]domain.PriceSample, error) {
	query := `
		SELECT timestamp_ms, price
		FROM price_samples
		WHERE position_id = ?
		ORDER BY timestamp_ms ASC
	`

	start := time.Now()
	rows, err := s.conn.Query(ctx, query, positionID)
	observability.RecordDBQuery("clickhouse", "get_samples", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("query by position id: %w", err)
	}
	defer rows.Close()

	return scanSamples(rows)
}

// exists checks if a sample with the given key exists.
func (s *SampleStore) exists(ctx context.Context, positionID string, timestampMs int64) (bool, error) {
	query := `
		SELECT count(*) FROM price_samples
		WHERE position_id = ? AND timestamp_ms = ?
	`

	var count uint64
	if err := s.conn.QueryRow(ctx, query, positionID, uint64(timestampMs)).Scan(&count); err != nil {
		return false, err
	}

	return count > 0, nil
}

func scanSamples(rows driver.Rows) ([]domain.PriceSample, error) {
	var samples []domain.PriceSample
	for rows.Next() {
		var (
			timestampMs uint64
			price       float64
		)
		if err := rows.Scan(&timestampMs, &price); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		samples = append(samples, domain.PriceSample{
			Timestamp: time.UnixMilli(int64(timestampMs)).UTC(),
			Price:     price,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	return samples, nil
}
