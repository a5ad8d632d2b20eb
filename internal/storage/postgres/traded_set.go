package postgres

import (
	"context"
	"time"

	"solana-signal-trader/internal/storage"
)

// TradedSet is a PostgreSQL implementation of storage.TradedSet.
type TradedSet struct {
	pool *Pool
}

// NewTradedSet creates a new PostgreSQL traded-token set.
func NewTradedSet(pool *Pool) *TradedSet {
	return &TradedSet{pool: pool}
}

// Compile-time interface check.
var _ storage.TradedSet = (*TradedSet)(nil)

// Add records that a token has been bought.
func (s *TradedSet) Add(ctx context.Context, tokenID string) error {
	if tokenID == "" {
		return storage.ErrInvalidInput
	}

	start := time.Now()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO traded_tokens (token_id, traded_at)
		VALUES ($1, NOW())
		ON CONFLICT (token_id) DO NOTHING
	`, tokenID)
	observe("add_traded", start, err)

	return err
}

// Contains checks if a token has been bought before.
func (s *TradedSet) Contains(ctx context.Context, tokenID string) (bool, error) {
	if tokenID == "" {
		return false, storage.ErrInvalidInput
	}

	start := time.Now()
	row := s.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM traded_tokens WHERE token_id = $1)
	`, tokenID)

	var exists bool
	err := row.Scan(&exists)
	observe("contains_traded", start, err)
	if err != nil {
		return false, err
	}

	return exists, nil
}
