package postgres

import (
	"context"
	"time"

	"solana-signal-trader/internal/domain"
	"solana-signal-trader/internal/storage"
)

// PositionStore is a PostgreSQL implementation of storage.PositionStore.
// The open_position table holds at most one row (id = 1).
type PositionStore struct {
	pool *Pool
}

// NewPositionStore creates a new PostgreSQL position store.
func NewPositionStore(pool *Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PositionStore = (*PositionStore)(nil)

// Save stores the open position. Uses upsert so the slot row is replaced.
func (s *PositionStore) Save(ctx context.Context, p *domain.Position) error {
	if p == nil || p.TokenID == "" {
		return storage.ErrInvalidInput
	}

	start := time.Now()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO open_position (
			id, position_id, token_id, decimals, opened_at, signal_at,
			entry_price, quantity_held, base_amount_spent, buy_tx_id, updated_at
		) VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (id) DO UPDATE
		SET position_id = EXCLUDED.position_id,
		    token_id = EXCLUDED.token_id,
		    decimals = EXCLUDED.decimals,
		    opened_at = EXCLUDED.opened_at,
		    signal_at = EXCLUDED.signal_at,
		    entry_price = EXCLUDED.entry_price,
		    quantity_held = EXCLUDED.quantity_held,
		    base_amount_spent = EXCLUDED.base_amount_spent,
		    buy_tx_id = EXCLUDED.buy_tx_id,
		    updated_at = NOW()
	`,
		p.ID, p.TokenID, p.Decimals, p.OpenedAt, p.SignalAt,
		p.EntryPrice, int64(p.QuantityHeld), int64(p.BaseAmountSpent), p.BuyTxID,
	)
	observe("save_position", start, err)

	return err
}

// Load returns the stored position. Returns ErrNotFound if the slot is empty.
func (s *PositionStore) Load(ctx context.Context) (*domain.Position, error) {
	start := time.Now()
	row := s.pool.QueryRow(ctx, `
		SELECT position_id, token_id, decimals, opened_at, signal_at,
		       entry_price, quantity_held, base_amount_spent, buy_tx_id
		FROM open_position
		WHERE id = 1
	`)

	var (
		p            domain.Position
		quantityHeld int64
		amountSpent  int64
	)
	err := row.Scan(
		&p.ID, &p.TokenID, &p.Decimals, &p.OpenedAt, &p.SignalAt,
		&p.EntryPrice, &quantityHeld, &amountSpent, &p.BuyTxID,
	)
	observe("load_position", start, err)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	p.QuantityHeld = uint64(quantityHeld)
	p.BaseAmountSpent = uint64(amountSpent)

	return &p, nil
}

// Delete removes the stored position.
func (s *PositionStore) Delete(ctx context.Context) error {
	start := time.Now()
	_, err := s.pool.Exec(ctx, `DELETE FROM open_position WHERE id = 1`)
	observe("delete_position", start, err)
	return err
}
