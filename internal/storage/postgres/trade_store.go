package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"solana-signal-trader/internal/domain"
	"solana-signal-trader/internal/storage"
)

// TradeStore is a PostgreSQL implementation of storage.TradeStore.
type TradeStore struct {
	pool *Pool
}

// NewTradeStore creates a new PostgreSQL closed trade store.
func NewTradeStore(pool *Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeStore = (*TradeStore)(nil)

const tradeColumns = `
	position_id, token_id, signal_at, opened_at, entry_price,
	quantity_bought, base_amount_spent, buy_tx_id,
	closed_at, exit_price, quantity_sold, base_amount_received, sell_tx_id, exit_reason,
	realized_pnl, realized_pnl_pct, outcome_class
`

// Insert adds a closed trade. Returns ErrDuplicateKey if position_id exists.
func (s *TradeStore) Insert(ctx context.Context, t *domain.ClosedTrade) error {
	if t == nil || t.PositionID == "" {
		return storage.ErrInvalidInput
	}

	start := time.Now()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO closed_trades (`+tradeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`,
		t.PositionID, t.TokenID, t.SignalAt, t.OpenedAt, t.EntryPrice,
		int64(t.QuantityBought), int64(t.BaseAmountSpent), t.BuyTxID,
		t.ClosedAt, t.ExitPrice, int64(t.QuantitySold), int64(t.BaseAmountReceived), t.SellTxID, t.ExitReason,
		t.RealizedPnL, t.RealizedPnLPct, t.OutcomeClass,
	)
	observe("insert_trade", start, err)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert closed trade: %w", err)
	}

	return nil
}

// GetByPositionID retrieves a trade by position ID. Returns ErrNotFound if not exists.
func (s *TradeStore) GetByPositionID(ctx context.Context, positionID string) (*domain.ClosedTrade, error) {
	start := time.Now()
	row := s.pool.QueryRow(ctx, `
		SELECT `+tradeColumns+`
		FROM closed_trades
		WHERE position_id = $1
	`, positionID)

	t, err := scanTrade(row)
	observe("get_trade", start, err)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}

	return t, nil
}

// List returns the most recent trades ordered by closed_at DESC. limit <= 0 means all.
func (s *TradeStore) List(ctx context.Context, limit int) ([]*domain.ClosedTrade, error) {
	query := `
		SELECT ` + tradeColumns + `
		FROM closed_trades
		ORDER BY closed_at DESC, position_id
	`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	start := time.Now()
	rows, err := s.pool.Query(ctx, query, args...)
	observe("list_trades", start, err)
	if err != nil {
		return nil, fmt.Errorf("query closed trades: %w", err)
	}
	defer rows.Close()

	var trades []*domain.ClosedTrade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}

	return trades, rows.Err()
}

// scanTrade scans a single closed_trades row.
func scanTrade(row pgx.Row) (*domain.ClosedTrade, error) {
	var (
		t                             domain.ClosedTrade
		bought, spent, sold, received int64
	)
	err := row.Scan(
		&t.PositionID, &t.TokenID, &t.SignalAt, &t.OpenedAt, &t.EntryPrice,
		&bought, &spent, &t.BuyTxID,
		&t.ClosedAt, &t.ExitPrice, &sold, &received, &t.SellTxID, &t.ExitReason,
		&t.RealizedPnL, &t.RealizedPnLPct, &t.OutcomeClass,
	)
	if err != nil {
		return nil, err
	}
	t.QuantityBought = uint64(bought)
	t.BaseAmountSpent = uint64(spent)
	t.QuantitySold = uint64(sold)
	t.BaseAmountReceived = uint64(received)

	return &t, nil
}
