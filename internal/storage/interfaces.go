package storage

import (
	"context"

	"solana-signal-trader/internal/domain"
)

// PositionStore persists the single open position so it survives restarts.
type PositionStore interface {
	// Save stores the open position, replacing any previous one.
	Save(ctx context.Context, p *domain.Position) error

	// Load returns the stored position. Returns ErrNotFound if there is none.
	Load(ctx context.Context) (*domain.Position, error)

	// Delete removes the stored position. Deleting when none is stored is not an error.
	Delete(ctx context.Context) error
}

// TradeStore provides access to closed_trades storage.
type TradeStore interface {
	// Insert adds a closed trade. Returns ErrDuplicateKey if position_id exists.
	Insert(ctx context.Context, t *domain.ClosedTrade) error

	// GetByPositionID retrieves a trade by position ID. Returns ErrNotFound if not exists.
	GetByPositionID(ctx context.Context, positionID string) (*domain.ClosedTrade, error)

	// List returns the most recent trades ordered by closed_at DESC. limit <= 0 means all.
	List(ctx context.Context, limit int) ([]*domain.ClosedTrade, error)
}

// TradedSet records tokens that have already been bought.
type TradedSet interface {
	// Add marks the token as traded. Adding twice is not an error.
	Add(ctx context.Context, tokenID string) error

	// Contains reports whether the token has been traded.
	Contains(ctx context.Context, tokenID string) (bool, error)
}

// SampleStore keeps the price samples of each position for post-trade analysis.
type SampleStore interface {
	// InsertSamples appends samples for a position.
	InsertSamples(ctx context.Context, positionID, tokenID string, samples []domain.PriceSample) error

	// GetByPosition returns the samples of a position ordered by timestamp ASC.
	GetByPosition(ctx context.Context, positionID string) ([]domain.PriceSample, error)
}
