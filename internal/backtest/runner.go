package backtest

import (
	"context"
	"fmt"

	"solana-signal-trader/internal/domain"
	"solana-signal-trader/internal/storage"
)

// Runner replays closed trades from the journal.
type Runner struct {
	trades    storage.TradeStore
	samples   storage.SampleStore
	retention int
}

// NewRunner creates a Runner. retention <= 0 uses the sampler default.
func NewRunner(trades storage.TradeStore, samples storage.SampleStore, retention int) *Runner {
	return &Runner{trades: trades, samples: samples, retention: retention}
}

// Run replays the samples of one closed trade.
func (r *Runner) Run(ctx context.Context, positionID string) (*Results, error) {
	t, err := r.trades.GetByPositionID(ctx, positionID)
	if err != nil {
		return nil, fmt.Errorf("trade %s: %w", positionID, err)
	}
	return r.replay(ctx, t)
}

// RunAll replays every closed trade, newest first.
func (r *Runner) RunAll(ctx context.Context) ([]*Results, error) {
	trades, err := r.trades.List(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	out := make([]*Results, 0, len(trades))
	for _, t := range trades {
		res, err := r.replay(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

func (r *Runner) replay(ctx context.Context, t *domain.ClosedTrade) (*Results, error) {
	samples, err := r.samples.GetByPosition(ctx, t.PositionID)
	if err != nil {
		return nil, fmt.Errorf("samples of %s: %w", t.PositionID, err)
	}

	engine := NewEngine(domain.Position{
		ID:         t.PositionID,
		TokenID:    t.TokenID,
		OpenedAt:   t.OpenedAt,
		SignalAt:   t.SignalAt,
		EntryPrice: t.EntryPrice,
	}, r.retention)
	for _, s := range samples {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		engine.OnSample(s)
	}

	res := engine.Results()
	res.ActualExitReason = t.ExitReason
	res.ActualExitPrice = t.ExitPrice
	return res, nil
}
