package reporting

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"solana-signal-trader/internal/domain"
	"solana-signal-trader/internal/metrics"
	"solana-signal-trader/internal/storage"
)

// Generator produces reports from the trade journal.
type Generator struct {
	trades  storage.TradeStore
	samples storage.SampleStore // optional
	now     func() time.Time
}

// NewGenerator creates a report generator. samples may be nil.
func NewGenerator(trades storage.TradeStore, samples storage.SampleStore) *Generator {
	return &Generator{
		trades:  trades,
		samples: samples,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate builds a report over every closed trade.
func (g *Generator) Generate(ctx context.Context) (*Report, error) {
	trades, err := g.trades.List(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}

	rows := make([]TradeRow, 0, len(trades))
	for _, t := range trades {
		row, err := g.tradeRow(ctx, t)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].ClosedAt.Equal(rows[j].ClosedAt) {
			return rows[i].ClosedAt.Before(rows[j].ClosedAt)
		}
		return rows[i].PositionID < rows[j].PositionID
	})

	return &Report{
		GeneratedAt: g.now(),
		Summary:     metrics.Summarize(trades),
		Trades:      rows,
		ExitReasons: exitReasonRows(trades),
	}, nil
}

func (g *Generator) tradeRow(ctx context.Context, t *domain.ClosedTrade) (TradeRow, error) {
	row := TradeRow{
		PositionID:     t.PositionID,
		TokenID:        t.TokenID,
		SignalAt:       t.SignalAt,
		OpenedAt:       t.OpenedAt,
		ClosedAt:       t.ClosedAt,
		HoldDuration:   t.ClosedAt.Sub(t.OpenedAt),
		EntryPrice:     t.EntryPrice,
		ExitPrice:      t.ExitPrice,
		ExitReason:     t.ExitReason,
		BaseSpent:      t.BaseAmountSpent,
		BaseReceived:   t.BaseAmountReceived,
		RealizedPnL:    t.RealizedPnL,
		RealizedPnLPct: t.RealizedPnLPct,
		OutcomeClass:   t.OutcomeClass,
	}
	if g.samples == nil {
		return row, nil
	}

	samples, err := g.samples.GetByPosition(ctx, t.PositionID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return row, fmt.Errorf("samples of %s: %w", t.PositionID, err)
	}
	row.SampleCount = len(samples)
	for _, s := range samples {
		if s.Price > row.PeakPrice {
			row.PeakPrice = s.Price
		}
	}
	if row.PeakPrice > 0 && row.EntryPrice > 0 {
		row.PeakRatio = row.PeakPrice / row.EntryPrice
	}
	return row, nil
}

func exitReasonRows(trades []*domain.ClosedTrade) []ExitReasonRow {
	byReason := make(map[string]*ExitReasonRow)
	for _, t := range trades {
		r, ok := byReason[t.ExitReason]
		if !ok {
			r = &ExitReasonRow{Reason: t.ExitReason}
			byReason[t.ExitReason] = r
		}
		r.Trades++
		r.TotalPnL += t.RealizedPnL
		if t.OutcomeClass == domain.OutcomeClassWin {
			r.Wins++
		}
	}

	rows := make([]ExitReasonRow, 0, len(byReason))
	for _, r := range byReason {
		rows = append(rows, *r)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Trades != rows[j].Trades {
			return rows[i].Trades > rows[j].Trades
		}
		return rows[i].Reason < rows[j].Reason
	})
	return rows
}
