package reporting

import (
	"time"

	"solana-signal-trader/internal/metrics"
)

// Report is the trade journal report.
type Report struct {
	GeneratedAt time.Time
	Summary     metrics.Summary

	// Trades sorted by closed_at ASC, position_id ASC.
	Trades []TradeRow

	// Exit reasons sorted by count DESC, reason ASC.
	ExitReasons []ExitReasonRow
}

// TradeRow is one closed trade with its sampled price path.
type TradeRow struct {
	PositionID     string
	TokenID        string
	SignalAt       time.Time
	OpenedAt       time.Time
	ClosedAt       time.Time
	HoldDuration   time.Duration
	EntryPrice     float64
	ExitPrice      float64
	ExitReason     string
	BaseSpent      uint64
	BaseReceived   uint64
	RealizedPnL    int64
	RealizedPnLPct float64
	OutcomeClass   string

	// From the sample journal, zero when no samples were stored.
	SampleCount int
	PeakPrice   float64
	PeakRatio   float64 // PeakPrice / EntryPrice, 0 if either is unknown
}

// ExitReasonRow counts trades per exit reason.
type ExitReasonRow struct {
	Reason   string
	Trades   int
	Wins     int
	TotalPnL int64
}
