package domain

import "time"

// ClosedTrade records a completed buy/sell round trip.
// Corresponds to closed_trades table in PostgreSQL.
type ClosedTrade struct {
	PositionID string
	TokenID    string

	// Entry
	SignalAt        time.Time
	OpenedAt        time.Time
	EntryPrice      float64
	QuantityBought  uint64 // settled amount at fill
	BaseAmountSpent uint64
	BuyTxID         string

	// Exit
	ClosedAt           time.Time
	ExitPrice          float64 // last sampled price, 0 if none
	QuantitySold       uint64  // on-ledger balance sold
	BaseAmountReceived uint64
	SellTxID           string
	ExitReason         string

	// Outcome
	RealizedPnL    int64   // raw funding units, received - spent
	RealizedPnLPct float64 // RealizedPnL / BaseAmountSpent
	OutcomeClass   string  // "WIN" | "LOSS"
}

// Exit reason codes
const (
	ExitReasonQuickGain     = "quick gain"
	ExitReasonShortTermDrop = "short-term drop"
	ExitReasonPreDrop20m    = "pre-drop from 20m"
	ExitReasonManual        = "manual"
)

// Outcome class constants
const (
	OutcomeClassWin  = "WIN"
	OutcomeClassLoss = "LOSS"
)
