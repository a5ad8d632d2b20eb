package domain

import "time"

// SlotState is the state of the single position slot.
type SlotState int

// Slot states. The slot starts Empty and cycles Empty -> Held -> Empty.
const (
	StateEmpty SlotState = iota
	StateHeld
)

func (s SlotState) String() string {
	switch s {
	case StateEmpty:
		return "EMPTY"
	case StateHeld:
		return "HELD"
	default:
		return "UNKNOWN"
	}
}

// Position is the single open position.
// Exists only while the slot is Held.
type Position struct {
	ID       string // uuid assigned at fill
	TokenID  string // mint of the held asset
	Decimals int    // mint decimals, 0 when unknown

	OpenedAt time.Time // fill confirmation time
	SignalAt time.Time // time of the originating chat message

	EntryPrice      float64 // funding units per whole token at fill, 0 if sampling failed
	QuantityHeld    uint64  // settled raw token amount read back from the ledger
	BaseAmountSpent uint64  // raw funding amount committed

	BuyTxID string
}

// Clone returns a copy safe to hand out of the slot lock.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}
