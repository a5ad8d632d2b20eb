// Package strategy decides when the held position should be exited.
package strategy

import (
	"time"

	"solana-signal-trader/internal/domain"
	"solana-signal-trader/internal/lookup"
)

// Action is the outcome of an exit evaluation.
type Action int

// Actions.
const (
	ActionHold Action = iota
	ActionSell
)

func (a Action) String() string {
	if a == ActionSell {
		return "SELL"
	}
	return "HOLD"
}

// Decision is returned by Decide.
type Decision struct {
	Action Action
	Reason string // exit reason code, empty on hold

	// Ratios of the current price to the reference prices, 0 when undefined.
	Gain float64
	R5   float64
	R10  float64
	R20  float64
}

// Exit rule parameters. Changing any of these changes realized outcomes.
const (
	QuickGainRatio = 1.5

	Lookback5m  = 5 * time.Minute
	Lookback10m = 10 * time.Minute
	Lookback20m = 20 * time.Minute
)

// Decide maps the price history of the held position to hold or sell.
//
// Rules, evaluated in order:
//   - current/entry >= 1.5 sells with "quick gain"
//   - r10 < r5 and r10 > 0 sells with "short-term drop"
//   - r20 < r10 and r10 > 0 sells with "pre-drop from 20m"
//
// where rN = current / price nearest to (last sample time - N minutes).
// History must be in chronological order.
func Decide(history []domain.PriceSample, pos *domain.Position) Decision {
	last, err := lookup.Latest(history)
	if err != nil || pos == nil {
		return Decision{Action: ActionHold}
	}
	current := last.Price

	d := Decision{Action: ActionHold}

	if pos.EntryPrice > 0 {
		d.Gain = current / pos.EntryPrice
		if d.Gain >= QuickGainRatio {
			d.Action = ActionSell
			d.Reason = domain.ExitReasonQuickGain
			return d
		}
	}

	d.R5 = ratioAt(current, last.Timestamp.Add(-Lookback5m), history)
	d.R10 = ratioAt(current, last.Timestamp.Add(-Lookback10m), history)
	d.R20 = ratioAt(current, last.Timestamp.Add(-Lookback20m), history)

	switch {
	case d.R10 < d.R5 && d.R10 > 0:
		d.Action = ActionSell
		d.Reason = domain.ExitReasonShortTermDrop
	case d.R20 < d.R10 && d.R10 > 0:
		d.Action = ActionSell
		d.Reason = domain.ExitReasonPreDrop20m
	}

	return d
}

// ratioAt returns current / reference price nearest to target, or 0 if the
// reference is missing or zero.
func ratioAt(current float64, target time.Time, history []domain.PriceSample) float64 {
	ref, err := lookup.Nearest(target, history)
	if err != nil || ref == 0 {
		return 0
	}
	return current / ref
}
