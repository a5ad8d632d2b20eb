// Package backtest replays journaled price samples through the exit rules.
package backtest

import (
	"time"

	"solana-signal-trader/internal/domain"
	"solana-signal-trader/internal/sampler"
	"solana-signal-trader/internal/strategy"
)

// Exit is the first sell decision reached during a replay.
type Exit struct {
	At     time.Time
	Price  float64
	Reason string
	Ratio  float64 // Price / entry price, 0 when entry is unknown
}

// Results holds the replay output for one position.
type Results struct {
	PositionID  string
	TokenID     string
	EntryPrice  float64
	SampleCount int
	Exit        *Exit // nil if the rules never sold

	// Recorded outcome, for comparison.
	ActualExitReason string
	ActualExitPrice  float64
}

// Agrees reports whether the replay sold for the recorded reason.
func (r *Results) Agrees() bool {
	return r.Exit != nil && r.Exit.Reason == r.ActualExitReason
}

// Engine feeds samples one at a time into a bounded history, the way the live
// sampler does, and evaluates the exit rules after each one.
type Engine struct {
	pos     domain.Position
	history *sampler.History
	results *Results
}

// NewEngine creates an engine for pos. retention <= 0 uses the sampler default.
func NewEngine(pos domain.Position, retention int) *Engine {
	return &Engine{
		pos:     pos,
		history: sampler.NewHistory(retention),
		results: &Results{
			PositionID: pos.ID,
			TokenID:    pos.TokenID,
			EntryPrice: pos.EntryPrice,
		},
	}
}

// OnSample appends s and evaluates the rules. Samples after the first sell
// are counted but not evaluated.
func (e *Engine) OnSample(s domain.PriceSample) strategy.Decision {
	if !e.history.Append(s) {
		return strategy.Decision{Action: strategy.ActionHold}
	}
	e.results.SampleCount++
	if e.results.Exit != nil {
		return strategy.Decision{Action: strategy.ActionHold}
	}

	// A missing entry price is backfilled from the first sample.
	if e.pos.EntryPrice == 0 && s.Price > 0 {
		e.pos.EntryPrice = s.Price
		e.results.EntryPrice = s.Price
	}

	d := strategy.Decide(e.history.Samples(), &e.pos)
	if d.Action == strategy.ActionSell {
		exit := &Exit{At: s.Timestamp, Price: s.Price, Reason: d.Reason}
		if e.pos.EntryPrice > 0 {
			exit.Ratio = s.Price / e.pos.EntryPrice
		}
		e.results.Exit = exit
	}
	return d
}

// Results returns the replay output.
func (e *Engine) Results() *Results {
	return e.results
}
