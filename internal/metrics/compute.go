// Package metrics computes outcome statistics over the closed-trade journal.
package metrics

import (
	"math"
	"sort"

	"solana-signal-trader/internal/domain"
)

// Summary aggregates closed trades. Percentages are fractions of the amount
// spent, so 0.5 means +50%.
type Summary struct {
	Trades  int     `json:"trades"`
	Tokens  int     `json:"tokens"`
	Wins    int     `json:"wins"`
	Losses  int     `json:"losses"`
	WinRate float64 `json:"win_rate"`

	TotalPnL int64 `json:"total_pnl"` // raw funding units

	PnLPctMean   float64 `json:"pnl_pct_mean"`
	PnLPctMedian float64 `json:"pnl_pct_median"`
	PnLPctP10    float64 `json:"pnl_pct_p10"`
	PnLPctP90    float64 `json:"pnl_pct_p90"`
	PnLPctMin    float64 `json:"pnl_pct_min"`
	PnLPctMax    float64 `json:"pnl_pct_max"`
	PnLPctStddev float64 `json:"pnl_pct_stddev"`

	MaxDrawdown          float64 `json:"max_drawdown"`
	MaxConsecutiveLosses int     `json:"max_consecutive_losses"`

	ExitReasons map[string]int `json:"exit_reasons"`
}

// Summarize computes a Summary. Trades are ordered by ClosedAt ASC, PositionID
// ASC before the order-dependent statistics are computed.
func Summarize(trades []*domain.ClosedTrade) Summary {
	n := len(trades)
	s := Summary{ExitReasons: map[string]int{}}
	if n == 0 {
		return s
	}

	sorted := make([]*domain.ClosedTrade, n)
	copy(sorted, trades)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].ClosedAt.Equal(sorted[j].ClosedAt) {
			return sorted[i].ClosedAt.Before(sorted[j].ClosedAt)
		}
		return sorted[i].PositionID < sorted[j].PositionID
	})

	outcomes := make([]float64, n)
	tokens := make(map[string]struct{})
	for i, t := range sorted {
		if t.OutcomeClass == domain.OutcomeClassWin {
			s.Wins++
		} else {
			s.Losses++
		}
		s.TotalPnL += t.RealizedPnL
		s.ExitReasons[t.ExitReason]++
		tokens[t.TokenID] = struct{}{}
		outcomes[i] = t.RealizedPnLPct
	}

	ordered := make([]float64, n)
	copy(ordered, outcomes)
	sort.Float64s(ordered)

	mean := computeMean(outcomes)
	s.Trades = n
	s.Tokens = len(tokens)
	s.WinRate = computeWinRate(s.Wins, n)
	s.PnLPctMean = mean
	s.PnLPctMedian = computePercentile(ordered, 0.50)
	s.PnLPctP10 = computePercentile(ordered, 0.10)
	s.PnLPctP90 = computePercentile(ordered, 0.90)
	s.PnLPctMin = ordered[0]
	s.PnLPctMax = ordered[n-1]
	s.PnLPctStddev = computeStddev(outcomes, mean)
	s.MaxDrawdown = computeMaxDrawdown(outcomes)
	s.MaxConsecutiveLosses = computeMaxConsecutiveLosses(outcomes)
	return s
}

func computeWinRate(wins, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(wins) / float64(total)
}

func computeMean(outcomes []float64) float64 {
	if len(outcomes) == 0 {
		return 0
	}
	sum := 0.0
	for _, o := range outcomes {
		sum += o
	}
	return sum / float64(len(outcomes))
}

// computeStddev is the sample standard deviation (n-1 denominator).
func computeStddev(outcomes []float64, mean float64) float64 {
	n := len(outcomes)
	if n < 2 {
		return 0
	}
	sumSq := 0.0
	for _, o := range outcomes {
		diff := o - mean
		sumSq += diff * diff
	}
	return math.Sqrt(sumSq / float64(n-1))
}

// computePercentile uses linear interpolation. sorted must be ASC.
func computePercentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}

	idx := p * float64(n-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= n {
		return sorted[n-1]
	}
	frac := idx - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}

// computeMaxDrawdown is the worst peak-to-trough of the cumulative outcome.
// Outcomes must be in chronological order.
func computeMaxDrawdown(outcomes []float64) float64 {
	cumulative := 0.0
	peak := 0.0
	maxDrawdown := 0.0
	for _, o := range outcomes {
		cumulative += o
		if cumulative > peak {
			peak = cumulative
		}
		if dd := peak - cumulative; dd > maxDrawdown {
			maxDrawdown = dd
		}
	}
	return maxDrawdown
}

// computeMaxConsecutiveLosses is the longest streak of outcome <= 0.
func computeMaxConsecutiveLosses(outcomes []float64) int {
	maxStreak, streak := 0, 0
	for _, o := range outcomes {
		if o <= 0 {
			streak++
			if streak > maxStreak {
				maxStreak = streak
			}
		} else {
			streak = 0
		}
	}
	return maxStreak
}
