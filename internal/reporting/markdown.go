package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder
	s := r.Summary

	sb.WriteString("# Trade Journal Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))

	// Summary
	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Trades | %d |\n", s.Trades))
	sb.WriteString(fmt.Sprintf("| Tokens | %d |\n", s.Tokens))
	sb.WriteString(fmt.Sprintf("| Wins / Losses | %d / %d |\n", s.Wins, s.Losses))
	sb.WriteString(fmt.Sprintf("| Win Rate | %.4f |\n", s.WinRate))
	sb.WriteString(fmt.Sprintf("| Total PnL (raw) | %d |\n", s.TotalPnL))
	sb.WriteString(fmt.Sprintf("| PnL%% Mean | %.4f |\n", s.PnLPctMean))
	sb.WriteString(fmt.Sprintf("| PnL%% Median | %.4f |\n", s.PnLPctMedian))
	sb.WriteString(fmt.Sprintf("| PnL%% P10 / P90 | %.4f / %.4f |\n", s.PnLPctP10, s.PnLPctP90))
	sb.WriteString(fmt.Sprintf("| Max Drawdown | %.4f |\n", s.MaxDrawdown))
	sb.WriteString(fmt.Sprintf("| Max Consecutive Losses | %d |\n", s.MaxConsecutiveLosses))
	sb.WriteString("\n")

	// Exit reasons
	sb.WriteString("## Exit Reasons\n\n")
	if len(r.ExitReasons) > 0 {
		sb.WriteString("| Reason | Trades | Wins | Total PnL |\n")
		sb.WriteString("|--------|--------|------|-----------|\n")
		for _, e := range r.ExitReasons {
			sb.WriteString(fmt.Sprintf("| %s | %d | %d | %d |\n", e.Reason, e.Trades, e.Wins, e.TotalPnL))
		}
	} else {
		sb.WriteString("No closed trades.\n")
	}
	sb.WriteString("\n")

	// Trades
	sb.WriteString("## Trades\n\n")
	if len(r.Trades) > 0 {
		sb.WriteString("| Closed | Token | Hold | Entry | Exit | Peak x | PnL% | Outcome | Reason | Samples |\n")
		sb.WriteString("|--------|-------|------|-------|------|--------|------|---------|--------|---------|\n")
		for _, t := range r.Trades {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %.9f | %.9f | %.2f | %.4f | %s | %s | %d |\n",
				t.ClosedAt.UTC().Format(time.RFC3339), t.TokenID, t.HoldDuration.Truncate(time.Second),
				t.EntryPrice, t.ExitPrice, t.PeakRatio, t.RealizedPnLPct,
				t.OutcomeClass, t.ExitReason, t.SampleCount))
		}
	} else {
		sb.WriteString("No closed trades.\n")
	}
	sb.WriteString("\n")

	return sb.String()
}
