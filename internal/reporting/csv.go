package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderCSV renders trade rows as CSV string.
func RenderCSV(rows []TradeRow) string {
	var sb strings.Builder

	sb.WriteString("position_id,token_id,signal_at,opened_at,closed_at,hold_seconds,")
	sb.WriteString("entry_price,exit_price,peak_price,exit_reason,base_spent,base_received,")
	sb.WriteString("realized_pnl,realized_pnl_pct,outcome_class,sample_count\n")

	for _, r := range rows {
		sb.WriteString(fmt.Sprintf("%s,%s,%s,%s,%s,%d,%.12f,%.12f,%.12f,%s,%d,%d,%d,%.6f,%s,%d\n",
			r.PositionID,
			r.TokenID,
			r.SignalAt.UTC().Format(time.RFC3339),
			r.OpenedAt.UTC().Format(time.RFC3339),
			r.ClosedAt.UTC().Format(time.RFC3339),
			int64(r.HoldDuration/time.Second),
			r.EntryPrice,
			r.ExitPrice,
			r.PeakPrice,
			csvField(r.ExitReason),
			r.BaseSpent,
			r.BaseReceived,
			r.RealizedPnL,
			r.RealizedPnLPct,
			r.OutcomeClass,
			r.SampleCount,
		))
	}

	return sb.String()
}

// csvField quotes values containing separators.
func csvField(s string) string {
	if strings.ContainsAny(s, ",\"\n") {
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	}
	return s
}
