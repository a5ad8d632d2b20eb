package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"solana-signal-trader/internal/app"
	"solana-signal-trader/internal/backtest"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest [position-id]",
	Short: "Replay journaled price samples through the exit rules",
	Long: `backtest re-runs the exit rules over the price samples stored for closed
trades and compares the first sell decision with the recorded exit.
Requires a persistent sample journal (storage.clickhouse_dsn).`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBacktest,
}

func init() {
	rootCmd.AddCommand(backtestCmd)
}

func runBacktest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(false)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := cmd.Context()
	stores, err := app.OpenStores(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer stores.Close()
	if stores.Samples == nil {
		return fmt.Errorf("no sample journal configured")
	}

	runner := backtest.NewRunner(stores.Trades, stores.Samples, cfg.Sampler.Retention)
	var results []*backtest.Results
	if len(args) == 1 {
		res, err := runner.Run(ctx, args[0])
		if err != nil {
			return err
		}
		results = []*backtest.Results{res}
	} else {
		results, err = runner.RunAll(ctx)
		if err != nil {
			return err
		}
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "POSITION\tTOKEN\tSAMPLES\tREPLAY EXIT\tAT\tRATIO\tRECORDED EXIT\tAGREE")
	for _, r := range results {
		reason, at, ratio := "-", "-", "-"
		if r.Exit != nil {
			reason = r.Exit.Reason
			at = r.Exit.At.UTC().Format(time.RFC3339)
			ratio = fmt.Sprintf("%.3f", r.Exit.Ratio)
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\t%s\t%t\n",
			r.PositionID, r.TokenID, r.SampleCount, reason, at, ratio, r.ActualExitReason, r.Agrees())
	}
	return w.Flush()
}
