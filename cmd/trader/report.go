package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"solana-signal-trader/internal/app"
	"solana-signal-trader/internal/reporting"
)

var reportOutputDir string

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Write the trade journal report (markdown and CSV)",
	RunE:  runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().StringVar(&reportOutputDir, "output-dir", "output", "Output directory for reports")
}

func runReport(cmd *cobra.Command, _ []string) error {
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

	report, err := reporting.NewGenerator(stores.Trades, stores.Samples).Generate(ctx)
	if err != nil {
		return fmt.Errorf("generate report: %w", err)
	}

	if err := os.MkdirAll(reportOutputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	mdPath := filepath.Join(reportOutputDir, "TRADE_REPORT.md")
	if err := os.WriteFile(mdPath, []byte(reporting.RenderMarkdown(report)), 0o644); err != nil {
		return fmt.Errorf("write markdown: %w", err)
	}
	csvPath := filepath.Join(reportOutputDir, "trades.csv")
	if err := os.WriteFile(csvPath, []byte(reporting.RenderCSV(report.Trades)), 0o644); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Trade report generated (%d trades):\n", report.Summary.Trades)
	fmt.Fprintf(out, "  - %s\n", mdPath)
	fmt.Fprintf(out, "  - %s\n", csvPath)
	return nil
}
