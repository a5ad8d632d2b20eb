package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"solana-signal-trader/internal/extract"
)

var extractCmd = &cobra.Command{
	Use:   "extract <text>",
	Short: "Print the token address the extractor finds in text",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(false)
	if err != nil {
		return err
	}

	e := extract.New(extract.Options{
		LinkPolicy:     extract.LinkPolicy(cfg.Trading.LinkPolicy),
		BlockedHosts:   cfg.Trading.BlockedHosts,
		SuffixMarker:   cfg.Trading.SuffixMarker,
		RequireOnCurve: cfg.Trading.RequireOnCurve,
	})

	addr, ok := e.Extract(strings.Join(args, " "))
	if !ok {
		return fmt.Errorf("no token address found")
	}
	fmt.Fprintln(cmd.OutOrStdout(), addr)
	return nil
}
