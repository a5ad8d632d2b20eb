package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"solana-signal-trader/internal/app"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Restore a persisted position against the ledger and print the slot",
	RunE:  runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
}

type reconcileOutput struct {
	State        string `json:"state"`
	PositionID   string `json:"position_id,omitempty"`
	TokenID      string `json:"token_id,omitempty"`
	QuantityHeld uint64 `json:"quantity_held,omitempty"`
	BuyTxID      string `json:"buy_tx_id,omitempty"`
}

func runReconcile(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := cmd.Context()
	a, err := app.New(ctx, cfg, logger, app.Deps{})
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Reconcile(ctx); err != nil {
		return err
	}

	snap := a.Manager().Snapshot()
	out := reconcileOutput{State: snap.State.String()}
	if p := snap.Position; p != nil {
		out.PositionID = p.ID
		out.TokenID = p.TokenID
		out.QuantityHeld = p.QuantityHeld
		out.BuyTxID = p.BuyTxID
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
