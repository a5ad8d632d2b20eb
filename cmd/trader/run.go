package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"solana-signal-trader/internal/app"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the trader until interrupted",
	RunE:  runTrader,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runTrader(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	done := make(chan struct{})
	defer close(done)
	go handleSignals(logger, cancel, done, app.ShutdownGrace(cfg))

	a, err := app.New(ctx, cfg, logger, app.Deps{})
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Run(ctx); err != nil {
		logger.Error("trader stopped", zap.Error(err))
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

// handleSignals cancels on the first signal and exits on the second one or
// when grace runs out. grace covers a swap that is still settling.
func handleSignals(logger *zap.Logger, cancel context.CancelFunc, done <-chan struct{}, grace time.Duration) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down",
			zap.String("signal", sig.String()),
			zap.Duration("grace", grace))
		cancel()
	case <-done:
		return
	}

	select {
	case sig := <-sigCh:
		logger.Warn("received second signal, forcing exit", zap.String("signal", sig.String()))
		os.Exit(1)
	case <-time.After(grace):
		logger.Warn("graceful shutdown timed out, forcing exit")
		os.Exit(1)
	case <-done:
	}
}
