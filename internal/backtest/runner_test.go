package backtest

import (
	"context"
	"errors"
	"testing"
	"time"

	"solana-signal-trader/internal/domain"
	"solana-signal-trader/internal/storage"
	"solana-signal-trader/internal/storage/memory"
)

func seed(t *testing.T) (*memory.TradeStore, *memory.SampleStore) {
	t.Helper()
	ctx := context.Background()
	trades := memory.NewTradeStore()
	samples := memory.NewSampleStore()

	for _, tr := range []*domain.ClosedTrade{
		{PositionID: "win", TokenID: "tokA", EntryPrice: 1.0, ExitPrice: 1.6,
			ExitReason: domain.ExitReasonQuickGain, ClosedAt: t0.Add(time.Minute)},
		{PositionID: "flat", TokenID: "tokB", EntryPrice: 1.0, ExitPrice: 1.0,
			ExitReason: domain.ExitReasonManual, ClosedAt: t0.Add(2 * time.Minute)},
	} {
		if err := trades.Insert(ctx, tr); err != nil {
			t.Fatalf("insert trade: %v", err)
		}
	}

	if err := samples.InsertSamples(ctx, "win", "tokA", []domain.PriceSample{
		sample(0, 1.1), sample(10*time.Second, 1.6),
	}); err != nil {
		t.Fatalf("insert samples: %v", err)
	}
	if err := samples.InsertSamples(ctx, "flat", "tokB", []domain.PriceSample{
		sample(0, 1.0), sample(10*time.Second, 1.0), sample(20*time.Second, 1.0),
	}); err != nil {
		t.Fatalf("insert samples: %v", err)
	}
	return trades, samples
}

func TestRunner_Run(t *testing.T) {
	trades, samples := seed(t)
	r := NewRunner(trades, samples, 0)

	res, err := r.Run(context.Background(), "win")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.SampleCount != 2 {
		t.Errorf("expected 2 samples, got %d", res.SampleCount)
	}
	if !res.Agrees() {
		t.Errorf("expected replay to agree, got exit %+v actual %q", res.Exit, res.ActualExitReason)
	}
	if res.ActualExitPrice != 1.6 {
		t.Errorf("expected actual exit 1.6, got %f", res.ActualExitPrice)
	}
}

func TestRunner_RunNotFound(t *testing.T) {
	trades, samples := seed(t)
	_, err := NewRunner(trades, samples, 0).Run(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRunner_RunAll(t *testing.T) {
	trades, samples := seed(t)
	results, err := NewRunner(trades, samples, 0).RunAll(context.Background())
	if err != nil {
		t.Fatalf("RunAll failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	// Newest first.
	if results[0].PositionID != "flat" {
		t.Errorf("expected flat first, got %s", results[0].PositionID)
	}
	if results[0].Exit != nil || results[0].Agrees() {
		t.Errorf("flat trade should not exit: %+v", results[0].Exit)
	}
}

func TestRunner_Cancelled(t *testing.T) {
	trades, samples := seed(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewRunner(trades, samples, 0).Run(ctx, "win"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
