package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"solana-signal-trader/internal/domain"
	"solana-signal-trader/internal/storage"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestSampleStore_InsertAndGet(t *testing.T) {
	store := NewSampleStore()
	ctx := context.Background()

	err := store.InsertSamples(ctx, "pos1", "mintA", []domain.PriceSample{
		{Timestamp: t0.Add(20 * time.Second), Price: 1.2},
		{Timestamp: t0, Price: 1.0},
	})
	if err != nil {
		t.Fatalf("InsertSamples failed: %v", err)
	}
	if err := store.InsertSamples(ctx, "pos1", "mintA", []domain.PriceSample{{Timestamp: t0.Add(10 * time.Second), Price: 1.1}}); err != nil {
		t.Fatalf("InsertSamples failed: %v", err)
	}

	got, err := store.GetByPosition(ctx, "pos1")
	if err != nil {
		t.Fatalf("GetByPosition failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(got))
	}
	for i, want := range []float64{1.0, 1.1, 1.2} {
		if got[i].Price != want {
			t.Errorf("sample %d: got %f, want %f", i, got[i].Price, want)
		}
	}
}

func TestSampleStore_DuplicateTimestamp(t *testing.T) {
	store := NewSampleStore()
	ctx := context.Background()

	sample := domain.PriceSample{Timestamp: t0, Price: 1.0}
	if err := store.InsertSamples(ctx, "pos1", "mintA", []domain.PriceSample{sample}); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}

	err := store.InsertSamples(ctx, "pos1", "mintA", []domain.PriceSample{{Timestamp: t0.Add(time.Second)}, sample})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}

	// The batch is rejected as a whole.
	got, _ := store.GetByPosition(ctx, "pos1")
	if len(got) != 1 {
		t.Errorf("expected 1 sample after rejected batch, got %d", len(got))
	}

	// Same timestamp under another position is fine.
	if err := store.InsertSamples(ctx, "pos2", "mintA", []domain.PriceSample{sample}); err != nil {
		t.Errorf("insert for other position failed: %v", err)
	}
}

func TestSampleStore_InvalidInput(t *testing.T) {
	store := NewSampleStore()

	err := store.InsertSamples(context.Background(), "", "mintA", []domain.PriceSample{{Timestamp: t0}})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestSampleStore_UnknownPosition(t *testing.T) {
	got, err := NewSampleStore().GetByPosition(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetByPosition failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no samples, got %d", len(got))
	}
}
