package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-signal-trader/internal/domain"
	"solana-signal-trader/internal/metrics"
	"solana-signal-trader/internal/position"
	"solana-signal-trader/internal/storage/memory"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type fakeSlot struct{ snap position.Snapshot }

func (f fakeSlot) Snapshot() position.Snapshot { return f.snap }

type fakeSamples []domain.PriceSample

func (f fakeSamples) Samples() []domain.PriceSample { return f }

type failingTrades struct{ *memory.TradeStore }

func (failingTrades) List(context.Context, int) ([]*domain.ClosedTrade, error) {
	return nil, errors.New("db down")
}

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func do(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestHealth(t *testing.T) {
	s := New(Options{Slot: fakeSlot{}})

	w := do(t, s, http.MethodGet, "/health")
	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	w = do(t, s, http.MethodHead, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, w.Body.Len())
}

func TestMetrics(t *testing.T) {
	s := New(Options{Slot: fakeSlot{}})
	w := do(t, s, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "# HELP")
}

func TestStatus_Empty(t *testing.T) {
	s := New(Options{Slot: fakeSlot{snap: position.Snapshot{State: domain.StateEmpty}}})

	w := do(t, s, http.MethodGet, "/status")
	require.Equal(t, http.StatusOK, w.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "EMPTY", resp.State)
	assert.Nil(t, resp.Position)
	assert.Zero(t, resp.SampleCount)
	assert.Empty(t, resp.RecentTrades)
}

func TestStatus_Held(t *testing.T) {
	now := t0
	trades := memory.NewTradeStore()
	require.NoError(t, trades.Insert(context.Background(), &domain.ClosedTrade{
		PositionID:   "p0",
		TokenID:      "tokA",
		ClosedAt:     t0.Add(-time.Hour),
		ExitReason:   domain.ExitReasonQuickGain,
		RealizedPnL:  5_000,
		OutcomeClass: domain.OutcomeClassWin,
	}))

	s := New(Options{
		Slot: fakeSlot{snap: position.Snapshot{
			State: domain.StateHeld,
			Position: &domain.Position{
				ID:              "p1",
				TokenID:         "tokB",
				OpenedAt:        t0,
				EntryPrice:      0.002,
				QuantityHeld:    1_000,
				BaseAmountSpent: 2_000,
			},
			RealizedPnL:  5_000,
			TradesClosed: 1,
		}},
		Samples: fakeSamples{
			{Timestamp: t0, Price: 0.002},
			{Timestamp: t0.Add(10 * time.Second), Price: 0.0025},
		},
		Trades: trades,
		Now:    func() time.Time { return now },
	})
	now = t0.Add(90 * time.Second)

	w := do(t, s, http.MethodGet, "/status")
	require.Equal(t, http.StatusOK, w.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "HELD", resp.State)
	assert.Equal(t, "1m30s", resp.Uptime)
	require.NotNil(t, resp.Position)
	assert.Equal(t, "tokB", resp.Position.TokenID)
	assert.Equal(t, uint64(1_000), resp.Position.QuantityHeld)
	assert.Equal(t, 2, resp.SampleCount)
	assert.InDelta(t, 0.0025, resp.LastPrice, 1e-12)
	assert.Equal(t, int64(5_000), resp.RealizedPnL)
	require.Len(t, resp.RecentTrades, 1)
	assert.Equal(t, "p0", resp.RecentTrades[0].PositionID)
	assert.Equal(t, domain.OutcomeClassWin, resp.RecentTrades[0].OutcomeClass)
}

func TestStatus_TradeStoreError(t *testing.T) {
	s := New(Options{Slot: fakeSlot{}, Trades: failingTrades{}})
	w := do(t, s, http.MethodGet, "/status")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRun_StopsOnCancel(t *testing.T) {
	s := New(Options{Addr: "127.0.0.1:0", Slot: fakeSlot{}})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestTradeSummary(t *testing.T) {
	ctx := context.Background()
	trades := memory.NewTradeStore()
	for i, pnl := range []int64{100, -40, 60} {
		class := domain.OutcomeClassWin
		if pnl < 0 {
			class = domain.OutcomeClassLoss
		}
		require.NoError(t, trades.Insert(ctx, &domain.ClosedTrade{
			PositionID:     fmt.Sprintf("p%d", i),
			TokenID:        fmt.Sprintf("tok%d", i),
			ClosedAt:       t0.Add(time.Duration(i) * time.Minute),
			RealizedPnL:    pnl,
			RealizedPnLPct: float64(pnl) / 1000,
			ExitReason:     domain.ExitReasonQuickGain,
			OutcomeClass:   class,
		}))
	}

	s := New(Options{Slot: fakeSlot{}, Trades: trades})
	w := do(t, s, http.MethodGet, "/trades/summary")
	require.Equal(t, http.StatusOK, w.Code)

	var sum metrics.Summary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sum))
	assert.Equal(t, 3, sum.Trades)
	assert.Equal(t, 2, sum.Wins)
	assert.Equal(t, int64(120), sum.TotalPnL)
	assert.Equal(t, 3, sum.ExitReasons[domain.ExitReasonQuickGain])
}

func TestTradeSummary_StoreError(t *testing.T) {
	s := New(Options{Slot: fakeSlot{}, Trades: failingTrades{}})
	w := do(t, s, http.MethodGet, "/trades/summary")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
