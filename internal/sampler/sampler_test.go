package sampler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-signal-trader/internal/domain"
	jupstub "solana-signal-trader/internal/jupiter/stub"
	"solana-signal-trader/internal/storage/memory"
	"solana-signal-trader/internal/strategy"
)

const (
	sol   = "So11111111111111111111111111111111111111112"
	token = "2qEHjDLDLbuBgRYvsxhc5D6uDWAivNFZGan56P1tpump"
)

type fakeSlot struct {
	mu       sync.Mutex
	pos      *domain.Position
	closes   []string
	closeErr error
}

func (s *fakeSlot) Current() *domain.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos.Clone()
}

func (s *fakeSlot) SetEntryPrice(_ context.Context, id string, price float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos == nil || s.pos.ID != id || s.pos.EntryPrice != 0 {
		return false
	}
	s.pos.EntryPrice = price
	return true
}

func (s *fakeSlot) AttemptClose(_ context.Context, tokenID, reason string) (*domain.ClosedTrade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes = append(s.closes, reason)
	if s.closeErr != nil {
		return nil, s.closeErr
	}
	s.pos = nil
	return &domain.ClosedTrade{TokenID: tokenID, ExitReason: reason}, nil
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type fixture struct {
	slot  *fakeSlot
	swap  *jupstub.SwapClient
	clock *clock
	sink  *memory.SampleStore
	s     *Sampler

	mu    sync.Mutex
	quote uint64 // lamports returned for the reference amount
}

func newFixture(t *testing.T, pos *domain.Position) *fixture {
	t.Helper()
	f := &fixture{
		slot:  &fakeSlot{pos: pos},
		swap:  jupstub.NewSwapClient(),
		clock: &clock{now: t0},
		sink:  memory.NewSampleStore(),
		quote: 1_000_000,
	}
	f.swap.QuoteFn = func(string, string, uint64) (uint64, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.quote, nil
	}
	f.s = New(Options{
		Slot:   f.slot,
		Pricer: NewPricer(f.swap, sol, 9, 1, 300),
		Sink:   f.sink,
		Now:    f.clock.Now,
	})
	return f
}

func (f *fixture) setQuote(lamports uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quote = lamports
}

func heldPosition(entry float64) *domain.Position {
	return &domain.Position{ID: "pos-1", TokenID: token, Decimals: 6, EntryPrice: entry, QuantityHeld: 1_000_000_000}
}

func TestPricer_ReferenceAmountAndPrice(t *testing.T) {
	swap := jupstub.NewSwapClient()
	swap.QuoteFn = func(string, string, uint64) (uint64, error) { return 2_500_000, nil }
	p := NewPricer(swap, sol, 9, 1, 100)

	assert.Equal(t, uint64(1_000_000), p.ReferenceAmount(6))
	assert.Equal(t, uint64(1), p.ReferenceAmount(0))

	price, err := p.Price(context.Background(), heldPosition(0))
	require.NoError(t, err)
	assert.InDelta(t, 0.0025, price, 1e-15)

	require.Len(t, swap.Quotes, 1)
	assert.Equal(t, jupstub.QuoteCall{InputMint: token, OutputMint: sol, Amount: 1_000_000, SlippageBps: 100}, swap.Quotes[0])
}

func TestPricer_NoPrice(t *testing.T) {
	swap := jupstub.NewSwapClient()
	swap.QuoteFn = func(string, string, uint64) (uint64, error) { return 0, nil }
	p := NewPricer(swap, sol, 9, 1, 100)

	_, err := p.Price(context.Background(), heldPosition(0))
	assert.ErrorIs(t, err, ErrNoPrice)

	swap.QuoteFn = func(string, string, uint64) (uint64, error) { return 0, errors.New("429") }
	_, err = p.Price(context.Background(), heldPosition(0))
	assert.ErrorIs(t, err, ErrNoPrice)
}

func TestTick_NoopWhileEmpty(t *testing.T) {
	f := newFixture(t, nil)

	_, evaluated := f.s.Tick(context.Background())
	assert.False(t, evaluated)
	assert.Zero(t, f.swap.QuoteCount())
}

func TestTick_AppendsAndForwards(t *testing.T) {
	f := newFixture(t, heldPosition(0.001))
	ctx := context.Background()

	d, evaluated := f.s.Tick(ctx)
	require.True(t, evaluated)
	assert.Equal(t, strategy.ActionHold, d.Action)

	f.clock.Advance(10 * time.Second)
	f.s.Tick(ctx)

	assert.Equal(t, 2, f.s.History().Len())

	stored, err := f.sink.GetByPosition(ctx, "pos-1")
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.InDelta(t, 0.001, stored[0].Price, 1e-15)
}

func TestTick_SkipsFailedQuote(t *testing.T) {
	f := newFixture(t, heldPosition(0.001))
	f.setQuote(0)

	_, evaluated := f.s.Tick(context.Background())
	assert.False(t, evaluated)
	assert.Zero(t, f.s.History().Len(), "failed quote must not add a sample")
	assert.Empty(t, f.slot.closes)
}

func TestTick_BackfillsEntryPrice(t *testing.T) {
	f := newFixture(t, heldPosition(0))
	f.setQuote(2_000_000)

	f.s.Tick(context.Background())

	assert.InDelta(t, 0.002, f.slot.Current().EntryPrice, 1e-15)
}

func TestTick_QuickGainCloses(t *testing.T) {
	f := newFixture(t, heldPosition(0.001))
	f.setQuote(2_000_000)

	d, evaluated := f.s.Tick(context.Background())
	require.True(t, evaluated)
	assert.Equal(t, strategy.ActionSell, d.Action)
	assert.Equal(t, domain.ExitReasonQuickGain, d.Reason)
	assert.Equal(t, []string{domain.ExitReasonQuickGain}, f.slot.closes)
}

func TestTick_PreDropFrom20m(t *testing.T) {
	pos := heldPosition(1000)
	f := newFixture(t, pos)
	ctx := context.Background()

	// History in SOL per token: 1.3 at t0, 1.0 at +10m, 1.2 at +15m.
	f.s.PositionOpened(*pos)
	f.s.History().Append(domain.PriceSample{Timestamp: t0, Price: 1.3})
	f.s.History().Append(domain.PriceSample{Timestamp: t0.Add(10 * time.Minute), Price: 1.0})
	f.s.History().Append(domain.PriceSample{Timestamp: t0.Add(15 * time.Minute), Price: 1.2})

	// Current price 0.9 at +20m.
	f.clock.now = t0.Add(20 * time.Minute)
	f.setQuote(900_000_000)

	d, evaluated := f.s.Tick(ctx)
	require.True(t, evaluated)

	assert.Equal(t, strategy.ActionSell, d.Action)
	assert.Equal(t, domain.ExitReasonPreDrop20m, d.Reason)
	assert.InDelta(t, 0.75, d.R5, 1e-9)
	assert.InDelta(t, 0.9, d.R10, 1e-9)
	assert.Equal(t, []string{domain.ExitReasonPreDrop20m}, f.slot.closes)
}

func TestTick_CloseFailureKeepsSampling(t *testing.T) {
	f := newFixture(t, heldPosition(0.001))
	f.slot.closeErr = errors.New("busy")
	f.setQuote(2_000_000)

	f.s.Tick(context.Background())
	f.clock.Advance(10 * time.Second)
	f.s.Tick(context.Background())

	assert.Len(t, f.slot.closes, 2)
	assert.Equal(t, 2, f.s.History().Len())
}

func TestListener_ResetsHistory(t *testing.T) {
	f := newFixture(t, heldPosition(0.001))
	f.s.Tick(context.Background())
	require.Equal(t, 1, f.s.History().Len())

	f.s.PositionClosed(domain.ClosedTrade{PositionID: "pos-1"})
	assert.Zero(t, f.s.History().Len())

	f.s.Tick(context.Background())
	f.s.PositionOpened(domain.Position{ID: "pos-2", TokenID: token})
	assert.Zero(t, f.s.History().Len())
}

func TestTick_NewPositionStartsFreshHistory(t *testing.T) {
	f := newFixture(t, heldPosition(0.001))
	f.s.Tick(context.Background())

	f.slot.mu.Lock()
	f.slot.pos = &domain.Position{ID: "pos-2", TokenID: token, Decimals: 6, EntryPrice: 0.001}
	f.slot.mu.Unlock()

	f.clock.Advance(10 * time.Second)
	f.s.Tick(context.Background())
	assert.Equal(t, 1, f.s.History().Len())
}

func TestRun_StopsOnCancel(t *testing.T) {
	f := newFixture(t, heldPosition(0.001))
	f.s.interval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.s.Run(ctx) }()

	require.Eventually(t, func() bool { return f.swap.QuoteCount() > 0 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}
