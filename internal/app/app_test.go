package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	chatstub "solana-signal-trader/internal/chat/stub"
	"solana-signal-trader/internal/config"
	"solana-signal-trader/internal/domain"
	jupstub "solana-signal-trader/internal/jupiter/stub"
	"solana-signal-trader/internal/solana"
	solstub "solana-signal-trader/internal/solana/stub"
)

const (
	sol     = "So11111111111111111111111111111111111111112"
	token   = "2qEHjDLDLbuBgRYvsxhc5D6uDWAivNFZGan56P1tpump"
	channel = "alpha"
)

type fakeSigner struct{}

func (fakeSigner) PublicKey() string                         { return "wallet" }
func (fakeSigner) SignTransaction(tx []byte) ([]byte, error) { return tx, nil }

type harness struct {
	cfg    *config.Config
	chat   *chatstub.Relay
	swap   *jupstub.SwapClient
	ledger *solstub.Ledger
	stores *Stores
	app    *App
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	cfg := config.Default()
	cfg.Chat.Channels = []string{channel}
	cfg.HTTP.Addr = "127.0.0.1:0"
	cfg.Trading.AmountPerTrade = "0.1"
	cfg.Verify.QuietPeriod = 10 * time.Millisecond
	cfg.Sampler.Interval = time.Hour
	cfg.Execution.ConfirmTimeout = time.Second
	cfg.Execution.RecoveryGrace = time.Millisecond

	h := &harness{
		cfg:    cfg,
		chat:   chatstub.NewRelay(),
		swap:   jupstub.NewSwapClient(),
		ledger: solstub.NewLedger(),
		stores: MemoryStores(),
	}
	h.ledger.SetBalance(sol, 1_000_000_000)
	h.ledger.SetDecimals(token, 6)

	h.swap.QuoteFn = func(in, _ string, amount uint64) (uint64, error) {
		if in == sol {
			return amount * 10, nil
		}
		return amount / 10, nil
	}
	h.ledger.OnBroadcast = func(string) {
		last := h.swap.Quotes[len(h.swap.Quotes)-1]
		out, _ := h.swap.QuoteFn(last.InputMint, last.OutputMint, last.Amount)
		h.ledger.AddBalance(last.InputMint, -int64(last.Amount))
		h.ledger.AddBalance(last.OutputMint, int64(out))
	}

	a, err := New(context.Background(), cfg, nil, Deps{
		Chat:   h.chat,
		Swap:   h.swap,
		Ledger: h.ledger,
		Signer: fakeSigner{},
		Stores: h.stores,
	})
	require.NoError(t, err)
	t.Cleanup(a.Close)
	h.app = a
	return h
}

func (h *harness) run(t *testing.T) (cancel func()) {
	t.Helper()
	ctx, cancelCtx := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.app.Run(ctx) }()

	return func() {
		cancelCtx()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(3 * time.Second):
			t.Fatal("Run did not return after cancel")
		}
	}
}

func TestNew_InvalidKey(t *testing.T) {
	cfg := config.Default()
	cfg.Chat.Channels = []string{channel}

	_, err := New(context.Background(), cfg, nil, Deps{
		Chat:   chatstub.NewRelay(),
		Swap:   jupstub.NewSwapClient(),
		Ledger: solstub.NewLedger(),
		Stores: MemoryStores(),
	})
	require.ErrorIs(t, err, solana.ErrInvalidKeypair)
}

func TestNew_InvalidAmount(t *testing.T) {
	cfg := config.Default()
	cfg.Trading.AmountPerTrade = "zero"

	_, err := New(context.Background(), cfg, nil, Deps{Stores: MemoryStores()})
	require.ErrorIs(t, err, config.ErrInvalidValue)
}

func TestRun_OpensVerifiedCandidate(t *testing.T) {
	h := newHarness(t)
	h.chat.SetRecent(channel, "still here "+token, "gm")
	h.chat.Push(domain.Message{
		Text:       "new gem " + token,
		ChannelRef: channel,
		SentAt:     time.Now().Add(-time.Minute),
	})

	stop := h.run(t)
	defer stop()

	require.Eventually(t, func() bool {
		return h.app.Manager().Snapshot().State == domain.StateHeld
	}, 3*time.Second, 10*time.Millisecond)

	pos := h.app.Manager().Current()
	require.NotNil(t, pos)
	assert.Equal(t, token, pos.TokenID)
	assert.Equal(t, uint64(100_000_000), pos.BaseAmountSpent)
	assert.Equal(t, uint64(1_000_000_000), pos.QuantityHeld)
	// One whole token quotes back to 100_000 lamports.
	assert.InDelta(t, 0.0001, pos.EntryPrice, 1e-12)

	stored, err := h.stores.Positions.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, pos.ID, stored.ID)

	traded, err := h.stores.Traded.Contains(context.Background(), token)
	require.NoError(t, err)
	assert.True(t, traded)
}

func TestRun_RejectsUnverifiedCandidate(t *testing.T) {
	h := newHarness(t)
	h.chat.SetRecent(channel, "gm", "wagmi")
	h.chat.Push(domain.Message{
		Text:       "new gem " + token,
		ChannelRef: channel,
		SentAt:     time.Now().Add(-time.Minute),
	})

	stop := h.run(t)
	require.Eventually(t, func() bool { return h.chat.Fetches() == 1 }, 3*time.Second, 10*time.Millisecond)
	stop()

	assert.Equal(t, domain.StateEmpty, h.app.Manager().Snapshot().State)
	assert.Zero(t, h.swap.QuoteCount())
}

func TestHandleMessage_NoCandidate(t *testing.T) {
	h := newHarness(t)
	h.app.HandleMessage(context.Background(), domain.Message{Text: "gm everyone", ChannelRef: channel})
	h.app.inflight.Wait()

	assert.Zero(t, h.chat.Fetches())
}

func TestReconcile_RestoresPersistedPosition(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.stores.Positions.Save(ctx, &domain.Position{
		ID:              "p-restart",
		TokenID:         token,
		Decimals:        6,
		OpenedAt:        time.Now().Add(-5 * time.Minute),
		QuantityHeld:    500,
		BaseAmountSpent: 100_000_000,
	}))
	h.ledger.SetBalance(token, 750)

	require.NoError(t, h.app.Reconcile(ctx))

	snap := h.app.Manager().Snapshot()
	assert.Equal(t, domain.StateHeld, snap.State)
	require.NotNil(t, snap.Position)
	assert.Equal(t, uint64(750), snap.Position.QuantityHeld)

	// A second reconcile is a no-op.
	require.NoError(t, h.app.Reconcile(ctx))
}

func TestShutdownGrace_CoversSettlement(t *testing.T) {
	cfg := config.Default()
	grace := ShutdownGrace(cfg)

	assert.Equal(t, 145*time.Second, grace)
	assert.Greater(t, grace, cfg.Execution.ConfirmTimeout+cfg.Execution.RecoveryGrace)
}
