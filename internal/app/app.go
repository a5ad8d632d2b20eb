// Package app wires the trader components from configuration and runs them.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"solana-signal-trader/internal/chat"
	"solana-signal-trader/internal/config"
	"solana-signal-trader/internal/domain"
	"solana-signal-trader/internal/execution"
	"solana-signal-trader/internal/extract"
	"solana-signal-trader/internal/httpapi"
	"solana-signal-trader/internal/jupiter"
	"solana-signal-trader/internal/observability"
	"solana-signal-trader/internal/position"
	"solana-signal-trader/internal/sampler"
	"solana-signal-trader/internal/solana"
	"solana-signal-trader/internal/verify"
)

// ErrChatClosed is returned by Run when the chat stream ends unexpectedly.
var ErrChatClosed = errors.New("chat stream closed")

// Chat is the message transport.
type Chat interface {
	Subscribe(ctx context.Context) (<-chan domain.Message, error)
	FetchRecent(ctx context.Context, channelRef string, count int) ([]string, error)
}

// Ledger is the ledger contract shared by execution and the position manager.
type Ledger interface {
	execution.Ledger
	position.Ledger
}

// Deps overrides externally connected components. Nil fields are built from
// the configuration.
type Deps struct {
	Chat   Chat
	Swap   execution.SwapClient
	Ledger Ledger
	Signer execution.Signer
	Stores *Stores
}

// App is the running trader.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	chat      Chat
	extractor *extract.Extractor
	gate      *verify.Gate
	manager   *position.Manager
	sampler   *sampler.Sampler
	http      *httpapi.Server

	closers  []func()
	inflight sync.WaitGroup
}

// New builds every component. Call Close when done.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, deps Deps) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	amount, err := cfg.AmountPerTradeRaw()
	if err != nil {
		return nil, err
	}

	stores := deps.Stores
	if stores == nil {
		stores, err = OpenStores(ctx, cfg.Storage, logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, stores.Close)
	}

	signer := deps.Signer
	if signer == nil {
		kp, err := solana.ParseKeypair(cfg.Solana.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("wallet key: %w", err)
		}
		signer = kp
	}

	ledger := deps.Ledger
	if ledger == nil {
		ledger, err = a.buildLedger(ctx)
		if err != nil {
			return nil, err
		}
	}

	swap := deps.Swap
	if swap == nil {
		swap = jupiter.NewClient(jupiter.Options{
			BaseURL:           cfg.Swap.BaseURL,
			APIKey:            cfg.Swap.APIKey,
			RequestsPerSecond: cfg.Swap.RequestsPerSecond,
			Burst:             cfg.Swap.Burst,
			BreakerFailures:   cfg.Swap.BreakerFailures,
			BreakerTimeout:    cfg.Swap.BreakerTimeout,
			PriorityFee:       cfg.Swap.PriorityFee,
			Logger:            logger,
		})
	}

	a.chat = deps.Chat
	if a.chat == nil {
		relay, err := chat.NewRelay(chat.Options{
			WSURL:    cfg.Chat.WSURL,
			BaseURL:  cfg.Chat.RelayURL,
			APIKey:   cfg.Chat.APIKey,
			Channels: cfg.Chat.Channels,
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("chat relay: %w", err)
		}
		a.chat = relay
	}

	a.extractor = extract.New(extract.Options{
		LinkPolicy:     extract.LinkPolicy(cfg.Trading.LinkPolicy),
		BlockedHosts:   cfg.Trading.BlockedHosts,
		SuffixMarker:   cfg.Trading.SuffixMarker,
		RequireOnCurve: cfg.Trading.RequireOnCurve,
	})

	a.gate = verify.NewGate(verify.Options{
		Fetcher:     a.chat,
		Extractor:   a.extractor,
		QuietPeriod: cfg.Verify.QuietPeriod,
		RecentCount: cfg.Verify.RecentCount,
		Logger:      logger,
	})

	executor := execution.New(execution.Options{
		Swap:           swap,
		Ledger:         ledger,
		Signer:         signer,
		ConfirmTimeout: cfg.Execution.ConfirmTimeout,
		RecoveryGrace:  cfg.Execution.RecoveryGrace,
		Logger:         logger,
	})

	pricer := sampler.NewPricer(swap, cfg.Trading.FundingMint, cfg.Trading.FundingDecimals,
		cfg.Sampler.ReferenceTokens, cfg.Trading.SlippageBps)

	a.manager = position.NewManager(position.Options{
		Executor:        executor,
		Ledger:          ledger,
		Positions:       stores.Positions,
		Trades:          stores.Trades,
		Traded:          stores.Traded,
		FundingMint:     cfg.Trading.FundingMint,
		FundingDecimals: cfg.Trading.FundingDecimals,
		AmountPerTrade:  amount,
		SlippageBps:     cfg.Trading.SlippageBps,
		Denylist:        cfg.Trading.Denylist,
		OncePerToken:    cfg.Trading.OncePerToken,
		Pricer:          pricer,
		SettleTimeout:   executor.SettleTimeout(),
		Logger:          logger,
	})

	a.sampler = sampler.New(sampler.Options{
		Slot:      a.manager,
		Pricer:    pricer,
		Sink:      stores.Samples,
		Interval:  cfg.Sampler.Interval,
		Retention: cfg.Sampler.Retention,
		Logger:    logger,
	})
	a.manager.Subscribe(a.sampler)

	a.http = httpapi.New(httpapi.Options{
		Addr:    cfg.HTTP.Addr,
		Slot:    a.manager,
		Samples: a.sampler.History(),
		Trades:  stores.Trades,
		Logger:  logger,
	})

	return a, nil
}

func (a *App) buildLedger(ctx context.Context) (*solana.Ledger, error) {
	cfg := a.cfg.Solana
	rpc := solana.NewHTTPClient(cfg.RPCEndpoint, solana.WithCommitment(cfg.Commitment))

	opts := solana.LedgerOptions{
		RPC:          rpc,
		PollInterval: cfg.PollInterval,
		Logger:       a.logger,
	}
	if cfg.WSEndpoint != "" {
		wsCfg := solana.DefaultWSConfig()
		wsCfg.Commitment = cfg.Commitment
		wsCfg.Logger = a.logger
		ws, err := solana.NewWSClient(ctx, cfg.WSEndpoint, &wsCfg)
		if err != nil {
			// Confirmation falls back to polling.
			a.logger.Warn("websocket unavailable", zap.String("endpoint", cfg.WSEndpoint), zap.Error(err))
		} else {
			opts.WS = ws
			a.closers = append(a.closers, func() { ws.Close() })
		}
	}
	return solana.NewLedger(opts), nil
}

// Manager returns the position manager.
func (a *App) Manager() *position.Manager {
	return a.manager
}

// Reconcile restores a persisted position against the ledger.
func (a *App) Reconcile(ctx context.Context) error {
	err := a.manager.Reconcile(ctx)
	if errors.Is(err, position.ErrAlreadyHeld) {
		return nil
	}
	return err
}

// Run reconciles, then runs the message flow, the sampler and the HTTP server
// until ctx is cancelled. A cancelled context is not an error. Swaps already
// submitted are settled before Run returns.
func (a *App) Run(ctx context.Context) error {
	if err := a.Reconcile(ctx); err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}
	snap := a.manager.Snapshot()
	a.logger.Info("trader started",
		zap.String("state", snap.State.String()),
		zap.Strings("channels", a.cfg.Chat.Channels))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.http.Run(gctx) })
	g.Go(func() error { return a.sampler.Run(gctx) })
	g.Go(func() error { return a.consume(gctx) })

	err := g.Wait()
	a.inflight.Wait()

	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// consume reads chat messages until ctx is done.
func (a *App) consume(ctx context.Context) error {
	msgs, err := a.chat.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe chat: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-msgs:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return ErrChatClosed
			}
			a.HandleMessage(ctx, m)
		}
	}
}

// HandleMessage extracts a candidate from m and, if one is found, verifies and
// opens it in the background. It never blocks on verification.
func (a *App) HandleMessage(ctx context.Context, m domain.Message) {
	candidate, ok := a.extractor.Extract(m.Text)
	observability.RecordMessage(ok)
	if !ok {
		return
	}
	a.logger.Info("candidate found",
		zap.String("token", candidate),
		zap.String("channel", m.ChannelRef),
		zap.Time("sent_at", m.SentAt))

	a.inflight.Add(1)
	go func() {
		defer a.inflight.Done()
		a.verifyAndOpen(ctx, candidate, m)
	}()
}

func (a *App) verifyAndOpen(ctx context.Context, candidate string, m domain.Message) {
	token, ok := a.gate.Verify(ctx, candidate, m.ChannelRef, m.SentAt)
	if !ok {
		return
	}

	log := a.logger.With(zap.String("token", token), zap.String("channel", m.ChannelRef))
	pos, err := a.manager.AttemptOpen(ctx, token, m.SentAt)
	switch {
	case err == nil:
		log.Info("position opened",
			zap.String("position_id", pos.ID),
			zap.Uint64("amount", pos.QuantityHeld),
			zap.String("tx", pos.BuyTxID))
	case errors.Is(err, position.ErrAlreadyHeld),
		errors.Is(err, position.ErrBusy),
		errors.Is(err, position.ErrDenylisted),
		errors.Is(err, position.ErrAlreadyTraded):
		log.Info("open skipped", zap.Error(err))
	default:
		log.Warn("open failed", zap.Error(err))
	}
}

// ShutdownGrace is how long Run may take to return after ctx is cancelled.
func ShutdownGrace(cfg *config.Config) time.Duration {
	return execution.New(execution.Options{
		ConfirmTimeout: cfg.Execution.ConfirmTimeout,
		RecoveryGrace:  cfg.Execution.RecoveryGrace,
	}).SettleTimeout() + 15*time.Second
}

// Close releases connections in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
