// Package position owns the single trading slot and its Empty -> Held -> Empty cycle.
package position

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"solana-signal-trader/internal/domain"
	"solana-signal-trader/internal/execution"
	"solana-signal-trader/internal/observability"
	"solana-signal-trader/internal/storage"
)

// Transition errors.
var (
	ErrAlreadyHeld   = errors.New("position already held")
	ErrNotHeld       = errors.New("position not held")
	ErrDenylisted    = errors.New("token is denylisted")
	ErrAlreadyTraded = errors.New("token already traded")
	ErrBusy          = errors.New("another transition is in flight")
	ErrNothingToSell = errors.New("held balance is zero")
)

// Executor runs swaps from the trading wallet.
type Executor interface {
	Execute(ctx context.Context, req execution.Request) (*execution.Result, error)
	Owner() string
}

// Ledger reads balances and mint metadata.
type Ledger interface {
	Balance(ctx context.Context, owner, mint string) (uint64, error)
	Decimals(ctx context.Context, mint string) (int, error)
}

// Pricer quotes the current unit price of a held token.
type Pricer interface {
	Price(ctx context.Context, pos *domain.Position) (float64, error)
}

// Listener is notified after each completed transition, outside the slot lock.
type Listener interface {
	PositionOpened(p domain.Position)
	PositionClosed(t domain.ClosedTrade)
}

// Options configures a Manager.
type Options struct {
	Executor Executor
	Ledger   Ledger

	Positions storage.PositionStore
	Trades    storage.TradeStore
	Traded    storage.TradedSet

	FundingMint     string
	FundingDecimals int
	AmountPerTrade  uint64 // raw funding units committed per open
	SlippageBps     int
	Denylist        []string
	OncePerToken    bool

	// Pricer records the entry price right after the buy settles. When nil or
	// failing, the entry price stays zero until the first sample backfills it.
	Pricer Pricer
	// SettleTimeout bounds a started swap and its bookkeeping. The swap is not
	// cancelled with the caller's context. Default: 3m.
	SettleTimeout time.Duration
	// ZeroBalanceLimit is the number of consecutive closes that find no held
	// balance before the position is dropped. Default: 3.
	ZeroBalanceLimit int

	Logger *zap.Logger
	Now    func() time.Time
}

// Snapshot is a point-in-time view of the slot.
type Snapshot struct {
	State        domain.SlotState
	Position     *domain.Position
	InFlight     bool
	RealizedPnL  int64 // sum over trades closed by this process
	TradesClosed int
}

// Defaults.
const (
	DefaultSettleTimeout    = 3 * time.Minute
	DefaultZeroBalanceLimit = 3
)

// Manager serializes open and close transitions on the single slot.
type Manager struct {
	opts     Options
	denylist map[string]struct{}
	logger   *zap.Logger
	now      func() time.Time

	mu           sync.Mutex
	state        domain.SlotState
	pos          *domain.Position
	inFlight     bool
	realizedPnL  int64
	tradesClosed int
	zeroChecks   int
	listeners    []Listener
}

// NewManager creates a Manager in the Empty state.
func NewManager(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	deny := make(map[string]struct{}, len(opts.Denylist)+1)
	for _, t := range opts.Denylist {
		deny[t] = struct{}{}
	}
	deny[opts.FundingMint] = struct{}{}
	if opts.SettleTimeout <= 0 {
		opts.SettleTimeout = DefaultSettleTimeout
	}
	if opts.ZeroBalanceLimit <= 0 {
		opts.ZeroBalanceLimit = DefaultZeroBalanceLimit
	}

	return &Manager{
		opts:     opts,
		denylist: deny,
		logger:   logger.Named("position"),
		now:      now,
		state:    domain.StateEmpty,
	}
}

// Subscribe registers a listener for transitions. Call before trading starts.
func (m *Manager) Subscribe(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// AttemptOpen buys AmountPerTrade worth of tokenID. On success the slot is Held.
func (m *Manager) AttemptOpen(ctx context.Context, tokenID string, signalAt time.Time) (*domain.Position, error) {
	log := m.logger.With(zap.String("token", tokenID))

	if err := m.beginOpen(tokenID); err != nil {
		observability.RecordOpenAttempt(outcomeOf(err))
		log.Debug("open rejected", zap.Error(err))
		return nil, err
	}

	pos, err := m.open(ctx, tokenID, signalAt, log)
	if err != nil {
		m.finish(nil, false)
		observability.RecordOpenAttempt(outcomeOf(err))
		log.Warn("open failed", zap.Error(err))
		return nil, err
	}

	m.finish(pos, true)
	observability.RecordOpenAttempt("success")
	observability.SetPositionHeld(true)
	log.Info("position opened",
		zap.String("position", pos.ID),
		zap.String("tx", pos.BuyTxID),
		zap.Uint64("amount", pos.QuantityHeld),
		zap.Uint64("spent", pos.BaseAmountSpent))

	for _, l := range m.snapshotListeners() {
		l.PositionOpened(*pos)
	}
	return pos.Clone(), nil
}

func (m *Manager) beginOpen(tokenID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == domain.StateHeld {
		return ErrAlreadyHeld
	}
	if _, denied := m.denylist[tokenID]; denied {
		return ErrDenylisted
	}
	if m.inFlight {
		return ErrBusy
	}
	m.inFlight = true
	return nil
}

func (m *Manager) open(ctx context.Context, tokenID string, signalAt time.Time, log *zap.Logger) (*domain.Position, error) {
	if m.opts.OncePerToken && m.opts.Traded != nil {
		seen, err := m.opts.Traded.Contains(ctx, tokenID)
		if err != nil {
			return nil, fmt.Errorf("check traded set: %w", err)
		}
		if seen {
			return nil, ErrAlreadyTraded
		}
	}

	decimals, err := m.opts.Ledger.Decimals(ctx, tokenID)
	if err != nil {
		log.Warn("token decimals unavailable", zap.Error(err))
		decimals = 0
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// From here on the swap may land, so shutdown must not abandon it.
	ctx, cancel := m.settleContext(ctx)
	defer cancel()

	res, err := m.opts.Executor.Execute(ctx, execution.Request{
		Direction:   execution.Buy,
		InputMint:   m.opts.FundingMint,
		OutputMint:  tokenID,
		Amount:      m.opts.AmountPerTrade,
		SlippageBps: m.opts.SlippageBps,
	})
	if err != nil {
		return nil, fmt.Errorf("buy %s: %w", tokenID, err)
	}

	pos := &domain.Position{
		ID:              uuid.NewString(),
		TokenID:         tokenID,
		Decimals:        decimals,
		OpenedAt:        m.now().UTC(),
		SignalAt:        signalAt,
		QuantityHeld:    res.SettledAmount,
		BaseAmountSpent: m.opts.AmountPerTrade,
		BuyTxID:         res.TxID,
	}
	pos.EntryPrice = m.entryPrice(ctx, pos, log)

	// The buy is confirmed; bookkeeping failures are logged, not returned.
	if m.opts.Traded != nil {
		if err := m.opts.Traded.Add(ctx, tokenID); err != nil {
			log.Error("record traded token", zap.Error(err))
		}
	}
	m.persist(ctx, pos)

	return pos, nil
}

func (m *Manager) settleContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), m.opts.SettleTimeout)
}

func (m *Manager) entryPrice(ctx context.Context, pos *domain.Position, log *zap.Logger) float64 {
	if m.opts.Pricer == nil {
		return 0
	}
	price, err := m.opts.Pricer.Price(ctx, pos)
	if err != nil || price <= 0 {
		log.Warn("entry price unavailable, first sample will set it", zap.Error(err))
		return 0
	}
	return price
}

// AttemptClose sells the full on-ledger balance of the held token.
func (m *Manager) AttemptClose(ctx context.Context, tokenID, reason string) (*domain.ClosedTrade, error) {
	log := m.logger.With(zap.String("token", tokenID), zap.String("reason", reason))

	pos, err := m.beginClose(tokenID)
	if err != nil {
		observability.RecordCloseAttempt(outcomeOf(err))
		log.Debug("close rejected", zap.Error(err))
		return nil, err
	}

	trade, err := m.close(ctx, pos, reason, log)
	if errors.Is(err, ErrNothingToSell) && m.noteEmptyBalance(ctx, pos, log) {
		observability.RecordCloseAttempt(outcomeOf(err))
		return nil, fmt.Errorf("%w: position %s dropped", err, pos.ID)
	}
	if err != nil {
		m.finish(nil, false)
		observability.RecordCloseAttempt(outcomeOf(err))
		log.Warn("close failed", zap.Error(err))
		return nil, err
	}

	m.mu.Lock()
	m.state = domain.StateEmpty
	m.pos = nil
	m.inFlight = false
	m.zeroChecks = 0
	m.realizedPnL += trade.RealizedPnL
	m.tradesClosed++
	listeners := append([]Listener(nil), m.listeners...)
	m.mu.Unlock()

	observability.RecordCloseAttempt("success")
	observability.SetPositionHeld(false)
	observability.RecordTradeClosed(trade.OutcomeClass, trade.RealizedPnL)
	log.Info("position closed",
		zap.String("position", trade.PositionID),
		zap.String("tx", trade.SellTxID),
		zap.Uint64("received", trade.BaseAmountReceived),
		zap.Int64("pnl", trade.RealizedPnL),
		zap.String("outcome", trade.OutcomeClass))

	for _, l := range listeners {
		l.PositionClosed(*trade)
	}
	return trade, nil
}

func (m *Manager) beginClose(tokenID string) (*domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != domain.StateHeld || m.pos == nil || m.pos.TokenID != tokenID {
		return nil, ErrNotHeld
	}
	if m.inFlight {
		return nil, ErrBusy
	}
	m.inFlight = true
	return m.pos.Clone(), nil
}

func (m *Manager) close(ctx context.Context, pos *domain.Position, reason string, log *zap.Logger) (*domain.ClosedTrade, error) {
	balance, err := m.opts.Ledger.Balance(ctx, m.opts.Executor.Owner(), pos.TokenID)
	if err != nil {
		return nil, fmt.Errorf("read held balance: %w", err)
	}
	if balance == 0 {
		return nil, ErrNothingToSell
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ctx, cancel := m.settleContext(ctx)
	defer cancel()

	res, err := m.opts.Executor.Execute(ctx, execution.Request{
		Direction:   execution.Sell,
		InputMint:   pos.TokenID,
		OutputMint:  m.opts.FundingMint,
		Amount:      balance,
		SlippageBps: m.opts.SlippageBps,
	})
	if err != nil {
		return nil, fmt.Errorf("sell %s: %w", pos.TokenID, err)
	}

	trade := m.buildTrade(pos, balance, res, reason)

	if m.opts.Trades != nil {
		if err := m.opts.Trades.Insert(ctx, trade); err != nil {
			log.Error("record closed trade", zap.Error(err))
		}
	}
	if m.opts.Positions != nil {
		if err := m.opts.Positions.Delete(ctx); err != nil {
			log.Error("delete persisted position", zap.Error(err))
		}
	}
	return trade, nil
}

// noteEmptyBalance counts consecutive closes that found nothing to sell. At the
// limit the position is treated as closed elsewhere and dropped, as Reconcile
// does on restart. Reports whether the slot was emptied; the in-flight flag is
// cleared either way.
func (m *Manager) noteEmptyBalance(ctx context.Context, pos *domain.Position, log *zap.Logger) bool {
	m.mu.Lock()
	m.inFlight = false
	m.zeroChecks++
	if m.zeroChecks < m.opts.ZeroBalanceLimit || m.pos == nil || m.pos.ID != pos.ID {
		checks := m.zeroChecks
		m.mu.Unlock()
		log.Warn("held balance is zero", zap.Int("checks", checks), zap.Int("limit", m.opts.ZeroBalanceLimit))
		return false
	}
	m.state = domain.StateEmpty
	m.pos = nil
	m.zeroChecks = 0
	m.mu.Unlock()

	observability.SetPositionHeld(false)
	if m.opts.Positions != nil {
		if err := m.opts.Positions.Delete(ctx); err != nil {
			log.Error("delete persisted position", zap.Error(err))
		}
	}
	log.Warn("held balance stayed zero, position dropped",
		zap.String("position", pos.ID),
		zap.Int("checks", m.opts.ZeroBalanceLimit))
	return true
}

func (m *Manager) buildTrade(pos *domain.Position, sold uint64, res *execution.Result, reason string) *domain.ClosedTrade {
	received := res.SettledAmount
	pnl := decimal.NewFromUint64(received).Sub(decimal.NewFromUint64(pos.BaseAmountSpent))

	var pct float64
	if pos.BaseAmountSpent > 0 {
		pct = pnl.Div(decimal.NewFromUint64(pos.BaseAmountSpent)).InexactFloat64()
	}

	outcome := domain.OutcomeClassLoss
	if pnl.IsPositive() {
		outcome = domain.OutcomeClassWin
	}

	return &domain.ClosedTrade{
		PositionID:         pos.ID,
		TokenID:            pos.TokenID,
		SignalAt:           pos.SignalAt,
		OpenedAt:           pos.OpenedAt,
		EntryPrice:         pos.EntryPrice,
		QuantityBought:     pos.QuantityHeld,
		BaseAmountSpent:    pos.BaseAmountSpent,
		BuyTxID:            pos.BuyTxID,
		ClosedAt:           m.now().UTC(),
		ExitPrice:          FillPrice(received, m.opts.FundingDecimals, sold, pos.Decimals),
		QuantitySold:       sold,
		BaseAmountReceived: received,
		SellTxID:           res.TxID,
		ExitReason:         reason,
		RealizedPnL:        pnl.IntPart(),
		RealizedPnLPct:     pct,
		OutcomeClass:       outcome,
	}
}

// FillPrice returns funding units per whole token for a swap of tokenAmount
// raw token units against fundingAmount raw funding units. Zero when tokenAmount is zero.
func FillPrice(fundingAmount uint64, fundingDecimals int, tokenAmount uint64, tokenDecimals int) float64 {
	if tokenAmount == 0 {
		return 0
	}
	funding := decimal.NewFromUint64(fundingAmount).Shift(int32(-fundingDecimals))
	tokens := decimal.NewFromUint64(tokenAmount).Shift(int32(-tokenDecimals))
	return funding.Div(tokens).InexactFloat64()
}

// Reconcile restores a persisted position after a restart. A zero ledger
// balance means the position was closed elsewhere and the record is dropped.
func (m *Manager) Reconcile(ctx context.Context) error {
	if m.opts.Positions == nil {
		return nil
	}

	stored, err := m.opts.Positions.Load(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		m.logger.Info("no persisted position")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load persisted position: %w", err)
	}

	log := m.logger.With(zap.String("token", stored.TokenID), zap.String("position", stored.ID))

	m.mu.Lock()
	if m.state == domain.StateHeld || m.inFlight {
		m.mu.Unlock()
		return ErrAlreadyHeld
	}
	m.inFlight = true
	m.mu.Unlock()

	balance, err := m.opts.Ledger.Balance(ctx, m.opts.Executor.Owner(), stored.TokenID)
	if err != nil {
		m.finish(nil, false)
		return fmt.Errorf("read ledger balance: %w", err)
	}

	if balance == 0 {
		m.finish(nil, false)
		if err := m.opts.Positions.Delete(ctx); err != nil {
			return fmt.Errorf("discard persisted position: %w", err)
		}
		log.Warn("persisted position has no ledger balance, discarded")
		return nil
	}

	if balance != stored.QuantityHeld {
		log.Info("held quantity updated from ledger",
			zap.Uint64("stored", stored.QuantityHeld),
			zap.Uint64("ledger", balance))
	}
	stored.QuantityHeld = balance
	m.persist(ctx, stored)

	if m.opts.Traded != nil {
		if err := m.opts.Traded.Add(ctx, stored.TokenID); err != nil {
			log.Error("record traded token", zap.Error(err))
		}
	}

	m.finish(stored, true)
	observability.SetPositionHeld(true)
	log.Info("position restored", zap.Uint64("amount", balance))

	for _, l := range m.snapshotListeners() {
		l.PositionOpened(*stored)
	}
	return nil
}

// SetEntryPrice backfills the entry price of the held position when it is still zero.
// Reports whether the price was applied.
func (m *Manager) SetEntryPrice(ctx context.Context, positionID string, price float64) bool {
	if price <= 0 {
		return false
	}

	m.mu.Lock()
	if m.pos == nil || m.pos.ID != positionID || m.pos.EntryPrice != 0 {
		m.mu.Unlock()
		return false
	}
	m.pos.EntryPrice = price
	pos := m.pos.Clone()
	m.mu.Unlock()

	m.persist(ctx, pos)
	m.logger.Info("entry price backfilled",
		zap.String("token", pos.TokenID),
		zap.Float64("price", price))
	return true
}

// Current returns a copy of the held position, or nil when Empty.
func (m *Manager) Current() *domain.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pos.Clone()
}

// Snapshot returns the slot state for status reporting.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		State:        m.state,
		Position:     m.pos.Clone(),
		InFlight:     m.inFlight,
		RealizedPnL:  m.realizedPnL,
		TradesClosed: m.tradesClosed,
	}
}

// finish clears the in-flight flag. When held is true the slot becomes Held with pos.
func (m *Manager) finish(pos *domain.Position, held bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlight = false
	if held {
		m.state = domain.StateHeld
		m.pos = pos.Clone()
		m.zeroChecks = 0
	}
}

func (m *Manager) persist(ctx context.Context, pos *domain.Position) {
	if m.opts.Positions == nil {
		return
	}
	if err := m.opts.Positions.Save(ctx, pos); err != nil {
		m.logger.Error("persist position",
			zap.String("token", pos.TokenID),
			zap.Error(err))
	}
}

func (m *Manager) snapshotListeners() []Listener {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Listener(nil), m.listeners...)
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrAlreadyHeld):
		return "already_held"
	case errors.Is(err, ErrNotHeld):
		return "not_held"
	case errors.Is(err, ErrDenylisted):
		return "denylisted"
	case errors.Is(err, ErrAlreadyTraded):
		return "already_traded"
	case errors.Is(err, ErrBusy):
		return "busy"
	case errors.Is(err, ErrNothingToSell):
		return "nothing_to_sell"
	default:
		return "failure"
	}
}
