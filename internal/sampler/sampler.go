// Package sampler polls the price of the held token and runs the exit rules on every sample.
package sampler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"solana-signal-trader/internal/domain"
	"solana-signal-trader/internal/observability"
	"solana-signal-trader/internal/position"
	"solana-signal-trader/internal/storage"
	"solana-signal-trader/internal/strategy"
)

// Defaults.
const (
	DefaultInterval        = 10 * time.Second
	DefaultRetention       = 180 // 30 minutes at the default interval
	DefaultReferenceTokens = 1
)

// Slot is the view of the position manager the sampler needs.
type Slot interface {
	Current() *domain.Position
	SetEntryPrice(ctx context.Context, positionID string, price float64) bool
	AttemptClose(ctx context.Context, tokenID, reason string) (*domain.ClosedTrade, error)
}

// Options configures a Sampler.
type Options struct {
	Slot   Slot
	Pricer *Pricer
	// Sink receives every sample. Optional; write failures are logged.
	Sink      storage.SampleStore
	Interval  time.Duration // Default: 10s
	Retention int           // Default: 180 samples
	Logger    *zap.Logger
	Now       func() time.Time
}

// Sampler owns the price history of the held position.
type Sampler struct {
	slot     Slot
	pricer   *Pricer
	sink     storage.SampleStore
	interval time.Duration
	history  *History
	logger   *zap.Logger
	now      func() time.Time

	mu         sync.Mutex
	positionID string // position the history belongs to
	tickMu     sync.Mutex
}

// New creates a Sampler.
func New(opts Options) *Sampler {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Sampler{
		slot:     opts.Slot,
		pricer:   opts.Pricer,
		sink:     opts.Sink,
		interval: interval,
		history:  NewHistory(opts.Retention),
		logger:   logger.Named("sampler"),
		now:      now,
	}
}

var _ position.Listener = (*Sampler)(nil)

// PositionOpened starts a fresh history for the new position.
func (s *Sampler) PositionOpened(p domain.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history.Reset()
	s.positionID = p.ID
}

// PositionClosed clears the history.
func (s *Sampler) PositionClosed(domain.ClosedTrade) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history.Reset()
	s.positionID = ""
}

// History returns the sample history of the held position.
func (s *Sampler) History() *History {
	return s.history
}

// Run samples on every interval until ctx is cancelled.
func (s *Sampler) Run(ctx context.Context) error {
	s.logger.Info("sampler started", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sampler stopping")
			return ctx.Err()
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick takes one sample and evaluates the exit rules. It is a no-op while
// no position is held. Returns the decision taken, if any.
func (s *Sampler) Tick(ctx context.Context) (strategy.Decision, bool) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	pos := s.slot.Current()
	if pos == nil {
		return strategy.Decision{}, false
	}
	log := s.logger.With(zap.String("token", pos.TokenID))

	s.mu.Lock()
	if s.positionID != pos.ID {
		s.history.Reset()
		s.positionID = pos.ID
	}
	s.mu.Unlock()

	price, err := s.pricer.Price(ctx, pos)
	if err != nil {
		observability.RecordSample(0, false)
		log.Debug("sample skipped", zap.Error(err))
		return strategy.Decision{}, false
	}

	sample := domain.PriceSample{Timestamp: s.now().UTC(), Price: price}
	if !s.history.Append(sample) {
		log.Warn("out of order sample dropped", zap.Time("at", sample.Timestamp))
		return strategy.Decision{}, false
	}
	observability.RecordSample(price, true)
	s.forward(ctx, pos, sample, log)

	if pos.EntryPrice == 0 && s.slot.SetEntryPrice(ctx, pos.ID, price) {
		pos.EntryPrice = price
	}

	decision := strategy.Decide(s.history.Samples(), pos)
	if decision.Action != strategy.ActionSell {
		return decision, true
	}

	observability.RecordExitDecision(decision.Reason)
	log.Info("exit signal",
		zap.String("reason", decision.Reason),
		zap.Float64("price", price),
		zap.Float64("gain", decision.Gain),
		zap.Float64("r5", decision.R5),
		zap.Float64("r10", decision.R10),
		zap.Float64("r20", decision.R20))

	if _, err := s.slot.AttemptClose(ctx, pos.TokenID, decision.Reason); err != nil {
		log.Warn("exit failed, will retry on next sample", zap.Error(err))
	}
	return decision, true
}

func (s *Sampler) forward(ctx context.Context, pos *domain.Position, sample domain.PriceSample, log *zap.Logger) {
	if s.sink == nil {
		return
	}
	if err := s.sink.InsertSamples(ctx, pos.ID, pos.TokenID, []domain.PriceSample{sample}); err != nil {
		log.Warn("forward sample", zap.Error(err))
	}
}
