// Package verify confirms that a candidate address is still being promoted
// after a quiet period before any capital is committed.
package verify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"solana-signal-trader/internal/observability"
)

// ErrVerificationFailed is returned by Check when the candidate is not confirmed.
var ErrVerificationFailed = errors.New("verification failed")

// Defaults.
const (
	DefaultQuietPeriod = 25 * time.Second
	DefaultRecentCount = 2
)

// Fetcher retrieves the text of the most recent messages in a channel.
type Fetcher interface {
	FetchRecent(ctx context.Context, channelRef string, count int) ([]string, error)
}

// Extractor lists the candidate addresses in message text.
type Extractor interface {
	ExtractAll(text string) []string
}

// Options configures a Gate.
type Options struct {
	Fetcher     Fetcher
	Extractor   Extractor
	QuietPeriod time.Duration // Default: 25s
	RecentCount int           // Default: 2
	Logger      *zap.Logger
	Now         func() time.Time
}

// Gate re-checks a channel after a quiet period. Each call blocks only its caller,
// so concurrent candidates are verified independently.
type Gate struct {
	fetcher     Fetcher
	extractor   Extractor
	quietPeriod time.Duration
	recentCount int
	logger      *zap.Logger
	now         func() time.Time
}

// NewGate creates a verification gate.
func NewGate(opts Options) *Gate {
	quiet := opts.QuietPeriod
	if quiet <= 0 {
		quiet = DefaultQuietPeriod
	}
	count := opts.RecentCount
	if count <= 0 {
		count = DefaultRecentCount
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Gate{
		fetcher:     opts.Fetcher,
		extractor:   opts.Extractor,
		quietPeriod: quiet,
		recentCount: count,
		logger:      logger.Named("verify"),
		now:         now,
	}
}

// Verify waits out the quiet period and returns the candidate if it is still present
// in the channel's most recent messages. Any failure yields ("", false).
func (g *Gate) Verify(ctx context.Context, candidate, channelRef string, signalAt time.Time) (string, bool) {
	err := g.Check(ctx, candidate, channelRef, signalAt)
	observability.RecordVerification(err == nil)
	if err != nil {
		g.logger.Info("candidate rejected",
			zap.String("token", candidate),
			zap.String("channel", channelRef),
			zap.Error(err))
		return "", false
	}
	g.logger.Info("candidate verified",
		zap.String("token", candidate),
		zap.String("channel", channelRef))
	return candidate, true
}

// Check is Verify with the failure cause. Every non-nil error wraps ErrVerificationFailed.
func (g *Gate) Check(ctx context.Context, candidate, channelRef string, signalAt time.Time) error {
	if candidate == "" {
		return fmt.Errorf("%w: empty candidate", ErrVerificationFailed)
	}
	if g.fetcher == nil || g.extractor == nil {
		return fmt.Errorf("%w: gate not configured", ErrVerificationFailed)
	}

	if err := g.wait(ctx, signalAt); err != nil {
		return fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}

	texts, err := g.fetcher.FetchRecent(ctx, channelRef, g.recentCount)
	if err != nil {
		return fmt.Errorf("%w: fetch recent: %v", ErrVerificationFailed, err)
	}

	for _, text := range texts {
		for _, found := range g.extractor.ExtractAll(text) {
			if found == candidate {
				return nil
			}
		}
	}
	return fmt.Errorf("%w: not in last %d messages", ErrVerificationFailed, len(texts))
}

// wait blocks until the quiet period since signalAt has elapsed.
func (g *Gate) wait(ctx context.Context, signalAt time.Time) error {
	remaining := g.quietPeriod
	if !signalAt.IsZero() {
		remaining = g.quietPeriod - g.now().Sub(signalAt)
	}
	if remaining > g.quietPeriod {
		remaining = g.quietPeriod
	}
	if remaining <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
