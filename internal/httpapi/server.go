// Package httpapi serves health, metrics and trader status over HTTP.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"solana-signal-trader/internal/domain"
	"solana-signal-trader/internal/metrics"
	"solana-signal-trader/internal/observability"
	"solana-signal-trader/internal/position"
	"solana-signal-trader/internal/storage"
)

// Defaults.
const (
	DefaultAddr         = ":8080"
	DefaultRecentTrades = 10
	shutdownTimeout     = 5 * time.Second
)

// Slot exposes the position manager state.
type Slot interface {
	Snapshot() position.Snapshot
}

// SampleSource exposes the current price history.
type SampleSource interface {
	Samples() []domain.PriceSample
}

// Options configures a Server.
type Options struct {
	Addr         string
	Slot         Slot
	Samples      SampleSource       // Optional
	Trades       storage.TradeStore // Optional
	RecentTrades int                // Default: 10
	Logger       *zap.Logger
	Now          func() time.Time
}

// Server is the status HTTP server.
type Server struct {
	opts    Options
	started time.Time
	logger  *zap.Logger
	engine  *gin.Engine
}

// New creates a Server.
func New(opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = DefaultAddr
	}
	if opts.RecentTrades <= 0 {
		opts.RecentTrades = DefaultRecentTrades
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Server{
		opts:    opts,
		started: opts.Now(),
		logger:  opts.Logger.Named("http"),
	}
	s.engine = s.router()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", s.health)
	r.HEAD("/health", s.health)
	r.GET("/metrics", gin.WrapH(observability.Handler()))
	r.GET("/status", s.status)
	r.GET("/trades/summary", s.tradeSummary)
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.opts.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("http shutdown", zap.Error(err))
	}
	return ctx.Err()
}

func (s *Server) health(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	if c.Request.Method == http.MethodHead {
		c.Status(http.StatusOK)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// StatusResponse is the JSON body of /status.
type StatusResponse struct {
	State        string        `json:"state"`
	InFlight     bool          `json:"in_flight"`
	Uptime       string        `json:"uptime"`
	Position     *PositionView `json:"position,omitempty"`
	SampleCount  int           `json:"sample_count"`
	LastPrice    float64       `json:"last_price,omitempty"`
	RealizedPnL  int64         `json:"realized_pnl"`
	TradesClosed int           `json:"trades_closed"`
	RecentTrades []TradeView   `json:"recent_trades"`
}

// PositionView is the JSON form of the open position.
type PositionView struct {
	ID              string    `json:"id"`
	TokenID         string    `json:"token_id"`
	OpenedAt        time.Time `json:"opened_at"`
	SignalAt        time.Time `json:"signal_at"`
	EntryPrice      float64   `json:"entry_price"`
	QuantityHeld    uint64    `json:"quantity_held"`
	BaseAmountSpent uint64    `json:"base_amount_spent"`
	BuyTxID         string    `json:"buy_tx_id"`
}

// TradeView is the JSON form of a closed trade.
type TradeView struct {
	PositionID     string    `json:"position_id"`
	TokenID        string    `json:"token_id"`
	OpenedAt       time.Time `json:"opened_at"`
	ClosedAt       time.Time `json:"closed_at"`
	EntryPrice     float64   `json:"entry_price"`
	ExitPrice      float64   `json:"exit_price"`
	ExitReason     string    `json:"exit_reason"`
	RealizedPnL    int64     `json:"realized_pnl"`
	RealizedPnLPct float64   `json:"realized_pnl_pct"`
	OutcomeClass   string    `json:"outcome_class"`
}

func (s *Server) status(c *gin.Context) {
	snap := s.opts.Slot.Snapshot()
	resp := StatusResponse{
		State:        snap.State.String(),
		InFlight:     snap.InFlight,
		Uptime:       s.opts.Now().Sub(s.started).Truncate(time.Second).String(),
		RealizedPnL:  snap.RealizedPnL,
		TradesClosed: snap.TradesClosed,
		RecentTrades: []TradeView{},
	}

	if p := snap.Position; p != nil {
		resp.Position = &PositionView{
			ID:              p.ID,
			TokenID:         p.TokenID,
			OpenedAt:        p.OpenedAt,
			SignalAt:        p.SignalAt,
			EntryPrice:      p.EntryPrice,
			QuantityHeld:    p.QuantityHeld,
			BaseAmountSpent: p.BaseAmountSpent,
			BuyTxID:         p.BuyTxID,
		}
	}

	if s.opts.Samples != nil {
		samples := s.opts.Samples.Samples()
		resp.SampleCount = len(samples)
		if n := len(samples); n > 0 {
			resp.LastPrice = samples[n-1].Price
		}
	}

	if s.opts.Trades != nil {
		trades, err := s.opts.Trades.List(c.Request.Context(), s.opts.RecentTrades)
		if err != nil {
			s.logger.Warn("list trades", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "trade store unavailable"})
			return
		}
		for _, t := range trades {
			resp.RecentTrades = append(resp.RecentTrades, TradeView{
				PositionID:     t.PositionID,
				TokenID:        t.TokenID,
				OpenedAt:       t.OpenedAt,
				ClosedAt:       t.ClosedAt,
				EntryPrice:     t.EntryPrice,
				ExitPrice:      t.ExitPrice,
				ExitReason:     t.ExitReason,
				RealizedPnL:    t.RealizedPnL,
				RealizedPnLPct: t.RealizedPnLPct,
				OutcomeClass:   t.OutcomeClass,
			})
		}
	}

	c.JSON(http.StatusOK, resp)
}

// tradeSummary returns outcome statistics over every closed trade.
func (s *Server) tradeSummary(c *gin.Context) {
	if s.opts.Trades == nil {
		c.JSON(http.StatusOK, metrics.Summarize(nil))
		return
	}
	trades, err := s.opts.Trades.List(c.Request.Context(), 0)
	if err != nil {
		s.logger.Warn("list trades", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "trade store unavailable"})
		return
	}
	c.JSON(http.StatusOK, metrics.Summarize(trades))
}
