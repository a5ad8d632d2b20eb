package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"solana-signal-trader/internal/config"
	"solana-signal-trader/internal/storage"
	chstore "solana-signal-trader/internal/storage/clickhouse"
	"solana-signal-trader/internal/storage/memory"
	"solana-signal-trader/internal/storage/migrations"
	pgstore "solana-signal-trader/internal/storage/postgres"
	"solana-signal-trader/internal/storage/redisstore"
)

// Stores holds the persistence backends.
type Stores struct {
	Positions storage.PositionStore
	Trades    storage.TradeStore
	Traded    storage.TradedSet
	Samples   storage.SampleStore // nil disables the sample journal

	closers []func()
}

// MemoryStores returns in-memory stores.
func MemoryStores() *Stores {
	return &Stores{
		Positions: memory.NewPositionStore(),
		Trades:    memory.NewTradeStore(),
		Traded:    memory.NewTradedSet(),
		Samples:   memory.NewSampleStore(),
	}
}

// OpenStores connects the configured backends and applies migrations.
// PostgreSQL holds the position and trades; ClickHouse and Redis are optional.
func OpenStores(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (_ *Stores, err error) {
	if cfg.UseMemory {
		logger.Info("using in-memory storage")
		return MemoryStores(), nil
	}

	s := &Stores{}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	s.closers = append(s.closers, pool.Close)
	applied, err := migrations.RunPostgresMigrations(ctx, pool)
	if err != nil {
		return nil, fmt.Errorf("postgres migrations: %w", err)
	}
	if len(applied) > 0 {
		logger.Info("postgres migrations applied", zap.Strings("versions", applied))
	}
	s.Positions = pgstore.NewPositionStore(pool)
	s.Trades = pgstore.NewTradeStore(pool)
	s.Traded = pgstore.NewTradedSet(pool)

	if cfg.ClickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
		if err != nil {
			return nil, fmt.Errorf("clickhouse: %w", err)
		}
		s.closers = append(s.closers, func() { conn.Close() })
		s.Samples = chstore.NewSampleStore(conn)
	}

	if cfg.RedisURL != "" {
		client, err := redisstore.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		s.closers = append(s.closers, func() { client.Close() })
		s.Traded = redisstore.NewTradedSet(client, cfg.RedisPrefix)
	}

	logger.Info("storage connected",
		zap.Bool("clickhouse", s.Samples != nil),
		zap.Bool("redis", cfg.RedisURL != ""))
	return s, nil
}

// Close releases backend connections.
func (s *Stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
