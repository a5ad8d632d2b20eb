package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"solana-signal-trader/internal/observability"
	"solana-signal-trader/internal/storage"
)

// DefaultNamespace prefixes every key written by this package.
const DefaultNamespace = "signal-trader"

// TradedSet implements storage.TradedSet as a Redis set.
type TradedSet struct {
	client    redis.Cmdable
	namespace string
}

// NewTradedSet creates a TradedSet. An empty namespace uses DefaultNamespace.
func NewTradedSet(client redis.Cmdable, namespace string) *TradedSet {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &TradedSet{client: client, namespace: namespace}
}

// Compile-time interface check.
var _ storage.TradedSet = (*TradedSet)(nil)

// key returns the Redis key of the set.
func (s *TradedSet) key() string {
	return fmt.Sprintf("%s:traded", s.namespace)
}

// Add marks the token as traded.
func (s *TradedSet) Add(ctx context.Context, tokenID string) error {
	if tokenID == "" {
		return storage.ErrInvalidInput
	}

	start := time.Now()
	err := s.client.SAdd(ctx, s.key(), tokenID).Err()
	observability.RecordDBQuery("redis", "sadd", time.Since(start).Seconds(), err)
	if err != nil {
		return fmt.Errorf("add traded token: %w", err)
	}
	return nil
}

// Contains reports whether the token has been traded.
func (s *TradedSet) Contains(ctx context.Context, tokenID string) (bool, error) {
	if tokenID == "" {
		return false, storage.ErrInvalidInput
	}

	start := time.Now()
	ok, err := s.client.SIsMember(ctx, s.key(), tokenID).Result()
	observability.RecordDBQuery("redis", "sismember", time.Since(start).Seconds(), err)
	if err != nil {
		return false, fmt.Errorf("check traded token: %w", err)
	}
	return ok, nil
}
