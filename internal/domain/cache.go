package domain

import (
	"context"
	"time"
)

// ItemCache provides fast lookups of market items by token id.
type ItemCache interface {
	Set(ctx context.Context, item MarketItem) error
	Get(ctx context.Context, tokenID uint64) (MarketItem, error)
	Invalidate(ctx context.Context, tokenIDs ...uint64) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// NonceStore remembers signed-request nonces so a request cannot be replayed
// within ttl. Claim returns false when the nonce was already used.
type NonceStore interface {
	Claim(ctx context.Context, scope, nonce string, ttl time.Duration) (bool, error)
}

// StreamMessage represents a single entry from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
