package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/promiseland/internal/domain"
)

// NonceStore implements domain.NonceStore with SET NX so that a signed
// request nonce is accepted once per scope until it expires.
type NonceStore struct {
	c *Client
}

// NewNonceStore creates a NonceStore backed by the given Client.
func NewNonceStore(c *Client) *NonceStore {
	return &NonceStore{c: c}
}

// Claim returns false when nonce was already claimed within ttl.
func (ns *NonceStore) Claim(ctx context.Context, scope, nonce string, ttl time.Duration) (bool, error) {
	ok, err := ns.c.rdb.SetNX(ctx, ns.c.Key("nonce", scope, nonce), 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: claim nonce: %w", err)
	}
	return ok, nil
}

// Compile-time interface check.
var _ domain.NonceStore = (*NonceStore)(nil)
