package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/promiseland/internal/domain"
)

const itemTTL = 5 * time.Minute

// ItemCache implements domain.ItemCache with one JSON string per item.
//
// Key schema:
//
//	{prefix}item:{tokenID} - JSON-encoded MarketItem
type ItemCache struct {
	c   *Client
	ttl time.Duration
}

// NewItemCache creates an ItemCache backed by the given Client.
func NewItemCache(c *Client) *ItemCache {
	return &ItemCache{c: c, ttl: itemTTL}
}

func (ic *ItemCache) key(tokenID uint64) string {
	return ic.c.Key("item", strconv.FormatUint(tokenID, 10))
}

// Set stores an item with a 5-minute TTL.
func (ic *ItemCache) Set(ctx context.Context, item domain.MarketItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("redis: marshal item %d: %w", item.TokenID, err)
	}
	if err := ic.c.rdb.Set(ctx, ic.key(item.TokenID), data, ic.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set item %d: %w", item.TokenID, err)
	}
	return nil
}

// Get returns domain.ErrNotFound on a cache miss.
func (ic *ItemCache) Get(ctx context.Context, tokenID uint64) (domain.MarketItem, error) {
	data, err := ic.c.rdb.Get(ctx, ic.key(tokenID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.MarketItem{}, domain.ErrNotFound
		}
		return domain.MarketItem{}, fmt.Errorf("redis: get item %d: %w", tokenID, err)
	}

	var item domain.MarketItem
	if err := json.Unmarshal(data, &item); err != nil {
		return domain.MarketItem{}, fmt.Errorf("redis: unmarshal item %d: %w", tokenID, err)
	}
	return item, nil
}

// Invalidate removes the given items in one round trip.
func (ic *ItemCache) Invalidate(ctx context.Context, tokenIDs ...uint64) error {
	if len(tokenIDs) == 0 {
		return nil
	}
	pipe := ic.c.rdb.TxPipeline()
	for _, id := range tokenIDs {
		pipe.Del(ctx, ic.key(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: invalidate %d items: %w", len(tokenIDs), err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.ItemCache = (*ItemCache)(nil)
