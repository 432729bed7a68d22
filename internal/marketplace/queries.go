package marketplace

import (
	"context"
	"fmt"
	"iter"
	"math/big"

	"github.com/alanyoungcy/promiseland/internal/domain"
)

// DefaultPageSize is the number of items read per view while iterating.
const DefaultPageSize = 100

// ViewFunc opens a read-only view. StateStore.View satisfies it.
type ViewFunc func(ctx context.Context, fn func(domain.StateView) error) error

// Settings returns the market settings.
func (c *Contract) Settings(ctx context.Context, v domain.StateView) (domain.MarketSettings, error) {
	s, err := v.Settings(ctx)
	if err != nil {
		return domain.MarketSettings{}, fmt.Errorf("marketplace: settings: %w", err)
	}
	return s, nil
}

// FetchNftByID returns a snapshot of one item.
func (c *Contract) FetchNftByID(ctx context.Context, v domain.StateView, tokenID uint64) (domain.MarketItem, error) {
	item, err := v.Item(ctx, tokenID)
	if err != nil {
		return domain.MarketItem{}, fmt.Errorf("marketplace: fetch nft %d: %w", tokenID, err)
	}
	return item, nil
}

// TokenURI returns the metadata uri of an item.
func (c *Contract) TokenURI(ctx context.Context, v domain.StateView, tokenID uint64) (string, error) {
	item, err := v.Item(ctx, tokenID)
	if err != nil {
		return "", fmt.Errorf("marketplace: token uri %d: %w", tokenID, err)
	}
	return item.TokenURI, nil
}

// LikingPrice returns the fee charged per like or dislike.
func (c *Contract) LikingPrice(ctx context.Context, v domain.StateView) (*big.Int, error) {
	s, err := v.Settings(ctx)
	if err != nil {
		return nil, fmt.Errorf("marketplace: liking price: %w", err)
	}
	return s.LikingPrice, nil
}

// FetchNftPage returns up to limit items with a token id greater than after.
func (c *Contract) FetchNftPage(ctx context.Context, v domain.StateView, after uint64, limit int) ([]domain.MarketItem, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	items, err := v.ItemsAfter(ctx, after, limit)
	if err != nil {
		return nil, fmt.Errorf("marketplace: fetch nfts after %d: %w", after, err)
	}
	return items, nil
}

// FetchAllNfts yields every item in ascending token id order. Each page is
// read in its own view, so the sequence is lazy and can be ranged over again
// to restart from the first item. Items minted while iterating are yielded
// if their id is above the last one seen.
func (c *Contract) FetchAllNfts(ctx context.Context, view ViewFunc, pageSize int) iter.Seq2[domain.MarketItem, error] {
	return c.scan(ctx, view, pageSize, nil)
}

// FetchListedNfts is FetchAllNfts restricted to items currently for sale.
func (c *Contract) FetchListedNfts(ctx context.Context, view ViewFunc, pageSize int) iter.Seq2[domain.MarketItem, error] {
	return c.scan(ctx, view, pageSize, func(it domain.MarketItem) bool { return it.Selling })
}

func (c *Contract) scan(ctx context.Context, view ViewFunc, pageSize int, keep func(domain.MarketItem) bool) iter.Seq2[domain.MarketItem, error] {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return func(yield func(domain.MarketItem, error) bool) {
		var after uint64
		for {
			var page []domain.MarketItem
			err := view(ctx, func(v domain.StateView) error {
				var err error
				page, err = c.FetchNftPage(ctx, v, after, pageSize)
				return err
			})
			if err != nil {
				yield(domain.MarketItem{}, err)
				return
			}
			for _, it := range page {
				after = it.TokenID
				if keep != nil && !keep(it) {
					continue
				}
				if !yield(it, nil) {
					return
				}
			}
			if len(page) < pageSize {
				return
			}
		}
	}
}
