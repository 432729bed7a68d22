package marketplace

import (
	"context"
	"fmt"
	"math/big"

	"github.com/alanyoungcy/promiseland/internal/domain"
)

// UpdateListingPrice lists an item for sale at price, or reprices an item
// that is already listed. Only the current owner may call it, attaching
// exactly the market listing fee. Listing an item that has been sold before
// marks it as a resale.
func (c *Contract) UpdateListingPrice(ctx context.Context, tx domain.StateTx, call domain.Call, tokenID uint64, price *big.Int) error {
	if price == nil || price.Sign() < 0 {
		return fmt.Errorf("marketplace: update listing %d: price must be >= 0: %w", tokenID, domain.ErrInvalidArgument)
	}

	settings, err := tx.Settings(ctx)
	if err != nil {
		return fmt.Errorf("marketplace: update listing %d: %w", tokenID, err)
	}
	item, err := tx.Item(ctx, tokenID)
	if err != nil {
		return fmt.Errorf("marketplace: update listing %d: %w", tokenID, err)
	}
	if item.Owner != call.Caller {
		return fmt.Errorf("marketplace: update listing %d: %s is not the owner: %w", tokenID, call.Caller.Hex(), domain.ErrUnauthorized)
	}
	if err := requirePayment(call, settings.ListingFee); err != nil {
		return fmt.Errorf("marketplace: update listing %d: %w", tokenID, err)
	}

	item.Price = new(big.Int).Set(price)
	item.Selling = true
	if item.Sold {
		item.Reselling = true
	}
	item.UpdatedAt = c.now()

	if err := Transfer(ctx, tx, settings.Address, settings.Owner, settings.ListingFee); err != nil {
		return fmt.Errorf("marketplace: update listing %d: listing fee: %w", tokenID, err)
	}
	if err := tx.PutItem(ctx, item); err != nil {
		return fmt.Errorf("marketplace: update listing %d: %w", tokenID, err)
	}
	return c.emit(ctx, tx, domain.Event{
		Name:    domain.EventListingUpdated,
		TokenID: tokenID,
		Actor:   call.Caller,
		Amount:  new(big.Int).Set(price),
	})
}
