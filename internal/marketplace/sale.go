package marketplace

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/alanyoungcy/promiseland/internal/domain"
)

// Commission returns the market's cut of a sale at price.
func Commission(price *big.Int, bps uint16) *big.Int {
	if bps == 0 || price.Sign() == 0 {
		return new(big.Int)
	}
	cut := new(big.Int).Mul(price, big.NewInt(int64(bps)))
	return cut.Quo(cut, big.NewInt(domain.MaxCommissionBps))
}

// ExecuteSale buys a listed item. The caller must attach exactly the listed
// price. The seller is credited the price minus the market commission, the
// market owner the commission, and the caller becomes the owner. The item
// leaves the market until its new owner lists it again.
func (c *Contract) ExecuteSale(ctx context.Context, tx domain.StateTx, call domain.Call, tokenID uint64) error {
	settings, err := tx.Settings(ctx)
	if err != nil {
		return fmt.Errorf("marketplace: execute sale %d: %w", tokenID, err)
	}
	item, err := tx.Item(ctx, tokenID)
	if err != nil {
		return fmt.Errorf("marketplace: execute sale %d: %w", tokenID, err)
	}
	if !item.Selling {
		return fmt.Errorf("marketplace: execute sale %d: item is not listed: %w", tokenID, domain.ErrInvalidState)
	}
	if item.Owner == call.Caller {
		return fmt.Errorf("marketplace: execute sale %d: owner cannot buy own item: %w", tokenID, domain.ErrInvalidState)
	}
	if err := requirePayment(call, item.Price); err != nil {
		return fmt.Errorf("marketplace: execute sale %d: %w", tokenID, err)
	}

	seller := item.Owner
	commission := Commission(item.Price, settings.CommissionBps)
	proceeds := new(big.Int).Sub(item.Price, commission)

	if err := Transfer(ctx, tx, settings.Address, seller, proceeds); err != nil {
		return fmt.Errorf("marketplace: execute sale %d: pay seller: %w", tokenID, err)
	}
	if err := Transfer(ctx, tx, settings.Address, settings.Owner, commission); err != nil {
		return fmt.Errorf("marketplace: execute sale %d: pay commission: %w", tokenID, err)
	}

	item.Owner = call.Caller
	item.Selling = false
	item.Sold = true
	item.UpdatedAt = c.now()
	if err := tx.PutItem(ctx, item); err != nil {
		return fmt.Errorf("marketplace: execute sale %d: %w", tokenID, err)
	}
	if err := c.emit(ctx, tx, domain.Event{
		Name:         domain.EventItemSold,
		TokenID:      tokenID,
		Actor:        call.Caller,
		Counterparty: seller,
		Amount:       new(big.Int).Set(item.Price),
	}); err != nil {
		return fmt.Errorf("marketplace: execute sale %d: %w", tokenID, err)
	}

	c.logger.InfoContext(ctx, "item sold",
		slog.Uint64("token_id", tokenID),
		slog.String("seller", seller.Hex()),
		slog.String("buyer", call.Caller.Hex()),
		slog.String("price", item.Price.String()),
		slog.String("commission", commission.String()),
	)
	return nil
}
