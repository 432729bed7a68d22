package marketplace

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/promiseland/internal/domain"
)

// LikeNft adds one like to an item. Any caller may like any item any number
// of times, attaching the liking price each time.
func (c *Contract) LikeNft(ctx context.Context, tx domain.StateTx, call domain.Call, tokenID uint64) error {
	if err := c.vote(ctx, tx, call, tokenID, true); err != nil {
		return fmt.Errorf("marketplace: like %d: %w", tokenID, err)
	}
	return nil
}

// DislikeNft adds one dislike to an item. It has the same payment rules as
// LikeNft and never touches the like counter.
func (c *Contract) DislikeNft(ctx context.Context, tx domain.StateTx, call domain.Call, tokenID uint64) error {
	if err := c.vote(ctx, tx, call, tokenID, false); err != nil {
		return fmt.Errorf("marketplace: dislike %d: %w", tokenID, err)
	}
	return nil
}

func (c *Contract) vote(ctx context.Context, tx domain.StateTx, call domain.Call, tokenID uint64, like bool) error {
	settings, err := tx.Settings(ctx)
	if err != nil {
		return err
	}
	item, err := tx.Item(ctx, tokenID)
	if err != nil {
		return err
	}
	if err := requirePayment(call, settings.LikingPrice); err != nil {
		return err
	}

	recipient := settings.Owner
	if settings.LikeFeeRecipient == domain.LikeFeeToCreator {
		recipient = item.Creator
	}
	if err := Transfer(ctx, tx, settings.Address, recipient, settings.LikingPrice); err != nil {
		return fmt.Errorf("liking fee: %w", err)
	}

	name := domain.EventItemLiked
	if like {
		item.Likes++
	} else {
		item.Dislikes++
		name = domain.EventItemDisliked
	}
	item.UpdatedAt = c.now()
	if err := tx.PutItem(ctx, item); err != nil {
		return err
	}
	return c.emit(ctx, tx, domain.Event{
		Name:         name,
		TokenID:      tokenID,
		Actor:        call.Caller,
		Counterparty: recipient,
		Amount:       call.AmountOf(),
	})
}
