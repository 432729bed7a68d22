package marketplace

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/alanyoungcy/promiseland/internal/domain"
)

// CreateToken mints a new item owned by the caller and returns its token id.
// Ids start at 1 and are never reused.
func (c *Contract) CreateToken(ctx context.Context, tx domain.StateTx, call domain.Call, uri string) (uint64, error) {
	if call.Paid() {
		return 0, fmt.Errorf("marketplace: create token is not payable: %w", domain.ErrInvalidPayment)
	}
	if strings.TrimSpace(uri) == "" {
		return 0, fmt.Errorf("marketplace: create token: empty token uri: %w", domain.ErrInvalidArgument)
	}

	settings, err := tx.Settings(ctx)
	if err != nil {
		return 0, fmt.Errorf("marketplace: create token: %w", err)
	}

	now := c.now()
	item := domain.MarketItem{
		TokenID:   settings.NextTokenID,
		TokenURI:  uri,
		Creator:   call.Caller,
		Owner:     call.Caller,
		Price:     new(big.Int),
		CreatedAt: now,
		UpdatedAt: now,
	}
	settings.NextTokenID++

	if err := tx.PutItem(ctx, item); err != nil {
		return 0, fmt.Errorf("marketplace: create token %d: %w", item.TokenID, err)
	}
	if err := tx.PutSettings(ctx, settings); err != nil {
		return 0, fmt.Errorf("marketplace: create token %d: %w", item.TokenID, err)
	}
	if err := c.emit(ctx, tx, domain.Event{
		Name:    domain.EventTokenCreated,
		TokenID: item.TokenID,
		Actor:   call.Caller,
		Detail:  uri,
	}); err != nil {
		return 0, fmt.Errorf("marketplace: create token %d: %w", item.TokenID, err)
	}

	c.logger.DebugContext(ctx, "token created",
		slog.Uint64("token_id", item.TokenID),
		slog.String("creator", call.Caller.Hex()),
	)
	return item.TokenID, nil
}
