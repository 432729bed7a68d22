package domain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// StateView is a read-only view over the marketplace state.
type StateView interface {
	// Settings returns ErrNotDeployed before the market has been deployed.
	Settings(ctx context.Context) (MarketSettings, error)
	// Item returns ErrNotFound for an unassigned token id.
	Item(ctx context.Context, tokenID uint64) (MarketItem, error)
	// ItemsAfter returns up to limit items with TokenID > after in ascending
	// TokenID order.
	ItemsAfter(ctx context.Context, after uint64, limit int) ([]MarketItem, error)
	// Balance returns zero for accounts that were never credited.
	Balance(ctx context.Context, addr common.Address) (*big.Int, error)
	// EventsAfter returns up to limit events with Seq > after in ascending
	// Seq order.
	EventsAfter(ctx context.Context, after uint64, limit int) ([]Event, error)
}

// StateTx is a read-write view that is committed or discarded as a unit.
type StateTx interface {
	StateView
	PutSettings(ctx context.Context, s MarketSettings) error
	PutItem(ctx context.Context, item MarketItem) error
	SetBalance(ctx context.Context, addr common.Address, amount *big.Int) error
	// AppendEvent stores e and assigns its Seq.
	AppendEvent(ctx context.Context, e *Event) error
}

// StateStore runs functions against the marketplace state. Update commits
// every write made through the StateTx when fn returns nil and discards all
// of them otherwise. Update calls never interleave.
type StateStore interface {
	View(ctx context.Context, fn func(StateView) error) error
	Update(ctx context.Context, fn func(StateTx) error) error
}
