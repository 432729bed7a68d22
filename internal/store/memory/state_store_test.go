package memory

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/promiseland/internal/domain"
)

var alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")

func TestStateStore_CommitAndRollback(t *testing.T) {
	ctx := context.Background()
	s := NewStateStore()

	err := s.Update(ctx, func(tx domain.StateTx) error {
		require.NoError(t, tx.PutSettings(ctx, domain.MarketSettings{NextTokenID: 1, ListingFee: new(big.Int), LikingPrice: new(big.Int)}))
		require.NoError(t, tx.PutItem(ctx, domain.MarketItem{TokenID: 1, TokenURI: "a", Price: new(big.Int)}))
		require.NoError(t, tx.SetBalance(ctx, alice, big.NewInt(5)))
		return tx.AppendEvent(ctx, &domain.Event{Name: domain.EventTokenCreated})
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = s.Update(ctx, func(tx domain.StateTx) error {
		require.NoError(t, tx.PutItem(ctx, domain.MarketItem{TokenID: 1, TokenURI: "changed", Price: new(big.Int)}))
		require.NoError(t, tx.PutItem(ctx, domain.MarketItem{TokenID: 2, TokenURI: "b", Price: new(big.Int)}))
		require.NoError(t, tx.SetBalance(ctx, alice, big.NewInt(0)))

		// Writes are visible inside the transaction.
		it, err := tx.Item(ctx, 1)
		require.NoError(t, err)
		require.Equal(t, "changed", it.TokenURI)
		items, err := tx.ItemsAfter(ctx, 0, 10)
		require.NoError(t, err)
		require.Len(t, items, 2)
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = s.View(ctx, func(v domain.StateView) error {
		it, err := v.Item(ctx, 1)
		require.NoError(t, err)
		require.Equal(t, "a", it.TokenURI)

		_, err = v.Item(ctx, 2)
		require.ErrorIs(t, err, domain.ErrNotFound)

		bal, err := v.Balance(ctx, alice)
		require.NoError(t, err)
		require.Equal(t, "5", bal.String())

		events, err := v.EventsAfter(ctx, 0, 10)
		require.NoError(t, err)
		require.Len(t, events, 1)
		require.Equal(t, uint64(1), events[0].Seq)
		return nil
	})
	require.NoError(t, err)
}

func TestStateStore_NotDeployed(t *testing.T) {
	ctx := context.Background()
	err := NewStateStore().View(ctx, func(v domain.StateView) error {
		_, err := v.Settings(ctx)
		return err
	})
	require.ErrorIs(t, err, domain.ErrNotDeployed)
}

func TestStateStore_ViewIsReadOnly(t *testing.T) {
	ctx := context.Background()
	err := NewStateStore().View(ctx, func(v domain.StateView) error {
		tx, ok := v.(domain.StateTx)
		require.True(t, ok)
		return tx.PutItem(ctx, domain.MarketItem{TokenID: 1})
	})
	require.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestStateStore_ItemsAfter(t *testing.T) {
	ctx := context.Background()
	s := NewStateStore()
	require.NoError(t, s.Update(ctx, func(tx domain.StateTx) error {
		for id := uint64(1); id <= 5; id++ {
			if err := tx.PutItem(ctx, domain.MarketItem{TokenID: id, Price: new(big.Int)}); err != nil {
				return err
			}
		}
		return nil
	}))

	require.NoError(t, s.View(ctx, func(v domain.StateView) error {
		items, err := v.ItemsAfter(ctx, 2, 2)
		require.NoError(t, err)
		require.Len(t, items, 2)
		require.Equal(t, uint64(3), items[0].TokenID)
		require.Equal(t, uint64(4), items[1].TokenID)

		items, err = v.ItemsAfter(ctx, 5, 2)
		require.NoError(t, err)
		require.Empty(t, items)
		return nil
	}))
}

func TestStateStore_ClonesOnRead(t *testing.T) {
	ctx := context.Background()
	s := NewStateStore()
	require.NoError(t, s.Update(ctx, func(tx domain.StateTx) error {
		return tx.PutItem(ctx, domain.MarketItem{TokenID: 1, Price: big.NewInt(7)})
	}))

	require.NoError(t, s.View(ctx, func(v domain.StateView) error {
		it, err := v.Item(ctx, 1)
		require.NoError(t, err)
		it.Price.SetInt64(100)
		return nil
	}))
	require.NoError(t, s.View(ctx, func(v domain.StateView) error {
		it, err := v.Item(ctx, 1)
		require.NoError(t, err)
		require.Equal(t, "7", it.Price.String())
		return nil
	}))
}
