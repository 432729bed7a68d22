package marketplace

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/promiseland/internal/domain"
)

func TestMarketScenario(t *testing.T) {
	h := newHarness(t, DeployParams{})
	for i := 1; i <= 4; i++ {
		h.mint(creator, fmt.Sprintf("https://%d.example.com", i))
	}
	price := ether(1)
	h.fund(buyer, ether(10))

	for id := uint64(1); id <= 3; id++ {
		require.NoError(t, h.list(creator, nil, id, price))
	}
	require.NoError(t, h.buy(buyer, price, 1))
	require.NoError(t, h.buy(buyer, price, 2))
	require.NoError(t, h.list(buyer, nil, 1, price))

	items := h.all()
	require.Len(t, items, 4)

	byID := make(map[uint64]domain.MarketItem)
	for _, it := range items {
		byID[it.TokenID] = it
	}

	require.Equal(t, buyer, byID[1].Owner)
	require.True(t, byID[1].Selling)
	require.True(t, byID[1].Reselling)

	require.Equal(t, buyer, byID[2].Owner)
	require.False(t, byID[2].Selling)

	require.Equal(t, creator, byID[3].Owner)
	require.True(t, byID[3].Selling)

	require.Equal(t, creator, byID[4].Owner)
	require.False(t, byID[4].Selling)

	requireAmount(t, ether(2), h.balance(creator))
	requireAmount(t, ether(8), h.balance(buyer))
}

func TestLikeScenario(t *testing.T) {
	h := newHarness(t, DeployParams{LikingPrice: big.NewInt(1e15)})
	h.mint(creator, "https://1.example.com")
	h.fund(buyer, ether(1))

	var likingPrice *big.Int
	require.NoError(t, h.store.View(h.ctx, func(v domain.StateView) error {
		var err error
		likingPrice, err = h.c.LikingPrice(h.ctx, v)
		return err
	}))
	require.NoError(t, h.like(buyer, likingPrice, 1))
	require.Equal(t, uint64(1), h.item(1).Likes)
}

func TestFetchAllNfts_Order(t *testing.T) {
	h := newHarness(t, DeployParams{})
	for i := 1; i <= 5; i++ {
		h.mint(creator, fmt.Sprintf("https://%d.example.com", i))
	}

	items := h.all()
	require.Len(t, items, 5)
	for i, it := range items {
		require.Equal(t, uint64(i+1), it.TokenID)
	}

	// Ranging again restarts from the first item.
	require.Equal(t, items, h.all())
}

func TestFetchAllNfts_Empty(t *testing.T) {
	h := newHarness(t, DeployParams{})
	require.Empty(t, h.all())
}

func TestFetchAllNfts_EarlyStop(t *testing.T) {
	h := newHarness(t, DeployParams{})
	for i := 1; i <= 5; i++ {
		h.mint(creator, fmt.Sprintf("https://%d.example.com", i))
	}

	var got []uint64
	for it, err := range h.c.FetchAllNfts(h.ctx, h.store.View, 2) {
		require.NoError(t, err)
		got = append(got, it.TokenID)
		if len(got) == 3 {
			break
		}
	}
	require.Equal(t, []uint64{1, 2, 3}, got)
}

func TestFetchAllNfts_ViewError(t *testing.T) {
	c := newEmptyHarness(t).c
	boom := errors.New("boom")
	failing := func(context.Context, func(domain.StateView) error) error { return boom }

	var n int
	for _, err := range c.FetchAllNfts(context.Background(), failing, 10) {
		require.ErrorIs(t, err, boom)
		n++
	}
	require.Equal(t, 1, n)
}

func TestFetchListedNfts(t *testing.T) {
	h := newHarness(t, DeployParams{})
	for i := 1; i <= 4; i++ {
		h.mint(creator, fmt.Sprintf("https://%d.example.com", i))
	}
	require.NoError(t, h.list(creator, nil, 2, ether(1)))
	require.NoError(t, h.list(creator, nil, 4, ether(1)))

	var ids []uint64
	for it, err := range h.c.FetchListedNfts(h.ctx, h.store.View, 1) {
		require.NoError(t, err)
		ids = append(ids, it.TokenID)
	}
	require.Equal(t, []uint64{2, 4}, ids)
}

func TestTokenURI(t *testing.T) {
	h := newHarness(t, DeployParams{})
	id := h.mint(creator, "ipfs://Qm123")

	err := h.store.View(h.ctx, func(v domain.StateView) error {
		uri, err := h.c.TokenURI(h.ctx, v, id)
		require.NoError(t, err)
		require.Equal(t, "ipfs://Qm123", uri)

		_, err = h.c.TokenURI(h.ctx, v, id+1)
		require.ErrorIs(t, err, domain.ErrNotFound)
		return nil
	})
	require.NoError(t, err)
}
