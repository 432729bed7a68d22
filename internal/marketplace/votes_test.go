package marketplace

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/promiseland/internal/domain"
)

func TestLikeNft(t *testing.T) {
	h := newHarness(t, DeployParams{LikingPrice: big.NewInt(1000)})
	id := h.mint(creator, "https://1.example.com")
	h.fund(buyer, big.NewInt(10_000))

	const n = 7
	for range n {
		require.NoError(t, h.like(buyer, big.NewInt(1000), id))
	}

	it := h.item(id)
	require.Equal(t, uint64(n), it.Likes)
	require.Zero(t, it.Dislikes)
	requireAmount(t, big.NewInt(3000), h.balance(buyer))
	requireAmount(t, big.NewInt(7000), h.balance(marketOwner))
}

func TestLikeNft_WrongPayment(t *testing.T) {
	h := newHarness(t, DeployParams{LikingPrice: big.NewInt(1000)})
	id := h.mint(creator, "https://1.example.com")
	h.fund(buyer, big.NewInt(10_000))
	require.NoError(t, h.like(buyer, big.NewInt(1000), id))

	for _, v := range []*big.Int{nil, big.NewInt(999), big.NewInt(1001)} {
		require.ErrorIs(t, h.like(buyer, v, id), domain.ErrInvalidPayment)
	}
	require.ErrorIs(t, h.like(buyer, big.NewInt(1000), 99), domain.ErrNotFound)

	require.Equal(t, uint64(1), h.item(id).Likes)
	requireAmount(t, big.NewInt(9000), h.balance(buyer))
}

func TestDislikeNft(t *testing.T) {
	h := newHarness(t, DeployParams{LikingPrice: big.NewInt(1000)})
	id := h.mint(creator, "https://1.example.com")
	h.fund(buyer, big.NewInt(10_000))

	require.NoError(t, h.like(buyer, big.NewInt(1000), id))
	require.NoError(t, h.dislike(buyer, big.NewInt(1000), id))
	require.NoError(t, h.dislike(buyer, big.NewInt(1000), id))
	require.ErrorIs(t, h.dislike(buyer, big.NewInt(1), id), domain.ErrInvalidPayment)

	it := h.item(id)
	require.Equal(t, uint64(1), it.Likes)
	require.Equal(t, uint64(2), it.Dislikes)
}

func TestLikeNft_FeeToCreator(t *testing.T) {
	h := newHarness(t, DeployParams{LikingPrice: big.NewInt(1000), LikeFeeRecipient: domain.LikeFeeToCreator})
	id := h.mint(creator, "https://1.example.com")
	h.fund(buyer, big.NewInt(10_000))

	require.NoError(t, h.like(buyer, big.NewInt(1000), id))
	requireAmount(t, big.NewInt(1000), h.balance(creator))
	require.Zero(t, h.balance(marketOwner).Sign())
}

func TestLikeNft_FreeLikes(t *testing.T) {
	h := newHarness(t, DeployParams{LikingPrice: new(big.Int)})
	id := h.mint(creator, "https://1.example.com")

	require.NoError(t, h.like(stranger, nil, id))
	require.ErrorIs(t, h.like(stranger, big.NewInt(1), id), domain.ErrInsufficientFunds)
	require.Equal(t, uint64(1), h.item(id).Likes)
}
