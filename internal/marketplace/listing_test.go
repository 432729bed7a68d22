package marketplace

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/promiseland/internal/domain"
)

func TestUpdateListingPrice(t *testing.T) {
	h := newHarness(t, DeployParams{})
	id := h.mint(creator, "https://1.example.com")

	require.NoError(t, h.list(creator, nil, id, ether(1)))
	require.NoError(t, h.list(creator, nil, id, ether(2)))

	it := h.item(id)
	requireAmount(t, ether(2), it.Price)
	require.True(t, it.Selling)
	require.False(t, it.Reselling)
}

func TestUpdateListingPrice_NotOwner(t *testing.T) {
	h := newHarness(t, DeployParams{})
	id := h.mint(creator, "https://1.example.com")
	require.NoError(t, h.list(creator, nil, id, ether(1)))
	before := h.item(id)

	err := h.list(stranger, nil, id, ether(5))
	require.ErrorIs(t, err, domain.ErrUnauthorized)
	require.Equal(t, before, h.item(id))
}

func TestUpdateListingPrice_Rejects(t *testing.T) {
	h := newHarness(t, DeployParams{ListingFee: big.NewInt(25)})
	id := h.mint(creator, "https://1.example.com")
	h.fund(creator, big.NewInt(100))

	require.ErrorIs(t, h.list(creator, big.NewInt(25), 99, ether(1)), domain.ErrNotFound)
	require.ErrorIs(t, h.list(creator, big.NewInt(25), id, big.NewInt(-1)), domain.ErrInvalidArgument)
	require.ErrorIs(t, h.list(creator, nil, id, ether(1)), domain.ErrInvalidPayment)
	require.ErrorIs(t, h.list(creator, big.NewInt(26), id, ether(1)), domain.ErrInvalidPayment)
	require.ErrorIs(t, h.list(creator, big.NewInt(101), id, ether(1)), domain.ErrInsufficientFunds)

	require.False(t, h.item(id).Selling)
	requireAmount(t, big.NewInt(100), h.balance(creator))
}

func TestUpdateListingPrice_ListingFee(t *testing.T) {
	h := newHarness(t, DeployParams{ListingFee: big.NewInt(25)})
	id := h.mint(creator, "https://1.example.com")
	h.fund(creator, big.NewInt(100))

	require.NoError(t, h.list(creator, big.NewInt(25), id, ether(1)))
	requireAmount(t, big.NewInt(75), h.balance(creator))
	requireAmount(t, big.NewInt(25), h.balance(marketOwner))
	require.Zero(t, h.balance(h.s.Address).Sign())
}

func TestUpdateListingPrice_Relist(t *testing.T) {
	h := newHarness(t, DeployParams{})
	id := h.mint(creator, "https://1.example.com")
	h.fund(buyer, ether(1))

	require.NoError(t, h.list(creator, nil, id, ether(1)))
	require.NoError(t, h.buy(buyer, ether(1), id))
	require.False(t, h.item(id).Reselling)

	require.NoError(t, h.list(buyer, nil, id, ether(3)))
	it := h.item(id)
	require.True(t, it.Selling)
	require.True(t, it.Reselling)
	requireAmount(t, ether(3), it.Price)

	// The previous owner lost the right to reprice.
	require.ErrorIs(t, h.list(creator, nil, id, ether(1)), domain.ErrUnauthorized)
}
