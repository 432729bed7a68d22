package marketplace

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/promiseland/internal/domain"
)

func TestExecuteSale(t *testing.T) {
	h := newHarness(t, DeployParams{})
	id := h.mint(creator, "https://1.example.com")
	h.fund(buyer, ether(5))
	require.NoError(t, h.list(creator, nil, id, ether(1)))

	require.NoError(t, h.buy(buyer, ether(1), id))

	it := h.item(id)
	require.Equal(t, buyer, it.Owner)
	require.Equal(t, creator, it.Creator)
	require.False(t, it.Selling)
	require.True(t, it.Sold)
	requireAmount(t, ether(1), h.balance(creator))
	requireAmount(t, ether(4), h.balance(buyer))
	require.Zero(t, h.balance(h.s.Address).Sign())
}

func TestExecuteSale_WrongPayment(t *testing.T) {
	h := newHarness(t, DeployParams{})
	id := h.mint(creator, "https://1.example.com")
	h.fund(buyer, ether(5))
	require.NoError(t, h.list(creator, nil, id, ether(2)))

	for _, v := range []*big.Int{nil, ether(1), ether(3)} {
		err := h.buy(buyer, v, id)
		require.ErrorIs(t, err, domain.ErrInvalidPayment, "value %v", v)

		it := h.item(id)
		require.Equal(t, creator, it.Owner)
		require.True(t, it.Selling)
		requireAmount(t, ether(5), h.balance(buyer))
		require.Zero(t, h.balance(creator).Sign())
	}
}

func TestExecuteSale_NotListed(t *testing.T) {
	h := newHarness(t, DeployParams{})
	id := h.mint(creator, "https://1.example.com")
	h.fund(buyer, ether(5))

	require.ErrorIs(t, h.buy(buyer, nil, id), domain.ErrInvalidState)
	require.ErrorIs(t, h.buy(buyer, nil, 42), domain.ErrNotFound)
}

func TestExecuteSale_DoubleSale(t *testing.T) {
	h := newHarness(t, DeployParams{})
	id := h.mint(creator, "https://1.example.com")
	h.fund(buyer, ether(5))
	h.fund(stranger, ether(5))
	require.NoError(t, h.list(creator, nil, id, ether(1)))
	require.NoError(t, h.buy(buyer, ether(1), id))

	err := h.buy(stranger, ether(1), id)
	require.ErrorIs(t, err, domain.ErrInvalidState)
	require.Equal(t, buyer, h.item(id).Owner)
	requireAmount(t, ether(5), h.balance(stranger))
}

func TestExecuteSale_OwnerCannotBuy(t *testing.T) {
	h := newHarness(t, DeployParams{})
	id := h.mint(creator, "https://1.example.com")
	h.fund(creator, ether(5))
	require.NoError(t, h.list(creator, nil, id, ether(1)))

	require.ErrorIs(t, h.buy(creator, ether(1), id), domain.ErrInvalidState)
	require.True(t, h.item(id).Selling)
}

func TestExecuteSale_InsufficientFunds(t *testing.T) {
	h := newHarness(t, DeployParams{})
	id := h.mint(creator, "https://1.example.com")
	h.fund(buyer, big.NewInt(10))
	require.NoError(t, h.list(creator, nil, id, ether(1)))

	require.ErrorIs(t, h.buy(buyer, ether(1), id), domain.ErrInsufficientFunds)
	require.Equal(t, creator, h.item(id).Owner)
	requireAmount(t, big.NewInt(10), h.balance(buyer))
}

func TestExecuteSale_Commission(t *testing.T) {
	h := newHarness(t, DeployParams{CommissionBps: 250})
	id := h.mint(creator, "https://1.example.com")
	h.fund(buyer, big.NewInt(10_000))
	require.NoError(t, h.list(creator, nil, id, big.NewInt(10_000)))

	require.NoError(t, h.buy(buyer, big.NewInt(10_000), id))
	requireAmount(t, big.NewInt(9_750), h.balance(creator))
	requireAmount(t, big.NewInt(250), h.balance(marketOwner))
	require.Zero(t, h.balance(buyer).Sign())
}

func TestExecuteSale_FreeItem(t *testing.T) {
	h := newHarness(t, DeployParams{})
	id := h.mint(creator, "https://1.example.com")
	require.NoError(t, h.list(creator, nil, id, new(big.Int)))

	require.NoError(t, h.buy(buyer, nil, id))
	require.Equal(t, buyer, h.item(id).Owner)
}
