package marketplace

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/promiseland/internal/domain"
)

func TestDeposit_OwnerOnly(t *testing.T) {
	h := newHarness(t, DeployParams{})

	err := h.exec(buyer, nil, func(tx domain.StateTx, call domain.Call) error {
		return h.c.Deposit(h.ctx, tx, call, buyer, ether(1))
	})
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	err = h.exec(marketOwner, nil, func(tx domain.StateTx, call domain.Call) error {
		return h.c.Deposit(h.ctx, tx, call, buyer, new(big.Int))
	})
	require.ErrorIs(t, err, domain.ErrInvalidArgument)

	h.fund(buyer, ether(1))
	h.fund(buyer, ether(1))
	requireAmount(t, ether(2), h.balance(buyer))
}

func TestWithdraw(t *testing.T) {
	h := newHarness(t, DeployParams{})
	h.fund(buyer, ether(3))

	var out *big.Int
	err := h.exec(buyer, nil, func(tx domain.StateTx, call domain.Call) error {
		var err error
		out, err = h.c.Withdraw(h.ctx, tx, call)
		return err
	})
	require.NoError(t, err)
	requireAmount(t, ether(3), out)
	require.Zero(t, h.balance(buyer).Sign())

	err = h.exec(buyer, nil, func(tx domain.StateTx, call domain.Call) error {
		_, err := h.c.Withdraw(h.ctx, tx, call)
		return err
	})
	require.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestTransfer(t *testing.T) {
	h := newHarness(t, DeployParams{})
	h.fund(buyer, big.NewInt(10))

	err := h.store.Update(h.ctx, func(tx domain.StateTx) error {
		require.NoError(t, Transfer(h.ctx, tx, buyer, stranger, big.NewInt(4)))
		require.NoError(t, Transfer(h.ctx, tx, buyer, buyer, big.NewInt(400)))
		require.ErrorIs(t, Transfer(h.ctx, tx, buyer, stranger, big.NewInt(7)), domain.ErrInsufficientFunds)
		require.ErrorIs(t, Transfer(h.ctx, tx, buyer, stranger, big.NewInt(-1)), domain.ErrInvalidArgument)
		return nil
	})
	require.NoError(t, err)
	requireAmount(t, big.NewInt(6), h.balance(buyer))
	requireAmount(t, big.NewInt(4), h.balance(stranger))
}

func TestUpdateFees(t *testing.T) {
	h := newHarness(t, DeployParams{LikingPrice: big.NewInt(1000)})
	id := h.mint(creator, "https://1.example.com")
	h.fund(buyer, big.NewInt(10_000))

	bps := uint16(500)
	recipient := domain.LikeFeeToCreator
	err := h.exec(marketOwner, nil, func(tx domain.StateTx, call domain.Call) error {
		_, err := h.c.UpdateFees(h.ctx, tx, call, FeeUpdate{
			LikingPrice:      big.NewInt(10),
			CommissionBps:    &bps,
			LikeFeeRecipient: &recipient,
		})
		return err
	})
	require.NoError(t, err)

	require.ErrorIs(t, h.like(buyer, big.NewInt(1000), id), domain.ErrInvalidPayment)
	require.NoError(t, h.like(buyer, big.NewInt(10), id))
	requireAmount(t, big.NewInt(10), h.balance(creator))

	err = h.exec(buyer, nil, func(tx domain.StateTx, call domain.Call) error {
		_, err := h.c.UpdateFees(h.ctx, tx, call, FeeUpdate{LikingPrice: big.NewInt(0)})
		return err
	})
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	tooHigh := uint16(20_000)
	err = h.exec(marketOwner, nil, func(tx domain.StateTx, call domain.Call) error {
		_, err := h.c.UpdateFees(h.ctx, tx, call, FeeUpdate{CommissionBps: &tooHigh})
		return err
	})
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestEventsRecorded(t *testing.T) {
	h := newHarness(t, DeployParams{})
	id := h.mint(creator, "https://1.example.com")
	h.fund(buyer, ether(1))
	require.NoError(t, h.list(creator, nil, id, ether(1)))
	require.NoError(t, h.buy(buyer, ether(1), id))
	require.ErrorIs(t, h.buy(buyer, ether(1), id), domain.ErrInvalidState)

	var events []domain.Event
	require.NoError(t, h.store.View(h.ctx, func(v domain.StateView) error {
		var err error
		events, err = v.EventsAfter(h.ctx, 0, 0)
		return err
	}))

	names := make([]domain.EventName, 0, len(events))
	for i, e := range events {
		require.Equal(t, uint64(i+1), e.Seq)
		require.NotEmpty(t, e.ID)
		names = append(names, e.Name)
	}
	require.Equal(t, []domain.EventName{
		domain.EventMarketDeployed,
		domain.EventTokenCreated,
		domain.EventDeposit,
		domain.EventListingUpdated,
		domain.EventItemSold,
	}, names)
	require.Equal(t, creator, events[4].Counterparty)
}
