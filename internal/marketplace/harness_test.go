package marketplace

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/promiseland/internal/domain"
	"github.com/alanyoungcy/promiseland/internal/store/memory"
)

var (
	marketOwner = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	creator     = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	buyer       = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	stranger    = common.HexToAddress("0x00000000000000000000000000000000000000d1")
)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

// harness deploys a market on an in-memory store and executes calls the way
// the runtime does: the attached value moves to the contract account first,
// and the whole call commits or rolls back together.
type harness struct {
	t     *testing.T
	ctx   context.Context
	store *memory.StateStore
	c     *Contract
	s     domain.MarketSettings
}

func newHarness(t *testing.T, p DeployParams) *harness {
	t.Helper()
	if p.ListingFee == nil {
		p.ListingFee = new(big.Int)
	}
	if p.LikingPrice == nil {
		p.LikingPrice = big.NewInt(1000)
	}
	if p.LikeFeeRecipient == "" {
		p.LikeFeeRecipient = domain.LikeFeeToMarketOwner
	}
	h := newEmptyHarness(t)
	err := h.store.Update(h.ctx, func(tx domain.StateTx) error {
		var err error
		h.s, err = h.c.Deploy(h.ctx, tx, marketOwner, p)
		return err
	})
	require.NoError(t, err)
	return h
}

func newEmptyHarness(t *testing.T) *harness {
	return &harness{
		t:     t,
		ctx:   context.Background(),
		store: memory.NewStateStore(),
		c:     New(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
}

func (h *harness) exec(caller common.Address, value *big.Int, fn func(domain.StateTx, domain.Call) error) error {
	return h.store.Update(h.ctx, func(tx domain.StateTx) error {
		call := domain.Call{Caller: caller, Value: value}
		if err := Transfer(h.ctx, tx, caller, h.s.Address, call.AmountOf()); err != nil {
			return err
		}
		return fn(tx, call)
	})
}

func (h *harness) fund(addr common.Address, amount *big.Int) {
	h.t.Helper()
	err := h.exec(marketOwner, nil, func(tx domain.StateTx, call domain.Call) error {
		return h.c.Deposit(h.ctx, tx, call, addr, amount)
	})
	require.NoError(h.t, err)
}

func (h *harness) mint(caller common.Address, uri string) uint64 {
	h.t.Helper()
	var id uint64
	err := h.exec(caller, nil, func(tx domain.StateTx, call domain.Call) error {
		var err error
		id, err = h.c.CreateToken(h.ctx, tx, call, uri)
		return err
	})
	require.NoError(h.t, err)
	return id
}

func (h *harness) list(caller common.Address, value *big.Int, tokenID uint64, price *big.Int) error {
	return h.exec(caller, value, func(tx domain.StateTx, call domain.Call) error {
		return h.c.UpdateListingPrice(h.ctx, tx, call, tokenID, price)
	})
}

func (h *harness) buy(caller common.Address, value *big.Int, tokenID uint64) error {
	return h.exec(caller, value, func(tx domain.StateTx, call domain.Call) error {
		return h.c.ExecuteSale(h.ctx, tx, call, tokenID)
	})
}

func (h *harness) like(caller common.Address, value *big.Int, tokenID uint64) error {
	return h.exec(caller, value, func(tx domain.StateTx, call domain.Call) error {
		return h.c.LikeNft(h.ctx, tx, call, tokenID)
	})
}

func (h *harness) dislike(caller common.Address, value *big.Int, tokenID uint64) error {
	return h.exec(caller, value, func(tx domain.StateTx, call domain.Call) error {
		return h.c.DislikeNft(h.ctx, tx, call, tokenID)
	})
}

func (h *harness) item(tokenID uint64) domain.MarketItem {
	h.t.Helper()
	var it domain.MarketItem
	err := h.store.View(h.ctx, func(v domain.StateView) error {
		var err error
		it, err = h.c.FetchNftByID(h.ctx, v, tokenID)
		return err
	})
	require.NoError(h.t, err)
	return it
}

func (h *harness) balance(addr common.Address) *big.Int {
	h.t.Helper()
	var bal *big.Int
	err := h.store.View(h.ctx, func(v domain.StateView) error {
		var err error
		bal, err = h.c.BalanceOf(h.ctx, v, addr)
		return err
	})
	require.NoError(h.t, err)
	return bal
}

func (h *harness) all() []domain.MarketItem {
	h.t.Helper()
	var out []domain.MarketItem
	for it, err := range h.c.FetchAllNfts(h.ctx, h.store.View, 2) {
		require.NoError(h.t, err)
		out = append(out, it)
	}
	return out
}

func requireAmount(t *testing.T, want, got *big.Int) {
	t.Helper()
	require.Zero(t, want.Cmp(got), "want %s, got %s", want, got)
}
