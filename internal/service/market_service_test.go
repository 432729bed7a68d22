package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/promiseland/internal/domain"
	"github.com/alanyoungcy/promiseland/internal/marketplace"
	"github.com/alanyoungcy/promiseland/internal/store/memory"
)

var (
	owner  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	artist = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	buyer  = common.HexToAddress("0x00000000000000000000000000000000000000b1")
)

type fakeCache struct {
	mu          sync.Mutex
	items       map[uint64]domain.MarketItem
	sets        int
	invalidated []uint64
}

func newFakeCache() *fakeCache {
	return &fakeCache{items: make(map[uint64]domain.MarketItem)}
}

func (c *fakeCache) Set(_ context.Context, item domain.MarketItem) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	c.items[item.TokenID] = item.Clone()
	return nil
}

func (c *fakeCache) Get(_ context.Context, id uint64) (domain.MarketItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.items[id]
	if !ok {
		return domain.MarketItem{}, domain.ErrNotFound
	}
	return item.Clone(), nil
}

func (c *fakeCache) Invalidate(_ context.Context, ids ...uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		delete(c.items, id)
		c.invalidated = append(c.invalidated, id)
	}
	return nil
}

type fakeBus struct {
	mu        sync.Mutex
	published map[string][][]byte
	streamed  map[string][][]byte
}

func newFakeBus() *fakeBus {
	return &fakeBus{published: map[string][][]byte{}, streamed: map[string][][]byte{}}
}

func (b *fakeBus) Publish(_ context.Context, ch string, p []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published[ch] = append(b.published[ch], p)
	return nil
}

func (b *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, errors.New("not supported")
}

func (b *fakeBus) StreamAppend(_ context.Context, s string, p []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.streamed[s] = append(b.streamed[s], p)
	return nil
}

func (b *fakeBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func newService(t *testing.T) (*MarketService, *fakeCache, *fakeBus) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cache, bus := newFakeCache(), newFakeBus()
	svc := NewMarketService(memory.NewStateStore(), marketplace.New(logger), cache, bus, nil, logger)
	return svc, cache, bus
}

func deploy(t *testing.T, svc *MarketService) domain.MarketSettings {
	t.Helper()
	s, err := svc.Deploy(context.Background(), owner, marketplace.DeployParams{
		ChainID:          1337,
		ListingFee:       new(big.Int),
		LikingPrice:      big.NewInt(1000),
		LikeFeeRecipient: domain.LikeFeeToMarketOwner,
	})
	require.NoError(t, err)
	return s
}

func TestCallsBeforeDeployFail(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	ok, err := svc.Deployed(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = svc.CreateToken(ctx, domain.Call{Caller: artist}, "ipfs://x")
	require.ErrorIs(t, err, domain.ErrNotDeployed)
}

func TestDeployTwice(t *testing.T) {
	svc, _, _ := newService(t)
	deploy(t, svc)
	_, err := svc.Deploy(context.Background(), owner, marketplace.DeployParams{
		ListingFee: new(big.Int), LikingPrice: new(big.Int), LikeFeeRecipient: domain.LikeFeeToMarketOwner,
	})
	require.ErrorIs(t, err, domain.ErrAlreadyDeployed)
}

func TestSaleMovesFundsAndPublishes(t *testing.T) {
	svc, cache, bus := newService(t)
	settings := deploy(t, svc)
	ctx := context.Background()

	var seen []domain.EventName
	svc.OnEvent(func(_ context.Context, e domain.Event) { seen = append(seen, e.Name) })

	require.NoError(t, svc.Deposit(ctx, domain.Call{Caller: owner}, buyer, ether(5)))

	id, err := svc.CreateToken(ctx, domain.Call{Caller: artist}, "ipfs://art")
	require.NoError(t, err)
	require.Equal(t, uint64(1), id)
	require.NoError(t, svc.UpdateListingPrice(ctx, domain.Call{Caller: artist}, id, ether(2)))

	// Prime the cache, then make sure the sale evicts it.
	item, err := svc.FetchNftByID(ctx, id)
	require.NoError(t, err)
	require.True(t, item.Selling)
	require.Equal(t, 1, cache.sets)

	require.NoError(t, svc.ExecuteSale(ctx, domain.Call{Caller: buyer, Value: ether(2)}, id))
	require.Contains(t, cache.invalidated, id)

	item, err = svc.FetchNftByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, buyer, item.Owner)
	require.False(t, item.Selling)

	bal, err := svc.BalanceOf(ctx, artist)
	require.NoError(t, err)
	require.Equal(t, 0, bal.Cmp(ether(2)))
	bal, err = svc.BalanceOf(ctx, buyer)
	require.NoError(t, err)
	require.Equal(t, 0, bal.Cmp(ether(3)))
	bal, err = svc.BalanceOf(ctx, settings.Address)
	require.NoError(t, err)
	require.Zero(t, bal.Sign())

	require.Equal(t, []domain.EventName{
		domain.EventDeposit,
		domain.EventTokenCreated,
		domain.EventListingUpdated,
		domain.EventItemSold,
	}, seen)
	// The deployment event was published too.
	require.Len(t, bus.published[EventsChannel], 5)
	require.Len(t, bus.streamed[EventsStream], 5)

	var msg EventMessage
	require.NoError(t, json.Unmarshal(bus.published[EventsChannel][4], &msg))
	require.Equal(t, domain.EventItemSold, msg.Event.Name)
	require.Equal(t, marketplace.EventTopic(domain.EventItemSold), msg.Topic)
}

func TestFailedCallLeavesNoTrace(t *testing.T) {
	svc, _, bus := newService(t)
	deploy(t, svc)
	ctx := context.Background()

	id, err := svc.CreateToken(ctx, domain.Call{Caller: artist}, "ipfs://art")
	require.NoError(t, err)
	require.NoError(t, svc.UpdateListingPrice(ctx, domain.Call{Caller: artist}, id, ether(2)))
	before := len(bus.published[EventsChannel])

	// The buyer has no funds.
	err = svc.ExecuteSale(ctx, domain.Call{Caller: buyer, Value: ether(2)}, id)
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	item, err := svc.FetchNftByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, artist, item.Owner)
	require.True(t, item.Selling)
	require.Len(t, bus.published[EventsChannel], before)

	events, err := svc.Events(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
}

func TestVotesAndQueries(t *testing.T) {
	svc, _, _ := newService(t)
	deploy(t, svc)
	ctx := context.Background()
	require.NoError(t, svc.Deposit(ctx, domain.Call{Caller: owner}, buyer, big.NewInt(5000)))

	for _, uri := range []string{"ipfs://a", "ipfs://b", "ipfs://c"} {
		_, err := svc.CreateToken(ctx, domain.Call{Caller: artist}, uri)
		require.NoError(t, err)
	}
	require.NoError(t, svc.UpdateListingPrice(ctx, domain.Call{Caller: artist}, 2, big.NewInt(10)))

	price, err := svc.LikingPrice(ctx)
	require.NoError(t, err)
	require.NoError(t, svc.LikeNft(ctx, domain.Call{Caller: buyer, Value: price}, 3))
	require.NoError(t, svc.DislikeNft(ctx, domain.Call{Caller: buyer, Value: price}, 3))
	require.ErrorIs(t, svc.LikeNft(ctx, domain.Call{Caller: buyer}, 3), domain.ErrInvalidPayment)

	item, err := svc.FetchNftByID(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, uint64(1), item.Likes)
	require.Equal(t, uint64(1), item.Dislikes)

	uri, err := svc.TokenURI(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "ipfs://a", uri)

	var all, listed []uint64
	for it, err := range svc.FetchAllNfts(ctx) {
		require.NoError(t, err)
		all = append(all, it.TokenID)
	}
	for it, err := range svc.FetchListedNfts(ctx) {
		require.NoError(t, err)
		listed = append(listed, it.TokenID)
	}
	require.Equal(t, []uint64{1, 2, 3}, all)
	require.Equal(t, []uint64{2}, listed)

	page, err := svc.FetchNftPage(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, uint64(2), page[0].TokenID)

	got, err := svc.Withdraw(ctx, domain.Call{Caller: owner})
	require.NoError(t, err)
	require.Equal(t, int64(2000), got.Int64())

	fee := big.NewInt(7)
	s, err := svc.UpdateFees(ctx, domain.Call{Caller: owner}, marketplace.FeeUpdate{ListingFee: fee})
	require.NoError(t, err)
	require.Equal(t, int64(7), s.ListingFee.Int64())
	_, err = svc.UpdateFees(ctx, domain.Call{Caller: buyer}, marketplace.FeeUpdate{ListingFee: fee})
	require.ErrorIs(t, err, domain.ErrUnauthorized)
}

// gatedCache holds the first Set until release is closed.
type gatedCache struct {
	*fakeCache
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (c *gatedCache) Set(ctx context.Context, item domain.MarketItem) error {
	first := false
	c.once.Do(func() { first = true })
	if first {
		close(c.entered)
		<-c.release
	}
	return c.fakeCache.Set(ctx, item)
}

func TestBackfillRacingSaleDoesNotCacheStaleItem(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cache := &gatedCache{
		fakeCache: newFakeCache(),
		entered:   make(chan struct{}),
		release:   make(chan struct{}),
	}
	svc := NewMarketService(memory.NewStateStore(), marketplace.New(logger), cache, nil, nil, logger)
	deploy(t, svc)
	ctx := context.Background()

	require.NoError(t, svc.Deposit(ctx, domain.Call{Caller: owner}, buyer, ether(5)))
	id, err := svc.CreateToken(ctx, domain.Call{Caller: artist}, "ipfs://art")
	require.NoError(t, err)
	require.NoError(t, svc.UpdateListingPrice(ctx, domain.Call{Caller: artist}, id, ether(1)))

	done := make(chan domain.MarketItem, 1)
	go func() {
		item, err := svc.FetchNftByID(ctx, id)
		if err != nil {
			t.Error(err)
		}
		done <- item
	}()

	<-cache.entered
	require.NoError(t, svc.ExecuteSale(ctx, domain.Call{Caller: buyer, Value: ether(1)}, id))
	close(cache.release)

	before := <-done
	require.Equal(t, artist, before.Owner)

	item, err := svc.FetchNftByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, buyer, item.Owner)
	require.False(t, item.Selling)
}

func TestCommitBumpsItemGeneration(t *testing.T) {
	svc, cache, _ := newService(t)
	deploy(t, svc)
	ctx := context.Background()

	id, err := svc.CreateToken(ctx, domain.Call{Caller: artist}, "ipfs://art")
	require.NoError(t, err)

	gen := svc.generation(id)
	require.NoError(t, svc.UpdateListingPrice(ctx, domain.Call{Caller: artist}, id, ether(1)))
	require.NotEqual(t, gen, svc.generation(id))

	item, err := svc.FetchNftByID(ctx, id)
	require.NoError(t, err)
	require.True(t, item.Selling)
	require.Equal(t, 1, cache.sets)
}
