// Package service hosts the marketplace core. MarketService plays the role of
// the execution environment: it authenticates nothing itself, but it
// serializes calls, moves the attached value into the contract account, and
// commits each call atomically with the events it produced.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/promiseland/internal/domain"
	"github.com/alanyoungcy/promiseland/internal/marketplace"
	"github.com/alanyoungcy/promiseland/internal/notify"
)

// Bus channel and stream that carry committed events.
const (
	EventsChannel = "events"
	EventsStream  = "events"
)

// EventMessage is the envelope published for every committed event.
type EventMessage struct {
	Type  string       `json:"type"`
	Topic common.Hash  `json:"topic"`
	Event domain.Event `json:"event"`
}

// EncodeEvent renders e as an EventMessage.
func EncodeEvent(e domain.Event) ([]byte, error) {
	return json.Marshal(EventMessage{
		Type:  "market_event",
		Topic: marketplace.EventTopic(e.Name),
		Event: e,
	})
}

// EventListener receives committed events in commit order.
type EventListener func(ctx context.Context, e domain.Event)

// MarketService runs marketplace calls against a StateStore. Cache, bus and
// notifier are optional.
type MarketService struct {
	mu        sync.Mutex
	store     domain.StateStore
	contract  *marketplace.Contract
	cache     domain.ItemCache
	bus       domain.SignalBus
	notifier  *notify.Notifier
	listeners []EventListener
	logger    *slog.Logger

	// generations counts committed changes per token so a read that raced
	// a commit does not leave its stale copy in the cache.
	genMu       sync.Mutex
	generations map[uint64]uint64
}

// NewMarketService creates a MarketService. cache, bus and notifier may be
// nil.
func NewMarketService(
	store domain.StateStore,
	contract *marketplace.Contract,
	cache domain.ItemCache,
	bus domain.SignalBus,
	notifier *notify.Notifier,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		store:    store,
		contract: contract,
		cache:    cache,
		bus:      bus,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "market_service")),

		generations: make(map[uint64]uint64),
	}
}

// OnEvent registers fn to receive every committed event. It must be called
// before the service starts handling calls.
func (s *MarketService) OnEvent(fn EventListener) {
	s.listeners = append(s.listeners, fn)
}

// ---------------------------------------------------------------------------
// Mutating calls
// ---------------------------------------------------------------------------

// Deploy creates the market with deployer as its owner.
func (s *MarketService) Deploy(ctx context.Context, deployer common.Address, p marketplace.DeployParams) (domain.MarketSettings, error) {
	var out domain.MarketSettings
	err := s.update(ctx, func(tx domain.StateTx) error {
		var err error
		out, err = s.contract.Deploy(ctx, tx, deployer, p)
		return err
	})
	if err != nil {
		return domain.MarketSettings{}, fmt.Errorf("market_service: deploy: %w", err)
	}
	return out, nil
}

// CreateToken mints a token for the caller and returns its id.
func (s *MarketService) CreateToken(ctx context.Context, call domain.Call, uri string) (uint64, error) {
	var id uint64
	err := s.exec(ctx, call, func(tx domain.StateTx) error {
		var err error
		id, err = s.contract.CreateToken(ctx, tx, call, uri)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("market_service: create token: %w", err)
	}
	return id, nil
}

// UpdateListingPrice lists tokenID at price.
func (s *MarketService) UpdateListingPrice(ctx context.Context, call domain.Call, tokenID uint64, price *big.Int) error {
	err := s.exec(ctx, call, func(tx domain.StateTx) error {
		return s.contract.UpdateListingPrice(ctx, tx, call, tokenID, price)
	})
	if err != nil {
		return fmt.Errorf("market_service: update listing %d: %w", tokenID, err)
	}
	return nil
}

// ExecuteSale buys tokenID for the caller.
func (s *MarketService) ExecuteSale(ctx context.Context, call domain.Call, tokenID uint64) error {
	err := s.exec(ctx, call, func(tx domain.StateTx) error {
		return s.contract.ExecuteSale(ctx, tx, call, tokenID)
	})
	if err != nil {
		return fmt.Errorf("market_service: execute sale %d: %w", tokenID, err)
	}
	return nil
}

// LikeNft records a paid like.
func (s *MarketService) LikeNft(ctx context.Context, call domain.Call, tokenID uint64) error {
	err := s.exec(ctx, call, func(tx domain.StateTx) error {
		return s.contract.LikeNft(ctx, tx, call, tokenID)
	})
	if err != nil {
		return fmt.Errorf("market_service: like %d: %w", tokenID, err)
	}
	return nil
}

// DislikeNft records a paid dislike.
func (s *MarketService) DislikeNft(ctx context.Context, call domain.Call, tokenID uint64) error {
	err := s.exec(ctx, call, func(tx domain.StateTx) error {
		return s.contract.DislikeNft(ctx, tx, call, tokenID)
	})
	if err != nil {
		return fmt.Errorf("market_service: dislike %d: %w", tokenID, err)
	}
	return nil
}

// Deposit credits amount to addr. Market owner only.
func (s *MarketService) Deposit(ctx context.Context, call domain.Call, to common.Address, amount *big.Int) error {
	err := s.exec(ctx, call, func(tx domain.StateTx) error {
		return s.contract.Deposit(ctx, tx, call, to, amount)
	})
	if err != nil {
		return fmt.Errorf("market_service: deposit: %w", err)
	}
	return nil
}

// Withdraw drains the caller's account.
func (s *MarketService) Withdraw(ctx context.Context, call domain.Call) (*big.Int, error) {
	var amount *big.Int
	err := s.exec(ctx, call, func(tx domain.StateTx) error {
		var err error
		amount, err = s.contract.Withdraw(ctx, tx, call)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("market_service: withdraw: %w", err)
	}
	return amount, nil
}

// UpdateFees changes the fee settings. Market owner only.
func (s *MarketService) UpdateFees(ctx context.Context, call domain.Call, u marketplace.FeeUpdate) (domain.MarketSettings, error) {
	var out domain.MarketSettings
	err := s.exec(ctx, call, func(tx domain.StateTx) error {
		var err error
		out, err = s.contract.UpdateFees(ctx, tx, call, u)
		return err
	})
	if err != nil {
		return domain.MarketSettings{}, fmt.Errorf("market_service: update fees: %w", err)
	}
	return out, nil
}

// exec moves the attached value from the caller into the contract account
// and runs fn in the same transaction.
func (s *MarketService) exec(ctx context.Context, call domain.Call, fn func(domain.StateTx) error) error {
	return s.update(ctx, func(tx domain.StateTx) error {
		settings, err := tx.Settings(ctx)
		if err != nil {
			return err
		}
		if err := marketplace.Transfer(ctx, tx, call.Caller, settings.Address, call.AmountOf()); err != nil {
			return err
		}
		return fn(tx)
	})
}

// update serializes fn, then publishes the events it recorded once the
// transaction has committed.
func (s *MarketService) update(ctx context.Context, fn func(domain.StateTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rec *recordingTx
	err := s.store.Update(ctx, func(tx domain.StateTx) error {
		rec = &recordingTx{StateTx: tx}
		return fn(rec)
	})
	if err != nil {
		return err
	}
	s.afterCommit(ctx, rec.events)
	return nil
}

// afterCommit fans committed events out. Failures here are logged only; the
// state change already happened.
func (s *MarketService) afterCommit(ctx context.Context, events []domain.Event) {
	if len(events) == 0 {
		return
	}

	if s.cache != nil {
		var ids []uint64
		for _, e := range events {
			if e.TokenID != 0 {
				ids = append(ids, e.TokenID)
			}
		}
		if len(ids) > 0 {
			s.bumpGenerations(ids)
			if err := s.cache.Invalidate(ctx, ids...); err != nil {
				s.logger.WarnContext(ctx, "cache invalidate failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}

	for _, e := range events {
		if s.bus != nil {
			payload, err := EncodeEvent(e)
			if err != nil {
				s.logger.ErrorContext(ctx, "encode event failed",
					slog.String("event", string(e.Name)),
					slog.String("error", err.Error()),
				)
			} else {
				if err := s.bus.Publish(ctx, EventsChannel, payload); err != nil {
					s.logger.WarnContext(ctx, "publish event failed",
						slog.String("event", string(e.Name)),
						slog.String("error", err.Error()),
					)
				}
				if err := s.bus.StreamAppend(ctx, EventsStream, payload); err != nil {
					s.logger.WarnContext(ctx, "stream append failed",
						slog.String("event", string(e.Name)),
						slog.String("error", err.Error()),
					)
				}
			}
		}

		for _, fn := range s.listeners {
			fn(ctx, e)
		}

		if s.notifier.Enabled() {
			if err := s.notifier.NotifyEvent(ctx, e); err != nil {
				s.logger.WarnContext(ctx, "notify failed",
					slog.String("event", string(e.Name)),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// recordingTx keeps a copy of every event appended through it.
type recordingTx struct {
	domain.StateTx
	events []domain.Event
}

func (r *recordingTx) AppendEvent(ctx context.Context, e *domain.Event) error {
	if err := r.StateTx.AppendEvent(ctx, e); err != nil {
		return err
	}
	r.events = append(r.events, *e)
	return nil
}

// ---------------------------------------------------------------------------
// Queries
// ---------------------------------------------------------------------------

// Settings returns the market settings.
func (s *MarketService) Settings(ctx context.Context) (domain.MarketSettings, error) {
	var out domain.MarketSettings
	err := s.store.View(ctx, func(v domain.StateView) error {
		var err error
		out, err = s.contract.Settings(ctx, v)
		return err
	})
	return out, err
}

// FetchNftByID returns an item, checking the cache first and back-filling it
// on a miss. A back-fill that overlapped a commit touching the item is
// skipped or evicted again.
func (s *MarketService) FetchNftByID(ctx context.Context, tokenID uint64) (domain.MarketItem, error) {
	if s.cache != nil {
		if item, err := s.cache.Get(ctx, tokenID); err == nil {
			return item, nil
		}
	}

	gen := s.generation(tokenID)
	var item domain.MarketItem
	err := s.store.View(ctx, func(v domain.StateView) error {
		var err error
		item, err = s.contract.FetchNftByID(ctx, v, tokenID)
		return err
	})
	if err != nil {
		return domain.MarketItem{}, err
	}

	if s.cache != nil && s.generation(tokenID) == gen {
		if err := s.cache.Set(ctx, item); err != nil {
			s.logger.WarnContext(ctx, "cache set failed",
				slog.Uint64("token_id", tokenID),
				slog.String("error", err.Error()),
			)
		}
		if s.generation(tokenID) != gen {
			if err := s.cache.Invalidate(ctx, tokenID); err != nil {
				s.logger.WarnContext(ctx, "cache invalidate failed",
					slog.Uint64("token_id", tokenID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
	return item, nil
}

func (s *MarketService) generation(tokenID uint64) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.generations[tokenID]
}

// bumpGenerations must run before the matching cache invalidation.
func (s *MarketService) bumpGenerations(ids []uint64) {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	for _, id := range ids {
		s.generations[id]++
	}
}

// TokenURI returns the metadata uri of tokenID.
func (s *MarketService) TokenURI(ctx context.Context, tokenID uint64) (string, error) {
	item, err := s.FetchNftByID(ctx, tokenID)
	if err != nil {
		return "", err
	}
	return item.TokenURI, nil
}

// LikingPrice returns the fee for one like or dislike.
func (s *MarketService) LikingPrice(ctx context.Context) (*big.Int, error) {
	var out *big.Int
	err := s.store.View(ctx, func(v domain.StateView) error {
		var err error
		out, err = s.contract.LikingPrice(ctx, v)
		return err
	})
	return out, err
}

// FetchNftPage returns up to limit items after the given token id.
func (s *MarketService) FetchNftPage(ctx context.Context, after uint64, limit int) ([]domain.MarketItem, error) {
	var out []domain.MarketItem
	err := s.store.View(ctx, func(v domain.StateView) error {
		var err error
		out, err = s.contract.FetchNftPage(ctx, v, after, limit)
		return err
	})
	return out, err
}

// FetchAllNfts iterates over every item in ascending token id order.
func (s *MarketService) FetchAllNfts(ctx context.Context) iter.Seq2[domain.MarketItem, error] {
	return s.contract.FetchAllNfts(ctx, s.store.View, marketplace.DefaultPageSize)
}

// FetchListedNfts iterates over the items currently for sale.
func (s *MarketService) FetchListedNfts(ctx context.Context) iter.Seq2[domain.MarketItem, error] {
	return s.contract.FetchListedNfts(ctx, s.store.View, marketplace.DefaultPageSize)
}

// BalanceOf returns the account balance of addr.
func (s *MarketService) BalanceOf(ctx context.Context, addr common.Address) (*big.Int, error) {
	var out *big.Int
	err := s.store.View(ctx, func(v domain.StateView) error {
		var err error
		out, err = s.contract.BalanceOf(ctx, v, addr)
		return err
	})
	return out, err
}

// Events returns up to limit events with Seq > after.
func (s *MarketService) Events(ctx context.Context, after uint64, limit int) ([]domain.Event, error) {
	if limit <= 0 || limit > marketplace.DefaultPageSize {
		limit = marketplace.DefaultPageSize
	}
	var out []domain.Event
	err := s.store.View(ctx, func(v domain.StateView) error {
		var err error
		out, err = v.EventsAfter(ctx, after, limit)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("market_service: events: %w", err)
	}
	return out, nil
}

// Deployed reports whether the market has been deployed.
func (s *MarketService) Deployed(ctx context.Context) (bool, error) {
	_, err := s.Settings(ctx)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, domain.ErrNotDeployed):
		return false, nil
	default:
		return false, err
	}
}
