// Package memory implements domain.StateStore in process memory. It backs
// development networks and tests; state is lost on exit.
package memory

import (
	"context"
	"fmt"
	"math/big"
	"slices"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/promiseland/internal/domain"
)

// Compile-time interface check.
var _ domain.StateStore = (*StateStore)(nil)

// StateStore keeps the marketplace state in maps guarded by a RWMutex.
// Updates hold the write lock for their whole duration and stage writes in
// an overlay that is merged only when the update function succeeds.
type StateStore struct {
	mu       sync.RWMutex
	settings *domain.MarketSettings
	items    map[uint64]domain.MarketItem
	balances map[common.Address]*big.Int
	events   []domain.Event
}

// NewStateStore creates an empty store.
func NewStateStore() *StateStore {
	return &StateStore{
		items:    make(map[uint64]domain.MarketItem),
		balances: make(map[common.Address]*big.Int),
	}
}

// View runs fn against the committed state.
func (s *StateStore) View(ctx context.Context, fn func(domain.StateView) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&stateTx{base: s})
}

// Update runs fn in a transaction and commits its writes when fn returns nil.
func (s *StateStore) Update(ctx context.Context, fn func(domain.StateTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &stateTx{
		base:     s,
		writable: true,
		items:    make(map[uint64]domain.MarketItem),
		balances: make(map[common.Address]*big.Int),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("memory: commit: %w", err)
	}
	tx.commit()
	return nil
}

// stateTx reads through its overlay to the committed state. A stateTx
// created by View has no overlay and rejects writes.
type stateTx struct {
	base     *StateStore
	writable bool

	settings *domain.MarketSettings
	items    map[uint64]domain.MarketItem
	balances map[common.Address]*big.Int
	events   []domain.Event
}

func (t *stateTx) Settings(_ context.Context) (domain.MarketSettings, error) {
	if t.settings != nil {
		return t.settings.Clone(), nil
	}
	if t.base.settings != nil {
		return t.base.settings.Clone(), nil
	}
	return domain.MarketSettings{}, domain.ErrNotDeployed
}

func (t *stateTx) Item(_ context.Context, tokenID uint64) (domain.MarketItem, error) {
	if it, ok := t.items[tokenID]; ok {
		return it.Clone(), nil
	}
	if it, ok := t.base.items[tokenID]; ok {
		return it.Clone(), nil
	}
	return domain.MarketItem{}, fmt.Errorf("token %d: %w", tokenID, domain.ErrNotFound)
}

func (t *stateTx) ItemsAfter(ctx context.Context, after uint64, limit int) ([]domain.MarketItem, error) {
	ids := make([]uint64, 0, len(t.base.items)+len(t.items))
	for id := range t.base.items {
		if id > after {
			ids = append(ids, id)
		}
	}
	for id := range t.items {
		if _, dup := t.base.items[id]; !dup && id > after {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	out := make([]domain.MarketItem, 0, len(ids))
	for _, id := range ids {
		it, err := t.Item(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, nil
}

func (t *stateTx) Balance(_ context.Context, addr common.Address) (*big.Int, error) {
	if b, ok := t.balances[addr]; ok {
		return new(big.Int).Set(b), nil
	}
	if b, ok := t.base.balances[addr]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

func (t *stateTx) EventsAfter(_ context.Context, after uint64, limit int) ([]domain.Event, error) {
	all := append(slices.Clone(t.base.events), t.events...)
	// Seq starts at 1 and is dense, so the index of Seq n is n-1.
	if after >= uint64(len(all)) {
		return nil, nil
	}
	all = all[after:]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (t *stateTx) PutSettings(_ context.Context, s domain.MarketSettings) error {
	if !t.writable {
		return errReadOnly
	}
	c := s.Clone()
	t.settings = &c
	return nil
}

func (t *stateTx) PutItem(_ context.Context, item domain.MarketItem) error {
	if !t.writable {
		return errReadOnly
	}
	if item.TokenID == 0 {
		return fmt.Errorf("memory: put item: token id 0: %w", domain.ErrInvalidArgument)
	}
	t.items[item.TokenID] = item.Clone()
	return nil
}

func (t *stateTx) SetBalance(_ context.Context, addr common.Address, amount *big.Int) error {
	if !t.writable {
		return errReadOnly
	}
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("memory: set balance of %s: negative: %w", addr.Hex(), domain.ErrInvalidArgument)
	}
	t.balances[addr] = new(big.Int).Set(amount)
	return nil
}

func (t *stateTx) AppendEvent(_ context.Context, e *domain.Event) error {
	if !t.writable {
		return errReadOnly
	}
	e.Seq = uint64(len(t.base.events)+len(t.events)) + 1
	t.events = append(t.events, *e)
	return nil
}

func (t *stateTx) commit() {
	s := t.base
	if t.settings != nil {
		s.settings = t.settings
	}
	for id, it := range t.items {
		s.items[id] = it
	}
	for addr, b := range t.balances {
		s.balances[addr] = b
	}
	s.events = append(s.events, t.events...)
}

var errReadOnly = fmt.Errorf("memory: write in read-only view: %w", domain.ErrInvalidState)
