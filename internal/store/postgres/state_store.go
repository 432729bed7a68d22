package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/promiseland/internal/domain"
)

// Compile-time interface check.
var _ domain.StateStore = (*StateStore)(nil)

// marketLockKey is the pg_advisory_xact_lock key that serializes updates
// across every process sharing the database.
const marketLockKey int64 = 0x504c414e44 // "PLAND"

// StateStore implements domain.StateStore using PostgreSQL. Views run in a
// read-only repeatable-read transaction so a page of items and the settings
// come from one snapshot. Updates take a transaction-scoped advisory lock.
type StateStore struct {
	pool *pgxpool.Pool
}

// NewStateStore creates a new StateStore backed by the given connection pool.
func NewStateStore(pool *pgxpool.Pool) *StateStore {
	return &StateStore{pool: pool}
}

// View runs fn inside a read-only transaction.
func (s *StateStore) View(ctx context.Context, fn func(domain.StateView) error) error {
	opts := pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
	return pgx.BeginTxFunc(ctx, s.pool, opts, func(tx pgx.Tx) error {
		return fn(&stateTx{tx: tx})
	})
}

// Update runs fn inside a read-write transaction and commits when fn
// returns nil.
func (s *StateStore) Update(ctx context.Context, fn func(domain.StateTx) error) error {
	opts := pgx.TxOptions{IsoLevel: pgx.ReadCommitted}
	return pgx.BeginTxFunc(ctx, s.pool, opts, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", marketLockKey); err != nil {
			return fmt.Errorf("postgres: acquire market lock: %w", err)
		}
		return fn(&stateTx{tx: tx, writable: true})
	})
}

type stateTx struct {
	tx       pgx.Tx
	writable bool
}

var errReadOnly = fmt.Errorf("postgres: write in read-only view: %w", domain.ErrInvalidState)

func (t *stateTx) Settings(ctx context.Context) (domain.MarketSettings, error) {
	const query = `
		SELECT address, owner, chain_id, listing_fee::text, liking_price::text,
		       commission_bps, like_fee_recipient, next_token_id, deployed_at
		FROM market_settings WHERE id = 1`

	var (
		s                     domain.MarketSettings
		addr, owner           string
		listingFee, likingFee string
		bps                   int32
		recipient             string
		nextID                int64
	)
	err := t.tx.QueryRow(ctx, query).Scan(
		&addr, &owner, &s.ChainID, &listingFee, &likingFee,
		&bps, &recipient, &nextID, &s.DeployedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.MarketSettings{}, domain.ErrNotDeployed
	}
	if err != nil {
		return domain.MarketSettings{}, fmt.Errorf("postgres: get settings: %w", err)
	}

	s.Address = common.HexToAddress(addr)
	s.Owner = common.HexToAddress(owner)
	s.CommissionBps = uint16(bps)
	s.LikeFeeRecipient = domain.LikeFeeRecipient(recipient)
	s.NextTokenID = uint64(nextID)
	if s.ListingFee, err = parseNumeric(listingFee); err != nil {
		return domain.MarketSettings{}, err
	}
	if s.LikingPrice, err = parseNumeric(likingFee); err != nil {
		return domain.MarketSettings{}, err
	}
	s.DeployedAt = s.DeployedAt.UTC()
	return s, nil
}

func (t *stateTx) PutSettings(ctx context.Context, s domain.MarketSettings) error {
	if !t.writable {
		return errReadOnly
	}
	const query = `
		INSERT INTO market_settings (
			id, address, owner, chain_id, listing_fee, liking_price,
			commission_bps, like_fee_recipient, next_token_id, deployed_at
		) VALUES (1, $1, $2, $3, $4::numeric, $5::numeric, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			listing_fee        = EXCLUDED.listing_fee,
			liking_price       = EXCLUDED.liking_price,
			commission_bps     = EXCLUDED.commission_bps,
			like_fee_recipient = EXCLUDED.like_fee_recipient,
			next_token_id      = EXCLUDED.next_token_id`

	_, err := t.tx.Exec(ctx, query,
		s.Address.Hex(), s.Owner.Hex(), s.ChainID,
		s.ListingFee.String(), s.LikingPrice.String(),
		int32(s.CommissionBps), string(s.LikeFeeRecipient),
		int64(s.NextTokenID), s.DeployedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: put settings: %w", err)
	}
	return nil
}

// parseNumeric converts a NUMERIC rendered as text into a big.Int.
func parseNumeric(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("postgres: parse numeric %q", s)
	}
	return v, nil
}
