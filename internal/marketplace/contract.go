// Package marketplace implements the PromiseLand market ledger: minting,
// listing, sale execution with fund transfer, and paid like/dislike voting.
//
// Every operation runs against a domain.StateTx supplied by the hosting
// runtime. Operations validate all preconditions before their first write and
// return an error on any violation; the runtime then discards the
// transaction, so a failed call leaves no trace. A Contract holds no state of
// its own and is not safe for concurrent use against the same transaction.
package marketplace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"github.com/alanyoungcy/promiseland/internal/domain"
)

// DeployParams configures a market at deployment time.
type DeployParams struct {
	ChainID          int64
	ListingFee       *big.Int
	LikingPrice      *big.Int
	CommissionBps    uint16
	LikeFeeRecipient domain.LikeFeeRecipient
}

// Contract is the marketplace state machine.
type Contract struct {
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Contract.
func New(logger *slog.Logger) *Contract {
	return &Contract{
		logger: logger.With(slog.String("component", "marketplace")),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the clock used for CreatedAt/UpdatedAt stamps.
func (c *Contract) WithClock(now func() time.Time) *Contract {
	c.now = now
	return c
}

// ContractAddress derives the market address the same way an EVM chain does
// for the first contract created by deployer.
func ContractAddress(deployer common.Address) common.Address {
	return crypto.CreateAddress(deployer, 0)
}

// Deploy writes the market settings. The deployer becomes the market owner.
// It fails with ErrAlreadyDeployed when settings already exist.
func (c *Contract) Deploy(ctx context.Context, tx domain.StateTx, deployer common.Address, p DeployParams) (domain.MarketSettings, error) {
	if _, err := tx.Settings(ctx); err == nil {
		return domain.MarketSettings{}, fmt.Errorf("marketplace: deploy: %w", domain.ErrAlreadyDeployed)
	} else if !errors.Is(err, domain.ErrNotDeployed) {
		return domain.MarketSettings{}, fmt.Errorf("marketplace: deploy: %w", err)
	}
	if err := validateFees(p.ListingFee, p.LikingPrice, p.CommissionBps, p.LikeFeeRecipient); err != nil {
		return domain.MarketSettings{}, fmt.Errorf("marketplace: deploy: %w", err)
	}

	s := domain.MarketSettings{
		Address:          ContractAddress(deployer),
		Owner:            deployer,
		ChainID:          p.ChainID,
		ListingFee:       new(big.Int).Set(p.ListingFee),
		LikingPrice:      new(big.Int).Set(p.LikingPrice),
		CommissionBps:    p.CommissionBps,
		LikeFeeRecipient: p.LikeFeeRecipient,
		NextTokenID:      1,
		DeployedAt:       c.now(),
	}
	if err := tx.PutSettings(ctx, s); err != nil {
		return domain.MarketSettings{}, fmt.Errorf("marketplace: deploy: %w", err)
	}
	if err := c.emit(ctx, tx, domain.Event{
		Name:         domain.EventMarketDeployed,
		Actor:        deployer,
		Counterparty: s.Address,
	}); err != nil {
		return domain.MarketSettings{}, fmt.Errorf("marketplace: deploy: %w", err)
	}

	c.logger.InfoContext(ctx, "market deployed",
		slog.String("address", s.Address.Hex()),
		slog.String("owner", deployer.Hex()),
	)
	return s, nil
}

func validateFees(listingFee, likingPrice *big.Int, commissionBps uint16, recipient domain.LikeFeeRecipient) error {
	if listingFee == nil || listingFee.Sign() < 0 {
		return fmt.Errorf("listing fee must be >= 0: %w", domain.ErrInvalidArgument)
	}
	if likingPrice == nil || likingPrice.Sign() < 0 {
		return fmt.Errorf("liking price must be >= 0: %w", domain.ErrInvalidArgument)
	}
	if commissionBps > domain.MaxCommissionBps {
		return fmt.Errorf("commission %d bps exceeds %d: %w", commissionBps, domain.MaxCommissionBps, domain.ErrInvalidArgument)
	}
	if !recipient.Valid() {
		return fmt.Errorf("unknown like fee recipient %q: %w", recipient, domain.ErrInvalidArgument)
	}
	return nil
}

// requirePayment checks that exactly want was attached to the call.
func requirePayment(call domain.Call, want *big.Int) error {
	got := call.AmountOf()
	if got.Cmp(want) != 0 {
		return fmt.Errorf("attached %s wei, required %s wei: %w", got, want, domain.ErrInvalidPayment)
	}
	return nil
}

// emit stamps and appends an event to the transaction's event log.
func (c *Contract) emit(ctx context.Context, tx domain.StateTx, e domain.Event) error {
	e.ID = uuid.NewString()
	e.CreatedAt = c.now()
	return tx.AppendEvent(ctx, &e)
}
