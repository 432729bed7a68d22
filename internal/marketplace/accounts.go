package marketplace

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/promiseland/internal/domain"
)

// Transfer moves amount from one account to another inside tx. It fails with
// ErrInsufficientFunds when from cannot cover amount.
func Transfer(ctx context.Context, tx domain.StateTx, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 || from == to {
		return nil
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("transfer of negative amount %s: %w", amount, domain.ErrInvalidArgument)
	}

	fromBal, err := tx.Balance(ctx, from)
	if err != nil {
		return fmt.Errorf("balance of %s: %w", from.Hex(), err)
	}
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("%s holds %s wei, needs %s wei: %w", from.Hex(), fromBal, amount, domain.ErrInsufficientFunds)
	}
	toBal, err := tx.Balance(ctx, to)
	if err != nil {
		return fmt.Errorf("balance of %s: %w", to.Hex(), err)
	}

	if err := tx.SetBalance(ctx, from, new(big.Int).Sub(fromBal, amount)); err != nil {
		return err
	}
	return tx.SetBalance(ctx, to, new(big.Int).Add(toBal, amount))
}

// BalanceOf returns the account balance of addr.
func (c *Contract) BalanceOf(ctx context.Context, v domain.StateView, addr common.Address) (*big.Int, error) {
	bal, err := v.Balance(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("marketplace: balance of %s: %w", addr.Hex(), err)
	}
	return bal, nil
}

// Deposit credits amount to an account. Only the market owner may deposit;
// it funds accounts on development networks where no bridge exists.
func (c *Contract) Deposit(ctx context.Context, tx domain.StateTx, call domain.Call, to common.Address, amount *big.Int) error {
	settings, err := c.ownerSettings(ctx, tx, call)
	if err != nil {
		return fmt.Errorf("marketplace: deposit: %w", err)
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("marketplace: deposit: amount must be > 0: %w", domain.ErrInvalidArgument)
	}

	bal, err := tx.Balance(ctx, to)
	if err != nil {
		return fmt.Errorf("marketplace: deposit: %w", err)
	}
	if err := tx.SetBalance(ctx, to, new(big.Int).Add(bal, amount)); err != nil {
		return fmt.Errorf("marketplace: deposit: %w", err)
	}
	return c.emit(ctx, tx, domain.Event{
		Name:         domain.EventDeposit,
		Actor:        settings.Owner,
		Counterparty: to,
		Amount:       new(big.Int).Set(amount),
	})
}

// Withdraw drains the caller's account and returns the amount released.
func (c *Contract) Withdraw(ctx context.Context, tx domain.StateTx, call domain.Call) (*big.Int, error) {
	if call.Paid() {
		return nil, fmt.Errorf("marketplace: withdraw is not payable: %w", domain.ErrInvalidPayment)
	}
	if _, err := tx.Settings(ctx); err != nil {
		return nil, fmt.Errorf("marketplace: withdraw: %w", err)
	}
	bal, err := tx.Balance(ctx, call.Caller)
	if err != nil {
		return nil, fmt.Errorf("marketplace: withdraw: %w", err)
	}
	if bal.Sign() == 0 {
		return nil, fmt.Errorf("marketplace: withdraw: nothing to withdraw for %s: %w", call.Caller.Hex(), domain.ErrInvalidState)
	}
	if err := tx.SetBalance(ctx, call.Caller, new(big.Int)); err != nil {
		return nil, fmt.Errorf("marketplace: withdraw: %w", err)
	}
	if err := c.emit(ctx, tx, domain.Event{
		Name:   domain.EventWithdrawal,
		Actor:  call.Caller,
		Amount: new(big.Int).Set(bal),
	}); err != nil {
		return nil, fmt.Errorf("marketplace: withdraw: %w", err)
	}

	c.logger.InfoContext(ctx, "withdrawal",
		slog.String("account", call.Caller.Hex()),
		slog.String("amount", bal.String()),
	)
	return bal, nil
}

// FeeUpdate lists the settings the market owner may change. Nil fields are
// left untouched.
type FeeUpdate struct {
	ListingFee       *big.Int
	LikingPrice      *big.Int
	CommissionBps    *uint16
	LikeFeeRecipient *domain.LikeFeeRecipient
}

// UpdateFees changes fee settings. Only the market owner may call it.
func (c *Contract) UpdateFees(ctx context.Context, tx domain.StateTx, call domain.Call, u FeeUpdate) (domain.MarketSettings, error) {
	settings, err := c.ownerSettings(ctx, tx, call)
	if err != nil {
		return domain.MarketSettings{}, fmt.Errorf("marketplace: update fees: %w", err)
	}

	next := settings.Clone()
	if u.ListingFee != nil {
		next.ListingFee = new(big.Int).Set(u.ListingFee)
	}
	if u.LikingPrice != nil {
		next.LikingPrice = new(big.Int).Set(u.LikingPrice)
	}
	if u.CommissionBps != nil {
		next.CommissionBps = *u.CommissionBps
	}
	if u.LikeFeeRecipient != nil {
		next.LikeFeeRecipient = *u.LikeFeeRecipient
	}
	if err := validateFees(next.ListingFee, next.LikingPrice, next.CommissionBps, next.LikeFeeRecipient); err != nil {
		return domain.MarketSettings{}, fmt.Errorf("marketplace: update fees: %w", err)
	}

	if err := tx.PutSettings(ctx, next); err != nil {
		return domain.MarketSettings{}, fmt.Errorf("marketplace: update fees: %w", err)
	}
	if err := c.emit(ctx, tx, domain.Event{
		Name:   domain.EventFeesUpdated,
		Actor:  call.Caller,
		Amount: new(big.Int).Set(next.LikingPrice),
		Detail: fmt.Sprintf("listing_fee=%s commission_bps=%d like_fee_recipient=%s",
			next.ListingFee, next.CommissionBps, next.LikeFeeRecipient),
	}); err != nil {
		return domain.MarketSettings{}, fmt.Errorf("marketplace: update fees: %w", err)
	}
	return next, nil
}

// ownerSettings loads the settings and checks that the non-payable call comes
// from the market owner.
func (c *Contract) ownerSettings(ctx context.Context, tx domain.StateTx, call domain.Call) (domain.MarketSettings, error) {
	if call.Paid() {
		return domain.MarketSettings{}, fmt.Errorf("not payable: %w", domain.ErrInvalidPayment)
	}
	settings, err := tx.Settings(ctx)
	if err != nil {
		return domain.MarketSettings{}, err
	}
	if call.Caller != settings.Owner {
		return domain.MarketSettings{}, fmt.Errorf("%s is not the market owner: %w", call.Caller.Hex(), domain.ErrUnauthorized)
	}
	return settings, nil
}
