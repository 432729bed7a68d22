package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
)

func (t *stateTx) Balance(ctx context.Context, addr common.Address) (*big.Int, error) {
	var bal string
	err := t.tx.QueryRow(ctx,
		`SELECT balance::text FROM account_balances WHERE address = $1`, addr.Hex(),
	).Scan(&bal)
	if errors.Is(err, pgx.ErrNoRows) {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get balance %s: %w", addr.Hex(), err)
	}
	return parseNumeric(bal)
}

func (t *stateTx) SetBalance(ctx context.Context, addr common.Address, amount *big.Int) error {
	if !t.writable {
		return errReadOnly
	}
	const query = `
		INSERT INTO account_balances (address, balance, updated_at)
		VALUES ($1, $2::numeric, NOW())
		ON CONFLICT (address) DO UPDATE SET
			balance    = EXCLUDED.balance,
			updated_at = NOW()`

	if _, err := t.tx.Exec(ctx, query, addr.Hex(), amount.String()); err != nil {
		return fmt.Errorf("postgres: set balance %s: %w", addr.Hex(), err)
	}
	return nil
}
