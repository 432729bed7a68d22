package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"

	"github.com/alanyoungcy/promiseland/internal/domain"
)

const itemColumns = `
	token_id, token_uri, creator, owner, price::text,
	selling, reselling, sold, likes, dislikes, created_at, updated_at`

func (t *stateTx) Item(ctx context.Context, tokenID uint64) (domain.MarketItem, error) {
	query := `SELECT ` + itemColumns + ` FROM market_items WHERE token_id = $1`

	item, err := scanItem(t.tx.QueryRow(ctx, query, int64(tokenID)))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.MarketItem{}, fmt.Errorf("token %d: %w", tokenID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.MarketItem{}, fmt.Errorf("postgres: get item %d: %w", tokenID, err)
	}
	return item, nil
}

func (t *stateTx) ItemsAfter(ctx context.Context, after uint64, limit int) ([]domain.MarketItem, error) {
	query := `SELECT ` + itemColumns + `
		FROM market_items WHERE token_id > $1 ORDER BY token_id ASC LIMIT $2`

	rows, err := t.tx.Query(ctx, query, int64(after), limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list items after %d: %w", after, err)
	}
	defer rows.Close()

	var items []domain.MarketItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate items: %w", err)
	}
	return items, nil
}

func (t *stateTx) PutItem(ctx context.Context, item domain.MarketItem) error {
	if !t.writable {
		return errReadOnly
	}
	const query = `
		INSERT INTO market_items (
			token_id, token_uri, creator, owner, price,
			selling, reselling, sold, likes, dislikes, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5::numeric,
			$6, $7, $8, $9, $10, $11, $12
		)
		ON CONFLICT (token_id) DO UPDATE SET
			owner      = EXCLUDED.owner,
			price      = EXCLUDED.price,
			selling    = EXCLUDED.selling,
			reselling  = EXCLUDED.reselling,
			sold       = EXCLUDED.sold,
			likes      = EXCLUDED.likes,
			dislikes   = EXCLUDED.dislikes,
			updated_at = EXCLUDED.updated_at`

	_, err := t.tx.Exec(ctx, query,
		int64(item.TokenID), item.TokenURI, item.Creator.Hex(), item.Owner.Hex(), item.Price.String(),
		item.Selling, item.Reselling, item.Sold, int64(item.Likes), int64(item.Dislikes),
		item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: put item %d: %w", item.TokenID, err)
	}
	return nil
}

func scanItem(row pgx.Row) (domain.MarketItem, error) {
	var (
		it                    domain.MarketItem
		id, likes, dislikes   int64
		creator, owner, price string
	)
	if err := row.Scan(
		&id, &it.TokenURI, &creator, &owner, &price,
		&it.Selling, &it.Reselling, &it.Sold, &likes, &dislikes,
		&it.CreatedAt, &it.UpdatedAt,
	); err != nil {
		return domain.MarketItem{}, err
	}

	p, err := parseNumeric(price)
	if err != nil {
		return domain.MarketItem{}, err
	}
	it.TokenID = uint64(id)
	it.Creator = common.HexToAddress(creator)
	it.Owner = common.HexToAddress(owner)
	it.Price = p
	it.Likes = uint64(likes)
	it.Dislikes = uint64(dislikes)
	it.CreatedAt = it.CreatedAt.UTC()
	it.UpdatedAt = it.UpdatedAt.UTC()
	return it, nil
}
