package postgres

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/promiseland/internal/domain"
)

// AppendEvent assigns the next dense sequence number. Updates hold the
// market advisory lock, so MAX(seq) cannot race.
func (t *stateTx) AppendEvent(ctx context.Context, e *domain.Event) error {
	if !t.writable {
		return errReadOnly
	}
	var amount *string
	if e.Amount != nil {
		s := e.Amount.String()
		amount = &s
	}

	const query = `
		INSERT INTO market_events (
			seq, id, name, token_id, actor, counterparty, amount, detail, created_at
		)
		SELECT COALESCE(MAX(seq), 0) + 1, $1, $2, $3, $4, $5, $6::numeric, $7, $8
		FROM market_events
		RETURNING seq`

	var seq int64
	err := t.tx.QueryRow(ctx, query,
		e.ID, string(e.Name), int64(e.TokenID), e.Actor.Hex(), e.Counterparty.Hex(),
		amount, e.Detail, e.CreatedAt,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("postgres: append event %s: %w", e.Name, err)
	}
	e.Seq = uint64(seq)
	return nil
}

func (t *stateTx) EventsAfter(ctx context.Context, after uint64, limit int) ([]domain.Event, error) {
	query := `
		SELECT seq, id, name, token_id, actor, counterparty, amount::text, detail, created_at
		FROM market_events WHERE seq > $1 ORDER BY seq ASC`
	args := []any{int64(after)}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := t.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events after %d: %w", after, err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var (
			e                   domain.Event
			seq, tokenID        int64
			name, actor, cparty string
			amount              *string
		)
		if err := rows.Scan(&seq, &e.ID, &name, &tokenID, &actor, &cparty, &amount, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		e.Seq = uint64(seq)
		e.Name = domain.EventName(name)
		e.TokenID = uint64(tokenID)
		e.Actor = common.HexToAddress(actor)
		e.Counterparty = common.HexToAddress(cparty)
		if amount != nil {
			if e.Amount, err = parseNumeric(*amount); err != nil {
				return nil, err
			}
		}
		e.CreatedAt = e.CreatedAt.UTC()
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate events: %w", err)
	}
	return events, nil
}
