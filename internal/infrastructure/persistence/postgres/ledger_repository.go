package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Titi-shop/TiTi/internal/domain/ledger"
	"github.com/Titi-shop/TiTi/internal/domain/order"
	"github.com/Titi-shop/TiTi/internal/infra/clock"
)

type LedgerRepository struct {
	pool *pgxpool.Pool
	clk  clock.Clock
}

func NewLedgerRepository(pool *pgxpool.Pool, clk clock.Clock) *LedgerRepository {
	return &LedgerRepository{pool: pool, clk: clk}
}

func (r *LedgerRepository) RecordIfAbsent(ctx context.Context, paymentID, orderID string, phase ledger.Phase, outcome ledger.Outcome) (ledger.Outcome, bool, error) {
	const stmt = `
INSERT INTO payment_ledger (payment_id, order_id, phase, outcome_code, detail, txid, completed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (payment_id, phase) DO NOTHING`

	tag, err := r.pool.Exec(ctx, stmt,
		paymentID, orderID, string(phase), string(outcome.Code),
		outcome.Detail, outcome.Txid, r.clk.Now(),
	)
	if err != nil {
		return ledger.Outcome{}, false, fmt.Errorf("record ledger entry: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return outcome, true, nil
	}

	entry, err := r.Find(ctx, paymentID, phase)
	if err != nil {
		return ledger.Outcome{}, false, err
	}
	return entry.Outcome, false, nil
}

func (r *LedgerRepository) Fulfill(ctx context.Context, paymentID string, phase ledger.Phase, outcome ledger.Outcome) error {
	const stmt = `
UPDATE payment_ledger
SET outcome_code = $3, detail = $4, txid = $5, completed_at = $6
WHERE payment_id = $1 AND phase = $2`

	tag, err := r.pool.Exec(ctx, stmt,
		paymentID, string(phase), string(outcome.Code),
		outcome.Detail, outcome.Txid, r.clk.Now(),
	)
	if err != nil {
		return fmt.Errorf("fulfill ledger entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func (r *LedgerRepository) Release(ctx context.Context, paymentID string, phase ledger.Phase) error {
	const stmt = `
DELETE FROM payment_ledger
WHERE payment_id = $1 AND phase = $2 AND outcome_code = $3`

	_, err := r.pool.Exec(ctx, stmt, paymentID, string(phase), string(ledger.OutcomePending))
	if err != nil {
		return fmt.Errorf("release ledger entry: %w", err)
	}
	return nil
}

func (r *LedgerRepository) Find(ctx context.Context, paymentID string, phase ledger.Phase) (*ledger.Entry, error) {
	const query = `
SELECT payment_id, order_id, phase, outcome_code, detail, txid, completed_at
FROM payment_ledger
WHERE payment_id = $1 AND phase = $2`

	var e ledger.Entry
	var ph, code string

	err := r.pool.QueryRow(ctx, query, paymentID, string(phase)).
		Scan(&e.PaymentID, &e.OrderID, &ph, &code, &e.Outcome.Detail, &e.Outcome.Txid, &e.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ledger.ErrNotFound
		}
		return nil, fmt.Errorf("find ledger entry: %w", err)
	}

	e.Phase = ledger.Phase(ph)
	e.Outcome.Code = ledger.OutcomeCode(code)
	return &e, nil
}

// DeleteOlderThan drops aged final entries, but only once the owning order
// cannot produce another callback: a PAID order in the shipping lane still
// relies on its entries to absorb duplicate deliveries.
func (r *LedgerRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	const stmt = `
DELETE FROM payment_ledger
WHERE completed_at < $1
  AND outcome_code != $2
  AND order_id NOT IN (
      SELECT id FROM orders WHERE status NOT IN ($3, $4, $5)
  )`

	tag, err := r.pool.Exec(ctx, stmt, cutoff, string(ledger.OutcomePending),
		string(order.StatusCompleted), string(order.StatusCancelled), string(order.StatusFailed))
	if err != nil {
		return 0, fmt.Errorf("prune ledger: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
