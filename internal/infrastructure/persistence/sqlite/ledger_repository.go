package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Titi-shop/TiTi/internal/domain/ledger"
	"github.com/Titi-shop/TiTi/internal/domain/order"
	"github.com/Titi-shop/TiTi/internal/infra/clock"
)

type LedgerRepository struct {
	db  *sql.DB
	clk clock.Clock
}

func NewLedgerRepository(db *sql.DB, clk clock.Clock) *LedgerRepository {
	return &LedgerRepository{db: db, clk: clk}
}

func (r *LedgerRepository) RecordIfAbsent(ctx context.Context, paymentID, orderID string, phase ledger.Phase, outcome ledger.Outcome) (ledger.Outcome, bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO payment_ledger
		 (payment_id, order_id, phase, outcome_code, detail, txid, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		paymentID,
		orderID,
		string(phase),
		string(outcome.Code),
		outcome.Detail,
		outcome.Txid,
		r.clk.Now(),
	)
	if err != nil {
		return ledger.Outcome{}, false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return ledger.Outcome{}, false, err
	}
	if affected == 1 {
		return outcome, true, nil
	}

	// 0 rows = dedup hit; hand back what the first delivery recorded.
	entry, err := r.Find(ctx, paymentID, phase)
	if err != nil {
		return ledger.Outcome{}, false, err
	}
	return entry.Outcome, false, nil
}

func (r *LedgerRepository) Fulfill(ctx context.Context, paymentID string, phase ledger.Phase, outcome ledger.Outcome) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE payment_ledger
		 SET outcome_code = ?, detail = ?, txid = ?, completed_at = ?
		 WHERE payment_id = ? AND phase = ?`,
		string(outcome.Code),
		outcome.Detail,
		outcome.Txid,
		r.clk.Now(),
		paymentID,
		string(phase),
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ledger.ErrNotFound
	}

	return nil
}

func (r *LedgerRepository) Release(ctx context.Context, paymentID string, phase ledger.Phase) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM payment_ledger
		 WHERE payment_id = ? AND phase = ? AND outcome_code = ?`,
		paymentID,
		string(phase),
		string(ledger.OutcomePending),
	)
	return err
}

func (r *LedgerRepository) Find(ctx context.Context, paymentID string, phase ledger.Phase) (*ledger.Entry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT payment_id, order_id, phase, outcome_code, detail, txid, completed_at
		 FROM payment_ledger
		 WHERE payment_id = ? AND phase = ?`,
		paymentID,
		string(phase),
	)

	var e ledger.Entry
	var ph, code string

	if err := row.Scan(&e.PaymentID, &e.OrderID, &ph, &code, &e.Outcome.Detail, &e.Outcome.Txid, &e.CompletedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.ErrNotFound
		}
		return nil, err
	}

	e.Phase = ledger.Phase(ph)
	e.Outcome.Code = ledger.OutcomeCode(code)
	return &e, nil
}

// DeleteOlderThan drops aged final entries, but only once the owning order
// cannot produce another callback: a PAID order in the shipping lane still
// relies on its entries to absorb duplicate deliveries.
func (r *LedgerRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM payment_ledger
		 WHERE completed_at < ?
		   AND outcome_code != ?
		   AND order_id NOT IN (
		       SELECT id FROM orders WHERE status NOT IN (?, ?, ?)
		   )`,
		cutoff,
		string(ledger.OutcomePending),
		string(order.StatusCompleted),
		string(order.StatusCancelled),
		string(order.StatusFailed),
	)
	if err != nil {
		return 0, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}
