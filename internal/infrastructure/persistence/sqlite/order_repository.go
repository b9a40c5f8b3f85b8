package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/Titi-shop/TiTi/internal/domain/order"
	"github.com/Titi-shop/TiTi/internal/infra/clock"
)

type OrderRepository struct {
	db  *sql.DB
	clk clock.Clock
}

func NewOrderRepository(db *sql.DB, clk clock.Clock) *OrderRepository {
	return &OrderRepository{db: db, clk: clk}
}

func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO orders
		 (id, buyer_id, items, total, status, payment_id, txid, note, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID,
		o.BuyerID,
		string(items),
		o.Total,
		string(o.Status),
		o.PaymentID,
		o.Txid,
		o.Note,
		o.CreatedAt,
		o.UpdatedAt,
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return order.ErrAlreadyExists
	}
	return err
}

func (r *OrderRepository) FindByID(ctx context.Context, id string) (*order.Order, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, buyer_id, items, total, status, payment_id, txid, note, created_at, updated_at
		 FROM orders
		 WHERE id = ?`,
		id,
	)
	return scanOrder(row)
}

func (r *OrderRepository) FindByBuyer(ctx context.Context, buyerID string) ([]*order.Order, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, buyer_id, items, total, status, payment_id, txid, note, created_at, updated_at
		 FROM orders
		 WHERE buyer_id = ?
		 ORDER BY created_at DESC`,
		buyerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*order.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}

	return orders, rows.Err()
}

func (r *OrderRepository) CompareAndSwapStatus(ctx context.Context, id string, expected, next order.Status) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE orders
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(next),
		r.clk.Now(),
		id,
		string(expected),
	)
	if err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 1 {
		return true, nil
	}

	// Distinguish a lost race from a missing order.
	if _, err := r.FindByID(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (r *OrderRepository) BindPayment(ctx context.Context, id, paymentID string) error {
	return r.bindPayment(ctx, id, paymentID, nil)
}

func (r *OrderRepository) SetPaymentOutcome(ctx context.Context, id, paymentID, txid string) error {
	return r.bindPayment(ctx, id, paymentID, &txid)
}

// bindPayment writes payment_id (and optionally txid) guarded by the
// payment_id immutability rule: empty or equal matches, anything else is a
// rebind attempt and is rejected.
func (r *OrderRepository) bindPayment(ctx context.Context, id, paymentID string, txid *string) error {
	var (
		res sql.Result
		err error
	)

	if txid == nil {
		res, err = r.db.ExecContext(ctx,
			`UPDATE orders
			 SET payment_id = ?, updated_at = ?
			 WHERE id = ? AND (payment_id = '' OR payment_id = ?)`,
			paymentID, r.clk.Now(), id, paymentID,
		)
	} else {
		res, err = r.db.ExecContext(ctx,
			`UPDATE orders
			 SET payment_id = ?, txid = ?, updated_at = ?
			 WHERE id = ? AND (payment_id = '' OR payment_id = ?)`,
			paymentID, *txid, r.clk.Now(), id, paymentID,
		)
	}
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 1 {
		return nil
	}

	if _, err := r.FindByID(ctx, id); err != nil {
		return err
	}
	return order.ErrPaymentIDRebound
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*order.Order, error) {
	var o order.Order
	var items, status string

	err := row.Scan(
		&o.ID,
		&o.BuyerID,
		&items,
		&o.Total,
		&status,
		&o.PaymentID,
		&o.Txid,
		&o.Note,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, err
	}

	st, err := order.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	o.Status = st

	if err := json.Unmarshal([]byte(items), &o.Items); err != nil {
		return nil, err
	}

	return &o, nil
}
