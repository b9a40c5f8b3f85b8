package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Titi-shop/TiTi/internal/domain/order"
	"github.com/Titi-shop/TiTi/internal/infra/clock"
)

type OrderRepository struct {
	pool *pgxpool.Pool
	clk  clock.Clock
}

func NewOrderRepository(pool *pgxpool.Pool, clk clock.Clock) *OrderRepository {
	return &OrderRepository{pool: pool, clk: clk}
}

func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return err
	}

	const stmt = `
INSERT INTO orders (id, buyer_id, items, total, status, payment_id, txid, note, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = r.pool.Exec(ctx, stmt,
		o.ID, o.BuyerID, items, o.Total, string(o.Status),
		o.PaymentID, o.Txid, o.Note, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return order.ErrAlreadyExists
		}
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

func (r *OrderRepository) FindByID(ctx context.Context, id string) (*order.Order, error) {
	const query = `
SELECT id, buyer_id, items, total, status, payment_id, txid, note, created_at, updated_at
FROM orders
WHERE id = $1`

	return scanOrder(r.pool.QueryRow(ctx, query, id))
}

func (r *OrderRepository) FindByBuyer(ctx context.Context, buyerID string) ([]*order.Order, error) {
	const query = `
SELECT id, buyer_id, items, total, status, payment_id, txid, note, created_at, updated_at
FROM orders
WHERE buyer_id = $1
ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, buyerID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
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
	const stmt = `
UPDATE orders
SET status = $3, updated_at = $4
WHERE id = $1 AND status = $2`

	tag, err := r.pool.Exec(ctx, stmt, id, string(expected), string(next), r.clk.Now())
	if err != nil {
		return false, fmt.Errorf("cas status: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	if _, err := r.FindByID(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (r *OrderRepository) BindPayment(ctx context.Context, id, paymentID string) error {
	const stmt = `
UPDATE orders
SET payment_id = $2, updated_at = $3
WHERE id = $1 AND (payment_id = '' OR payment_id = $2)`

	tag, err := r.pool.Exec(ctx, stmt, id, paymentID, r.clk.Now())
	if err != nil {
		return fmt.Errorf("bind payment: %w", err)
	}
	return r.checkBound(ctx, id, tag)
}

func (r *OrderRepository) SetPaymentOutcome(ctx context.Context, id, paymentID, txid string) error {
	const stmt = `
UPDATE orders
SET payment_id = $2, txid = $3, updated_at = $4
WHERE id = $1 AND (payment_id = '' OR payment_id = $2)`

	tag, err := r.pool.Exec(ctx, stmt, id, paymentID, txid, r.clk.Now())
	if err != nil {
		return fmt.Errorf("set payment outcome: %w", err)
	}
	return r.checkBound(ctx, id, tag)
}

func (r *OrderRepository) checkBound(ctx context.Context, id string, tag pgconn.CommandTag) error {
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := r.FindByID(ctx, id); err != nil {
		return err
	}
	return order.ErrPaymentIDRebound
}

func scanOrder(row pgx.Row) (*order.Order, error) {
	var o order.Order
	var items []byte
	var status string

	err := row.Scan(
		&o.ID, &o.BuyerID, &items, &o.Total, &status,
		&o.PaymentID, &o.Txid, &o.Note, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	st, err := order.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	o.Status = st

	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, err
	}
	return &o, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
