package inmemory

import (
	"context"
	"sync"

	"github.com/Titi-shop/TiTi/internal/domain/order"
	"github.com/Titi-shop/TiTi/internal/infra/clock"
)

type OrderRepository struct {
	mu     sync.Mutex
	orders map[string]*order.Order
	clk    clock.Clock
}

func NewOrderRepository(clk clock.Clock) *OrderRepository {
	return &OrderRepository{
		orders: make(map[string]*order.Order),
		clk:    clk,
	}
}

func (r *OrderRepository) Create(_ context.Context, o *order.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.orders[o.ID]; exists {
		return order.ErrAlreadyExists
	}

	cp := *o
	r.orders[o.ID] = &cp
	return nil
}

func (r *OrderRepository) FindByID(_ context.Context, id string) (*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}

	cp := *o
	return &cp, nil
}

func (r *OrderRepository) FindByBuyer(_ context.Context, buyerID string) ([]*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*order.Order
	for _, o := range r.orders {
		if o.BuyerID == buyerID {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *OrderRepository) CompareAndSwapStatus(_ context.Context, id string, expected, next order.Status) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok {
		return false, order.ErrNotFound
	}
	if o.Status != expected {
		return false, nil
	}

	o.Status = next
	o.UpdatedAt = r.clk.Now()
	return true, nil
}

func (r *OrderRepository) BindPayment(_ context.Context, id, paymentID string) error {
	return r.bind(id, paymentID, nil)
}

func (r *OrderRepository) SetPaymentOutcome(_ context.Context, id, paymentID, txid string) error {
	return r.bind(id, paymentID, &txid)
}

func (r *OrderRepository) bind(id, paymentID string, txid *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	if o.PaymentID != "" && o.PaymentID != paymentID {
		return order.ErrPaymentIDRebound
	}

	o.PaymentID = paymentID
	if txid != nil {
		o.Txid = *txid
	}
	o.UpdatedAt = r.clk.Now()
	return nil
}
