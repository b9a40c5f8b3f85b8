package order

import (
	"context"
	"errors"
)

var (
	ErrNotFound         = errors.New("order not found")
	ErrAlreadyExists    = errors.New("order already exists")
	ErrPaymentIDRebound = errors.New("order already bound to another payment")
)

// Repository is the durable order store. CompareAndSwapStatus is the only
// way any writer moves an order between statuses; a false return means the
// caller lost the race and must re-read before deciding anything.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	FindByID(ctx context.Context, id string) (*Order, error)
	FindByBuyer(ctx context.Context, buyerID string) ([]*Order, error)
	CompareAndSwapStatus(ctx context.Context, id string, expected, next Status) (bool, error)

	// BindPayment sets the payment id exactly once. Rebinding the same id
	// is a no-op; a different id returns ErrPaymentIDRebound.
	BindPayment(ctx context.Context, id, paymentID string) error

	// SetPaymentOutcome records the settlement txid alongside the payment id.
	SetPaymentOutcome(ctx context.Context, id, paymentID, txid string) error
}
