package checkout

import (
	"context"
	"errors"
	"math"

	"github.com/google/uuid"

	"github.com/Titi-shop/TiTi/internal/domain/order"
	"github.com/Titi-shop/TiTi/internal/infra/clock"
)

var (
	ErrBuyerRequired      = errors.New("buyer id required")
	ErrNoItems            = errors.New("order has no items")
	ErrInvalidItem        = errors.New("item has invalid price or quantity")
	ErrTotalMismatch      = errors.New("total does not match item sum")
	ErrInvalidTransition  = errors.New("shipping status transition not permitted")
	ErrNotShippingStatus  = errors.New("status outside the shipping lane")
	ErrTransitionConflict = errors.New("order status changed concurrently")
)

// Service is the narrow surface the surrounding storefront (cart, seller
// dashboard, delivery pages) talks to. It never touches payment fields;
// those belong to the reconciliation coordinator.
type Service struct {
	Repo  order.Repository
	Clock clock.Clock
}

type CreateOrderInput struct {
	ID      string // optional, generated when empty
	BuyerID string
	Items   []order.Item
	Total   float64 // optional, recomputed from items when zero
	Note    string
}

func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (*order.Order, error) {
	if in.BuyerID == "" {
		return nil, ErrBuyerRequired
	}
	if len(in.Items) == 0 {
		return nil, ErrNoItems
	}

	var sum float64
	for _, it := range in.Items {
		if it.Quantity <= 0 || it.UnitPrice < 0 {
			return nil, ErrInvalidItem
		}
		sum += it.UnitPrice * float64(it.Quantity)
	}

	total := in.Total
	if total == 0 {
		total = sum
	} else if math.Abs(total-sum) > 0.005 {
		return nil, ErrTotalMismatch
	}

	id := in.ID
	if id == "" {
		id = "ORD-" + uuid.NewString()
	}

	now := s.Clock.Now()
	o := &order.Order{
		ID:        id,
		BuyerID:   in.BuyerID,
		Items:     in.Items,
		Total:     total,
		Status:    order.StatusPendingConfirmation,
		Note:      in.Note,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.Repo.Create(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Service) GetOrder(ctx context.Context, id string) (*order.Order, error) {
	return s.Repo.FindByID(ctx, id)
}

func (s *Service) GetOrdersByBuyer(ctx context.Context, buyerID string) ([]*order.Order, error) {
	if buyerID == "" {
		return nil, ErrBuyerRequired
	}
	return s.Repo.FindByBuyer(ctx, buyerID)
}

// AdvanceShippingStatus moves an order one step through the delivery lane
// (PAID -> SHIPPING -> WAITING_PICKUP -> COMPLETED) via the same CAS
// primitive the payment core uses, so neither writer can clobber the other.
func (s *Service) AdvanceShippingStatus(ctx context.Context, id string, expected, next order.Status) error {
	if !expected.IsSettled() || !next.IsSettled() {
		return ErrNotShippingStatus
	}
	if !order.CanTransition(expected, next) {
		return ErrInvalidTransition
	}

	swapped, err := s.Repo.CompareAndSwapStatus(ctx, id, expected, next)
	if err != nil {
		return err
	}
	if !swapped {
		return ErrTransitionConflict
	}
	return nil
}
