package inmemory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Titi-shop/TiTi/internal/domain/ledger"
	"github.com/Titi-shop/TiTi/internal/domain/order"
	"github.com/Titi-shop/TiTi/internal/infra/clock"
)

type ledgerKey struct {
	paymentID string
	phase     ledger.Phase
}

type LedgerRepository struct {
	mu      sync.Mutex
	entries map[ledgerKey]*ledger.Entry
	orders  *OrderRepository
	clk     clock.Clock
}

// NewLedgerRepository needs the order repository so pruning can check
// whether the owning order is terminal yet.
func NewLedgerRepository(clk clock.Clock, orders *OrderRepository) *LedgerRepository {
	return &LedgerRepository{
		entries: make(map[ledgerKey]*ledger.Entry),
		orders:  orders,
		clk:     clk,
	}
}

func (r *LedgerRepository) RecordIfAbsent(_ context.Context, paymentID, orderID string, phase ledger.Phase, outcome ledger.Outcome) (ledger.Outcome, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := ledgerKey{paymentID, phase}
	if existing, ok := r.entries[key]; ok {
		return existing.Outcome, false, nil
	}

	r.entries[key] = &ledger.Entry{
		PaymentID:   paymentID,
		OrderID:     orderID,
		Phase:       phase,
		Outcome:     outcome,
		CompletedAt: r.clk.Now(),
	}
	return outcome, true, nil
}

func (r *LedgerRepository) Fulfill(_ context.Context, paymentID string, phase ledger.Phase, outcome ledger.Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[ledgerKey{paymentID, phase}]
	if !ok {
		return ledger.ErrNotFound
	}

	entry.Outcome = outcome
	entry.CompletedAt = r.clk.Now()
	return nil
}

func (r *LedgerRepository) Release(_ context.Context, paymentID string, phase ledger.Phase) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := ledgerKey{paymentID, phase}
	if entry, ok := r.entries[key]; ok && entry.Outcome.Code == ledger.OutcomePending {
		delete(r.entries, key)
	}
	return nil
}

func (r *LedgerRepository) Find(_ context.Context, paymentID string, phase ledger.Phase) (*ledger.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[ledgerKey{paymentID, phase}]
	if !ok {
		return nil, ledger.ErrNotFound
	}

	cp := *entry
	return &cp, nil
}

func (r *LedgerRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int
	for key, entry := range r.entries {
		if entry.Outcome.Code == ledger.OutcomePending || !entry.CompletedAt.Before(cutoff) {
			continue
		}
		if !r.orderTerminal(ctx, entry.OrderID) {
			continue
		}
		delete(r.entries, key)
		n++
	}
	return n, nil
}

func (r *LedgerRepository) orderTerminal(ctx context.Context, orderID string) bool {
	o, err := r.orders.FindByID(ctx, orderID)
	if errors.Is(err, order.ErrNotFound) {
		// Nothing left to protect.
		return true
	}
	if err != nil {
		return false
	}
	return o.Status.IsTerminal()
}
