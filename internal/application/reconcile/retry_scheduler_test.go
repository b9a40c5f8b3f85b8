package reconcile_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Titi-shop/TiTi/internal/application/reconcile"
	"github.com/Titi-shop/TiTi/internal/domain/event"
)

type capturingBus struct {
	mu     sync.Mutex
	events []event.Event
	done   chan struct{}
}

func (b *capturingBus) Publish(evt event.Event) error {
	b.mu.Lock()
	b.events = append(b.events, evt)
	b.mu.Unlock()
	if b.done != nil {
		close(b.done)
	}
	return nil
}

func TestSchedule_RepublishesAfterDelay(t *testing.T) {
	bus := &capturingBus{done: make(chan struct{})}
	r := &reconcile.CompletionRetrier{
		EventBus:  bus,
		MaxRetry:  3,
		BaseDelay: time.Millisecond,
		MaxDelay:  10 * time.Millisecond,
	}

	payload := event.CompletionDeferredPayload{PaymentID: "P1", OrderID: "ord-1", Txid: "tx", Attempt: 2}
	require.True(t, r.Schedule(payload))

	select {
	case <-bus.done:
	case <-time.After(time.Second):
		t.Fatal("deferred event was never republished")
	}

	bus.mu.Lock()
	defer bus.mu.Unlock()
	require.Len(t, bus.events, 1)
	require.Equal(t, event.CompletionDeferred, bus.events[0].Type)
	require.Equal(t, payload, bus.events[0].Payload)
}

func TestSchedule_BudgetExhausted(t *testing.T) {
	bus := &capturingBus{}
	r := &reconcile.CompletionRetrier{
		EventBus:  bus,
		MaxRetry:  3,
		BaseDelay: time.Millisecond,
		MaxDelay:  10 * time.Millisecond,
	}

	ok := r.Schedule(event.CompletionDeferredPayload{PaymentID: "P1", OrderID: "ord-1", Attempt: 4})
	require.False(t, ok)

	time.Sleep(20 * time.Millisecond)
	bus.mu.Lock()
	defer bus.mu.Unlock()
	require.Empty(t, bus.events)
}
