package reconcile

import (
	"time"

	"github.com/Titi-shop/TiTi/internal/domain/event"
)

type EventPublisher interface {
	Publish(event.Event) error
}

// CompletionRetrier re-delivers deferred completion events with exponential
// backoff until the approval record appears or the attempt budget runs out.
type CompletionRetrier struct {
	EventBus  EventPublisher
	MaxRetry  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

func (r *CompletionRetrier) Schedule(payload event.CompletionDeferredPayload) bool {
	if payload.Attempt > r.MaxRetry {
		return false
	}

	delay := min(r.BaseDelay*time.Duration(1<<(payload.Attempt-1)), r.MaxDelay)

	go func() {
		time.Sleep(delay)
		r.EventBus.Publish(event.Event{
			Type:    event.CompletionDeferred,
			Payload: payload,
		})
	}()

	return true
}
