package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Titi-shop/TiTi/internal/domain/event"
	"github.com/Titi-shop/TiTi/internal/infra/logging"
)

type EventPublisher interface {
	Publish(event.Event) error
}

// Dispatcher drains unpublished outbox rows onto the bus. Failed rows stay
// unpublished and are retried on the next tick.
type Dispatcher struct {
	Repo         Repository
	EventBus     EventPublisher
	Logger       logging.Logger
	PollInterval time.Duration
	BatchSize    int
}

func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.DispatchOnce()
		}
	}
}

func (d *Dispatcher) DispatchOnce() {
	events, err := d.Repo.FindUnpublished(d.BatchSize)
	if err != nil {
		if d.Logger != nil {
			d.Logger.Error("outbox poll failed", map[string]any{"error": err.Error()})
		}
		return
	}

	for _, evt := range events {
		payload, err := decodePayload(evt.Type, evt.Payload)
		if err != nil {
			if d.Logger != nil {
				d.Logger.Error("outbox payload unreadable", map[string]any{
					"outbox-id": evt.ID,
					"event":     string(evt.Type),
					"error":     err.Error(),
				})
			}
			continue
		}

		if err := d.EventBus.Publish(event.Event{Type: evt.Type, Payload: payload}); err != nil {
			continue
		}

		_ = d.Repo.MarkPublished(evt.ID)
	}
}

// decodePayload restores the concrete payload type so subscribers can type
// assert the same way they do for events published directly.
func decodePayload(t event.Type, raw []byte) (any, error) {
	switch t {
	case event.OrderPaid:
		var p event.OrderPaidPayload
		return p, json.Unmarshal(raw, &p)
	case event.OrderFailed:
		var p event.OrderFailedPayload
		return p, json.Unmarshal(raw, &p)
	case event.InconsistencyFound:
		var p event.InconsistencyFoundPayload
		return p, json.Unmarshal(raw, &p)
	case event.CompletionDeferred:
		var p event.CompletionDeferredPayload
		return p, json.Unmarshal(raw, &p)
	default:
		return nil, fmt.Errorf("unknown outbox event type %q", t)
	}
}
