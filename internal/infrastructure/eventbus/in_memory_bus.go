package eventbus

import (
	"sync"

	"github.com/Titi-shop/TiTi/internal/domain/event"
	"github.com/Titi-shop/TiTi/internal/infra/logging"
)

type HandlerFunc func(event.Event) error

// InMemoryBus fans events out to subscribers in-process. A failing handler
// does not stop delivery to the remaining subscribers; its error is logged
// and the first one is returned to the publisher.
type InMemoryBus struct {
	mu       sync.RWMutex
	handlers map[event.Type][]HandlerFunc
	logger   logging.Logger
}

func NewInMemoryBus(logger logging.Logger) *InMemoryBus {
	if logger == nil {
		logger = logging.Noop{}
	}
	return &InMemoryBus{
		handlers: make(map[event.Type][]HandlerFunc),
		logger:   logger,
	}
}

func (b *InMemoryBus) Subscribe(eventType event.Type, handler HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

func (b *InMemoryBus) Publish(evt event.Event) error {
	b.mu.RLock()
	handlers := b.handlers[evt.Type]
	b.mu.RUnlock()

	var firstErr error
	for _, handler := range handlers {
		if err := handler(evt); err != nil {
			b.logger.Error("event handler failed", map[string]any{
				"event": string(evt.Type),
				"error": err.Error(),
			})
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}
