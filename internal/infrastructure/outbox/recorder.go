package outbox

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/Titi-shop/TiTi/internal/domain/event"
	"github.com/Titi-shop/TiTi/internal/infra/clock"
)

type Recorder struct {
	Repo  Repository
	Clock clock.Clock
}

func (r *Recorder) Record(evt event.Event) error {
	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", evt.Type, err)
	}

	return r.Repo.Save(OutboxEvent{
		ID:        "evt_" + uuid.NewString(),
		Type:      evt.Type,
		Payload:   payload,
		CreatedAt: r.Clock.Now(),
	})
}
