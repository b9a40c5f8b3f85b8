package outbox

import (
	"time"

	"github.com/Titi-shop/TiTi/internal/domain/event"
)

// OutboxEvent is a reconciliation outcome durably recorded before any
// subscriber (alerting, operator tooling) sees it. Rows are never updated
// after publication, so the table doubles as the audit trail for the
// escalations the coordinator refuses to resolve automatically.
type OutboxEvent struct {
	ID        string
	Type      event.Type
	Payload   []byte
	Published bool
	CreatedAt time.Time
}

type Repository interface {
	Save(OutboxEvent) error
	FindUnpublished(int) ([]OutboxEvent, error)
	MarkPublished(string) error
}
