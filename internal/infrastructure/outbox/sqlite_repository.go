package outbox

import (
	"database/sql"

	"github.com/Titi-shop/TiTi/internal/domain/event"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db}
}

func (r *SQLiteRepository) Save(evt OutboxEvent) error {
	_, err := r.db.Exec(`
		INSERT INTO outbox_events (id, event_type, payload, published, created_at)
		VALUES (?, ?, ?, 0, ?)
	`,
		evt.ID,
		string(evt.Type),
		evt.Payload,
		evt.CreatedAt,
	)
	return err
}

func (r *SQLiteRepository) FindUnpublished(limit int) ([]OutboxEvent, error) {
	rows, err := r.db.Query(`
		SELECT id, event_type, payload, published, created_at
		FROM outbox_events
		WHERE published = 0
		ORDER BY created_at
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []OutboxEvent

	for rows.Next() {
		var evt OutboxEvent
		var eventType string
		var published int

		if err := rows.Scan(
			&evt.ID,
			&eventType,
			&evt.Payload,
			&published,
			&evt.CreatedAt,
		); err != nil {
			return nil, err
		}

		evt.Type = event.Type(eventType)
		evt.Published = published == 1
		events = append(events, evt)
	}

	return events, rows.Err()
}

func (r *SQLiteRepository) MarkPublished(id string) error {
	_, err := r.db.Exec(`
		UPDATE outbox_events
		SET published = 1
		WHERE id = ?
	`, id)

	return err
}
