package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Titi-shop/TiTi/internal/domain/event"
	"github.com/Titi-shop/TiTi/internal/infra/logging"
)

// AMQPPublisher forwards escalations (failed payments, inconsistent-state
// audits) to a durable queue for the on-call/reconciliation tooling.
type AMQPPublisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
	logger  logging.Logger
}

func NewAMQPPublisher(url, queueName string, logger logging.Logger) (*AMQPPublisher, error) {
	var conn *amqp.Connection
	var err error

	// The broker may still be starting; give it a few chances.
	for i := 0; i < 5; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			break
		}
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("connect to amqp broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}

	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queueName, err)
	}

	if logger == nil {
		logger = logging.Noop{}
	}
	return &AMQPPublisher{conn: conn, channel: ch, queue: queueName, logger: logger}, nil
}

// Handle is an event bus subscription: every delivered event becomes one
// persistent message on the alert queue.
func (p *AMQPPublisher) Handle(evt event.Event) error {
	body, err := json.Marshal(map[string]any{
		"type":    string(evt.Type),
		"payload": evt.Payload,
	})
	if err != nil {
		return fmt.Errorf("encode alert %s: %w", evt.Type, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = p.channel.PublishWithContext(ctx,
		"",      // default exchange
		p.queue, // routing key
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		})
	if err != nil {
		return fmt.Errorf("publish alert: %w", err)
	}

	p.logger.Info("alert published", map[string]any{
		"queue": p.queue,
		"event": string(evt.Type),
	})
	return nil
}

func (p *AMQPPublisher) Close() {
	p.channel.Close()
	p.conn.Close()
}
