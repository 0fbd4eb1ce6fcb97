package rabbit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/seat-hold-engine/internal/domain"
)

const exchange = "seats.events"

type Publisher struct {
	ch *amqp.Channel
}

func NewPublisher(conn *amqp.Connection) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	err = ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil)
	if err != nil {
		return nil, err
	}
	return &Publisher{ch: ch}, nil
}

func (p *Publisher) Publish(ctx context.Context, key string, msg amqp.Publishing) error {
	return p.ch.PublishWithContext(ctx, exchange, key, false, false, msg)
}

// HoldsExpired publishes one hold.expired event per reclaimed hold so seat
// maps and waiting rooms can free the seats. Implements sweeper.Notifier.
func (p *Publisher) HoldsExpired(ctx context.Context, holds []domain.SeatHold) error {
	for _, h := range holds {
		payload, err := json.Marshal(map[string]interface{}{
			"hold_id":    h.ID,
			"event_id":   h.EventID,
			"seat_id":    h.SeatID,
			"session_id": h.SessionID,
			"expired_at": h.ExpiresAt.Format(time.RFC3339),
		})
		if err != nil {
			return err
		}
		msg := amqp.Publishing{
			MessageId:   uuid.New().String(),
			ContentType: "application/json",
			Body:        payload,
		}
		if err := p.Publish(ctx, "hold.expired", msg); err != nil {
			return err
		}
	}
	return nil
}
