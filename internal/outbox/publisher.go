package outbox

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/seat-hold-engine/internal/adapters/crdb"
	"github.com/robertarktes/seat-hold-engine/internal/adapters/rabbit"
	"github.com/robertarktes/seat-hold-engine/internal/observability"
)

const (
	pollInterval = 5 * time.Second
	batchSize    = 50
)

// Publisher drains sale.finalized records from the transactional outbox to
// the seat event exchange. Records that fail to publish stay NEW and are
// retried on the next poll; consumers dedupe on the order id.
type Publisher struct {
	store     *crdb.Store
	rabbitPub *rabbit.Publisher
	logger    observability.Logger
}

func NewPublisher(store *crdb.Store, rabbitPub *rabbit.Publisher, logger observability.Logger) *Publisher {
	return &Publisher{store: store, rabbitPub: rabbitPub, logger: logger}
}

func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.drain(ctx); err != nil {
				p.logger.Error("outbox drain failed", err)
			}
		}
	}
}

func (p *Publisher) drain(ctx context.Context) error {
	records, err := p.store.GetUnpublishedOutbox(ctx, batchSize)
	if err != nil {
		return err
	}
	for _, rec := range records {
		msg := amqp.Publishing{
			MessageId:   rec.DedupeKey,
			ContentType: "application/json",
			Body:        rec.Payload,
		}
		if err := p.rabbitPub.Publish(ctx, rec.EventType, msg); err != nil {
			p.logger.WithField("outbox_id", rec.ID).Error("failed to publish outbox record", err)
			continue
		}
		if err := p.store.MarkPublished(ctx, rec.ID, time.Now()); err != nil {
			p.logger.WithField("outbox_id", rec.ID).Error("failed to mark outbox record published", err)
		}
	}
	return nil
}
