// Package outbox relays booking events committed to the outbox table onto RabbitMQ.
package outbox

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/tour-package-bookings/internal/adapters/crdb"
	"github.com/robertarktes/tour-package-bookings/internal/observability"
)

type Store interface {
	ProcessOutbox(ctx context.Context, limit, maxAttempts int, fn func(ctx context.Context, rec crdb.OutboxRecord) error) (int, error)
}

type Broker interface {
	Publish(ctx context.Context, key string, msg amqp.Publishing) error
}

type Options struct {
	Interval     time.Duration
	BatchSize    int
	MaxAttempts  int
	PublishTries int
	RetryDelay   time.Duration
}

type Publisher struct {
	store  Store
	broker Broker
	logger observability.Logger
	opts   Options
}

func NewPublisher(store Store, broker Broker, logger observability.Logger, opts Options) *Publisher {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 10
	}
	if opts.PublishTries <= 0 {
		opts.PublishTries = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 200 * time.Millisecond
	}
	return &Publisher{store: store, broker: broker, logger: logger, opts: opts}
}

// Run flushes the outbox every interval until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) {
	p.logger.WithField("interval", p.opts.Interval.String()).Info("outbox publisher started")
	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("outbox publisher stopped")
			return
		case <-ticker.C:
			if _, err := p.Flush(ctx); err != nil && ctx.Err() == nil {
				p.logger.WithError(err).Error("outbox flush failed")
			}
		}
	}
}

// Flush publishes one batch and returns how many records were published.
func (p *Publisher) Flush(ctx context.Context) (int, error) {
	n, err := p.store.ProcessOutbox(ctx, p.opts.BatchSize, p.opts.MaxAttempts, p.publish)
	if err != nil {
		return 0, errors.Wrap(err, "process outbox")
	}
	if n > 0 {
		p.logger.WithField("published", n).Debug("outbox batch published")
	}
	return n, nil
}

func (p *Publisher) publish(ctx context.Context, rec crdb.OutboxRecord) error {
	msg := amqp.Publishing{
		MessageId:    rec.DedupeKey,
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    rec.CreatedAt,
		Type:         rec.EventType,
		Body:         rec.Payload,
	}

	var err error
	for try := 0; try < p.opts.PublishTries; try++ {
		if try > 0 {
			observability.RabbitPublishRetries.Inc()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.opts.RetryDelay):
			}
		}
		if err = p.broker.Publish(ctx, rec.EventType, msg); err == nil {
			observability.OutboxLag.Set(time.Since(rec.CreatedAt).Seconds())
			return nil
		}
	}

	p.logger.WithError(err).WithFields(map[string]interface{}{
		"outbox_id":  rec.ID,
		"event_type": rec.EventType,
		"attempts":   rec.Attempts + 1,
	}).Warn("failed to publish outbox record")
	return errors.Wrapf(err, "publish %s", rec.DedupeKey)
}
