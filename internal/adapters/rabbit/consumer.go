package rabbit

import (
	"context"

	"github.com/cockroachdb/errors"
	amqp "github.com/rabbitmq/amqp091-go"
)

type Consumer struct {
	ch    *amqp.Channel
	queue string
}

// NewConsumer declares a durable queue and binds it to the events exchange for each routing key.
func NewConsumer(conn *amqp.Connection, queue string, keys []string) (*Consumer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, errors.Wrap(err, "rabbit: open channel")
	}
	if err := declareExchange(ch); err != nil {
		ch.Close()
		return nil, errors.Wrap(err, "rabbit: declare exchange")
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		ch.Close()
		return nil, errors.Wrapf(err, "rabbit: declare queue %s", queue)
	}
	for _, key := range keys {
		if err := ch.QueueBind(queue, key, Exchange, false, nil); err != nil {
			ch.Close()
			return nil, errors.Wrapf(err, "rabbit: bind %s to %s", queue, key)
		}
	}
	if err := ch.Qos(16, 0, false); err != nil {
		ch.Close()
		return nil, errors.Wrap(err, "rabbit: qos")
	}
	return &Consumer{ch: ch, queue: queue}, nil
}

// Consume delivers messages with manual acknowledgement. The channel closes when ctx ends.
func (c *Consumer) Consume(ctx context.Context) (<-chan amqp.Delivery, error) {
	return c.ch.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
}

func (c *Consumer) Close() error {
	return c.ch.Close()
}
