package notify

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/tour-package-bookings/internal/domain"
	"github.com/robertarktes/tour-package-bookings/internal/observability"
)

// Deduper remembers which messages were already handled.
type Deduper interface {
	SetOnce(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

type Auditor interface {
	LogEvent(ctx context.Context, evt domain.Event) error
}

// Dispatcher turns booking events from the broker into audit entries and notifications.
// Nothing it does can fail the transition that produced the event.
type Dispatcher struct {
	dedupe   Deduper
	audit    Auditor
	notifier Notifier
	logger   observability.Logger
	dedupTTL time.Duration
	timeout  time.Duration
}

func NewDispatcher(dedupe Deduper, audit Auditor, notifier Notifier, logger observability.Logger) *Dispatcher {
	return &Dispatcher{
		dedupe:   dedupe,
		audit:    audit,
		notifier: notifier,
		logger:   logger,
		dedupTTL: 7 * 24 * time.Hour,
		timeout:  30 * time.Second,
	}
}

// Handle processes one message. It reports whether the message was new.
func (d *Dispatcher) Handle(ctx context.Context, messageID string, body []byte) bool {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var evt domain.Event
	if err := json.Unmarshal(body, &evt); err != nil {
		d.logger.WithError(err).WithField("message_id", messageID).Error("dropping malformed booking event")
		return false
	}
	if messageID == "" {
		messageID = evt.ID.String()
	}
	log := d.logger.WithFields(map[string]interface{}{
		"message_id": messageID,
		"event":      string(evt.Type),
		"booking_id": evt.Booking.ID,
	})

	fresh, err := d.dedupe.SetOnce(ctx, "notify:"+messageID, d.dedupTTL)
	if err != nil {
		log.WithError(err).Warn("dedupe unavailable, handling message anyway")
		fresh = true
	}
	if !fresh {
		log.Debug("duplicate booking event skipped")
		return false
	}

	if err := d.audit.LogEvent(ctx, evt); err != nil {
		log.WithError(err).Error("failed to write audit log")
	}

	if evt.Notify == domain.NotifyNone {
		return true
	}
	kind := string(evt.Notify)
	if evt.Booking.ContactEmail == "" {
		log.Warn("booking has no contact email, notification skipped")
		observability.NotificationFailures.WithLabelValues(kind).Inc()
		return true
	}

	to := Recipient{Name: evt.Booking.ContactName, Email: evt.Booking.ContactEmail, Phone: evt.Booking.ContactPhone}
	if err := d.notifier.Notify(ctx, evt.Notify, to, Payload{Booking: evt.Booking, Reason: evt.Reason}); err != nil {
		observability.NotificationFailures.WithLabelValues(kind).Inc()
		log.WithError(domain.NotificationFailure(evt.Notify, err)).Error("notification failed")
		return true
	}
	observability.NotificationsSent.WithLabelValues(kind).Inc()
	log.Info("notification sent")
	return true
}

// Consume handles deliveries until the channel closes or ctx ends. Every delivery is acked.
func (d *Dispatcher) Consume(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-deliveries:
			if !ok {
				return
			}
			d.Handle(ctx, msg.MessageId, msg.Body)
			if err := msg.Ack(false); err != nil {
				d.logger.WithError(err).WithField("message_id", msg.MessageId).Warn("failed to ack delivery")
			}
		}
	}
}
