// Package notify delivers the notification intents carried by booking events.
package notify

import (
	"context"

	"github.com/robertarktes/tour-package-bookings/internal/domain"
	"github.com/robertarktes/tour-package-bookings/internal/observability"
)

type Recipient struct {
	Name  string
	Email string
	Phone string
}

// Payload is what a message about a booking may mention.
type Payload struct {
	Booking domain.BookingSnapshot
	Reason  string
}

type Notifier interface {
	Notify(ctx context.Context, kind domain.NotificationKind, to Recipient, p Payload) error
}

// LogNotifier writes notifications to the log. Used when no email provider is configured.
type LogNotifier struct {
	logger observability.Logger
}

func NewLogNotifier(logger observability.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, kind domain.NotificationKind, to Recipient, p Payload) error {
	n.logger.WithFields(map[string]interface{}{
		"kind":      string(kind),
		"recipient": to.Email,
		"reference": p.Booking.Reference,
		"reason":    p.Reason,
	}).Info("notification")
	return nil
}
