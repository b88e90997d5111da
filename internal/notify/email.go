package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/tour-package-bookings/internal/domain"
	"golang.org/x/time/rate"
)

const brevoEndpoint = "https://api.brevo.com/v3/smtp/email"

type EmailOptions struct {
	APIKey      string
	SenderEmail string
	SenderName  string
	// RatePerSec caps outgoing requests. Zero means 5 per second.
	RatePerSec float64
	Endpoint   string
	Client     *http.Client
}

// EmailNotifier sends transactional email through the Brevo HTTP API.
type EmailNotifier struct {
	opts    EmailOptions
	limiter *rate.Limiter
}

func NewEmailNotifier(opts EmailOptions) *EmailNotifier {
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = 5
	}
	if opts.Endpoint == "" {
		opts.Endpoint = brevoEndpoint
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 10 * time.Second}
	}
	burst := int(opts.RatePerSec)
	if burst < 1 {
		burst = 1
	}
	return &EmailNotifier{opts: opts, limiter: rate.NewLimiter(rate.Limit(opts.RatePerSec), burst)}
}

type brevoContact struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

type brevoPayload struct {
	Sender      brevoContact   `json:"sender"`
	To          []brevoContact `json:"to"`
	Subject     string         `json:"subject"`
	HTMLContent string         `json:"htmlContent"`
}

func (n *EmailNotifier) Notify(ctx context.Context, kind domain.NotificationKind, to Recipient, p Payload) error {
	if !strings.Contains(to.Email, "@") {
		return errors.Newf("invalid recipient email %q", to.Email)
	}
	subject, content, err := compose(kind, to, p)
	if err != nil {
		return err
	}

	body, err := json.Marshal(brevoPayload{
		Sender:      brevoContact{Name: n.opts.SenderName, Email: n.opts.SenderEmail},
		To:          []brevoContact{{Name: to.Name, Email: to.Email}},
		Subject:     subject,
		HTMLContent: content,
	})
	if err != nil {
		return errors.Wrap(err, "encode email")
	}

	if err := n.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "email rate limit")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.opts.Endpoint, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build email request")
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("content-type", "application/json")
	req.Header.Set("api-key", n.opts.APIKey)

	resp, err := n.opts.Client.Do(req)
	if err != nil {
		return errors.Wrap(err, "send email")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return errors.Newf("email provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

func compose(kind domain.NotificationKind, to Recipient, p Payload) (string, string, error) {
	b := p.Booking
	name := to.Name
	if name == "" {
		name = "traveler"
	}
	date := b.TravelDate.Format("2 Jan 2006")
	greeting := fmt.Sprintf("<p>Hello %s,</p>", html.EscapeString(name))

	switch kind {
	case domain.NotifyBookingConfirmed:
		return fmt.Sprintf("Booking %s confirmed", b.Reference),
			greeting + fmt.Sprintf("<p>Your booking <b>%s</b> for %s on %s is confirmed for %d traveler(s).</p><p>Advance received: %s. Balance due: %s.</p>",
				html.EscapeString(b.Reference), html.EscapeString(b.PackageTitle), date, b.TravelerCount,
				b.AdvancePaid.StringFixed(2), b.BalanceDue.StringFixed(2)), nil
	case domain.NotifyBookingCancelled:
		return fmt.Sprintf("Booking %s cancelled", b.Reference),
			greeting + fmt.Sprintf("<p>Your booking <b>%s</b> for %s on %s has been cancelled.</p><p>Reason: %s</p>",
				html.EscapeString(b.Reference), html.EscapeString(b.PackageTitle), date, html.EscapeString(p.Reason)), nil
	case domain.NotifyPaymentConfirmed:
		return fmt.Sprintf("Payment received for %s", b.Reference),
			greeting + fmt.Sprintf("<p>We received the full payment of %s for booking <b>%s</b>. See you on %s.</p>",
				b.TotalAmount.StringFixed(2), html.EscapeString(b.Reference), date), nil
	}
	return "", "", errors.Newf("unknown notification kind %q", kind)
}
