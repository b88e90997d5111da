package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/tour-package-bookings/internal/domain"
	"github.com/robertarktes/tour-package-bookings/internal/observability"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshot() domain.BookingSnapshot {
	return domain.BookingSnapshot{
		ID:            uuid.New(),
		Reference:     "BK-7Q2M4X",
		Status:        domain.StatusConfirmed,
		PackageTitle:  "Spiti <Valley>",
		TravelDate:    time.Date(2026, 11, 20, 0, 0, 0, 0, time.UTC),
		ContactName:   "Asha",
		ContactEmail:  "asha@example.com",
		TravelerCount: 2,
		TotalAmount:   decimal.NewFromInt(20000),
		AdvancePaid:   decimal.NewFromInt(4000),
		BalanceDue:    decimal.NewFromInt(16000),
	}
}

func TestEmailNotifier_SendsBrevoRequest(t *testing.T) {
	var got brevoPayload
	var apiKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey = r.Header.Get("api-key")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	n := NewEmailNotifier(EmailOptions{APIKey: "secret", SenderEmail: "trips@example.com", SenderName: "Trips", Endpoint: srv.URL})
	err := n.Notify(context.Background(), domain.NotifyBookingConfirmed,
		Recipient{Name: "Asha", Email: "asha@example.com"}, Payload{Booking: snapshot()})
	require.NoError(t, err)

	assert.Equal(t, "secret", apiKey)
	assert.Equal(t, "trips@example.com", got.Sender.Email)
	require.Len(t, got.To, 1)
	assert.Equal(t, "asha@example.com", got.To[0].Email)
	assert.Equal(t, "Booking BK-7Q2M4X confirmed", got.Subject)
	assert.Contains(t, got.HTMLContent, "Spiti &lt;Valley&gt;")
	assert.Contains(t, got.HTMLContent, "16000.00")
}

func TestEmailNotifier_ReportsProviderErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"unauthorized"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	n := NewEmailNotifier(EmailOptions{APIKey: "bad", SenderEmail: "trips@example.com", Endpoint: srv.URL})
	err := n.Notify(context.Background(), domain.NotifyBookingCancelled,
		Recipient{Email: "asha@example.com"}, Payload{Booking: snapshot(), Reason: "weather"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestEmailNotifier_RejectsInvalidRecipient(t *testing.T) {
	n := NewEmailNotifier(EmailOptions{APIKey: "k", SenderEmail: "trips@example.com", Endpoint: "http://127.0.0.1:0"})
	err := n.Notify(context.Background(), domain.NotifyBookingConfirmed, Recipient{Email: "nobody"}, Payload{Booking: snapshot()})
	require.Error(t, err)
}

type memDedupe struct {
	mu   sync.Mutex
	seen map[string]bool
	err  error
}

func (m *memDedupe) SetOnce(_ context.Context, key string, _ time.Duration) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen[key] {
		return false, nil
	}
	m.seen[key] = true
	return true, nil
}

type memAudit struct {
	events []domain.Event
	err    error
}

func (m *memAudit) LogEvent(_ context.Context, evt domain.Event) error {
	m.events = append(m.events, evt)
	return m.err
}

type recordingNotifier struct {
	calls []domain.NotificationKind
	to    []Recipient
	err   error
}

func (r *recordingNotifier) Notify(_ context.Context, kind domain.NotificationKind, to Recipient, _ Payload) error {
	r.calls = append(r.calls, kind)
	r.to = append(r.to, to)
	return r.err
}

func eventBody(t *testing.T, typ domain.EventType, notify domain.NotificationKind) (domain.Event, []byte) {
	t.Helper()
	evt := domain.Event{ID: uuid.New(), Type: typ, Notify: notify, Booking: snapshot(), Reason: "weather", OccurredAt: time.Now()}
	body, err := json.Marshal(evt)
	require.NoError(t, err)
	return evt, body
}

func TestDispatcher_DeliversOncePerMessage(t *testing.T) {
	audit := &memAudit{}
	notifier := &recordingNotifier{}
	d := NewDispatcher(&memDedupe{seen: map[string]bool{}}, audit, notifier, observability.NewDiscardLogger())

	evt, body := eventBody(t, domain.EventBookingConfirmed, domain.NotifyBookingConfirmed)
	assert.True(t, d.Handle(context.Background(), evt.ID.String(), body))
	assert.False(t, d.Handle(context.Background(), evt.ID.String(), body))

	assert.Len(t, audit.events, 1)
	assert.Equal(t, []domain.NotificationKind{domain.NotifyBookingConfirmed}, notifier.calls)
	assert.Equal(t, "asha@example.com", notifier.to[0].Email)
}

func TestDispatcher_AuditsEventsWithoutNotification(t *testing.T) {
	audit := &memAudit{}
	notifier := &recordingNotifier{}
	d := NewDispatcher(&memDedupe{seen: map[string]bool{}}, audit, notifier, observability.NewDiscardLogger())

	_, body := eventBody(t, domain.EventPaymentRejected, domain.NotifyNone)
	assert.True(t, d.Handle(context.Background(), "", body))
	assert.Len(t, audit.events, 1)
	assert.Empty(t, notifier.calls)
}

func TestDispatcher_SwallowsFailures(t *testing.T) {
	audit := &memAudit{err: errors.New("mongo down")}
	notifier := &recordingNotifier{err: errors.New("smtp down")}
	d := NewDispatcher(&memDedupe{err: errors.New("redis down")}, audit, notifier, observability.NewDiscardLogger())

	evt, body := eventBody(t, domain.EventBookingCancelled, domain.NotifyBookingCancelled)
	assert.True(t, d.Handle(context.Background(), evt.ID.String(), body))
	assert.Len(t, notifier.calls, 1)

	assert.False(t, d.Handle(context.Background(), "junk", []byte("{not json")))
}
