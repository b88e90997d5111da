package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/tour-package-bookings/internal/adapters/crdb"
	"github.com/robertarktes/tour-package-bookings/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	records   []crdb.OutboxRecord
	published []uuid.UUID
	failed    map[uuid.UUID]int
}

func (s *fakeStore) ProcessOutbox(ctx context.Context, limit, _ int, fn func(context.Context, crdb.OutboxRecord) error) (int, error) {
	n := 0
	for i, rec := range s.records {
		if i >= limit {
			break
		}
		if err := fn(ctx, rec); err != nil {
			s.failed[rec.ID]++
			continue
		}
		s.published = append(s.published, rec.ID)
		n++
	}
	return n, nil
}

type fakeBroker struct {
	failFor  map[string]int
	messages []amqp.Publishing
	keys     []string
}

func (b *fakeBroker) Publish(_ context.Context, key string, msg amqp.Publishing) error {
	if b.failFor[msg.MessageId] > 0 {
		b.failFor[msg.MessageId]--
		return errors.New("channel closed")
	}
	b.keys = append(b.keys, key)
	b.messages = append(b.messages, msg)
	return nil
}

func record(eventType string) crdb.OutboxRecord {
	return crdb.OutboxRecord{
		ID:        uuid.New(),
		EventType: eventType,
		Payload:   []byte(`{}`),
		DedupeKey: uuid.NewString(),
		CreatedAt: time.Now().Add(-time.Second),
	}
}

func TestFlush_PublishesWithEventTypeAndDedupeKey(t *testing.T) {
	created, confirmed := record("booking.created"), record("booking.confirmed")
	store := &fakeStore{records: []crdb.OutboxRecord{created, confirmed}, failed: map[uuid.UUID]int{}}
	broker := &fakeBroker{failFor: map[string]int{}}
	p := NewPublisher(store, broker, observability.NewDiscardLogger(), Options{RetryDelay: time.Millisecond})

	n, err := p.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"booking.created", "booking.confirmed"}, broker.keys)
	assert.Equal(t, created.DedupeKey, broker.messages[0].MessageId)
	assert.Equal(t, amqp.Persistent, broker.messages[0].DeliveryMode)
}

func TestFlush_RetriesTransientPublishFailures(t *testing.T) {
	rec := record("booking.cancelled")
	store := &fakeStore{records: []crdb.OutboxRecord{rec}, failed: map[uuid.UUID]int{}}
	broker := &fakeBroker{failFor: map[string]int{rec.DedupeKey: 2}}
	p := NewPublisher(store, broker, observability.NewDiscardLogger(), Options{PublishTries: 3, RetryDelay: time.Millisecond})

	n, err := p.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, store.failed)
}

func TestFlush_LeavesRecordForNextRoundWhenBrokerIsDown(t *testing.T) {
	rec := record("booking.cancelled")
	store := &fakeStore{records: []crdb.OutboxRecord{rec}, failed: map[uuid.UUID]int{}}
	broker := &fakeBroker{failFor: map[string]int{rec.DedupeKey: 10}}
	p := NewPublisher(store, broker, observability.NewDiscardLogger(), Options{PublishTries: 2, RetryDelay: time.Millisecond})

	n, err := p.Flush(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, store.failed[rec.ID])
	assert.Empty(t, broker.messages)
}
