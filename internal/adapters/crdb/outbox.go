package crdb

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/tour-package-bookings/internal/domain"
)

const (
	OutboxStatusNew  = "NEW"
	AggregateBooking = "booking"
)

type OutboxRecord struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   uuid.UUID
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Status        string // NEW, PUBLISHED, FAILED
	DedupeKey     string
	Attempts      int
}

// NewOutboxRecord serialises a booking event. The event id doubles as the dedupe key.
func NewOutboxRecord(evt domain.Event) (OutboxRecord, error) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return OutboxRecord{}, errors.Wrap(err, "encode outbox event")
	}
	return OutboxRecord{
		ID:            uuid.New(),
		AggregateType: AggregateBooking,
		AggregateID:   evt.Booking.ID,
		EventType:     string(evt.Type),
		Payload:       payload,
		CreatedAt:     evt.OccurredAt,
		Status:        OutboxStatusNew,
		DedupeKey:     evt.ID.String(),
	}, nil
}

func insertOutbox(ctx context.Context, tx pgx.Tx, record OutboxRecord) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload_json, status, dedupe_key, created_at)
		VALUES ($1, $2, $3, $4, $5, 'NEW', $6, $7)
	`, record.ID, record.AggregateType, record.AggregateID, record.EventType, record.Payload, record.DedupeKey, record.CreatedAt)
	return mapErr("insert outbox", err)
}

func (q *txQueries) InsertOutbox(ctx context.Context, evt domain.Event) error {
	record, err := NewOutboxRecord(evt)
	if err != nil {
		return err
	}
	return insertOutbox(ctx, q.tx, record)
}

// ProcessOutbox locks up to limit unpublished records and hands each to fn. Records fn accepts
// are marked published; rejected ones have their attempt count bumped and are parked as FAILED
// after maxAttempts. It returns the number of records published.
func (r *Repository) ProcessOutbox(ctx context.Context, limit, maxAttempts int, fn func(ctx context.Context, rec OutboxRecord) error) (int, error) {
	published := 0
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		published = 0
		records, err := claimOutbox(ctx, tx, limit)
		if err != nil {
			return err
		}
		for _, rec := range records {
			if err := fn(ctx, rec); err != nil {
				if _, err := tx.Exec(ctx, `
					UPDATE outbox SET attempts = attempts + 1,
						status = CASE WHEN attempts + 1 >= $2 THEN 'FAILED' ELSE 'NEW' END
					WHERE id = $1
				`, rec.ID, maxAttempts); err != nil {
					return mapErr("record outbox attempt", err)
				}
				continue
			}
			if err := markPublished(ctx, tx, rec.ID, time.Now().UTC()); err != nil {
				return err
			}
			published++
		}
		return nil
	})
	return published, err
}

func claimOutbox(ctx context.Context, tx pgx.Tx, limit int) ([]OutboxRecord, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload_json, created_at, published_at, status, dedupe_key, attempts
		FROM outbox WHERE status = 'NEW' ORDER BY created_at ASC LIMIT $1 FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, mapErr("claim outbox", err)
	}
	defer rows.Close()

	var records []OutboxRecord
	for rows.Next() {
		var rec OutboxRecord
		err := rows.Scan(&rec.ID, &rec.AggregateType, &rec.AggregateID, &rec.EventType, &rec.Payload, &rec.CreatedAt, &rec.PublishedAt, &rec.Status, &rec.DedupeKey, &rec.Attempts)
		if err != nil {
			return nil, mapErr("scan outbox", err)
		}
		records = append(records, rec)
	}
	return records, mapErr("claim outbox", rows.Err())
}

func markPublished(ctx context.Context, tx pgx.Tx, id uuid.UUID, publishedAt time.Time) error {
	_, err := tx.Exec(ctx, `
		UPDATE outbox SET status = 'PUBLISHED', published_at = $2 WHERE id = $1
	`, id, publishedAt)
	return mapErr("mark outbox published", err)
}

// PendingOutbox counts records still waiting to be published.
func (r *Repository) PendingOutbox(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM outbox WHERE status = 'NEW'`).Scan(&n)
	return n, mapErr("count outbox", err)
}
