package mongo

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/tour-package-bookings/internal/domain"
	"github.com/robertarktes/tour-package-bookings/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type AuditLogger struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditLogger(db *mongo.Database, logger observability.Logger) *AuditLogger {
	return &AuditLogger{
		coll:   db.Collection("audit_logs"),
		logger: logger,
	}
}

// AuditLog is one booking state change. _id is the event id, so replays overwrite.
type AuditLog struct {
	ID        string    `bson:"_id"`
	Action    string    `bson:"action"`
	BookingID string    `bson:"booking_id"`
	Reference string    `bson:"reference"`
	ActorID   string    `bson:"actor_id"`
	ActorRole string    `bson:"actor_role"`
	Status    string    `bson:"status"`
	Reason    string    `bson:"reason,omitempty"`
	Timestamp time.Time `bson:"timestamp"`
	Data      bson.M    `bson:"data"`
}

func (a *AuditLogger) LogEvent(ctx context.Context, evt domain.Event) error {
	b := evt.Booking
	log := AuditLog{
		ID:        evt.ID.String(),
		Action:    string(evt.Type),
		BookingID: b.ID.String(),
		Reference: b.Reference,
		ActorID:   evt.ActorID.String(),
		ActorRole: string(evt.ActorRole),
		Status:    string(b.Status),
		Reason:    evt.Reason,
		Timestamp: evt.OccurredAt,
		Data: bson.M{
			"package_date_id":  b.PackageDateID.String(),
			"travel_date":      b.TravelDate,
			"traveler_count":   b.TravelerCount,
			"payment_state":    string(b.PaymentState),
			"total_amount":     b.TotalAmount.String(),
			"advance_paid":     b.AdvancePaid.String(),
			"remaining_amount": b.RemainingAmount.String(),
		},
	}
	_, err := a.coll.ReplaceOne(ctx, bson.M{"_id": log.ID}, log, options.Replace().SetUpsert(true))
	if err != nil {
		a.logger.WithError(err).WithField("event_id", log.ID).Error("failed to insert audit log")
		return errors.Wrap(err, "mongo: audit log")
	}
	return nil
}

// History returns the audit trail of a booking, oldest first.
func (a *AuditLogger) History(ctx context.Context, bookingID uuid.UUID) ([]AuditLog, error) {
	cur, err := a.coll.Find(ctx, bson.M{"booking_id": bookingID.String()},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}}))
	if err != nil {
		return nil, errors.Wrap(err, "mongo: audit history")
	}
	defer cur.Close(ctx)

	var logs []AuditLog
	if err := cur.All(ctx, &logs); err != nil {
		return nil, errors.Wrap(err, "mongo: decode audit history")
	}
	return logs, nil
}
