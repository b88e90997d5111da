package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type EventType string

const (
	EventBookingCreated   EventType = "booking.created"
	EventPaymentSubmitted EventType = "booking.payment_submitted"
	EventBookingConfirmed EventType = "booking.confirmed"
	EventPaymentRejected  EventType = "booking.payment_rejected"
	EventBookingCancelled EventType = "booking.cancelled"
	EventRemainderPaid    EventType = "booking.remainder_paid"
	EventNotesUpdated     EventType = "booking.notes_updated"
)

// NotificationKind names a message to send to the requester. Empty means no notification.
type NotificationKind string

const (
	NotifyNone             NotificationKind = ""
	NotifyBookingConfirmed NotificationKind = "booking-confirmed"
	NotifyBookingCancelled NotificationKind = "booking-cancelled"
	NotifyPaymentConfirmed NotificationKind = "payment-confirmed"
)

var notificationFor = map[EventType]NotificationKind{
	EventBookingConfirmed: NotifyBookingConfirmed,
	EventBookingCancelled: NotifyBookingCancelled,
	EventRemainderPaid:    NotifyPaymentConfirmed,
}

// Event is a booking state change recorded in the outbox in the same transaction as the change.
type Event struct {
	ID         uuid.UUID        `json:"id"`
	Type       EventType        `json:"type"`
	ActorID    uuid.UUID        `json:"actor_id"`
	ActorRole  Role             `json:"actor_role"`
	Notify     NotificationKind `json:"notify,omitempty"`
	Booking    BookingSnapshot  `json:"booking"`
	Reason     string           `json:"reason,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// BookingSnapshot is the part of a booking carried by events.
type BookingSnapshot struct {
	ID              uuid.UUID       `json:"id"`
	Reference       string          `json:"reference"`
	Status          Status          `json:"status"`
	PaymentState    PaymentState    `json:"payment_state"`
	PackageID       uuid.UUID       `json:"package_id"`
	PackageDateID   uuid.UUID       `json:"package_date_id"`
	PackageTitle    string          `json:"package_title"`
	TravelDate      time.Time       `json:"travel_date"`
	UserID          uuid.UUID       `json:"user_id"`
	ContactName     string          `json:"contact_name"`
	ContactEmail    string          `json:"contact_email,omitempty"`
	ContactPhone    string          `json:"contact_phone,omitempty"`
	TravelerCount   int             `json:"traveler_count"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	AdvancePaid     decimal.Decimal `json:"advance_paid"`
	RemainingAmount decimal.Decimal `json:"remaining_amount"`
	BalanceDue      decimal.Decimal `json:"balance_due"`
}

func NewEvent(t EventType, b *Booking, actor Principal, reason string, now time.Time) Event {
	return Event{
		ID:         uuid.New(),
		Type:       t,
		ActorID:    actor.UserID,
		ActorRole:  actor.Role,
		Notify:     notificationFor[t],
		Booking:    Snapshot(b),
		Reason:     reason,
		OccurredAt: now,
	}
}

func Snapshot(b *Booking) BookingSnapshot {
	return BookingSnapshot{
		ID:              b.ID,
		Reference:       b.Reference,
		Status:          b.Status,
		PaymentState:    b.PaymentState(),
		PackageID:       b.PackageID,
		PackageDateID:   b.PackageDateID,
		PackageTitle:    b.PackageTitle,
		TravelDate:      b.TravelDate,
		UserID:          b.UserID,
		ContactName:     b.ContactName,
		ContactEmail:    b.ContactEmail,
		ContactPhone:    b.ContactPhone,
		TravelerCount:   b.TravelerCount(),
		TotalAmount:     b.TotalAmount,
		AdvancePaid:     b.AdvancePaid,
		RemainingAmount: b.RemainingAmount,
		BalanceDue:      b.BalanceDue(),
	}
}
