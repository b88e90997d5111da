package domain

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const referenceChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Booking is a reservation of seats on a package date. Bookings are never deleted;
// cancellation is a status.
type Booking struct {
	ID            uuid.UUID
	Reference     string
	PackageID     uuid.UUID
	PackageDateID uuid.UUID
	PackageTitle  string
	TravelDate    time.Time
	UserID        uuid.UUID
	ContactName   string
	ContactEmail  string
	ContactPhone  string
	Travelers     []Traveler

	PricePerHead    decimal.Decimal
	AdvancePerHead  decimal.Decimal
	TotalAmount     decimal.Decimal
	AdvancePaid     decimal.Decimal
	RemainingAmount decimal.Decimal
	PaymentProofRef *string
	UTR             *string

	Status       Status
	SeatsCounted bool
	AdminNotes   string
	CancelReason string

	FullPaymentDone   bool
	RemainderPaid     decimal.Decimal
	RemainderProofRef *string
	RemainderUTR      *string

	PaymentSubmittedAt *time.Time
	ConfirmedAt        *time.Time
	CancelledAt        *time.Time
	RemainderPaidAt    *time.Time

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewBookingParams carries everything needed to open a booking.
type NewBookingParams struct {
	Package      Package
	Date         PackageDate
	UserID       uuid.UUID
	ContactName  string
	ContactEmail string
	ContactPhone string
	Travelers    []Traveler
	Advance      decimal.Decimal
	ProofRef     string
	UTR          string
	Now          time.Time
}

// NewBooking validates p and returns a pending booking. The date counter is not touched:
// seats are only counted once the booking is confirmed.
func NewBooking(p NewBookingParams) (*Booking, error) {
	if p.UserID == uuid.Nil {
		return nil, Validationf("requester is required")
	}
	if !p.Package.Active {
		return nil, Validationf("package %q is not available for booking", p.Package.Title)
	}
	if p.Date.PackageID != p.Package.ID {
		return nil, Validationf("the selected date does not belong to package %q", p.Package.Title)
	}
	if startOfDay(p.Date.Date).Before(startOfDay(p.Now)) {
		return nil, Validationf("the selected date %s is in the past", p.Date.Date.Format("2006-01-02"))
	}
	if len(p.Travelers) == 0 {
		return nil, Validationf("at least one traveler is required")
	}
	for _, t := range p.Travelers {
		if err := t.Validate(); err != nil {
			return nil, err
		}
	}
	if p.Advance.IsNegative() {
		return nil, Validationf("advance amount cannot be negative")
	}
	if !p.Date.CanAccommodate(len(p.Travelers)) {
		return nil, CapacityExceeded(p.Date.AvailableSeats(), len(p.Travelers))
	}

	total := p.Package.PricePerHead.Mul(decimal.NewFromInt(int64(len(p.Travelers))))
	if p.Advance.GreaterThan(total) {
		return nil, Validationf("advance amount %s exceeds the total of %s", p.Advance, total)
	}

	ref, err := generateReference()
	if err != nil {
		return nil, err
	}

	b := &Booking{
		ID:             uuid.New(),
		Reference:      ref,
		PackageID:      p.Package.ID,
		PackageDateID:  p.Date.ID,
		PackageTitle:   p.Package.Title,
		TravelDate:     p.Date.Date,
		UserID:         p.UserID,
		ContactName:    strings.TrimSpace(p.ContactName),
		ContactEmail:   strings.TrimSpace(p.ContactEmail),
		ContactPhone:   strings.TrimSpace(p.ContactPhone),
		Travelers:      append([]Traveler(nil), p.Travelers...),
		PricePerHead:   p.Package.PricePerHead,
		AdvancePerHead: p.Package.AdvancePerHead,
		TotalAmount:    total,
		AdvancePaid:    p.Advance,
		Status:         StatusPending,
		Version:        1,
		CreatedAt:      p.Now,
		UpdatedAt:      p.Now,
	}
	if ref := strings.TrimSpace(p.ProofRef); ref != "" {
		b.PaymentProofRef = &ref
	}
	if utr := strings.TrimSpace(p.UTR); utr != "" {
		b.UTR = &utr
	}
	b.recompute()
	return b, nil
}

func generateReference() (string, error) {
	out := make([]byte, 6)
	for i := range out {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(referenceChars))))
		if err != nil {
			return "", fmt.Errorf("failed to generate booking reference: %w", err)
		}
		out[i] = referenceChars[n.Int64()]
	}
	return "BK-" + string(out), nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (b *Booking) TravelerCount() int { return len(b.Travelers) }

// RequiredAdvance is the package's advance per head for the whole party.
func (b *Booking) RequiredAdvance() decimal.Decimal {
	return b.AdvancePerHead.Mul(decimal.NewFromInt(int64(len(b.Travelers))))
}

// BalanceDue is what is still owed after the advance and any remainder payment.
func (b *Booking) BalanceDue() decimal.Decimal {
	if b.FullPaymentDone {
		return decimal.Zero
	}
	return b.RemainingAmount.Sub(b.RemainderPaid)
}

func (b *Booking) PaymentState() PaymentState {
	switch {
	case b.Status == StatusCancelled:
		return PaymentVoid
	case b.FullPaymentDone:
		return PaymentPaidInFull
	case b.Status == StatusConfirmed:
		return PaymentAdvanceVerified
	case b.PaymentProofRef != nil && b.AdvancePaid.IsPositive():
		return PaymentAdvanceSubmitted
	}
	return PaymentUnpaid
}

func (b *Booking) OwnedBy(p Principal) bool {
	return p.UserID != uuid.Nil && p.UserID == b.UserID
}

// recompute keeps RemainingAmount derived from the total and the advance.
func (b *Booking) recompute() {
	b.RemainingAmount = b.TotalAmount.Sub(b.AdvancePaid)
}

func (b *Booking) touch(now time.Time) {
	b.UpdatedAt = now
	b.recompute()
}

// RecordPayment attaches an advance payment proof and moves the booking to pending_payment.
func (b *Booking) RecordPayment(amount decimal.Decimal, proofRef, utr string, now time.Time) error {
	if b.Status != StatusPending {
		return InvalidTransition(b.Status, "record a payment for")
	}
	if !amount.IsPositive() {
		return Validationf("payment amount must be positive")
	}
	if amount.GreaterThan(b.TotalAmount) {
		return Validationf("payment amount %s exceeds the total of %s", amount, b.TotalAmount)
	}
	proofRef = strings.TrimSpace(proofRef)
	if proofRef == "" {
		return Validationf("payment proof is required")
	}

	b.AdvancePaid = amount
	b.PaymentProofRef = &proofRef
	if utr = strings.TrimSpace(utr); utr != "" {
		b.UTR = &utr
	} else {
		b.UTR = nil
	}
	b.Status = StatusPendingPayment
	b.PaymentSubmittedAt = &now
	b.touch(now)
	return nil
}

// Confirm marks the booking confirmed and returns how many seats must be reserved on its date.
func (b *Booking) Confirm(now time.Time) (int, error) {
	if !b.Status.CanTransitionTo(StatusConfirmed) {
		return 0, InvalidTransition(b.Status, "confirm")
	}
	if !b.AdvancePaid.IsPositive() {
		return 0, Validationf("cannot confirm booking %s without an advance payment", b.Reference)
	}
	if b.PaymentProofRef == nil || *b.PaymentProofRef == "" {
		return 0, Validationf("cannot confirm booking %s without a payment proof", b.Reference)
	}

	seats := 0
	if !b.SeatsCounted {
		seats = b.TravelerCount()
		b.SeatsCounted = true
	}
	b.Status = StatusConfirmed
	b.ConfirmedAt = &now
	b.touch(now)
	return seats, nil
}

// RejectPayment discards the submitted advance and returns the booking to pending. A pending
// booking qualifies when a proof was attached at creation.
func (b *Booking) RejectPayment(now time.Time) error {
	switch {
	case b.Status == StatusPendingPayment:
	case b.Status == StatusPending && b.PaymentState() == PaymentAdvanceSubmitted:
	default:
		return InvalidTransition(b.Status, "reject the payment of")
	}
	b.AdvancePaid = decimal.Zero
	b.PaymentProofRef = nil
	b.UTR = nil
	b.PaymentSubmittedAt = nil
	b.Status = StatusPending
	b.touch(now)
	return nil
}

// Cancel cancels the booking. It returns the number of seats to release on the date and
// whether anything changed; cancelling a cancelled booking is a no-op.
func (b *Booking) Cancel(reason string, now time.Time) (int, bool, error) {
	if b.Status == StatusCancelled {
		return 0, false, nil
	}
	if !b.Status.CanTransitionTo(StatusCancelled) {
		return 0, false, InvalidTransition(b.Status, "cancel")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return 0, false, Validationf("a cancellation reason is required")
	}

	seats := 0
	if b.SeatsCounted {
		seats = b.TravelerCount()
		b.SeatsCounted = false
	}
	b.Status = StatusCancelled
	b.CancelReason = reason
	b.CancelledAt = &now
	b.touch(now)
	return seats, true, nil
}

// SubmitRemainder settles the remaining balance of a confirmed booking. It is the only way
// FullPaymentDone becomes true.
func (b *Booking) SubmitRemainder(proofRef, utr string, now time.Time) error {
	if b.Status != StatusConfirmed {
		return newError(ErrInvalidTransition, "the remaining balance can only be paid on a confirmed booking")
	}
	if b.FullPaymentDone {
		return newError(ErrInvalidTransition, "the remaining balance of booking %s is already paid", b.Reference)
	}
	proofRef = strings.TrimSpace(proofRef)
	if proofRef == "" {
		return Validationf("payment proof is required")
	}

	b.RemainderPaid = b.RemainingAmount
	b.RemainderProofRef = &proofRef
	if utr = strings.TrimSpace(utr); utr != "" {
		b.RemainderUTR = &utr
	}
	b.FullPaymentDone = true
	b.RemainderPaidAt = &now
	b.touch(now)
	return nil
}

// SetAdminNotes replaces the administrator notes. Notes can be edited in any status.
func (b *Booking) SetAdminNotes(notes string, now time.Time) {
	b.AdminNotes = strings.TrimSpace(notes)
	b.touch(now)
}

// IncrementVersion bumps the version used for optimistic locking.
func (b *Booking) IncrementVersion() {
	b.Version++
}

// Normalize recomputes derived fields after loading a booking from storage.
func (b *Booking) Normalize() {
	b.recompute()
}

// BookingFilter narrows booking listings.
type BookingFilter struct {
	Status        *Status
	UserID        *uuid.UUID
	PackageDateID *uuid.UUID
	CreatedBefore *time.Time
	Page          int
	Limit         int
}

func (f BookingFilter) Normalized() BookingFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = 20
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	return f
}

func (f BookingFilter) Offset() int {
	n := f.Normalized()
	return (n.Page - 1) * n.Limit
}
