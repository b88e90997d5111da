package http

import (
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/tour-package-bookings/internal/catalog"
	"github.com/robertarktes/tour-package-bookings/internal/domain"
	"github.com/shopspring/decimal"
)

type travelerDTO struct {
	Name        string `json:"name" validate:"required,max=120"`
	Age         int    `json:"age,omitempty" validate:"gte=0,lte=120"`
	Phone       string `json:"phone,omitempty" validate:"omitempty,max=32"`
	PaidAdvance bool   `json:"paid_advance,omitempty"`
}

type createBookingRequest struct {
	PackageID     uuid.UUID       `json:"package_id" validate:"required"`
	PackageDateID uuid.UUID       `json:"package_date_id" validate:"required"`
	ContactName   string          `json:"contact_name" validate:"required,max=120"`
	ContactEmail  string          `json:"contact_email" validate:"omitempty,email"`
	ContactPhone  string          `json:"contact_phone" validate:"omitempty,max=32"`
	Travelers     []travelerDTO   `json:"travelers" validate:"required,min=1,dive"`
	Advance       decimal.Decimal `json:"advance_amount"`
	ProofRef      string          `json:"payment_proof_ref" validate:"omitempty,max=512"`
	UTR           string          `json:"utr" validate:"omitempty,max=64"`
}

type paymentRequest struct {
	Amount   decimal.Decimal `json:"amount"`
	ProofRef string          `json:"payment_proof_ref" validate:"required,max=512"`
	UTR      string          `json:"utr" validate:"omitempty,max=64"`
}

type remainderRequest struct {
	ProofRef string `json:"payment_proof_ref" validate:"required,max=512"`
	UTR      string `json:"utr" validate:"omitempty,max=64"`
}

type decisionRequest struct {
	Decision string `json:"decision" validate:"required"`
	Note     string `json:"note" validate:"max=1000"`
}

type notesRequest struct {
	Notes string `json:"notes" validate:"max=4000"`
}

type bookingResponse struct {
	ID                uuid.UUID           `json:"id"`
	Reference         string              `json:"reference"`
	Status            domain.Status       `json:"status"`
	PaymentState      domain.PaymentState `json:"payment_state"`
	PackageID         uuid.UUID           `json:"package_id"`
	PackageDateID     uuid.UUID           `json:"package_date_id"`
	PackageTitle      string              `json:"package_title"`
	TravelDate        time.Time           `json:"travel_date"`
	UserID            uuid.UUID           `json:"user_id"`
	ContactName       string              `json:"contact_name"`
	ContactEmail      string              `json:"contact_email,omitempty"`
	ContactPhone      string              `json:"contact_phone,omitempty"`
	Travelers         []domain.Traveler   `json:"travelers"`
	TotalAmount       decimal.Decimal     `json:"total_amount"`
	RequiredAdvance   decimal.Decimal     `json:"required_advance"`
	AdvancePaid       decimal.Decimal     `json:"advance_paid"`
	RemainingAmount   decimal.Decimal     `json:"remaining_amount"`
	BalanceDue        decimal.Decimal     `json:"balance_due"`
	PaymentProofRef   *string             `json:"payment_proof_ref,omitempty"`
	UTR               *string             `json:"utr,omitempty"`
	FullPaymentDone   bool                `json:"full_payment_done"`
	RemainderProofRef *string             `json:"remainder_proof_ref,omitempty"`
	AdminNotes        string              `json:"admin_notes,omitempty"`
	CancelReason      string              `json:"cancel_reason,omitempty"`
	ConfirmedAt       *time.Time          `json:"confirmed_at,omitempty"`
	CancelledAt       *time.Time          `json:"cancelled_at,omitempty"`
	Version           int64               `json:"version"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

// toBookingResponse hides admin notes from customers.
func toBookingResponse(b *domain.Booking, viewer domain.Principal) bookingResponse {
	resp := bookingResponse{
		ID:                b.ID,
		Reference:         b.Reference,
		Status:            b.Status,
		PaymentState:      b.PaymentState(),
		PackageID:         b.PackageID,
		PackageDateID:     b.PackageDateID,
		PackageTitle:      b.PackageTitle,
		TravelDate:        b.TravelDate,
		UserID:            b.UserID,
		ContactName:       b.ContactName,
		ContactEmail:      b.ContactEmail,
		ContactPhone:      b.ContactPhone,
		Travelers:         b.Travelers,
		TotalAmount:       b.TotalAmount,
		RequiredAdvance:   b.RequiredAdvance(),
		AdvancePaid:       b.AdvancePaid,
		RemainingAmount:   b.RemainingAmount,
		BalanceDue:        b.BalanceDue(),
		PaymentProofRef:   b.PaymentProofRef,
		UTR:               b.UTR,
		FullPaymentDone:   b.FullPaymentDone,
		RemainderProofRef: b.RemainderProofRef,
		CancelReason:      b.CancelReason,
		ConfirmedAt:       b.ConfirmedAt,
		CancelledAt:       b.CancelledAt,
		Version:           b.Version,
		CreatedAt:         b.CreatedAt,
		UpdatedAt:         b.UpdatedAt,
	}
	if viewer.IsAdmin() {
		resp.AdminNotes = b.AdminNotes
	}
	return resp
}

type bookingPage struct {
	Items []bookingResponse `json:"items"`
	Total int               `json:"total"`
	Page  int               `json:"page"`
	Limit int               `json:"limit"`
}

type packageRequest struct {
	Title          string          `json:"title" validate:"required,max=200"`
	Destination    string          `json:"destination" validate:"required,max=200"`
	DurationDays   int             `json:"duration_days" validate:"required,gt=0"`
	PricePerHead   decimal.Decimal `json:"price_per_head"`
	AdvancePerHead decimal.Decimal `json:"advance_per_head"`
	MaxCapacity    int             `json:"max_capacity" validate:"required,gt=0"`
	Active         bool            `json:"active"`
}

func (p packageRequest) input() catalog.PackageInput {
	return catalog.PackageInput{
		Title:          p.Title,
		Destination:    p.Destination,
		DurationDays:   p.DurationDays,
		PricePerHead:   p.PricePerHead,
		AdvancePerHead: p.AdvancePerHead,
		MaxCapacity:    p.MaxCapacity,
		Active:         p.Active,
	}
}

type activeRequest struct {
	Active *bool `json:"active" validate:"required"`
}

type dateRequest struct {
	Date        string `json:"date" validate:"required,datetime=2006-01-02"`
	MaxBookings int    `json:"max_bookings" validate:"required,gt=0"`
}

type capacityRequest struct {
	MaxBookings int `json:"max_bookings" validate:"required,gt=0"`
}

type packageResponse struct {
	ID             uuid.UUID       `json:"id"`
	Title          string          `json:"title"`
	Destination    string          `json:"destination"`
	DurationDays   int             `json:"duration_days"`
	PricePerHead   decimal.Decimal `json:"price_per_head"`
	AdvancePerHead decimal.Decimal `json:"advance_per_head"`
	MaxCapacity    int             `json:"max_capacity"`
	Active         bool            `json:"active"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func toPackageResponse(p domain.Package) packageResponse {
	return packageResponse{
		ID:             p.ID,
		Title:          p.Title,
		Destination:    p.Destination,
		DurationDays:   p.DurationDays,
		PricePerHead:   p.PricePerHead,
		AdvancePerHead: p.AdvancePerHead,
		MaxCapacity:    p.MaxCapacity,
		Active:         p.Active,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

type dateResponse struct {
	ID              uuid.UUID `json:"id"`
	PackageID       uuid.UUID `json:"package_id"`
	Date            string    `json:"date"`
	MaxBookings     int       `json:"max_bookings"`
	CurrentBookings int       `json:"current_bookings"`
	Available       int       `json:"available"`
}

func toDateResponse(d domain.PackageDate) dateResponse {
	return dateResponse{
		ID:              d.ID,
		PackageID:       d.PackageID,
		Date:            d.Date.Format("2006-01-02"),
		MaxBookings:     d.MaxBookings,
		CurrentBookings: d.CurrentBookings,
		Available:       d.AvailableSeats(),
	}
}
