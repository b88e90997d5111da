package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Package is a bookable trip template.
type Package struct {
	ID             uuid.UUID
	Title          string
	Destination    string
	DurationDays   int
	PricePerHead   decimal.Decimal
	AdvancePerHead decimal.Decimal
	MaxCapacity    int
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (p Package) Validate() error {
	switch {
	case strings.TrimSpace(p.Title) == "":
		return Validationf("package title is required")
	case strings.TrimSpace(p.Destination) == "":
		return Validationf("package destination is required")
	case p.DurationDays <= 0:
		return Validationf("package duration must be at least one day")
	case !p.PricePerHead.IsPositive():
		return Validationf("price per head must be positive")
	case p.AdvancePerHead.IsNegative():
		return Validationf("advance per head cannot be negative")
	case p.AdvancePerHead.GreaterThan(p.PricePerHead):
		return Validationf("advance per head cannot exceed the price per head")
	case p.MaxCapacity <= 0:
		return Validationf("package capacity must be positive")
	}
	return nil
}

// PackageDate is one scheduled occurrence of a package. 0 <= CurrentBookings <= MaxBookings.
type PackageDate struct {
	ID              uuid.UUID
	PackageID       uuid.UUID
	Date            time.Time
	MaxBookings     int
	CurrentBookings int
	CreatedAt       time.Time
}

func (d PackageDate) AvailableSeats() int {
	if n := d.MaxBookings - d.CurrentBookings; n > 0 {
		return n
	}
	return 0
}

func (d PackageDate) CanAccommodate(travelers int) bool {
	return travelers > 0 && travelers <= d.AvailableSeats()
}

func (d PackageDate) Validate(pkg Package) error {
	if d.Date.IsZero() {
		return Validationf("date is required")
	}
	if d.MaxBookings <= 0 {
		return Validationf("max bookings must be positive")
	}
	if pkg.MaxCapacity > 0 && d.MaxBookings > pkg.MaxCapacity {
		return Validationf("max bookings cannot exceed the package capacity of %d", pkg.MaxCapacity)
	}
	if d.CurrentBookings < 0 || d.CurrentBookings > d.MaxBookings {
		return Validationf("current bookings must stay between 0 and %d", d.MaxBookings)
	}
	return nil
}

// Traveler is a member of a booking's party.
type Traveler struct {
	Name        string `json:"name"`
	Age         int    `json:"age,omitempty"`
	Phone       string `json:"phone,omitempty"`
	PaidAdvance bool   `json:"paid_advance,omitempty"`
}

func (t Traveler) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return Validationf("traveler name is required")
	}
	if t.Age < 0 {
		return Validationf("age of %s cannot be negative", t.Name)
	}
	if t.Age == 0 && strings.TrimSpace(t.Phone) == "" {
		return Validationf("traveler %s needs an age or a phone number", t.Name)
	}
	return nil
}

// Principal is the authenticated caller of an operation.
type Principal struct {
	UserID uuid.UUID
	Role   Role
}

type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
	RoleSystem   Role = "system"
)

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin || p.Role == RoleSystem
}

func (p Principal) IsAnonymous() bool {
	return p.UserID == uuid.Nil && p.Role != RoleSystem
}

// SystemPrincipal acts on behalf of background jobs.
func SystemPrincipal() Principal {
	return Principal{Role: RoleSystem}
}
