package http

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mongoadapter "github.com/robertarktes/tour-package-bookings/internal/adapters/mongo"
	"github.com/robertarktes/tour-package-bookings/internal/booking"
	"github.com/robertarktes/tour-package-bookings/internal/catalog"
	"github.com/robertarktes/tour-package-bookings/internal/domain"
	"github.com/shopspring/decimal"
)

type BookingService interface {
	CreateBooking(ctx context.Context, actor domain.Principal, in booking.CreateBookingInput) (*domain.Booking, error)
	RecordPayment(ctx context.Context, actor domain.Principal, id uuid.UUID, amount decimal.Decimal, proofRef, utr string) (*domain.Booking, error)
	Decide(ctx context.Context, actor domain.Principal, id uuid.UUID, decision domain.Decision, note string) (*domain.Booking, error)
	SubmitRemainder(ctx context.Context, actor domain.Principal, id uuid.UUID, proofRef, utr string) (*domain.Booking, error)
	UpdateAdminNotes(ctx context.Context, actor domain.Principal, id uuid.UUID, notes string) (*domain.Booking, error)
	GetBooking(ctx context.Context, actor domain.Principal, id uuid.UUID) (*domain.Booking, error)
	ListBookings(ctx context.Context, actor domain.Principal, f domain.BookingFilter) (booking.Page, error)
	Stats(ctx context.Context, actor domain.Principal) (booking.Stats, error)
}

type CatalogService interface {
	CreatePackage(ctx context.Context, actor domain.Principal, in catalog.PackageInput) (domain.Package, error)
	UpdatePackage(ctx context.Context, actor domain.Principal, id uuid.UUID, in catalog.PackageInput) (domain.Package, error)
	SetPackageActive(ctx context.Context, actor domain.Principal, id uuid.UUID, active bool) error
	DeletePackage(ctx context.Context, actor domain.Principal, id uuid.UUID) error
	AddDate(ctx context.Context, actor domain.Principal, packageID uuid.UUID, date time.Time, maxBookings int) (domain.PackageDate, error)
	UpdateDateCapacity(ctx context.Context, actor domain.Principal, dateID uuid.UUID, maxBookings int) (domain.PackageDate, error)
	DeleteDate(ctx context.Context, actor domain.Principal, dateID uuid.UUID) error
	SaveDetails(ctx context.Context, actor domain.Principal, packageID uuid.UUID, d mongoadapter.PackageDetails) error
	ListActivePackages(ctx context.Context) ([]domain.Package, error)
	ListPackages(ctx context.Context, actor domain.Principal) ([]domain.Package, error)
	GetPackage(ctx context.Context, actor domain.Principal, id uuid.UUID) (catalog.PackageView, error)
	Availability(ctx context.Context, packageID uuid.UUID) ([]catalog.DateAvailability, error)
}

type ProofUploader interface {
	Upload(ctx context.Context, userID uuid.UUID, file io.Reader) (string, error)
}

// Check is a named readiness probe against one backing service.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

type Handlers struct {
	bookings BookingService
	catalog  CatalogService
	proofs   ProofUploader
	checks   []Check
}

// NewHandlers wires the handlers. proofs may be nil when uploads are not configured.
func NewHandlers(bookings BookingService, catalog CatalogService, proofs ProofUploader, checks ...Check) *Handlers {
	return &Handlers{bookings: bookings, catalog: catalog, proofs: proofs, checks: checks}
}

func pathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, domain.Validationf("invalid %s", name)
	}
	return id, nil
}
