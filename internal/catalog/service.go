// Package catalog manages travel packages, their scheduled dates and the public availability view.
package catalog

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	mongoadapter "github.com/robertarktes/tour-package-bookings/internal/adapters/mongo"
	"github.com/robertarktes/tour-package-bookings/internal/domain"
	"github.com/robertarktes/tour-package-bookings/internal/observability"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

type Store interface {
	GetPackage(ctx context.Context, id uuid.UUID) (domain.Package, error)
	ListPackages(ctx context.Context, activeOnly bool) ([]domain.Package, error)
	CreatePackage(ctx context.Context, p domain.Package) error
	UpdatePackage(ctx context.Context, p domain.Package) error
	SetPackageActive(ctx context.Context, id uuid.UUID, active bool, now time.Time) error
	DeletePackage(ctx context.Context, id uuid.UUID) error
	GetPackageDate(ctx context.Context, id uuid.UUID) (domain.PackageDate, error)
	AddDate(ctx context.Context, d domain.PackageDate) error
	ListDates(ctx context.Context, packageID uuid.UUID, from time.Time) ([]domain.PackageDate, error)
	UpdateDateCapacity(ctx context.Context, id uuid.UUID, maxBookings int) (domain.PackageDate, error)
	DeleteDate(ctx context.Context, id uuid.UUID) error
}

type DetailsStore interface {
	Get(ctx context.Context, packageID uuid.UUID) (*mongoadapter.PackageDetails, error)
	Save(ctx context.Context, d mongoadapter.PackageDetails) error
	Delete(ctx context.Context, packageID uuid.UUID) error
}

type Cache interface {
	GetAvailability(ctx context.Context, packageID uuid.UUID) ([]byte, bool, error)
	SetAvailability(ctx context.Context, packageID uuid.UUID, data []byte, ttl time.Duration) error
	InvalidateAvailability(ctx context.Context, packageID uuid.UUID) error
}

type Options struct {
	Timeout  time.Duration
	CacheTTL time.Duration
	Clock    func() time.Time
}

type Service struct {
	store   Store
	details DetailsStore
	cache   Cache
	logger  observability.Logger
	opts    Options
}

func NewService(store Store, details DetailsStore, cache Cache, logger observability.Logger, opts Options) *Service {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 30 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return time.Now().UTC() }
	}
	return &Service{store: store, details: details, cache: cache, logger: logger, opts: opts}
}

type PackageInput struct {
	Title          string
	Destination    string
	DurationDays   int
	PricePerHead   decimal.Decimal
	AdvancePerHead decimal.Decimal
	MaxCapacity    int
	Active         bool
}

func (in PackageInput) apply(p *domain.Package) {
	p.Title = strings.TrimSpace(in.Title)
	p.Destination = strings.TrimSpace(in.Destination)
	p.DurationDays = in.DurationDays
	p.PricePerHead = in.PricePerHead
	p.AdvancePerHead = in.AdvancePerHead
	p.MaxCapacity = in.MaxCapacity
	p.Active = in.Active
}

// DateAvailability is the public view of one scheduled date.
type DateAvailability struct {
	DateID      uuid.UUID `json:"date_id"`
	Date        time.Time `json:"date"`
	MaxBookings int       `json:"max_bookings"`
	Booked      int       `json:"booked"`
	Available   int       `json:"available"`
}

type PackageView struct {
	Package domain.Package
	Details *mongoadapter.PackageDetails
	Dates   []DateAvailability
}

func (s *Service) CreatePackage(ctx context.Context, actor domain.Principal, in PackageInput) (domain.Package, error) {
	if err := adminOnly(actor); err != nil {
		return domain.Package{}, err
	}
	now := s.opts.Clock()
	p := domain.Package{ID: uuid.New(), CreatedAt: now, UpdatedAt: now}
	in.apply(&p)
	if err := p.Validate(); err != nil {
		return domain.Package{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	if err := s.store.CreatePackage(ctx, p); err != nil {
		return domain.Package{}, classify("create package", err)
	}
	s.logger.WithField("package_id", p.ID).Info("package created")
	return p, nil
}

func (s *Service) UpdatePackage(ctx context.Context, actor domain.Principal, id uuid.UUID, in PackageInput) (domain.Package, error) {
	if err := adminOnly(actor); err != nil {
		return domain.Package{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	p, err := s.store.GetPackage(ctx, id)
	if err != nil {
		return domain.Package{}, classify("update package", err)
	}
	in.apply(&p)
	p.UpdatedAt = s.opts.Clock()
	if err := p.Validate(); err != nil {
		return domain.Package{}, err
	}
	dates, err := s.store.ListDates(ctx, id, time.Time{})
	if err != nil {
		return domain.Package{}, classify("update package", err)
	}
	for _, d := range dates {
		if d.MaxBookings > p.MaxCapacity {
			return domain.Package{}, domain.Validationf("date %s allows %d bookings, above the new capacity of %d",
				d.Date.Format("2006-01-02"), d.MaxBookings, p.MaxCapacity)
		}
	}
	if err := s.store.UpdatePackage(ctx, p); err != nil {
		return domain.Package{}, classify("update package", err)
	}
	return p, nil
}

func (s *Service) SetPackageActive(ctx context.Context, actor domain.Principal, id uuid.UUID, active bool) error {
	if err := adminOnly(actor); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	return classify("set package active", s.store.SetPackageActive(ctx, id, active, s.opts.Clock()))
}

// DeletePackage removes a package that no booking references, together with its details.
func (s *Service) DeletePackage(ctx context.Context, actor domain.Principal, id uuid.UUID) error {
	if err := adminOnly(actor); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	if err := s.store.DeletePackage(ctx, id); err != nil {
		return classify("delete package", err)
	}
	if err := s.details.Delete(ctx, id); err != nil {
		s.logger.WithError(err).WithField("package_id", id).Warn("failed to delete package details")
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *Service) AddDate(ctx context.Context, actor domain.Principal, packageID uuid.UUID, date time.Time, maxBookings int) (domain.PackageDate, error) {
	if err := adminOnly(actor); err != nil {
		return domain.PackageDate{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	p, err := s.store.GetPackage(ctx, packageID)
	if err != nil {
		return domain.PackageDate{}, classify("add date", err)
	}
	d := domain.PackageDate{
		ID:          uuid.New(),
		PackageID:   packageID,
		Date:        date.UTC().Truncate(24 * time.Hour),
		MaxBookings: maxBookings,
		CreatedAt:   s.opts.Clock(),
	}
	if err := d.Validate(p); err != nil {
		return domain.PackageDate{}, err
	}
	if err := s.store.AddDate(ctx, d); err != nil {
		return domain.PackageDate{}, classify("add date", err)
	}
	s.invalidate(ctx, packageID)
	return d, nil
}

// UpdateDateCapacity changes the seat ceiling of a date. It can neither exceed the package
// capacity nor drop below the seats already booked.
func (s *Service) UpdateDateCapacity(ctx context.Context, actor domain.Principal, dateID uuid.UUID, maxBookings int) (domain.PackageDate, error) {
	if err := adminOnly(actor); err != nil {
		return domain.PackageDate{}, err
	}
	if maxBookings <= 0 {
		return domain.PackageDate{}, domain.Validationf("max bookings must be positive")
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	d, err := s.store.GetPackageDate(ctx, dateID)
	if err != nil {
		return domain.PackageDate{}, classify("update date capacity", err)
	}
	p, err := s.store.GetPackage(ctx, d.PackageID)
	if err != nil {
		return domain.PackageDate{}, classify("update date capacity", err)
	}
	if maxBookings > p.MaxCapacity {
		return domain.PackageDate{}, domain.Validationf("max bookings cannot exceed the package capacity of %d", p.MaxCapacity)
	}
	updated, err := s.store.UpdateDateCapacity(ctx, dateID, maxBookings)
	if err != nil {
		return domain.PackageDate{}, classify("update date capacity", err)
	}
	s.invalidate(ctx, d.PackageID)
	return updated, nil
}

func (s *Service) DeleteDate(ctx context.Context, actor domain.Principal, dateID uuid.UUID) error {
	if err := adminOnly(actor); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	d, err := s.store.GetPackageDate(ctx, dateID)
	if err != nil {
		return classify("delete date", err)
	}
	if d.CurrentBookings > 0 {
		return domain.Conflictf("date has %d booked seat(s) and cannot be deleted", d.CurrentBookings)
	}
	if err := s.store.DeleteDate(ctx, dateID); err != nil {
		return classify("delete date", err)
	}
	s.invalidate(ctx, d.PackageID)
	return nil
}

func (s *Service) SaveDetails(ctx context.Context, actor domain.Principal, packageID uuid.UUID, d mongoadapter.PackageDetails) error {
	if err := adminOnly(actor); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	if _, err := s.store.GetPackage(ctx, packageID); err != nil {
		return classify("save details", err)
	}
	for i, day := range d.Itinerary {
		if day.Day <= 0 || strings.TrimSpace(day.Title) == "" {
			return domain.Validationf("itinerary entry %d needs a day number and a title", i+1)
		}
	}
	d.PackageID = packageID.String()
	return classify("save details", s.details.Save(ctx, d))
}

func (s *Service) ListActivePackages(ctx context.Context) ([]domain.Package, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	packages, err := s.store.ListPackages(ctx, true)
	return packages, classify("list packages", err)
}

// ListPackages returns every package, active or not. Admin only.
func (s *Service) ListPackages(ctx context.Context, actor domain.Principal) ([]domain.Package, error) {
	if err := adminOnly(actor); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	packages, err := s.store.ListPackages(ctx, false)
	return packages, classify("list packages", err)
}

// GetPackage loads the package record, its details and upcoming dates concurrently.
// Inactive packages are only visible to admins. Missing details do not fail the call.
func (s *Service) GetPackage(ctx context.Context, actor domain.Principal, id uuid.UUID) (PackageView, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	var view PackageView
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := s.store.GetPackage(gctx, id)
		view.Package = p
		return err
	})
	g.Go(func() error {
		d, err := s.details.Get(gctx, id)
		if err != nil {
			s.logger.WithError(err).WithField("package_id", id).Warn("package details unavailable")
			return nil
		}
		view.Details = d
		return nil
	})
	g.Go(func() error {
		dates, err := s.availability(gctx, id)
		view.Dates = dates
		return err
	})
	if err := g.Wait(); err != nil {
		return PackageView{}, classify("get package", err)
	}
	if !view.Package.Active && !actor.IsAdmin() {
		return PackageView{}, domain.NotFound("package", id.String())
	}
	return view, nil
}

// Availability lists upcoming dates of a package with their free seats. Results are cached
// and invalidated whenever seats or dates change.
func (s *Service) Availability(ctx context.Context, packageID uuid.UUID) ([]DateAvailability, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	p, err := s.store.GetPackage(ctx, packageID)
	if err != nil {
		return nil, classify("availability", err)
	}
	if !p.Active {
		return nil, domain.NotFound("package", packageID.String())
	}
	dates, err := s.availability(ctx, packageID)
	return dates, classify("availability", err)
}

func (s *Service) availability(ctx context.Context, packageID uuid.UUID) ([]DateAvailability, error) {
	if data, ok, err := s.cache.GetAvailability(ctx, packageID); err != nil {
		s.logger.WithError(err).Warn("availability cache read failed")
	} else if ok {
		var dates []DateAvailability
		if err := json.Unmarshal(data, &dates); err == nil {
			observability.CacheHits.WithLabelValues("hit").Inc()
			return dates, nil
		}
	}
	observability.CacheHits.WithLabelValues("miss").Inc()

	today := s.opts.Clock().Truncate(24 * time.Hour)
	rows, err := s.store.ListDates(ctx, packageID, today)
	if err != nil {
		return nil, err
	}
	dates := make([]DateAvailability, 0, len(rows))
	for _, d := range rows {
		dates = append(dates, DateAvailability{
			DateID:      d.ID,
			Date:        d.Date,
			MaxBookings: d.MaxBookings,
			Booked:      d.CurrentBookings,
			Available:   d.AvailableSeats(),
		})
	}

	if data, err := json.Marshal(dates); err == nil {
		if err := s.cache.SetAvailability(ctx, packageID, data, s.opts.CacheTTL); err != nil {
			s.logger.WithError(err).Warn("availability cache write failed")
		}
	}
	return dates, nil
}

func (s *Service) invalidate(ctx context.Context, packageID uuid.UUID) {
	if err := s.cache.InvalidateAvailability(context.WithoutCancel(ctx), packageID); err != nil {
		s.logger.WithError(err).WithField("package_id", packageID).Warn("failed to invalidate availability cache")
	}
}

func adminOnly(actor domain.Principal) error {
	if !actor.IsAdmin() {
		return domain.Forbidden("only administrators can manage packages")
	}
	return nil
}

func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	return domain.PersistenceFailure("catalog: "+op, err)
}
