// Package booking implements the booking lifecycle: creation, payment submission, administrator
// decisions, the remainder payment and the expiry sweep. Every state change runs in one
// serializable transaction together with the seat counter update and the outbox event.
package booking

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/tour-package-bookings/internal/domain"
	"github.com/robertarktes/tour-package-bookings/internal/observability"
	"github.com/shopspring/decimal"
)

const (
	defaultTimeout      = 5 * time.Second
	defaultRetryBackoff = 50 * time.Millisecond
	expiryBatchSize     = 100

	ExpiredReason = "Expired: no payment received"
)

// Queries are the persistence operations available inside a transaction.
type Queries interface {
	GetPackage(ctx context.Context, id uuid.UUID) (domain.Package, error)
	GetPackageDate(ctx context.Context, id uuid.UUID) (domain.PackageDate, error)
	GetBookingForUpdate(ctx context.Context, id uuid.UUID) (*domain.Booking, error)
	InsertBooking(ctx context.Context, b *domain.Booking) error
	// UpdateBooking persists b if the stored version is b.Version-1.
	UpdateBooking(ctx context.Context, b *domain.Booking) error
	// ReserveSeats adds n to the date counter only if it stays within max_bookings.
	ReserveSeats(ctx context.Context, dateID uuid.UUID, n int) error
	// ReleaseSeats subtracts n from the date counter, never going below zero.
	ReleaseSeats(ctx context.Context, dateID uuid.UUID, n int) error
	InsertOutbox(ctx context.Context, evt domain.Event) error
}

type Repository interface {
	InTx(ctx context.Context, fn func(ctx context.Context, q Queries) error) error
	GetBooking(ctx context.Context, id uuid.UUID) (*domain.Booking, error)
	ListBookings(ctx context.Context, f domain.BookingFilter) ([]*domain.Booking, int, error)
	CountByStatus(ctx context.Context) (map[domain.Status]int, error)
	ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]uuid.UUID, error)
}

type AvailabilityCache interface {
	InvalidateAvailability(ctx context.Context, packageID uuid.UUID) error
}

type Options struct {
	Timeout             time.Duration
	RetryBackoff        time.Duration
	DefaultCancelReason string
	Clock               func() time.Time
}

type Service struct {
	repo                Repository
	cache               AvailabilityCache
	logger              observability.Logger
	timeout             time.Duration
	retryBackoff        time.Duration
	defaultCancelReason string
	now                 func() time.Time
}

func NewService(repo Repository, cache AvailabilityCache, logger observability.Logger, opts Options) *Service {
	s := &Service{
		repo:                repo,
		cache:               cache,
		logger:              logger.WithField("component", "booking"),
		timeout:             opts.Timeout,
		retryBackoff:        opts.RetryBackoff,
		defaultCancelReason: strings.TrimSpace(opts.DefaultCancelReason),
		now:                 opts.Clock,
	}
	if s.timeout <= 0 {
		s.timeout = defaultTimeout
	}
	if s.retryBackoff <= 0 {
		s.retryBackoff = defaultRetryBackoff
	}
	if s.defaultCancelReason == "" {
		s.defaultCancelReason = "Cancelled by admin"
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

type CreateBookingInput struct {
	PackageID     uuid.UUID
	PackageDateID uuid.UUID
	ContactName   string
	ContactEmail  string
	ContactPhone  string
	Travelers     []domain.Traveler
	Advance       decimal.Decimal
	ProofRef      string
	UTR           string
}

// CreateBooking opens a pending booking. The date counter is checked but not changed.
func (s *Service) CreateBooking(ctx context.Context, actor domain.Principal, in CreateBookingInput) (*domain.Booking, error) {
	if actor.IsAnonymous() {
		return nil, domain.Forbidden("sign in to book a package")
	}

	var created *domain.Booking
	create := func(ctx context.Context, q Queries) error {
		pkg, err := q.GetPackage(ctx, in.PackageID)
		if err != nil {
			return err
		}
		date, err := q.GetPackageDate(ctx, in.PackageDateID)
		if err != nil {
			return err
		}
		now := s.now()
		b, err := domain.NewBooking(domain.NewBookingParams{
			Package:      pkg,
			Date:         date,
			UserID:       actor.UserID,
			ContactName:  in.ContactName,
			ContactEmail: in.ContactEmail,
			ContactPhone: in.ContactPhone,
			Travelers:    in.Travelers,
			Advance:      in.Advance,
			ProofRef:     in.ProofRef,
			UTR:          in.UTR,
			Now:          now,
		})
		if err != nil {
			return err
		}
		if err := q.InsertBooking(ctx, b); err != nil {
			return err
		}
		created = b
		return q.InsertOutbox(ctx, domain.NewEvent(domain.EventBookingCreated, b, actor, "", now))
	}
	err := s.run(ctx, "create_booking", create)
	if errors.Is(err, domain.ErrDuplicateReference) {
		// a fresh attempt generates a new reference
		s.logger.Warn("booking reference collision, retrying")
		err = s.run(ctx, "create_booking", create)
	}
	if err != nil {
		return nil, err
	}

	observability.BookingTransitions.WithLabelValues(string(domain.EventBookingCreated)).Inc()
	s.logger.WithFields(map[string]interface{}{
		"booking_id": created.ID,
		"reference":  created.Reference,
		"travelers":  created.TravelerCount(),
	}).Info("booking created")
	return created, nil
}

// RecordPayment attaches the advance payment proof. Allowed for the owner and administrators.
func (s *Service) RecordPayment(ctx context.Context, actor domain.Principal, id uuid.UUID, amount decimal.Decimal, proofRef, utr string) (*domain.Booking, error) {
	return s.mutate(ctx, "record_payment", actor, id, ownerOrAdmin,
		func(_ context.Context, _ Queries, b *domain.Booking, now time.Time) (change, error) {
			if err := b.RecordPayment(amount, proofRef, utr, now); err != nil {
				return change{}, err
			}
			return change{event: domain.EventPaymentSubmitted}, nil
		})
}

// Decide applies an administrator decision. note is the cancellation reason for cancel and
// is stored as admin notes for the other decisions.
func (s *Service) Decide(ctx context.Context, actor domain.Principal, id uuid.UUID, decision domain.Decision, note string) (*domain.Booking, error) {
	note = strings.TrimSpace(note)
	return s.mutate(ctx, "decide_"+string(decision), actor, id, adminOnly,
		func(ctx context.Context, q Queries, b *domain.Booking, now time.Time) (change, error) {
			switch decision {
			case domain.DecisionConfirm:
				seats, err := b.Confirm(now)
				if err != nil {
					return change{}, err
				}
				if seats > 0 {
					if err := q.ReserveSeats(ctx, b.PackageDateID, seats); err != nil {
						return change{}, err
					}
				}
				if note != "" {
					b.SetAdminNotes(note, now)
				}
				return change{event: domain.EventBookingConfirmed, reason: note, reserved: seats}, nil

			case domain.DecisionRejectPayment:
				if err := b.RejectPayment(now); err != nil {
					return change{}, err
				}
				if note != "" {
					b.SetAdminNotes(note, now)
				}
				return change{event: domain.EventPaymentRejected, reason: note}, nil

			case domain.DecisionCancel:
				reason := note
				if reason == "" {
					reason = s.defaultCancelReason
				}
				return s.cancel(ctx, q, b, reason, now)
			}
			return change{}, domain.Validationf("unknown decision %q", decision)
		})
}

// SubmitRemainder settles the balance of a confirmed booking.
func (s *Service) SubmitRemainder(ctx context.Context, actor domain.Principal, id uuid.UUID, proofRef, utr string) (*domain.Booking, error) {
	return s.mutate(ctx, "submit_remainder", actor, id, ownerOrAdmin,
		func(_ context.Context, _ Queries, b *domain.Booking, now time.Time) (change, error) {
			if err := b.SubmitRemainder(proofRef, utr, now); err != nil {
				return change{}, err
			}
			return change{event: domain.EventRemainderPaid}, nil
		})
}

func (s *Service) UpdateAdminNotes(ctx context.Context, actor domain.Principal, id uuid.UUID, notes string) (*domain.Booking, error) {
	return s.mutate(ctx, "update_notes", actor, id, adminOnly,
		func(_ context.Context, _ Queries, b *domain.Booking, now time.Time) (change, error) {
			b.SetAdminNotes(notes, now)
			return change{event: domain.EventNotesUpdated}, nil
		})
}

func (s *Service) GetBooking(ctx context.Context, actor domain.Principal, id uuid.UUID) (*domain.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	b, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, s.classify("get_booking", err)
	}
	if err := ownerOrAdmin(actor, b); err != nil {
		return nil, err
	}
	return b, nil
}

type Page struct {
	Items []*domain.Booking
	Total int
	Page  int
	Limit int
}

// ListBookings returns a page of bookings. Customers only ever see their own.
func (s *Service) ListBookings(ctx context.Context, actor domain.Principal, f domain.BookingFilter) (Page, error) {
	if actor.IsAnonymous() {
		return Page{}, domain.Forbidden("sign in to list bookings")
	}
	if !actor.IsAdmin() {
		uid := actor.UserID
		f.UserID = &uid
	}
	f = f.Normalized()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	items, total, err := s.repo.ListBookings(ctx, f)
	if err != nil {
		return Page{}, s.classify("list_bookings", err)
	}
	return Page{Items: items, Total: total, Page: f.Page, Limit: f.Limit}, nil
}

type Stats struct {
	ByStatus map[domain.Status]int `json:"by_status"`
	Total    int                   `json:"total"`
}

func (s *Service) Stats(ctx context.Context, actor domain.Principal) (Stats, error) {
	if err := adminOnly(actor, nil); err != nil {
		return Stats{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return Stats{}, s.classify("stats", err)
	}
	st := Stats{ByStatus: map[domain.Status]int{
		domain.StatusPending:        0,
		domain.StatusPendingPayment: 0,
		domain.StatusConfirmed:      0,
		domain.StatusCancelled:      0,
	}}
	for status, n := range counts {
		st.ByStatus[status] = n
		st.Total += n
	}
	return st, nil
}

// ExpireStale cancels pending bookings without a payment that are older than olderThan.
// Failures on single bookings are logged and the sweep moves on.
func (s *Service) ExpireStale(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := s.now().Add(-olderThan)

	listCtx, cancel := context.WithTimeout(ctx, s.timeout)
	ids, err := s.repo.ListStalePending(listCtx, cutoff, expiryBatchSize)
	cancel()
	if err != nil {
		return 0, s.classify("expire_stale", err)
	}

	expired := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return expired, ctx.Err()
		}
		var changed bool
		_, err := s.mutate(ctx, "expire", domain.SystemPrincipal(), id, adminOnly,
			func(ctx context.Context, q Queries, b *domain.Booking, now time.Time) (change, error) {
				changed = false
				if b.Status != domain.StatusPending || b.PaymentProofRef != nil {
					return change{}, nil
				}
				c, err := s.cancel(ctx, q, b, ExpiredReason, now)
				changed = c.event != ""
				return c, err
			})
		if err != nil {
			s.logger.WithError(err).WithField("booking_id", id).Warn("failed to expire booking")
			continue
		}
		if changed {
			expired++
			observability.BookingsExpired.Inc()
		}
	}
	if expired > 0 {
		s.logger.WithField("count", expired).Info("expired stale pending bookings")
	}
	return expired, nil
}

func (s *Service) cancel(ctx context.Context, q Queries, b *domain.Booking, reason string, now time.Time) (change, error) {
	seats, changed, err := b.Cancel(reason, now)
	if err != nil || !changed {
		return change{}, err
	}
	if seats > 0 {
		if err := q.ReleaseSeats(ctx, b.PackageDateID, seats); err != nil {
			return change{}, err
		}
	}
	return change{event: domain.EventBookingCancelled, reason: reason, released: seats}, nil
}

// change describes the outcome of a mutation. An empty event means nothing changed.
type change struct {
	event    domain.EventType
	reason   string
	reserved int
	released int
}

type mutation func(ctx context.Context, q Queries, b *domain.Booking, now time.Time) (change, error)

func (s *Service) mutate(ctx context.Context, op string, actor domain.Principal, id uuid.UUID, allow func(domain.Principal, *domain.Booking) error, m mutation) (*domain.Booking, error) {
	var (
		out *domain.Booking
		res change
	)
	err := s.run(ctx, op, func(ctx context.Context, q Queries) error {
		out, res = nil, change{}

		b, err := q.GetBookingForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := allow(actor, b); err != nil {
			return err
		}
		now := s.now()
		c, err := m(ctx, q, b, now)
		if err != nil {
			return err
		}
		out, res = b, c
		if c.event == "" {
			return nil
		}
		b.IncrementVersion()
		if err := q.UpdateBooking(ctx, b); err != nil {
			return err
		}
		return q.InsertOutbox(ctx, domain.NewEvent(c.event, b, actor, c.reason, now))
	})
	if err != nil {
		return nil, err
	}
	if res.event == "" {
		return out, nil
	}

	observability.BookingTransitions.WithLabelValues(string(res.event)).Inc()
	if res.reserved > 0 {
		observability.SeatsReserved.Add(float64(res.reserved))
	}
	if res.released > 0 {
		observability.SeatsReleased.Add(float64(res.released))
	}
	if res.reserved > 0 || res.released > 0 {
		s.invalidate(ctx, out.PackageID)
	}
	s.logger.WithFields(map[string]interface{}{
		"booking_id": out.ID,
		"event":      res.event,
		"status":     out.Status,
		"actor":      actor.Role,
	}).Info("booking updated")
	return out, nil
}

// run executes fn in a transaction bounded by the service timeout and retries it once
// after a serialization failure.
func (s *Service) run(ctx context.Context, op string, fn func(ctx context.Context, q Queries) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := s.repo.InTx(ctx, fn)
	if errors.Is(err, domain.ErrSerializationFailure) {
		observability.DBTxRetries.Inc()
		select {
		case <-ctx.Done():
		case <-time.After(s.retryBackoff):
			err = s.repo.InTx(ctx, fn)
		}
	}
	return s.classify(op, err)
}

// classify leaves domain errors untouched and marks everything else as a persistence failure.
func (s *Service) classify(op string, err error) error {
	if err == nil {
		return nil
	}
	kind := domain.Kind(err)
	switch kind {
	case nil:
		err = domain.PersistenceFailure("booking: "+op, err)
		kind = domain.ErrPersistenceFailure
		s.logger.WithError(err).WithField("operation", op).Error("persistence failure")
	case domain.ErrPersistenceFailure, domain.ErrSerializationFailure:
		s.logger.WithError(err).WithField("operation", op).Warn("booking operation failed")
	}
	observability.BookingRejections.WithLabelValues(op, kind.Error()).Inc()
	return err
}

func (s *Service) invalidate(ctx context.Context, packageID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateAvailability(context.WithoutCancel(ctx), packageID); err != nil {
		s.logger.WithError(err).WithField("package_id", packageID).Warn("failed to invalidate availability cache")
	}
}

func ownerOrAdmin(actor domain.Principal, b *domain.Booking) error {
	if actor.IsAdmin() || b.OwnedBy(actor) {
		return nil
	}
	return domain.Forbidden("this booking belongs to another account")
}

func adminOnly(actor domain.Principal, _ *domain.Booking) error {
	if actor.IsAdmin() {
		return nil
	}
	return domain.Forbidden("administrator access required")
}
