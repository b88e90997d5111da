package booking_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/tour-package-bookings/internal/booking"
	"github.com/robertarktes/tour-package-bookings/internal/domain"
)

// memStore is an in-memory Repository. Transactions are serialized and run against a copy of
// the state that is only kept when fn succeeds.
type memStore struct {
	mu       sync.Mutex
	state    memState
	failNext int
	txCalls  int
	// dupRefs makes the next InsertBooking calls fail with a reference collision.
	dupRefs int
}

type memState struct {
	packages map[uuid.UUID]domain.Package
	dates    map[uuid.UUID]domain.PackageDate
	bookings map[uuid.UUID]domain.Booking
	outbox   []domain.Event
}

func newMemStore() *memStore {
	return &memStore{state: memState{
		packages: map[uuid.UUID]domain.Package{},
		dates:    map[uuid.UUID]domain.PackageDate{},
		bookings: map[uuid.UUID]domain.Booking{},
	}}
}

func (s memState) clone() memState {
	c := memState{
		packages: make(map[uuid.UUID]domain.Package, len(s.packages)),
		dates:    make(map[uuid.UUID]domain.PackageDate, len(s.dates)),
		bookings: make(map[uuid.UUID]domain.Booking, len(s.bookings)),
		outbox:   append([]domain.Event(nil), s.outbox...),
	}
	for k, v := range s.packages {
		c.packages[k] = v
	}
	for k, v := range s.dates {
		c.dates[k] = v
	}
	for k, v := range s.bookings {
		c.bookings[k] = v
	}
	return c
}

func (m *memStore) InTx(ctx context.Context, fn func(ctx context.Context, q booking.Queries) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txCalls++
	if m.failNext > 0 {
		m.failNext--
		return domain.ErrSerializationFailure
	}
	tx := &memTx{state: m.state.clone(), dupRefs: &m.dupRefs}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	m.state = tx.state
	return nil
}

func (m *memStore) GetBooking(_ context.Context, id uuid.UUID) (*domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.state.bookings[id]
	if !ok {
		return nil, domain.NotFound("booking", id.String())
	}
	return copyBooking(b), nil
}

func (m *memStore) ListBookings(_ context.Context, f domain.BookingFilter) ([]*domain.Booking, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*domain.Booking
	for _, b := range m.state.bookings {
		if f.Status != nil && b.Status != *f.Status {
			continue
		}
		if f.UserID != nil && b.UserID != *f.UserID {
			continue
		}
		if f.PackageDateID != nil && b.PackageDateID != *f.PackageDateID {
			continue
		}
		all = append(all, copyBooking(b))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := len(all)
	start := f.Offset()
	if start > total {
		start = total
	}
	end := start + f.Limit
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

func (m *memStore) CountByStatus(context.Context) (map[domain.Status]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[domain.Status]int{}
	for _, b := range m.state.bookings {
		out[b.Status]++
	}
	return out, nil
}

func (m *memStore) ListStalePending(_ context.Context, before time.Time, limit int) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []uuid.UUID
	for id, b := range m.state.bookings {
		if b.Status == domain.StatusPending && b.PaymentProofRef == nil && b.CreatedAt.Before(before) {
			ids = append(ids, id)
		}
		if len(ids) == limit {
			break
		}
	}
	return ids, nil
}

func (m *memStore) date(id uuid.UUID) domain.PackageDate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.dates[id]
}

func (m *memStore) events() []domain.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Event(nil), m.state.outbox...)
}

func (m *memStore) bookingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.bookings)
}

type memTx struct {
	state   memState
	dupRefs *int
}

func (t *memTx) GetPackage(_ context.Context, id uuid.UUID) (domain.Package, error) {
	p, ok := t.state.packages[id]
	if !ok {
		return domain.Package{}, domain.NotFound("package", id.String())
	}
	return p, nil
}

func (t *memTx) GetPackageDate(_ context.Context, id uuid.UUID) (domain.PackageDate, error) {
	d, ok := t.state.dates[id]
	if !ok {
		return domain.PackageDate{}, domain.NotFound("package date", id.String())
	}
	return d, nil
}

func (t *memTx) GetBookingForUpdate(_ context.Context, id uuid.UUID) (*domain.Booking, error) {
	b, ok := t.state.bookings[id]
	if !ok {
		return nil, domain.NotFound("booking", id.String())
	}
	return copyBooking(b), nil
}

func (t *memTx) InsertBooking(_ context.Context, b *domain.Booking) error {
	if t.dupRefs != nil && *t.dupRefs > 0 {
		*t.dupRefs--
		return domain.ErrDuplicateReference
	}
	t.state.bookings[b.ID] = *copyBooking(*b)
	return nil
}

func (t *memTx) UpdateBooking(_ context.Context, b *domain.Booking) error {
	cur, ok := t.state.bookings[b.ID]
	if !ok {
		return domain.NotFound("booking", b.ID.String())
	}
	if cur.Version != b.Version-1 {
		return domain.Conflictf("booking %s was modified concurrently", b.Reference)
	}
	t.state.bookings[b.ID] = *copyBooking(*b)
	return nil
}

func (t *memTx) ReserveSeats(_ context.Context, dateID uuid.UUID, n int) error {
	d, ok := t.state.dates[dateID]
	if !ok {
		return domain.NotFound("package date", dateID.String())
	}
	if d.CurrentBookings+n > d.MaxBookings {
		return domain.CapacityExceeded(d.AvailableSeats(), n)
	}
	d.CurrentBookings += n
	t.state.dates[dateID] = d
	return nil
}

func (t *memTx) ReleaseSeats(_ context.Context, dateID uuid.UUID, n int) error {
	d, ok := t.state.dates[dateID]
	if !ok {
		return domain.NotFound("package date", dateID.String())
	}
	d.CurrentBookings -= n
	if d.CurrentBookings < 0 {
		d.CurrentBookings = 0
	}
	t.state.dates[dateID] = d
	return nil
}

func (t *memTx) InsertOutbox(_ context.Context, evt domain.Event) error {
	t.state.outbox = append(t.state.outbox, evt)
	return nil
}

func copyBooking(b domain.Booking) *domain.Booking {
	b.Travelers = append([]domain.Traveler(nil), b.Travelers...)
	return &b
}

type countingCache struct {
	mu    sync.Mutex
	calls map[uuid.UUID]int
}

func (c *countingCache) InvalidateAvailability(_ context.Context, id uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls == nil {
		c.calls = map[uuid.UUID]int{}
	}
	c.calls[id]++
	return nil
}

func (c *countingCache) count(id uuid.UUID) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[id]
}
