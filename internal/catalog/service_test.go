package catalog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	mongoadapter "github.com/robertarktes/tour-package-bookings/internal/adapters/mongo"
	"github.com/robertarktes/tour-package-bookings/internal/domain"
	"github.com/robertarktes/tour-package-bookings/internal/observability"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu       sync.Mutex
	packages map[uuid.UUID]domain.Package
	dates    map[uuid.UUID]domain.PackageDate
	listErr  error
}

func newMemStore() *memStore {
	return &memStore{packages: map[uuid.UUID]domain.Package{}, dates: map[uuid.UUID]domain.PackageDate{}}
}

func (m *memStore) GetPackage(_ context.Context, id uuid.UUID) (domain.Package, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.packages[id]
	if !ok {
		return domain.Package{}, domain.NotFound("package", id.String())
	}
	return p, nil
}

func (m *memStore) ListPackages(_ context.Context, activeOnly bool) ([]domain.Package, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Package
	for _, p := range m.packages {
		if p.Active || !activeOnly {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) CreatePackage(_ context.Context, p domain.Package) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.packages[p.ID] = p
	return nil
}

func (m *memStore) UpdatePackage(_ context.Context, p domain.Package) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.packages[p.ID] = p
	return nil
}

func (m *memStore) SetPackageActive(_ context.Context, id uuid.UUID, active bool, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.packages[id]
	if !ok {
		return domain.NotFound("package", id.String())
	}
	p.Active, p.UpdatedAt = active, now
	m.packages[id] = p
	return nil
}

func (m *memStore) DeletePackage(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.packages, id)
	return nil
}

func (m *memStore) GetPackageDate(_ context.Context, id uuid.UUID) (domain.PackageDate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.dates[id]
	if !ok {
		return domain.PackageDate{}, domain.NotFound("package date", id.String())
	}
	return d, nil
}

func (m *memStore) AddDate(_ context.Context, d domain.PackageDate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dates[d.ID] = d
	return nil
}

func (m *memStore) ListDates(_ context.Context, packageID uuid.UUID, from time.Time) ([]domain.PackageDate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []domain.PackageDate
	for _, d := range m.dates {
		if d.PackageID == packageID && !d.Date.Before(from) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memStore) UpdateDateCapacity(_ context.Context, id uuid.UUID, maxBookings int) (domain.PackageDate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.dates[id]
	if d.CurrentBookings > maxBookings {
		return domain.PackageDate{}, domain.Validationf("capacity cannot be lowered to %d", maxBookings)
	}
	d.MaxBookings = maxBookings
	m.dates[id] = d
	return d, nil
}

func (m *memStore) DeleteDate(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.dates, id)
	return nil
}

type memDetails struct {
	mu   sync.Mutex
	docs map[string]mongoadapter.PackageDetails
	err  error
}

func (m *memDetails) Get(_ context.Context, id uuid.UUID) (*mongoadapter.PackageDetails, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	d, ok := m.docs[id.String()]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (m *memDetails) Save(_ context.Context, d mongoadapter.PackageDetails) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[d.PackageID] = d
	return nil
}

func (m *memDetails) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, id.String())
	return nil
}

type memCache struct {
	mu          sync.Mutex
	data        map[uuid.UUID][]byte
	invalidated int
}

func (c *memCache) GetAvailability(_ context.Context, id uuid.UUID) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.data[id]
	return d, ok, nil
}

func (c *memCache) SetAvailability(_ context.Context, id uuid.UUID, data []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[id] = data
	return nil
}

func (c *memCache) InvalidateAvailability(_ context.Context, id uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, id)
	c.invalidated++
	return nil
}

var (
	admin    = domain.Principal{UserID: uuid.New(), Role: domain.RoleAdmin}
	customer = domain.Principal{UserID: uuid.New(), Role: domain.RoleCustomer}
	today    = time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
)

type fixture struct {
	svc     *Service
	store   *memStore
	details *memDetails
	cache   *memCache
}

func newFixture() fixture {
	store := newMemStore()
	details := &memDetails{docs: map[string]mongoadapter.PackageDetails{}}
	cache := &memCache{data: map[uuid.UUID][]byte{}}
	svc := NewService(store, details, cache, observability.NewDiscardLogger(), Options{Clock: func() time.Time { return today }})
	return fixture{svc: svc, store: store, details: details, cache: cache}
}

func validInput() PackageInput {
	return PackageInput{
		Title:          "Kedarkantha Trek",
		Destination:    "Uttarakhand",
		DurationDays:   6,
		PricePerHead:   decimal.NewFromInt(10000),
		AdvancePerHead: decimal.NewFromInt(2000),
		MaxCapacity:    20,
		Active:         true,
	}
}

func TestCreatePackage(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.CreatePackage(ctx, customer, validInput())
	require.ErrorIs(t, err, domain.ErrForbidden)

	bad := validInput()
	bad.AdvancePerHead = decimal.NewFromInt(20000)
	_, err = f.svc.CreatePackage(ctx, admin, bad)
	require.ErrorIs(t, err, domain.ErrValidationFailed)

	p, err := f.svc.CreatePackage(ctx, admin, validInput())
	require.NoError(t, err)
	assert.Equal(t, today, p.CreatedAt)

	active, err := f.svc.ListActivePackages(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	require.NoError(t, f.svc.SetPackageActive(ctx, admin, p.ID, false))
	active, err = f.svc.ListActivePackages(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestUpdatePackage_CapacityCoversDates(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	p, err := f.svc.CreatePackage(ctx, admin, validInput())
	require.NoError(t, err)
	_, err = f.svc.AddDate(ctx, admin, p.ID, today.AddDate(0, 1, 0), 15)
	require.NoError(t, err)

	in := validInput()
	in.MaxCapacity = 10
	_, err = f.svc.UpdatePackage(ctx, admin, p.ID, in)
	require.ErrorIs(t, err, domain.ErrValidationFailed)
	assert.Contains(t, domain.Reason(err), "above the new capacity of 10")

	stored, err := f.store.GetPackage(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, validInput().MaxCapacity, stored.MaxCapacity)

	in.MaxCapacity = 15
	updated, err := f.svc.UpdatePackage(ctx, admin, p.ID, in)
	require.NoError(t, err)
	assert.Equal(t, 15, updated.MaxCapacity)
}

func TestDates(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	p, err := f.svc.CreatePackage(ctx, admin, validInput())
	require.NoError(t, err)

	_, err = f.svc.AddDate(ctx, admin, p.ID, today.AddDate(0, 1, 0), 25)
	require.ErrorIs(t, err, domain.ErrValidationFailed)

	d, err := f.svc.AddDate(ctx, admin, p.ID, today.AddDate(0, 1, 0), 10)
	require.NoError(t, err)

	_, err = f.svc.UpdateDateCapacity(ctx, admin, d.ID, 21)
	require.ErrorIs(t, err, domain.ErrValidationFailed)

	f.store.dates[d.ID] = domain.PackageDate{ID: d.ID, PackageID: p.ID, Date: d.Date, MaxBookings: 10, CurrentBookings: 4}
	_, err = f.svc.UpdateDateCapacity(ctx, admin, d.ID, 3)
	require.ErrorIs(t, err, domain.ErrValidationFailed)

	updated, err := f.svc.UpdateDateCapacity(ctx, admin, d.ID, 12)
	require.NoError(t, err)
	assert.Equal(t, 12, updated.MaxBookings)

	err = f.svc.DeleteDate(ctx, admin, d.ID)
	require.ErrorIs(t, err, domain.ErrConflict)
}

func TestAvailabilityIsCachedAndInvalidated(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	p, err := f.svc.CreatePackage(ctx, admin, validInput())
	require.NoError(t, err)
	d, err := f.svc.AddDate(ctx, admin, p.ID, today.AddDate(0, 0, 10), 8)
	require.NoError(t, err)
	_, err = f.svc.AddDate(ctx, admin, p.ID, today.AddDate(0, 0, -10), 8)
	require.NoError(t, err)

	dates, err := f.svc.Availability(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, dates, 1)
	assert.Equal(t, 8, dates[0].Available)

	f.store.listErr = errors.New("db down")
	dates, err = f.svc.Availability(ctx, p.ID)
	require.NoError(t, err, "second read is served from cache")
	assert.Equal(t, d.ID, dates[0].DateID)

	f.store.listErr = nil
	_, err = f.svc.UpdateDateCapacity(ctx, admin, d.ID, 5)
	require.NoError(t, err)
	dates, err = f.svc.Availability(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, dates[0].Available)
}

func TestGetPackage(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	p, err := f.svc.CreatePackage(ctx, admin, validInput())
	require.NoError(t, err)

	err = f.svc.SaveDetails(ctx, admin, p.ID, mongoadapter.PackageDetails{
		Description: "Snow trek",
		Itinerary:   []mongoadapter.ItineraryDay{{Day: 1, Title: "Drive to Sankri"}},
	})
	require.NoError(t, err)

	err = f.svc.SaveDetails(ctx, admin, p.ID, mongoadapter.PackageDetails{Itinerary: []mongoadapter.ItineraryDay{{}}})
	require.ErrorIs(t, err, domain.ErrValidationFailed)

	view, err := f.svc.GetPackage(ctx, customer, p.ID)
	require.NoError(t, err)
	require.NotNil(t, view.Details)
	assert.Equal(t, "Snow trek", view.Details.Description)

	f.details.err = errors.New("mongo down")
	view, err = f.svc.GetPackage(ctx, customer, p.ID)
	require.NoError(t, err)
	assert.Nil(t, view.Details)

	require.NoError(t, f.svc.SetPackageActive(ctx, admin, p.ID, false))
	_, err = f.svc.GetPackage(ctx, customer, p.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.svc.GetPackage(ctx, admin, p.ID)
	require.NoError(t, err)

	_, err = f.svc.GetPackage(ctx, customer, uuid.New())
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStoreFailuresBecomePersistenceFailures(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	p, err := f.svc.CreatePackage(ctx, admin, validInput())
	require.NoError(t, err)
	f.store.listErr = errors.New("connection reset")

	_, err = f.svc.Availability(ctx, p.ID)
	require.ErrorIs(t, err, domain.ErrPersistenceFailure)
	assert.Equal(t, "the service is temporarily unavailable, please try again", domain.Reason(err))
}
