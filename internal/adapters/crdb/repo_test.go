package crdb_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robertarktes/tour-package-bookings/internal/adapters/crdb"
	"github.com/robertarktes/tour-package-bookings/internal/booking"
	"github.com/robertarktes/tour-package-bookings/internal/domain"
	"github.com/robertarktes/tour-package-bookings/internal/observability"
	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startCockroach(t *testing.T) *crdb.Repository {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping CockroachDB container test in short mode")
	}
	ctx := context.Background()

	crdbContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "cockroachdb/cockroach:v24.1.1",
			Cmd:          []string{"start-single-node", "--insecure"},
			ExposedPorts: []string{"26257/tcp", "8080/tcp"},
			WaitingFor:   wait.ForHTTP("/health?ready=1").WithPort("8080"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { crdbContainer.Terminate(ctx) })

	host, err := crdbContainer.Host(ctx)
	if err != nil {
		t.Fatal(err)
	}
	port, err := crdbContainer.MappedPort(ctx, "26257")
	if err != nil {
		t.Fatal(err)
	}

	pool, err := pgxpool.New(ctx, "postgresql://root@"+host+":"+port.Port()+"/defaultdb?sslmode=disable")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(pool.Close)

	if err := crdb.Migrate(ctx, pool); err != nil {
		t.Fatal(err)
	}
	return crdb.NewRepository(pool)
}

func seedDate(t *testing.T, repo *crdb.Repository, maxBookings int) (domain.Package, domain.PackageDate) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	pkg := domain.Package{
		ID:             uuid.New(),
		Title:          "Goa Beach Escape",
		Destination:    "Goa",
		DurationDays:   4,
		PricePerHead:   decimal.NewFromInt(1500),
		AdvancePerHead: decimal.NewFromInt(500),
		MaxCapacity:    30,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := repo.CreatePackage(ctx, pkg); err != nil {
		t.Fatal(err)
	}
	date := domain.PackageDate{
		ID:          uuid.New(),
		PackageID:   pkg.ID,
		Date:        now.AddDate(0, 1, 0).Truncate(24 * time.Hour),
		MaxBookings: maxBookings,
		CreatedAt:   now,
	}
	if err := repo.AddDate(ctx, date); err != nil {
		t.Fatal(err)
	}
	return pkg, date
}

func TestRepository_ReserveAndReleaseSeats(t *testing.T) {
	repo := startCockroach(t)
	ctx := context.Background()
	_, date := seedDate(t, repo, 3)

	reserve := func(n int) error {
		return repo.InTx(ctx, func(ctx context.Context, q booking.Queries) error {
			return q.ReserveSeats(ctx, date.ID, n)
		})
	}

	if err := reserve(2); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := reserve(2); !errors.Is(err, domain.ErrCapacityExceeded) {
		t.Fatalf("expected capacity exceeded, got %v", err)
	}
	got, err := repo.GetPackageDate(ctx, date.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.CurrentBookings != 2 {
		t.Fatalf("expected 2 counted seats, got %d", got.CurrentBookings)
	}

	err = repo.InTx(ctx, func(ctx context.Context, q booking.Queries) error {
		return q.ReleaseSeats(ctx, date.ID, 5)
	})
	if err != nil {
		t.Fatal(err)
	}
	got, err = repo.GetPackageDate(ctx, date.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.CurrentBookings != 0 {
		t.Errorf("expected the counter to stop at zero, got %d", got.CurrentBookings)
	}
}

func TestRepository_ConcurrentReservationsNeverExceedCeiling(t *testing.T) {
	repo := startCockroach(t)
	ctx := context.Background()
	_, date := seedDate(t, repo, 4)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for attempt := 0; attempt < 5; attempt++ {
				err := repo.InTx(ctx, func(ctx context.Context, q booking.Queries) error {
					return q.ReserveSeats(ctx, date.ID, 1)
				})
				if errors.Is(err, domain.ErrSerializationFailure) {
					continue
				}
				if err == nil {
					mu.Lock()
					granted++
					mu.Unlock()
				}
				return
			}
		}()
	}
	wg.Wait()

	got, err := repo.GetPackageDate(ctx, date.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.CurrentBookings > got.MaxBookings {
		t.Fatalf("overbooked: %d > %d", got.CurrentBookings, got.MaxBookings)
	}
	if granted != got.CurrentBookings {
		t.Errorf("granted %d reservations but counter is %d", granted, got.CurrentBookings)
	}
}

func TestRepository_BookingLifecycle(t *testing.T) {
	repo := startCockroach(t)
	ctx := context.Background()
	pkg, date := seedDate(t, repo, 2)

	svc := booking.NewService(repo, nil, observability.NewDiscardLogger(), booking.Options{})
	customer := domain.Principal{UserID: uuid.New(), Role: domain.RoleCustomer}
	admin := domain.Principal{UserID: uuid.New(), Role: domain.RoleAdmin}

	b, err := svc.CreateBooking(ctx, customer, booking.CreateBookingInput{
		PackageID:     pkg.ID,
		PackageDateID: date.ID,
		ContactName:   "Arjun",
		Travelers:     []domain.Traveler{{Name: "Arjun", Age: 31}, {Name: "Meera", Phone: "+91 90000 00000"}},
	})
	if err != nil {
		t.Fatalf("CreateBooking: %v", err)
	}
	if _, err := svc.RecordPayment(ctx, customer, b.ID, decimal.NewFromInt(500), "https://proofs/a.jpg", "UTR1"); err != nil {
		t.Fatalf("RecordPayment: %v", err)
	}
	confirmed, err := svc.Decide(ctx, admin, b.ID, domain.DecisionConfirm, "")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if !confirmed.RemainingAmount.Equal(decimal.NewFromInt(2500)) {
		t.Errorf("expected remaining 2500, got %s", confirmed.RemainingAmount)
	}

	stored, err := repo.GetBooking(ctx, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != domain.StatusConfirmed || !stored.SeatsCounted || len(stored.Travelers) != 2 {
		t.Fatalf("unexpected stored booking: %+v", stored)
	}
	if stored.Version != 3 {
		t.Errorf("expected version 3, got %d", stored.Version)
	}

	d, err := repo.GetPackageDate(ctx, date.ID)
	if err != nil {
		t.Fatal(err)
	}
	if d.CurrentBookings != 2 {
		t.Errorf("expected 2 counted seats, got %d", d.CurrentBookings)
	}

	status := domain.StatusConfirmed
	items, total, err := repo.ListBookings(ctx, domain.BookingFilter{Status: &status, UserID: &customer.UserID})
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || len(items) != 1 || items[0].Reference != b.Reference {
		t.Errorf("unexpected listing: total=%d items=%d", total, len(items))
	}

	counts, err := repo.CountByStatus(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if counts[domain.StatusConfirmed] != 1 {
		t.Errorf("expected one confirmed booking, got %v", counts)
	}

	var published []string
	n, err := repo.ProcessOutbox(ctx, 10, 3, func(_ context.Context, rec crdb.OutboxRecord) error {
		published = append(published, rec.EventType)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("expected 3 published events, got %d (%v)", n, published)
	}
	pending, err := repo.PendingOutbox(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if pending != 0 {
		t.Errorf("expected an empty outbox, got %d", pending)
	}
}

func TestRepository_DeletePackageWithBookings(t *testing.T) {
	repo := startCockroach(t)
	ctx := context.Background()
	pkg, date := seedDate(t, repo, 2)

	svc := booking.NewService(repo, nil, observability.NewDiscardLogger(), booking.Options{})
	customer := domain.Principal{UserID: uuid.New(), Role: domain.RoleCustomer}
	_, err := svc.CreateBooking(ctx, customer, booking.CreateBookingInput{
		PackageID:     pkg.ID,
		PackageDateID: date.ID,
		Travelers:     []domain.Traveler{{Name: "Kabir", Age: 40}},
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := repo.DeletePackage(ctx, pkg.ID); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err := repo.DeleteDate(ctx, date.ID); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict deleting a booked date, got %v", err)
	}
	if _, err := repo.UpdateDateCapacity(ctx, date.ID, 1); err != nil {
		t.Fatalf("lowering capacity above the counter should work: %v", err)
	}
}
