package crdb

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/tour-package-bookings/internal/domain"
)

const packageColumns = `id, title, destination, duration_days, price_per_head, advance_per_head,
	max_capacity, active, created_at, updated_at`

const dateColumns = `id, package_id, travel_date, max_bookings, current_bookings, created_at`

func scanPackage(row pgx.Row) (domain.Package, error) {
	var p domain.Package
	err := row.Scan(&p.ID, &p.Title, &p.Destination, &p.DurationDays, &p.PricePerHead, &p.AdvancePerHead,
		&p.MaxCapacity, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func scanDate(row pgx.Row) (domain.PackageDate, error) {
	var d domain.PackageDate
	err := row.Scan(&d.ID, &d.PackageID, &d.Date, &d.MaxBookings, &d.CurrentBookings, &d.CreatedAt)
	return d, err
}

func getPackage(ctx context.Context, q querier, id uuid.UUID) (domain.Package, error) {
	p, err := scanPackage(q.QueryRow(ctx, `SELECT `+packageColumns+` FROM packages WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Package{}, domain.NotFound("package", id.String())
	}
	return p, mapErr("get package", err)
}

func getPackageDate(ctx context.Context, q querier, id uuid.UUID) (domain.PackageDate, error) {
	d, err := scanDate(q.QueryRow(ctx, `SELECT `+dateColumns+` FROM package_dates WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.PackageDate{}, domain.NotFound("package date", id.String())
	}
	return d, mapErr("get package date", err)
}

func (r *Repository) GetPackage(ctx context.Context, id uuid.UUID) (domain.Package, error) {
	return getPackage(ctx, r.pool, id)
}

func (r *Repository) GetPackageDate(ctx context.Context, id uuid.UUID) (domain.PackageDate, error) {
	return getPackageDate(ctx, r.pool, id)
}

func (r *Repository) ListPackages(ctx context.Context, activeOnly bool) ([]domain.Package, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+packageColumns+` FROM packages
		WHERE active OR NOT $1
		ORDER BY title ASC
	`, activeOnly)
	if err != nil {
		return nil, mapErr("list packages", err)
	}
	defer rows.Close()

	var packages []domain.Package
	for rows.Next() {
		p, err := scanPackage(rows)
		if err != nil {
			return nil, mapErr("scan package", err)
		}
		packages = append(packages, p)
	}
	return packages, mapErr("list packages", rows.Err())
}

func (r *Repository) CreatePackage(ctx context.Context, p domain.Package) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO packages (`+packageColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, p.ID, p.Title, p.Destination, p.DurationDays, p.PricePerHead, p.AdvancePerHead,
		p.MaxCapacity, p.Active, p.CreatedAt, p.UpdatedAt)
	return mapErr("create package", err)
}

func (r *Repository) UpdatePackage(ctx context.Context, p domain.Package) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE packages
		SET title = $2, destination = $3, duration_days = $4, price_per_head = $5,
			advance_per_head = $6, max_capacity = $7, active = $8, updated_at = $9
		WHERE id = $1
	`, p.ID, p.Title, p.Destination, p.DurationDays, p.PricePerHead, p.AdvancePerHead,
		p.MaxCapacity, p.Active, p.UpdatedAt)
	if err != nil {
		return mapErr("update package", err)
	}
	if result.RowsAffected() == 0 {
		return domain.NotFound("package", p.ID.String())
	}
	return nil
}

func (r *Repository) SetPackageActive(ctx context.Context, id uuid.UUID, active bool, now time.Time) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE packages SET active = $2, updated_at = $3 WHERE id = $1
	`, id, active, now)
	if err != nil {
		return mapErr("set package active", err)
	}
	if result.RowsAffected() == 0 {
		return domain.NotFound("package", id.String())
	}
	return nil
}

// DeletePackage removes a package and its dates. It fails with a conflict while any booking
// references the package.
func (r *Repository) DeletePackage(ctx context.Context, id uuid.UUID) error {
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		var bookings int
		if err := tx.QueryRow(ctx, `SELECT count(*) FROM bookings WHERE package_id = $1`, id).Scan(&bookings); err != nil {
			return mapErr("count package bookings", err)
		}
		if bookings > 0 {
			return domain.Conflictf("package has %d booking(s) and cannot be deleted; deactivate it instead", bookings)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM package_dates WHERE package_id = $1`, id); err != nil {
			return mapErr("delete package dates", err)
		}
		result, err := tx.Exec(ctx, `DELETE FROM packages WHERE id = $1`, id)
		if err != nil {
			return mapErr("delete package", err)
		}
		if result.RowsAffected() == 0 {
			return domain.NotFound("package", id.String())
		}
		return nil
	})
}

func (r *Repository) AddDate(ctx context.Context, d domain.PackageDate) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO package_dates (`+dateColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, d.ID, d.PackageID, d.Date, d.MaxBookings, d.CurrentBookings, d.CreatedAt)
	return mapErr("add package date", err)
}

// ListDates returns the dates of a package on or after from, earliest first.
func (r *Repository) ListDates(ctx context.Context, packageID uuid.UUID, from time.Time) ([]domain.PackageDate, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+dateColumns+` FROM package_dates
		WHERE package_id = $1 AND travel_date >= $2
		ORDER BY travel_date ASC
	`, packageID, from)
	if err != nil {
		return nil, mapErr("list package dates", err)
	}
	defer rows.Close()

	var dates []domain.PackageDate
	for rows.Next() {
		d, err := scanDate(rows)
		if err != nil {
			return nil, mapErr("scan package date", err)
		}
		dates = append(dates, d)
	}
	return dates, mapErr("list package dates", rows.Err())
}

// UpdateDateCapacity changes max_bookings. The new ceiling may not drop below the seats
// already counted.
func (r *Repository) UpdateDateCapacity(ctx context.Context, id uuid.UUID, maxBookings int) (domain.PackageDate, error) {
	d, err := scanDate(r.pool.QueryRow(ctx, `
		UPDATE package_dates SET max_bookings = $2
		WHERE id = $1 AND current_bookings <= $2
		RETURNING `+dateColumns, id, maxBookings))
	if err == nil {
		return d, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.PackageDate{}, mapErr("update date capacity", err)
	}
	cur, err := getPackageDate(ctx, r.pool, id)
	if err != nil {
		return domain.PackageDate{}, err
	}
	return domain.PackageDate{}, domain.Validationf(
		"capacity cannot be lowered to %d, %d seat(s) are already booked", maxBookings, cur.CurrentBookings)
}

func (r *Repository) DeleteDate(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM package_dates WHERE id = $1`, id)
	if err != nil {
		return mapErr("delete package date", err)
	}
	if result.RowsAffected() == 0 {
		return domain.NotFound("package date", id.String())
	}
	return nil
}

func (q *txQueries) GetPackage(ctx context.Context, id uuid.UUID) (domain.Package, error) {
	return getPackage(ctx, q.tx, id)
}

func (q *txQueries) GetPackageDate(ctx context.Context, id uuid.UUID) (domain.PackageDate, error) {
	return getPackageDate(ctx, q.tx, id)
}

// ReserveSeats is the only way the date counter grows: a single conditional UPDATE, so
// concurrent confirmations can never push current_bookings above max_bookings.
func (q *txQueries) ReserveSeats(ctx context.Context, dateID uuid.UUID, n int) error {
	result, err := q.tx.Exec(ctx, `
		UPDATE package_dates SET current_bookings = current_bookings + $2
		WHERE id = $1 AND current_bookings + $2 <= max_bookings
	`, dateID, n)
	if err != nil {
		return mapErr("reserve seats", err)
	}
	if result.RowsAffected() == 1 {
		return nil
	}
	d, err := getPackageDate(ctx, q.tx, dateID)
	if err != nil {
		return err
	}
	return domain.CapacityExceeded(d.AvailableSeats(), n)
}

func (q *txQueries) ReleaseSeats(ctx context.Context, dateID uuid.UUID, n int) error {
	result, err := q.tx.Exec(ctx, `
		UPDATE package_dates SET current_bookings = greatest(current_bookings - $2, 0)
		WHERE id = $1
	`, dateID, n)
	if err != nil {
		return mapErr("release seats", err)
	}
	if result.RowsAffected() == 0 {
		return domain.NotFound("package date", dateID.String())
	}
	return nil
}
