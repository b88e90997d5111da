package crdb

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/robertarktes/tour-package-bookings/internal/domain"
)

const bookingColumns = `id, reference, package_id, package_date_id, package_title, travel_date, user_id,
	contact_name, contact_email, contact_phone, travelers,
	price_per_head, advance_per_head, total_amount, advance_paid, payment_proof_ref, utr,
	status, seats_counted, admin_notes, cancel_reason,
	full_payment_done, remainder_paid, remainder_proof_ref, remainder_utr,
	payment_submitted_at, confirmed_at, cancelled_at, remainder_paid_at,
	version, created_at, updated_at`

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var (
		b         domain.Booking
		travelers []byte
		status    string
	)
	err := row.Scan(&b.ID, &b.Reference, &b.PackageID, &b.PackageDateID, &b.PackageTitle, &b.TravelDate, &b.UserID,
		&b.ContactName, &b.ContactEmail, &b.ContactPhone, &travelers,
		&b.PricePerHead, &b.AdvancePerHead, &b.TotalAmount, &b.AdvancePaid, &b.PaymentProofRef, &b.UTR,
		&status, &b.SeatsCounted, &b.AdminNotes, &b.CancelReason,
		&b.FullPaymentDone, &b.RemainderPaid, &b.RemainderProofRef, &b.RemainderUTR,
		&b.PaymentSubmittedAt, &b.ConfirmedAt, &b.CancelledAt, &b.RemainderPaidAt,
		&b.Version, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(travelers, &b.Travelers); err != nil {
		return nil, errors.Wrapf(err, "decode travelers of booking %s", b.ID)
	}
	b.Status = domain.Status(status)
	b.Normalize()
	return &b, nil
}

func getBooking(ctx context.Context, q querier, id uuid.UUID, forUpdate bool) (*domain.Booking, error) {
	sql := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	b, err := scanBooking(q.QueryRow(ctx, sql, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFound("booking", id.String())
	}
	if err != nil {
		return nil, mapErr("get booking", err)
	}
	return b, nil
}

func (r *Repository) GetBooking(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	return getBooking(ctx, r.pool, id, false)
}

func (q *txQueries) GetBookingForUpdate(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	return getBooking(ctx, q.tx, id, true)
}

func (q *txQueries) InsertBooking(ctx context.Context, b *domain.Booking) error {
	travelers, err := json.Marshal(b.Travelers)
	if err != nil {
		return errors.Wrap(err, "encode travelers")
	}
	_, err = q.tx.Exec(ctx, `
		INSERT INTO bookings (`+bookingColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17,
			$18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31, $32)
	`, b.ID, b.Reference, b.PackageID, b.PackageDateID, b.PackageTitle, b.TravelDate, b.UserID,
		b.ContactName, b.ContactEmail, b.ContactPhone, travelers,
		b.PricePerHead, b.AdvancePerHead, b.TotalAmount, b.AdvancePaid, b.PaymentProofRef, b.UTR,
		string(b.Status), b.SeatsCounted, b.AdminNotes, b.CancelReason,
		b.FullPaymentDone, b.RemainderPaid, b.RemainderProofRef, b.RemainderUTR,
		b.PaymentSubmittedAt, b.ConfirmedAt, b.CancelledAt, b.RemainderPaidAt,
		b.Version, b.CreatedAt, b.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == UniqueViolationCode && strings.Contains(pgErr.ConstraintName, "reference") {
		return domain.ErrDuplicateReference
	}
	return mapErr("insert booking", err)
}

// UpdateBooking writes the mutable fields of b. The row must still be at version b.Version-1.
func (q *txQueries) UpdateBooking(ctx context.Context, b *domain.Booking) error {
	result, err := q.tx.Exec(ctx, `
		UPDATE bookings SET
			advance_paid = $3, payment_proof_ref = $4, utr = $5,
			status = $6, seats_counted = $7, admin_notes = $8, cancel_reason = $9,
			full_payment_done = $10, remainder_paid = $11, remainder_proof_ref = $12, remainder_utr = $13,
			payment_submitted_at = $14, confirmed_at = $15, cancelled_at = $16, remainder_paid_at = $17,
			version = $2, updated_at = $18
		WHERE id = $1 AND version = $2 - 1
	`, b.ID, b.Version,
		b.AdvancePaid, b.PaymentProofRef, b.UTR,
		string(b.Status), b.SeatsCounted, b.AdminNotes, b.CancelReason,
		b.FullPaymentDone, b.RemainderPaid, b.RemainderProofRef, b.RemainderUTR,
		b.PaymentSubmittedAt, b.ConfirmedAt, b.CancelledAt, b.RemainderPaidAt,
		b.UpdatedAt)
	if err != nil {
		return mapErr("update booking", err)
	}
	if result.RowsAffected() == 0 {
		return domain.Conflictf("booking %s was modified concurrently, reload and try again", b.Reference)
	}
	return nil
}

func (r *Repository) ListBookings(ctx context.Context, f domain.BookingFilter) ([]*domain.Booking, int, error) {
	f = f.Normalized()

	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Status != nil {
		add("status = $%d", string(*f.Status))
	}
	if f.UserID != nil {
		add("user_id = $%d", *f.UserID)
	}
	if f.PackageDateID != nil {
		add("package_date_id = $%d", *f.PackageDateID)
	}
	if f.CreatedBefore != nil {
		add("created_at < $%d", *f.CreatedBefore)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM bookings`+clause, args...).Scan(&total); err != nil {
		return nil, 0, mapErr("count bookings", err)
	}

	args = append(args, f.Limit, f.Offset())
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM bookings%s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		bookingColumns, clause, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, mapErr("list bookings", err)
	}
	defer rows.Close()

	var bookings []*domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, 0, mapErr("scan booking", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, mapErr("list bookings", err)
	}
	return bookings, total, nil
}

func (r *Repository) CountByStatus(ctx context.Context) (map[domain.Status]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, count(*) FROM bookings GROUP BY status`)
	if err != nil {
		return nil, mapErr("count bookings by status", err)
	}
	defer rows.Close()

	counts := make(map[domain.Status]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, mapErr("scan booking count", err)
		}
		counts[domain.Status(status)] = n
	}
	return counts, mapErr("count bookings by status", rows.Err())
}

// ListStalePending returns pending bookings without a payment proof created before createdBefore.
func (r *Repository) ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM bookings
		WHERE status = 'pending' AND payment_proof_ref IS NULL AND created_at < $1
		ORDER BY created_at ASC
		LIMIT $2
	`, createdBefore, limit)
	if err != nil {
		return nil, mapErr("list stale bookings", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, mapErr("scan stale booking", err)
		}
		ids = append(ids, id)
	}
	return ids, mapErr("list stale bookings", rows.Err())
}
