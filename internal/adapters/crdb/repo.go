package crdb

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robertarktes/tour-package-bookings/internal/booking"
	"github.com/robertarktes/tour-package-bookings/internal/domain"
	"github.com/robertarktes/tour-package-bookings/internal/observability"
)

const (
	SerializationFailureCode = "40001"
	ForeignKeyViolationCode  = "23503"
	UniqueViolationCode      = "23505"
	CheckViolationCode       = "23514"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// WithTx runs fn in a SERIALIZABLE transaction. Retry errors are reported as
// domain.ErrSerializationFailure; the caller decides whether to run fn again.
func (r *Repository) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	start := time.Now()
	defer func() { observability.DBTxDuration.Observe(time.Since(start).Seconds()) }()

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return mapErr("begin", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return mapErr("tx", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return mapErr("commit", err)
	}
	return nil
}

// InTx exposes WithTx through the booking service's transaction port.
func (r *Repository) InTx(ctx context.Context, fn func(ctx context.Context, q booking.Queries) error) error {
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(ctx, &txQueries{tx: tx})
	})
}

// mapErr translates driver errors into domain kinds. Errors that already carry a domain
// kind pass through unchanged.
func mapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if domain.Kind(err) != nil {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case SerializationFailureCode:
			return errors.WithSecondaryError(domain.ErrSerializationFailure, err)
		case ForeignKeyViolationCode:
			return domain.Conflictf("%s: the record is still referenced by other records", op)
		case UniqueViolationCode:
			return domain.Conflictf("%s: a record with the same key already exists", op)
		case CheckViolationCode:
			return domain.Conflictf("%s: the change would violate %s", op, pgErr.ConstraintName)
		}
	}
	return domain.PersistenceFailure("crdb: "+op, err)
}

type txQueries struct {
	tx pgx.Tx
}

var _ booking.Queries = (*txQueries)(nil)
