package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"studiobook/internal/domain"
	"studiobook/internal/store"
)

const (
	pgExclusionViolation = "23P01"
	pgUniqueViolation    = "23505"
	noOverlapConstraint  = "bookings_no_overlap"
)

type BookingRepo struct {
	db *bun.DB
}

func NewBookingRepo(db *bun.DB) *BookingRepo {
	return &BookingRepo{db: db}
}

type studioDayTx struct {
	tx     bun.Tx
	studio string
	date   string
}

func (r *BookingRepo) List(ctx context.Context) ([]domain.Booking, error) {
	rows := make([]domain.Booking, 0)
	err := r.db.NewSelect().
		Model(&rows).
		OrderExpr("date ASC, start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *BookingRepo) InStudioDay(ctx context.Context, studio, date string, fn func(ctx context.Context, tx store.StudioDayTx) error) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockStudioDay(ctx, tx, studio, date); err != nil {
			return err
		}
		return fn(ctx, studioDayTx{tx: tx, studio: studio, date: date})
	})
}

func (r *BookingRepo) Delete(ctx context.Context, id string) (domain.Booking, error) {
	var out domain.Booking
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		err := tx.NewSelect().
			Model(&out).
			Where("id = ?", id).
			Limit(1).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrNotFound
			}
			return err
		}
		if err := lockStudioDay(ctx, tx, out.Studio, out.Date); err != nil {
			return err
		}

		res, err := tx.NewDelete().
			Model((*domain.Booking)(nil)).
			Where("id = ?", id).
			Exec(ctx)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return store.ErrNotFound
		}
		return retire(ctx, tx, id)
	})
	if err != nil {
		return domain.Booking{}, err
	}
	return out, nil
}

// retire records a deleted id so that no later insert can take it.
func retire(ctx context.Context, tx bun.Tx, id string) error {
	_, err := tx.NewRaw("INSERT INTO deleted_bookings (id) VALUES (?) ON CONFLICT (id) DO NOTHING", id).Exec(ctx)
	return err
}

func retired(ctx context.Context, tx bun.Tx, id string) (bool, error) {
	return tx.NewSelect().
		Table("deleted_bookings").
		Where("id = ?", id).
		Exists(ctx)
}

func lockStudioDay(ctx context.Context, tx bun.Tx, studio, date string) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", studio+"/"+date).Exec(ctx)
	return err
}

func (t studioDayTx) ListDay(ctx context.Context) ([]domain.Booking, error) {
	rows := make([]domain.Booking, 0)
	err := t.tx.NewSelect().
		Model(&rows).
		Where("studio = ?", t.studio).
		Where("date = ?", t.date).
		OrderExpr("start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (t studioDayTx) Get(ctx context.Context, id string) (domain.Booking, error) {
	var b domain.Booking
	err := t.tx.NewSelect().
		Model(&b).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Booking{}, store.ErrNotFound
		}
		return domain.Booking{}, err
	}
	return b, nil
}

// Create inserts b. The exclusion constraint backs up the overlap check the
// caller ran, and a duplicate id is accepted only when it names the same
// booking, and never when it belonged to a deleted one. The insert runs under
// a savepoint so the transaction stays usable after a violation.
func (t studioDayTx) Create(ctx context.Context, b domain.Booking) (domain.Booking, error) {
	m := b

	if b.ID != "" {
		gone, err := retired(ctx, t.tx, b.ID)
		if err != nil {
			return domain.Booking{}, err
		}
		if gone {
			return domain.Booking{}, &store.RetiredError{ID: b.ID}
		}
	}

	if _, err := t.tx.NewRaw("SAVEPOINT booking_insert").Exec(ctx); err != nil {
		return domain.Booking{}, err
	}
	_, err := t.tx.NewInsert().Model(&m).Exec(ctx)
	if err != nil {
		if _, rbErr := t.tx.NewRaw("ROLLBACK TO SAVEPOINT booking_insert").Exec(ctx); rbErr != nil {
			return domain.Booking{}, err
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgExclusionViolation && pgErr.ConstraintName == noOverlapConstraint {
				return domain.Booking{}, store.ErrConflict
			}
			if pgErr.Code == pgUniqueViolation {
				existing, getErr := t.Get(ctx, m.ID)
				if getErr != nil {
					return domain.Booking{}, err
				}
				if !existing.SameContent(b.Unassigned()) {
					return domain.Booking{}, store.ErrIdempotencyConflict
				}
				return existing, nil
			}
		}
		return domain.Booking{}, err
	}

	return m, nil
}
