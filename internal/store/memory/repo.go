// Package memory is a process-local booking repository used when no
// database is configured.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"studiobook/internal/domain"
	"studiobook/internal/schedule"
	"studiobook/internal/store"
)

type Repo struct {
	mu      sync.Mutex
	rows    map[string]domain.Booking
	retired map[string]struct{}
}

func NewRepo() *Repo {
	return &Repo{
		rows:    make(map[string]domain.Booking),
		retired: make(map[string]struct{}),
	}
}

func (r *Repo) List(ctx context.Context) ([]domain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Booking, 0, len(r.rows))
	for _, b := range r.rows {
		out = append(out, b)
	}
	schedule.SortByStart(out)
	return out, nil
}

// InStudioDay holds the repository lock for the whole of fn, which is
// stricter than a per-day lock and just as correct.
func (r *Repo) InStudioDay(ctx context.Context, studio, date string, fn func(ctx context.Context, tx store.StudioDayTx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx, dayTx{repo: r, studio: studio, date: date})
}

func (r *Repo) Delete(ctx context.Context, id string) (domain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.rows[id]
	if !ok {
		return domain.Booking{}, store.ErrNotFound
	}
	delete(r.rows, id)
	r.retired[id] = struct{}{}
	return b, nil
}

type dayTx struct {
	repo   *Repo
	studio string
	date   string
}

func (t dayTx) ListDay(ctx context.Context) ([]domain.Booking, error) {
	out := make([]domain.Booking, 0)
	for _, b := range t.repo.rows {
		if b.Studio == t.studio && b.Date == t.date {
			out = append(out, b)
		}
	}
	schedule.SortByStart(out)
	return out, nil
}

func (t dayTx) Get(ctx context.Context, id string) (domain.Booking, error) {
	b, ok := t.repo.rows[id]
	if !ok {
		return domain.Booking{}, store.ErrNotFound
	}
	return b, nil
}

func (t dayTx) Create(ctx context.Context, b domain.Booking) (domain.Booking, error) {
	if b.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return domain.Booking{}, err
		}
		b.ID = id.String()
	}
	if _, ok := t.repo.retired[b.ID]; ok {
		return domain.Booking{}, &store.RetiredError{ID: b.ID}
	}
	if existing, ok := t.repo.rows[b.ID]; ok {
		if !existing.SameContent(b.Unassigned()) {
			return domain.Booking{}, store.ErrIdempotencyConflict
		}
		return existing, nil
	}
	start, _ := domain.ParseClock(b.StartTime)
	end, _ := domain.ParseClock(b.EndTime)
	for _, e := range t.repo.rows {
		if e.Studio != b.Studio || e.Date != b.Date {
			continue
		}
		es, _ := domain.ParseClock(e.StartTime)
		ee, _ := domain.ParseClock(e.EndTime)
		if schedule.Overlaps(start, end, es, ee) {
			return domain.Booking{}, store.ErrConflict
		}
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	t.repo.rows[b.ID] = b
	return b, nil
}
