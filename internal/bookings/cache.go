// Package bookings keeps a client's local view of all bookings. Mutations are
// applied optimistically and every load replaces the view with what the
// store returned.
package bookings

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"studiobook/internal/domain"
	"studiobook/internal/schedule"
)

// PlaceholderPrefix marks ids of bookings that the store has not confirmed yet.
const PlaceholderPrefix = "pending-"

const reconcileTimeout = 30 * time.Second

var ErrMutationInFlight = errors.New("another booking change is still in progress")

// Store is the authority the cache mirrors.
type Store interface {
	List(ctx context.Context) ([]domain.Booking, error)
	Create(ctx context.Context, nb domain.NewBooking, requestID string) (domain.Booking, error)
	Delete(ctx context.Context, id string) error
}

type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateReady
	StateError
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Snapshot is a consistent copy of the cache. Err is set in StateError;
// StaleErr is the last background load failure while data stayed available.
type Snapshot struct {
	State    State
	Bookings []domain.Booking
	Err      error
	StaleErr error
	LoadedAt time.Time
}

type Cache struct {
	store  Store
	policy schedule.Policy
	log    *slog.Logger
	now    func() time.Time

	// ioMu orders loads and mutations against the store. mutating rejects a
	// second mutation instead of queueing it.
	ioMu     sync.Mutex
	mutating sync.Mutex

	mu       sync.RWMutex
	state    State
	bookings []domain.Booking
	err      error
	staleErr error
	loadedAt time.Time

	changes chan struct{}
}

type Option func(*Cache)

func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

func New(store Store, policy schedule.Policy, log *slog.Logger, opts ...Option) *Cache {
	if log == nil {
		log = slog.Default()
	}
	c := &Cache{
		store:   store,
		policy:  policy,
		log:     log.With(slog.String("component", "bookings.cache")),
		now:     time.Now,
		changes: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Changes signals after every state change. Signals coalesce.
func (c *Cache) Changes() <-chan struct{} {
	return c.changes
}

func (c *Cache) Policy() schedule.Policy {
	return c.policy
}

func (c *Cache) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{
		State:    c.state,
		Bookings: append([]domain.Booking(nil), c.bookings...),
		Err:      c.err,
		StaleErr: c.staleErr,
		LoadedAt: c.loadedAt,
	}
}

// Day returns the cached bookings of one studio day ordered by start time.
func (c *Cache) Day(studio, date string) []domain.Booking {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return schedule.ForDay(c.bookings, studio, date)
}

func (c *Cache) Availability(studio, date string) []string {
	return c.policy.Window.AvailableStarts(c.Day(studio, date))
}

func (c *Cache) EndOptions(studio, date, start string) ([]string, error) {
	return c.policy.Window.AvailableEnds(c.Day(studio, date), start)
}

// Load replaces the cached bookings with the store's. A foreground load shows
// StateLoading and ends in StateError on failure; a failed background load
// keeps whatever data is already there.
func (c *Cache) Load(ctx context.Context, foreground bool) error {
	c.ioMu.Lock()
	defer c.ioMu.Unlock()
	return c.load(ctx, foreground)
}

func (c *Cache) load(ctx context.Context, foreground bool) error {
	if foreground {
		c.mu.Lock()
		c.state = StateLoading
		c.err = nil
		c.mu.Unlock()
		c.notify()
	}

	list, err := c.store.List(ctx)

	c.mu.Lock()
	if err != nil {
		if foreground || c.state != StateReady {
			c.state = StateError
			c.err = err
		}
		c.staleErr = err
		state := c.state
		c.mu.Unlock()
		c.notify()
		c.log.Warn("bookings load failed", slog.Bool("foreground", foreground), slog.String("state", state.String()), slog.Any("err", err))
		return err
	}
	schedule.SortByStart(list)
	c.bookings = list
	c.state = StateReady
	c.err = nil
	c.staleErr = nil
	c.loadedAt = c.now()
	c.mu.Unlock()
	c.notify()

	c.log.Debug("bookings loaded", slog.Bool("foreground", foreground), slog.Int("count", len(list)))
	return nil
}

// Create validates nb and checks it against the cached day before anything
// is sent. The booking shows up immediately under a placeholder id and the
// cache is reloaded once the store has answered.
func (c *Cache) Create(ctx context.Context, nb domain.NewBooking) (domain.Booking, error) {
	if !c.mutating.TryLock() {
		return domain.Booking{}, ErrMutationInFlight
	}
	defer c.mutating.Unlock()

	nb, err := c.policy.Validate(nb, c.now())
	if err != nil {
		return domain.Booking{}, err
	}

	c.ioMu.Lock()
	defer c.ioMu.Unlock()

	c.mu.RLock()
	err = schedule.CheckAdmission(c.bookings, nb)
	c.mu.RUnlock()
	if err != nil {
		return domain.Booking{}, err
	}

	requestID := uuid.NewString()
	placeholder := nb.WithID(PlaceholderPrefix + requestID)
	c.mu.Lock()
	c.bookings = append(c.bookings, placeholder)
	c.mu.Unlock()
	c.notify()

	created, err := c.store.Create(ctx, nb, requestID)

	c.mu.Lock()
	if err != nil {
		c.bookings = without(c.bookings, placeholder.ID)
	} else if created.ID != "" {
		c.bookings = replaced(c.bookings, placeholder.ID, created)
	}
	// Without an id from the store the placeholder stays until reconcile
	// replaces the whole list.
	c.mu.Unlock()
	c.notify()

	if err != nil {
		c.log.Info("booking create failed", slog.String("studio", nb.Studio), slog.String("date", nb.Date), slog.String("start_time", nb.StartTime), slog.Any("err", err))
	} else {
		c.log.Info("booking created", slog.String("booking_id", created.ID), slog.String("studio", nb.Studio), slog.String("date", nb.Date))
	}

	c.reconcile(ctx)
	if err != nil {
		return domain.Booking{}, err
	}
	return created, nil
}

// Cancel drops the booking from the view and deletes it from the store. The
// cache is reloaded afterwards whatever the outcome.
func (c *Cache) Cancel(ctx context.Context, id string) error {
	id, err := schedule.RequireID(id)
	if err != nil {
		return err
	}
	if !c.mutating.TryLock() {
		return ErrMutationInFlight
	}
	defer c.mutating.Unlock()

	c.ioMu.Lock()
	defer c.ioMu.Unlock()

	c.mu.Lock()
	c.bookings = without(c.bookings, id)
	c.mu.Unlock()
	c.notify()

	err = c.store.Delete(ctx, id)
	if err != nil {
		c.log.Info("booking cancel failed", slog.String("booking_id", id), slog.Any("err", err))
	} else {
		c.log.Info("booking cancelled", slog.String("booking_id", id))
	}

	c.reconcile(ctx)
	return err
}

// reconcile runs a background load that outlives a cancelled caller.
func (c *Cache) reconcile(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reconcileTimeout)
	defer cancel()
	_ = c.load(ctx, false)
}

func (c *Cache) notify() {
	select {
	case c.changes <- struct{}{}:
	default:
	}
}

func without(list []domain.Booking, id string) []domain.Booking {
	out := make([]domain.Booking, 0, len(list))
	for _, b := range list {
		if b.ID != id {
			out = append(out, b)
		}
	}
	return out
}

func replaced(list []domain.Booking, id string, b domain.Booking) []domain.Booking {
	out := make([]domain.Booking, 0, len(list))
	for _, existing := range list {
		if existing.ID == id {
			out = append(out, b)
			continue
		}
		out = append(out, existing)
	}
	return out
}
