// Package rediscache keeps the list of all bookings in Redis in front of
// another repository. Snapshots are stored under a generation number that
// every write bumps, so a list read racing a write can only fill a
// generation nobody reads any more.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"studiobook/internal/domain"
	"studiobook/internal/store"
)

const (
	DefaultKey = "studiobook:bookings:all"
	DefaultTTL = 30 * time.Second
)

type cmdable interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
}

// NewClient connects to Redis and pings it.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return client, nil
}

// Repo serves List from Redis when it can. Redis failures are logged and the
// call goes to the wrapped repository.
type Repo struct {
	next  store.BookingRepository
	rdb   cmdable
	key   string
	ttl   time.Duration
	log   *slog.Logger
	onHit func(hit bool)
}

type Option func(*Repo)

func WithKey(key string) Option {
	return func(r *Repo) {
		if key != "" {
			r.key = key
		}
	}
}

// WithHitObserver is called once per List with whether it was served from Redis.
func WithHitObserver(fn func(hit bool)) Option {
	return func(r *Repo) {
		if fn != nil {
			r.onHit = fn
		}
	}
}

func NewRepo(next store.BookingRepository, rdb cmdable, ttl time.Duration, log *slog.Logger, opts ...Option) *Repo {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = slog.Default()
	}
	r := &Repo{
		next:  next,
		rdb:   rdb,
		key:   DefaultKey,
		ttl:   ttl,
		log:   log.With(slog.String("component", "store.rediscache")),
		onHit: func(bool) {},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Repo) List(ctx context.Context) ([]domain.Booking, error) {
	gen, ok := r.generation(ctx)
	if ok {
		raw, err := r.rdb.Get(ctx, r.snapshotKey(gen)).Bytes()
		switch {
		case err == nil:
			var rows []domain.Booking
			if err := json.Unmarshal(raw, &rows); err == nil {
				r.onHit(true)
				return rows, nil
			}
			r.log.Warn("discarding unreadable cached bookings", slog.String("key", r.snapshotKey(gen)))
		case errors.Is(err, redis.Nil):
		default:
			r.log.Warn("redis get failed", slog.String("key", r.snapshotKey(gen)), slog.Any("err", err))
		}
	}
	r.onHit(false)

	rows, err := r.next.List(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return rows, nil
	}
	if payload, err := json.Marshal(rows); err == nil {
		if err := r.rdb.Set(ctx, r.snapshotKey(gen), payload, r.ttl).Err(); err != nil {
			r.log.Warn("redis set failed", slog.String("key", r.snapshotKey(gen)), slog.Any("err", err))
		}
	}
	return rows, nil
}

// generation reads the current write generation. It must be read before the
// underlying list so the snapshot is never newer than its label.
func (r *Repo) generation(ctx context.Context) (int64, bool) {
	gen, err := r.rdb.Get(ctx, r.generationKey()).Int64()
	switch {
	case err == nil:
		return gen, true
	case errors.Is(err, redis.Nil):
		return 0, true
	default:
		r.log.Warn("redis get failed", slog.String("key", r.generationKey()), slog.Any("err", err))
		return 0, false
	}
}

func (r *Repo) generationKey() string {
	return r.key + ":gen"
}

func (r *Repo) snapshotKey(gen int64) string {
	return fmt.Sprintf("%s:%d", r.key, gen)
}

func (r *Repo) InStudioDay(ctx context.Context, studio, date string, fn func(ctx context.Context, tx store.StudioDayTx) error) error {
	if err := r.next.InStudioDay(ctx, studio, date, fn); err != nil {
		return err
	}
	r.invalidate(ctx)
	return nil
}

func (r *Repo) Delete(ctx context.Context, id string) (domain.Booking, error) {
	b, err := r.next.Delete(ctx, id)
	if err != nil {
		return domain.Booking{}, err
	}
	r.invalidate(ctx)
	return b, nil
}

// invalidate moves readers to a new generation. If Redis cannot be reached
// the old snapshot lives out its TTL.
func (r *Repo) invalidate(ctx context.Context) {
	if err := r.rdb.Incr(context.WithoutCancel(ctx), r.generationKey()).Err(); err != nil {
		r.log.Warn("redis invalidate failed", slog.String("key", r.generationKey()), slog.Any("err", err))
	}
}
