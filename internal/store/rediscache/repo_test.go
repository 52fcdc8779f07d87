package rediscache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studiobook/internal/domain"
	"studiobook/internal/store"
	"studiobook/internal/store/memory"
)

type fakeRedis struct {
	mu   sync.Mutex
	data map[string]string
	err  error
	gets int
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	if f.data == nil {
		f.data = make(map[string]string)
	}
	f.data[key] = string(value.([]byte))
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Incr(ctx context.Context, key string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	if f.data == nil {
		f.data = make(map[string]string)
	}
	n, _ := strconv.ParseInt(f.data[key], 10, 64)
	n++
	f.data[key] = strconv.FormatInt(n, 10)
	return redis.NewIntResult(n, nil)
}

type countingRepo struct {
	store.BookingRepository
	lists int
}

func (c *countingRepo) List(ctx context.Context) ([]domain.Booking, error) {
	c.lists++
	return c.BookingRepository.List(ctx)
}

// pausingRepo stops the first List after it has read the rows, until the
// test releases it.
type pausingRepo struct {
	store.BookingRepository
	once    sync.Once
	read    chan struct{}
	release chan struct{}
}

func (p *pausingRepo) List(ctx context.Context) ([]domain.Booking, error) {
	rows, err := p.BookingRepository.List(ctx)
	p.once.Do(func() {
		close(p.read)
		<-p.release
	})
	return rows, err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seed(t *testing.T, repo store.BookingRepository, start, end string) domain.Booking {
	t.Helper()
	var out domain.Booking
	err := repo.InStudioDay(context.Background(), "studio-1", "2024-01-10", func(ctx context.Context, tx store.StudioDayTx) error {
		b, err := tx.Create(ctx, domain.Booking{
			Studio: "studio-1", Date: "2024-01-10", StartTime: start, EndTime: end,
			UserName: "Ana", Purpose: domain.PurposeLive, Subject: "s",
		})
		out = b
		return err
	})
	require.NoError(t, err)
	return out
}

func TestRepo_ListIsCachedUntilWrite(t *testing.T) {
	inner := &countingRepo{BookingRepository: memory.NewRepo()}
	rdb := &fakeRedis{}
	var hits, misses int
	repo := NewRepo(inner, rdb, time.Minute, discardLogger(), WithHitObserver(func(hit bool) {
		if hit {
			hits++
		} else {
			misses++
		}
	}))

	first := seed(t, repo, "10:00", "11:00")

	rows, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, first.ID, rows[0].ID)

	rows, err = repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, inner.lists)
	assert.Equal(t, 1, hits)
	assert.Equal(t, 1, misses)

	seed(t, repo, "12:00", "13:00")
	rows, err = repo.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.Equal(t, 2, inner.lists)

	_, err = repo.Delete(context.Background(), first.ID)
	require.NoError(t, err)
	rows, err = repo.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, 3, inner.lists)
}

func TestRepo_RedisFailureFallsThrough(t *testing.T) {
	inner := &countingRepo{BookingRepository: memory.NewRepo()}
	rdb := &fakeRedis{err: errors.New("connection refused")}
	repo := NewRepo(inner, rdb, 0, discardLogger())

	seed(t, repo, "10:00", "11:00")
	rows, err := repo.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	_, err = repo.Delete(context.Background(), rows[0].ID)
	require.NoError(t, err)
	_, err = repo.Delete(context.Background(), rows[0].ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRepo_UnreadablePayloadIsIgnored(t *testing.T) {
	inner := &countingRepo{BookingRepository: memory.NewRepo()}
	rdb := &fakeRedis{data: map[string]string{DefaultKey + ":0": "not json"}}
	repo := NewRepo(inner, rdb, time.Minute, discardLogger())

	rows, err := repo.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Equal(t, 1, inner.lists)
}

func TestRepo_ListRacingAWriteDoesNotCacheStaleRows(t *testing.T) {
	inner := &pausingRepo{
		BookingRepository: memory.NewRepo(),
		read:              make(chan struct{}),
		release:           make(chan struct{}),
	}
	repo := NewRepo(inner, &fakeRedis{}, time.Minute, discardLogger())

	done := make(chan []domain.Booking)
	go func() {
		rows, _ := repo.List(context.Background())
		done <- rows
	}()

	<-inner.read
	created := seed(t, repo, "10:00", "11:00")
	close(inner.release)
	assert.Empty(t, <-done)

	rows, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, created.ID, rows[0].ID)
}

func TestRedisIntegration_NewClient(t *testing.T) {
	addr := strings.TrimSpace(os.Getenv("STUDIOBOOK_TEST_REDIS_ADDR"))
	if addr == "" {
		t.Skip("STUDIOBOOK_TEST_REDIS_ADDR not set")
	}
	client, err := NewClient(context.Background(), addr, "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	key := "studiobook:test:" + time.Now().Format("150405.000000")
	repo := NewRepo(memory.NewRepo(), client, time.Minute, discardLogger(), WithKey(key))
	t.Cleanup(func() { client.Del(context.Background(), key+":gen", key+":0", key+":1") })

	seed(t, repo, "10:00", "11:00")
	rows, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)

	cached, err := client.Get(context.Background(), key+":1").Result()
	require.NoError(t, err)
	assert.Contains(t, cached, rows[0].ID)
}
