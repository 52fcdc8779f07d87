package bookings

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingLoader struct {
	mu    sync.Mutex
	calls []bool
	hit   chan struct{}
}

func (r *recordingLoader) Load(ctx context.Context, foreground bool) error {
	r.mu.Lock()
	r.calls = append(r.calls, foreground)
	n := len(r.calls)
	r.mu.Unlock()
	if n == 3 {
		close(r.hit)
	}
	return nil
}

func TestPoller_ForegroundThenBackground(t *testing.T) {
	l := &recordingLoader{hit: make(chan struct{})}
	p := NewPoller(l, 5*time.Millisecond, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	select {
	case <-l.hit:
	case <-time.After(2 * time.Second):
		t.Fatalf("poller did not tick")
	}
	cancel()

	err := <-done
	assert.True(t, errors.Is(err, context.Canceled))

	l.mu.Lock()
	defer l.mu.Unlock()
	require.GreaterOrEqual(t, len(l.calls), 3)
	assert.True(t, l.calls[0])
	for _, fg := range l.calls[1:] {
		assert.False(t, fg)
	}
}

func TestNewPoller_DefaultInterval(t *testing.T) {
	p := NewPoller(&recordingLoader{}, 0, nil)
	assert.Equal(t, DefaultPollInterval, p.interval)
}
