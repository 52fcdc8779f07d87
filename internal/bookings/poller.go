package bookings

import (
	"context"
	"log/slog"
	"time"
)

const DefaultPollInterval = 15 * time.Second

type loader interface {
	Load(ctx context.Context, foreground bool) error
}

// Poller keeps a cache converging with the store without user action.
type Poller struct {
	cache    loader
	interval time.Duration
	log      *slog.Logger
}

func NewPoller(cache loader, interval time.Duration, log *slog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if log == nil {
		log = slog.Default()
	}
	return &Poller{
		cache:    cache,
		interval: interval,
		log:      log.With(slog.String("component", "bookings.poller")),
	}
}

// Run does a foreground load, then a background load every interval until
// ctx is done. Load failures are already recorded in the cache.
func (p *Poller) Run(ctx context.Context) error {
	p.log.Info("poller started", slog.Duration("interval", p.interval))
	_ = p.cache.Load(ctx, true)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info("poller stopped")
			return ctx.Err()
		case <-ticker.C:
			_ = p.cache.Load(ctx, false)
		}
	}
}
