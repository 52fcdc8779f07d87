package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"studiobook/internal/bookings"
	"studiobook/internal/config"
	"studiobook/internal/domain"
	"studiobook/internal/remote"
	"studiobook/internal/session"
	grpcTransport "studiobook/internal/transport/grpc"
)

const serviceName = "studiobook-agent"

type remoteStore interface {
	bookings.Store
	session.Endpoint
}

type bookRequest struct {
	studio  string
	date    string
	slot    string
	user    string
	subject string
	purpose string
}

func main() {
	var req bookRequest
	flag.StringVar(&req.studio, "studio", "", "studio to watch and book (default: first studio)")
	flag.StringVar(&req.date, "date", "", "day to watch and book, YYYY-MM-DD within the next seven days (default: today)")
	flag.StringVar(&req.slot, "book", "", "book HH:MM-HH:MM once the first load completes")
	flag.StringVar(&req.user, "user", "", "name to book under")
	flag.StringVar(&req.subject, "subject", "", "booking subject")
	flag.StringVar(&req.purpose, "purpose", string(domain.DefaultPurpose), "booking purpose")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn(".env load failed", slog.Any("err", err))
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)})).With(
		slog.String("service", serviceName),
	)
	slog.SetDefault(log)

	policy, err := cfg.Policy()
	if err != nil {
		log.Error("schedule config invalid", slog.Any("err", err))
		os.Exit(1)
	}

	rs, err := newRemoteStore(cfg, policy.Location, log)
	if err != nil {
		log.Error("remote store setup failed", slog.Any("err", err))
		os.Exit(1)
	}

	cache := bookings.New(rs, policy, log)
	ctrl := session.New(cache, rs, log, session.WithLocation(policy.Location))
	if ctrl.Dialog() == session.DialogSettings {
		log.Warn("remote.url not set; the schedule stays empty until an endpoint is configured")
	}
	if req.studio != "" {
		if err := ctrl.SelectStudio(req.studio); err != nil {
			log.Error("invalid studio", slog.Any("err", err))
			os.Exit(2)
		}
	}
	if req.date != "" {
		if err := ctrl.SelectDate(req.date); err != nil {
			log.Error("invalid date", slog.Any("err", err))
			os.Exit(2)
		}
	}

	log.Info("starting",
		slog.String("remote_transport", cfg.RemoteTransport),
		slog.String("timezone", policy.Location.String()),
		slog.Duration("poll_interval", cfg.PollInterval),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	poller := bookings.NewPoller(cache, cfg.PollInterval, log)
	pollDone := make(chan struct{})
	go func() {
		defer close(pollDone)
		_ = poller.Run(ctx)
	}()

	booked := req.slot == ""
	for {
		select {
		case <-ctx.Done():
			log.Info("shutdown signal received")
			<-pollDone
			if closer, ok := rs.(interface{ Close() error }); ok {
				_ = closer.Close()
			}
			return
		case <-cache.Changes():
			snap := cache.Snapshot()
			report(log, ctrl, snap)
			if !booked && snap.State == bookings.StateReady {
				booked = true
				book(ctx, log, ctrl, req)
			}
		}
	}
}

func newRemoteStore(cfg config.Config, loc *time.Location, log *slog.Logger) (remoteStore, error) {
	switch cfg.RemoteTransport {
	case "grpc":
		c, err := grpcTransport.NewClient(cfg.RemoteURL, cfg.RemoteTimeout, log)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return remote.NewClient(cfg.RemoteURL, cfg.RemoteTimeout, log, remote.WithLocation(loc)), nil
	}
}

// report logs the selected day: bookings per studio and the free starts of
// the selected studio.
func report(log *slog.Logger, ctrl *session.Controller, snap bookings.Snapshot) {
	studio, date := ctrl.Selected()
	switch snap.State {
	case bookings.StateLoading, bookings.StateUninitialized:
		log.Info("loading bookings")
		return
	case bookings.StateError:
		log.Warn("bookings unavailable", slog.Any("err", snap.Err))
		return
	}
	if snap.StaleErr != nil {
		log.Warn("showing last known bookings", slog.Any("err", snap.StaleErr), slog.Time("loaded_at", snap.LoadedAt))
	}

	for _, s := range ctrl.Schedule() {
		if len(s.Bookings) == 0 {
			continue
		}
		ranges := make([]string, 0, len(s.Bookings))
		for _, b := range s.Bookings {
			ranges = append(ranges, fmt.Sprintf("%s-%s %s", b.StartTime, b.EndTime, b.UserName))
		}
		log.Info("studio schedule", slog.String("studio", s.Studio.Name), slog.String("date", date), slog.String("bookings", strings.Join(ranges, ", ")))
	}

	if err := ctrl.OpenBooking(studio); err != nil {
		return
	}
	starts, _ := ctrl.StartOptions()
	ctrl.CloseDialog()
	log.Info("availability",
		slog.String("studio", studio),
		slog.String("date", date),
		slog.Int("free_starts", len(starts)),
		slog.String("starts", strings.Join(starts, " ")),
	)
}

func book(ctx context.Context, log *slog.Logger, ctrl *session.Controller, req bookRequest) {
	start, end, ok := strings.Cut(req.slot, "-")
	if !ok {
		log.Error("book must be HH:MM-HH:MM", slog.String("book", req.slot))
		return
	}
	studio, _ := ctrl.Selected()
	if err := ctrl.OpenBooking(studio); err != nil {
		log.Error("booking dialog failed", slog.Any("err", err))
		return
	}
	n := ctrl.ConfirmBooking(ctx, session.Draft{
		StartTime: strings.TrimSpace(start),
		EndTime:   strings.TrimSpace(end),
		UserName:  req.user,
		Purpose:   domain.Purpose(req.purpose),
		Subject:   req.subject,
	})
	if n.Kind == session.NotifyError {
		log.Error(n.Message)
		return
	}
	log.Info(n.Message)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
