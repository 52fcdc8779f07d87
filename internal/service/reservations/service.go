package reservations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"studiobook/internal/domain"
	"studiobook/internal/events"
	"studiobook/internal/schedule"
	"studiobook/internal/store"
)

// ConflictMessage is what callers are told when a slot was taken first.
const ConflictMessage = "This time slot overlaps with an existing booking."

const (
	OutcomeAdmitted = "admitted"
	OutcomeReplayed = "replayed"
	OutcomeInvalid  = "invalid"
	OutcomeConflict = "conflict"
	OutcomeError    = "error"
)

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

type admissionRecorder interface {
	ObserveAdmission(outcome string)
}

type noopRecorder struct{}

func (noopRecorder) ObserveAdmission(string) {}

type Service struct {
	repo    store.BookingRepository
	policy  schedule.Policy
	events  events.Publisher
	metrics admissionRecorder
	log     *slog.Logger
	now     func() time.Time
}

type Option func(*Service)

func WithPublisher(p events.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.events = p
		}
	}
}

func WithRecorder(r admissionRecorder) Option {
	return func(s *Service) {
		if r != nil {
			s.metrics = r
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(repo store.BookingRepository, policy schedule.Policy, opts ...Option) *Service {
	s := &Service{
		repo:    repo,
		policy:  policy,
		events:  events.Noop{},
		metrics: noopRecorder{},
		log:     slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(slog.String("component", "service.reservations"))
	return s
}

func (s *Service) List(ctx context.Context) ([]domain.Booking, error) {
	return s.repo.List(ctx)
}

// Create admits nb unless it overlaps a booking of the same studio day. The
// check and the insert happen under the studio day's lock. Repeating a
// request with the same idempotency key returns the booking created first.
func (s *Service) Create(ctx context.Context, nb domain.NewBooking, idempotencyKey string) (domain.Booking, error) {
	nb, err := s.policy.Validate(nb, s.now())
	if err != nil {
		s.metrics.ObserveAdmission(OutcomeInvalid)
		var vErr *schedule.ValidationError
		if errors.As(err, &vErr) {
			return domain.Booking{}, validationError(vErr.Error())
		}
		return domain.Booking{}, err
	}

	b := nb.WithID("")
	key := strings.TrimSpace(idempotencyKey)
	if key != "" {
		if len(key) > 256 {
			s.metrics.ObserveAdmission(OutcomeInvalid)
			return domain.Booking{}, validationError("idempotency key too long")
		}
		b.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte("studiobook:create_booking:"+key)).String()
	}

	var (
		out      domain.Booking
		replayed bool
	)
	err = s.repo.InStudioDay(ctx, nb.Studio, nb.Date, func(ctx context.Context, tx store.StudioDayTx) error {
		if b.ID != "" {
			existing, err := tx.Get(ctx, b.ID)
			switch {
			case err == nil:
				if !existing.SameContent(nb) {
					return store.ErrIdempotencyConflict
				}
				out, replayed = existing, true
				return nil
			case !errors.Is(err, store.ErrNotFound):
				return err
			}
		}

		day, err := tx.ListDay(ctx)
		if err != nil {
			return err
		}
		if err := schedule.CheckAdmission(day, nb); err != nil {
			if errors.Is(err, schedule.ErrOverlap) {
				return fmt.Errorf("%w: %v", store.ErrConflict, err)
			}
			return err
		}

		created, err := tx.Create(ctx, b)
		if err != nil {
			return err
		}
		out = created
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrConflict), errors.Is(err, store.ErrIdempotencyConflict):
			s.metrics.ObserveAdmission(OutcomeConflict)
		default:
			s.metrics.ObserveAdmission(OutcomeError)
		}
		return domain.Booking{}, err
	}

	if replayed {
		s.metrics.ObserveAdmission(OutcomeReplayed)
		return out, nil
	}
	s.metrics.ObserveAdmission(OutcomeAdmitted)
	s.publish(ctx, events.TypeBookingCreated, out)
	return out, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return validationError("id is required")
	}
	b, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	s.publish(ctx, events.TypeBookingCancelled, b)
	return nil
}

// publish reports a committed change. The change stands even when the broker
// does not take the event.
func (s *Service) publish(ctx context.Context, typ string, b domain.Booking) {
	ev := events.Event{Type: typ, Booking: b, OccurredAt: s.now().UTC()}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.Warn("event publish failed", slog.String("type", typ), slog.String("booking_id", b.ID), slog.Any("err", err))
	}
}
