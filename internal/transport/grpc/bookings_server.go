package grpc

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"studiobook/internal/domain"
	"studiobook/internal/service/reservations"
	"studiobook/internal/store"
)

type BookingsServer struct {
	svc bookingsService
	log *slog.Logger
}

var _ BookingsServiceServer = (*BookingsServer)(nil)

type bookingsService interface {
	List(ctx context.Context) ([]domain.Booking, error)
	Create(ctx context.Context, nb domain.NewBooking, idempotencyKey string) (domain.Booking, error)
	Delete(ctx context.Context, id string) error
}

func NewBookingsServer(svc bookingsService, log *slog.Logger) *BookingsServer {
	if log == nil {
		log = slog.Default()
	}
	return &BookingsServer{
		svc: svc,
		log: log.With(slog.String("component", "grpc.bookings")),
	}
}

func (s *BookingsServer) ListBookings(ctx context.Context, req *ListBookingsRequest) (*ListBookingsResponse, error) {
	log := s.log.With(slog.String("rpc", "ListBookings"))

	list, err := s.svc.List(ctx)
	if err != nil {
		log.Error("bookings list failed", slog.Any("err", err))
		return nil, status.Error(codes.Internal, "internal error")
	}
	if list == nil {
		list = []domain.Booking{}
	}

	log.Debug("bookings listed", slog.Int("count", len(list)))
	return &ListBookingsResponse{Bookings: list}, nil
}

func (s *BookingsServer) CreateBooking(ctx context.Context, req *CreateBookingRequest) (*CreateBookingResponse, error) {
	log := s.log.With(slog.String("rpc", "CreateBooking"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	nb := req.Booking

	b, err := s.svc.Create(ctx, nb, idempotencyKey(ctx))
	if err != nil {
		if errors.Is(err, store.ErrIdempotencyConflict) {
			log.Info("booking create idempotency conflict", slog.String("studio", nb.Studio), slog.String("date", nb.Date))
			return nil, status.Error(codes.AlreadyExists, "This request key was already used for a different booking. Try again.")
		}
		if errors.Is(err, store.ErrConflict) {
			log.Info(
				"booking create conflict",
				slog.String("studio", nb.Studio),
				slog.String("date", nb.Date),
				slog.String("start_time", nb.StartTime),
				slog.String("end_time", nb.EndTime),
			)
			return nil, status.Error(codes.FailedPrecondition, reservations.ConflictMessage)
		}
		var vErr *reservations.ValidationError
		if errors.As(err, &vErr) {
			log.Warn("invalid request", slog.Any("err", err), slog.String("studio", nb.Studio))
			return nil, status.Error(codes.InvalidArgument, vErr.Error())
		}
		log.Error("booking create failed", slog.Any("err", err), slog.String("studio", nb.Studio))
		return nil, status.Error(codes.Internal, "internal error")
	}

	log.Info(
		"booking created",
		slog.String("booking_id", b.ID),
		slog.String("studio", b.Studio),
		slog.String("date", b.Date),
		slog.String("start_time", b.StartTime),
		slog.String("end_time", b.EndTime),
	)
	return &CreateBookingResponse{Booking: b}, nil
}

func idempotencyKey(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get(idempotencyHeader)
	if len(values) == 0 {
		values = md.Get("x-" + idempotencyHeader)
	}
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

func (s *BookingsServer) DeleteBooking(ctx context.Context, req *DeleteBookingRequest) (*DeleteBookingResponse, error) {
	log := s.log.With(slog.String("rpc", "DeleteBooking"))

	if req == nil || strings.TrimSpace(req.ID) == "" {
		log.Warn("invalid request", slog.String("reason", "missing_id"))
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}

	if err := s.svc.Delete(ctx, req.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Info("booking not found", slog.String("booking_id", req.ID))
			return nil, status.Error(codes.NotFound, "Booking ID not found.")
		}
		var vErr *reservations.ValidationError
		if errors.As(err, &vErr) {
			log.Warn("invalid request", slog.Any("err", err), slog.String("booking_id", req.ID))
			return nil, status.Error(codes.InvalidArgument, vErr.Error())
		}
		log.Error("booking delete failed", slog.Any("err", err), slog.String("booking_id", req.ID))
		return nil, status.Error(codes.Internal, "internal error")
	}

	log.Info("booking deleted", slog.String("booking_id", req.ID))
	return &DeleteBookingResponse{}, nil
}
