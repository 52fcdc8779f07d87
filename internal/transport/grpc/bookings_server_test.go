package grpc

import (
	"context"
	"log/slog"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"studiobook/internal/domain"
	"studiobook/internal/service/reservations"
	"studiobook/internal/store"
)

type fakeBookingsService struct {
	listFn   func(ctx context.Context) ([]domain.Booking, error)
	createFn func(ctx context.Context, nb domain.NewBooking, idempotencyKey string) (domain.Booking, error)
	deleteFn func(ctx context.Context, id string) error
}

func (f *fakeBookingsService) List(ctx context.Context) ([]domain.Booking, error) {
	if f.listFn == nil {
		panic("List not configured")
	}
	return f.listFn(ctx)
}

func (f *fakeBookingsService) Create(ctx context.Context, nb domain.NewBooking, idempotencyKey string) (domain.Booking, error) {
	if f.createFn == nil {
		panic("Create not configured")
	}
	return f.createFn(ctx, nb, idempotencyKey)
}

func (f *fakeBookingsService) Delete(ctx context.Context, id string) error {
	if f.deleteFn == nil {
		panic("Delete not configured")
	}
	return f.deleteFn(ctx, id)
}

func sampleNewBooking() domain.NewBooking {
	return domain.NewBooking{
		Studio:    "studio-1",
		Date:      "2024-01-10",
		StartTime: "10:00",
		EndTime:   "11:00",
		UserName:  "Ana",
		Purpose:   domain.PurposeLive,
		Subject:   "Math",
	}
}

func TestIdempotencyKey_ReadsHeadersAndTrims(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("idempotency-key", "  abc  "))
	if got := idempotencyKey(ctx); got != "abc" {
		t.Fatalf("idempotencyKey = %q, want %q", got, "abc")
	}

	ctx = metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-idempotency-key", "xyz"))
	if got := idempotencyKey(ctx); got != "xyz" {
		t.Fatalf("idempotencyKey = %q, want %q", got, "xyz")
	}
}

func TestCreateBooking_PassesIdempotencyKeyToService(t *testing.T) {
	var gotKey string

	srv := NewBookingsServer(&fakeBookingsService{
		createFn: func(ctx context.Context, nb domain.NewBooking, key string) (domain.Booking, error) {
			gotKey = key
			return nb.WithID("b1"), nil
		},
	}, slog.Default())

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("idempotency-key", "k1"))
	resp, err := srv.CreateBooking(ctx, &CreateBookingRequest{Booking: sampleNewBooking()})
	if err != nil {
		t.Fatalf("CreateBooking error: %v", err)
	}
	if gotKey != "k1" {
		t.Fatalf("idempotency_key = %q, want %q", gotKey, "k1")
	}
	if resp.Booking.ID != "b1" {
		t.Fatalf("id = %q, want %q", resp.Booking.ID, "b1")
	}
}

func TestCreateBooking_MapsErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{"conflict", store.ErrConflict, codes.FailedPrecondition},
		{"idempotency conflict", store.ErrIdempotencyConflict, codes.AlreadyExists},
		{"validation", &reservations.ValidationError{}, codes.InvalidArgument},
		{"other", context.DeadlineExceeded, codes.Internal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewBookingsServer(&fakeBookingsService{
				createFn: func(ctx context.Context, nb domain.NewBooking, key string) (domain.Booking, error) {
					return domain.Booking{}, tt.err
				},
			}, slog.Default())

			_, err := srv.CreateBooking(context.Background(), &CreateBookingRequest{Booking: sampleNewBooking()})
			if status.Code(err) != tt.want {
				t.Fatalf("code = %s, want %s", status.Code(err), tt.want)
			}
		})
	}
}

func TestCreateBooking_RejectsNilRequest(t *testing.T) {
	srv := NewBookingsServer(&fakeBookingsService{}, slog.Default())

	_, err := srv.CreateBooking(context.Background(), nil)
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("code = %s, want %s", status.Code(err), codes.InvalidArgument)
	}
}

func TestDeleteBooking_RejectsMissingID(t *testing.T) {
	srv := NewBookingsServer(&fakeBookingsService{}, slog.Default())

	_, err := srv.DeleteBooking(context.Background(), &DeleteBookingRequest{ID: "  "})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("code = %s, want %s", status.Code(err), codes.InvalidArgument)
	}
}

func TestDeleteBooking_MapsNotFound(t *testing.T) {
	srv := NewBookingsServer(&fakeBookingsService{
		deleteFn: func(ctx context.Context, id string) error {
			return store.ErrNotFound
		},
	}, slog.Default())

	_, err := srv.DeleteBooking(context.Background(), &DeleteBookingRequest{ID: "b1"})
	if status.Code(err) != codes.NotFound {
		t.Fatalf("code = %s, want %s", status.Code(err), codes.NotFound)
	}
}

func TestListBookings_ReturnsEmptySliceNotNil(t *testing.T) {
	srv := NewBookingsServer(&fakeBookingsService{
		listFn: func(ctx context.Context) ([]domain.Booking, error) {
			return nil, nil
		},
	}, slog.Default())

	resp, err := srv.ListBookings(context.Background(), &ListBookingsRequest{})
	if err != nil {
		t.Fatalf("ListBookings error: %v", err)
	}
	if resp.Bookings == nil {
		t.Fatalf("bookings = nil, want empty slice")
	}
}
