package store

import (
	"context"

	"studiobook/internal/domain"
)

type BookingRepository interface {
	List(ctx context.Context) ([]domain.Booking, error)
	// InStudioDay runs fn while no other writer can change the bookings of
	// the same studio and date.
	InStudioDay(ctx context.Context, studio, date string, fn func(ctx context.Context, tx StudioDayTx) error) error
	Delete(ctx context.Context, id string) (domain.Booking, error)
}

type StudioDayTx interface {
	ListDay(ctx context.Context) ([]domain.Booking, error)
	Get(ctx context.Context, id string) (domain.Booking, error)
	Create(ctx context.Context, b domain.Booking) (domain.Booking, error)
}
