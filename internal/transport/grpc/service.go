package grpc

import (
	"context"

	gogrpc "google.golang.org/grpc"

	"studiobook/internal/domain"
)

const ServiceName = "studiobook.v1.BookingsService"

const (
	listBookingsMethod  = "/" + ServiceName + "/ListBookings"
	createBookingMethod = "/" + ServiceName + "/CreateBooking"
	deleteBookingMethod = "/" + ServiceName + "/DeleteBooking"
)

type ListBookingsRequest struct{}

type ListBookingsResponse struct {
	Bookings []domain.Booking `json:"bookings"`
}

// CreateBookingRequest carries the booking only. The idempotency key travels
// in the idempotency-key metadata header.
type CreateBookingRequest struct {
	Booking domain.NewBooking `json:"booking"`
}

type CreateBookingResponse struct {
	Booking domain.Booking `json:"booking"`
}

type DeleteBookingRequest struct {
	ID string `json:"id"`
}

type DeleteBookingResponse struct{}

type BookingsServiceServer interface {
	ListBookings(ctx context.Context, req *ListBookingsRequest) (*ListBookingsResponse, error)
	CreateBooking(ctx context.Context, req *CreateBookingRequest) (*CreateBookingResponse, error)
	DeleteBooking(ctx context.Context, req *DeleteBookingRequest) (*DeleteBookingResponse, error)
}

var BookingsServiceDesc = gogrpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BookingsServiceServer)(nil),
	Methods: []gogrpc.MethodDesc{
		{MethodName: "ListBookings", Handler: listBookingsHandler},
		{MethodName: "CreateBooking", Handler: createBookingHandler},
		{MethodName: "DeleteBooking", Handler: deleteBookingHandler},
	},
	Streams: []gogrpc.StreamDesc{},
}

func RegisterBookingsServiceServer(s gogrpc.ServiceRegistrar, srv BookingsServiceServer) {
	s.RegisterService(&BookingsServiceDesc, srv)
}

func listBookingsHandler(srv any, ctx context.Context, dec func(any) error, interceptor gogrpc.UnaryServerInterceptor) (any, error) {
	in := new(ListBookingsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BookingsServiceServer).ListBookings(ctx, in)
	}
	info := &gogrpc.UnaryServerInfo{Server: srv, FullMethod: listBookingsMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BookingsServiceServer).ListBookings(ctx, req.(*ListBookingsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func createBookingHandler(srv any, ctx context.Context, dec func(any) error, interceptor gogrpc.UnaryServerInterceptor) (any, error) {
	in := new(CreateBookingRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BookingsServiceServer).CreateBooking(ctx, in)
	}
	info := &gogrpc.UnaryServerInfo{Server: srv, FullMethod: createBookingMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BookingsServiceServer).CreateBooking(ctx, req.(*CreateBookingRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func deleteBookingHandler(srv any, ctx context.Context, dec func(any) error, interceptor gogrpc.UnaryServerInterceptor) (any, error) {
	in := new(DeleteBookingRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BookingsServiceServer).DeleteBooking(ctx, in)
	}
	info := &gogrpc.UnaryServerInfo{Server: srv, FullMethod: deleteBookingMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BookingsServiceServer).DeleteBooking(ctx, req.(*DeleteBookingRequest))
	}
	return interceptor(ctx, in, info, handler)
}
