package grpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"studiobook/internal/domain"
	"studiobook/internal/remote"
)

const idempotencyHeader = "idempotency-key"

// Client reaches the bookings service over gRPC. It fails the same way the
// HTTP client does so a cache can use either.
type Client struct {
	timeout  time.Duration
	log      *slog.Logger
	dialOpts []gogrpc.DialOption

	mu     sync.RWMutex
	target string
	conn   *gogrpc.ClientConn
}

type ClientOption func(*Client)

// WithDialOptions adds options to every connection the client opens.
func WithDialOptions(opts ...gogrpc.DialOption) ClientOption {
	return func(c *Client) {
		c.dialOpts = append(c.dialOpts, opts...)
	}
}

// NewClient prepares a client for target. Connections are opened lazily, an
// empty target leaves the client unconfigured.
func NewClient(target string, timeout time.Duration, log *slog.Logger, opts ...ClientOption) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}
	c := &Client{
		timeout: timeout,
		log:     log.With(slog.String("component", "grpc.client")),
		dialOpts: []gogrpc.DialOption{
			gogrpc.WithTransportCredentials(insecure.NewCredentials()),
			gogrpc.WithDefaultCallOptions(gogrpc.ForceCodec(Codec())),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.connect(strings.TrimSpace(target)); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) Endpoint() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.target
}

// SetEndpoint points the client at a new target. A target that cannot be
// parsed leaves the client unconfigured.
func (c *Client) SetEndpoint(target string) {
	if err := c.connect(strings.TrimSpace(target)); err != nil {
		c.log.Warn("grpc target rejected", slog.String("target", target), slog.Any("err", err))
		_ = c.connect("")
	}
}

func (c *Client) connect(target string) error {
	var conn *gogrpc.ClientConn
	if target != "" {
		var err error
		conn, err = gogrpc.NewClient(target, c.dialOpts...)
		if err != nil {
			return fmt.Errorf("grpc client %s: %w", target, err)
		}
	}

	c.mu.Lock()
	old := c.conn
	c.target, c.conn = target, conn
	c.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn, c.target = nil, ""
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (c *Client) List(ctx context.Context) ([]domain.Booking, error) {
	conn := c.current()
	if conn == nil {
		return []domain.Booking{}, nil
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var out ListBookingsResponse
	if err := conn.Invoke(ctx, listBookingsMethod, &ListBookingsRequest{}, &out); err != nil {
		return nil, mapError(err)
	}
	list := make([]domain.Booking, 0, len(out.Bookings))
	for _, b := range out.Bookings {
		if b.ID == "" || b.Studio == "" {
			c.log.Warn("dropping malformed booking", slog.String("booking_id", b.ID))
			continue
		}
		list = append(list, b)
	}
	return list, nil
}

func (c *Client) Create(ctx context.Context, nb domain.NewBooking, requestID string) (domain.Booking, error) {
	conn := c.current()
	if conn == nil {
		return domain.Booking{}, remote.ErrNotConfigured
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	if requestID != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, idempotencyHeader, requestID)
	}

	var out CreateBookingResponse
	if err := conn.Invoke(ctx, createBookingMethod, &CreateBookingRequest{Booking: nb}, &out); err != nil {
		return domain.Booking{}, mapError(err)
	}
	return out.Booking, nil
}

func (c *Client) Delete(ctx context.Context, id string) error {
	conn := c.current()
	if conn == nil {
		return remote.ErrNotConfigured
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var out DeleteBookingResponse
	if err := conn.Invoke(ctx, deleteBookingMethod, &DeleteBookingRequest{ID: id}, &out); err != nil {
		return mapError(err)
	}
	return nil
}

func (c *Client) current() *gogrpc.ClientConn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// mapError turns a status into the remote store error set.
func mapError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("%w: %v", remote.ErrUnavailable, err)
	}
	switch st.Code() {
	case codes.FailedPrecondition:
		return &remote.RejectedError{Code: remote.CodeConflict, Message: st.Message()}
	case codes.AlreadyExists:
		return &remote.RejectedError{Code: remote.CodeIdempotencyConflict, Message: st.Message()}
	case codes.NotFound:
		return &remote.RejectedError{Code: remote.CodeNotFound, Message: st.Message()}
	case codes.InvalidArgument:
		return &remote.RejectedError{Code: remote.CodeInvalid, Message: st.Message()}
	case codes.Unavailable, codes.DeadlineExceeded:
		return fmt.Errorf("%w: %s", remote.ErrUnavailable, st.Message())
	case codes.Canceled:
		return context.Canceled
	default:
		return &remote.RejectedError{Code: remote.CodeInternal, Message: st.Message()}
	}
}
