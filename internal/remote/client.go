// Package remote talks to the booking store over its HTTP protocol: a GET
// lists every booking and a POST carries an add or delete action. Responses
// are wrapped in an Envelope.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"studiobook/internal/domain"
)

const maxResponseBytes = 8 << 20

type Client struct {
	httpClient *http.Client
	log        *slog.Logger
	loc        *time.Location

	mu       sync.RWMutex
	endpoint string
}

type Option func(*Client)

// WithHTTPClient replaces the default client built from the timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLocation sets the zone timestamps in the store are read in.
func WithLocation(loc *time.Location) Option {
	return func(c *Client) {
		if loc != nil {
			c.loc = loc
		}
	}
}

func NewClient(endpoint string, timeout time.Duration, log *slog.Logger, opts ...Option) *Client {
	if log == nil {
		log = slog.Default()
	}
	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		log:        log.With(slog.String("component", "remote.http")),
		loc:        time.UTC,
		endpoint:   strings.TrimSpace(endpoint),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Endpoint() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.endpoint
}

func (c *Client) SetEndpoint(endpoint string) {
	c.mu.Lock()
	c.endpoint = strings.TrimSpace(endpoint)
	c.mu.Unlock()
}

// List returns every booking in the store. Without an endpoint it returns an
// empty list.
func (c *Client) List(ctx context.Context) ([]domain.Booking, error) {
	endpoint := c.Endpoint()
	if endpoint == "" {
		return []domain.Booking{}, nil
	}

	var env Envelope
	err := c.retry(ctx, "list", func() error {
		var err error
		env, err = c.do(ctx, http.MethodGet, endpoint, nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	rows, err := decodeRows(env.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode bookings: %v", ErrUnavailable, err)
	}
	return normalizeRows(rows, c.loc, c.log), nil
}

// Create adds nb to the store. A non-empty requestID lets the store recognize
// a repeated request, and only then is a failed transport retried.
func (c *Client) Create(ctx context.Context, nb domain.NewBooking, requestID string) (domain.Booking, error) {
	endpoint := c.Endpoint()
	if endpoint == "" {
		return domain.Booking{}, ErrNotConfigured
	}

	data, err := json.Marshal(nb)
	if err != nil {
		return domain.Booking{}, fmt.Errorf("encode booking: %w", err)
	}
	body, err := json.Marshal(WriteRequest{Action: ActionAdd, Data: data, RequestID: requestID})
	if err != nil {
		return domain.Booking{}, fmt.Errorf("encode request: %w", err)
	}

	var env Envelope
	call := func() error {
		var err error
		env, err = c.do(ctx, http.MethodPost, endpoint, body)
		return err
	}
	if requestID != "" {
		err = c.retry(ctx, "create", call)
	} else {
		err = call()
	}
	if err != nil {
		return domain.Booking{}, err
	}

	if len(bytes.TrimSpace(env.Data)) == 0 {
		c.log.Warn("create response carried no booking", slog.String("request_id", requestID))
		return nb.WithID(""), nil
	}
	row, err := decodeRow(env.Data)
	if err != nil {
		return domain.Booking{}, fmt.Errorf("%w: failed to decode booking: %v", ErrUnavailable, err)
	}
	b, err := normalizeRow(row, c.loc)
	if err != nil {
		c.log.Warn("create response carried a malformed booking", slog.Any("err", err), slog.String("request_id", requestID))
		return nb.WithID(stringField(row, "id")), nil
	}
	return b, nil
}

// Delete removes the booking with the given id.
func (c *Client) Delete(ctx context.Context, id string) error {
	endpoint := c.Endpoint()
	if endpoint == "" {
		return ErrNotConfigured
	}

	data, err := json.Marshal(DeleteData{ID: id})
	if err != nil {
		return fmt.Errorf("encode id: %w", err)
	}
	body, err := json.Marshal(WriteRequest{Action: ActionDelete, Data: data})
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	_, err = c.do(ctx, http.MethodPost, endpoint, body)
	return err
}

// retry runs fn a second time when the first attempt failed in transport.
func (c *Client) retry(ctx context.Context, op string, fn func() error) error {
	err := fn()
	if err == nil || !errors.Is(err, ErrUnavailable) || ctx.Err() != nil {
		return err
	}
	c.log.Info("retrying remote call", slog.String("op", op), slog.Any("err", err))
	return fn()
}

func (c *Client) do(ctx context.Context, method, endpoint string, body []byte) (Envelope, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: failed to create request: %v", ErrUnavailable, err)
	}
	if body != nil {
		// Script hosts only accept simple requests, so JSON travels as text.
		req.Header.Set("Content-Type", "text/plain;charset=utf-8")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: failed to execute request: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: failed to read response: %v", ErrUnavailable, err)
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: unexpected response (status %d): %s", ErrUnavailable, resp.StatusCode, snippet(raw))
	}
	if !env.Success {
		if resp.StatusCode >= http.StatusInternalServerError && env.Message == "" {
			return Envelope{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
		}
		return Envelope{}, &RejectedError{Status: resp.StatusCode, Code: env.Code, Message: env.Message}
	}
	return env, nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
