// Package session drives what a booking screen shows: the selected studio
// and day, the open dialog, and the outcome of the last change.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"studiobook/internal/bookings"
	"studiobook/internal/domain"
)

const (
	dateWindowDays   = 7
	notificationTTL  = 3 * time.Second
	msgBooked        = "Booking successful!"
	msgCancelled     = "Booking cancelled successfully!"
	msgBookFailed    = "Booking failed: "
	msgCancelFailed  = "Cancellation failed: "
	msgNoDialog      = "no booking dialog is open"
	msgNoCancelation = "no cancellation is awaiting confirmation"
)

var ErrNoDialog = errors.New(msgNoDialog)

type Dialog int

const (
	DialogNone Dialog = iota
	DialogBooking
	DialogCancelConfirm
	DialogSettings
)

type NotificationKind string

const (
	NotifySuccess NotificationKind = "success"
	NotifyError   NotificationKind = "error"
)

type Notification struct {
	Kind      NotificationKind
	Message   string
	ExpiresAt time.Time
}

// Draft is what the booking dialog collects.
type Draft struct {
	StartTime string
	EndTime   string
	UserName  string
	Purpose   domain.Purpose
	Subject   string
}

// StudioSchedule is one studio's bookings on the selected day.
type StudioSchedule struct {
	Studio   domain.Studio
	Bookings []domain.Booking
}

type Endpoint interface {
	Endpoint() string
	SetEndpoint(endpoint string)
}

type Controller struct {
	cache    *bookings.Cache
	endpoint Endpoint
	log      *slog.Logger
	loc      *time.Location
	now      func() time.Time

	mu           sync.Mutex
	studio       string
	date         string
	dialog       Dialog
	bookStudio   string
	cancelTarget domain.Booking
	notification *Notification
}

type Option func(*Controller)

func WithLocation(loc *time.Location) Option {
	return func(c *Controller) {
		if loc != nil {
			c.loc = loc
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// New selects the first studio and today. With no endpoint configured the
// settings dialog starts open.
func New(cache *bookings.Cache, endpoint Endpoint, log *slog.Logger, opts ...Option) *Controller {
	if log == nil {
		log = slog.Default()
	}
	c := &Controller{
		cache:    cache,
		endpoint: endpoint,
		log:      log.With(slog.String("component", "session")),
		loc:      time.UTC,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.studio = domain.Studios()[0].ID
	c.date = c.today()
	if strings.TrimSpace(endpoint.Endpoint()) == "" {
		c.dialog = DialogSettings
	}
	return c
}

func (c *Controller) today() string {
	return c.now().In(c.loc).Format(domain.DateLayout)
}

// Dates lists the selectable days starting today.
func (c *Controller) Dates() []string {
	start := c.now().In(c.loc)
	out := make([]string, 0, dateWindowDays)
	for i := 0; i < dateWindowDays; i++ {
		out = append(out, start.AddDate(0, 0, i).Format(domain.DateLayout))
	}
	return out
}

func (c *Controller) Selected() (studio, date string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.studio, c.date
}

func (c *Controller) SelectStudio(id string) error {
	if _, ok := domain.LookupStudio(id); !ok {
		return fmt.Errorf("unknown studio %q", id)
	}
	c.mu.Lock()
	c.studio = id
	c.mu.Unlock()
	return nil
}

func (c *Controller) SelectDate(date string) error {
	for _, d := range c.Dates() {
		if d == date {
			c.mu.Lock()
			c.date = date
			c.mu.Unlock()
			return nil
		}
	}
	return fmt.Errorf("date %q is outside the bookable days", date)
}

func (c *Controller) Dialog() Dialog {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dialog
}

func (c *Controller) CloseDialog() {
	c.mu.Lock()
	c.dialog = DialogNone
	c.bookStudio = ""
	c.cancelTarget = domain.Booking{}
	c.mu.Unlock()
}

// Schedule returns every studio with its bookings on the selected day.
func (c *Controller) Schedule() []StudioSchedule {
	_, date := c.Selected()
	studios := domain.Studios()
	out := make([]StudioSchedule, 0, len(studios))
	for _, s := range studios {
		out = append(out, StudioSchedule{Studio: s, Bookings: c.cache.Day(s.ID, date)})
	}
	return out
}

// OpenBooking opens the booking dialog for a studio on the selected day.
func (c *Controller) OpenBooking(studio string) error {
	if _, ok := domain.LookupStudio(studio); !ok {
		return fmt.Errorf("unknown studio %q", studio)
	}
	c.mu.Lock()
	c.dialog = DialogBooking
	c.bookStudio = studio
	c.mu.Unlock()
	return nil
}

// StartOptions lists the free slot starts for the open booking dialog.
func (c *Controller) StartOptions() ([]string, error) {
	c.mu.Lock()
	studio, date, dialog := c.bookStudio, c.date, c.dialog
	c.mu.Unlock()
	if dialog != DialogBooking {
		return nil, ErrNoDialog
	}
	return c.cache.Availability(studio, date), nil
}

func (c *Controller) EndOptions(start string) ([]string, error) {
	c.mu.Lock()
	studio, date, dialog := c.bookStudio, c.date, c.dialog
	c.mu.Unlock()
	if dialog != DialogBooking {
		return nil, ErrNoDialog
	}
	return c.cache.EndOptions(studio, date, start)
}

// ConfirmBooking submits the draft and leaves the outcome as a notification.
// The dialog closes unless another change was still in flight.
func (c *Controller) ConfirmBooking(ctx context.Context, d Draft) Notification {
	c.mu.Lock()
	studio, date, dialog := c.bookStudio, c.date, c.dialog
	c.mu.Unlock()
	if dialog != DialogBooking {
		return c.notify(NotifyError, msgBookFailed+msgNoDialog)
	}

	_, err := c.cache.Create(ctx, domain.NewBooking{
		Studio:    studio,
		Date:      date,
		StartTime: d.StartTime,
		EndTime:   d.EndTime,
		UserName:  d.UserName,
		Purpose:   d.Purpose,
		Subject:   d.Subject,
	})
	if errors.Is(err, bookings.ErrMutationInFlight) {
		// Transient: the dialog and its draft stay for another try.
		return c.notify(NotifyError, msgBookFailed+err.Error())
	}
	c.CloseDialog()
	if err != nil {
		c.log.Info("booking rejected", slog.String("studio", studio), slog.String("date", date), slog.Any("err", err))
		return c.notify(NotifyError, msgBookFailed+err.Error())
	}
	return c.notify(NotifySuccess, msgBooked)
}

// RequestCancel asks for confirmation before cancelling a booking and returns
// the question to show.
func (c *Controller) RequestCancel(id string) (string, error) {
	for _, b := range c.cache.Snapshot().Bookings {
		if b.ID != id {
			continue
		}
		c.mu.Lock()
		c.dialog = DialogCancelConfirm
		c.cancelTarget = b
		c.mu.Unlock()
		return fmt.Sprintf("Are you sure you want to cancel the booking for %s from %s to %s?", b.UserName, clock12(b.StartTime), clock12(b.EndTime)), nil
	}
	return "", fmt.Errorf("booking %q is not in the current schedule", id)
}

func (c *Controller) ConfirmCancel(ctx context.Context) Notification {
	c.mu.Lock()
	target, dialog := c.cancelTarget, c.dialog
	c.mu.Unlock()
	if dialog != DialogCancelConfirm {
		return c.notify(NotifyError, msgCancelFailed+msgNoCancelation)
	}

	err := c.cache.Cancel(ctx, target.ID)
	c.CloseDialog()
	if err != nil {
		c.log.Info("cancellation rejected", slog.String("booking_id", target.ID), slog.Any("err", err))
		return c.notify(NotifyError, msgCancelFailed+err.Error())
	}
	return c.notify(NotifySuccess, msgCancelled)
}

func (c *Controller) OpenSettings() {
	c.mu.Lock()
	c.dialog = DialogSettings
	c.mu.Unlock()
}

// SaveEndpoint points the session at another store and reloads in the
// foreground.
func (c *Controller) SaveEndpoint(ctx context.Context, endpoint string) error {
	c.endpoint.SetEndpoint(endpoint)
	c.CloseDialog()
	c.log.Info("remote endpoint updated", slog.Bool("configured", strings.TrimSpace(endpoint) != ""))
	return c.cache.Load(ctx, true)
}

// Notification returns the latest outcome until it expires.
func (c *Controller) Notification() (Notification, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.notification == nil || !c.now().Before(c.notification.ExpiresAt) {
		c.notification = nil
		return Notification{}, false
	}
	return *c.notification, true
}

func (c *Controller) DismissNotification() {
	c.mu.Lock()
	c.notification = nil
	c.mu.Unlock()
}

func (c *Controller) notify(kind NotificationKind, msg string) Notification {
	n := Notification{Kind: kind, Message: msg, ExpiresAt: c.now().Add(notificationTTL)}
	c.mu.Lock()
	c.notification = &n
	c.mu.Unlock()
	return n
}

// clock12 renders HH:MM as e.g. 1:30 PM.
func clock12(hhmm string) string {
	m, err := domain.ParseClock(hhmm)
	if err != nil {
		return hhmm
	}
	return time.Date(0, 1, 1, 0, m, 0, 0, time.UTC).Format("3:04 PM")
}
