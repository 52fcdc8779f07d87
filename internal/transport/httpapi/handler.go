// Package httpapi serves the booking store wire protocol over HTTP: GET lists
// every booking, POST carries an add or delete action.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"studiobook/internal/domain"
	"studiobook/internal/remote"
	"studiobook/internal/service/reservations"
	"studiobook/internal/store"
)

const (
	notFoundMessage = "Booking ID not found."
	maxBodyBytes    = 1 << 20
)

type BookingService interface {
	List(ctx context.Context) ([]domain.Booking, error)
	Create(ctx context.Context, nb domain.NewBooking, idempotencyKey string) (domain.Booking, error)
	Delete(ctx context.Context, id string) error
}

type Handler struct {
	svc BookingService
	log *slog.Logger
}

func NewHandler(svc BookingService, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log.With(slog.String("component", "transport.httpapi"))}
}

// addData is the NewBooking shape on the wire. Every field is a string.
type addData struct {
	Studio    string `json:"studio"`
	Date      string `json:"date"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
	UserName  string `json:"userName"`
	Purpose   string `json:"purpose"`
	Subject   string `json:"subject"`
}

func (d addData) newBooking() domain.NewBooking {
	purpose := domain.Purpose(strings.TrimSpace(d.Purpose))
	if purpose == "" {
		purpose = domain.DefaultPurpose
	}
	return domain.NewBooking{
		Studio:    d.Studio,
		Date:      d.Date,
		StartTime: d.StartTime,
		EndTime:   d.EndTime,
		UserName:  d.UserName,
		Purpose:   purpose,
		Subject:   d.Subject,
	}
}

func (h *Handler) List(c *gin.Context) {
	list, err := h.svc.List(c.Request.Context())
	if err != nil {
		h.fail(c, "list", err)
		return
	}
	rows := make([]remote.BookingRow, 0, len(list))
	for _, b := range list {
		rows = append(rows, remote.RowOf(b))
	}
	h.ok(c, http.StatusOK, rows, "")
}

// Write dispatches a POST. Bodies are read raw since browser clients post
// JSON as text/plain.
func (h *Handler) Write(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		h.reject(c, http.StatusBadRequest, remote.CodeInvalid, "unreadable request body")
		return
	}
	var req remote.WriteRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		h.reject(c, http.StatusBadRequest, remote.CodeInvalid, "request body must be JSON")
		return
	}

	switch req.Action {
	case remote.ActionAdd:
		h.add(c, req)
	case remote.ActionDelete:
		h.delete(c, req)
	default:
		h.reject(c, http.StatusBadRequest, remote.CodeInvalid, "Invalid action.")
	}
}

func (h *Handler) add(c *gin.Context, req remote.WriteRequest) {
	var d addData
	if len(req.Data) == 0 || json.Unmarshal(req.Data, &d) != nil {
		h.reject(c, http.StatusBadRequest, remote.CodeInvalid, "data must be a booking object")
		return
	}
	b, err := h.svc.Create(c.Request.Context(), d.newBooking(), req.RequestID)
	if err != nil {
		h.fail(c, "add", err)
		return
	}
	h.log.Info("booking created",
		slog.String("booking_id", b.ID),
		slog.String("studio", b.Studio),
		slog.String("date", b.Date),
		slog.String("start", b.StartTime),
		slog.String("end", b.EndTime),
	)
	h.ok(c, http.StatusOK, remote.RowOf(b), "Booking added.")
}

func (h *Handler) delete(c *gin.Context, req remote.WriteRequest) {
	var d remote.DeleteData
	if len(req.Data) == 0 || json.Unmarshal(req.Data, &d) != nil {
		h.reject(c, http.StatusBadRequest, remote.CodeInvalid, "data must carry an id")
		return
	}
	if err := h.svc.Delete(c.Request.Context(), d.ID); err != nil {
		h.fail(c, "delete", err)
		return
	}
	h.log.Info("booking deleted", slog.String("booking_id", d.ID))
	h.ok(c, http.StatusOK, nil, "Booking deleted.")
}

func (h *Handler) ok(c *gin.Context, status int, data any, msg string) {
	env := remote.Envelope{Success: true, Message: msg}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			h.fail(c, "encode", err)
			return
		}
		env.Data = raw
	}
	c.JSON(status, env)
}

func (h *Handler) reject(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, remote.Envelope{Success: false, Code: code, Message: msg})
}

func (h *Handler) fail(c *gin.Context, op string, err error) {
	var vErr *reservations.ValidationError
	switch {
	case errors.As(err, &vErr):
		h.reject(c, http.StatusBadRequest, remote.CodeInvalid, vErr.Error())
	case errors.Is(err, store.ErrIdempotencyConflict):
		h.reject(c, http.StatusConflict, remote.CodeIdempotencyConflict, "requestId was already used for a different booking")
	case errors.Is(err, store.ErrConflict):
		h.reject(c, http.StatusConflict, remote.CodeConflict, reservations.ConflictMessage)
	case errors.Is(err, store.ErrNotFound):
		h.reject(c, http.StatusNotFound, remote.CodeNotFound, notFoundMessage)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		h.log.Warn("request aborted", slog.String("op", op), slog.Any("err", err))
		h.reject(c, http.StatusServiceUnavailable, remote.CodeInternal, "request timed out")
	default:
		h.log.Error("request failed", slog.String("op", op), slog.Any("err", err))
		h.reject(c, http.StatusInternalServerError, remote.CodeInternal, "internal error")
	}
}
