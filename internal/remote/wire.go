package remote

import (
	"encoding/json"

	"studiobook/internal/domain"
)

const (
	ActionAdd    = "add"
	ActionDelete = "delete"
)

// Failure codes carried in the envelope. Servers that predate codes send only
// a message.
const (
	CodeInvalid             = "invalid"
	CodeConflict            = "conflict"
	CodeNotFound            = "not_found"
	CodeIdempotencyConflict = "idempotency_conflict"
	CodeInternal            = "internal"
)

// Envelope is the body of every response of the booking store.
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
	Code    string          `json:"code,omitempty"`
}

// WriteRequest is the body of every mutation.
type WriteRequest struct {
	Action    string          `json:"action"`
	Data      json.RawMessage `json:"data"`
	RequestID string          `json:"requestId,omitempty"`
}

type DeleteData struct {
	ID string `json:"id"`
}

// BookingRow is the wire shape of a booking. Fields are decoded loosely since
// rows typed in by hand can carry numbers or timestamps.
type BookingRow map[string]any

func RowOf(b domain.Booking) BookingRow {
	return BookingRow{
		"id":        b.ID,
		"studio":    b.Studio,
		"date":      b.Date,
		"startTime": b.StartTime,
		"endTime":   b.EndTime,
		"userName":  b.UserName,
		"purpose":   string(b.Purpose),
		"subject":   b.Subject,
	}
}
