package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Booking is one reservation of a studio for a contiguous range of a single day.
// Date is YYYY-MM-DD and the times are HH:MM; all of them are wall-clock values
// without a zone.
type Booking struct {
	bun.BaseModel `bun:"table:bookings" json:"-"`

	ID        string    `bun:"id,pk" json:"id"`
	Studio    string    `bun:"studio,notnull" json:"studio"`
	Date      string    `bun:"date,notnull" json:"date"`
	StartTime string    `bun:"start_time,notnull" json:"startTime"`
	EndTime   string    `bun:"end_time,notnull" json:"endTime"`
	UserName  string    `bun:"user_name,notnull" json:"userName"`
	Purpose   Purpose   `bun:"purpose,notnull" json:"purpose"`
	Subject   string    `bun:"subject,notnull" json:"subject"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"-"`
}

// NewBooking is a booking that has not been admitted yet.
type NewBooking struct {
	Studio    string  `json:"studio"`
	Date      string  `json:"date"`
	StartTime string  `json:"startTime"`
	EndTime   string  `json:"endTime"`
	UserName  string  `json:"userName"`
	Purpose   Purpose `json:"purpose"`
	Subject   string  `json:"subject"`
}

func (nb NewBooking) WithID(id string) Booking {
	return Booking{
		ID:        id,
		Studio:    nb.Studio,
		Date:      nb.Date,
		StartTime: nb.StartTime,
		EndTime:   nb.EndTime,
		UserName:  nb.UserName,
		Purpose:   nb.Purpose,
		Subject:   nb.Subject,
	}
}

func (b Booking) Unassigned() NewBooking {
	return NewBooking{
		Studio:    b.Studio,
		Date:      b.Date,
		StartTime: b.StartTime,
		EndTime:   b.EndTime,
		UserName:  b.UserName,
		Purpose:   b.Purpose,
		Subject:   b.Subject,
	}
}

// SameContent reports whether b carries exactly the fields of nb.
func (b Booking) SameContent(nb NewBooking) bool {
	return b.Unassigned() == nb
}

func (b *Booking) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); !ok {
		return nil
	}
	if b.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		b.ID = id.String()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	return nil
}
