package schedule

import (
	"errors"
	"fmt"
	"strings"

	"studiobook/internal/domain"
)

// ErrOverlap matches every *OverlapError.
var ErrOverlap = errors.New("time slot overlaps with an existing booking")

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

// RequireID rejects a blank booking id.
func RequireID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", validationError("booking id is required")
	}
	return id, nil
}

// OverlapError names the booking that blocks an admission.
type OverlapError struct {
	Existing domain.Booking
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("%s: %s %s-%s is already booked", ErrOverlap, e.Existing.Date, e.Existing.StartTime, e.Existing.EndTime)
}

func (e *OverlapError) Unwrap() error {
	return ErrOverlap
}
