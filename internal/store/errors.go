package store

import "errors"

var (
	ErrConflict            = errors.New("conflict")
	ErrNotFound            = errors.New("not found")
	ErrIdempotencyConflict = errors.New("idempotency key conflict")
)

// RetiredError is returned when an insert names the id of a deleted booking.
// Ids are never reused, so it matches ErrIdempotencyConflict.
type RetiredError struct {
	ID string
}

func (e *RetiredError) Error() string {
	return "booking " + e.ID + " was cancelled"
}

func (e *RetiredError) Is(target error) bool {
	return target == ErrIdempotencyConflict
}
