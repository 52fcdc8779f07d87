package remote

import (
	"errors"
	"net/http"
	"strings"
)

var (
	ErrNotConfigured = errors.New("remote store endpoint is not configured")
	ErrUnavailable   = errors.New("remote store unavailable")
	ErrConflict      = errors.New("remote store rejected the booking as conflicting")
	ErrNotFound      = errors.New("booking not found in remote store")
)

// RejectedError is a well-formed refusal from the store. It matches
// ErrConflict or ErrNotFound through errors.Is when the refusal means so.
type RejectedError struct {
	Status  int
	Code    string
	Message string
}

func (e *RejectedError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return "remote store rejected the request: " + e.Code
	}
	return "remote store rejected the request"
}

func (e *RejectedError) Is(target error) bool {
	switch target {
	case ErrConflict:
		return e.kind() == CodeConflict
	case ErrNotFound:
		return e.kind() == CodeNotFound
	default:
		return false
	}
}

func (e *RejectedError) kind() string {
	if e.Code != "" {
		return e.Code
	}
	switch e.Status {
	case http.StatusConflict:
		return CodeConflict
	case http.StatusNotFound:
		return CodeNotFound
	}
	msg := strings.ToLower(e.Message)
	switch {
	case strings.Contains(msg, "overlap"), strings.Contains(msg, "conflict"), strings.Contains(msg, "already booked"):
		return CodeConflict
	case strings.Contains(msg, "not found"):
		return CodeNotFound
	default:
		return ""
	}
}
