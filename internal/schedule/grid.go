// Package schedule holds the pure booking arithmetic: the slot grid of a
// studio day, occupied time, candidate start and end times, and the
// admission check shared by clients and the booking authority.
package schedule

import (
	"fmt"

	"studiobook/internal/domain"
)

// Window is the bookable part of a day. EndHour is the closing time, the last
// instant a booking may end at.
type Window struct {
	StartHour   int
	EndHour     int
	Granularity int // minutes
}

var DefaultWindow = Window{StartHour: 8, EndHour: 23, Granularity: 30}

func (w Window) Validate() error {
	if w.StartHour < 0 || w.EndHour > 24 || w.StartHour >= w.EndHour {
		return fmt.Errorf("invalid operating window %02d:00-%02d:00", w.StartHour, w.EndHour)
	}
	if w.Granularity <= 0 || 60%w.Granularity != 0 {
		return fmt.Errorf("invalid slot granularity %d", w.Granularity)
	}
	return nil
}

func (w Window) Open() int  { return w.StartHour * 60 }
func (w Window) Close() int { return w.EndHour * 60 }

// Slots lists the slot starts from opening up to, not including, closing.
func (w Window) Slots() []string {
	if w.Validate() != nil {
		return nil
	}
	out := make([]string, 0, (w.Close()-w.Open())/w.Granularity)
	for m := w.Open(); m < w.Close(); m += w.Granularity {
		out = append(out, domain.FormatClock(m))
	}
	return out
}

func (w Window) aligned(m int) bool {
	return m%w.Granularity == 0
}

func (w Window) contains(m int) bool {
	return m >= w.Open() && m <= w.Close()
}

// parseGridTime parses an HH:MM that must sit on the grid inside the window.
func (w Window) parseGridTime(field, s string) (int, error) {
	m, err := domain.ParseClock(s)
	if err != nil {
		return 0, validationError(field + " must be HH:MM")
	}
	if !w.aligned(m) {
		return 0, validationError(fmt.Sprintf("%s must be aligned to %d minutes", field, w.Granularity))
	}
	if !w.contains(m) {
		return 0, validationError(fmt.Sprintf("%s must be within %s-%s", field, domain.FormatClock(w.Open()), domain.FormatClock(w.Close())))
	}
	return m, nil
}
