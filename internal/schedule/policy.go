package schedule

import (
	"fmt"
	"strings"
	"time"

	"studiobook/internal/domain"
)

// Policy is the full set of admission rules for a new booking. MaxDuration
// and MinLeadTime are disabled when zero.
type Policy struct {
	Window      Window
	MaxDuration time.Duration
	MinLeadTime time.Duration
	Location    *time.Location
}

func DefaultPolicy() Policy {
	return Policy{Window: DefaultWindow, Location: time.UTC}
}

// Validate trims nb and checks it against every rule except overlap.
func (p Policy) Validate(nb domain.NewBooking, now time.Time) (domain.NewBooking, error) {
	if err := p.Window.Validate(); err != nil {
		return domain.NewBooking{}, err
	}

	nb.Studio = strings.TrimSpace(nb.Studio)
	nb.Date = strings.TrimSpace(nb.Date)
	nb.StartTime = strings.TrimSpace(nb.StartTime)
	nb.EndTime = strings.TrimSpace(nb.EndTime)
	nb.UserName = strings.TrimSpace(nb.UserName)
	nb.Subject = strings.TrimSpace(nb.Subject)
	nb.Purpose = domain.Purpose(strings.TrimSpace(string(nb.Purpose)))

	if nb.Studio == "" {
		return domain.NewBooking{}, validationError("studio is required")
	}
	if _, ok := domain.LookupStudio(nb.Studio); !ok {
		return domain.NewBooking{}, validationError("unknown studio")
	}
	if _, err := domain.ParseDate(nb.Date); err != nil {
		return domain.NewBooking{}, validationError("date must be YYYY-MM-DD")
	}
	if nb.UserName == "" {
		return domain.NewBooking{}, validationError("userName is required")
	}
	if nb.Subject == "" {
		return domain.NewBooking{}, validationError("subject is required")
	}
	if !nb.Purpose.Valid() {
		return domain.NewBooking{}, validationError("unknown purpose")
	}

	start, err := p.Window.parseGridTime("start_time", nb.StartTime)
	if err != nil {
		return domain.NewBooking{}, err
	}
	end, err := p.Window.parseGridTime("end_time", nb.EndTime)
	if err != nil {
		return domain.NewBooking{}, err
	}
	if end <= start {
		return domain.NewBooking{}, validationError("end_time must be after start_time")
	}
	nb.StartTime = domain.FormatClock(start)
	nb.EndTime = domain.FormatClock(end)

	if p.MaxDuration > 0 && time.Duration(end-start)*time.Minute > p.MaxDuration {
		return domain.NewBooking{}, validationError(fmt.Sprintf("duration must not exceed %s", p.MaxDuration))
	}

	if p.MinLeadTime > 0 {
		at, err := domain.At(nb.Date, nb.StartTime, p.Location)
		if err != nil {
			return domain.NewBooking{}, validationError(err.Error())
		}
		if at.Before(now.Add(p.MinLeadTime)) {
			return domain.NewBooking{}, validationError(fmt.Sprintf("bookings must start at least %s from now", p.MinLeadTime))
		}
	}

	return nb, nil
}
