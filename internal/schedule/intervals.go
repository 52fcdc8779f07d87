package schedule

import (
	"sort"

	"studiobook/internal/domain"
)

// MinuteSet is a set of minutes since midnight.
type MinuteSet map[int]struct{}

func (s MinuteSet) Has(m int) bool {
	_, ok := s[m]
	return ok
}

func (s MinuteSet) Len() int {
	return len(s)
}

type span struct {
	start int
	end   int
}

// spanOf returns the half-open minute range of b. Rows with unreadable or
// inverted times are reported as not ok.
func spanOf(b domain.Booking) (span, bool) {
	start, err := domain.ParseClock(b.StartTime)
	if err != nil {
		return span{}, false
	}
	end, err := domain.ParseClock(b.EndTime)
	if err != nil || end <= start {
		return span{}, false
	}
	return span{start: start, end: end}, true
}

// Overlaps is the half-open interval test used on every admission path.
// Ranges that only touch at an endpoint do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd int) bool {
	return aStart < bEnd && aEnd > bStart
}

// ForDay returns the bookings of one studio day ordered by start time.
func ForDay(bookings []domain.Booking, studio, date string) []domain.Booking {
	out := make([]domain.Booking, 0, len(bookings))
	for _, b := range bookings {
		if b.Studio == studio && b.Date == date {
			out = append(out, b)
		}
	}
	SortByStart(out)
	return out
}

func SortByStart(bookings []domain.Booking) {
	sort.SliceStable(bookings, func(i, j int) bool {
		if bookings[i].Date != bookings[j].Date {
			return bookings[i].Date < bookings[j].Date
		}
		a, _ := domain.ParseClock(bookings[i].StartTime)
		b, _ := domain.ParseClock(bookings[j].StartTime)
		return a < b
	})
}

// Occupied is the union of [start, end) over the given bookings of one day.
func Occupied(day []domain.Booking) MinuteSet {
	out := make(MinuteSet)
	for _, b := range day {
		sp, ok := spanOf(b)
		if !ok {
			continue
		}
		for m := sp.start; m < sp.end; m++ {
			out[m] = struct{}{}
		}
	}
	return out
}

// AvailableStarts lists the grid slots of the day that are not occupied.
func (w Window) AvailableStarts(day []domain.Booking) []string {
	occupied := Occupied(day)
	slots := w.Slots()
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		m, _ := domain.ParseClock(s)
		if !occupied.Has(m) {
			out = append(out, s)
		}
	}
	return out
}

// AvailableEnds lists the end times a booking starting at start can take.
// The run stops at the earliest booking that starts after start, or at
// closing time. An occupied start yields no candidates.
func (w Window) AvailableEnds(day []domain.Booking, start string) ([]string, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	from, err := w.parseGridTime("start_time", start)
	if err != nil {
		return nil, err
	}

	occupied := Occupied(day)
	if occupied.Has(from) {
		return []string{}, nil
	}

	bound := w.Close()
	for _, b := range day {
		sp, ok := spanOf(b)
		if !ok {
			continue
		}
		if sp.start > from && sp.start < bound {
			bound = sp.start
		}
	}

	out := make([]string, 0, (bound-from)/w.Granularity)
	free := from
	for m := from + w.Granularity; m <= bound; m += w.Granularity {
		for ; free < m; free++ {
			if occupied.Has(free) {
				return out, nil
			}
		}
		out = append(out, domain.FormatClock(m))
	}
	return out, nil
}

// CheckAdmission rejects nb when it is an empty or inverted range, or when it
// overlaps any booking of the same studio and date in existing.
func CheckAdmission(existing []domain.Booking, nb domain.NewBooking) error {
	start, err := domain.ParseClock(nb.StartTime)
	if err != nil {
		return validationError("start_time must be HH:MM")
	}
	end, err := domain.ParseClock(nb.EndTime)
	if err != nil {
		return validationError("end_time must be HH:MM")
	}
	if end <= start {
		return validationError("end_time must be after start_time")
	}

	for _, b := range existing {
		if b.Studio != nb.Studio || b.Date != nb.Date {
			continue
		}
		sp, ok := spanOf(b)
		if !ok {
			continue
		}
		if Overlaps(start, end, sp.start, sp.end) {
			return &OverlapError{Existing: b}
		}
	}
	return nil
}
