package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

var (
	ErrInvalidClock = errors.New("invalid clock time")
	ErrInvalidDate  = errors.New("invalid date")
)

// ParseClock converts a wall-clock HH:MM (hour may be a single digit) into
// minutes since midnight. 24:00 is accepted as the end of the day.
func ParseClock(s string) (int, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(h) == 0 || len(h) > 2 || len(m) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	hour, err := strconv.Atoi(h)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	minute, err := strconv.Atoi(m)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	if hour < 0 || minute < 0 || minute > 59 || hour > 24 || (hour == 24 && minute != 0) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	return hour*60 + minute, nil
}

func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// ParseDate accepts only the canonical YYYY-MM-DD form.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return d, nil
}

// NormalizeDate returns the YYYY-MM-DD form of a date that may have been
// serialized as a full timestamp. Timestamps are converted to loc first, so a
// local midnight that was written out in UTC lands on the right day.
func NormalizeDate(raw string, loc *time.Location) (string, error) {
	s := strings.TrimSpace(raw)
	if d, err := time.Parse(DateLayout, s); err == nil {
		return d.Format(DateLayout), nil
	}
	if ts, ok := parseTimestamp(s, loc); ok {
		return ts.In(location(loc)).Format(DateLayout), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidDate, raw)
}

// NormalizeClock returns the HH:MM form of a time that may carry seconds or
// have been serialized as a full timestamp.
func NormalizeClock(raw string, loc *time.Location) (string, error) {
	s := strings.TrimSpace(raw)
	if m, err := ParseClock(s); err == nil {
		return FormatClock(m), nil
	}
	if len(s) == 8 && s[5] == ':' {
		if sec, err := strconv.Atoi(s[6:]); err == nil && sec >= 0 && sec < 60 {
			if m, err := ParseClock(s[:5]); err == nil {
				return FormatClock(m), nil
			}
		}
	}
	if ts, ok := parseTimestamp(s, loc); ok {
		ts = ts.In(location(loc))
		return FormatClock(ts.Hour()*60 + ts.Minute()), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidClock, raw)
}

// At returns the instant at which the wall-clock date and time occur in loc.
func At(date, clock string, loc *time.Location) (time.Time, error) {
	d, err := ParseDate(date)
	if err != nil {
		return time.Time{}, err
	}
	m, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(d.Year(), d.Month(), d.Day(), 0, m, 0, 0, location(loc)), nil
}

// parseTimestamp reads zoned timestamps as-is and naive ones as wall time in loc.
func parseTimestamp(s string, loc *time.Location) (time.Time, bool) {
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts, true
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if ts, err := time.ParseInLocation(layout, s, location(loc)); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func location(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}
