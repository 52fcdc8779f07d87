package remote

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"studiobook/internal/domain"
)

var errMalformedRow = errors.New("malformed booking row")

func decodeRows(data json.RawMessage) ([]BookingRow, error) {
	if len(bytes.TrimSpace(data)) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var rows []BookingRow
	if err := dec.Decode(&rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func decodeRow(data json.RawMessage) (BookingRow, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var row BookingRow
	if err := dec.Decode(&row); err != nil {
		return nil, err
	}
	return row, nil
}

// normalizeRows keeps the rows that can be read as bookings and drops the rest.
func normalizeRows(rows []BookingRow, loc *time.Location, log *slog.Logger) []domain.Booking {
	out := make([]domain.Booking, 0, len(rows))
	for i, row := range rows {
		b, err := normalizeRow(row, loc)
		if err != nil {
			log.Warn("dropping booking row", slog.Int("row", i), slog.Any("err", err))
			continue
		}
		out = append(out, b)
	}
	return out
}

// normalizeRow converts a loosely typed row into a canonical booking. A row
// without a purpose gets the default one; an unrecognized purpose is kept so
// the time it occupies stays visible.
func normalizeRow(row BookingRow, loc *time.Location) (domain.Booking, error) {
	b := domain.Booking{
		ID:       stringField(row, "id"),
		Studio:   stringField(row, "studio"),
		UserName: stringField(row, "userName"),
		Subject:  stringField(row, "subject"),
		Purpose:  domain.Purpose(stringField(row, "purpose")),
	}
	if b.ID == "" {
		return domain.Booking{}, fmt.Errorf("%w: missing id", errMalformedRow)
	}
	if b.Studio == "" {
		return domain.Booking{}, fmt.Errorf("%w: %s: missing studio", errMalformedRow, b.ID)
	}
	if b.Purpose == "" {
		b.Purpose = domain.DefaultPurpose
	}

	var err error
	if b.Date, err = domain.NormalizeDate(stringField(row, "date"), loc); err != nil {
		return domain.Booking{}, fmt.Errorf("%w: %s: %v", errMalformedRow, b.ID, err)
	}
	if b.StartTime, err = domain.NormalizeClock(stringField(row, "startTime"), loc); err != nil {
		return domain.Booking{}, fmt.Errorf("%w: %s: %v", errMalformedRow, b.ID, err)
	}
	if b.EndTime, err = domain.NormalizeClock(stringField(row, "endTime"), loc); err != nil {
		return domain.Booking{}, fmt.Errorf("%w: %s: %v", errMalformedRow, b.ID, err)
	}
	start, _ := domain.ParseClock(b.StartTime)
	end, _ := domain.ParseClock(b.EndTime)
	if end <= start {
		return domain.Booking{}, fmt.Errorf("%w: %s: end %s not after start %s", errMalformedRow, b.ID, b.EndTime, b.StartTime)
	}
	return b, nil
}

func stringField(row BookingRow, key string) string {
	switch v := row[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}
