package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studiobook/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newBooking() domain.NewBooking {
	return domain.NewBooking{
		Studio:    "studio-1",
		Date:      "2024-01-10",
		StartTime: "10:00",
		EndTime:   "11:00",
		UserName:  "Ana",
		Purpose:   domain.PurposeLive,
		Subject:   "Podcast",
	}
}

func TestClientList_NormalizesRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		_, _ = io.WriteString(w, `{"success":true,"data":[
			{"id":1700000000,"studio":"studio-1","date":"2024-01-09T17:00:00.000Z","startTime":"1899-12-30T03:00:00.000Z","endTime":"11:00:00","userName":"Ana","purpose":"","subject":"Show"},
			{"id":"b2","studio":"studio-2","date":"2024-01-10","startTime":"9:30","endTime":"10:00","userName":"Ben","purpose":"Karaoke","subject":"x"},
			{"id":"","studio":"studio-1","date":"2024-01-10","startTime":"09:00","endTime":"10:00"},
			{"id":"b4","studio":"studio-1","date":"soon","startTime":"09:00","endTime":"10:00"},
			{"id":"b5","studio":"studio-1","date":"2024-01-10","startTime":"11:00","endTime":"10:00"}
		]}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, discardLogger(), WithLocation(time.FixedZone("UTC+7", 7*60*60)))
	got, err := c.List(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, domain.Booking{
		ID:        "1700000000",
		Studio:    "studio-1",
		Date:      "2024-01-10",
		StartTime: "10:00",
		EndTime:   "11:00",
		UserName:  "Ana",
		Purpose:   domain.PurposeYouTube,
		Subject:   "Show",
	}, got[0])
	assert.Equal(t, "09:30", got[1].StartTime)
	assert.Equal(t, domain.Purpose("Karaoke"), got[1].Purpose)
}

func TestClientList_NotConfiguredIsEmpty(t *testing.T) {
	c := NewClient("", time.Second, discardLogger())
	got, err := c.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = c.Create(context.Background(), newBooking(), "")
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.ErrorIs(t, c.Delete(context.Background(), "b1"), ErrNotConfigured)
}

func TestClientList_RetriesOnceOnMalformedBody(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			_, _ = io.WriteString(w, "<html>temporarily unavailable</html>")
			return
		}
		_, _ = io.WriteString(w, `{"success":true,"data":[]}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, discardLogger())
	got, err := c.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClientList_Unavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, discardLogger())
	_, err := c.List(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)

	srv.Close()
	_, err = c.List(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestClientCreate_SendsActionAsPlainText(t *testing.T) {
	var got WriteRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "text/plain;charset=utf-8", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"success":true,"data":{"id":"b1","studio":"studio-1","date":"2024-01-10","startTime":"10:00","endTime":"11:00","userName":"Ana","purpose":"Live","subject":"Podcast"}}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, discardLogger())
	b, err := c.Create(context.Background(), newBooking(), "req-1")
	require.NoError(t, err)

	assert.Equal(t, ActionAdd, got.Action)
	assert.Equal(t, "req-1", got.RequestID)
	var sent domain.NewBooking
	require.NoError(t, json.Unmarshal(got.Data, &sent))
	assert.Equal(t, newBooking(), sent)

	assert.Equal(t, "b1", b.ID)
	assert.True(t, b.SameContent(newBooking()))
}

func TestClientCreate_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		conflict bool
		notFound bool
		message  string
	}{
		{
			name:     "coded conflict",
			status:   http.StatusConflict,
			body:     `{"success":false,"code":"conflict","message":"This time slot overlaps with an existing booking."}`,
			conflict: true,
			message:  "This time slot overlaps with an existing booking.",
		},
		{
			name:     "script style message only",
			status:   http.StatusOK,
			body:     `{"success":false,"message":"Error: This time slot overlaps with an existing booking."}`,
			conflict: true,
			message:  "Error: This time slot overlaps with an existing booking.",
		},
		{
			name:    "validation",
			status:  http.StatusBadRequest,
			body:    `{"success":false,"code":"invalid","message":"subject is required"}`,
			message: "subject is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			c := NewClient(srv.URL, time.Second, discardLogger())
			_, err := c.Create(context.Background(), newBooking(), "")
			var rErr *RejectedError
			require.ErrorAs(t, err, &rErr)
			assert.Equal(t, tt.message, err.Error())
			assert.Equal(t, tt.conflict, errors.Is(err, ErrConflict))
			assert.Equal(t, tt.notFound, errors.Is(err, ErrNotFound))
			assert.False(t, errors.Is(err, ErrUnavailable))
		})
	}
}

func TestClientCreate_NoRetryWithoutRequestID(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = io.WriteString(w, "oops")
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, discardLogger())
	_, err := c.Create(context.Background(), newBooking(), "")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClientDelete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req WriteRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, ActionDelete, req.Action)
		var data DeleteData
		assert.NoError(t, json.Unmarshal(req.Data, &data))
		if data.ID == "b1" {
			_, _ = io.WriteString(w, `{"success":true}`)
			return
		}
		_, _ = io.WriteString(w, `{"success":false,"message":"Booking ID not found."}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, discardLogger())
	require.NoError(t, c.Delete(context.Background(), "b1"))

	err := c.Delete(context.Background(), "gone")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "Booking ID not found.", err.Error())
}

func TestClientSetEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"success":true,"data":[{"id":"b1","studio":"studio-1","date":"2024-01-10","startTime":"10:00","endTime":"11:00"}]}`)
	}))
	defer srv.Close()

	c := NewClient("", time.Second, discardLogger())
	c.SetEndpoint("  " + srv.URL + " ")
	assert.Equal(t, srv.URL, c.Endpoint())

	got, err := c.List(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "", got[0].UserName)
}
