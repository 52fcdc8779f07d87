package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studiobook/internal/bookings"
	"studiobook/internal/domain"
	"studiobook/internal/remote"
	"studiobook/internal/schedule"
	"studiobook/internal/service/reservations"
	"studiobook/internal/store"
	"studiobook/internal/store/memory"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeService struct {
	listFn   func(ctx context.Context) ([]domain.Booking, error)
	createFn func(ctx context.Context, nb domain.NewBooking, key string) (domain.Booking, error)
	deleteFn func(ctx context.Context, id string) error
}

func (f *fakeService) List(ctx context.Context) ([]domain.Booking, error) {
	return f.listFn(ctx)
}

func (f *fakeService) Create(ctx context.Context, nb domain.NewBooking, key string) (domain.Booking, error) {
	return f.createFn(ctx, nb, key)
}

func (f *fakeService) Delete(ctx context.Context, id string) error {
	return f.deleteFn(ctx, id)
}

type recordingObserver struct {
	routes []string
}

func (r *recordingObserver) ObserveHTTP(method, route string, status int, _ time.Duration) {
	r.routes = append(r.routes, method+" "+route)
}

func newAuthority(t *testing.T) *httptest.Server {
	t.Helper()
	svc := reservations.NewService(memory.NewRepo(), schedule.DefaultPolicy(), reservations.WithLogger(quietLogger()))
	srv := httptest.NewServer(NewRouter(NewHandler(svc, quietLogger()), RouterConfig{}))
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, url, contentType, body string) (int, remote.Envelope) {
	t.Helper()
	resp, err := http.Post(url, contentType, strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var env remote.Envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

const addBody = `{"action":"add","requestId":"req-1","data":{"studio":"studio-1","date":"2024-01-10","startTime":"10:00","endTime":"11:00","userName":"Ana","purpose":"Live","subject":"Math"}}`

func TestWrite_AddAcceptsTextPlainAndListsIt(t *testing.T) {
	srv := newAuthority(t)

	status, env := post(t, srv.URL, "text/plain;charset=utf-8", addBody)
	require.Equal(t, http.StatusOK, status)
	require.True(t, env.Success)

	var row map[string]string
	require.NoError(t, json.Unmarshal(env.Data, &row))
	assert.NotEmpty(t, row["id"])
	assert.Equal(t, "10:00", row["startTime"])

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	var list remote.Envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	var rows []map[string]string
	require.NoError(t, json.Unmarshal(list.Data, &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, row["id"], rows[0]["id"])
}

func TestWrite_ReplayedRequestIDReturnsSameBooking(t *testing.T) {
	srv := newAuthority(t)

	_, first := post(t, srv.URL, "application/json", addBody)
	_, second := post(t, srv.URL, "application/json", addBody)
	require.True(t, second.Success)
	assert.JSONEq(t, string(first.Data), string(second.Data))
}

func TestWrite_RejectionsCarryCodes(t *testing.T) {
	srv := newAuthority(t)
	_, env := post(t, srv.URL, "text/plain", addBody)
	require.True(t, env.Success)

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{
			name:   "overlap",
			body:   `{"action":"add","data":{"studio":"studio-1","date":"2024-01-10","startTime":"10:30","endTime":"11:30","userName":"Bo","purpose":"Live","subject":"Art"}}`,
			status: http.StatusConflict,
			code:   remote.CodeConflict,
		},
		{
			name:   "reused request id",
			body:   `{"action":"add","requestId":"req-1","data":{"studio":"studio-1","date":"2024-01-10","startTime":"12:00","endTime":"13:00","userName":"Bo","purpose":"Live","subject":"Art"}}`,
			status: http.StatusConflict,
			code:   remote.CodeIdempotencyConflict,
		},
		{
			name:   "invalid booking",
			body:   `{"action":"add","data":{"studio":"studio-1","date":"2024-01-10","startTime":"10:15","endTime":"11:00","userName":"Bo","subject":"Art"}}`,
			status: http.StatusBadRequest,
			code:   remote.CodeInvalid,
		},
		{
			name:   "unknown id",
			body:   `{"action":"delete","data":{"id":"missing"}}`,
			status: http.StatusNotFound,
			code:   remote.CodeNotFound,
		},
		{
			name:   "unknown action",
			body:   `{"action":"update","data":{}}`,
			status: http.StatusBadRequest,
			code:   remote.CodeInvalid,
		},
		{
			name:   "not json",
			body:   `action=add`,
			status: http.StatusBadRequest,
			code:   remote.CodeInvalid,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := post(t, srv.URL, "text/plain", tt.body)
			assert.Equal(t, tt.status, status)
			assert.False(t, env.Success)
			assert.Equal(t, tt.code, env.Code)
			assert.NotEmpty(t, env.Message)
		})
	}
}

func TestWrite_EmptyPurposeDefaults(t *testing.T) {
	var got domain.NewBooking
	svc := &fakeService{
		createFn: func(_ context.Context, nb domain.NewBooking, key string) (domain.Booking, error) {
			got = nb
			return nb.WithID("b1"), nil
		},
	}
	srv := httptest.NewServer(NewRouter(NewHandler(svc, quietLogger()), RouterConfig{}))
	defer srv.Close()

	status, _ := post(t, srv.URL, "text/plain", `{"action":"add","data":{"studio":"studio-1","date":"2024-01-10","startTime":"10:00","endTime":"11:00","userName":"Ana","subject":"Math"}}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, domain.DefaultPurpose, got.Purpose)
}

func TestList_InternalErrorHidesCause(t *testing.T) {
	svc := &fakeService{
		listFn: func(context.Context) ([]domain.Booking, error) {
			return nil, errors.New("dial tcp: connection refused")
		},
	}
	obs := &recordingObserver{}
	srv := httptest.NewServer(NewRouter(NewHandler(svc, quietLogger()), RouterConfig{Observer: obs}))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	var env remote.Envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, remote.CodeInternal, env.Code)
	assert.Equal(t, "internal error", env.Message)
	assert.Equal(t, []string{"GET /"}, obs.routes)
}

func TestRouter_HealthMetricsAndPreflight(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "# metrics")
	})
	router := NewRouter(NewHandler(&fakeService{}, quietLogger()), RouterConfig{Metrics: metrics, MetricsPath: "/metrics"})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, "# metrics", rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

// Two clients see the same free slot. The authority admits the first and the
// second is told about the conflict; its reload then shows the slot taken.
func TestEndToEnd_ConcurrentClientsConflict(t *testing.T) {
	srv := newAuthority(t)
	ctx := context.Background()
	policy := schedule.DefaultPolicy()

	newCache := func() *bookings.Cache {
		c := bookings.New(remote.NewClient(srv.URL, 5*time.Second, quietLogger()), policy, quietLogger())
		require.NoError(t, c.Load(ctx, true))
		return c
	}
	a, b := newCache(), newCache()
	require.Contains(t, b.Availability("studio-1", "2024-01-10"), "10:00")

	nb := domain.NewBooking{
		Studio: "studio-1", Date: "2024-01-10", StartTime: "10:00", EndTime: "11:00",
		UserName: "Ana", Purpose: domain.PurposeLive, Subject: "Math",
	}
	created, err := a.Create(ctx, nb)
	require.NoError(t, err)
	assert.NotContains(t, created.ID, bookings.PlaceholderPrefix)

	nb.UserName = "Bo"
	nb.StartTime, nb.EndTime = "10:30", "11:30"
	_, err = b.Create(ctx, nb)
	require.Error(t, err)
	assert.ErrorIs(t, err, remote.ErrConflict)

	day := b.Day("studio-1", "2024-01-10")
	require.Len(t, day, 1)
	assert.Equal(t, created.ID, day[0].ID)
	assert.NotContains(t, b.Availability("studio-1", "2024-01-10"), "10:00")

	require.NoError(t, a.Cancel(ctx, created.ID))
	err = b.Cancel(ctx, created.ID)
	assert.ErrorIs(t, err, remote.ErrNotFound)
	assert.Empty(t, b.Day("studio-1", "2024-01-10"))
}

func TestFail_MapsStoreSentinels(t *testing.T) {
	svc := &fakeService{
		deleteFn: func(context.Context, string) error {
			return store.ErrNotFound
		},
	}
	srv := httptest.NewServer(NewRouter(NewHandler(svc, quietLogger()), RouterConfig{}))
	defer srv.Close()

	status, env := post(t, srv.URL, "text/plain", `{"action":"delete","data":{"id":"x"}}`)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, notFoundMessage, env.Message)
}
