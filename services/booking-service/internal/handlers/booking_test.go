package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/md-rashed-zaman/apptcore/libs/clock"
	"github.com/md-rashed-zaman/apptcore/libs/httpx"
	"github.com/md-rashed-zaman/apptcore/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/apptcore/services/booking-service/internal/scheduling"
	"github.com/md-rashed-zaman/apptcore/services/booking-service/internal/storage/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const providerID = "provider-1"

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	store := memstore.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	now := time.Date(2030, 3, 3, 12, 0, 0, 0, time.UTC)
	engine := scheduling.NewEngine(store, store, store, clock.NewFixed(now), logger, nil, scheduling.Config{})

	_, err := engine.SetAvailabilityWindow(context.Background(),
		model.Actor{UserID: providerID, Role: model.RoleProvider}, providerID,
		model.AvailabilityWindow{Kind: model.WindowRecurring, Weekday: time.Monday, StartMinute: 9 * 60, EndMinute: 17 * 60})
	require.NoError(t, err)

	mux := http.NewServeMux()
	NewBookingHandler(engine, logger).Register(mux)
	return mux
}

func do(t *testing.T, h http.Handler, method, path, userID, role string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if userID != "" {
		req.Header.Set(headerUserID, userID)
	}
	if role != "" {
		req.Header.Set(headerRole, role)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func bookingBody(start, end string) createBookingRequest {
	return createBookingRequest{ProviderID: providerID, ServiceID: "haircut", StartTime: start, EndTime: end}
}

func TestCreateBooking(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/api/v1/bookings", "client-a", "client",
		bookingBody("2030-03-04T10:00:00Z", "2030-03-04T11:00:00Z"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	b := decode[bookingResponse](t, rec)
	assert.Equal(t, "pending", b.Status)
	assert.Equal(t, "client-a", b.ClientID)
	assert.Equal(t, int64(1), b.Version)
	assert.Equal(t, "2030-03-04T10:00:00Z", b.StartTime)

	rec = do(t, h, http.MethodPost, "/api/v1/bookings", "client-b", "client",
		bookingBody("2030-03-04T10:30:00Z", "2030-03-04T11:30:00Z"))
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "slot_taken", decode[httpx.ErrorResponse](t, rec).Code)

	rec = do(t, h, http.MethodPost, "/api/v1/bookings", "client-b", "client",
		bookingBody("2030-03-04T18:00:00Z", "2030-03-04T19:00:00Z"))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "outside_availability", decode[httpx.ErrorResponse](t, rec).Code)

	rec = do(t, h, http.MethodPost, "/api/v1/bookings", "client-b", "client",
		bookingBody("2030-03-04T12:00:00Z", "2030-03-04T12:00:00Z"))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_interval", decode[httpx.ErrorResponse](t, rec).Code)
}

func TestCreateBooking_RequestValidation(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/api/v1/bookings", "", "",
		bookingBody("2030-03-04T10:00:00Z", "2030-03-04T11:00:00Z"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/v1/bookings", "client-a", "superuser",
		bookingBody("2030-03-04T10:00:00Z", "2030-03-04T11:00:00Z"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/v1/bookings", "client-a", "client",
		bookingBody("tomorrow", "2030-03-04T11:00:00Z"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/v1/bookings", "client-a", "client",
		createBookingRequest{StartTime: "2030-03-04T10:00:00Z", EndTime: "2030-03-04T11:00:00Z"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateBooking_IdempotencyKey(t *testing.T) {
	h := newTestServer(t)
	body := bookingBody("2030-03-04T10:00:00Z", "2030-03-04T11:00:00Z")

	first := do(t, h, http.MethodPost, "/api/v1/bookings", "client-a", "client", body, "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	replay := do(t, h, http.MethodPost, "/api/v1/bookings", "client-a", "client", body, "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusCreated, replay.Code, replay.Body.String())
	assert.Equal(t, decode[bookingResponse](t, first).ID, decode[bookingResponse](t, replay).ID)

	other := bookingBody("2030-03-04T13:00:00Z", "2030-03-04T14:00:00Z")
	rec := do(t, h, http.MethodPost, "/api/v1/bookings", "client-a", "client", other, "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "idempotency_conflict", decode[httpx.ErrorResponse](t, rec).Code)
}

func TestBookingLifecycle(t *testing.T) {
	h := newTestServer(t)
	rec := do(t, h, http.MethodPost, "/api/v1/bookings", "client-a", "client",
		bookingBody("2030-03-04T10:00:00Z", "2030-03-04T11:00:00Z"))
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[bookingResponse](t, rec).ID

	rec = do(t, h, http.MethodGet, "/api/v1/bookings/"+id, "client-b", "client", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = do(t, h, http.MethodGet, "/api/v1/bookings/does-not-exist", "client-a", "client", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/v1/bookings/"+id+"/status", "client-a", "client",
		updateStatusRequest{Status: "confirmed", Version: 1})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/v1/bookings/"+id+"/status", providerID, "provider",
		updateStatusRequest{Status: "confirmed", Version: 1})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	confirmed := decode[bookingResponse](t, rec)
	assert.Equal(t, "confirmed", confirmed.Status)
	assert.Equal(t, int64(2), confirmed.Version)

	rec = do(t, h, http.MethodPost, "/api/v1/bookings/"+id+"/status", "client-a", "client",
		updateStatusRequest{Status: "cancelled", Version: 1})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "version_conflict", decode[httpx.ErrorResponse](t, rec).Code)

	rec = do(t, h, http.MethodPost, "/api/v1/bookings/"+id+"/reschedule", "client-a", "client",
		rescheduleRequest{StartTime: "2030-03-04T14:00:00Z", EndTime: "2030-03-04T15:00:00Z", Version: 2})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "2030-03-04T14:00:00Z", decode[bookingResponse](t, rec).StartTime)

	rec = do(t, h, http.MethodPost, "/api/v1/bookings/"+id+"/status", "client-a", "client",
		updateStatusRequest{Status: "cancelled", Reason: "sick"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cancelled := decode[bookingResponse](t, rec)
	assert.Equal(t, "cancelled", cancelled.Status)
	assert.Equal(t, "sick", cancelled.Reason)

	rec = do(t, h, http.MethodPost, "/api/v1/bookings/"+id+"/status", providerID, "provider",
		updateStatusRequest{Status: "confirmed"})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_transition", decode[httpx.ErrorResponse](t, rec).Code)

	rec = do(t, h, http.MethodPost, "/api/v1/bookings/"+id+"/status", providerID, "provider",
		updateStatusRequest{Status: "archived"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListBookings(t *testing.T) {
	h := newTestServer(t)
	for _, slot := range [][2]string{
		{"2030-03-04T09:00:00Z", "2030-03-04T10:00:00Z"},
		{"2030-03-04T11:00:00Z", "2030-03-04T12:00:00Z"},
	} {
		rec := do(t, h, http.MethodPost, "/api/v1/bookings", "client-a", "client", bookingBody(slot[0], slot[1]))
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := do(t, h, http.MethodGet, "/api/v1/providers/"+providerID+"/bookings?status=pending,confirmed", providerID, "provider", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]bookingResponse](t, rec), 2)

	rec = do(t, h, http.MethodGet, "/api/v1/providers/"+providerID+"/bookings?from=2030-03-04T10:30:00Z", providerID, "provider", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]bookingResponse](t, rec), 1)

	rec = do(t, h, http.MethodGet, "/api/v1/providers/"+providerID+"/bookings", "client-a", "client", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/providers/"+providerID+"/bookings?status=booked", providerID, "provider", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/clients/me/bookings?limit=1", "client-a", "client", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]bookingResponse](t, rec), 1)

	for _, limit := range []string{"abc", "0", "-1", "201"} {
		rec = do(t, h, http.MethodGet, "/api/v1/clients/me/bookings?limit="+limit, "client-a", "client", nil)
		require.Equal(t, http.StatusBadRequest, rec.Code, "limit=%s", limit)
		assert.Equal(t, "invalid_request", decode[httpx.ErrorResponse](t, rec).Code)
	}
	rec = do(t, h, http.MethodGet, "/api/v1/clients/me/bookings?limit=200", "client-a", "client", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/clients/me/bookings", "client-b", "client", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]bookingResponse](t, rec))
}

