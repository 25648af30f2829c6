package handlers

import (
	"net/http"
	"testing"

	"github.com/md-rashed-zaman/apptcore/libs/httpx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckAvailability(t *testing.T) {
	h := newTestServer(t)
	base := "/api/v1/providers/" + providerID + "/availability/check"

	rec := do(t, h, http.MethodGet, base+"?start=2030-03-04T10:00:00Z&end=2030-03-04T11:00:00Z", "", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[checkResponse](t, rec)
	assert.True(t, res.Free)
	require.NotNil(t, res.Covering)
	assert.Equal(t, "2030-03-04T09:00:00Z", res.Covering.StartTime)
	assert.Equal(t, "2030-03-04T17:00:00Z", res.Covering.EndTime)

	rec = do(t, h, http.MethodPost, "/api/v1/bookings", "client-a", "client",
		bookingBody("2030-03-04T10:00:00Z", "2030-03-04T11:00:00Z"))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, h, http.MethodGet, base+"?start=2030-03-04T10:30:00Z&end=2030-03-04T11:30:00Z", "", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	res = decode[checkResponse](t, rec)
	assert.False(t, res.Free)
	assert.Equal(t, "slot_taken", res.Reason)
	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, conflictItem{StartTime: "2030-03-04T10:00:00Z", EndTime: "2030-03-04T11:00:00Z", Status: "pending"}, res.Conflicts[0])
	assert.NotContains(t, body, `"id"`)
	assert.NotContains(t, body, "client-a")

	rec = do(t, h, http.MethodGet, base+"?start=2030-03-04T20:00:00Z&end=2030-03-04T21:00:00Z", "", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "outside_availability", decode[checkResponse](t, rec).Reason)

	rec = do(t, h, http.MethodGet, base+"?start=nope&end=2030-03-04T21:00:00Z", "", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSlots(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/api/v1/public/slots?provider_id="+providerID+"&date=2030-03-04&duration_minutes=60", "", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	slots := decode[[]intervalItem](t, rec)
	require.Len(t, slots, 8)
	assert.Equal(t, "2030-03-04T09:00:00Z", slots[0].StartTime)
	assert.Equal(t, "2030-03-04T10:00:00Z", slots[0].EndTime)

	rec = do(t, h, http.MethodPost, "/api/v1/bookings", "client-a", "client",
		bookingBody("2030-03-04T10:00:00Z", "2030-03-04T11:00:00Z"))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/public/slots?provider_id="+providerID+"&date=2030-03-04&duration_minutes=60", "", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	slots = decode[[]intervalItem](t, rec)
	require.Len(t, slots, 7)
	for _, s := range slots {
		assert.NotEqual(t, "2030-03-04T10:00:00Z", s.StartTime)
	}

	// Tuesday has no windows.
	rec = do(t, h, http.MethodGet, "/api/v1/public/slots?provider_id="+providerID+"&date=2030-03-05", "", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]intervalItem](t, rec))

	rec = do(t, h, http.MethodGet, "/api/v1/public/slots?provider_id="+providerID+"&date=03/04/2030", "", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, h, http.MethodGet, "/api/v1/public/slots?provider_id="+providerID+"&date=2030-03-04&timezone=Mars/Base", "", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, h, http.MethodGet, "/api/v1/public/slots?provider_id="+providerID+"&date=2030-03-04&duration_minutes=-5", "", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAvailabilityWindows(t *testing.T) {
	h := newTestServer(t)
	windowsPath := "/api/v1/providers/" + providerID + "/availability/windows"
	tuesday := 2

	rec := do(t, h, http.MethodPut, windowsPath, "client-a", "client",
		windowRequest{Kind: "recurring", Weekday: &tuesday, StartMinute: 540, EndMinute: 600})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, h, http.MethodPut, windowsPath, providerID, "provider",
		windowRequest{Kind: "recurring", Weekday: &tuesday, StartMinute: 540, EndMinute: 600})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[windowResponse](t, rec)
	assert.True(t, created.Active)
	assert.Equal(t, "UTC", created.Timezone)

	rec = do(t, h, http.MethodPut, windowsPath, providerID, "provider",
		windowRequest{Kind: "recurring", Weekday: &tuesday, StartMinute: 570, EndMinute: 630})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "window_conflict", decode[httpx.ErrorResponse](t, rec).Code)

	rec = do(t, h, http.MethodPut, windowsPath, providerID, "provider",
		windowRequest{Kind: "recurring", StartMinute: 570, EndMinute: 630})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// A dated window deactivated right away blacks out Monday morning.
	rec = do(t, h, http.MethodPut, windowsPath, providerID, "provider",
		windowRequest{Kind: "dated", StartTime: "2030-03-04T09:00:00Z", EndTime: "2030-03-04T12:00:00Z"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	dated := decode[windowResponse](t, rec)

	rec = do(t, h, http.MethodPost, "/api/v1/availability/windows/"+dated.ID+"/deactivate", providerID, "provider", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, decode[windowResponse](t, rec).Active)

	rec = do(t, h, http.MethodGet, "/api/v1/providers/"+providerID+"/availability?from=2030-03-04T00:00:00Z&to=2030-03-05T00:00:00Z", "", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	effective := decode[[]intervalItem](t, rec)
	require.Len(t, effective, 1)
	assert.Equal(t, intervalItem{StartTime: "2030-03-04T12:00:00Z", EndTime: "2030-03-04T17:00:00Z"}, effective[0])

	// A blackout sent inactive cuts a hole in an active dated window.
	rec = do(t, h, http.MethodPut, windowsPath, providerID, "provider",
		windowRequest{Kind: "dated", StartTime: "2030-03-09T08:00:00Z", EndTime: "2030-03-09T12:00:00Z"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	inactive := false
	rec = do(t, h, http.MethodPut, windowsPath, providerID, "provider",
		windowRequest{Kind: "dated", StartTime: "2030-03-09T09:00:00Z", EndTime: "2030-03-09T10:00:00Z", Active: &inactive})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.False(t, decode[windowResponse](t, rec).Active)

	rec = do(t, h, http.MethodGet, "/api/v1/providers/"+providerID+"/availability?from=2030-03-09T00:00:00Z&to=2030-03-10T00:00:00Z", "", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []intervalItem{
		{StartTime: "2030-03-09T08:00:00Z", EndTime: "2030-03-09T09:00:00Z"},
		{StartTime: "2030-03-09T10:00:00Z", EndTime: "2030-03-09T12:00:00Z"},
	}, decode[[]intervalItem](t, rec))

	// Recurring windows of one provider share a timezone.
	wednesday := 3
	rec = do(t, h, http.MethodPut, windowsPath, providerID, "provider",
		windowRequest{Kind: "recurring", Weekday: &wednesday, StartMinute: 540, EndMinute: 600, Timezone: "Asia/Tokyo"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_window", decode[httpx.ErrorResponse](t, rec).Code)

	rec = do(t, h, http.MethodGet, windowsPath, "", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]windowResponse](t, rec), 5)

	rec = do(t, h, http.MethodPost, "/api/v1/availability/windows/missing/deactivate", providerID, "provider", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
