package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/apptcore/libs/httpx"
	"github.com/md-rashed-zaman/apptcore/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/apptcore/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/apptcore/services/booking-service/internal/resolver"
	"github.com/md-rashed-zaman/apptcore/services/booking-service/internal/scheduling"
)

// Scheduler is the engine surface the HTTP adapter drives.
type Scheduler interface {
	RequestBooking(ctx context.Context, req scheduling.BookingRequest) (model.Booking, error)
	CheckAvailability(ctx context.Context, providerID string, start, end time.Time) (resolver.Result, error)
	TransitionBooking(ctx context.Context, actor model.Actor, id string, expectedVersion int64, to model.Status, reason string) (model.Booking, error)
	RescheduleBooking(ctx context.Context, actor model.Actor, id string, expectedVersion int64, start, end time.Time) (model.Booking, error)
	GetBooking(ctx context.Context, actor model.Actor, id string) (model.Booking, error)
	ListBookingsForProvider(ctx context.Context, actor model.Actor, providerID string, f model.ListFilter) ([]model.Booking, error)
	ListBookingsForClient(ctx context.Context, actor model.Actor, f model.ListFilter) ([]model.Booking, error)
	SetAvailabilityWindow(ctx context.Context, actor model.Actor, providerID string, w model.AvailabilityWindow) (model.AvailabilityWindow, error)
	DeactivateAvailabilityWindow(ctx context.Context, actor model.Actor, id string) (model.AvailabilityWindow, error)
	ListAvailabilityWindows(ctx context.Context, providerID string) ([]model.AvailabilityWindow, error)
	EffectiveAvailability(ctx context.Context, providerID string, from, to time.Time) ([]availability.Interval, error)
	FreeSlots(ctx context.Context, providerID string, from, to time.Time, duration, step time.Duration) ([]availability.Interval, error)
}

type BookingHandler struct {
	engine Scheduler
	logger *slog.Logger
	tokens TokenVerifier
}

func NewBookingHandler(engine Scheduler, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{engine: engine, logger: logger}
}

// Register mounts every route on mux.
func (h *BookingHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/bookings", h.Create)
	mux.HandleFunc("GET /api/v1/bookings/{id}", h.Get)
	mux.HandleFunc("POST /api/v1/bookings/{id}/status", h.UpdateStatus)
	mux.HandleFunc("POST /api/v1/bookings/{id}/reschedule", h.Reschedule)
	mux.HandleFunc("GET /api/v1/providers/{providerID}/bookings", h.ListForProvider)
	mux.HandleFunc("GET /api/v1/clients/me/bookings", h.ListForClient)

	mux.HandleFunc("GET /api/v1/providers/{providerID}/availability/check", h.CheckAvailability)
	mux.HandleFunc("GET /api/v1/providers/{providerID}/availability", h.EffectiveAvailability)
	mux.HandleFunc("GET /api/v1/providers/{providerID}/availability/windows", h.ListWindows)
	mux.HandleFunc("PUT /api/v1/providers/{providerID}/availability/windows", h.SetWindow)
	mux.HandleFunc("POST /api/v1/availability/windows/{id}/deactivate", h.DeactivateWindow)
	mux.HandleFunc("GET /api/v1/public/slots", h.Slots)
}

type createBookingRequest struct {
	ProviderID string `json:"provider_id"`
	ServiceID  string `json:"service_id"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
}

type updateStatusRequest struct {
	Status  string `json:"status"`
	Version int64  `json:"version"`
	Reason  string `json:"reason"`
}

type rescheduleRequest struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Version   int64  `json:"version"`
}

type bookingResponse struct {
	ID         string `json:"id"`
	ProviderID string `json:"provider_id"`
	ClientID   string `json:"client_id"`
	ServiceID  string `json:"service_id,omitempty"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	Status     string `json:"status"`
	Version    int64  `json:"version"`
	Reason     string `json:"reason,omitempty"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

type intervalItem struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// conflictItem is a busy range as shown to any caller: no ids, no parties.
type conflictItem struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Status    string `json:"status"`
}

type checkResponse struct {
	Free      bool           `json:"free"`
	Reason    string         `json:"reason,omitempty"`
	Covering  *intervalItem  `json:"covering,omitempty"`
	Conflicts []conflictItem `json:"conflicts,omitempty"`
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(r)
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthenticated", "missing user identity")
		return
	}

	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_json", "invalid json body")
		return
	}
	req.ProviderID = strings.TrimSpace(req.ProviderID)
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	if req.ProviderID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "provider_id required")
		return
	}
	start, end, ok := parseRange(w, req.StartTime, req.EndTime, "start_time", "end_time")
	if !ok {
		return
	}

	b, err := h.engine.RequestBooking(r.Context(), scheduling.BookingRequest{
		ProviderID:     req.ProviderID,
		ClientID:       actor.UserID,
		ServiceID:      req.ServiceID,
		Start:          start,
		End:            end,
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	})
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toBookingResponse(b))
}

func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(r)
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthenticated", "missing user identity")
		return
	}
	b, err := h.engine.GetBooking(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toBookingResponse(b))
}

func (h *BookingHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(r)
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthenticated", "missing user identity")
		return
	}
	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_json", "invalid json body")
		return
	}
	status, ok := model.ParseStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	if !ok {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_status", "unknown status")
		return
	}

	b, err := h.engine.TransitionBooking(r.Context(), actor, r.PathValue("id"), req.Version, status, strings.TrimSpace(req.Reason))
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toBookingResponse(b))
}

func (h *BookingHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(r)
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthenticated", "missing user identity")
		return
	}
	var req rescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_json", "invalid json body")
		return
	}
	start, end, ok := parseRange(w, req.StartTime, req.EndTime, "start_time", "end_time")
	if !ok {
		return
	}

	b, err := h.engine.RescheduleBooking(r.Context(), actor, r.PathValue("id"), req.Version, start, end)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toBookingResponse(b))
}

func (h *BookingHandler) ListForProvider(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(r)
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthenticated", "missing user identity")
		return
	}
	filter, ok := parseListFilter(w, r)
	if !ok {
		return
	}
	bookings, err := h.engine.ListBookingsForProvider(r.Context(), actor, r.PathValue("providerID"), filter)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toBookingResponses(bookings))
}

func (h *BookingHandler) ListForClient(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(r)
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthenticated", "missing user identity")
		return
	}
	filter, ok := parseListFilter(w, r)
	if !ok {
		return
	}
	bookings, err := h.engine.ListBookingsForClient(r.Context(), actor, filter)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toBookingResponses(bookings))
}

func (h *BookingHandler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, end, ok := parseRange(w, q.Get("start"), q.Get("end"), "start", "end")
	if !ok {
		return
	}
	res, err := h.engine.CheckAvailability(r.Context(), r.PathValue("providerID"), start, end)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	resp := checkResponse{Free: res.Free, Reason: string(res.Reason)}
	if !res.Covering.Empty() {
		item := toIntervalItem(res.Covering)
		resp.Covering = &item
	}
	for _, b := range res.Conflicts {
		resp.Conflicts = append(resp.Conflicts, conflictItem{
			StartTime: formatTime(b.StartTime),
			EndTime:   formatTime(b.EndTime),
			Status:    string(b.Status),
		})
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func parseRange(w http.ResponseWriter, rawStart, rawEnd, startName, endName string) (time.Time, time.Time, bool) {
	start, err := time.Parse(time.RFC3339, strings.TrimSpace(rawStart))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "invalid "+startName)
		return time.Time{}, time.Time{}, false
	}
	end, err := time.Parse(time.RFC3339, strings.TrimSpace(rawEnd))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "invalid "+endName)
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

func parseListFilter(w http.ResponseWriter, r *http.Request) (model.ListFilter, bool) {
	q := r.URL.Query()
	var f model.ListFilter

	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			s, ok := model.ParseStatus(strings.ToLower(strings.TrimSpace(part)))
			if !ok {
				httpx.WriteError(w, http.StatusBadRequest, "invalid_status", "unknown status "+part)
				return model.ListFilter{}, false
			}
			f.Statuses = append(f.Statuses, s)
		}
	}
	for _, p := range []struct {
		name string
		dst  *time.Time
	}{{"from", &f.From}, {"to", &f.To}} {
		raw := strings.TrimSpace(q.Get(p.name))
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "invalid "+p.name)
			return model.ListFilter{}, false
		}
		*p.dst = t
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > model.MaxListLimit {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_request",
				fmt.Sprintf("limit must be between 1 and %d", model.MaxListLimit))
			return model.ListFilter{}, false
		}
		f.Limit = n
	}
	return f, true
}

func toBookingResponse(b model.Booking) bookingResponse {
	return bookingResponse{
		ID:         b.ID,
		ProviderID: b.ProviderID,
		ClientID:   b.ClientID,
		ServiceID:  b.ServiceID,
		StartTime:  formatTime(b.StartTime),
		EndTime:    formatTime(b.EndTime),
		Status:     string(b.Status),
		Version:    b.Version,
		Reason:     b.Reason,
		CreatedAt:  formatTime(b.CreatedAt),
		UpdatedAt:  formatTime(b.UpdatedAt),
	}
}

func toBookingResponses(bookings []model.Booking) []bookingResponse {
	items := make([]bookingResponse, 0, len(bookings))
	for _, b := range bookings {
		items = append(items, toBookingResponse(b))
	}
	return items
}

func toIntervalItem(iv availability.Interval) intervalItem {
	return intervalItem{StartTime: formatTime(iv.Start), EndTime: formatTime(iv.End)}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
