package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/apptcore/libs/httpx"
	"github.com/md-rashed-zaman/apptcore/services/booking-service/internal/model"
)

const (
	defaultSlotMinutes = 30
	maxSlotMinutes     = 24 * 60
)

type windowRequest struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Weekday     *int   `json:"weekday"`
	StartMinute int    `json:"start_minute"`
	EndMinute   int    `json:"end_minute"`
	Timezone    string `json:"timezone"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	// Active defaults to true. A dated window sent with false is a blackout.
	Active *bool `json:"active"`
}

type windowResponse struct {
	ID          string `json:"id"`
	ProviderID  string `json:"provider_id"`
	Kind        string `json:"kind"`
	Weekday     *int   `json:"weekday,omitempty"`
	StartMinute int    `json:"start_minute,omitempty"`
	EndMinute   int    `json:"end_minute,omitempty"`
	Timezone    string `json:"timezone,omitempty"`
	StartTime   string `json:"start_time,omitempty"`
	EndTime     string `json:"end_time,omitempty"`
	Active      bool   `json:"active"`
}

func (h *BookingHandler) EffectiveAvailability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to, ok := parseRange(w, q.Get("from"), q.Get("to"), "from", "to")
	if !ok {
		return
	}
	intervals, err := h.engine.EffectiveAvailability(r.Context(), r.PathValue("providerID"), from, to)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	items := make([]intervalItem, 0, len(intervals))
	for _, iv := range intervals {
		items = append(items, toIntervalItem(iv))
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}

// Slots lists free slots for one calendar day in the caller's timezone.
func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	providerID := strings.TrimSpace(q.Get("provider_id"))
	dateStr := strings.TrimSpace(q.Get("date"))
	if providerID == "" || dateStr == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "provider_id and date are required")
		return
	}

	loc := time.UTC
	if tz := strings.TrimSpace(q.Get("timezone")); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "invalid timezone")
			return
		}
		loc = l
	}
	day, err := time.ParseInLocation("2006-01-02", dateStr, loc)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "date must be YYYY-MM-DD")
		return
	}
	durationMins, ok := minutesParam(w, q.Get("duration_minutes"), defaultSlotMinutes, "duration_minutes")
	if !ok {
		return
	}
	stepMins, ok := minutesParam(w, q.Get("slot_step_minutes"), durationMins, "slot_step_minutes")
	if !ok {
		return
	}

	from := day
	to := day.AddDate(0, 0, 1)
	slots, err := h.engine.FreeSlots(r.Context(), providerID, from, to,
		time.Duration(durationMins)*time.Minute, time.Duration(stepMins)*time.Minute)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	items := make([]intervalItem, 0, len(slots))
	for _, s := range slots {
		items = append(items, toIntervalItem(s))
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}

func (h *BookingHandler) ListWindows(w http.ResponseWriter, r *http.Request) {
	windows, err := h.engine.ListAvailabilityWindows(r.Context(), r.PathValue("providerID"))
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	items := make([]windowResponse, 0, len(windows))
	for _, win := range windows {
		items = append(items, toWindowResponse(win))
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}

func (h *BookingHandler) SetWindow(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(r)
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthenticated", "missing user identity")
		return
	}
	var req windowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_json", "invalid json body")
		return
	}

	win := model.AvailabilityWindow{
		ID:          strings.TrimSpace(req.ID),
		Kind:        model.WindowKind(strings.ToLower(strings.TrimSpace(req.Kind))),
		StartMinute: req.StartMinute,
		EndMinute:   req.EndMinute,
		Timezone:    strings.TrimSpace(req.Timezone),
	}
	switch win.Kind {
	case model.WindowRecurring:
		if req.Weekday == nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_window", "weekday required")
			return
		}
		win.Weekday = time.Weekday(*req.Weekday)
	case model.WindowDated:
		start, end, ok := parseRange(w, req.StartTime, req.EndTime, "start_time", "end_time")
		if !ok {
			return
		}
		win.StartTime, win.EndTime = start, end
		win.Active = req.Active == nil || *req.Active
	}

	saved, err := h.engine.SetAvailabilityWindow(r.Context(), actor, r.PathValue("providerID"), win)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	status := http.StatusOK
	if win.ID == "" {
		status = http.StatusCreated
	}
	httpx.WriteJSON(w, status, toWindowResponse(saved))
}

func (h *BookingHandler) DeactivateWindow(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(r)
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthenticated", "missing user identity")
		return
	}
	saved, err := h.engine.DeactivateAvailabilityWindow(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toWindowResponse(saved))
}

func minutesParam(w http.ResponseWriter, raw string, fallback int, name string) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > maxSlotMinutes {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "invalid "+name)
		return 0, false
	}
	return n, true
}

func toWindowResponse(win model.AvailabilityWindow) windowResponse {
	resp := windowResponse{
		ID:         win.ID,
		ProviderID: win.ProviderID,
		Kind:       string(win.Kind),
		Active:     win.Active,
	}
	if win.Kind == model.WindowRecurring {
		wd := int(win.Weekday)
		resp.Weekday = &wd
		resp.StartMinute = win.StartMinute
		resp.EndMinute = win.EndMinute
		resp.Timezone = win.Timezone
	} else {
		resp.StartTime = formatTime(win.StartTime)
		resp.EndTime = formatTime(win.EndTime)
	}
	return resp
}
