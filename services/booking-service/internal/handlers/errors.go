package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/md-rashed-zaman/apptcore/libs/httpx"
	"github.com/md-rashed-zaman/apptcore/services/booking-service/internal/model"
)

var errorStatuses = []struct {
	err    error
	status int
	code   string
}{
	{model.ErrInvalidInterval, http.StatusBadRequest, "invalid_interval"},
	{model.ErrInvalidWindow, http.StatusBadRequest, "invalid_window"},
	{model.ErrOutsideAvailability, http.StatusUnprocessableEntity, "outside_availability"},
	{model.ErrSlotTaken, http.StatusConflict, "slot_taken"},
	{model.ErrDuplicateReservation, http.StatusConflict, "slot_taken"},
	{model.ErrVersionConflict, http.StatusConflict, "version_conflict"},
	{model.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{model.ErrWindowConflict, http.StatusConflict, "window_conflict"},
	{model.ErrIdempotencyConflict, http.StatusConflict, "idempotency_conflict"},
	{model.ErrNotPermitted, http.StatusForbidden, "not_permitted"},
	{model.ErrBookingNotFound, http.StatusNotFound, "booking_not_found"},
	{model.ErrWindowNotFound, http.StatusNotFound, "window_not_found"},
	{model.ErrTimeout, http.StatusServiceUnavailable, "timeout"},
}

// writeDomainError maps a scheduling error to its HTTP status. Unknown errors are
// logged and reported as 500 without detail.
func writeDomainError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	for _, e := range errorStatuses {
		if errors.Is(err, e.err) {
			if e.status == http.StatusServiceUnavailable {
				w.Header().Set("Retry-After", "1")
			}
			httpx.WriteError(w, e.status, e.code, e.err.Error())
			return
		}
	}
	logger.ErrorContext(r.Context(), "request failed", "err", err, "path", r.URL.Path,
		"request_id", httpx.RequestIDFromContext(r.Context()))
	httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "internal error")
}
