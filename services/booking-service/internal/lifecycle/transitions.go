package lifecycle

import (
	"slices"

	"github.com/md-rashed-zaman/apptcore/services/booking-service/internal/model"
)

var validTransitions = map[model.Status][]model.Status{
	model.StatusPending:    {model.StatusConfirmed, model.StatusRejected, model.StatusCancelled},
	model.StatusConfirmed:  {model.StatusInProgress, model.StatusCancelled},
	model.StatusInProgress: {model.StatusCompleted, model.StatusCancelled},
	model.StatusCompleted:  {},
	model.StatusRejected:   {},
	model.StatusCancelled:  {},
}

// CanTransition reports whether from -> to is an edge of the booking state machine.
func CanTransition(from, to model.Status) bool {
	return slices.Contains(validTransitions[from], to)
}

// Permitted reports whether actor may move b into to. It assumes the edge itself is
// valid.
func Permitted(actor model.Actor, b model.Booking, to model.Status) bool {
	if actor.UserID == "" {
		return false
	}
	isProvider := actor.UserID == b.ProviderID
	isClient := actor.UserID == b.ClientID
	isAdmin := actor.Role == model.RoleAdmin

	switch to {
	case model.StatusConfirmed, model.StatusRejected, model.StatusInProgress, model.StatusCompleted:
		return isProvider || isAdmin
	case model.StatusCancelled:
		return isProvider || isClient
	}
	return false
}

// CanReschedule reports whether actor may move b to a different slot.
func CanReschedule(actor model.Actor, b model.Booking) bool {
	if b.Status != model.StatusPending && b.Status != model.StatusConfirmed {
		return false
	}
	return actor.UserID != "" && (actor.UserID == b.ClientID || actor.UserID == b.ProviderID)
}
