package outbox

import (
	"encoding/json"
	"time"

	"github.com/md-rashed-zaman/apptcore/services/booking-service/internal/model"
)

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType (one topic per event).
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

const AggregateBooking = "booking"

const (
	TopicBookingCreated     = "booking.created.v1"
	TopicBookingConfirmed   = "booking.confirmed.v1"
	TopicBookingRejected    = "booking.rejected.v1"
	TopicBookingStarted     = "booking.started.v1"
	TopicBookingCompleted   = "booking.completed.v1"
	TopicBookingCancelled   = "booking.cancelled.v1"
	TopicBookingRescheduled = "booking.rescheduled.v1"
)

// TopicForStatus maps the status a booking moved into to its event topic.
func TopicForStatus(s model.Status) (string, bool) {
	switch s {
	case model.StatusConfirmed:
		return TopicBookingConfirmed, true
	case model.StatusRejected:
		return TopicBookingRejected, true
	case model.StatusInProgress:
		return TopicBookingStarted, true
	case model.StatusCompleted:
		return TopicBookingCompleted, true
	case model.StatusCancelled:
		return TopicBookingCancelled, true
	}
	return "", false
}

// BookingPayload is the JSON body of every booking.* event.
type BookingPayload struct {
	BookingID  string    `json:"booking_id"`
	ProviderID string    `json:"provider_id"`
	ClientID   string    `json:"client_id"`
	ServiceID  string    `json:"service_id,omitempty"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	Status     string    `json:"status"`
	Version    int64     `json:"version"`
	Reason     string    `json:"reason,omitempty"`
	ActorID    string    `json:"actor_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

func NewBookingEvent(topic string, b model.Booking, actorID string, at time.Time) (Event, error) {
	payload, err := json.Marshal(BookingPayload{
		BookingID:  b.ID,
		ProviderID: b.ProviderID,
		ClientID:   b.ClientID,
		ServiceID:  b.ServiceID,
		StartTime:  b.StartTime.UTC(),
		EndTime:    b.EndTime.UTC(),
		Status:     string(b.Status),
		Version:    b.Version,
		Reason:     b.Reason,
		ActorID:    actorID,
		OccurredAt: at.UTC(),
	})
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: AggregateBooking,
		AggregateID:   b.ID,
		EventType:     topic,
		Payload:       payload,
	}, nil
}
