// Package resolver decides whether a provider can take a booking over an interval:
// the interval must sit inside one contiguous stretch of effective availability and
// must not overlap an active booking.
package resolver

import (
	"context"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/apptcore/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/apptcore/services/booking-service/internal/model"
)

type ConflictReason string

const (
	ReasonNone                ConflictReason = ""
	ReasonOutsideAvailability ConflictReason = "outside_availability"
	ReasonSlotTaken           ConflictReason = "slot_taken"
)

// lookaround widens the availability query so a window that continues across
// midnight is seen as one interval.
const lookaround = 24 * time.Hour

type Availability interface {
	EffectiveAvailability(ctx context.Context, providerID string, from, to time.Time) ([]availability.Interval, error)
}

type Bookings interface {
	ListActiveOverlapping(ctx context.Context, providerID string, start, end time.Time) ([]model.Booking, error)
}

type Result struct {
	Free      bool
	Reason    ConflictReason
	Covering  availability.Interval
	Conflicts []model.Booking
}

// Err converts a conflict into the matching sentinel error.
func (r Result) Err() error {
	switch r.Reason {
	case ReasonOutsideAvailability:
		return model.ErrOutsideAvailability
	case ReasonSlotTaken:
		return model.ErrSlotTaken
	}
	return nil
}

type Resolver struct {
	availability Availability
	bookings     Bookings
}

func New(a Availability, b Bookings) *Resolver {
	return &Resolver{availability: a, bookings: b}
}

// CheckAvailability is advisory on its own; callers that act on the answer must do so
// in the same transaction as the write.
func (r *Resolver) CheckAvailability(ctx context.Context, providerID string, start, end time.Time) (Result, error) {
	return r.CheckExcluding(ctx, providerID, start, end, "")
}

// CheckExcluding ignores the booking excludeID when looking for conflicts, so a
// booking can be moved over its own current slot.
func (r *Resolver) CheckExcluding(ctx context.Context, providerID string, start, end time.Time, excludeID string) (Result, error) {
	if providerID == "" || !start.Before(end) {
		return Result{}, model.ErrInvalidInterval
	}
	want := availability.Interval{Start: start.UTC(), End: end.UTC()}

	free, err := r.availability.EffectiveAvailability(ctx, providerID, want.Start.Add(-lookaround), want.End.Add(lookaround))
	if err != nil {
		return Result{}, fmt.Errorf("effective availability: %w", err)
	}
	covering, ok := availability.Covering(free, want)
	if !ok {
		return Result{Reason: ReasonOutsideAvailability}, nil
	}

	existing, err := r.bookings.ListActiveOverlapping(ctx, providerID, want.Start, want.End)
	if err != nil {
		return Result{}, fmt.Errorf("active bookings: %w", err)
	}
	var conflicts []model.Booking
	for _, b := range existing {
		if b.ID != excludeID && b.Status.Active() && b.Overlaps(want.Start, want.End) {
			conflicts = append(conflicts, b)
		}
	}
	if len(conflicts) > 0 {
		return Result{Reason: ReasonSlotTaken, Covering: covering, Conflicts: conflicts}, nil
	}
	return Result{Free: true, Covering: covering}, nil
}
