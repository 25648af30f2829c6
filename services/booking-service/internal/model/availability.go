package model

import (
	"fmt"
	"time"
)

type WindowKind string

const (
	WindowRecurring WindowKind = "recurring"
	WindowDated     WindowKind = "dated"
)

const MinutesPerDay = 24 * 60

// AvailabilityWindow is either a weekly pattern (Weekday, StartMinute, EndMinute in
// Timezone) or a concrete [StartTime, EndTime) range. An inactive dated window acts
// as a blackout for the time it covers.
type AvailabilityWindow struct {
	ID          string
	ProviderID  string
	Kind        WindowKind
	Weekday     time.Weekday
	StartMinute int
	EndMinute   int
	Timezone    string
	StartTime   time.Time
	EndTime     time.Time
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Validate checks the shape of the window, not its relation to other windows.
func (w AvailabilityWindow) Validate() error {
	switch w.Kind {
	case WindowRecurring:
		if w.Weekday < time.Sunday || w.Weekday > time.Saturday {
			return ErrInvalidWindow
		}
		if w.StartMinute < 0 || w.EndMinute > MinutesPerDay || w.StartMinute >= w.EndMinute {
			return ErrInvalidWindow
		}
		if _, err := w.Location(); err != nil {
			return ErrInvalidWindow
		}
	case WindowDated:
		if w.StartTime.IsZero() || w.EndTime.IsZero() || !w.StartTime.Before(w.EndTime) {
			return ErrInvalidWindow
		}
	default:
		return ErrInvalidWindow
	}
	return nil
}

// Location resolves Timezone, defaulting to UTC.
func (w AvailabilityWindow) Location() (*time.Location, error) {
	return time.LoadLocation(w.Zone())
}

// Zone is Timezone with the UTC default applied.
func (w AvailabilityWindow) Zone() string {
	if w.Timezone == "" {
		return "UTC"
	}
	return w.Timezone
}

// Prepare applies the storage defaults: recurring windows are saved active in an
// explicit zone, dated windows keep Active as given (false stores a blackout) and
// are kept in UTC.
func (w AvailabilityWindow) Prepare(providerID string) AvailabilityWindow {
	w.ProviderID = providerID
	switch w.Kind {
	case WindowRecurring:
		w.Active = true
		w.Timezone = w.Zone()
	case WindowDated:
		w.StartTime = w.StartTime.UTC()
		w.EndTime = w.EndTime.UTC()
	}
	return w
}

// CheckPlacement validates w against the provider's stored windows. All active
// recurring windows of a provider share one zone, so that weekday and minutes
// compare as instants; a different zone is ErrInvalidWindow.
func (w AvailabilityWindow) CheckPlacement(existing []AvailabilityWindow) error {
	for _, o := range existing {
		if w.zoneMismatch(o) {
			return fmt.Errorf("%w: recurring windows use timezone %s", ErrInvalidWindow, o.Zone())
		}
		if w.ConflictsWith(o) {
			return ErrWindowConflict
		}
	}
	return nil
}

func (w AvailabilityWindow) zoneMismatch(o AvailabilityWindow) bool {
	if w.Kind != WindowRecurring || o.Kind != WindowRecurring || !w.Active || !o.Active {
		return false
	}
	if w.ProviderID != o.ProviderID || (w.ID != "" && w.ID == o.ID) {
		return false
	}
	return w.Zone() != o.Zone()
}

// ConflictsWith reports whether two windows of the same provider and kind would
// both be active over a shared instant.
func (w AvailabilityWindow) ConflictsWith(o AvailabilityWindow) bool {
	if w.Kind != o.Kind || !w.Active || !o.Active || w.ProviderID != o.ProviderID {
		return false
	}
	if w.ID != "" && w.ID == o.ID {
		return false
	}
	switch w.Kind {
	case WindowRecurring:
		return w.Weekday == o.Weekday && w.StartMinute < o.EndMinute && o.StartMinute < w.EndMinute
	case WindowDated:
		return w.StartTime.Before(o.EndTime) && o.StartTime.Before(w.EndTime)
	}
	return false
}
