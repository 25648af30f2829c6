package model

import (
	"errors"
	"testing"
	"time"
)

func TestAvailabilityWindow_Validate(t *testing.T) {
	cases := []struct {
		name string
		w    AvailabilityWindow
		ok   bool
	}{
		{"recurring ok", AvailabilityWindow{Kind: WindowRecurring, Weekday: time.Monday, StartMinute: 540, EndMinute: 1020}, true},
		{"recurring full day", AvailabilityWindow{Kind: WindowRecurring, Weekday: time.Sunday, StartMinute: 0, EndMinute: MinutesPerDay}, true},
		{"recurring inverted", AvailabilityWindow{Kind: WindowRecurring, Weekday: time.Monday, StartMinute: 600, EndMinute: 540}, false},
		{"recurring past midnight", AvailabilityWindow{Kind: WindowRecurring, Weekday: time.Monday, StartMinute: 600, EndMinute: 1500}, false},
		{"recurring bad tz", AvailabilityWindow{Kind: WindowRecurring, Weekday: time.Monday, StartMinute: 0, EndMinute: 60, Timezone: "Mars/Olympus"}, false},
		{"dated ok", AvailabilityWindow{Kind: WindowDated, StartTime: time.Unix(0, 0), EndTime: time.Unix(3600, 0)}, true},
		{"dated empty", AvailabilityWindow{Kind: WindowDated, StartTime: time.Unix(3600, 0), EndTime: time.Unix(3600, 0)}, false},
		{"unknown kind", AvailabilityWindow{Kind: "monthly"}, false},
	}
	for _, tc := range cases {
		err := tc.w.Validate()
		if tc.ok && err != nil {
			t.Fatalf("%s: expected valid, got %v", tc.name, err)
		}
		if !tc.ok && !errors.Is(err, ErrInvalidWindow) {
			t.Fatalf("%s: expected ErrInvalidWindow, got %v", tc.name, err)
		}
	}
}

func TestAvailabilityWindow_ConflictsWith(t *testing.T) {
	mon := AvailabilityWindow{ID: "a", ProviderID: "p", Kind: WindowRecurring, Weekday: time.Monday, StartMinute: 540, EndMinute: 720, Active: true}
	adjacent := AvailabilityWindow{ID: "b", ProviderID: "p", Kind: WindowRecurring, Weekday: time.Monday, StartMinute: 720, EndMinute: 780, Active: true}
	overlapping := AvailabilityWindow{ID: "c", ProviderID: "p", Kind: WindowRecurring, Weekday: time.Monday, StartMinute: 700, EndMinute: 780, Active: true}
	tuesday := overlapping
	tuesday.Weekday = time.Tuesday
	inactive := overlapping
	inactive.Active = false

	if mon.ConflictsWith(adjacent) {
		t.Fatal("adjacent windows must not conflict")
	}
	if !mon.ConflictsWith(overlapping) {
		t.Fatal("overlapping windows must conflict")
	}
	if mon.ConflictsWith(tuesday) {
		t.Fatal("different weekdays must not conflict")
	}
	if mon.ConflictsWith(inactive) {
		t.Fatal("inactive windows must not conflict")
	}
	replaced := overlapping
	replaced.ID = mon.ID
	if mon.ConflictsWith(replaced) {
		t.Fatal("a window must not conflict with its own replacement")
	}
}

func TestStatus(t *testing.T) {
	for _, s := range ActiveStatuses {
		if !s.Active() || s.Terminal() {
			t.Fatalf("%s should be active", s)
		}
	}
	for _, s := range []Status{StatusCompleted, StatusRejected, StatusCancelled} {
		if s.Active() || !s.Terminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
	if _, ok := ParseStatus("booked"); ok {
		t.Fatal("unknown status must not parse")
	}
}

func TestAvailabilityWindow_CheckPlacement(t *testing.T) {
	utc := AvailabilityWindow{ID: "a", ProviderID: "p", Kind: WindowRecurring, Weekday: time.Monday, StartMinute: 540, EndMinute: 1020, Timezone: "UTC", Active: true}
	existing := []AvailabilityWindow{utc}

	tokyo := AvailabilityWindow{Kind: WindowRecurring, Weekday: time.Monday, StartMinute: 540, EndMinute: 1020, Timezone: "Asia/Tokyo"}.Prepare("p")
	if err := tokyo.CheckPlacement(existing); !errors.Is(err, ErrInvalidWindow) {
		t.Fatalf("expected ErrInvalidWindow for a second zone, got %v", err)
	}

	implicitUTC := AvailabilityWindow{Kind: WindowRecurring, Weekday: time.Monday, StartMinute: 1020, EndMinute: 1080}.Prepare("p")
	if err := implicitUTC.CheckPlacement(existing); err != nil {
		t.Fatalf("empty timezone means UTC, got %v", err)
	}

	moved := utc
	moved.Timezone = "Asia/Tokyo"
	if err := moved.CheckPlacement(existing); err != nil {
		t.Fatalf("replacing the only window may change zone, got %v", err)
	}

	dated := AvailabilityWindow{ProviderID: "p", Kind: WindowDated, StartTime: time.Unix(0, 0), EndTime: time.Unix(7200, 0), Active: true}
	blackout := AvailabilityWindow{Kind: WindowDated, StartTime: time.Unix(1800, 0), EndTime: time.Unix(3600, 0)}.Prepare("p")
	if blackout.Active {
		t.Fatal("dated windows keep Active as given")
	}
	if err := blackout.CheckPlacement([]AvailabilityWindow{dated}); err != nil {
		t.Fatalf("a blackout inside a dated window must be accepted, got %v", err)
	}
	blackout.Active = true
	if err := blackout.CheckPlacement([]AvailabilityWindow{dated}); !errors.Is(err, ErrWindowConflict) {
		t.Fatalf("expected ErrWindowConflict, got %v", err)
	}
}
