package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/md-rashed-zaman/apptcore/services/booking-service/internal/model"
	"gopkg.in/yaml.v3"
)

type planFile struct {
	Providers []providerPlan `yaml:"providers"`
}

type providerPlan struct {
	ID        string        `yaml:"id"`
	Timezone  string        `yaml:"timezone"`
	Weekly    []weeklyEntry `yaml:"weekly"`
	Dated     []rangeEntry  `yaml:"dated"`
	Blackouts []rangeEntry  `yaml:"blackouts"`
}

type weeklyEntry struct {
	Weekday string `yaml:"weekday"`
	Start   string `yaml:"start"`
	End     string `yaml:"end"`
}

type rangeEntry struct {
	Start time.Time `yaml:"start"`
	End   time.Time `yaml:"end"`
}


var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday, "friday": time.Friday,
	"saturday": time.Saturday,
}

func parsePlan(r io.Reader) ([]model.AvailabilityWindow, error) {
	var plan planFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&plan); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}

	var out []model.AvailabilityWindow
	for _, p := range plan.Providers {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return nil, errors.New("provider without id")
		}
		for i, e := range p.Weekly {
			day, ok := weekdays[strings.ToLower(strings.TrimSpace(e.Weekday))]
			if !ok {
				return nil, fmt.Errorf("provider %s weekly[%d]: unknown weekday %q", id, i, e.Weekday)
			}
			start, err := parseClock(e.Start)
			if err != nil {
				return nil, fmt.Errorf("provider %s weekly[%d]: %w", id, i, err)
			}
			end, err := parseClock(e.End)
			if err != nil {
				return nil, fmt.Errorf("provider %s weekly[%d]: %w", id, i, err)
			}
			out = append(out, model.AvailabilityWindow{
				ProviderID:  id,
				Kind:        model.WindowRecurring,
				Weekday:     day,
				StartMinute: start,
				EndMinute:   end,
				Timezone:    p.Timezone,
				Active:      true,
			})
		}
		for _, e := range p.Dated {
			out = append(out, datedWindow(id, e, true))
		}
		for _, e := range p.Blackouts {
			out = append(out, datedWindow(id, e, false))
		}
	}

	for _, w := range out {
		if err := w.Validate(); err != nil {
			return nil, fmt.Errorf("provider %s: %w", w.ProviderID, err)
		}
	}
	return out, nil
}

// datedWindow builds an open dated window, or a blackout when active is false.
func datedWindow(providerID string, e rangeEntry, active bool) model.AvailabilityWindow {
	return model.AvailabilityWindow{
		ProviderID: providerID,
		Kind:       model.WindowDated,
		StartTime:  e.Start.UTC(),
		EndTime:    e.End.UTC(),
		Active:     active,
	}
}

// parseClock turns "HH:MM" into minutes after midnight. "24:00" is allowed as an end.
func parseClock(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "24:00" {
		return model.MinutesPerDay, nil
	}
	t, err := time.Parse("15:04", raw)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q", raw)
	}
	return t.Hour()*60 + t.Minute(), nil
}
