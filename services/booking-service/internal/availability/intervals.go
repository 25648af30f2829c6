package availability

import (
	"slices"
	"time"

	"github.com/md-rashed-zaman/apptcore/services/booking-service/internal/model"
)

// Interval is a half-open [Start, End) range.
type Interval struct {
	Start time.Time
	End   time.Time
}

func (i Interval) Empty() bool {
	return !i.End.After(i.Start)
}

// Overlaps reports whether the intervals share at least one instant.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

// Contains reports whether o lies entirely inside i.
func (i Interval) Contains(o Interval) bool {
	return !o.Start.Before(i.Start) && !o.End.After(i.End)
}

// WeeklyPattern is a recurring window on one weekday, expressed in minutes from local
// midnight in Location.
type WeeklyPattern struct {
	Weekday     time.Weekday
	StartMinute int
	EndMinute   int
	Location    *time.Location
}

// ExpandWeekly materialises p for every matching local date touching [from, to) and
// clips the result to that range. Output is sorted and in UTC.
func ExpandWeekly(p WeeklyPattern, from, to time.Time) []Interval {
	if !to.After(from) || p.EndMinute <= p.StartMinute {
		return nil
	}
	loc := p.Location
	if loc == nil {
		loc = time.UTC
	}

	first := from.In(loc)
	day := time.Date(first.Year(), first.Month(), first.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, -1)

	var out []Interval
	for ; day.Before(to); day = day.AddDate(0, 0, 1) {
		if day.Weekday() != p.Weekday {
			continue
		}
		y, m, d := day.Date()
		iv := Interval{
			Start: time.Date(y, m, d, 0, p.StartMinute, 0, 0, loc).UTC(),
			End:   time.Date(y, m, d, 0, p.EndMinute, 0, 0, loc).UTC(),
		}
		if clipped, ok := clip(iv, from, to); ok {
			out = append(out, clipped)
		}
	}
	return out
}

// Merge sorts intervals and coalesces overlapping or touching ones.
func Merge(in []Interval) []Interval {
	items := make([]Interval, 0, len(in))
	for _, iv := range in {
		if !iv.Empty() {
			items = append(items, Interval{Start: iv.Start.UTC(), End: iv.End.UTC()})
		}
	}
	if len(items) == 0 {
		return nil
	}
	slices.SortFunc(items, func(a, b Interval) int {
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
		return a.End.Compare(b.End)
	})

	merged := make([]Interval, 0, len(items))
	for _, cur := range items {
		if len(merged) == 0 {
			merged = append(merged, cur)
			continue
		}
		last := &merged[len(merged)-1]
		if cur.Start.After(last.End) {
			merged = append(merged, cur)
			continue
		}
		if cur.End.After(last.End) {
			last.End = cur.End
		}
	}
	return merged
}

// Subtract removes every block from base. Both inputs may be unsorted; the result is
// sorted and merged.
func Subtract(base, blocks []Interval) []Interval {
	base = Merge(base)
	blocks = Merge(blocks)
	if len(blocks) == 0 {
		return base
	}

	var out []Interval
	for _, b := range base {
		cursor := b.Start
		for _, blk := range blocks {
			if !blk.End.After(cursor) {
				continue
			}
			if !blk.Start.Before(b.End) {
				break
			}
			if blk.Start.After(cursor) {
				out = append(out, Interval{Start: cursor, End: blk.Start})
			}
			if blk.End.After(cursor) {
				cursor = blk.End
			}
		}
		if b.End.After(cursor) {
			out = append(out, Interval{Start: cursor, End: b.End})
		}
	}
	return out
}

// Clip trims every interval to [from, to), dropping the ones left empty.
func Clip(in []Interval, from, to time.Time) []Interval {
	var out []Interval
	for _, iv := range in {
		if c, ok := clip(iv, from, to); ok {
			out = append(out, c)
		}
	}
	return out
}

func clip(iv Interval, from, to time.Time) (Interval, bool) {
	if iv.Start.Before(from) {
		iv.Start = from
	}
	if iv.End.After(to) {
		iv.End = to
	}
	iv.Start = iv.Start.UTC()
	iv.End = iv.End.UTC()
	return iv, !iv.Empty()
}

// Effective is the provider's free time in [from, to): the union of weekly patterns
// and active dated windows, minus blackouts. It is pure and deterministic.
func Effective(patterns []WeeklyPattern, dated, blackouts []Interval, from, to time.Time) []Interval {
	if !to.After(from) {
		return nil
	}
	var all []Interval
	for _, p := range patterns {
		all = append(all, ExpandWeekly(p, from, to)...)
	}
	all = append(all, Clip(dated, from, to)...)
	return Subtract(all, Clip(blackouts, from, to))
}

// Covering returns the free interval that fully contains want, if any. free must be
// merged so that contiguous time is represented by a single interval.
func Covering(free []Interval, want Interval) (Interval, bool) {
	for _, iv := range free {
		if iv.Contains(want) {
			return iv, true
		}
	}
	return Interval{}, false
}

// Split sorts stored windows into the three inputs of Effective. Inactive recurring
// windows are history only and are dropped.
func Split(windows []model.AvailabilityWindow) (patterns []WeeklyPattern, dated, blackouts []Interval) {
	for _, w := range windows {
		switch w.Kind {
		case model.WindowRecurring:
			if !w.Active {
				continue
			}
			loc, err := w.Location()
			if err != nil {
				continue
			}
			patterns = append(patterns, WeeklyPattern{
				Weekday:     w.Weekday,
				StartMinute: w.StartMinute,
				EndMinute:   w.EndMinute,
				Location:    loc,
			})
		case model.WindowDated:
			iv := Interval{Start: w.StartTime, End: w.EndTime}
			if w.Active {
				dated = append(dated, iv)
			} else {
				blackouts = append(blackouts, iv)
			}
		}
	}
	return patterns, dated, blackouts
}

// FromWindows is Effective over stored windows.
func FromWindows(windows []model.AvailabilityWindow, from, to time.Time) []Interval {
	patterns, dated, blackouts := Split(windows)
	return Effective(patterns, dated, blackouts, from, to)
}
