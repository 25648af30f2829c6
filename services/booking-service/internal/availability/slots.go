package availability

import "time"

// FreeSlots cuts every window into candidates of length duration, stepping by step
// from the window start, and keeps those that start at or after now and miss every
// busy interval. Windows are expected to be merged and sorted, as Effective returns
// them.
func FreeSlots(windows []Interval, duration, step time.Duration, busy []Interval, now time.Time) []Interval {
	if duration <= 0 || step <= 0 {
		return nil
	}
	busy = Merge(busy)

	var out []Interval
	next := 0
	for _, w := range windows {
		for start := w.Start; !start.Add(duration).After(w.End); start = start.Add(step) {
			if start.Before(now) {
				continue
			}
			slot := Interval{Start: start, End: start.Add(duration)}
			// busy is sorted and slots only move forward, so blocks ending at or
			// before this slot can never matter again.
			for next < len(busy) && !busy[next].End.After(slot.Start) {
				next++
			}
			if next < len(busy) && busy[next].Overlaps(slot) {
				continue
			}
			out = append(out, slot)
		}
	}
	return out
}
