// Package interval provides the time primitives the door scheduler is built
// on: UTC intervals, local clock ranges, and weekly minute-resolution
// projections.
package interval

import (
	"sort"
	"time"
)

// Interval is a half-open UTC time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// IsValid reports whether the interval has a positive duration.
func (iv Interval) IsValid() bool {
	return iv.End.After(iv.Start)
}

// Merge coalesces overlapping and touching intervals. The result is sorted by
// start time and contains no pair of intervals that overlap or touch. Inputs
// with non-positive duration are dropped. The input slice is not modified.
func Merge(intervals []Interval) []Interval {
	valid := make([]Interval, 0, len(intervals))
	for _, iv := range intervals {
		if iv.IsValid() {
			valid = append(valid, iv)
		}
	}
	if len(valid) == 0 {
		return nil
	}

	sort.Slice(valid, func(i, j int) bool {
		if valid[i].Start.Equal(valid[j].Start) {
			return valid[i].End.Before(valid[j].End)
		}
		return valid[i].Start.Before(valid[j].Start)
	})

	merged := make([]Interval, 0, len(valid))
	current := valid[0]
	for _, iv := range valid[1:] {
		if !iv.Start.After(current.End) {
			if iv.End.After(current.End) {
				current.End = iv.End
			}
			continue
		}
		merged = append(merged, current)
		current = iv
	}
	merged = append(merged, current)

	return merged
}

// SortByStart orders intervals by start time, ties broken by end time. The
// input slice is sorted in place and returned.
func SortByStart(intervals []Interval) []Interval {
	sort.Slice(intervals, func(i, j int) bool {
		if intervals[i].Start.Equal(intervals[j].Start) {
			return intervals[i].End.Before(intervals[j].End)
		}
		return intervals[i].Start.Before(intervals[j].Start)
	})
	return intervals
}
