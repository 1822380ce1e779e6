package interval

import (
	"sort"
	"time"
)

// MinutesPerDay is the exclusive upper bound for minute-of-day values; a
// range ending at exactly midnight ends at this minute.
const MinutesPerDay = 24 * 60

// MinuteRange is a half-open [Start, End) span of minutes within one day.
type MinuteRange struct {
	Start int
	End   int
}

// Weekly is a minute-resolution unlock schedule, one merged range list per
// weekday. Days is indexed by time.Weekday (Sunday first).
type Weekly struct {
	Days [7][]MinuteRange
}

// Equal reports set equality between two weekly schedules. Both sides are
// assumed to hold merged, sorted ranges as produced by ProjectWeekly or
// MergeMinuteRanges.
func (w Weekly) Equal(other Weekly) bool {
	for day := range w.Days {
		a, b := w.Days[day], other.Days[day]
		if len(a) != len(b) {
			return false
		}
		for i := range a {
			if a[i] != b[i] {
				return false
			}
		}
	}
	return true
}

// IsEmpty reports whether the schedule contains no ranges at all.
func (w Weekly) IsEmpty() bool {
	for day := range w.Days {
		if len(w.Days[day]) > 0 {
			return false
		}
	}
	return true
}

// ProjectWeekly folds absolute intervals onto a recurring week in the given
// zone. Each interval is converted to local time and split at local midnight;
// every segment contributes a minute range to its own local weekday. Ranges
// for the same weekday are merged, so projecting is idempotent: expanding the
// result over the same dates and projecting again yields an equal schedule.
func ProjectWeekly(intervals []Interval, loc *time.Location) Weekly {
	if loc == nil {
		loc = time.UTC
	}

	var weekly Weekly
	for _, iv := range Merge(intervals) {
		cursor := iv.Start.In(loc)
		end := iv.End.In(loc)
		for cursor.Before(end) {
			year, month, day := cursor.Date()
			nextMidnight := time.Date(year, month, day, 0, 0, 0, 0, loc).AddDate(0, 0, 1)
			segmentEnd := end
			if nextMidnight.Before(segmentEnd) {
				segmentEnd = nextMidnight
			}

			startMinute := cursor.Hour()*60 + cursor.Minute()
			endMinute := segmentEnd.Hour()*60 + segmentEnd.Minute()
			if segmentEnd.Equal(nextMidnight) {
				endMinute = MinutesPerDay
			}
			if endMinute > startMinute {
				weekday := cursor.Weekday()
				weekly.Days[weekday] = append(weekly.Days[weekday], MinuteRange{Start: startMinute, End: endMinute})
			}

			cursor = segmentEnd
		}
	}

	for day := range weekly.Days {
		weekly.Days[day] = MergeMinuteRanges(weekly.Days[day])
	}
	return weekly
}

// MergeMinuteRanges coalesces overlapping and touching minute ranges, sorted
// by start. Non-positive ranges are dropped.
func MergeMinuteRanges(ranges []MinuteRange) []MinuteRange {
	valid := make([]MinuteRange, 0, len(ranges))
	for _, r := range ranges {
		if r.End > r.Start {
			valid = append(valid, r)
		}
	}
	if len(valid) == 0 {
		return nil
	}

	sort.Slice(valid, func(i, j int) bool {
		if valid[i].Start == valid[j].Start {
			return valid[i].End < valid[j].End
		}
		return valid[i].Start < valid[j].Start
	})

	merged := make([]MinuteRange, 0, len(valid))
	current := valid[0]
	for _, r := range valid[1:] {
		if r.Start <= current.End {
			if r.End > current.End {
				current.End = r.End
			}
			continue
		}
		merged = append(merged, current)
		current = r
	}
	merged = append(merged, current)

	return merged
}

// WindowsFromDateAndLocalRanges materialises local clock ranges on the local
// calendar day of date in the given zone, returning UTC intervals sorted by
// start. A close at or before its open rolls to the following day.
func WindowsFromDateAndLocalRanges(date time.Time, ranges []LocalRange, loc *time.Location) []Interval {
	if loc == nil {
		loc = time.UTC
	}

	year, month, day := date.In(loc).Date()
	windows := make([]Interval, 0, len(ranges))
	for _, r := range ranges {
		open := time.Date(year, month, day, r.Open.Hour, r.Open.Minute, 0, 0, loc)
		closeAt := time.Date(year, month, day, r.Close.Hour, r.Close.Minute, 0, 0, loc)
		if !closeAt.After(open) {
			closeAt = closeAt.AddDate(0, 0, 1)
		}
		windows = append(windows, Interval{Start: open.UTC(), End: closeAt.UTC()})
	}

	return SortByStart(windows)
}
