package unifi

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/example/doorsync/internal/interval"
)

// wireTimeRange is one unlock range as the controller stores it, both ends as
// "HH:MM:SS" strings.
type wireTimeRange struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// wireWeek is the controller's week_schedule object.
type wireWeek struct {
	Sunday    []wireTimeRange `json:"sunday"`
	Monday    []wireTimeRange `json:"monday"`
	Tuesday   []wireTimeRange `json:"tuesday"`
	Wednesday []wireTimeRange `json:"wednesday"`
	Thursday  []wireTimeRange `json:"thursday"`
	Friday    []wireTimeRange `json:"friday"`
	Saturday  []wireTimeRange `json:"saturday"`
}

// weekFromWire normalizes a remote week for set-equality comparison: ranges
// parsed to minutes, malformed or empty ranges dropped, per-day merge.
func weekFromWire(week wireWeek) interval.Weekly {
	var out interval.Weekly
	out.Days[time.Sunday] = rangesFromWire(week.Sunday)
	out.Days[time.Monday] = rangesFromWire(week.Monday)
	out.Days[time.Tuesday] = rangesFromWire(week.Tuesday)
	out.Days[time.Wednesday] = rangesFromWire(week.Wednesday)
	out.Days[time.Thursday] = rangesFromWire(week.Thursday)
	out.Days[time.Friday] = rangesFromWire(week.Friday)
	out.Days[time.Saturday] = rangesFromWire(week.Saturday)
	return out
}

// weekToWire renders a weekly projection in the controller's format.
func weekToWire(week interval.Weekly) wireWeek {
	return wireWeek{
		Sunday:    rangesToWire(week.Days[time.Sunday]),
		Monday:    rangesToWire(week.Days[time.Monday]),
		Tuesday:   rangesToWire(week.Days[time.Tuesday]),
		Wednesday: rangesToWire(week.Days[time.Wednesday]),
		Thursday:  rangesToWire(week.Days[time.Thursday]),
		Friday:    rangesToWire(week.Days[time.Friday]),
		Saturday:  rangesToWire(week.Days[time.Saturday]),
	}
}

func rangesFromWire(ranges []wireTimeRange) []interval.MinuteRange {
	var out []interval.MinuteRange
	for _, r := range ranges {
		start, ok := parseClock(r.StartTime)
		if !ok {
			continue
		}
		end, ok := parseClock(r.EndTime)
		if !ok || end <= start {
			continue
		}
		out = append(out, interval.MinuteRange{Start: start, End: end})
	}
	return interval.MergeMinuteRanges(out)
}

func rangesToWire(ranges []interval.MinuteRange) []wireTimeRange {
	// The controller rejects missing days, so empty days are emitted as
	// empty arrays rather than omitted.
	out := make([]wireTimeRange, 0, len(ranges))
	for _, r := range ranges {
		out = append(out, wireTimeRange{
			StartTime: formatMinute(r.Start),
			EndTime:   formatMinute(r.End),
		})
	}
	return out
}

// parseClock converts "HH:MM:SS" (or "HH:MM") to minutes since midnight.
// Both "24:00:00" and the controller's "23:59:59" spelling mean end of day.
func parseClock(raw string) (int, bool) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, false
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, false
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, false
	}
	second := 0
	if len(parts) == 3 {
		second, err = strconv.Atoi(parts[2])
		if err != nil {
			return 0, false
		}
	}

	if hour == 24 && minute == 0 && second == 0 {
		return interval.MinutesPerDay, true
	}
	if hour == 23 && minute == 59 && second == 59 {
		return interval.MinutesPerDay, true
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 || second < 0 || second > 59 {
		return 0, false
	}

	return hour*60 + minute, true
}

func formatMinute(minutes int) string {
	if minutes >= interval.MinutesPerDay {
		return "24:00:00"
	}
	return fmt.Sprintf("%02d:%02d:00", minutes/60, minutes%60)
}
