package schedule

import (
	"time"

	"github.com/example/doorsync/internal/interval"
)

// OfficeHoursDay holds the recurring unlock ranges and target doors for one
// weekday.
type OfficeHoursDay struct {
	Ranges   []interval.LocalRange
	DoorKeys []string
}

// OfficeHours is the parsed recurring unlock configuration.
type OfficeHours struct {
	Enabled bool
	Days    map[time.Weekday]OfficeHoursDay
}

// OfficeHoursEventID tags display items that come from the recurring
// office-hours configuration rather than a calendar event.
const OfficeHoursEventID = "office-hours"

// MergeOfficeHours expands the recurring office hours over every local date
// touched by [from, to) and folds the resulting windows into r. Door keys
// that are not configured in the mapping are skipped. Windows for the same
// door merge with the event-derived ones.
func MergeOfficeHours(r Result, hours OfficeHours, mapping Mapping, from, to time.Time, loc *time.Location) Result {
	if !hours.Enabled || len(hours.Days) == 0 || !from.Before(to) {
		return r
	}
	if loc == nil {
		loc = time.UTC
	}

	out := Result{
		Items:       append([]DisplayItem(nil), r.Items...),
		DoorWindows: make(map[string][]interval.Interval, len(r.DoorWindows)),
	}
	for key, windows := range r.DoorWindows {
		out.DoorWindows[key] = append([]interval.Interval(nil), windows...)
	}

	startDay := time.Date(from.In(loc).Year(), from.In(loc).Month(), from.In(loc).Day(), 0, 0, 0, 0, loc)
	endLocal := to.In(loc)

	for day := startDay; day.Before(endLocal); day = day.AddDate(0, 0, 1) {
		cfg, ok := hours.Days[day.Weekday()]
		if !ok || len(cfg.Ranges) == 0 || len(cfg.DoorKeys) == 0 {
			continue
		}

		windows := interval.WindowsFromDateAndLocalRanges(day, cfg.Ranges, loc)
		for _, doorKey := range dedupeKeys(cfg.DoorKeys) {
			door, found := mapping.DoorByKey(doorKey)
			if !found {
				continue
			}
			for _, w := range windows {
				out.Items = append(out.Items, DisplayItem{
					EventID:   OfficeHoursEventID,
					Name:      "Office Hours",
					DoorKey:   door.Key,
					DoorLabel: mapping.DoorLabel(door.Key),
					StartAt:   w.Start,
					EndAt:     w.End,
					Source:    SourceOfficeHours,
				})
				out.DoorWindows[door.Key] = append(out.DoorWindows[door.Key], w)
			}
		}
	}

	for key := range out.DoorWindows {
		out.DoorWindows[key] = interval.Merge(out.DoorWindows[key])
	}
	SortItems(out.Items)
	return out
}
