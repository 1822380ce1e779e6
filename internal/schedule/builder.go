// Package schedule turns calendar events, the room-door mapping, and
// per-event overrides into door unlock windows and the display items that
// describe them. Everything here is pure: inputs in, windows out.
package schedule

import (
	"sort"
	"strings"
	"time"

	"github.com/example/doorsync/internal/interval"
)

// Event is one observed calendar booking, expanded to a single room.
type Event struct {
	ID       string
	Name     string
	Room     string
	Building string
	Location string
	StartAt  time.Time
	EndAt    time.Time
}

// Door describes one controllable door.
type Door struct {
	Key           string
	Label         string
	RemoteDoorIDs []string
}

// NameExclusion removes door keys from events whose name contains the
// substring, matched case-insensitively.
type NameExclusion struct {
	Substring string
	DoorKeys  []string
}

// Mapping is the validated room-door configuration the builder consumes.
// Doors preserves the operator's configured order.
type Mapping struct {
	Doors                       []Door
	Rooms                       map[string][]string
	LeadMinutes                 int
	LagMinutes                  int
	ExcludeDoorKeysByEventName  []NameExclusion
	ExcludeEventsByRoomContains []string
}

// DoorByKey returns the door configured under key.
func (m Mapping) DoorByKey(key string) (Door, bool) {
	for _, door := range m.Doors {
		if door.Key == key {
			return door, true
		}
	}
	return Door{}, false
}

// DoorKeysForRoom resolves a room name to its configured door keys. Room
// names match case-insensitively; unmapped rooms yield nil.
func (m Mapping) DoorKeysForRoom(room string) []string {
	trimmed := strings.TrimSpace(room)
	for name, keys := range m.Rooms {
		if strings.EqualFold(name, trimmed) {
			return keys
		}
	}
	return nil
}

// DoorLabel returns the display label for a door key, falling back to the
// key itself when the door is not configured.
func (m Mapping) DoorLabel(key string) string {
	if door, ok := m.DoorByKey(key); ok && door.Label != "" {
		return door.Label
	}
	return key
}

// RoomExcluded reports whether a room name matches one of the mapping's
// case-insensitive exclusion substrings.
func (m Mapping) RoomExcluded(room string) bool {
	lowered := strings.ToLower(room)
	for _, substr := range m.ExcludeEventsByRoomContains {
		if substr == "" {
			continue
		}
		if strings.Contains(lowered, strings.ToLower(substr)) {
			return true
		}
	}
	return false
}

func (m Mapping) doorExcludedForName(eventName, doorKey string) bool {
	lowered := strings.ToLower(eventName)
	for _, rule := range m.ExcludeDoorKeysByEventName {
		if rule.Substring == "" {
			continue
		}
		if !strings.Contains(lowered, strings.ToLower(rule.Substring)) {
			continue
		}
		for _, key := range rule.DoorKeys {
			if key == doorKey {
				return true
			}
		}
	}
	return false
}

// DoorOverride carries the explicit local unlock windows for one (event,
// door) pair. An empty Windows slice suppresses the door entirely.
type DoorOverride struct {
	Windows []interval.LocalRange
}

// EventOverride groups the per-door overrides of a single event name.
type EventOverride struct {
	Doors map[string]DoorOverride
}

// Overrides maps lowercase event names to their override configuration.
type Overrides map[string]EventOverride

// Resolve looks up the override for an event name and door key. Event names
// match case-insensitively; door keys match exactly.
func (o Overrides) Resolve(eventName, doorKey string) (DoorOverride, bool) {
	if len(o) == 0 {
		return DoorOverride{}, false
	}
	entry, ok := o[strings.ToLower(strings.TrimSpace(eventName))]
	if !ok {
		return DoorOverride{}, false
	}
	override, ok := entry.Doors[doorKey]
	return override, ok
}

// Source tags where a display item originated.
type Source string

const (
	// SourceEvent marks windows derived from an event with default lead/lag.
	SourceEvent Source = "event"
	// SourceOverride marks windows from an explicit per-event override.
	SourceOverride Source = "override"
	// SourceOfficeHours marks windows from the recurring office-hours schedule.
	SourceOfficeHours Source = "officeHours"
)

// DisplayItem is one unlock window attributed to a door, shaped for the
// dashboard.
type DisplayItem struct {
	EventID   string
	Name      string
	Room      string
	DoorKey   string
	DoorLabel string
	StartAt   time.Time
	EndAt     time.Time
	Source    Source
}

// Result is the outcome of a build: display items plus merged unlock windows
// per door key.
type Result struct {
	Items       []DisplayItem
	DoorWindows map[string][]interval.Interval
}

// Build computes unlock windows for the given events. Events whose room
// matches an exclusion rule are skipped; unmapped rooms are skipped; per-door
// name exclusions remove single doors. Overrides resolve per (event name,
// door): absent applies the default lead/lag, explicit windows are placed on
// the event's local start date, and an empty window list suppresses the door.
// Output is deterministic for identical inputs.
func Build(events []Event, mapping Mapping, overrides Overrides, loc *time.Location) Result {
	if loc == nil {
		loc = time.UTC
	}

	ordered := make([]Event, len(events))
	copy(ordered, events)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].StartAt.Equal(ordered[j].StartAt) {
			return ordered[i].ID < ordered[j].ID
		}
		return ordered[i].StartAt.Before(ordered[j].StartAt)
	})

	lead := time.Duration(mapping.LeadMinutes) * time.Minute
	lag := time.Duration(mapping.LagMinutes) * time.Minute

	items := make([]DisplayItem, 0, len(ordered))
	windows := make(map[string][]interval.Interval)

	for _, event := range ordered {
		if mapping.RoomExcluded(event.Room) {
			continue
		}

		doorKeys := dedupeKeys(mapping.DoorKeysForRoom(event.Room))
		if len(doorKeys) == 0 {
			continue
		}

		for _, doorKey := range doorKeys {
			if mapping.doorExcludedForName(event.Name, doorKey) {
				continue
			}

			label := mapping.DoorLabel(doorKey)

			override, found := overrides.Resolve(event.Name, doorKey)
			switch {
			case !found:
				w := interval.Interval{Start: event.StartAt.Add(-lead), End: event.EndAt.Add(lag)}
				items = append(items, displayItem(event, doorKey, label, w, SourceEvent))
				windows[doorKey] = append(windows[doorKey], w)
			case len(override.Windows) == 0:
				// Suppressed for this door.
			default:
				for _, w := range interval.WindowsFromDateAndLocalRanges(event.StartAt, override.Windows, loc) {
					items = append(items, displayItem(event, doorKey, label, w, SourceOverride))
					windows[doorKey] = append(windows[doorKey], w)
				}
			}
		}
	}

	for key := range windows {
		windows[key] = interval.Merge(windows[key])
	}

	SortItems(items)
	return Result{Items: items, DoorWindows: windows}
}

func displayItem(event Event, doorKey, label string, w interval.Interval, source Source) DisplayItem {
	return DisplayItem{
		EventID:   event.ID,
		Name:      event.Name,
		Room:      event.Room,
		DoorKey:   doorKey,
		DoorLabel: label,
		StartAt:   w.Start,
		EndAt:     w.End,
		Source:    source,
	}
}

// SortItems orders display items by start time, then door key, then event id,
// then name, giving identical inputs an identical rendering order.
func SortItems(items []DisplayItem) {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].StartAt.Equal(items[j].StartAt) {
			return items[i].StartAt.Before(items[j].StartAt)
		}
		if items[i].DoorKey != items[j].DoorKey {
			return items[i].DoorKey < items[j].DoorKey
		}
		if items[i].EventID != items[j].EventID {
			return items[i].EventID < items[j].EventID
		}
		return items[i].Name < items[j].Name
	})
}

func dedupeKeys(keys []string) []string {
	if len(keys) < 2 {
		return keys
	}
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}
