package schedule

import (
	"testing"
	"time"

	"github.com/example/doorsync/internal/interval"
)

func testOfficeHours() OfficeHours {
	return OfficeHours{
		Enabled: true,
		Days: map[time.Weekday]OfficeHoursDay{
			time.Monday: {
				Ranges:   []interval.LocalRange{{Open: interval.ClockTime{Hour: 9}, Close: interval.ClockTime{Hour: 11}}},
				DoorKeys: []string{"office"},
			},
		},
	}
}

func TestMergeOfficeHours_MergesWithEventWindow(t *testing.T) {
	t.Parallel()

	// Monday 2026-03-02. Office hours 09:00-11:00, event 10:30-12:00 with
	// 15 minute lead/lag: the office door ends up with one 09:00-12:15 window.
	events := []Event{{
		ID:      "evt-1",
		Name:    "Counseling",
		Room:    "Office",
		StartAt: time.Date(2026, time.March, 2, 10, 30, 0, 0, time.UTC),
		EndAt:   time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC),
	}}
	built := Build(events, testMapping(), nil, time.UTC)

	from := time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)
	merged := MergeOfficeHours(built, testOfficeHours(), testMapping(), from, to, time.UTC)

	windows := merged.DoorWindows["office"]
	if len(windows) != 1 {
		t.Fatalf("expected one merged window, got %v", windows)
	}
	wantStart := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2026, time.March, 2, 12, 15, 0, 0, time.UTC)
	if !windows[0].Start.Equal(wantStart) || !windows[0].End.Equal(wantEnd) {
		t.Fatalf("expected window %v-%v, got %v-%v", wantStart, wantEnd, windows[0].Start, windows[0].End)
	}

	var officeHourItems int
	for _, item := range merged.Items {
		if item.Source == SourceOfficeHours {
			officeHourItems++
			if item.EventID != OfficeHoursEventID || item.DoorKey != "office" || item.DoorLabel != "Office" {
				t.Fatalf("unexpected office-hours item: %+v", item)
			}
		}
	}
	if officeHourItems != 1 {
		t.Fatalf("expected one office-hours item, got %d", officeHourItems)
	}
}

func TestMergeOfficeHours_EmitsEveryMatchingDate(t *testing.T) {
	t.Parallel()

	// Two Mondays inside a nine-day window produce two separate windows.
	from := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	to := from.Add(9 * 24 * time.Hour)
	merged := MergeOfficeHours(Result{}, testOfficeHours(), testMapping(), from, to, time.UTC)

	windows := merged.DoorWindows["office"]
	if len(windows) != 2 {
		t.Fatalf("expected windows for two Mondays, got %v", windows)
	}
	if got := windows[0].Start.Weekday(); got != time.Monday {
		t.Fatalf("expected Monday window, got %v", got)
	}
	if !windows[1].Start.Equal(windows[0].Start.AddDate(0, 0, 7)) {
		t.Fatalf("expected windows one week apart, got %v and %v", windows[0].Start, windows[1].Start)
	}
}

func TestMergeOfficeHours_Disabled(t *testing.T) {
	t.Parallel()

	hours := testOfficeHours()
	hours.Enabled = false

	from := time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)
	merged := MergeOfficeHours(Result{}, hours, testMapping(), from, from.Add(24*time.Hour), time.UTC)

	if len(merged.Items) != 0 || len(merged.DoorWindows) != 0 {
		t.Fatalf("disabled office hours must contribute nothing, got %+v", merged)
	}
}

func TestMergeOfficeHours_SkipsUnknownDoors(t *testing.T) {
	t.Parallel()

	hours := testOfficeHours()
	day := hours.Days[time.Monday]
	day.DoorKeys = []string{"office", "no_such_door"}
	hours.Days[time.Monday] = day

	from := time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)
	merged := MergeOfficeHours(Result{}, hours, testMapping(), from, from.Add(24*time.Hour), time.UTC)

	if _, ok := merged.DoorWindows["no_such_door"]; ok {
		t.Fatal("unconfigured door key must be skipped")
	}
	if len(merged.DoorWindows["office"]) != 1 {
		t.Fatalf("expected office window, got %v", merged.DoorWindows)
	}
}

func TestMergeOfficeHours_DoesNotMutateInput(t *testing.T) {
	t.Parallel()

	events := []Event{{
		ID:      "evt-1",
		Name:    "Counseling",
		Room:    "Office",
		StartAt: time.Date(2026, time.March, 2, 10, 30, 0, 0, time.UTC),
		EndAt:   time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC),
	}}
	built := Build(events, testMapping(), nil, time.UTC)
	itemsBefore := len(built.Items)
	windowsBefore := len(built.DoorWindows["office"])

	from := time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)
	MergeOfficeHours(built, testOfficeHours(), testMapping(), from, from.Add(24*time.Hour), time.UTC)

	if len(built.Items) != itemsBefore || len(built.DoorWindows["office"]) != windowsBefore {
		t.Fatal("merge must not mutate the builder result")
	}
}
