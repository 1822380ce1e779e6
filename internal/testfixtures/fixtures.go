package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/doorsync/internal/persistence"
	"github.com/example/doorsync/internal/schedule"
)

var (
	eventCounter     uint64
	pendingCounter   uint64
	cancelledCounter uint64
	memoryCounter    uint64
)

var referenceTime = time.Date(2024, time.January, 2, 15, 4, 5, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// ----------------------------- Event fixtures ----------------------------

// EventFixture represents a deterministic calendar booking that can be
// materialised for schedule or application tests.
type EventFixture struct {
	ID       string
	Name     string
	Room     string
	Building string
	Location string
	StartAt  time.Time
	EndAt    time.Time
}

// EventOption configures the generated event fixture.
type EventOption func(*EventFixture)

// NewEventFixture returns a deterministic event fixture with optional
// overrides. Each call advances the start time by an hour so fixtures never
// collide unless a test asks them to.
func NewEventFixture(opts ...EventOption) EventFixture {
	idx := atomic.AddUint64(&eventCounter, 1)
	start := referenceTime.Add(time.Duration(idx) * time.Hour)
	fixture := EventFixture{
		ID:       fmt.Sprintf("evt-%03d", idx),
		Name:     fmt.Sprintf("Event %03d", idx),
		Room:     "Gym",
		Building: "Main Campus",
		Location: "Main Campus",
		StartAt:  start,
		EndAt:    start.Add(time.Hour),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithEventID overrides the generated event instance ID.
func WithEventID(id string) EventOption {
	return func(f *EventFixture) {
		f.ID = id
	}
}

// WithEventName overrides the generated event name.
func WithEventName(name string) EventOption {
	return func(f *EventFixture) {
		f.Name = name
	}
}

// WithEventRoom overrides the booked room.
func WithEventRoom(room string) EventOption {
	return func(f *EventFixture) {
		f.Room = room
	}
}

// WithEventBuilding overrides the building name.
func WithEventBuilding(building string) EventOption {
	return func(f *EventFixture) {
		f.Building = building
	}
}

// WithEventLocation overrides the raw location string.
func WithEventLocation(location string) EventOption {
	return func(f *EventFixture) {
		f.Location = location
	}
}

// WithEventStartEnd sets the event window.
func WithEventStartEnd(start, end time.Time) EventOption {
	return func(f *EventFixture) {
		f.StartAt = start
		f.EndAt = end
	}
}

// Schedule converts the fixture into a schedule-layer event.
func (f EventFixture) Schedule() schedule.Event {
	return schedule.Event{
		ID:       f.ID,
		Name:     f.Name,
		Room:     f.Room,
		Building: f.Building,
		Location: f.Location,
		StartAt:  f.StartAt,
		EndAt:    f.EndAt,
	}
}

// ---------------------------- Mapping fixtures ---------------------------

// MappingFixture assembles a room-door mapping document that passes
// validation: every room references configured doors and the defaults carry
// non-negative lead and lag minutes.
type MappingFixture struct {
	Doors     map[string]persistence.DoorConfig
	DoorOrder []string
	Rooms     map[string][]string
	Defaults  persistence.MappingDefaults
	Rules     persistence.MappingRules
}

// MappingOption configures the generated mapping fixture.
type MappingOption func(*MappingFixture)

// NewMappingFixture returns a two-door mapping covering a gym and the lobby,
// with optional overrides applied on top.
func NewMappingFixture(opts ...MappingOption) MappingFixture {
	fixture := MappingFixture{
		Doors: map[string]persistence.DoorConfig{
			"lobby": {Label: "Lobby Doors", RemoteDoorIDs: []string{"unifi-lobby"}},
			"gym":   {Label: "Gym Doors", RemoteDoorIDs: []string{"unifi-gym"}},
		},
		DoorOrder: []string{"lobby", "gym"},
		Rooms: map[string][]string{
			"Gym":   {"gym", "lobby"},
			"Lobby": {"lobby"},
		},
		Defaults: persistence.MappingDefaults{LeadMinutes: 15, LagMinutes: 15},
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithMappingDoor adds or replaces a door. New keys are appended to the door
// order.
func WithMappingDoor(key, label string, remoteDoorIDs ...string) MappingOption {
	return func(f *MappingFixture) {
		if _, exists := f.Doors[key]; !exists {
			f.DoorOrder = append(f.DoorOrder, key)
		}
		f.Doors[key] = persistence.DoorConfig{Label: label, RemoteDoorIDs: remoteDoorIDs}
	}
}

// WithMappingRoom adds or replaces a room's door keys.
func WithMappingRoom(name string, doorKeys ...string) MappingOption {
	return func(f *MappingFixture) {
		f.Rooms[name] = doorKeys
	}
}

// WithMappingDefaults sets the default lead and lag minutes.
func WithMappingDefaults(leadMinutes, lagMinutes int) MappingOption {
	return func(f *MappingFixture) {
		f.Defaults = persistence.MappingDefaults{LeadMinutes: leadMinutes, LagMinutes: lagMinutes}
	}
}

// WithMappingNameRule appends an event-name exclusion rule.
func WithMappingNameRule(substr string, doorKeys ...string) MappingOption {
	return func(f *MappingFixture) {
		f.Rules.ExcludeDoorKeysByEventName = append(f.Rules.ExcludeDoorKeysByEventName, persistence.NameRule{
			Substr:   substr,
			DoorKeys: doorKeys,
		})
	}
}

// WithMappingRoomExclusion appends a room-substring exclusion rule.
func WithMappingRoomExclusion(substr string) MappingOption {
	return func(f *MappingFixture) {
		f.Rules.ExcludeEventsByRoomContains = append(f.Rules.ExcludeEventsByRoomContains, substr)
	}
}

// Persistence converts the fixture into the persisted document form.
func (f MappingFixture) Persistence() persistence.RoomDoorMapping {
	doors := make(map[string]persistence.DoorConfig, len(f.Doors))
	for key, door := range f.Doors {
		doors[key] = persistence.DoorConfig{Label: door.Label, RemoteDoorIDs: copyStrings(door.RemoteDoorIDs)}
	}
	rooms := make(map[string][]string, len(f.Rooms))
	for name, keys := range f.Rooms {
		rooms[name] = copyStrings(keys)
	}
	return persistence.RoomDoorMapping{
		Doors:     doors,
		DoorOrder: copyStrings(f.DoorOrder),
		Rooms:     rooms,
		Defaults:  f.Defaults,
		Rules:     f.Rules,
	}
}

// ------------------------- Office-hours fixtures -------------------------

// OfficeHoursFixture assembles a weekly office-hours document.
type OfficeHoursFixture struct {
	Enabled  bool
	Schedule map[string]persistence.OfficeHoursDay
}

// OfficeHoursOption configures the generated office-hours fixture.
type OfficeHoursOption func(*OfficeHoursFixture)

// NewOfficeHoursFixture returns an enabled schedule opening the lobby on
// weekday mornings, with optional overrides applied on top.
func NewOfficeHoursFixture(opts ...OfficeHoursOption) OfficeHoursFixture {
	fixture := OfficeHoursFixture{
		Enabled: true,
		Schedule: map[string]persistence.OfficeHoursDay{
			"monday": {Ranges: "09:00-17:00", Doors: []string{"lobby"}},
		},
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithOfficeHoursEnabled sets the enabled flag.
func WithOfficeHoursEnabled(enabled bool) OfficeHoursOption {
	return func(f *OfficeHoursFixture) {
		f.Enabled = enabled
	}
}

// WithOfficeHoursDay adds or replaces one weekday's open ranges and doors.
func WithOfficeHoursDay(day, ranges string, doors ...string) OfficeHoursOption {
	return func(f *OfficeHoursFixture) {
		f.Schedule[day] = persistence.OfficeHoursDay{Ranges: ranges, Doors: doors}
	}
}

// Persistence converts the fixture into the persisted document form.
func (f OfficeHoursFixture) Persistence() persistence.OfficeHours {
	scheduleDays := make(map[string]persistence.OfficeHoursDay, len(f.Schedule))
	for day, entry := range f.Schedule {
		scheduleDays[day] = persistence.OfficeHoursDay{Ranges: entry.Ranges, Doors: copyStrings(entry.Doors)}
	}
	return persistence.OfficeHours{Enabled: f.Enabled, Schedule: scheduleDays}
}

// -------------------------- Safe-hours fixtures --------------------------

// SafeHoursFixture assembles the per-weekday safe start windows.
type SafeHoursFixture struct {
	Days map[string]persistence.SafeHoursDay
}

// SafeHoursOption configures the generated safe-hours fixture.
type SafeHoursOption func(*SafeHoursFixture)

// NewSafeHoursFixture returns a full week of 06:00 to 22:00 windows, with
// optional overrides applied on top.
func NewSafeHoursFixture(opts ...SafeHoursOption) SafeHoursFixture {
	days := make(map[string]persistence.SafeHoursDay, 7)
	for _, day := range []string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"} {
		days[day] = persistence.SafeHoursDay{StartLocal: "06:00", EndLocal: "22:00"}
	}
	fixture := SafeHoursFixture{Days: days}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithSafeHoursDay replaces one weekday's window.
func WithSafeHoursDay(day, startLocal, endLocal string) SafeHoursOption {
	return func(f *SafeHoursFixture) {
		f.Days[day] = persistence.SafeHoursDay{StartLocal: startLocal, EndLocal: endLocal}
	}
}

// WithoutSafeHoursDay removes one weekday, leaving it unguarded.
func WithoutSafeHoursDay(day string) SafeHoursOption {
	return func(f *SafeHoursFixture) {
		delete(f.Days, day)
	}
}

// Persistence converts the fixture into the persisted document form.
func (f SafeHoursFixture) Persistence() persistence.SafeHours {
	days := make(map[string]persistence.SafeHoursDay, len(f.Days))
	for day, window := range f.Days {
		days[day] = window
	}
	return persistence.SafeHours{Days: days}
}

// ---------------------- Pending-approval fixtures ------------------------

// PendingApprovalFixture represents an event instance held for operator
// review.
type PendingApprovalFixture struct {
	ID        string
	Name      string
	StartAt   time.Time
	EndAt     time.Time
	FlaggedAt time.Time
	Reason    string
}

// PendingApprovalOption configures the generated pending-approval fixture.
type PendingApprovalOption func(*PendingApprovalFixture)

// NewPendingApprovalFixture returns a deterministic held event with optional
// overrides. The reason matches the gate's phrasing for the fixture's start
// time.
func NewPendingApprovalFixture(opts ...PendingApprovalOption) PendingApprovalFixture {
	idx := atomic.AddUint64(&pendingCounter, 1)
	start := referenceTime.Add(time.Duration(idx) * time.Hour)
	fixture := PendingApprovalFixture{
		ID:        fmt.Sprintf("held-%03d", idx),
		Name:      fmt.Sprintf("Held Event %03d", idx),
		StartAt:   start,
		EndAt:     start.Add(time.Hour),
		FlaggedAt: referenceTime,
		Reason:    fmt.Sprintf("starts %s local; outside safe window 06:00–22:00", start.UTC().Format("15:04")),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithPendingID overrides the held event's instance ID.
func WithPendingID(id string) PendingApprovalOption {
	return func(f *PendingApprovalFixture) {
		f.ID = id
	}
}

// WithPendingName overrides the held event's name.
func WithPendingName(name string) PendingApprovalOption {
	return func(f *PendingApprovalFixture) {
		f.Name = name
	}
}

// WithPendingStartEnd sets the held event's window.
func WithPendingStartEnd(start, end time.Time) PendingApprovalOption {
	return func(f *PendingApprovalFixture) {
		f.StartAt = start
		f.EndAt = end
	}
}

// WithPendingFlaggedAt sets when the gate held the event.
func WithPendingFlaggedAt(t time.Time) PendingApprovalOption {
	return func(f *PendingApprovalFixture) {
		f.FlaggedAt = t
	}
}

// WithPendingReason overrides the hold reason.
func WithPendingReason(reason string) PendingApprovalOption {
	return func(f *PendingApprovalFixture) {
		f.Reason = reason
	}
}

// Persistence converts the fixture into the persisted record form.
func (f PendingApprovalFixture) Persistence() persistence.PendingApproval {
	return persistence.PendingApproval{
		ID:        f.ID,
		Name:      f.Name,
		StartAt:   f.StartAt,
		EndAt:     f.EndAt,
		FlaggedAt: f.FlaggedAt,
		Reason:    f.Reason,
	}
}

// ----------------------- Cancelled-event fixtures ------------------------

// CancelledEventFixture represents one calendar instance excluded from
// syncing.
type CancelledEventFixture struct {
	ID          string
	Name        string
	StartAt     time.Time
	EndAt       time.Time
	CancelledAt time.Time
}

// CancelledEventOption configures the generated cancellation fixture.
type CancelledEventOption func(*CancelledEventFixture)

// NewCancelledEventFixture returns a deterministic cancellation with optional
// overrides.
func NewCancelledEventFixture(opts ...CancelledEventOption) CancelledEventFixture {
	idx := atomic.AddUint64(&cancelledCounter, 1)
	start := referenceTime.Add(time.Duration(idx) * time.Hour)
	fixture := CancelledEventFixture{
		ID:          fmt.Sprintf("cancelled-%03d", idx),
		Name:        fmt.Sprintf("Cancelled Event %03d", idx),
		StartAt:     start,
		EndAt:       start.Add(time.Hour),
		CancelledAt: referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithCancelledID overrides the cancelled instance ID.
func WithCancelledID(id string) CancelledEventOption {
	return func(f *CancelledEventFixture) {
		f.ID = id
	}
}

// WithCancelledName overrides the cancelled event's name.
func WithCancelledName(name string) CancelledEventOption {
	return func(f *CancelledEventFixture) {
		f.Name = name
	}
}

// WithCancelledStartEnd sets the cancelled event's window.
func WithCancelledStartEnd(start, end time.Time) CancelledEventOption {
	return func(f *CancelledEventFixture) {
		f.StartAt = start
		f.EndAt = end
	}
}

// WithCancelledAt sets the cancellation timestamp.
func WithCancelledAt(t time.Time) CancelledEventOption {
	return func(f *CancelledEventFixture) {
		f.CancelledAt = t
	}
}

// WithoutCancelledAt clears the cancellation timestamp so the service stamps
// its own.
func WithoutCancelledAt() CancelledEventOption {
	return func(f *CancelledEventFixture) {
		f.CancelledAt = time.Time{}
	}
}

// Persistence converts the fixture into the persisted record form.
func (f CancelledEventFixture) Persistence() persistence.CancelledEvent {
	return persistence.CancelledEvent{
		ID:          f.ID,
		Name:        f.Name,
		StartAt:     f.StartAt,
		EndAt:       f.EndAt,
		CancelledAt: f.CancelledAt,
	}
}

// ------------------------ Memory-entry fixtures --------------------------

// MemoryEntryFixture represents one remembered event name.
type MemoryEntryFixture struct {
	Name       string
	Building   string
	Rooms      []string
	LastSeenAt *time.Time
	LastEndAt  *time.Time
	NextAt     *time.Time
	NextEndAt  *time.Time
	UpdatedAt  time.Time
}

// MemoryEntryOption configures the generated memory fixture.
type MemoryEntryOption func(*MemoryEntryFixture)

// NewMemoryEntryFixture returns a deterministic memory entry whose last
// occurrence ended a day before the reference time, with optional overrides.
func NewMemoryEntryFixture(opts ...MemoryEntryOption) MemoryEntryFixture {
	idx := atomic.AddUint64(&memoryCounter, 1)
	lastSeen := referenceTime.Add(-24*time.Hour + time.Duration(idx)*time.Minute)
	lastEnd := lastSeen.Add(time.Hour)
	fixture := MemoryEntryFixture{
		Name:       fmt.Sprintf("Remembered Event %03d", idx),
		Building:   "Main Campus",
		Rooms:      []string{"Gym"},
		LastSeenAt: &lastSeen,
		LastEndAt:  &lastEnd,
		UpdatedAt:  referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithMemoryName overrides the remembered event name.
func WithMemoryName(name string) MemoryEntryOption {
	return func(f *MemoryEntryFixture) {
		f.Name = name
	}
}

// WithMemoryBuilding overrides the building.
func WithMemoryBuilding(building string) MemoryEntryOption {
	return func(f *MemoryEntryFixture) {
		f.Building = building
	}
}

// WithMemoryRooms overrides the room list.
func WithMemoryRooms(rooms ...string) MemoryEntryOption {
	return func(f *MemoryEntryFixture) {
		f.Rooms = rooms
	}
}

// WithMemoryLastSeen sets the most recent past occurrence.
func WithMemoryLastSeen(start, end time.Time) MemoryEntryOption {
	return func(f *MemoryEntryFixture) {
		f.LastSeenAt = &start
		f.LastEndAt = &end
	}
}

// WithMemoryNext sets the upcoming occurrence.
func WithMemoryNext(start, end time.Time) MemoryEntryOption {
	return func(f *MemoryEntryFixture) {
		f.NextAt = &start
		f.NextEndAt = &end
	}
}

// WithoutMemoryNext clears the upcoming occurrence.
func WithoutMemoryNext() MemoryEntryOption {
	return func(f *MemoryEntryFixture) {
		f.NextAt = nil
		f.NextEndAt = nil
	}
}

// WithMemoryUpdatedAt sets the entry's update timestamp.
func WithMemoryUpdatedAt(t time.Time) MemoryEntryOption {
	return func(f *MemoryEntryFixture) {
		f.UpdatedAt = t
	}
}

// Persistence converts the fixture into the persisted record form.
func (f MemoryEntryFixture) Persistence() persistence.MemoryEntry {
	return persistence.MemoryEntry{
		Name:       f.Name,
		Building:   f.Building,
		Rooms:      copyStrings(f.Rooms),
		LastSeenAt: copyTimePtr(f.LastSeenAt),
		LastEndAt:  copyTimePtr(f.LastEndAt),
		NextAt:     copyTimePtr(f.NextAt),
		NextEndAt:  copyTimePtr(f.NextEndAt),
		UpdatedAt:  f.UpdatedAt,
	}
}

func copyStrings(src []string) []string {
	if src == nil {
		return nil
	}
	dst := make([]string, len(src))
	copy(dst, src)
	return dst
}

func copyTimePtr(src *time.Time) *time.Time {
	if src == nil {
		return nil
	}
	value := *src
	return &value
}
