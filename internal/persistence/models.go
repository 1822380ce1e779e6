package persistence

import "time"

// OfficeHoursDay holds the recurring open ranges and the doors they apply to
// for a single weekday.
type OfficeHoursDay struct {
	Ranges string   `json:"ranges"`
	Doors  []string `json:"doors"`
}

// OfficeHours is the operator-maintained weekly building schedule. Schedule
// keys are lowercase weekday names ("sunday" .. "saturday").
type OfficeHours struct {
	Enabled  bool                      `json:"enabled"`
	Schedule map[string]OfficeHoursDay `json:"schedule"`
}

// OverrideWindow is a single local-clock window inside an event override.
// Times are "HH:MM"; a close at or before the open rolls to the next day.
type OverrideWindow struct {
	OpenTime  string `json:"openTime"`
	CloseTime string `json:"closeTime"`
}

// DoorOverride carries the explicit windows for one door of an overridden
// event. An empty Windows list suppresses the door for that event.
type DoorOverride struct {
	Windows []OverrideWindow `json:"windows"`
}

// EventOverride groups the per-door overrides recorded for one event name.
type EventOverride struct {
	DoorOverrides map[string]DoorOverride `json:"doorOverrides"`
}

// EventOverrides maps lowercase event names to their overrides.
type EventOverrides map[string]EventOverride

// MemoryEntry is one remembered event, keyed in EventMemory by the lowercase
// event name. Upcoming occurrences live in NextAt/NextEndAt until they pass,
// then roll into LastSeenAt/LastEndAt.
type MemoryEntry struct {
	Name       string     `json:"name"`
	Building   string     `json:"building,omitempty"`
	Rooms      []string   `json:"rooms,omitempty"`
	LastSeenAt *time.Time `json:"lastSeenAt,omitempty"`
	LastEndAt  *time.Time `json:"lastEndAt,omitempty"`
	NextAt     *time.Time `json:"nextAt,omitempty"`
	NextEndAt  *time.Time `json:"nextEndAt,omitempty"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// EventMemory maps lowercase event names to memory entries.
type EventMemory map[string]MemoryEntry

// CancelledEvent marks one calendar instance excluded from syncing.
type CancelledEvent struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	StartAt     time.Time `json:"startAt"`
	EndAt       time.Time `json:"endAt"`
	CancelledAt time.Time `json:"cancelledAt"`
}

// CancelledEvents is the persisted cancellation list.
type CancelledEvents struct {
	Cancelled []CancelledEvent `json:"cancelled"`
}

// PendingApproval is an event instance held for operator review.
type PendingApproval struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	StartAt   time.Time `json:"startAt"`
	EndAt     time.Time `json:"endAt"`
	FlaggedAt time.Time `json:"flaggedAt"`
	Reason    string    `json:"reason"`
}

// PendingApprovals maps event instance ids to held events.
type PendingApprovals map[string]PendingApproval

// ApprovedNames is the allow-list of event names that bypass the safe-hours
// gate. Matching is case-insensitive; names keep the form they were stored in.
type ApprovedNames struct {
	Names []string `json:"names"`
}

// SyncState persists runtime switches across restarts.
type SyncState struct {
	ApplyToUnifi bool `json:"applyToUnifi"`
}
