package persistence

import "context"

// Stores load and save the JSON state files. Load returns the file's zero
// defaults (not ErrNotFound) when the file does not exist yet, so a fresh
// state directory behaves like an empty but valid installation. Decode
// failures are reported as ErrMalformed.

// MappingStore persists the room/door mapping file.
type MappingStore interface {
	LoadMapping(ctx context.Context) (RoomDoorMapping, error)
	SaveMapping(ctx context.Context, mapping RoomDoorMapping) error
}

// OfficeHoursStore persists the weekly office-hours file.
type OfficeHoursStore interface {
	LoadOfficeHours(ctx context.Context) (OfficeHours, error)
	SaveOfficeHours(ctx context.Context, hours OfficeHours) error
}

// OverrideStore persists per-event door overrides.
type OverrideStore interface {
	LoadOverrides(ctx context.Context) (EventOverrides, error)
	SaveOverrides(ctx context.Context, overrides EventOverrides) error
}

// MemoryStore persists the event memory written by the sync loop.
type MemoryStore interface {
	LoadMemory(ctx context.Context) (EventMemory, error)
	SaveMemory(ctx context.Context, memory EventMemory) error
}

// CancellationStore persists the cancelled-events list.
type CancellationStore interface {
	LoadCancellations(ctx context.Context) (CancelledEvents, error)
	SaveCancellations(ctx context.Context, cancelled CancelledEvents) error
}

// SafeHoursStore persists the per-weekday safe start windows.
type SafeHoursStore interface {
	LoadSafeHours(ctx context.Context) (SafeHours, error)
	SaveSafeHours(ctx context.Context, hours SafeHours) error
}

// PendingStore persists events held for operator approval.
type PendingStore interface {
	LoadPending(ctx context.Context) (PendingApprovals, error)
	SavePending(ctx context.Context, pending PendingApprovals) error
}

// ApprovedNamesStore persists the approved event-name allow-list.
type ApprovedNamesStore interface {
	LoadApprovedNames(ctx context.Context) (ApprovedNames, error)
	SaveApprovedNames(ctx context.Context, names ApprovedNames) error
}

// SyncStateStore persists runtime switches such as the apply mode. Unlike
// the other stores, LoadSyncState reports ErrNotFound for an absent file so
// the caller can tell "never persisted" from "persisted off" and apply the
// configured startup default.
type SyncStateStore interface {
	LoadSyncState(ctx context.Context) (SyncState, error)
	SaveSyncState(ctx context.Context, state SyncState) error
}
