package application

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/example/doorsync/internal/persistence"
	"github.com/example/doorsync/internal/schedule"
)

// memoryRetention is how long an event name with no upcoming instance stays
// in memory after it was last seen.
const memoryRetention = 60 * 24 * time.Hour

// MemoryService tracks when each event name was last seen and when it comes
// up next, so the dashboard can show history for events that have left the
// fetch window.
type MemoryService struct {
	store  persistence.MemoryStore
	logger *slog.Logger
}

// NewMemoryService constructs a memory service.
func NewMemoryService(store persistence.MemoryStore) *MemoryService {
	return NewMemoryServiceWithLogger(store, nil)
}

// NewMemoryServiceWithLogger constructs a memory service with a specified logger.
func NewMemoryServiceWithLogger(store persistence.MemoryStore, logger *slog.Logger) *MemoryService {
	return &MemoryService{store: store, logger: defaultLogger(logger)}
}

func (s *MemoryService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "MemoryService", operation, attrs...)
}

// Update folds one cycle's observed events into memory: expired next-up
// times roll into the last-seen fields, observed groups refresh their
// entries, and names unseen for the retention window with nothing upcoming
// are pruned. The result is persisted in one atomic write.
func (s *MemoryService) Update(ctx context.Context, events []schedule.Event, now time.Time) (err error) {
	if s == nil {
		return fmt.Errorf("MemoryService is nil")
	}

	logger := s.loggerWith(ctx, "Update", "observed", len(events))
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update event memory", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	memory, loadErr := s.store.LoadMemory(ctx)
	if loadErr != nil {
		// Memory is derived data: a corrupt file is rebuilt rather than
		// blocking the cycle.
		logger.WarnContext(ctx, "event memory unreadable, rebuilding", "error", loadErr)
		memory = persistence.EventMemory{}
	}

	rollover(memory, now)

	for key, group := range groupByName(events) {
		entry, ok := memory[key]
		if !ok {
			entry = persistence.MemoryEntry{}
		}

		latest := group[len(group)-1]
		entry.Name = latest.Name
		entry.Rooms = roomsAt(group, latest.StartAt)
		if latest.Building != "" {
			entry.Building = latest.Building
		}

		// Next-up is recomputed from this cycle's observations so an
		// instance deleted upstream does not linger.
		entry.NextAt = nil
		entry.NextEndAt = nil

		for _, event := range group {
			if event.StartAt.After(now) {
				if entry.NextAt == nil || event.StartAt.Before(*entry.NextAt) {
					entry.NextAt = timePtr(event.StartAt)
					entry.NextEndAt = timePtr(event.EndAt)
				}
				continue
			}
			if entry.LastSeenAt == nil || event.StartAt.After(*entry.LastSeenAt) {
				entry.LastSeenAt = timePtr(event.StartAt)
				entry.LastEndAt = timePtr(event.EndAt)
			}
		}

		entry.UpdatedAt = now
		memory[key] = entry
	}

	for key, entry := range memory {
		if entry.NextAt != nil {
			continue
		}
		reference := entry.UpdatedAt
		if entry.LastSeenAt != nil {
			reference = *entry.LastSeenAt
		}
		if now.Sub(reference) > memoryRetention {
			delete(memory, key)
		}
	}

	if err = s.store.SaveMemory(ctx, memory); err != nil {
		err = fmt.Errorf("%w: event memory: %v", ErrStateWriteFailed, err)
		return
	}

	logger.InfoContext(ctx, "event memory updated", "entries", len(memory))
	return
}

// List returns memory entries in display order: upcoming events soonest
// first, then past events most recently seen first.
func (s *MemoryService) List(ctx context.Context, now time.Time) (entries []persistence.MemoryEntry, err error) {
	if s == nil {
		err = fmt.Errorf("MemoryService is nil")
		return
	}

	memory, err := s.store.LoadMemory(ctx)
	if err != nil {
		err = fmt.Errorf("%w: event memory: %v", ErrConfigInvalid, err)
		s.loggerWith(ctx, "List").ErrorContext(ctx, "failed to load event memory", "error", err, "error_kind", ErrorKind(err))
		return
	}

	entries = make([]persistence.MemoryEntry, 0, len(memory))
	for _, entry := range memory {
		entries = append(entries, entry)
	}

	upcoming := func(e persistence.MemoryEntry) bool {
		return e.NextAt != nil && e.NextAt.After(now)
	}
	lastSeen := func(e persistence.MemoryEntry) time.Time {
		if e.LastSeenAt != nil {
			return *e.LastSeenAt
		}
		if e.NextAt != nil {
			return *e.NextAt
		}
		return e.UpdatedAt
	}

	sort.Slice(entries, func(i, j int) bool {
		ui, uj := upcoming(entries[i]), upcoming(entries[j])
		if ui != uj {
			return ui
		}
		if ui {
			if !entries[i].NextAt.Equal(*entries[j].NextAt) {
				return entries[i].NextAt.Before(*entries[j].NextAt)
			}
			return entries[i].Name < entries[j].Name
		}
		ti, tj := lastSeen(entries[i]), lastSeen(entries[j])
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return entries[i].Name < entries[j].Name
	})
	return
}

// rollover moves next-up times that have passed into the last-seen fields.
// Groups observed this cycle recompute these fields afterwards anyway; this
// covers names that dropped out of the fetch window.
func rollover(memory persistence.EventMemory, now time.Time) {
	for key, entry := range memory {
		if entry.NextAt == nil || entry.NextAt.After(now) {
			continue
		}
		if entry.LastSeenAt == nil || entry.NextAt.After(*entry.LastSeenAt) {
			entry.LastSeenAt = entry.NextAt
			entry.LastEndAt = entry.NextEndAt
		}
		entry.NextAt = nil
		entry.NextEndAt = nil
		memory[key] = entry
	}
}

// groupByName buckets events under their lowercase name, each bucket sorted
// by start time.
func groupByName(events []schedule.Event) map[string][]schedule.Event {
	groups := make(map[string][]schedule.Event)
	for _, event := range events {
		key := strings.ToLower(strings.TrimSpace(event.Name))
		if key == "" {
			continue
		}
		groups[key] = append(groups[key], event)
	}
	for key := range groups {
		group := groups[key]
		sort.Slice(group, func(i, j int) bool {
			if group[i].StartAt.Equal(group[j].StartAt) {
				return group[i].Room < group[j].Room
			}
			return group[i].StartAt.Before(group[j].StartAt)
		})
		groups[key] = group
	}
	return groups
}

// roomsAt collects the distinct rooms of the instances sharing the most
// recent start, so a multi-room booking reports all of its rooms.
func roomsAt(group []schedule.Event, startAt time.Time) []string {
	seen := make(map[string]struct{})
	rooms := make([]string, 0, 1)
	for _, event := range group {
		if !event.StartAt.Equal(startAt) || event.Room == "" {
			continue
		}
		if _, ok := seen[event.Room]; ok {
			continue
		}
		seen[event.Room] = struct{}{}
		rooms = append(rooms, event.Room)
	}
	sort.Strings(rooms)
	return rooms
}

func timePtr(t time.Time) *time.Time {
	return &t
}
