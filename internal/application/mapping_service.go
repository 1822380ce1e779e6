package application

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/example/doorsync/internal/persistence"
	"github.com/example/doorsync/internal/schedule"
)

// MappingService guards the room-door mapping: the same validator runs in
// front of every write and every load, and the last accepted snapshot is
// kept in memory so one broken hand-edit cannot stop the sync.
type MappingService struct {
	store  persistence.MappingStore
	logger *slog.Logger

	mu       sync.Mutex
	lastGood *persistence.RoomDoorMapping
}

// MappingSnapshot is the validated mapping a sync cycle runs against.
type MappingSnapshot struct {
	Mapping schedule.Mapping
	// UsedLastGood is set when the current file was rejected and the
	// previous accepted snapshot is in use. Problem carries the rejection.
	UsedLastGood bool
	Problem      error
}

// NewMappingService constructs a mapping service with the provided store.
func NewMappingService(store persistence.MappingStore) *MappingService {
	return NewMappingServiceWithLogger(store, nil)
}

// NewMappingServiceWithLogger constructs a mapping service with a specified logger.
func NewMappingServiceWithLogger(store persistence.MappingStore, logger *slog.Logger) *MappingService {
	return &MappingService{store: store, logger: defaultLogger(logger)}
}

func (s *MappingService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "MappingService", operation, attrs...)
}

// Get returns the raw mapping file for the dashboard.
func (s *MappingService) Get(ctx context.Context) (mapping persistence.RoomDoorMapping, err error) {
	if s == nil {
		err = fmt.Errorf("MappingService is nil")
		return
	}

	mapping, err = s.store.LoadMapping(ctx)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrConfigInvalid, err)
		s.loggerWith(ctx, "Get").ErrorContext(ctx, "failed to load mapping", "error", err, "error_kind", ErrorKind(err))
	}
	return
}

// Update validates and persists a new mapping, refreshing the last-good
// snapshot on success.
func (s *MappingService) Update(ctx context.Context, mapping persistence.RoomDoorMapping) (err error) {
	if s == nil {
		return fmt.Errorf("MappingService is nil")
	}

	logger := s.loggerWith(ctx, "Update",
		"doors", len(mapping.Doors),
		"rooms", len(mapping.Rooms),
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update mapping", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "mapping updated")
	}()

	vErr := validateRoomDoorMapping(mapping)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	if err = s.store.SaveMapping(ctx, mapping); err != nil {
		err = fmt.Errorf("%w: mapping: %v", ErrStateWriteFailed, err)
		return
	}

	s.mu.Lock()
	s.lastGood = &mapping
	s.mu.Unlock()
	return
}

// Snapshot loads and validates the mapping for a sync cycle. An invalid or
// unreadable file falls back to the last accepted snapshot; the returned
// error is non-nil only when no usable mapping exists at all.
func (s *MappingService) Snapshot(ctx context.Context) (snap MappingSnapshot, err error) {
	if s == nil {
		err = fmt.Errorf("MappingService is nil")
		return
	}

	logger := s.loggerWith(ctx, "Snapshot")

	raw, loadErr := s.store.LoadMapping(ctx)
	if loadErr == nil {
		if vErr := validateRoomDoorMapping(raw); vErr.HasErrors() {
			loadErr = fmt.Errorf("%w: %s", ErrConfigInvalid, describeFieldErrors(vErr))
		} else {
			s.mu.Lock()
			s.lastGood = &raw
			s.mu.Unlock()
			snap = MappingSnapshot{Mapping: toDomainMapping(raw)}
			return
		}
	} else {
		loadErr = fmt.Errorf("%w: %v", ErrConfigInvalid, loadErr)
	}

	s.mu.Lock()
	lastGood := s.lastGood
	s.mu.Unlock()

	if lastGood == nil {
		err = loadErr
		logger.ErrorContext(ctx, "mapping unusable and no last-good snapshot", "error", err, "error_kind", ErrorKind(err))
		return
	}

	logger.WarnContext(ctx, "mapping rejected, using last-good snapshot", "error", loadErr, "error_kind", ErrorKind(loadErr))
	snap = MappingSnapshot{Mapping: toDomainMapping(*lastGood), UsedLastGood: true, Problem: loadErr}
	return
}

// DoorKeySet returns the set of configured door keys, for validating the
// other operator files against the mapping.
func (s *MappingService) DoorKeySet(ctx context.Context) (map[string]struct{}, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	keys := make(map[string]struct{}, len(snap.Mapping.Doors))
	for _, door := range snap.Mapping.Doors {
		keys[door.Key] = struct{}{}
	}
	return keys, nil
}

func validateRoomDoorMapping(m persistence.RoomDoorMapping) *ValidationError {
	vErr := &ValidationError{}

	if m.Defaults.LeadMinutes <= 0 {
		vErr.add("defaults.leadMinutes", "must be positive")
	}
	if m.Defaults.LagMinutes <= 0 {
		vErr.add("defaults.lagMinutes", "must be positive")
	}

	for room, keys := range m.Rooms {
		if strings.TrimSpace(room) == "" {
			vErr.add("rooms", "room name must not be empty")
			continue
		}
		for _, key := range keys {
			if _, ok := m.Doors[key]; !ok {
				vErr.add("rooms."+room, fmt.Sprintf("unknown door key %q", key))
			}
		}
	}

	for i, rule := range m.Rules.ExcludeDoorKeysByEventName {
		field := fmt.Sprintf("rules.excludeDoorKeysByEventName[%d]", i)
		if strings.TrimSpace(rule.Substr) == "" {
			vErr.add(field, "substr is required")
		}
		for _, key := range rule.DoorKeys {
			if _, ok := m.Doors[key]; !ok {
				vErr.add(field, fmt.Sprintf("unknown door key %q", key))
			}
		}
	}

	return vErr
}

func toDomainMapping(m persistence.RoomDoorMapping) schedule.Mapping {
	mapping := schedule.Mapping{
		Doors:       make([]schedule.Door, 0, len(m.Doors)),
		Rooms:       make(map[string][]string, len(m.Rooms)),
		LeadMinutes: m.Defaults.LeadMinutes,
		LagMinutes:  m.Defaults.LagMinutes,
	}

	for _, key := range m.OrderedDoorKeys() {
		door := m.Doors[key]
		mapping.Doors = append(mapping.Doors, schedule.Door{
			Key:           key,
			Label:         door.Label,
			RemoteDoorIDs: append([]string(nil), door.RemoteDoorIDs...),
		})
	}
	for room, keys := range m.Rooms {
		mapping.Rooms[room] = append([]string(nil), keys...)
	}
	for _, rule := range m.Rules.ExcludeDoorKeysByEventName {
		mapping.ExcludeDoorKeysByEventName = append(mapping.ExcludeDoorKeysByEventName, schedule.NameExclusion{
			Substring: rule.Substr,
			DoorKeys:  append([]string(nil), rule.DoorKeys...),
		})
	}
	mapping.ExcludeEventsByRoomContains = append([]string(nil), m.Rules.ExcludeEventsByRoomContains...)

	return mapping
}

// describeFieldErrors flattens a ValidationError into one line for log and
// ring-buffer messages.
func describeFieldErrors(vErr *ValidationError) string {
	if vErr == nil || len(vErr.FieldErrors) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(vErr.FieldErrors))
	for field := range vErr.FieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, field+": "+vErr.FieldErrors[field])
	}
	return strings.Join(parts, "; ")
}
