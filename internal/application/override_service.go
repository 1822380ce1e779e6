package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/example/doorsync/internal/interval"
	"github.com/example/doorsync/internal/persistence"
	"github.com/example/doorsync/internal/schedule"
)

// OverrideService manages per-event door overrides.
type OverrideService struct {
	store  persistence.OverrideStore
	doors  DoorCatalog
	logger *slog.Logger
}

// NewOverrideService constructs an override service.
func NewOverrideService(store persistence.OverrideStore, doors DoorCatalog) *OverrideService {
	return NewOverrideServiceWithLogger(store, doors, nil)
}

// NewOverrideServiceWithLogger constructs an override service with a specified logger.
func NewOverrideServiceWithLogger(store persistence.OverrideStore, doors DoorCatalog, logger *slog.Logger) *OverrideService {
	return &OverrideService{store: store, doors: doors, logger: defaultLogger(logger)}
}

func (s *OverrideService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "OverrideService", operation, attrs...)
}

// Get returns the raw override file for the dashboard.
func (s *OverrideService) Get(ctx context.Context) (overrides persistence.EventOverrides, err error) {
	if s == nil {
		err = fmt.Errorf("OverrideService is nil")
		return
	}

	overrides, err = s.store.LoadOverrides(ctx)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrConfigInvalid, err)
		s.loggerWith(ctx, "Get").ErrorContext(ctx, "failed to load overrides", "error", err, "error_kind", ErrorKind(err))
	}
	return
}

// Update validates and persists event overrides. Event names are folded to
// lowercase keys; explicit windows must carry parseable clock times; door
// keys must exist in the mapping. An empty window list is a deliberate
// suppression and passes validation.
func (s *OverrideService) Update(ctx context.Context, overrides persistence.EventOverrides) (err error) {
	if s == nil {
		return fmt.Errorf("OverrideService is nil")
	}

	logger := s.loggerWith(ctx, "Update", "events", len(overrides))
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update overrides", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "overrides updated")
	}()

	var doorKeys map[string]struct{}
	if s.doors != nil {
		doorKeys, err = s.doors.DoorKeySet(ctx)
		if err != nil {
			err = fmt.Errorf("%w: door catalog unavailable: %v", ErrConfigInvalid, err)
			return
		}
	}

	vErr := &ValidationError{}
	normalized := make(persistence.EventOverrides, len(overrides))
	for name, override := range overrides {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			vErr.add("overrides", "event name must not be empty")
			continue
		}
		if _, exists := normalized[key]; exists {
			vErr.add(key, "duplicate event name after lowercasing")
			continue
		}

		for doorKey, doorOverride := range override.DoorOverrides {
			field := key + "." + doorKey
			if doorKeys != nil {
				if _, ok := doorKeys[doorKey]; !ok {
					vErr.add(field, fmt.Sprintf("unknown door key %q", doorKey))
				}
			}
			for i, window := range doorOverride.Windows {
				if _, perr := interval.ParseClockTime(window.OpenTime); perr != nil {
					vErr.add(fmt.Sprintf("%s.windows[%d].openTime", field, i), fmt.Sprintf("invalid clock time %q", window.OpenTime))
				}
				if _, perr := interval.ParseClockTime(window.CloseTime); perr != nil {
					vErr.add(fmt.Sprintf("%s.windows[%d].closeTime", field, i), fmt.Sprintf("invalid clock time %q", window.CloseTime))
				}
			}
		}
		normalized[key] = override
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	if err = s.store.SaveOverrides(ctx, normalized); err != nil {
		err = fmt.Errorf("%w: overrides: %v", ErrStateWriteFailed, err)
	}
	return
}

// Snapshot loads the overrides and parses them into the domain form the
// builder consumes. A window that no longer parses is dropped with a warning;
// if every window of a configured door drops, the whole door override is
// discarded so a hand-edit cannot silently turn explicit windows into a
// suppression.
func (s *OverrideService) Snapshot(ctx context.Context) (overrides schedule.Overrides, err error) {
	if s == nil {
		err = fmt.Errorf("OverrideService is nil")
		return
	}

	logger := s.loggerWith(ctx, "Snapshot")

	raw, err := s.store.LoadOverrides(ctx)
	if err != nil {
		err = fmt.Errorf("%w: overrides: %v", ErrConfigInvalid, err)
		logger.ErrorContext(ctx, "failed to load overrides", "error", err, "error_kind", ErrorKind(err))
		return
	}

	overrides = make(schedule.Overrides, len(raw))
	for name, override := range raw {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			continue
		}

		doors := make(map[string]schedule.DoorOverride, len(override.DoorOverrides))
		for doorKey, doorOverride := range override.DoorOverrides {
			windows := make([]interval.LocalRange, 0, len(doorOverride.Windows))
			for _, window := range doorOverride.Windows {
				open, openErr := interval.ParseClockTime(window.OpenTime)
				closeTime, closeErr := interval.ParseClockTime(window.CloseTime)
				if openErr != nil || closeErr != nil {
					logger.WarnContext(ctx, "dropping unparseable override window",
						"event", key, "door_key", doorKey,
						"open", window.OpenTime, "close", window.CloseTime)
					continue
				}
				windows = append(windows, interval.LocalRange{Open: open, Close: closeTime})
			}
			if len(doorOverride.Windows) > 0 && len(windows) == 0 {
				continue
			}
			doors[doorKey] = schedule.DoorOverride{Windows: windows}
		}
		if len(doors) == 0 {
			continue
		}
		overrides[key] = schedule.EventOverride{Doors: doors}
	}
	return
}
