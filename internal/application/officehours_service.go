package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/doorsync/internal/interval"
	"github.com/example/doorsync/internal/persistence"
	"github.com/example/doorsync/internal/schedule"
)

// DoorCatalog lists the configured door keys so the other operator files can
// be validated against the mapping.
type DoorCatalog interface {
	DoorKeySet(ctx context.Context) (map[string]struct{}, error)
}

// OfficeHoursService manages the recurring weekly unlock configuration.
type OfficeHoursService struct {
	store  persistence.OfficeHoursStore
	doors  DoorCatalog
	logger *slog.Logger
}

// NewOfficeHoursService constructs an office-hours service.
func NewOfficeHoursService(store persistence.OfficeHoursStore, doors DoorCatalog) *OfficeHoursService {
	return NewOfficeHoursServiceWithLogger(store, doors, nil)
}

// NewOfficeHoursServiceWithLogger constructs an office-hours service with a specified logger.
func NewOfficeHoursServiceWithLogger(store persistence.OfficeHoursStore, doors DoorCatalog, logger *slog.Logger) *OfficeHoursService {
	return &OfficeHoursService{store: store, doors: doors, logger: defaultLogger(logger)}
}

func (s *OfficeHoursService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "OfficeHoursService", operation, attrs...)
}

// Get returns the raw office-hours file for the dashboard.
func (s *OfficeHoursService) Get(ctx context.Context) (hours persistence.OfficeHours, err error) {
	if s == nil {
		err = fmt.Errorf("OfficeHoursService is nil")
		return
	}

	hours, err = s.store.LoadOfficeHours(ctx)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrConfigInvalid, err)
		s.loggerWith(ctx, "Get").ErrorContext(ctx, "failed to load office hours", "error", err, "error_kind", ErrorKind(err))
	}
	return
}

// Update validates and persists the office-hours configuration. Day keys
// must be weekday names and every door key must exist in the mapping. Range
// strings are not rejected here: unparseable tokens are dropped at expansion
// time per the file contract.
func (s *OfficeHoursService) Update(ctx context.Context, hours persistence.OfficeHours) (err error) {
	if s == nil {
		return fmt.Errorf("OfficeHoursService is nil")
	}

	logger := s.loggerWith(ctx, "Update",
		"enabled", hours.Enabled,
		"days", len(hours.Schedule),
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update office hours", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "office hours updated")
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
	for day, cfg := range hours.Schedule {
		if !persistence.IsWeekdayName(day) {
			vErr.add("schedule."+day, "not a weekday name")
			continue
		}
		for _, key := range cfg.Doors {
			if doorKeys == nil {
				continue
			}
			if _, ok := doorKeys[key]; !ok {
				vErr.add("schedule."+day+".doors", fmt.Sprintf("unknown door key %q", key))
			}
		}
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	if err = s.store.SaveOfficeHours(ctx, hours); err != nil {
		err = fmt.Errorf("%w: office hours: %v", ErrStateWriteFailed, err)
	}
	return
}

// Snapshot loads the office hours and parses the range strings into the
// domain form the projector consumes. Unparseable tokens drop silently.
func (s *OfficeHoursService) Snapshot(ctx context.Context) (hours schedule.OfficeHours, err error) {
	if s == nil {
		err = fmt.Errorf("OfficeHoursService is nil")
		return
	}

	raw, err := s.store.LoadOfficeHours(ctx)
	if err != nil {
		err = fmt.Errorf("%w: office hours: %v", ErrConfigInvalid, err)
		s.loggerWith(ctx, "Snapshot").ErrorContext(ctx, "failed to load office hours", "error", err, "error_kind", ErrorKind(err))
		return
	}

	hours = schedule.OfficeHours{Enabled: raw.Enabled, Days: make(map[time.Weekday]schedule.OfficeHoursDay)}
	for dayName, cfg := range raw.Schedule {
		weekday, ok := persistence.ParseWeekdayName(dayName)
		if !ok {
			continue
		}
		ranges := interval.ParseRanges(cfg.Ranges)
		doors := make([]string, 0, len(cfg.Doors))
		for _, key := range cfg.Doors {
			if trimmed := strings.TrimSpace(key); trimmed != "" {
				doors = append(doors, trimmed)
			}
		}
		if len(ranges) == 0 || len(doors) == 0 {
			continue
		}
		hours.Days[weekday] = schedule.OfficeHoursDay{Ranges: ranges, DoorKeys: doors}
	}
	return
}
