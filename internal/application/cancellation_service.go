package application

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/example/doorsync/internal/persistence"
)

// cancellationGrace keeps a cancelled entry around after its end time so a
// late-running instance cannot slip back in the moment it ends.
const cancellationGrace = 24 * time.Hour

// CancellationService manages the list of cancelled event instances.
type CancellationService struct {
	store  persistence.CancellationStore
	now    func() time.Time
	logger *slog.Logger
}

// NewCancellationService constructs a cancellation service.
func NewCancellationService(store persistence.CancellationStore, now func() time.Time) *CancellationService {
	return NewCancellationServiceWithLogger(store, now, nil)
}

// NewCancellationServiceWithLogger constructs a cancellation service with a specified logger.
func NewCancellationServiceWithLogger(store persistence.CancellationStore, now func() time.Time, logger *slog.Logger) *CancellationService {
	if now == nil {
		now = time.Now
	}
	return &CancellationService{store: store, now: now, logger: defaultLogger(logger)}
}

func (s *CancellationService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "CancellationService", operation, attrs...)
}

// List returns the cancelled entries sorted by start time.
func (s *CancellationService) List(ctx context.Context) (entries []persistence.CancelledEvent, err error) {
	if s == nil {
		err = fmt.Errorf("CancellationService is nil")
		return
	}

	stored, err := s.store.LoadCancellations(ctx)
	if err != nil {
		err = fmt.Errorf("%w: cancellations: %v", ErrConfigInvalid, err)
		s.loggerWith(ctx, "List").ErrorContext(ctx, "failed to load cancellations", "error", err, "error_kind", ErrorKind(err))
		return
	}

	entries = append(entries, stored.Cancelled...)
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].StartAt.Equal(entries[j].StartAt) {
			return entries[i].ID < entries[j].ID
		}
		return entries[i].StartAt.Before(entries[j].StartAt)
	})
	return
}

// Cancel records an event instance as cancelled. Cancelling an already
// cancelled instance replaces the stored entry.
func (s *CancellationService) Cancel(ctx context.Context, entry persistence.CancelledEvent) (err error) {
	if s == nil {
		return fmt.Errorf("CancellationService is nil")
	}

	logger := s.loggerWith(ctx, "Cancel", "event_id", entry.ID, "event_name", entry.Name)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to cancel event", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "event cancelled")
	}()

	vErr := &ValidationError{}
	if strings.TrimSpace(entry.ID) == "" {
		vErr.add("id", "id is required")
	}
	if strings.TrimSpace(entry.Name) == "" {
		vErr.add("name", "name is required")
	}
	if !entry.StartAt.IsZero() && !entry.EndAt.IsZero() && !entry.StartAt.Before(entry.EndAt) {
		vErr.add("endAt", "must be after startAt")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	stored, err := s.store.LoadCancellations(ctx)
	if err != nil {
		err = fmt.Errorf("%w: cancellations: %v", ErrConfigInvalid, err)
		return
	}

	if entry.CancelledAt.IsZero() {
		entry.CancelledAt = s.now()
	}

	replaced := false
	for i, existing := range stored.Cancelled {
		if existing.ID == entry.ID {
			stored.Cancelled[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		stored.Cancelled = append(stored.Cancelled, entry)
	}

	if err = s.store.SaveCancellations(ctx, stored); err != nil {
		err = fmt.Errorf("%w: cancellations: %v", ErrStateWriteFailed, err)
	}
	return
}

// Restore removes a cancellation so the instance participates in sync again.
func (s *CancellationService) Restore(ctx context.Context, id string) (err error) {
	if s == nil {
		return fmt.Errorf("CancellationService is nil")
	}

	logger := s.loggerWith(ctx, "Restore", "event_id", id)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to restore event", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "event restored")
	}()

	stored, err := s.store.LoadCancellations(ctx)
	if err != nil {
		err = fmt.Errorf("%w: cancellations: %v", ErrConfigInvalid, err)
		return
	}

	kept := stored.Cancelled[:0]
	found := false
	for _, existing := range stored.Cancelled {
		if existing.ID == id {
			found = true
			continue
		}
		kept = append(kept, existing)
	}
	if !found {
		err = ErrNotFound
		return
	}

	stored.Cancelled = kept
	if err = s.store.SaveCancellations(ctx, stored); err != nil {
		err = fmt.Errorf("%w: cancellations: %v", ErrStateWriteFailed, err)
	}
	return
}

// CancelledSet returns the cancelled instance ids for O(1) membership tests
// during a cycle, pruning entries whose grace period has passed. A failed
// prune write is logged and retried next cycle.
func (s *CancellationService) CancelledSet(ctx context.Context) (map[string]struct{}, error) {
	if s == nil {
		return nil, fmt.Errorf("CancellationService is nil")
	}

	logger := s.loggerWith(ctx, "CancelledSet")

	stored, err := s.store.LoadCancellations(ctx)
	if err != nil {
		err = fmt.Errorf("%w: cancellations: %v", ErrConfigInvalid, err)
		logger.ErrorContext(ctx, "failed to load cancellations", "error", err, "error_kind", ErrorKind(err))
		return nil, err
	}

	now := s.now()
	kept := make([]persistence.CancelledEvent, 0, len(stored.Cancelled))
	set := make(map[string]struct{}, len(stored.Cancelled))
	for _, entry := range stored.Cancelled {
		if !entry.EndAt.IsZero() && entry.EndAt.Add(cancellationGrace).Before(now) {
			continue
		}
		kept = append(kept, entry)
		set[entry.ID] = struct{}{}
	}

	if removed := len(stored.Cancelled) - len(kept); removed > 0 {
		stored.Cancelled = kept
		if saveErr := s.store.SaveCancellations(ctx, stored); saveErr != nil {
			logger.WarnContext(ctx, "failed to persist cancellation prune",
				"error", saveErr, "error_kind", "state_write_failed")
		} else {
			logger.InfoContext(ctx, "pruned expired cancellations", "removed", removed)
		}
	}

	return set, nil
}
