package application

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/example/doorsync/internal/interval"
	"github.com/example/doorsync/internal/persistence"
	"github.com/example/doorsync/internal/schedule"
)

// Safe window applied to weekdays with no configured entry.
var (
	defaultSafeStart = interval.ClockTime{Hour: 5}
	defaultSafeEnd   = interval.ClockTime{Hour: 23}
)

// GateResult splits one cycle's events into those cleared for unlocking and
// the pending queue left after the gate ran.
type GateResult struct {
	Passed []schedule.Event
	Held   []persistence.PendingApproval
	// Warnings carries recoverable state problems (unreadable files,
	// failed queue writes) for the cycle's error ring.
	Warnings []string
}

// ApprovalService holds unfamiliar events that start outside the safe hours
// until an operator approves them. Approval is by event name and permanent.
type ApprovalService struct {
	pending   persistence.PendingStore
	approved  persistence.ApprovedNamesStore
	safeHours persistence.SafeHoursStore
	notifier  Notifier
	now       func() time.Time
	zone      *time.Location
	logger    *slog.Logger
}

// NewApprovalService constructs an approval service.
func NewApprovalService(pending persistence.PendingStore, approved persistence.ApprovedNamesStore, safeHours persistence.SafeHoursStore, notifier Notifier, now func() time.Time, zone *time.Location) *ApprovalService {
	return NewApprovalServiceWithLogger(pending, approved, safeHours, notifier, now, zone, nil)
}

// NewApprovalServiceWithLogger constructs an approval service with a specified logger.
func NewApprovalServiceWithLogger(pending persistence.PendingStore, approved persistence.ApprovedNamesStore, safeHours persistence.SafeHoursStore, notifier Notifier, now func() time.Time, zone *time.Location, logger *slog.Logger) *ApprovalService {
	if now == nil {
		now = time.Now
	}
	if zone == nil {
		zone = time.UTC
	}
	return &ApprovalService{
		pending:   pending,
		approved:  approved,
		safeHours: safeHours,
		notifier:  notifier,
		now:       now,
		zone:      zone,
		logger:    defaultLogger(logger),
	}
}

func (s *ApprovalService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "ApprovalService", operation, attrs...)
}

// Gate evaluates one cycle's events. Approved names pass; events starting
// inside the safe window for their local weekday pass; everything else is
// held in the pending queue. Held events that newly appear are reported to
// the notifier. State files that cannot be read degrade to their zero form
// (everything held rather than unvetted unlocks) and are reported as
// warnings.
func (s *ApprovalService) Gate(ctx context.Context, events []schedule.Event) (GateResult, error) {
	if s == nil {
		return GateResult{}, fmt.Errorf("ApprovalService is nil")
	}

	logger := s.loggerWith(ctx, "Gate", "events", len(events))
	var result GateResult

	approvedSet, warning := s.loadApprovedSet(ctx)
	if warning != "" {
		result.Warnings = append(result.Warnings, warning)
	}
	safe, warning := s.loadSafeHours(ctx)
	if warning != "" {
		result.Warnings = append(result.Warnings, warning)
	}
	pending, warning := s.loadPending(ctx)
	if warning != "" {
		result.Warnings = append(result.Warnings, warning)
	}

	now := s.now()
	changed := false
	var newlyHeld []persistence.PendingApproval

	for _, event := range events {
		if _, ok := approvedSet[strings.ToLower(strings.TrimSpace(event.Name))]; ok {
			result.Passed = append(result.Passed, event)
			if _, stale := pending[event.ID]; stale {
				delete(pending, event.ID)
				changed = true
			}
			continue
		}

		local := event.StartAt.In(s.zone)
		start, end := safeWindowFor(local.Weekday(), safe)
		startMinute := local.Hour()*60 + local.Minute()
		if startMinute >= start.Minutes() && startMinute <= end.Minutes() {
			result.Passed = append(result.Passed, event)
			if _, stale := pending[event.ID]; stale {
				delete(pending, event.ID)
				changed = true
			}
			continue
		}

		localClock := interval.ClockTime{Hour: local.Hour(), Minute: local.Minute()}
		reason := fmt.Sprintf("starts %s local; outside safe window %s–%s", localClock, start, end)

		entry, exists := pending[event.ID]
		if !exists {
			entry = persistence.PendingApproval{ID: event.ID, FlaggedAt: now}
			newlyHeld = append(newlyHeld, entry)
			changed = true
		}
		if entry.Name != event.Name || !entry.StartAt.Equal(event.StartAt) || !entry.EndAt.Equal(event.EndAt) || entry.Reason != reason {
			changed = true
		}
		entry.Name = event.Name
		entry.StartAt = event.StartAt
		entry.EndAt = event.EndAt
		entry.Reason = reason
		pending[event.ID] = entry
		if len(newlyHeld) > 0 && newlyHeld[len(newlyHeld)-1].ID == event.ID {
			newlyHeld[len(newlyHeld)-1] = entry
		}
	}

	for id, entry := range pending {
		if !entry.EndAt.IsZero() && entry.EndAt.Before(now) {
			delete(pending, id)
			changed = true
		}
	}

	if changed {
		if err := s.pending.SavePending(ctx, pending); err != nil {
			warning := fmt.Sprintf("%v: pending approvals: %v", ErrStateWriteFailed, err)
			result.Warnings = append(result.Warnings, warning)
			logger.ErrorContext(ctx, "failed to persist pending approvals", "error", err, "error_kind", "state_write_failed")
		}
	}

	s.notifyHeld(ctx, newlyHeld)

	result.Held = sortedPending(pending)
	logger.InfoContext(ctx, "gate evaluated",
		"passed", len(result.Passed),
		"held", len(events)-len(result.Passed),
		"pending", len(result.Held),
	)
	return result, nil
}

// EvaluateEvents filters events the way Gate would without mutating the
// pending queue, for read-only previews.
func (s *ApprovalService) EvaluateEvents(ctx context.Context, events []schedule.Event) ([]schedule.Event, error) {
	if s == nil {
		return nil, fmt.Errorf("ApprovalService is nil")
	}

	approvedSet, _ := s.loadApprovedSet(ctx)
	safe, _ := s.loadSafeHours(ctx)

	passed := make([]schedule.Event, 0, len(events))
	for _, event := range events {
		if _, ok := approvedSet[strings.ToLower(strings.TrimSpace(event.Name))]; ok {
			passed = append(passed, event)
			continue
		}
		local := event.StartAt.In(s.zone)
		start, end := safeWindowFor(local.Weekday(), safe)
		startMinute := local.Hour()*60 + local.Minute()
		if startMinute >= start.Minutes() && startMinute <= end.Minutes() {
			passed = append(passed, event)
		}
	}
	return passed, nil
}

// Approve clears a pending entry and records its name as permanently
// approved. Every pending entry sharing the name clears with it.
func (s *ApprovalService) Approve(ctx context.Context, id string) (err error) {
	if s == nil {
		return fmt.Errorf("ApprovalService is nil")
	}

	logger := s.loggerWith(ctx, "Approve", "pending_id", id)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to approve event", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "event approved")
	}()

	pending, err := s.pending.LoadPending(ctx)
	if err != nil {
		err = fmt.Errorf("%w: pending approvals: %v", ErrConfigInvalid, err)
		return
	}
	entry, ok := pending[id]
	if !ok {
		err = ErrNotFound
		return
	}

	names, err := s.approved.LoadApprovedNames(ctx)
	if err != nil {
		err = fmt.Errorf("%w: approved names: %v", ErrConfigInvalid, err)
		return
	}
	if !containsFold(names.Names, entry.Name) {
		names.Names = append(names.Names, entry.Name)
		sortNames(names.Names)
		if err = s.approved.SaveApprovedNames(ctx, names); err != nil {
			err = fmt.Errorf("%w: approved names: %v", ErrStateWriteFailed, err)
			return
		}
	}

	for pid, p := range pending {
		if strings.EqualFold(p.Name, entry.Name) {
			delete(pending, pid)
		}
	}
	if err = s.pending.SavePending(ctx, pending); err != nil {
		err = fmt.Errorf("%w: pending approvals: %v", ErrStateWriteFailed, err)
	}
	return
}

// Deny drops a pending entry. The next cycle re-evaluates the event and may
// flag it again.
func (s *ApprovalService) Deny(ctx context.Context, id string) (err error) {
	if s == nil {
		return fmt.Errorf("ApprovalService is nil")
	}

	logger := s.loggerWith(ctx, "Deny", "pending_id", id)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to deny event", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "event denied")
	}()

	pending, err := s.pending.LoadPending(ctx)
	if err != nil {
		err = fmt.Errorf("%w: pending approvals: %v", ErrConfigInvalid, err)
		return
	}
	if _, ok := pending[id]; !ok {
		err = ErrNotFound
		return
	}
	delete(pending, id)

	if err = s.pending.SavePending(ctx, pending); err != nil {
		err = fmt.Errorf("%w: pending approvals: %v", ErrStateWriteFailed, err)
	}
	return
}

// ListPending returns the queue sorted by event start.
func (s *ApprovalService) ListPending(ctx context.Context) ([]persistence.PendingApproval, error) {
	if s == nil {
		return nil, fmt.Errorf("ApprovalService is nil")
	}

	pending, err := s.pending.LoadPending(ctx)
	if err != nil {
		err = fmt.Errorf("%w: pending approvals: %v", ErrConfigInvalid, err)
		s.loggerWith(ctx, "ListPending").ErrorContext(ctx, "failed to load pending approvals", "error", err, "error_kind", ErrorKind(err))
		return nil, err
	}
	return sortedPending(pending), nil
}

// GetSafeHours returns the per-day safe windows as stored.
func (s *ApprovalService) GetSafeHours(ctx context.Context) (persistence.SafeHours, error) {
	if s == nil {
		return persistence.SafeHours{}, fmt.Errorf("ApprovalService is nil")
	}

	safe, err := s.safeHours.LoadSafeHours(ctx)
	if err != nil {
		err = fmt.Errorf("%w: safe hours: %v", ErrConfigInvalid, err)
		s.loggerWith(ctx, "GetSafeHours").ErrorContext(ctx, "failed to load safe hours", "error", err, "error_kind", ErrorKind(err))
		return persistence.SafeHours{}, err
	}
	return safe, nil
}

// UpdateSafeHours validates and persists the per-day safe windows.
func (s *ApprovalService) UpdateSafeHours(ctx context.Context, safe persistence.SafeHours) (err error) {
	if s == nil {
		return fmt.Errorf("ApprovalService is nil")
	}

	logger := s.loggerWith(ctx, "UpdateSafeHours", "days", len(safe.Days))
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update safe hours", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "safe hours updated")
	}()

	vErr := &ValidationError{}
	for day, window := range safe.Days {
		if !persistence.IsWeekdayName(day) {
			vErr.add(day, "not a weekday name")
			continue
		}
		start, startErr := interval.ParseClockTime(window.StartLocal)
		if startErr != nil {
			vErr.add(day+".startLocal", fmt.Sprintf("invalid clock time %q", window.StartLocal))
		}
		end, endErr := interval.ParseClockTime(window.EndLocal)
		if endErr != nil {
			vErr.add(day+".endLocal", fmt.Sprintf("invalid clock time %q", window.EndLocal))
		}
		if startErr == nil && endErr == nil && start.Minutes() >= end.Minutes() {
			vErr.add(day, "start must be before end")
		}
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	if err = s.safeHours.SaveSafeHours(ctx, safe); err != nil {
		err = fmt.Errorf("%w: safe hours: %v", ErrStateWriteFailed, err)
	}
	return
}

// GetApprovedNames returns the approved-name list as stored.
func (s *ApprovalService) GetApprovedNames(ctx context.Context) (persistence.ApprovedNames, error) {
	if s == nil {
		return persistence.ApprovedNames{}, fmt.Errorf("ApprovalService is nil")
	}

	names, err := s.approved.LoadApprovedNames(ctx)
	if err != nil {
		err = fmt.Errorf("%w: approved names: %v", ErrConfigInvalid, err)
		s.loggerWith(ctx, "GetApprovedNames").ErrorContext(ctx, "failed to load approved names", "error", err, "error_kind", ErrorKind(err))
		return persistence.ApprovedNames{}, err
	}
	return names, nil
}

// UpdateApprovedNames normalises and persists the approved-name list. Names
// keep their stored casing; duplicates fold case-insensitively.
func (s *ApprovalService) UpdateApprovedNames(ctx context.Context, names persistence.ApprovedNames) (err error) {
	if s == nil {
		return fmt.Errorf("ApprovalService is nil")
	}

	logger := s.loggerWith(ctx, "UpdateApprovedNames", "names", len(names.Names))
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update approved names", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "approved names updated")
	}()

	seen := make(map[string]struct{}, len(names.Names))
	cleaned := make([]string, 0, len(names.Names))
	for _, name := range names.Names {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			continue
		}
		key := strings.ToLower(trimmed)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		cleaned = append(cleaned, trimmed)
	}
	sortNames(cleaned)

	if err = s.approved.SaveApprovedNames(ctx, persistence.ApprovedNames{Names: cleaned}); err != nil {
		err = fmt.Errorf("%w: approved names: %v", ErrStateWriteFailed, err)
	}
	return
}

func (s *ApprovalService) loadApprovedSet(ctx context.Context) (map[string]struct{}, string) {
	names, err := s.approved.LoadApprovedNames(ctx)
	if err != nil {
		s.logger.Warn("approved names unreadable, treating as empty", "error", err)
		return map[string]struct{}{}, fmt.Sprintf("%v: approved names: %v", ErrConfigInvalid, err)
	}
	set := make(map[string]struct{}, len(names.Names))
	for _, name := range names.Names {
		set[strings.ToLower(strings.TrimSpace(name))] = struct{}{}
	}
	return set, ""
}

func (s *ApprovalService) loadSafeHours(ctx context.Context) (persistence.SafeHours, string) {
	safe, err := s.safeHours.LoadSafeHours(ctx)
	if err != nil {
		s.logger.Warn("safe hours unreadable, using defaults", "error", err)
		return persistence.SafeHours{}, fmt.Sprintf("%v: safe hours: %v", ErrConfigInvalid, err)
	}
	return safe, ""
}

func (s *ApprovalService) loadPending(ctx context.Context) (persistence.PendingApprovals, string) {
	pending, err := s.pending.LoadPending(ctx)
	if err != nil {
		s.logger.Warn("pending approvals unreadable, rebuilding", "error", err)
		return persistence.PendingApprovals{}, fmt.Sprintf("%v: pending approvals: %v", ErrConfigInvalid, err)
	}
	if pending == nil {
		pending = persistence.PendingApprovals{}
	}
	return pending, ""
}

func (s *ApprovalService) notifyHeld(ctx context.Context, held []persistence.PendingApproval) {
	if s.notifier == nil || len(held) == 0 {
		return
	}
	for _, entry := range held {
		local := entry.StartAt.In(s.zone)
		text := fmt.Sprintf("Approval needed: %q %s (%s)", entry.Name, local.Format("Mon Jan 2 15:04 MST"), entry.Reason)
		if err := s.notifier.Send(ctx, text); err != nil {
			s.logger.Warn("failed to send approval notification", "error", err, "event_name", entry.Name)
		}
	}
}

// safeWindowFor resolves the inclusive safe window for a weekday, falling
// back to the built-in default for absent or unparseable entries.
func safeWindowFor(day time.Weekday, safe persistence.SafeHours) (interval.ClockTime, interval.ClockTime) {
	start, end := defaultSafeStart, defaultSafeEnd
	cfg, ok := safe.Days[persistence.WeekdayName(day)]
	if !ok {
		return start, end
	}
	if t, err := interval.ParseClockTime(cfg.StartLocal); err == nil {
		start = t
	}
	if t, err := interval.ParseClockTime(cfg.EndLocal); err == nil {
		end = t
	}
	return start, end
}

func sortedPending(pending persistence.PendingApprovals) []persistence.PendingApproval {
	entries := make([]persistence.PendingApproval, 0, len(pending))
	for _, entry := range pending {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].StartAt.Equal(entries[j].StartAt) {
			return entries[i].ID < entries[j].ID
		}
		return entries[i].StartAt.Before(entries[j].StartAt)
	})
	return entries
}

func containsFold(names []string, target string) bool {
	for _, name := range names {
		if strings.EqualFold(name, target) {
			return true
		}
	}
	return false
}

func sortNames(names []string) {
	sort.Slice(names, func(i, j int) bool {
		li, lj := strings.ToLower(names[i]), strings.ToLower(names[j])
		if li == lj {
			return names[i] < names[j]
		}
		return li < lj
	})
}
