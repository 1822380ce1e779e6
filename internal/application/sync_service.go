package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/example/doorsync/internal/persistence"
	"github.com/example/doorsync/internal/schedule"
)

// errorRingSize bounds the recent-error list in the status snapshot.
const errorRingSize = 20

// upcomingLookbehind is the fixed lookback for the upcoming preview. Events
// still in progress stay visible; the configured sync lookbehind does not
// apply here.
const upcomingLookbehind = 24 * time.Hour

// SyncDeps bundles the collaborators one sync cycle drives.
type SyncDeps struct {
	Mapping       *MappingService
	OfficeHours   *OfficeHoursService
	Overrides     *OverrideService
	Approvals     *ApprovalService
	Memory        *MemoryService
	Cancellations *CancellationService
	ApplyState    persistence.SyncStateStore
	Calendar      CalendarClient
	Controller    AccessController
	Notifier      Notifier
}

// SyncConfig carries the orchestrator's timing and filter settings.
type SyncConfig struct {
	Lookahead           time.Duration
	Lookbehind          time.Duration
	LocationMustContain string
	Zone                *time.Location
	InitialApplyMode    bool
}

// SyncService runs the fetch/filter/gate/build/apply pipeline. Cycles are
// serialized: a trigger arriving while one runs is skipped and counted, never
// queued. A cycle never panics outward; problems land in the status
// snapshot's error ring and, when the cycle cannot complete, in a
// "error: ..." sync result with no remote changes made.
type SyncService struct {
	deps        SyncDeps
	cfg         SyncConfig
	applier     *Applier
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger

	runMu   sync.Mutex
	skipped atomic.Uint64

	statusMu sync.Mutex
	status   syncStatus
}

type syncStatus struct {
	lastSyncAt   *time.Time
	lastRunID    string
	lastTrigger  string
	lastDuration time.Duration
	lastResult   string
	counts       SyncCounts
	errors       []string
	preview      []schedule.DisplayItem
	calendar     ConnectivityStatus
	controller   ConnectivityStatus
}

// NewSyncService constructs a SyncService.
func NewSyncService(deps SyncDeps, cfg SyncConfig, idGenerator func() string, now func() time.Time) *SyncService {
	return NewSyncServiceWithLogger(deps, cfg, idGenerator, now, nil)
}

// NewSyncServiceWithLogger constructs a SyncService with a specified logger.
func NewSyncServiceWithLogger(deps SyncDeps, cfg SyncConfig, idGenerator func() string, now func() time.Time, logger *slog.Logger) *SyncService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	if cfg.Zone == nil {
		cfg.Zone = time.UTC
	}
	if cfg.Lookahead <= 0 {
		cfg.Lookahead = 7 * 24 * time.Hour
	}
	if cfg.Lookbehind <= 0 {
		cfg.Lookbehind = 24 * time.Hour
	}
	logger = defaultLogger(logger)
	return &SyncService{
		deps:        deps,
		cfg:         cfg,
		applier:     NewApplierWithLogger(deps.Controller, logger),
		idGenerator: idGenerator,
		now:         now,
		logger:      logger,
	}
}

func (s *SyncService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "SyncService", operation, attrs...)
}

// cycleState accumulates one run's outcome until finishRun folds it into the
// status snapshot.
type cycleState struct {
	runID      string
	trigger    string
	startedAt  time.Time
	applyMode  bool
	counts     SyncCounts
	errors     []string
	items      []schedule.DisplayItem
	built      bool
	calendar   *ConnectivityStatus
	controller *ConnectivityStatus
	fatal      string
}

func (run *cycleState) record(stage string, err error) {
	if err == nil {
		return
	}
	run.errors = append(run.errors, fmt.Sprintf("%s: %v", stage, err))
}

// RunOnce executes one sync cycle. Only ErrBusy is returned as an error;
// everything that goes wrong inside a cycle is reported through the result
// and the status snapshot instead.
func (s *SyncService) RunOnce(ctx context.Context, trigger string) (SyncResult, error) {
	if s == nil {
		return SyncResult{}, fmt.Errorf("SyncService is nil")
	}
	if !s.runMu.TryLock() {
		s.skipped.Add(1)
		s.loggerWith(ctx, "RunOnce", "trigger", trigger).WarnContext(ctx, "sync already running, trigger skipped")
		return SyncResult{}, ErrBusy
	}
	defer s.runMu.Unlock()

	run := &cycleState{
		runID:     s.idGenerator(),
		trigger:   trigger,
		startedAt: s.now(),
	}
	logger := s.loggerWith(ctx, "RunOnce", "run_id", run.runID, "trigger", trigger)
	logger.InfoContext(ctx, "sync cycle started")

	mapping, err := s.deps.Mapping.Snapshot(ctx)
	if err != nil {
		run.record("mapping", err)
		run.fatal = fmt.Sprintf("mapping unusable: %v", err)
		return s.finishRun(ctx, logger, run), nil
	}
	if mapping.UsedLastGood {
		run.record("mapping", mapping.Problem)
	}

	officeHours, err := s.deps.OfficeHours.Snapshot(ctx)
	if err != nil {
		run.record("office hours", err)
		officeHours = schedule.OfficeHours{}
	}
	overrides, err := s.deps.Overrides.Snapshot(ctx)
	if err != nil {
		run.record("overrides", err)
		overrides = nil
	}
	cancelled, err := s.deps.Cancellations.CancelledSet(ctx)
	if err != nil {
		run.record("cancellations", err)
		cancelled = map[string]struct{}{}
	}

	s.probeConnectivity(ctx, run)

	from := run.startedAt.Add(-s.cfg.Lookbehind)
	to := run.startedAt.Add(s.cfg.Lookahead)
	events, err := s.deps.Calendar.FetchWindow(ctx, from, to)
	if err != nil {
		run.record("fetch events", err)
		run.fatal = fmt.Sprintf("fetch events: %v", err)
		return s.finishRun(ctx, logger, run), nil
	}
	run.counts.EventsFetched = len(events)

	observed := s.filterEvents(events, mapping.Mapping, cancelled)
	run.counts.EventsDropped = len(events) - len(observed)

	gate, err := s.deps.Approvals.Gate(ctx, observed)
	if err != nil {
		run.record("approval gate", err)
	}
	run.errors = append(run.errors, gate.Warnings...)
	run.counts.EventsPassed = len(gate.Passed)
	run.counts.EventsHeld = len(observed) - len(gate.Passed)

	// Memory sees every observed event, held ones included, so the operator
	// can recognise what is waiting for approval.
	if err := s.deps.Memory.Update(ctx, observed, run.startedAt); err != nil {
		run.record("event memory", err)
	}

	built := schedule.Build(gate.Passed, mapping.Mapping, overrides, s.cfg.Zone)
	merged := schedule.MergeOfficeHours(built, officeHours, mapping.Mapping, from, to, s.cfg.Zone)
	run.items = merged.Items
	run.built = true
	run.counts.ScheduleItems = len(merged.Items)

	applyMode, err := s.loadApplyMode(ctx)
	if err != nil {
		// A corrupt state file must not switch writes on. Remote writes
		// stay off until the operator resets the apply mode.
		run.record("apply mode", err)
		applyMode = false
	}
	run.applyMode = applyMode

	applyResults, err := s.applier.Apply(ctx, ApplyParams{
		Mapping:     mapping.Mapping,
		DoorWindows: merged.DoorWindows,
		Zone:        s.cfg.Zone,
		ApplyMode:   applyMode,
	})
	if err != nil {
		run.record("apply", err)
	}
	for _, result := range applyResults {
		if result.Err != nil {
			run.record(fmt.Sprintf("door %s", result.DoorKey), result.Err)
		}
		if result.WroteSchedule || result.WrotePolicy {
			run.counts.DoorsApplied++
		}
	}

	return s.finishRun(ctx, logger, run), nil
}

// filterEvents applies the location, excluded-room and cancellation filters.
func (s *SyncService) filterEvents(events []schedule.Event, mapping schedule.Mapping, cancelled map[string]struct{}) []schedule.Event {
	location := strings.ToLower(strings.TrimSpace(s.cfg.LocationMustContain))
	observed := make([]schedule.Event, 0, len(events))
	for _, event := range events {
		if location != "" && !strings.Contains(strings.ToLower(event.Location), location) {
			continue
		}
		if mapping.RoomExcluded(event.Room) {
			continue
		}
		if _, gone := cancelled[event.ID]; gone {
			continue
		}
		observed = append(observed, event)
	}
	return observed
}

func (s *SyncService) probeConnectivity(ctx context.Context, run *cycleState) {
	var wg sync.WaitGroup
	var calendar, controller ConnectivityStatus
	wg.Add(2)
	go func() {
		defer wg.Done()
		calendar = s.probe(ctx, s.deps.Calendar.CheckConnectivity)
	}()
	go func() {
		defer wg.Done()
		controller = s.probe(ctx, s.deps.Controller.CheckConnectivity)
	}()
	wg.Wait()
	run.calendar = &calendar
	run.controller = &controller
}

func (s *SyncService) probe(ctx context.Context, check func(context.Context) error) ConnectivityStatus {
	status := ConnectivityStatus{CheckedAt: s.now()}
	if err := check(ctx); err != nil {
		status.Error = err.Error()
		return status
	}
	status.OK = true
	return status
}

func (s *SyncService) finishRun(ctx context.Context, logger *slog.Logger, run *cycleState) SyncResult {
	finishedAt := s.now()
	duration := finishedAt.Sub(run.startedAt)

	var summary string
	switch {
	case run.fatal != "":
		summary = "error: " + run.fatal
	default:
		mode := "off"
		if run.applyMode {
			mode = "on"
		}
		summary = fmt.Sprintf("ok: apply=%s events=%d items=%d doors=%d", mode, run.counts.EventsFetched, run.counts.ScheduleItems, run.counts.DoorsApplied)
	}

	s.statusMu.Lock()
	syncedAt := run.startedAt
	s.status.lastSyncAt = &syncedAt
	s.status.lastRunID = run.runID
	s.status.lastTrigger = run.trigger
	s.status.lastDuration = duration
	s.status.lastResult = summary
	s.status.counts = run.counts
	s.status.errors = appendRing(s.status.errors, run.errors, errorRingSize)
	if run.built {
		s.status.preview = run.items
	}
	if run.calendar != nil {
		s.status.calendar = *run.calendar
	}
	if run.controller != nil {
		s.status.controller = *run.controller
	}
	s.statusMu.Unlock()

	s.notifyFailures(ctx, run)

	if run.fatal != "" {
		logger.ErrorContext(ctx, "sync cycle failed",
			"summary", summary,
			"duration", duration,
			"errors", len(run.errors),
		)
	} else {
		logger.InfoContext(ctx, "sync cycle finished",
			"summary", summary,
			"duration", duration,
			"events_fetched", run.counts.EventsFetched,
			"events_held", run.counts.EventsHeld,
			"schedule_items", run.counts.ScheduleItems,
			"doors_applied", run.counts.DoorsApplied,
			"errors", len(run.errors),
		)
	}

	return SyncResult{
		RunID:     run.runID,
		Trigger:   run.trigger,
		StartedAt: run.startedAt,
		Duration:  duration,
		Summary:   summary,
		Counts:    run.counts,
		Errors:    run.errors,
		Items:     run.items,
	}
}

func (s *SyncService) notifyFailures(ctx context.Context, run *cycleState) {
	if s.deps.Notifier == nil {
		return
	}
	var text string
	switch {
	case run.fatal != "":
		text = "Door sync failed: " + run.fatal
	case len(run.errors) > 0:
		text = fmt.Sprintf("Door sync finished with %d problem(s); first: %s", len(run.errors), run.errors[0])
	default:
		return
	}
	if err := s.deps.Notifier.Send(ctx, text); err != nil {
		s.logger.Warn("failed to send sync failure notification", "error", err)
	}
}

// appendRing appends entries keeping only the newest size elements.
func appendRing(ring, entries []string, size int) []string {
	ring = append(ring, entries...)
	if len(ring) > size {
		ring = append([]string(nil), ring[len(ring)-size:]...)
	}
	return ring
}

// Status reports the last cycle's outcome plus live apply mode and calendar
// client statistics.
func (s *SyncService) Status(ctx context.Context) (StatusSnapshot, error) {
	if s == nil {
		return StatusSnapshot{}, fmt.Errorf("SyncService is nil")
	}

	applyMode, err := s.loadApplyMode(ctx)
	if err != nil {
		s.loggerWith(ctx, "Status").WarnContext(ctx, "sync state unreadable, reporting apply mode off", "error", err)
		applyMode = false
	}

	s.statusMu.Lock()
	snapshot := StatusSnapshot{
		LastSyncAt:     s.status.lastSyncAt,
		LastRunID:      s.status.lastRunID,
		LastTrigger:    s.status.lastTrigger,
		LastDuration:   s.status.lastDuration,
		LastSyncResult: s.status.lastResult,
		RecentErrors:   append([]string(nil), s.status.errors...),
		Counts:         s.status.counts,
		Calendar:       s.status.calendar,
		Controller:     s.status.controller,
	}
	s.statusMu.Unlock()

	snapshot.ApplyToUnifi = applyMode
	snapshot.SkippedRuns = s.skipped.Load()
	if s.deps.Calendar != nil {
		snapshot.CalendarStats = s.deps.Calendar.Stats()
	}
	return snapshot, nil
}

// Preview returns the display items computed by the last completed build.
func (s *SyncService) Preview(ctx context.Context) ([]schedule.DisplayItem, error) {
	if s == nil {
		return nil, fmt.Errorf("SyncService is nil")
	}
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	return append([]schedule.DisplayItem(nil), s.status.preview...), nil
}

// UpcomingPreview computes a fresh schedule over a fixed 24 hour lookback
// plus the configured lookahead, dropping windows that already ended. It
// reads the calendar (served from cache when the API is down) and never
// writes to the controller or to the pending queue.
func (s *SyncService) UpcomingPreview(ctx context.Context) (items []schedule.DisplayItem, err error) {
	if s == nil {
		return nil, fmt.Errorf("SyncService is nil")
	}

	logger := s.loggerWith(ctx, "UpcomingPreview")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to compute upcoming preview", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	mapping, err := s.deps.Mapping.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	from := now.Add(-upcomingLookbehind)
	to := now.Add(s.cfg.Lookahead)
	events, err := s.deps.Calendar.FetchWindow(ctx, from, to)
	if err != nil {
		return nil, err
	}

	cancelled, err := s.deps.Cancellations.CancelledSet(ctx)
	if err != nil {
		cancelled = map[string]struct{}{}
	}
	observed := s.filterEvents(events, mapping.Mapping, cancelled)

	passed, err := s.deps.Approvals.EvaluateEvents(ctx, observed)
	if err != nil {
		return nil, err
	}

	officeHours, err := s.deps.OfficeHours.Snapshot(ctx)
	if err != nil {
		officeHours = schedule.OfficeHours{}
	}
	overrides, err := s.deps.Overrides.Snapshot(ctx)
	if err != nil {
		overrides = nil
	}

	built := schedule.Build(passed, mapping.Mapping, overrides, s.cfg.Zone)
	merged := schedule.MergeOfficeHours(built, officeHours, mapping.Mapping, from, to, s.cfg.Zone)

	items = make([]schedule.DisplayItem, 0, len(merged.Items))
	for _, item := range merged.Items {
		if !item.EndAt.After(now) {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// SetApplyMode persists the remote-write switch. The new mode takes effect
// from the next cycle; it is durable before this returns.
func (s *SyncService) SetApplyMode(ctx context.Context, enabled bool) (err error) {
	if s == nil {
		return fmt.Errorf("SyncService is nil")
	}

	logger := s.loggerWith(ctx, "SetApplyMode", "apply_to_unifi", enabled)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update apply mode", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "apply mode updated")
	}()

	if err = s.deps.ApplyState.SaveSyncState(ctx, persistence.SyncState{ApplyToUnifi: enabled}); err != nil {
		err = fmt.Errorf("%w: sync state: %v", ErrStateWriteFailed, err)
	}
	return
}

// ApplyMode reports the effective remote-write switch.
func (s *SyncService) ApplyMode(ctx context.Context) (bool, error) {
	if s == nil {
		return false, fmt.Errorf("SyncService is nil")
	}
	return s.loadApplyMode(ctx)
}

// Doors lists the controller's doors, for wiring new mappings.
func (s *SyncService) Doors(ctx context.Context) ([]RemoteDoor, error) {
	if s == nil {
		return nil, fmt.Errorf("SyncService is nil")
	}

	doors, err := s.deps.Controller.ListDoors(ctx)
	if err != nil {
		err = fmt.Errorf("%w: list doors: %v", ErrUpstreamUnavailable, err)
		s.loggerWith(ctx, "Doors").ErrorContext(ctx, "failed to list controller doors", "error", err, "error_kind", ErrorKind(err))
		return nil, err
	}
	return doors, nil
}

func (s *SyncService) loadApplyMode(ctx context.Context) (bool, error) {
	state, err := s.deps.ApplyState.LoadSyncState(ctx)
	if errors.Is(err, persistence.ErrNotFound) {
		return s.cfg.InitialApplyMode, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: sync state: %v", ErrConfigInvalid, err)
	}
	return state.ApplyToUnifi, nil
}
