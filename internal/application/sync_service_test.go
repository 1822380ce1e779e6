package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/example/doorsync/internal/interval"
	"github.com/example/doorsync/internal/persistence"
	"github.com/example/doorsync/internal/schedule"
)

type syncFixture struct {
	service   *SyncService
	approvals *ApprovalService

	mapping     *stubMappingStore
	officeHours *stubOfficeHoursStore
	overrides   *stubOverrideStore
	memory      *stubMemoryStore
	cancels     *stubCancellationStore
	safeHours   *stubSafeHoursStore
	pending     *stubPendingStore
	approved    *stubApprovedNamesStore
	state       *stubSyncStateStore
	calendar    *stubCalendar
	controller  *fakeController
	notifier    *stubNotifier
}

func newSyncFixture(cfg SyncConfig) *syncFixture {
	f := &syncFixture{
		mapping:     &stubMappingStore{mapping: validMapping()},
		officeHours: &stubOfficeHoursStore{},
		overrides:   &stubOverrideStore{},
		memory:      &stubMemoryStore{},
		cancels:     &stubCancellationStore{},
		safeHours:   &stubSafeHoursStore{},
		pending:     &stubPendingStore{},
		approved:    &stubApprovedNamesStore{},
		state:       &stubSyncStateStore{},
		calendar:    &stubCalendar{},
		notifier:    &stubNotifier{},
	}
	f.controller = newFakeController()
	f.controller.schedules = []RemoteSchedule{
		{ID: "sch-gym", Name: "PCO Sync gym"},
		{ID: "sch-lobby", Name: "PCO Sync lobby"},
	}
	f.controller.policies = []RemotePolicy{
		{ID: "pol-1", Name: "PCO Sync Policy gym", ScheduleID: "sch-gym", DoorIDs: []string{"door-gym-1"}},
		{ID: "pol-2", Name: "PCO Sync Policy lobby", ScheduleID: "sch-lobby", DoorIDs: []string{"door-lobby-1", "door-lobby-2"}},
	}

	if cfg.Zone == nil {
		cfg.Zone = time.UTC
	}
	mappingService := NewMappingService(f.mapping)
	f.approvals = NewApprovalService(f.pending, f.approved, f.safeHours, f.notifier, fixedNow, cfg.Zone)

	deps := SyncDeps{
		Mapping:       mappingService,
		OfficeHours:   NewOfficeHoursService(f.officeHours, mappingService),
		Overrides:     NewOverrideService(f.overrides, mappingService),
		Approvals:     f.approvals,
		Memory:        NewMemoryService(f.memory),
		Cancellations: NewCancellationService(f.cancels, fixedNow),
		ApplyState:    f.state,
		Calendar:      f.calendar,
		Controller:    f.controller,
		Notifier:      f.notifier,
	}

	runs := 0
	idGenerator := func() string {
		runs++
		return fmt.Sprintf("run-%d", runs)
	}
	f.service = NewSyncService(deps, cfg, idGenerator, fixedNow)
	return f
}

func syncEvent(id, name string, start time.Time) schedule.Event {
	return schedule.Event{
		ID:       id,
		Name:     name,
		Room:     "Gym",
		Building: "Main",
		Location: "Main Campus",
		StartAt:  start,
		EndAt:    start.Add(2 * time.Hour),
	}
}

func TestSyncService_RunOnceAppliesSchedules(t *testing.T) {
	t.Parallel()

	f := newSyncFixture(SyncConfig{InitialApplyMode: true})
	// Tuesday 18:00-20:00; with 15 minute lead/lag the unlock is 17:45-20:15.
	f.calendar.events = []schedule.Event{syncEvent("evt-1", "Youth Group", fixedNow().Add(6*time.Hour))}

	result, err := f.service.RunOnce(context.Background(), "manual")
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	if !strings.HasPrefix(result.Summary, "ok: apply=on") {
		t.Fatalf("unexpected summary: %q", result.Summary)
	}
	want := SyncCounts{EventsFetched: 1, EventsPassed: 1, ScheduleItems: 1, DoorsApplied: 1}
	if result.Counts != want {
		t.Fatalf("unexpected counts: %+v", result.Counts)
	}

	if !f.calendar.lastFrom.Equal(fixedNow().Add(-24 * time.Hour)) {
		t.Fatalf("expected default lookbehind of one day, got %v", f.calendar.lastFrom)
	}
	if !f.calendar.lastTo.Equal(fixedNow().Add(7 * 24 * time.Hour)) {
		t.Fatalf("expected default lookahead of seven days, got %v", f.calendar.lastTo)
	}

	tuesday := f.controller.updated["sch-gym"].Days[time.Tuesday]
	if len(tuesday) != 1 || tuesday[0] != (interval.MinuteRange{Start: 17*60 + 45, End: 20*60 + 15}) {
		t.Fatalf("unexpected gym week written: %+v", tuesday)
	}

	if _, ok := f.memory.memory["youth group"]; !ok {
		t.Fatalf("expected observed event in memory, got %v", f.memory.memory)
	}

	status, err := f.service.Status(context.Background())
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.LastRunID != "run-1" || status.LastTrigger != "manual" {
		t.Fatalf("unexpected status identity: %+v", status)
	}
	if status.LastSyncAt == nil || !status.LastSyncAt.Equal(fixedNow()) {
		t.Fatalf("expected lastSyncAt = run start, got %v", status.LastSyncAt)
	}
	if !status.Calendar.OK || !status.Controller.OK {
		t.Fatalf("expected both probes OK, got %+v / %+v", status.Calendar, status.Controller)
	}
	if !status.ApplyToUnifi {
		t.Fatalf("expected apply mode on from startup default")
	}
}

func TestSyncService_ApplyModeOffComputesWithoutWriting(t *testing.T) {
	t.Parallel()

	f := newSyncFixture(SyncConfig{})
	f.calendar.events = []schedule.Event{syncEvent("evt-1", "Youth Group", fixedNow().Add(6*time.Hour))}

	result, err := f.service.RunOnce(context.Background(), "scheduled")
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	if !strings.HasPrefix(result.Summary, "ok: apply=off") {
		t.Fatalf("unexpected summary: %q", result.Summary)
	}
	if f.controller.writeCalls() != 0 {
		t.Fatalf("expected zero controller writes, got %v", f.controller.calls)
	}
	if len(result.Items) != 1 {
		t.Fatalf("expected preview items to be computed anyway, got %+v", result.Items)
	}

	preview, err := f.service.Preview(context.Background())
	if err != nil {
		t.Fatalf("Preview failed: %v", err)
	}
	if len(preview) != 1 || preview[0].DoorKey != "gym" {
		t.Fatalf("expected preview to carry the computed item, got %+v", preview)
	}
}

func TestSyncService_HeldEventExcludedUntilApproved(t *testing.T) {
	t.Parallel()

	f := newSyncFixture(SyncConfig{InitialApplyMode: true})
	// Tuesday 23:30 start is outside the default safe window.
	lateStart := fixedNow().Truncate(24 * time.Hour).Add(23*time.Hour + 30*time.Minute)
	f.calendar.events = []schedule.Event{syncEvent("evt-1", "Lock-In", lateStart)}

	first, err := f.service.RunOnce(context.Background(), "scheduled")
	if err != nil {
		t.Fatalf("first RunOnce failed: %v", err)
	}
	if first.Counts.EventsHeld != 1 || first.Counts.EventsPassed != 0 {
		t.Fatalf("expected event held, got %+v", first.Counts)
	}
	if len(first.Items) != 0 {
		t.Fatalf("expected no schedule items while held, got %+v", first.Items)
	}
	if len(f.controller.updated) != 0 {
		t.Fatalf("expected no schedule writes while held, got %v", f.controller.updated)
	}
	if _, ok := f.memory.memory["lock-in"]; !ok {
		t.Fatalf("expected held event to be remembered, got %v", f.memory.memory)
	}

	if err := f.approvals.Approve(context.Background(), "evt-1"); err != nil {
		t.Fatalf("Approve failed: %v", err)
	}

	second, err := f.service.RunOnce(context.Background(), "scheduled")
	if err != nil {
		t.Fatalf("second RunOnce failed: %v", err)
	}
	if second.Counts.EventsPassed != 1 || second.Counts.EventsHeld != 0 {
		t.Fatalf("expected approved event to pass, got %+v", second.Counts)
	}
	if len(f.controller.updated) == 0 {
		t.Fatalf("expected schedule write after approval")
	}
}

func TestSyncService_FiltersBeforeGate(t *testing.T) {
	t.Parallel()

	mapping := validMapping()
	mapping.Rules.ExcludeEventsByRoomContains = []string{"offsite"}

	f := newSyncFixture(SyncConfig{LocationMustContain: "main"})
	f.mapping.mapping = mapping
	f.cancels.cancelled = persistence.CancelledEvents{Cancelled: []persistence.CancelledEvent{
		{ID: "evt-3", Name: "Cancelled", StartAt: fixedNow().Add(6 * time.Hour), EndAt: fixedNow().Add(8 * time.Hour), CancelledAt: fixedNow()},
	}}

	offsite := syncEvent("evt-2", "Retreat", fixedNow().Add(6*time.Hour))
	offsite.Room = "Offsite Pavilion"
	elsewhere := syncEvent("evt-4", "Elsewhere", fixedNow().Add(6*time.Hour))
	elsewhere.Location = "North Campus"

	f.calendar.events = []schedule.Event{
		syncEvent("evt-1", "Youth Group", fixedNow().Add(6*time.Hour)),
		offsite,
		syncEvent("evt-3", "Cancelled", fixedNow().Add(6*time.Hour)),
		elsewhere,
	}

	result, err := f.service.RunOnce(context.Background(), "scheduled")
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if result.Counts.EventsFetched != 4 || result.Counts.EventsDropped != 3 || result.Counts.EventsPassed != 1 {
		t.Fatalf("unexpected counts: %+v", result.Counts)
	}

	// Dropped events never reach the memory or the pending queue.
	if len(f.memory.memory) != 1 {
		t.Fatalf("expected only the surviving event in memory, got %v", f.memory.memory)
	}
	if len(f.pending.pending) != 0 {
		t.Fatalf("expected no pending entries, got %v", f.pending.pending)
	}
}

func TestSyncService_MappingFatalMakesNoRemoteCalls(t *testing.T) {
	t.Parallel()

	f := newSyncFixture(SyncConfig{InitialApplyMode: true})
	f.mapping.loadErr = persistence.ErrMalformed
	f.calendar.events = []schedule.Event{syncEvent("evt-1", "Youth Group", fixedNow().Add(6*time.Hour))}

	result, err := f.service.RunOnce(context.Background(), "scheduled")
	if err != nil {
		t.Fatalf("RunOnce must not fail hard: %v", err)
	}
	if !strings.HasPrefix(result.Summary, "error: mapping unusable") {
		t.Fatalf("unexpected summary: %q", result.Summary)
	}
	if len(f.controller.calls) != 0 {
		t.Fatalf("expected no controller interaction, got %v", f.controller.calls)
	}
	if f.calendar.fetches != 0 {
		t.Fatalf("expected no calendar fetch on fatal mapping")
	}

	status, err := f.service.Status(context.Background())
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if len(status.RecentErrors) == 0 {
		t.Fatalf("expected error ring to record the failure")
	}
	if !strings.HasPrefix(status.LastSyncResult, "error:") {
		t.Fatalf("unexpected lastSyncResult: %q", status.LastSyncResult)
	}
}

func TestSyncService_FetchFailureIsCycleFatal(t *testing.T) {
	t.Parallel()

	f := newSyncFixture(SyncConfig{InitialApplyMode: true})
	f.calendar.fetchErr = fmt.Errorf("%w: calendar API returned 503", ErrUpstreamUnavailable)

	result, err := f.service.RunOnce(context.Background(), "scheduled")
	if err != nil {
		t.Fatalf("RunOnce must not fail hard: %v", err)
	}
	if !strings.HasPrefix(result.Summary, "error: fetch events") {
		t.Fatalf("unexpected summary: %q", result.Summary)
	}
	if f.controller.writeCalls() != 0 {
		t.Fatalf("expected no remote writes, got %v", f.controller.calls)
	}
	if len(f.notifier.sent) == 0 || !strings.Contains(f.notifier.sent[0], "Door sync failed") {
		t.Fatalf("expected failure notification, got %v", f.notifier.sent)
	}
}

func TestSyncService_MappingLastGoodKeepsCycleAlive(t *testing.T) {
	t.Parallel()

	f := newSyncFixture(SyncConfig{InitialApplyMode: true})
	f.calendar.events = []schedule.Event{syncEvent("evt-1", "Youth Group", fixedNow().Add(6*time.Hour))}

	// Seed the last-good snapshot, then corrupt the file.
	if _, err := f.service.RunOnce(context.Background(), "scheduled"); err != nil {
		t.Fatalf("seed run failed: %v", err)
	}
	f.mapping.loadErr = persistence.ErrMalformed

	result, err := f.service.RunOnce(context.Background(), "scheduled")
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if !strings.HasPrefix(result.Summary, "ok:") {
		t.Fatalf("expected cycle to continue on last-good mapping, got %q", result.Summary)
	}
	if len(result.Errors) == 0 {
		t.Fatalf("expected the mapping problem to be recorded")
	}
	if result.Counts.EventsPassed != 1 {
		t.Fatalf("expected event to flow through last-good mapping, got %+v", result.Counts)
	}
}

func TestSyncService_BusySkipsAndCounts(t *testing.T) {
	t.Parallel()

	f := newSyncFixture(SyncConfig{})
	f.service.runMu.Lock()

	_, err := f.service.RunOnce(context.Background(), "manual")
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	f.service.runMu.Unlock()

	if _, err := f.service.RunOnce(context.Background(), "manual"); err != nil {
		t.Fatalf("RunOnce after unlock failed: %v", err)
	}

	status, err := f.service.Status(context.Background())
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.SkippedRuns != 1 {
		t.Fatalf("expected 1 skipped run, got %d", status.SkippedRuns)
	}
}

func TestSyncService_ErrorRingKeepsNewest(t *testing.T) {
	t.Parallel()

	f := newSyncFixture(SyncConfig{})
	f.mapping.loadErr = persistence.ErrMalformed

	for i := 0; i < errorRingSize+5; i++ {
		if _, err := f.service.RunOnce(context.Background(), "scheduled"); err != nil {
			t.Fatalf("RunOnce failed: %v", err)
		}
	}

	status, err := f.service.Status(context.Background())
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if len(status.RecentErrors) != errorRingSize {
		t.Fatalf("expected ring capped at %d, got %d", errorRingSize, len(status.RecentErrors))
	}
}

func TestSyncService_UpcomingPreviewDropsEndedWindows(t *testing.T) {
	t.Parallel()

	f := newSyncFixture(SyncConfig{InitialApplyMode: true})
	f.calendar.events = []schedule.Event{
		syncEvent("evt-done", "Morning Crew", fixedNow().Add(-6*time.Hour)),
		syncEvent("evt-soon", "Youth Group", fixedNow().Add(6*time.Hour)),
	}

	items, err := f.service.UpcomingPreview(context.Background())
	if err != nil {
		t.Fatalf("UpcomingPreview failed: %v", err)
	}
	if len(items) != 1 || items[0].EventID != "evt-soon" {
		t.Fatalf("expected only the upcoming item, got %+v", items)
	}

	if !f.calendar.lastFrom.Equal(fixedNow().Add(-24 * time.Hour)) {
		t.Fatalf("expected fixed 24h lookback, got %v", f.calendar.lastFrom)
	}
	if f.controller.writeCalls() != 0 || len(f.controller.calls) != 0 {
		t.Fatalf("expected no controller calls from preview, got %v", f.controller.calls)
	}
	if f.pending.saves != 0 {
		t.Fatalf("expected preview to leave the pending queue alone")
	}
}

func TestSyncService_SetApplyModePersists(t *testing.T) {
	t.Parallel()

	f := newSyncFixture(SyncConfig{})
	if err := f.service.SetApplyMode(context.Background(), true); err != nil {
		t.Fatalf("SetApplyMode failed: %v", err)
	}
	if f.state.state == nil || !f.state.state.ApplyToUnifi {
		t.Fatalf("expected apply mode persisted, got %+v", f.state.state)
	}

	mode, err := f.service.ApplyMode(context.Background())
	if err != nil || !mode {
		t.Fatalf("expected apply mode on, got %v (%v)", mode, err)
	}

	f.state.saveErr = errors.New("disk full")
	if err := f.service.SetApplyMode(context.Background(), false); !errors.Is(err, ErrStateWriteFailed) {
		t.Fatalf("expected ErrStateWriteFailed, got %v", err)
	}
}

func TestSyncService_ApplyModeDefaultsWhenNeverPersisted(t *testing.T) {
	t.Parallel()

	f := newSyncFixture(SyncConfig{InitialApplyMode: true})
	mode, err := f.service.ApplyMode(context.Background())
	if err != nil {
		t.Fatalf("ApplyMode failed: %v", err)
	}
	if !mode {
		t.Fatalf("expected startup default to apply before first persist")
	}

	// A corrupt state file must fail towards off, not the startup default.
	f.state.loadErr = persistence.ErrMalformed
	status, err := f.service.Status(context.Background())
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.ApplyToUnifi {
		t.Fatalf("expected unreadable sync state to report apply off")
	}
}

func TestSyncService_DoorsWrapsControllerFailure(t *testing.T) {
	t.Parallel()

	f := newSyncFixture(SyncConfig{})
	f.controller.doors = []RemoteDoor{{ID: "door-gym-1", Name: "Gym", FullName: "Main - Gym"}}

	doors, err := f.service.Doors(context.Background())
	if err != nil {
		t.Fatalf("Doors failed: %v", err)
	}
	if len(doors) != 1 || doors[0].ID != "door-gym-1" {
		t.Fatalf("unexpected doors: %+v", doors)
	}

	f.controller.listDoorsErr = errors.New("controller offline")
	if _, err := f.service.Doors(context.Background()); !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
}

func TestSyncService_OfficeHoursContributeWindows(t *testing.T) {
	t.Parallel()

	f := newSyncFixture(SyncConfig{InitialApplyMode: true})
	f.officeHours.hours = persistence.OfficeHours{
		Enabled: true,
		Schedule: map[string]persistence.OfficeHoursDay{
			"tuesday": {Ranges: "9-17", Doors: []string{"gym"}},
		},
	}

	result, err := f.service.RunOnce(context.Background(), "scheduled")
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if result.Counts.ScheduleItems == 0 {
		t.Fatalf("expected office hours items, got %+v", result.Counts)
	}
	for _, item := range result.Items {
		if item.Source != schedule.SourceOfficeHours {
			t.Fatalf("expected only office hours items, got %+v", item)
		}
	}

	tuesday := f.controller.updated["sch-gym"].Days[time.Tuesday]
	if len(tuesday) != 1 || tuesday[0] != (interval.MinuteRange{Start: 9 * 60, End: 17 * 60}) {
		t.Fatalf("expected 09:00-17:00 tuesday window, got %+v", tuesday)
	}
}
