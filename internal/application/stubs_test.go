package application

// In-memory stubs shared by the service tests. Load returns a copy where the
// service mutates the value it got, so assertions always see what was saved.

import (
	"context"
	"time"

	"github.com/example/doorsync/internal/interval"
	"github.com/example/doorsync/internal/persistence"
	"github.com/example/doorsync/internal/schedule"
)

func fixedNow() time.Time {
	// A Tuesday, midday UTC.
	return time.Date(2024, 3, 12, 12, 0, 0, 0, time.UTC)
}

func validMapping() persistence.RoomDoorMapping {
	return persistence.RoomDoorMapping{
		Doors: map[string]persistence.DoorConfig{
			"gym":   {Label: "Gym", RemoteDoorIDs: []string{"door-gym-1"}},
			"lobby": {Label: "Lobby", RemoteDoorIDs: []string{"door-lobby-1", "door-lobby-2"}},
		},
		DoorOrder: []string{"gym", "lobby"},
		Rooms: map[string][]string{
			"Gym":        {"gym"},
			"Youth Room": {"lobby"},
		},
		Defaults: persistence.MappingDefaults{LeadMinutes: 15, LagMinutes: 15},
	}
}

type stubMappingStore struct {
	mapping persistence.RoomDoorMapping
	loadErr error
	saveErr error
	saves   int
}

func (s *stubMappingStore) LoadMapping(context.Context) (persistence.RoomDoorMapping, error) {
	if s.loadErr != nil {
		return persistence.RoomDoorMapping{}, s.loadErr
	}
	return s.mapping, nil
}

func (s *stubMappingStore) SaveMapping(_ context.Context, mapping persistence.RoomDoorMapping) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.mapping = mapping
	s.saves++
	return nil
}

type stubOfficeHoursStore struct {
	hours   persistence.OfficeHours
	loadErr error
	saveErr error
	saves   int
}

func (s *stubOfficeHoursStore) LoadOfficeHours(context.Context) (persistence.OfficeHours, error) {
	if s.loadErr != nil {
		return persistence.OfficeHours{}, s.loadErr
	}
	return s.hours, nil
}

func (s *stubOfficeHoursStore) SaveOfficeHours(_ context.Context, hours persistence.OfficeHours) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.hours = hours
	s.saves++
	return nil
}

type stubOverrideStore struct {
	overrides persistence.EventOverrides
	loadErr   error
	saveErr   error
	saves     int
}

func (s *stubOverrideStore) LoadOverrides(context.Context) (persistence.EventOverrides, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	out := make(persistence.EventOverrides, len(s.overrides))
	for name, override := range s.overrides {
		out[name] = override
	}
	return out, nil
}

func (s *stubOverrideStore) SaveOverrides(_ context.Context, overrides persistence.EventOverrides) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.overrides = overrides
	s.saves++
	return nil
}

type stubMemoryStore struct {
	memory  persistence.EventMemory
	loadErr error
	saveErr error
	saves   int
}

func (s *stubMemoryStore) LoadMemory(context.Context) (persistence.EventMemory, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	out := make(persistence.EventMemory, len(s.memory))
	for name, entry := range s.memory {
		out[name] = entry
	}
	return out, nil
}

func (s *stubMemoryStore) SaveMemory(_ context.Context, memory persistence.EventMemory) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.memory = memory
	s.saves++
	return nil
}

type stubCancellationStore struct {
	cancelled persistence.CancelledEvents
	loadErr   error
	saveErr   error
	saves     int
}

func (s *stubCancellationStore) LoadCancellations(context.Context) (persistence.CancelledEvents, error) {
	if s.loadErr != nil {
		return persistence.CancelledEvents{}, s.loadErr
	}
	out := persistence.CancelledEvents{Cancelled: append([]persistence.CancelledEvent(nil), s.cancelled.Cancelled...)}
	return out, nil
}

func (s *stubCancellationStore) SaveCancellations(_ context.Context, cancelled persistence.CancelledEvents) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.cancelled = cancelled
	s.saves++
	return nil
}

type stubSafeHoursStore struct {
	safe    persistence.SafeHours
	loadErr error
	saveErr error
	saves   int
}

func (s *stubSafeHoursStore) LoadSafeHours(context.Context) (persistence.SafeHours, error) {
	if s.loadErr != nil {
		return persistence.SafeHours{}, s.loadErr
	}
	return s.safe, nil
}

func (s *stubSafeHoursStore) SaveSafeHours(_ context.Context, safe persistence.SafeHours) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.safe = safe
	s.saves++
	return nil
}

type stubPendingStore struct {
	pending persistence.PendingApprovals
	loadErr error
	saveErr error
	saves   int
}

func (s *stubPendingStore) LoadPending(context.Context) (persistence.PendingApprovals, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	out := make(persistence.PendingApprovals, len(s.pending))
	for id, entry := range s.pending {
		out[id] = entry
	}
	return out, nil
}

func (s *stubPendingStore) SavePending(_ context.Context, pending persistence.PendingApprovals) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.pending = pending
	s.saves++
	return nil
}

type stubApprovedNamesStore struct {
	names   persistence.ApprovedNames
	loadErr error
	saveErr error
	saves   int
}

func (s *stubApprovedNamesStore) LoadApprovedNames(context.Context) (persistence.ApprovedNames, error) {
	if s.loadErr != nil {
		return persistence.ApprovedNames{}, s.loadErr
	}
	out := persistence.ApprovedNames{Names: append([]string(nil), s.names.Names...)}
	return out, nil
}

func (s *stubApprovedNamesStore) SaveApprovedNames(_ context.Context, names persistence.ApprovedNames) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.names = names
	s.saves++
	return nil
}

type stubSyncStateStore struct {
	state   *persistence.SyncState
	loadErr error
	saveErr error
	saves   int
}

func (s *stubSyncStateStore) LoadSyncState(context.Context) (persistence.SyncState, error) {
	if s.loadErr != nil {
		return persistence.SyncState{}, s.loadErr
	}
	if s.state == nil {
		return persistence.SyncState{}, persistence.ErrNotFound
	}
	return *s.state, nil
}

func (s *stubSyncStateStore) SaveSyncState(_ context.Context, state persistence.SyncState) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.state = &state
	s.saves++
	return nil
}

type stubCalendar struct {
	events   []schedule.Event
	fetchErr error
	connErr  error
	stats    CalendarStats
	fetches  int
	lastFrom time.Time
	lastTo   time.Time
}

func (s *stubCalendar) FetchWindow(_ context.Context, from, to time.Time) ([]schedule.Event, error) {
	s.fetches++
	s.lastFrom, s.lastTo = from, to
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	return append([]schedule.Event(nil), s.events...), nil
}

func (s *stubCalendar) CheckConnectivity(context.Context) error { return s.connErr }

func (s *stubCalendar) Stats() CalendarStats { return s.stats }

// fakeController records every call so tests can assert write counts and
// ordering.
type fakeController struct {
	schedules []RemoteSchedule
	policies  []RemotePolicy
	doors     []RemoteDoor

	listSchedulesErr error
	listPoliciesErr  error
	listDoorsErr     error
	updateErr        error
	createErr        error
	deleteErr        error
	connErr          error

	calls   []string
	updated map[string]interval.Weekly
	created []RemotePolicy
	deleted []string
}

func newFakeController() *fakeController {
	return &fakeController{updated: map[string]interval.Weekly{}}
}

func (f *fakeController) ListSchedules(context.Context) ([]RemoteSchedule, error) {
	f.calls = append(f.calls, "list_schedules")
	if f.listSchedulesErr != nil {
		return nil, f.listSchedulesErr
	}
	return append([]RemoteSchedule(nil), f.schedules...), nil
}

func (f *fakeController) UpdateScheduleWeek(_ context.Context, id string, week interval.Weekly) error {
	f.calls = append(f.calls, "update_schedule:"+id)
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updated[id] = week
	for i := range f.schedules {
		if f.schedules[i].ID == id {
			f.schedules[i].Week = week
		}
	}
	return nil
}

func (f *fakeController) ListPolicies(context.Context) ([]RemotePolicy, error) {
	f.calls = append(f.calls, "list_policies")
	if f.listPoliciesErr != nil {
		return nil, f.listPoliciesErr
	}
	return append([]RemotePolicy(nil), f.policies...), nil
}

func (f *fakeController) CreatePolicy(_ context.Context, name, scheduleID string, doorIDs []string) (RemotePolicy, error) {
	f.calls = append(f.calls, "create_policy:"+name)
	if f.createErr != nil {
		return RemotePolicy{}, f.createErr
	}
	policy := RemotePolicy{
		ID:         "pol-" + name,
		Name:       name,
		ScheduleID: scheduleID,
		DoorIDs:    append([]string(nil), doorIDs...),
	}
	f.created = append(f.created, policy)
	f.policies = append(f.policies, policy)
	return policy, nil
}

func (f *fakeController) DeletePolicy(_ context.Context, id string) error {
	f.calls = append(f.calls, "delete_policy:"+id)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	kept := f.policies[:0]
	for _, policy := range f.policies {
		if policy.ID != id {
			kept = append(kept, policy)
		}
	}
	f.policies = kept
	return nil
}

func (f *fakeController) ListDoors(context.Context) ([]RemoteDoor, error) {
	f.calls = append(f.calls, "list_doors")
	if f.listDoorsErr != nil {
		return nil, f.listDoorsErr
	}
	return append([]RemoteDoor(nil), f.doors...), nil
}

func (f *fakeController) CheckConnectivity(context.Context) error { return f.connErr }

// writeCalls counts the mutating controller calls.
func (f *fakeController) writeCalls() int {
	writes := 0
	for _, call := range f.calls {
		switch {
		case call == "list_schedules", call == "list_policies", call == "list_doors":
		default:
			writes++
		}
	}
	return writes
}

type stubNotifier struct {
	sent []string
	err  error
}

func (s *stubNotifier) Send(_ context.Context, text string) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, text)
	return nil
}
