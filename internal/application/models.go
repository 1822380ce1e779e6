package application

import (
	"context"
	"time"

	"github.com/example/doorsync/internal/interval"
	"github.com/example/doorsync/internal/schedule"
)

// CalendarClient is the upstream calendar surface the orchestrator depends
// on. FetchWindow returns events already expanded one-per-room.
type CalendarClient interface {
	FetchWindow(ctx context.Context, from, to time.Time) ([]schedule.Event, error)
	CheckConnectivity(ctx context.Context) error
	Stats() CalendarStats
}

// CalendarStats mirrors the upstream client's counters for the status snapshot.
type CalendarStats struct {
	CacheHitReturns         uint64
	MinIntervalCacheReturns uint64
	LiveWindowFetches       uint64
	EventInstanceRequests   uint64
	ResourceBookingRequests uint64
	RateLimitFallbacks      uint64
	LastLiveFetchAt         *time.Time
	LastCacheHitAt          *time.Time
	LastRateLimitFallbackAt *time.Time
}

// RemoteSchedule is a weekly unlock schedule as the controller reports it.
type RemoteSchedule struct {
	ID   string
	Name string
	Week interval.Weekly
}

// RemotePolicy is an access policy binding a schedule to controller doors.
type RemotePolicy struct {
	ID         string
	Name       string
	ScheduleID string
	DoorIDs    []string
}

// RemoteDoor is one door known to the controller, exposed for mapping
// construction.
type RemoteDoor struct {
	ID       string
	Name     string
	FullName string
}

// AccessController is the door-controller surface used by the applier.
type AccessController interface {
	ListSchedules(ctx context.Context) ([]RemoteSchedule, error)
	UpdateScheduleWeek(ctx context.Context, id string, week interval.Weekly) error
	ListPolicies(ctx context.Context) ([]RemotePolicy, error)
	CreatePolicy(ctx context.Context, name, scheduleID string, doorIDs []string) (RemotePolicy, error)
	DeletePolicy(ctx context.Context, id string) error
	ListDoors(ctx context.Context) ([]RemoteDoor, error)
	CheckConnectivity(ctx context.Context) error
}

// Notifier delivers operator alerts. Implementations may be no-ops.
type Notifier interface {
	Send(ctx context.Context, text string) error
}

// ConnectivityStatus is the outcome of the most recent upstream probe.
type ConnectivityStatus struct {
	OK        bool
	CheckedAt time.Time
	Error     string
}

// SyncCounts summarises one cycle's pipeline stages.
type SyncCounts struct {
	EventsFetched int
	EventsDropped int
	EventsPassed  int
	EventsHeld    int
	DoorsApplied  int
	ScheduleItems int
}

// SyncResult is what one completed (or failed) cycle reports back.
type SyncResult struct {
	RunID     string
	Trigger   string
	StartedAt time.Time
	Duration  time.Duration
	Summary   string
	Counts    SyncCounts
	Errors    []string
	Items     []schedule.DisplayItem
}

// StatusSnapshot is the mutex-guarded copy of the orchestrator's state
// served to the dashboard.
type StatusSnapshot struct {
	LastSyncAt     *time.Time
	LastRunID      string
	LastTrigger    string
	LastDuration   time.Duration
	LastSyncResult string
	RecentErrors   []string
	Counts         SyncCounts
	Calendar       ConnectivityStatus
	Controller     ConnectivityStatus
	ApplyToUnifi   bool
	SkippedRuns    uint64
	CalendarStats  CalendarStats
}

// Session is an issued dashboard session.
type Session struct {
	Token     string
	CreatedAt time.Time
	ExpiresAt time.Time
}
