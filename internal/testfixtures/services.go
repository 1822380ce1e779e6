package testfixtures

import (
	"log/slog"
	"time"

	"github.com/example/doorsync/internal/application"
	"github.com/example/doorsync/internal/persistence"
)

// ServiceFactory assists tests with constructing application services using
// deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("run"),
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("run")
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

// ApprovalServiceDeps captures dependencies for constructing an approval
// service.
type ApprovalServiceDeps struct {
	Pending   persistence.PendingStore
	Approved  persistence.ApprovedNamesStore
	SafeHours persistence.SafeHoursStore
	Notifier  application.Notifier
	Zone      *time.Location
	Now       func() time.Time
	Logger    *slog.Logger
}

// NewApprovalService builds an approval service using the supplied
// dependencies combined with the factory defaults.
func (f *ServiceFactory) NewApprovalService(deps ApprovalServiceDeps) *application.ApprovalService {
	now := deps.Now
	if now == nil {
		now = f.Clock.NowFunc()
	}
	zone := deps.Zone
	if zone == nil {
		zone = time.UTC
	}
	return application.NewApprovalServiceWithLogger(
		deps.Pending,
		deps.Approved,
		deps.SafeHours,
		deps.Notifier,
		now,
		zone,
		deps.Logger,
	)
}

// CancellationServiceDeps captures dependencies for constructing a
// cancellation service.
type CancellationServiceDeps struct {
	Store  persistence.CancellationStore
	Now    func() time.Time
	Logger *slog.Logger
}

// NewCancellationService builds a cancellation service using the supplied
// dependencies.
func (f *ServiceFactory) NewCancellationService(deps CancellationServiceDeps) *application.CancellationService {
	now := deps.Now
	if now == nil {
		now = f.Clock.NowFunc()
	}
	return application.NewCancellationServiceWithLogger(
		deps.Store,
		now,
		deps.Logger,
	)
}

// AuthServiceDeps captures dependencies for constructing an auth service.
type AuthServiceDeps struct {
	PasswordHash   string
	TokenGenerator func() string
	Now            func() time.Time
	SessionTTL     time.Duration
	Logger         *slog.Logger
}

// NewAuthService builds an auth service using the supplied dependencies.
func (f *ServiceFactory) NewAuthService(deps AuthServiceDeps) *application.AuthService {
	token := deps.TokenGenerator
	if token == nil {
		token = f.IDGenerator.NextFunc()
	}
	now := deps.Now
	if now == nil {
		now = f.Clock.NowFunc()
	}
	return application.NewAuthServiceWithLogger(
		deps.PasswordHash,
		token,
		now,
		deps.SessionTTL,
		deps.Logger,
	)
}

// SyncServiceDeps captures dependencies for constructing a sync service.
type SyncServiceDeps struct {
	Deps        application.SyncDeps
	Config      application.SyncConfig
	IDGenerator func() string
	Now         func() time.Time
	Logger      *slog.Logger
}

// NewSyncService builds a sync service using the supplied dependencies
// combined with the factory defaults.
func (f *ServiceFactory) NewSyncService(deps SyncServiceDeps) *application.SyncService {
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = f.IDGenerator.NextFunc()
	}
	now := deps.Now
	if now == nil {
		now = f.Clock.NowFunc()
	}
	return application.NewSyncServiceWithLogger(
		deps.Deps,
		deps.Config,
		idGen,
		now,
		deps.Logger,
	)
}
