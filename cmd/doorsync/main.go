package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/example/doorsync/internal/application"
	"github.com/example/doorsync/internal/config"
	httptransport "github.com/example/doorsync/internal/http"
	"github.com/example/doorsync/internal/interval"
	"github.com/example/doorsync/internal/logging"
	"github.com/example/doorsync/internal/notify"
	"github.com/example/doorsync/internal/pco"
	"github.com/example/doorsync/internal/persistence/jsonfile"
	"github.com/example/doorsync/internal/runner"
	"github.com/example/doorsync/internal/schedule"
	"github.com/example/doorsync/internal/unifi"
	"github.com/example/doorsync/internal/watch"
)

func main() {
	// Values from a .env file fill gaps in the environment; real environment
	// variables win.
	_ = godotenv.Load()

	logger := logging.NewLogger(os.Stderr, "info", "json")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger = logging.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	passwordHash := cfg.DashboardPasswordHash
	if passwordHash == "" && cfg.DashboardPassword != "" {
		passwordHash, err = application.CreatePasswordHash(cfg.DashboardPassword, application.DefaultArgon2idParams)
		if err != nil {
			logger.Error("failed to hash dashboard password", "error", err)
			os.Exit(1)
		}
	}

	calendarClient, err := pco.NewClient(pco.Config{
		BaseURL:          cfg.PCO.BaseURL,
		AppID:            cfg.PCO.AppID,
		Secret:           cfg.PCO.Secret,
		AccessToken:      cfg.PCO.AccessToken,
		Timeout:          cfg.PCO.Timeout,
		CacheTTL:         cfg.PCO.CacheTTL,
		MinFetchInterval: cfg.PCO.MinFetchInterval,
		MaxPages:         cfg.PCO.MaxPages,
		PerPage:          cfg.PCO.PerPage,
	}, logger)
	if err != nil {
		logger.Error("failed to build calendar client", "error", err)
		os.Exit(1)
	}

	controllerClient, err := unifi.NewClient(unifi.Config{
		BaseURL:   cfg.UniFi.BaseURL,
		APIToken:  cfg.UniFi.APIToken,
		Timeout:   cfg.UniFi.Timeout,
		VerifyTLS: cfg.UniFi.VerifyTLS,
	}, logger)
	if err != nil {
		logger.Error("failed to build controller client", "error", err)
		os.Exit(1)
	}

	now := time.Now
	idGenerator := uuid.NewString
	tokenGenerator := func() string { return randomHex(32) }

	store := jsonfile.New(cfg.Files)
	notifier := notify.NewTelegram(notify.Config{
		BotToken: cfg.TelegramBotToken,
		ChatIDs:  cfg.TelegramChatIDs,
	}, logger)

	mappingService := application.NewMappingServiceWithLogger(store, logger)
	officeHoursService := application.NewOfficeHoursServiceWithLogger(store, mappingService, logger)
	overrideService := application.NewOverrideServiceWithLogger(store, mappingService, logger)
	memoryService := application.NewMemoryServiceWithLogger(store, logger)
	cancellationService := application.NewCancellationServiceWithLogger(store, now, logger)
	approvalService := application.NewApprovalServiceWithLogger(store, store, store, notifier, now, cfg.DisplayZone, logger)
	authService := application.NewAuthServiceWithLogger(passwordHash, tokenGenerator, now, cfg.SessionTTL, logger)

	syncService := application.NewSyncServiceWithLogger(application.SyncDeps{
		Mapping:       mappingService,
		OfficeHours:   officeHoursService,
		Overrides:     overrideService,
		Approvals:     approvalService,
		Memory:        memoryService,
		Cancellations: cancellationService,
		ApplyState:    store,
		Calendar:      newCalendarAdapter(calendarClient),
		Controller:    newControllerAdapter(controllerClient),
		Notifier:      notifier,
	}, application.SyncConfig{
		Lookahead:           cfg.Lookahead,
		Lookbehind:          cfg.Lookbehind,
		LocationMustContain: cfg.PCO.LocationMustContain,
		Zone:                cfg.DisplayZone,
		InitialApplyMode:    cfg.InitialApplyMode,
	}, idGenerator, now, logger)

	routerCfg := httptransport.RouterConfig{
		Sync:          httptransport.NewSyncHandler(syncService, logger),
		Approvals:     httptransport.NewApprovalHandler(approvalService, logger),
		Cancellations: httptransport.NewCancellationHandler(cancellationService, logger),
		Mapping:       httptransport.NewMappingHandler(mappingService, logger),
		OfficeHours:   httptransport.NewOfficeHoursHandler(officeHoursService, logger),
		Overrides:     httptransport.NewOverrideHandler(overrideService, logger),
		Memory:        httptransport.NewMemoryHandler(memoryService, logger),
		Middleware: []func(http.Handler) http.Handler{
			httptransport.RequestLogger(logger),
		},
	}
	if authService.Enabled() {
		routerCfg.Sessions = httptransport.NewSessionHandler(authService, logger)
		routerCfg.RequireSession = httptransport.RequireSession(authService, logger)
	} else {
		logger.Warn("dashboard authentication disabled; set DASHBOARD_PASSWORD to enable it")
	}

	syncRunner := runner.New(syncService, runner.Config{
		Spec:         cfg.SyncSpec,
		StartupDelay: cfg.StartupDelay,
		Zone:         cfg.DisplayZone,
	}, logger)
	if err := syncRunner.Start(ctx); err != nil {
		logger.Error("failed to start sync runner", "error", err)
		os.Exit(1)
	}
	defer syncRunner.Stop()

	if cfg.WatchOperatorFiles {
		watcher := watch.New(syncRunner, watch.Config{Paths: cfg.OperatorFiles()}, logger)
		if err := watcher.Start(ctx); err != nil {
			// Edits still land on the next scheduled cycle, so a broken
			// watcher is not fatal.
			logger.Error("failed to start file watcher", "error", err)
		} else {
			defer watcher.Stop()
		}
	}

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httptransport.NewRouter(routerCfg),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("dashboard API listening",
		"addr", server.Addr,
		"sync_spec", cfg.SyncSpec,
		"apply_to_unifi", cfg.InitialApplyMode,
	)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server encountered error", "error", err)
		os.Exit(1)
	}
}

func randomHex(bytes int) string {
	if bytes <= 0 {
		bytes = 16
	}
	buf := make([]byte, bytes)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return fmt.Sprintf("fallback-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}

// calendarAdapter bridges the calendar client to the orchestrator's
// interface, translating client errors into application sentinels so the
// dashboard can distinguish rate limiting from plain upstream failure.
type calendarAdapter struct {
	client *pco.Client
}

func newCalendarAdapter(client *pco.Client) *calendarAdapter {
	return &calendarAdapter{client: client}
}

func (a *calendarAdapter) FetchWindow(ctx context.Context, from, to time.Time) ([]schedule.Event, error) {
	events, err := a.client.FetchWindow(ctx, from, to)
	if err != nil {
		return nil, mapCalendarError(err)
	}
	return toScheduleEvents(events), nil
}

func (a *calendarAdapter) CheckConnectivity(ctx context.Context) error {
	if err := a.client.CheckConnectivity(ctx); err != nil {
		return mapCalendarError(err)
	}
	return nil
}

func (a *calendarAdapter) Stats() application.CalendarStats {
	stats := a.client.Stats()
	return application.CalendarStats{
		CacheHitReturns:         stats.CacheHitReturns,
		MinIntervalCacheReturns: stats.MinIntervalCacheReturns,
		LiveWindowFetches:       stats.LiveWindowFetches,
		EventInstanceRequests:   stats.EventInstanceRequests,
		ResourceBookingRequests: stats.ResourceBookingRequests,
		RateLimitFallbacks:      stats.RateLimitFallbacks,
		LastLiveFetchAt:         stats.LastLiveFetchAt,
		LastCacheHitAt:          stats.LastCacheHitAt,
		LastRateLimitFallbackAt: stats.LastRateLimitFallbackAt,
	}
}

func mapCalendarError(err error) error {
	if errors.Is(err, pco.ErrRateLimited) {
		return fmt.Errorf("%w: %v", application.ErrRateLimited, err)
	}
	return fmt.Errorf("%w: %v", application.ErrUpstreamUnavailable, err)
}

func toScheduleEvents(events []pco.Event) []schedule.Event {
	if len(events) == 0 {
		return nil
	}
	out := make([]schedule.Event, 0, len(events))
	for _, event := range events {
		out = append(out, schedule.Event{
			ID:       event.ID,
			Name:     event.Name,
			Room:     event.Room,
			Building: event.Building,
			Location: event.LocationRaw,
			StartAt:  event.StartAt,
			EndAt:    event.EndAt,
		})
	}
	return out
}

// controllerAdapter bridges the controller client to the applier's
// interface. The applier attaches its own sentinels to write failures, so
// only the not-found case is translated here.
type controllerAdapter struct {
	client *unifi.Client
}

func newControllerAdapter(client *unifi.Client) *controllerAdapter {
	return &controllerAdapter{client: client}
}

func (a *controllerAdapter) ListSchedules(ctx context.Context) ([]application.RemoteSchedule, error) {
	schedules, err := a.client.ListSchedules(ctx)
	if err != nil {
		return nil, mapControllerError(err)
	}
	out := make([]application.RemoteSchedule, 0, len(schedules))
	for _, s := range schedules {
		out = append(out, application.RemoteSchedule{ID: s.ID, Name: s.Name, Week: s.Week})
	}
	return out, nil
}

func (a *controllerAdapter) UpdateScheduleWeek(ctx context.Context, id string, week interval.Weekly) error {
	if err := a.client.UpdateScheduleWeek(ctx, id, week); err != nil {
		return mapControllerError(err)
	}
	return nil
}

func (a *controllerAdapter) ListPolicies(ctx context.Context) ([]application.RemotePolicy, error) {
	policies, err := a.client.ListPolicies(ctx)
	if err != nil {
		return nil, mapControllerError(err)
	}
	out := make([]application.RemotePolicy, 0, len(policies))
	for _, p := range policies {
		out = append(out, application.RemotePolicy{
			ID:         p.ID,
			Name:       p.Name,
			ScheduleID: p.ScheduleID,
			DoorIDs:    p.DoorIDs,
		})
	}
	return out, nil
}

func (a *controllerAdapter) CreatePolicy(ctx context.Context, name, scheduleID string, doorIDs []string) (application.RemotePolicy, error) {
	policy, err := a.client.CreatePolicy(ctx, name, scheduleID, doorIDs)
	if err != nil {
		return application.RemotePolicy{}, mapControllerError(err)
	}
	return application.RemotePolicy{
		ID:         policy.ID,
		Name:       policy.Name,
		ScheduleID: policy.ScheduleID,
		DoorIDs:    policy.DoorIDs,
	}, nil
}

func (a *controllerAdapter) DeletePolicy(ctx context.Context, id string) error {
	if err := a.client.DeletePolicy(ctx, id); err != nil {
		return mapControllerError(err)
	}
	return nil
}

func (a *controllerAdapter) ListDoors(ctx context.Context) ([]application.RemoteDoor, error) {
	doors, err := a.client.ListDoors(ctx)
	if err != nil {
		return nil, mapControllerError(err)
	}
	out := make([]application.RemoteDoor, 0, len(doors))
	for _, d := range doors {
		out = append(out, application.RemoteDoor{ID: d.ID, Name: d.Name, FullName: d.FullName})
	}
	return out, nil
}

func (a *controllerAdapter) CheckConnectivity(ctx context.Context) error {
	if err := a.client.CheckConnectivity(ctx); err != nil {
		return mapControllerError(err)
	}
	return nil
}

func mapControllerError(err error) error {
	if errors.Is(err, unifi.ErrNotFound) {
		return fmt.Errorf("%w: %v", application.ErrNotFound, err)
	}
	return err
}
