package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/doorsync/internal/application"
	"github.com/example/doorsync/internal/schedule"
)

type syncService interface {
	RunOnce(ctx context.Context, trigger string) (application.SyncResult, error)
	Status(ctx context.Context) (application.StatusSnapshot, error)
	Preview(ctx context.Context) ([]schedule.DisplayItem, error)
	UpcomingPreview(ctx context.Context) ([]schedule.DisplayItem, error)
	SetApplyMode(ctx context.Context, enabled bool) error
	ApplyMode(ctx context.Context) (bool, error)
	Doors(ctx context.Context) ([]application.RemoteDoor, error)
}

// SyncHandler exposes the orchestrator: status, manual runs, previews, the
// apply switch, and remote door discovery.
type SyncHandler struct {
	service   syncService
	responder responder
	logger    *slog.Logger
}

func NewSyncHandler(service syncService, logger *slog.Logger) *SyncHandler {
	base := defaultLogger(logger)
	return &SyncHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *SyncHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "SyncHandler", operation, attrs...)
}

func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	logger := h.log(r.Context(), "Status")

	snapshot, err := h.service.Status(r.Context())
	if err != nil {
		logger.ErrorContext(r.Context(), "status lookup failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toStatusDTO(snapshot))
}

// Run executes one sync cycle synchronously. A cycle already in flight
// surfaces as 409 so dashboard buttons cannot stack runs.
func (h *SyncHandler) Run(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	logger := h.log(r.Context(), "Run")

	result, err := h.service.RunOnce(r.Context(), "manual")
	if err != nil {
		logger.ErrorContext(r.Context(), "manual sync rejected", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("run_id", result.RunID, "summary", result.Summary).InfoContext(r.Context(), "manual sync finished")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toSyncResultDTO(result))
}

func (h *SyncHandler) Preview(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	logger := h.log(r.Context(), "Preview")

	items, err := h.service.Preview(r.Context())
	if err != nil {
		logger.ErrorContext(r.Context(), "preview failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, previewResponse{Items: toDisplayItemDTOs(items)})
}

func (h *SyncHandler) UpcomingPreview(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	logger := h.log(r.Context(), "UpcomingPreview")

	items, err := h.service.UpcomingPreview(r.Context())
	if err != nil {
		logger.ErrorContext(r.Context(), "upcoming preview failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("result_count", len(items)).InfoContext(r.Context(), "upcoming preview computed")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, previewResponse{Items: toDisplayItemDTOs(items)})
}

func (h *SyncHandler) SetApplyMode(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req applyModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "SetApplyMode", "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode apply mode request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "SetApplyMode", "apply_to_unifi", req.ApplyToUnifi)

	if err := h.service.SetApplyMode(r.Context(), req.ApplyToUnifi); err != nil {
		logger.ErrorContext(r.Context(), "apply mode update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	enabled, err := h.service.ApplyMode(r.Context())
	if err != nil {
		logger.ErrorContext(r.Context(), "apply mode readback failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "apply mode updated")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, applyModeResponse{ApplyToUnifi: enabled})
}

func (h *SyncHandler) Doors(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	logger := h.log(r.Context(), "Doors")

	doors, err := h.service.Doors(r.Context())
	if err != nil {
		logger.ErrorContext(r.Context(), "door discovery failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("result_count", len(doors)).InfoContext(r.Context(), "doors listed")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, doorsResponse{Doors: toDoorDTOs(doors)})
}

type applyModeRequest struct {
	ApplyToUnifi bool `json:"applyToUnifi"`
}

type applyModeResponse struct {
	ApplyToUnifi bool `json:"applyToUnifi"`
}

type previewResponse struct {
	Items []displayItemDTO `json:"items"`
}

type doorsResponse struct {
	Doors []doorDTO `json:"doors"`
}

type statusDTO struct {
	LastSyncAt     *string          `json:"lastSyncAt"`
	LastRunID      string           `json:"lastRunId,omitempty"`
	LastTrigger    string           `json:"lastTrigger,omitempty"`
	LastDurationMs int64            `json:"lastDurationMs"`
	LastSyncResult string           `json:"lastSyncResult,omitempty"`
	RecentErrors   []string         `json:"recentErrors,omitempty"`
	Counts         countsDTO        `json:"counts"`
	Calendar       connectivityDTO  `json:"calendar"`
	Controller     connectivityDTO  `json:"controller"`
	ApplyToUnifi   bool             `json:"applyToUnifi"`
	SkippedRuns    uint64           `json:"skippedRuns"`
	CalendarStats  calendarStatsDTO `json:"calendarStats"`
}

type connectivityDTO struct {
	OK        bool   `json:"ok"`
	CheckedAt string `json:"checkedAt,omitempty"`
	Error     string `json:"error,omitempty"`
}

type countsDTO struct {
	EventsFetched int `json:"eventsFetched"`
	EventsDropped int `json:"eventsDropped"`
	EventsPassed  int `json:"eventsPassed"`
	EventsHeld    int `json:"eventsHeld"`
	DoorsApplied  int `json:"doorsApplied"`
	ScheduleItems int `json:"scheduleItems"`
}

type calendarStatsDTO struct {
	CacheHitReturns         uint64  `json:"cacheHitReturns"`
	MinIntervalCacheReturns uint64  `json:"minIntervalCacheReturns"`
	LiveWindowFetches       uint64  `json:"liveWindowFetches"`
	EventInstanceRequests   uint64  `json:"eventInstanceRequests"`
	ResourceBookingRequests uint64  `json:"resourceBookingRequests"`
	RateLimitFallbacks      uint64  `json:"rateLimitFallbacks"`
	LastLiveFetchAt         *string `json:"lastLiveFetchAt,omitempty"`
	LastCacheHitAt          *string `json:"lastCacheHitAt,omitempty"`
	LastRateLimitFallbackAt *string `json:"lastRateLimitFallbackAt,omitempty"`
}

type syncResultDTO struct {
	RunID      string           `json:"runId"`
	Trigger    string           `json:"trigger"`
	StartedAt  string           `json:"startedAt"`
	DurationMs int64            `json:"durationMs"`
	Summary    string           `json:"summary"`
	Counts     countsDTO        `json:"counts"`
	Errors     []string         `json:"errors,omitempty"`
	Items      []displayItemDTO `json:"items"`
}

type displayItemDTO struct {
	EventID   string `json:"eventId,omitempty"`
	Name      string `json:"name"`
	Room      string `json:"room,omitempty"`
	DoorKey   string `json:"doorKey"`
	DoorLabel string `json:"doorLabel"`
	StartAt   string `json:"startAt"`
	EndAt     string `json:"endAt"`
	Source    string `json:"source"`
}

type doorDTO struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	FullName string `json:"fullName,omitempty"`
}

func toStatusDTO(s application.StatusSnapshot) statusDTO {
	return statusDTO{
		LastSyncAt:     formatTimePtr(s.LastSyncAt),
		LastRunID:      s.LastRunID,
		LastTrigger:    s.LastTrigger,
		LastDurationMs: s.LastDuration.Milliseconds(),
		LastSyncResult: s.LastSyncResult,
		RecentErrors:   s.RecentErrors,
		Counts:         toCountsDTO(s.Counts),
		Calendar:       toConnectivityDTO(s.Calendar),
		Controller:     toConnectivityDTO(s.Controller),
		ApplyToUnifi:   s.ApplyToUnifi,
		SkippedRuns:    s.SkippedRuns,
		CalendarStats:  toCalendarStatsDTO(s.CalendarStats),
	}
}

func toConnectivityDTO(c application.ConnectivityStatus) connectivityDTO {
	dto := connectivityDTO{OK: c.OK, Error: c.Error}
	if !c.CheckedAt.IsZero() {
		dto.CheckedAt = c.CheckedAt.UTC().Format(time.RFC3339Nano)
	}
	return dto
}

func toCountsDTO(c application.SyncCounts) countsDTO {
	return countsDTO{
		EventsFetched: c.EventsFetched,
		EventsDropped: c.EventsDropped,
		EventsPassed:  c.EventsPassed,
		EventsHeld:    c.EventsHeld,
		DoorsApplied:  c.DoorsApplied,
		ScheduleItems: c.ScheduleItems,
	}
}

func toCalendarStatsDTO(s application.CalendarStats) calendarStatsDTO {
	return calendarStatsDTO{
		CacheHitReturns:         s.CacheHitReturns,
		MinIntervalCacheReturns: s.MinIntervalCacheReturns,
		LiveWindowFetches:       s.LiveWindowFetches,
		EventInstanceRequests:   s.EventInstanceRequests,
		ResourceBookingRequests: s.ResourceBookingRequests,
		RateLimitFallbacks:      s.RateLimitFallbacks,
		LastLiveFetchAt:         formatTimePtr(s.LastLiveFetchAt),
		LastCacheHitAt:          formatTimePtr(s.LastCacheHitAt),
		LastRateLimitFallbackAt: formatTimePtr(s.LastRateLimitFallbackAt),
	}
}

func toSyncResultDTO(r application.SyncResult) syncResultDTO {
	return syncResultDTO{
		RunID:      r.RunID,
		Trigger:    r.Trigger,
		StartedAt:  r.StartedAt.UTC().Format(time.RFC3339Nano),
		DurationMs: r.Duration.Milliseconds(),
		Summary:    r.Summary,
		Counts:     toCountsDTO(r.Counts),
		Errors:     r.Errors,
		Items:      toDisplayItemDTOs(r.Items),
	}
}

func toDisplayItemDTOs(items []schedule.DisplayItem) []displayItemDTO {
	out := make([]displayItemDTO, 0, len(items))
	for _, item := range items {
		out = append(out, displayItemDTO{
			EventID:   item.EventID,
			Name:      item.Name,
			Room:      item.Room,
			DoorKey:   item.DoorKey,
			DoorLabel: item.DoorLabel,
			StartAt:   item.StartAt.UTC().Format(time.RFC3339Nano),
			EndAt:     item.EndAt.UTC().Format(time.RFC3339Nano),
			Source:    string(item.Source),
		})
	}
	return out
}

func toDoorDTOs(doors []application.RemoteDoor) []doorDTO {
	out := make([]doorDTO, 0, len(doors))
	for _, door := range doors {
		out = append(out, doorDTO{ID: door.ID, Name: door.Name, FullName: door.FullName})
	}
	return out
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	formatted := t.UTC().Format(time.RFC3339Nano)
	return &formatted
}
