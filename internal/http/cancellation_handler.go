package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/doorsync/internal/application"
	"github.com/example/doorsync/internal/persistence"
)

type cancellationService interface {
	List(ctx context.Context) ([]persistence.CancelledEvent, error)
	Cancel(ctx context.Context, entry persistence.CancelledEvent) error
	Restore(ctx context.Context, id string) error
}

// CancellationHandler manages the per-instance exclusion list.
type CancellationHandler struct {
	service   cancellationService
	responder responder
	logger    *slog.Logger
}

func NewCancellationHandler(service cancellationService, logger *slog.Logger) *CancellationHandler {
	base := defaultLogger(logger)
	return &CancellationHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *CancellationHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "CancellationHandler", operation, attrs...)
}

func (h *CancellationHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	logger := h.log(r.Context(), "List")

	entries, err := h.service.List(r.Context())
	if err != nil {
		logger.ErrorContext(r.Context(), "cancellation list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, cancellationsResponse{Cancelled: entries})
}

func (h *CancellationHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Create", "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode cancellation", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	entry := req.toEntry()
	logger := h.log(r.Context(), "Create", "event_id", entry.ID, "event_name", entry.Name)

	if err := h.service.Cancel(r.Context(), entry); err != nil {
		logger.ErrorContext(r.Context(), "cancellation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "event instance cancelled")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, nil)
}

func (h *CancellationHandler) Restore(w http.ResponseWriter, r *http.Request, id string) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		h.log(r.Context(), "Restore", "error_kind", "bad_request").ErrorContext(r.Context(), "missing cancellation id")
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidCancelID)
		return
	}

	logger := h.log(r.Context(), "Restore", "event_id", trimmed)

	if err := h.service.Restore(r.Context(), trimmed); err != nil {
		logger.ErrorContext(r.Context(), "restore failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "event instance restored")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

type cancelRequest struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	StartAt time.Time `json:"startAt"`
	EndAt   time.Time `json:"endAt"`
}

func (c cancelRequest) toEntry() persistence.CancelledEvent {
	return persistence.CancelledEvent{
		ID:      strings.TrimSpace(c.ID),
		Name:    strings.TrimSpace(c.Name),
		StartAt: c.StartAt,
		EndAt:   c.EndAt,
	}
}

type cancellationsResponse struct {
	Cancelled []persistence.CancelledEvent `json:"cancelled"`
}
