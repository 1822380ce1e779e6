package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/doorsync/internal/application"
	"github.com/example/doorsync/internal/persistence"
)

type memoryService interface {
	List(ctx context.Context, now time.Time) ([]persistence.MemoryEntry, error)
}

// MemoryHandler serves the event-memory listing the dashboard renders.
type MemoryHandler struct {
	service   memoryService
	responder responder
	logger    *slog.Logger
	now       func() time.Time
}

func NewMemoryHandler(service memoryService, logger *slog.Logger) *MemoryHandler {
	base := defaultLogger(logger)
	return &MemoryHandler{service: service, responder: newResponder(base), logger: base, now: time.Now}
}

func (h *MemoryHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "MemoryHandler", operation, attrs...)
}

func (h *MemoryHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	logger := h.log(r.Context(), "List")

	entries, err := h.service.List(r.Context(), h.now())
	if err != nil {
		logger.ErrorContext(r.Context(), "memory list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, memoryResponse{Memory: entries})
}

type memoryResponse struct {
	Memory []persistence.MemoryEntry `json:"memory"`
}
