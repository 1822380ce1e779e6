package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/example/doorsync/internal/application"
	"github.com/example/doorsync/internal/persistence"
)

type overrideService interface {
	Get(ctx context.Context) (persistence.EventOverrides, error)
	Update(ctx context.Context, overrides persistence.EventOverrides) error
}

// OverrideHandler exchanges the per-event override document in its file
// schema.
type OverrideHandler struct {
	service   overrideService
	responder responder
	logger    *slog.Logger
}

func NewOverrideHandler(service overrideService, logger *slog.Logger) *OverrideHandler {
	base := defaultLogger(logger)
	return &OverrideHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *OverrideHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "OverrideHandler", operation, attrs...)
}

func (h *OverrideHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	logger := h.log(r.Context(), "Get")

	overrides, err := h.service.Get(r.Context())
	if err != nil {
		logger.ErrorContext(r.Context(), "override load failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, overrides)
}

func (h *OverrideHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var overrides persistence.EventOverrides
	if err := json.NewDecoder(r.Body).Decode(&overrides); err != nil {
		h.log(r.Context(), "Update", "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode overrides", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Update", "event_count", len(overrides))

	if err := h.service.Update(r.Context(), overrides); err != nil {
		logger.ErrorContext(r.Context(), "override update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	stored, err := h.service.Get(r.Context())
	if err != nil {
		logger.ErrorContext(r.Context(), "override readback failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "overrides updated")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, stored)
}
