package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/example/doorsync/internal/application"
	"github.com/example/doorsync/internal/persistence"
)

type officeHoursService interface {
	Get(ctx context.Context) (persistence.OfficeHours, error)
	Update(ctx context.Context, hours persistence.OfficeHours) error
}

// OfficeHoursHandler exchanges the weekly building-hours document in its file
// schema.
type OfficeHoursHandler struct {
	service   officeHoursService
	responder responder
	logger    *slog.Logger
}

func NewOfficeHoursHandler(service officeHoursService, logger *slog.Logger) *OfficeHoursHandler {
	base := defaultLogger(logger)
	return &OfficeHoursHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *OfficeHoursHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "OfficeHoursHandler", operation, attrs...)
}

func (h *OfficeHoursHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	logger := h.log(r.Context(), "Get")

	hours, err := h.service.Get(r.Context())
	if err != nil {
		logger.ErrorContext(r.Context(), "office hours load failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, hours)
}

func (h *OfficeHoursHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var hours persistence.OfficeHours
	if err := json.NewDecoder(r.Body).Decode(&hours); err != nil {
		h.log(r.Context(), "Update", "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode office hours", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Update", "enabled", hours.Enabled, "day_count", len(hours.Schedule))

	if err := h.service.Update(r.Context(), hours); err != nil {
		logger.ErrorContext(r.Context(), "office hours update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	stored, err := h.service.Get(r.Context())
	if err != nil {
		logger.ErrorContext(r.Context(), "office hours readback failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "office hours updated")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, stored)
}
