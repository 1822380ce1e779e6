package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/example/doorsync/internal/application"
	"github.com/example/doorsync/internal/persistence"
)

type mappingService interface {
	Get(ctx context.Context) (persistence.RoomDoorMapping, error)
	Update(ctx context.Context, mapping persistence.RoomDoorMapping) error
}

// MappingHandler exchanges the room-door mapping document in its file schema.
// Door order is preserved through the document's own JSON codec.
type MappingHandler struct {
	service   mappingService
	responder responder
	logger    *slog.Logger
}

func NewMappingHandler(service mappingService, logger *slog.Logger) *MappingHandler {
	base := defaultLogger(logger)
	return &MappingHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *MappingHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "MappingHandler", operation, attrs...)
}

func (h *MappingHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	logger := h.log(r.Context(), "Get")

	mapping, err := h.service.Get(r.Context())
	if err != nil {
		logger.ErrorContext(r.Context(), "mapping load failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, mapping)
}

func (h *MappingHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var mapping persistence.RoomDoorMapping
	if err := json.NewDecoder(r.Body).Decode(&mapping); err != nil {
		h.log(r.Context(), "Update", "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode mapping", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Update", "door_count", len(mapping.Doors), "room_count", len(mapping.Rooms))

	if err := h.service.Update(r.Context(), mapping); err != nil {
		logger.ErrorContext(r.Context(), "mapping update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	stored, err := h.service.Get(r.Context())
	if err != nil {
		logger.ErrorContext(r.Context(), "mapping readback failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "mapping updated")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, stored)
}
