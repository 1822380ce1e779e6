package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/doorsync/internal/application"
	"github.com/example/doorsync/internal/persistence"
)

type approvalService interface {
	ListPending(ctx context.Context) ([]persistence.PendingApproval, error)
	Approve(ctx context.Context, id string) error
	Deny(ctx context.Context, id string) error
	GetSafeHours(ctx context.Context) (persistence.SafeHours, error)
	UpdateSafeHours(ctx context.Context, safe persistence.SafeHours) error
	GetApprovedNames(ctx context.Context) (persistence.ApprovedNames, error)
	UpdateApprovedNames(ctx context.Context, names persistence.ApprovedNames) error
}

// ApprovalHandler serves the pending-approval queue plus the two operator
// documents the gate reads, safe hours and the approved-name allow list.
type ApprovalHandler struct {
	service   approvalService
	responder responder
	logger    *slog.Logger
}

func NewApprovalHandler(service approvalService, logger *slog.Logger) *ApprovalHandler {
	base := defaultLogger(logger)
	return &ApprovalHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *ApprovalHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "ApprovalHandler", operation, attrs...)
}

func (h *ApprovalHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	logger := h.log(r.Context(), "List")

	pending, err := h.service.ListPending(r.Context())
	if err != nil {
		logger.ErrorContext(r.Context(), "pending list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, pendingResponse{Pending: pending})
}

func (h *ApprovalHandler) Approve(w http.ResponseWriter, r *http.Request, id string) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		h.log(r.Context(), "Approve", "error_kind", "bad_request").ErrorContext(r.Context(), "missing approval id")
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidApprovalID)
		return
	}

	logger := h.log(r.Context(), "Approve", "approval_id", trimmed)

	if err := h.service.Approve(r.Context(), trimmed); err != nil {
		logger.ErrorContext(r.Context(), "approval failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "event approved")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *ApprovalHandler) Deny(w http.ResponseWriter, r *http.Request, id string) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		h.log(r.Context(), "Deny", "error_kind", "bad_request").ErrorContext(r.Context(), "missing approval id")
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidApprovalID)
		return
	}

	logger := h.log(r.Context(), "Deny", "approval_id", trimmed)

	if err := h.service.Deny(r.Context(), trimmed); err != nil {
		logger.ErrorContext(r.Context(), "denial failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "event denied")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *ApprovalHandler) GetSafeHours(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	logger := h.log(r.Context(), "GetSafeHours")

	safe, err := h.service.GetSafeHours(r.Context())
	if err != nil {
		logger.ErrorContext(r.Context(), "safe hours load failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, safe)
}

func (h *ApprovalHandler) UpdateSafeHours(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var safe persistence.SafeHours
	if err := json.NewDecoder(r.Body).Decode(&safe); err != nil {
		h.log(r.Context(), "UpdateSafeHours", "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode safe hours", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "UpdateSafeHours")

	if err := h.service.UpdateSafeHours(r.Context(), safe); err != nil {
		logger.ErrorContext(r.Context(), "safe hours update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	stored, err := h.service.GetSafeHours(r.Context())
	if err != nil {
		logger.ErrorContext(r.Context(), "safe hours readback failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "safe hours updated")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, stored)
}

func (h *ApprovalHandler) GetApprovedNames(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	logger := h.log(r.Context(), "GetApprovedNames")

	names, err := h.service.GetApprovedNames(r.Context())
	if err != nil {
		logger.ErrorContext(r.Context(), "approved names load failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, names)
}

func (h *ApprovalHandler) UpdateApprovedNames(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var names persistence.ApprovedNames
	if err := json.NewDecoder(r.Body).Decode(&names); err != nil {
		h.log(r.Context(), "UpdateApprovedNames", "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode approved names", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "UpdateApprovedNames", "name_count", len(names.Names))

	if err := h.service.UpdateApprovedNames(r.Context(), names); err != nil {
		logger.ErrorContext(r.Context(), "approved names update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	stored, err := h.service.GetApprovedNames(r.Context())
	if err != nil {
		logger.ErrorContext(r.Context(), "approved names readback failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "approved names updated")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, stored)
}

type pendingResponse struct {
	Pending []persistence.PendingApproval `json:"pending"`
}
