package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/staffhub/notifications/internal/domain"
	"github.com/staffhub/notifications/internal/logger"
	"github.com/staffhub/notifications/internal/service"
)

// NotificationHandler handles the receiver-facing notification endpoints
type NotificationHandler struct {
	notificationService *service.NotificationService
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler(notificationService *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{
		notificationService: notificationService,
	}
}

// MarkResponse acknowledges a mark operation
type MarkResponse struct {
	Updated int64 `json:"updated"`
}

// List handles GET /api/v1/notifications
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	receiver, ok := receiverFrom(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	req, err := parseListRequest(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.notificationService.List(r.Context(), receiver, req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

// UnreadCount handles GET /api/v1/notifications/unread-count
func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	receiver, ok := receiverFrom(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	count, err := h.notificationService.UnreadCount(r.Context(), receiver)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, domain.UnreadCountResponse{UnreadCount: count})
}

// MarkDelivered handles POST /api/v1/notifications/mark-delivered
func (h *NotificationHandler) MarkDelivered(w http.ResponseWriter, r *http.Request) {
	receiver, ok := receiverFrom(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req domain.MarkNotificationsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.notificationService.MarkDelivered(r.Context(), receiver, req.NotificationIDs)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, MarkResponse{Updated: updated})
}

// MarkSeen handles POST /api/v1/notifications/mark-seen. An empty body or
// id list marks everything seen.
func (h *NotificationHandler) MarkSeen(w http.ResponseWriter, r *http.Request) {
	receiver, ok := receiverFrom(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req domain.MarkNotificationsRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.notificationService.MarkSeen(r.Context(), receiver, req.NotificationIDs)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, MarkResponse{Updated: updated})
}

func (h *NotificationHandler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidPagination),
		errors.Is(err, service.ErrInvalidIDs),
		errors.Is(err, service.ErrInvalidReceiver):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		logger.From(r.Context()).Error("notification request failed", slog.Any("error", err))
		respondError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func parseListRequest(r *http.Request) (domain.NotificationListRequest, error) {
	var req domain.NotificationListRequest
	q := r.URL.Query()

	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			return req, service.ErrInvalidPagination
		}
		if limit == 0 {
			return req, service.ErrInvalidPagination
		}
		req.Limit = limit
	}

	if v := q.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil {
			return req, service.ErrInvalidPagination
		}
		req.Offset = offset
	}

	if v := q.Get("unreadOnly"); v != "" {
		unreadOnly, err := strconv.ParseBool(v)
		if err != nil {
			return req, errors.New("unreadOnly must be a boolean")
		}
		req.UnreadOnly = unreadOnly
	}

	return req, nil
}
