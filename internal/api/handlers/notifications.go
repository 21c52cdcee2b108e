package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/stockmonitor/monthend/internal/contracts"
	"github.com/stockmonitor/monthend/pkg/logger"
)

// NotificationHandler handles notification API endpoints
type NotificationHandler struct {
	notifications contracts.NotificationRepository
	logger        *logger.Logger
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler(notifications contracts.NotificationRepository, log *logger.Logger) *NotificationHandler {
	return &NotificationHandler{
		notifications: notifications,
		logger:        log,
	}
}

// List returns the caller's notifications, newest first
// GET /api/notifications?unread=true&limit=50
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		respondError(w, http.StatusBadRequest, "Missing user id")
		return
	}

	unreadOnly := r.URL.Query().Get("unread") == "true"
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	notifications, err := h.notifications.ListByUser(r.Context(), uid, unreadOnly, limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list notifications")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve notifications")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": notifications,
		"count":         len(notifications),
	})
}

// MarkRead marks one notification as read
// POST /api/notifications/{id}/read
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		respondError(w, http.StatusBadRequest, "Missing user id")
		return
	}
	id := mux.Vars(r)["id"]

	if err := h.notifications.MarkRead(r.Context(), uid, id); err != nil {
		respondError(w, http.StatusNotFound, "Notification not found or already read")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// MarkAllRead marks every unread notification as read
// POST /api/notifications/read-all
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		respondError(w, http.StatusBadRequest, "Missing user id")
		return
	}

	count, err := h.notifications.MarkAllRead(r.Context(), uid)
	if err != nil {
		h.logger.WithError(err).Error("Failed to mark notifications read")
		respondError(w, http.StatusInternalServerError, "Failed to mark notifications read")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"marked": count,
	})
}
