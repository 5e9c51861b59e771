package rest

import (
	"context"
	"net/http"

	"debtster/internal/transport/auth"
)

func (h *Handler) listNotifications(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		ErrorUnauthorized(w, "Unauthorized")
		return
	}

	inbox, err := h.notifications.Inbox(r.Context(), userID, queryBool(r, "unread"), queryInt64(r, "limit", 0))
	if err != nil {
		ErrorFrom(w, err)
		return
	}

	Success(w, "", map[string]interface{}{
		"notifications": toNotificationListJSON(inbox.Notifications),
		"unread_count":  inbox.UnreadCount,
	})
}

func (h *Handler) markNotificationRead(w http.ResponseWriter, r *http.Request) {
	h.notificationByID(w, r, h.notifications.MarkRead, "notification marked as read")
}

func (h *Handler) deleteNotification(w http.ResponseWriter, r *http.Request) {
	h.notificationByID(w, r, h.notifications.Delete, "notification deleted")
}

func (h *Handler) notificationByID(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, userID, id int64) error,
	message string,
) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		ErrorUnauthorized(w, "Unauthorized")
		return
	}
	id, err := urlID(r, "id")
	if err != nil {
		ErrorBadRequest(w, err.Error())
		return
	}

	if err := op(r.Context(), userID, id); err != nil {
		ErrorFrom(w, err)
		return
	}
	Success(w, message, nil)
}

func (h *Handler) markAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		ErrorUnauthorized(w, "Unauthorized")
		return
	}

	if err := h.notifications.MarkAllRead(r.Context(), userID); err != nil {
		ErrorFrom(w, err)
		return
	}
	Success(w, "all notifications marked as read", nil)
}

func (h *Handler) deleteAllNotifications(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		ErrorUnauthorized(w, "Unauthorized")
		return
	}

	if err := h.notifications.DeleteAll(r.Context(), userID); err != nil {
		ErrorFrom(w, err)
		return
	}
	Success(w, "all notifications deleted", nil)
}
