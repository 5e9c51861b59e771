package service

import (
	"context"

	"debtster/internal/domain"
	"debtster/internal/repository"
)

type NotificationQueries interface {
	List(ctx context.Context, f repository.NotificationsFilter) ([]domain.Notification, error)
	CountUnread(ctx context.Context, userID int64) (int64, error)
	MarkRead(ctx context.Context, id, userID int64) (bool, error)
	MarkAllRead(ctx context.Context, userID int64) error
	Delete(ctx context.Context, id, userID int64) (bool, error)
	DeleteAll(ctx context.Context, userID int64) error
}

// NotificationService manages a recipient's inbox. Rows are created only by
// LifecycleService; here they are read, flagged and deleted.
type NotificationService struct {
	notifications NotificationQueries
}

func NewNotificationService(notifications NotificationQueries) *NotificationService {
	return &NotificationService{notifications: notifications}
}

type Inbox struct {
	Notifications []domain.Notification
	UnreadCount   int64
}

func (s *NotificationService) Inbox(ctx context.Context, userID int64, unreadOnly bool, limit int64) (*Inbox, error) {
	list, err := s.notifications.List(ctx, repository.NotificationsFilter{
		UserID:     &userID,
		UnreadOnly: unreadOnly,
		Limit:      limit,
	})
	if err != nil {
		return nil, domain.Persistence("list notifications", err)
	}

	unread, err := s.notifications.CountUnread(ctx, userID)
	if err != nil {
		return nil, domain.Persistence("count unread", err)
	}

	return &Inbox{Notifications: list, UnreadCount: unread}, nil
}

// MarkRead flips the read flag. Scoped to the recipient, so a foreign id
// reads as missing rather than forbidden.
func (s *NotificationService) MarkRead(ctx context.Context, userID, id int64) error {
	ok, err := s.notifications.MarkRead(ctx, id, userID)
	if err != nil {
		return domain.Persistence("mark read", err)
	}
	if !ok {
		return domain.NotFound("notification")
	}
	return nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID int64) error {
	if err := s.notifications.MarkAllRead(ctx, userID); err != nil {
		return domain.Persistence("mark all read", err)
	}
	return nil
}

func (s *NotificationService) Delete(ctx context.Context, userID, id int64) error {
	ok, err := s.notifications.Delete(ctx, id, userID)
	if err != nil {
		return domain.Persistence("delete notification", err)
	}
	if !ok {
		return domain.NotFound("notification")
	}
	return nil
}

func (s *NotificationService) DeleteAll(ctx context.Context, userID int64) error {
	if err := s.notifications.DeleteAll(ctx, userID); err != nil {
		return domain.Persistence("delete notifications", err)
	}
	return nil
}
