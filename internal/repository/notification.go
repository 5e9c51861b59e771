package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"debtster/internal/domain"
)

type NotificationsFilter struct {
	UserID     *int64
	UnreadOnly bool
	Limit      int64
}

type NotificationRepository struct {
	db *sql.DB
}

func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

const notificationColumns = `
	n.id,
	n.user_id,
	n.type,
	n.message,
	n.debt_id,
	n.payment_id,
	n.is_read,
	n.created_at
`

func scanNotification(row interface{ Scan(...any) error }) (*domain.Notification, error) {
	var n domain.Notification
	if err := row.Scan(
		&n.ID,
		&n.UserID,
		&n.Type,
		&n.Message,
		&n.DebtID,
		&n.PaymentID,
		&n.IsRead,
		&n.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *NotificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	query := `
		INSERT INTO notifications (user_id, type, message, debt_id, payment_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, is_read, created_at
	`

	return conn(ctx, r.db).QueryRowContext(ctx, query,
		n.UserID,
		n.Type,
		n.Message,
		n.DebtID,
		n.PaymentID,
	).Scan(&n.ID, &n.IsRead, &n.CreatedAt)
}

func (r *NotificationRepository) List(ctx context.Context, f NotificationsFilter) ([]domain.Notification, error) {
	where := []string{"1=1"}
	args := []any{}
	i := 1

	if f.UserID != nil {
		where = append(where, fmt.Sprintf("n.user_id = $%d", i))
		args = append(args, *f.UserID)
		i++
	}
	if f.UnreadOnly {
		where = append(where, "NOT n.is_read")
	}

	query := "SELECT " + notificationColumns + " FROM notifications n WHERE " +
		strings.Join(where, " AND ") + " ORDER BY n.created_at DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", i)
		args = append(args, f.Limit)
	}

	rows, err := conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *NotificationRepository) ByID(ctx context.Context, id int64) (*domain.Notification, error) {
	query := "SELECT " + notificationColumns + " FROM notifications n WHERE n.id = $1"

	n, err := scanNotification(conn(ctx, r.db).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return n, nil
}

func (r *NotificationRepository) CountUnread(ctx context.Context, userID int64) (int64, error) {
	var n int64
	err := conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND NOT is_read`, userID).Scan(&n)
	return n, err
}

func (r *NotificationRepository) MarkRead(ctx context.Context, id, userID int64) (bool, error) {
	res, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID int64) error {
	_, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND NOT is_read`, userID)
	return err
}

func (r *NotificationRepository) Delete(ctx context.Context, id, userID int64) (bool, error) {
	res, err := conn(ctx, r.db).ExecContext(ctx,
		`DELETE FROM notifications WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *NotificationRepository) DeleteAll(ctx context.Context, userID int64) error {
	_, err := conn(ctx, r.db).ExecContext(ctx,
		`DELETE FROM notifications WHERE user_id = $1`, userID)
	return err
}
