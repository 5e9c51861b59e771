package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"debtster/internal/domain"
)

type ActivitiesFilter struct {
	UserID      *int64
	Action      *domain.ActivityAction
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int64
}

type ActivityRepository struct {
	db *sql.DB
}

func NewActivityRepository(db *sql.DB) *ActivityRepository {
	return &ActivityRepository{
		db: db,
	}
}

func (r *ActivityRepository) Create(ctx context.Context, a *domain.Activity) error {
	query := `
		INSERT INTO activity_log (user_id, action, description, related_id, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`

	return conn(ctx, r.db).QueryRowContext(ctx, query,
		a.UserID,
		a.Action,
		a.Description,
		a.RelatedID,
		a.IPAddress,
		a.UserAgent,
	).Scan(&a.ID, &a.CreatedAt)
}

func (r *ActivityRepository) List(ctx context.Context, f ActivitiesFilter) ([]domain.Activity, error) {
	base := `
		SELECT
			a.id,
			a.user_id,
			a.action,
			a.description,
			a.related_id,
			a.ip_address,
			a.user_agent,
			a.created_at,
			u.username
		FROM activity_log a
		LEFT JOIN users u ON u.id = a.user_id
	`

	where := []string{"1=1"}
	args := []any{}
	i := 1

	if f.UserID != nil {
		where = append(where, fmt.Sprintf("a.user_id = $%d", i))
		args = append(args, *f.UserID)
		i++
	}

	if f.Action != nil {
		where = append(where, fmt.Sprintf("a.action = $%d", i))
		args = append(args, *f.Action)
		i++
	}

	if f.CreatedFrom != nil {
		where = append(where, fmt.Sprintf("a.created_at >= $%d", i))
		args = append(args, *f.CreatedFrom)
		i++
	}
	if f.CreatedTo != nil {
		where = append(where, fmt.Sprintf("a.created_at <= $%d", i))
		args = append(args, *f.CreatedTo)
		i++
	}

	query := base + " WHERE " + strings.Join(where, " AND ") + " ORDER BY a.created_at DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", i)
		args = append(args, f.Limit)
	}

	rows, err := conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Activity
	for rows.Next() {
		var a domain.Activity
		if err := rows.Scan(
			&a.ID,
			&a.UserID,
			&a.Action,
			&a.Description,
			&a.RelatedID,
			&a.IPAddress,
			&a.UserAgent,
			&a.CreatedAt,
			&a.Username,
		); err != nil {
			return nil, err
		}
		out = append(out, a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *ActivityRepository) HasMoreThan(ctx context.Context, limit int64, f ActivitiesFilter) (bool, error) {
	where := []string{"1=1"}
	args := []any{limit}
	i := 2

	if f.UserID != nil {
		where = append(where, fmt.Sprintf("a.user_id = $%d", i))
		args = append(args, *f.UserID)
		i++
	}
	if f.Action != nil {
		where = append(where, fmt.Sprintf("a.action = $%d", i))
		args = append(args, *f.Action)
		i++
	}
	if f.CreatedFrom != nil {
		where = append(where, fmt.Sprintf("a.created_at >= $%d", i))
		args = append(args, *f.CreatedFrom)
		i++
	}
	if f.CreatedTo != nil {
		where = append(where, fmt.Sprintf("a.created_at <= $%d", i))
		args = append(args, *f.CreatedTo)
		i++
	}

	query := `SELECT COUNT(*) > $1 FROM activity_log a WHERE ` + strings.Join(where, " AND ")

	var tooMany bool
	if err := conn(ctx, r.db).QueryRowContext(ctx, query, args...).Scan(&tooMany); err != nil {
		return false, err
	}
	return tooMany, nil
}
