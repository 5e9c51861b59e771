package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"debtster/internal/domain"

	"github.com/shopspring/decimal"
)

type UsersFilter struct {
	Role   *domain.Role
	Search *string
	Limit  int64
}

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{
		db: db,
	}
}

const userColumns = `
	u.id,
	u.username,
	u.password_hash,
	u.full_name,
	u.email,
	u.profile_summary,
	u.role,
	u.is_active,
	u.created_at
`

func scanUser(row interface{ Scan(...any) error }) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(
		&u.ID,
		&u.Username,
		&u.PasswordHash,
		&u.FullName,
		&u.Email,
		&u.ProfileSummary,
		&u.Role,
		&u.IsActive,
		&u.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) ByID(ctx context.Context, id int64) (*domain.User, error) {
	query := "SELECT " + userColumns + " FROM users u WHERE u.id = $1"

	u, err := scanUser(conn(ctx, r.db).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r *UserRepository) ByUsername(ctx context.Context, username string) (*domain.User, error) {
	query := "SELECT " + userColumns + " FROM users u WHERE u.username = $1"

	u, err := scanUser(conn(ctx, r.db).QueryRowContext(ctx, query, username))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r *UserRepository) Create(ctx context.Context, u *domain.User) error {
	query := `
		INSERT INTO users (username, password_hash, full_name, email, profile_summary, role, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`

	return conn(ctx, r.db).QueryRowContext(ctx, query,
		u.Username,
		u.PasswordHash,
		u.FullName,
		u.Email,
		u.ProfileSummary,
		u.Role,
		u.IsActive,
	).Scan(&u.ID, &u.CreatedAt)
}

func (r *UserRepository) UpdateProfile(ctx context.Context, id int64, fullName string, email, summary *string) error {
	query := `
		UPDATE users
		SET full_name = $2, email = $3, profile_summary = $4
		WHERE id = $1
	`

	_, err := conn(ctx, r.db).ExecContext(ctx, query, id, fullName, email, summary)
	return err
}

// List returns users with their lifetime loaned/owed totals, newest first.
func (r *UserRepository) List(ctx context.Context, f UsersFilter) ([]domain.User, error) {
	base := "SELECT " + userColumns + `,
		COALESCE(lent.total, 0)  AS total_loaned,
		COALESCE(owed.total, 0)  AS total_owed
	FROM users u
	LEFT JOIN (
		SELECT creditor_id, SUM(amount) AS total
		FROM debts
		WHERE status <> 'rejected'
		GROUP BY creditor_id
	) lent ON lent.creditor_id = u.id
	LEFT JOIN (
		SELECT debtor_id, SUM(amount) AS total
		FROM debts
		WHERE status <> 'rejected'
		GROUP BY debtor_id
	) owed ON owed.debtor_id = u.id
	`

	where := []string{"1=1"}
	args := []any{}
	i := 1

	if f.Role != nil {
		where = append(where, fmt.Sprintf("u.role = $%d", i))
		args = append(args, *f.Role)
		i++
	}

	if f.Search != nil && *f.Search != "" {
		where = append(where, fmt.Sprintf("(u.username ILIKE $%d OR u.full_name ILIKE $%d)", i, i))
		args = append(args, "%"+*f.Search+"%")
		i++
	}

	query := base + " WHERE " + strings.Join(where, " AND ") + " ORDER BY u.created_at DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", i)
		args = append(args, f.Limit)
	}

	rows, err := conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.User
	for rows.Next() {
		var (
			u            domain.User
			loaned, owed decimal.Decimal
		)
		if err := rows.Scan(
			&u.ID,
			&u.Username,
			&u.PasswordHash,
			&u.FullName,
			&u.Email,
			&u.ProfileSummary,
			&u.Role,
			&u.IsActive,
			&u.CreatedAt,
			&loaned,
			&owed,
		); err != nil {
			return nil, err
		}
		u.TotalLoaned = &loaned
		u.TotalOwed = &owed
		result = append(result, u)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *UserRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := conn(ctx, r.db).QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}
