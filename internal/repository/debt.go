package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"debtster/internal/domain"

	"github.com/shopspring/decimal"
)

type DebtsFilter struct {
	UserID       *int64 // either side
	CreditorID   *int64
	DebtorID     *int64
	Status       *domain.DebtStatus
	Type         *domain.DebtType
	Counterparty *string
	CreatedFrom  *time.Time
	CreatedTo    *time.Time

	// HideHidden drops rows the scoped user hid from their own side.
	HideHidden bool

	Limit int64
}

type DebtRepository struct {
	db *sql.DB
}

func NewDebtRepository(db *sql.DB) *DebtRepository {
	return &DebtRepository{db: db}
}

const debtColumns = `
	d.id,
	d.creditor_id,
	d.debtor_id,
	d.type,
	d.amount,
	d.product_name,
	d.description,
	d.paid_amount,
	d.status,
	d.hidden_from_debtor,
	d.hidden_from_creditor,
	d.debt_proof,
	d.release_proof,
	d.payment_proof,
	d.created_at,
	d.updated_at,
	d.paid_at,
	cu.username AS creditor_username,
	du.username AS debtor_username
`

const debtJoins = `
	FROM debts d
	LEFT JOIN users cu ON cu.id = d.creditor_id
	LEFT JOIN users du ON du.id = d.debtor_id
`

func scanDebt(row interface{ Scan(...any) error }) (*domain.Debt, error) {
	var d domain.Debt
	if err := row.Scan(
		&d.ID,
		&d.CreditorID,
		&d.DebtorID,
		&d.Type,
		&d.Amount,
		&d.ProductName,
		&d.Description,
		&d.PaidAmount,
		&d.Status,
		&d.HiddenFromDebtor,
		&d.HiddenFromCreditor,
		&d.DebtProof,
		&d.ReleaseProof,
		&d.PaymentProof,
		&d.CreatedAt,
		&d.UpdatedAt,
		&d.PaidAt,
		&d.CreditorUsername,
		&d.DebtorUsername,
	); err != nil {
		return nil, err
	}
	return &d, nil
}

func debtWhere(f DebtsFilter, startIdx int) ([]string, []any, int) {
	where := []string{"1=1"}
	args := []any{}
	i := startIdx

	if f.UserID != nil {
		where = append(where, fmt.Sprintf("(d.creditor_id = $%d OR d.debtor_id = $%d)", i, i))
		args = append(args, *f.UserID)
		if f.HideHidden {
			where = append(where, fmt.Sprintf("(d.debtor_id <> $%d OR NOT d.hidden_from_debtor)", i))
			where = append(where, fmt.Sprintf("(d.creditor_id <> $%d OR NOT d.hidden_from_creditor)", i))
		}
		i++
	}

	if f.CreditorID != nil {
		where = append(where, fmt.Sprintf("d.creditor_id = $%d", i))
		args = append(args, *f.CreditorID)
		i++
		if f.HideHidden {
			where = append(where, "NOT d.hidden_from_creditor")
		}
	}

	if f.DebtorID != nil {
		where = append(where, fmt.Sprintf("d.debtor_id = $%d", i))
		args = append(args, *f.DebtorID)
		i++
		if f.HideHidden {
			where = append(where, "NOT d.hidden_from_debtor")
		}
	}

	if f.Status != nil {
		where = append(where, fmt.Sprintf("d.status = $%d", i))
		args = append(args, *f.Status)
		i++
	}

	if f.Type != nil {
		where = append(where, fmt.Sprintf("d.type = $%d", i))
		args = append(args, *f.Type)
		i++
	}

	if f.Counterparty != nil && *f.Counterparty != "" {
		where = append(where, fmt.Sprintf("(cu.username = $%d OR du.username = $%d)", i, i))
		args = append(args, *f.Counterparty)
		i++
	}

	if f.CreatedFrom != nil {
		where = append(where, fmt.Sprintf("d.created_at >= $%d", i))
		args = append(args, *f.CreatedFrom)
		i++
	}
	if f.CreatedTo != nil {
		where = append(where, fmt.Sprintf("d.created_at <= $%d", i))
		args = append(args, *f.CreatedTo)
		i++
	}

	return where, args, i
}

func (r *DebtRepository) List(ctx context.Context, f DebtsFilter) ([]domain.Debt, error) {
	where, args, i := debtWhere(f, 1)

	query := "SELECT " + debtColumns + debtJoins + " WHERE " + strings.Join(where, " AND ") + " ORDER BY d.created_at DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", i)
		args = append(args, f.Limit)
	}

	rows, err := conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Debt
	for rows.Next() {
		d, err := scanDebt(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *DebtRepository) HasMoreThan(ctx context.Context, limit int64, f DebtsFilter) (bool, error) {
	where, args, _ := debtWhere(f, 2)
	args = append([]any{limit}, args...)

	query := "SELECT COUNT(*) > $1 " + debtJoins + " WHERE " + strings.Join(where, " AND ")

	var tooMany bool
	if err := conn(ctx, r.db).QueryRowContext(ctx, query, args...).Scan(&tooMany); err != nil {
		return false, err
	}
	return tooMany, nil
}

func (r *DebtRepository) ByID(ctx context.Context, id int64) (*domain.Debt, error) {
	query := "SELECT " + debtColumns + debtJoins + " WHERE d.id = $1"

	d, err := scanDebt(conn(ctx, r.db).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (r *DebtRepository) Create(ctx context.Context, d *domain.Debt) error {
	query := `
		INSERT INTO debts (creditor_id, debtor_id, type, amount, product_name, description, paid_amount, status, debt_proof)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`

	return conn(ctx, r.db).QueryRowContext(ctx, query,
		d.CreditorID,
		d.DebtorID,
		d.Type,
		d.Amount,
		d.ProductName,
		d.Description,
		d.PaidAmount,
		d.Status,
		d.DebtProof,
	).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
}

// Update rewrites the debtor-editable fields.
func (r *DebtRepository) Update(ctx context.Context, d *domain.Debt) error {
	query := `
		UPDATE debts
		SET type = $2, amount = $3, product_name = $4, description = $5, updated_at = now()
		WHERE id = $1
	`

	_, err := conn(ctx, r.db).ExecContext(ctx, query, d.ID, d.Type, d.Amount, d.ProductName, d.Description)
	return err
}

// UpdateStatus moves a debt between statuses only if it still is in one of
// the expected ones. Returns false when the row was concurrently moved.
func (r *DebtRepository) UpdateStatus(ctx context.Context, id int64, from []domain.DebtStatus, to domain.DebtStatus) (bool, error) {
	if len(from) == 0 {
		return false, errors.New("no source statuses")
	}

	placeholders := make([]string, 0, len(from))
	args := []any{id, to}
	for n, s := range from {
		placeholders = append(placeholders, fmt.Sprintf("$%d", n+3))
		args = append(args, s)
	}

	query := fmt.Sprintf(`
		UPDATE debts
		SET status = $2, updated_at = now()
		WHERE id = $1 AND status IN (%s)
	`, strings.Join(placeholders, ", "))

	res, err := conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ApplyPayment adds amount to paid_amount and moves the debt to the given
// status in one statement, guarded by the expected current statuses.
func (r *DebtRepository) ApplyPayment(ctx context.Context, id int64, amount decimal.Decimal, from []domain.DebtStatus, to domain.DebtStatus, paidAt *time.Time) (bool, error) {
	if len(from) == 0 {
		return false, errors.New("no source statuses")
	}

	placeholders := make([]string, 0, len(from))
	args := []any{id, amount, to, paidAt}
	for n, s := range from {
		placeholders = append(placeholders, fmt.Sprintf("$%d", n+5))
		args = append(args, s)
	}

	query := fmt.Sprintf(`
		UPDATE debts
		SET paid_amount = paid_amount + $2,
		    status = $3,
		    paid_at = COALESCE($4, paid_at),
		    updated_at = now()
		WHERE id = $1 AND status IN (%s) AND paid_amount + $2 <= amount
	`, strings.Join(placeholders, ", "))

	res, err := conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *DebtRepository) SetReleaseProof(ctx context.Context, id int64, key string) error {
	_, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE debts SET release_proof = $2, updated_at = now() WHERE id = $1`, id, key)
	return err
}

func (r *DebtRepository) SetPaymentProof(ctx context.Context, id int64, key string) error {
	_, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE debts SET payment_proof = $2, updated_at = now() WHERE id = $1`, id, key)
	return err
}

// SetHidden flips the per-side visibility flag.
func (r *DebtRepository) SetHidden(ctx context.Context, id int64, side domain.Role, hidden bool) error {
	var column string
	switch side {
	case domain.RoleDebtor:
		column = "hidden_from_debtor"
	case domain.RoleCreditor:
		column = "hidden_from_creditor"
	default:
		return fmt.Errorf("no hidden flag for role %q", side)
	}

	query := fmt.Sprintf(`UPDATE debts SET %s = $2, updated_at = now() WHERE id = $1`, column)
	_, err := conn(ctx, r.db).ExecContext(ctx, query, id, hidden)
	return err
}

func (r *DebtRepository) Delete(ctx context.Context, id int64) error {
	_, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM debts WHERE id = $1`, id)
	return err
}

// ReconcilePaidAmount compares the cached paid_amount with the sum of the
// debt's completed payments.
func (r *DebtRepository) ReconcilePaidAmount(ctx context.Context, id int64) (stored, derived decimal.Decimal, err error) {
	query := `
		SELECT d.paid_amount,
		       COALESCE((SELECT SUM(p.amount) FROM payments p WHERE p.debt_id = d.id AND p.status = 'completed'), 0)
		FROM debts d
		WHERE d.id = $1
	`

	err = conn(ctx, r.db).QueryRowContext(ctx, query, id).Scan(&stored, &derived)
	return stored, derived, err
}

type UserStats struct {
	TotalDebts     int64
	PaidDebts      int64
	OpenDebts      int64
	Outstanding    decimal.Decimal
	Counterparties int64
}

func (r *DebtRepository) StatsForUser(ctx context.Context, userID int64) (*UserStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE d.status <> 'rejected'),
			COUNT(*) FILTER (WHERE d.status = 'paid'),
			COUNT(*) FILTER (WHERE d.status IN ('pending_confirmation', 'active', 'awaiting_confirmation')),
			COALESCE(SUM(GREATEST(d.amount - d.paid_amount, 0)) FILTER (WHERE d.status NOT IN ('paid', 'rejected')), 0),
			COUNT(DISTINCT CASE WHEN d.creditor_id = $1 THEN d.debtor_id ELSE d.creditor_id END)
		FROM debts d
		WHERE d.creditor_id = $1 OR d.debtor_id = $1
	`

	var s UserStats
	if err := conn(ctx, r.db).QueryRowContext(ctx, query, userID).Scan(
		&s.TotalDebts,
		&s.PaidDebts,
		&s.OpenDebts,
		&s.Outstanding,
		&s.Counterparties,
	); err != nil {
		return nil, err
	}
	return &s, nil
}

type DebtTotals struct {
	Total       int64
	Pending     int64
	Active      int64
	Awaiting    int64
	Paid        int64
	Rejected    int64
	AmountTotal decimal.Decimal
	AmountPaid  decimal.Decimal
}

func (r *DebtRepository) Totals(ctx context.Context) (*DebtTotals, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'pending_confirmation'),
			COUNT(*) FILTER (WHERE status = 'active'),
			COUNT(*) FILTER (WHERE status = 'awaiting_confirmation'),
			COUNT(*) FILTER (WHERE status = 'paid'),
			COUNT(*) FILTER (WHERE status = 'rejected'),
			COALESCE(SUM(amount), 0),
			COALESCE(SUM(paid_amount), 0)
		FROM debts
	`

	var t DebtTotals
	if err := conn(ctx, r.db).QueryRowContext(ctx, query).Scan(
		&t.Total,
		&t.Pending,
		&t.Active,
		&t.Awaiting,
		&t.Paid,
		&t.Rejected,
		&t.AmountTotal,
		&t.AmountPaid,
	); err != nil {
		return nil, err
	}
	return &t, nil
}

type PeriodCount struct {
	Bucket time.Time
	Count  int64
}

// CountsByPeriod buckets debt creation by day, month or year.
func (r *DebtRepository) CountsByPeriod(ctx context.Context, trunc string, since time.Time) ([]PeriodCount, error) {
	switch trunc {
	case "day", "month", "year":
	default:
		return nil, fmt.Errorf("unsupported bucket %q", trunc)
	}

	query := fmt.Sprintf(`
		SELECT date_trunc('%s', created_at) AS bucket, COUNT(*)
		FROM debts
		WHERE created_at >= $1
		GROUP BY bucket
		ORDER BY bucket
	`, trunc)

	rows, err := conn(ctx, r.db).QueryContext(ctx, query, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PeriodCount
	for rows.Next() {
		var p PeriodCount
		if err := rows.Scan(&p.Bucket, &p.Count); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Renumber compacts debt IDs to 1..N and moves payment/notification
// references along. Constraints are deferred so the shuffle settles at
// commit; negative IDs are used as a scratch range to avoid collisions.
func (r *DebtRepository) Renumber(ctx context.Context) (int64, error) {
	q := conn(ctx, r.db)
	if _, ok := q.(*sql.Tx); !ok {
		return 0, errors.New("renumber requires a transaction")
	}

	if _, err := q.ExecContext(ctx, `SET CONSTRAINTS ALL DEFERRED`); err != nil {
		return 0, err
	}

	if _, err := q.ExecContext(ctx, `
		CREATE TEMP TABLE debt_id_map ON COMMIT DROP AS
		SELECT id AS old_id, ROW_NUMBER() OVER (ORDER BY id) AS new_id
		FROM debts
	`); err != nil {
		return 0, err
	}

	steps := []string{
		`UPDATE debts d SET id = -m.new_id FROM debt_id_map m WHERE d.id = m.old_id`,
		`UPDATE debts SET id = -id WHERE id < 0`,
		`UPDATE payments p SET debt_id = m.new_id FROM debt_id_map m WHERE p.debt_id = m.old_id`,
		`UPDATE notifications n SET debt_id = m.new_id FROM debt_id_map m WHERE n.debt_id = m.old_id`,
	}
	for _, stmt := range steps {
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return 0, err
		}
	}

	var count int64
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM debts`).Scan(&count); err != nil {
		return 0, err
	}

	if _, err := q.ExecContext(ctx,
		`SELECT setval(pg_get_serial_sequence('debts', 'id'), GREATEST($1, 1), $1 > 0)`, count,
	); err != nil {
		return 0, err
	}

	return count, nil
}
