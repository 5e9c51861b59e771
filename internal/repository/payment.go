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

type PaymentsFilter struct {
	DebtID  *int64
	PayerID *int64
	UserID  *int64 // either side of the underlying debt
	Method  *domain.PaymentMethod
	Status  *domain.PaymentStatus

	ExcludeRejected bool

	DateFrom *time.Time
	DateTo   *time.Time

	Limit int64
}

type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

const paymentColumns = `
	p.id,
	p.debt_id,
	p.payer_id,
	p.amount,
	p.method,
	p.status,
	p.reference_number,
	p.receipt_no,
	p.transaction_id,
	p.receipt_file,
	p.debtor_proof,
	p.creditor_proof,
	p.payment_date,
	p.verified_at,
	p.created_at,
	u.username AS payer_username
`

const paymentJoins = `
	FROM payments p
	LEFT JOIN debts d ON d.id = p.debt_id
	LEFT JOIN users u ON u.id = p.payer_id
`

func scanPayment(row interface{ Scan(...any) error }) (*domain.Payment, error) {
	var p domain.Payment
	if err := row.Scan(
		&p.ID,
		&p.DebtID,
		&p.PayerID,
		&p.Amount,
		&p.Method,
		&p.Status,
		&p.ReferenceNumber,
		&p.ReceiptNo,
		&p.TransactionID,
		&p.ReceiptFile,
		&p.DebtorProof,
		&p.CreditorProof,
		&p.PaymentDate,
		&p.VerifiedAt,
		&p.CreatedAt,
		&p.PayerUsername,
	); err != nil {
		return nil, err
	}
	return &p, nil
}

func paymentWhere(f PaymentsFilter, startIdx int) ([]string, []any, int) {
	where := []string{"1=1"}
	args := []any{}
	i := startIdx

	if f.DebtID != nil {
		where = append(where, fmt.Sprintf("p.debt_id = $%d", i))
		args = append(args, *f.DebtID)
		i++
	}

	if f.PayerID != nil {
		where = append(where, fmt.Sprintf("p.payer_id = $%d", i))
		args = append(args, *f.PayerID)
		i++
	}

	if f.UserID != nil {
		where = append(where, fmt.Sprintf("(d.creditor_id = $%d OR d.debtor_id = $%d)", i, i))
		args = append(args, *f.UserID)
		i++
	}

	if f.Method != nil {
		where = append(where, fmt.Sprintf("p.method = $%d", i))
		args = append(args, *f.Method)
		i++
	}

	if f.Status != nil {
		where = append(where, fmt.Sprintf("p.status = $%d", i))
		args = append(args, *f.Status)
		i++
	}

	if f.ExcludeRejected {
		where = append(where, "p.status <> 'rejected'")
	}

	if f.DateFrom != nil {
		where = append(where, fmt.Sprintf("p.created_at >= $%d", i))
		args = append(args, *f.DateFrom)
		i++
	}
	if f.DateTo != nil {
		where = append(where, fmt.Sprintf("p.created_at <= $%d", i))
		args = append(args, *f.DateTo)
		i++
	}

	return where, args, i
}

func (r *PaymentRepository) List(ctx context.Context, f PaymentsFilter) ([]domain.Payment, error) {
	where, args, i := paymentWhere(f, 1)

	query := "SELECT " + paymentColumns + paymentJoins + " WHERE " + strings.Join(where, " AND ") + " ORDER BY p.created_at DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", i)
		args = append(args, f.Limit)
	}

	rows, err := conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PaymentRepository) HasMoreThan(ctx context.Context, limit int64, f PaymentsFilter) (bool, error) {
	where, args, _ := paymentWhere(f, 2)
	args = append([]any{limit}, args...)

	query := "SELECT COUNT(*) > $1 " + paymentJoins + " WHERE " + strings.Join(where, " AND ")

	var tooMany bool
	if err := conn(ctx, r.db).QueryRowContext(ctx, query, args...).Scan(&tooMany); err != nil {
		return false, err
	}
	return tooMany, nil
}

func (r *PaymentRepository) ByID(ctx context.Context, id int64) (*domain.Payment, error) {
	query := "SELECT " + paymentColumns + paymentJoins + " WHERE p.id = $1"

	p, err := scanPayment(conn(ctx, r.db).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// CompletedByDebt returns a debt's completed payments oldest first, the
// order receipts and running balances are presented in.
func (r *PaymentRepository) CompletedByDebt(ctx context.Context, debtID int64) ([]domain.Payment, error) {
	query := "SELECT " + paymentColumns + paymentJoins +
		" WHERE p.debt_id = $1 AND p.status = 'completed' ORDER BY p.created_at ASC, p.id ASC"

	rows, err := conn(ctx, r.db).QueryContext(ctx, query, debtID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PaymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	query := `
		INSERT INTO payments (debt_id, payer_id, amount, method, status, reference_number, receipt_no,
		                      transaction_id, debtor_proof, creditor_proof, payment_date, verified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at
	`

	return conn(ctx, r.db).QueryRowContext(ctx, query,
		p.DebtID,
		p.PayerID,
		p.Amount,
		p.Method,
		p.Status,
		p.ReferenceNumber,
		p.ReceiptNo,
		p.TransactionID,
		p.DebtorProof,
		p.CreditorProof,
		p.PaymentDate,
		p.VerifiedAt,
	).Scan(&p.ID, &p.CreatedAt)
}

// Complete moves a pending payment to completed, stamping payment_date,
// verified_at and the transaction id exactly once. Returns false when the
// payment was already adjudicated.
func (r *PaymentRepository) Complete(ctx context.Context, id int64, transactionID string, at time.Time) (bool, error) {
	query := `
		UPDATE payments
		SET status = 'completed',
		    payment_date = COALESCE(payment_date, $2),
		    verified_at = COALESCE(verified_at, $2),
		    transaction_id = COALESCE(transaction_id, $3)
		WHERE id = $1 AND status = 'pending_confirmation'
	`

	res, err := conn(ctx, r.db).ExecContext(ctx, query, id, at, transactionID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Reject moves a pending payment to rejected. Returns false when the payment
// was already adjudicated.
func (r *PaymentRepository) Reject(ctx context.Context, id int64) (bool, error) {
	res, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE payments SET status = 'rejected' WHERE id = $1 AND status = 'pending_confirmation'`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *PaymentRepository) SetReceiptFile(ctx context.Context, id int64, path string) error {
	_, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE payments SET receipt_file = $2 WHERE id = $1`, id, path)
	return err
}

type PeriodSum struct {
	Bucket time.Time
	Total  decimal.Decimal
}

// SumsByPeriod buckets completed payment volume by day, month or year.
func (r *PaymentRepository) SumsByPeriod(ctx context.Context, trunc string, since time.Time) ([]PeriodSum, error) {
	switch trunc {
	case "day", "month", "year":
	default:
		return nil, fmt.Errorf("unsupported bucket %q", trunc)
	}

	query := fmt.Sprintf(`
		SELECT date_trunc('%s', created_at) AS bucket, COALESCE(SUM(amount), 0)
		FROM payments
		WHERE status = 'completed' AND created_at >= $1
		GROUP BY bucket
		ORDER BY bucket
	`, trunc)

	rows, err := conn(ctx, r.db).QueryContext(ctx, query, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PeriodSum
	for rows.Next() {
		var s PeriodSum
		if err := rows.Scan(&s.Bucket, &s.Total); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
