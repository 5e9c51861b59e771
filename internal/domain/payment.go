package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentMethodCash  PaymentMethod = "cash"
	PaymentMethodGcash PaymentMethod = "gcash"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodCash || m == PaymentMethodGcash
}

type PaymentStatus string

const (
	PaymentStatusPendingConfirmation PaymentStatus = "pending_confirmation"
	PaymentStatusCompleted           PaymentStatus = "completed"
	PaymentStatusRejected            PaymentStatus = "rejected"
)

type Payment struct {
	ID      int64
	DebtID  int64
	PayerID int64

	Amount decimal.Decimal
	Method PaymentMethod
	Status PaymentStatus

	ReferenceNumber *string

	ReceiptNo     string
	TransactionID *string
	ReceiptFile   *string

	DebtorProof   *string
	CreditorProof *string

	PaymentDate *time.Time
	VerifiedAt  *time.Time
	CreatedAt   time.Time

	PayerUsername *string
}
