package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type DebtType string

const (
	DebtTypeMoney   DebtType = "money"
	DebtTypeProduct DebtType = "product"
)

func (t DebtType) Valid() bool {
	return t == DebtTypeMoney || t == DebtTypeProduct
}

type DebtStatus string

const (
	DebtStatusPendingConfirmation  DebtStatus = "pending_confirmation"
	DebtStatusActive               DebtStatus = "active"
	DebtStatusAwaitingConfirmation DebtStatus = "awaiting_confirmation"
	DebtStatusPaid                 DebtStatus = "paid"
	DebtStatusRejected             DebtStatus = "rejected"
)

func (s DebtStatus) Terminal() bool {
	return s == DebtStatusPaid || s == DebtStatusRejected
}

type Debt struct {
	ID         int64
	CreditorID int64
	DebtorID   int64

	Type        DebtType
	Amount      decimal.Decimal
	ProductName *string
	Description *string

	PaidAmount decimal.Decimal
	Status     DebtStatus

	HiddenFromDebtor   bool
	HiddenFromCreditor bool

	DebtProof    *string
	ReleaseProof *string
	PaymentProof *string

	CreatedAt time.Time
	UpdatedAt time.Time
	PaidAt    *time.Time

	CreditorUsername *string
	DebtorUsername   *string
}

// Balance never goes negative, even if paid_amount overshoots.
func (d *Debt) Balance() decimal.Decimal {
	b := d.Amount.Sub(d.PaidAmount)
	if b.IsNegative() {
		return decimal.Zero
	}
	return b
}

func (d *Debt) Settled() bool {
	return d.Balance().IsZero()
}
