package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleCreditor Role = "creditor"
	RoleDebtor   Role = "debtor"
	RoleAdmin    Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleCreditor, RoleDebtor, RoleAdmin:
		return true
	}
	return false
}

type User struct {
	ID             int64
	Username       string
	PasswordHash   string
	FullName       string
	Email          *string
	ProfileSummary *string
	Role           Role
	IsActive       bool
	CreatedAt      time.Time

	TotalLoaned *decimal.Decimal
	TotalOwed   *decimal.Decimal
}
