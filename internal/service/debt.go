package service

import (
	"context"
	"time"

	"debtster/internal/domain"
	"debtster/internal/repository"

	"github.com/shopspring/decimal"
)

type DebtQueries interface {
	List(ctx context.Context, f repository.DebtsFilter) ([]domain.Debt, error)
	ByID(ctx context.Context, id int64) (*domain.Debt, error)
	StatsForUser(ctx context.Context, userID int64) (*repository.UserStats, error)
}

type CompletedPaymentLister interface {
	CompletedByDebt(ctx context.Context, debtID int64) ([]domain.Payment, error)
}

// DebtService answers read-side questions about debts. Every mutation goes
// through LifecycleService instead.
type DebtService struct {
	debts    DebtQueries
	payments CompletedPaymentLister
	users    UserFinder
}

func NewDebtService(debts DebtQueries, payments CompletedPaymentLister, users UserFinder) *DebtService {
	return &DebtService{debts: debts, payments: payments, users: users}
}

type ListDebtsInput struct {
	Status       *domain.DebtStatus
	Type         *domain.DebtType
	Counterparty *string
	CreatedFrom  *time.Time
	CreatedTo    *time.Time
	Limit        int64
}

// List returns the debts visible to the actor, newest first. Creditors see
// debts they hold, debtors debts they owe, admins everything; rows the actor
// hid from their own side are dropped.
func (s *DebtService) List(ctx context.Context, actorID int64, in ListDebtsInput) ([]domain.Debt, error) {
	actor, err := loadActiveUser(ctx, s.users, actorID)
	if err != nil {
		return nil, err
	}

	f := repository.DebtsFilter{
		Status:       in.Status,
		Type:         in.Type,
		Counterparty: in.Counterparty,
		CreatedFrom:  in.CreatedFrom,
		CreatedTo:    in.CreatedTo,
		HideHidden:   true,
		Limit:        in.Limit,
	}
	switch actor.Role {
	case domain.RoleCreditor:
		f.CreditorID = &actor.ID
	case domain.RoleDebtor:
		f.DebtorID = &actor.ID
	default:
		f.HideHidden = false
	}

	debts, err := s.debts.List(ctx, f)
	if err != nil {
		return nil, domain.Persistence("list debts", err)
	}
	return debts, nil
}

// PaymentEntry pairs a completed payment with the balance left after it.
type PaymentEntry struct {
	Payment          domain.Payment
	RemainingBalance decimal.Decimal
}

type DebtDetail struct {
	Debt     *domain.Debt
	Payments []PaymentEntry
}

// Detail returns a debt with its completed payments and the running balance
// after each, oldest first. Only the parties and admins may look.
func (s *DebtService) Detail(ctx context.Context, actorID, debtID int64) (*DebtDetail, error) {
	actor, err := loadActiveUser(ctx, s.users, actorID)
	if err != nil {
		return nil, err
	}

	debt, err := s.debts.ByID(ctx, debtID)
	if err != nil {
		return nil, domain.Persistence("load debt", err)
	}
	if debt == nil {
		return nil, domain.NotFound("debt")
	}
	if actor.Role != domain.RoleAdmin && debt.CreditorID != actor.ID && debt.DebtorID != actor.ID {
		return nil, domain.Forbidden("you are not a party to this debt")
	}

	completed, err := s.payments.CompletedByDebt(ctx, debt.ID)
	if err != nil {
		return nil, domain.Persistence("list payments", err)
	}

	remaining := debt.Amount
	entries := make([]PaymentEntry, 0, len(completed))
	for _, p := range completed {
		remaining = remaining.Sub(p.Amount)
		shown := remaining
		if shown.IsNegative() {
			shown = decimal.Zero
		}
		entries = append(entries, PaymentEntry{Payment: p, RemainingBalance: shown})
	}

	return &DebtDetail{Debt: debt, Payments: entries}, nil
}

// Stats aggregates a user's debt figures for the profile page.
func (s *DebtService) Stats(ctx context.Context, userID int64) (*repository.UserStats, error) {
	stats, err := s.debts.StatsForUser(ctx, userID)
	if err != nil {
		return nil, domain.Persistence("user stats", err)
	}
	return stats, nil
}
