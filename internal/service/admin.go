package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"debtster/internal/domain"
	"debtster/internal/repository"

	"github.com/shopspring/decimal"
)

type AdminDebtStore interface {
	List(ctx context.Context, f repository.DebtsFilter) ([]domain.Debt, error)
	Totals(ctx context.Context) (*repository.DebtTotals, error)
	CountsByPeriod(ctx context.Context, trunc string, since time.Time) ([]repository.PeriodCount, error)
	ReconcilePaidAmount(ctx context.Context, id int64) (stored, derived decimal.Decimal, err error)
	Renumber(ctx context.Context) (int64, error)
}

type AdminPaymentStore interface {
	List(ctx context.Context, f repository.PaymentsFilter) ([]domain.Payment, error)
	SumsByPeriod(ctx context.Context, trunc string, since time.Time) ([]repository.PeriodSum, error)
}

type ActivityStore interface {
	Create(ctx context.Context, a *domain.Activity) error
	List(ctx context.Context, f repository.ActivitiesFilter) ([]domain.Activity, error)
}

type UserCounter interface {
	Count(ctx context.Context) (int64, error)
}

// PaymentAdjudicator is the slice of the engine the admin console drives.
type PaymentAdjudicator interface {
	ConfirmCashPayment(ctx context.Context, actorID, paymentID int64) (*TransitionResult, error)
	RejectCashPayment(ctx context.Context, actorID, paymentID int64) (*TransitionResult, error)
}

// RequestMeta carries the request origin into the activity log.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

// AdminService is the audit console: unscoped listings, the dashboard,
// payment adjudication and the two maintenance operations. Every call is
// written to the activity log.
type AdminService struct {
	users      UserFinder
	userCount  UserCounter
	debts      AdminDebtStore
	payments   AdminPaymentStore
	activity   ActivityStore
	engine     PaymentAdjudicator
	tx         Transactor
	renumberOn bool
}

func NewAdminService(
	users UserFinder,
	userCount UserCounter,
	debts AdminDebtStore,
	payments AdminPaymentStore,
	activity ActivityStore,
	engine PaymentAdjudicator,
	tx Transactor,
	renumberEnabled bool,
) *AdminService {
	return &AdminService{
		users:      users,
		userCount:  userCount,
		debts:      debts,
		payments:   payments,
		activity:   activity,
		engine:     engine,
		tx:         tx,
		renumberOn: renumberEnabled,
	}
}

func (s *AdminService) requireAdmin(ctx context.Context, actorID int64) (*domain.User, error) {
	actor, err := loadActiveUser(ctx, s.users, actorID)
	if err != nil {
		return nil, err
	}
	if actor.Role != domain.RoleAdmin {
		return nil, domain.Forbidden("admin access required")
	}
	return actor, nil
}

func (s *AdminService) audit(ctx context.Context, adminID int64, action domain.ActivityAction, desc string, relatedID *int64, meta RequestMeta) {
	a := domain.Activity{
		UserID:      adminID,
		Action:      action,
		Description: desc,
		RelatedID:   relatedID,
	}
	if meta.IPAddress != "" {
		a.IPAddress = &meta.IPAddress
	}
	if meta.UserAgent != "" {
		a.UserAgent = &meta.UserAgent
	}
	if err := s.activity.Create(ctx, &a); err != nil {
		log.Printf("[ADMIN] activity row (%s) failed: %v", action, err)
	}
}

type Timeframe string

const (
	TimeframeDaily   Timeframe = "daily"
	TimeframeMonthly Timeframe = "monthly"
	TimeframeYearly  Timeframe = "yearly"
)

// window maps a timeframe to its date_trunc bucket and how far back to look.
func (t Timeframe) window(now time.Time) (trunc string, since time.Time, err error) {
	switch t {
	case TimeframeDaily:
		return "day", now.AddDate(0, 0, -30), nil
	case TimeframeMonthly:
		return "month", now.AddDate(-1, 0, 0), nil
	case TimeframeYearly:
		return "year", now.AddDate(-5, 0, 0), nil
	default:
		return "", time.Time{}, domain.Validation("timeframe", "must be daily, monthly or yearly")
	}
}

type Dashboard struct {
	Users       int64
	Debts       *repository.DebtTotals
	DebtCounts  []repository.PeriodCount
	PaymentSums []repository.PeriodSum
}

func (s *AdminService) Dashboard(ctx context.Context, actorID int64, timeframe Timeframe, meta RequestMeta) (*Dashboard, error) {
	if _, err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}

	trunc, since, err := timeframe.window(time.Now())
	if err != nil {
		return nil, err
	}

	users, err := s.userCount.Count(ctx)
	if err != nil {
		return nil, domain.Persistence("count users", err)
	}
	totals, err := s.debts.Totals(ctx)
	if err != nil {
		return nil, domain.Persistence("debt totals", err)
	}
	counts, err := s.debts.CountsByPeriod(ctx, trunc, since)
	if err != nil {
		return nil, domain.Persistence("debt counts", err)
	}
	sums, err := s.payments.SumsByPeriod(ctx, trunc, since)
	if err != nil {
		return nil, domain.Persistence("payment sums", err)
	}

	s.audit(ctx, actorID, domain.ActivityViewDebts, fmt.Sprintf("viewed dashboard (%s)", timeframe), nil, meta)

	return &Dashboard{Users: users, Debts: totals, DebtCounts: counts, PaymentSums: sums}, nil
}

func (s *AdminService) ListDebts(ctx context.Context, actorID int64, f repository.DebtsFilter, meta RequestMeta) ([]domain.Debt, error) {
	if _, err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}

	debts, err := s.debts.List(ctx, f)
	if err != nil {
		return nil, domain.Persistence("list debts", err)
	}

	s.audit(ctx, actorID, domain.ActivityViewDebts, "viewed debt list", nil, meta)
	return debts, nil
}

func (s *AdminService) ListPayments(ctx context.Context, actorID int64, f repository.PaymentsFilter, meta RequestMeta) ([]domain.Payment, error) {
	if _, err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}

	payments, err := s.payments.List(ctx, f)
	if err != nil {
		return nil, domain.Persistence("list payments", err)
	}

	s.audit(ctx, actorID, domain.ActivityViewPayments, "viewed payment list", nil, meta)
	return payments, nil
}

// ApprovePayment settles a stuck cash payment in the creditor's stead.
func (s *AdminService) ApprovePayment(ctx context.Context, actorID, paymentID int64, meta RequestMeta) (*TransitionResult, error) {
	if _, err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}

	res, err := s.engine.ConfirmCashPayment(ctx, actorID, paymentID)
	if err != nil {
		return nil, err
	}

	s.audit(ctx, actorID, domain.ActivityApprovePayment,
		fmt.Sprintf("approved cash payment %d", paymentID), &paymentID, meta)
	return res, nil
}

func (s *AdminService) RejectPayment(ctx context.Context, actorID, paymentID int64, meta RequestMeta) (*TransitionResult, error) {
	if _, err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}

	res, err := s.engine.RejectCashPayment(ctx, actorID, paymentID)
	if err != nil {
		return nil, err
	}

	s.audit(ctx, actorID, domain.ActivityRejectPayment,
		fmt.Sprintf("rejected cash payment %d", paymentID), &paymentID, meta)
	return res, nil
}

type Reconciliation struct {
	DebtID     int64
	Stored     decimal.Decimal
	Derived    decimal.Decimal
	Consistent bool
}

// Reconcile compares a debt's cached paid_amount with the sum of its
// completed payments.
func (s *AdminService) Reconcile(ctx context.Context, actorID, debtID int64, meta RequestMeta) (*Reconciliation, error) {
	if _, err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}

	stored, derived, err := s.debts.ReconcilePaidAmount(ctx, debtID)
	if err != nil {
		return nil, domain.Persistence("reconcile debt", err)
	}

	s.audit(ctx, actorID, domain.ActivityViewDebtDetail,
		fmt.Sprintf("reconciled debt %d", debtID), &debtID, meta)

	return &Reconciliation{
		DebtID:     debtID,
		Stored:     stored,
		Derived:    derived,
		Consistent: stored.Equal(derived),
	}, nil
}

// RenumberDebts compacts debt IDs to 1..N. Refused unless explicitly enabled
// in configuration; both the refusal and the run are audited.
func (s *AdminService) RenumberDebts(ctx context.Context, actorID int64, meta RequestMeta) (int64, error) {
	if _, err := s.requireAdmin(ctx, actorID); err != nil {
		return 0, err
	}

	if !s.renumberOn {
		s.audit(ctx, actorID, domain.ActivityRenumberDebts, "renumbering refused: disabled by configuration", nil, meta)
		return 0, domain.Forbidden("debt renumbering is disabled")
	}

	var count int64
	err := s.tx.Atomic(ctx, func(ctx context.Context) error {
		n, err := s.debts.Renumber(ctx)
		if err != nil {
			return domain.Persistence("renumber debts", err)
		}
		count = n
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.audit(ctx, actorID, domain.ActivityRenumberDebts,
		fmt.Sprintf("renumbered %d debts", count), nil, meta)
	log.Printf("[ADMIN] user %d renumbered %d debts", actorID, count)
	return count, nil
}

func (s *AdminService) ListActivity(ctx context.Context, actorID int64, f repository.ActivitiesFilter, meta RequestMeta) ([]domain.Activity, error) {
	if _, err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}

	activity, err := s.activity.List(ctx, f)
	if err != nil {
		return nil, domain.Persistence("list activity", err)
	}

	s.audit(ctx, actorID, domain.ActivityViewActivity, "viewed activity log", nil, meta)
	return activity, nil
}

// LogLogin records a successful admin console login.
func (s *AdminService) LogLogin(ctx context.Context, userID int64, meta RequestMeta) {
	user, err := s.users.ByID(ctx, userID)
	if err != nil || user == nil || user.Role != domain.RoleAdmin {
		return
	}
	s.audit(ctx, userID, domain.ActivityLogin, "logged in", nil, meta)
}
