package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"strings"
	"time"

	"debtster/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Transactor interface {
	Atomic(ctx context.Context, fn func(ctx context.Context) error) error
}

type UserFinder interface {
	ByID(ctx context.Context, id int64) (*domain.User, error)
	ByUsername(ctx context.Context, username string) (*domain.User, error)
}

type DebtStore interface {
	ByID(ctx context.Context, id int64) (*domain.Debt, error)
	Create(ctx context.Context, d *domain.Debt) error
	Update(ctx context.Context, d *domain.Debt) error
	UpdateStatus(ctx context.Context, id int64, from []domain.DebtStatus, to domain.DebtStatus) (bool, error)
	ApplyPayment(ctx context.Context, id int64, amount decimal.Decimal, from []domain.DebtStatus, to domain.DebtStatus, paidAt *time.Time) (bool, error)
	SetReleaseProof(ctx context.Context, id int64, key string) error
	SetPaymentProof(ctx context.Context, id int64, key string) error
	SetHidden(ctx context.Context, id int64, side domain.Role, hidden bool) error
	Delete(ctx context.Context, id int64) error
}

type PaymentStore interface {
	ByID(ctx context.Context, id int64) (*domain.Payment, error)
	Create(ctx context.Context, p *domain.Payment) error
	Complete(ctx context.Context, id int64, transactionID string, at time.Time) (bool, error)
	Reject(ctx context.Context, id int64) (bool, error)
	SetReceiptFile(ctx context.Context, id int64, path string) error
}

type NotificationStore interface {
	Create(ctx context.Context, n *domain.Notification) error
}

// ReceiptGenerator renders the PDF for a completed payment. Failures never
// block the transition that completed it.
type ReceiptGenerator interface {
	Generate(payment *domain.Payment, debt *domain.Debt) (string, error)
}

// NotificationPusher delivers committed notifications to connected clients.
type NotificationPusher interface {
	PushNotification(userID int64, n domain.Notification)
}

type Transition string

const (
	TransitionCreate       Transition = "create"
	TransitionEdit         Transition = "edit"
	TransitionConfirm      Transition = "confirm"
	TransitionReject       Transition = "reject"
	TransitionReleaseProof Transition = "release_proof"
	TransitionSubmit       Transition = "submit_payment"
	TransitionConfirmPay   Transition = "confirm_payment"
	TransitionRejectPay    Transition = "reject_payment"
	TransitionMarkPaid     Transition = "mark_as_paid"
	TransitionRemind       Transition = "remind"
	TransitionDelete       Transition = "delete"
	TransitionHide         Transition = "hide"
)

// transitionRule states who may request a transition and from which debt
// statuses. This table is the single place role checks live; handlers never
// re-derive permissions.
type transitionRule struct {
	creditor bool // the debt's creditor may act
	debtor   bool // the debt's debtor may act
	admin    bool // an admin may act in the owner's stead
	statuses []domain.DebtStatus
}

var transitionRules = map[Transition]transitionRule{
	TransitionCreate: {debtor: true},
	TransitionEdit: {debtor: true, statuses: []domain.DebtStatus{
		domain.DebtStatusPendingConfirmation,
	}},
	TransitionConfirm: {creditor: true, statuses: []domain.DebtStatus{
		domain.DebtStatusPendingConfirmation,
	}},
	TransitionReject: {creditor: true, statuses: []domain.DebtStatus{
		domain.DebtStatusPendingConfirmation,
	}},
	TransitionReleaseProof: {creditor: true, statuses: []domain.DebtStatus{
		domain.DebtStatusPendingConfirmation,
		domain.DebtStatusActive,
	}},
	TransitionSubmit: {debtor: true, statuses: []domain.DebtStatus{
		domain.DebtStatusActive,
		domain.DebtStatusPendingConfirmation,
	}},
	TransitionConfirmPay: {creditor: true, admin: true},
	TransitionRejectPay:  {creditor: true, admin: true},
	TransitionMarkPaid: {creditor: true, statuses: []domain.DebtStatus{
		domain.DebtStatusPendingConfirmation,
		domain.DebtStatusActive,
		domain.DebtStatusAwaitingConfirmation,
	}},
	TransitionRemind: {creditor: true, statuses: []domain.DebtStatus{
		domain.DebtStatusPendingConfirmation,
		domain.DebtStatusActive,
		domain.DebtStatusAwaitingConfirmation,
		domain.DebtStatusRejected,
	}},
	TransitionDelete: {debtor: true, statuses: []domain.DebtStatus{
		domain.DebtStatusPendingConfirmation,
		domain.DebtStatusRejected,
	}},
	TransitionHide: {creditor: true, debtor: true, statuses: []domain.DebtStatus{
		domain.DebtStatusPaid,
	}},
}

// minAmount mirrors the smallest recordable peso amount.
var minAmount = decimal.New(1, -2)

// TransitionResult carries everything a transition changed.
type TransitionResult struct {
	Debt          *domain.Debt
	Payment       *domain.Payment
	Notifications []domain.Notification
}

// LifecycleService owns every debt and payment mutation. Each operation runs
// in one transaction, re-reads its rows there and re-checks the guard before
// writing, so a stale request loses and reports InvalidState instead of
// double-applying.
type LifecycleService struct {
	tx            Transactor
	users         UserFinder
	debts         DebtStore
	payments      PaymentStore
	notifications NotificationStore
	receipts      ReceiptGenerator
	pusher        NotificationPusher
}

func NewLifecycleService(
	tx Transactor,
	users UserFinder,
	debts DebtStore,
	payments PaymentStore,
	notifications NotificationStore,
	receipts ReceiptGenerator,
	pusher NotificationPusher,
) *LifecycleService {
	return &LifecycleService{
		tx:            tx,
		users:         users,
		debts:         debts,
		payments:      payments,
		notifications: notifications,
		receipts:      receipts,
		pusher:        pusher,
	}
}

func (s *LifecycleService) allow(t Transition, actor *domain.User, debt *domain.Debt) error {
	rule, ok := transitionRules[t]
	if !ok {
		return domain.InvalidState(fmt.Sprintf("unknown transition %q", t))
	}

	switch {
	case rule.admin && actor.Role == domain.RoleAdmin:
	case rule.creditor && debt != nil && debt.CreditorID == actor.ID:
	case rule.debtor && debt != nil && debt.DebtorID == actor.ID:
	case rule.debtor && debt == nil && actor.Role == domain.RoleDebtor:
	default:
		return domain.Forbidden("you are not a party to this debt")
	}

	if len(rule.statuses) > 0 && debt != nil {
		for _, st := range rule.statuses {
			if debt.Status == st {
				return nil
			}
		}
		return domain.InvalidState(fmt.Sprintf("debt is %s", debt.Status))
	}
	return nil
}

// loadActiveUser resolves an acting user; deactivated accounts are treated
// as missing.
func loadActiveUser(ctx context.Context, users UserFinder, id int64) (*domain.User, error) {
	u, err := users.ByID(ctx, id)
	if err != nil {
		return nil, domain.Persistence("load user", err)
	}
	if u == nil || !u.IsActive {
		return nil, domain.NotFound("user")
	}
	return u, nil
}

func (s *LifecycleService) loadActor(ctx context.Context, id int64) (*domain.User, error) {
	return loadActiveUser(ctx, s.users, id)
}

func (s *LifecycleService) loadDebt(ctx context.Context, id int64) (*domain.Debt, error) {
	d, err := s.debts.ByID(ctx, id)
	if err != nil {
		return nil, domain.Persistence("load debt", err)
	}
	if d == nil {
		return nil, domain.NotFound("debt")
	}
	return d, nil
}

func (s *LifecycleService) loadPayment(ctx context.Context, id int64) (*domain.Payment, error) {
	p, err := s.payments.ByID(ctx, id)
	if err != nil {
		return nil, domain.Persistence("load payment", err)
	}
	if p == nil {
		return nil, domain.NotFound("payment")
	}
	return p, nil
}

func (s *LifecycleService) notify(ctx context.Context, userID int64, typ domain.NotificationType, msg string, debtID, paymentID *int64) (*domain.Notification, error) {
	n := domain.Notification{
		UserID:    userID,
		Type:      typ,
		Message:   msg,
		DebtID:    debtID,
		PaymentID: paymentID,
	}
	if err := s.notifications.Create(ctx, &n); err != nil {
		return nil, domain.Persistence("create notification", err)
	}
	return &n, nil
}

// push delivers committed notifications over the socket, best effort.
func (s *LifecycleService) push(notifications []domain.Notification) {
	if s.pusher == nil {
		return
	}
	for _, n := range notifications {
		s.pusher.PushNotification(n.UserID, n)
	}
}

// attachReceipt renders the PDF for a freshly completed payment. Runs after
// commit; a failure is logged and the payment stays receiptless.
func (s *LifecycleService) attachReceipt(ctx context.Context, payment *domain.Payment, debt *domain.Debt) {
	if s.receipts == nil || payment == nil {
		return
	}
	path, err := s.receipts.Generate(payment, debt)
	if err != nil {
		log.Printf("[ENGINE] receipt for payment %d failed: %v", payment.ID, err)
		return
	}
	if err := s.payments.SetReceiptFile(ctx, payment.ID, path); err != nil {
		log.Printf("[ENGINE] storing receipt path for payment %d failed: %v", payment.ID, err)
		return
	}
	payment.ReceiptFile = &path
}

func newTransactionID() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("transaction id entropy: %w", err)
	}
	return "TXN-" + strings.ToUpper(hex.EncodeToString(buf)), nil
}

func peso(amount decimal.Decimal) string {
	return "₱" + amount.StringFixed(2)
}

type CreateDebtInput struct {
	CreditorUsername string
	Type             domain.DebtType
	Amount           decimal.Decimal
	ProductName      *string
	Description      *string
	DebtProof        *string
}

func validateDebtFields(typ domain.DebtType, amount decimal.Decimal, productName *string) error {
	if !typ.Valid() {
		return domain.Validation("type", "must be money or product")
	}
	if amount.LessThan(minAmount) {
		return domain.Validation("amount", "must be at least 0.01")
	}
	if typ == domain.DebtTypeProduct && (productName == nil || strings.TrimSpace(*productName) == "") {
		return domain.Validation("product_name", "required for product debts")
	}
	return nil
}

// CreateDebt records a new claim against the actor, addressed to a creditor
// account by username. The debt starts at pending_confirmation.
func (s *LifecycleService) CreateDebt(ctx context.Context, actorID int64, in CreateDebtInput) (*TransitionResult, error) {
	if err := validateDebtFields(in.Type, in.Amount, in.ProductName); err != nil {
		return nil, err
	}

	var res *TransitionResult
	err := s.tx.Atomic(ctx, func(ctx context.Context) error {
		actor, err := s.loadActor(ctx, actorID)
		if err != nil {
			return err
		}
		if err := s.allow(TransitionCreate, actor, nil); err != nil {
			return err
		}

		creditor, err := s.users.ByUsername(ctx, strings.TrimSpace(in.CreditorUsername))
		if err != nil {
			return domain.Persistence("load creditor", err)
		}
		if creditor == nil {
			return domain.Validation("creditor_username", fmt.Sprintf("no creditor found with username %q", in.CreditorUsername))
		}
		if creditor.Role != domain.RoleCreditor {
			return domain.Validation("creditor_username", fmt.Sprintf("user %q is not a creditor account", creditor.Username))
		}

		productName := in.ProductName
		if in.Type == domain.DebtTypeMoney {
			productName = nil
		}

		debt := domain.Debt{
			CreditorID:  creditor.ID,
			DebtorID:    actor.ID,
			Type:        in.Type,
			Amount:      in.Amount,
			ProductName: productName,
			Description: in.Description,
			PaidAmount:  decimal.Zero,
			Status:      domain.DebtStatusPendingConfirmation,
			DebtProof:   in.DebtProof,
		}
		if err := s.debts.Create(ctx, &debt); err != nil {
			return domain.Persistence("create debt", err)
		}
		debt.CreditorUsername = &creditor.Username
		debt.DebtorUsername = &actor.Username

		n, err := s.notify(ctx, creditor.ID, domain.NotificationNewDebt,
			fmt.Sprintf("%s recorded a new debt of %s. Please review and confirm.", actor.Username, peso(debt.Amount)),
			&debt.ID, nil)
		if err != nil {
			return err
		}

		res = &TransitionResult{Debt: &debt, Notifications: []domain.Notification{*n}}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.push(res.Notifications)
	return res, nil
}

type EditDebtInput struct {
	Type        domain.DebtType
	Amount      decimal.Decimal
	ProductName *string
	Description *string
}

// EditDebt rewrites a debt the creditor has not adjudicated yet.
func (s *LifecycleService) EditDebt(ctx context.Context, actorID, debtID int64, in EditDebtInput) (*TransitionResult, error) {
	if err := validateDebtFields(in.Type, in.Amount, in.ProductName); err != nil {
		return nil, err
	}

	var res *TransitionResult
	err := s.tx.Atomic(ctx, func(ctx context.Context) error {
		actor, err := s.loadActor(ctx, actorID)
		if err != nil {
			return err
		}
		debt, err := s.loadDebt(ctx, debtID)
		if err != nil {
			return err
		}
		if err := s.allow(TransitionEdit, actor, debt); err != nil {
			return err
		}

		// paid_amount never exceeds amount; a pending debt can already
		// carry gcash payments.
		if in.Amount.LessThan(debt.PaidAmount) {
			return domain.Validation("amount", "cannot be lower than the amount already paid")
		}

		debt.Type = in.Type
		debt.Amount = in.Amount
		debt.ProductName = in.ProductName
		if in.Type == domain.DebtTypeMoney {
			debt.ProductName = nil
		}
		debt.Description = in.Description

		if err := s.debts.Update(ctx, debt); err != nil {
			return domain.Persistence("update debt", err)
		}

		res = &TransitionResult{Debt: debt}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ConfirmDebt moves a pending debt to active.
func (s *LifecycleService) ConfirmDebt(ctx context.Context, actorID, debtID int64) (*TransitionResult, error) {
	var res *TransitionResult
	err := s.tx.Atomic(ctx, func(ctx context.Context) error {
		actor, err := s.loadActor(ctx, actorID)
		if err != nil {
			return err
		}
		debt, err := s.loadDebt(ctx, debtID)
		if err != nil {
			return err
		}
		if err := s.allow(TransitionConfirm, actor, debt); err != nil {
			return err
		}

		ok, err := s.debts.UpdateStatus(ctx, debt.ID,
			[]domain.DebtStatus{domain.DebtStatusPendingConfirmation}, domain.DebtStatusActive)
		if err != nil {
			return domain.Persistence("update debt status", err)
		}
		if !ok {
			return domain.InvalidState("debt is no longer pending confirmation")
		}
		debt.Status = domain.DebtStatusActive

		n, err := s.notify(ctx, debt.DebtorID, domain.NotificationDebtConfirmed,
			fmt.Sprintf("%s confirmed your debt of %s.", actor.Username, peso(debt.Amount)),
			&debt.ID, nil)
		if err != nil {
			return err
		}

		res = &TransitionResult{Debt: debt, Notifications: []domain.Notification{*n}}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.push(res.Notifications)
	return res, nil
}

// RejectDebt refuses a pending debt. Terminal.
func (s *LifecycleService) RejectDebt(ctx context.Context, actorID, debtID int64) (*TransitionResult, error) {
	var res *TransitionResult
	err := s.tx.Atomic(ctx, func(ctx context.Context) error {
		actor, err := s.loadActor(ctx, actorID)
		if err != nil {
			return err
		}
		debt, err := s.loadDebt(ctx, debtID)
		if err != nil {
			return err
		}
		if err := s.allow(TransitionReject, actor, debt); err != nil {
			return err
		}

		ok, err := s.debts.UpdateStatus(ctx, debt.ID,
			[]domain.DebtStatus{domain.DebtStatusPendingConfirmation}, domain.DebtStatusRejected)
		if err != nil {
			return domain.Persistence("update debt status", err)
		}
		if !ok {
			return domain.InvalidState("debt is no longer pending confirmation")
		}
		debt.Status = domain.DebtStatusRejected

		n, err := s.notify(ctx, debt.DebtorID, domain.NotificationDebtRejected,
			fmt.Sprintf("%s rejected your debt of %s.", actor.Username, peso(debt.Amount)),
			&debt.ID, nil)
		if err != nil {
			return err
		}

		res = &TransitionResult{Debt: debt, Notifications: []domain.Notification{*n}}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.push(res.Notifications)
	return res, nil
}

// UploadReleaseProof attaches the creditor's release document. A pending
// debt is confirmed by it.
func (s *LifecycleService) UploadReleaseProof(ctx context.Context, actorID, debtID int64, proofKey string) (*TransitionResult, error) {
	if strings.TrimSpace(proofKey) == "" {
		return nil, domain.Validation("proof", "proof file is required")
	}

	var res *TransitionResult
	err := s.tx.Atomic(ctx, func(ctx context.Context) error {
		actor, err := s.loadActor(ctx, actorID)
		if err != nil {
			return err
		}
		debt, err := s.loadDebt(ctx, debtID)
		if err != nil {
			return err
		}
		if err := s.allow(TransitionReleaseProof, actor, debt); err != nil {
			return err
		}

		if err := s.debts.SetReleaseProof(ctx, debt.ID, proofKey); err != nil {
			return domain.Persistence("store release proof", err)
		}
		debt.ReleaseProof = &proofKey

		ok, err := s.debts.UpdateStatus(ctx, debt.ID,
			[]domain.DebtStatus{domain.DebtStatusPendingConfirmation, domain.DebtStatusActive},
			domain.DebtStatusActive)
		if err != nil {
			return domain.Persistence("update debt status", err)
		}
		if !ok {
			return domain.InvalidState("debt can no longer be confirmed")
		}
		debt.Status = domain.DebtStatusActive

		n, err := s.notify(ctx, debt.DebtorID, domain.NotificationProofUploaded,
			fmt.Sprintf("%s uploaded a proof of release for your debt of %s.", actor.Username, peso(debt.Amount)),
			&debt.ID, nil)
		if err != nil {
			return err
		}

		res = &TransitionResult{Debt: debt, Notifications: []domain.Notification{*n}}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.push(res.Notifications)
	return res, nil
}

type SubmitPaymentInput struct {
	Method          domain.PaymentMethod
	Amount          decimal.Decimal
	ReferenceNumber *string
	ProofKey        *string
}

// SubmitPayment records a debtor payment. Cash goes through creditor
// adjudication; gcash settles immediately.
func (s *LifecycleService) SubmitPayment(ctx context.Context, actorID, debtID int64, in SubmitPaymentInput) (*TransitionResult, error) {
	if !in.Method.Valid() {
		return nil, domain.Validation("method", "must be cash or gcash")
	}
	if in.Amount.LessThan(minAmount) {
		return nil, domain.Validation("amount", "must be at least 0.01")
	}
	if in.Method == domain.PaymentMethodCash && (in.ProofKey == nil || *in.ProofKey == "") {
		return nil, domain.Validation("proof", "proof of payment is required for cash")
	}

	var res *TransitionResult
	err := s.tx.Atomic(ctx, func(ctx context.Context) error {
		actor, err := s.loadActor(ctx, actorID)
		if err != nil {
			return err
		}
		debt, err := s.loadDebt(ctx, debtID)
		if err != nil {
			return err
		}
		if err := s.allow(TransitionSubmit, actor, debt); err != nil {
			return err
		}

		if in.Amount.GreaterThan(debt.Balance()) {
			return domain.Validation("amount", "cannot exceed the remaining balance")
		}

		switch in.Method {
		case domain.PaymentMethodCash:
			payment := domain.Payment{
				DebtID:      debt.ID,
				PayerID:     actor.ID,
				Amount:      in.Amount,
				Method:      domain.PaymentMethodCash,
				Status:      domain.PaymentStatusPendingConfirmation,
				ReceiptNo:   uuid.NewString(),
				DebtorProof: in.ProofKey,
			}
			if err := s.payments.Create(ctx, &payment); err != nil {
				return domain.Persistence("create payment", err)
			}

			ok, err := s.debts.UpdateStatus(ctx, debt.ID,
				[]domain.DebtStatus{domain.DebtStatusActive, domain.DebtStatusPendingConfirmation},
				domain.DebtStatusAwaitingConfirmation)
			if err != nil {
				return domain.Persistence("update debt status", err)
			}
			if !ok {
				return domain.InvalidState("debt is not accepting payments")
			}
			debt.Status = domain.DebtStatusAwaitingConfirmation

			n, err := s.notify(ctx, debt.CreditorID, domain.NotificationPaymentSubmitted,
				fmt.Sprintf("%s submitted a cash payment of %s for verification.", actor.Username, peso(in.Amount)),
				&debt.ID, &payment.ID)
			if err != nil {
				return err
			}

			res = &TransitionResult{Debt: debt, Payment: &payment, Notifications: []domain.Notification{*n}}

		case domain.PaymentMethodGcash:
			now := time.Now()
			txnID, err := newTransactionID()
			if err != nil {
				return domain.Persistence("generate transaction id", err)
			}

			payment := domain.Payment{
				DebtID:          debt.ID,
				PayerID:         actor.ID,
				Amount:          in.Amount,
				Method:          domain.PaymentMethodGcash,
				Status:          domain.PaymentStatusCompleted,
				ReferenceNumber: in.ReferenceNumber,
				ReceiptNo:       uuid.NewString(),
				TransactionID:   &txnID,
				PaymentDate:     &now,
				VerifiedAt:      &now,
			}
			if err := s.payments.Create(ctx, &payment); err != nil {
				return domain.Persistence("create payment", err)
			}

			target := debt.Status
			var paidAt *time.Time
			if debt.Balance().Sub(in.Amount).LessThanOrEqual(decimal.Zero) {
				target = domain.DebtStatusPaid
				paidAt = &now
			}

			ok, err := s.debts.ApplyPayment(ctx, debt.ID, in.Amount,
				[]domain.DebtStatus{domain.DebtStatusActive, domain.DebtStatusPendingConfirmation},
				target, paidAt)
			if err != nil {
				return domain.Persistence("apply payment", err)
			}
			if !ok {
				return domain.InvalidState("debt is not accepting payments")
			}
			debt.PaidAmount = debt.PaidAmount.Add(in.Amount)
			debt.Status = target
			debt.PaidAt = paidAt

			payerNote, err := s.notify(ctx, actor.ID, domain.NotificationPaymentSuccess,
				fmt.Sprintf("Your GCash payment of %s was successful.", peso(in.Amount)),
				&debt.ID, &payment.ID)
			if err != nil {
				return err
			}
			creditorNote, err := s.notify(ctx, debt.CreditorID, domain.NotificationPaymentReceived,
				fmt.Sprintf("%s paid %s via GCash.", actor.Username, peso(in.Amount)),
				&debt.ID, &payment.ID)
			if err != nil {
				return err
			}

			res = &TransitionResult{Debt: debt, Payment: &payment,
				Notifications: []domain.Notification{*payerNote, *creditorNote}}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if res.Payment != nil && res.Payment.Status == domain.PaymentStatusCompleted {
		s.attachReceipt(ctx, res.Payment, res.Debt)
	}
	s.push(res.Notifications)
	return res, nil
}

// ConfirmCashPayment settles a pending cash payment. The adjudicated amount
// is applied to the debt exactly once.
func (s *LifecycleService) ConfirmCashPayment(ctx context.Context, actorID, paymentID int64) (*TransitionResult, error) {
	var res *TransitionResult
	err := s.tx.Atomic(ctx, func(ctx context.Context) error {
		actor, err := s.loadActor(ctx, actorID)
		if err != nil {
			return err
		}
		payment, err := s.loadPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		debt, err := s.loadDebt(ctx, payment.DebtID)
		if err != nil {
			return err
		}
		if err := s.allow(TransitionConfirmPay, actor, debt); err != nil {
			return err
		}

		if payment.Status != domain.PaymentStatusPendingConfirmation {
			return domain.InvalidState("payment has already been processed")
		}
		if payment.Amount.GreaterThan(debt.Balance()) {
			return domain.InvalidState("payment exceeds the remaining balance")
		}

		now := time.Now()
		txnID, err := newTransactionID()
		if err != nil {
			return domain.Persistence("generate transaction id", err)
		}

		ok, err := s.payments.Complete(ctx, payment.ID, txnID, now)
		if err != nil {
			return domain.Persistence("complete payment", err)
		}
		if !ok {
			return domain.InvalidState("payment has already been processed")
		}
		payment.Status = domain.PaymentStatusCompleted
		payment.TransactionID = &txnID
		payment.PaymentDate = &now
		payment.VerifiedAt = &now

		target := domain.DebtStatusActive
		var paidAt *time.Time
		if debt.Balance().Sub(payment.Amount).LessThanOrEqual(decimal.Zero) {
			target = domain.DebtStatusPaid
			paidAt = &now
		}

		ok, err = s.debts.ApplyPayment(ctx, debt.ID, payment.Amount,
			[]domain.DebtStatus{
				domain.DebtStatusAwaitingConfirmation,
				domain.DebtStatusActive,
				domain.DebtStatusPendingConfirmation,
			},
			target, paidAt)
		if err != nil {
			return domain.Persistence("apply payment", err)
		}
		if !ok {
			return domain.InvalidState("debt changed while confirming, try again")
		}
		debt.PaidAmount = debt.PaidAmount.Add(payment.Amount)
		debt.Status = target
		debt.PaidAt = paidAt

		n, err := s.notify(ctx, payment.PayerID, domain.NotificationPaymentConfirmed,
			fmt.Sprintf("%s confirmed your payment of %s.", actor.Username, peso(payment.Amount)),
			&debt.ID, &payment.ID)
		if err != nil {
			return err
		}

		res = &TransitionResult{Debt: debt, Payment: payment, Notifications: []domain.Notification{*n}}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.attachReceipt(ctx, res.Payment, res.Debt)
	s.push(res.Notifications)
	return res, nil
}

// RejectCashPayment refuses a pending cash payment; the debt goes back to
// active no matter where it stood.
func (s *LifecycleService) RejectCashPayment(ctx context.Context, actorID, paymentID int64) (*TransitionResult, error) {
	var res *TransitionResult
	err := s.tx.Atomic(ctx, func(ctx context.Context) error {
		actor, err := s.loadActor(ctx, actorID)
		if err != nil {
			return err
		}
		payment, err := s.loadPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		debt, err := s.loadDebt(ctx, payment.DebtID)
		if err != nil {
			return err
		}
		if err := s.allow(TransitionRejectPay, actor, debt); err != nil {
			return err
		}

		if payment.Status != domain.PaymentStatusPendingConfirmation {
			return domain.InvalidState("payment has already been processed")
		}

		ok, err := s.payments.Reject(ctx, payment.ID)
		if err != nil {
			return domain.Persistence("reject payment", err)
		}
		if !ok {
			return domain.InvalidState("payment has already been processed")
		}
		payment.Status = domain.PaymentStatusRejected

		ok, err = s.debts.UpdateStatus(ctx, debt.ID,
			[]domain.DebtStatus{
				domain.DebtStatusPendingConfirmation,
				domain.DebtStatusActive,
				domain.DebtStatusAwaitingConfirmation,
				domain.DebtStatusPaid,
				domain.DebtStatusRejected,
			},
			domain.DebtStatusActive)
		if err != nil {
			return domain.Persistence("update debt status", err)
		}
		if !ok {
			return domain.InvalidState("debt disappeared while rejecting")
		}
		debt.Status = domain.DebtStatusActive

		n, err := s.notify(ctx, payment.PayerID, domain.NotificationPaymentRejected,
			fmt.Sprintf("%s rejected your cash payment of %s.", actor.Username, peso(payment.Amount)),
			&debt.ID, &payment.ID)
		if err != nil {
			return err
		}

		res = &TransitionResult{Debt: debt, Payment: payment, Notifications: []domain.Notification{*n}}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.push(res.Notifications)
	return res, nil
}

type MarkAsPaidInput struct {
	// Amount nil means the full remaining balance. Anything above the
	// balance is capped, unlike the debtor submission path which rejects.
	Amount   *decimal.Decimal
	ProofKey string
}

// MarkAsPaid records the creditor's own acknowledgement of settlement as a
// completed cash payment.
func (s *LifecycleService) MarkAsPaid(ctx context.Context, actorID, debtID int64, in MarkAsPaidInput) (*TransitionResult, error) {
	if strings.TrimSpace(in.ProofKey) == "" {
		return nil, domain.Validation("proof", "proof of payment is required")
	}
	if in.Amount != nil && in.Amount.LessThan(minAmount) {
		return nil, domain.Validation("amount", "must be at least 0.01")
	}

	var res *TransitionResult
	err := s.tx.Atomic(ctx, func(ctx context.Context) error {
		actor, err := s.loadActor(ctx, actorID)
		if err != nil {
			return err
		}
		debt, err := s.loadDebt(ctx, debtID)
		if err != nil {
			return err
		}
		if err := s.allow(TransitionMarkPaid, actor, debt); err != nil {
			return err
		}

		balance := debt.Balance()
		if balance.IsZero() {
			return domain.InvalidState("nothing left to pay")
		}

		amount := balance
		if in.Amount != nil && in.Amount.LessThan(balance) {
			amount = *in.Amount
		}

		now := time.Now()
		txnID, err := newTransactionID()
		if err != nil {
			return domain.Persistence("generate transaction id", err)
		}

		payment := domain.Payment{
			DebtID:        debt.ID,
			PayerID:       debt.DebtorID,
			Amount:        amount,
			Method:        domain.PaymentMethodCash,
			Status:        domain.PaymentStatusCompleted,
			ReceiptNo:     uuid.NewString(),
			TransactionID: &txnID,
			CreditorProof: &in.ProofKey,
			PaymentDate:   &now,
			VerifiedAt:    &now,
		}
		if err := s.payments.Create(ctx, &payment); err != nil {
			return domain.Persistence("create payment", err)
		}

		if err := s.debts.SetPaymentProof(ctx, debt.ID, in.ProofKey); err != nil {
			return domain.Persistence("store payment proof", err)
		}
		debt.PaymentProof = &in.ProofKey

		target := debt.Status
		var paidAt *time.Time
		if balance.Sub(amount).LessThanOrEqual(decimal.Zero) {
			target = domain.DebtStatusPaid
			paidAt = &now
		}

		ok, err := s.debts.ApplyPayment(ctx, debt.ID, amount,
			[]domain.DebtStatus{
				domain.DebtStatusPendingConfirmation,
				domain.DebtStatusActive,
				domain.DebtStatusAwaitingConfirmation,
			},
			target, paidAt)
		if err != nil {
			return domain.Persistence("apply payment", err)
		}
		if !ok {
			return domain.InvalidState("debt changed while settling, try again")
		}
		debt.PaidAmount = debt.PaidAmount.Add(amount)
		debt.Status = target
		debt.PaidAt = paidAt

		n, err := s.notify(ctx, debt.DebtorID, domain.NotificationPaymentConfirmed,
			fmt.Sprintf("%s recorded a payment of %s against your debt.", actor.Username, peso(amount)),
			&debt.ID, &payment.ID)
		if err != nil {
			return err
		}

		res = &TransitionResult{Debt: debt, Payment: &payment, Notifications: []domain.Notification{*n}}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.attachReceipt(ctx, res.Payment, res.Debt)
	s.push(res.Notifications)
	return res, nil
}

// SendReminder nudges the debtor with the current balance. No status change.
func (s *LifecycleService) SendReminder(ctx context.Context, actorID, debtID int64) (*TransitionResult, error) {
	var res *TransitionResult
	err := s.tx.Atomic(ctx, func(ctx context.Context) error {
		actor, err := s.loadActor(ctx, actorID)
		if err != nil {
			return err
		}
		debt, err := s.loadDebt(ctx, debtID)
		if err != nil {
			return err
		}
		if err := s.allow(TransitionRemind, actor, debt); err != nil {
			return err
		}

		n, err := s.notify(ctx, debt.DebtorID, domain.NotificationPaymentReminder,
			fmt.Sprintf("Reminder from %s: you still owe %s.", actor.Username, peso(debt.Balance())),
			&debt.ID, nil)
		if err != nil {
			return err
		}

		res = &TransitionResult{Debt: debt, Notifications: []domain.Notification{*n}}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.push(res.Notifications)
	return res, nil
}

// DeleteDebt removes or hides a debt depending on who asks and where it
// stands: the debtor hard-deletes unaccepted or rejected debts, and either
// party hides a settled one from their own view.
func (s *LifecycleService) DeleteDebt(ctx context.Context, actorID, debtID int64) (*TransitionResult, error) {
	var res *TransitionResult
	err := s.tx.Atomic(ctx, func(ctx context.Context) error {
		actor, err := s.loadActor(ctx, actorID)
		if err != nil {
			return err
		}
		debt, err := s.loadDebt(ctx, debtID)
		if err != nil {
			return err
		}

		if debt.CreditorID != actor.ID && debt.DebtorID != actor.ID {
			return domain.Forbidden("you are not a party to this debt")
		}

		if err := s.allow(TransitionDelete, actor, debt); err == nil {
			if err := s.debts.Delete(ctx, debt.ID); err != nil {
				return domain.Persistence("delete debt", err)
			}
			res = &TransitionResult{}
			return nil
		}

		if err := s.allow(TransitionHide, actor, debt); err != nil {
			return err
		}

		side := domain.RoleDebtor
		if debt.CreditorID == actor.ID {
			side = domain.RoleCreditor
		}
		if err := s.debts.SetHidden(ctx, debt.ID, side, true); err != nil {
			return domain.Persistence("hide debt", err)
		}
		if side == domain.RoleDebtor {
			debt.HiddenFromDebtor = true
		} else {
			debt.HiddenFromCreditor = true
		}

		res = &TransitionResult{Debt: debt}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
