package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"debtster/internal/clients"
	"debtster/internal/domain"
	"debtster/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentQueries interface {
	List(ctx context.Context, f repository.PaymentsFilter) ([]domain.Payment, error)
	ByID(ctx context.Context, id int64) (*domain.Payment, error)
}

type DebtFinder interface {
	ByID(ctx context.Context, id int64) (*domain.Debt, error)
}

// IntentStore holds short-lived gcash checkout intents.
type IntentStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

// PaymentSubmitter is the engine operation the checkout flow lands on.
type PaymentSubmitter interface {
	SubmitPayment(ctx context.Context, actorID, debtID int64, in SubmitPaymentInput) (*TransitionResult, error)
}

const (
	checkoutTTL       = 15 * time.Minute
	checkoutKeyPrefix = "gcash_intent:"
)

// PaymentService answers payment history questions and drives the mock
// GCash checkout. Actual state changes happen in LifecycleService.
type PaymentService struct {
	payments PaymentQueries
	debts    DebtFinder
	users    UserFinder
	engine   PaymentSubmitter
	intents  IntentStore
}

func NewPaymentService(
	payments PaymentQueries,
	debts DebtFinder,
	users UserFinder,
	engine PaymentSubmitter,
	intents IntentStore,
) *PaymentService {
	return &PaymentService{
		payments: payments,
		debts:    debts,
		users:    users,
		engine:   engine,
		intents:  intents,
	}
}

type ListPaymentsInput struct {
	Method          *domain.PaymentMethod
	Status          *domain.PaymentStatus
	IncludeRejected bool
	DateFrom        *time.Time
	DateTo          *time.Time
	Limit           int64
}

// List returns the actor's transaction history, newest first. Debtors see
// what they paid, creditors what was paid to them, admins everything.
// Rejected payments stay out unless asked for.
func (s *PaymentService) List(ctx context.Context, actorID int64, in ListPaymentsInput) ([]domain.Payment, error) {
	actor, err := loadActiveUser(ctx, s.users, actorID)
	if err != nil {
		return nil, err
	}

	f := repository.PaymentsFilter{
		Method:          in.Method,
		Status:          in.Status,
		ExcludeRejected: !in.IncludeRejected && in.Status == nil,
		DateFrom:        in.DateFrom,
		DateTo:          in.DateTo,
		Limit:           in.Limit,
	}
	switch actor.Role {
	case domain.RoleDebtor:
		f.PayerID = &actor.ID
	case domain.RoleCreditor:
		f.UserID = &actor.ID
	}

	payments, err := s.payments.List(ctx, f)
	if err != nil {
		return nil, domain.Persistence("list payments", err)
	}
	return payments, nil
}

// ReceiptFile resolves the stored receipt file name for a payment, checking
// the actor is a party to the underlying debt.
func (s *PaymentService) ReceiptFile(ctx context.Context, actorID, paymentID int64) (string, error) {
	actor, err := loadActiveUser(ctx, s.users, actorID)
	if err != nil {
		return "", err
	}

	payment, err := s.payments.ByID(ctx, paymentID)
	if err != nil {
		return "", domain.Persistence("load payment", err)
	}
	if payment == nil {
		return "", domain.NotFound("payment")
	}

	debt, err := s.debts.ByID(ctx, payment.DebtID)
	if err != nil {
		return "", domain.Persistence("load debt", err)
	}
	if actor.Role != domain.RoleAdmin &&
		(debt == nil || (debt.CreditorID != actor.ID && debt.DebtorID != actor.ID)) {
		return "", domain.Forbidden("you are not a party to this payment")
	}

	if payment.ReceiptFile == nil || *payment.ReceiptFile == "" {
		return "", domain.NotFound("receipt")
	}
	return *payment.ReceiptFile, nil
}

// checkoutIntent is what survives between the two gcash steps.
type checkoutIntent struct {
	DebtID          int64           `json:"debt_id"`
	PayerID         int64           `json:"payer_id"`
	Amount          decimal.Decimal `json:"amount"`
	ReferenceNumber *string         `json:"reference_number,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

type Checkout struct {
	CheckoutID string
	DebtID     int64
	Amount     decimal.Decimal
	ExpiresAt  time.Time
}

// BeginGcashCheckout validates the attempt and parks it in Redis for the
// mock gateway round-trip. Nothing is written to the ledger yet; the debt is
// re-checked when the checkout is confirmed.
func (s *PaymentService) BeginGcashCheckout(ctx context.Context, actorID, debtID int64, amount decimal.Decimal, reference *string) (*Checkout, error) {
	if amount.LessThan(minAmount) {
		return nil, domain.Validation("amount", "must be at least 0.01")
	}

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
	if debt.DebtorID != actor.ID {
		return nil, domain.Forbidden("you are not the debtor of this debt")
	}
	if debt.Status != domain.DebtStatusActive && debt.Status != domain.DebtStatusPendingConfirmation {
		return nil, domain.InvalidState("debt is not accepting payments")
	}
	if amount.GreaterThan(debt.Balance()) {
		return nil, domain.Validation("amount", "cannot exceed the remaining balance")
	}

	intent := checkoutIntent{
		DebtID:          debtID,
		PayerID:         actor.ID,
		Amount:          amount,
		ReferenceNumber: reference,
		CreatedAt:       time.Now(),
	}
	data, err := json.Marshal(intent)
	if err != nil {
		return nil, domain.Persistence("encode checkout intent", err)
	}

	checkoutID := uuid.NewString()
	if err := s.intents.Set(ctx, checkoutKeyPrefix+checkoutID, string(data), checkoutTTL); err != nil {
		return nil, domain.Persistence("store checkout intent", err)
	}

	return &Checkout{
		CheckoutID: checkoutID,
		DebtID:     debtID,
		Amount:     amount,
		ExpiresAt:  intent.CreatedAt.Add(checkoutTTL),
	}, nil
}

// ConfirmGcashCheckout consumes the intent and runs the gcash transition.
// The intent is deleted first so a double callback cannot pay twice.
func (s *PaymentService) ConfirmGcashCheckout(ctx context.Context, actorID int64, checkoutID string) (*TransitionResult, error) {
	key := checkoutKeyPrefix + checkoutID

	data, err := s.intents.Get(ctx, key)
	if errors.Is(err, clients.ErrCacheMiss) {
		return nil, domain.NotFound("checkout")
	}
	if err != nil {
		return nil, domain.Persistence("load checkout intent", err)
	}
	if err := s.intents.Del(ctx, key); err != nil {
		return nil, domain.Persistence("consume checkout intent", err)
	}

	var intent checkoutIntent
	if err := json.Unmarshal([]byte(data), &intent); err != nil {
		return nil, domain.Persistence("decode checkout intent", err)
	}
	if intent.PayerID != actorID {
		return nil, domain.Forbidden("checkout belongs to another user")
	}

	return s.engine.SubmitPayment(ctx, actorID, intent.DebtID, SubmitPaymentInput{
		Method:          domain.PaymentMethodGcash,
		Amount:          intent.Amount,
		ReferenceNumber: intent.ReferenceNumber,
	})
}
