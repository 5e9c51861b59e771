package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"debtster/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTx struct{}

func (fakeTx) Atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeUsers struct {
	rows map[int64]*domain.User
}

func (f *fakeUsers) ByID(_ context.Context, id int64) (*domain.User, error) {
	u, ok := f.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) ByUsername(_ context.Context, username string) (*domain.User, error) {
	for _, u := range f.rows {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

type fakeDebts struct {
	seq  int64
	rows map[int64]*domain.Debt
}

func (f *fakeDebts) ByID(_ context.Context, id int64) (*domain.Debt, error) {
	d, ok := f.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (f *fakeDebts) Create(_ context.Context, d *domain.Debt) error {
	f.seq++
	d.ID = f.seq
	d.CreatedAt = time.Now()
	cp := *d
	f.rows[d.ID] = &cp
	return nil
}

func (f *fakeDebts) Update(_ context.Context, d *domain.Debt) error {
	cp := *d
	f.rows[d.ID] = &cp
	return nil
}

func (f *fakeDebts) UpdateStatus(_ context.Context, id int64, from []domain.DebtStatus, to domain.DebtStatus) (bool, error) {
	d, ok := f.rows[id]
	if !ok {
		return false, nil
	}
	for _, st := range from {
		if d.Status == st {
			d.Status = to
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeDebts) ApplyPayment(_ context.Context, id int64, amount decimal.Decimal, from []domain.DebtStatus, to domain.DebtStatus, paidAt *time.Time) (bool, error) {
	d, ok := f.rows[id]
	if !ok {
		return false, nil
	}
	for _, st := range from {
		if d.Status == st {
			d.PaidAmount = d.PaidAmount.Add(amount)
			d.Status = to
			d.PaidAt = paidAt
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeDebts) SetReleaseProof(_ context.Context, id int64, key string) error {
	f.rows[id].ReleaseProof = &key
	return nil
}

func (f *fakeDebts) SetPaymentProof(_ context.Context, id int64, key string) error {
	f.rows[id].PaymentProof = &key
	return nil
}

func (f *fakeDebts) SetHidden(_ context.Context, id int64, side domain.Role, hidden bool) error {
	if side == domain.RoleDebtor {
		f.rows[id].HiddenFromDebtor = hidden
	} else {
		f.rows[id].HiddenFromCreditor = hidden
	}
	return nil
}

func (f *fakeDebts) Delete(_ context.Context, id int64) error {
	delete(f.rows, id)
	return nil
}

type fakePayments struct {
	seq  int64
	rows map[int64]*domain.Payment
}

func (f *fakePayments) ByID(_ context.Context, id int64) (*domain.Payment, error) {
	p, ok := f.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (f *fakePayments) Create(_ context.Context, p *domain.Payment) error {
	f.seq++
	p.ID = f.seq
	p.CreatedAt = time.Now()
	cp := *p
	f.rows[p.ID] = &cp
	return nil
}

func (f *fakePayments) Complete(_ context.Context, id int64, transactionID string, at time.Time) (bool, error) {
	p, ok := f.rows[id]
	if !ok || p.Status != domain.PaymentStatusPendingConfirmation {
		return false, nil
	}
	p.Status = domain.PaymentStatusCompleted
	p.TransactionID = &transactionID
	p.PaymentDate = &at
	p.VerifiedAt = &at
	return true, nil
}

func (f *fakePayments) Reject(_ context.Context, id int64) (bool, error) {
	p, ok := f.rows[id]
	if !ok || p.Status != domain.PaymentStatusPendingConfirmation {
		return false, nil
	}
	p.Status = domain.PaymentStatusRejected
	return true, nil
}

func (f *fakePayments) SetReceiptFile(_ context.Context, id int64, path string) error {
	f.rows[id].ReceiptFile = &path
	return nil
}

type fakeNotifications struct {
	seq  int64
	rows []domain.Notification
}

func (f *fakeNotifications) Create(_ context.Context, n *domain.Notification) error {
	f.seq++
	n.ID = f.seq
	n.CreatedAt = time.Now()
	f.rows = append(f.rows, *n)
	return nil
}

type fakeReceipts struct {
	generated int
}

func (f *fakeReceipts) Generate(p *domain.Payment, d *domain.Debt) (string, error) {
	f.generated++
	return "receipt.pdf", nil
}

type fakePusher struct {
	pushed []domain.Notification
}

func (f *fakePusher) PushNotification(userID int64, n domain.Notification) {
	f.pushed = append(f.pushed, n)
}

type engineEnv struct {
	engine        *LifecycleService
	users         *fakeUsers
	debts         *fakeDebts
	payments      *fakePayments
	notifications *fakeNotifications
	receipts      *fakeReceipts
	pusher        *fakePusher
}

const (
	creditorID = 1
	debtorID   = 2
	adminID    = 3
	strangerID = 4
	inactiveID = 5
)

func newEngineEnv() *engineEnv {
	users := &fakeUsers{rows: map[int64]*domain.User{
		creditorID: {ID: creditorID, Username: "maria", Role: domain.RoleCreditor, IsActive: true},
		debtorID:   {ID: debtorID, Username: "juan", Role: domain.RoleDebtor, IsActive: true},
		adminID:    {ID: adminID, Username: "root", Role: domain.RoleAdmin, IsActive: true},
		strangerID: {ID: strangerID, Username: "pedro", Role: domain.RoleDebtor, IsActive: true},
		inactiveID: {ID: inactiveID, Username: "ghost", Role: domain.RoleDebtor, IsActive: false},
	}}
	debts := &fakeDebts{rows: map[int64]*domain.Debt{}}
	payments := &fakePayments{rows: map[int64]*domain.Payment{}}
	notifications := &fakeNotifications{}
	receipts := &fakeReceipts{}
	pusher := &fakePusher{}

	return &engineEnv{
		engine:        NewLifecycleService(fakeTx{}, users, debts, payments, notifications, receipts, pusher),
		users:         users,
		debts:         debts,
		payments:      payments,
		notifications: notifications,
		receipts:      receipts,
		pusher:        pusher,
	}
}

func (e *engineEnv) seedDebt(t *testing.T, amount string, status domain.DebtStatus) *domain.Debt {
	t.Helper()
	debt := &domain.Debt{
		CreditorID: creditorID,
		DebtorID:   debtorID,
		Type:       domain.DebtTypeMoney,
		Amount:     dec(amount),
		PaidAmount: decimal.Zero,
		Status:     status,
	}
	require.NoError(t, e.debts.Create(context.Background(), debt))
	return debt
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCreateDebt(t *testing.T) {
	env := newEngineEnv()
	ctx := context.Background()

	res, err := env.engine.CreateDebt(ctx, debtorID, CreateDebtInput{
		CreditorUsername: "maria",
		Type:             domain.DebtTypeMoney,
		Amount:           dec("1000"),
	})
	require.NoError(t, err)

	assert.Equal(t, domain.DebtStatusPendingConfirmation, res.Debt.Status)
	assert.Equal(t, int64(creditorID), res.Debt.CreditorID)
	assert.Equal(t, int64(debtorID), res.Debt.DebtorID)
	assert.True(t, res.Debt.Balance().Equal(dec("1000")))

	require.Len(t, res.Notifications, 1)
	assert.Equal(t, int64(creditorID), res.Notifications[0].UserID)
	assert.Equal(t, domain.NotificationNewDebt, res.Notifications[0].Type)
	assert.Len(t, env.pusher.pushed, 1)
}

func TestCreateDebt_Validation(t *testing.T) {
	env := newEngineEnv()
	ctx := context.Background()

	cases := []struct {
		name string
		in   CreateDebtInput
	}{
		{"amount below minimum", CreateDebtInput{CreditorUsername: "maria", Type: domain.DebtTypeMoney, Amount: dec("0")}},
		{"product without name", CreateDebtInput{CreditorUsername: "maria", Type: domain.DebtTypeProduct, Amount: dec("100")}},
		{"unknown creditor", CreateDebtInput{CreditorUsername: "nobody", Type: domain.DebtTypeMoney, Amount: dec("100")}},
		{"creditor username is not a creditor", CreateDebtInput{CreditorUsername: "pedro", Type: domain.DebtTypeMoney, Amount: dec("100")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.engine.CreateDebt(ctx, debtorID, tc.in)
			assert.True(t, domain.IsKind(err, domain.KindValidation), "expected validation error, got %v", err)
		})
	}
}

func TestCreateDebt_CreditorCannotCreate(t *testing.T) {
	env := newEngineEnv()

	_, err := env.engine.CreateDebt(context.Background(), creditorID, CreateDebtInput{
		CreditorUsername: "maria",
		Type:             domain.DebtTypeMoney,
		Amount:           dec("100"),
	})
	assert.True(t, domain.IsKind(err, domain.KindForbidden), "got %v", err)
}

func TestCreateDebt_InactiveActor(t *testing.T) {
	env := newEngineEnv()

	_, err := env.engine.CreateDebt(context.Background(), inactiveID, CreateDebtInput{
		CreditorUsername: "maria",
		Type:             domain.DebtTypeMoney,
		Amount:           dec("100"),
	})
	assert.True(t, domain.IsKind(err, domain.KindNotFound), "got %v", err)
}

func TestCreateDebt_MoneyDropsProductName(t *testing.T) {
	env := newEngineEnv()

	name := "bicycle"
	res, err := env.engine.CreateDebt(context.Background(), debtorID, CreateDebtInput{
		CreditorUsername: "maria",
		Type:             domain.DebtTypeMoney,
		Amount:           dec("100"),
		ProductName:      &name,
	})
	require.NoError(t, err)
	assert.Nil(t, res.Debt.ProductName)
}

func TestConfirmDebt(t *testing.T) {
	env := newEngineEnv()
	ctx := context.Background()
	debt := env.seedDebt(t, "1000", domain.DebtStatusPendingConfirmation)

	res, err := env.engine.ConfirmDebt(ctx, creditorID, debt.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DebtStatusActive, res.Debt.Status)

	require.Len(t, res.Notifications, 1)
	assert.Equal(t, int64(debtorID), res.Notifications[0].UserID)
	assert.Equal(t, domain.NotificationDebtConfirmed, res.Notifications[0].Type)

	// confirmation is exactly-once
	_, err = env.engine.ConfirmDebt(ctx, creditorID, debt.ID)
	assert.True(t, domain.IsKind(err, domain.KindInvalidState), "got %v", err)
}

func TestConfirmDebt_OnlyCreditor(t *testing.T) {
	env := newEngineEnv()
	ctx := context.Background()
	debt := env.seedDebt(t, "1000", domain.DebtStatusPendingConfirmation)

	_, err := env.engine.ConfirmDebt(ctx, debtorID, debt.ID)
	assert.True(t, domain.IsKind(err, domain.KindForbidden), "got %v", err)

	_, err = env.engine.ConfirmDebt(ctx, strangerID, debt.ID)
	assert.True(t, domain.IsKind(err, domain.KindForbidden), "got %v", err)
}

func TestRejectDebt(t *testing.T) {
	env := newEngineEnv()
	ctx := context.Background()
	debt := env.seedDebt(t, "1000", domain.DebtStatusPendingConfirmation)

	res, err := env.engine.RejectDebt(ctx, creditorID, debt.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DebtStatusRejected, res.Debt.Status)
	require.Len(t, res.Notifications, 1)
	assert.Equal(t, domain.NotificationDebtRejected, res.Notifications[0].Type)

	// rejected debts accept no payments
	proof := "proofs/p.jpg"
	_, err = env.engine.SubmitPayment(ctx, debtorID, debt.ID, SubmitPaymentInput{
		Method:   domain.PaymentMethodCash,
		Amount:   dec("100"),
		ProofKey: &proof,
	})
	assert.True(t, domain.IsKind(err, domain.KindInvalidState), "got %v", err)
}

func TestEditDebt(t *testing.T) {
	env := newEngineEnv()
	ctx := context.Background()
	debt := env.seedDebt(t, "1000", domain.DebtStatusPendingConfirmation)

	res, err := env.engine.EditDebt(ctx, debtorID, debt.ID, EditDebtInput{
		Type:   domain.DebtTypeMoney,
		Amount: dec("750"),
	})
	require.NoError(t, err)
	assert.True(t, res.Debt.Amount.Equal(dec("750")))

	// editing ends once the creditor confirms
	_, err = env.engine.ConfirmDebt(ctx, creditorID, debt.ID)
	require.NoError(t, err)
	_, err = env.engine.EditDebt(ctx, debtorID, debt.ID, EditDebtInput{
		Type:   domain.DebtTypeMoney,
		Amount: dec("500"),
	})
	assert.True(t, domain.IsKind(err, domain.KindInvalidState), "got %v", err)
}

func TestEditDebt_CannotShrinkBelowPaidAmount(t *testing.T) {
	env := newEngineEnv()
	ctx := context.Background()
	debt := env.seedDebt(t, "1000", domain.DebtStatusPendingConfirmation)

	// a gcash payment is legal while the debt is still pending
	_, err := env.engine.SubmitPayment(ctx, debtorID, debt.ID, SubmitPaymentInput{
		Method: domain.PaymentMethodGcash,
		Amount: dec("400"),
	})
	require.NoError(t, err)
	require.Equal(t, domain.DebtStatusPendingConfirmation, env.debts.rows[debt.ID].Status)
	require.True(t, env.debts.rows[debt.ID].PaidAmount.Equal(dec("400")))

	// shrinking the amount below what was already paid must fail
	_, err = env.engine.EditDebt(ctx, debtorID, debt.ID, EditDebtInput{
		Type:   domain.DebtTypeMoney,
		Amount: dec("100"),
	})
	assert.True(t, domain.IsKind(err, domain.KindValidation), "got %v", err)
	assert.True(t, env.debts.rows[debt.ID].Amount.Equal(dec("1000")))

	// down to exactly the paid amount is still a valid debt
	res, err := env.engine.EditDebt(ctx, debtorID, debt.ID, EditDebtInput{
		Type:   domain.DebtTypeMoney,
		Amount: dec("400"),
	})
	require.NoError(t, err)
	assert.True(t, res.Debt.Balance().IsZero())
}

func TestUploadReleaseProof_ConfirmsPendingDebt(t *testing.T) {
	env := newEngineEnv()
	ctx := context.Background()
	debt := env.seedDebt(t, "1000", domain.DebtStatusPendingConfirmation)

	res, err := env.engine.UploadReleaseProof(ctx, creditorID, debt.ID, "proofs/release.jpg")
	require.NoError(t, err)
	assert.Equal(t, domain.DebtStatusActive, res.Debt.Status)
	require.NotNil(t, res.Debt.ReleaseProof)
	assert.Equal(t, "proofs/release.jpg", *res.Debt.ReleaseProof)
	require.Len(t, res.Notifications, 1)
	assert.Equal(t, domain.NotificationProofUploaded, res.Notifications[0].Type)
}

func TestSubmitPayment_GcashSettlesFullBalance(t *testing.T) {
	env := newEngineEnv()
	ctx := context.Background()
	debt := env.seedDebt(t, "1000", domain.DebtStatusActive)

	res, err := env.engine.SubmitPayment(ctx, debtorID, debt.ID, SubmitPaymentInput{
		Method: domain.PaymentMethodGcash,
		Amount: dec("1000"),
	})
	require.NoError(t, err)

	assert.Equal(t, domain.DebtStatusPaid, res.Debt.Status)
	assert.NotNil(t, res.Debt.PaidAt)
	assert.True(t, res.Debt.Balance().IsZero())

	require.NotNil(t, res.Payment)
	assert.Equal(t, domain.PaymentStatusCompleted, res.Payment.Status)
	require.NotNil(t, res.Payment.TransactionID)
	assert.True(t, strings.HasPrefix(*res.Payment.TransactionID, "TXN-"))
	assert.NotEmpty(t, res.Payment.ReceiptNo)

	// gcash notifies both sides
	require.Len(t, res.Notifications, 2)
	assert.Equal(t, int64(debtorID), res.Notifications[0].UserID)
	assert.Equal(t, domain.NotificationPaymentSuccess, res.Notifications[0].Type)
	assert.Equal(t, int64(creditorID), res.Notifications[1].UserID)
	assert.Equal(t, domain.NotificationPaymentReceived, res.Notifications[1].Type)

	// completed payments get a receipt
	assert.Equal(t, 1, env.receipts.generated)
	require.NotNil(t, res.Payment.ReceiptFile)
	assert.Len(t, env.pusher.pushed, 2)
}

func TestSubmitPayment_GcashPartialKeepsActive(t *testing.T) {
	env := newEngineEnv()
	ctx := context.Background()
	debt := env.seedDebt(t, "1000", domain.DebtStatusActive)

	res, err := env.engine.SubmitPayment(ctx, debtorID, debt.ID, SubmitPaymentInput{
		Method: domain.PaymentMethodGcash,
		Amount: dec("400"),
	})
	require.NoError(t, err)

	assert.Equal(t, domain.DebtStatusActive, res.Debt.Status)
	assert.Nil(t, res.Debt.PaidAt)
	assert.True(t, res.Debt.Balance().Equal(dec("600")))
}

func TestSubmitPayment_CashGoesToAdjudication(t *testing.T) {
	env := newEngineEnv()
	ctx := context.Background()
	debt := env.seedDebt(t, "1000", domain.DebtStatusActive)

	proof := "proofs/cash.jpg"
	res, err := env.engine.SubmitPayment(ctx, debtorID, debt.ID, SubmitPaymentInput{
		Method:   domain.PaymentMethodCash,
		Amount:   dec("400"),
		ProofKey: &proof,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.DebtStatusAwaitingConfirmation, res.Debt.Status)
	assert.Equal(t, domain.PaymentStatusPendingConfirmation, res.Payment.Status)
	// the balance moves only after the creditor confirms
	assert.True(t, res.Debt.Balance().Equal(dec("1000")))

	require.Len(t, res.Notifications, 1)
	assert.Equal(t, int64(creditorID), res.Notifications[0].UserID)
	assert.Equal(t, domain.NotificationPaymentSubmitted, res.Notifications[0].Type)

	// no receipt while pending
	assert.Equal(t, 0, env.receipts.generated)
}

func TestSubmitPayment_Validation(t *testing.T) {
	env := newEngineEnv()
	ctx := context.Background()
	debt := env.seedDebt(t, "1000", domain.DebtStatusActive)

	// cash requires a proof file
	_, err := env.engine.SubmitPayment(ctx, debtorID, debt.ID, SubmitPaymentInput{
		Method: domain.PaymentMethodCash,
		Amount: dec("100"),
	})
	assert.True(t, domain.IsKind(err, domain.KindValidation), "got %v", err)

	// a debtor payment can never exceed the balance
	_, err = env.engine.SubmitPayment(ctx, debtorID, debt.ID, SubmitPaymentInput{
		Method: domain.PaymentMethodGcash,
		Amount: dec("1000.01"),
	})
	assert.True(t, domain.IsKind(err, domain.KindValidation), "got %v", err)

	// only the debtor pays
	_, err = env.engine.SubmitPayment(ctx, creditorID, debt.ID, SubmitPaymentInput{
		Method: domain.PaymentMethodGcash,
		Amount: dec("100"),
	})
	assert.True(t, domain.IsKind(err, domain.KindForbidden), "got %v", err)
}

func TestConfirmCashPayment(t *testing.T) {
	env := newEngineEnv()
	ctx := context.Background()
	debt := env.seedDebt(t, "1000", domain.DebtStatusActive)

	proof := "proofs/cash.jpg"
	submitRes, err := env.engine.SubmitPayment(ctx, debtorID, debt.ID, SubmitPaymentInput{
		Method:   domain.PaymentMethodCash,
		Amount:   dec("400"),
		ProofKey: &proof,
	})
	require.NoError(t, err)

	res, err := env.engine.ConfirmCashPayment(ctx, creditorID, submitRes.Payment.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.PaymentStatusCompleted, res.Payment.Status)
	assert.Equal(t, domain.DebtStatusActive, res.Debt.Status)
	assert.True(t, res.Debt.Balance().Equal(dec("600")))

	require.Len(t, res.Notifications, 1)
	assert.Equal(t, int64(debtorID), res.Notifications[0].UserID)
	assert.Equal(t, domain.NotificationPaymentConfirmed, res.Notifications[0].Type)
	assert.Equal(t, 1, env.receipts.generated)

	// the amount is applied exactly once
	_, err = env.engine.ConfirmCashPayment(ctx, creditorID, submitRes.Payment.ID)
	assert.True(t, domain.IsKind(err, domain.KindInvalidState), "got %v", err)
	assert.True(t, env.debts.rows[debt.ID].PaidAmount.Equal(dec("400")))
}

func TestConfirmCashPayment_FullAmountSettles(t *testing.T) {
	env := newEngineEnv()
	ctx := context.Background()
	debt := env.seedDebt(t, "500", domain.DebtStatusActive)

	proof := "proofs/cash.jpg"
	submitRes, err := env.engine.SubmitPayment(ctx, debtorID, debt.ID, SubmitPaymentInput{
		Method:   domain.PaymentMethodCash,
		Amount:   dec("500"),
		ProofKey: &proof,
	})
	require.NoError(t, err)

	res, err := env.engine.ConfirmCashPayment(ctx, adminID, submitRes.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DebtStatusPaid, res.Debt.Status)
	assert.NotNil(t, res.Debt.PaidAt)
}

func TestRejectCashPayment_DebtReturnsToActive(t *testing.T) {
	env := newEngineEnv()
	ctx := context.Background()
	debt := env.seedDebt(t, "1000", domain.DebtStatusActive)

	proof := "proofs/cash.jpg"
	submitRes, err := env.engine.SubmitPayment(ctx, debtorID, debt.ID, SubmitPaymentInput{
		Method:   domain.PaymentMethodCash,
		Amount:   dec("400"),
		ProofKey: &proof,
	})
	require.NoError(t, err)

	res, err := env.engine.RejectCashPayment(ctx, creditorID, submitRes.Payment.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.PaymentStatusRejected, res.Payment.Status)
	assert.Equal(t, domain.DebtStatusActive, res.Debt.Status)
	assert.True(t, res.Debt.Balance().Equal(dec("1000")))

	require.Len(t, res.Notifications, 1)
	assert.Equal(t, domain.NotificationPaymentRejected, res.Notifications[0].Type)

	// a rejected payment stays rejected
	_, err = env.engine.ConfirmCashPayment(ctx, creditorID, submitRes.Payment.ID)
	assert.True(t, domain.IsKind(err, domain.KindInvalidState), "got %v", err)
}

func TestMarkAsPaid_FullBalanceByDefault(t *testing.T) {
	env := newEngineEnv()
	ctx := context.Background()
	debt := env.seedDebt(t, "1000", domain.DebtStatusActive)

	res, err := env.engine.MarkAsPaid(ctx, creditorID, debt.ID, MarkAsPaidInput{
		ProofKey: "proofs/settled.jpg",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.DebtStatusPaid, res.Debt.Status)
	assert.True(t, res.Debt.Balance().IsZero())
	assert.NotNil(t, res.Debt.PaidAt)

	require.NotNil(t, res.Payment)
	assert.True(t, res.Payment.Amount.Equal(dec("1000")))
	assert.Equal(t, domain.PaymentStatusCompleted, res.Payment.Status)
	assert.Equal(t, int64(debtorID), res.Payment.PayerID)
	assert.Equal(t, 1, env.receipts.generated)
}

func TestMarkAsPaid_OvershootIsCapped(t *testing.T) {
	env := newEngineEnv()
	ctx := context.Background()
	debt := env.seedDebt(t, "1000", domain.DebtStatusActive)

	over := dec("5000")
	res, err := env.engine.MarkAsPaid(ctx, creditorID, debt.ID, MarkAsPaidInput{
		Amount:   &over,
		ProofKey: "proofs/settled.jpg",
	})
	require.NoError(t, err)

	// unlike the debtor path, the creditor path caps silently
	assert.True(t, res.Payment.Amount.Equal(dec("1000")))
	assert.Equal(t, domain.DebtStatusPaid, res.Debt.Status)
	assert.True(t, res.Debt.Balance().IsZero())
}

func TestMarkAsPaid_PartialAmount(t *testing.T) {
	env := newEngineEnv()
	ctx := context.Background()
	debt := env.seedDebt(t, "1000", domain.DebtStatusActive)

	part := dec("250")
	res, err := env.engine.MarkAsPaid(ctx, creditorID, debt.ID, MarkAsPaidInput{
		Amount:   &part,
		ProofKey: "proofs/partial.jpg",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.DebtStatusActive, res.Debt.Status)
	assert.True(t, res.Debt.Balance().Equal(dec("750")))
}

func TestMarkAsPaid_NothingLeft(t *testing.T) {
	env := newEngineEnv()
	ctx := context.Background()
	debt := env.seedDebt(t, "1000", domain.DebtStatusActive)

	_, err := env.engine.MarkAsPaid(ctx, creditorID, debt.ID, MarkAsPaidInput{ProofKey: "p.jpg"})
	require.NoError(t, err)

	// the debt landed on paid, the rule table blocks a second attempt
	_, err = env.engine.MarkAsPaid(ctx, creditorID, debt.ID, MarkAsPaidInput{ProofKey: "p.jpg"})
	assert.True(t, domain.IsKind(err, domain.KindInvalidState), "got %v", err)
}

func TestSendReminder(t *testing.T) {
	env := newEngineEnv()
	ctx := context.Background()
	debt := env.seedDebt(t, "1000", domain.DebtStatusActive)

	res, err := env.engine.SendReminder(ctx, creditorID, debt.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.DebtStatusActive, res.Debt.Status)
	require.Len(t, res.Notifications, 1)
	assert.Equal(t, int64(debtorID), res.Notifications[0].UserID)
	assert.Equal(t, domain.NotificationPaymentReminder, res.Notifications[0].Type)
	assert.Contains(t, res.Notifications[0].Message, "1000.00")
}

func TestDeleteDebt_DebtorDeletesPending(t *testing.T) {
	env := newEngineEnv()
	ctx := context.Background()
	debt := env.seedDebt(t, "1000", domain.DebtStatusPendingConfirmation)

	res, err := env.engine.DeleteDebt(ctx, debtorID, debt.ID)
	require.NoError(t, err)
	assert.Nil(t, res.Debt)
	_, gone := env.debts.rows[debt.ID]
	assert.False(t, gone)
}

func TestDeleteDebt_PaidDebtIsHiddenPerSide(t *testing.T) {
	env := newEngineEnv()
	ctx := context.Background()
	debt := env.seedDebt(t, "1000", domain.DebtStatusPaid)

	res, err := env.engine.DeleteDebt(ctx, debtorID, debt.ID)
	require.NoError(t, err)
	require.NotNil(t, res.Debt)
	assert.True(t, res.Debt.HiddenFromDebtor)
	assert.False(t, res.Debt.HiddenFromCreditor)

	res, err = env.engine.DeleteDebt(ctx, creditorID, debt.ID)
	require.NoError(t, err)
	assert.True(t, res.Debt.HiddenFromCreditor)

	// the row itself survives
	_, exists := env.debts.rows[debt.ID]
	assert.True(t, exists)
}

func TestDeleteDebt_ActiveDebtCannotGo(t *testing.T) {
	env := newEngineEnv()
	ctx := context.Background()
	debt := env.seedDebt(t, "1000", domain.DebtStatusActive)

	_, err := env.engine.DeleteDebt(ctx, debtorID, debt.ID)
	assert.True(t, domain.IsKind(err, domain.KindInvalidState), "got %v", err)

	_, err = env.engine.DeleteDebt(ctx, strangerID, debt.ID)
	assert.True(t, domain.IsKind(err, domain.KindForbidden), "got %v", err)
}

// Full walk: record, confirm, partial cash, settle the rest with gcash.
func TestLifecycle_EndToEnd(t *testing.T) {
	env := newEngineEnv()
	ctx := context.Background()

	created, err := env.engine.CreateDebt(ctx, debtorID, CreateDebtInput{
		CreditorUsername: "maria",
		Type:             domain.DebtTypeMoney,
		Amount:           dec("1000"),
	})
	require.NoError(t, err)
	debtID := created.Debt.ID

	_, err = env.engine.ConfirmDebt(ctx, creditorID, debtID)
	require.NoError(t, err)

	proof := "proofs/cash.jpg"
	submitted, err := env.engine.SubmitPayment(ctx, debtorID, debtID, SubmitPaymentInput{
		Method:   domain.PaymentMethodCash,
		Amount:   dec("400"),
		ProofKey: &proof,
	})
	require.NoError(t, err)

	confirmed, err := env.engine.ConfirmCashPayment(ctx, creditorID, submitted.Payment.ID)
	require.NoError(t, err)
	require.True(t, confirmed.Debt.Balance().Equal(dec("600")))

	final, err := env.engine.SubmitPayment(ctx, debtorID, debtID, SubmitPaymentInput{
		Method: domain.PaymentMethodGcash,
		Amount: dec("600"),
	})
	require.NoError(t, err)

	assert.Equal(t, domain.DebtStatusPaid, final.Debt.Status)
	assert.True(t, final.Debt.Balance().IsZero())
	assert.True(t, env.debts.rows[debtID].PaidAmount.Equal(dec("1000")))
	assert.Equal(t, 2, env.receipts.generated)
}
