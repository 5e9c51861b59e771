package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"debtster/internal/clients"
	"debtster/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIntents struct {
	values map[string]string
	getErr error
}

func newFakeIntents() *fakeIntents {
	return &fakeIntents{values: map[string]string{}}
}

func (f *fakeIntents) Set(_ context.Context, key string, value any, _ time.Duration) error {
	f.values[key] = fmt.Sprint(value)
	return nil
}

func (f *fakeIntents) Get(_ context.Context, key string) (string, error) {
	if f.getErr != nil {
		return "", f.getErr
	}
	v, ok := f.values[key]
	if !ok {
		return "", clients.ErrCacheMiss
	}
	return v, nil
}

func (f *fakeIntents) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.values, k)
	}
	return nil
}

func newCheckoutEnv() (*PaymentService, *engineEnv, *fakeIntents) {
	env := newEngineEnv()
	intents := newFakeIntents()
	svc := NewPaymentService(nil, env.debts, env.users, env.engine, intents)
	return svc, env, intents
}

func TestBeginGcashCheckout(t *testing.T) {
	svc, env, intents := newCheckoutEnv()
	ctx := context.Background()
	debt := env.seedDebt(t, "1000", domain.DebtStatusActive)

	before := time.Now()
	checkout, err := svc.BeginGcashCheckout(ctx, debtorID, debt.ID, dec("600"), nil)
	require.NoError(t, err)

	assert.NotEmpty(t, checkout.CheckoutID)
	assert.Equal(t, debt.ID, checkout.DebtID)
	assert.True(t, checkout.Amount.Equal(dec("600")))
	assert.WithinDuration(t, before.Add(15*time.Minute), checkout.ExpiresAt, 5*time.Second)

	// the intent is parked, the ledger untouched
	_, stored := intents.values["gcash_intent:"+checkout.CheckoutID]
	assert.True(t, stored)
	assert.Equal(t, domain.DebtStatusActive, env.debts.rows[debt.ID].Status)
	assert.True(t, env.debts.rows[debt.ID].PaidAmount.IsZero())
}

func TestBeginGcashCheckout_Rejections(t *testing.T) {
	svc, env, _ := newCheckoutEnv()
	ctx := context.Background()
	active := env.seedDebt(t, "1000", domain.DebtStatusActive)
	rejected := env.seedDebt(t, "1000", domain.DebtStatusRejected)

	_, err := svc.BeginGcashCheckout(ctx, debtorID, active.ID, dec("0"), nil)
	assert.True(t, domain.IsKind(err, domain.KindValidation), "got %v", err)

	_, err = svc.BeginGcashCheckout(ctx, debtorID, active.ID, dec("1000.01"), nil)
	assert.True(t, domain.IsKind(err, domain.KindValidation), "got %v", err)

	_, err = svc.BeginGcashCheckout(ctx, creditorID, active.ID, dec("100"), nil)
	assert.True(t, domain.IsKind(err, domain.KindForbidden), "got %v", err)

	_, err = svc.BeginGcashCheckout(ctx, debtorID, rejected.ID, dec("100"), nil)
	assert.True(t, domain.IsKind(err, domain.KindInvalidState), "got %v", err)

	_, err = svc.BeginGcashCheckout(ctx, debtorID, 999, dec("100"), nil)
	assert.True(t, domain.IsKind(err, domain.KindNotFound), "got %v", err)
}

func TestConfirmGcashCheckout(t *testing.T) {
	svc, env, intents := newCheckoutEnv()
	ctx := context.Background()
	debt := env.seedDebt(t, "1000", domain.DebtStatusActive)

	ref := "GC-12345"
	checkout, err := svc.BeginGcashCheckout(ctx, debtorID, debt.ID, dec("1000"), &ref)
	require.NoError(t, err)

	res, err := svc.ConfirmGcashCheckout(ctx, debtorID, checkout.CheckoutID)
	require.NoError(t, err)

	assert.Equal(t, domain.DebtStatusPaid, res.Debt.Status)
	require.NotNil(t, res.Payment)
	assert.Equal(t, domain.PaymentStatusCompleted, res.Payment.Status)
	require.NotNil(t, res.Payment.ReferenceNumber)
	assert.Equal(t, ref, *res.Payment.ReferenceNumber)
	require.NotNil(t, res.Payment.TransactionID)
	assert.True(t, strings.HasPrefix(*res.Payment.TransactionID, "TXN-"))

	// the intent is consumed, a replayed callback cannot pay twice
	assert.Empty(t, intents.values)
	_, err = svc.ConfirmGcashCheckout(ctx, debtorID, checkout.CheckoutID)
	assert.True(t, domain.IsKind(err, domain.KindNotFound), "got %v", err)
	assert.True(t, env.debts.rows[debt.ID].PaidAmount.Equal(dec("1000")))
}

func TestConfirmGcashCheckout_WrongUser(t *testing.T) {
	svc, env, _ := newCheckoutEnv()
	ctx := context.Background()
	debt := env.seedDebt(t, "1000", domain.DebtStatusActive)

	checkout, err := svc.BeginGcashCheckout(ctx, debtorID, debt.ID, dec("100"), nil)
	require.NoError(t, err)

	_, err = svc.ConfirmGcashCheckout(ctx, strangerID, checkout.CheckoutID)
	assert.True(t, domain.IsKind(err, domain.KindForbidden), "got %v", err)
}

func TestConfirmGcashCheckout_UnknownCheckout(t *testing.T) {
	svc, _, _ := newCheckoutEnv()

	_, err := svc.ConfirmGcashCheckout(context.Background(), debtorID, "no-such-checkout")
	assert.True(t, domain.IsKind(err, domain.KindNotFound), "got %v", err)
}

func TestConfirmGcashCheckout_StoreOutage(t *testing.T) {
	svc, _, intents := newCheckoutEnv()
	intents.getErr = errors.New("dial tcp: connection refused")

	// an unreachable store is not a missing checkout
	_, err := svc.ConfirmGcashCheckout(context.Background(), debtorID, "any")
	assert.True(t, domain.IsKind(err, domain.KindPersistence), "got %v", err)
}
