package service

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"debtster/internal/clients"
	"debtster/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderReceiptPDF(t *testing.T) {
	txn := "TXN-ABCDEF1234567890"
	when := time.Date(2026, 8, 14, 15, 30, 0, 0, time.UTC)
	payment := &domain.Payment{
		ID:            7,
		Amount:        decimal.RequireFromString("1250.50"),
		Method:        domain.PaymentMethodGcash,
		ReceiptNo:     "0f8fad5b-d9cb-469f-a165-70867728950e",
		TransactionID: &txn,
		PaymentDate:   &when,
	}

	data, err := renderReceiptPDF(payment, "Juan dela Cruz", "Maria Santos")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")), "output should be a PDF document")
	assert.Greater(t, len(data), 1000)
}

func TestRenderReceiptPDF_MissingOptionals(t *testing.T) {
	payment := &domain.Payment{
		Amount:    decimal.RequireFromString("100"),
		Method:    domain.PaymentMethodCash,
		ReceiptNo: "no-txn-no-date",
	}

	data, err := renderReceiptPDF(payment, "N/A", "N/A")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))
}

func TestReceiptService_Generate(t *testing.T) {
	dir := t.TempDir()
	storage, err := clients.NewLocalStorage(dir, "/files", "http://localhost:8080")
	require.NoError(t, err)
	users := &fakeUsers{rows: map[int64]*domain.User{
		1: {ID: 1, Username: "maria", FullName: "Maria Santos", Role: domain.RoleCreditor, IsActive: true},
		2: {ID: 2, Username: "juan", FullName: "Juan dela Cruz", Role: domain.RoleDebtor, IsActive: true},
	}}
	svc := NewReceiptService(storage, users)

	payment := &domain.Payment{
		ID:        3,
		Amount:    decimal.RequireFromString("500"),
		Method:    domain.PaymentMethodCash,
		ReceiptNo: "11111111-2222-3333-4444-555555555555",
	}
	debt := &domain.Debt{ID: 9, CreditorID: 1, DebtorID: 2}

	name, err := svc.Generate(payment, debt)
	require.NoError(t, err)
	assert.Contains(t, name, "receipt_"+payment.ReceiptNo)

	saved, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(saved, []byte("%PDF")))

	assert.True(t, storage.Exists(name))
}

func TestFormatReceiptDate(t *testing.T) {
	assert.Equal(t, "N/A", formatReceiptDate(nil))

	when := time.Date(2026, 3, 5, 9, 7, 0, 0, time.UTC)
	assert.Equal(t, "March 05, 2026 9:07 AM", formatReceiptDate(&when))
}
