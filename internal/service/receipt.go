package service

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"debtster/internal/clients"
	"debtster/internal/domain"

	"github.com/go-pdf/fpdf"
)

// ReceiptService renders payment receipts as PDF files on local storage.
type ReceiptService struct {
	storage *clients.StorageClient
	users   UserFinder
}

func NewReceiptService(storage *clients.StorageClient, users UserFinder) *ReceiptService {
	return &ReceiptService{storage: storage, users: users}
}

// Generate renders and stores the receipt for a completed payment, returning
// the stored file name. Called after the completing transaction commits, so
// it resolves names with a fresh context.
func (s *ReceiptService) Generate(payment *domain.Payment, debt *domain.Debt) (string, error) {
	if s.storage == nil {
		return "", fmt.Errorf("receipt storage not configured")
	}

	ctx := context.Background()
	debtorName := s.displayName(ctx, debt.DebtorID, debt.DebtorUsername)
	creditorName := s.displayName(ctx, debt.CreditorID, debt.CreditorUsername)

	data, err := renderReceiptPDF(payment, debtorName, creditorName)
	if err != nil {
		return "", fmt.Errorf("render receipt: %w", err)
	}

	name := fmt.Sprintf("receipt_%s.pdf", payment.ReceiptNo)
	saved, err := s.storage.Save(ctx, name, data)
	if err != nil {
		return "", fmt.Errorf("save receipt: %w", err)
	}

	log.Printf("[RECEIPT] generated %s for payment %d", saved, payment.ID)
	return saved, nil
}

func (s *ReceiptService) displayName(ctx context.Context, userID int64, fallback *string) string {
	if s.users != nil {
		if u, err := s.users.ByID(ctx, userID); err == nil && u != nil && u.FullName != "" {
			return u.FullName
		}
	}
	if fallback != nil && *fallback != "" {
		return *fallback
	}
	return "N/A"
}

// renderReceiptPDF draws the receipt: centered title, receipt and transaction
// numbers, a bordered detail table with a green PAID cell, and a footer line.
// Amounts are written with a "PHP" prefix since the core PDF fonts have no
// peso glyph.
func renderReceiptPDF(payment *domain.Payment, debtorName, creditorName string) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 24)
	pdf.SetTextColor(1, 58, 99)
	pdf.CellFormat(0, 14, "PAYMENT RECEIPT", "", 1, "C", false, 0, "")
	pdf.Ln(4)

	txn := "N/A"
	if payment.TransactionID != nil {
		txn = *payment.TransactionID
	}

	pdf.SetFont("Helvetica", "", 12)
	pdf.SetTextColor(102, 102, 102)
	pdf.CellFormat(0, 7, fmt.Sprintf("Receipt No: %s", payment.ReceiptNo), "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 7, fmt.Sprintf("Transaction ID: %s", txn), "", 1, "C", false, 0, "")
	pdf.Ln(8)

	rows := [][2]string{
		{"Payment Date", formatReceiptDate(payment.PaymentDate)},
		{"Payment Method", strings.ToUpper(string(payment.Method))},
		{"Amount Paid", "PHP " + payment.Amount.StringFixed(2)},
		{"Debtor", debtorName},
		{"Creditor", creditorName},
		{"Status", "PAID"},
	}

	const labelW, valueW, rowH = 55.0, 95.0, 10.0
	left := (210 - labelW - valueW) / 2

	for i, row := range rows {
		pdf.SetX(left)

		pdf.SetFont("Helvetica", "B", 10)
		pdf.SetTextColor(0, 0, 0)
		pdf.SetFillColor(240, 240, 240)
		pdf.CellFormat(labelW, rowH, row[0], "1", 0, "L", true, 0, "")

		if i == len(rows)-1 {
			pdf.SetFillColor(40, 167, 69)
			pdf.SetTextColor(245, 245, 245)
			pdf.CellFormat(valueW, rowH, row[1], "1", 1, "L", true, 0, "")
		} else {
			pdf.SetFont("Helvetica", "", 10)
			pdf.CellFormat(valueW, rowH, row[1], "1", 1, "L", false, 0, "")
		}
	}

	pdf.Ln(12)
	pdf.SetFont("Helvetica", "", 8)
	pdf.SetTextColor(153, 153, 153)
	pdf.CellFormat(0, 5, "This is a computer-generated receipt.", "", 1, "C", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatReceiptDate(t *time.Time) string {
	if t == nil {
		return "N/A"
	}
	return t.Format("January 02, 2006 3:04 PM")
}
