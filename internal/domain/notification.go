package domain

import "time"

type NotificationType string

const (
	NotificationNewDebt             NotificationType = "new_debt"
	NotificationDebtConfirmed       NotificationType = "debt_confirmed"
	NotificationDebtRejected        NotificationType = "debt_rejected"
	NotificationProofUploaded       NotificationType = "proof_uploaded"
	NotificationPaymentSubmitted    NotificationType = "payment_submitted"
	NotificationPaymentReceived     NotificationType = "payment_received"
	NotificationPaymentSuccess      NotificationType = "payment_success"
	NotificationPaymentConfirmed    NotificationType = "payment_confirmed"
	NotificationPaymentRejected     NotificationType = "payment_rejected"
	NotificationPaymentReminder     NotificationType = "payment_reminder"
	NotificationDebtPaid            NotificationType = "debt_paid"
)

type Notification struct {
	ID        int64
	UserID    int64
	Type      NotificationType
	Message   string
	DebtID    *int64
	PaymentID *int64
	IsRead    bool
	CreatedAt time.Time
}
