package domain

import "time"

type ActivityAction string

const (
	ActivityLogin          ActivityAction = "login"
	ActivityViewUsers      ActivityAction = "view_users"
	ActivityViewUserDetail ActivityAction = "view_user_detail"
	ActivityViewDebts      ActivityAction = "view_debts"
	ActivityViewDebtDetail ActivityAction = "view_debt_detail"
	ActivityViewPayments   ActivityAction = "view_payments"
	ActivityApprovePayment ActivityAction = "approve_payment"
	ActivityRejectPayment  ActivityAction = "reject_payment"
	ActivityViewActivity   ActivityAction = "view_activity"
	ActivityExportData     ActivityAction = "export_data"
	ActivityRenumberDebts  ActivityAction = "renumber_debts"
)

type Activity struct {
	ID          int64
	UserID      int64
	Action      ActivityAction
	Description string
	RelatedID   *int64
	IPAddress   *string
	UserAgent   *string
	CreatedAt   time.Time

	Username *string
}
