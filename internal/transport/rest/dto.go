package rest

import (
	"time"

	"debtster/internal/domain"
	"debtster/internal/service"
)

type debtJSON struct {
	ID               int64      `json:"id"`
	CreditorID       int64      `json:"creditor_id"`
	DebtorID         int64      `json:"debtor_id"`
	CreditorUsername *string    `json:"creditor_username,omitempty"`
	DebtorUsername   *string    `json:"debtor_username,omitempty"`
	Type             string     `json:"type"`
	Amount           string     `json:"amount"`
	ProductName      *string    `json:"product_name,omitempty"`
	Description      *string    `json:"description,omitempty"`
	PaidAmount       string     `json:"paid_amount"`
	Balance          string     `json:"balance"`
	Status           string     `json:"status"`
	DebtProof        *string    `json:"debt_proof,omitempty"`
	ReleaseProof     *string    `json:"release_proof,omitempty"`
	PaymentProof     *string    `json:"payment_proof,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	PaidAt           *time.Time `json:"paid_at,omitempty"`
}

func toDebtJSON(d *domain.Debt) *debtJSON {
	if d == nil {
		return nil
	}
	return &debtJSON{
		ID:               d.ID,
		CreditorID:       d.CreditorID,
		DebtorID:         d.DebtorID,
		CreditorUsername: d.CreditorUsername,
		DebtorUsername:   d.DebtorUsername,
		Type:             string(d.Type),
		Amount:           d.Amount.StringFixed(2),
		ProductName:      d.ProductName,
		Description:      d.Description,
		PaidAmount:       d.PaidAmount.StringFixed(2),
		Balance:          d.Balance().StringFixed(2),
		Status:           string(d.Status),
		DebtProof:        d.DebtProof,
		ReleaseProof:     d.ReleaseProof,
		PaymentProof:     d.PaymentProof,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
		PaidAt:           d.PaidAt,
	}
}

func toDebtListJSON(debts []domain.Debt) []*debtJSON {
	out := make([]*debtJSON, 0, len(debts))
	for i := range debts {
		out = append(out, toDebtJSON(&debts[i]))
	}
	return out
}

type paymentJSON struct {
	ID              int64      `json:"id"`
	DebtID          int64      `json:"debt_id"`
	PayerID         int64      `json:"payer_id"`
	PayerUsername   *string    `json:"payer_username,omitempty"`
	Amount          string     `json:"amount"`
	Method          string     `json:"method"`
	Status          string     `json:"status"`
	ReferenceNumber *string    `json:"reference_number,omitempty"`
	ReceiptNo       string     `json:"receipt_no"`
	TransactionID   *string    `json:"transaction_id,omitempty"`
	ReceiptFile     *string    `json:"receipt_file,omitempty"`
	DebtorProof     *string    `json:"debtor_proof,omitempty"`
	CreditorProof   *string    `json:"creditor_proof,omitempty"`
	PaymentDate     *time.Time `json:"payment_date,omitempty"`
	VerifiedAt      *time.Time `json:"verified_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

func toPaymentJSON(p *domain.Payment) *paymentJSON {
	if p == nil {
		return nil
	}
	return &paymentJSON{
		ID:              p.ID,
		DebtID:          p.DebtID,
		PayerID:         p.PayerID,
		PayerUsername:   p.PayerUsername,
		Amount:          p.Amount.StringFixed(2),
		Method:          string(p.Method),
		Status:          string(p.Status),
		ReferenceNumber: p.ReferenceNumber,
		ReceiptNo:       p.ReceiptNo,
		TransactionID:   p.TransactionID,
		ReceiptFile:     p.ReceiptFile,
		DebtorProof:     p.DebtorProof,
		CreditorProof:   p.CreditorProof,
		PaymentDate:     p.PaymentDate,
		VerifiedAt:      p.VerifiedAt,
		CreatedAt:       p.CreatedAt,
	}
}

func toPaymentListJSON(payments []domain.Payment) []*paymentJSON {
	out := make([]*paymentJSON, 0, len(payments))
	for i := range payments {
		out = append(out, toPaymentJSON(&payments[i]))
	}
	return out
}

type notificationJSON struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	DebtID    *int64    `json:"debt_id,omitempty"`
	PaymentID *int64    `json:"payment_id,omitempty"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

func toNotificationJSON(n *domain.Notification) *notificationJSON {
	if n == nil {
		return nil
	}
	return &notificationJSON{
		ID:        n.ID,
		Type:      string(n.Type),
		Message:   n.Message,
		DebtID:    n.DebtID,
		PaymentID: n.PaymentID,
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt,
	}
}

func toNotificationListJSON(notifications []domain.Notification) []*notificationJSON {
	out := make([]*notificationJSON, 0, len(notifications))
	for i := range notifications {
		out = append(out, toNotificationJSON(&notifications[i]))
	}
	return out
}

type userJSON struct {
	ID             int64     `json:"id"`
	Username       string    `json:"username"`
	FullName       string    `json:"full_name"`
	Email          *string   `json:"email,omitempty"`
	ProfileSummary *string   `json:"profile_summary,omitempty"`
	Role           string    `json:"role"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	TotalLoaned    *string   `json:"total_loaned,omitempty"`
	TotalOwed      *string   `json:"total_owed,omitempty"`
}

func toUserJSON(u *domain.User) *userJSON {
	if u == nil {
		return nil
	}
	out := &userJSON{
		ID:             u.ID,
		Username:       u.Username,
		FullName:       u.FullName,
		Email:          u.Email,
		ProfileSummary: u.ProfileSummary,
		Role:           string(u.Role),
		IsActive:       u.IsActive,
		CreatedAt:      u.CreatedAt,
	}
	if u.TotalLoaned != nil {
		s := u.TotalLoaned.StringFixed(2)
		out.TotalLoaned = &s
	}
	if u.TotalOwed != nil {
		s := u.TotalOwed.StringFixed(2)
		out.TotalOwed = &s
	}
	return out
}

func toUserListJSON(users []domain.User) []*userJSON {
	out := make([]*userJSON, 0, len(users))
	for i := range users {
		out = append(out, toUserJSON(&users[i]))
	}
	return out
}

type activityJSON struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	Username    *string   `json:"username,omitempty"`
	Action      string    `json:"action"`
	Description string    `json:"description"`
	RelatedID   *int64    `json:"related_id,omitempty"`
	IPAddress   *string   `json:"ip_address,omitempty"`
	UserAgent   *string   `json:"user_agent,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func toActivityListJSON(rows []domain.Activity) []*activityJSON {
	out := make([]*activityJSON, 0, len(rows))
	for i := range rows {
		a := rows[i]
		out = append(out, &activityJSON{
			ID:          a.ID,
			UserID:      a.UserID,
			Username:    a.Username,
			Action:      string(a.Action),
			Description: a.Description,
			RelatedID:   a.RelatedID,
			IPAddress:   a.IPAddress,
			UserAgent:   a.UserAgent,
			CreatedAt:   a.CreatedAt,
		})
	}
	return out
}

// transitionJSON is what every lifecycle mutation answers with: the new debt
// and payment state plus the notifications the transition created.
type transitionJSON struct {
	Debt          *debtJSON           `json:"debt,omitempty"`
	Payment       *paymentJSON        `json:"payment,omitempty"`
	Notifications []*notificationJSON `json:"notifications"`
}

func toTransitionJSON(res *service.TransitionResult) *transitionJSON {
	if res == nil {
		return nil
	}
	return &transitionJSON{
		Debt:          toDebtJSON(res.Debt),
		Payment:       toPaymentJSON(res.Payment),
		Notifications: toNotificationListJSON(res.Notifications),
	}
}

// profileJSON combines an account with its debt figures.
func profileJSON(p *service.Profile) map[string]interface{} {
	out := map[string]interface{}{
		"user": toUserJSON(p.User),
	}
	if p.Stats != nil {
		out["stats"] = map[string]interface{}{
			"total_debts":    p.Stats.TotalDebts,
			"paid_debts":     p.Stats.PaidDebts,
			"open_debts":     p.Stats.OpenDebts,
			"outstanding":    p.Stats.Outstanding.StringFixed(2),
			"counterparties": p.Stats.Counterparties,
		}
	}
	return out
}
