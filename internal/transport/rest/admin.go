package rest

import (
	"context"
	"net/http"

	"debtster/internal/domain"
	"debtster/internal/repository"
	"debtster/internal/service"
	"debtster/internal/transport/auth"
)

func (h *Handler) adminDashboard(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		ErrorUnauthorized(w, "Unauthorized")
		return
	}

	timeframe := service.TimeframeDaily
	if v := queryString(r, "timeframe"); v != nil {
		timeframe = service.Timeframe(*v)
	}

	dash, err := h.admin.Dashboard(r.Context(), userID, timeframe, requestMeta(r))
	if err != nil {
		ErrorFrom(w, err)
		return
	}

	debtCounts := make([]map[string]interface{}, 0, len(dash.DebtCounts))
	for _, c := range dash.DebtCounts {
		debtCounts = append(debtCounts, map[string]interface{}{
			"bucket": c.Bucket,
			"count":  c.Count,
		})
	}
	paymentSums := make([]map[string]interface{}, 0, len(dash.PaymentSums))
	for _, s := range dash.PaymentSums {
		paymentSums = append(paymentSums, map[string]interface{}{
			"bucket": s.Bucket,
			"total":  s.Total.StringFixed(2),
		})
	}

	Success(w, "", map[string]interface{}{
		"users": dash.Users,
		"debts": map[string]interface{}{
			"total":        dash.Debts.Total,
			"pending":      dash.Debts.Pending,
			"active":       dash.Debts.Active,
			"awaiting":     dash.Debts.Awaiting,
			"paid":         dash.Debts.Paid,
			"rejected":     dash.Debts.Rejected,
			"amount_total": dash.Debts.AmountTotal.StringFixed(2),
			"amount_paid":  dash.Debts.AmountPaid.StringFixed(2),
		},
		"debt_counts":  debtCounts,
		"payment_sums": paymentSums,
	})
}

func (h *Handler) adminListUsers(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		ErrorUnauthorized(w, "Unauthorized")
		return
	}

	f, ok := h.parseUsersFilter(w, r)
	if !ok {
		return
	}

	users, err := h.accounts.ListUsers(r.Context(), userID, f)
	if err != nil {
		ErrorFrom(w, err)
		return
	}

	Success(w, "", toUserListJSON(users))
}

func (h *Handler) adminUserDetail(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		ErrorUnauthorized(w, "Unauthorized")
		return
	}
	targetID, err := urlID(r, "id")
	if err != nil {
		ErrorBadRequest(w, err.Error())
		return
	}

	profile, err := h.accounts.UserDetail(r.Context(), userID, targetID)
	if err != nil {
		ErrorFrom(w, err)
		return
	}

	Success(w, "", profileJSON(profile))
}

func (h *Handler) adminListDebts(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		ErrorUnauthorized(w, "Unauthorized")
		return
	}

	f, ok := h.parseDebtsFilter(w, r)
	if !ok {
		return
	}

	debts, err := h.admin.ListDebts(r.Context(), userID, f, requestMeta(r))
	if err != nil {
		ErrorFrom(w, err)
		return
	}

	Success(w, "", toDebtListJSON(debts))
}

func (h *Handler) adminListPayments(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		ErrorUnauthorized(w, "Unauthorized")
		return
	}

	f, ok := h.parsePaymentsFilter(w, r)
	if !ok {
		return
	}

	payments, err := h.admin.ListPayments(r.Context(), userID, f, requestMeta(r))
	if err != nil {
		ErrorFrom(w, err)
		return
	}

	Success(w, "", toPaymentListJSON(payments))
}

func (h *Handler) adminApprovePayment(w http.ResponseWriter, r *http.Request) {
	h.adminAdjudicate(w, r, h.admin.ApprovePayment, "payment approved")
}

func (h *Handler) adminRejectPayment(w http.ResponseWriter, r *http.Request) {
	h.adminAdjudicate(w, r, h.admin.RejectPayment, "payment rejected")
}

func (h *Handler) adminAdjudicate(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, actorID, paymentID int64, meta service.RequestMeta) (*service.TransitionResult, error),
	message string,
) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		ErrorUnauthorized(w, "Unauthorized")
		return
	}
	paymentID, err := urlID(r, "id")
	if err != nil {
		ErrorBadRequest(w, err.Error())
		return
	}

	res, err := op(r.Context(), userID, paymentID, requestMeta(r))
	if err != nil {
		ErrorFrom(w, err)
		return
	}

	Success(w, message, toTransitionJSON(res))
}

func (h *Handler) adminReconcile(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		ErrorUnauthorized(w, "Unauthorized")
		return
	}
	debtID, err := urlID(r, "id")
	if err != nil {
		ErrorBadRequest(w, err.Error())
		return
	}

	rec, err := h.admin.Reconcile(r.Context(), userID, debtID, requestMeta(r))
	if err != nil {
		ErrorFrom(w, err)
		return
	}

	Success(w, "", map[string]interface{}{
		"debt_id":    rec.DebtID,
		"stored":     rec.Stored.StringFixed(2),
		"derived":    rec.Derived.StringFixed(2),
		"consistent": rec.Consistent,
	})
}

func (h *Handler) adminRenumber(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		ErrorUnauthorized(w, "Unauthorized")
		return
	}

	renumbered, err := h.admin.RenumberDebts(r.Context(), userID, requestMeta(r))
	if err != nil {
		ErrorFrom(w, err)
		return
	}

	Success(w, "debts renumbered", map[string]interface{}{"renumbered": renumbered})
}

func (h *Handler) adminActivity(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		ErrorUnauthorized(w, "Unauthorized")
		return
	}

	f, ok := h.parseActivitiesFilter(w, r)
	if !ok {
		return
	}

	rows, err := h.admin.ListActivity(r.Context(), userID, f, requestMeta(r))
	if err != nil {
		ErrorFrom(w, err)
		return
	}

	Success(w, "", toActivityListJSON(rows))
}

// Filter parsers shared by the admin list endpoints and the export starters.
// A false return means an error response has already been written.

func (h *Handler) parseDebtsFilter(w http.ResponseWriter, r *http.Request) (repository.DebtsFilter, bool) {
	f := repository.DebtsFilter{
		Counterparty: queryString(r, "counterparty"),
		Limit:        queryInt64(r, "limit", 0),
	}
	if v := queryString(r, "status"); v != nil {
		status := domain.DebtStatus(*v)
		f.Status = &status
	}
	if v := queryString(r, "type"); v != nil {
		typ := domain.DebtType(*v)
		f.Type = &typ
	}
	if v := queryInt64(r, "user_id", 0); v > 0 {
		f.UserID = &v
	}

	var err error
	if f.CreatedFrom, err = queryDate(r, "from"); err != nil {
		ErrorBadRequest(w, err.Error())
		return f, false
	}
	if f.CreatedTo, err = queryDate(r, "to"); err != nil {
		ErrorBadRequest(w, err.Error())
		return f, false
	}
	return f, true
}

func (h *Handler) parsePaymentsFilter(w http.ResponseWriter, r *http.Request) (repository.PaymentsFilter, bool) {
	f := repository.PaymentsFilter{
		Limit: queryInt64(r, "limit", 0),
	}
	if v := queryString(r, "method"); v != nil {
		method := domain.PaymentMethod(*v)
		f.Method = &method
	}
	if v := queryString(r, "status"); v != nil {
		status := domain.PaymentStatus(*v)
		f.Status = &status
	}
	if v := queryInt64(r, "debt_id", 0); v > 0 {
		f.DebtID = &v
	}
	if v := queryInt64(r, "payer_id", 0); v > 0 {
		f.PayerID = &v
	}

	var err error
	if f.DateFrom, err = queryDate(r, "from"); err != nil {
		ErrorBadRequest(w, err.Error())
		return f, false
	}
	if f.DateTo, err = queryDate(r, "to"); err != nil {
		ErrorBadRequest(w, err.Error())
		return f, false
	}
	return f, true
}

func (h *Handler) parseUsersFilter(w http.ResponseWriter, r *http.Request) (repository.UsersFilter, bool) {
	f := repository.UsersFilter{
		Search: queryString(r, "search"),
		Limit:  queryInt64(r, "limit", 0),
	}
	if v := queryString(r, "role"); v != nil {
		role := domain.Role(*v)
		f.Role = &role
	}
	return f, true
}

func (h *Handler) parseActivitiesFilter(w http.ResponseWriter, r *http.Request) (repository.ActivitiesFilter, bool) {
	f := repository.ActivitiesFilter{
		Limit: queryInt64(r, "limit", 0),
	}
	if v := queryInt64(r, "user_id", 0); v > 0 {
		f.UserID = &v
	}
	if v := queryString(r, "action"); v != nil {
		action := domain.ActivityAction(*v)
		f.Action = &action
	}

	var err error
	if f.CreatedFrom, err = queryDate(r, "from"); err != nil {
		ErrorBadRequest(w, err.Error())
		return f, false
	}
	if f.CreatedTo, err = queryDate(r, "to"); err != nil {
		ErrorBadRequest(w, err.Error())
		return f, false
	}
	return f, true
}
