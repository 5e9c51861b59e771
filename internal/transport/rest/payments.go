package rest

import (
	"context"
	"net/http"
	"path/filepath"

	"debtster/internal/domain"
	"debtster/internal/service"
	"debtster/internal/transport/auth"
)

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		ErrorUnauthorized(w, "Unauthorized")
		return
	}

	in := service.ListPaymentsInput{
		IncludeRejected: queryBool(r, "include_rejected"),
		Limit:           queryInt64(r, "limit", 0),
	}
	if v := queryString(r, "method"); v != nil {
		method := domain.PaymentMethod(*v)
		in.Method = &method
	}
	if v := queryString(r, "status"); v != nil {
		status := domain.PaymentStatus(*v)
		in.Status = &status
	}
	if in.DateFrom, err = queryDate(r, "from"); err != nil {
		ErrorBadRequest(w, err.Error())
		return
	}
	if in.DateTo, err = queryDate(r, "to"); err != nil {
		ErrorBadRequest(w, err.Error())
		return
	}

	payments, err := h.payments.List(r.Context(), userID, in)
	if err != nil {
		ErrorFrom(w, err)
		return
	}

	Success(w, "", toPaymentListJSON(payments))
}

func (h *Handler) confirmCashPayment(w http.ResponseWriter, r *http.Request) {
	h.paymentTransition(w, r, h.engine.ConfirmCashPayment, "payment confirmed")
}

func (h *Handler) rejectCashPayment(w http.ResponseWriter, r *http.Request) {
	h.paymentTransition(w, r, h.engine.RejectCashPayment, "payment rejected")
}

func (h *Handler) paymentTransition(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, actorID, paymentID int64) (*service.TransitionResult, error),
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

	res, err := op(r.Context(), userID, paymentID)
	if err != nil {
		ErrorFrom(w, err)
		return
	}

	Success(w, message, toTransitionJSON(res))
}

func (h *Handler) downloadReceipt(w http.ResponseWriter, r *http.Request) {
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

	fileName, err := h.payments.ReceiptFile(r.Context(), userID, paymentID)
	if err != nil {
		ErrorFrom(w, err)
		return
	}
	if !h.receipts.Exists(fileName) {
		ErrorNotFound(w, "receipt file is no longer available")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "attachment; filename="+filepath.Base(fileName))
	http.ServeFile(w, r, h.receipts.Path(fileName))
}
