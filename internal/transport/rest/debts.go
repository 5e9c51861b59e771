package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"debtster/internal/domain"
	"debtster/internal/service"
	"debtster/internal/transport/auth"

	"github.com/google/uuid"
)

// uploadProof stores a validated proof under a dated object key and returns
// the key the debt/payment row will reference.
func (h *Handler) uploadProof(r *http.Request, kind string, proof *UploadedProof) (string, error) {
	name := fmt.Sprintf("%s/%s/%s_%s", kind, time.Now().Format("2006/01/02"), uuid.NewString(), proof.FileName)
	return h.uploads.Upload(r.Context(), name, proof.Data, proof.ContentType)
}

func (h *Handler) listDebts(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		ErrorUnauthorized(w, "Unauthorized")
		return
	}

	in := service.ListDebtsInput{
		Counterparty: queryString(r, "counterparty"),
		Limit:        queryInt64(r, "limit", 0),
	}
	if v := queryString(r, "status"); v != nil {
		status := domain.DebtStatus(*v)
		in.Status = &status
	}
	if v := queryString(r, "type"); v != nil {
		typ := domain.DebtType(*v)
		in.Type = &typ
	}
	if in.CreatedFrom, err = queryDate(r, "from"); err != nil {
		ErrorBadRequest(w, err.Error())
		return
	}
	if in.CreatedTo, err = queryDate(r, "to"); err != nil {
		ErrorBadRequest(w, err.Error())
		return
	}

	debts, err := h.debts.List(r.Context(), userID, in)
	if err != nil {
		ErrorFrom(w, err)
		return
	}

	Success(w, "", toDebtListJSON(debts))
}

func (h *Handler) createDebt(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		ErrorUnauthorized(w, "Unauthorized")
		return
	}

	req, err := ValidateDebtRequest(r)
	if err != nil {
		if _, ok := err.(*ValidationError); ok {
			ErrorBadRequest(w, err.Error())
			return
		}
		ErrorBadRequest(w, "invalid request body")
		return
	}

	in := service.CreateDebtInput{
		CreditorUsername: req.CreditorUsername,
		Type:             domain.DebtType(req.Type),
		Amount:           req.Amount,
		ProductName:      req.ProductName,
		Description:      req.Description,
	}

	proof, err := ReadProofFile(r, "proof", maxDebtProofSize, false)
	if err != nil {
		ErrorBadRequest(w, err.Error())
		return
	}
	if proof != nil {
		key, err := h.uploadProof(r, "debt_proofs", proof)
		if err != nil {
			ErrorFrom(w, domain.Persistence("store debt proof", err))
			return
		}
		in.DebtProof = &key
	}

	res, err := h.engine.CreateDebt(r.Context(), userID, in)
	if err != nil {
		ErrorFrom(w, err)
		return
	}

	SuccessCreated(w, "debt recorded", toTransitionJSON(res))
}

func (h *Handler) debtDetail(w http.ResponseWriter, r *http.Request) {
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

	detail, err := h.debts.Detail(r.Context(), userID, debtID)
	if err != nil {
		ErrorFrom(w, err)
		return
	}

	payments := make([]map[string]interface{}, 0, len(detail.Payments))
	for _, entry := range detail.Payments {
		payments = append(payments, map[string]interface{}{
			"payment":           toPaymentJSON(&entry.Payment),
			"remaining_balance": entry.RemainingBalance.StringFixed(2),
		})
	}

	Success(w, "", map[string]interface{}{
		"debt":     toDebtJSON(detail.Debt),
		"payments": payments,
	})
}

func (h *Handler) editDebt(w http.ResponseWriter, r *http.Request) {
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

	req, err := ValidateDebtRequest(r)
	if err != nil {
		if _, ok := err.(*ValidationError); ok {
			ErrorBadRequest(w, err.Error())
			return
		}
		ErrorBadRequest(w, "invalid request body")
		return
	}

	res, err := h.engine.EditDebt(r.Context(), userID, debtID, service.EditDebtInput{
		Type:        domain.DebtType(req.Type),
		Amount:      req.Amount,
		ProductName: req.ProductName,
		Description: req.Description,
	})
	if err != nil {
		ErrorFrom(w, err)
		return
	}

	Success(w, "debt updated", toTransitionJSON(res))
}

func (h *Handler) deleteDebt(w http.ResponseWriter, r *http.Request) {
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

	res, err := h.engine.DeleteDebt(r.Context(), userID, debtID)
	if err != nil {
		ErrorFrom(w, err)
		return
	}

	if res.Debt == nil {
		Success(w, "debt deleted", nil)
		return
	}
	Success(w, "debt hidden", toTransitionJSON(res))
}

func (h *Handler) confirmDebt(w http.ResponseWriter, r *http.Request) {
	h.debtTransition(w, r, h.engine.ConfirmDebt, "debt confirmed")
}

func (h *Handler) rejectDebt(w http.ResponseWriter, r *http.Request) {
	h.debtTransition(w, r, h.engine.RejectDebt, "debt rejected")
}

func (h *Handler) sendReminder(w http.ResponseWriter, r *http.Request) {
	h.debtTransition(w, r, h.engine.SendReminder, "reminder sent")
}

func (h *Handler) debtTransition(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, actorID, debtID int64) (*service.TransitionResult, error),
	message string,
) {
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

	res, err := op(r.Context(), userID, debtID)
	if err != nil {
		ErrorFrom(w, err)
		return
	}

	Success(w, message, toTransitionJSON(res))
}

func (h *Handler) uploadReleaseProof(w http.ResponseWriter, r *http.Request) {
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

	if err := r.ParseMultipartForm(maxDebtProofSize + 1<<20); err != nil {
		ErrorBadRequest(w, "invalid multipart form")
		return
	}
	proof, err := ReadProofFile(r, "proof", maxDebtProofSize, true)
	if err != nil {
		ErrorBadRequest(w, err.Error())
		return
	}

	key, err := h.uploadProof(r, "release_proofs", proof)
	if err != nil {
		ErrorFrom(w, domain.Persistence("store release proof", err))
		return
	}

	res, err := h.engine.UploadReleaseProof(r.Context(), userID, debtID, key)
	if err != nil {
		ErrorFrom(w, err)
		return
	}

	Success(w, "release proof uploaded", toTransitionJSON(res))
}

func (h *Handler) submitPayment(w http.ResponseWriter, r *http.Request) {
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

	req, err := ValidateSubmitPaymentRequest(r)
	if err != nil {
		if _, ok := err.(*ValidationError); ok {
			ErrorBadRequest(w, err.Error())
			return
		}
		ErrorBadRequest(w, "invalid request body")
		return
	}

	switch req.Method {
	case domain.PaymentMethodCash:
		proof, err := ReadProofFile(r, "proof", maxPaymentProofSize, true)
		if err != nil {
			ErrorBadRequest(w, err.Error())
			return
		}
		key, err := h.uploadProof(r, "payment_proofs", proof)
		if err != nil {
			ErrorFrom(w, domain.Persistence("store payment proof", err))
			return
		}

		res, err := h.engine.SubmitPayment(r.Context(), userID, debtID, service.SubmitPaymentInput{
			Method:          domain.PaymentMethodCash,
			Amount:          req.Amount,
			ReferenceNumber: req.ReferenceNumber,
			ProofKey:        &key,
		})
		if err != nil {
			ErrorFrom(w, err)
			return
		}
		SuccessCreated(w, "payment submitted for confirmation", toTransitionJSON(res))

	case domain.PaymentMethodGcash:
		if req.Confirm && req.CheckoutID != nil {
			res, err := h.payments.ConfirmGcashCheckout(r.Context(), userID, *req.CheckoutID)
			if err != nil {
				ErrorFrom(w, err)
				return
			}
			SuccessCreated(w, "payment completed", toTransitionJSON(res))
			return
		}

		checkout, err := h.payments.BeginGcashCheckout(r.Context(), userID, debtID, req.Amount, req.ReferenceNumber)
		if err != nil {
			ErrorFrom(w, err)
			return
		}
		Success(w, "checkout created", map[string]interface{}{
			"checkout_id": checkout.CheckoutID,
			"debt_id":     checkout.DebtID,
			"amount":      checkout.Amount.StringFixed(2),
			"expires_at":  checkout.ExpiresAt,
		})

	default:
		ErrorBadRequest(w, "method must be cash or gcash")
	}
}

func (h *Handler) markAsPaid(w http.ResponseWriter, r *http.Request) {
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

	if err := r.ParseMultipartForm(maxPaymentProofSize + 1<<20); err != nil {
		ErrorBadRequest(w, "invalid multipart form")
		return
	}

	in := service.MarkAsPaidInput{}
	if v := r.FormValue("amount"); v != "" {
		amount, err := parseDecimalField(v, "amount")
		if err != nil {
			ErrorBadRequest(w, err.Error())
			return
		}
		in.Amount = &amount
	}

	proof, err := ReadProofFile(r, "proof", maxPaymentProofSize, true)
	if err != nil {
		ErrorBadRequest(w, err.Error())
		return
	}
	key, err := h.uploadProof(r, "payment_proofs", proof)
	if err != nil {
		ErrorFrom(w, domain.Persistence("store payment proof", err))
		return
	}
	in.ProofKey = key

	res, err := h.engine.MarkAsPaid(r.Context(), userID, debtID, in)
	if err != nil {
		ErrorFrom(w, err)
		return
	}

	Success(w, "debt settled", toTransitionJSON(res))
}
