package rest

import (
	"net/http"
	"strings"

	"debtster/internal/transport/auth"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) exportDebts(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		ErrorUnauthorized(w, "Unauthorized")
		return
	}

	f, ok := h.parseDebtsFilter(w, r)
	if !ok {
		return
	}

	exportID, err := h.exports.StartDebtsExport(r.Context(), userID, f)
	if err != nil {
		ErrorFrom(w, err)
		return
	}
	SuccessAccepted(w, "export started", map[string]interface{}{"export_id": exportID})
}

func (h *Handler) exportPayments(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		ErrorUnauthorized(w, "Unauthorized")
		return
	}

	f, ok := h.parsePaymentsFilter(w, r)
	if !ok {
		return
	}

	exportID, err := h.exports.StartPaymentsExport(r.Context(), userID, f)
	if err != nil {
		ErrorFrom(w, err)
		return
	}
	SuccessAccepted(w, "export started", map[string]interface{}{"export_id": exportID})
}

func (h *Handler) exportUsers(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		ErrorUnauthorized(w, "Unauthorized")
		return
	}

	f, ok := h.parseUsersFilter(w, r)
	if !ok {
		return
	}

	exportID, err := h.exports.StartUsersExport(r.Context(), userID, f)
	if err != nil {
		ErrorFrom(w, err)
		return
	}
	SuccessAccepted(w, "export started", map[string]interface{}{"export_id": exportID})
}

func (h *Handler) exportActivity(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		ErrorUnauthorized(w, "Unauthorized")
		return
	}

	f, ok := h.parseActivitiesFilter(w, r)
	if !ok {
		return
	}

	exportID, err := h.exports.StartActivityExport(r.Context(), userID, f)
	if err != nil {
		ErrorFrom(w, err)
		return
	}
	SuccessAccepted(w, "export started", map[string]interface{}{"export_id": exportID})
}

func (h *Handler) listExports(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		ErrorUnauthorized(w, "Unauthorized")
		return
	}

	statuses, err := h.exports.GetExports(r.Context(), userID)
	if err != nil {
		ErrorFrom(w, err)
		return
	}
	Success(w, "", statuses)
}

func (h *Handler) getExport(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		ErrorUnauthorized(w, "Unauthorized")
		return
	}

	exportID := chi.URLParam(r, "export_id")
	if exportID == "" {
		ErrorBadRequest(w, "export_id is required")
		return
	}
	if !strings.HasPrefix(exportID, "exports:") {
		exportID = "exports:" + exportID
	}

	status, err := h.exports.GetExport(r.Context(), userID, exportID)
	if err != nil {
		ErrorFrom(w, err)
		return
	}
	Success(w, "", status)
}
